package collaboration

import (
	"net/http"
	"strings"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gorilla/websocket"

	"github.com/mobius-platform/collabd/internal/logging"
	"github.com/mobius-platform/collabd/internal/operations"
)

type ClientID string

// ClientConnection is one editing session attached over a websocket. All
// writes to the socket go through sendChan and the write pump so concurrent
// broadcasts never interleave frames.
type ClientConnection struct {
	ID        ClientID
	AuthorID  operations.AuthorID
	conn      *websocket.Conn
	documents mapset.Set[string]
	lastSeen  time.Time
	sendChan  chan *Message
	closeChan chan struct{}
	closeOnce sync.Once
	logger    *logging.Logger
	mutex     sync.RWMutex
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}

		allowed := []string{
			"http://localhost",
			"https://localhost",
			"http://127.0.0.1",
			"https://127.0.0.1",
		}
		for _, allowedOrigin := range allowed {
			if strings.HasPrefix(origin, allowedOrigin) {
				return true
			}
		}
		return false
	},
}

func NewClientConnection(clientID ClientID, authorID operations.AuthorID, w http.ResponseWriter, r *http.Request) (*ClientConnection, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}

	return &ClientConnection{
		ID:        clientID,
		AuthorID:  authorID,
		conn:      conn,
		documents: mapset.NewSet[string](),
		lastSeen:  time.Now(),
		sendChan:  make(chan *Message, 256),
		closeChan: make(chan struct{}),
		logger:    logging.NewLogger("websocket"),
	}, nil
}

// Start runs the read loop on the calling goroutine and the write pump in
// the background. It returns when the connection drops.
func (c *ClientConnection) Start(hub *SessionHub) {
	go c.writePump()
	c.readPump(hub)
}

func (c *ClientConnection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeChan)
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}

func (c *ClientConnection) SendMessage(msg *Message) error {
	select {
	case <-c.closeChan:
		return ErrConnectionClosed
	default:
	}

	select {
	case c.sendChan <- msg:
		return nil
	case <-c.closeChan:
		return ErrConnectionClosed
	default:
		return ErrSendBufferFull
	}
}

func (c *ClientConnection) SubscribeToDocument(documentID string) {
	c.documents.Add(documentID)
}

func (c *ClientConnection) UnsubscribeFromDocument(documentID string) {
	c.documents.Remove(documentID)
}

func (c *ClientConnection) IsSubscribedTo(documentID string) bool {
	return c.documents.Contains(documentID)
}

func (c *ClientConnection) Documents() []string {
	return c.documents.ToSlice()
}

func (c *ClientConnection) touch() {
	c.mutex.Lock()
	c.lastSeen = time.Now()
	c.mutex.Unlock()
}

func (c *ClientConnection) readPump(hub *SessionHub) {
	defer func() {
		hub.RemoveClient(c.ID)
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		select {
		case <-c.closeChan:
			return
		default:
		}

		var raw rawMessage
		if err := c.conn.ReadJSON(&raw); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.LogWebSocketError(string(c.ID), err)
			}
			return
		}

		c.touch()
		hub.HandleMessage(c, raw)
	}
}

func (c *ClientConnection) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case msg := <-c.sendChan:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.logger.LogWebSocketError(string(c.ID), err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.closeChan:
			return
		}
	}
}
