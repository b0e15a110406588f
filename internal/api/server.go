package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/mobius-platform/collabd/internal/collaboration"
	"github.com/mobius-platform/collabd/internal/coordinator"
	"github.com/mobius-platform/collabd/internal/document"
	"github.com/mobius-platform/collabd/internal/logging"
	"github.com/mobius-platform/collabd/internal/operations"
	"github.com/mobius-platform/collabd/internal/storage"
)

// APIServer exposes the engine's submission and resync contract over HTTP
// and hands websocket attaches to the session hub. It owns no conflict
// resolution logic itself.
type APIServer struct {
	mux      *http.ServeMux
	registry *coordinator.Registry
	hub      *collaboration.SessionHub
	oplog    storage.OperationLog
	logger   *logging.Logger
}

func NewAPIServer(registry *coordinator.Registry, hub *collaboration.SessionHub, oplog storage.OperationLog) *APIServer {
	s := &APIServer{
		mux:      http.NewServeMux(),
		registry: registry,
		hub:      hub,
		oplog:    oplog,
		logger:   logging.NewLogger("api"),
	}
	s.setupRoutes()
	return s
}

func (s *APIServer) setupRoutes() {
	s.mux.HandleFunc("POST /api/v1/documents/{id}/operations", s.submitOperation)
	s.mux.HandleFunc("GET /api/v1/documents/{id}", s.getSnapshot)
	s.mux.HandleFunc("GET /api/v1/documents/{id}/history", s.getHistory)

	s.mux.HandleFunc("GET /ws", s.attachWebSocket)

	s.mux.HandleFunc("GET /api/v1/health", s.healthCheck)
}

func (s *APIServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	s.mux.ServeHTTP(w, r)
}

func (s *APIServer) jsonResponse(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func (s *APIServer) jsonError(w http.ResponseWriter, message string, statusCode int) {
	s.jsonResponse(w, map[string]string{"error": message}, statusCode)
}

// engineError maps the error taxonomy onto HTTP statuses: invalid input is
// the caller's bug (400), a stale base version means resync then retry
// (409), unknown documents are 404, invariant violations are 500.
func (s *APIServer) engineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, operations.ErrInvalidOperation):
		s.jsonError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, document.ErrStaleClient):
		s.jsonError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, coordinator.ErrUnknownDocument):
		s.jsonError(w, err.Error(), http.StatusNotFound)
	default:
		s.jsonError(w, err.Error(), http.StatusInternalServerError)
	}
}

type submitRequest struct {
	Operation   operations.Operation `json:"operation"`
	BaseVersion uint64               `json:"base_version"`
}

type submitResponse struct {
	Operation operations.Operation `json:"operation"`
	Version   uint64               `json:"version"`
}

func (s *APIServer) submitOperation(w http.ResponseWriter, r *http.Request) {
	documentID := r.PathValue("id")

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, "Invalid JSON payload", http.StatusBadRequest)
		return
	}

	res, err := s.registry.Submit(documentID, req.Operation, req.BaseVersion)
	if err != nil {
		s.engineError(w, err)
		return
	}

	s.jsonResponse(w, submitResponse{Operation: res.Operation, Version: res.Version}, http.StatusOK)
}

func (s *APIServer) getSnapshot(w http.ResponseWriter, r *http.Request) {
	documentID := r.PathValue("id")

	snap, err := s.registry.GetSnapshot(documentID)
	if err != nil {
		s.engineError(w, err)
		return
	}

	s.jsonResponse(w, snap, http.StatusOK)
}

func (s *APIServer) getHistory(w http.ResponseWriter, r *http.Request) {
	documentID := r.PathValue("id")

	var since uint64
	if v := r.URL.Query().Get("since"); v != "" {
		parsed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			s.jsonError(w, "since must be a non-negative integer", http.StatusBadRequest)
			return
		}
		since = parsed
	}

	entries, err := s.oplog.LoadOperationsSince(documentID, since)
	if err != nil {
		s.engineError(w, err)
		return
	}

	s.jsonResponse(w, map[string]interface{}{
		"document_id": documentID,
		"since":       since,
		"entries":     entries,
	}, http.StatusOK)
}

func (s *APIServer) attachWebSocket(w http.ResponseWriter, r *http.Request) {
	author := r.URL.Query().Get("author")
	if author == "" {
		s.jsonError(w, "author query parameter is required", http.StatusBadRequest)
		return
	}

	clientID := collaboration.ClientID(fmt.Sprintf("client_%s", uuid.NewString()))
	client, err := collaboration.NewClientConnection(clientID, operations.NewAuthorID(author), w, r)
	if err != nil {
		s.logger.LogWebSocketError(string(clientID), err)
		return
	}

	s.hub.AddClient(client)
	go client.Start(s.hub)
}

func (s *APIServer) healthCheck(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, map[string]interface{}{
		"status":    "healthy",
		"clients":   strconv.Itoa(s.hub.ConnectedClients()),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}, http.StatusOK)
}
