package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mobius-platform/collabd/internal/api"
	"github.com/mobius-platform/collabd/internal/collaboration"
	"github.com/mobius-platform/collabd/internal/coordinator"
	"github.com/mobius-platform/collabd/internal/logging"
	"github.com/mobius-platform/collabd/internal/storage"
)

func main() {
	var (
		listenAddr     = flag.String("listen", envOr("COLLABD_LISTEN", ":8080"), "HTTP listen address")
		dbPath         = flag.String("db", envOr("COLLABD_DB", "collabd.db"), "SQLite database path")
		historyWindow  = flag.Int("history-window", 256, "operations retained per document for rebasing")
		snapshotEvery  = flag.Uint64("snapshot-every", storage.DefaultSnapshotEvery, "applied operations between persisted snapshots")
		implicitCreate = flag.Bool("implicit-create", true, "create unknown documents on first submit")
	)
	flag.Parse()

	logger := logging.NewLogger("collabd")

	store, err := storage.NewSQLiteStore(*dbPath)
	if err != nil {
		logger.Fatal("Failed to open store", map[string]interface{}{"error": err.Error()})
	}

	registry := coordinator.NewRegistry(coordinator.Config{
		HistoryWindow:  *historyWindow,
		ImplicitCreate: *implicitCreate,
	})

	restoreDocuments(registry, store, logger)

	recorder := storage.NewRecorder(store, registry, *snapshotEvery)
	registry.AddCollaborator(recorder)

	hub := collaboration.NewSessionHub(registry)
	server := &http.Server{
		Addr:    *listenAddr,
		Handler: api.NewAPIServer(registry, hub, store),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("Listening", map[string]interface{}{"addr": *listenAddr, "db": *dbPath})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", map[string]interface{}{"error": err.Error()})
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error", map[string]interface{}{"error": err.Error()})
	}

	recorder.Close()
	if err := store.Close(); err != nil {
		logger.Error("Store close error", map[string]interface{}{"error": err.Error()})
	}
}

// restoreDocuments reloads every persisted snapshot so resumed sessions see
// their documents at the version they were last saved.
func restoreDocuments(registry *coordinator.Registry, store storage.Store, logger *logging.Logger) {
	ids, err := store.ListDocuments()
	if err != nil {
		logger.Error("Failed to list persisted documents", map[string]interface{}{"error": err.Error()})
		return
	}

	for _, id := range ids {
		snap, err := store.LoadSnapshot(id)
		if err != nil {
			logger.LogPersistenceError(id, err)
			continue
		}
		if _, err := registry.Open(id, &snap); err != nil {
			logger.LogPersistenceError(id, err)
		}
	}

	if len(ids) > 0 {
		logger.Info("Restored documents", map[string]interface{}{"count": len(ids)})
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
