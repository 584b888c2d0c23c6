// ABOUTME: Gateway orchestrator wiring the HTTP API around room services
// ABOUTME: Manages route registration, auth middleware, and server lifecycle

package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/youneslaaroussi/TasteThreads-sub001/internal/agent"
	"github.com/youneslaaroussi/TasteThreads-sub001/internal/auth"
	"github.com/youneslaaroussi/TasteThreads-sub001/internal/config"
	"github.com/youneslaaroussi/TasteThreads-sub001/internal/profile"
	"github.com/youneslaaroussi/TasteThreads-sub001/internal/room"
	"github.com/youneslaaroussi/TasteThreads-sub001/internal/trigger"
)

// shutdownTimeout bounds graceful drain of in-flight requests.
const shutdownTimeout = 10 * time.Second

// Gateway exposes the room and reservation API over HTTP.
type Gateway struct {
	cfg        *config.Config
	rooms      *room.Service
	trigger    *trigger.Coordinator
	runner     *agent.Runner
	profiles   *profile.Service
	verifier   auth.TokenVerifier
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a gateway around the given services.
func New(cfg *config.Config, rooms *room.Service, coordinator *trigger.Coordinator, runner *agent.Runner, profiles *profile.Service, verifier auth.TokenVerifier, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Gateway{
		cfg:      cfg,
		rooms:    rooms,
		trigger:  coordinator,
		runner:   runner,
		profiles: profiles,
		verifier: verifier,
		logger:   logger.With("component", "gateway"),
	}
	g.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           g.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return g
}

// Handler builds the full route table. Health endpoints are open; the API
// sits behind JWT auth.
func (g *Gateway) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /api/rooms", g.handleCreateRoom)
	api.HandleFunc("POST /api/rooms/join", g.handleJoinRoom)
	api.HandleFunc("GET /api/rooms", g.handleListRooms)
	api.HandleFunc("GET /api/rooms/{id}", g.handleGetRoom)
	api.HandleFunc("DELETE /api/rooms/{id}", g.handleDeleteRoom)
	api.HandleFunc("POST /api/rooms/{id}/leave", g.handleLeaveRoom)
	api.HandleFunc("GET /api/rooms/{id}/messages", g.handleListMessages)
	api.HandleFunc("POST /api/rooms/{id}/messages", g.handlePostMessage)
	api.HandleFunc("GET /api/rooms/{id}/events", g.handleEvents)
	api.HandleFunc("POST /api/rooms/{id}/reservations/select", g.handleSelectSlot)
	api.HandleFunc("POST /api/rooms/{id}/reservations/confirm", g.handleConfirmReservation)
	api.HandleFunc("POST /api/places", g.handleSavePlace)
	api.HandleFunc("GET /api/places", g.handleListSavedPlaces)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/healthz", g.handleHealth)
	mux.Handle("/api/", auth.HTTPAuthMiddleware(g.verifier)(api))
	return mux
}

// Run serves HTTP until the context is canceled, then drains gracefully.
func (g *Gateway) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("http server listening", "addr", g.httpServer.Addr)
		if err := g.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		g.logger.Info("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := g.httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-errCh
	case err := <-errCh:
		return err
	}
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	g.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
