// Package server runs the UPF's admin/monitoring HTTP API.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ngfabric/upf/internal/config"
	"github.com/ngfabric/upf/internal/pfcp"
	"github.com/ngfabric/upf/internal/session"
)

// Server is the UPF admin HTTP server: health/readiness probes plus
// session/stats introspection.
type Server struct {
	config     *config.Config
	router     *chi.Mux
	httpServer *http.Server
	store      *session.Store
	handler    *pfcp.Handler
	instanceID uuid.UUID
	logger     *zap.Logger
}

// NewServer builds the admin server and wires its routes.
func NewServer(cfg *config.Config, store *session.Store, handler *pfcp.Handler, logger *zap.Logger) *Server {
	s := &Server{
		config:     cfg,
		router:     chi.NewRouter(),
		store:      store,
		handler:    handler,
		instanceID: uuid.New(),
		logger:     logger,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/ready", s.handleReady)
	s.router.Get("/status", s.handleStatus)
	s.router.Get("/sessions", s.handleSessions)
	s.router.Get("/stats", s.handleStats)
}

// Router exposes the configured router, mainly for tests.
func (s *Server) Router() http.Handler { return s.router }

// Start serves the admin API on addr until it errors or is shut down.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	s.logger.Info("starting admin server", zap.String("address", addr))
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop gracefully shuts the admin server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// handleReady reports ready only once this UPF has a PFCP association,
// since it cannot usefully forward traffic before that (§4.3).
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if !s.handler.Associated() {
		s.respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_associated"})
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"instance_id":     s.instanceID.String(),
		"nf_name":         s.config.NF.Name,
		"node_id":         s.config.PFCP.NodeID,
		"pfcp_associated": s.handler.Associated(),
		"active_sessions": s.store.Len(),
	})
}

type pdrView struct {
	ID              uint16 `json:"id"`
	Precedence      uint32 `json:"precedence"`
	SourceInterface uint8  `json:"source_interface"`
	TEID            uint32 `json:"teid"`
	FARID           uint16 `json:"far_id"`
}

type sessionView struct {
	UPSEID uint64    `json:"up_seid"`
	CPSEID uint64    `json:"cp_seid"`
	PDRs   []pdrView `json:"pdrs"`
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	upSEIDs := s.store.Snapshot()
	out := make([]sessionView, 0, len(upSEIDs))
	for _, upSEID := range upSEIDs {
		sess, ok := s.store.Find(upSEID)
		if !ok {
			continue
		}
		sess.Lock()
		pdrs := sess.PDRs()
		view := sessionView{UPSEID: sess.UPSEID, CPSEID: sess.CPSEID, PDRs: make([]pdrView, 0, len(pdrs))}
		for _, p := range pdrs {
			view.PDRs = append(view.PDRs, pdrView{
				ID: p.ID, Precedence: p.Precedence, SourceInterface: p.SourceInterface,
				TEID: p.TEID, FARID: p.FARID,
			})
		}
		sess.Unlock()
		out = append(out, view)
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": out,
		"count":    len(out),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"active_sessions": s.store.Len(),
		"pfcp_associated": s.handler.Associated(),
	})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			s.logger.Error("failed to encode response", zap.Error(err))
		}
	}
}
