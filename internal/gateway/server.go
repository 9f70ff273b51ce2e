package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/codefionn/wellspace/internal/logger"
)

const maxBodyBytes = 8 << 20

// layoutResponse is the body of every /api/workspace/layout reply. The
// snapshot fields are inlined when a snapshot is returned.
type layoutResponse struct {
	Success bool `json:"success"`
	*Snapshot
	Message string `json:"message"`
}

type listResponse struct {
	Success   bool      `json:"success"`
	Layouts   []string  `json:"layouts"`
	Summaries []Summary `json:"summaries"`
	Message   string    `json:"message"`
}

type activeRequest struct {
	ScopeRef   string `json:"scopeRef"`
	LayoutName string `json:"layoutName"`
}

type activeResponse struct {
	Success    bool   `json:"success"`
	LayoutName string `json:"layoutName"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// Server exposes a Gateway over HTTP
type Server struct {
	gw     Gateway
	addr   string
	server  *http.Server
	router  *httprouter.Router
	handler http.Handler
	log     *logger.Logger
}

// NewServer creates a server for gw listening on addr
func NewServer(gw Gateway, addr string) *Server {
	s := &Server{
		gw:     gw,
		addr:   addr,
		router: httprouter.New(),
		log:    logger.Global().WithPrefix("gateway"),
	}
	s.handler = s.router
	s.setupRoutes()
	return s
}

// Handler returns the router with any middleware, e.g. for httptest.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Use wraps every route, including mounted ones, in mw.
func (s *Server) Use(mw func(http.Handler) http.Handler) {
	s.handler = mw(s.handler)
}

// Mount adds an extra handler, e.g. the relay hub at GET /ws.
func (s *Server) Mount(method, path string, h http.Handler) {
	s.router.Handler(method, path, h)
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          logger.StdLogger(s.log, slog.LevelError),
	}

	s.log.Info("starting layout server on %s", s.addr)
	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop stops the HTTP server
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	s.router.GET("/api/workspace/layout", s.handleLoad)
	s.router.POST("/api/workspace/layout", s.handleSave)
	s.router.DELETE("/api/workspace/layout", s.handleDelete)
	s.router.GET("/api/workspace/layouts/list", s.handleList)
	s.router.GET("/api/workspace/layouts/active", s.handleGetActive)
	s.router.PUT("/api/workspace/layouts/active", s.handleSetActive)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// scopeParam reads scopeRef, accepting projectPath as an alias.
func scopeParam(r *http.Request) string {
	q := r.URL.Query()
	if v := q.Get("scopeRef"); v != "" {
		return v
	}
	return q.Get("projectPath")
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	scope := scopeParam(r)
	if scope == "" {
		writeError(w, http.StatusBadRequest, "scopeRef is required")
		return
	}
	name := LayoutName(r.URL.Query().Get("layoutName"))

	snap, err := s.gw.Load(r.Context(), scope, name)
	if errors.Is(err, ErrNotFound) {
		writeJSON(w, http.StatusOK, layoutResponse{Success: false, Message: "No saved layout found"})
		return
	}
	if err != nil {
		s.log.Error("load layout %q for %s: %v", name, scope, err)
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load layout: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, layoutResponse{
		Success:  true,
		Snapshot: &snap,
		Message:  fmt.Sprintf("Layout '%s' loaded successfully", name),
	})
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var snap Snapshot
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&snap); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	snap.LayoutName = LayoutName(snap.LayoutName)

	if err := s.gw.Save(r.Context(), snap); err != nil {
		if errors.Is(err, ErrInvalid) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.log.Error("save layout %q for %s: %v", snap.LayoutName, snap.ScopeRef, err)
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to save layout: %v", err))
		return
	}
	s.log.Info("layout %q saved for %s", snap.LayoutName, snap.ScopeRef)
	writeJSON(w, http.StatusOK, layoutResponse{
		Success:  true,
		Snapshot: &snap,
		Message:  fmt.Sprintf("Layout '%s' saved successfully", snap.LayoutName),
	})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	scope := scopeParam(r)
	if scope == "" {
		writeError(w, http.StatusBadRequest, "scopeRef is required")
		return
	}
	name := LayoutName(r.URL.Query().Get("layoutName"))

	if err := s.gw.Delete(r.Context(), scope, name); err != nil {
		s.log.Error("delete layout %q for %s: %v", name, scope, err)
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to delete layout: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, layoutResponse{
		Success: true,
		Message: fmt.Sprintf("Layout '%s' deleted successfully", name),
	})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	scope := scopeParam(r)
	if scope == "" {
		writeError(w, http.StatusBadRequest, "scopeRef is required")
		return
	}
	summaries, err := s.gw.List(r.Context(), scope)
	if err != nil {
		s.log.Error("list layouts for %s: %v", scope, err)
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to get layout list: %v", err))
		return
	}
	names := make([]string, len(summaries))
	for i, sum := range summaries {
		names[i] = sum.LayoutName
	}
	writeJSON(w, http.StatusOK, listResponse{
		Success:   true,
		Layouts:   names,
		Summaries: summaries,
		Message:   fmt.Sprintf("Found %d saved layouts", len(names)),
	})
}

func (s *Server) activeStore(w http.ResponseWriter) (ActiveStore, bool) {
	as, ok := s.gw.(ActiveStore)
	if !ok {
		writeError(w, http.StatusNotImplemented, "backend does not track the active layout")
	}
	return as, ok
}

func (s *Server) handleGetActive(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	as, ok := s.activeStore(w)
	if !ok {
		return
	}
	scope := scopeParam(r)
	if scope == "" {
		writeError(w, http.StatusBadRequest, "scopeRef is required")
		return
	}
	name, err := as.Active(r.Context(), scope)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, activeResponse{Success: true, LayoutName: name})
}

func (s *Server) handleSetActive(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	as, ok := s.activeStore(w)
	if !ok {
		return
	}
	var req activeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil || req.ScopeRef == "" {
		writeError(w, http.StatusBadRequest, "scopeRef and layoutName are required")
		return
	}
	if err := as.SetActive(r.Context(), req.ScopeRef, req.LayoutName); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, activeResponse{Success: true, LayoutName: LayoutName(req.LayoutName)})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}
