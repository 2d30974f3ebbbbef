package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"jarvis/internal/assistant"
	"jarvis/internal/conversation"
	"jarvis/internal/core"
	"jarvis/internal/nlp"
	"jarvis/web"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Assistant is the part of the interaction loop exposed over HTTP.
type Assistant interface {
	Submit(ctx context.Context, text string) (string, error)
	Status() assistant.Status
}

// JobRegistry adds and removes persisted jobs.
type JobRegistry interface {
	Add(ctx context.Context, spec *core.JobSpec) (core.JobInfo, error)
	Remove(ctx context.Context, name string) error
	Cancel(ctx context.Context, name string) (bool, error)
}

// Knowledge accepts documents for the search index.
type Knowledge interface {
	Add(ctx context.Context, text, source string) (nlp.Document, error)
}

// Turns reads the persisted conversation log.
type Turns interface {
	RecentTurns(ctx context.Context, limit int) ([]conversation.Turn, error)
}

// HistoryLog reads persisted run history. When nil, the in-memory history is used.
type HistoryLog interface {
	RecentHistory(ctx context.Context, limit int) ([]core.HistoryEntry, error)
}

// Deps wires the server to the daemon. Manager is required.
type Deps struct {
	Manager   *core.Manager
	Assistant Assistant
	Jobs      JobRegistry
	Knowledge Knowledge
	Turns     Turns
	History   HistoryLog
	MCP       http.Handler
	Gatherer  prometheus.Gatherer
	Logger    *slog.Logger
	Location  *time.Location
	AuthToken string
}

// Server holds the HTTP server state.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	deps       Deps
	logger     *slog.Logger
	location   *time.Location
}

// NewServer constructs the HTTP API server.
func NewServer(addr string, deps Deps) (*Server, error) {
	if deps.Manager == nil {
		return nil, errors.New("api: manager is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Location == nil {
		deps.Location = time.Local
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)

	s := &Server{
		router:   router,
		deps:     deps,
		logger:   deps.Logger.With("component", "api"),
		location: deps.Location,
	}
	s.registerRoutes(web.Files())

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) registerRoutes(staticFS fs.FS) {
	fileServer := http.StripPrefix("/assets/", http.FileServer(http.FS(staticFS)))

	s.router.Get("/", s.handleIndex(staticFS))
	s.router.Handle("/assets/*", fileServer)
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	s.router.Handle("/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))

	if s.deps.MCP != nil {
		var mcpHandler = s.deps.MCP
		if s.deps.AuthToken != "" {
			mcpHandler = AuthMiddleware(s.deps.AuthToken)(mcpHandler)
		}
		s.router.Handle("/mcp", mcpHandler)
	}

	s.router.Route("/v1", func(r chi.Router) {
		if s.deps.AuthToken != "" {
			r.Use(AuthMiddleware(s.deps.AuthToken))
		}

		r.Get("/status", s.handleStatus)
		r.Post("/cron/preview", s.handleCronPreview)
		r.Post("/commands", s.handleCommand)
		r.Get("/conversation", s.handleConversation)
		r.Post("/knowledge", s.handleAddKnowledge)
		r.Get("/history", s.handleHistory)

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", s.handleListTasks)
			r.Get("/{name}", s.handleGetTask)
			r.Post("/{name}/cancel", s.handleCancelTask)
		})

		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", s.handleListJobs)
			r.Post("/", s.handleCreateJob)
			r.Delete("/{name}", s.handleDeleteJob)
		})
	})
}

func (s *Server) handleIndex(staticFS fs.FS) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		file, err := staticFS.Open("index.html")
		if err != nil {
			http.Error(w, "index not found", http.StatusInternalServerError)
			return
		}
		defer file.Close()
		info, err := fs.Stat(staticFS, "index.html")
		modTime := time.Now()
		if err == nil {
			modTime = info.ModTime()
		}
		if reader, ok := file.(io.ReadSeeker); ok {
			http.ServeContent(w, r, "index.html", modTime, reader)
			return
		}
		data, err := io.ReadAll(file)
		if err != nil {
			http.Error(w, "failed to load index", http.StatusInternalServerError)
			return
		}
		http.ServeContent(w, r, "index.html", modTime, bytes.NewReader(data))
	}
}
