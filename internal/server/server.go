// Package server exposes the diagram pipeline and stored diagrams as a JSON
// HTTP API.
package server

import (
	"context"
	stderrors "errors"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/easygithub/easygithub/pkg/integrations/github"
	"github.com/easygithub/easygithub/pkg/pipeline"
	"github.com/easygithub/easygithub/pkg/storage"
	"github.com/easygithub/easygithub/pkg/storage/artifact"
)

// Generator runs the pipeline. [pipeline.Runner] implements it.
type Generator interface {
	Execute(ctx context.Context, opts pipeline.Options) (*pipeline.Result, error)
}

// RepoBrowser serves repository metadata. [github.Client] implements it.
type RepoBrowser interface {
	RepoInfo(ctx context.Context, ref github.RepoRef) (*github.RepoInfo, error)
	FileTree(ctx context.Context, ref github.RepoRef) (*github.Tree, error)
}

// Deps are the collaborators of a Server. Store and Artifacts are optional:
// without a Store generated diagrams are not persisted and the diagram
// endpoints answer 501.
type Deps struct {
	Pipeline  Generator
	GitHub    RepoBrowser
	Store     storage.Store
	Artifacts artifact.Store
	Logger    *log.Logger

	// Registry receives the HTTP collectors and backs /metrics. Nil uses
	// the Prometheus default registry.
	Registry *prometheus.Registry
}

// Options tune the HTTP surface.
type Options struct {
	Addr           string
	CORSOrigins    []string
	RequestTimeout time.Duration
	ShutdownGrace  time.Duration
	MaxTreeLines   int
	MaxReadmeChars int
}

const (
	defaultRequestTimeout = 5 * time.Minute
	defaultShutdownGrace  = 10 * time.Second
)

// Server is the HTTP API.
type Server struct {
	deps    Deps
	opts    Options
	logger  *log.Logger
	metrics *httpMetrics
	router  chi.Router
}

// New builds the router.
func New(deps Deps, opts Options) *Server {
	if deps.Logger == nil {
		deps.Logger = log.Default()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	if opts.ShutdownGrace <= 0 {
		opts.ShutdownGrace = defaultShutdownGrace
	}

	var (
		reg      prometheus.Registerer = prometheus.DefaultRegisterer
		gatherer prometheus.Gatherer   = prometheus.DefaultGatherer
	)
	if deps.Registry != nil {
		reg, gatherer = deps.Registry, deps.Registry
	}

	s := &Server{
		deps:    deps,
		opts:    opts,
		logger:  deps.Logger,
		metrics: newHTTPMetrics(reg),
	}
	s.router = s.routes(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return s
}

func (s *Server) routes(metrics http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(cors(s.opts.CORSOrigins))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", metrics)

	// Websocket streams run as long as the pipeline does.
	r.Get("/api/generate/stream", s.handleGenerateStream)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(s.opts.RequestTimeout))

		r.Post("/api/generate", s.handleGenerate)

		r.Route("/api/diagrams", func(r chi.Router) {
			r.Get("/", s.handleListDiagrams)
			r.Get("/s/{slug}", s.handleGetDiagramBySlug)
			r.Get("/{id}", s.handleGetDiagram)
			r.Delete("/{id}", s.handleDeleteDiagram)
		})

		r.Route("/api/repos/{owner}/{repo}", func(r chi.Router) {
			r.Get("/", s.handleRepo)
			r.Get("/diagram", s.handleRepoDiagram)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, s.logger, errNotFoundRoute)
	})
	return r
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on opts.Addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if stderrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down", "grace", s.opts.ShutdownGrace)
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.ShutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
