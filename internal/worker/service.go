package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/memtide/memtide/internal/config"
	"github.com/memtide/memtide/internal/db"
	"github.com/memtide/memtide/internal/db/sqlite"
	"github.com/memtide/memtide/internal/watcher"
)

// DefaultHTTPTimeout bounds slow clients on the HTTP server.
const DefaultHTTPTimeout = 30 * time.Second

// Service is the worker service orchestrator: HTTP API, consolidation
// scheduler, and import watcher around one SQLite store.
type Service struct {
	version string
	config  *config.Config

	store     db.Store
	scheduler *Scheduler
	watcher   *watcher.Watcher

	router    *chi.Mux
	server    *http.Server
	startTime time.Time

	group  *errgroup.Group
	cancel context.CancelFunc
}

// NewService creates the worker service with its store, scheduler, and
// (when enabled) import watcher.
func NewService(version string, cfg *config.Config) (*Service, error) {
	store, err := sqlite.NewStore(sqlite.StoreConfig{
		Path:     cfg.DBPath,
		MaxConns: cfg.MaxConns,
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	svc := &Service{
		version:   version,
		config:    cfg,
		store:     store,
		startTime: time.Now(),
	}

	svc.scheduler = NewScheduler(store, SchedulerConfig{
		TagInterval:     cfg.TagInterval,
		ContentInterval: cfg.ContentInterval,
		BatchSize:       cfg.ConsolidationBatch,
		Threshold:       cfg.SimilarityThreshold,
	}, log.Logger)

	if cfg.WatcherEnabled {
		w, err := watcher.New(cfg.ImportDir, store, log.Logger)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("create import watcher: %w", err)
		}
		svc.watcher = w
	}

	svc.routes()
	return svc, nil
}

// routes builds the chi router.
func (s *Service) routes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/memories", s.handleListMemories)
		r.Post("/memories", s.handleCreateMemories)
		r.Post("/consolidate", s.handleConsolidate)
		r.Get("/consolidated", s.handleListConsolidated)
		r.Get("/stats", s.handleStats)
	})

	s.router = r
}

// Start launches the HTTP server, the scheduler, and the watcher.
func (s *Service) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	g, gctx := errgroup.WithContext(ctx)
	s.group = g

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.WorkerPort),
		Handler:           s.router,
		ReadHeaderTimeout: DefaultHTTPTimeout,
	}

	g.Go(func() error {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if s.config.SchedulerEnabled {
		g.Go(func() error {
			s.scheduler.Start(gctx)
			return nil
		})
	}

	if s.watcher != nil {
		g.Go(func() error {
			return s.watcher.Run(gctx)
		})
	}

	log.Info().
		Int("port", s.config.WorkerPort).
		Bool("scheduler", s.config.SchedulerEnabled).
		Bool("watcher", s.watcher != nil).
		Msg("Worker service started")

	return nil
}

// Shutdown stops the HTTP server and background loops gracefully.
func (s *Service) Shutdown(ctx context.Context) error {
	if s.server != nil {
		_ = s.server.Shutdown(ctx)
	}
	s.scheduler.Stop()
	if s.cancel != nil {
		s.cancel()
	}
	if s.watcher != nil {
		_ = s.watcher.Close()
	}

	var err error
	if s.group != nil {
		err = s.group.Wait()
	}
	if cerr := s.store.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
