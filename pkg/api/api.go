// Package api serves rendered analysis reports over HTTP, backed by a
// background indexer that catalogs report files into a database.
package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/buildgauge/buildgauge/pkg/api/indexer"
	"github.com/buildgauge/buildgauge/pkg/api/indexstore"
	"github.com/buildgauge/buildgauge/pkg/api/storage"
	"github.com/buildgauge/buildgauge/pkg/config"
	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 10 * time.Second

// Server exposes the API HTTP server lifecycle.
type Server interface {
	Start(ctx context.Context) error
	Stop() error
}

// Compile-time interface check.
var _ Server = (*server)(nil)

type server struct {
	log           logrus.FieldLogger
	cfg           *config.APIConfig
	fileServer    *localFileServer
	indexStore    indexstore.Store
	indexer       indexer.Indexer
	storageReader storage.Reader
	httpServer    *http.Server
	wg            sync.WaitGroup
	done          chan struct{}
}

// NewServer creates a new API server.
func NewServer(
	log logrus.FieldLogger,
	cfg *config.APIConfig,
) Server {
	return &server{
		log:  log.WithField("component", "api"),
		cfg:  cfg,
		done: make(chan struct{}),
	}
}

// Start opens the index store, starts the HTTP server and launches the
// background indexer.
func (s *server) Start(ctx context.Context) error {
	s.fileServer = newLocalFileServer(s.log, &s.cfg.Storage)
	s.storageReader = storage.NewLocalReader(&s.cfg.Storage)

	// Prepare the indexing service before building the router so that the
	// report endpoints are wired, but do NOT start the background indexer
	// yet: the HTTP server must be listening first.
	if s.cfg.Indexing.Enabled {
		if err := s.prepareIndexing(ctx); err != nil {
			return fmt.Errorf("preparing indexing: %w", err)
		}
	}

	router := s.buildRouter()

	s.httpServer = &http.Server{
		Addr:              s.cfg.Server.Listen,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Bind the listener synchronously so we fail fast on port conflicts.
	ln, err := net.Listen("tcp", s.cfg.Server.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Server.Listen, err)
	}

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		s.log.WithField("listen", s.cfg.Server.Listen).
			Info("API server starting")

		if err := s.httpServer.Serve(ln); err != nil &&
			err != http.ErrServerClosed {
			s.log.WithError(err).Error("HTTP server error")
		}
	}()

	// Start the background indexer AFTER the API is listening so that the
	// server is reachable while the first (potentially slow) pass runs.
	if s.indexer != nil {
		if err := s.indexer.Start(ctx); err != nil {
			return fmt.Errorf("starting indexer: %w", err)
		}
	}

	return nil
}

// Stop gracefully shuts down the HTTP server and closes the index store.
func (s *server) Stop() error {
	close(s.done)

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(
			context.Background(), shutdownTimeout,
		)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.log.WithError(err).Warn("HTTP server shutdown error")
		}
	}

	s.wg.Wait()

	if s.indexer != nil {
		if err := s.indexer.Stop(); err != nil {
			s.log.WithError(err).Warn("Indexer stop error")
		}
	}

	if s.indexStore != nil {
		if err := s.indexStore.Stop(); err != nil {
			return fmt.Errorf("stopping index store: %w", err)
		}
	}

	s.log.Info("API server stopped")

	return nil
}

// prepareIndexing creates the index store and indexer without starting
// the background goroutine. Call indexer.Start() separately after the
// HTTP server is listening.
func (s *server) prepareIndexing(ctx context.Context) error {
	s.indexStore = indexstore.NewStore(s.log, &s.cfg.Database)

	if err := s.indexStore.Start(ctx); err != nil {
		return fmt.Errorf("starting index store: %w", err)
	}

	interval, err := time.ParseDuration(s.cfg.Indexing.Interval)
	if err != nil {
		return fmt.Errorf("parsing indexing interval: %w", err)
	}

	s.indexer = indexer.NewIndexer(
		s.log, s.indexStore, s.storageReader,
		interval, s.cfg.Indexing.Concurrency,
	)

	s.log.Info("Indexing service enabled")

	return nil
}
