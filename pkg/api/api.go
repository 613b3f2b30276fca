// Package api exposes the monitoroor HTTP API: run ingestion, dashboard
// aggregates, the operational status page, corrections, and daily
// reports.
package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ethpandaops/monitoroor/pkg/api/feed"
	"github.com/ethpandaops/monitoroor/pkg/api/refresher"
	"github.com/ethpandaops/monitoroor/pkg/api/store"
	"github.com/ethpandaops/monitoroor/pkg/config"
	"github.com/ethpandaops/monitoroor/pkg/metrics"
	"github.com/ethpandaops/monitoroor/pkg/monitor"
	"github.com/ethpandaops/monitoroor/pkg/report"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

const (
	shutdownTimeout        = 10 * time.Second
	sessionCleanupInterval = 15 * time.Minute
)

// Server exposes the API HTTP server lifecycle.
type Server interface {
	Start(ctx context.Context) error
	Stop() error
}

// Compile-time interface check.
var _ Server = (*server)(nil)

type server struct {
	log        logrus.FieldLogger
	cfg        *config.APIConfig
	health     []monitor.HealthSection
	store      store.Store
	feed       feed.Feed
	refresher  refresher.Refresher
	archiver   report.Archiver
	metrics    *metrics.Metrics
	registry   *prometheus.Registry
	httpServer *http.Server
	wg         sync.WaitGroup
	done       chan struct{}
}

// NewServer creates a new API server.
func NewServer(
	log logrus.FieldLogger,
	cfg *config.APIConfig,
	health []monitor.HealthSection,
) Server {
	registry := prometheus.NewRegistry()

	return &server{
		log:      log.WithField("component", "api"),
		cfg:      cfg,
		health:   health,
		metrics:  metrics.NewMetrics(registry),
		registry: registry,
		done:     make(chan struct{}),
	}
}

// Start initializes the store, feed, and refresher, seeds config data,
// and starts the HTTP server.
func (s *server) Start(ctx context.Context) error {
	// Create and start the database store.
	s.store = store.NewStore(s.log, &s.cfg.Database)
	if err := s.store.Start(ctx); err != nil {
		return fmt.Errorf("starting store: %w", err)
	}

	// Seed users from config.
	if len(s.cfg.Auth.Users) > 0 {
		if err := s.store.SeedUsers(ctx, s.cfg.Auth.Users); err != nil {
			return fmt.Errorf("seeding users: %w", err)
		}
	}

	// Start the change feed.
	fd, err := feed.NewFeed(s.log, &s.cfg.Feed)
	if err != nil {
		return fmt.Errorf("creating feed: %w", err)
	}

	s.feed = fd

	if err := s.feed.Start(ctx); err != nil {
		return fmt.Errorf("starting feed: %w", err)
	}

	// Initialize the report archiver if configured.
	if s.cfg.Archive != nil && s.cfg.Archive.Enabled {
		archiver, err := report.NewS3Archiver(s.log, s.cfg.Archive)
		if err != nil {
			return fmt.Errorf("initializing report archiver: %w", err)
		}

		s.archiver = archiver

		s.log.Info("Report archival enabled")
	}

	// Start the snapshot refresher. The HTTP surface serves a loading
	// state until the first pass succeeds.
	s.refresher = refresher.NewRefresher(
		s.log, s.store, s.feed, s.metrics, &s.cfg.Refresher, s.health,
	)

	if err := s.refresher.Start(ctx); err != nil {
		return fmt.Errorf("starting refresher: %w", err)
	}

	// Build router and start HTTP server.
	router := s.buildRouter()

	s.httpServer = &http.Server{
		Addr:              s.cfg.Server.Listen,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start session cleanup goroutine.
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(sessionCleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := s.store.DeleteExpiredSessions(ctx); err != nil {
					s.log.WithError(err).
						Warn("Failed to clean expired sessions")
				}
			case <-s.done:
				return
			}
		}
	}()

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

	return nil
}

// Stop gracefully shuts down the HTTP server and all services.
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

	if s.refresher != nil {
		if err := s.refresher.Stop(); err != nil {
			s.log.WithError(err).Warn("Refresher stop error")
		}
	}

	if s.feed != nil {
		if err := s.feed.Stop(); err != nil {
			s.log.WithError(err).Warn("Feed stop error")
		}
	}

	if s.store != nil {
		if err := s.store.Stop(); err != nil {
			return fmt.Errorf("stopping store: %w", err)
		}
	}

	s.log.Info("API server stopped")

	return nil
}
