// Package refresher maintains an in-memory snapshot of recent runs and
// derived health state, refreshed on write notifications and on a fixed
// interval. HTTP reads never hit the database directly; they serve the
// latest snapshot, which survives transient storage failures.
package refresher

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/ethpandaops/monitoroor/pkg/api/feed"
	"github.com/ethpandaops/monitoroor/pkg/api/store"
	"github.com/ethpandaops/monitoroor/pkg/config"
	"github.com/ethpandaops/monitoroor/pkg/metrics"
	"github.com/ethpandaops/monitoroor/pkg/monitor"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"
)

// Snapshot is one consistent view of recent monitoring state. It is
// immutable once published; a refresh swaps in a whole new snapshot.
type Snapshot struct {
	Runs      []monitor.Run
	Latest    map[string]monitor.Run
	Health    monitor.HealthReport
	TotalRuns int64
	FetchedAt time.Time
}

// Refresher serves the current snapshot and keeps it fresh.
type Refresher interface {
	Start(ctx context.Context) error
	Stop() error

	// Current returns the latest snapshot, or nil if no refresh has
	// succeeded yet.
	Current() *Snapshot

	// IsStale reports whether the snapshot has outlived two refresh
	// intervals, meaning refreshes are failing.
	IsStale(snap *Snapshot) bool

	// Trigger requests an immediate refresh pass. Non-blocking; passes
	// already pending absorb the request.
	Trigger()
}

// Compile-time interface check.
var _ Refresher = (*refresher)(nil)

type refresher struct {
	log     logrus.FieldLogger
	store   store.Store
	feed    feed.Feed
	metrics *metrics.Metrics
	health  []monitor.HealthSection

	interval     time.Duration
	fetchTimeout time.Duration
	fetchLimit   int

	snapshot  atomic.Pointer[Snapshot]
	cb        *gobreaker.CircuitBreaker
	triggerCh chan struct{}

	cancel      context.CancelFunc
	done        chan struct{}
	unsubscribe func()
}

// NewRefresher creates a refresher over the given store and feed.
func NewRefresher(
	log logrus.FieldLogger,
	st store.Store,
	fd feed.Feed,
	m *metrics.Metrics,
	cfg *config.RefresherConfig,
	health []monitor.HealthSection,
) Refresher {
	interval := parseDurationOr(cfg.Interval, config.DefaultRefreshInterval)
	fetchTimeout := parseDurationOr(
		cfg.FetchTimeout, config.DefaultFetchTimeout,
	)

	fetchLimit := cfg.FetchLimit
	if fetchLimit == 0 {
		fetchLimit = config.DefaultFetchLimit
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     "snapshot-fetch",
		Interval: time.Minute,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	})

	return &refresher{
		log:          log.WithField("component", "refresher"),
		store:        st,
		feed:         fd,
		metrics:      m,
		health:       health,
		interval:     interval,
		fetchTimeout: fetchTimeout,
		fetchLimit:   fetchLimit,
		cb:           cb,
		triggerCh:    make(chan struct{}, 1),
		done:         make(chan struct{}),
	}
}

// Start runs an initial refresh and launches the background loop. A
// failing initial refresh is logged but not fatal; the API serves a
// loading state until the first pass succeeds.
func (r *refresher) Start(ctx context.Context) error {
	if err := r.refresh(ctx); err != nil {
		r.log.WithError(err).Warn("Initial snapshot refresh failed")
	}

	r.unsubscribe = r.feed.Subscribe(func(_ feed.Event) {
		r.Trigger()
	})

	loopCtx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	go r.loop(loopCtx)

	r.log.WithFields(logrus.Fields{
		"interval":    r.interval,
		"fetch_limit": r.fetchLimit,
	}).Info("Refresher started")

	return nil
}

// Stop halts the background loop.
func (r *refresher) Stop() error {
	if r.unsubscribe != nil {
		r.unsubscribe()
	}

	if r.cancel != nil {
		r.cancel()
		<-r.done
	}

	return nil
}

func (r *refresher) Current() *Snapshot {
	return r.snapshot.Load()
}

func (r *refresher) IsStale(snap *Snapshot) bool {
	if snap == nil {
		return true
	}

	return time.Since(snap.FetchedAt) > 2*r.interval
}

func (r *refresher) Trigger() {
	select {
	case r.triggerCh <- struct{}{}:
	default:
	}
}

func (r *refresher) loop(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-r.triggerCh:
		}

		if err := r.refresh(ctx); err != nil {
			r.log.WithError(err).Warn("Snapshot refresh failed")
		}
	}
}

// refresh fetches state and atomically publishes a new snapshot. On any
// failure the previous snapshot stays in place.
func (r *refresher) refresh(ctx context.Context) error {
	start := time.Now()

	snap, err := r.fetch(ctx)
	if err != nil {
		r.metrics.RefreshDuration.WithLabelValues("failure").
			Observe(time.Since(start).Seconds())
		r.metrics.RefreshFailures.Inc()

		return err
	}

	r.snapshot.Store(snap)
	r.metrics.RefreshDuration.WithLabelValues("success").
		Observe(time.Since(start).Seconds())
	r.metrics.SnapshotStale.Set(0)
	r.metrics.SnapshotRuns.Set(float64(len(snap.Runs)))

	return nil
}

// fetch loads runs and the total count, retrying transient failures and
// tripping the breaker when storage stays down.
func (r *refresher) fetch(ctx context.Context) (*Snapshot, error) {
	result, err := r.cb.Execute(func() (interface{}, error) {
		var snap *Snapshot

		rt := retry.New(
			retry.Context(ctx),
			retry.Attempts(3),
		)

		retryErr := rt.Do(func() error {
			fetchCtx, cancel := context.WithTimeout(ctx, r.fetchTimeout)
			defer cancel()

			var (
				runs  []monitor.Run
				total int64
			)

			g, gCtx := errgroup.WithContext(fetchCtx)

			g.Go(func() error {
				var err error
				runs, err = r.store.ListRuns(gCtx, r.fetchLimit)

				return err
			})

			g.Go(func() error {
				var err error
				total, err = r.store.CountRuns(gCtx)

				return err
			})

			if err := g.Wait(); err != nil {
				return err
			}

			latest := monitor.LatestBySystem(runs)

			snap = &Snapshot{
				Runs:      runs,
				Latest:    latest,
				Health:    monitor.EvaluateHealth(latest, r.health),
				TotalRuns: total,
				FetchedAt: time.Now(),
			}

			return nil
		})

		return snap, retryErr
	})
	if err != nil {
		return nil, err
	}

	return result.(*Snapshot), nil
}

func parseDurationOr(value, fallback string) time.Duration {
	if value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}

	d, _ := time.ParseDuration(fallback)

	return d
}
