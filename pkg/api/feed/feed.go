// Package feed delivers change notifications for run records so the
// snapshot refresher can react to writes without polling. The memory
// driver notifies within one process; the redis driver fans out across
// API replicas.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ethpandaops/monitoroor/pkg/config"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Event kinds.
const (
	KindInsert = "insert"
	KindUpdate = "update"
)

// Event describes a single change to a stored record.
type Event struct {
	Kind  string `json:"kind"`
	Table string `json:"table"`
	RunID uint   `json:"run_id,omitempty"`
}

// Encode serializes the event for transport.
func (e Event) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encoding feed event: %w", err)
	}

	return data, nil
}

// DecodeEvent parses a transported event payload.
func DecodeEvent(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, fmt.Errorf("decoding feed event: %w", err)
	}

	return e, nil
}

// Feed publishes and delivers change events.
type Feed interface {
	Start(ctx context.Context) error
	Stop() error

	// Publish emits an event to all subscribers. Delivery is best effort;
	// the refresher's periodic tick covers missed events.
	Publish(ctx context.Context, event Event) error

	// Subscribe registers a handler for incoming events and returns an
	// unsubscribe function.
	Subscribe(handler func(Event)) func()
}

// NewFeed creates a feed for the configured driver.
func NewFeed(log logrus.FieldLogger, cfg *config.FeedConfig) (Feed, error) {
	switch cfg.Driver {
	case "", "memory":
		return newMemoryFeed(log), nil
	case "redis":
		return newRedisFeed(log, &cfg.Redis), nil
	default:
		return nil, fmt.Errorf("unsupported feed driver: %s", cfg.Driver)
	}
}

// Compile-time interface check.
var _ Feed = (*memoryFeed)(nil)

type memoryFeed struct {
	log logrus.FieldLogger

	mu       sync.RWMutex
	handlers map[string]func(Event)
}

func newMemoryFeed(log logrus.FieldLogger) *memoryFeed {
	return &memoryFeed{
		log:      log.WithField("component", "feed/memory"),
		handlers: make(map[string]func(Event)),
	}
}

func (f *memoryFeed) Start(_ context.Context) error {
	f.log.Info("Memory feed started")

	return nil
}

func (f *memoryFeed) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.handlers = make(map[string]func(Event))

	return nil
}

func (f *memoryFeed) Publish(_ context.Context, event Event) error {
	f.mu.RLock()
	handlers := make([]func(Event), 0, len(f.handlers))

	for _, h := range f.handlers {
		handlers = append(handlers, h)
	}
	f.mu.RUnlock()

	for _, h := range handlers {
		h(event)
	}

	return nil
}

func (f *memoryFeed) Subscribe(handler func(Event)) func() {
	id := uuid.New().String()

	f.mu.Lock()
	f.handlers[id] = handler
	f.mu.Unlock()

	return func() {
		f.mu.Lock()
		delete(f.handlers, id)
		f.mu.Unlock()
	}
}
