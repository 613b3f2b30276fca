package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethpandaops/monitoroor/pkg/config"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Compile-time interface check.
var _ Feed = (*redisFeed)(nil)

type redisFeed struct {
	log     logrus.FieldLogger
	cfg     *config.RedisFeedConfig
	client  *redis.Client
	channel string

	mu       sync.RWMutex
	handlers map[string]func(Event)

	cancel context.CancelFunc
	done   chan struct{}
}

func newRedisFeed(
	log logrus.FieldLogger,
	cfg *config.RedisFeedConfig,
) *redisFeed {
	channel := cfg.Channel
	if channel == "" {
		channel = config.DefaultFeedChannel
	}

	return &redisFeed{
		log:      log.WithField("component", "feed/redis"),
		cfg:      cfg,
		channel:  channel,
		handlers: make(map[string]func(Event)),
		done:     make(chan struct{}),
	}
}

// Start connects to redis and begins consuming the change channel.
func (f *redisFeed) Start(ctx context.Context) error {
	f.client = redis.NewClient(&redis.Options{
		Addr:     f.cfg.Addr,
		Password: f.cfg.Password,
		DB:       f.cfg.DB,
	})

	if err := f.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("pinging redis: %w", err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel

	go f.subscribeLoop(loopCtx)

	f.log.WithFields(logrus.Fields{
		"addr":    f.cfg.Addr,
		"channel": f.channel,
	}).Info("Redis feed started")

	return nil
}

// Stop tears down the subscription and closes the client.
func (f *redisFeed) Stop() error {
	if f.cancel != nil {
		f.cancel()
		<-f.done
	}

	if f.client != nil {
		return f.client.Close()
	}

	return nil
}

// Publish emits the event on the shared channel. All replicas, including
// this one, receive it via the subscription.
func (f *redisFeed) Publish(ctx context.Context, event Event) error {
	data, err := event.Encode()
	if err != nil {
		return err
	}

	if err := f.client.Publish(ctx, f.channel, data).Err(); err != nil {
		return fmt.Errorf("publishing feed event: %w", err)
	}

	return nil
}

func (f *redisFeed) Subscribe(handler func(Event)) func() {
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

// subscribeLoop consumes the channel until the context is cancelled,
// re-subscribing after transient failures.
func (f *redisFeed) subscribeLoop(ctx context.Context) {
	defer close(f.done)

	for {
		if err := f.consume(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}

			f.log.WithError(err).Warn(
				"Feed subscription lost, reconnecting",
			)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(2 * time.Second):
		}
	}
}

func (f *redisFeed) consume(ctx context.Context) error {
	sub := f.client.Subscribe(ctx, f.channel)
	defer sub.Close()

	ch := sub.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("subscription channel closed")
			}

			event, err := DecodeEvent([]byte(msg.Payload))
			if err != nil {
				f.log.WithError(err).Warn("Dropping malformed feed event")

				continue
			}

			f.dispatch(event)
		}
	}
}

func (f *redisFeed) dispatch(event Event) {
	f.mu.RLock()
	handlers := make([]func(Event), 0, len(f.handlers))

	for _, h := range f.handlers {
		handlers = append(handlers, h)
	}
	f.mu.RUnlock()

	for _, h := range handlers {
		h(event)
	}
}
