// Package messaging carries committed domain events to subscribers and
// delivers outbox effects to their sinks.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/osas-hub/scholarship-hub/internal/domain/shared"
	"github.com/osas-hub/scholarship-hub/pkg/logger"
)

// ErrEventBusClosed is returned when operations are attempted on a closed bus.
var ErrEventBusClosed = errors.New("event bus is closed")

// ══════════════════════════════════════════════════════════════════════════════
// IN-MEMORY EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

// InMemoryEventBus dispatches events to handlers in this process.
type InMemoryEventBus struct {
	mu          sync.RWMutex
	handlers    map[shared.EventType][]shared.EventHandler
	allHandlers []shared.EventHandler
	asyncMode   bool
	workerPool  chan struct{}
	log         *logger.Logger
	closed      bool
	closeCh     chan struct{}
	wg          sync.WaitGroup
}

// InMemoryEventBusConfig contains configuration for InMemoryEventBus.
type InMemoryEventBusConfig struct {
	// AsyncMode runs handlers on a bounded worker pool.
	AsyncMode bool

	// WorkerPoolSize is the number of concurrent handlers in async mode.
	WorkerPoolSize int

	Logger *logger.Logger
}

// DefaultInMemoryEventBusConfig returns the production defaults.
func DefaultInMemoryEventBusConfig() InMemoryEventBusConfig {
	return InMemoryEventBusConfig{AsyncMode: true, WorkerPoolSize: 10}
}

// NewInMemoryEventBus creates a new in-memory event bus.
func NewInMemoryEventBus(config InMemoryEventBusConfig) *InMemoryEventBus {
	if config.Logger == nil {
		config.Logger = logger.Nop()
	}
	if config.WorkerPoolSize <= 0 {
		config.WorkerPoolSize = 10
	}
	return &InMemoryEventBus{
		handlers:   make(map[shared.EventType][]shared.EventHandler),
		asyncMode:  config.AsyncMode,
		workerPool: make(chan struct{}, config.WorkerPoolSize),
		log:        config.Logger.Named("eventbus"),
		closeCh:    make(chan struct{}),
	}
}

// Subscribe registers a handler for a specific event type.
func (b *InMemoryEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	if handler == nil {
		return errors.New("handler cannot be nil")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrEventBusClosed
	}
	b.handlers[eventType] = append(b.handlers[eventType], handler)
	return nil
}

// SubscribeAll registers a handler for all events.
func (b *InMemoryEventBus) SubscribeAll(handler shared.EventHandler) error {
	if handler == nil {
		return errors.New("handler cannot be nil")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrEventBusClosed
	}
	b.allHandlers = append(b.allHandlers, handler)
	return nil
}

// Publish sends an event to its type's handlers, then to global handlers.
// Handler failures are logged; they never fail the publisher.
func (b *InMemoryEventBus) Publish(event shared.Event) error {
	if event == nil {
		return errors.New("event cannot be nil")
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrEventBusClosed
	}
	handlers := make([]shared.EventHandler, 0, len(b.handlers[event.EventType()])+len(b.allHandlers))
	handlers = append(handlers, b.handlers[event.EventType()]...)
	handlers = append(handlers, b.allHandlers...)
	b.mu.RUnlock()

	for _, h := range handlers {
		if b.asyncMode {
			b.executeAsync(event, h)
			continue
		}
		if err := b.execute(event, h); err != nil {
			b.log.Error("handler failed", logger.String("event_type", string(event.EventType())), logger.Err(err))
		}
	}
	return nil
}

func (b *InMemoryEventBus) executeAsync(event shared.Event, handler shared.EventHandler) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()

		select {
		case b.workerPool <- struct{}{}:
			defer func() { <-b.workerPool }()
		case <-b.closeCh:
			return
		}

		start := time.Now()
		if err := b.execute(event, handler); err != nil {
			b.log.Error("async handler failed",
				logger.String("event_type", string(event.EventType())),
				logger.Latency(time.Since(start)),
				logger.Err(err),
			)
		}
	}()
}

func (b *InMemoryEventBus) execute(event shared.Event, handler shared.EventHandler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return handler(event)
}

// Close stops accepting events and waits for running handlers.
func (b *InMemoryEventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.closeCh)
	b.mu.Unlock()

	b.wg.Wait()
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// REDIS EVENT BUS
// Fans events out to every API and worker instance over Redis Pub/Sub. Each
// instance handles its own events locally and skips their echo.
// ══════════════════════════════════════════════════════════════════════════════

// RedisEventBus is a Redis Pub/Sub backed EventBus.
type RedisEventBus struct {
	client      *redis.Client
	pubsub      *redis.PubSub
	localBus    *InMemoryEventBus
	channelName string
	instanceID  string
	log         *logger.Logger
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	mu          sync.RWMutex
	closed      bool
}

// RedisEventBusConfig contains configuration for RedisEventBus.
type RedisEventBusConfig struct {
	Client *redis.Client

	// ChannelName defaults to "scholarship-hub:events".
	ChannelName string

	// InstanceID filters this instance's own messages. Defaults to a UUID.
	InstanceID string

	LocalBusConfig InMemoryEventBusConfig
	Logger         *logger.Logger
}

// NewRedisEventBus subscribes to the channel and starts the listener.
func NewRedisEventBus(ctx context.Context, config RedisEventBusConfig) (*RedisEventBus, error) {
	if config.Client == nil {
		return nil, errors.New("redis client is required")
	}
	if config.ChannelName == "" {
		config.ChannelName = "scholarship-hub:events"
	}
	if config.InstanceID == "" {
		config.InstanceID = uuid.NewString()
	}
	if config.Logger == nil {
		config.Logger = logger.Nop()
	}
	if config.LocalBusConfig.Logger == nil {
		config.LocalBusConfig.Logger = config.Logger
	}

	pubsub := config.Client.Subscribe(ctx, config.ChannelName)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", config.ChannelName, err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	bus := &RedisEventBus{
		client:      config.Client,
		pubsub:      pubsub,
		localBus:    NewInMemoryEventBus(config.LocalBusConfig),
		channelName: config.ChannelName,
		instanceID:  config.InstanceID,
		log:         config.Logger.Named("redis_eventbus"),
		ctx:         runCtx,
		cancel:      cancel,
	}

	bus.wg.Add(1)
	go func() {
		defer bus.wg.Done()
		bus.listen(pubsub.Channel())
	}()
	return bus, nil
}

// Subscribe registers a handler for a specific event type.
func (b *RedisEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	return b.localBus.Subscribe(eventType, handler)
}

// SubscribeAll registers a handler for all events.
func (b *RedisEventBus) SubscribeAll(handler shared.EventHandler) error {
	return b.localBus.SubscribeAll(handler)
}

// Publish handles the event locally and broadcasts it. A broadcast failure
// is logged; the local handlers still run.
func (b *RedisEventBus) Publish(event shared.Event) error {
	if event == nil {
		return errors.New("event cannot be nil")
	}
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return ErrEventBusClosed
	}

	data, err := encodeRemote(b.instanceID, event)
	if err != nil {
		return err
	}
	if err := b.client.Publish(b.ctx, b.channelName, data).Err(); err != nil {
		b.log.Error("broadcast failed", logger.String("event_type", string(event.EventType())), logger.Err(err))
	}
	return b.localBus.Publish(event)
}

func (b *RedisEventBus) listen(messages <-chan *redis.Message) {
	for {
		select {
		case <-b.ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			event, origin, err := decodeRemote([]byte(msg.Payload))
			if err != nil {
				b.log.Warn("dropping malformed event", logger.Err(err))
				continue
			}
			if origin == b.instanceID {
				continue
			}
			if err := b.localBus.Publish(event); err != nil {
				b.log.Error("remote event not handled", logger.Err(err))
			}
		}
	}
}

// Close unsubscribes and drains local handlers.
func (b *RedisEventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	b.cancel()
	err := b.pubsub.Close()
	b.wg.Wait()
	if cerr := b.localBus.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// ══════════════════════════════════════════════════════════════════════════════
// WIRE FORMAT
// ══════════════════════════════════════════════════════════════════════════════

type remoteEnvelope struct {
	InstanceID string               `json:"instance_id"`
	Event      shared.EventEnvelope `json:"event"`
}

func encodeRemote(instanceID string, event shared.Event) ([]byte, error) {
	env, err := shared.NewEventEnvelope(uuid.NewString(), event)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	return json.Marshal(remoteEnvelope{InstanceID: instanceID, Event: env})
}

func decodeRemote(data []byte) (shared.Event, string, error) {
	var env remoteEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, "", fmt.Errorf("decode event: %w", err)
	}
	if env.Event.Type == "" {
		return nil, "", errors.New("decode event: missing type")
	}
	var payload map[string]interface{}
	if len(env.Event.Payload) > 0 {
		if err := json.Unmarshal(env.Event.Payload, &payload); err != nil {
			return nil, "", fmt.Errorf("decode payload: %w", err)
		}
	}
	return &remoteEvent{
		eventType:   env.Event.Type,
		aggregateID: env.Event.AggregateID,
		occurredAt:  env.Event.Timestamp,
		payload:     payload,
	}, env.InstanceID, nil
}

// remoteEvent is an event received from another instance. Only its
// envelope and payload map survive the trip.
type remoteEvent struct {
	eventType   shared.EventType
	aggregateID string
	occurredAt  time.Time
	payload     map[string]interface{}
}

func (e *remoteEvent) EventType() shared.EventType { return e.eventType }
func (e *remoteEvent) AggregateID() string { return e.aggregateID }
func (e *remoteEvent) OccurredAt() time.Time { return e.occurredAt }
func (e *remoteEvent) Payload() map[string]interface{} { return e.payload }
