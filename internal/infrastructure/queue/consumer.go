package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/channelsync/backend/internal/domain/shared"
)

// MessageKind tags a stream entry with the event family it belongs to.
// The dispatch table is explicit: a kind without a registered handler is a
// routing error, not a silent drop.
type MessageKind string

const (
	// KindStockChange is an upstream stock movement notification
	KindStockChange MessageKind = "stock_change"
)

const (
	fieldKind    = "kind"
	fieldPayload = "payload"

	// idempotencyTTL bounds how long a processed message ID is remembered.
	// It only needs to outlive the redelivery horizon of the stream.
	idempotencyTTL = 24 * time.Hour
)

// ErrMalformedPayload marks a payload defect no redelivery can repair. The
// consumer dead-letters such messages immediately instead of retrying them.
var ErrMalformedPayload = errors.New("queue: malformed payload")

// UnknownKindError is returned when a message carries a kind with no
// registered handler.
type UnknownKindError struct {
	Kind MessageKind
}

func (e *UnknownKindError) Error() string {
	return fmt.Sprintf("queue: no handler registered for message kind %q", e.Kind)
}

// Handler processes the payload of one stream message
type Handler interface {
	Handle(ctx context.Context, payload []byte) error
}

// HandlerFunc adapts a function to the Handler interface
type HandlerFunc func(ctx context.Context, payload []byte) error

// Handle implements Handler
func (f HandlerFunc) Handle(ctx context.Context, payload []byte) error {
	return f(ctx, payload)
}

// ConsumerConfig holds stream consumption settings
type ConsumerConfig struct {
	Stream           string
	Group            string
	Consumer         string
	DeadLetterStream string
	Block            time.Duration
	MaxDeliveries    int64
	ClaimMinIdle     time.Duration
}

// Consumer reads stock-change messages from a Redis stream through a consumer
// group and dispatches them by kind. Failed messages stay pending and are
// redelivered; messages that exhaust their delivery budget are moved to the
// dead-letter stream so one poison message cannot wedge the group.
type Consumer struct {
	client      *redis.Client
	cfg         ConsumerConfig
	handlers    map[MessageKind]Handler
	idempotency shared.IdempotencyStore
	logger      *zap.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// NewConsumer creates a new stream consumer with an empty dispatch table
func NewConsumer(client *redis.Client, cfg ConsumerConfig, idempotency shared.IdempotencyStore, logger *zap.Logger) *Consumer {
	return &Consumer{
		client:      client,
		cfg:         cfg,
		handlers:    make(map[MessageKind]Handler),
		idempotency: idempotency,
		logger:      logger.Named("queue"),
	}
}

// Register adds a handler for a message kind. Must be called before Start.
func (c *Consumer) Register(kind MessageKind, handler Handler) {
	c.handlers[kind] = handler
}

// Start creates the consumer group if needed and begins consuming in a
// background goroutine. It returns immediately.
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return errors.New("queue: consumer already started")
	}

	if err := c.ensureGroup(ctx); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.started = true

	c.wg.Add(1)
	go c.consumeLoop(runCtx)

	c.logger.Info("Stream consumer started",
		zap.String("stream", c.cfg.Stream),
		zap.String("group", c.cfg.Group),
		zap.String("consumer", c.cfg.Consumer),
	)
	return nil
}

// Stop signals the consume loop to exit and waits for it to drain
func (c *Consumer) Stop() {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return
	}
	c.cancel()
	c.started = false
	c.mu.Unlock()

	c.wg.Wait()
	c.logger.Info("Stream consumer stopped")
}

// ensureGroup creates the consumer group, tolerating a pre-existing one
func (c *Consumer) ensureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.cfg.Stream, c.cfg.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("queue: failed to create consumer group: %w", err)
	}
	return nil
}

func (c *Consumer) consumeLoop(ctx context.Context) {
	defer c.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		c.reclaimStale(ctx)

		streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.cfg.Group,
			Consumer: c.cfg.Consumer,
			Streams:  []string{c.cfg.Stream, ">"},
			Count:    10,
			Block:    c.cfg.Block,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
				continue
			}
			c.logger.Error("Failed to read from stream", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		for _, stream := range streams {
			for _, message := range stream.Messages {
				c.process(ctx, message, 1)
			}
		}
	}
}

// reclaimStale takes over messages another consumer left pending for longer
// than the configured idle time, so a crashed instance's work is not lost.
func (c *Consumer) reclaimStale(ctx context.Context) {
	messages, _, err := c.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   c.cfg.Stream,
		Group:    c.cfg.Group,
		Consumer: c.cfg.Consumer,
		MinIdle:  c.cfg.ClaimMinIdle,
		Start:    "0-0",
		Count:    10,
	}).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && !errors.Is(err, context.Canceled) {
			c.logger.Warn("Failed to reclaim stale messages", zap.Error(err))
		}
		return
	}

	for _, message := range messages {
		c.process(ctx, message, c.deliveryCount(ctx, message.ID))
	}
}

// deliveryCount looks up how many times a message has been delivered
func (c *Consumer) deliveryCount(ctx context.Context, messageID string) int64 {
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: c.cfg.Stream,
		Group:  c.cfg.Group,
		Start:  messageID,
		End:    messageID,
		Count:  1,
	}).Result()
	if err != nil || len(pending) == 0 {
		return 1
	}
	return pending[0].RetryCount
}

// process runs one message through idempotency, dispatch, and ack
func (c *Consumer) process(ctx context.Context, message redis.XMessage, deliveries int64) {
	if deliveries > c.cfg.MaxDeliveries {
		c.deadLetter(ctx, message, "delivery budget exhausted")
		return
	}

	kind, payload, err := decodeFields(message)
	if err != nil {
		// Malformed entries never become valid; dead-letter immediately.
		c.deadLetter(ctx, message, err.Error())
		return
	}

	handler, ok := c.handlers[kind]
	if !ok {
		err := &UnknownKindError{Kind: kind}
		c.deadLetter(ctx, message, err.Error())
		return
	}

	processed, err := c.idempotency.IsProcessed(ctx, message.ID)
	if err != nil {
		c.logger.Error("Idempotency check failed, leaving message pending",
			zap.String("message_id", message.ID),
			zap.Error(err),
		)
		return
	}
	if processed {
		c.logger.Debug("Skipping already processed message", zap.String("message_id", message.ID))
		c.ack(ctx, message.ID)
		return
	}

	if err := handler.Handle(ctx, payload); err != nil {
		if errors.Is(err, ErrMalformedPayload) {
			c.deadLetter(ctx, message, err.Error())
			return
		}
		c.logger.Error("Handler failed, message stays pending for redelivery",
			zap.String("message_id", message.ID),
			zap.String("kind", string(kind)),
			zap.Int64("deliveries", deliveries),
			zap.Error(err),
		)
		return
	}

	// The mark lands only after a successful ingest, so a failed delivery
	// stays eligible for re-ingest on redelivery. A crash between handle and
	// mark re-runs the handler; intake merging makes that safe.
	if _, err := c.idempotency.MarkProcessed(ctx, message.ID, idempotencyTTL); err != nil {
		c.logger.Warn("Failed to record processed message",
			zap.String("message_id", message.ID),
			zap.Error(err),
		)
	}
	c.ack(ctx, message.ID)
}

func (c *Consumer) ack(ctx context.Context, messageID string) {
	if err := c.client.XAck(ctx, c.cfg.Stream, c.cfg.Group, messageID).Err(); err != nil {
		c.logger.Warn("Failed to ack message", zap.String("message_id", messageID), zap.Error(err))
	}
}

// deadLetter copies a message to the dead-letter stream and acks the original
func (c *Consumer) deadLetter(ctx context.Context, message redis.XMessage, reason string) {
	values := make(map[string]any, len(message.Values)+2)
	for k, v := range message.Values {
		values[k] = v
	}
	values["origin_id"] = message.ID
	values["reason"] = reason

	if err := c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: c.cfg.DeadLetterStream,
		Values: values,
	}).Err(); err != nil {
		c.logger.Error("Failed to dead-letter message, leaving it pending",
			zap.String("message_id", message.ID),
			zap.Error(err),
		)
		return
	}

	c.logger.Warn("Message moved to dead-letter stream",
		zap.String("message_id", message.ID),
		zap.String("reason", reason),
	)
	c.ack(ctx, message.ID)
}

// decodeFields extracts the kind tag and JSON payload from a stream entry
func decodeFields(message redis.XMessage) (MessageKind, []byte, error) {
	rawKind, ok := message.Values[fieldKind].(string)
	if !ok || rawKind == "" {
		return "", nil, errors.New("queue: message has no kind field")
	}
	rawPayload, ok := message.Values[fieldPayload].(string)
	if !ok {
		return "", nil, errors.New("queue: message has no payload field")
	}
	return MessageKind(rawKind), []byte(rawPayload), nil
}
