// Package messaging wraps the broker client used by ingestion and the
// outbound publisher.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// ErrBrokerUnreachable is returned once the bounded connect retry is
// exhausted. Fatal to the consumer's startup.
var ErrBrokerUnreachable = errors.New("broker unreachable")

// connectAttempts bounds startup dials before surfacing ErrBrokerUnreachable.
const connectAttempts = 3

// Config contains broker connection settings.
type Config struct {
	Brokers          []string      `mapstructure:"brokers" yaml:"brokers"`
	DialTimeout      time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`
	ConnectBackoff   time.Duration `mapstructure:"connect_backoff" yaml:"connect_backoff"`
	ReconnectBackoff time.Duration `mapstructure:"reconnect_backoff" yaml:"reconnect_backoff"`
	GroupPrefix      string        `mapstructure:"group_prefix" yaml:"group_prefix"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
}

// DefaultConfig returns the broker defaults.
func DefaultConfig() Config {
	return Config{
		Brokers:          []string{"localhost:9092"},
		DialTimeout:      5 * time.Second,
		ConnectBackoff:   2 * time.Second,
		ReconnectBackoff: 5 * time.Second,
		GroupPrefix:      "almengine",
		WriteTimeout:     time.Second,
	}
}

// Dial verifies broker reachability with the configured credentials, retrying
// a bounded number of times before surfacing ErrBrokerUnreachable.
func Dial(ctx context.Context, cfg Config, logger *zap.Logger) error {
	if len(cfg.Brokers) == 0 {
		return fmt.Errorf("%w: no brokers configured", ErrBrokerUnreachable)
	}
	var lastErr error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		dialCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
		conn, err := kafka.DialContext(dialCtx, "tcp", cfg.Brokers[0])
		cancel()
		if err == nil {
			conn.Close()
			return nil
		}
		lastErr = err
		logger.Warn("broker dial failed",
			zap.Int("attempt", attempt),
			zap.Strings("brokers", cfg.Brokers),
			zap.Error(err))
		select {
		case <-time.After(cfg.ConnectBackoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("%w: %v", ErrBrokerUnreachable, lastErr)
}

// Handler processes one raw message. A DecodeError return dead-letters the
// message; any other error propagates and stops the consumer (fail loud).
type Handler func(ctx context.Context, key, value []byte) error

// DecodeError marks a per-message decode failure. The message is routed to
// the queue's dead-letter topic and still acknowledged so a malformed payload
// never blocks the queue.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return "decode: " + e.Err.Error() }
func (e *DecodeError) Unwrap() error { return e.Err }

// Consumer consumes one named queue sequentially and acknowledges each
// message only after processing completes.
type Consumer struct {
	cfg     Config
	queue   string
	handler Handler
	dlq     *Producer
	logger  *zap.Logger
}

// NewConsumer creates a consumer for a named queue. dlq may be nil to disable
// dead-lettering.
func NewConsumer(cfg Config, queue string, handler Handler, dlq *Producer, logger *zap.Logger) *Consumer {
	return &Consumer{cfg: cfg, queue: queue, handler: handler, dlq: dlq, logger: logger}
}

// Run consumes the queue until the context is canceled. The underlying reader
// re-establishes a dropped link on a fixed interval without operator action.
// Message handling is at-least-once: commit happens strictly after the
// handler returns.
func (c *Consumer) Run(ctx context.Context) error {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:               c.cfg.Brokers,
		Topic:                 c.queue,
		GroupID:               fmt.Sprintf("%s-%s", c.cfg.GroupPrefix, c.queue),
		Dialer:                &kafka.Dialer{Timeout: c.cfg.DialTimeout, DualStack: true},
		ReadBackoffMax:        c.cfg.ReconnectBackoff,
		WatchPartitionChanges: true,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			c.logger.Error(fmt.Sprintf(msg, args...), zap.String("queue", c.queue))
		}),
	})
	defer reader.Close()

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("fetch from %s: %w", c.queue, err)
		}

		if err := c.handle(ctx, msg); err != nil {
			// Non-decode failures propagate: the consumer restarts rather
			// than silently dropping messages.
			return err
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("commit on %s: %w", c.queue, err)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) error {
	err := c.handler(ctx, msg.Key, msg.Value)
	if err == nil {
		return nil
	}

	var de *DecodeError
	if !errors.As(err, &de) {
		return err
	}

	c.logger.Warn("undecodable message",
		zap.String("queue", c.queue),
		zap.Int64("offset", msg.Offset),
		zap.Error(de.Err))
	if c.dlq != nil {
		if dlqErr := c.dlq.PublishRaw(ctx, c.queue+".dlq", msg.Key, msg.Value); dlqErr != nil {
			c.logger.Error("dead-letter publish failed",
				zap.String("queue", c.queue),
				zap.Error(dlqErr))
		}
	}
	return nil
}

// Producer publishes JSON payloads with persisted delivery (acks from all
// replicas), one message per instruction.
type Producer struct {
	writer *kafka.Writer
	logger *zap.Logger
}

// NewProducer creates a producer for the configured brokers.
func NewProducer(cfg Config, logger *zap.Logger) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			WriteTimeout: cfg.WriteTimeout,
			MaxAttempts:  connectAttempts,
		},
		logger: logger,
	}
}

// Publish marshals the payload and writes it to the topic.
func (p *Producer) Publish(ctx context.Context, topic, key string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal for %s: %w", topic, err)
	}
	return p.PublishRaw(ctx, topic, []byte(key), data)
}

// PublishRaw writes pre-encoded bytes to the topic.
func (p *Producer) PublishRaw(ctx context.Context, topic string, key, value []byte) error {
	return p.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   key,
		Value: value,
		Time:  time.Now(),
	})
}

// Close flushes and closes the underlying writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
