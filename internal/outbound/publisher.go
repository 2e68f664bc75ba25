// Package outbound delivers order instructions to the execution venue, or to
// a simulation sink when the engine runs outside production.
package outbound

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/cefalpha/almengine/internal/messaging"
	"github.com/cefalpha/almengine/internal/models"
)

// Publisher emits new/replace/cancel instructions toward the venue.
type Publisher interface {
	Publish(ctx context.Context, ins *models.Instruction) error
}

// KafkaPublisher writes instructions to the live venue topic with persisted
// delivery, one message per instruction.
type KafkaPublisher struct {
	producer *messaging.Producer
	topic    string
	logger   *zap.Logger
}

// NewKafkaPublisher creates the live publisher.
func NewKafkaPublisher(producer *messaging.Producer, topic string, logger *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic, logger: logger}
}

// Publish writes one instruction keyed by order id so per-order ordering is
// preserved by the broker.
func (p *KafkaPublisher) Publish(ctx context.Context, ins *models.Instruction) error {
	if err := p.producer.Publish(ctx, p.topic, ins.OrderID, ins); err != nil {
		return err
	}
	p.logger.Info("instruction published",
		zap.String("kind", ins.Kind),
		zap.String("order_id", ins.OrderID),
		zap.String("symbol", ins.Symbol),
		zap.String("price", ins.Price.String()),
		zap.String("reason", ins.Reason))
	return nil
}

// SimulationPublisher records instructions instead of sending them, for the
// simulation environment and for tests.
type SimulationPublisher struct {
	mu     sync.Mutex
	sent   []models.Instruction
	logger *zap.Logger
}

// NewSimulationPublisher creates the simulation sink.
func NewSimulationPublisher(logger *zap.Logger) *SimulationPublisher {
	return &SimulationPublisher{logger: logger}
}

// Publish records the instruction.
func (p *SimulationPublisher) Publish(_ context.Context, ins *models.Instruction) error {
	p.mu.Lock()
	p.sent = append(p.sent, *ins)
	p.mu.Unlock()
	if p.logger != nil {
		p.logger.Info("simulated instruction",
			zap.String("kind", ins.Kind),
			zap.String("order_id", ins.OrderID),
			zap.String("symbol", ins.Symbol),
			zap.String("price", ins.Price.String()))
	}
	return nil
}

// Sent returns a copy of every recorded instruction.
func (p *SimulationPublisher) Sent() []models.Instruction {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.Instruction, len(p.sent))
	copy(out, p.sent)
	return out
}
