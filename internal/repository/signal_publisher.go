package repository

import (
	"context"

	"ConvergeWatch/internal/domain/models"
	domrepo "ConvergeWatch/internal/domain/repository"
	pkgkafka "ConvergeWatch/pkg/kafka"
)

type batchProducer interface {
	PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error
	Close() error
}

// KafkaSignalPublisher writes convergence signals keyed by symbol so one
// symbol's signals stay ordered within a partition.
type KafkaSignalPublisher struct {
	producer batchProducer
	topic    string
}

func NewKafkaSignalPublisher(producer *pkgkafka.Producer, topic string) *KafkaSignalPublisher {
	return &KafkaSignalPublisher{producer: producer, topic: topic}
}

func (p *KafkaSignalPublisher) Publish(ctx context.Context, s models.ConvergenceSignal) error {
	return p.PublishBatch(ctx, []models.ConvergenceSignal{s})
}

func (p *KafkaSignalPublisher) PublishBatch(ctx context.Context, signals []models.ConvergenceSignal) error {
	if len(signals) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(signals))
	for i, s := range signals {
		msgs[i] = pkgkafka.Message{Key: []byte(s.Symbol), Value: s}
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *KafkaSignalPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// NopSignalPublisher drops signals; used when Kafka is disabled.
type NopSignalPublisher struct{}

func (NopSignalPublisher) Publish(context.Context, models.ConvergenceSignal) error { return nil }
func (NopSignalPublisher) PublishBatch(context.Context, []models.ConvergenceSignal) error { return nil }
func (NopSignalPublisher) Close() error { return nil }

var (
	_ domrepo.SignalPublisher = (*KafkaSignalPublisher)(nil)
	_ domrepo.SignalPublisher = NopSignalPublisher{}
)
