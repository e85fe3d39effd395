package repository

import (
	"context"
	"testing"
	"time"

	"ConvergeWatch/internal/domain/models"
	pkgkafka "ConvergeWatch/pkg/kafka"
)

type recordingProducer struct {
	topic  string
	msgs   []pkgkafka.Message
	closed bool
}

func (r *recordingProducer) PublishBatch(_ context.Context, topic string, messages []pkgkafka.Message) error {
	r.topic = topic
	r.msgs = append(r.msgs, messages...)
	return nil
}

func (r *recordingProducer) Close() error {
	r.closed = true
	return nil
}

func TestKafkaSignalPublisherKeysBySymbol(t *testing.T) {
	rec := &recordingProducer{}
	p := &KafkaSignalPublisher{producer: rec, topic: "signals"}

	ts := time.Date(2024, 5, 1, 0, 40, 0, 0, time.UTC)
	err := p.PublishBatch(context.Background(), []models.ConvergenceSignal{
		{Symbol: "BTCUSDT", Timestamp: ts, Kind: models.SignalSellConvergence},
		{Symbol: "ETHUSDT", Timestamp: ts, Kind: models.SignalBuyConvergence},
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if rec.topic != "signals" || len(rec.msgs) != 2 {
		t.Fatalf("unexpected publish %q %d", rec.topic, len(rec.msgs))
	}
	if string(rec.msgs[1].Key) != "ETHUSDT" {
		t.Fatalf("unexpected key %q", rec.msgs[1].Key)
	}
	if _, ok := rec.msgs[0].Value.(models.ConvergenceSignal); !ok {
		t.Fatalf("expected signal value, got %T", rec.msgs[0].Value)
	}

	if err := p.PublishBatch(context.Background(), nil); err != nil || len(rec.msgs) != 2 {
		t.Fatalf("empty batch should be a no-op")
	}
	_ = p.Close()
	if !rec.closed {
		t.Fatalf("expected producer closed")
	}
}
