// Package kafka relays ledger events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	audit "rightsledger/pkg/platform/audit"
)

// Producer is the subset of *kgo.Client the publisher needs.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// Publisher writes events keyed by subject so every change to one asset lands
// on the same partition in commit order.
type Publisher struct {
	producer Producer
	topic    string
}

func New(producer Producer, topic string) *Publisher {
	return &Publisher{producer: producer, topic: topic}
}

// Publish produces the batch synchronously and fails if any record fails.
func (p *Publisher) Publish(ctx context.Context, events []audit.Event) error {
	records := make([]*kgo.Record, 0, len(events))
	for _, e := range events {
		value, err := json.Marshal(e.ToEnvelope())
		if err != nil {
			return fmt.Errorf("marshal event %s: %w", e.ID, err)
		}
		key := e.Subject
		if key == "" {
			key = e.AggregateID
		}
		records = append(records, &kgo.Record{
			Topic: p.topic,
			Key:   []byte(key),
			Value: value,
			Headers: []kgo.RecordHeader{
				{Key: "event_id", Value: []byte(e.ID)},
				{Key: "action", Value: []byte(e.Action)},
				{Key: "category", Value: []byte(e.Category)},
			},
		})
	}
	if err := p.producer.ProduceSync(ctx, records...).FirstErr(); err != nil {
		return fmt.Errorf("produce ledger events: %w", err)
	}
	return nil
}
