package worker

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"barberq/internal/store"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"
)

const consumerName = "kafka-dispatch"

// MessageWriter is the part of kafka.Writer the dispatcher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// OutboxStore is the slice of the store the dispatcher needs.
type OutboxStore interface {
	ListOutboxBatch(ctx context.Context, afterSeq int64, limit int) ([]store.OutboxEvent, error)
	GetOutboxOffset(ctx context.Context, consumer string) (int64, error)
	UpdateOutboxOffset(ctx context.Context, consumer string, seq int64) error
}

// Dispatcher drains the outbox into Kafka. Messages are keyed by barber so
// a single barber's queue events stay ordered within a partition.
type Dispatcher struct {
	store     OutboxStore
	writer    MessageWriter
	batchSize int
}

type Config struct {
	BatchSize int
}

type eventEnvelope struct {
	EventID   string          `json:"event_id"`
	TenantID  string          `json:"tenant_id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

func NewDispatcher(st OutboxStore, writer MessageWriter, cfg Config) *Dispatcher {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 50
	}
	return &Dispatcher{
		store:     st,
		writer:    writer,
		batchSize: batch,
	}
}

// NewWriter builds the kafka writer the dispatcher publishes through.
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Compression:  compress.Snappy,
		MaxAttempts:  3,
		Logger:       kafka.LoggerFunc(func(msg string, args ...interface{}) {}),
		ErrorLogger:  kafka.LoggerFunc(log.Printf),
	}
}

// Run processes one batch and advances the sequence offset past every event
// it published. A failed publish stops the batch so the event is retried on
// the next tick.
func (d *Dispatcher) Run(ctx context.Context) error {
	last, err := d.store.GetOutboxOffset(ctx, consumerName)
	if err != nil {
		return err
	}

	events, err := d.store.ListOutboxBatch(ctx, last, d.batchSize)
	if err != nil {
		return err
	}

	published := last
	for _, event := range events {
		if err := d.publish(ctx, event); err != nil {
			log.Printf("outbox publish error event=%s: %v", event.EventID, err)
			break
		}
		published = event.Seq
	}

	if published > last {
		if err := d.store.UpdateOutboxOffset(ctx, consumerName, published); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) RunLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.Run(ctx); err != nil {
				log.Printf("outbox dispatch error: %v", err)
			}
		}
	}
}

func (d *Dispatcher) publish(ctx context.Context, event store.OutboxEvent) error {
	value, err := json.Marshal(eventEnvelope{
		EventID:   event.EventID,
		TenantID:  event.TenantID,
		Type:      event.Type,
		Payload:   event.Payload,
		CreatedAt: event.CreatedAt,
	})
	if err != nil {
		return err
	}
	return d.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(messageKey(event)),
		Value: value,
		Time:  event.CreatedAt,
	})
}

func messageKey(event store.OutboxEvent) string {
	var payload map[string]interface{}
	if err := json.Unmarshal(event.Payload, &payload); err == nil {
		if barberID, ok := payload["barber_id"].(string); ok && barberID != "" {
			return event.TenantID + "/" + barberID
		}
	}
	return event.TenantID
}
