package leads

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// Notifier announces relayed leads to downstream systems.
type Notifier interface {
	Notify(ctx context.Context, lead *Lead) error
	Close() error
}

type leadEvent struct {
	Type      string    `json:"type"`
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Audience  string    `json:"audience,omitempty"`
	Segment   string    `json:"segment,omitempty"`
	Priority  string    `json:"priority,omitempty"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

func newLeadEvent(l *Lead) leadEvent {
	return leadEvent{
		Type:      "lead.created",
		ID:        l.ID,
		Name:      l.Name,
		Email:     l.Email,
		Phone:     l.Phone,
		Audience:  l.Audience,
		Segment:   l.Segment,
		Priority:  l.Priority,
		Source:    l.Source,
		CreatedAt: l.CreatedAt,
	}
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes lead.created events keyed by lead ID.
type KafkaNotifier struct {
	writer messageWriter
}

func NewKafkaNotifier(brokers, topic string) *KafkaNotifier {
	var addrs []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			addrs = append(addrs, b)
		}
	}
	return &KafkaNotifier{writer: &kafka.Writer{
		Addr:                   kafka.TCP(addrs...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		WriteTimeout:           10 * time.Second,
	}}
}

func (k *KafkaNotifier) Notify(ctx context.Context, l *Lead) error {
	blob, err := json.Marshal(newLeadEvent(l))
	if err != nil {
		return err
	}
	if err := k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(l.ID), Value: blob}); err != nil {
		return fmt.Errorf("publish lead %s: %w", l.ID, err)
	}
	return nil
}

func (k *KafkaNotifier) Close() error {
	return k.writer.Close()
}
