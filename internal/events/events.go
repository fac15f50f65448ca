// Package events publishes appointment lifecycle events.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/parchi-health/parchi/internal/logger"
)

// Envelope is the value written for every event.
type Envelope struct {
	Event      string         `json:"event"`
	OccurredAt time.Time      `json:"occurredAt"`
	Payload    map[string]any `json:"payload"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events keyed by appointment id so that all events of
// one appointment land on the same partition in order.
type KafkaPublisher struct {
	writer messageWriter
	now    func() time.Time
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
			WriteTimeout:           5 * time.Second,
		},
		now: time.Now,
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, eventName string, payload map[string]any) error {
	value, err := json.Marshal(Envelope{Event: eventName, OccurredAt: p.now().UTC(), Payload: payload})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	key, _ := payload["appointment_id"].(string)
	msg := kafka.Message{
		Key:   []byte(key),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(eventName)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write event %s: %w", eventName, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// LogPublisher writes events to the structured log only.
type LogPublisher struct {
	log *logger.Logger
}

func NewLogPublisher(log *logger.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(_ context.Context, eventName string, payload map[string]any) error {
	p.log.WithFields(logrus.Fields{
		"component": "events",
		"event":     eventName,
		"payload":   payload,
	}).Info("appointment event")
	return nil
}
