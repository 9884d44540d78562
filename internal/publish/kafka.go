// internal/publish/kafka.go
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/elcruzo/light-sensor-circuit/internal/config"
	"github.com/elcruzo/light-sensor-circuit/internal/data"
)

// messageWriter is satisfied by *kafka.Writer.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes records and alerts to one topic keyed by device id.
// The "type" header tells them apart.
type KafkaPublisher struct {
	w   messageWriter
	log *logrus.Entry
}

func NewKafka(cfg config.PublisherConfig, log *logrus.Entry) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Kafka.Brokers...),
		Topic:        cfg.Kafka.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}
	log.WithFields(logrus.Fields{"brokers": cfg.Kafka.Brokers, "topic": cfg.Kafka.Topic}).Info("kafka publisher ready")
	return &KafkaPublisher{w: w, log: log}
}

func (p *KafkaPublisher) PublishRecord(ctx context.Context, rec *data.Record) error {
	return p.write(ctx, "record", rec.DeviceID, rec.Time, rec)
}

func (p *KafkaPublisher) PublishAlert(ctx context.Context, alert data.Alert) error {
	return p.write(ctx, "alert", alert.DeviceID, alert.Timestamp, alert)
}

func (p *KafkaPublisher) write(ctx context.Context, kind, key string, at time.Time, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", kind, err)
	}
	msg := kafka.Message{
		Key:     []byte(key),
		Value:   b,
		Time:    at,
		Headers: []kafka.Header{{Key: "type", Value: []byte(kind)}},
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write %s: %w", kind, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error { return p.w.Close() }
