// internal/publish/publish.go
package publish

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/elcruzo/light-sensor-circuit/internal/config"
	"github.com/elcruzo/light-sensor-circuit/internal/data"
)

// Publisher forwards records and alerts to an external broker.
type Publisher interface {
	PublishRecord(ctx context.Context, rec *data.Record) error
	PublishAlert(ctx context.Context, alert data.Alert) error
	Close() error
}

// New builds the publisher selected by cfg.Kind.
func New(cfg config.PublisherConfig, log *logrus.Entry) (Publisher, error) {
	switch cfg.Kind {
	case "", "none":
		return Nop{}, nil
	case "mqtt":
		p, err := NewMQTT(cfg, log)
		if err != nil {
			return nil, err
		}
		return p, nil
	case "kafka":
		return NewKafka(cfg, log), nil
	default:
		return nil, fmt.Errorf("unknown publisher kind %q", cfg.Kind)
	}
}

// Nop drops everything.
type Nop struct{}

func (Nop) PublishRecord(context.Context, *data.Record) error { return nil }
func (Nop) PublishAlert(context.Context, data.Alert) error    { return nil }
func (Nop) Close() error                                      { return nil }
