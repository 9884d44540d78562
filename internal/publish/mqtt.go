// internal/publish/mqtt.go
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/elcruzo/light-sensor-circuit/internal/config"
	"github.com/elcruzo/light-sensor-circuit/internal/data"
)

const (
	connectTimeout = 10 * time.Second
	alertSuffix    = "/alerts"
	quiesceMs      = 250
)

// mqttClient is the part of mqtt.Client the publisher uses.
type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTPublisher sends records to Topic and alerts to Topic + "/alerts".
type MQTTPublisher struct {
	client mqttClient
	topic  string
	qos    byte
	log    *logrus.Entry
}

func NewMQTT(cfg config.PublisherConfig, log *logrus.Entry) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTT.Broker).
		SetClientID(cfg.MQTT.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(connectTimeout).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.WithError(err).Warn("mqtt connection lost")
		})
	c := mqtt.NewClient(opts)
	if token := c.Connect(); !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("connect to %s: timed out", cfg.MQTT.Broker)
	} else if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.MQTT.Broker, err)
	}
	log.WithField("broker", cfg.MQTT.Broker).Info("mqtt publisher connected")
	return newMQTTPublisher(c, cfg, log), nil
}

func newMQTTPublisher(c mqttClient, cfg config.PublisherConfig, log *logrus.Entry) *MQTTPublisher {
	return &MQTTPublisher{client: c, topic: cfg.MQTT.Topic, qos: cfg.MQTT.QoS, log: log}
}

func (p *MQTTPublisher) PublishRecord(ctx context.Context, rec *data.Record) error {
	return p.publish(ctx, p.topic, rec)
}

func (p *MQTTPublisher) PublishAlert(ctx context.Context, alert data.Alert) error {
	return p.publish(ctx, p.topic+alertSuffix, alert)
}

func (p *MQTTPublisher) publish(ctx context.Context, topic string, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal for %s: %w", topic, err)
	}
	token := p.client.Publish(topic, p.qos, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

func (p *MQTTPublisher) Close() error {
	p.client.Disconnect(quiesceMs)
	return nil
}
