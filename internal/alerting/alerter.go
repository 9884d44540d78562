// internal/alerting/alerter.go
package alerting

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/elcruzo/light-sensor-circuit/internal/data"
	"github.com/elcruzo/light-sensor-circuit/internal/publish"
)

const publishTimeout = 5 * time.Second

// Broadcaster pushes alerts to live clients; *websocket.Hub implements it.
type Broadcaster interface {
	BroadcastAlert(alert data.Alert)
}

// Recorder counts alerts; *metrics.Metrics implements it.
type Recorder interface {
	AlertRaised(alert data.Alert)
	PublishFailed()
}

type Alerter struct {
	hub      Broadcaster
	pub      publish.Publisher
	recorder Recorder
	log      *logrus.Entry
}

func NewAlerter(hub Broadcaster, pub publish.Publisher, recorder Recorder, log *logrus.Entry) *Alerter {
	if pub == nil {
		pub = publish.Nop{}
	}
	return &Alerter{hub: hub, pub: pub, recorder: recorder, log: log}
}

// ProcessAlerts sends alerts to websocket clients and the publisher.
// Publish failures are logged and counted, never returned.
func (a *Alerter) ProcessAlerts(ctx context.Context, alerts []data.Alert) {
	if len(alerts) == 0 {
		return
	}

	a.log.WithField("count", len(alerts)).Debug("processing alerts")
	for _, alert := range alerts {
		if a.recorder != nil {
			a.recorder.AlertRaised(alert)
		}
		if a.hub != nil {
			a.hub.BroadcastAlert(alert)
		}

		pctx, cancel := context.WithTimeout(ctx, publishTimeout)
		err := a.pub.PublishAlert(pctx, alert)
		cancel()
		if err != nil {
			a.log.WithError(err).WithField("alert", alert.ID).Warn("publish alert failed")
			if a.recorder != nil {
				a.recorder.PublishFailed()
			}
		}
	}
}
