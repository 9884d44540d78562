// internal/anomaly/detector.go
package anomaly

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/elcruzo/light-sensor-circuit/internal/config"
	"github.com/elcruzo/light-sensor-circuit/internal/data"
)

type Detector struct {
	mu     sync.RWMutex
	config config.AnomalyConfig
	log    *logrus.Entry
}

func NewDetector(cfg config.AnomalyConfig, log *logrus.Entry) *Detector {
	return &Detector{config: cfg, log: log}
}

// SetConfig swaps the rules, e.g. after a config reload.
func (d *Detector) SetConfig(cfg config.AnomalyConfig) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.config = cfg
}

// Check checks a record's analysis for anomalies based on configured rules
func (d *Detector) Check(rec *data.Record) []data.Alert {
	d.mu.RLock()
	cfg := d.config
	d.mu.RUnlock()

	var alerts []data.Alert
	a := rec.Analysis

	if cfg.AlertOnOutlier && a.IsOutlier {
		alerts = append(alerts, newAlert(rec, data.SeverityWarn, data.MetricRaw, rec.Sample.RawValue,
			fmt.Sprintf("Outlier reading %.2f (filtered %.2f)", rec.Sample.RawValue, a.FilteredValue)))
	}
	if cfg.AlertOnPeak && a.IsPeak {
		alerts = append(alerts, newAlert(rec, data.SeverityWarn, data.MetricFiltered, a.FilteredValue,
			fmt.Sprintf("Peak at %.2f", a.FilteredValue)))
	}
	if cfg.MinQuality > 0 && a.QualityScore < cfg.MinQuality {
		alerts = append(alerts, newAlert(rec, data.SeverityCritical, data.MetricQuality, float64(a.QualityScore),
			fmt.Sprintf("Signal quality %d below %d", a.QualityScore, cfg.MinQuality)))
	}

	// Sorted so alerts come out in a stable order.
	metrics := make([]string, 0, len(cfg.Rules))
	for name := range cfg.Rules {
		metrics = append(metrics, name)
	}
	sort.Strings(metrics)

	for _, metricName := range metrics {
		rule := cfg.Rules[metricName]
		value, ok := rec.Metric(metricName)
		if !ok {
			d.log.WithField("metric", metricName).Debug("no such metric for anomaly rule")
			continue
		}

		// Check against Min/Max thresholds
		if value < rule.Min || value > rule.Max {
			alerts = append(alerts, newAlert(rec, data.SeverityWarn, metricName, value,
				fmt.Sprintf("Anomaly detected for %s: Value %.2f is outside range [%.2f, %.2f]", metricName, value, rule.Min, rule.Max)))
		}
	}

	for _, alert := range alerts {
		d.log.WithFields(logrus.Fields{"metric": alert.Metric, "value": alert.Value}).Info(alert.Message)
	}
	return alerts
}

func newAlert(rec *data.Record, severity, metric string, value float64, msg string) data.Alert {
	return data.Alert{
		ID:        uuid.New(),
		RecordID:  rec.ID,
		Timestamp: rec.Time,
		Severity:  severity,
		Message:   msg,
		Metric:    metric,
		Value:     value,
		DeviceID:  rec.DeviceID,
	}
}
