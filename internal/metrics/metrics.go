// internal/metrics/metrics.go
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/elcruzo/light-sensor-circuit/internal/data"
)

// Metrics exposes the pipeline's state on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	samplesTotal  *prometheus.CounterVec
	outliersTotal prometheus.Counter
	peaksTotal    prometheus.Counter
	alertsTotal   *prometheus.CounterVec
	logDropped    *prometheus.CounterVec
	publishErrors prometheus.Counter

	rawLux      prometheus.Gauge
	filteredLux prometheus.Gauge
	noise       prometheus.Gauge
	snr         prometheus.Gauge
	quality     prometheus.Gauge
	trendSlope  prometheus.Gauge
	wsClients   prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		samplesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lux_samples_total",
			Help: "Samples seen by the gateway by source and outcome.",
		}, []string{"source", "outcome"}),
		outliersTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lux_outliers_total",
			Help: "Samples flagged as outliers.",
		}),
		peaksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lux_peaks_total",
			Help: "Samples flagged as peaks.",
		}),
		alertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lux_alerts_total",
			Help: "Alerts raised by metric and severity.",
		}, []string{"metric", "severity"}),
		logDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lux_datalog_errors_total",
			Help: "Records the data logger could not take, by reason.",
		}, []string{"reason"}),
		publishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lux_publish_errors_total",
			Help: "Failed publish attempts.",
		}),
		rawLux:      gauge("lux_raw", "Latest raw reading in lux."),
		filteredLux: gauge("lux_filtered", "Latest filtered reading in lux."),
		noise:       gauge("lux_noise_level", "Smoothed noise estimate."),
		snr:         gauge("lux_snr", "Latest signal to noise ratio."),
		quality:     gauge("lux_quality_score", "Latest quality score, 0-100."),
		trendSlope:  gauge("lux_trend_slope", "Latest trend slope per sample."),
		wsClients:   gauge("lux_websocket_clients", "Connected websocket clients."),
	}

	m.registry.MustRegister(
		m.samplesTotal,
		m.outliersTotal,
		m.peaksTotal,
		m.alertsTotal,
		m.logDropped,
		m.publishErrors,
		m.rawLux,
		m.filteredLux,
		m.noise,
		m.snr,
		m.quality,
		m.trendSlope,
		m.wsClients,
	)
	return m
}

func gauge(name, help string) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help})
}

// ObserveRecord updates the gauges from a processed record.
func (m *Metrics) ObserveRecord(rec *data.Record) {
	a := rec.Analysis
	m.samplesTotal.WithLabelValues(rec.Source, "processed").Inc()
	if a.IsOutlier {
		m.outliersTotal.Inc()
	}
	if a.IsPeak {
		m.peaksTotal.Inc()
	}
	m.rawLux.Set(rec.Sample.RawValue)
	m.filteredLux.Set(a.FilteredValue)
	m.noise.Set(a.NoiseLevel)
	m.snr.Set(a.SignalToNoiseRatio)
	m.quality.Set(float64(a.QualityScore))
	m.trendSlope.Set(a.TrendSlope)
}

// SampleRejected counts a sample that never reached the processor.
func (m *Metrics) SampleRejected(source string) {
	m.samplesTotal.WithLabelValues(source, "rejected").Inc()
}

func (m *Metrics) AlertRaised(alert data.Alert) {
	m.alertsTotal.WithLabelValues(alert.Metric, alert.Severity).Inc()
}

func (m *Metrics) DataLogError(reason string) { m.logDropped.WithLabelValues(reason).Inc() }

func (m *Metrics) PublishFailed() { m.publishErrors.Inc() }

func (m *Metrics) SetClients(n int) { m.wsClients.Set(float64(n)) }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry is exposed for tests and for registering extra collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
