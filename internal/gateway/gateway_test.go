package gateway

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elcruzo/light-sensor-circuit/internal/alerting"
	"github.com/elcruzo/light-sensor-circuit/internal/anomaly"
	"github.com/elcruzo/light-sensor-circuit/internal/config"
	"github.com/elcruzo/light-sensor-circuit/internal/data"
	"github.com/elcruzo/light-sensor-circuit/internal/metrics"
	"github.com/elcruzo/light-sensor-circuit/internal/sensor"
	"github.com/elcruzo/light-sensor-circuit/internal/signal"
	"github.com/elcruzo/light-sensor-circuit/internal/storage"
)

type fakeHub struct {
	mu      sync.Mutex
	records []*data.Record
	alerts  []data.Alert
}

func (h *fakeHub) BroadcastRecord(r *data.Record) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r)
}

func (h *fakeHub) BroadcastAlert(a data.Alert) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.alerts = append(h.alerts, a)
}

type fakePublisher struct {
	mu      sync.Mutex
	records []*data.Record
	closed  bool
}

func (p *fakePublisher) PublishRecord(_ context.Context, r *data.Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records = append(p.records, r)
	return nil
}
func (p *fakePublisher) PublishAlert(context.Context, data.Alert) error { return nil }
func (p *fakePublisher) Close() error                                   { p.closed = true; return nil }

type fixture struct {
	gw   *Gateway
	hub  *fakeHub
	pub  *fakePublisher
	sink *storage.MemorySink
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Sensor.SampleRateMs = 5
	cfg.Signal = config.SignalConfig{
		MovingAverageWindow:    3,
		EnableOutlierRemoval:   true,
		OutlierThresholdStdDev: 2,
	}
	cfg.Storage.BufferSize = 10
	cfg.Storage.FlushThreshold = 2
	cfg.Anomaly = config.AnomalyConfig{AlertOnOutlier: true}
	return cfg
}

func newFixture(t *testing.T, cfg *config.Config, s sensor.Sensor) *fixture {
	t.Helper()
	l, _ := test.NewNullLogger()
	log := logrus.NewEntry(l)

	f := &fixture{hub: &fakeHub{}, pub: &fakePublisher{}, sink: storage.NewMemorySink(0)}
	m := metrics.New()
	f.gw = New(cfg, Deps{
		Sensor:    s,
		Store:     storage.NewMemoryStore(cfg.Storage.HistorySize),
		Logger:    storage.NewDataLogger(cfg.Storage, f.sink, log),
		Metrics:   m,
		Detector:  anomaly.NewDetector(cfg.Anomaly, log),
		Alerter:   alerting.NewAlerter(f.hub, f.pub, m, log),
		Hub:       f.hub,
		Publisher: f.pub,
		Log:       log,
	})
	return f
}

func sample(v float64) signal.Sample {
	return signal.Sample{RawValue: v, IsValid: true, Quality: 100}
}

func TestIngestRunsPipeline(t *testing.T) {
	f := newFixture(t, testConfig(), nil)
	ctx := context.Background()

	var got []float64
	for _, v := range []float64{10, 20, 30, 40} {
		rec, err := f.gw.Ingest(ctx, sample(v), "")
		require.NoError(t, err)
		assert.Equal(t, "light_sensor_001", rec.DeviceID)
		assert.Equal(t, SourceHTTP, rec.Source)
		got = append(got, rec.Analysis.FilteredValue)
	}
	assert.Equal(t, []float64{10, 15, 20, 30}, got)

	assert.Equal(t, 4, f.gw.Store.Len())
	assert.Equal(t, 40.0, f.gw.Latest().Sample.RawValue)
	assert.Len(t, f.gw.History(2), 2)
	assert.Len(t, f.hub.records, 4)
	assert.Len(t, f.pub.records, 4)
	assert.Len(t, f.sink.Records(), 4, "flushed every second record")
}

func TestIngestDeviceOverride(t *testing.T) {
	f := newFixture(t, testConfig(), nil)
	rec, err := f.gw.Ingest(context.Background(), sample(1), "remote-7")
	require.NoError(t, err)
	assert.Equal(t, "remote-7", rec.DeviceID)
}

func TestIngestSkipsInvalid(t *testing.T) {
	f := newFixture(t, testConfig(), nil)
	s := sample(5)
	s.IsValid = false

	_, err := f.gw.Ingest(context.Background(), s, "")
	assert.ErrorIs(t, err, ErrInvalidSample)
	assert.Equal(t, 0, f.gw.Store.Len())
	assert.Empty(t, f.pub.records)
}

func TestOutlierRaisesAlert(t *testing.T) {
	f := newFixture(t, testConfig(), nil)
	ctx := context.Background()
	for _, v := range []float64{100, 102, 98, 105, 103} {
		_, err := f.gw.Ingest(ctx, sample(v), "")
		require.NoError(t, err)
	}
	assert.Empty(t, f.hub.alerts)

	rec, err := f.gw.Ingest(ctx, sample(200), "")
	require.NoError(t, err)
	assert.True(t, rec.Analysis.IsOutlier)
	require.Len(t, f.hub.alerts, 1)
	assert.Equal(t, rec.ID, f.hub.alerts[0].RecordID)
}

func TestResetMatchesFreshGateway(t *testing.T) {
	cfg := testConfig()
	used := newFixture(t, cfg, nil)
	fresh := newFixture(t, cfg, nil)
	ctx := context.Background()

	for _, v := range []float64{5, 50, 500} {
		_, err := used.gw.Ingest(ctx, sample(v), "")
		require.NoError(t, err)
	}
	used.gw.Reset()

	for _, v := range []float64{7, 8, 9} {
		a, err := used.gw.Ingest(ctx, sample(v), "")
		require.NoError(t, err)
		b, err := fresh.gw.Ingest(ctx, sample(v), "")
		require.NoError(t, err)
		assert.Equal(t, b.Analysis, a.Analysis)
	}
}

func TestSetFilterEnabledAndStatus(t *testing.T) {
	f := newFixture(t, testConfig(), nil)

	st := f.gw.Status()
	assert.Equal(t, "ready", st.State)
	assert.True(t, st.Filters["moving_average"])
	assert.False(t, st.Filters["median"])
	assert.Equal(t, uint8(50), st.Quality)

	f.gw.SetFilterEnabled(signal.MovingAverage, false)
	assert.False(t, f.gw.Status().Filters["moving_average"])

	rec, err := f.gw.Ingest(context.Background(), sample(10), "")
	require.NoError(t, err)
	rec, err = f.gw.Ingest(context.Background(), sample(20), "")
	require.NoError(t, err)
	assert.Equal(t, 20.0, rec.Analysis.FilteredValue)
	assert.Equal(t, uint64(2), f.gw.Status().Logger.Logged)
}

func TestReconfigureAndApplyConfig(t *testing.T) {
	f := newFixture(t, testConfig(), nil)

	sc := f.gw.Status().Config
	sc.MovingAverageWindow = 50
	f.gw.Reconfigure(sc)
	assert.Equal(t, signal.MaxWindow, f.gw.Status().Config.MovingAverageWindow)

	cfg := testConfig()
	cfg.Signal.EnablePeakDetection = true
	cfg.Anomaly.AlertOnOutlier = false
	f.gw.ApplyConfig(cfg)
	assert.True(t, f.gw.Status().Config.EnablePeakDetection)
	assert.Equal(t, 3, f.gw.Status().Config.MovingAverageWindow)

	ctx := context.Background()
	for _, v := range []float64{100, 102, 98, 105, 103, 200} {
		_, err := f.gw.Ingest(ctx, sample(v), "")
		require.NoError(t, err)
	}
	assert.Empty(t, f.hub.alerts, "alert rules were reloaded")
}

func TestReloadKeepsPollingSampleRate(t *testing.T) {
	cfg := testConfig()
	cfg.Sensor.SampleRateMs = 1000
	cfg.Signal.LowPassCutoffHz = 0.1
	f := newFixture(t, cfg, nil)
	require.Equal(t, 1.0, f.gw.Status().Config.SampleRateHz)

	reloaded := testConfig()
	reloaded.Sensor.SampleRateMs = 100
	reloaded.Signal.LowPassCutoffHz = 0.2
	f.gw.ApplyConfig(reloaded)

	st := f.gw.Status().Config
	assert.Equal(t, 0.2, st.LowPassCutoffHz)
	assert.Equal(t, 1.0, st.SampleRateHz, "poll interval is still one second")

	sc := st
	sc.SampleRateHz = 50
	f.gw.Reconfigure(sc)
	assert.Equal(t, 1.0, f.gw.Status().Config.SampleRateHz)
}

func TestConcurrentIngestKeepsProcessingOrder(t *testing.T) {
	cfg := testConfig()
	cfg.Signal = config.SignalConfig{MovingAverageWindow: 2}
	cfg.Storage.HistorySize = 100
	f := newFixture(t, cfg, nil)

	const workers, perWorker = 4, 10
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				_, err := f.gw.Ingest(context.Background(), sample(float64(w*1000+i*7+1)), "")
				assert.NoError(t, err)
			}
		}(w)
	}
	wg.Wait()

	history := f.gw.History(0)
	require.Len(t, history, workers*perWorker)

	// A window-2 average pairs each value with its processed predecessor,
	// so history order must equal processing order.
	assert.Equal(t, history[0].Sample.RawValue, history[0].Analysis.FilteredValue)
	for i := 1; i < len(history); i++ {
		want := (history[i-1].Sample.RawValue + history[i].Sample.RawValue) / 2
		assert.Equal(t, want, history[i].Analysis.FilteredValue, "record %d", i)
	}

	ids := func(recs []*data.Record) []string {
		out := make([]string, len(recs))
		for i, r := range recs {
			out[i] = r.ID.String()
		}
		return out
	}
	assert.Equal(t, ids(history), ids(f.hub.records))
	assert.Equal(t, ids(history), ids(f.pub.records))
	assert.Equal(t, ids(history), ids(f.sink.Records()))
}

func TestCalibrate(t *testing.T) {
	f := newFixture(t, testConfig(), nil)
	_, err := f.gw.Calibrate(0.1, 1.1)
	assert.ErrorIs(t, err, ErrNoSensor)

	cfg := testConfig()
	ls, err := sensor.New(cfg.Sensor, sensor.NewReplaySource(0.5))
	require.NoError(t, err)
	f = newFixture(t, cfg, ls)

	_, err = f.gw.Calibrate(1, 1)
	assert.ErrorIs(t, err, sensor.ErrBadCalibration)

	sc, err := f.gw.Calibrate(0.1, 1.1)
	require.NoError(t, err)
	assert.InDelta(t, 0.001, sc.Sensitivity, 1e-12)
	assert.InDelta(t, 0.01, sc.NoiseThreshold, 1e-12)

	f = newFixture(t, cfg, readOnlySensor{})
	_, err = f.gw.Calibrate(0.1, 1.1)
	assert.ErrorIs(t, err, ErrNotCalibratable)
}

type readOnlySensor struct{}

func (readOnlySensor) Read() signal.Sample { return sample(1) }

func TestRunPollsSensor(t *testing.T) {
	cfg := testConfig()
	cfg.Sensor.ADCResolution = 10
	cfg.Sensor.Oversampling = 1
	src := sensor.NewReplaySource(0.2, 0.3, 2.0)
	s, err := sensor.New(cfg.Sensor, src)
	require.NoError(t, err)

	f := newFixture(t, cfg, s)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.gw.Run(ctx) }()

	require.Eventually(t, func() bool { return f.gw.Store.Len() >= 4 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	for _, rec := range f.gw.History(0) {
		assert.Equal(t, SourceSensor, rec.Source)
		assert.True(t, rec.Sample.IsValid, "invalid conversions never reach the store")
	}
	require.NoError(t, f.gw.Close())
	assert.True(t, f.pub.closed)
}

func TestRunWithoutSensor(t *testing.T) {
	f := newFixture(t, testConfig(), nil)
	assert.ErrorIs(t, f.gw.Run(context.Background()), ErrNoSensor)
}
