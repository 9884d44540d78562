package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/elcruzo/light-sensor-circuit/internal/auth"
	"github.com/elcruzo/light-sensor-circuit/internal/config"
	"github.com/elcruzo/light-sensor-circuit/internal/data"
	"github.com/elcruzo/light-sensor-circuit/internal/gateway"
	"github.com/elcruzo/light-sensor-circuit/internal/metrics"
	"github.com/elcruzo/light-sensor-circuit/internal/sensor"
	"github.com/elcruzo/light-sensor-circuit/internal/signal"
	"github.com/elcruzo/light-sensor-circuit/internal/storage"
	"github.com/elcruzo/light-sensor-circuit/internal/websocket"
)

const apiKey = "device-key"

type testServer struct {
	data *chi.Mux
	ui   *chi.Mux
	gw   *gateway.Gateway
	auth *auth.Manager
}

func newTestServer(t *testing.T, sensors ...sensor.Sensor) *testServer {
	t.Helper()
	l, _ := test.NewNullLogger()
	log := logrus.NewEntry(l)

	hash, err := bcrypt.GenerateFromPassword([]byte("pw"), bcrypt.MinCost)
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Signal.EnableMedian = false
	cfg.Signal.LowPassCutoffHz = 0
	cfg.Signal.EnableAdaptiveFilter = false
	cfg.Auth = auth.Config{
		JWTSecret:     "secret",
		JWTExpiration: 5,
		APIKeys:       []string{apiKey},
		Users: []auth.User{
			{Username: "ops", PasswordHash: string(hash), Role: auth.RoleAdmin},
			{Username: "guest", PasswordHash: string(hash), Role: "viewer"},
		},
	}

	m := metrics.New()
	hub := websocket.NewHub(log, m.SetClients)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	var sn sensor.Sensor
	if len(sensors) > 0 {
		sn = sensors[0]
	}
	gw := gateway.New(cfg, gateway.Deps{
		Sensor:  sn,
		Store:   storage.NewMemoryStore(cfg.Storage.HistorySize),
		Logger:  storage.NewDataLogger(cfg.Storage, storage.NewMemorySink(0), log),
		Metrics: m,
		Hub:     hub,
		Log:     log,
	})
	am := auth.NewManager(cfg.Auth)
	h, err := NewAPIHandler(gw, hub, am, m.Handler(), log)
	require.NoError(t, err)

	return &testServer{data: SetupDataRouter(h), ui: SetupUIRouter(h), gw: gw, auth: am}
}

func do(h http.Handler, method, path, body string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) ingest(t *testing.T, lux float64) data.Record {
	t.Helper()
	body, _ := json.Marshal(map[string]float64{"lux": lux})
	rec := do(s.data, http.MethodPost, "/samples", string(body), "X-API-Key", apiKey)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var got data.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	return got
}

func (s *testServer) token(t *testing.T, user string) string {
	t.Helper()
	rec := do(s.ui, http.MethodPost, "/login", `{"username":"`+user+`","password":"pw"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return "Bearer " + resp["token"]
}

func TestIngestRequiresAPIKey(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, http.StatusUnauthorized, do(s.data, http.MethodPost, "/samples", `{"lux":1}`).Code)
	assert.Equal(t, http.StatusUnauthorized, do(s.data, http.MethodPost, "/samples", `{"lux":1}`, "X-API-Key", "nope").Code)
}

func TestIngestAndRead(t *testing.T) {
	s := newTestServer(t)

	assert.Equal(t, http.StatusNotFound, do(s.ui, http.MethodGet, "/analysis/latest", "").Code)

	first := s.ingest(t, 100)
	assert.Equal(t, 100.0, first.Analysis.FilteredValue)
	assert.Equal(t, "http", first.Source)
	second := s.ingest(t, 200)
	assert.Equal(t, 150.0, second.Analysis.FilteredValue)

	rec := do(s.ui, http.MethodGet, "/analysis/latest", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var latest data.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &latest))
	assert.Equal(t, second.ID, latest.ID)

	rec = do(s.ui, http.MethodGet, "/history?limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var history []data.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	require.Len(t, history, 1)
	assert.Equal(t, second.ID, history[0].ID)

	assert.Equal(t, http.StatusBadRequest, do(s.ui, http.MethodGet, "/history?limit=x", "").Code)

	rec = do(s.ui, http.MethodGet, "/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var st storage.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, uint64(2), st.Total)
}

func TestIngestRejects(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, http.StatusBadRequest, do(s.data, http.MethodPost, "/samples", `{"quality":3}`, "X-API-Key", apiKey).Code)
	assert.Equal(t, http.StatusBadRequest, do(s.data, http.MethodPost, "/samples", `nope`, "X-API-Key", apiKey).Code)
	assert.Equal(t, http.StatusUnprocessableEntity,
		do(s.data, http.MethodPost, "/samples", `{"lux":3,"is_valid":false}`, "X-API-Key", apiKey).Code)
}

func TestLogin(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, http.StatusUnauthorized, do(s.ui, http.MethodPost, "/login", `{"username":"ops","password":"bad"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(s.ui, http.MethodPost, "/login", `{`).Code)

	claims, err := s.auth.ValidateToken(strings.TrimPrefix(s.token(t, "ops"), "Bearer "))
	require.NoError(t, err)
	assert.Equal(t, auth.RoleAdmin, claims.Role)
}

func TestAdminEndpointsNeedAdmin(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, http.StatusUnauthorized, do(s.ui, http.MethodPost, "/reset", "").Code)
	assert.Equal(t, http.StatusForbidden, do(s.ui, http.MethodPost, "/reset", "", "Authorization", s.token(t, "guest")).Code)
	assert.Equal(t, http.StatusNoContent, do(s.ui, http.MethodPost, "/reset", "", "Authorization", s.token(t, "ops")).Code)
}

func TestSignalConfigUpdate(t *testing.T) {
	s := newTestServer(t)
	admin := s.token(t, "ops")

	rec := do(s.ui, http.MethodPut, "/config/signal", `{"moving_average_window": 2, "enable_peak_detection": true}`, "Authorization", admin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var cfg signal.Config
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cfg))
	assert.Equal(t, 2, cfg.MovingAverageWindow)
	assert.True(t, cfg.EnablePeakDetection)
	assert.True(t, cfg.EnableTrendDetection, "fields left out keep their value")

	assert.Equal(t, http.StatusBadRequest,
		do(s.ui, http.MethodPut, "/config/signal", `{"bogus": 1}`, "Authorization", admin).Code)
}

func TestSignalConfigKeepsPollingRate(t *testing.T) {
	s := newTestServer(t)
	admin := s.token(t, "ops")

	rec := do(s.ui, http.MethodPut, "/config/signal", `{"sample_rate_hz": 50, "low_pass_cutoff_hz": 0.2}`, "Authorization", admin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var cfg signal.Config
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cfg))
	assert.Equal(t, 1.0, cfg.SampleRateHz, "sample_rate_ms is 1000")
	assert.Equal(t, 0.2, cfg.LowPassCutoffHz)
}

func TestCalibrate(t *testing.T) {
	sc := config.Default().Sensor
	ls, err := sensor.New(sc, sensor.NewReplaySource(0.5))
	require.NoError(t, err)
	s := newTestServer(t, ls)
	admin := s.token(t, "ops")

	assert.Equal(t, http.StatusForbidden,
		do(s.ui, http.MethodPost, "/sensor/calibrate", `{"dark_volts":0.1,"light_volts":1.1}`, "Authorization", s.token(t, "guest")).Code)
	assert.Equal(t, http.StatusBadRequest,
		do(s.ui, http.MethodPost, "/sensor/calibrate", `{"dark_volts":0.1}`, "Authorization", admin).Code)
	assert.Equal(t, http.StatusBadRequest,
		do(s.ui, http.MethodPost, "/sensor/calibrate", `{"dark_volts":2,"light_volts":1}`, "Authorization", admin).Code)

	rec := do(s.ui, http.MethodPost, "/sensor/calibrate", `{"dark_volts":0.1,"light_volts":1.1}`, "Authorization", admin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var got map[string]float64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.InDelta(t, 0.1, got["dark_offset"], 1e-12)
	assert.InDelta(t, 0.001, got["sensitivity"], 1e-12)
	assert.InDelta(t, 0.01, got["noise_threshold"], 1e-12)
	assert.InDelta(t, 0.1, ls.Config().DarkOffset, 1e-12)
}

func TestCalibrateWithoutSensor(t *testing.T) {
	s := newTestServer(t)
	rec := do(s.ui, http.MethodPost, "/sensor/calibrate", `{"dark_volts":0.1,"light_volts":1.1}`, "Authorization", s.token(t, "ops"))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestFilterToggle(t *testing.T) {
	s := newTestServer(t)
	admin := s.token(t, "ops")

	rec := do(s.ui, http.MethodPut, "/filters/moving-average", `{"enabled": false}`, "Authorization", admin)
	require.Equal(t, http.StatusOK, rec.Code)
	var filters map[string]bool
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &filters))
	assert.False(t, filters["moving_average"])

	s.ingest(t, 100)
	assert.Equal(t, 300.0, s.ingest(t, 300).Analysis.FilteredValue)

	assert.Equal(t, http.StatusNotFound, do(s.ui, http.MethodPut, "/filters/kalman", `{"enabled": true}`, "Authorization", admin).Code)
	assert.Equal(t, http.StatusBadRequest, do(s.ui, http.MethodPut, "/filters/median", `{}`, "Authorization", admin).Code)
}

func TestHealthMetricsAndDashboard(t *testing.T) {
	s := newTestServer(t)
	s.ingest(t, 42)

	rec := do(s.data, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","state":"ready"}`, rec.Body.String())

	rec = do(s.data, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "lux_raw 42")

	rec = do(s.ui, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Light sensor light_sensor_001")

	rec = do(s.ui, http.MethodGet, "/status", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"state":"ready"`)
}
