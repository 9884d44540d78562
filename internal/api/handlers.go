package api

import (
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	gwebsocket "github.com/gorilla/websocket" // Alias to avoid name conflict
	"github.com/sirupsen/logrus"

	"github.com/elcruzo/light-sensor-circuit/internal/auth"
	"github.com/elcruzo/light-sensor-circuit/internal/data"
	"github.com/elcruzo/light-sensor-circuit/internal/gateway"
	"github.com/elcruzo/light-sensor-circuit/internal/sensor"
	"github.com/elcruzo/light-sensor-circuit/internal/signal"
	"github.com/elcruzo/light-sensor-circuit/internal/websocket"
)

const maxBodyBytes = 64 << 10

//go:embed templates/*.html
var templateFS embed.FS

var upgrader = gwebsocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true }, // Allow all origins for simplicity
}

type APIHandler struct {
	gw      *gateway.Gateway
	hub     *websocket.Hub
	auth    *auth.Manager
	metrics http.Handler
	tmpl    *template.Template
	log     *logrus.Entry
}

func NewAPIHandler(gw *gateway.Gateway, hub *websocket.Hub, authManager *auth.Manager, metrics http.Handler, log *logrus.Entry) (*APIHandler, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	return &APIHandler{
		gw:      gw,
		hub:     hub,
		auth:    authManager,
		metrics: metrics,
		tmpl:    tmpl,
		log:     log,
	}, nil
}

// HandleSampleIngest feeds one JSON sample through the gateway and returns
// the resulting record.
func (h *APIHandler) HandleSampleIngest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	sample, deviceID, err := data.ParseSample(body)
	if err != nil {
		h.log.WithError(err).Debug("rejecting sample")
		http.Error(w, "Bad Request: "+err.Error(), http.StatusBadRequest)
		return
	}

	rec, err := h.gw.Ingest(r.Context(), sample, deviceID)
	if errors.Is(err, gateway.ErrInvalidSample) {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	if err != nil {
		h.log.WithError(err).Error("ingest failed")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *APIHandler) HandleLatest(w http.ResponseWriter, r *http.Request) {
	rec := h.gw.Latest()
	if rec == nil {
		http.Error(w, "no samples processed yet", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// HandleHistory returns stored records oldest first; ?limit=N keeps the
// newest N.
func (h *APIHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, h.gw.History(limit))
}

func (h *APIHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.gw.Status().Logger)
}

func (h *APIHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.gw.Status())
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *APIHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	role, err := h.auth.Login(req.Username, req.Password)
	if err != nil {
		h.log.WithField("user", req.Username).Warn("login failed")
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}
	token, err := h.auth.IssueToken(req.Username, role)
	if err != nil {
		h.log.WithError(err).Error("issue token")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token, "role": role})
}

// HandleSignalConfig replaces the processor configuration. Fields left out
// of the body keep their current value.
func (h *APIHandler) HandleSignalConfig(w http.ResponseWriter, r *http.Request) {
	cfg := h.gw.Status().Config
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		http.Error(w, "Bad Request: "+err.Error(), http.StatusBadRequest)
		return
	}
	h.gw.Reconfigure(cfg)
	writeJSON(w, http.StatusOK, h.gw.Status().Config)
}

type calibrationRequest struct {
	DarkVolts  *float64 `json:"dark_volts"`
	LightVolts *float64 `json:"light_volts"`
}

type calibrationResponse struct {
	DarkOffset     float64 `json:"dark_offset"`
	Sensitivity    float64 `json:"sensitivity"`
	NoiseThreshold float64 `json:"noise_threshold"`
}

// HandleCalibrate applies a two-point calibration to the polled sensor.
func (h *APIHandler) HandleCalibrate(w http.ResponseWriter, r *http.Request) {
	var req calibrationRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil || req.DarkVolts == nil || req.LightVolts == nil {
		http.Error(w, `Bad Request: want {"dark_volts": v, "light_volts": v}`, http.StatusBadRequest)
		return
	}
	sc, err := h.gw.Calibrate(*req.DarkVolts, *req.LightVolts)
	switch {
	case errors.Is(err, sensor.ErrBadCalibration):
		http.Error(w, "Bad Request: "+err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, gateway.ErrNoSensor), errors.Is(err, gateway.ErrNotCalibratable):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case err != nil:
		h.log.WithError(err).Error("calibrate sensor")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, calibrationResponse{
		DarkOffset:     sc.DarkOffset,
		Sensitivity:    sc.Sensitivity,
		NoiseThreshold: sc.NoiseThreshold,
	})
}

func (h *APIHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	h.gw.Reset()
	w.WriteHeader(http.StatusNoContent)
}

type filterToggle struct {
	Enabled *bool `json:"enabled"`
}

func (h *APIHandler) HandleFilterToggle(w http.ResponseWriter, r *http.Request) {
	kind, err := signal.ParseFilterKind(chi.URLParam(r, "kind"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	var req filterToggle
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil || req.Enabled == nil {
		http.Error(w, `Bad Request: want {"enabled": true|false}`, http.StatusBadRequest)
		return
	}
	h.gw.SetFilterEnabled(kind, *req.Enabled)
	writeJSON(w, http.StatusOK, h.gw.Status().Filters)
}

func (h *APIHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "state": h.gw.Status().State})
}

// HandleWebSocket upgrades connections and registers clients with the hub.
// New clients get the stored history first.
func (h *APIHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	client := websocket.NewClient(h.hub, conn)
	var initial []data.Envelope
	if history := h.gw.History(0); len(history) > 0 {
		initial = append(initial, data.Envelope{Type: "history", Payload: history})
	}
	h.hub.RegisterClient(client, initial...)

	// Start read/write pumps in separate goroutines
	go client.WritePump()
	go client.ReadPump() // Must run ReadPump to handle control messages (close, pong)
}

// ServeWebUI serves the dashboard page.
func (h *APIHandler) ServeWebUI(w http.ResponseWriter, r *http.Request) {
	st := h.gw.Status()
	if err := h.tmpl.ExecuteTemplate(w, "index.html", st); err != nil {
		h.log.WithError(err).Error("render dashboard")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
