package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/elcruzo/light-sensor-circuit/internal/auth"
)

// SetupDataRouter serves the device-facing port: sample ingestion, health
// and metrics.
func SetupDataRouter(apiHandler *APIHandler) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(apiHandler.log))
	r.Use(middleware.Recoverer)

	r.With(apiHandler.auth.APIKeyMiddleware).Post("/samples", apiHandler.HandleSampleIngest)
	r.Get("/healthz", apiHandler.HandleHealth)
	if apiHandler.metrics != nil {
		r.Handle("/metrics", apiHandler.metrics)
	}

	return r
}

// SetupUIRouter serves the dashboard, the read API, the websocket feed and
// the admin endpoints.
func SetupUIRouter(apiHandler *APIHandler) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(apiHandler.log))
	r.Use(middleware.Recoverer)

	r.Get("/", apiHandler.ServeWebUI)
	r.Get("/ws", apiHandler.HandleWebSocket)
	r.Get("/analysis/latest", apiHandler.HandleLatest)
	r.Get("/history", apiHandler.HandleHistory)
	r.Get("/stats", apiHandler.HandleStats)
	r.Get("/status", apiHandler.HandleStatus)
	r.Post("/login", apiHandler.HandleLogin)

	r.Group(func(r chi.Router) {
		r.Use(apiHandler.auth.JWTMiddleware)
		r.Use(auth.RequireRole(auth.RoleAdmin))
		r.Put("/config/signal", apiHandler.HandleSignalConfig)
		r.Post("/reset", apiHandler.HandleReset)
		r.Put("/filters/{kind}", apiHandler.HandleFilterToggle)
		r.Post("/sensor/calibrate", apiHandler.HandleCalibrate)
	})

	return r
}

func requestLogger(log *logrus.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.WithFields(logrus.Fields{
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     ww.Status(),
				"bytes":      ww.BytesWritten(),
				"duration":   time.Since(start),
				"request_id": middleware.GetReqID(r.Context()),
			}).Debug("request")
		})
	}
}
