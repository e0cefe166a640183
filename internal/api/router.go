package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware)
	r.Use(recoveryMiddleware)
	r.Use(bodySizeLimitMiddleware)

	r.Get("/", s.handleIndex)

	r.Get("/get_voltage", s.handleGetVoltage)
	r.Get("/set_voltage", s.handleSetVoltageQuery)
	r.Post("/set_voltage", s.handleSetVoltageJSON)
	r.Post("/set_voltage_form", s.handleSetVoltageForm)

	r.Post("/update_config", s.handleUpdateModbus)
	r.Post("/update_mqtt", s.handleUpdateMQTT)
	r.Post("/update_mqtt_topic", s.handleUpdateTopic)

	r.Handle("/health", s.health)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	} else {
		r.Get("/metrics", func(w http.ResponseWriter, _ *http.Request) {
			writeError(w, http.StatusNotFound, msgMetricsUnavailable)
		})
	}

	return r
}
