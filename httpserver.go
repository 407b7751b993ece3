package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// HTTPServer exposes the toggle/status control surface and the Prometheus
// scrape endpoint, ported from automatedhome-solar's stdlib net/http wiring
// (cmd/main.go registers promhttp.Handler alongside plain handler funcs the
// same way).
type HTTPServer struct {
	srv *http.Server
	log *logrus.Logger
}

// NewHTTPServer builds (but does not start) the server bound to addr.
func NewHTTPServer(addr string, gate *EnableGate, log *logrus.Logger) *HTTPServer {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/toggle", toggleHandler(gate, log))
	mux.HandleFunc("/api/status", statusHandler(gate))
	mux.Handle("/metrics", promhttp.Handler())

	return &HTTPServer{
		srv: &http.Server{Addr: addr, Handler: mux},
		log: log,
	}
}

// ListenAndServe blocks serving requests until the server is closed.
func (s *HTTPServer) ListenAndServe() error {
	s.log.WithField("addr", s.srv.Addr).Info("http: listening")
	err := s.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully closes the server, letting in-flight requests finish
// within a bounded window before forcing the connections closed.
func (s *HTTPServer) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

func enabledPayload(enabled bool) map[string]string {
	state := "off"
	if enabled {
		state = "on"
	}
	return map[string]string{"enabled": state}
}

func toggleHandler(gate *EnableGate, log *logrus.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		enabled := gate.Toggle()
		metricEnableGateState.Set(boolToFloat(enabled))
		log.WithField("enabled", enabled).Info("http: toggle requested")

		if redirect := req.URL.Query().Get("redirect"); redirect != "" {
			http.Redirect(w, req, redirect, http.StatusFound)
			return
		}

		writeJSON(w, enabledPayload(enabled))
	}
}

func statusHandler(gate *EnableGate) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, enabledPayload(gate.Enabled()))
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
