package gsdemo

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gordian-engine/gsanity/gsanity"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StatusSource is the part of [*gsanity.Supervisor] the HTTP handler needs.
type StatusSource interface {
	Status(ctx context.Context) ([]gsanity.RecordStatus, error)
}

type statusEntry struct {
	Name         string `json:"name"`
	Interval     uint32 `json:"interval_ticks"`
	Elapsed      uint32 `json:"elapsed_ticks"`
	LastCheckin  uint32 `json:"last_checkin"`
	HasEvaluator bool   `json:"has_evaluator"`
	Overdue      bool   `json:"overdue"`
}

// NewHandler returns the demo's HTTP handler:
// GET /status reports every record, and GET /metrics serves gatherer.
func NewHandler(log *slog.Logger, src StatusSource, gatherer prometheus.Gatherer) http.Handler {
	r := mux.NewRouter()

	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	r.HandleFunc("/status", func(w http.ResponseWriter, req *http.Request) {
		st, err := src.Status(req.Context())
		if err != nil {
			log.Info("Failed to get supervisor status", "err", err)
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}

		out := make([]statusEntry, len(st))
		for i, s := range st {
			out[i] = statusEntry{
				Name:         s.Name,
				Interval:     uint32(s.Interval),
				Elapsed:      uint32(s.Elapsed),
				LastCheckin:  uint32(s.LastCheckin),
				HasEvaluator: s.HasEvaluator,
				Overdue:      s.Overdue(),
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(out); err != nil {
			log.Info("Failed to write status response", "err", err)
		}
	}).Methods(http.MethodGet)

	return r
}
