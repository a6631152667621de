// Package httpapi serves heart-rate history, ingestion and the live window
// over HTTP, next to the Prometheus and health endpoints.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ghalamif/PulseFlow/internal/domain"
	"github.com/ghalamif/PulseFlow/internal/ports"
)

const (
	msgMissingRange   = "Missing from/to parameters"
	msgInvalidRange   = "Invalid from/to parameters"
	msgInvalidPayload = "Invalid payload, expected { time: string, bpm: number }"
	msgInternal       = "Internal error"
)

// LiveSource exposes the current live window.
type LiveSource interface {
	Snapshot() domain.Snapshot
}

// PublishFunc admits one sample into the ingestion path.
type PublishFunc func(ctx context.Context, s domain.Sample) error

type Server struct {
	History ports.HistoryStore
	Live    LiveSource
	Publish PublishFunc
	Metrics http.Handler
	Obs     ports.Observability
}

// Handler builds the route table. Routes whose dependency is nil are not
// registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	if s.History != nil {
		mux.HandleFunc("GET /api/data", s.getData)
		mux.HandleFunc("GET /api/stats", s.getStats)
	}
	if s.Publish != nil {
		mux.HandleFunc("POST /api/data", s.postData)
	}
	if s.Live != nil {
		mux.HandleFunc("GET /api/live", s.getLive)
	}
	if s.Metrics != nil {
		mux.Handle("/metrics", s.Metrics)
	}
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

func (s *Server) getData(w http.ResponseWriter, r *http.Request) {
	from, to, ok := s.rangeParams(w, r)
	if !ok {
		return
	}
	samples, err := s.History.Range(r.Context(), from, to)
	if err != nil {
		s.internalError(w, "history_range_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, samples)
}

func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	from, to, ok := s.rangeParams(w, r)
	if !ok {
		return
	}
	stats, err := s.History.Stats(r.Context(), from, to)
	if err != nil {
		s.internalError(w, "history_stats_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type postBody struct {
	Time *string  `json:"time"`
	BPM  *float64 `json:"bpm"`
}

func (s *Server) postData(w http.ResponseWriter, r *http.Request) {
	var body postBody
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	if err := dec.Decode(&body); err != nil || body.Time == nil || *body.Time == "" || body.BPM == nil {
		writeError(w, http.StatusBadRequest, msgInvalidPayload)
		return
	}
	ts, err := ParseTime(*body.Time)
	if err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidPayload)
		return
	}

	if err := s.Publish(r.Context(), domain.Sample{Time: ts, BPM: *body.BPM}); err != nil {
		s.internalError(w, "persist_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// LiveView is the JSON form of a live snapshot.
type LiveView struct {
	Samples   []domain.Sample `json:"samples"`
	Status    string          `json:"status"`
	LastError *string         `json:"lastError"`
	Attempt   int             `json:"attempt"`
	Stats     domain.Stats    `json:"stats"`
}

func NewLiveView(snap domain.Snapshot) LiveView {
	v := LiveView{
		Samples: snap.Samples,
		Status:  snap.Status.String(),
		Attempt: snap.Attempt,
		Stats:   domain.ComputeStats(snap.Samples),
	}
	if v.Samples == nil {
		v.Samples = []domain.Sample{}
	}
	if snap.LastError != nil {
		msg := snap.LastError.Error()
		v.LastError = &msg
	}
	return v
}

func (s *Server) getLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, NewLiveView(s.Live.Snapshot()))
}

func (s *Server) rangeParams(w http.ResponseWriter, r *http.Request) (time.Time, time.Time, bool) {
	q := r.URL.Query()
	rawFrom, rawTo := q.Get("from"), q.Get("to")
	if rawFrom == "" || rawTo == "" {
		writeError(w, http.StatusBadRequest, msgMissingRange)
		return time.Time{}, time.Time{}, false
	}
	from, err1 := ParseTime(rawFrom)
	to, err2 := ParseTime(rawTo)
	if err1 != nil || err2 != nil {
		writeError(w, http.StatusBadRequest, msgInvalidRange)
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}

var errBadTime = errors.New("httpapi: unrecognised time")

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTime accepts RFC 3339 (with or without zone, seconds optional), a
// bare date, or integer unix milliseconds. Zoneless input is read as UTC.
func ParseTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, errBadTime
}

func (s *Server) internalError(w http.ResponseWriter, msg string, err error) {
	if s.Obs != nil {
		s.Obs.LogError(msg, err)
	}
	writeError(w, http.StatusInternalServerError, msgInternal)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
