// Package metrics accumulates per-run installation outcomes into an artifact
// for later analysis.
//
// The artifact is a JSON file updated read-modify-write by the single active
// run (the concurrency model guarantees one writer per artifact). When a
// Prometheus textfile path is configured, the accumulated totals are mirrored
// there in exposition format for node-exporter style scraping.
package metrics

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Totals is the accumulated state of the metrics artifact.
type Totals struct {
	SuccessCount int64 `json:"successCount"`
	FailureCount int64 `json:"failureCount"`

	// RetryCounts is a histogram of runs keyed by the number of retry
	// attempts they consumed.
	RetryCounts map[string]int64 `json:"retryCounts"`

	// TotalWaitMs is the cumulative time spent waiting (readiness polls,
	// contention polls, retry backoff) across all runs.
	TotalWaitMs int64 `json:"totalWaitMs"`
}

// Outcome describes one finished run.
type Outcome struct {
	Succeeded bool
	Retries   int
	WaitTime  time.Duration
}

// Store persists accumulated totals.
type Store struct {
	path         string
	textfilePath string
}

// NewStore creates a metrics store writing the JSON artifact at path and,
// when textfilePath is non-empty, a Prometheus textfile mirror.
func NewStore(path, textfilePath string) *Store {
	return &Store{path: path, textfilePath: textfilePath}
}

// Load reads the current totals. A missing artifact yields zero totals.
func (s *Store) Load() (Totals, error) {
	totals := Totals{RetryCounts: make(map[string]int64)}

	data, err := os.ReadFile(s.path) // #nosec G304
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return totals, nil
		}
		return totals, fmt.Errorf("failed to read metrics artifact: %w", err)
	}

	if err := json.Unmarshal(data, &totals); err != nil {
		return totals, fmt.Errorf("failed to parse metrics artifact %s: %w", s.path, err)
	}
	if totals.RetryCounts == nil {
		totals.RetryCounts = make(map[string]int64)
	}
	return totals, nil
}

// Record folds one run's outcome into the artifact and returns the new totals.
func (s *Store) Record(o Outcome) (Totals, error) {
	totals, err := s.Load()
	if err != nil {
		return totals, err
	}

	if o.Succeeded {
		totals.SuccessCount++
	} else {
		totals.FailureCount++
	}
	totals.RetryCounts[strconv.Itoa(o.Retries)]++
	totals.TotalWaitMs += o.WaitTime.Milliseconds()

	data, err := json.MarshalIndent(totals, "", "  ")
	if err != nil {
		return totals, fmt.Errorf("failed to encode metrics artifact: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil { // #nosec G306
		return totals, fmt.Errorf("failed to write metrics artifact: %w", err)
	}

	if s.textfilePath != "" {
		if err := s.export(totals); err != nil {
			return totals, err
		}
	}
	return totals, nil
}

// export mirrors the totals to the Prometheus textfile.
func (s *Store) export(totals Totals) error {
	registry := prometheus.NewRegistry()

	success := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "agentup",
		Subsystem: "runs",
		Name:      "success_total",
		Help:      "Total number of successful installation runs",
	})
	failure := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "agentup",
		Subsystem: "runs",
		Name:      "failure_total",
		Help:      "Total number of failed installation runs",
	})
	waitMs := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "agentup",
		Subsystem: "runs",
		Name:      "wait_milliseconds_total",
		Help:      "Cumulative milliseconds spent waiting across runs",
	})
	retries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentup",
		Subsystem: "runs",
		Name:      "retries_total",
		Help:      "Runs bucketed by the number of retry attempts consumed",
	}, []string{"attempts"})

	registry.MustRegister(success, failure, waitMs, retries)

	success.Add(float64(totals.SuccessCount))
	failure.Add(float64(totals.FailureCount))
	waitMs.Add(float64(totals.TotalWaitMs))
	for attempts, count := range totals.RetryCounts {
		retries.WithLabelValues(attempts).Add(float64(count))
	}

	if err := prometheus.WriteToTextfile(s.textfilePath, registry); err != nil {
		return fmt.Errorf("failed to write Prometheus textfile: %w", err)
	}
	return nil
}
