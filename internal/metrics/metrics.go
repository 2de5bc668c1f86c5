// Package metrics exposes Prometheus instrumentation for note operations.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/starford/mimir/internal/apperr"
)

var (
	// operationsTotal counts note store operations by outcome.
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mimir_note_operations_total",
		Help: "Total note store operations by operation and result",
	}, []string{"operation", "result"})

	operationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mimir_note_operation_duration_seconds",
		Help:    "Note store operation duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
	}, []string{"operation"})

	// vaultImports counts files seen by vault scans.
	vaultImports = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mimir_vault_import_files_total",
		Help: "Files processed by vault scans by result",
	}, []string{"result"})
)

// Import results.
const (
	ImportImported = "imported"
	ImportSkipped  = "skipped"
	ImportFailed   = "failed"
)

// ObserveOperation records the outcome and latency of one operation.
func ObserveOperation(op string, start time.Time, err error) {
	operationsTotal.WithLabelValues(op, Result(err)).Inc()
	operationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// ObserveImport records one file outcome of a vault scan.
func ObserveImport(result string) {
	vaultImports.WithLabelValues(result).Inc()
}

// Result maps an operation error to a low-cardinality label value.
func Result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, apperr.ErrNotFound):
		return "not_found"
	case errors.Is(err, apperr.ErrDuplicateNote):
		return "duplicate"
	case errors.Is(err, apperr.ErrInvalid):
		return "invalid"
	case errors.Is(err, apperr.ErrMirrorIO):
		return "mirror_io"
	default:
		return "error"
	}
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
