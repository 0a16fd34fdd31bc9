// Package metrics records the operations of sessions per entity in a
// VictoriaMetrics set, exposed in the Prometheus text format.
package metrics

import (
	"fmt"
	"io"
	"time"

	"github.com/VictoriaMetrics/metrics"
)

// Recorder counts operations and measures their duration.
type Recorder struct {
	set       *metrics.Set
	namespace string
}

// NewRecorder returns a recorder writing to a new metrics set.
func NewRecorder(opts ...Option) *Recorder {
	r := &Recorder{
		set:       metrics.NewSet(),
		namespace: "gedm",
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Recorder) name(metric, op, entity string) string {
	return fmt.Sprintf(`%s_%s{op=%q,entity=%q}`, r.namespace, metric, op, entity)
}

// Observe records one operation on entity that started at start.
func (r *Recorder) Observe(op, entity string, start time.Time, err error) {
	if r == nil {
		return
	}
	r.set.GetOrCreateCounter(r.name("operations_total", op, entity)).Inc()
	r.set.GetOrCreateHistogram(r.name("operation_duration_seconds", op, entity)).UpdateDuration(start)
	if err != nil {
		r.set.GetOrCreateCounter(r.name("errors_total", op, entity)).Inc()
	}
}

// Count returns how many times op ran on entity.
func (r *Recorder) Count(op, entity string) uint64 {
	return r.set.GetOrCreateCounter(r.name("operations_total", op, entity)).Get()
}

// Errors returns how many times op failed on entity.
func (r *Recorder) Errors(op, entity string) uint64 {
	return r.set.GetOrCreateCounter(r.name("errors_total", op, entity)).Get()
}

// WritePrometheus writes every metric in the Prometheus text format.
func (r *Recorder) WritePrometheus(w io.Writer) {
	r.set.WritePrometheus(w)
}
