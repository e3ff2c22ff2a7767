// Package metrics collects per-run Prometheus metrics and renders them as a
// text exposition snapshot that is published next to the report.
package metrics

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// Recorder owns a private registry so concurrent runs never share series.
type Recorder struct {
	reg             *prometheus.Registry
	sectionDuration *prometheus.HistogramVec
	rowsLoaded      *prometheus.CounterVec
	loadDuration    *prometheus.HistogramVec
	artifactBytes   *prometheus.CounterVec
	operations      *prometheus.CounterVec
	operationTime   *prometheus.CounterVec
}

// New registers the report metrics on a fresh registry.
func New() *Recorder {
	r := &Recorder{
		reg: prometheus.NewRegistry(),
		sectionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "omicsreport_section_duration_seconds",
			Help:    "Wall time of one report section from acquire to publish.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"section", "mode", "status"}),
		rowsLoaded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "omicsreport_rows_loaded_total",
			Help: "Rows parsed from input tables.",
		}, []string{"table"}),
		loadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "omicsreport_table_load_seconds",
			Help:    "Time spent reading and parsing an input table.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"table"}),
		artifactBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "omicsreport_artifact_bytes_total",
			Help: "Bytes written to the artifact store.",
		}, []string{"kind"}),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "omicsreport_operations_total",
			Help: "Outcomes of named operations.",
		}, []string{"operation", "status"}),
		operationTime: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "omicsreport_operation_seconds_total",
			Help: "Cumulative time spent in named operations.",
		}, []string{"operation"}),
	}
	r.reg.MustRegister(r.sectionDuration, r.rowsLoaded, r.loadDuration, r.artifactBytes, r.operations, r.operationTime)
	return r
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// Observe records an operation outcome.
func (r *Recorder) Observe(_ context.Context, operation string, success bool, d time.Duration) {
	if operation == "" {
		return
	}
	r.operations.WithLabelValues(operation, status(success)).Inc()
	r.operationTime.WithLabelValues(operation).Add(d.Seconds())
}

// SectionDone records a finished section.
func (r *Recorder) SectionDone(section, mode string, success bool, d time.Duration) {
	r.sectionDuration.WithLabelValues(section, mode, status(success)).Observe(d.Seconds())
}

// TableLoaded records a parsed input table.
func (r *Recorder) TableLoaded(table string, rows int, elapsed time.Duration) {
	r.rowsLoaded.WithLabelValues(table).Add(float64(rows))
	r.loadDuration.WithLabelValues(table).Observe(elapsed.Seconds())
}

// ArtifactStored records bytes written for an artifact kind.
func (r *Recorder) ArtifactStored(kind string, size int64) {
	r.artifactBytes.WithLabelValues(kind).Add(float64(size))
}

// WriteText writes every metric family in the Prometheus text format.
func (r *Recorder) WriteText(w io.Writer) error {
	families, err := r.reg.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("encode %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

// Totals flattens counters and histogram counts into name{labels} -> value
// for the run ledger.
func (r *Recorder) Totals() (map[string]float64, error) {
	families, err := r.reg.Gather()
	if err != nil {
		return nil, fmt.Errorf("gather metrics: %w", err)
	}
	out := make(map[string]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			out[mf.GetName()+labelString(m)] = value(m)
		}
	}
	return out, nil
}

func value(m *dto.Metric) float64 {
	switch {
	case m.GetCounter() != nil:
		return m.GetCounter().GetValue()
	case m.GetGauge() != nil:
		return m.GetGauge().GetValue()
	case m.GetHistogram() != nil:
		return float64(m.GetHistogram().GetSampleCount())
	}
	return 0
}

func labelString(m *dto.Metric) string {
	pairs := m.GetLabel()
	if len(pairs) == 0 {
		return ""
	}
	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		parts = append(parts, p.GetName()+"="+p.GetValue())
	}
	sort.Strings(parts)
	return "{" + strings.Join(parts, ",") + "}"
}
