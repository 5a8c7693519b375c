package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"grimm.is/fwrules/internal/firewall"
)

// Registry holds the rule operation metrics.
type Registry struct {
	reg *prometheus.Registry

	Operations   *prometheus.CounterVec
	Duration     *prometheus.HistogramVec
	RulesRemoved prometheus.Counter
	NativeErrors *prometheus.CounterVec
	LastSuccess  *prometheus.GaugeVec
}

// NewRegistry creates a Registry backed by its own prometheus.Registry so
// that textfile output contains only fwrules series.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	r := &Registry{reg: reg}

	r.Operations = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "fwrules_operations_total",
		Help: "Rule operations by type and result",
	}, []string{"op", "result"})

	r.Duration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fwrules_operation_duration_seconds",
		Help:    "Rule operation latency",
		Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
	}, []string{"op"})

	r.RulesRemoved = factory.NewCounter(prometheus.CounterOpts{
		Name: "fwrules_rules_removed_total",
		Help: "Rules removed by delete operations, including partial deletes",
	})

	r.NativeErrors = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "fwrules_native_errors_total",
		Help: "Store failures by native error code",
	}, []string{"op", "code"})

	r.LastSuccess = factory.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fwrules_last_success_timestamp_seconds",
		Help: "Unix time of the last successful operation",
	}, []string{"op"})

	return r
}

// Observe records one operation report. It has the firewall.Observer signature.
func (r *Registry) Observe(rep firewall.OperationReport) {
	r.Operations.WithLabelValues(rep.Op, rep.Result()).Inc()
	r.Duration.WithLabelValues(rep.Op).Observe(rep.Duration.Seconds())
	if rep.Removed > 0 {
		r.RulesRemoved.Add(float64(rep.Removed))
	}
	if rep.Err != nil {
		if code := firewall.CodeOf(rep.Err); code != 0 {
			r.NativeErrors.WithLabelValues(rep.Op, fmt.Sprint(code)).Inc()
		}
		return
	}
	r.LastSuccess.WithLabelValues(rep.Op).Set(float64(rep.Timestamp.Add(rep.Duration).Unix()))
}

// Gatherer exposes the underlying registry.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// WriteTextfile writes all metrics in the node exporter textfile format.
// The file is replaced atomically.
func (r *Registry) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create textfile dir: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.reg); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
