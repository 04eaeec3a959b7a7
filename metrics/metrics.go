// Package metrics is a small in-process registry of counters and gauges.
package metrics

import (
	"sync"
	"time"
)

// MetricType represents different types of metrics
type MetricType int

const (
	Counter MetricType = iota
	Gauge
)

// Names of the metrics recorded by the sorter.
const (
	RecordsRead     = "records_read_total"
	RecordsWritten  = "records_written_total"
	RunsWritten     = "runs_written_total"
	TruncatedBytes  = "truncated_bytes_total"
	ChunkSortMillis = "chunk_sort_ms"
)

// Metric represents a single metric
type Metric struct {
	Name        string
	Type        MetricType
	Description string
}

// MetricValue represents the value of a metric
type MetricValue struct {
	Value     float64
	Timestamp time.Time
	Labels    map[string]string
}

// Registry stores and manages metrics
type Registry struct {
	metrics map[string]Metric
	values  map[string][]MetricValue
	mu      sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{
		metrics: make(map[string]Metric),
		values:  make(map[string][]MetricValue),
	}
}

// NewSorterRegistry returns a registry with the sorter's metrics registered.
func NewSorterRegistry() *Registry {
	r := NewRegistry()
	r.Register(Metric{Name: RecordsRead, Type: Counter, Description: "Records read from inputs"})
	r.Register(Metric{Name: RecordsWritten, Type: Counter, Description: "Records written to outputs"})
	r.Register(Metric{Name: RunsWritten, Type: Counter, Description: "Sorted runs written to temporary storage"})
	r.Register(Metric{Name: TruncatedBytes, Type: Counter, Description: "Bytes dropped from partial trailing records"})
	r.Register(Metric{Name: ChunkSortMillis, Type: Gauge, Description: "Duration of the last chunk sort"})
	return r
}

func (r *Registry) Register(metric Metric) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics[metric.Name] = metric
}

// RecordCounter adds an increment to a registered counter. Unknown names are ignored.
func (r *Registry) RecordCounter(name string, value float64, labels map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if metric, ok := r.metrics[name]; ok && metric.Type == Counter {
		r.values[name] = append(r.values[name], MetricValue{
			Value:     value,
			Timestamp: time.Now(),
			Labels:    labels,
		})
	}
}

// RecordGauge replaces the value of a registered gauge.
func (r *Registry) RecordGauge(name string, value float64, labels map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if metric, ok := r.metrics[name]; ok && metric.Type == Gauge {
		r.values[name] = []MetricValue{{
			Value:     value,
			Timestamp: time.Now(),
			Labels:    labels,
		}}
	}
}

// Total sums every recorded value of name.
func (r *Registry) Total(name string) float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var total float64
	for _, v := range r.values[name] {
		total += v.Value
	}
	return total
}

func (r *Registry) GetMetrics() map[string][]MetricValue {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string][]MetricValue)
	for name, values := range r.values {
		result[name] = append([]MetricValue{}, values...)
	}
	return result
}
