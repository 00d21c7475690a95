package mqttflow

import (
	"maps"
	"math"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// MemoryMetrics keeps every series in memory. It backs tests and lets a
// connection be inspected without an external metrics backend.
type MemoryMetrics struct {
	mu         sync.RWMutex
	counters   map[string]*memoryCounter
	gauges     map[string]*memoryGauge
	histograms map[string]*memoryHistogram
}

// NewMemoryMetrics creates an empty MemoryMetrics.
func NewMemoryMetrics() *MemoryMetrics {
	return &MemoryMetrics{
		counters:   make(map[string]*memoryCounter),
		gauges:     make(map[string]*memoryGauge),
		histograms: make(map[string]*memoryHistogram),
	}
}

// seriesKey identifies a series independently of label iteration order.
func seriesKey(name string, labels MetricLabels) string {
	var b strings.Builder
	b.WriteString(name)
	for _, k := range slices.Sorted(maps.Keys(labels)) {
		b.WriteString("|" + k + "=" + labels[k])
	}
	return b.String()
}

func lookupSeries[T any](mu *sync.RWMutex, series map[string]*T, key string) *T {
	mu.RLock()
	defer mu.RUnlock()
	return series[key]
}

func loadSeries[T any](mu *sync.RWMutex, series map[string]*T, key string) *T {
	if s := lookupSeries(mu, series, key); s != nil {
		return s
	}

	mu.Lock()
	defer mu.Unlock()
	if s, ok := series[key]; ok {
		return s
	}
	s := new(T)
	series[key] = s
	return s
}

// Counter returns the counter for name and labels, creating it if needed.
func (m *MemoryMetrics) Counter(name string, labels MetricLabels) Counter {
	return loadSeries(&m.mu, m.counters, seriesKey(name, labels))
}

// Gauge returns the gauge for name and labels, creating it if needed.
func (m *MemoryMetrics) Gauge(name string, labels MetricLabels) Gauge {
	return loadSeries(&m.mu, m.gauges, seriesKey(name, labels))
}

// Histogram returns the histogram for name and labels, creating it if needed.
func (m *MemoryMetrics) Histogram(name string, labels MetricLabels) Histogram {
	return loadSeries(&m.mu, m.histograms, seriesKey(name, labels))
}

// GetCounter returns an existing counter, or nil.
func (m *MemoryMetrics) GetCounter(name string, labels MetricLabels) Counter {
	if c := lookupSeries(&m.mu, m.counters, seriesKey(name, labels)); c != nil {
		return c
	}
	return nil
}

// GetGauge returns an existing gauge, or nil.
func (m *MemoryMetrics) GetGauge(name string, labels MetricLabels) Gauge {
	if g := lookupSeries(&m.mu, m.gauges, seriesKey(name, labels)); g != nil {
		return g
	}
	return nil
}

// GetHistogram returns an existing histogram, or nil.
func (m *MemoryMetrics) GetHistogram(name string, labels MetricLabels) Histogram {
	if h := lookupSeries(&m.mu, m.histograms, seriesKey(name, labels)); h != nil {
		return h
	}
	return nil
}

// atomicFloat is a float64 updated with compare-and-swap.
type atomicFloat struct {
	bits atomic.Uint64
}

func (f *atomicFloat) load() float64   { return math.Float64frombits(f.bits.Load()) }
func (f *atomicFloat) store(v float64) { f.bits.Store(math.Float64bits(v)) }

func (f *atomicFloat) add(delta float64) {
	for {
		old := f.bits.Load()
		next := math.Float64bits(math.Float64frombits(old) + delta)
		if f.bits.CompareAndSwap(old, next) {
			return
		}
	}
}

type memoryCounter struct {
	value atomicFloat
}

func (c *memoryCounter) Inc() { c.value.add(1) }

// Add ignores negative deltas.
func (c *memoryCounter) Add(delta float64) {
	if delta > 0 {
		c.value.add(delta)
	}
}

func (c *memoryCounter) Value() float64 { return c.value.load() }

type memoryGauge struct {
	value atomicFloat
}

func (g *memoryGauge) Set(value float64) { g.value.store(value) }
func (g *memoryGauge) Inc()              { g.value.add(1) }
func (g *memoryGauge) Dec()              { g.value.add(-1) }
func (g *memoryGauge) Add(delta float64) { g.value.add(delta) }
func (g *memoryGauge) Value() float64    { return g.value.load() }

type memoryHistogram struct {
	count atomic.Uint64
	sum   atomicFloat
}

func (h *memoryHistogram) Observe(value float64) {
	h.count.Add(1)
	h.sum.add(value)
}

func (h *memoryHistogram) ObserveDuration(d time.Duration) { h.Observe(d.Seconds()) }
func (h *memoryHistogram) Count() uint64                   { return h.count.Load() }
func (h *memoryHistogram) Sum() float64                    { return h.sum.load() }
