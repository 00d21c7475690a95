package mqttflow

import (
	"strconv"
	"time"
)

// MetricLabels represents key-value pairs for metric labels.
type MetricLabels map[string]string

// Metrics is the sink for connection metrics. Implementations must be safe
// for concurrent use; a Prometheus or OpenTelemetry adapter plugs in here.
type Metrics interface {
	Counter(name string, labels MetricLabels) Counter
	Gauge(name string, labels MetricLabels) Gauge
	Histogram(name string, labels MetricLabels) Histogram
}

// Counter is a monotonically increasing counter.
type Counter interface {
	Inc()
	Add(delta float64)
	Value() float64
}

// Gauge is a metric that can go up and down.
type Gauge interface {
	Set(value float64)
	Inc()
	Dec()
	Add(delta float64)
	Value() float64
}

// Histogram tracks the distribution of observed values.
type Histogram interface {
	Observe(value float64)

	// ObserveDuration records d in seconds.
	ObserveDuration(d time.Duration)

	Count() uint64
	Sum() float64
}

// NoOpMetrics discards every measurement.
type NoOpMetrics struct{}

func (NoOpMetrics) Counter(string, MetricLabels) Counter     { return noOpMetric{} }
func (NoOpMetrics) Gauge(string, MetricLabels) Gauge         { return noOpMetric{} }
func (NoOpMetrics) Histogram(string, MetricLabels) Histogram { return noOpMetric{} }

type noOpMetric struct{}

func (noOpMetric) Inc()                          {}
func (noOpMetric) Dec()                          {}
func (noOpMetric) Set(float64)                   {}
func (noOpMetric) Add(float64)                   {}
func (noOpMetric) Value() float64                { return 0 }
func (noOpMetric) Observe(float64)               {}
func (noOpMetric) ObserveDuration(time.Duration) {}
func (noOpMetric) Count() uint64                 { return 0 }
func (noOpMetric) Sum() float64                  { return 0 }

// Metric names reported by a connection.
const (
	MetricPacketsSent       = "mqtt_packets_sent_total"
	MetricPacketsReceived   = "mqtt_packets_received_total"
	MetricMessagesDelivered = "mqtt_messages_delivered_total"
	MetricRetransmissions   = "mqtt_retransmissions_total"
	MetricRequestsInFlight  = "mqtt_requests_in_flight"
	MetricRequestsFailed    = "mqtt_requests_failed_total"
	MetricRequestLatency    = "mqtt_request_latency_seconds"
	MetricKeepAliveFailures = "mqtt_keepalive_failures_total"
)

// Metric labels.
const (
	LabelPacketType = "packet_type"
	LabelQoS        = "qos"
	LabelRequest    = "request" // request kind: publish, subscribe, unsubscribe, ping
)

// connMetrics records the metrics of one connection.
type connMetrics struct {
	metrics Metrics
}

func newConnMetrics(m Metrics) connMetrics {
	if m == nil {
		m = NoOpMetrics{}
	}
	return connMetrics{metrics: m}
}

func packetLabels(packetType PacketType) MetricLabels {
	return MetricLabels{LabelPacketType: packetType.String()}
}

func (c connMetrics) packetSent(packetType PacketType) {
	c.metrics.Counter(MetricPacketsSent, packetLabels(packetType)).Inc()
}

func (c connMetrics) packetReceived(packetType PacketType) {
	c.metrics.Counter(MetricPacketsReceived, packetLabels(packetType)).Inc()
}

func (c connMetrics) messageDelivered(qos QoS) {
	labels := MetricLabels{LabelQoS: strconv.Itoa(int(qos))}
	c.metrics.Counter(MetricMessagesDelivered, labels).Inc()
}

func (c connMetrics) retransmission(packetType PacketType) {
	c.metrics.Counter(MetricRetransmissions, packetLabels(packetType)).Inc()
}

func (c connMetrics) requestStarted() {
	c.metrics.Gauge(MetricRequestsInFlight, nil).Inc()
}

func (c connMetrics) requestFinished(kind string, d time.Duration, err error) {
	c.metrics.Gauge(MetricRequestsInFlight, nil).Dec()

	labels := MetricLabels{LabelRequest: kind}
	c.metrics.Histogram(MetricRequestLatency, labels).ObserveDuration(d)
	if err != nil {
		c.metrics.Counter(MetricRequestsFailed, labels).Inc()
	}
}

func (c connMetrics) keepAliveFailure() {
	c.metrics.Counter(MetricKeepAliveFailures, nil).Inc()
}
