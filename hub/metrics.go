package hub

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

type MetricsSnapshot struct {
	Connections      int64
	ChannelMessages  int64
	DirectMessages   int64
	Deliveries       int64
	DeliveryFailures int64
}

// Metrics counts broker activity. It implements prometheus.Collector so a
// registry can scrape it directly.
type Metrics struct {
	connections      atomic.Int64
	channelMessages  atomic.Int64
	directMessages   atomic.Int64
	deliveries       atomic.Int64
	deliveryFailures atomic.Int64

	connectionsDesc      *prometheus.Desc
	channelMessagesDesc  *prometheus.Desc
	directMessagesDesc   *prometheus.Desc
	deliveriesDesc       *prometheus.Desc
	deliveryFailuresDesc *prometheus.Desc
}

// NewMetrics returns broker metrics whose descriptors are prefixed with
// namespace.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		connectionsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "hub", "connections"),
			"Participants with a live connection.", nil, nil),
		channelMessagesDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "hub", "channel_messages_total"),
			"Channel messages recorded.", nil, nil),
		directMessagesDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "hub", "direct_messages_total"),
			"Direct messages recorded.", nil, nil),
		deliveriesDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "hub", "deliveries_total"),
			"Messages handed to a participant connection.", nil, nil),
		deliveryFailuresDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "hub", "delivery_failures_total"),
			"Deliveries that failed after the message was recorded.", nil, nil),
	}
}

func (m *Metrics) SetConnections(n int) {
	m.connections.Store(int64(n))
}

func (m *Metrics) RecordChannelMessage() {
	m.channelMessages.Add(1)
}

func (m *Metrics) RecordDirectMessage() {
	m.directMessages.Add(1)
}

func (m *Metrics) RecordDelivery(delivered, failed int) {
	m.deliveries.Add(int64(delivered))
	m.deliveryFailures.Add(int64(failed))
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Connections:      m.connections.Load(),
		ChannelMessages:  m.channelMessages.Load(),
		DirectMessages:   m.directMessages.Load(),
		Deliveries:       m.deliveries.Load(),
		DeliveryFailures: m.deliveryFailures.Load(),
	}
}

func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.connectionsDesc
	ch <- m.channelMessagesDesc
	ch <- m.directMessagesDesc
	ch <- m.deliveriesDesc
	ch <- m.deliveryFailuresDesc
}

func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	s := m.Snapshot()
	ch <- prometheus.MustNewConstMetric(m.connectionsDesc, prometheus.GaugeValue, float64(s.Connections))
	ch <- prometheus.MustNewConstMetric(m.channelMessagesDesc, prometheus.CounterValue, float64(s.ChannelMessages))
	ch <- prometheus.MustNewConstMetric(m.directMessagesDesc, prometheus.CounterValue, float64(s.DirectMessages))
	ch <- prometheus.MustNewConstMetric(m.deliveriesDesc, prometheus.CounterValue, float64(s.Deliveries))
	ch <- prometheus.MustNewConstMetric(m.deliveryFailuresDesc, prometheus.CounterValue, float64(s.DeliveryFailures))
}
