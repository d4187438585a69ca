package turn

import "github.com/prometheus/client_golang/prometheus"

// NewQueueCollector exposes the number of raised hands waiting on a.
func NewQueueCollector(namespace string, a *Arbiter) prometheus.Collector {
	return prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "turn",
			Name:      "queue_depth",
			Help:      "Raised hands waiting for the floor.",
		},
		func() float64 { return float64(a.Len()) },
	)
}
