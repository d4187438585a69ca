package tracker

import "github.com/prometheus/client_golang/prometheus"

// Sizer is anything that can report how many entries it holds.
type Sizer interface {
	Len() int
}

// NewOpenSetsCollector exposes the number of reply sets still waiting.
func NewOpenSetsCollector(namespace string, s Sizer) prometheus.Collector {
	return prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "open_reply_sets",
			Help:      "Tracking ids still waiting on replies.",
		},
		func() float64 { return float64(s.Len()) },
	)
}
