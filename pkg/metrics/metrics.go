// Package metrics exposes Prometheus counters and gauges for the store and
// stream engines, served at /metrics via promhttp.Handler, following
// cmd/progressdb/main.go's wiring in the teacher repo.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	StorePuts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "simulator_store_puts_total",
		Help: "Total number of accepted store writes.",
	})
	StoreRateLimited = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "simulator_store_rate_limited_total",
		Help: "Total number of store writes rejected by the per-key rate limiter.",
	})
	StoreGets = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "simulator_store_gets_total",
		Help: "Total number of store reads.",
	})
	StoreGetMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "simulator_store_get_misses_total",
		Help: "Total number of store reads for an absent key.",
	})
	StoreRanges = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "simulator_store_ranges_total",
		Help: "Total number of store range scans.",
	})
	StorePendingDepth = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "simulator_store_pending_writes",
		Help: "Number of accepted writes not yet visible.",
	}, func() float64 { return 0 })

	StreamPublishes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "simulator_stream_publishes_total",
		Help: "Total number of stream publishes accepted.",
	})
	StreamDeliveries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "simulator_stream_deliveries_total",
		Help: "Total number of messages delivered to subscribers.",
	})
	StreamDrops = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "simulator_stream_drops_total",
		Help: "Total number of messages dropped due to a full subscriber channel.",
	})
	StreamTopics = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "simulator_stream_topics",
		Help: "Current number of active topics.",
	})
	StreamSubscribers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "simulator_stream_subscribers",
		Help: "Current number of active subscriptions across all topics.",
	})
)

func init() {
	prometheus.MustRegister(
		StorePuts, StoreRateLimited, StoreGets, StoreGetMisses, StoreRanges,
		StreamPublishes, StreamDeliveries, StreamDrops, StreamTopics, StreamSubscribers,
	)
}

// SetStorePendingDepthFunc rewires the pending-writes gauge to sample the
// live store once it has been opened.
func SetStorePendingDepthFunc(f func() float64) {
	prometheus.Unregister(StorePendingDepth)
	StorePendingDepth = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "simulator_store_pending_writes",
		Help: "Number of accepted writes not yet visible.",
	}, f)
	prometheus.MustRegister(StorePendingDepth)
}
