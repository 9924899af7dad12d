package junction

import "github.com/prometheus/client_golang/prometheus"

// PrometheusObserver implements interfaces.Observer over prometheus metric
// families, so a long-running junction-echo-style process can expose
// /metrics the way the ambient stack's other services do.
type PrometheusObserver struct {
	transfers   *prometheus.CounterVec
	bytes       *prometheus.CounterVec
	errors      *prometheus.CounterVec
	terminates  *prometheus.CounterVec
	waitLatency prometheus.Histogram
}

// NewPrometheusObserver registers junction's metric families against reg
// and returns an Observer that records into them.
func NewPrometheusObserver(reg prometheus.Registerer) *PrometheusObserver {
	o := &PrometheusObserver{
		transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "junction_transfers_total",
			Help: "Freight transfer attempts, by variant.",
		}, []string{"freight"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "junction_transfer_bytes_total",
			Help: "Bytes moved by freight transfer attempts, by variant.",
		}, []string{"freight"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "junction_transfer_errors_total",
			Help: "Failed freight transfer attempts, by variant.",
		}, []string{"freight"}),
		terminates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "junction_channel_terminations_total",
			Help: "Channels reaching tev_terminate, by variant and cause.",
		}, []string{"freight", "cause"}),
		waitLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "junction_collect_latency_seconds",
			Help:    "Phase-5 collect (kevent/epoll_wait) latency.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(o.transfers, o.bytes, o.errors, o.terminates, o.waitLatency)
	return o
}

func (o *PrometheusObserver) ObserveTransfer(freight string, bytes uint64, latencyNs uint64, success bool) {
	o.transfers.WithLabelValues(freight).Inc()
	o.bytes.WithLabelValues(freight).Add(float64(bytes))
	if !success {
		o.errors.WithLabelValues(freight).Inc()
	}
}

func (o *PrometheusObserver) ObserveTerminate(freight string, cause string) {
	o.terminates.WithLabelValues(freight, cause).Inc()
}

func (o *PrometheusObserver) ObserveWait(willWait bool, latencyNs uint64) {
	o.waitLatency.Observe(float64(latencyNs) / 1e9)
}

func (o *PrometheusObserver) ObserveQueueDepth(depth int) {}
