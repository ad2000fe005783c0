package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SamplesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bustrack_samples_sent_total",
		Help: "GPS samples delivered to the telemetry endpoint",
	})
	SamplesEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bustrack_samples_enqueued_total",
		Help: "GPS samples parked in the offline queue",
	})
	SamplesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bustrack_samples_dropped_total",
		Help: "GPS samples dropped instead of retried (rejected payloads)",
	})
	QueueFlushes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bustrack_queue_flushes_total",
		Help: "Offline queue flush passes by result",
	}, []string{"result"})
	PingsReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bustrack_pings_received_total",
		Help: "Location pings received over pub/sub",
	})
	PingsAnswered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bustrack_pings_answered_total",
		Help: "Location pings answered with a fresh sample",
	})
	CaptureFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bustrack_capture_failures_total",
		Help: "Capture passes aborted by an error",
	})
	SendLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bustrack_send_latency_seconds",
		Help:    "Latency of telemetry deliveries",
		Buckets: prometheus.DefBuckets,
	})
)

func ObserveSendLatency(start time.Time) {
	SendLatency.Observe(time.Since(start).Seconds())
}

func StartMetricsServer(port string) {
	http.Handle("/metrics", promhttp.Handler())
	http.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(200)
		_, _ = w.Write([]byte("ok"))
	})
	_ = http.ListenAndServe(":"+port, nil)
}
