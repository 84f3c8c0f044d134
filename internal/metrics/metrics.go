package metrics

import (
	"net/http"
	"os"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	BytesConsumed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "kb_extract",
		Name:      "input_bytes_total",
		Help:      "Total input bytes consumed by pipeline workers.",
	})
	LinesSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kb_extract",
		Name:      "lines_skipped_total",
		Help:      "Input lines skipped, by reason.",
	}, []string{"reason"})
	RecordsWritten = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kb_extract",
		Name:      "records_written_total",
		Help:      "Records written to the output sinks, by entity type.",
	}, []string{"type"})
	ResolverLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kb_extract",
		Name:      "resolver_lookups_total",
		Help:      "Identifier lookups against the label cache, by result (hit|miss).",
	}, []string{"result"})
	ResolverRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kb_extract",
		Name:      "resolver_requests_total",
		Help:      "Label lookup network requests, by outcome (ok|error).",
	}, []string{"outcome"})
	ImageFetches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kb_extract",
		Name:      "image_fetches_total",
		Help:      "Thumbnail fetches, by outcome (ok|not_image|error).",
	}, []string{"outcome"})
	Flushes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "kb_extract",
		Name:      "writer_flushes_total",
		Help:      "Output writer batch flushes.",
	})
)

var initOnce sync.Once

// Init registers collectors; safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(BytesConsumed, LinesSkipped, RecordsWritten, ResolverLookups, ResolverRequests, ImageFetches, Flushes)
	})
}

// Serve starts a /metrics server on the given addr (e.g., ":9090"). Non-blocking when run in goroutine.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, mux)
}

// AddrFromEnv returns listen address from METRICS_ADDR or default ":9090".
func AddrFromEnv() string {
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		return v
	}
	return ":9090"
}
