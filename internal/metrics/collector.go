// Package metrics exposes Prometheus instrumentation for read channels and
// the transport layer.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/objstream/objstream/pkg/types"
)

// Collector implements types.MetricsSink on top of Prometheus primitives.
// All methods are safe for concurrent use.
type Collector struct {
	registry *prometheus.Registry

	readsTotal       prometheus.Counter
	readBytes        prometheus.Counter
	readDuration     prometheus.Histogram
	fetchesTotal     prometheus.Counter
	fetchBytes       prometheus.Counter
	fetchRangeSize   prometheus.Histogram
	fetchDuration    prometheus.Histogram
	footerTotal      *prometheus.CounterVec
	inPlaceSkips     prometheus.Counter
	inPlaceSkipBytes prometheus.Counter
	checksumFailures prometheus.Counter
	retriesTotal     prometheus.Counter

	requestsTotal *prometheus.CounterVec
	messagesTotal *prometheus.CounterVec
	wireBytes     *prometheus.CounterVec
}

// NewCollector creates a collector with its own registry under the given
// namespace.
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "objstream"
	}

	c := &Collector{
		registry: prometheus.NewRegistry(),

		readsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reads_total",
			Help:      "Total read calls served by channels",
		}),
		readBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "read_bytes_total",
			Help:      "Total bytes delivered to callers",
		}),
		readDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "read_duration_seconds",
			Help:      "Latency of individual read calls",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
		fetchesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetches_total",
			Help:      "Total range fetches issued to the transport",
		}),
		fetchBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_bytes_total",
			Help:      "Total bytes pulled from the transport",
		}),
		fetchRangeSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_range_bytes",
			Help:      "Size of requested byte ranges",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 12),
		}),
		fetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Latency of range fetch establishment",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		footerTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "footer_serves_total",
			Help:      "Footer cache serves by outcome",
		}, []string{"outcome"}),
		inPlaceSkips: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "in_place_skips_total",
			Help:      "Forward seeks served by discarding from the live stream",
		}),
		inPlaceSkipBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "in_place_skip_bytes_total",
			Help:      "Bytes discarded during in-place skips",
		}),
		checksumFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checksum_failures_total",
			Help:      "Per-chunk CRC32C validation failures",
		}),
		retriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Fetch retry attempts",
		}),

		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Outbound store requests by kind",
		}, []string{"kind"}),
		messagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Inbound stream messages by kind",
		}, []string{"kind"}),
		wireBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wire_bytes_total",
			Help:      "Bytes received on the wire by request kind",
		}, []string{"kind"}),
	}

	c.registry.MustRegister(
		c.readsTotal, c.readBytes, c.readDuration,
		c.fetchesTotal, c.fetchBytes, c.fetchRangeSize, c.fetchDuration,
		c.footerTotal, c.inPlaceSkips, c.inPlaceSkipBytes,
		c.checksumFailures, c.retriesTotal,
		c.requestsTotal, c.messagesTotal, c.wireBytes,
	)
	return c
}

// RecordRead counts one caller-visible read.
func (c *Collector) RecordRead(bytes int64, elapsed time.Duration) {
	c.readsTotal.Inc()
	c.readBytes.Add(float64(bytes))
	c.readDuration.Observe(elapsed.Seconds())
}

// RecordFetch counts one range fetch issued to the transport.
func (c *Collector) RecordFetch(byteRange types.Range, elapsed time.Duration) {
	c.fetchesTotal.Inc()
	c.fetchRangeSize.Observe(float64(byteRange.Length()))
	c.fetchDuration.Observe(elapsed.Seconds())
}

// RecordFetchBytes counts bytes actually pulled from the transport.
func (c *Collector) RecordFetchBytes(n int64) {
	c.fetchBytes.Add(float64(n))
}

// RecordFooter counts a footer cache serve.
func (c *Collector) RecordFooter(hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	c.footerTotal.WithLabelValues(outcome).Inc()
}

// RecordInPlaceSkip counts a forward seek served from the live stream.
func (c *Collector) RecordInPlaceSkip(bytes int64) {
	c.inPlaceSkips.Inc()
	c.inPlaceSkipBytes.Add(float64(bytes))
}

// RecordChecksumFailure counts a failed per-chunk CRC32C validation.
func (c *Collector) RecordChecksumFailure() {
	c.checksumFailures.Inc()
}

// RecordRetry counts one retry attempt.
func (c *Collector) RecordRetry(attempt int) {
	c.retriesTotal.Inc()
}

// Interceptor returns a wire observer that feeds the request counters.
func (c *Collector) Interceptor() types.Interceptor {
	return &promInterceptor{c: c}
}

type promInterceptor struct {
	c *Collector
}

func (p *promInterceptor) OnRequest(ev types.RequestEvent) {
	p.c.requestsTotal.WithLabelValues(string(ev.Kind)).Inc()
}

func (p *promInterceptor) OnMessage(ev types.RequestEvent) {
	p.c.messagesTotal.WithLabelValues(string(ev.Kind)).Inc()
	p.c.wireBytes.WithLabelValues(string(ev.Kind)).Add(float64(ev.WireBytes))
}

// Registry exposes the underlying registry for embedding into an existing
// exposition endpoint.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Server serves the collector over HTTP.
type Server struct {
	server *http.Server
}

// NewServer creates an exposition server for the collector.
func NewServer(c *Collector, port int, path string) *Server {
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{}))
	return &Server{
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
	}
}

// Start begins serving in the background.
func (s *Server) Start() {
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return
		}
	}()
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
