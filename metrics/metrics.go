// Package metrics holds the serving-side prometheus instruments and the
// health/metrics listener shared by every binary.
package metrics

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	VerdictsServed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cityflow_api_verdicts_total",
		Help: "Verdict requests by outcome reason.",
	}, []string{"outcome"})
	VerdictCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cityflow_api_verdict_cache_hits_total",
		Help: "Verdicts answered from the Redis cache.",
	})
	PointFetchFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cityflow_api_point_fetch_failures_total",
		Help: "Provider fetches that failed while serving a verdict.",
	})
	VerdictDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cityflow_api_verdict_duration_seconds",
		Help:    "Time to evaluate one verdict, including provider fetches.",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
	})
)

// Serve exposes /metrics and /health on addr and blocks. Only a listener
// failure other than shutdown is fatal.
func Serve(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Printf("metrics server listening on %s", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("metrics server failed: %v", err)
	}
}
