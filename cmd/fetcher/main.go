package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"cityflow/neurotraff/config"
	"cityflow/neurotraff/metrics"
	"cityflow/neurotraff/provider"
	"cityflow/neurotraff/roads"
	"cityflow/neurotraff/services"
	"cityflow/neurotraff/tracing"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	samplesFetched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cityflow_fetcher_samples_fetched_total",
		Help: "Total number of flow samples fetched from the provider.",
	})
	samplesPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cityflow_fetcher_samples_published_total",
		Help: "Total number of flow samples published to MQTT.",
	})
	fetchFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cityflow_fetcher_fetch_failures_total",
		Help: "Total number of per-point fetch or publish failures.",
	})
	cycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cityflow_fetcher_cycle_duration_seconds",
		Help:    "Duration of a full polling cycle over every road.",
		Buckets: []float64{1, 2.5, 5, 10, 30, 60, 120},
	})
)

type roadFetcher interface {
	FetchRoad(ctx context.Context, road string, points []string, now time.Time) []provider.PointResult
}

type publisher interface {
	Publish(topic string, payload []byte) error
}

type mqttPublisher struct {
	client mqtt.Client
}

func (p mqttPublisher) Publish(topic string, payload []byte) error {
	token := p.client.Publish(topic, 1, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish to %s timed out", topic)
	}
	return token.Error()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	metricsAddr := getEnv("METRICS_ADDR", ":8080")
	window := services.AccessWindow{
		Start: getEnvInt("COLLECT_START_HOUR", 6),
		End:   getEnvInt("COLLECT_END_HOUR", 24),
	}

	shutdownTracing, err := tracing.Init(ctx, "cityflow-fetcher")
	if err != nil {
		log.Fatalf("tracing init failed: %v", err)
	}
	defer shutdownTracing()

	catalog, err := roads.LoadFile(cfg.Provider.CatalogPath)
	if err != nil {
		log.Fatalf("road catalog load failed: %v", err)
	}
	if cfg.Provider.APIKey == "" {
		log.Fatalf("PROVIDER_API_KEY is required")
	}
	client := provider.NewClient(provider.Options{
		BaseURL:     cfg.Provider.BaseURL,
		APIKey:      cfg.Provider.APIKey,
		Timeout:     cfg.Provider.Timeout,
		Retries:     cfg.Provider.Retries,
		Parallelism: cfg.Provider.Parallelism,
	})

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.MQTT.BrokerURL)
	opts.SetClientID("fetcher-" + time.Now().Format("20060102150405"))
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.OnConnectionLost = func(client mqtt.Client, err error) {
		log.Printf("mqtt connection lost: %v", err)
	}
	mq := mqtt.NewClient(opts)
	token := mq.Connect()
	token.Wait()
	if token.Error() != nil {
		log.Fatalf("mqtt connection failed: %v", token.Error())
	}
	defer mq.Disconnect(250)

	go metrics.Serve(metricsAddr)

	interval := fetchInterval()
	pub := mqttPublisher{client: mq}
	log.Printf("fetcher running: interval=%s roads=%d window=%d..%d UTC mqtt=%s",
		interval, len(catalog.Names()), window.Start, window.End, cfg.MQTT.BrokerURL)

	// Run first cycle immediately
	runCycle(ctx, client, catalog, pub, cfg.MQTT.TopicPrefix, window, time.Now())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			runCycle(ctx, client, catalog, pub, cfg.MQTT.TopicPrefix, window, time.Now())
		case <-ctx.Done():
			log.Printf("fetcher shutting down")
			return
		}
	}
}

type cycleStats struct {
	fetched   int
	published int
	failed    int
}

// runCycle polls every road once. Per-point failures are counted and
// logged and never abort the cycle.
func runCycle(ctx context.Context, fetcher roadFetcher, catalog *roads.Catalog, pub publisher, prefix string, window services.AccessWindow, now time.Time) cycleStats {
	var stats cycleStats
	if err := window.Check(now); err != nil {
		log.Printf("skipping cycle: %v", err)
		return stats
	}

	start := time.Now()
	defer func() {
		cycleDuration.Observe(time.Since(start).Seconds())
	}()

	ts := now.UTC().Truncate(time.Second)
	for _, road := range catalog.Roads() {
		if ctx.Err() != nil {
			return stats
		}
		topic := prefix + "/" + roads.Slug(road.Name)
		for _, r := range fetcher.FetchRoad(ctx, road.Name, road.Points, ts) {
			if r.Err != nil {
				stats.failed++
				fetchFailures.Inc()
				log.Printf("fetch failed road=%s point=%s: %v", road.Name, r.Point, r.Err)
				continue
			}
			stats.fetched++
			samplesFetched.Inc()

			data, err := json.Marshal(r.Sample)
			if err != nil {
				stats.failed++
				fetchFailures.Inc()
				log.Printf("json marshal failed road=%s point=%s: %v", road.Name, r.Point, err)
				continue
			}
			if err := pub.Publish(topic, data); err != nil {
				stats.failed++
				fetchFailures.Inc()
				log.Printf("mqtt publish failed topic=%s: %v", topic, err)
				continue
			}
			stats.published++
			samplesPublished.Inc()
		}
	}

	log.Printf("fetch cycle completed: %d fetched, %d published, %d failed (%.2fs)",
		stats.fetched, stats.published, stats.failed, time.Since(start).Seconds())
	return stats
}

// fetchInterval reads FETCH_INTERVAL_MIN; values below one minute fall back
// to the default since the ticker needs a positive period.
func fetchInterval() time.Duration {
	const defaultMin = 15
	n := getEnvInt("FETCH_INTERVAL_MIN", defaultMin)
	if n < 1 {
		log.Printf("invalid FETCH_INTERVAL_MIN=%d, using default %d", n, defaultMin)
		n = defaultMin
	}
	return time.Duration(n) * time.Minute
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("invalid %s=%q, using default %d", key, value, fallback)
		return fallback
	}
	return n
}
