package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cityflow/neurotraff/config"
	"cityflow/neurotraff/metrics"
	"cityflow/neurotraff/models"
	"cityflow/neurotraff/store"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	msgsReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cityflow_collector_messages_received_total",
		Help: "Total number of MQTT messages received by collector.",
	})
	msgsStored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cityflow_collector_messages_stored_total",
		Help: "Total number of samples newly inserted into Postgres.",
	})
	msgsDuplicate = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cityflow_collector_messages_duplicate_total",
		Help: "Total number of samples skipped because their id was already stored.",
	})
	msgsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cityflow_collector_messages_failed_total",
		Help: "Total number of messages rejected or failed to store.",
	})
)

type appender interface {
	Append(ctx context.Context, s models.FlowSample) (bool, error)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	dbURL := getEnv("DB_URL", cfg.Database.GetURL())
	mqttTopic := cfg.MQTT.TopicPrefix + "/+"
	metricsAddr := getEnv("METRICS_ADDR", ":8080")

	dbPool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		log.Fatalf("db pool init failed: %v", err)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(ctx); err != nil {
		log.Fatalf("db ping failed: %v", err)
	}

	writer := store.NewPgWriter(dbPool)
	if err := writer.Migrate(ctx); err != nil {
		log.Fatalf("db migrate failed: %v", err)
	}

	go metrics.Serve(metricsAddr)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.MQTT.BrokerURL)
	opts.SetClientID("collector-" + time.Now().Format("20060102150405"))
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetDefaultPublishHandler(func(client mqtt.Client, message mqtt.Message) {
		processMessage(ctx, writer, message.Payload())
	})
	opts.OnConnect = func(client mqtt.Client) {
		token := client.Subscribe(mqttTopic, 1, nil)
		token.Wait()
		if token.Error() != nil {
			log.Printf("mqtt subscribe error: %v", token.Error())
			return
		}
		log.Printf("collector subscribed to topic=%s", mqttTopic)
	}
	opts.OnConnectionLost = func(client mqtt.Client, err error) {
		log.Printf("mqtt connection lost: %v", err)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	token.Wait()
	if token.Error() != nil {
		log.Fatalf("mqtt connection failed: %v", token.Error())
	}

	log.Printf("collector running, mqtt=%s db=ok metrics=%s", cfg.MQTT.BrokerURL, metricsAddr)

	<-ctx.Done()
	log.Printf("collector shutting down")
	client.Disconnect(250)
}

var errMissingFields = errors.New("missing required fields in payload")

// decodeSample parses one MQTT payload. id, road and point are required; a
// missing timestamp is stamped with the receive time.
func decodeSample(payloadRaw []byte, received time.Time) (models.FlowSample, error) {
	var s models.FlowSample
	if err := json.Unmarshal(payloadRaw, &s); err != nil {
		return s, err
	}
	if s.ID == "" || s.Road == "" || s.Point == "" {
		return s, errMissingFields
	}
	if s.TS.IsZero() {
		s.TS = received.UTC()
	}
	return s, nil
}

func processMessage(ctx context.Context, w appender, payloadRaw []byte) {
	msgsReceived.Inc()

	s, err := decodeSample(payloadRaw, time.Now())
	if err != nil {
		msgsFailed.Inc()
		log.Printf("invalid payload: %v", err)
		return
	}

	inserted, err := w.Append(ctx, s)
	if err != nil {
		msgsFailed.Inc()
		log.Printf("db insert failed: %v", err)
		return
	}
	if !inserted {
		msgsDuplicate.Inc()
		return
	}
	msgsStored.Inc()
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}
