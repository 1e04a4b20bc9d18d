package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Operator  OperatorConfig
	CORS      CORSConfig
	Provider  ProviderConfig
	Artifacts ArtifactsConfig
	Window    WindowConfig
	MQTT      MQTTConfig
	Serving   ServingConfig
}

type ServerConfig struct {
	Port        int
	MetricsAddr string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

// GetDSN is the key=value form gorm's postgres driver takes.
func (d DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

// GetURL is the postgres:// form pgxpool takes.
func (d DatabaseConfig) GetURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     "/" + d.Name,
		RawQuery: "sslmode=" + url.QueryEscape(d.SSLMode),
	}
	return u.String()
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret      string
	ExpiryHours int
}

// OperatorConfig is the single account allowed to read stored samples.
type OperatorConfig struct {
	Email        string
	PasswordHash string
}

type CORSConfig struct {
	AllowedOrigins string
}

// Origins splits AllowedOrigins on commas.
func (c CORSConfig) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

type ProviderConfig struct {
	BaseURL     string
	APIKey      string
	Timeout     time.Duration
	Retries     int
	Parallelism int
	CatalogPath string
}

// ArtifactsConfig locates the fitted pipeline and classifier. With Required
// set, the API refuses to start unless both load and agree on the schema.
type ArtifactsConfig struct {
	PipelinePath   string
	ClassifierPath string
	Required       bool
}

// WindowConfig bounds the UTC hours in which provider data may be fetched:
// StartHour <= hour < EndHour.
type WindowConfig struct {
	StartHour int
	EndHour   int
}

type MQTTConfig struct {
	BrokerURL   string
	TopicPrefix string
}

type ServingConfig struct {
	AllowPartial bool
	CacheTTL     time.Duration
}

func LoadConfig() (*Config, error) {
	serverPort, err := getIntEnv("SERVER_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}

	dbPort, err := getIntEnv("DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}

	redisPort, err := getIntEnv("REDIS_PORT", 6379)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_PORT: %w", err)
	}
	redisDB, err := getIntEnv("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	jwtExpiry, err := getIntEnv("JWT_EXPIRY_HOURS", 24)
	if err != nil {
		return nil, fmt.Errorf("invalid JWT_EXPIRY_HOURS: %w", err)
	}

	timeoutSec, err := getFloatEnv("PROVIDER_TIMEOUT_SEC", 10)
	if err != nil {
		return nil, fmt.Errorf("invalid PROVIDER_TIMEOUT_SEC: %w", err)
	}
	retries, err := getIntEnv("PROVIDER_RETRIES", 2)
	if err != nil {
		return nil, fmt.Errorf("invalid PROVIDER_RETRIES: %w", err)
	}
	parallelism, err := getIntEnv("PROVIDER_PARALLELISM", 4)
	if err != nil {
		return nil, fmt.Errorf("invalid PROVIDER_PARALLELISM: %w", err)
	}

	startHour, err := getIntEnv("WINDOW_START_HOUR", 5)
	if err != nil {
		return nil, fmt.Errorf("invalid WINDOW_START_HOUR: %w", err)
	}
	endHour, err := getIntEnv("WINDOW_END_HOUR", 24)
	if err != nil {
		return nil, fmt.Errorf("invalid WINDOW_END_HOUR: %w", err)
	}
	if startHour < 0 || endHour > 24 || startHour >= endHour {
		return nil, fmt.Errorf("invalid access window %d..%d", startHour, endHour)
	}

	allowPartial, err := getBoolEnv("ALLOW_PARTIAL", true)
	if err != nil {
		return nil, fmt.Errorf("invalid ALLOW_PARTIAL: %w", err)
	}
	requireModel, err := getBoolEnv("REQUIRE_MODEL", false)
	if err != nil {
		return nil, fmt.Errorf("invalid REQUIRE_MODEL: %w", err)
	}
	cacheTTLSec, err := getIntEnv("VERDICT_CACHE_TTL_SEC", 60)
	if err != nil {
		return nil, fmt.Errorf("invalid VERDICT_CACHE_TTL_SEC: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:        serverPort,
			MetricsAddr: getEnv("METRICS_ADDR", ":9090"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     dbPort,
			User:     getEnv("DB_USER", "cityflow"),
			Password: getEnv("DB_PASSWORD", "cityflow_dev_password"),
			Name:     getEnv("DB_NAME", "cityflow"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     redisPort,
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "cityflow-dev-secret"),
			ExpiryHours: jwtExpiry,
		},
		Operator: OperatorConfig{
			Email:        getEnv("OPERATOR_EMAIL", "ops@cityflow.local"),
			PasswordHash: getEnv("OPERATOR_PASSWORD_HASH", ""),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
		},
		Provider: ProviderConfig{
			BaseURL:     getEnv("PROVIDER_BASE_URL", "https://api.tomtom.com"),
			APIKey:      getEnv("PROVIDER_API_KEY", ""),
			Timeout:     time.Duration(timeoutSec * float64(time.Second)),
			Retries:     retries,
			Parallelism: parallelism,
			CatalogPath: getEnv("ROAD_CATALOG_PATH", ""),
		},
		Artifacts: ArtifactsConfig{
			PipelinePath:   getEnv("PIPELINE_ARTIFACT", "artifacts/traffic_pipeline.json"),
			ClassifierPath: getEnv("CLASSIFIER_ARTIFACT", "artifacts/classifier.json"),
			Required:       requireModel,
		},
		Window: WindowConfig{
			StartHour: startHour,
			EndHour:   endHour,
		},
		MQTT: MQTTConfig{
			BrokerURL:   getEnv("MQTT_URL", "tcp://localhost:1883"),
			TopicPrefix: strings.TrimSuffix(getEnv("MQTT_TOPIC_PREFIX", "cityflow/flow"), "/"),
		},
		Serving: ServingConfig{
			AllowPartial: allowPartial,
			CacheTTL:     time.Duration(cacheTTLSec) * time.Second,
		},
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getIntEnv(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	return parsed, nil
}

func getFloatEnv(key string, fallback float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	return strconv.ParseFloat(value, 64)
}

func getBoolEnv(key string, fallback bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	return strconv.ParseBool(value)
}
