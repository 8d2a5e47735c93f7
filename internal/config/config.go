package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	API       APIConfig
	Terminal  TerminalConfig
	Journal   JournalConfig
	Telemetry TelemetryConfig
	Port      string
}

type APIConfig struct {
	LiveURL string
	TestURL string
	// Timeout of zero means the HTTP client never gives up on its own.
	Timeout time.Duration
}

// BaseURL picks the API root for the requested mode.
func (c APIConfig) BaseURL(testMode bool) string {
	if testMode {
		return c.TestURL
	}
	return c.LiveURL
}

type TerminalConfig struct {
	LiveLocation string
	TestLocation string
	Simulated    bool
}

func (c TerminalConfig) Location(testMode bool) string {
	if testMode {
		return c.TestLocation
	}
	return c.LiveLocation
}

type JournalConfig struct {
	Brokers        []string
	Topic          string
	GroupID        string
	PostgresURL    string
	MigrationsPath string
}

type TelemetryConfig struct {
	ServiceName    string
	ServiceVersion string
	OTLPEndpoint   string
}

func Load(serviceName string) (*Config, error) {
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load(".env")

	timeout, err := getEnvAsDuration("DOORPOS_API_TIMEOUT", 0)
	if err != nil {
		return nil, err
	}

	return &Config{
		API: APIConfig{
			LiveURL: getEnv("DOORPOS_API_URL", "https://orders.scholacantorum.org/api"),
			TestURL: getEnv("DOORPOS_TEST_API_URL", "https://orders-test.scholacantorum.org/api"),
			Timeout: timeout,
		},
		Terminal: TerminalConfig{
			LiveLocation: getEnv("DOORPOS_TERMINAL_LOCATION", "tml_EPZV9AjTYoLTIs"),
			TestLocation: getEnv("DOORPOS_TEST_TERMINAL_LOCATION", "tml_EPZVrQJ9viIwM1"),
			Simulated:    getEnvAsBool("DOORPOS_TERMINAL_SIMULATED", false),
		},
		Journal: JournalConfig{
			Brokers:        splitList(os.Getenv("KAFKA_BROKERS")),
			Topic:          getEnv("SALES_TOPIC", "door.sales"),
			GroupID:        getEnv("SALES_GROUP_ID", "sale-journal"),
			PostgresURL:    os.Getenv("POSTGRES_URL"),
			MigrationsPath: getEnv("MIGRATIONS_PATH", "file://migrations"),
		},
		Telemetry: TelemetryConfig{
			ServiceName:    getEnv("OTEL_SERVICE_NAME", serviceName),
			ServiceVersion: getEnv("SERVICE_VERSION", "0.1.0"),
			OTLPEndpoint:   getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		},
		Port: os.Getenv("PORT"),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	return time.ParseDuration(raw)
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
