package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	// HTTP Configuration
	HTTPAddr     string `yaml:"http_addr"`
	MaxBodyBytes int64  `yaml:"max_body_bytes"`

	// Storage Configuration
	StoreBackend   string `yaml:"store_backend"` // clickhouse or memory
	ClickHouseAddr string `yaml:"clickhouse_addr"`
	ClickHouseDB   string `yaml:"clickhouse_db"`
	ClickHouseUser string `yaml:"clickhouse_user"`
	ClickHousePass string `yaml:"clickhouse_pass"`

	// MQTT Configuration
	MQTTEnabled        bool   `yaml:"mqtt_enabled"`
	MQTTBroker         string `yaml:"mqtt_broker"`
	MQTTClientID       string `yaml:"mqtt_client_id"`
	MQTTUsername       string `yaml:"mqtt_username"`
	MQTTPassword       string `yaml:"mqtt_password"`
	MQTTTopicTelemetry string `yaml:"mqtt_topic_telemetry"`
	MQTTTopicFault     string `yaml:"mqtt_topic_fault"`
	MQTTPresenceTopic  string `yaml:"mqtt_presence_topic"`

	// Kafka Configuration (disabled when no brokers are set)
	KafkaBrokers    []string `yaml:"kafka_brokers"`
	KafkaFaultTopic string   `yaml:"kafka_fault_topic"`

	// Pipeline
	MaxBatchRows int  `yaml:"max_batch_rows"`
	StrictAudit  bool `yaml:"strict_audit"`

	// Observability
	LogLevel     string `yaml:"log_level"`
	LogFormat    string `yaml:"log_format"`
	OTelExporter string `yaml:"otel_exporter"`
	OTelEndpoint string `yaml:"otel_endpoint"`
	ServiceName  string `yaml:"service_name"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		HTTPAddr:     ":8080",
		MaxBodyBytes: 8 << 20,

		StoreBackend:   "clickhouse",
		ClickHouseAddr: "localhost:9000",
		ClickHouseDB:   "pv",
		ClickHouseUser: "default",
		ClickHousePass: "",

		MQTTEnabled:        false,
		MQTTBroker:         "tcp://localhost:1883",
		MQTTClientID:       "pv-monitor",
		MQTTTopicTelemetry: "pv/+/telemetry",
		MQTTTopicFault:     "pv/{site_id}/fault",
		MQTTPresenceTopic:  "pv/monitor/status",

		KafkaFaultTopic: "pv.faults",

		MaxBatchRows: 1000,
		StrictAudit:  false,

		LogLevel:     "info",
		LogFormat:    "text",
		OTelExporter: "none",
		ServiceName:  "pv-monitor",
	}
}

// Load builds the configuration from defaults, the optional YAML file named by
// CONFIG_FILE, and finally environment variables (a .env file is loaded first if present).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(&cfg)
	normalize(&cfg)
	return &cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("unmarshal config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	// HTTP Configuration
	cfg.HTTPAddr = getEnv("HTTP_ADDR", cfg.HTTPAddr)
	cfg.MaxBodyBytes = int64(getEnvInt("MAX_BODY_BYTES", int(cfg.MaxBodyBytes)))

	// Storage Configuration
	cfg.StoreBackend = getEnv("STORE_BACKEND", cfg.StoreBackend)
	cfg.ClickHouseAddr = getEnv("CLICKHOUSE_ADDR", cfg.ClickHouseAddr)
	cfg.ClickHouseDB = getEnv("CLICKHOUSE_DB", cfg.ClickHouseDB)
	cfg.ClickHouseUser = getEnv("CLICKHOUSE_USER", cfg.ClickHouseUser)
	cfg.ClickHousePass = getEnv("CLICKHOUSE_PASS", cfg.ClickHousePass)

	// MQTT Configuration
	cfg.MQTTEnabled = getEnvBool("MQTT_ENABLED", cfg.MQTTEnabled)
	cfg.MQTTBroker = getEnv("MQTT_BROKER", cfg.MQTTBroker)
	cfg.MQTTClientID = getEnv("MQTT_CLIENT_ID", cfg.MQTTClientID)
	cfg.MQTTUsername = getEnv("MQTT_USERNAME", cfg.MQTTUsername)
	cfg.MQTTPassword = getEnv("MQTT_PASSWORD", cfg.MQTTPassword)
	cfg.MQTTTopicTelemetry = getEnv("MQTT_TOPIC_TELEMETRY", cfg.MQTTTopicTelemetry)
	cfg.MQTTTopicFault = getEnv("MQTT_TOPIC_FAULT", cfg.MQTTTopicFault)
	cfg.MQTTPresenceTopic = getEnv("MQTT_PRESENCE_TOPIC", cfg.MQTTPresenceTopic)

	// Kafka Configuration
	cfg.KafkaBrokers = getEnvList("KAFKA_BROKERS", cfg.KafkaBrokers)
	cfg.KafkaFaultTopic = getEnv("KAFKA_FAULT_TOPIC", cfg.KafkaFaultTopic)

	// Pipeline
	cfg.MaxBatchRows = getEnvInt("MAX_BATCH_ROWS", cfg.MaxBatchRows)
	cfg.StrictAudit = getEnvBool("STRICT_AUDIT", cfg.StrictAudit)

	// Observability
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnv("LOG_FORMAT", cfg.LogFormat)
	cfg.OTelExporter = getEnv("OTEL_EXPORTER", cfg.OTelExporter)
	cfg.OTelEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTelEndpoint)
	cfg.ServiceName = getEnv("SERVICE_NAME", cfg.ServiceName)
}

func normalize(cfg *Config) {
	def := Default()
	if cfg.MaxBatchRows <= 0 {
		cfg.MaxBatchRows = def.MaxBatchRows
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = def.MaxBodyBytes
	}
	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(cfg.StoreBackend))
	if cfg.StoreBackend != "memory" {
		cfg.StoreBackend = def.StoreBackend
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = def.ServiceName
	}
	if cfg.KafkaFaultTopic == "" {
		cfg.KafkaFaultTopic = def.KafkaFaultTopic
	}
}

// KafkaEnabled reports whether fault alerts should be written to Kafka.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		slog.Warn("failed to parse env as int, using default", "key", key, "error", err)
		return defaultValue
	}
	return intValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		slog.Warn("failed to parse env as bool, using default", "key", key, "error", err)
		return defaultValue
	}
	return boolValue
}

// getEnvList splits a comma separated value, dropping empty entries.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
