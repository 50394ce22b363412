package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"dispatch-service/internal/service"

	"gopkg.in/yaml.v3"
)

// UnitSeed describes a unit created at startup.
type UnitSeed struct {
	ID   string  `yaml:"id"`
	Name string  `yaml:"name"`
	Lat  float64 `yaml:"lat"`
	Lng  float64 `yaml:"lng"`
}

// DynamoDBConfig names the tables backing the DynamoDB store.
type DynamoDBConfig struct {
	JobsTable  string `yaml:"jobs_table"`
	UnitsTable string `yaml:"units_table"`
	LogTable   string `yaml:"log_table"`
}

// Config holds all service configuration. Values come from an optional YAML
// file, with environment variables overriding on top.
type Config struct {
	Port                string                 `yaml:"port"`
	StorageType         string                 `yaml:"storage_type"` // memory or dynamodb
	AWSRegion           string                 `yaml:"aws_region"`
	DynamoDB            DynamoDBConfig         `yaml:"dynamodb"`
	KinesisStream       string                 `yaml:"kinesis_stream"`
	ConfirmGraceSeconds int                    `yaml:"confirm_grace_seconds"`
	StrictTransitions   bool                   `yaml:"strict_transitions"`
	Pricing             *service.PricingConfig `yaml:"pricing"`
	Units               []UnitSeed             `yaml:"units"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Port:        "8080",
		StorageType: "memory",
		AWSRegion:   "us-west-2",
		DynamoDB: DynamoDBConfig{
			JobsTable:  "dispatch-jobs",
			UnitsTable: "dispatch-units",
			LogTable:   "dispatch-activity-log",
		},
		ConfirmGraceSeconds: 30,
		Pricing:             service.DefaultPricingConfig(),
	}
}

// Load reads the config file at path (if non-empty) over the defaults, then
// applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// ConfirmGrace returns the deferred confirmation interval.
func (c *Config) ConfirmGrace() time.Duration {
	return time.Duration(c.ConfirmGraceSeconds) * time.Second
}

func (c *Config) applyEnv() {
	c.Port = getEnv("PORT", c.Port)
	c.StorageType = getEnv("STORAGE_TYPE", c.StorageType)
	c.AWSRegion = getEnv("AWS_REGION", c.AWSRegion)
	c.DynamoDB.JobsTable = getEnv("DYNAMODB_JOBS_TABLE", c.DynamoDB.JobsTable)
	c.DynamoDB.UnitsTable = getEnv("DYNAMODB_UNITS_TABLE", c.DynamoDB.UnitsTable)
	c.DynamoDB.LogTable = getEnv("DYNAMODB_LOG_TABLE", c.DynamoDB.LogTable)
	c.KinesisStream = getEnv("KINESIS_EVENTS_STREAM", c.KinesisStream)
	c.ConfirmGraceSeconds = getEnvInt("CONFIRM_GRACE_SECONDS", c.ConfirmGraceSeconds)
	c.StrictTransitions = getEnvBool("STRICT_TRANSITIONS", c.StrictTransitions)
}

// getEnv gets environment variable with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		slog.Warn("Invalid integer, using default", "key", key, "provided", value, "default", defaultValue)
		return defaultValue
	}
	return n
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1"
}
