package config

import (
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server  ServerConfig          `mapstructure:"server"`
	Storage StorageConfig         `mapstructure:"storage"`
	Cluster ClusterConfig         `mapstructure:"cluster"`
	Roles   map[string]RoleConfig `mapstructure:"roles"`
	Tempo   TempoConfig           `mapstructure:"tempo"`
	Logging LoggingConfig         `mapstructure:"logging"`
	Metrics MetricsConfig         `mapstructure:"metrics"`
}

// ServerConfig contains the admin HTTP server configuration
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

// StorageConfig contains the persisted state store configuration
type StorageConfig struct {
	Backend string `mapstructure:"backend"`
	DataDir string `mapstructure:"data_dir"`
}

// ClusterConfig identifies this process within the cluster
type ClusterConfig struct {
	// Mode is "coordinator" or "worker".
	Mode string `mapstructure:"mode"`
	// UnitID uniquely identifies this unit. Generated when empty.
	UnitID string `mapstructure:"unit_id"`
	// Address is this unit's advertised address.
	Address string `mapstructure:"address"`
	// Role is the worker's declared role; ignored in coordinator mode.
	// "all" expands to every known role.
	Role string `mapstructure:"role"`
	// ConfigPath is where a worker writes the received runtime config.
	ConfigPath string `mapstructure:"config_path"`
}

// RoleConfig declares replica requirements and capabilities for one role
type RoleConfig struct {
	MinReplicas int `mapstructure:"min_replicas"`
	// Capabilities classifies the role: "ingestion", "query", or both.
	// Readiness requires at least one ingestion-capable and one
	// query-capable role to be present.
	Capabilities []string `mapstructure:"capabilities"`
}

// TempoConfig contains workload-level configuration
type TempoConfig struct {
	// Receivers are the trace protocols enabled regardless of what
	// downstream tracing requirers ask for.
	Receivers []string `mapstructure:"receivers"`
	// TLSEnabled requires a complete certificate bundle before any
	// runtime config is published.
	TLSEnabled bool `mapstructure:"tls_enabled"`
	// RetentionHours is the total trace block retention.
	RetentionHours int    `mapstructure:"retention_hours"`
	S3Bucket       string `mapstructure:"s3_bucket"`
	// DashboardsDir holds dashboard and alert rule assets forwarded as-is
	// to observability relations.
	DashboardsDir string `mapstructure:"dashboards_dir"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig contains metrics configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LoadConfig loads configuration from file and environment
func LoadConfig(configPath string) (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
		viper.AddConfigPath("/etc/tempocoord")
	}

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvPrefix("TEMPOCOORD")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// DefaultRoles is the minimal deployment: every role required once.
// distributor/ingester carry the ingestion path, querier/query-frontend the
// query path, so losing either side makes the cluster unusable even when the
// total replica count looks healthy.
func DefaultRoles() map[string]RoleConfig {
	return map[string]RoleConfig{
		"querier":           {MinReplicas: 1, Capabilities: []string{"query"}},
		"query-frontend":    {MinReplicas: 1, Capabilities: []string{"query"}},
		"ingester":          {MinReplicas: 1, Capabilities: []string{"ingestion"}},
		"distributor":       {MinReplicas: 1, Capabilities: []string{"ingestion"}},
		"compactor":         {MinReplicas: 1},
		"metrics-generator": {MinReplicas: 1},
	}
}

// setDefaults sets default configuration values
func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "localhost")
	viper.SetDefault("server.port", 9180)
	viper.SetDefault("server.read_timeout", 30)
	viper.SetDefault("server.write_timeout", 30)

	// Storage defaults
	viper.SetDefault("storage.backend", "badger")
	viper.SetDefault("storage.data_dir", "./data")

	// Cluster defaults
	viper.SetDefault("cluster.mode", "coordinator")
	viper.SetDefault("cluster.unit_id", "")
	viper.SetDefault("cluster.address", "")
	viper.SetDefault("cluster.role", "all")
	viper.SetDefault("cluster.config_path", "/etc/tempo/tempo.yaml")

	// Tempo defaults
	viper.SetDefault("tempo.receivers", []string{"otlp_http", "otlp_grpc"})
	viper.SetDefault("tempo.tls_enabled", false)
	viper.SetDefault("tempo.retention_hours", 720)
	viper.SetDefault("tempo.s3_bucket", "tempo")
	viper.SetDefault("tempo.dashboards_dir", "")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")

	// Metrics defaults
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")
}

// validateConfig validates the configuration
func validateConfig(config *Config) error {
	config.Storage.DataDir = filepath.Clean(config.Storage.DataDir)

	if config.Cluster.Mode != "coordinator" && config.Cluster.Mode != "worker" {
		return fmt.Errorf("cluster.mode must be coordinator or worker, got %q", config.Cluster.Mode)
	}

	if config.Cluster.UnitID == "" {
		config.Cluster.UnitID = uuid.NewString()
	}

	if len(config.Roles) == 0 {
		config.Roles = DefaultRoles()
	}
	for name, role := range config.Roles {
		if role.MinReplicas < 0 {
			return fmt.Errorf("roles.%s.min_replicas must not be negative", name)
		}
		for _, cap := range role.Capabilities {
			if cap != "ingestion" && cap != "query" {
				return fmt.Errorf("roles.%s: unknown capability %q", name, cap)
			}
		}
	}

	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	if config.Tempo.RetentionHours <= 0 {
		return fmt.Errorf("tempo.retention_hours must be positive")
	}

	return nil
}

// GetDefaultConfig returns a default configuration
func GetDefaultConfig() *Config {
	setDefaults()

	var config Config
	viper.Unmarshal(&config)
	validateConfig(&config)

	return &config
}
