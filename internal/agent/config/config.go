package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	commonCfg "coflowd/internal/config"
	"coflowd/internal/logger"
	"coflowd/internal/validator"

	"github.com/spf13/viper"
)

// Config represents agent configuration
type Config struct {
	Agent     AgentConfig     `mapstructure:"agent"`
	Master    MasterConfig    `mapstructure:"master"`
	Heartbeat HeartbeatConfig `mapstructure:"heartbeat"`
	Export    ExportConfig    `mapstructure:"export"`
	Log       logger.Config   `mapstructure:"log"`
}

// AgentConfig represents the agent's identity and listen configuration
type AgentConfig struct {
	Host          string `mapstructure:"host"`
	ControlPort   int    `mapstructure:"control_port" validate:"required,min=1,max=65535"`
	DataPort      int    `mapstructure:"data_port" validate:"min=0,max=65535"`
	WebPort       int    `mapstructure:"web_port" validate:"min=0,max=65535"`
	PublicAddress string `mapstructure:"public_address"`
	HomeDir       string `mapstructure:"home_dir"`
	WorkDir       string `mapstructure:"work_dir"`
}

// MasterConfig represents the coordinator endpoint configuration
type MasterConfig struct {
	Address       string        `mapstructure:"address" validate:"required,url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	WatchInterval time.Duration `mapstructure:"watch_interval"`
	MaxFailures   int           `mapstructure:"max_failures"`
}

// HeartbeatConfig represents heartbeat configuration
type HeartbeatConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

// ExportConfig represents optional telemetry export configuration
type ExportConfig struct {
	Kafka KafkaConfig `mapstructure:"kafka"`
}

// KafkaConfig represents the Kafka heartbeat mirror configuration
type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// LoadConfig loads the agent configuration from file
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("agent")
	}
	// Add search paths
	v.AddConfigPath(commonCfg.InDot)
	v.AddConfigPath(commonCfg.InHome)
	v.AddConfigPath(commonCfg.InHomeDot)
	v.AddConfigPath(commonCfg.InEtc)

	v.SetConfigType("yaml")

	// Heartbeat is on unless explicitly disabled
	v.SetDefault("heartbeat.enabled", true)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Set defaults if not specified
	setDefaults(&config)

	// Validate configuration
	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default values if not specified
func setDefaults(config *Config) {
	if config.Agent.Host == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "localhost"
		}
		config.Agent.Host = hostname
	}

	if config.Agent.ControlPort == 0 {
		config.Agent.ControlPort = 1607
	}

	if config.Agent.DataPort == 0 {
		config.Agent.DataPort = config.Agent.ControlPort + 1
	}

	if config.Agent.WebPort == 0 {
		config.Agent.WebPort = 16017
	}

	if config.Agent.HomeDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		config.Agent.HomeDir = filepath.Join(home, "."+commonCfg.AppName)
	}

	if config.Master.Timeout == 0 {
		config.Master.Timeout = 30 * time.Second
	}

	if config.Master.WatchInterval == 0 {
		config.Master.WatchInterval = 5 * time.Second
	}

	if config.Master.MaxFailures == 0 {
		config.Master.MaxFailures = 3
	}

	if config.Heartbeat.Interval == 0 {
		config.Heartbeat.Interval = time.Second
	}

	if config.Export.Kafka.Enabled && config.Export.Kafka.Topic == "" {
		config.Export.Kafka.Topic = commonCfg.AppName + ".heartbeats"
	}

	config.Log.SetDefaults()
}

// validateConfig validates the configuration
func validateConfig(config *Config) error {
	if err := validator.New().Struct(config); err != nil {
		return err
	}

	if _, err := url.Parse(config.Master.Address); err != nil {
		return fmt.Errorf("master.address is not a valid URL: %w", err)
	}

	if config.Heartbeat.Interval < 100*time.Millisecond {
		return fmt.Errorf("heartbeat.interval must be at least 100ms")
	}

	if config.Export.Kafka.Enabled && len(config.Export.Kafka.Brokers) == 0 {
		return fmt.Errorf("export.kafka.brokers is required when the kafka mirror is enabled")
	}

	return config.Log.Validate()
}
