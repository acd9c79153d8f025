// Package config loads daemon configuration and the declarative worker
// fleet file.
package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/butlernet/jobboard/pkg/agent"
)

// Config holds the boardd daemon configuration
type Config struct {
	ListenAddr              string `mapstructure:"listen_addr"`
	LogLevel                string `mapstructure:"log_level"`
	LogJSON                 bool   `mapstructure:"log_json"`
	DefaultBidWindowSeconds int    `mapstructure:"default_bid_window_seconds"`
	ExecuteOnAssign         bool   `mapstructure:"execute_on_assign"`
	FleetFile               string `mapstructure:"fleet_file"`
}

// Load reads configuration from the given file (optional), the working
// directory, and JOBBOARD_* environment variables.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)
	v.SetDefault("default_bid_window_seconds", 60)
	v.SetDefault("execute_on_assign", false)
	v.SetDefault("fleet_file", "")

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/jobboard")
		v.SetConfigName("boardd")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("JOBBOARD")
	v.AutomaticEnv()
	v.BindEnv("listen_addr", "JOBBOARD_LISTEN_ADDR")
	v.BindEnv("fleet_file", "JOBBOARD_FLEET_FILE")

	if err := v.ReadInConfig(); err != nil {
		// Missing config file is fine; defaults and env carry the daemon.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && cfgFile != "" {
			return nil, fmt.Errorf("failed to read config %s: %w", cfgFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// Fleet is a declarative set of in-process workers started with the daemon
type Fleet struct {
	Workers []agent.Config `yaml:"workers"`
}

// LoadFleet parses a worker fleet YAML file
func LoadFleet(path string) (*Fleet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fleet file %s: %w", path, err)
	}

	var fleet Fleet
	if err := yaml.Unmarshal(data, &fleet); err != nil {
		return nil, fmt.Errorf("failed to parse fleet file %s: %w", path, err)
	}
	return &fleet, nil
}
