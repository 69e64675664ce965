package main

import (
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config is the chipletc configuration file
// (~/.config/chipletc/config.yaml). Pointer fields distinguish "not set"
// from explicit zero values.
type Config struct {
	DigitalChiplets     *int     `yaml:"digital_chiplets"`
	RRAMChiplets        *int     `yaml:"rram_chiplets"`
	ChunkBytes          *int     `yaml:"chunk_bytes"`
	DigitalLatencyScale *float64 `yaml:"digital_latency_scale"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	ServerAddress string `yaml:"server_address"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "chipletc", "config.yaml")
}

// LoadConfig reads the config file. Returns a zero Config if the file
// doesn't exist or fails to parse.
func LoadConfig() Config {
	path := configPath()
	if path == "" {
		return Config{}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}
	}
	return cfg
}

// applyGenerateConfig applies config file defaults to generate command
// variables when the corresponding CLI flag was not explicitly set.
func applyGenerateConfig(c *cli.Command, cfg Config,
	digitalChiplets, rramChiplets, chunkBytes *int64, latencyScale *float64,
) {
	if cfg.DigitalChiplets != nil && !c.IsSet("digital-chiplets") {
		*digitalChiplets = int64(*cfg.DigitalChiplets)
	}
	if cfg.RRAMChiplets != nil && !c.IsSet("rram-chiplets") {
		*rramChiplets = int64(*cfg.RRAMChiplets)
	}
	if cfg.ChunkBytes != nil && !c.IsSet("chunk-bytes") {
		*chunkBytes = int64(*cfg.ChunkBytes)
	}
	if cfg.DigitalLatencyScale != nil && !c.IsSet("digital-latency-scale") {
		*latencyScale = *cfg.DigitalLatencyScale
	}
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}

// applyServeConfig applies config file defaults to serve command variables.
func applyServeConfig(c *cli.Command, cfg Config, addr *string) {
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}
