package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the server and gateway tunables loaded from an optional YAML
// file. Everything has a working default; the file only overrides.
type Config struct {
	Gateway struct {
		PingIntervalSec  int `yaml:"ping_interval_sec"`
		ReadTimeoutSec   int `yaml:"read_timeout_sec"`
		WriteTimeoutSec  int `yaml:"write_timeout_sec"`
		MaxMessageBytes  int `yaml:"max_message_bytes"`
		BroadcastBufSize int `yaml:"broadcast_buf_size"`
	} `yaml:"gateway"`
	Outbox struct {
		NotifyChannel       string `yaml:"notify_channel"`
		FallbackIntervalSec int    `yaml:"fallback_interval_sec"`
		BatchSize           int32  `yaml:"batch_size"`
	} `yaml:"outbox"`
	Orchestrator struct {
		BatchSize int32 `yaml:"batch_size"`
	} `yaml:"orchestrator"`
}

func loadConfig(path string) (*Config, error) {
	var config Config
	if path == "" {
		return &config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &config, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func secondsOrDefault(secs int, def time.Duration) time.Duration {
	if secs <= 0 {
		return def
	}
	return time.Duration(secs) * time.Second
}
