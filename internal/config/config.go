// Package config loads the settings of the trajectory buffer service and the
// rollout worker from an optional YAML file and the environment.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"trajectory-rl/internal/cartpole"
)

// BufferConfig configures the trajectory buffer service.
type BufferConfig struct {
	Port     string           `mapstructure:"port"`
	LogLevel string           `mapstructure:"logLevel"`
	Buffer   RingBufferConfig `mapstructure:"buffer"`
}

// RingBufferConfig sizes the shared ring buffer.
type RingBufferConfig struct {
	MaxSteps            int    `mapstructure:"maxSteps"`
	DefaultBufferLength int    `mapstructure:"defaultBufferLength"`
	Device              string `mapstructure:"device"` // float64, float32
}

// WorkerConfig configures a rollout worker.
type WorkerConfig struct {
	WorkerID      string          `mapstructure:"workerId"`
	BufferURL     string          `mapstructure:"bufferUrl"`
	TrainerURL    string          `mapstructure:"trainerUrl"`
	BatchEpisodes int             `mapstructure:"batchEpisodes"`
	PolicyRefresh time.Duration   `mapstructure:"policyRefresh"`
	Seed          int64           `mapstructure:"seed"`
	Backoff       time.Duration   `mapstructure:"backoff"`
	LogLevel      string          `mapstructure:"logLevel"`
	Env           cartpole.Config `mapstructure:"env"`
}

// LoadBuffer reads the buffer service configuration. configFile may be
// empty, in which case only defaults and environment variables apply.
func LoadBuffer(configFile string) (*BufferConfig, error) {
	v := viper.New()
	v.SetDefault("port", "9001")
	v.SetDefault("logLevel", "info")
	v.SetDefault("buffer.maxSteps", 2048)
	v.SetDefault("buffer.defaultBufferLength", 1000)
	v.SetDefault("buffer.device", "float64")

	_ = v.BindEnv("port", "PORT")
	_ = v.BindEnv("logLevel", "LOG_LEVEL")
	_ = v.BindEnv("buffer.maxSteps", "BUFFER_MAX_STEPS", "BUFFER_CAPACITY")
	_ = v.BindEnv("buffer.defaultBufferLength", "BUFFER_DEFAULT_LENGTH")
	_ = v.BindEnv("buffer.device", "BUFFER_DEVICE")

	if err := read(v, configFile); err != nil {
		return nil, err
	}

	var cfg BufferConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.Buffer.MaxSteps <= 0 {
		return nil, fmt.Errorf("buffer.maxSteps must be greater than 0, got %d", cfg.Buffer.MaxSteps)
	}
	return &cfg, nil
}

// LoadWorker reads the rollout worker configuration.
func LoadWorker(configFile string) (*WorkerConfig, error) {
	v := viper.New()
	v.SetDefault("bufferUrl", "http://localhost:9001")
	v.SetDefault("trainerUrl", "http://localhost:9002")
	v.SetDefault("batchEpisodes", 8)
	v.SetDefault("policyRefresh", 5*time.Second)
	v.SetDefault("seed", time.Now().UnixNano())
	v.SetDefault("backoff", 500*time.Millisecond)
	v.SetDefault("logLevel", "info")
	v.SetDefault("env.maxSteps", 500)

	_ = v.BindEnv("workerId", "WORKER_ID")
	_ = v.BindEnv("bufferUrl", "BUFFER_URL")
	_ = v.BindEnv("trainerUrl", "TRAINER_URL")
	_ = v.BindEnv("batchEpisodes", "BATCH_EPISODES")
	_ = v.BindEnv("policyRefresh", "POLICY_REFRESH")
	_ = v.BindEnv("seed", "SEED")
	_ = v.BindEnv("backoff", "BACKOFF")
	_ = v.BindEnv("logLevel", "LOG_LEVEL")
	_ = v.BindEnv("env.maxSteps", "EPISODE_MAX_STEPS")

	if err := read(v, configFile); err != nil {
		return nil, err
	}

	var cfg WorkerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.BatchEpisodes <= 0 {
		return nil, fmt.Errorf("batchEpisodes must be greater than 0, got %d", cfg.BatchEpisodes)
	}
	return &cfg, nil
}

func read(v *viper.Viper, configFile string) error {
	if configFile == "" {
		return nil
	}
	v.SetConfigFile(configFile)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}
