package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server    ServerConfig    `mapstructure:"server" validate:"required"`
	Queue     QueueConfig     `mapstructure:"queue" validate:"required"`
	Generator GeneratorConfig `mapstructure:"generator" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port                   int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel               string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	ShutdownTimeoutSeconds int    `mapstructure:"shutdown_timeout_seconds" validate:"gte=1"`
}

// ShutdownTimeout returns the graceful shutdown budget.
func (c ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}

// QueueConfig contains settings for the job queue and its diagnostics.
type QueueConfig struct {
	// Profile enables a CPU profile around every job
	Profile bool `mapstructure:"profile"`
	// ProfileTopN is how many functions the profile report lists
	ProfileTopN int `mapstructure:"profile_top_n" validate:"gte=1,lte=200"`
	// MemorySampling enables peak memory figures in result stats
	MemorySampling bool `mapstructure:"memory_sampling"`
	// MemoryPollIntervalMS is the sampler's poll interval; zero disables sampling
	MemoryPollIntervalMS int `mapstructure:"memory_poll_interval_ms" validate:"gte=0"`
	// CollectStats appends timing stats to every result
	CollectStats bool `mapstructure:"collect_stats"`
	// ArgLogLimit caps rendered job arguments in failure logs
	ArgLogLimit int `mapstructure:"arg_log_limit" validate:"gte=1"`
	// RecentTasks is how many finished tasks the progress registry remembers
	RecentTasks int `mapstructure:"recent_tasks" validate:"gte=1"`
}

// MemoryPollInterval returns the sampler's poll interval.
func (c QueueConfig) MemoryPollInterval() time.Duration {
	return time.Duration(c.MemoryPollIntervalMS) * time.Millisecond
}

// GeneratorConfig contains settings for the generation pipeline.
type GeneratorConfig struct {
	// StepDelayMS is the simulated duration of one sampling step
	StepDelayMS int `mapstructure:"step_delay_ms" validate:"gte=0"`
	// MaxSteps bounds the steps a single request may ask for
	MaxSteps int `mapstructure:"max_steps" validate:"gte=1"`
}

// StepDelay returns the duration of one sampling step.
func (c GeneratorConfig) StepDelay() time.Duration {
	return time.Duration(c.StepDelayMS) * time.Millisecond
}
