// Package config provides the configuration schema and loader for the
// voice agent orchestration core.
package config

import "time"

// Config is the root configuration structure, loaded from YAML via
// [Load] or [LoadFromReader].
type Config struct {
	Server ServerConfig `yaml:"server"`

	// PrimaryAgentID and PrimaryAgentName bind this process to one agent;
	// the Dispatch Gate rejects any job request naming a different agent.
	PrimaryAgentID   string `yaml:"primary_agent_id"`
	PrimaryAgentName string `yaml:"primary_agent_name"`

	MemoryServiceBaseURL string            `yaml:"memory_service_base_url"`
	LLMProvider          LLMProviderConfig `yaml:"llm_provider"`

	// Mode selects whether the fast path may ever be used. Default:
	// memory-only.
	Mode Mode `yaml:"mode"`

	IdleTimeoutSeconds      int `yaml:"idle_timeout_seconds"`
	MemoryRefreshEveryTurns int `yaml:"memory_refresh_every_turns"`
	HistoryWindow           int `yaml:"history_window"`

	Reliability ReliabilityConfig `yaml:"reliability"`
	Memory      MemoryConfig      `yaml:"memory"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the admin/health HTTP surface
	// listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Valid values: "debug", "info", "warn", "error".
	LogLevel LogLevel `yaml:"log_level"`
}

// LogLevel is a validated logging verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is one of the recognised log levels.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError, "":
		return true
	default:
		return false
	}
}

// Mode selects whether the fast path may ever be used.
type Mode string

const (
	ModeHybrid     Mode = "hybrid"
	ModeMemoryOnly Mode = "memory-only"
)

// IsValid reports whether m is one of the recognised modes.
func (m Mode) IsValid() bool {
	switch m {
	case ModeHybrid, ModeMemoryOnly, "":
		return true
	default:
		return false
	}
}

// LLMProviderConfig selects the any-llm-go backend for the fast path.
// Ignored entirely when Mode is memory-only.
type LLMProviderConfig struct {
	// Name is an any-llm-go provider name: openai, anthropic, gemini,
	// ollama, deepseek, mistral, groq, llamacpp, llamafile.
	Name string `yaml:"name"`

	// APIKey is decoded from the config file but is not passed on to the
	// provider: ToAppConfig does not carry it, and the provider always
	// authenticates via its well-known environment variable.
	APIKey string `yaml:"api_key"`

	Model string `yaml:"model"`
}

// ReliabilityConfig overrides the spec's ReliabilityPolicy defaults
// (maxRetries=2, perAttemptTimeout=10s, healthProbeTimeout=2s,
// breakerThreshold=3, breakerCooldown=30s, backoffSchedule=[2s, 4s]).
// A zero field means "use the default".
type ReliabilityConfig struct {
	MaxRetries                int   `yaml:"max_retries"`
	PerAttemptTimeoutSeconds  int   `yaml:"per_attempt_timeout_seconds"`
	HealthProbeTimeoutSeconds int   `yaml:"health_probe_timeout_seconds"`
	BreakerThreshold          int   `yaml:"breaker_threshold"`
	BreakerCooldownSeconds    int   `yaml:"breaker_cooldown_seconds"`
	BackoffScheduleSeconds    []int `yaml:"backoff_schedule_seconds"`
}

// BackoffSchedule converts BackoffScheduleSeconds to durations. Returns
// nil (meaning "use the executor's default") when unset.
func (r ReliabilityConfig) BackoffSchedule() []time.Duration {
	if len(r.BackoffScheduleSeconds) == 0 {
		return nil
	}
	out := make([]time.Duration, len(r.BackoffScheduleSeconds))
	for i, s := range r.BackoffScheduleSeconds {
		out[i] = time.Duration(s) * time.Second
	}
	return out
}

// MemoryConfig holds settings for the optional local snapshot fallback.
type MemoryConfig struct {
	// LocalCachePostgresDSN is decoded but not read by the process
	// wiring: ToAppConfig does not carry it and cmd/voiceagentcore
	// attaches no snapshot cache, so setting it does not enable
	// pkg/memory/localcache. A cache is attached only through
	// app.WithSnapshotCache. The memory service remains the only system
	// of record.
	LocalCachePostgresDSN string `yaml:"local_cache_postgres_dsn"`
}
