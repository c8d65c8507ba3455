package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/voiceagentcore/internal/app"
	"github.com/MrWong99/voiceagentcore/internal/reliability"
	"github.com/MrWong99/voiceagentcore/internal/turn"
)

// ValidLLMProviderNames lists the any-llm-go backend names [Validate]
// recognises. Used only to warn about likely typos — an unrecognised
// name is not a hard error, since any-llm-go may add backends this list
// hasn't caught up with yet.
var ValidLLMProviderNames = []string{
	"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values. It returns
// a joined error listing all validation failures found; a provider name
// mentioned nowhere in [ValidLLMProviderNames] is logged via slog.Warn
// rather than failing.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if !cfg.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("mode %q is invalid; valid values: hybrid, memory-only", cfg.Mode))
	}

	if cfg.PrimaryAgentID == "" {
		errs = append(errs, errors.New("primary_agent_id is required"))
	}
	if cfg.PrimaryAgentName == "" {
		errs = append(errs, errors.New("primary_agent_name is required"))
	}
	if cfg.MemoryServiceBaseURL == "" {
		errs = append(errs, errors.New("memory_service_base_url is required"))
	}

	if cfg.Mode == ModeHybrid {
		if cfg.LLMProvider.Name == "" {
			errs = append(errs, errors.New("mode is hybrid but llm_provider.name is not configured"))
		} else if !slices.Contains(ValidLLMProviderNames, cfg.LLMProvider.Name) {
			slog.Warn("unrecognised llm_provider name — may be a typo or a newer any-llm-go backend",
				"name", cfg.LLMProvider.Name, "known", ValidLLMProviderNames)
		}
		if cfg.LLMProvider.Model == "" {
			errs = append(errs, errors.New("mode is hybrid but llm_provider.model is not configured"))
		}
	}

	if n := cfg.Reliability.BreakerThreshold; n < 0 {
		errs = append(errs, fmt.Errorf("reliability.breaker_threshold %d must not be negative", n))
	}
	if n := cfg.Reliability.MaxRetries; n < 0 {
		errs = append(errs, fmt.Errorf("reliability.max_retries %d must not be negative", n))
	}
	if n := cfg.HistoryWindow; n < 0 {
		errs = append(errs, fmt.Errorf("history_window %d must not be negative", n))
	}
	if n := cfg.MemoryRefreshEveryTurns; n < 0 {
		errs = append(errs, fmt.Errorf("memory_refresh_every_turns %d must not be negative", n))
	}

	return errors.Join(errs...)
}

// ToAppConfig converts the loaded, validated Config into an
// [app.Config]. Zero values (seconds fields left unset in YAML) pass
// through as zero, relying on app.Config.withDefaults and the
// reliability package's own defaults.
func (cfg *Config) ToAppConfig() app.Config {
	mode := cfg.Mode
	if mode == "" {
		mode = turn.ModeMemoryOnly
	}

	return app.Config{
		PrimaryAgentID:       cfg.PrimaryAgentID,
		PrimaryAgentName:     cfg.PrimaryAgentName,
		MemoryServiceBaseURL: cfg.MemoryServiceBaseURL,
		Mode:                 turn.Mode(mode),
		LLMProviderName:      cfg.LLMProvider.Name,
		LLMModel:             cfg.LLMProvider.Model,

		IdleTimeout:             time.Duration(cfg.IdleTimeoutSeconds) * time.Second,
		DrainGracePeriod:        0,
		MemoryRefreshEveryTurns: cfg.MemoryRefreshEveryTurns,
		HistoryWindow:           cfg.HistoryWindow,
		HealthProbeTimeout:      time.Duration(cfg.Reliability.HealthProbeTimeoutSeconds) * time.Second,

		Policy: reliability.Policy{
			MaxRetries:        cfg.Reliability.MaxRetries,
			PerAttemptTimeout: time.Duration(cfg.Reliability.PerAttemptTimeoutSeconds) * time.Second,
			BackoffSchedule:   cfg.Reliability.BackoffSchedule(),
		},
		BreakerThreshold: cfg.Reliability.BreakerThreshold,
		BreakerCooldown:  time.Duration(cfg.Reliability.BreakerCooldownSeconds) * time.Second,
	}
}
