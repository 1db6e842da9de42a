// Package config loads and validates the service configuration from a
// YAML file with environment variable expansion.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config is the main configuration structure for callbridge.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Twilio     TwilioConfig     `yaml:"twilio"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Backend    BackendConfig    `yaml:"backend"`
	Dialog     DialogConfig     `yaml:"dialog"`
	Sessions   SessionsConfig   `yaml:"sessions"`
	Logging    LoggingConfig    `yaml:"logging"`
	Tracing    TracingConfig    `yaml:"tracing"`
}

type ServerConfig struct {
	// Port the webhook server listens on.
	Port int `yaml:"port"`

	// PublicBaseURL is the externally reachable root used to build
	// absolute webhook callback URLs (e.g. "https://bot.example.com").
	// Required: without it the rendered documents would point Twilio at
	// unreachable callbacks.
	PublicBaseURL string `yaml:"public_base_url"`
}

type TwilioConfig struct {
	// AuthToken enables webhook signature verification when set.
	AuthToken string `yaml:"auth_token"`
}

type ClassifierConfig struct {
	// APIKey for the OpenAI-compatible completions endpoint.
	APIKey string `yaml:"api_key"`

	// BaseURL of the completions API root.
	BaseURL string `yaml:"base_url"`

	// Model used for intent classification.
	Model string `yaml:"model"`

	// TimeoutSeconds bounds each classification request.
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

type BackendConfig struct {
	// URL of the question-answering endpoint. Required.
	URL string `yaml:"url"`

	// TimeoutSeconds bounds each answer lookup.
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

type DialogConfig struct {
	WelcomePrompt     string `yaml:"welcome_prompt"`
	FollowUpPrompt    string `yaml:"follow_up_prompt"`
	RetryPrompt       string `yaml:"retry_prompt"`
	Goodbye           string `yaml:"goodbye"`
	InactivityGoodbye string `yaml:"inactivity_goodbye"`

	// MaxSilence is the number of consecutive empty listen windows
	// tolerated before disconnecting.
	MaxSilence int `yaml:"max_silence"`

	// ListenTimeoutSeconds is the Gather listen-window duration.
	ListenTimeoutSeconds int `yaml:"listen_timeout_seconds"`

	// SpeechTimeout is "auto" or a fixed number of seconds.
	SpeechTimeout string `yaml:"speech_timeout"`

	// Language is the speech recognition language tag.
	Language string `yaml:"language"`
}

type SessionsConfig struct {
	// SweepIntervalSeconds is how often the idle janitor runs.
	SweepIntervalSeconds int `yaml:"sweep_interval_seconds"`

	// IdleTimeoutSeconds is how long an abandoned call's session
	// survives before eviction.
	IdleTimeoutSeconds int `yaml:"idle_timeout_seconds"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type TracingConfig struct {
	// Endpoint is the OTLP gRPC collector address; empty disables tracing.
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
	Insecure     bool    `yaml:"insecure"`
}

// ApplyDefaults fills unset fields with production defaults. Prompt
// defaults mirror the scripts callers already hear in production.
func (c *Config) ApplyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Classifier.BaseURL == "" {
		c.Classifier.BaseURL = "https://api.groq.com/openai/v1"
	}
	if c.Classifier.Model == "" {
		c.Classifier.Model = "llama-3.3-70b-versatile"
	}
	if c.Classifier.TimeoutSeconds == 0 {
		c.Classifier.TimeoutSeconds = 10
	}
	if c.Backend.TimeoutSeconds == 0 {
		c.Backend.TimeoutSeconds = 20
	}
	if c.Dialog.WelcomePrompt == "" {
		c.Dialog.WelcomePrompt = "Welcome to LIC customer support. How can I help you today?"
	}
	if c.Dialog.FollowUpPrompt == "" {
		c.Dialog.FollowUpPrompt = "Do you have any other questions?"
	}
	if c.Dialog.RetryPrompt == "" {
		c.Dialog.RetryPrompt = "Are you still there? Please ask your question."
	}
	if c.Dialog.Goodbye == "" {
		c.Dialog.Goodbye = "Thank you for calling LIC. Have a wonderful day. Goodbye."
	}
	if c.Dialog.InactivityGoodbye == "" {
		c.Dialog.InactivityGoodbye = "I am disconnecting due to inactivity. Goodbye."
	}
	if c.Dialog.MaxSilence == 0 {
		c.Dialog.MaxSilence = 2
	}
	if c.Dialog.ListenTimeoutSeconds == 0 {
		c.Dialog.ListenTimeoutSeconds = 60
	}
	if c.Dialog.SpeechTimeout == "" {
		c.Dialog.SpeechTimeout = "auto"
	}
	if c.Dialog.Language == "" {
		c.Dialog.Language = "en-US"
	}
	if c.Sessions.SweepIntervalSeconds == 0 {
		c.Sessions.SweepIntervalSeconds = 60
	}
	if c.Sessions.IdleTimeoutSeconds == 0 {
		c.Sessions.IdleTimeoutSeconds = 600
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

// Validate rejects configurations the service cannot serve with. Missing
// callback or backend targets are fatal here rather than producing
// broken voice documents at call time.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.PublicBaseURL) == "" {
		return fmt.Errorf("server.public_base_url is required to build webhook callbacks")
	}
	u, err := url.Parse(c.Server.PublicBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("server.public_base_url %q is not an absolute URL", c.Server.PublicBaseURL)
	}
	if strings.TrimSpace(c.Backend.URL) == "" {
		return fmt.Errorf("backend.url is required")
	}
	if _, err := url.Parse(c.Backend.URL); err != nil {
		return fmt.Errorf("backend.url: %w", err)
	}
	if c.Dialog.MaxSilence < 1 {
		return fmt.Errorf("dialog.max_silence must be at least 1")
	}
	if c.Dialog.SpeechTimeout != "auto" {
		if _, err := time.ParseDuration(c.Dialog.SpeechTimeout + "s"); err != nil {
			return fmt.Errorf("dialog.speech_timeout must be \"auto\" or a number of seconds")
		}
	}
	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		return fmt.Errorf("tracing.sampling_rate must be between 0 and 1")
	}
	return nil
}

// CallbackURL joins the public base URL with a webhook path.
func (c *Config) CallbackURL(path string) string {
	return strings.TrimRight(c.Server.PublicBaseURL, "/") + path
}
