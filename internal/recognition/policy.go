package recognition

import (
	"errors"
	"fmt"
	"time"
)

// Default recovery parameters.
const (
	defaultNoSpeechDelay      = 300 * time.Millisecond
	defaultAbortedDelay       = 1 * time.Second
	defaultNetworkDelay       = 1 * time.Second
	defaultUnknownDelay       = 3 * time.Second
	defaultMaxUnknownRetries  = 3
	defaultMaxRestartAttempts = 3
	defaultRestartBackoff     = 250 * time.Millisecond
	defaultMaxRestartBackoff  = 2 * time.Second
)

// Policy configures how the [Controller] recovers from engine errors and
// unsolicited stream ends. Zero fields take their defaults in [Policy.withDefaults].
type Policy struct {
	// NoSpeechDelay is the pause before restarting after silence. Default: 300ms.
	NoSpeechDelay time.Duration `yaml:"no_speech_delay"`

	// AbortedDelay is the pause before restarting an aborted stream. Default: 1s.
	AbortedDelay time.Duration `yaml:"aborted_delay"`

	// NetworkDelay is the pause before restarting after a network error. Default: 1s.
	NetworkDelay time.Duration `yaml:"network_delay"`

	// UnknownDelay is the base pause for unclassified errors. The n-th
	// consecutive retry waits n × UnknownDelay. Default: 3s.
	UnknownDelay time.Duration `yaml:"unknown_delay"`

	// MaxUnknownRetries bounds consecutive retries of unclassified errors.
	// Default: 3.
	MaxUnknownRetries int `yaml:"max_unknown_retries"`

	// MaxRestartAttempts bounds how often a failed stream start is retried
	// before the session gives up. Default: 3.
	MaxRestartAttempts int `yaml:"max_restart_attempts"`

	// RestartBackoff is the initial pause between failed restart attempts.
	// Doubles each attempt up to MaxRestartBackoff. Default: 250ms.
	RestartBackoff time.Duration `yaml:"restart_backoff"`

	// MaxRestartBackoff caps RestartBackoff. Default: 2s.
	MaxRestartBackoff time.Duration `yaml:"max_restart_backoff"`
}

// DefaultPolicy returns the default recovery policy.
func DefaultPolicy() Policy {
	return Policy{}.withDefaults()
}

func (p Policy) withDefaults() Policy {
	if p.NoSpeechDelay <= 0 {
		p.NoSpeechDelay = defaultNoSpeechDelay
	}
	if p.AbortedDelay <= 0 {
		p.AbortedDelay = defaultAbortedDelay
	}
	if p.NetworkDelay <= 0 {
		p.NetworkDelay = defaultNetworkDelay
	}
	if p.UnknownDelay <= 0 {
		p.UnknownDelay = defaultUnknownDelay
	}
	if p.MaxUnknownRetries <= 0 {
		p.MaxUnknownRetries = defaultMaxUnknownRetries
	}
	if p.MaxRestartAttempts <= 0 {
		p.MaxRestartAttempts = defaultMaxRestartAttempts
	}
	if p.RestartBackoff <= 0 {
		p.RestartBackoff = defaultRestartBackoff
	}
	if p.MaxRestartBackoff <= 0 {
		p.MaxRestartBackoff = defaultMaxRestartBackoff
	}
	if p.MaxRestartBackoff < p.RestartBackoff {
		p.MaxRestartBackoff = p.RestartBackoff
	}
	return p
}

// Validate reports negative durations and counts. Zero values are valid and
// select the defaults.
func (p Policy) Validate() error {
	var errs []error
	durations := []struct {
		name string
		d    time.Duration
	}{
		{"no_speech_delay", p.NoSpeechDelay},
		{"aborted_delay", p.AbortedDelay},
		{"network_delay", p.NetworkDelay},
		{"unknown_delay", p.UnknownDelay},
		{"restart_backoff", p.RestartBackoff},
		{"max_restart_backoff", p.MaxRestartBackoff},
	}
	for _, d := range durations {
		if d.d < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative, got %s", d.name, d.d))
		}
	}
	if p.MaxUnknownRetries < 0 {
		errs = append(errs, fmt.Errorf("max_unknown_retries must not be negative, got %d", p.MaxUnknownRetries))
	}
	if p.MaxRestartAttempts < 0 {
		errs = append(errs, fmt.Errorf("max_restart_attempts must not be negative, got %d", p.MaxRestartAttempts))
	}
	return errors.Join(errs...)
}
