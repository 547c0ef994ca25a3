package session

import "time"

// BackoffConfig defines retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines relay stream timeouts and dial retry policy.
type Config struct {
	DialTimeout     time.Duration
	HelloTimeout    time.Duration
	WriteTimeout    time.Duration
	MaxDialAttempts int
	Backoff         BackoffConfig
}

func DefaultConfig() Config {
	return Config{
		DialTimeout:     2 * time.Second,
		HelloTimeout:    5 * time.Second,
		WriteTimeout:    5 * time.Second,
		MaxDialAttempts: 5,
		Backoff: BackoffConfig{
			InitialDelay: 100 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     2 * time.Second,
			Jitter:       true,
		},
	}
}

// WithDefaults fills zero fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.DialTimeout <= 0 {
		c.DialTimeout = d.DialTimeout
	}
	if c.HelloTimeout <= 0 {
		c.HelloTimeout = d.HelloTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.MaxDialAttempts <= 0 {
		c.MaxDialAttempts = d.MaxDialAttempts
	}
	if c.Backoff.InitialDelay <= 0 && c.Backoff.MaxDelay <= 0 {
		c.Backoff = d.Backoff
	}
	return c
}
