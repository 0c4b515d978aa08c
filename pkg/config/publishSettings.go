package config

import "time"

// PublishSettings tunes the event publisher.
type PublishSettings struct {
	Source         string        `mapstructure:"source" validate:"required"` // service tag stamped on every envelope
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	Timeout        time.Duration `mapstructure:"timeout"`       // bound on a whole publish call
	CloseDelay     time.Duration `mapstructure:"close_delay"`   // delay before the per-call connection is closed
	MaxRetries     int           `mapstructure:"max_retries"`   // 0 disables the retry decorator
	RetryBackoff   time.Duration `mapstructure:"retry_backoff"` // initial backoff duration
}

func (p *PublishSettings) applyDefaults() {
	if p.ConnectTimeout == 0 {
		p.ConnectTimeout = 5 * time.Second
	}
	if p.Timeout == 0 {
		p.Timeout = 10 * time.Second
	}
	if p.CloseDelay == 0 {
		p.CloseDelay = 500 * time.Millisecond
	}
	if p.RetryBackoff == 0 {
		p.RetryBackoff = time.Second
	}
}
