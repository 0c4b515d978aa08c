package config

import "time"

// ServerSettings holds configuration for the HTTP ingress server.
type ServerSettings struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	BodyLimit    int64         `mapstructure:"body_limit"` // bytes
	DevMode      bool          `mapstructure:"dev_mode"`   // include error detail in responses
}

func (s *ServerSettings) applyDefaults() {
	if s.Addr == "" {
		s.Addr = ":8080"
	}
	if s.ReadTimeout == 0 {
		s.ReadTimeout = 15 * time.Second
	}
	if s.WriteTimeout == 0 {
		s.WriteTimeout = 15 * time.Second
	}
	if s.BodyLimit == 0 {
		s.BodyLimit = 1 << 20 // 1 MiB
	}
}
