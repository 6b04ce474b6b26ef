// Package websocket serves one relay channel over WebSocket.
package websocket

import (
	"strings"
	"time"
)

type Config struct {
	Channel        string        `mapstructure:"-"`
	Addr           string        `mapstructure:"addr"`
	Path           string        `mapstructure:"path"`
	AllowAnyOrigin bool          `mapstructure:"allow_any_origin"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	ReadLimit      int64         `mapstructure:"read_limit"`
	// PongWait is how long a subscriber may stay silent before it is
	// dropped. Pings go out at nine tenths of it.
	PongWait time.Duration `mapstructure:"pong_wait"`
}

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = ":8081"
	}
	if c.Path == "" {
		c.Path = "/ws"
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = 32 << 20
	}
	if !c.AllowAnyOrigin && len(c.AllowedOrigins) == 0 {
		c.AllowAnyOrigin = true
	}
	return c
}

// originAllowed accepts an exact scheme://host match or a bare host match.
// Requests without an Origin header are not browsers and pass.
func originAllowed(cfg Config, origin string) bool {
	if cfg.AllowAnyOrigin {
		return true
	}
	origin = strings.TrimSpace(origin)
	if origin == "" {
		return true
	}
	origin = strings.TrimRight(origin, "/")
	originHost := strings.TrimPrefix(origin, "https://")
	originHost = strings.TrimPrefix(originHost, "http://")
	for _, allowed := range cfg.AllowedOrigins {
		a := strings.TrimRight(strings.TrimSpace(allowed), "/")
		if a == "" {
			continue
		}
		if strings.HasPrefix(a, "http://") || strings.HasPrefix(a, "https://") {
			if strings.EqualFold(a, origin) {
				return true
			}
			continue
		}
		if strings.EqualFold(a, originHost) {
			return true
		}
	}
	return false
}
