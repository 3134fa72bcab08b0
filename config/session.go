package config

import (
	"fmt"
	"strings"
	"time"
)

// SessionStoreKind selects the session store backend.
type SessionStoreKind string

const (
	// SessionStoreRedis keeps sessions in Redis and supports several replicas.
	SessionStoreRedis SessionStoreKind = "redis"
	// SessionStoreMemory keeps sessions in process memory.
	SessionStoreMemory SessionStoreKind = "memory"
)

// UnmarshalText implements encoding.TextUnmarshaler for SessionStoreKind.
func (k *SessionStoreKind) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "redis", "memory":
		*k = SessionStoreKind(v)
		return nil
	default:
		return fmt.Errorf("invalid SessionStoreKind: %q (valid options: redis, memory)", v)
	}
}

// SessionConfig controls browser sessions.
type SessionConfig struct {
	Store SessionStoreKind `env:"SESSION_STORE" envDefault:"redis"`
	// TTL is the rolling inactivity expiry of a session.
	TTL        time.Duration `env:"SESSION_TTL"         envDefault:"60s"`
	CookieName string        `env:"SESSION_COOKIE_NAME" envDefault:"portal_session"`
	KeyPrefix  string        `env:"SESSION_KEY_PREFIX"  envDefault:"portal:session:"`
	// SweepInterval is how often the memory store drops expired sessions.
	SweepInterval time.Duration `env:"SESSION_SWEEP_INTERVAL" envDefault:"30s"`
}

// Sanitize applies guardrails to session configuration values.
func (s *SessionConfig) Sanitize() {
	if s.Store == "" {
		s.Store = SessionStoreRedis
	}
	if s.TTL < time.Second {
		s.TTL = 60 * time.Second
	}
	if s.CookieName = strings.TrimSpace(s.CookieName); s.CookieName == "" {
		s.CookieName = "portal_session"
	}
	if s.SweepInterval <= 0 {
		s.SweepInterval = 30 * time.Second
	}
}
