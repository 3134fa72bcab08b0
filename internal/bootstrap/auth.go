package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/spie-ics/meraki-captive-portal/config"
	"github.com/spie-ics/meraki-captive-portal/internal/adapters/devauth"
	"github.com/spie-ics/meraki-captive-portal/internal/adapters/memory"
	"github.com/spie-ics/meraki-captive-portal/internal/adapters/oidc"
	redisadapter "github.com/spie-ics/meraki-captive-portal/internal/adapters/redis"
	domainauth "github.com/spie-ics/meraki-captive-portal/internal/domain/auth"
	"github.com/spie-ics/meraki-captive-portal/internal/observability/statsd"
	"github.com/spie-ics/meraki-captive-portal/internal/ports"
	"github.com/spie-ics/meraki-captive-portal/internal/service"
)

// cloudDiscoveryPath is appended to the cloud instance for instance discovery.
const cloudDiscoveryPath = "/common/discovery/instance"

// IdentityProviders holds the provider used by the auth service and, in mock
// mode, the dev provider that also serves the local authorize endpoint.
type IdentityProviders struct {
	Provider ports.IdentityProvider
	OIDC     *oidc.Provider
	Dev      *devauth.Provider
}

// BuildIdentityProvider creates the identity provider for the configured auth mode.
func BuildIdentityProvider(cfg config.AuthConfig) (IdentityProviders, error) {
	switch cfg.Mode {
	case config.AuthModeMock:
		dev, err := devauth.NewProvider(devauth.Config{
			Username:    cfg.DevAuth.Username,
			Name:        cfg.DevAuth.Name,
			TenantID:    cfg.DevAuth.TenantID,
			RedirectURL: cfg.RedirectURI(),
			LogoutURL:   "/",
		})
		if err != nil {
			return IdentityProviders{}, fmt.Errorf("create dev auth provider: %w", err)
		}
		return IdentityProviders{Provider: dev, Dev: dev}, nil

	case config.AuthModeOAuth:
		discoveryURL := ""
		if cfg.OIDC.CloudDiscovery {
			instance := strings.TrimRight(cfg.OIDC.CloudInstance, "/")
			if instance == "" {
				instance = config.DefaultCloudInstance
			}
			discoveryURL = instance + cloudDiscoveryPath
		}
		provider, err := oidc.NewProvider(oidc.ProviderConfig{
			ClientID:          cfg.OIDC.ClientID,
			ClientSecret:      cfg.OIDC.ClientSecret,
			Authority:         cfg.OIDC.AuthorityURL(),
			RedirectURL:       cfg.RedirectURI(),
			Scopes:            cfg.OIDC.Scopes(),
			LogoutURL:         cfg.OIDC.LogoutURL,
			CloudDiscoveryURL: discoveryURL,
			Timeout:           cfg.OIDC.Timeout,
		})
		if err != nil {
			return IdentityProviders{}, fmt.Errorf("create oidc provider: %w", err)
		}
		return IdentityProviders{Provider: provider, OIDC: provider}, nil

	default:
		return IdentityProviders{}, fmt.Errorf("unsupported auth mode %q", cfg.Mode)
	}
}

// SessionStoreConfig contains configuration for the session store.
type SessionStoreConfig struct {
	Session     config.SessionConfig
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// BuildSessionStore creates the configured session store. The memory store
// starts a sweeper that runs until ctx is done.
func BuildSessionStore(ctx context.Context, cfg SessionStoreConfig) (ports.SessionStore, error) {
	switch cfg.Session.Store {
	case config.SessionStoreRedis:
		if cfg.RedisClient == nil {
			return nil, errors.New("redis session store requires a redis client")
		}
		return redisadapter.NewSessionStoreWithPrefix(cfg.RedisClient, cfg.Session.KeyPrefix), nil

	case config.SessionStoreMemory:
		if cfg.Logger != nil {
			cfg.Logger.WarnContext(ctx, "using in-memory session store; sessions are lost on restart and not shared between replicas")
		}
		store := memory.NewSessionStore()
		go store.RunSweeper(ctx, cfg.Session.SweepInterval)
		return store, nil

	default:
		return nil, fmt.Errorf("unsupported session store %q", cfg.Session.Store)
	}
}

// AuthConfig contains configuration for auth service.
type AuthConfig struct {
	Auth     config.AuthConfig
	Session  config.SessionConfig
	Provider ports.IdentityProvider
	Sessions ports.SessionStore
	Metrics  statsd.Sink
	Logger   *slog.Logger
}

// BuildAuthService creates the sign-in flow service.
func BuildAuthService(cfg AuthConfig) (*service.AuthService, error) {
	return service.NewAuthService(service.AuthServiceOptions{
		Provider:              cfg.Provider,
		Sessions:              cfg.Sessions,
		Validator:             domainauth.NewRedirectValidator(cfg.Auth.TrustedRedirectDomain),
		Metrics:               cfg.Metrics,
		Logger:                cfg.Logger,
		Scopes:                cfg.Auth.OIDC.Scopes(),
		RedirectURI:           cfg.Auth.RedirectURI(),
		PostLogoutRedirectURI: cfg.Auth.PostLogoutRedirectURI(),
		SessionTTL:            cfg.Session.TTL,
	})
}
