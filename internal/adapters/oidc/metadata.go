package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
)

const metadataKey = "metadata"

// metadata is everything learned from the authority that later calls need.
type metadata struct {
	provider    *gooidc.Provider
	verifier    *gooidc.IDTokenVerifier
	endpoint    oauth2.Endpoint
	environment string
}

// CloudInstanceMetadata is one entry of the cloud instance discovery response.
type CloudInstanceMetadata struct {
	PreferredNetwork string   `json:"preferred_network"`
	PreferredCache   string   `json:"preferred_cache"`
	Aliases          []string `json:"aliases"`
}

// CloudDiscoveryDocument is the cloud instance discovery response.
type CloudDiscoveryDocument struct {
	TenantDiscoveryEndpoint string                  `json:"tenant_discovery_endpoint"`
	APIVersion              string                  `json:"api-version"`
	Metadata                []CloudInstanceMetadata `json:"metadata"`
}

// metadata returns the cached authority metadata, fetching it once. The fetch
// runs detached from ctx so a caller that goes away does not fail the other
// waiters; ctx only bounds how long this caller waits.
func (p *Provider) metadata(ctx context.Context) (*metadata, error) {
	p.mu.RLock()
	md := p.md
	p.mu.RUnlock()
	if md != nil {
		return md, nil
	}

	ch := p.group.DoChan(metadataKey, func() (any, error) {
		p.mu.RLock()
		cached := p.md
		p.mu.RUnlock()
		if cached != nil {
			return cached, nil
		}

		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
		defer cancel()
		fetched, err := p.fetchMetadata(fetchCtx)
		if err != nil {
			return nil, err
		}

		p.mu.Lock()
		p.md = fetched
		p.mu.Unlock()
		return fetched, nil
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("await authority metadata: %w", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*metadata), nil
	}
}

// fetchMetadata loads cloud instance discovery and the authority's OpenID
// configuration concurrently.
func (p *Provider) fetchMetadata(ctx context.Context) (*metadata, error) {
	ctx = gooidc.ClientContext(ctx, p.httpClient)

	var (
		op    *gooidc.Provider
		cloud *CloudDiscoveryDocument
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		op, err = gooidc.NewProvider(gctx, p.Issuer())
		if err != nil {
			return fmt.Errorf("oidc new provider: %w", err)
		}
		return nil
	})
	if p.cloudDiscoveryURL != "" {
		g.Go(func() error {
			var err error
			cloud, err = p.fetchCloudDiscovery(gctx)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &metadata{
		provider:    op,
		verifier:    op.Verifier(&gooidc.Config{ClientID: p.clientID}),
		endpoint:    op.Endpoint(),
		environment: p.environment(cloud),
	}, nil
}

func (p *Provider) fetchCloudDiscovery(ctx context.Context) (*CloudDiscoveryDocument, error) {
	u, err := url.Parse(p.cloudDiscoveryURL)
	if err != nil {
		return nil, fmt.Errorf("parse cloud discovery url: %w", err)
	}
	q := u.Query()
	q.Set("api-version", "1.1")
	q.Set("authorization_endpoint", p.authority+"/oauth2/v2.0/authorize")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build cloud discovery request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cloud discovery: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read cloud discovery response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cloud discovery: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	var doc CloudDiscoveryDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode cloud discovery response: %w", err)
	}
	return &doc, nil
}

// environment is the authority host, or the preferred cache alias reported by
// cloud instance discovery for that host.
func (p *Provider) environment(cloud *CloudDiscoveryDocument) string {
	host := ""
	if u, err := url.Parse(p.authority); err == nil {
		host = strings.ToLower(u.Hostname())
	}
	if cloud == nil {
		return host
	}
	for _, m := range cloud.Metadata {
		if slices.Contains(m.Aliases, host) && m.PreferredCache != "" {
			return m.PreferredCache
		}
	}
	return host
}
