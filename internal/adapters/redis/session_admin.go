package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	domainauth "github.com/spie-ics/meraki-captive-portal/internal/domain/auth"
)

const scanBatch = 1000

// SessionEntry describes one stored session for operator tooling.
type SessionEntry struct {
	Key     string
	Session domainauth.Session
	TTL     time.Duration
	// Corrupt is set when the stored value could not be decoded.
	Corrupt bool
}

// Prefix returns the key prefix sessions are stored under.
func (s *SessionStore) Prefix() string { return s.prefix }

func (s *SessionStore) keys(ctx context.Context) ([]string, error) {
	iter := s.client.Scan(ctx, 0, s.prefix+"*", scanBatch).Iterator()
	keys := make([]string, 0)
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan redis: %w", err)
	}
	return keys, nil
}

// List returns up to limit stored sessions (0 means no limit) and the total
// number of matching keys.
func (s *SessionStore) List(ctx context.Context, limit int) ([]SessionEntry, int, error) {
	keys, err := s.keys(ctx)
	if err != nil {
		return nil, 0, err
	}

	entries := make([]SessionEntry, 0, min(len(keys), max(limit, 0)))
	for _, key := range keys {
		if limit > 0 && len(entries) >= limit {
			break
		}
		entry := SessionEntry{Key: key}
		raw, getErr := s.client.Get(ctx, key).Bytes()
		if getErr != nil {
			// Expired between SCAN and GET.
			continue
		}
		if jsonErr := json.Unmarshal(raw, &entry.Session); jsonErr != nil {
			entry.Corrupt = true
			entry.Session.ID = strings.TrimPrefix(key, s.prefix)
		}
		if ttl, ttlErr := s.client.TTL(ctx, key).Result(); ttlErr == nil {
			entry.TTL = ttl
		}
		entries = append(entries, entry)
	}
	return entries, len(keys), nil
}

// Purge deletes every stored session and returns how many keys matched.
// With dryRun set nothing is deleted.
func (s *SessionStore) Purge(ctx context.Context, dryRun bool) (int, error) {
	keys, err := s.keys(ctx)
	if err != nil {
		return 0, err
	}
	if dryRun || len(keys) == 0 {
		return len(keys), nil
	}
	for start := 0; start < len(keys); start += 100 {
		end := min(start+100, len(keys))
		if err := s.client.Del(ctx, keys[start:end]...).Err(); err != nil {
			return 0, fmt.Errorf("delete redis keys: %w", err)
		}
	}
	return len(keys), nil
}
