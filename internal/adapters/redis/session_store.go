// Package redis provides Redis-based adapters for the account console.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	domainauth "github.com/acme/acct-console/internal/domain/auth"
	apperrors "github.com/acme/acct-console/internal/errors"
)

// DefaultKeyPrefix namespaces console session keys.
const DefaultKeyPrefix = "console:session:"

// scanBatch is the COUNT hint used when sweeping sessions.
const scanBatch = 500

var (
	// ErrNotFound is returned for unknown, expired or blank session IDs.
	ErrNotFound error = apperrors.NotFound("session not found")

	errMissingID = apperrors.Validation("session ID cannot be empty")
	errExpired   = apperrors.Validation("session is expired")
)

// SessionStore keeps console sessions, including the account API cookies
// they carry, in Redis. Key TTL follows the session's ExpiresAt.
type SessionStore struct {
	client redis.UniversalClient
	prefix string
}

// NewSessionStore returns a store using DefaultKeyPrefix.
func NewSessionStore(client redis.UniversalClient) *SessionStore {
	return NewSessionStoreWithPrefix(client, DefaultKeyPrefix)
}

// NewSessionStoreWithPrefix returns a store whose keys start with prefix.
func NewSessionStoreWithPrefix(client redis.UniversalClient, prefix string) *SessionStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &SessionStore{client: client, prefix: prefix}
}

func (s *SessionStore) key(id string) string { return s.prefix + id }

// Save writes sess, replacing any record with the same ID.
func (s *SessionStore) Save(ctx context.Context, sess domainauth.Session) error {
	ttl := time.Until(sess.ExpiresAt)
	switch {
	case sess.ID == "":
		return errMissingID
	case ttl <= 0:
		return errExpired
	}

	payload, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", sess.ID, err)
	}
	if err := s.client.Set(ctx, s.key(sess.ID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set session: %w", err)
	}
	return nil
}

// Get loads a session. A record past its ExpiresAt is removed and reported
// as ErrNotFound even if Redis has not evicted it yet.
func (s *SessionStore) Get(ctx context.Context, id string) (domainauth.Session, error) {
	if id == "" {
		return domainauth.Session{}, ErrNotFound
	}

	payload, err := s.client.Get(ctx, s.key(id)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return domainauth.Session{}, ErrNotFound
	case err != nil:
		return domainauth.Session{}, fmt.Errorf("redis get session: %w", err)
	}

	var sess domainauth.Session
	if err := json.Unmarshal(payload, &sess); err != nil {
		return domainauth.Session{}, fmt.Errorf("decode session %s: %w", id, err)
	}
	if sess.Expired(time.Now()) {
		if err := s.Delete(ctx, id); err != nil {
			return domainauth.Session{}, fmt.Errorf("drop expired session: %w", err)
		}
		return domainauth.Session{}, ErrNotFound
	}
	return sess, nil
}

// Delete removes a session. Unknown and blank IDs are not errors.
func (s *SessionStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	return s.client.Del(ctx, s.key(id)).Err()
}

// DeleteAll removes every key under the store prefix and returns how many
// were deleted. Cluster clients are swept master by master.
func (s *SessionStore) DeleteAll(ctx context.Context) (int, error) {
	var deleted atomic.Int64
	sweep := func(ctx context.Context, c redis.Cmdable) error {
		iter := c.Scan(ctx, 0, s.prefix+"*", scanBatch).Iterator()
		for iter.Next(ctx) {
			n, err := c.Del(ctx, iter.Val()).Result()
			if err != nil {
				return fmt.Errorf("redis del: %w", err)
			}
			deleted.Add(n)
		}
		return iter.Err()
	}

	var err error
	if cluster, ok := s.client.(*redis.ClusterClient); ok {
		err = cluster.ForEachMaster(ctx, func(ctx context.Context, node *redis.Client) error {
			return sweep(ctx, node)
		})
	} else {
		err = sweep(ctx, s.client)
	}
	return int(deleted.Load()), err
}

// Ping checks connectivity to Redis for readiness probes.
func (s *SessionStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
