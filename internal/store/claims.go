package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// ErrClaimed indicates a posting key that another run already owns.
var ErrClaimed = errors.New("posting already claimed")

// ClaimsSchema creates the posting claim table.
const ClaimsSchema = `
CREATE TABLE IF NOT EXISTS posting_claims (
    key        TEXT        NOT NULL,
    namespace  TEXT        NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (namespace, key)
)`

// Claimer records posting keys so a request version is posted at most once
// even when two triggers race.
type Claimer interface {
	Claim(ctx context.Context, key string) error
	Release(ctx context.Context, key string) error
}

// ClaimKey identifies one posting of a request version.
func ClaimKey(rec Record) string {
	return fmt.Sprintf("%s:%s:%s", rec.Key, rec.State, rec.DateUpdated)
}

// PostgresClaims persists claims in posting_claims.
type PostgresClaims struct {
	pool      *pgxpool.Pool
	namespace string
}

// NewPostgresClaims constructs the claim table client.
func NewPostgresClaims(pool *pgxpool.Pool, namespace string) *PostgresClaims {
	return &PostgresClaims{pool: pool, namespace: namespace}
}

// EnsureSchema creates the claim table when missing.
func (c *PostgresClaims) EnsureSchema(ctx context.Context) error {
	if _, err := c.pool.Exec(ctx, ClaimsSchema); err != nil {
		return storeErr("ensure claims schema", "", err)
	}
	return nil
}

func (c *PostgresClaims) Claim(ctx context.Context, key string) error {
	if key == "" {
		return errors.New("claim key required")
	}
	_, err := c.pool.Exec(ctx, `INSERT INTO posting_claims (key, namespace, created_at) VALUES ($1, $2, $3)`, key, c.namespace, time.Now())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrClaimed
		}
		return storeErr("claim", key, err)
	}
	return nil
}

// Release drops a claim after a failed posting so the next run may retry.
func (c *PostgresClaims) Release(ctx context.Context, key string) error {
	if _, err := c.pool.Exec(ctx, `DELETE FROM posting_claims WHERE namespace=$1 AND key=$2`, c.namespace, key); err != nil {
		return storeErr("release", key, err)
	}
	return nil
}

// Cleanup removes claims older than the retention window.
func (c *PostgresClaims) Cleanup(ctx context.Context, olderThan time.Duration) error {
	cutoff := time.Now().Add(-olderThan)
	_, err := c.pool.Exec(ctx, `DELETE FROM posting_claims WHERE namespace=$1 AND created_at < $2`, c.namespace, cutoff)
	return err
}

// RedisClaims keeps claims as expiring keys.
type RedisClaims struct {
	client    redis.UniversalClient
	namespace string
	ttl       time.Duration
}

// NewRedisClaims constructs a Redis claimer; ttl zero keeps claims forever.
func NewRedisClaims(client redis.UniversalClient, namespace string, ttl time.Duration) *RedisClaims {
	return &RedisClaims{client: client, namespace: namespace, ttl: ttl}
}

func (c *RedisClaims) key(k string) string {
	return "fieldsync:" + c.namespace + ":claim:" + k
}

func (c *RedisClaims) Claim(ctx context.Context, key string) error {
	ok, err := c.client.SetNX(ctx, c.key(key), time.Now().UTC().Format(time.RFC3339), c.ttl).Result()
	if err != nil {
		return storeErr("claim", key, err)
	}
	if !ok {
		return ErrClaimed
	}
	return nil
}

func (c *RedisClaims) Release(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.key(key)).Err(); err != nil {
		return storeErr("release", key, err)
	}
	return nil
}

// MemoryClaims is an in-process Claimer.
type MemoryClaims struct {
	mu     sync.Mutex
	claims map[string]struct{}
}

// NewMemoryClaims constructs an empty claim set.
func NewMemoryClaims() *MemoryClaims {
	return &MemoryClaims{claims: map[string]struct{}{}}
}

func (c *MemoryClaims) Claim(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.claims[key]; ok {
		return ErrClaimed
	}
	c.claims[key] = struct{}{}
	return nil
}

func (c *MemoryClaims) Release(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.claims, key)
	return nil
}
