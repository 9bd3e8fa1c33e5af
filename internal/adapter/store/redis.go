package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"switchboard/internal/domain"
)

// sessionKeyPrefix namespaces session hashes in the shared keyspace.
const sessionKeyPrefix = "session:"

// tsField is the reserved hash field carrying the last-write timestamp.
// Session data keys never collide with it because it is stripped on load.
const tsField = "_ts"

// RedisBackend stores each session as one hash: a field per top-level data
// key (values JSON-encoded) plus the timestamp field. Expiration is native —
// every write re-arms the key's TTL — so the session manager never sweeps
// this backend.
type RedisBackend struct {
	client *goredis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisBackend connects to the Redis at url (redis://host:port/db) and
// verifies the connection with a bounded ping.
func NewRedisBackend(url string, ttl time.Duration, logger *slog.Logger) (*RedisBackend, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := goredis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	logger.Info("redis session backend connected", "ttl", ttl)
	return &RedisBackend{client: client, ttl: ttl, logger: logger}, nil
}

// SetTTL changes the expiry applied on subsequent writes.
func (b *RedisBackend) SetTTL(ttl time.Duration) {
	b.ttl = ttl
}

// Load fetches a session hash. A missing key is (nil, nil).
func (b *RedisBackend) Load(ctx context.Context, id string) (*domain.SessionState, error) {
	fields, err := b.client.HGetAll(ctx, sessionKeyPrefix+id).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	state := &domain.SessionState{ID: id, Data: make(map[string]any, len(fields))}
	for field, raw := range fields {
		if field == tsField {
			if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
				state.Timestamp = ts
			}
			continue
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			b.logger.Warn("session field undecodable, dropping", "session_id", id, "field", field, "error", err)
			continue
		}
		state.Data[field] = v
	}
	return state, nil
}

// Save rewrites the full hash and re-arms its TTL. The delete-and-set runs
// in one pipeline so a concurrent reader on another node never observes a
// half-written session.
func (b *RedisBackend) Save(ctx context.Context, state *domain.SessionState) error {
	values := make(map[string]any, len(state.Data)+1)
	for k, v := range state.Data {
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode session field %q: %w", k, err)
		}
		values[k] = string(raw)
	}
	values[tsField] = state.Timestamp.UTC().Format(time.RFC3339Nano)

	key := sessionKeyPrefix + state.ID
	pipe := b.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, values)
	if b.ttl > 0 {
		pipe.Expire(ctx, key, b.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis save: %w", err)
	}
	return nil
}

// Delete removes a session, reporting whether it existed.
func (b *RedisBackend) Delete(ctx context.Context, id string) (bool, error) {
	n, err := b.client.Del(ctx, sessionKeyPrefix+id).Result()
	if err != nil {
		return false, fmt.Errorf("redis del: %w", err)
	}
	return n > 0, nil
}

// Close releases the client's connections.
func (b *RedisBackend) Close() error {
	return b.client.Close()
}
