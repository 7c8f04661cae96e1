package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/anthonyadame/DeepResearchAgent-sub002/internal/tlsutil"
	"github.com/anthonyadame/DeepResearchAgent-sub002/state"
)

// RedisBackend is a Redis-based implementation of StateBackend.
// Suitable for distributed production deployments. Entities are stored as
// JSON strings without TTL; Redis is the authoritative tier, not a cache.
type RedisBackend struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisBackend creates a new Redis-based state backend
func NewRedisBackend(config Config) (*RedisBackend, error) {
	opts := &redis.Options{
		Addr:     fmt.Sprintf("%s:%d", config.Redis.Host, config.Redis.Port),
		Password: config.Redis.Password,
		DB:       config.Redis.DB,
		PoolSize: config.Redis.PoolSize,
	}
	if config.Redis.TLS {
		opts.TLSConfig = tlsutil.DefaultTLSConfig()
	}
	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	keyPrefix := config.Redis.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = "dra:"
	}

	return &RedisBackend{
		client:    client,
		keyPrefix: keyPrefix,
	}, nil
}

// NewRedisBackendWithClient wraps an existing client; used by tests
func NewRedisBackendWithClient(client *redis.Client, keyPrefix string) *RedisBackend {
	if keyPrefix == "" {
		keyPrefix = "dra:"
	}
	return &RedisBackend{client: client, keyPrefix: keyPrefix}
}

// Close closes the backend
func (b *RedisBackend) Close() error {
	return b.client.Close()
}

// Ping checks if the backend is healthy
func (b *RedisBackend) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *RedisBackend) get(ctx context.Context, t state.EntityType, id string, dest any) error {
	if id == "" {
		return ErrInvalidInput
	}
	data, err := b.client.Get(ctx, stateKey(b.keyPrefix, t, id)).Bytes()
	if err == redis.Nil {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("redis get %s/%s: %w", t, id, err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("unmarshal %s/%s: %w", t, id, err)
	}
	return nil
}

func (b *RedisBackend) set(ctx context.Context, t state.EntityType, id string, v any) error {
	if id == "" {
		return ErrInvalidInput
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s/%s: %w", t, id, err)
	}
	if err := b.client.Set(ctx, stateKey(b.keyPrefix, t, id), data, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s/%s: %w", t, id, err)
	}
	return nil
}

// GetAgentState retrieves an agent state
func (b *RedisBackend) GetAgentState(ctx context.Context, id string) (*state.AgentState, error) {
	var s state.AgentState
	if err := b.get(ctx, state.EntityAgent, id, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// SetAgentState persists an agent state
func (b *RedisBackend) SetAgentState(ctx context.Context, s *state.AgentState) error {
	if s == nil {
		return ErrInvalidInput
	}
	return b.set(ctx, state.EntityAgent, s.ID, s)
}

// GetResearchState retrieves a research state
func (b *RedisBackend) GetResearchState(ctx context.Context, id string) (*state.ResearchState, error) {
	var s state.ResearchState
	if err := b.get(ctx, state.EntityResearch, id, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// SetResearchState persists a research state
func (b *RedisBackend) SetResearchState(ctx context.Context, s *state.ResearchState) error {
	if s == nil {
		return ErrInvalidInput
	}
	return b.set(ctx, state.EntityResearch, s.ID, s)
}

// GetVerificationState retrieves a verification state
func (b *RedisBackend) GetVerificationState(ctx context.Context, id string) (*state.VerificationState, error) {
	var s state.VerificationState
	if err := b.get(ctx, state.EntityVerification, id, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// SetVerificationState persists a verification state
func (b *RedisBackend) SetVerificationState(ctx context.Context, s *state.VerificationState) error {
	if s == nil {
		return ErrInvalidInput
	}
	return b.set(ctx, state.EntityVerification, s.ID, s)
}

// GetSupervisionState retrieves a supervision state
func (b *RedisBackend) GetSupervisionState(ctx context.Context, id string) (*state.SupervisionState, error) {
	var s state.SupervisionState
	if err := b.get(ctx, state.EntitySupervision, id, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// SetSupervisionState persists a supervision state
func (b *RedisBackend) SetSupervisionState(ctx context.Context, s *state.SupervisionState) error {
	if s == nil {
		return ErrInvalidInput
	}
	return b.set(ctx, state.EntitySupervision, s.ID, s)
}
