// Package persistence provides the remote authoritative tier of the state
// store: an addressable, versioned key-value store reachable over a remote
// call.
//
// Supported backends:
// - Memory: For development and testing (default)
// - Redis: For distributed production deployments
// - Mongo: For document-store deployments
//
// The backend interface is typed per entity and operation. Wire-level
// payloads stay plain JSON under "dra:state:<type>:<id>" keys so an existing
// remote service addressed by operation name can be pointed at the same data.
package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthonyadame/DeepResearchAgent-sub002/state"
)

// Common errors
var (
	ErrNotFound     = errors.New("not found")
	ErrStoreClosed  = errors.New("store is closed")
	ErrInvalidInput = errors.New("invalid input")
)

// BackendType represents the type of storage backend
type BackendType string

const (
	BackendMemory BackendType = "memory"
	BackendRedis  BackendType = "redis"
	BackendMongo  BackendType = "mongo"
)

// StateBackend is the typed remote-call interface for entity persistence.
// One method per entity/operation pair; the store package is the only
// component permitted to call it directly.
type StateBackend interface {
	GetAgentState(ctx context.Context, id string) (*state.AgentState, error)
	SetAgentState(ctx context.Context, s *state.AgentState) error

	GetResearchState(ctx context.Context, id string) (*state.ResearchState, error)
	SetResearchState(ctx context.Context, s *state.ResearchState) error

	GetVerificationState(ctx context.Context, id string) (*state.VerificationState, error)
	SetVerificationState(ctx context.Context, s *state.VerificationState) error

	GetSupervisionState(ctx context.Context, id string) (*state.SupervisionState, error)
	SetSupervisionState(ctx context.Context, s *state.SupervisionState) error

	// Ping checks if the backend is healthy
	Ping(ctx context.Context) error

	// Close closes the backend and releases resources
	Close() error
}

// RedisConfig contains Redis-specific configuration
type RedisConfig struct {
	// Host is the Redis server host
	Host string `json:"host" yaml:"host"`

	// Port is the Redis server port
	Port int `json:"port" yaml:"port"`

	// Password is the Redis password (optional)
	Password string `json:"password" yaml:"password"`

	// DB is the Redis database number
	DB int `json:"db" yaml:"db"`

	// PoolSize is the connection pool size
	PoolSize int `json:"pool_size" yaml:"pool_size"`

	// KeyPrefix is the prefix for all Redis keys
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix"`

	// TLS enables a hardened TLS client config for the connection
	TLS bool `json:"tls" yaml:"tls"`
}

// MongoConfig contains MongoDB-specific configuration
type MongoConfig struct {
	// URI is the MongoDB connection string
	URI string `json:"uri" yaml:"uri"`

	// Database is the database name
	Database string `json:"database" yaml:"database"`

	// Collection is the collection holding all entity documents
	Collection string `json:"collection" yaml:"collection"`
}

// Config is the base configuration for all backend implementations
type Config struct {
	// Type is the storage backend type
	Type BackendType `json:"type" yaml:"type"`

	// Redis configuration (only used when Type is "redis")
	Redis RedisConfig `json:"redis" yaml:"redis"`

	// Mongo configuration (only used when Type is "mongo")
	Mongo MongoConfig `json:"mongo" yaml:"mongo"`
}

// DefaultConfig returns the default backend configuration
func DefaultConfig() Config {
	return Config{
		Type: BackendMemory,
		Redis: RedisConfig{
			Host:      "localhost",
			Port:      6379,
			DB:        0,
			PoolSize:  10,
			KeyPrefix: "dra:",
		},
		Mongo: MongoConfig{
			URI:        "mongodb://localhost:27017",
			Database:   "deepresearch",
			Collection: "states",
		},
	}
}

// NewBackend creates a backend from config
func NewBackend(ctx context.Context, config Config) (StateBackend, error) {
	switch config.Type {
	case BackendMemory, "":
		return NewMemoryBackend(), nil
	case BackendRedis:
		return NewRedisBackend(config)
	case BackendMongo:
		return NewMongoBackend(ctx, config)
	default:
		return nil, fmt.Errorf("unknown backend type: %s", config.Type)
	}
}

// stateKey returns the wire-level key for an entity
func stateKey(prefix string, t state.EntityType, id string) string {
	return prefix + "state:" + string(t) + ":" + id
}
