package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/anthonyadame/DeepResearchAgent-sub002/state"
)

// MongoBackend is a MongoDB-based implementation of StateBackend.
// All entities live in a single collection keyed by "<type>:<id>" with the
// JSON payload stored verbatim, matching the flat key-value wire shape of
// the other backends.
type MongoBackend struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// stateDoc is the MongoDB document shape for one entity
type stateDoc struct {
	Key       string    `bson:"_id"`
	Type      string    `bson:"type"`
	Payload   string    `bson:"payload"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// NewMongoBackend creates a new MongoDB-based state backend
func NewMongoBackend(ctx context.Context, config Config) (*MongoBackend, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(config.Mongo.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	db := config.Mongo.Database
	if db == "" {
		db = "deepresearch"
	}
	coll := config.Mongo.Collection
	if coll == "" {
		coll = "states"
	}

	return &MongoBackend{
		client: client,
		coll:   client.Database(db).Collection(coll),
	}, nil
}

// Close closes the backend
func (b *MongoBackend) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return b.client.Disconnect(ctx)
}

// Ping checks if the backend is healthy
func (b *MongoBackend) Ping(ctx context.Context) error {
	return b.client.Ping(ctx, nil)
}

func (b *MongoBackend) get(ctx context.Context, t state.EntityType, id string, dest any) error {
	if id == "" {
		return ErrInvalidInput
	}
	var doc stateDoc
	err := b.coll.FindOne(ctx, bson.M{"_id": stateKey("", t, id)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("mongo find %s/%s: %w", t, id, err)
	}
	if err := json.Unmarshal([]byte(doc.Payload), dest); err != nil {
		return fmt.Errorf("unmarshal %s/%s: %w", t, id, err)
	}
	return nil
}

func (b *MongoBackend) set(ctx context.Context, t state.EntityType, id string, v any) error {
	if id == "" {
		return ErrInvalidInput
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s/%s: %w", t, id, err)
	}
	doc := stateDoc{
		Key:       stateKey("", t, id),
		Type:      string(t),
		Payload:   string(data),
		UpdatedAt: time.Now().UTC(),
	}
	_, err = b.coll.ReplaceOne(ctx, bson.M{"_id": doc.Key}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("mongo replace %s/%s: %w", t, id, err)
	}
	return nil
}

// GetAgentState retrieves an agent state
func (b *MongoBackend) GetAgentState(ctx context.Context, id string) (*state.AgentState, error) {
	var s state.AgentState
	if err := b.get(ctx, state.EntityAgent, id, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// SetAgentState persists an agent state
func (b *MongoBackend) SetAgentState(ctx context.Context, s *state.AgentState) error {
	if s == nil {
		return ErrInvalidInput
	}
	return b.set(ctx, state.EntityAgent, s.ID, s)
}

// GetResearchState retrieves a research state
func (b *MongoBackend) GetResearchState(ctx context.Context, id string) (*state.ResearchState, error) {
	var s state.ResearchState
	if err := b.get(ctx, state.EntityResearch, id, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// SetResearchState persists a research state
func (b *MongoBackend) SetResearchState(ctx context.Context, s *state.ResearchState) error {
	if s == nil {
		return ErrInvalidInput
	}
	return b.set(ctx, state.EntityResearch, s.ID, s)
}

// GetVerificationState retrieves a verification state
func (b *MongoBackend) GetVerificationState(ctx context.Context, id string) (*state.VerificationState, error) {
	var s state.VerificationState
	if err := b.get(ctx, state.EntityVerification, id, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// SetVerificationState persists a verification state
func (b *MongoBackend) SetVerificationState(ctx context.Context, s *state.VerificationState) error {
	if s == nil {
		return ErrInvalidInput
	}
	return b.set(ctx, state.EntityVerification, s.ID, s)
}

// GetSupervisionState retrieves a supervision state
func (b *MongoBackend) GetSupervisionState(ctx context.Context, id string) (*state.SupervisionState, error) {
	var s state.SupervisionState
	if err := b.get(ctx, state.EntitySupervision, id, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// SetSupervisionState persists a supervision state
func (b *MongoBackend) SetSupervisionState(ctx context.Context, s *state.SupervisionState) error {
	if s == nil {
		return ErrInvalidInput
	}
	return b.set(ctx, state.EntitySupervision, s.ID, s)
}
