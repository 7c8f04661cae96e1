// Package journal persists state-change events to a relational audit log.
//
// The journal subscribes to the state store's event bus and writes one row
// per committed change. Writes are asynchronous and best-effort: a journal
// failure never blocks or rolls back the store commit it describes.
package journal

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/anthonyadame/DeepResearchAgent-sub002/internal/database"
	"github.com/anthonyadame/DeepResearchAgent-sub002/internal/metrics"
	"github.com/anthonyadame/DeepResearchAgent-sub002/store"
)

// StateChangeRecord is one committed state change.
type StateChangeRecord struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	EventID    string    `gorm:"size:36;index" json:"event_id"`
	Kind       string    `gorm:"size:32;index" json:"kind"`
	EntityType string    `gorm:"size:32;index:idx_entity" json:"entity_type"`
	EntityID   string    `gorm:"size:128;index:idx_entity" json:"entity_id"`
	Version    int64     `json:"version"`
	OldValue   string    `gorm:"type:text" json:"old_value,omitempty"`
	NewValue   string    `gorm:"type:text" json:"new_value,omitempty"`
	OccurredAt time.Time `gorm:"index" json:"occurred_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName sets the journal table name.
func (StateChangeRecord) TableName() string {
	return "state_change_journal"
}

// Config tunes the journal writer.
type Config struct {
	// Buffer is the event subscription buffer size.
	Buffer int `yaml:"buffer" json:"buffer"`

	// WriteRetries bounds transaction retries per record.
	WriteRetries int `yaml:"write_retries" json:"write_retries"`

	// WriteTimeout bounds each journal write.
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
}

// DefaultConfig returns the default journal configuration.
func DefaultConfig() Config {
	return Config{
		Buffer:       256,
		WriteRetries: 3,
		WriteTimeout: 5 * time.Second,
	}
}

// Journal consumes state-change events and records them durably.
type Journal struct {
	pool      *database.Pool
	collector *metrics.Collector
	logger    *zap.Logger
	config    Config

	events      <-chan store.StateChangeEvent
	unsubscribe func()

	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
}

// New creates a journal and migrates its schema.
func New(pool *database.Pool, collector *metrics.Collector, logger *zap.Logger, config Config) (*Journal, error) {
	if config.Buffer <= 0 {
		config.Buffer = DefaultConfig().Buffer
	}
	if config.WriteRetries <= 0 {
		config.WriteRetries = DefaultConfig().WriteRetries
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = DefaultConfig().WriteTimeout
	}

	if err := pool.DB().AutoMigrate(&StateChangeRecord{}); err != nil {
		return nil, err
	}

	return &Journal{
		pool:      pool,
		collector: collector,
		logger:    logger.With(zap.String("component", "journal")),
		config:    config,
	}, nil
}

// Start subscribes to the event bus and begins consuming.
func (j *Journal) Start(bus *store.EventBus) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.started {
		return
	}
	j.started = true

	j.events, j.unsubscribe = bus.Subscribe(j.config.Buffer)
	j.wg.Add(1)
	go j.consume()
}

// Stop unsubscribes and waits for in-flight writes to drain.
func (j *Journal) Stop() {
	j.mu.Lock()
	if !j.started {
		j.mu.Unlock()
		return
	}
	j.started = false
	unsubscribe := j.unsubscribe
	j.mu.Unlock()

	unsubscribe()
	j.wg.Wait()
}

func (j *Journal) consume() {
	defer j.wg.Done()
	for ev := range j.events {
		j.write(ev)
	}
}

func (j *Journal) write(ev store.StateChangeEvent) {
	record := &StateChangeRecord{
		ID:         uuid.NewString(),
		EventID:    ev.ID,
		Kind:       string(ev.Kind),
		EntityType: string(ev.EntityType),
		EntityID:   ev.EntityID,
		Version:    ev.Version,
		OldValue:   string(ev.OldValue),
		NewValue:   string(ev.NewValue),
		OccurredAt: ev.OccurredAt,
	}

	ctx, cancel := context.WithTimeout(context.Background(), j.config.WriteTimeout)
	defer cancel()

	err := j.pool.WithTransactionRetry(ctx, j.config.WriteRetries, func(tx *gorm.DB) error {
		return tx.Create(record).Error
	})
	if err != nil {
		j.collector.RecordJournalWrite("error")
		j.logger.Error("journal write failed",
			zap.String("entity_type", record.EntityType),
			zap.String("entity_id", record.EntityID),
			zap.Error(err),
		)
		return
	}
	j.collector.RecordJournalWrite("ok")
}

// History returns the journal for one entity, newest first.
func (j *Journal) History(ctx context.Context, entityType, entityID string, limit int) ([]StateChangeRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var records []StateChangeRecord
	err := j.pool.DB().WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("occurred_at DESC").
		Limit(limit).
		Find(&records).Error
	return records, err
}

// Recent returns the most recent journal entries across all entities.
func (j *Journal) Recent(ctx context.Context, limit int) ([]StateChangeRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var records []StateChangeRecord
	err := j.pool.DB().WithContext(ctx).
		Order("occurred_at DESC").
		Limit(limit).
		Find(&records).Error
	return records, err
}

// CountByEntity returns how many journal rows exist for one entity.
func (j *Journal) CountByEntity(ctx context.Context, entityType, entityID string) (int64, error) {
	var n int64
	err := j.pool.DB().WithContext(ctx).
		Model(&StateChangeRecord{}).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Count(&n).Error
	return n, err
}
