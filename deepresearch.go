// Package deepresearch wires the confidence-gated state store, the audit
// journal and the refinement supervisor into one engine with minimal
// boilerplate.
//
// Usage:
//
//	import "github.com/anthonyadame/DeepResearchAgent-sub002"
//
//	eng, err := deepresearch.New(ctx, cfg,
//	    deepresearch.WithEvaluator(myEvaluator),
//	    deepresearch.WithCritic(myCritic),
//	)
//	defer eng.Close(ctx)
//
// Collaborators (evaluator, critic, extractor) are caller-supplied; the
// engine never talks to an LLM on its own.
package deepresearch

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/anthonyadame/DeepResearchAgent-sub002/config"
	"github.com/anthonyadame/DeepResearchAgent-sub002/internal/database"
	"github.com/anthonyadame/DeepResearchAgent-sub002/internal/metrics"
	"github.com/anthonyadame/DeepResearchAgent-sub002/journal"
	"github.com/anthonyadame/DeepResearchAgent-sub002/persistence"
	"github.com/anthonyadame/DeepResearchAgent-sub002/store"
	"github.com/anthonyadame/DeepResearchAgent-sub002/supervisor"
)

// Option configures the engine created by [New].
type Option func(*options)

type options struct {
	logger    *zap.Logger
	gate      store.ConfidenceGate
	backend   persistence.StateBackend
	evaluator supervisor.QualityEvaluator
	critic    supervisor.RedTeamCritic
	extractor supervisor.FactExtractor
	journal   bool
}

// WithLogger sets a custom zap logger. Defaults to zap.NewNop.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithGate sets the confidence gate for all writes.
// Defaults to a static gate that accepts everything.
func WithGate(gate store.ConfidenceGate) Option {
	return func(o *options) { o.gate = gate }
}

// WithBackend overrides the persistence backend built from config.
func WithBackend(backend persistence.StateBackend) Option {
	return func(o *options) { o.backend = backend }
}

// WithEvaluator sets the quality evaluator collaborator.
func WithEvaluator(e supervisor.QualityEvaluator) Option {
	return func(o *options) { o.evaluator = e }
}

// WithCritic sets the red-team critic collaborator.
func WithCritic(c supervisor.RedTeamCritic) Option {
	return func(o *options) { o.critic = c }
}

// WithExtractor sets the fact extractor collaborator.
func WithExtractor(e supervisor.FactExtractor) Option {
	return func(o *options) { o.extractor = e }
}

// WithJournal enables the relational audit journal.
func WithJournal() Option {
	return func(o *options) { o.journal = true }
}

// Engine bundles the state store, supervisor and audit journal.
type Engine struct {
	store      *store.StateStore
	supervisor *supervisor.Supervisor
	journal    *journal.Journal
	pool       *database.Pool
	backend    persistence.StateBackend
	collector  *metrics.Collector
	logger     *zap.Logger
}

// New builds a fully wired engine from config.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.gate == nil {
		o.gate = store.StaticGate{Score: 1.0}
	}

	backend := o.backend
	if backend == nil {
		var err error
		backend, err = persistence.NewBackend(ctx, cfg.Persistence)
		if err != nil {
			return nil, err
		}
	}

	collector := metrics.NewCollector("deepresearch", o.logger)

	st := store.New(backend, o.gate, collector, o.logger, cfg.Store)

	eng := &Engine{
		store:     st,
		backend:   backend,
		collector: collector,
		logger:    o.logger,
	}

	if o.journal {
		pool, err := database.Open(cfg.Database, o.logger)
		if err != nil {
			st.Close()
			return nil, err
		}
		jrnl, err := journal.New(pool, collector, o.logger, cfg.Journal)
		if err != nil {
			pool.Close()
			st.Close()
			return nil, err
		}
		jrnl.Start(st.Events())
		eng.pool = pool
		eng.journal = jrnl
	}

	if o.evaluator != nil && o.critic != nil {
		eng.supervisor = supervisor.New(st, o.evaluator, o.critic, o.extractor,
			collector, o.logger, cfg.Supervisor)
	}

	return eng, nil
}

// Store returns the confidence-gated state store.
func (e *Engine) Store() *store.StateStore {
	return e.store
}

// Supervisor returns the refinement supervisor, or nil when no
// evaluator/critic pair was configured.
func (e *Engine) Supervisor() *supervisor.Supervisor {
	return e.supervisor
}

// Journal returns the audit journal, or nil when journaling is disabled.
func (e *Engine) Journal() *journal.Journal {
	return e.journal
}

// Metrics returns the Prometheus collector backing all components.
func (e *Engine) Metrics() *metrics.Collector {
	return e.collector
}

// Ping verifies the persistence backend and, when enabled, the journal
// database are reachable.
func (e *Engine) Ping(ctx context.Context) error {
	if err := e.store.Ping(ctx); err != nil {
		return err
	}
	if e.pool != nil {
		return e.pool.Ping(ctx)
	}
	return nil
}

// Close shuts the engine down: journal drains first so committed events
// are not lost, then the store and its backend.
func (e *Engine) Close(ctx context.Context) error {
	var errs []error

	if e.journal != nil {
		e.journal.Stop()
	}
	if err := e.store.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := e.backend.Close(); err != nil {
		errs = append(errs, err)
	}
	if e.pool != nil {
		if err := e.pool.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
