package store_test

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/anthonyadame/DeepResearchAgent-sub002/internal/metrics"
	"github.com/anthonyadame/DeepResearchAgent-sub002/persistence"
	"github.com/anthonyadame/DeepResearchAgent-sub002/store"
)

type redisHarness struct {
	store *store.StateStore
	mr    *miniredis.Miniredis
}

// miniredisT 基于 miniredis 搭一个 redis 持久层的状态存储
func miniredisT(t *testing.T) *redisHarness {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	backend := persistence.NewRedisBackendWithClient(client, "dra:")

	collector := metrics.NewCollector("test_redis", zap.NewNop())
	cfg := store.DefaultConfig()
	cfg.Retry = fastRetry()

	st := store.New(backend, store.StaticGate{Score: 1.0}, collector, zap.NewNop(), cfg)
	t.Cleanup(func() {
		st.Close()
		backend.Close()
	})

	return &redisHarness{store: st, mr: mr}
}
