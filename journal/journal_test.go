package journal_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/anthonyadame/DeepResearchAgent-sub002/internal/database"
	"github.com/anthonyadame/DeepResearchAgent-sub002/internal/metrics"
	"github.com/anthonyadame/DeepResearchAgent-sub002/journal"
	"github.com/anthonyadame/DeepResearchAgent-sub002/persistence"
	"github.com/anthonyadame/DeepResearchAgent-sub002/retry"
	"github.com/anthonyadame/DeepResearchAgent-sub002/state"
	"github.com/anthonyadame/DeepResearchAgent-sub002/store"
	"github.com/anthonyadame/DeepResearchAgent-sub002/testutil"
)

func newJournalHarness(t *testing.T) (*journal.Journal, *store.StateStore) {
	t.Helper()

	dbCfg := database.DefaultConfig()
	dbCfg.Driver = database.DriverSQLite
	dbCfg.DSN = filepath.Join(t.TempDir(), "journal_test.db")
	dbCfg.HealthCheckInterval = 0

	pool, err := database.Open(dbCfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	backend := persistence.NewMemoryBackend()
	collector := metrics.NewCollector("test", zap.NewNop())
	storeCfg := store.DefaultConfig()
	storeCfg.Retry = &retry.Policy{MaxRetries: 1, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2.0}
	st := store.New(backend, store.StaticGate{Score: 1.0}, collector, zap.NewNop(), storeCfg)

	j, err := journal.New(pool, collector, zap.NewNop(), journal.DefaultConfig())
	require.NoError(t, err)

	j.Start(st.Events())
	t.Cleanup(func() {
		j.Stop()
		st.Close()
		backend.Close()
	})
	return j, st
}

func TestJournal_RecordsCommittedChanges(t *testing.T) {
	j, st := newJournalHarness(t)
	ctx := testutil.TestContext(t)

	rs := testutil.NewResearchFixture("r1")
	require.NoError(t, st.SetResearchState(ctx, rs))
	require.NoError(t, st.UpdateResearchStatus(ctx, "r1", state.ResearchInProgress))

	testutil.AssertEventuallyTrue(t, func() bool {
		n, err := j.CountByEntity(ctx, string(state.EntityResearch), "r1")
		return err == nil && n == 2
	}, 2*time.Second)

	records, err := j.History(ctx, string(state.EntityResearch), "r1", 10)
	require.NoError(t, err)
	require.Len(t, records, 2)

	// 最新在前
	assert.Equal(t, int64(2), records[0].Version)
	assert.Equal(t, string(store.EventStatusChanged), records[0].Kind)
	assert.NotEmpty(t, records[0].OldValue)

	assert.Equal(t, int64(1), records[1].Version)
	assert.Equal(t, string(store.EventCreated), records[1].Kind)
	assert.Empty(t, records[1].OldValue)
	assert.NotEmpty(t, records[1].NewValue)
	assert.NotEmpty(t, records[1].EventID)
}

func TestJournal_RejectedWritesLeaveNoTrace(t *testing.T) {
	dbCfg := database.DefaultConfig()
	dbCfg.Driver = database.DriverSQLite
	dbCfg.DSN = filepath.Join(t.TempDir(), "journal_test.db")
	dbCfg.HealthCheckInterval = 0

	pool, err := database.Open(dbCfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	backend := persistence.NewMemoryBackend()
	collector := metrics.NewCollector("test", zap.NewNop())
	st := store.New(backend, store.StaticGate{Score: 0.1}, collector, zap.NewNop(), store.DefaultConfig())
	t.Cleanup(func() {
		st.Close()
		backend.Close()
	})

	j, err := journal.New(pool, collector, zap.NewNop(), journal.DefaultConfig())
	require.NoError(t, err)
	j.Start(st.Events())

	ctx := testutil.TestContext(t)
	require.Error(t, st.SetResearchState(ctx, testutil.NewResearchFixture("r1")))

	// 拒绝的写入不发事件,停止前给消费者一点时间
	time.Sleep(50 * time.Millisecond)
	j.Stop()

	n, err := j.CountByEntity(ctx, string(state.EntityResearch), "r1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestJournal_RecentSpansEntities(t *testing.T) {
	j, st := newJournalHarness(t)
	ctx := testutil.TestContext(t)

	require.NoError(t, st.SetResearchState(ctx, testutil.NewResearchFixture("r1")))
	require.NoError(t, st.SetAgentState(ctx, testutil.NewAgentFixture("a1")))
	require.NoError(t, st.SetSupervisionState(ctx, testutil.NewSupervisionFixture("sv1", "r1")))

	testutil.AssertEventuallyTrue(t, func() bool {
		records, err := j.Recent(ctx, 10)
		return err == nil && len(records) == 3
	}, 2*time.Second)

	records, err := j.Recent(ctx, 10)
	require.NoError(t, err)
	kinds := map[string]int{}
	for _, r := range records {
		kinds[r.EntityType]++
	}
	assert.Equal(t, 1, kinds[string(state.EntityResearch)])
	assert.Equal(t, 1, kinds[string(state.EntityAgent)])
	assert.Equal(t, 1, kinds[string(state.EntitySupervision)])
}

func TestJournal_StartIsIdempotent(t *testing.T) {
	j, st := newJournalHarness(t)
	ctx := testutil.TestContext(t)

	// 重复 Start 不应再订阅一次
	j.Start(st.Events())

	require.NoError(t, st.SetResearchState(ctx, testutil.NewResearchFixture("r1")))

	testutil.AssertEventuallyTrue(t, func() bool {
		n, err := j.CountByEntity(ctx, string(state.EntityResearch), "r1")
		return err == nil && n >= 1
	}, 2*time.Second)

	time.Sleep(50 * time.Millisecond)
	n, err := j.CountByEntity(ctx, string(state.EntityResearch), "r1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
