package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anthonyadame/DeepResearchAgent-sub002/state"
)

// backendUnderTest runs the shared contract suite against any StateBackend.
func backendUnderTest(t *testing.T, b StateBackend) {
	ctx := context.Background()

	t.Run("ping", func(t *testing.T) {
		require.NoError(t, b.Ping(ctx))
	})

	t.Run("get missing returns ErrNotFound", func(t *testing.T) {
		_, err := b.GetResearchState(ctx, "absent")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("set then get round-trips", func(t *testing.T) {
		rs := state.NewResearchState("r1", "quantum error correction", time.Now().UTC())
		rs.Facts = []state.Fact{{Content: "f1", Source: "s1", Confidence: 0.9, Status: state.FactVerified}}
		rs.Version = 1

		require.NoError(t, b.SetResearchState(ctx, rs))

		got, err := b.GetResearchState(ctx, "r1")
		require.NoError(t, err)
		assert.Equal(t, rs.Query, got.Query)
		assert.Equal(t, rs.Facts, got.Facts)
		assert.Equal(t, int64(1), got.Version)
	})

	t.Run("set overwrites prior value", func(t *testing.T) {
		sv := state.NewSupervisionState("sv1", "r1", time.Now().UTC())
		require.NoError(t, b.SetSupervisionState(ctx, sv))

		sv2 := sv.Clone()
		sv2.Status = state.SupervisionInProgress
		sv2.CycleNumber = 1
		sv2.Version = 2
		require.NoError(t, b.SetSupervisionState(ctx, sv2))

		got, err := b.GetSupervisionState(ctx, "sv1")
		require.NoError(t, err)
		assert.Equal(t, state.SupervisionInProgress, got.Status)
		assert.Equal(t, 1, got.CycleNumber)
	})

	t.Run("entity types are namespaced", func(t *testing.T) {
		a := state.NewAgentState("shared-id", "researcher")
		require.NoError(t, b.SetAgentState(ctx, a))

		v := &state.VerificationState{ID: "shared-id", SourceID: "src", Confidence: 0.8}
		require.NoError(t, b.SetVerificationState(ctx, v))

		gotA, err := b.GetAgentState(ctx, "shared-id")
		require.NoError(t, err)
		assert.Equal(t, "researcher", gotA.AgentType)

		gotV, err := b.GetVerificationState(ctx, "shared-id")
		require.NoError(t, err)
		assert.Equal(t, "src", gotV.SourceID)
	})

	t.Run("empty id rejected", func(t *testing.T) {
		_, err := b.GetAgentState(ctx, "")
		assert.ErrorIs(t, err, ErrInvalidInput)

		err = b.SetAgentState(ctx, nil)
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestMemoryBackend_Contract(t *testing.T) {
	b := NewMemoryBackend()
	t.Cleanup(func() { b.Close() })
	backendUnderTest(t, b)
}

func TestRedisBackend_Contract(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	b := NewRedisBackendWithClient(client, "dra:")
	t.Cleanup(func() { b.Close() })
	backendUnderTest(t, b)
}

func TestMemoryBackend_ClosedReturnsErrStoreClosed(t *testing.T) {
	b := NewMemoryBackend()
	require.NoError(t, b.Close())

	assert.ErrorIs(t, b.Ping(context.Background()), ErrStoreClosed)

	_, err := b.GetResearchState(context.Background(), "r1")
	assert.ErrorIs(t, err, ErrStoreClosed)
}

func TestMemoryBackend_CallerCannotMutateStored(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()
	t.Cleanup(func() { b.Close() })

	rs := state.NewResearchState("r1", "q", time.Now().UTC())
	rs.Sources = []string{"a"}
	require.NoError(t, b.SetResearchState(ctx, rs))

	// 写入后修改原对象不应影响已存数据
	rs.Sources[0] = "mutated"
	rs.Query = "mutated"

	got, err := b.GetResearchState(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "q", got.Query)
	assert.Equal(t, []string{"a"}, got.Sources)
}

func TestRedisBackend_KeyLayout(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	b := NewRedisBackendWithClient(client, "dra:")
	t.Cleanup(func() { b.Close() })

	rs := state.NewResearchState("r1", "q", time.Now().UTC())
	require.NoError(t, b.SetResearchState(context.Background(), rs))

	assert.True(t, srv.Exists("dra:state:research_state:r1"))
}

func TestNewBackend_Factory(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		b, err := NewBackend(context.Background(), Config{Type: BackendMemory})
		require.NoError(t, err)
		t.Cleanup(func() { b.Close() })
		_, ok := b.(*MemoryBackend)
		assert.True(t, ok)
	})

	t.Run("default is memory", func(t *testing.T) {
		b, err := NewBackend(context.Background(), Config{})
		require.NoError(t, err)
		t.Cleanup(func() { b.Close() })
		_, ok := b.(*MemoryBackend)
		assert.True(t, ok)
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := NewBackend(context.Background(), Config{Type: "cassandra"})
		require.Error(t, err)
	})
}
