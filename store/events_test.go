package store_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anthonyadame/DeepResearchAgent-sub002/state"
	"github.com/anthonyadame/DeepResearchAgent-sub002/store"
	"github.com/anthonyadame/DeepResearchAgent-sub002/testutil"
)

func TestStore_PublishesCreatedEvent(t *testing.T) {
	st, _ := newTestStore(t, store.StaticGate{Score: 1.0})
	ctx := testutil.TestContext(t)

	events, unsubscribe := st.Events().Subscribe(8)
	defer unsubscribe()

	rs := testutil.NewResearchFixture("r1")
	require.NoError(t, st.SetResearchState(ctx, rs))

	ev, ok := testutil.WaitForChannel(events, time.Second)
	require.True(t, ok)
	assert.Equal(t, store.EventCreated, ev.Kind)
	assert.Equal(t, state.EntityResearch, ev.EntityType)
	assert.Equal(t, "r1", ev.EntityID)
	assert.Equal(t, int64(1), ev.Version)
	assert.Nil(t, ev.OldValue)
	assert.NotEmpty(t, ev.ID)

	var snapshot state.ResearchState
	require.NoError(t, json.Unmarshal(ev.NewValue, &snapshot))
	assert.Equal(t, "r1", snapshot.ID)
}

func TestStore_PublishesStatusChangedWithOldValue(t *testing.T) {
	st, _ := newTestStore(t, store.StaticGate{Score: 1.0})
	ctx := testutil.TestContext(t)

	rs := testutil.NewResearchFixture("r1")
	require.NoError(t, st.SetResearchState(ctx, rs))

	events, unsubscribe := st.Events().Subscribe(8)
	defer unsubscribe()

	require.NoError(t, st.UpdateResearchStatus(ctx, "r1", state.ResearchInProgress))

	ev, ok := testutil.WaitForChannel(events, time.Second)
	require.True(t, ok)
	assert.Equal(t, store.EventStatusChanged, ev.Kind)
	assert.Equal(t, int64(2), ev.Version)
	require.NotNil(t, ev.OldValue)

	var old state.ResearchState
	require.NoError(t, json.Unmarshal(ev.OldValue, &old))
	assert.Equal(t, state.ResearchPending, old.Status)
}

func TestStore_RejectedWritePublishesNothing(t *testing.T) {
	gate := &testutil.ScriptedGate{Scores: []float64{0.3}}
	st, _ := newTestStore(t, gate)
	ctx := testutil.TestContext(t)

	events, unsubscribe := st.Events().Subscribe(8)
	defer unsubscribe()

	err := st.SetResearchState(ctx, testutil.NewResearchFixture("r1"))
	require.Error(t, err)

	_, ok := testutil.WaitForChannel(events, 100*time.Millisecond)
	assert.False(t, ok)
}

func TestEventBus_SlowSubscriberDoesNotBlockPublish(t *testing.T) {
	st, _ := newTestStore(t, store.StaticGate{Score: 1.0})
	ctx := testutil.TestContext(t)

	// 容量 1 的订阅者,只消费第一条
	events, unsubscribe := st.Events().Subscribe(1)
	defer unsubscribe()

	done := make(chan error, 1)
	go func() {
		rs := testutil.NewResearchFixture("r1")
		if err := st.SetResearchState(ctx, rs); err != nil {
			done <- err
			return
		}
		for i := 0; i < 5; i++ {
			cur, err := st.GetResearchState(ctx, "r1")
			if err != nil {
				done <- err
				return
			}
			next := cur.Clone()
			next.IterationCount++
			if err := st.SetResearchState(ctx, next); err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on slow subscriber")
	}

	// 缓冲里至少有第一条事件
	_, ok := testutil.WaitForChannel(events, time.Second)
	assert.True(t, ok)
}

func TestEventBus_UnsubscribeClosesChannel(t *testing.T) {
	st, _ := newTestStore(t, store.StaticGate{Score: 1.0})

	events, unsubscribe := st.Events().Subscribe(1)
	unsubscribe()

	_, open := <-events
	assert.False(t, open)
}
