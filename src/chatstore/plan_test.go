package chatstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elee1766/chainpilot/src/aisdk"
)

func testPlan() *ChainCreationPlan {
	return &ChainCreationPlan{
		ChainID: "c1",
		Elements: []PlannedElement{
			{ID: "p1", Type: "http-trigger", Status: ElementPlanned},
			{ID: "p2", Type: "script", Properties: map[string]any{"script": "x"}, Status: ElementPlanned},
		},
		Connections: []PlannedConnection{
			{ID: "k1", From: "p1", To: "p2", Status: ConnectionPlanned},
		},
	}
}

func TestChainCreationPlan(t *testing.T) {
	backend := newCountingBackend()
	store, clock := newTestStore(backend)
	sess := store.CreateSession(aisdk.ModeAgent)

	assert.ErrorIs(t, store.UpdatePlannedElementStatus(sess.ID, "p1", ElementCreated, "e1", ""), ErrPlanNotFound)

	plan := testPlan()
	require.NoError(t, store.UpdateChainCreationPlan(sess.ID, plan))
	plan.Elements[1].Properties["script"] = "changed by caller"
	saves := backend.saveCount()

	clock.Advance(time.Second)
	require.NoError(t, store.UpdatePlannedElementStatus(sess.ID, "p1", ElementCreated, "e1", ""))
	require.NoError(t, store.UpdatePlannedElementStatus(sess.ID, "p2", ElementFailed, "", "boom"))
	require.NoError(t, store.UpdatePlannedConnectionStatus(sess.ID, "k1", ConnectionCreated, "dep-1", ""))
	assert.Equal(t, saves, backend.saveCount(), "status updates are debounced")

	clock.Advance(time.Second)
	assert.Equal(t, saves+1, backend.saveCount())

	got, _ := store.GetSession(sess.ID)
	p := got.ChainCreationPlan
	require.NotNil(t, p)
	assert.Equal(t, PlanPlanning, p.Status)
	assert.Equal(t, epoch, p.CreatedAt)
	assert.Equal(t, epoch.Add(time.Second), p.UpdatedAt)
	assert.Equal(t, "x", p.Elements[1].Properties["script"])
	assert.Equal(t, ElementCreated, p.Elements[0].Status)
	assert.Equal(t, "e1", p.Elements[0].ElementID)
	assert.Equal(t, "boom", p.Elements[1].Error)
	assert.Equal(t, ConnectionCreated, p.Connections[0].Status)
	assert.Equal(t, "dep-1", p.Connections[0].ConnectionID)

	assert.ErrorIs(t, store.UpdatePlannedElementStatus(sess.ID, "nope", ElementCreated, "", ""), ErrPlannedItemNotFound)
	assert.ErrorIs(t, store.UpdatePlannedConnectionStatus(sess.ID, "nope", ConnectionFailed, "", ""), ErrPlannedItemNotFound)

	require.NoError(t, store.UpdatePlanStatus(sess.ID, PlanCompleted))
	got, _ = store.GetSession(sess.ID)
	assert.Equal(t, PlanCompleted, got.ChainCreationPlan.Status)

	require.NoError(t, store.UpdateChainCreationPlan(sess.ID, nil))
	got, _ = store.GetSession(sess.ID)
	assert.Nil(t, got.ChainCreationPlan)
}

func TestWriteBuffer(t *testing.T) {
	var writes []string
	buf := NewWriteBuffer(func(data []byte) error {
		writes = append(writes, string(data))
		return nil
	})

	require.NoError(t, buf.Flush())
	assert.Empty(t, writes, "nothing staged")

	buf.Stage([]byte("a"))
	buf.Stage([]byte("b"))
	assert.True(t, buf.Pending())
	require.NoError(t, buf.Flush())
	assert.Equal(t, []string{"b"}, writes)
	assert.False(t, buf.Pending())

	buf.Stage([]byte("c"))
	require.NoError(t, buf.WriteNow([]byte("d")))
	require.NoError(t, buf.FlushBeforeDestroy())
	assert.Equal(t, []string{"b", "d"}, writes)
}
