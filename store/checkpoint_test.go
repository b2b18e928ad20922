package store

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	reftesting "github.com/teranos/refinery/internal/testing"
)

func newTestCheckpointStore(t *testing.T) *CheckpointStore {
	t.Helper()
	database := reftesting.CreateTestDB(t)
	ctx := context.Background()
	require.NoError(t, CreateRun(ctx, database, "run-1"))
	return NewCheckpointStore(database, "run-1", nil)
}

func TestCheckpointSaveAndLoadLatest(t *testing.T) {
	s := newTestCheckpointStore(t)
	ctx := context.Background()

	id1, err := s.Save(ctx, "initialization", map[string]string{"step": "one"})
	require.NoError(t, err)
	require.NotEmpty(t, id1)

	id2, err := s.Save(ctx, "matching", map[string]string{"step": "two"})
	require.NoError(t, err)
	require.NotEqual(t, id1, id2)

	cp, err := s.LoadLatest(ctx)
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, id2, cp.ID)
	assert.Equal(t, "matching", cp.Stage)

	var state map[string]string
	require.NoError(t, json.Unmarshal(cp.State, &state))
	assert.Equal(t, "two", state["step"])
}

func TestLoadLatestWithoutCheckpoints(t *testing.T) {
	s := newTestCheckpointStore(t)

	cp, err := s.LoadLatest(context.Background())
	require.NoError(t, err)
	assert.Nil(t, cp, "no checkpoints means (nil, nil), not an error")
}

func TestCheckpointTieBreaksOnInsertionOrder(t *testing.T) {
	s := newTestCheckpointStore(t)
	ctx := context.Background()

	// Rapid saves can share a created_at second; the newest insertion
	// must still win.
	var lastID string
	for _, stage := range []string{"matching", "writing_polishing", "pruning"} {
		id, err := s.Save(ctx, stage, nil)
		require.NoError(t, err)
		lastID = id
	}

	cp, err := s.LoadLatest(ctx)
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, lastID, cp.ID)
	assert.Equal(t, "pruning", cp.Stage)
}

func TestCheckpointListReturnsInsertionOrder(t *testing.T) {
	s := newTestCheckpointStore(t)
	ctx := context.Background()

	stages := []string{"initialization", "matching", "writing_polishing"}
	ids := make([]string, len(stages))
	for i, stage := range stages {
		id, err := s.Save(ctx, stage, map[string]int{"n": i})
		require.NoError(t, err)
		ids[i] = id
	}

	checkpoints, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, checkpoints, 3)
	for i, cp := range checkpoints {
		assert.Equal(t, ids[i], cp.ID)
		assert.Equal(t, stages[i], cp.Stage)
		assert.Equal(t, "run-1", cp.RunID)

		var state map[string]int
		require.NoError(t, json.Unmarshal(cp.State, &state))
		assert.Equal(t, i, state["n"])
	}
}

func TestCheckpointListEmpty(t *testing.T) {
	s := newTestCheckpointStore(t)

	checkpoints, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, checkpoints)
}

func TestCheckpointUnserializableStateFails(t *testing.T) {
	s := newTestCheckpointStore(t)

	_, err := s.Save(context.Background(), "matching", map[string]any{"bad": make(chan int)})
	require.Error(t, err)
}
