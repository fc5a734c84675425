package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/hetcore/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func contractRun(id string) *domain.RunRecord {
	return &domain.RunRecord{
		ID:        id,
		Graph:     "contract",
		StartedAt: time.Now().UTC().Truncate(time.Millisecond),
		Duration:  3 * time.Millisecond,
		Nodes:     2,
		Executed:  2,
		Sections:  []domain.SectionResult{{Index: 0, Nodes: 2, Executed: 2, Duration: time.Millisecond}},
	}
}

// RunStoreContract runs a suite of tests to verify that a RunStore implementation
// adheres to the defined interface contract.
func RunStoreContract(t *testing.T, store RunStore) {
	ctx := context.Background()
	runID := "contract-run-" + time.Now().Format("20060102150405")

	t.Run("Save and Load", func(t *testing.T) {
		run := contractRun(runID)

		err := store.Save(ctx, run)
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, runID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, run.Graph, loaded.Graph)
		assert.Equal(t, run.Executed, loaded.Executed)
		assert.True(t, run.StartedAt.Equal(loaded.StartedAt))
		require.Len(t, loaded.Sections, 1)
		assert.Equal(t, run.Sections[0], loaded.Sections[0])
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+runID)
		assert.ErrorIs(t, err, domain.ErrRunNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		err := store.Save(ctx, contractRun(runID))
		require.NoError(t, err)

		err = store.Delete(ctx, runID)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Load(ctx, runID)
		assert.ErrorIs(t, err, domain.ErrRunNotFound, "Load after Delete should return ErrRunNotFound")
	})

	t.Run("List", func(t *testing.T) {
		id1 := runID + "-1"
		id2 := runID + "-2"
		_ = store.Save(ctx, contractRun(id1))
		_ = store.Save(ctx, contractRun(id2))

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		runs, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, runs, id1)
		assert.Contains(t, runs, id2)
	})
}
