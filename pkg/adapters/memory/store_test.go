package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/hetcore/pkg/adapters/memory"
	"github.com/aretw0/hetcore/pkg/domain"
	"github.com/aretw0/hetcore/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Contract(t *testing.T) {
	store := memory.NewStore()
	ports.RunStoreContract(t, store)
}

func TestMemoryStore_ListOrdersByStart(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	base := time.Now()

	require.NoError(t, store.Save(ctx, &domain.RunRecord{ID: "late", StartedAt: base.Add(time.Second)}))
	require.NoError(t, store.Save(ctx, &domain.RunRecord{ID: "early", StartedAt: base}))

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"early", "late"}, ids)
}

func TestMemoryStore_LoadReturnsCopy(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, &domain.RunRecord{ID: "r", Sections: []domain.SectionResult{{Executed: 1}}}))

	got, err := store.Load(ctx, "r")
	require.NoError(t, err)
	got.Sections[0].Executed = 99

	again, err := store.Load(ctx, "r")
	require.NoError(t, err)
	assert.Equal(t, 1, again.Sections[0].Executed)
}
