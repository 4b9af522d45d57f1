package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coldroute/internal/model"
)

func van(chilled, frozen int) model.Vehicle {
	return model.Vehicle{ID: "v1", Type: "van", ChilledCap: chilled, FrozenCap: frozen, Available: true}
}

func TestBuildBatchSeedsHeadOfPool(t *testing.T) {
	pool := []model.Order{
		ord("a", "", "x", "1011", "c", "08:00", "12:00", 0, 3, 0),
		ord("b", "", "y", "1012", "c", "08:00", "12:00", 0, 2, 0),
	}
	batch, rest := BuildBatch(pool, van(10, 5))
	require.NotEmpty(t, batch)
	assert.Equal(t, "a", batch[0].ID)
	assert.Len(t, batch, 2)
	assert.Empty(t, rest)
}

func TestBuildBatchSkipsOversizeHead(t *testing.T) {
	pool := []model.Order{
		ord("huge", "", "x", "1011", "c", "08:00", "12:00", 0, 100, 0),
		ord("small", "", "y", "1012", "c", "09:00", "12:00", 0, 5, 0),
	}
	batch, rest := BuildBatch(pool, van(10, 0))
	require.Len(t, batch, 1)
	assert.Equal(t, "small", batch[0].ID)
	require.Len(t, rest, 1)
	assert.Equal(t, "huge", rest[0].ID)
}

func TestBuildBatchEmptyWhenNothingFits(t *testing.T) {
	pool := []model.Order{
		ord("huge", "", "x", "1011", "c", "08:00", "12:00", 0, 100, 0),
	}
	batch, rest := BuildBatch(pool, van(10, 0))
	assert.Empty(t, batch)
	require.Len(t, rest, 1)
	assert.Equal(t, "huge", rest[0].ID)
}

func TestBuildBatchPrefersSeedRegion(t *testing.T) {
	pool := []model.Order{
		ord("seed", "", "x", "10aa", "c", "08:00", "12:00", 0, 2, 0),
		ord("far", "", "y", "20bb", "c", "08:00", "12:00", 0, 2, 0),
		ord("near", "", "z", "10cc", "c", "08:00", "12:00", 0, 2, 0),
	}
	batch, rest := BuildBatch(pool, van(4, 0))
	require.Len(t, batch, 2)
	assert.Equal(t, "seed", batch[0].ID)
	assert.Equal(t, "near", batch[1].ID)
	require.Len(t, rest, 1)
	assert.Equal(t, "far", rest[0].ID)
}

func TestBuildBatchFallsBackToAnyFit(t *testing.T) {
	pool := []model.Order{
		ord("seed", "", "x", "10aa", "c", "08:00", "12:00", 0, 2, 0),
		ord("big", "", "y", "10bb", "c", "08:00", "12:00", 0, 9, 0),
		ord("other", "", "z", "20cc", "c", "08:00", "12:00", 0, 2, 0),
	}
	// the same-region candidate does not fit, the out-of-region one does
	batch, rest := BuildBatch(pool, van(4, 0))
	require.Len(t, batch, 2)
	assert.Equal(t, "other", batch[1].ID)
	require.Len(t, rest, 1)
	assert.Equal(t, "big", rest[0].ID)
}

func TestBuildBatchStopsWhenDimensionExactlyFull(t *testing.T) {
	pool := []model.Order{
		ord("a", "", "x", "10aa", "c", "08:00", "12:00", 0, 4, 0),
		ord("b", "", "y", "10bb", "c", "08:00", "12:00", 0, 0, 1),
	}
	batch, rest := BuildBatch(pool, van(4, 5))
	// chilled is exactly full after the seed, so nothing else is considered
	require.Len(t, batch, 1)
	assert.Equal(t, "a", batch[0].ID)
	assert.Len(t, rest, 1)
}

func TestBuildBatchRespectsBothDimensions(t *testing.T) {
	pool := []model.Order{
		ord("a", "", "x", "10aa", "c", "08:00", "12:00", 0, 2, 2),
		ord("b", "", "y", "10bb", "c", "08:00", "12:00", 0, 1, 3),
		ord("c", "", "z", "10cc", "c", "08:00", "12:00", 0, 1, 1),
	}
	batch, _ := BuildBatch(pool, van(5, 4))
	var chilled, frozen int
	for _, o := range batch {
		chilled += o.ChilledQty
		frozen += o.FrozenQty
	}
	assert.LessOrEqual(t, chilled, 5)
	assert.LessOrEqual(t, frozen, 4)
	// b would overflow frozen, so c is picked instead
	require.Len(t, batch, 2)
	assert.Equal(t, "c", batch[1].ID)
}

func TestBuildBatchConservesOrders(t *testing.T) {
	pool := []model.Order{
		ord("a", "", "x", "10aa", "c", "08:00", "12:00", 0, 3, 1),
		ord("b", "", "y", "20bb", "c", "08:00", "12:00", 0, 2, 2),
		ord("c", "", "z", "30cc", "c", "08:00", "12:00", 0, 4, 0),
		ord("d", "", "w", "10dd", "c", "08:00", "12:00", 0, 1, 1),
	}
	batch, rest := BuildBatch(pool, van(6, 3))
	assert.Equal(t, len(pool), len(batch)+len(rest))
	seen := map[string]bool{}
	for _, o := range append(batch, rest...) {
		assert.False(t, seen[o.ID], "order %s duplicated", o.ID)
		seen[o.ID] = true
	}
}
