package worker

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memtide/memtide/internal/consolidation"
	"github.com/memtide/memtide/pkg/models"
)

// fakeStore is an in-memory MemoryProvider for scheduler tests.
type fakeStore struct {
	memories []models.Memory
	marked   map[string]bool
	records  []models.ConsolidatedMemory
}

func newFakeStore(memories ...models.Memory) *fakeStore {
	return &fakeStore{memories: memories, marked: make(map[string]bool)}
}

func (f *fakeStore) ListUnconsolidated(_ context.Context, limit int) ([]models.Memory, error) {
	var out []models.Memory
	for _, m := range f.memories {
		if f.marked[m.ID] {
			continue
		}
		out = append(out, m)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) MarkConsolidated(_ context.Context, ids []string) error {
	for _, id := range ids {
		f.marked[id] = true
	}
	return nil
}

func (f *fakeStore) InsertConsolidated(_ context.Context, rec *models.ConsolidatedMemory) error {
	f.records = append(f.records, *rec)
	return nil
}

func newTestScheduler(store MemoryProvider) *Scheduler {
	return NewScheduler(store, DefaultSchedulerConfig(), zerolog.Nop())
}

func TestRunTagPass_MergesAndMarks(t *testing.T) {
	store := newFakeStore(
		models.Memory{ID: "m1", Tag: "math", Content: "pythagoras theorem"},
		models.Memory{ID: "m2", Tag: "math", Content: "euler identity"},
		models.Memory{ID: "m3", Tag: "history", Content: "fall of rome"},
	)
	s := newTestScheduler(store)

	records, err := s.RunTagPass(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)

	assert.Equal(t, 2, records[0].SourceCount)
	assert.True(t, store.marked["m1"])
	assert.True(t, store.marked["m2"])
	assert.False(t, store.marked["m3"])
	require.Len(t, store.records, 1)
	assert.Equal(t, records[0].ID, store.records[0].ID)
}

func TestRunTagPass_NothingLeftAfterPass(t *testing.T) {
	store := newFakeStore(
		models.Memory{ID: "m1", Tag: "math", Content: "one"},
		models.Memory{ID: "m2", Tag: "math", Content: "two"},
	)
	s := newTestScheduler(store)

	first, err := s.RunTagPass(context.Background())
	require.NoError(t, err)
	require.Len(t, first, 1)

	// Both memories were consumed; a second pass finds nothing to merge.
	second, err := s.RunTagPass(context.Background())
	require.NoError(t, err)
	assert.Empty(t, second)
}

func TestRunContentPass_UsesConfiguredThreshold(t *testing.T) {
	store := newFakeStore(
		models.Memory{ID: "m1", Tag: "notes", Content: "alpha beta gamma delta"},
		models.Memory{ID: "m2", Tag: "notes", Content: "alpha beta gamma delta epsilon"},
	)
	s := newTestScheduler(store)

	records, err := s.RunContentPass(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, consolidation.DefaultThreshold, records[0].SimilarityScore)
}

func TestRunPass_ThresholdOverride(t *testing.T) {
	store := newFakeStore(
		// Jaccard 0.5: below the 0.7 default, above a 0.4 override.
		models.Memory{ID: "m1", Tag: "notes", Content: "alpha beta gamma"},
		models.Memory{ID: "m2", Tag: "notes", Content: "beta gamma delta"},
	)
	s := newTestScheduler(store)

	records, err := s.RunPass(context.Background(), consolidation.ModeContent, 0, 0.4)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 0.4, records[0].SimilarityScore)
}

func TestRunPass_UnknownMode(t *testing.T) {
	store := newFakeStore(
		models.Memory{ID: "m1", Tag: "a", Content: "one"},
		models.Memory{ID: "m2", Tag: "a", Content: "two"},
	)
	s := newTestScheduler(store)

	_, err := s.RunPass(context.Background(), "semantic", 0, 0)
	assert.Error(t, err)
}

func TestRunPass_TooFewMemories(t *testing.T) {
	store := newFakeStore(models.Memory{ID: "m1", Tag: "math", Content: "one"})
	s := newTestScheduler(store)

	records, err := s.RunPass(context.Background(), consolidation.ModeTag, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Empty(t, store.records)
}

func TestRunAll_RunsBothModes(t *testing.T) {
	store := newFakeStore(
		models.Memory{ID: "m1", Tag: "math", Content: "pythagoras theorem"},
		models.Memory{ID: "m2", Tag: "math", Content: "euler identity"},
		models.Memory{ID: "m3", Tag: "", Content: "alpha beta gamma"},
		models.Memory{ID: "m4", Tag: "", Content: "alpha beta gamma"},
	)
	s := newTestScheduler(store)

	require.NoError(t, s.RunAll(context.Background()))

	// Tag pass merged the math pair; the content pass then merged the
	// empty-tag pair the tag pass cannot touch.
	require.Len(t, store.records, 2)
	assert.True(t, store.marked["m1"])
	assert.True(t, store.marked["m4"])
}
