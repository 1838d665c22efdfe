package consolidation

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memtide/memtide/pkg/models"
)

func mem(id, tag, content string) models.Memory {
	return models.Memory{ID: id, Tag: tag, Content: content}
}

func TestConsolidateByTag_EmptyInput(t *testing.T) {
	e := NewEngine()

	assert.Empty(t, e.ConsolidateByTag(nil))
	assert.Empty(t, e.ConsolidateByTag([]models.Memory{}))
}

func TestConsolidateByTag_SingletonDropped(t *testing.T) {
	e := NewEngine()

	out := e.ConsolidateByTag([]models.Memory{mem("m1", "math", "pythagoras theorem")})

	assert.Empty(t, out)
}

func TestConsolidateByTag_MergesSharedTag(t *testing.T) {
	e := NewEngine()

	out := e.ConsolidateByTag([]models.Memory{
		mem("m1", "math", "pythagoras theorem"),
		mem("m2", "math", "euler identity"),
		mem("m3", "history", "fall of rome"),
	})

	require.Len(t, out, 1)
	rec := out[0]
	assert.Equal(t, "math", rec.Tag)
	assert.Equal(t, models.TypeConsolidated, rec.Type)
	assert.Equal(t, 2, rec.SourceCount)
	assert.Equal(t, models.JSONStringArray{"m1", "m2"}, rec.SourceIDs)
	assert.Equal(t, "pythagoras theorem | euler identity", rec.Content)
	assert.True(t, strings.HasPrefix(rec.ID, "consolidated_tag_math_"))
	assert.Zero(t, rec.SimilarityScore)
	assert.False(t, rec.CreatedAt.IsZero())
}

func TestConsolidateByTag_SourceCountMatchesIDs(t *testing.T) {
	e := NewEngine()

	out := e.ConsolidateByTag([]models.Memory{
		mem("m1", "go", "channels"),
		mem("m2", "go", "goroutines"),
		mem("m3", "go", "interfaces"),
	})

	require.Len(t, out, 1)
	assert.Equal(t, out[0].SourceCount, len(out[0].SourceIDs))
	assert.Equal(t, 3, out[0].SourceCount)
}

func TestConsolidateByTag_SkipsEmptyTag(t *testing.T) {
	e := NewEngine()

	out := e.ConsolidateByTag([]models.Memory{
		mem("m1", "", "some content"),
		mem("m2", "", "other content"),
	})

	assert.Empty(t, out)
}

func TestConsolidateByTag_ExcludesEmptyContent(t *testing.T) {
	e := NewEngine()

	out := e.ConsolidateByTag([]models.Memory{
		mem("m1", "math", "pythagoras theorem"),
		mem("m2", "math", ""),
		mem("m3", "math", "euler identity"),
	})

	require.Len(t, out, 1)
	assert.Equal(t, models.JSONStringArray{"m1", "m3"}, out[0].SourceIDs)
	assert.NotContains(t, out[0].SourceIDs, "m2")
}

func TestConsolidateByTag_GroupOfOnlyEmptyContentDropped(t *testing.T) {
	e := NewEngine()

	out := e.ConsolidateByTag([]models.Memory{
		mem("m1", "math", ""),
		mem("m2", "math", ""),
		mem("m3", "math", "euler identity"),
	})

	// Only one member survives the empty-content filter, so nothing merges.
	assert.Empty(t, out)
}

func TestConsolidateByTag_LargePartitionStillMerged(t *testing.T) {
	e := NewEngine()

	memories := make([]models.Memory, 101)
	for i := range memories {
		memories[i] = mem(fmt.Sprintf("m%d", i), "generic", fmt.Sprintf("note number %d", i))
	}

	out := e.ConsolidateByTag(memories)

	require.Len(t, out, 1)
	assert.Equal(t, 101, out[0].SourceCount)
}

func TestConsolidateByContent_EmptyInput(t *testing.T) {
	e := NewEngine()

	assert.Empty(t, e.ConsolidateByContent(nil, 0, 0))
}

func TestConsolidateByContent_MergesSimilar(t *testing.T) {
	e := NewEngine()

	out := e.ConsolidateByContent([]models.Memory{
		mem("m1", "notes", "alpha beta gamma delta"),
		mem("m2", "notes", "alpha beta gamma delta epsilon"),
		mem("m3", "notes", "completely unrelated words here"),
	}, 0, 0)

	require.Len(t, out, 1)
	rec := out[0]
	assert.Equal(t, "notes", rec.Tag)
	assert.Equal(t, models.TypeConsolidated, rec.Type)
	assert.Equal(t, models.JSONStringArray{"m1", "m2"}, rec.SourceIDs)
	assert.Equal(t, "alpha beta gamma delta | alpha beta gamma delta epsilon", rec.Content)
	assert.Equal(t, DefaultThreshold, rec.SimilarityScore)
	assert.True(t, strings.HasPrefix(rec.ID, "consolidated_content_"))
}

func TestConsolidateByContent_ThresholdRecordedNotMeasured(t *testing.T) {
	e := NewEngine()

	out := e.ConsolidateByContent([]models.Memory{
		mem("m1", "notes", "alpha beta gamma"),
		mem("m2", "notes", "alpha beta gamma"),
	}, 0, 0.5)

	require.Len(t, out, 1)
	// The recorded score is the run threshold, not the pairwise score (1.0).
	assert.Equal(t, 0.5, out[0].SimilarityScore)
}

func TestConsolidateByContent_DissimilarNotMerged(t *testing.T) {
	e := NewEngine()

	out := e.ConsolidateByContent([]models.Memory{
		mem("m1", "notes", "alpha beta gamma"),
		mem("m2", "notes", "delta epsilon zeta"),
	}, 0, 0)

	assert.Empty(t, out)
}

func TestConsolidateByContent_ClusterCappedAtFive(t *testing.T) {
	e := NewEngine()

	memories := make([]models.Memory, 6)
	for i := range memories {
		memories[i] = mem(fmt.Sprintf("m%d", i+1), "notes", "identical content every time")
	}

	out := e.ConsolidateByContent(memories, 0, 0)

	// The sixth pairwise-similar memory is left behind as an unmergeable
	// singleton, never added to the full cluster.
	require.Len(t, out, 1)
	assert.Equal(t, 5, out[0].SourceCount)
	assert.Equal(t, models.JSONStringArray{"m1", "m2", "m3", "m4", "m5"}, out[0].SourceIDs)
}

func TestConsolidateByContent_SkipsEmptyContent(t *testing.T) {
	e := NewEngine()

	out := e.ConsolidateByContent([]models.Memory{
		mem("m1", "notes", "alpha beta gamma"),
		mem("m2", "notes", ""),
		mem("m3", "notes", "alpha beta gamma"),
	}, 0, 0)

	require.Len(t, out, 1)
	assert.NotContains(t, out[0].SourceIDs, "m2")
	assert.Equal(t, models.JSONStringArray{"m1", "m3"}, out[0].SourceIDs)
}

func TestConsolidateByContent_EmptyTagPartitionIncluded(t *testing.T) {
	e := NewEngine()

	// Unlike tag mode, the empty-tag partition is clustered.
	out := e.ConsolidateByContent([]models.Memory{
		mem("m1", "", "alpha beta gamma"),
		mem("m2", "", "alpha beta gamma"),
	}, 0, 0)

	require.Len(t, out, 1)
	assert.Equal(t, "", out[0].Tag)
	assert.Equal(t, 2, out[0].SourceCount)
}

func TestConsolidateByContent_CrossTagNeverMerged(t *testing.T) {
	e := NewEngine()

	out := e.ConsolidateByContent([]models.Memory{
		mem("m1", "a", "alpha beta gamma"),
		mem("m2", "b", "alpha beta gamma"),
	}, 0, 0)

	assert.Empty(t, out)
}

func TestConsolidateByContent_OversizedPartitionSkipped(t *testing.T) {
	e := NewEngine()

	memories := make([]models.Memory, 101)
	for i := range memories {
		memories[i] = mem(fmt.Sprintf("m%d", i), "generic", "identical content every time")
	}

	out := e.ConsolidateByContent(memories, 0, 0)

	assert.Empty(t, out)
}

func TestConsolidateByContent_RepeatedCallIdenticalClusters(t *testing.T) {
	e := NewEngine()

	memories := []models.Memory{
		mem("m1", "notes", "alpha beta gamma delta"),
		mem("m2", "notes", "alpha beta gamma delta epsilon"),
		mem("m3", "notes", "unrelated words entirely different"),
		mem("m4", "notes", "alpha beta gamma delta zeta"),
	}

	first := e.ConsolidateByContent(memories, 0, 0)
	second := e.ConsolidateByContent(memories, 0, 0)

	// The second call takes the neighbor-cache path and must reconstruct
	// the same clusters.
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].SourceIDs, second[i].SourceIDs)
		assert.Equal(t, first[i].Content, second[i].Content)
		assert.Equal(t, first[i].Tag, second[i].Tag)
	}
}

func TestConsolidateByContent_GreedyFirstMatchWins(t *testing.T) {
	e := NewEngine()

	// m2 is similar to both m1 and m3; the earlier anchor claims it.
	out := e.ConsolidateByContent([]models.Memory{
		mem("m1", "notes", "alpha beta gamma delta"),
		mem("m2", "notes", "alpha beta gamma epsilon"),
		mem("m3", "notes", "alpha beta gamma epsilon zeta"),
	}, 0, 0.5)

	require.NotEmpty(t, out)
	assert.Equal(t, "m1", out[0].SourceIDs[0])
	assert.Contains(t, out[0].SourceIDs, "m2")
}

func TestPartitionByTag_PreservesEncounterOrder(t *testing.T) {
	groups, order := partitionByTag([]models.Memory{
		mem("m1", "b", "x"),
		mem("m2", "a", "y"),
		mem("m3", "b", "z"),
	})

	assert.Equal(t, []string{"b", "a"}, order)
	assert.Len(t, groups["b"], 2)
	assert.Equal(t, "m1", groups["b"][0].ID)
	assert.Equal(t, "m3", groups["b"][1].ID)
}

func TestBuildConsolidated_JoinsDistinctTags(t *testing.T) {
	rec := buildConsolidated([]models.Memory{
		mem("m1", "a", "one"),
		mem("m2", "b", "two"),
		mem("m3", "a", "three"),
	}, ModeContent, 0.7)

	assert.Equal(t, "a,b", rec.Tag)
	assert.Equal(t, "one | two | three", rec.Content)
	assert.Equal(t, 3, rec.SourceCount)
}

func TestBuildConsolidated_DoesNotMutateInputs(t *testing.T) {
	sources := []models.Memory{
		mem("m1", "a", "one"),
		mem("m2", "a", "two"),
	}

	_ = buildConsolidated(sources, ModeTag, 0)

	assert.Equal(t, mem("m1", "a", "one"), sources[0])
	assert.Equal(t, mem("m2", "a", "two"), sources[1])
}
