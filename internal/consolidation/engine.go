package consolidation

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/memtide/memtide/pkg/models"
)

// Consolidation modes. The mode is baked into generated record ids so a
// consolidated record's origin is readable at a glance.
const (
	ModeTag     = "tag"
	ModeContent = "content"
)

const (
	// DefaultThreshold is the minimum similarity for two memories to share
	// a content-mode cluster.
	DefaultThreshold = 0.7

	// DefaultBatchSize is the batch size hint accepted by
	// ConsolidateByContent. Reserved for future batching; it does not
	// change clustering output.
	DefaultBatchSize = 100

	// maxPartitionSize caps how many same-tag memories a content pass will
	// compare pairwise. Larger partitions are skipped whole rather than
	// partially processed.
	maxPartitionSize = 100

	// maxClusterSize caps cluster growth, anchor included.
	maxClusterSize = 5
)

// Engine performs one consolidation pass over caller-supplied memories.
// It owns two caches: normalized word sets keyed by text, and per-memory
// neighbor lists keyed by memory id. Both are write-once-per-key and are
// not safe for concurrent use; callers wanting parallelism must use
// separate Engine instances.
type Engine struct {
	wordSets  map[string]map[string]bool
	neighbors map[string][]string
}

// NewEngine creates an engine with empty caches. An engine is scoped to
// one consolidation pass and discarded afterwards.
func NewEngine() *Engine {
	return &Engine{
		wordSets:  make(map[string]map[string]bool),
		neighbors: make(map[string][]string),
	}
}

// ConsolidateByTag merges memories sharing an exact non-empty tag.
// Memories with empty content never contribute to a merged record, and
// groups that end up with fewer than two members produce no output.
func (e *Engine) ConsolidateByTag(memories []models.Memory) []models.ConsolidatedMemory {
	groups, order := partitionByTag(memories)

	var out []models.ConsolidatedMemory
	for _, tag := range order {
		if tag == "" {
			continue
		}

		group := make([]models.Memory, 0, len(groups[tag]))
		for _, m := range groups[tag] {
			if m.Content != "" {
				group = append(group, m)
			}
		}
		if len(group) < 2 {
			continue
		}

		out = append(out, buildConsolidated(group, ModeTag, 0))
	}

	return out
}

// ConsolidateByContent greedily clusters memories whose content
// similarity meets threshold, within each tag partition (the empty tag
// included). batchSize is a reserved batching hint. Clustering is
// first-match-wins, not transitive-closure complete; downstream
// consumers depend on this output shape.
func (e *Engine) ConsolidateByContent(memories []models.Memory, batchSize int, threshold float64) []models.ConsolidatedMemory {
	_ = batchSize // batching hint only, see DefaultBatchSize
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	groups, order := partitionByTag(memories)

	var out []models.ConsolidatedMemory
	for _, tag := range order {
		group := groups[tag]
		if len(group) < 2 || len(group) > maxPartitionSize {
			continue
		}

		for _, cluster := range e.clusterPartition(group, threshold) {
			if len(cluster) < 2 {
				continue
			}
			out = append(out, buildConsolidated(cluster, ModeContent, threshold))
		}
	}

	return out
}

// clusterPartition walks a tag partition in encounter order, growing one
// cluster per unconsumed anchor. A memory consumed by an earlier cluster
// is never reconsidered as the anchor of a later one.
func (e *Engine) clusterPartition(group []models.Memory, threshold float64) [][]models.Memory {
	consumed := make([]bool, len(group))

	var clusters [][]models.Memory
	for i := range group {
		if consumed[i] || group[i].Content == "" {
			continue
		}
		consumed[i] = true
		cluster := []models.Memory{group[i]}

		if cached, ok := e.neighbors[group[i].ID]; ok {
			// Reuse the cached neighbor list instead of recomputing
			// similarity. Only neighbors still present in this partition and
			// not already consumed rejoin the cluster.
			wanted := make(map[string]bool, len(cached))
			for _, id := range cached {
				wanted[id] = true
			}
			for j := i + 1; j < len(group) && len(cluster) < maxClusterSize; j++ {
				if consumed[j] || !wanted[group[j].ID] {
					continue
				}
				cluster = append(cluster, group[j])
				consumed[j] = true
			}
		} else {
			found := []string{}
			for j := i + 1; j < len(group) && len(cluster) < maxClusterSize; j++ {
				if consumed[j] || group[j].Content == "" {
					continue
				}
				if e.Similarity(group[i].Content, group[j].Content) >= threshold {
					cluster = append(cluster, group[j])
					consumed[j] = true
					found = append(found, group[j].ID)
				}
			}
			e.neighbors[group[i].ID] = found
		}

		clusters = append(clusters, cluster)
	}

	return clusters
}

// partitionByTag groups memories by exact tag value, preserving both the
// first-encounter order of tags and the encounter order within each group.
func partitionByTag(memories []models.Memory) (map[string][]models.Memory, []string) {
	groups := make(map[string][]models.Memory)
	var order []string

	for _, m := range memories {
		if _, ok := groups[m.Tag]; !ok {
			order = append(order, m.Tag)
		}
		groups[m.Tag] = append(groups[m.Tag], m)
	}

	return groups, order
}

// buildConsolidated assembles one output record from a cluster of source
// memories. Pure assembly: it never mutates its inputs.
func buildConsolidated(cluster []models.Memory, mode string, threshold float64) models.ConsolidatedMemory {
	now := time.Now()

	contents := make([]string, 0, len(cluster))
	ids := make(models.JSONStringArray, 0, len(cluster))
	var tags []string
	seenTags := make(map[string]bool)

	for _, m := range cluster {
		contents = append(contents, m.Content)
		ids = append(ids, m.ID)
		if !seenTags[m.Tag] {
			seenTags[m.Tag] = true
			tags = append(tags, m.Tag)
		}
	}

	rec := models.ConsolidatedMemory{
		ID:          newRecordID(mode, tags[0], now),
		Tag:         strings.Join(tags, ","),
		Type:        models.TypeConsolidated,
		SourceCount: len(cluster),
		SourceIDs:   ids,
		Content:     strings.Join(contents, models.ContentDelimiter),
		CreatedAt:   now,
	}
	if mode == ModeContent {
		rec.SimilarityScore = threshold
	}

	return rec
}

// newRecordID derives a consolidated-record id from the mode, tag, and
// current time. The second-resolution timestamp keeps ids human-readable;
// the random suffix guards against same-second collisions.
func newRecordID(mode, tag string, now time.Time) string {
	suffix := uuid.NewString()[:8]
	if mode == ModeTag {
		return fmt.Sprintf("consolidated_tag_%s_%d_%s", tag, now.Unix(), suffix)
	}
	return fmt.Sprintf("consolidated_content_%d_%s", now.Unix(), suffix)
}
