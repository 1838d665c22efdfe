// Package db defines database interfaces for the memtide stores.
package db

import (
	"context"

	"github.com/memtide/memtide/pkg/models"
)

// Stats summarizes store contents.
type Stats struct {
	Memories       int `json:"memories"`
	Unconsolidated int `json:"unconsolidated"`
	Consolidated   int `json:"consolidated_records"`
}

// MemoryReader defines read operations for raw memories.
type MemoryReader interface {
	ListMemories(ctx context.Context, limit int) ([]models.Memory, error)
	ListUnconsolidated(ctx context.Context, limit int) ([]models.Memory, error)
}

// MemoryWriter defines write operations for raw memories.
type MemoryWriter interface {
	InsertMemory(ctx context.Context, m *models.Memory) error
	InsertMemories(ctx context.Context, memories []models.Memory) (int, error)
	MarkConsolidated(ctx context.Context, ids []string) error
}

// ConsolidatedReader defines read operations for consolidated records.
type ConsolidatedReader interface {
	ListConsolidated(ctx context.Context, limit int) ([]models.ConsolidatedMemory, error)
}

// ConsolidatedWriter defines write operations for consolidated records.
type ConsolidatedWriter interface {
	InsertConsolidated(ctx context.Context, rec *models.ConsolidatedMemory) error
}

// Store combines all store operations plus stats and lifecycle.
type Store interface {
	MemoryReader
	MemoryWriter
	ConsolidatedReader
	ConsolidatedWriter
	GetStats(ctx context.Context) (*Stats, error)
	Close() error
}
