package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/memtide/memtide/internal/db"
	"github.com/memtide/memtide/pkg/models"
)

// InsertConsolidated stores one consolidated record.
func (s *Store) InsertConsolidated(ctx context.Context, rec *models.ConsolidatedMemory) error {
	var score sql.NullFloat64
	if rec.SimilarityScore > 0 {
		score = sql.NullFloat64{Float64: rec.SimilarityScore, Valid: true}
	}

	_, err := s.execContext(ctx, `
		INSERT INTO consolidated_memories
			(id, tag, type, source_count, source_ids, content, similarity_score, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Tag, rec.Type, rec.SourceCount, rec.SourceIDs, rec.Content, score, rec.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("insert consolidated: %w", err)
	}
	return nil
}

// ListConsolidated returns consolidated records, newest first.
func (s *Store) ListConsolidated(ctx context.Context, limit int) ([]models.ConsolidatedMemory, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.queryContext(ctx, `
		SELECT id, tag, type, source_count, source_ids, content, similarity_score, created_at
		FROM consolidated_memories
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list consolidated: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var recs []models.ConsolidatedMemory
	for rows.Next() {
		var rec models.ConsolidatedMemory
		var score sql.NullFloat64
		var createdAt int64
		if err := rows.Scan(&rec.ID, &rec.Tag, &rec.Type, &rec.SourceCount, &rec.SourceIDs, &rec.Content, &score, &createdAt); err != nil {
			return nil, fmt.Errorf("scan consolidated: %w", err)
		}
		if score.Valid {
			rec.SimilarityScore = score.Float64
		}
		rec.CreatedAt = time.Unix(createdAt, 0)
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// GetStats returns record counts across both tables.
func (s *Store) GetStats(ctx context.Context) (*db.Stats, error) {
	stats := &db.Stats{}

	row := s.queryRowContext(ctx, `SELECT COUNT(*) FROM memories`)
	if err := row.Scan(&stats.Memories); err != nil {
		return nil, fmt.Errorf("count memories: %w", err)
	}

	row = s.queryRowContext(ctx, `SELECT COUNT(*) FROM memories WHERE consolidated_at IS NULL`)
	if err := row.Scan(&stats.Unconsolidated); err != nil {
		return nil, fmt.Errorf("count unconsolidated: %w", err)
	}

	row = s.queryRowContext(ctx, `SELECT COUNT(*) FROM consolidated_memories`)
	if err := row.Scan(&stats.Consolidated); err != nil {
		return nil, fmt.Errorf("count consolidated: %w", err)
	}

	return stats, nil
}
