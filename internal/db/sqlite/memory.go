package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/memtide/memtide/pkg/models"
)

// InsertMemory stores one raw memory. A missing id gets a generated one
// and a zero timestamp defaults to now.
func (s *Store) InsertMemory(ctx context.Context, m *models.Memory) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}

	_, err := s.execContext(ctx, `
		INSERT INTO memories (id, tag, content, source, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.Tag, m.Content, m.Source, m.Metadata, m.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("insert memory: %w", err)
	}
	return nil
}

// InsertMemories stores a batch of raw memories in one transaction and
// returns how many were inserted.
func (s *Store) InsertMemories(ctx context.Context, memories []models.Memory) (int, error) {
	if len(memories) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO memories (id, tag, content, source, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	inserted := 0
	for i := range memories {
		m := &memories[i]
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		if m.CreatedAt.IsZero() {
			m.CreatedAt = time.Now()
		}
		if _, err := stmt.ExecContext(ctx, m.ID, m.Tag, m.Content, m.Source, m.Metadata, m.CreatedAt.Unix()); err != nil {
			return inserted, fmt.Errorf("insert memory %s: %w", m.ID, err)
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return inserted, nil
}

// ListMemories returns raw memories in insertion order, newest last.
func (s *Store) ListMemories(ctx context.Context, limit int) ([]models.Memory, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.queryContext(ctx, `
		SELECT id, tag, content, source, metadata, created_at
		FROM memories
		ORDER BY created_at ASC, id ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanMemories(rows)
}

// ListUnconsolidated returns memories not yet consumed by a
// consolidation pass, in insertion order.
func (s *Store) ListUnconsolidated(ctx context.Context, limit int) ([]models.Memory, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.queryContext(ctx, `
		SELECT id, tag, content, source, metadata, created_at
		FROM memories
		WHERE consolidated_at IS NULL
		ORDER BY created_at ASC, id ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list unconsolidated: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanMemories(rows)
}

// MarkConsolidated stamps the given memories as consumed by a
// consolidation pass. The originals are retained, not deleted.
func (s *Store) MarkConsolidated(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	now := time.Now().Unix()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `UPDATE memories SET consolidated_at = ? WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("prepare update: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, now, id); err != nil {
			return fmt.Errorf("mark consolidated %s: %w", id, err)
		}
	}

	return tx.Commit()
}

func scanMemories(rows *sql.Rows) ([]models.Memory, error) {
	var memories []models.Memory
	for rows.Next() {
		var m models.Memory
		var createdAt int64
		if err := rows.Scan(&m.ID, &m.Tag, &m.Content, &m.Source, &m.Metadata, &createdAt); err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		m.CreatedAt = time.Unix(createdAt, 0)
		memories = append(memories, m)
	}
	return memories, rows.Err()
}
