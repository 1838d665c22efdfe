// Package models contains domain models for memtide.
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// TypeConsolidated is the type marker on records produced by the
// consolidation engine. It distinguishes them from raw memories and from
// other derived record types (e.g. insights) in the wider memory store.
const TypeConsolidated = "consolidated"

// ContentDelimiter joins source contents inside a consolidated record.
const ContentDelimiter = " | "

// JSONStringArray is a custom type for handling JSON string arrays in SQLite.
type JSONStringArray []string

// Scan implements sql.Scanner for JSONStringArray.
func (j *JSONStringArray) Scan(src interface{}) error {
	if src == nil {
		*j = nil
		return nil
	}

	var data []byte
	switch v := src.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("JSONStringArray: unsupported type %T", src)
	}

	if len(data) == 0 {
		*j = nil
		return nil
	}

	return json.Unmarshal(data, j)
}

// Value implements driver.Valuer for JSONStringArray.
func (j JSONStringArray) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// JSONMap is a custom type for handling JSON objects in SQLite.
type JSONMap map[string]interface{}

// Scan implements sql.Scanner for JSONMap.
func (j *JSONMap) Scan(src interface{}) error {
	if src == nil {
		*j = nil
		return nil
	}

	var data []byte
	switch v := src.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("JSONMap: unsupported type %T", src)
	}

	if len(data) == 0 {
		*j = nil
		return nil
	}

	return json.Unmarshal(data, j)
}

// Value implements driver.Valuer for JSONMap.
func (j JSONMap) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Memory is one atomic unit of stored text. Missing tag or content is
// treated as the empty string; the consolidation engine never mutates a
// Memory, it only reads them and produces new records.
type Memory struct {
	ID        string    `db:"id" json:"id"`
	Tag       string    `db:"tag" json:"tag,omitempty"`
	Content   string    `db:"content" json:"content,omitempty"`
	Source    string    `db:"source" json:"source,omitempty"`
	Metadata  JSONMap   `db:"metadata" json:"metadata,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"timestamp,omitempty"`
}

// ConsolidatedMemory is a derived record summarizing multiple memories
// merged by tag or by content similarity.
type ConsolidatedMemory struct {
	ID          string          `db:"id" json:"id"`
	Tag         string          `db:"tag" json:"tag"`
	Type        string          `db:"type" json:"type"`
	SourceCount int             `db:"source_count" json:"source_count"`
	SourceIDs   JSONStringArray `db:"source_ids" json:"source_ids"`
	Content     string          `db:"content" json:"content"`
	// SimilarityScore is set in content mode only and records the threshold
	// used for the run, not a measured pairwise score.
	SimilarityScore float64   `db:"similarity_score" json:"similarity_score,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"timestamp"`
}
