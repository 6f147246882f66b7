package store

import (
	"time"
)

// MatchRecord is one persisted entity match. Ordinal is the match's position
// within its category sequence for the source text, so the left-to-right
// order survives a round trip through the database.
type MatchRecord struct {
	ID         int64     `db:"id" json:"id"`
	TextHash   string    `db:"text_hash" json:"text_hash"`
	EntityType string    `db:"entity_type" json:"entity_type"`
	Value      string    `db:"value" json:"value"`
	Ordinal    int       `db:"ordinal" json:"ordinal"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// BatchInsertResult represents the result of a batch insert operation
type BatchInsertResult struct {
	Inserted int64         `json:"inserted"`
	Failed   int64         `json:"failed"`
	Duration time.Duration `json:"duration"`
}

// MatchStats represents per-category database statistics
type MatchStats struct {
	TotalMatches   int64            `json:"total_matches"`
	DistinctTexts  int64            `json:"distinct_texts"`
	CountsByEntity map[string]int64 `json:"counts_by_entity"`
}
