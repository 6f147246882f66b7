package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/entityscan/entityscan/internal/config"
	"github.com/entityscan/entityscan/internal/extract"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// MatchStore persists extraction matches in PostgreSQL
type MatchStore struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// New creates a new match store instance
func New(cfg *config.StoreConfig, logger *zap.Logger) (*MatchStore, error) {
	db, err := sqlx.Connect("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	store := &MatchStore{
		db:     db,
		logger: logger,
	}

	if err := store.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	logger.Info("Match store initialized",
		zap.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		zap.Int("max_open_conns", cfg.MaxOpenConns),
		zap.Int("max_idle_conns", cfg.MaxIdleConns))

	return store, nil
}

// initialize checks the connection and ensures the schema exists
func (s *MatchStore) initialize() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS extraction_matches (
			id          BIGSERIAL PRIMARY KEY,
			text_hash   CHAR(64) NOT NULL,
			entity_type TEXT NOT NULL,
			value       TEXT NOT NULL,
			ordinal     INT NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (text_hash, entity_type, ordinal)
		)`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}

	return nil
}

// RecordResult persists every match of a result mapping for one source text
func (s *MatchStore) RecordResult(ctx context.Context, text string, result extract.Result) error {
	records := RecordsFromResult(text, result)
	if len(records) == 0 {
		return nil
	}

	_, err := s.BatchInsert(ctx, records)
	return err
}

// BatchInsert adds multiple match records efficiently
func (s *MatchStore) BatchInsert(ctx context.Context, records []*MatchRecord) (*BatchInsertResult, error) {
	if len(records) == 0 {
		return &BatchInsertResult{}, nil
	}

	start := time.Now()
	result := &BatchInsertResult{}

	valueStrings := make([]string, 0, len(records))
	valueArgs := make([]interface{}, 0, len(records)*4)

	for i, record := range records {
		valueStrings = append(valueStrings, fmt.Sprintf("($%d, $%d, $%d, $%d)", i*4+1, i*4+2, i*4+3, i*4+4))
		valueArgs = append(valueArgs,
			record.TextHash,
			record.EntityType,
			record.Value,
			record.Ordinal,
		)
	}

	query := fmt.Sprintf(`
		INSERT INTO extraction_matches (text_hash, entity_type, value, ordinal)
		VALUES %s
		ON CONFLICT (text_hash, entity_type, ordinal) DO NOTHING`,
		strings.Join(valueStrings, ","))

	res, err := s.db.ExecContext(ctx, query, valueArgs...)
	if err != nil {
		result.Failed = int64(len(records))
		s.logger.Error("Batch insert failed", zap.Error(err))
		return result, fmt.Errorf("batch insert failed: %w", err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		s.logger.Warn("Could not get rows affected", zap.Error(err))
		inserted = int64(len(records))
	}

	result.Inserted = inserted
	result.Duration = time.Since(start)

	s.logger.Debug("Batch insert completed",
		zap.Int64("inserted", result.Inserted),
		zap.Int64("duplicates_skipped", int64(len(records))-inserted),
		zap.Duration("duration", result.Duration))

	return result, nil
}

// GetStats returns per-category match statistics
func (s *MatchStore) GetStats(ctx context.Context) (*MatchStats, error) {
	stats := &MatchStats{
		CountsByEntity: make(map[string]int64),
	}

	query := `SELECT COUNT(*), COUNT(DISTINCT text_hash) FROM extraction_matches`
	if err := s.db.QueryRowContext(ctx, query).Scan(&stats.TotalMatches, &stats.DistinctTexts); err != nil {
		return nil, fmt.Errorf("failed to get match stats: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT entity_type, COUNT(*)
		FROM extraction_matches
		GROUP BY entity_type`)
	if err != nil {
		return nil, fmt.Errorf("failed to get per-entity stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var entityType string
		var count int64
		if err := rows.Scan(&entityType, &count); err != nil {
			s.logger.Error("Failed to scan entity stats row", zap.Error(err))
			continue
		}
		stats.CountsByEntity[entityType] = count
	}

	return stats, rows.Err()
}

// Close closes the database connection
func (s *MatchStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// RecordsFromResult flattens a result mapping into match records, walking the
// categories in declaration order.
func RecordsFromResult(text string, result extract.Result) []*MatchRecord {
	hash := TextHash(text)
	var records []*MatchRecord
	for _, entityType := range extract.EntityTypes {
		for ordinal, value := range result[entityType] {
			records = append(records, &MatchRecord{
				TextHash:   hash,
				EntityType: string(entityType),
				Value:      value,
				Ordinal:    ordinal,
			})
		}
	}
	return records
}

// TextHash computes the SHA-256 hex digest used to key a source text
func TextHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// maskDatabaseURL masks credentials in a database URL for logging
func maskDatabaseURL(url string) string {
	if strings.Contains(url, "@") {
		parts := strings.Split(url, "@")
		if len(parts) >= 2 {
			userPart := parts[0]
			if strings.Contains(userPart, ":") {
				userParts := strings.Split(userPart, ":")
				if len(userParts) >= 3 {
					userParts[len(userParts)-1] = "***"
					parts[0] = strings.Join(userParts, ":")
				}
			}
			return strings.Join(parts, "@")
		}
	}
	return url
}
