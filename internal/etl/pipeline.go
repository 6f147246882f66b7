package etl

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/parquet-go"
	"go.uber.org/zap"

	"github.com/entityscan/entityscan/internal/cache"
	"github.com/entityscan/entityscan/internal/config"
	"github.com/entityscan/entityscan/internal/extract"
	"github.com/entityscan/entityscan/internal/store"
)

// MatchSink receives the flattened match records. *store.MatchStore satisfies
// it; tests use an in-memory sink.
type MatchSink interface {
	BatchInsert(ctx context.Context, records []*store.MatchRecord) (*store.BatchInsertResult, error)
}

// Pipeline runs the extractor over dataset files and persists the matches
type Pipeline struct {
	sink        MatchSink
	resultCache *cache.ResultCache
	config      *config.ETLConfig
	logger      *zap.Logger
	stats       *ProcessingStats
	mu          sync.RWMutex
}

// NewPipeline creates a new ETL pipeline
func NewPipeline(sink MatchSink, resultCache *cache.ResultCache, cfg *config.ETLConfig, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		sink:        sink,
		resultCache: resultCache,
		config:      cfg,
		logger:      logger,
		stats: &ProcessingStats{
			StartTime: time.Now(),
		},
	}
}

// ProcessFile processes a dataset file (CSV, Parquet, or JSON lines)
func (p *Pipeline) ProcessFile(ctx context.Context, filePath string) (*ProcessingResult, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	p.logger.Info("Starting ETL pipeline",
		zap.String("file", filePath),
		zap.Int("batch_size", p.config.BatchSize))

	start := time.Now()
	result := &ProcessingResult{}

	format := DetectFileFormat(filePath)
	p.logger.Info("Detected file format", zap.String("format", string(format)))

	p.resetStats()

	var err error
	switch format {
	case FormatCSV:
		err = p.processCSV(ctx, filePath, result)
	case FormatParquet:
		err = p.processParquet(ctx, filePath, result)
	case FormatJSON:
		err = p.processJSON(ctx, filePath, result)
	default:
		return result, fmt.Errorf("unsupported file format: %s", format)
	}
	if err != nil {
		return result, fmt.Errorf("%s processing failed: %w", format, err)
	}

	result.Duration = time.Since(start)

	p.logger.Info("ETL pipeline completed",
		zap.Int64("total_records", result.TotalRecords),
		zap.Int64("processed_ok", result.ProcessedOK),
		zap.Int64("processed_failed", result.ProcessedFailed),
		zap.Int64("matches_found", result.MatchesFound),
		zap.Duration("total_duration", result.Duration),
		zap.Duration("extract_time", result.ExtractTime),
		zap.Duration("database_time", result.DatabaseTime))

	return result, nil
}

// processCSV processes CSV files with a header row holding a text column and
// an optional source column
func (p *Pipeline) processCSV(ctx context.Context, filePath string, result *ProcessingResult) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)

	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("failed to read CSV header: %w", err)
	}

	textCol, sourceCol := -1, -1
	for i, name := range header {
		switch strings.TrimSpace(strings.ToLower(name)) {
		case "text":
			textCol = i
		case "source":
			sourceCol = i
		}
	}
	if textCol < 0 {
		return fmt.Errorf("CSV header has no text column: %v", header)
	}

	return p.processBatches(ctx, func() ([]*TextRecord, error) {
		var batch []*TextRecord

		for len(batch) < p.config.BatchSize {
			row, err := reader.Read()
			if err == io.EOF {
				break
			}
			if err != nil {
				p.logger.Warn("Failed to read CSV record", zap.Error(err))
				continue
			}
			if textCol >= len(row) {
				p.logger.Warn("Short CSV record", zap.Int("length", len(row)))
				continue
			}

			record := &TextRecord{Text: row[textCol]}
			if sourceCol >= 0 && sourceCol < len(row) {
				record.Source = row[sourceCol]
			}

			if p.validateRecord(record) {
				batch = append(batch, record)
			}
		}

		return batch, nil
	}, result)
}

// processParquet processes Parquet files
func (p *Pipeline) processParquet(ctx context.Context, filePath string, result *ProcessingResult) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open Parquet file: %w", err)
	}
	defer file.Close()

	reader := parquet.NewReader(file)
	defer reader.Close()

	return p.processBatches(ctx, func() ([]*TextRecord, error) {
		var batch []*TextRecord

		for len(batch) < p.config.BatchSize {
			var record TextRecord
			err := reader.Read(&record)
			if err == io.EOF {
				break
			}
			if err != nil {
				p.logger.Warn("Failed to read Parquet record", zap.Error(err))
				continue
			}

			if p.validateRecord(&record) {
				copied := record
				batch = append(batch, &copied)
			}
		}

		return batch, nil
	}, result)
}

// processJSON processes JSON files (one JSON object per line)
func (p *Pipeline) processJSON(ctx context.Context, filePath string, result *ProcessingResult) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open JSON file: %w", err)
	}
	defer file.Close()

	decoder := json.NewDecoder(file)

	return p.processBatches(ctx, func() ([]*TextRecord, error) {
		var batch []*TextRecord

		for len(batch) < p.config.BatchSize {
			var record TextRecord
			err := decoder.Decode(&record)
			if err == io.EOF {
				break
			}
			if err != nil {
				return batch, fmt.Errorf("failed to decode JSON record: %w", err)
			}

			if p.validateRecord(&record) {
				copied := record
				batch = append(batch, &copied)
			}
		}

		return batch, nil
	}, result)
}

// processBatches drains the reader function batch by batch
func (p *Pipeline) processBatches(ctx context.Context, readBatch func() ([]*TextRecord, error), result *ProcessingResult) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		batch, err := readBatch()
		if err != nil {
			return fmt.Errorf("failed to read batch: %w", err)
		}

		if len(batch) == 0 {
			break
		}

		if err := p.processBatch(ctx, batch, result); err != nil {
			p.logger.Error("Batch processing failed", zap.Error(err))
			result.ProcessedFailed += int64(len(batch))
			result.Errors = append(result.Errors, err.Error())
			result.TotalRecords += int64(len(batch))
			continue
		}

		result.TotalRecords += int64(len(batch))
		result.ProcessedOK += int64(len(batch))

		if p.config.ProgressReport > 0 && result.TotalRecords%int64(p.config.ProgressReport) == 0 {
			p.reportProgress(result)
		}
	}

	return nil
}

// processBatch extracts entities from a batch of records and persists them
func (p *Pipeline) processBatch(ctx context.Context, batch []*TextRecord, result *ProcessingResult) error {
	if len(batch) == 0 {
		return nil
	}

	extractStart := time.Now()
	var records []*store.MatchRecord
	results := make([]extract.Result, len(batch))
	for i, record := range batch {
		results[i] = extract.ExtractAll(record.Text)
		records = append(records, store.RecordsFromResult(record.Text, results[i])...)
	}
	result.ExtractTime += time.Since(extractStart)
	result.MatchesFound += int64(len(records))

	if len(records) > 0 {
		dbStart := time.Now()
		insertResult, err := p.sink.BatchInsert(ctx, records)
		if err != nil {
			return fmt.Errorf("database batch insert failed: %w", err)
		}
		result.DatabaseTime += time.Since(dbStart)

		p.mu.Lock()
		p.stats.DatabaseWrites += insertResult.Inserted
		p.mu.Unlock()
	}

	if p.config.UpdateCache && p.resultCache != nil {
		cacheStart := time.Now()
		p.warmCache(ctx, batch, results)
		result.CacheTime += time.Since(cacheStart)
	}

	p.mu.Lock()
	p.stats.RecordsRead += int64(len(batch))
	p.stats.RecordsValid += int64(len(batch))
	p.stats.MatchesFound += int64(len(records))
	p.mu.Unlock()

	p.logger.Debug("Batch processed",
		zap.Int("batch_size", len(batch)),
		zap.Int("matches", len(records)))

	return nil
}

// warmCache pre-populates the result cache with the batch results
func (p *Pipeline) warmCache(ctx context.Context, batch []*TextRecord, results []extract.Result) {
	for i, record := range batch {
		if results[i].Total() == 0 {
			continue
		}
		if err := p.resultCache.Set(ctx, record.Text, results[i]); err != nil {
			p.logger.Warn("Failed to warm cache", zap.Error(err))
			return
		}
	}
}

// validateRecord validates a dataset record
func (p *Pipeline) validateRecord(record *TextRecord) bool {
	if !p.config.ValidateData {
		return true
	}

	if strings.TrimSpace(record.Text) == "" {
		p.logger.Debug("Invalid record: empty text")
		p.countInvalid()
		return false
	}

	if p.config.MaxTextBytes > 0 && len(record.Text) > p.config.MaxTextBytes {
		p.logger.Debug("Invalid record: text too long", zap.Int("length", len(record.Text)))
		p.countInvalid()
		return false
	}

	return true
}

func (p *Pipeline) countInvalid() {
	p.mu.Lock()
	p.stats.RecordsInvalid++
	p.mu.Unlock()
}

// reportProgress reports current processing progress
func (p *Pipeline) reportProgress(result *ProcessingResult) {
	elapsed := time.Since(p.stats.StartTime)
	rate := float64(result.TotalRecords) / elapsed.Seconds()

	p.logger.Info("Processing progress",
		zap.Int64("records_processed", result.TotalRecords),
		zap.Int64("records_ok", result.ProcessedOK),
		zap.Int64("records_failed", result.ProcessedFailed),
		zap.Int64("matches_found", result.MatchesFound),
		zap.Float64("rate_per_sec", rate),
		zap.Duration("elapsed", elapsed))
}

// resetStats resets processing statistics
func (p *Pipeline) resetStats() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stats = &ProcessingStats{
		StartTime: time.Now(),
	}
}

// GetStats returns current processing statistics
func (p *Pipeline) GetStats() *ProcessingStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	stats := *p.stats
	return &stats
}
