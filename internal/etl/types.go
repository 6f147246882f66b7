package etl

import (
	"strings"
	"time"
)

// TextRecord represents a single record from the input dataset
type TextRecord struct {
	Text   string `csv:"text" parquet:"text" json:"text"`
	Source string `csv:"source" parquet:"source" json:"source"`
}

// ProcessingResult represents the result of processing a dataset
type ProcessingResult struct {
	TotalRecords    int64         `json:"total_records"`
	ProcessedOK     int64         `json:"processed_ok"`
	ProcessedFailed int64         `json:"processed_failed"`
	MatchesFound    int64         `json:"matches_found"`
	Duration        time.Duration `json:"duration"`
	ExtractTime     time.Duration `json:"extract_time"`
	DatabaseTime    time.Duration `json:"database_time"`
	CacheTime       time.Duration `json:"cache_time"`
	Errors          []string      `json:"errors,omitempty"`
}

// ProcessingStats tracks real-time processing statistics
type ProcessingStats struct {
	StartTime      time.Time `json:"start_time"`
	RecordsRead    int64     `json:"records_read"`
	RecordsValid   int64     `json:"records_valid"`
	RecordsInvalid int64     `json:"records_invalid"`
	MatchesFound   int64     `json:"matches_found"`
	DatabaseWrites int64     `json:"database_writes"`
}

// FileFormat represents supported file formats
type FileFormat string

const (
	FormatCSV     FileFormat = "csv"
	FormatParquet FileFormat = "parquet"
	FormatJSON    FileFormat = "json"
)

// DetectFileFormat detects file format from extension
func DetectFileFormat(filename string) FileFormat {
	switch {
	case strings.HasSuffix(filename, ".csv"):
		return FormatCSV
	case strings.HasSuffix(filename, ".parquet"):
		return FormatParquet
	case strings.HasSuffix(filename, ".json"), strings.HasSuffix(filename, ".jsonl"):
		return FormatJSON
	default:
		return FormatCSV
	}
}
