package scheduler

import "time"

// Summary is the terminal, aggregate report of a completed crawl run.
type Summary struct {
	Discovered  int
	Processed   int
	Skipped     int
	Unchanged   int
	Failed      int
	DurationMs  int64
	PagesPerSec float64

	// Retained for backward-compatible callers. TotalErrors mirrors Failed;
	// TotalPages is the number of records the writer wrote, and
	// TotalChanged the number of written records that carry a content hash.
	TotalPages   int
	TotalErrors  int
	TotalChanged int
	OutputPath   string
	Duration     time.Duration
}
