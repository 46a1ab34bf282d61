package metadata

/*
Metadata Collected
- Fetch timestamps
- HTTP status codes
- Content hashes
- Crawl depth

Logging Goals
- Debuggable crawl behavior
- Post-run auditability
- Failure diagnostics

Structured logging is preferred.

Allowed:
- Primitive values
- Timestamps
- URLs (as values, not objects with behavior)
- Hashes
- Status codes
- Durations
- Identifiers (page ID, crawl ID)
*/

import (
	"log/slog"
	"sync"
	"time"
)

// Recorder is the default MetadataSink. It forwards every event to a
// structured logger and keeps an in-memory tally for the terminal
// crawlStats summary. It never reads back from pipeline packages: the flow
// is write-only by design.
type Recorder struct {
	logger *slog.Logger

	mu     sync.Mutex
	stats  crawlStats
	errors []ErrorRecord
}

func NewRecorder(logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{logger: logger}
}

var _ MetadataSink = (*Recorder)(nil)

func (r *Recorder) RecordFetch(
	fetchUrl string,
	httpStatus int,
	duration time.Duration,
	contentType string,
	retryCount int,
	crawlDepth int,
) {
	r.mu.Lock()
	r.stats.totalPages++
	r.mu.Unlock()

	r.logger.Info("fetch",
		slog.String("url", fetchUrl),
		slog.Int("status", httpStatus),
		slog.Duration("duration", duration),
		slog.String("content_type", contentType),
		slog.Int("retry_count", retryCount),
		slog.Int("depth", crawlDepth),
	)
}

func (r *Recorder) RecordAssetFetch(
	fetchUrl string,
	httpStatus int,
	duration time.Duration,
	retryCount int,
) {
	r.mu.Lock()
	r.stats.totalAssets++
	r.mu.Unlock()

	r.logger.Info("asset_fetch",
		slog.String("url", fetchUrl),
		slog.Int("status", httpStatus),
		slog.Duration("duration", duration),
		slog.Int("retry_count", retryCount),
	)
}

func (r *Recorder) RecordError(
	observedAt time.Time,
	packageName string,
	action string,
	cause ErrorCause,
	errString string,
	attrs []Attribute,
) {
	record := ErrorRecord{
		packageName: packageName,
		action:      action,
		cause:       cause,
		errorString: errString,
		observedAt:  observedAt,
		attrs:       attrs,
	}

	r.mu.Lock()
	r.stats.totalErrors++
	r.errors = append(r.errors, record)
	r.mu.Unlock()

	args := []any{
		slog.String("package", packageName),
		slog.String("action", action),
		slog.Int("cause", int(cause)),
		slog.String("error", errString),
	}
	for _, a := range attrs {
		args = append(args, slog.String(string(a.Key), a.Value))
	}
	r.logger.Warn("pipeline_error", args...)
}

func (r *Recorder) RecordArtifact(kind ArtifactKind, path string, attrs []Attribute) {
	args := []any{
		slog.Int("kind", int(kind)),
		slog.String("path", path),
	}
	for _, a := range attrs {
		args = append(args, slog.String(string(a.Key), a.Value))
	}
	r.logger.Info("artifact", args...)
}

// Snapshot returns the terminal crawl summary computed so far. It is safe to
// call mid-crawl but is intended to be read exactly once, after the crawl
// engine has stopped submitting events.
func (r *Recorder) Snapshot(elapsed time.Duration) CrawlSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return CrawlSummary{
		TotalPages:  r.stats.totalPages,
		TotalErrors: r.stats.totalErrors,
		TotalAssets: r.stats.totalAssets,
		Duration:    elapsed,
	}
}

// CrawlSummary is the exported, read-only view of crawlStats handed back to
// the CLI layer at the end of a run.
type CrawlSummary struct {
	TotalPages  int
	TotalErrors int
	TotalAssets int
	Duration    time.Duration
}
