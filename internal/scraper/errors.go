package scraper

import (
	"fmt"

	"github.com/rohmanhakim/webcrawler/pkg/failure"
)

type ScrapeErrorCause string

const (
	ErrCauseExtraction ScrapeErrorCause = "extraction failed"
	ErrCauseSanitize   ScrapeErrorCause = "sanitize failed"
	ErrCauseHash       ScrapeErrorCause = "hash failed"
)

type ScrapeError struct {
	Message   string
	Retryable bool
	Cause     ScrapeErrorCause
}

func (e *ScrapeError) Error() string {
	return fmt.Sprintf("scrape error: %s: %s", e.Cause, e.Message)
}

func (e *ScrapeError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}
