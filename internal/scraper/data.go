package scraper

import (
	"net/url"
	"time"
)

// Status classifies the outcome of a single scrape.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
	StatusPartial Status = "PARTIAL"
)

// ScrapedContent is the content record produced for a single page. It is the
// unit passed to change detection and the streaming writer.
type ScrapedContent struct {
	Url             url.URL
	Title           string
	Headings        []string
	Body            string
	Links           []url.URL
	CleanedHTML     string
	CrawledAt       time.Time
	ScrapedAt       time.Time
	FetchDuration   time.Duration
	Depth           int
	ParentUrl       *url.URL
	HttpStatus      int
	ContentType     string
	WordCount       int
	Language        string
	ContentHash     string
	Status          Status
	ErrorMessage    string
}

// ScrapeParam carries per-page context the Scraper cannot derive from the
// DOM alone: where the page came from and when it was fetched.
type ScrapeParam struct {
	SourceUrl     url.URL
	ParentUrl     *url.URL
	Depth         int
	CrawledAt     time.Time
	FetchDuration time.Duration
	HttpStatus    int
	ContentType   string
}
