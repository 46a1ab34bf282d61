package writer

/*
Responsibilities
- Append ScrapedContent-derived records to a single output file
- Support jsonl, json-array, and csv framing
- Buffer writes and flush on a size/interval boundary or on Close
- Emit a sibling metadata file describing the completed run

Once Close returns, the output file is complete and self-describing: no
further writes, partial records, or rewrites are permitted.
*/

import "time"

type Format string

const (
	FormatJSONL Format = "jsonl"
	FormatJSON  Format = "json"
	FormatCSV   Format = "csv"
)

// Record is the flattened, serializable shape written to the output file.
// It mirrors scraper.ScrapedContent's exported fields the writer actually
// persists; CSV output uses only the fixed column subset noted below.
type Record struct {
	Url          string    `json:"url"`
	Title        string    `json:"title"`
	Depth        int       `json:"depth"`
	WordCount    int       `json:"wordCount"`
	Language     string    `json:"language"`
	ScrapedAt    time.Time `json:"scrapedAt"`
	Headings     []string  `json:"headings,omitempty"`
	Body         string    `json:"body,omitempty"`
	Links        []string  `json:"links,omitempty"`
	CleanedHTML  string    `json:"cleanedHtml,omitempty"`
	Status       string    `json:"status"`
	ContentHash  string    `json:"contentHash,omitempty"`
	HttpStatus   int       `json:"httpStatus"`
	ErrorMessage string    `json:"errorMessage,omitempty"`

	// Skip marks a record change-detection decided is unchanged: its
	// outbound links were still enqueued, but the record itself must not be
	// emitted to the output file. Never serialized.
	Skip bool `json:"-"`
}

// csvColumns is the fixed CSV column order from the component design.
var csvColumns = []string{"url", "title", "depth", "wordCount", "language", "scrapedAt"}

// Meta is the sibling {jobId}-meta.json footer written on Close.
type Meta struct {
	JobId        string    `json:"jobId"`
	OutputPath   string    `json:"outputPath"`
	Format       Format    `json:"format"`
	TotalResults int       `json:"totalResults"`
	CompletedAt  time.Time `json:"completedAt"`
}

// Params configures a Writer instance.
type Params struct {
	OutputDir     string
	JobId         string
	Format        Format
	FlushInterval int // buffered record count that triggers an automatic flush
	MaxBuffer     int // buffered record count that forces an immediate flush
}

func DefaultParams(outputDir string, jobId string) Params {
	return Params{
		OutputDir:     outputDir,
		JobId:         jobId,
		Format:        FormatJSONL,
		FlushInterval: 50,
		MaxBuffer:     500,
	}
}
