package writer_test

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rohmanhakim/webcrawler/internal/metadata"
	"github.com/rohmanhakim/webcrawler/internal/writer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newParams(dir string, format writer.Format) writer.Params {
	p := writer.DefaultParams(dir, "job-1")
	p.Format = format
	p.FlushInterval = 2
	p.MaxBuffer = 10
	return p
}

func sampleRecord(url string) writer.Record {
	return writer.Record{
		Url:       url,
		Title:     "Example Title",
		Depth:     1,
		WordCount: 42,
		Language:  "en",
		ScrapedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Status:    "ok",
	}
}

func TestWrite_JSONLFormat(t *testing.T) {
	dir := t.TempDir()
	w, err := writer.NewWriter(metadata.NoopSink{}, newParams(dir, writer.FormatJSONL))
	require.Nil(t, err)

	require.Nil(t, w.Write(sampleRecord("https://example.com/a")))
	require.Nil(t, w.Write(sampleRecord("https://example.com/b")))
	require.Nil(t, w.Close())

	f, openErr := os.Open(filepath.Join(dir, "job-1-results.jsonl"))
	require.NoError(t, openErr)
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lines := 0
	for scanner.Scan() {
		var record writer.Record
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &record))
		lines++
	}
	assert.Equal(t, 2, lines)
}

func TestWrite_JSONFormatProducesValidArray(t *testing.T) {
	dir := t.TempDir()
	w, err := writer.NewWriter(metadata.NoopSink{}, newParams(dir, writer.FormatJSON))
	require.Nil(t, err)

	require.Nil(t, w.Write(sampleRecord("https://example.com/a")))
	require.Nil(t, w.Write(sampleRecord("https://example.com/b")))
	require.Nil(t, w.Close())

	data, readErr := os.ReadFile(filepath.Join(dir, "job-1-results.json"))
	require.NoError(t, readErr)

	var records []writer.Record
	require.NoError(t, json.Unmarshal(data, &records))
	assert.Len(t, records, 2)
}

func TestWrite_CSVFormatHasFixedColumns(t *testing.T) {
	dir := t.TempDir()
	w, err := writer.NewWriter(metadata.NoopSink{}, newParams(dir, writer.FormatCSV))
	require.Nil(t, err)

	require.Nil(t, w.Write(sampleRecord("https://example.com/a")))
	require.Nil(t, w.Close())

	f, openErr := os.Open(filepath.Join(dir, "job-1-results.csv"))
	require.NoError(t, openErr)
	defer f.Close()

	reader := csv.NewReader(f)
	rows, readErr := reader.ReadAll()
	require.NoError(t, readErr)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"url", "title", "depth", "wordCount", "language", "scrapedAt"}, rows[0])
	assert.Equal(t, "https://example.com/a", rows[1][0])
}

func TestClose_WritesMetaSidecar(t *testing.T) {
	dir := t.TempDir()
	w, err := writer.NewWriter(metadata.NoopSink{}, newParams(dir, writer.FormatJSONL))
	require.Nil(t, err)

	require.Nil(t, w.Write(sampleRecord("https://example.com/a")))
	require.Nil(t, w.Close())

	data, readErr := os.ReadFile(filepath.Join(dir, "job-1-meta.json"))
	require.NoError(t, readErr)

	var meta writer.Meta
	require.NoError(t, json.Unmarshal(data, &meta))
	assert.Equal(t, "job-1", meta.JobId)
	assert.Equal(t, 1, meta.TotalResults)
	assert.Equal(t, writer.FormatJSONL, meta.Format)
}

func TestWrite_AfterCloseFails(t *testing.T) {
	dir := t.TempDir()
	w, err := writer.NewWriter(metadata.NoopSink{}, newParams(dir, writer.FormatJSONL))
	require.Nil(t, err)
	require.Nil(t, w.Close())

	writeErr := w.Write(sampleRecord("https://example.com/a"))
	require.NotNil(t, writeErr)
	assert.Equal(t, writer.ErrCauseWriteFailure, writeErr.Cause)
}

func TestFlush_ForcesRecordsBeforeThreshold(t *testing.T) {
	dir := t.TempDir()
	params := newParams(dir, writer.FormatJSONL)
	params.FlushInterval = 100
	params.MaxBuffer = 100
	w, err := writer.NewWriter(metadata.NoopSink{}, params)
	require.Nil(t, err)

	require.Nil(t, w.Write(sampleRecord("https://example.com/a")))
	assert.Equal(t, 0, w.TotalWritten())

	require.Nil(t, w.Flush())
	assert.Equal(t, 1, w.TotalWritten())

	require.Nil(t, w.Close())
}
