package writer

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/rohmanhakim/webcrawler/internal/metadata"
	"github.com/rohmanhakim/webcrawler/pkg/fileutil"
)

// Writer is an append-only, format-aware sink for scrape records. Write is
// safe for concurrent use: every call serializes behind a single mutex so
// records written from different workers never interleave.
type Writer struct {
	metadataSink metadata.MetadataSink
	params       Params
	outputPath   string

	mu          sync.Mutex
	file        *os.File
	csvWriter   *csv.Writer
	buffer      []Record
	totalWritten int
	wroteAny    bool
	closed      bool
}

func NewWriter(metadataSink metadata.MetadataSink, params Params) (*Writer, *WriterError) {
	if params.FlushInterval <= 0 {
		params.FlushInterval = 50
	}
	if params.MaxBuffer <= 0 {
		params.MaxBuffer = 500
	}

	if dirErr := fileutil.EnsureDir(params.OutputDir); dirErr != nil {
		return nil, &WriterError{Message: dirErr.Error(), Retryable: true, Cause: ErrCauseOpenFailure}
	}

	ext := string(params.Format)
	outputPath := filepath.Join(params.OutputDir, fmt.Sprintf("%s-results.%s", params.JobId, ext))

	f, err := os.Create(outputPath)
	if err != nil {
		return nil, &WriterError{Message: err.Error(), Retryable: true, Cause: ErrCauseOpenFailure}
	}

	w := &Writer{
		metadataSink: metadataSink,
		params:       params,
		outputPath:   outputPath,
		file:         f,
	}

	if params.Format == FormatJSON {
		if _, err := f.WriteString("["); err != nil {
			return nil, &WriterError{Message: err.Error(), Retryable: true, Cause: ErrCauseWriteFailure}
		}
	}
	if params.Format == FormatCSV {
		w.csvWriter = csv.NewWriter(f)
		if err := w.csvWriter.Write(csvColumns); err != nil {
			return nil, &WriterError{Message: err.Error(), Retryable: true, Cause: ErrCauseWriteFailure}
		}
		w.csvWriter.Flush()
	}

	return w, nil
}

// Write buffers record, flushing automatically once the buffer reaches
// FlushInterval (soft) or MaxBuffer (hard).
func (w *Writer) Write(record Record) *WriterError {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return &WriterError{Message: "write after close", Retryable: false, Cause: ErrCauseWriteFailure}
	}

	w.buffer = append(w.buffer, record)
	if len(w.buffer) >= w.params.MaxBuffer {
		return w.flushLocked()
	}
	if len(w.buffer) >= w.params.FlushInterval {
		return w.flushLocked()
	}
	return nil
}

// Flush forces any buffered records to disk now.
func (w *Writer) Flush() *WriterError {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked()
}

func (w *Writer) flushLocked() *WriterError {
	if len(w.buffer) == 0 {
		return nil
	}
	for _, record := range w.buffer {
		if err := w.writeOneLocked(record); err != nil {
			return err
		}
	}
	w.totalWritten += len(w.buffer)
	w.buffer = w.buffer[:0]
	return nil
}

func (w *Writer) writeOneLocked(record Record) *WriterError {
	switch w.params.Format {
	case FormatJSONL:
		data, err := json.Marshal(record)
		if err != nil {
			return &WriterError{Message: err.Error(), Retryable: false, Cause: ErrCauseEncodeFailure}
		}
		if _, err := w.file.Write(append(data, '\n')); err != nil {
			return &WriterError{Message: err.Error(), Retryable: true, Cause: ErrCauseWriteFailure}
		}
	case FormatJSON:
		data, err := json.Marshal(record)
		if err != nil {
			return &WriterError{Message: err.Error(), Retryable: false, Cause: ErrCauseEncodeFailure}
		}
		prefix := ",\n"
		if !w.wroteAny {
			prefix = ""
		}
		if _, err := w.file.WriteString(prefix); err != nil {
			return &WriterError{Message: err.Error(), Retryable: true, Cause: ErrCauseWriteFailure}
		}
		if _, err := w.file.Write(data); err != nil {
			return &WriterError{Message: err.Error(), Retryable: true, Cause: ErrCauseWriteFailure}
		}
	case FormatCSV:
		row := []string{
			record.Url,
			record.Title,
			strconv.Itoa(record.Depth),
			strconv.Itoa(record.WordCount),
			record.Language,
			record.ScrapedAt.Format(time.RFC3339),
		}
		if err := w.csvWriter.Write(row); err != nil {
			return &WriterError{Message: err.Error(), Retryable: true, Cause: ErrCauseWriteFailure}
		}
		w.csvWriter.Flush()
		if err := w.csvWriter.Error(); err != nil {
			return &WriterError{Message: err.Error(), Retryable: true, Cause: ErrCauseWriteFailure}
		}
	}
	w.wroteAny = true
	return nil
}

// Close flushes any buffered records, writes the format-specific footer,
// closes the output file, and writes the sibling {jobId}-meta.json file.
func (w *Writer) Close() *WriterError {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}

	if err := w.flushLocked(); err != nil {
		return err
	}

	if w.params.Format == FormatJSON {
		if _, err := w.file.WriteString("]"); err != nil {
			return &WriterError{Message: err.Error(), Retryable: true, Cause: ErrCauseWriteFailure}
		}
	}

	if err := w.file.Close(); err != nil {
		return &WriterError{Message: err.Error(), Retryable: false, Cause: ErrCauseWriteFailure}
	}
	w.closed = true

	meta := Meta{
		JobId:        w.params.JobId,
		OutputPath:   w.outputPath,
		Format:       w.params.Format,
		TotalResults: w.totalWritten,
		CompletedAt:  time.Now(),
	}
	metaData, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return &WriterError{Message: err.Error(), Retryable: false, Cause: ErrCauseEncodeFailure}
	}
	metaPath := filepath.Join(w.params.OutputDir, fmt.Sprintf("%s-meta.json", w.params.JobId))
	if err := os.WriteFile(metaPath, metaData, 0644); err != nil {
		return &WriterError{Message: err.Error(), Retryable: true, Cause: ErrCauseWriteFailure}
	}

	w.metadataSink.RecordArtifact(
		metadata.ArtifactScrapeRecord,
		w.outputPath,
		[]metadata.Attribute{
			metadata.NewAttr(metadata.AttrWritePath, w.outputPath),
		},
	)

	return nil
}

// OutputPath returns the path of the output file this Writer is writing to.
func (w *Writer) OutputPath() string {
	return w.outputPath
}

// TotalWritten returns the number of records flushed so far.
func (w *Writer) TotalWritten() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.totalWritten
}
