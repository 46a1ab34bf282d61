package writer

import (
	"fmt"

	"github.com/rohmanhakim/webcrawler/pkg/failure"
)

type WriterErrorCause string

const (
	ErrCauseOpenFailure  WriterErrorCause = "open failure"
	ErrCauseWriteFailure WriterErrorCause = "write failure"
	ErrCauseEncodeFailure WriterErrorCause = "encode failure"
)

type WriterError struct {
	Message   string
	Retryable bool
	Cause     WriterErrorCause
}

func (e *WriterError) Error() string {
	return fmt.Sprintf("writer error: %s: %s", e.Cause, e.Message)
}

func (e *WriterError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}
