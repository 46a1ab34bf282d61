package fingerprint

import (
	"fmt"

	"github.com/rohmanhakim/webcrawler/pkg/failure"
)

type FingerprintErrorCause string

const (
	ErrCauseReadFailure  FingerprintErrorCause = "read failure"
	ErrCauseWriteFailure FingerprintErrorCause = "write failure"
	ErrCauseDecodeFailure FingerprintErrorCause = "decode failure"
)

type FingerprintError struct {
	Message   string
	Retryable bool
	Cause     FingerprintErrorCause
}

func (e *FingerprintError) Error() string {
	return fmt.Sprintf("fingerprint error: %s: %s", e.Cause, e.Message)
}

func (e *FingerprintError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}
