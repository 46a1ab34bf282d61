package metadata

import "time"

// NoopSink is a zero-cost MetadataSink for tests and callers that don't
// care about observability. Embed it to satisfy MetadataSink while
// overriding only the methods a given test needs to assert on.
type NoopSink struct{}

func (NoopSink) RecordFetch(fetchUrl string, httpStatus int, duration time.Duration, contentType string, retryCount int, crawlDepth int) {
}

func (NoopSink) RecordAssetFetch(fetchUrl string, httpStatus int, duration time.Duration, retryCount int) {
}

func (NoopSink) RecordError(observedAt time.Time, packageName string, action string, cause ErrorCause, errString string, attrs []Attribute) {
}

func (NoopSink) RecordArtifact(kind ArtifactKind, path string, attrs []Attribute) {}

var _ MetadataSink = NoopSink{}
