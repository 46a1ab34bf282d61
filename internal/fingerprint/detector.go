package fingerprint

import (
	"encoding/json"
	"net/url"
	"sort"
	"time"

	"github.com/rohmanhakim/webcrawler/pkg/hashutil"
)

// Detector evaluates and updates per-URL fingerprints against a shared
// Cache. maxAge bounds how long a prior record may be trusted without a
// fresh content check.
type Detector struct {
	cache  *Cache
	maxAge time.Duration
}

func NewDetector(cache *Cache, maxAge time.Duration) Detector {
	return Detector{cache: cache, maxAge: maxAge}
}

// Check decides, before a fetch, whether target likely needs re-crawling.
// etag and lastModified are whatever the caller already has cached from a
// prior response (both may be empty).
func (d *Detector) Check(target url.URL, etag string, lastModified string) (CheckDecision, *FingerprintError) {
	host := target.Hostname()
	key := target.String()

	prior, ok, err := d.cache.Get(host, key)
	if err != nil {
		return CheckDecision{}, err
	}
	if !ok {
		return CheckDecision{Changed: true, Recrawl: true, Reason: ReasonNew}, nil
	}

	if d.maxAge > 0 && time.Since(prior.LastCrawled) > d.maxAge {
		return CheckDecision{Changed: true, Recrawl: true, Reason: ReasonExpired}, nil
	}

	if etag != "" && prior.ETag != "" {
		if etag == prior.ETag {
			return CheckDecision{Changed: false, Reason: ReasonETagUnchanged}, nil
		}
		return CheckDecision{Changed: true, Recrawl: true, Reason: ReasonETagChanged}, nil
	}

	if lastModified != "" && prior.LastModified != "" {
		priorTime, errPrior := time.Parse(time.RFC1123, prior.LastModified)
		newTime, errNew := time.Parse(time.RFC1123, lastModified)
		if errPrior == nil && errNew == nil && !newTime.After(priorTime) {
			return CheckDecision{Changed: false, Reason: ReasonLMUnchanged}, nil
		}
	}

	return CheckDecision{Changed: true, Recrawl: true, Reason: ReasonContent}, nil
}

// Update recomputes content and structure hashes from the fresh scrape and
// compares them with whatever was previously cached, then persists the
// result. Changed is true when either hash moved (or there was no prior
// record at all).
func (d *Detector) Update(
	target url.URL,
	body string,
	links []string,
	headings []string,
	etag string,
	lastModified string,
	now time.Time,
) (UpdateResult, *FingerprintError) {
	host := target.Hostname()
	key := target.String()

	contentHash, err := hashutil.HashBytes([]byte(body), hashutil.HashAlgoBLAKE3)
	if err != nil {
		return UpdateResult{}, &FingerprintError{Message: err.Error(), Retryable: false, Cause: ErrCauseDecodeFailure}
	}
	structureHash, err := structureHashOf(links, headings)
	if err != nil {
		return UpdateResult{}, &FingerprintError{Message: err.Error(), Retryable: false, Cause: ErrCauseDecodeFailure}
	}

	prior, hadPrior, fpErr := d.cache.Get(host, key)
	if fpErr != nil {
		return UpdateResult{}, fpErr
	}

	changed := !hadPrior || contentHash != prior.ContentHash || structureHash != prior.StructureHash

	record := Record{
		Url:           key,
		ContentHash:   contentHash,
		StructureHash: structureHash,
		ETag:          etag,
		LastModified:  lastModified,
		LastCrawled:   now,
		CrawlCount:    prior.CrawlCount + 1,
		ChangeCount:   prior.ChangeCount,
	}
	if changed && hadPrior {
		record.ChangeCount = prior.ChangeCount + 1
		interval := now.Sub(prior.LastCrawled).Seconds()
		if record.ChangeCount > 0 {
			record.MeanChangeSeconds = (prior.MeanChangeSeconds*float64(prior.ChangeCount) + interval) / float64(record.ChangeCount)
		}
	} else {
		record.MeanChangeSeconds = prior.MeanChangeSeconds
	}

	if putErr := d.cache.Put(host, record); putErr != nil {
		return UpdateResult{}, putErr
	}

	return UpdateResult{Changed: changed, Record: record}, nil
}

func structureHashOf(links []string, headings []string) (string, error) {
	summary := StructureSummary{
		LinkCount:     len(links),
		HeadingCount:  len(headings),
		FirstLinks:    firstNSorted(links, 10),
		FirstHeadings: firstNSorted(headings, 10),
	}
	canonical, err := json.Marshal(summary)
	if err != nil {
		return "", err
	}
	return hashutil.HashBytes(canonical, hashutil.HashAlgoBLAKE3)
}

func firstNSorted(items []string, n int) []string {
	sorted := make([]string, len(items))
	copy(sorted, items)
	sort.Strings(sorted)
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}
