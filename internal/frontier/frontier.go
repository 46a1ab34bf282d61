package frontier

import (
	"sync"

	"github.com/rohmanhakim/webcrawler/internal/config"
	"github.com/rohmanhakim/webcrawler/pkg/urlutil"
)

/*
Frontier Responsibilities
- Maintain BFS ordering
- Deduplicate URLs
- Track crawl depth
- Prevent infinite traversal
- Knows nothing about:
	- fetching
	- extraction
	- markdown
	- storage

It is a data structure + policy module, not a pipeline executor.
*/

// Frontier is the BFS-ordered, deduplicating URL queue. A single Frontier
// instance is shared across all discovery goroutines for one crawl.
type Frontier struct {
	mu sync.Mutex

	cfg config.Config

	// queuesByDepth[d] holds the candidates pending at depth d, in
	// submission order. Depths are dequeued lowest-first, so no depth-2
	// token is ever returned while a depth-1 token remains pending.
	queuesByDepth map[int]*FIFOQueue[CrawlToken]

	// minDepth is the lowest depth with a non-empty queue, or -1 if the
	// frontier has nothing pending. Kept incremental rather than
	// recomputed on every Dequeue to keep that call O(1) amortized.
	minDepth int

	// visited holds the canonical string form of every URL ever
	// admitted, regardless of whether it has since been dequeued. It
	// never shrinks: admission is a one-shot gate, not a membership set.
	visited Set[string]

	// inProgress holds tokens dequeued but not yet Complete/Fail'd.
	inProgress map[string]CrawlToken

	// discoveryComplete is set once the engine has submitted every seed.
	// Links found by in-progress tokens are still accepted afterwards.
	discoveryComplete bool

	// maxSize bounds total admitted (visited) URLs independent of maxPages;
	// 0 disables the bound. maxPages stops the crawl's own intended scope,
	// maxSize is a hard backstop against runaway discovery.
	maxSize int

	// onEvent, if set, observes every Submit/Dequeue/Complete/Fail/
	// MarkDiscoveryComplete outcome. See SetEventHandler.
	onEvent func(Event)
}

func NewCrawlFrontier() *Frontier {
	return &Frontier{
		queuesByDepth: make(map[int]*FIFOQueue[CrawlToken]),
		minDepth:      -1,
		visited:       NewSet[string](),
		inProgress:    make(map[string]CrawlToken),
	}
}

// Init configures the frontier's limits. It must be called before Submit or
// Dequeue; it is not safe to call concurrently with other methods.
func (f *Frontier) Init(cfg config.Config) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cfg = cfg
	f.maxSize = cfg.MaxPages() * 10
	if f.maxSize <= 0 {
		f.maxSize = 0
	}
}

// SetMaxSize overrides the overflow bound Init derives from MaxPages.
// A value <= 0 disables the bound.
func (f *Frontier) SetMaxSize(maxSize int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.maxSize = maxSize
}

// Submit admits a candidate URL into the frontier, subject to deduplication
// and the configured depth/page limits. Duplicate URLs (by canonical form)
// and URLs exceeding MaxDepth are silently dropped, matching the
// admission-only contract the scheduler relies on. Submit returns false
// when the candidate was rejected because maxSize was already reached,
// which is the one rejection case distinct enough from routine
// dedup/depth/page drops to be worth the caller's attention; it emits an
// overflow event either way.
func (f *Frontier) Submit(candidate CrawlAdmissionCandidate) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	depth := candidate.discoveryMetadata.Depth()
	url := candidate.targetURL.String()

	if maxDepth := f.cfg.MaxDepth(); maxDepth > 0 && depth > maxDepth {
		return true
	}
	if maxPages := f.cfg.MaxPages(); maxPages > 0 && f.visited.Size() >= maxPages {
		return true
	}
	if f.maxSize > 0 && f.visited.Size() >= f.maxSize {
		f.emitLocked(Event{Type: EventOverflow, URL: url, Depth: depth})
		return false
	}

	canonicalURL := urlutil.Canonicalize(candidate.targetURL)
	canonical := canonicalURL.String()
	if f.visited.Contains(canonical) {
		return true
	}
	f.visited.Add(canonical)

	token := NewCrawlToken(candidate.targetURL, depth)
	q, ok := f.queuesByDepth[depth]
	if !ok {
		q = NewFIFOQueue[CrawlToken]()
		f.queuesByDepth[depth] = q
	}
	q.Enqueue(token)

	if f.minDepth == -1 || depth < f.minDepth {
		f.minDepth = depth
	}

	f.emitLocked(Event{Type: EventURLAdded, URL: url, Depth: depth})
	return true
}

// Dequeue returns the next token in BFS order: the lowest depth with any
// pending token, in submission order within that depth. It returns
// (zero, false) when the frontier has nothing pending.
func (f *Frontier) Dequeue() (CrawlToken, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.advanceMinDepthLocked()
	if f.minDepth == -1 {
		return CrawlToken{}, false
	}

	q := f.queuesByDepth[f.minDepth]
	token, ok := q.Dequeue()
	if !ok {
		// Shouldn't happen given advanceMinDepthLocked, but stay defensive
		// rather than panic on an invariant slip.
		return CrawlToken{}, false
	}

	f.advanceMinDepthLocked()

	canonicalURL := urlutil.Canonicalize(token.URL())
	key := canonicalURL.String()
	f.inProgress[key] = token

	return token, true
}

// DrainBatch dequeues up to n tokens in BFS order, holding back any token
// whose host has already contributed domainBatchSize tokens to this batch.
// Held-back tokens are returned to the front of their depth's queue so the
// next DrainBatch call sees them first, preserving relative order. A
// domainBatchSize <= 0 disables the per-host cap. The batch may be shorter
// than n if the frontier runs dry or every pending token belongs to an
// already-capped host.
func (f *Frontier) DrainBatch(n int, domainBatchSize int) []CrawlToken {
	if n <= 0 {
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	batch := make([]CrawlToken, 0, n)
	var heldBack []CrawlToken
	perHost := make(map[string]int)

	for len(batch) < n {
		f.advanceMinDepthLocked()
		if f.minDepth == -1 {
			break
		}

		q := f.queuesByDepth[f.minDepth]
		token, ok := q.Dequeue()
		if !ok {
			continue
		}

		tokenURL := token.URL()
		host := tokenURL.Hostname()
		if domainBatchSize > 0 && perHost[host] >= domainBatchSize {
			heldBack = append(heldBack, token)
			continue
		}

		perHost[host]++
		canonicalURL := urlutil.Canonicalize(tokenURL)
		key := canonicalURL.String()
		f.inProgress[key] = token
		batch = append(batch, token)
	}

	for i := len(heldBack) - 1; i >= 0; i-- {
		token := heldBack[i]
		q, ok := f.queuesByDepth[token.Depth()]
		if !ok {
			q = NewFIFOQueue[CrawlToken]()
			f.queuesByDepth[token.Depth()] = q
		}
		q.PushFront(token)
		if f.minDepth == -1 || token.Depth() < f.minDepth {
			f.minDepth = token.Depth()
		}
	}

	return batch
}

// Complete marks a dequeued token as terminally processed, regardless of
// success or failure. It moves the token out of in-progress; visited still
// guards it from being re-submitted.
func (f *Frontier) Complete(token CrawlToken) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tokenURL := token.URL()
	canonicalURL := urlutil.Canonicalize(tokenURL)
	key := canonicalURL.String()
	delete(f.inProgress, key)
	f.emitLocked(Event{Type: EventURLComplete, URL: tokenURL.String(), Depth: token.Depth()})
}

// Fail moves a dequeued token out of in-progress and, if retry is true,
// re-enqueues it at its original depth with a deprioritized position (it
// goes to the back of its depth's queue, same as a fresh submission would,
// since FIFOQueue has no separate priority lane).
func (f *Frontier) Fail(token CrawlToken, retry bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	tokenURL := token.URL()
	canonicalURL := urlutil.Canonicalize(tokenURL)
	key := canonicalURL.String()
	delete(f.inProgress, key)

	if !retry {
		f.emitLocked(Event{Type: EventURLFailed, URL: tokenURL.String(), Depth: token.Depth()})
		return
	}

	depth := token.Depth()
	q, ok := f.queuesByDepth[depth]
	if !ok {
		q = NewFIFOQueue[CrawlToken]()
		f.queuesByDepth[depth] = q
	}
	q.Enqueue(token)
	if f.minDepth == -1 || depth < f.minDepth {
		f.minDepth = depth
	}
}

// MarkDiscoveryComplete signals that every seed has been submitted. Submit
// calls made afterwards (links found by in-progress tokens) are still
// accepted. IsFinished can only become true after this has been called.
func (f *Frontier) MarkDiscoveryComplete() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.discoveryComplete = true
	f.emitLocked(Event{Type: EventDiscoveryComplete})
}

// IsFinished reports whether discovery has been marked complete and both
// the pending queues and in-progress set are empty.
func (f *Frontier) IsFinished() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.discoveryComplete {
		return false
	}
	if len(f.inProgress) > 0 {
		return false
	}
	f.advanceMinDepthLocked()
	return f.minDepth == -1
}

// InProgressCount returns the number of tokens dequeued but not yet
// Complete/Fail'd.
func (f *Frontier) InProgressCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inProgress)
}

// advanceMinDepthLocked moves minDepth forward past any exhausted depth
// levels. Caller must hold f.mu.
func (f *Frontier) advanceMinDepthLocked() {
	if f.minDepth == -1 {
		return
	}
	for {
		q, ok := f.queuesByDepth[f.minDepth]
		if ok && q.Size() > 0 {
			return
		}
		f.minDepth++
		if _, everSeen := f.queuesByDepth[f.minDepth]; !everSeen && f.minDepth > f.highestKnownDepthLocked() {
			f.minDepth = -1
			return
		}
	}
}

// highestKnownDepthLocked returns the largest depth key ever created.
// Caller must hold f.mu.
func (f *Frontier) highestKnownDepthLocked() int {
	max := -1
	for d := range f.queuesByDepth {
		if d > max {
			max = d
		}
	}
	return max
}

// IsDepthExhausted reports whether depth d has no pending tokens. Negative
// depths and depths never submitted are always exhausted.
func (f *Frontier) IsDepthExhausted(d int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d < 0 {
		return true
	}
	q, ok := f.queuesByDepth[d]
	if !ok {
		return true
	}
	return q.Size() == 0
}

// CurrentMinDepth returns the lowest depth with pending tokens, or -1 if the
// frontier is empty.
func (f *Frontier) CurrentMinDepth() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.advanceMinDepthLocked()
	return f.minDepth
}

// VisitedCount returns the number of unique canonical URLs ever admitted.
// It never decreases, even as tokens are dequeued.
func (f *Frontier) VisitedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.visited.Size()
}
