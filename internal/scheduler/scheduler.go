package scheduler

/*
Engine is the sole control-plane authority of the crawl.

Determinism and admission guarantees:
- Engine is the ONLY component allowed to decide whether a URL may enter
  the crawl frontier.
- The robots.txt and domain-scope checks MUST be completed before
  submitting a URL to the frontier; the depth and page limits are applied
  by frontier.Submit itself from the configuration the Engine gives it.
- No other component may enqueue, reject, or reorder URLs.
- Pipeline stages may detect and classify failure, but must never decide
  retry, continuation, or abortion.

Metadata emission is observational only and MUST NOT influence
scheduling, retries, or crawl termination.

Engine Responsibilities:
- Coordinate crawl lifecycle across the worker pool
- Configure the frontier with the global limits (pages, depth)
- Decide whether a robots/domain-filter outcome proceeds to the frontier
- Drive change detection and the streaming writer
- Aggregate crawl statistics
*/

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"sync"
	"time"

	"github.com/rohmanhakim/webcrawler/internal/circuitbreaker"
	"github.com/rohmanhakim/webcrawler/internal/config"
	"github.com/rohmanhakim/webcrawler/internal/domainfilter"
	"github.com/rohmanhakim/webcrawler/internal/extractor"
	"github.com/rohmanhakim/webcrawler/internal/fetcher"
	"github.com/rohmanhakim/webcrawler/internal/fingerprint"
	"github.com/rohmanhakim/webcrawler/internal/frontier"
	"github.com/rohmanhakim/webcrawler/internal/metadata"
	"github.com/rohmanhakim/webcrawler/internal/robots"
	"github.com/rohmanhakim/webcrawler/internal/sanitizer"
	"github.com/rohmanhakim/webcrawler/internal/scraper"
	"github.com/rohmanhakim/webcrawler/internal/workerpool"
	"github.com/rohmanhakim/webcrawler/internal/writer"
	"github.com/rohmanhakim/webcrawler/pkg/limiter"
	"github.com/rohmanhakim/webcrawler/pkg/retry"
	"github.com/rohmanhakim/webcrawler/pkg/timeutil"
	"golang.org/x/sync/semaphore"
)

// Engine wires every crawl component together and drives a single run to
// completion. A single Engine instance crawls a single job; construct a
// fresh one per job.
type Engine struct {
	metadataSink metadata.MetadataSink

	robot        robots.CachedRobot
	frontier     *frontier.Frontier
	domainFilter domainfilter.Filter
	breaker      *circuitbreaker.HostBreaker
	rateLimiter  limiter.RateLimiter
	htmlFetcher  fetcher.HtmlFetcher
	scraper      scraper.Scraper
	detector     fingerprint.Detector
	cache        *fingerprint.Cache
	pool         *workerpool.Pool

	seedHost         string
	respectRobotsTxt bool
	crawlMinDelay    time.Duration
	crawlMaxDelay    time.Duration

	// hostSemaphoresMu guards lazy creation of hostSemaphores entries.
	// Each entry enforces invariant I2 (at most maxConcurrentPerDomain
	// in-flight fetches per host) independently of the pool's global cap.
	hostSemaphoresMu       sync.Mutex
	hostSemaphores         map[string]*semaphore.Weighted
	maxConcurrentPerDomain int64

	// countersMu guards the admission-time counters folded into the
	// terminal Summary; processOne's own outcomes are aggregated by Run's
	// onProgress callback instead, which already runs under the pool's lock.
	countersMu sync.Mutex
	discovered int
	skipped    int
}

func NewEngine(metadataSink metadata.MetadataSink, cfg config.Config) *Engine {
	cachedRobot := robots.NewCachedRobot(metadataSink)
	crawlFrontier := frontier.NewCrawlFrontier()
	domainFilter := domainfilter.NewFilter(domainfilter.DefaultParams())
	breaker := circuitbreaker.NewHostBreaker(metadataSink, circuitbreaker.Params{
		Enabled:          cfg.CircuitBreakerEnabled(),
		MaxFailures:      cfg.CircuitBreakerMaxFailures(),
		OpenDuration:     cfg.CircuitBreakerOpenDuration(),
		SuccessThreshold: cfg.CircuitBreakerSuccessThreshold(),
		FailureWindow:    cfg.CircuitBreakerFailureWindow(),
	})
	rateLimiter := limiter.NewConcurrentRateLimiter()
	htmlFetcher := fetcher.NewHtmlFetcher(metadataSink)

	extractParam := extractor.NewExtractParam(cfg.LinkDensityThreshold(), cfg.BodySpecificityBias())
	domExtractor := extractor.NewDomExtractor(metadataSink, extractParam)
	htmlSanitizer := sanitizer.NewHTMLSanitizer(metadataSink)
	pageScraper := scraper.NewScraper(metadataSink, domExtractor, htmlSanitizer)

	fingerprintDir := cfg.FingerprintCachePath()
	if fingerprintDir == "" {
		fingerprintDir = filepath.Join(cfg.OutputDir(), "fingerprints")
	}
	cache := fingerprint.NewCache(fingerprintDir)
	detector := fingerprint.NewDetector(cache, 0)

	// Pool enforces only the global concurrency cap; per-host concurrency is
	// enforced separately by the per-host semaphore acquired in processOne,
	// so the two limits compose instead of one subsuming the other.
	pool := workerpool.NewPool(workerpool.Params{
		Workers:              cfg.Concurrency(),
		ConcurrencyPerWorker: 1,
	})

	maxConcurrentPerDomain := int64(cfg.MaxConcurrentPerDomain())
	if maxConcurrentPerDomain <= 0 {
		maxConcurrentPerDomain = 1
	}

	return &Engine{
		metadataSink:           metadataSink,
		robot:                  cachedRobot,
		frontier:               crawlFrontier,
		domainFilter:           domainFilter,
		breaker:                breaker,
		rateLimiter:            rateLimiter,
		htmlFetcher:            htmlFetcher,
		scraper:                pageScraper,
		detector:               detector,
		cache:                  cache,
		pool:                   pool,
		hostSemaphores:         make(map[string]*semaphore.Weighted),
		maxConcurrentPerDomain: maxConcurrentPerDomain,
		respectRobotsTxt:       cfg.RespectRobotsTxt(),
		crawlMinDelay:          cfg.CrawlMinDelay(),
		crawlMaxDelay:          cfg.CrawlMaxDelay(),
	}
}

// clampDelay bounds a resolved per-host delay to [crawlMinDelay,
// crawlMaxDelay]. A zero bound leaves that side unclamped.
func (e *Engine) clampDelay(delay time.Duration) time.Duration {
	if e.crawlMinDelay > 0 && delay < e.crawlMinDelay {
		delay = e.crawlMinDelay
	}
	if e.crawlMaxDelay > 0 && delay > e.crawlMaxDelay {
		delay = e.crawlMaxDelay
	}
	return delay
}

// hostSemaphore returns the per-host weighted semaphore for host, creating
// it lazily and sized to maxConcurrentPerDomain on first use.
func (e *Engine) hostSemaphore(host string) *semaphore.Weighted {
	e.hostSemaphoresMu.Lock()
	defer e.hostSemaphoresMu.Unlock()

	sem, ok := e.hostSemaphores[host]
	if !ok {
		sem = semaphore.NewWeighted(e.maxConcurrentPerDomain)
		e.hostSemaphores[host] = sem
	}
	return sem
}

// Run drives the crawl to completion: admits the seed, repeatedly dequeues
// and dispatches batches until the frontier reports no further work, then
// closes the writer and returns a terminal Summary.
func (e *Engine) Run(ctx context.Context, cfg config.Config) (Summary, error) {
	startTime := time.Now()

	var totalErrors int
	var totalChanged int
	var totalProcessed int
	var totalUnchanged int

	e.robot.InitWithOptions(cfg.UserAgent(), cfg.RobotsTxtCacheTTL(), cfg.RobotsTxtTimeout())
	e.frontier.Init(cfg)
	e.frontier.SetEventHandler(func(evt frontier.Event) {
		slog.Debug("frontier event", slog.String("type", string(evt.Type)), slog.String("url", evt.URL), slog.Int("depth", evt.Depth))
	})
	e.rateLimiter.SetBaseDelay(cfg.BaseDelay())
	e.rateLimiter.SetJitter(cfg.Jitter())
	e.rateLimiter.SetRandomSeed(cfg.RandomSeed())

	if len(cfg.SeedURLs()) == 0 {
		return Summary{}, fmt.Errorf("no seed URLs configured")
	}
	e.seedHost = cfg.SeedURLs()[0].Hostname()

	outputWriter, writerErr := writer.NewWriter(e.metadataSink, writer.Params{
		OutputDir:     cfg.OutputDir(),
		JobId:         fmt.Sprintf("crawl-%d", startTime.Unix()),
		Format:        writer.Format(cfg.OutputFormat()),
		FlushInterval: 50,
		MaxBuffer:     500,
	})
	if writerErr != nil {
		return Summary{}, writerErr
	}

	for _, seed := range cfg.SeedURLs() {
		e.admit(seed, 0)
	}
	e.frontier.MarkDiscoveryComplete()

	domainBatchSize := cfg.MaxConcurrentPerDomain()
	batchSize := cfg.Concurrency() * domainBatchSize
	if batchSize <= 0 {
		batchSize = 1
	}

	for !e.frontier.IsFinished() {
		batch := e.frontier.DrainBatch(batchSize, domainBatchSize)
		if len(batch) == 0 {
			if e.frontier.InProgressCount() > 0 {
				continue
			}
			break
		}

		tasks := make([]workerpool.Task, len(batch))
		for i, token := range batch {
			tok := token
			tasks[i] = func(taskCtx context.Context) (workerpool.Result, error) {
				record, processErr := e.processOne(taskCtx, cfg, tok)
				return workerpool.Result{Value: record}, processErr
			}
		}

		runErr := e.pool.Run(ctx, tasks, func(result workerpool.Result, taskErr error) {
			if taskErr != nil {
				// Circuit-open denials are requeued by processOne, not
				// terminal outcomes, so they don't count toward processed.
				return
			}
			record, ok := result.Value.(writer.Record)
			if !ok {
				return
			}
			totalProcessed++
			if record.Status == string(scraper.StatusFailed) {
				totalErrors++
			}
			if record.Skip {
				totalUnchanged++
				return
			}
			if record.ContentHash != "" {
				totalChanged++
			}
			if writeErr := outputWriter.Write(record); writeErr != nil {
				totalErrors++
			}
		})
		if runErr != nil {
			break
		}
	}

	closeErr := outputWriter.Close()
	flushErr := e.cache.Flush()

	if closeErr != nil {
		return Summary{}, closeErr
	}
	if flushErr != nil {
		return Summary{}, flushErr
	}

	duration := time.Since(startTime)
	e.countersMu.Lock()
	discovered := e.discovered
	skipped := e.skipped
	e.countersMu.Unlock()

	var pagesPerSecond float64
	if seconds := duration.Seconds(); seconds > 0 {
		pagesPerSecond = float64(totalProcessed) / seconds
	}

	return Summary{
		Discovered:  discovered,
		Processed:   totalProcessed,
		Skipped:     skipped,
		Unchanged:   totalUnchanged,
		Failed:      totalErrors,
		DurationMs:  duration.Milliseconds(),
		PagesPerSec: pagesPerSecond,

		TotalPages:   outputWriter.TotalWritten(),
		TotalErrors:  totalErrors,
		TotalChanged: totalChanged,
		OutputPath:   outputWriter.OutputPath(),
		Duration:     duration,
	}, nil
}

// admit runs the robots.txt and domain-filter checks required before a URL
// may enter the frontier. This is the single admission choke point: no
// other code path may call frontier.Submit.
func (e *Engine) admit(target url.URL, depth int) {
	decision := e.domainFilter.Allow(target, e.seedHost)
	if !decision.Allowed {
		e.markSkipped()
		return
	}

	admitted := target
	if e.respectRobotsTxt {
		robotsDecision, robotsErr := e.robot.Decide(target)
		if robotsErr != nil {
			e.recordRobotsErrorAndBackoff(robotsErr, target)
			e.markSkipped()
			return
		}
		if !robotsDecision.Allowed {
			e.markSkipped()
			return
		}
		if robotsDecision.CrawlDelay > 0 {
			e.rateLimiter.SetCrawlDelay(target.Hostname(), robotsDecision.CrawlDelay)
		}
		admitted = robotsDecision.Url
	}

	candidate := frontier.NewCrawlAdmissionCandidate(
		admitted,
		frontier.SourceCrawl,
		frontier.NewDiscoveryMetadata(depth, nil),
	)
	if !e.frontier.Submit(candidate) {
		e.metadataSink.RecordError(
			time.Now(),
			"scheduler",
			"Engine.admit",
			metadata.CauseInvariantViolation,
			fmt.Sprintf("frontier overflow, dropping %s", admitted.String()),
			[]metadata.Attribute{metadata.NewAttr(metadata.AttrURL, admitted.String())},
		)
		e.markSkipped()
		return
	}
	e.countersMu.Lock()
	e.discovered++
	e.countersMu.Unlock()
}

func (e *Engine) markSkipped() {
	e.countersMu.Lock()
	e.skipped++
	e.countersMu.Unlock()
}

// processOne fetches, scrapes, and records change-detection state for a
// single crawl token, returning the record the engine should hand to the
// writer. It never returns a fatal error for page-level failures: those are
// folded into a FAILED-status record, matching the rest of the pipeline's
// "surface via metadata sink, don't abort the batch" convention. The only
// errors this returns are a circuit-breaker denial and a per-host semaphore
// wait cut short by ctx; in both cases the token is requeued and no record
// is written.
func (e *Engine) processOne(ctx context.Context, cfg config.Config, token frontier.CrawlToken) (writer.Record, error) {
	target := token.URL()
	host := target.Hostname()

	check := e.breaker.Check(host)
	if !check.Allowed {
		e.frontier.Fail(token, true)
		return writer.Record{}, fmt.Errorf("circuit open for host %s", host)
	}

	sem := e.hostSemaphore(host)
	if semErr := sem.Acquire(ctx, 1); semErr != nil {
		e.frontier.Fail(token, true)
		return writer.Record{}, semErr
	}
	defer sem.Release(1)

	delay := e.clampDelay(e.rateLimiter.ResolveDelay(host))
	if delay > 0 {
		time.Sleep(delay)
	}

	fetchParam := fetcher.NewFetchParam(target, cfg.UserAgent())
	fetchResult, fetchErr := e.htmlFetcher.Fetch(ctx, token.Depth(), fetchParam, retryParamFrom(cfg))
	if fetchErr != nil {
		e.breaker.RecordFailure(host)
		e.rateLimiter.Backoff(host)
		e.frontier.Complete(token)
		return writer.Record{
			Url:          target.String(),
			Depth:        token.Depth(),
			Status:       string(scraper.StatusFailed),
			ErrorMessage: fetchErr.Error(),
			ScrapedAt:    time.Now(),
		}, nil
	}
	e.breaker.RecordSuccess(host)
	e.rateLimiter.ResetBackoff(host)
	e.rateLimiter.MarkLastFetchAsNow(host)

	etag := fetchResult.Headers()["Etag"]
	lastModified := fetchResult.Headers()["Last-Modified"]

	// Change detection only gates the emitted record, never link discovery:
	// an unchanged page's outbound links must still reach the frontier, so
	// scraping always runs and checkDecision is consulted only once the
	// record is ready to hand back. For an unchanged page the detector is
	// not updated, so its stored fingerprint (structure hash included)
	// stays as it was until a later check reports a change.
	checkDecision, fpErr := e.detector.Check(target, etag, lastModified)
	unchanged := fpErr == nil && !checkDecision.Recrawl

	scraped := e.scraper.Scrape(fetchResult.Body(), scraper.ScrapeParam{
		SourceUrl:   target,
		Depth:       token.Depth(),
		CrawledAt:   fetchResult.FetchedAt(),
		HttpStatus:  fetchResult.Status(),
		ContentType: fetchResult.Headers()["Content-Type"],
	})

	linkStrings := make([]string, len(scraped.Links))
	for i, l := range scraped.Links {
		linkStrings[i] = l.String()
	}

	if !unchanged {
		if _, updateErr := e.detector.Update(target, scraped.Body, linkStrings, scraped.Headings, etag, lastModified, time.Now()); updateErr != nil {
			e.metadataSink.RecordError(
				time.Now(),
				"scheduler",
				"Engine.processOne",
				metadata.CauseInvariantViolation,
				updateErr.Error(),
				[]metadata.Attribute{metadata.NewAttr(metadata.AttrURL, target.String())},
			)
		}
	}

	for _, discovered := range scraped.Links {
		e.admit(discovered, token.Depth()+1)
	}

	e.frontier.Complete(token)
	return writer.Record{
		Url:          scraped.Url.String(),
		Title:        scraped.Title,
		Depth:        scraped.Depth,
		WordCount:    scraped.WordCount,
		Language:     scraped.Language,
		ScrapedAt:    scraped.ScrapedAt,
		Headings:     scraped.Headings,
		Body:         scraped.Body,
		Links:        linkStrings,
		CleanedHTML:  scraped.CleanedHTML,
		Status:       string(scraped.Status),
		ContentHash:  scraped.ContentHash,
		HttpStatus:   scraped.HttpStatus,
		ErrorMessage: scraped.ErrorMessage,
		Skip:         unchanged,
	}, nil
}

func (e *Engine) recordRobotsErrorAndBackoff(robotsErr *robots.RobotsError, target url.URL) {
	if robotsErr.Cause == robots.ErrCauseHttpTooManyRequests || robotsErr.Cause == robots.ErrCauseHttpServerError {
		e.metadataSink.RecordError(
			time.Now(),
			"scheduler",
			"Engine.admit",
			metadata.CauseNetworkFailure,
			robotsErr.Error(),
			[]metadata.Attribute{
				metadata.NewAttr(metadata.AttrURL, target.String()),
				metadata.NewAttr(metadata.AttrHost, target.Hostname()),
			},
		)
		e.rateLimiter.Backoff(target.Hostname())
	}
}

func retryParamFrom(cfg config.Config) retry.RetryParam {
	return retry.NewRetryParam(
		cfg.BaseDelay(),
		cfg.Jitter(),
		cfg.RandomSeed(),
		cfg.MaxAttempt(),
		timeutil.NewBackoffParam(
			cfg.BackoffInitialDuration(),
			cfg.BackoffMultiplier(),
			cfg.BackoffMaxDuration(),
		),
	)
}
