package robots

/*
Responsibilities

- Fetch robots.txt per host
- Cache rules for crawl duration
- Enforce allow/disallow rules before enqueue

Robots checks occur before a URL enters the frontier.
*/

import (
	"context"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rohmanhakim/webcrawler/internal/metadata"
	"github.com/rohmanhakim/webcrawler/internal/robots/cache"
)

// robotState holds the mutable, per-host ruleSet cache. It is kept behind a
// pointer so CachedRobot itself stays comparable with ==.
type robotState struct {
	mu    sync.RWMutex
	rules map[string]ruleSet
}

// CachedRobot evaluates crawl permission for a URL against that host's
// robots.txt, fetching and parsing it at most once per host for the
// lifetime of the crawl.
type CachedRobot struct {
	metadataSink metadata.MetadataSink
	userAgent    string
	fetcher      *RobotsFetcher
	state        *robotState
}

func NewCachedRobot(sink metadata.MetadataSink) CachedRobot {
	return CachedRobot{metadataSink: sink}
}

// Init wires a fresh in-memory cache with no entry expiration and the
// fetcher's built-in default timeout. Must be called before Decide.
func (r *CachedRobot) Init(userAgent string) {
	r.InitWithCache(userAgent, cache.NewMemoryCache())
}

// InitWithOptions wires a fresh in-memory cache whose entries expire after
// cacheTTL (ROBOTS_TXT_CACHE_TTL) and a fetcher bounded by timeout
// (ROBOTS_TXT_TIMEOUT). Must be called before Decide.
func (r *CachedRobot) InitWithOptions(userAgent string, cacheTTL time.Duration, timeout time.Duration) {
	r.userAgent = userAgent
	r.fetcher = NewRobotsFetcherWithClient(r.metadataSink, userAgent, &http.Client{Timeout: timeout}, cache.NewMemoryCacheWithTTL(cacheTTL))
	r.state = &robotState{rules: make(map[string]ruleSet)}
}

// InitWithCache wires a caller-supplied cache, e.g. to share robots.txt
// fetches across crawl runs or to inject a test double.
func (r *CachedRobot) InitWithCache(userAgent string, c cache.Cache) {
	r.userAgent = userAgent
	r.fetcher = NewRobotsFetcher(r.metadataSink, userAgent, c)
	r.state = &robotState{rules: make(map[string]ruleSet)}
}

// Decide reports whether target may be crawled under the target host's
// robots.txt, fetching and caching that host's rules on first use.
func (r *CachedRobot) Decide(target url.URL) (Decision, *RobotsError) {
	scheme := target.Scheme
	if scheme == "" {
		scheme = "https"
	}
	host := target.Host
	key := scheme + "://" + host

	r.state.mu.RLock()
	rs, ok := r.state.rules[key]
	r.state.mu.RUnlock()

	if !ok {
		fetchResult, err := r.fetcher.Fetch(context.Background(), scheme, host)
		if err != nil {
			r.metadataSink.RecordError(
				time.Now(),
				"robots",
				"CachedRobot.Decide",
				mapRobotsErrorToMetadataCause(err),
				err.Error(),
				[]metadata.Attribute{
					metadata.NewAttr(metadata.AttrHost, host),
				},
			)
			return Decision{}, err
		}
		rs = MapResponseToRuleSet(fetchResult.Response, r.userAgent, fetchResult.FetchedAt)

		r.state.mu.Lock()
		r.state.rules[key] = rs
		r.state.mu.Unlock()
	}

	path := target.Path
	if path == "" {
		path = "/"
	}

	allowed, reason := evaluatePath(path, rs)

	var delay time.Duration
	if cd := rs.CrawlDelay(); cd != nil {
		delay = *cd
	}

	return Decision{
		Url:        target,
		Allowed:    allowed,
		Reason:     reason,
		CrawlDelay: delay,
	}, nil
}

// evaluatePath applies the longest-match-wins rule used by the de facto
// robots.txt standard: among every allow/disallow pattern that matches path,
// the one with the longest pattern string decides the outcome.
func evaluatePath(path string, rs ruleSet) (bool, DecisionReason) {
	if !rs.hasGroups {
		return true, EmptyRuleSet
	}
	if !rs.matchedGroup {
		return true, UserAgentNotMatched
	}

	matched := false
	bestLen := -1
	bestAllow := true

	for _, rule := range rs.AllowRules() {
		if compilePathPattern(rule.Prefix()).MatchString(path) {
			matched = true
			if l := len(rule.Prefix()); l > bestLen {
				bestLen = l
				bestAllow = true
			}
		}
	}
	for _, rule := range rs.DisallowRules() {
		if compilePathPattern(rule.Prefix()).MatchString(path) {
			matched = true
			if l := len(rule.Prefix()); l > bestLen {
				bestLen = l
				bestAllow = false
			}
		}
	}

	if !matched {
		return true, NoMatchingRules
	}
	if bestAllow {
		return true, AllowedByRobots
	}
	return false, DisallowedByRobots
}

// compilePathPattern turns a robots.txt path pattern (which may use '*' as a
// wildcard and a trailing '$' as an end anchor) into a prefix-anchored
// regular expression.
func compilePathPattern(pattern string) *regexp.Regexp {
	var sb strings.Builder
	sb.WriteString("^")
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		switch c {
		case '*':
			sb.WriteString(".*")
		case '$':
			if i == len(pattern)-1 {
				sb.WriteString("$")
			} else {
				sb.WriteString(regexp.QuoteMeta("$"))
			}
		default:
			sb.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	re, err := regexp.Compile(sb.String())
	if err != nil {
		return regexp.MustCompile(`^\z.`)
	}
	return re
}
