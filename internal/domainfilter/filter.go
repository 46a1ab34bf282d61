package domainfilter

import (
	"net/url"
)

// Filter classifies and permits/denies candidate URLs before they reach the
// frontier. A single Filter instance is shared across all discovery
// goroutines for one crawl; its counters are safe for concurrent use.
type Filter struct {
	params   Params
	counters *counters
}

func NewFilter(params Params) Filter {
	if params.MaxURLLength <= 0 {
		params.MaxURLLength = DefaultParams().MaxURLLength
	}
	return Filter{
		params:   params,
		counters: newCounters(),
	}
}

// Classify derives host-level facts about target without making an
// allow/deny decision.
func (f *Filter) Classify(target url.URL) Classification {
	host := target.Hostname()
	return Classification{
		Domain:        host,
		IsUniversity:  isUniversityHost(host, f.params.UniversitySuffixes),
		IsWhitelisted: isWhitelistedHost(host, f.params.WhitelistedHosts),
		IsBlacklisted: isBlacklistedHost(host, f.params.BlacklistedHosts),
	}
}

// Allow runs the short-circuiting rule chain described in the component
// design: length, parseability, blacklist, extension, blocked path,
// whitelist, host-scope, university-mode, default allow. seedHost is
// optional; when empty, host-scope checks are skipped (used for the seed
// URL itself, which has no prior host to compare against).
func (f *Filter) Allow(target url.URL, seedHost string) Decision {
	decision := f.evaluate(target, seedHost)
	f.counters.record(decision)
	return decision
}

func (f *Filter) evaluate(target url.URL, seedHost string) Decision {
	raw := target.String()
	if len(raw) > f.params.MaxURLLength {
		return Decision{Allowed: false, Reason: ReasonTooLong}
	}

	host := target.Hostname()
	if host == "" {
		return Decision{Allowed: false, Reason: ReasonUnparseable}
	}

	if isBlacklistedHost(host, f.params.BlacklistedHosts) {
		return Decision{Allowed: false, Reason: ReasonBlacklistedHost}
	}

	if hasAnySkippedExtension(target.Path, f.params.SkipExtensions) {
		return Decision{Allowed: false, Reason: ReasonSkippedExtension}
	}

	if hasAnyBlockedPath(target.Path, f.params.BlockedPaths) {
		return Decision{Allowed: false, Reason: ReasonBlockedPath}
	}

	if isWhitelistedHost(host, f.params.WhitelistedHosts) {
		return Decision{Allowed: true, Reason: ReasonWhitelisted}
	}

	if seedHost != "" {
		if !sameHostOrSubdomain(host, seedHost, f.params.AllowSubdomains) {
			return Decision{Allowed: false, Reason: ReasonOffHost}
		}
	}

	if f.params.StrictUniversityMode {
		if !isUniversityHost(host, f.params.UniversitySuffixes) {
			return Decision{Allowed: false, Reason: ReasonNotUniversity}
		}
	}

	return Decision{Allowed: true, Reason: ReasonOK}
}

// Stats returns a snapshot of the cumulative decision counters.
func (f *Filter) Stats() Stats {
	f.counters.mu.Lock()
	defer f.counters.mu.Unlock()

	byReason := make(map[DecisionReason]int, len(f.counters.byReason))
	for k, v := range f.counters.byReason {
		byReason[k] = v
	}
	return Stats{
		TotalChecked: f.counters.totalChecked,
		Allowed:      f.counters.allowed,
		Blocked:      f.counters.blocked,
		ByReason:     byReason,
	}
}
