package domainfilter

/*
Responsibilities
- Classify a candidate URL by host and path
- Permit or deny it before it ever reaches the frontier

Knows nothing about fetching, robots.txt, or rate limiting: this is a
pre-admission gate, evaluated before any network I/O happens.
*/

import (
	"strings"
	"sync"
)

// DecisionReason explains why allow() returned what it returned.
type DecisionReason string

const (
	ReasonOK                DecisionReason = "ok"
	ReasonTooLong           DecisionReason = "url_too_long"
	ReasonUnparseable       DecisionReason = "unparseable"
	ReasonBlacklistedHost   DecisionReason = "blacklisted_host"
	ReasonSkippedExtension  DecisionReason = "skipped_extension"
	ReasonBlockedPath       DecisionReason = "blocked_path"
	ReasonOffHost           DecisionReason = "off_host"
	ReasonNotUniversity     DecisionReason = "not_university"
	ReasonWhitelisted       DecisionReason = "whitelisted"
)

type Classification struct {
	Domain        string
	IsUniversity  bool
	IsWhitelisted bool
	IsBlacklisted bool
}

type Decision struct {
	Allowed bool
	Reason  DecisionReason
}

// Params configures the filter's rules. Zero values mean "no restriction"
// except MaxURLLength, which falls back to a sane default when <= 0.
type Params struct {
	MaxURLLength     int
	SkipExtensions   []string // e.g. ".pdf", ".zip" (case-insensitive suffix match)
	BlockedPaths     []string // path prefixes, e.g. "/login"
	BlacklistedHosts []string // exact host or ".suffix"
	WhitelistedHosts []string // exact host, bypasses host-scope checks
	UniversitySuffixes []string // e.g. ".edu", ".ac.uk"
	StrictUniversityMode bool
	AllowSubdomains      bool
}

func DefaultParams() Params {
	return Params{
		MaxURLLength:         2048,
		SkipExtensions:       []string{".pdf", ".zip", ".tar", ".gz", ".exe", ".dmg", ".mp4", ".mp3", ".png", ".jpg", ".jpeg", ".gif", ".svg", ".css", ".js", ".woff", ".woff2", ".ico"},
		UniversitySuffixes:   []string{".edu", ".ac.uk"},
		StrictUniversityMode: false,
		AllowSubdomains:      true,
	}
}

type counters struct {
	mu           sync.Mutex
	totalChecked int
	allowed      int
	blocked      int
	byReason     map[DecisionReason]int
}

func newCounters() *counters {
	return &counters{byReason: make(map[DecisionReason]int)}
}

func (c *counters) record(d Decision) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalChecked++
	if d.Allowed {
		c.allowed++
	} else {
		c.blocked++
	}
	c.byReason[d.Reason]++
}

// Stats is an immutable snapshot of the filter's decision counters.
type Stats struct {
	TotalChecked int
	Allowed      int
	Blocked      int
	ByReason     map[DecisionReason]int
}

func hasAnySkippedExtension(path string, exts []string) bool {
	lower := strings.ToLower(path)
	for _, ext := range exts {
		if strings.HasSuffix(lower, strings.ToLower(ext)) {
			return true
		}
	}
	return false
}

func hasAnyBlockedPath(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func isBlacklistedHost(host string, blacklist []string) bool {
	host = strings.ToLower(host)
	for _, b := range blacklist {
		b = strings.ToLower(b)
		if strings.HasPrefix(b, ".") {
			if strings.HasSuffix(host, b) {
				return true
			}
			continue
		}
		if host == b {
			return true
		}
	}
	return false
}

func isWhitelistedHost(host string, whitelist []string) bool {
	host = strings.ToLower(host)
	for _, w := range whitelist {
		if host == strings.ToLower(w) {
			return true
		}
	}
	return false
}

func isUniversityHost(host string, suffixes []string) bool {
	host = strings.ToLower(host)
	for _, s := range suffixes {
		if strings.HasSuffix(host, strings.ToLower(s)) {
			return true
		}
	}
	return false
}

// sameHostOrSubdomain reports whether host is seedHost or, when
// allowSubdomains is set, either is a dot-suffix of the other.
func sameHostOrSubdomain(host, seedHost string, allowSubdomains bool) bool {
	host = strings.ToLower(host)
	seedHost = strings.ToLower(seedHost)
	if host == seedHost {
		return true
	}
	if !allowSubdomains {
		return false
	}
	return strings.HasSuffix(host, "."+seedHost) || strings.HasSuffix(seedHost, "."+host)
}
