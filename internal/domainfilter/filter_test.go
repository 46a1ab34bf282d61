package domainfilter_test

import (
	"net/url"
	"testing"

	"github.com/rohmanhakim/webcrawler/internal/domainfilter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParseURL(t *testing.T, raw string) url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return *u
}

func TestAllow_SameHostAllowed(t *testing.T) {
	f := domainfilter.NewFilter(domainfilter.DefaultParams())
	decision := f.Allow(mustParseURL(t, "https://example.com/docs/intro"), "example.com")
	assert.True(t, decision.Allowed)
	assert.Equal(t, domainfilter.ReasonOK, decision.Reason)
}

func TestAllow_OffHostRejected(t *testing.T) {
	f := domainfilter.NewFilter(domainfilter.DefaultParams())
	decision := f.Allow(mustParseURL(t, "https://other.com/docs"), "example.com")
	assert.False(t, decision.Allowed)
	assert.Equal(t, domainfilter.ReasonOffHost, decision.Reason)
}

func TestAllow_SubdomainAllowedWhenEnabled(t *testing.T) {
	params := domainfilter.DefaultParams()
	params.AllowSubdomains = true
	f := domainfilter.NewFilter(params)
	decision := f.Allow(mustParseURL(t, "https://docs.example.com/guide"), "example.com")
	assert.True(t, decision.Allowed)
}

func TestAllow_SubdomainRejectedWhenDisabled(t *testing.T) {
	params := domainfilter.DefaultParams()
	params.AllowSubdomains = false
	f := domainfilter.NewFilter(params)
	decision := f.Allow(mustParseURL(t, "https://docs.example.com/guide"), "example.com")
	assert.False(t, decision.Allowed)
	assert.Equal(t, domainfilter.ReasonOffHost, decision.Reason)
}

func TestAllow_SkippedExtension(t *testing.T) {
	f := domainfilter.NewFilter(domainfilter.DefaultParams())
	decision := f.Allow(mustParseURL(t, "https://example.com/file.PDF"), "example.com")
	assert.False(t, decision.Allowed)
	assert.Equal(t, domainfilter.ReasonSkippedExtension, decision.Reason)
}

func TestAllow_BlockedPath(t *testing.T) {
	params := domainfilter.DefaultParams()
	params.BlockedPaths = []string{"/login"}
	f := domainfilter.NewFilter(params)
	decision := f.Allow(mustParseURL(t, "https://example.com/login/sso"), "example.com")
	assert.False(t, decision.Allowed)
	assert.Equal(t, domainfilter.ReasonBlockedPath, decision.Reason)
}

func TestAllow_BlacklistedHostSuffix(t *testing.T) {
	params := domainfilter.DefaultParams()
	params.BlacklistedHosts = []string{".blocked"}
	f := domainfilter.NewFilter(params)
	decision := f.Allow(mustParseURL(t, "https://evil.blocked/page"), "evil.blocked")
	assert.False(t, decision.Allowed)
	assert.Equal(t, domainfilter.ReasonBlacklistedHost, decision.Reason)
}

func TestAllow_WhitelistBypassesHostScope(t *testing.T) {
	params := domainfilter.DefaultParams()
	params.WhitelistedHosts = []string{"cdn.example.org"}
	f := domainfilter.NewFilter(params)
	decision := f.Allow(mustParseURL(t, "https://cdn.example.org/asset"), "example.com")
	assert.True(t, decision.Allowed)
	assert.Equal(t, domainfilter.ReasonWhitelisted, decision.Reason)
}

func TestAllow_StrictUniversityMode(t *testing.T) {
	params := domainfilter.DefaultParams()
	params.StrictUniversityMode = true
	f := domainfilter.NewFilter(params)

	notUniversity := f.Allow(mustParseURL(t, "https://example.com/page"), "")
	assert.False(t, notUniversity.Allowed)
	assert.Equal(t, domainfilter.ReasonNotUniversity, notUniversity.Reason)

	university := f.Allow(mustParseURL(t, "https://cs.stanford.edu/page"), "")
	assert.True(t, university.Allowed)
}

func TestAllow_TooLong(t *testing.T) {
	params := domainfilter.DefaultParams()
	params.MaxURLLength = 20
	f := domainfilter.NewFilter(params)
	decision := f.Allow(mustParseURL(t, "https://example.com/a-very-long-path-indeed"), "example.com")
	assert.False(t, decision.Allowed)
	assert.Equal(t, domainfilter.ReasonTooLong, decision.Reason)
}

func TestStats_AccumulatesAcrossChecks(t *testing.T) {
	f := domainfilter.NewFilter(domainfilter.DefaultParams())
	f.Allow(mustParseURL(t, "https://example.com/a"), "example.com")
	f.Allow(mustParseURL(t, "https://other.com/b"), "example.com")

	stats := f.Stats()
	assert.Equal(t, 2, stats.TotalChecked)
	assert.Equal(t, 1, stats.Allowed)
	assert.Equal(t, 1, stats.Blocked)
	assert.Equal(t, 1, stats.ByReason[domainfilter.ReasonOffHost])
}

func TestClassify(t *testing.T) {
	params := domainfilter.DefaultParams()
	params.UniversitySuffixes = []string{".edu"}
	params.WhitelistedHosts = []string{"trusted.com"}
	params.BlacklistedHosts = []string{"evil.com"}
	f := domainfilter.NewFilter(params)

	c := f.Classify(mustParseURL(t, "https://cs.mit.edu/page"))
	assert.True(t, c.IsUniversity)
	assert.False(t, c.IsWhitelisted)
	assert.False(t, c.IsBlacklisted)

	c2 := f.Classify(mustParseURL(t, "https://evil.com/page"))
	assert.True(t, c2.IsBlacklisted)
}
