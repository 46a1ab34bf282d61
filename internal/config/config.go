package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"time"
)

type Config struct {
	//===============
	//  Crawl scope
	//===============
	// Initial pages to give to the crawler to begin discovering and traversing other pages.
	seedURLs []url.URL
	// Whitelisted hostname. When left empty, Build fills it with the seed URLs' hosts
	allowedHosts map[string]struct{}
	// Which URL path segments are permitted to be fetched and traversed, even if the links are on the same domain
	allowedPathPrefix []string

	//===============
	// Limits
	//===============
	// Maximum number of hyperlink hops from a seed (root) URL
	maxDepth int
	// Maximum number of total documents are allowed to be fetched
	maxPages int

	//===============
	// Politeness
	//===============
	// Maximum number of crawl worker goroutines processing URLs concurrently;
	// it does not control OS threads or CPU parallelism.
	concurrency int
	// Minimum, fixed waiting time you enforce between two HTTP requests to the same host.
	baseDelay time.Duration
	// Randomized variation added on top of the base delay.
	// Intentional randomness applied to timing.
	jitter time.Duration
	// Controls the random number generator
	randomSeed int64
	// maximum attempt during retry
	maxAttempt int
	// initial delay for backoff
	backoffInitialDuration time.Duration
	// multiplier during exponential backoff
	backoffMultiplier float64
	// capped maximum delay for backoff to stop exponential multiplication
	backoffMaxDuration time.Duration

	//===============
	// Fetch
	//===============
	// Maximum time of a single fetch request
	timeout time.Duration
	// User agent that will be used in the request header. In raw string
	userAgent string

	//===============
	// Output
	//===============
	// Root directory in which the writer creates its output records file
	outputDir string
	// Whether the program will simulates what it would do without
	// actually performing any irreversible or side-effecting actions
	dryRun bool

	//===============
	// Extraction
	//===============
	// BodySpecificityBias is the threshold for preferring a child container over <body>.
	// If a child node's score is >= BodySpecificityBias * bodyScore, the child is preferred.
	// Default: 0.75 (75%)
	bodySpecificityBias float64
	// LinkDensityThreshold is the maximum ratio of link text to total text before
	// applying a penalty. Higher values allow more link-heavy content.
	// Default: 0.80 (80%)
	linkDensityThreshold float64
	// ScoreMultiplierNonWhitespaceDivisor is the divisor for calculating text score.
	// Score gets +1 point per NonWhitespaceDivisor characters.
	// Default: 50.0
	scoreMultiplierNonWhitespaceDivisor float64
	// ScoreMultiplierParagraphs is the score multiplier for each paragraph element.
	// Default: 5.0
	scoreMultiplierParagraphs float64
	// ScoreMultiplierHeadings is the score multiplier for each heading element (h1-h3).
	// Default: 10.0
	scoreMultiplierHeadings float64
	// ScoreMultiplierCodeBlocks is the score multiplier for each code block.
	// Default: 15.0
	scoreMultiplierCodeBlocks float64
	// ScoreMultiplierListItems is the score multiplier for each list item.
	// Default: 2.0
	scoreMultiplierListItems float64
	// ThresholdMinNonWhitespace is the minimum number of non-whitespace characters
	// required for content to be considered meaningful.
	// Default: 50
	thresholdMinNonWhitespace int
	// ThresholdMinHeadings is the minimum number of headings required.
	// Headings are optional but valuable.
	// Default: 0
	thresholdMinHeadings int
	// ThresholdMinParagraphsOrCode is the minimum number of paragraphs OR code blocks
	// required for content to be considered meaningful.
	// Default: 1
	thresholdMinParagraphsOrCode int
	// ThresholdMaxLinkDensity is the maximum ratio of link text to total text before
	// content is considered navigation-only and rejected.
	// Default: 0.8 (80%)
	thresholdMaxLinkDensity float64

	//===============
	// Resilience
	//===============
	// Maximum number of crawl workers allowed to hold an in-flight request to
	// the same domain at once, independent of the global concurrency cap.
	maxConcurrentPerDomain int
	// Failures against a single host, within circuitBreakerFailureWindow,
	// before its circuit opens.
	circuitBreakerMaxFailures uint32
	// How long a host's circuit stays open before a single trial request is
	// allowed through again.
	circuitBreakerOpenDuration time.Duration
	// Whether the circuit breaker is consulted at all; disabled means every
	// host is always treated as CLOSED.
	circuitBreakerEnabled bool
	// Sliding window over which circuitBreakerMaxFailures is counted.
	circuitBreakerFailureWindow time.Duration
	// Consecutive successes required to close a half-open circuit.
	circuitBreakerSuccessThreshold uint32

	//===============
	// Politeness (robots / delay bounds)
	//===============
	// Whether robots.txt is consulted before admitting a URL.
	respectRobotsTxt bool
	// Lower and upper bounds the resolved per-host delay is clamped to,
	// after base delay, crawl-delay and backoff are combined with jitter.
	crawlMinDelay time.Duration
	crawlMaxDelay time.Duration
	// How long a fetched robots.txt ruleset is cached for before a host is
	// re-fetched.
	robotsTxtCacheTTL time.Duration
	// Maximum time to wait for a robots.txt fetch.
	robotsTxtTimeout time.Duration

	//===============
	// Crawler scale (headless-render knobs, carried for operator parity)
	//===============
	// renderingMode is accepted and surfaced for operator parity with the
	// environment contract; this fetcher is a plain net/http client with no
	// headless rendering path, so the value has no runtime effect.
	renderingMode string

	//===============
	// Output / change detection
	//===============
	// Wire framing used by the streaming writer: jsonl, json, or csv.
	outputFormat string
	// Path to the fingerprint cache used for change detection across runs.
	// Empty disables cross-run change detection (every page is treated as new).
	fingerprintCachePath string
}

type configDTO struct {
	SeedURLs               []url.URL           `json:"seedUrls"`
	AllowedHosts           map[string]struct{} `json:"allowedHosts,omitempty"`
	AllowedPathPrefix      []string            `json:"allowedPathPrefix,omitempty"`
	MaxDepth               int                 `json:"maxDepth,omitempty"`
	MaxPages               int                 `json:"maxPages,omitempty"`
	Concurrency            int                 `json:"concurrency,omitempty"`
	BaseDelay              time.Duration       `json:"baseDelay,omitempty"`
	Jitter                 time.Duration       `json:"jitter,omitempty"`
	RandomSeed             int64               `json:"randomSeed,omitempty"`
	MaxAttempt             int                 `json:"maxAttempt,omitempty"`
	BackoffInitialDuration time.Duration       `json:"backoffInitialDuration,omitempty"`
	BackoffMultiplier      float64             `json:"backoffMultiplier,omitempty"`
	BackoffMaxDuration     time.Duration       `json:"backoffMaxDuration,omitempty"`
	Timeout                time.Duration       `json:"timeout,omitempty"`
	UserAgent              string              `json:"userAgent,omitempty"`
	OutputDir              string              `json:"outputDir,omitempty"`
	DryRun                 bool                `json:"dryRun,omitempty"`
	// Extraction parameters
	BodySpecificityBias                 float64 `json:"bodySpecificityBias,omitempty"`
	LinkDensityThreshold                float64 `json:"linkDensityThreshold,omitempty"`
	ScoreMultiplierNonWhitespaceDivisor float64 `json:"scoreMultiplierNonWhitespaceDivisor,omitempty"`
	ScoreMultiplierParagraphs           float64 `json:"scoreMultiplierParagraphs,omitempty"`
	ScoreMultiplierHeadings             float64 `json:"scoreMultiplierHeadings,omitempty"`
	ScoreMultiplierCodeBlocks           float64 `json:"scoreMultiplierCodeBlocks,omitempty"`
	ScoreMultiplierListItems            float64 `json:"scoreMultiplierListItems,omitempty"`
	ThresholdMinNonWhitespace           int     `json:"thresholdMinNonWhitespace,omitempty"`
	ThresholdMinHeadings                int     `json:"thresholdMinHeadings,omitempty"`
	ThresholdMinParagraphsOrCode        int     `json:"thresholdMinParagraphsOrCode,omitempty"`
	ThresholdMaxLinkDensity             float64 `json:"thresholdMaxLinkDensity,omitempty"`
	// Resilience / output
	MaxConcurrentPerDomain         int           `json:"maxConcurrentPerDomain,omitempty"`
	CircuitBreakerMaxFailures      uint32        `json:"circuitBreakerMaxFailures,omitempty"`
	CircuitBreakerOpenDuration     time.Duration `json:"circuitBreakerOpenDuration,omitempty"`
	CircuitBreakerEnabled          *bool         `json:"circuitBreakerEnabled,omitempty"`
	CircuitBreakerFailureWindow    time.Duration `json:"circuitBreakerFailureWindow,omitempty"`
	CircuitBreakerSuccessThreshold uint32        `json:"circuitBreakerSuccessThreshold,omitempty"`
	RespectRobotsTxt               *bool         `json:"respectRobotsTxt,omitempty"`
	CrawlMinDelay                  time.Duration `json:"crawlMinDelay,omitempty"`
	CrawlMaxDelay                  time.Duration `json:"crawlMaxDelay,omitempty"`
	RobotsTxtCacheTTL              time.Duration `json:"robotsTxtCacheTtl,omitempty"`
	RobotsTxtTimeout               time.Duration `json:"robotsTxtTimeout,omitempty"`
	RenderingMode                  string        `json:"renderingMode,omitempty"`
	OutputFormat                   string        `json:"outputFormat,omitempty"`
	FingerprintCachePath           string        `json:"fingerprintCachePath,omitempty"`
}

func newConfigFromDTO(dto configDTO) (Config, error) {

	// Start with default config
	cfg, err := WithDefault(dto.SeedURLs).Build()
	if err != nil {
		return Config{}, err
	}

	// AllowedHosts can be empty - if so, default to seed URLs hostnames
	if len(dto.AllowedHosts) > 0 {
		cfg.allowedHosts = dto.AllowedHosts
	}

	// AllowedPathPrefix can be empty - always use DTO values
	cfg.allowedPathPrefix = dto.AllowedPathPrefix

	// For other fields, only override if non-zero value is provided
	if dto.MaxDepth != 0 {
		cfg.maxDepth = dto.MaxDepth
	}
	if dto.MaxPages != 0 {
		cfg.maxPages = dto.MaxPages
	}
	if dto.Concurrency != 0 {
		cfg.concurrency = dto.Concurrency
	}
	if dto.BaseDelay != 0 {
		cfg.baseDelay = dto.BaseDelay
	}
	if dto.Jitter != 0 {
		cfg.jitter = dto.Jitter
	}
	if dto.RandomSeed != 0 {
		cfg.randomSeed = dto.RandomSeed
	}
	if dto.MaxAttempt != 0 {
		cfg.maxAttempt = dto.MaxAttempt
	}
	if dto.BackoffInitialDuration != 0 {
		cfg.backoffInitialDuration = dto.BackoffInitialDuration
	}
	if dto.BackoffMultiplier != 0 {
		cfg.backoffMultiplier = dto.BackoffMultiplier
	}
	if dto.BackoffMaxDuration != 0 {
		cfg.backoffMaxDuration = dto.BackoffMaxDuration
	}

	if dto.Timeout != 0 {
		cfg.timeout = dto.Timeout
	}
	if dto.UserAgent != "" {
		cfg.userAgent = dto.UserAgent
	}
	if dto.OutputDir != "" {
		cfg.outputDir = dto.OutputDir
	}
	// DryRun is a boolean, check if explicitly set (we use the DTO value as-is since bool zero value is false)
	cfg.dryRun = dto.DryRun

	// Extraction parameters - only override if non-zero value is provided
	// For float64, we check if value is not 0 (which is also the zero value)
	if dto.BodySpecificityBias != 0 {
		cfg.bodySpecificityBias = dto.BodySpecificityBias
	}
	if dto.LinkDensityThreshold != 0 {
		cfg.linkDensityThreshold = dto.LinkDensityThreshold
	}
	if dto.ScoreMultiplierNonWhitespaceDivisor != 0 {
		cfg.scoreMultiplierNonWhitespaceDivisor = dto.ScoreMultiplierNonWhitespaceDivisor
	}
	if dto.ScoreMultiplierParagraphs != 0 {
		cfg.scoreMultiplierParagraphs = dto.ScoreMultiplierParagraphs
	}
	if dto.ScoreMultiplierHeadings != 0 {
		cfg.scoreMultiplierHeadings = dto.ScoreMultiplierHeadings
	}
	if dto.ScoreMultiplierCodeBlocks != 0 {
		cfg.scoreMultiplierCodeBlocks = dto.ScoreMultiplierCodeBlocks
	}
	if dto.ScoreMultiplierListItems != 0 {
		cfg.scoreMultiplierListItems = dto.ScoreMultiplierListItems
	}
	if dto.ThresholdMinNonWhitespace != 0 {
		cfg.thresholdMinNonWhitespace = dto.ThresholdMinNonWhitespace
	}
	// Note: ThresholdMinHeadings can be 0 (which is a valid value), so we don't check for non-zero
	cfg.thresholdMinHeadings = dto.ThresholdMinHeadings
	if dto.ThresholdMinParagraphsOrCode != 0 {
		cfg.thresholdMinParagraphsOrCode = dto.ThresholdMinParagraphsOrCode
	}
	if dto.ThresholdMaxLinkDensity != 0 {
		cfg.thresholdMaxLinkDensity = dto.ThresholdMaxLinkDensity
	}

	if dto.MaxConcurrentPerDomain != 0 {
		cfg.maxConcurrentPerDomain = dto.MaxConcurrentPerDomain
	}
	if dto.CircuitBreakerMaxFailures != 0 {
		cfg.circuitBreakerMaxFailures = dto.CircuitBreakerMaxFailures
	}
	if dto.CircuitBreakerOpenDuration != 0 {
		cfg.circuitBreakerOpenDuration = dto.CircuitBreakerOpenDuration
	}
	if dto.CircuitBreakerEnabled != nil {
		cfg.circuitBreakerEnabled = *dto.CircuitBreakerEnabled
	}
	if dto.CircuitBreakerFailureWindow != 0 {
		cfg.circuitBreakerFailureWindow = dto.CircuitBreakerFailureWindow
	}
	if dto.CircuitBreakerSuccessThreshold != 0 {
		cfg.circuitBreakerSuccessThreshold = dto.CircuitBreakerSuccessThreshold
	}
	if dto.RespectRobotsTxt != nil {
		cfg.respectRobotsTxt = *dto.RespectRobotsTxt
	}
	if dto.CrawlMinDelay != 0 {
		cfg.crawlMinDelay = dto.CrawlMinDelay
	}
	if dto.CrawlMaxDelay != 0 {
		cfg.crawlMaxDelay = dto.CrawlMaxDelay
	}
	if dto.RobotsTxtCacheTTL != 0 {
		cfg.robotsTxtCacheTTL = dto.RobotsTxtCacheTTL
	}
	if dto.RobotsTxtTimeout != 0 {
		cfg.robotsTxtTimeout = dto.RobotsTxtTimeout
	}
	if dto.RenderingMode != "" {
		cfg.renderingMode = dto.RenderingMode
	}
	if dto.OutputFormat != "" {
		cfg.outputFormat = dto.OutputFormat
	}
	if dto.FingerprintCachePath != "" {
		cfg.fingerprintCachePath = dto.FingerprintCachePath
	}

	return cfg, nil
}

func WithConfigFile(path string) (Config, error) {
	_, err := os.Stat(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrFileDoesNotExist, err.Error())
	}
	configContent, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrReadConfigFail, err.Error())
	}
	cfgDTO := configDTO{}

	err = json.Unmarshal(configContent, &cfgDTO)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrConfigParsingFail, err.Error())
	}

	cfg, err := newConfigFromDTO(cfgDTO)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// WithDefault creates a new Config with the provided seed URLs and default values for all other fields.
// seedUrls is mandatory and must not be empty - an error will be returned if it is.
func WithDefault(seedUrls []url.URL) *Config {
	defaultConfig := Config{
		seedURLs:     seedUrls,
		allowedHosts: map[string]struct{}{},
		allowedPathPrefix: []string{
			"/",
		},
		maxDepth:               3,
		maxPages:               100,
		concurrency:            10,
		baseDelay:              time.Second,
		jitter:                 time.Millisecond * 500,
		randomSeed:             time.Now().UnixNano(),
		maxAttempt:             10,
		backoffInitialDuration: 100 * time.Millisecond,
		backoffMultiplier:      2.0,
		backoffMaxDuration:     10 * time.Second,
		timeout:                time.Second * 10,
		userAgent:              "crawlctl/1.0",
		outputDir:              "output",
		dryRun:                 false,
		// Extraction defaults
		bodySpecificityBias:                 0.75,
		linkDensityThreshold:                0.80,
		scoreMultiplierNonWhitespaceDivisor: 50.0,
		scoreMultiplierParagraphs:           5.0,
		scoreMultiplierHeadings:             10.0,
		scoreMultiplierCodeBlocks:           15.0,
		scoreMultiplierListItems:            2.0,
		thresholdMinNonWhitespace:           50,
		thresholdMinHeadings:                0,
		thresholdMinParagraphsOrCode:        1,
		thresholdMaxLinkDensity:             0.8,
		maxConcurrentPerDomain:              2,
		circuitBreakerMaxFailures:           5,
		circuitBreakerOpenDuration:          30 * time.Second,
		circuitBreakerEnabled:               true,
		circuitBreakerFailureWindow:         60 * time.Second,
		circuitBreakerSuccessThreshold:      2,
		respectRobotsTxt:                    true,
		crawlMinDelay:                       0,
		crawlMaxDelay:                       0,
		robotsTxtCacheTTL:                   24 * time.Hour,
		robotsTxtTimeout:                    30 * time.Second,
		renderingMode:                       "",
		outputFormat:                        "jsonl",
		fingerprintCachePath:                "",
	}
	return &defaultConfig
}

func (c *Config) WithSeedUrls(urls []url.URL) *Config {
	c.seedURLs = urls
	return c
}

func (c *Config) WithAllowedHosts(hosts map[string]struct{}) *Config {
	c.allowedHosts = hosts
	return c
}

func (c *Config) WithAllowedPathPrefix(prefixes []string) *Config {
	c.allowedPathPrefix = prefixes
	return c
}

func (c *Config) WithMaxDepth(depth int) *Config {
	c.maxDepth = depth
	return c
}

func (c *Config) WithMaxPages(pages int) *Config {
	c.maxPages = pages
	return c
}

func (c *Config) WithConcurrency(concurrency int) *Config {
	c.concurrency = concurrency
	return c
}

func (c *Config) WithBaseDelay(delay time.Duration) *Config {
	c.baseDelay = delay
	return c
}

func (c *Config) WithJitter(jitter time.Duration) *Config {
	c.jitter = jitter
	return c
}

func (c *Config) WithRandomSeed(seed int64) *Config {
	c.randomSeed = seed
	return c
}

func (c *Config) WithMaxAttempt(attempts int) *Config {
	c.maxAttempt = attempts
	return c
}

func (c *Config) WithBackoffInitialDuration(duration time.Duration) *Config {
	c.backoffInitialDuration = duration
	return c
}

func (c *Config) WithBackoffMultiplier(multiplier float64) *Config {
	c.backoffMultiplier = multiplier
	return c
}

func (c *Config) WithBackoffMaxDuration(duration time.Duration) *Config {
	c.backoffMaxDuration = duration
	return c
}

func (c *Config) WithTimeout(timeout time.Duration) *Config {
	c.timeout = timeout
	return c
}

func (c *Config) WithUserAgent(agent string) *Config {
	c.userAgent = agent
	return c
}

func (c *Config) WithOutputDir(outputDir string) *Config {
	c.outputDir = outputDir
	return c
}

func (c *Config) WithDryRun(dryRun bool) *Config {
	c.dryRun = dryRun
	return c
}

func (c *Config) WithBodySpecificityBias(bias float64) *Config {
	c.bodySpecificityBias = bias
	return c
}

func (c *Config) WithLinkDensityThreshold(threshold float64) *Config {
	c.linkDensityThreshold = threshold
	return c
}

func (c *Config) WithScoreMultiplierNonWhitespaceDivisor(divisor float64) *Config {
	c.scoreMultiplierNonWhitespaceDivisor = divisor
	return c
}

func (c *Config) WithScoreMultiplierParagraphs(multiplier float64) *Config {
	c.scoreMultiplierParagraphs = multiplier
	return c
}

func (c *Config) WithScoreMultiplierHeadings(multiplier float64) *Config {
	c.scoreMultiplierHeadings = multiplier
	return c
}

func (c *Config) WithScoreMultiplierCodeBlocks(multiplier float64) *Config {
	c.scoreMultiplierCodeBlocks = multiplier
	return c
}

func (c *Config) WithScoreMultiplierListItems(multiplier float64) *Config {
	c.scoreMultiplierListItems = multiplier
	return c
}

func (c *Config) WithThresholdMinNonWhitespace(min int) *Config {
	c.thresholdMinNonWhitespace = min
	return c
}

func (c *Config) WithThresholdMinHeadings(min int) *Config {
	c.thresholdMinHeadings = min
	return c
}

func (c *Config) WithThresholdMinParagraphsOrCode(min int) *Config {
	c.thresholdMinParagraphsOrCode = min
	return c
}

func (c *Config) WithThresholdMaxLinkDensity(max float64) *Config {
	c.thresholdMaxLinkDensity = max
	return c
}

func (c *Config) WithMaxConcurrentPerDomain(max int) *Config {
	c.maxConcurrentPerDomain = max
	return c
}

func (c *Config) WithCircuitBreakerMaxFailures(max uint32) *Config {
	c.circuitBreakerMaxFailures = max
	return c
}

func (c *Config) WithCircuitBreakerOpenDuration(d time.Duration) *Config {
	c.circuitBreakerOpenDuration = d
	return c
}

func (c *Config) WithCircuitBreakerEnabled(enabled bool) *Config {
	c.circuitBreakerEnabled = enabled
	return c
}

func (c *Config) WithCircuitBreakerFailureWindow(window time.Duration) *Config {
	c.circuitBreakerFailureWindow = window
	return c
}

func (c *Config) WithCircuitBreakerSuccessThreshold(threshold uint32) *Config {
	c.circuitBreakerSuccessThreshold = threshold
	return c
}

func (c *Config) WithRespectRobotsTxt(respect bool) *Config {
	c.respectRobotsTxt = respect
	return c
}

func (c *Config) WithCrawlMinDelay(d time.Duration) *Config {
	c.crawlMinDelay = d
	return c
}

func (c *Config) WithCrawlMaxDelay(d time.Duration) *Config {
	c.crawlMaxDelay = d
	return c
}

func (c *Config) WithRobotsTxtCacheTTL(ttl time.Duration) *Config {
	c.robotsTxtCacheTTL = ttl
	return c
}

func (c *Config) WithRobotsTxtTimeout(timeout time.Duration) *Config {
	c.robotsTxtTimeout = timeout
	return c
}

func (c *Config) WithRenderingMode(mode string) *Config {
	c.renderingMode = mode
	return c
}

func (c *Config) WithOutputFormat(format string) *Config {
	c.outputFormat = format
	return c
}

func (c *Config) WithFingerprintCachePath(path string) *Config {
	c.fingerprintCachePath = path
	return c
}

func (c *Config) Build() (Config, error) {
	if len(c.seedURLs) == 0 {
		return Config{}, fmt.Errorf("%w: seedUrls cannot be empty", ErrInvalidConfig)
	}

	// If allowedHosts is empty, default to seed URLs hostnames
	if len(c.allowedHosts) == 0 {
		c.allowedHosts = make(map[string]struct{})
		for _, u := range c.seedURLs {
			if u.Host != "" {
				c.allowedHosts[u.Host] = struct{}{}
			}
		}
	}

	return *c, nil
}

func (c Config) SeedURLs() []url.URL {
	urls := make([]url.URL, len(c.seedURLs))
	copy(urls, c.seedURLs)
	return urls
}

func (c Config) AllowedHosts() map[string]struct{} {
	hosts := make(map[string]struct{})
	for k, v := range c.allowedHosts {
		hosts[k] = v
	}
	return hosts
}

func (c Config) AllowedPathPrefix() []string {
	prefixes := make([]string, len(c.allowedPathPrefix))
	copy(prefixes, c.allowedPathPrefix)
	return prefixes
}

func (c Config) MaxDepth() int {
	return c.maxDepth
}

func (c Config) MaxPages() int {
	return c.maxPages
}

func (c Config) Concurrency() int {
	return c.concurrency
}

func (c Config) BaseDelay() time.Duration {
	return c.baseDelay
}

func (c Config) Jitter() time.Duration {
	return c.jitter
}

func (c Config) RandomSeed() int64 {
	return c.randomSeed
}

func (c Config) Timeout() time.Duration {
	return c.timeout
}

func (c Config) UserAgent() string {
	return c.userAgent
}

func (c Config) OutputDir() string {
	return c.outputDir
}

func (c Config) DryRun() bool {
	return c.dryRun
}

func (c Config) MaxAttempt() int {
	return c.maxAttempt
}

func (c Config) BackoffInitialDuration() time.Duration {
	return c.backoffInitialDuration
}

func (c Config) BackoffMultiplier() float64 {
	return c.backoffMultiplier
}

func (c Config) BackoffMaxDuration() time.Duration {
	return c.backoffMaxDuration
}

func (c Config) BodySpecificityBias() float64 {
	return c.bodySpecificityBias
}

func (c Config) LinkDensityThreshold() float64 {
	return c.linkDensityThreshold
}

func (c Config) ScoreMultiplierNonWhitespaceDivisor() float64 {
	return c.scoreMultiplierNonWhitespaceDivisor
}

func (c Config) ScoreMultiplierParagraphs() float64 {
	return c.scoreMultiplierParagraphs
}

func (c Config) ScoreMultiplierHeadings() float64 {
	return c.scoreMultiplierHeadings
}

func (c Config) ScoreMultiplierCodeBlocks() float64 {
	return c.scoreMultiplierCodeBlocks
}

func (c Config) ScoreMultiplierListItems() float64 {
	return c.scoreMultiplierListItems
}

func (c Config) ThresholdMinNonWhitespace() int {
	return c.thresholdMinNonWhitespace
}

func (c Config) ThresholdMinHeadings() int {
	return c.thresholdMinHeadings
}

func (c Config) ThresholdMinParagraphsOrCode() int {
	return c.thresholdMinParagraphsOrCode
}

func (c Config) ThresholdMaxLinkDensity() float64 {
	return c.thresholdMaxLinkDensity
}

func (c Config) MaxConcurrentPerDomain() int {
	return c.maxConcurrentPerDomain
}

func (c Config) CircuitBreakerMaxFailures() uint32 {
	return c.circuitBreakerMaxFailures
}

func (c Config) CircuitBreakerOpenDuration() time.Duration {
	return c.circuitBreakerOpenDuration
}

func (c Config) CircuitBreakerEnabled() bool {
	return c.circuitBreakerEnabled
}

func (c Config) CircuitBreakerFailureWindow() time.Duration {
	return c.circuitBreakerFailureWindow
}

func (c Config) CircuitBreakerSuccessThreshold() uint32 {
	return c.circuitBreakerSuccessThreshold
}

func (c Config) RespectRobotsTxt() bool {
	return c.respectRobotsTxt
}

func (c Config) CrawlMinDelay() time.Duration {
	return c.crawlMinDelay
}

func (c Config) CrawlMaxDelay() time.Duration {
	return c.crawlMaxDelay
}

func (c Config) RobotsTxtCacheTTL() time.Duration {
	return c.robotsTxtCacheTTL
}

func (c Config) RobotsTxtTimeout() time.Duration {
	return c.robotsTxtTimeout
}

func (c Config) RenderingMode() string {
	return c.renderingMode
}

func (c Config) OutputFormat() string {
	return c.outputFormat
}

func (c Config) FingerprintCachePath() string {
	return c.fingerprintCachePath
}

// FromEnv overlays environment variables onto a default Config built from
// seedUrls. Only variables that are actually set are applied; an unset or
// empty variable leaves the built-in default untouched. Variable names
// follow the three documented groups: crawler scale, politeness, resilience.
func FromEnv(seedUrls []url.URL) (Config, error) {
	builder := WithDefault(seedUrls)

	// Crawler scale
	if v := os.Getenv("CRAWLER_MAX_DEPTH"); v != "" {
		if n, err := parseInt(v); err == nil {
			builder.WithMaxDepth(n)
		}
	}
	if v := os.Getenv("CRAWLER_MAX_REQUESTS"); v != "" {
		if n, err := parseInt(v); err == nil {
			builder.WithMaxPages(n)
		}
	}
	if v := os.Getenv("CRAWLER_DISCOVERY_CONCURRENCY"); v != "" {
		if n, err := parseInt(v); err == nil {
			builder.WithConcurrency(n)
		}
	}
	if v := os.Getenv("CRAWLER_RENDERING_MODE"); v != "" {
		builder.WithRenderingMode(v)
	}
	if v := os.Getenv("CRAWLER_MIN_CONTENT_LENGTH"); v != "" {
		if n, err := parseInt(v); err == nil {
			builder.WithThresholdMinNonWhitespace(n)
		}
	}
	// CRAWLER_HANDLER_TIMEOUT_SECS is the closest documented equivalent to
	// this engine's per-fetch timeout; CRAWLER_NAV_TIMEOUT_SECS and
	// CRAWLER_HEADLESS have no effect since there is no headless render path.
	if v := os.Getenv("CRAWLER_HANDLER_TIMEOUT_SECS"); v != "" {
		if n, err := parseInt(v); err == nil {
			builder.WithTimeout(time.Duration(n) * time.Second)
		}
	}

	// Politeness
	if v := os.Getenv("MAX_CONCURRENT_PER_DOMAIN"); v != "" {
		if n, err := parseInt(v); err == nil {
			builder.WithMaxConcurrentPerDomain(n)
		}
	}
	if v := os.Getenv("CRAWL_DELAY_MS"); v != "" {
		if n, err := parseInt(v); err == nil {
			builder.WithBaseDelay(time.Duration(n) * time.Millisecond)
		}
	}
	if v := os.Getenv("CRAWL_MIN_DELAY_MS"); v != "" {
		if n, err := parseInt(v); err == nil {
			builder.WithCrawlMinDelay(time.Duration(n) * time.Millisecond)
		}
	}
	if v := os.Getenv("CRAWL_MAX_DELAY_MS"); v != "" {
		if n, err := parseInt(v); err == nil {
			builder.WithCrawlMaxDelay(time.Duration(n) * time.Millisecond)
		}
	}
	if v := os.Getenv("RESPECT_ROBOTS_TXT"); v != "" {
		builder.WithRespectRobotsTxt(v == "true" || v == "1")
	}
	if v := os.Getenv("CRAWL_USER_AGENT"); v != "" {
		builder.WithUserAgent(v)
	}
	if v := os.Getenv("ROBOTS_TXT_CACHE_TTL"); v != "" {
		if n, err := parseInt(v); err == nil {
			builder.WithRobotsTxtCacheTTL(time.Duration(n) * time.Second)
		}
	}
	if v := os.Getenv("ROBOTS_TXT_TIMEOUT"); v != "" {
		if n, err := parseInt(v); err == nil {
			builder.WithRobotsTxtTimeout(time.Duration(n) * time.Second)
		}
	}

	// Resilience
	if v := os.Getenv("MAX_RETRIES"); v != "" {
		if n, err := parseInt(v); err == nil {
			builder.WithMaxAttempt(n)
		}
	}
	if v := os.Getenv("RETRY_INITIAL_DELAY_MS"); v != "" {
		if n, err := parseInt(v); err == nil {
			builder.WithBackoffInitialDuration(time.Duration(n) * time.Millisecond)
		}
	}
	if v := os.Getenv("RETRY_MAX_DELAY_MS"); v != "" {
		if n, err := parseInt(v); err == nil {
			builder.WithBackoffMaxDuration(time.Duration(n) * time.Millisecond)
		}
	}
	if v := os.Getenv("RETRY_BACKOFF_MULTIPLIER"); v != "" {
		if f, err := parseFloat(v); err == nil {
			builder.WithBackoffMultiplier(f)
		}
	}
	if v := os.Getenv("RETRY_JITTER"); v != "" {
		if n, err := parseInt(v); err == nil {
			builder.WithJitter(time.Duration(n) * time.Millisecond)
		}
	}
	if v := os.Getenv("REQUEST_TIMEOUT"); v != "" {
		if n, err := parseInt(v); err == nil {
			builder.WithTimeout(time.Duration(n) * time.Second)
		}
	}
	if v := os.Getenv("CIRCUIT_BREAKER_ENABLED"); v != "" {
		builder.WithCircuitBreakerEnabled(v == "true" || v == "1")
	}
	if v := os.Getenv("CIRCUIT_BREAKER_THRESHOLD"); v != "" {
		if n, err := parseInt(v); err == nil {
			builder.WithCircuitBreakerMaxFailures(uint32(n))
		}
	}
	if v := os.Getenv("CIRCUIT_BREAKER_WINDOW_MS"); v != "" {
		if n, err := parseInt(v); err == nil {
			builder.WithCircuitBreakerFailureWindow(time.Duration(n) * time.Millisecond)
		}
	}
	if v := os.Getenv("CIRCUIT_BREAKER_RESET_MS"); v != "" {
		if n, err := parseInt(v); err == nil {
			builder.WithCircuitBreakerOpenDuration(time.Duration(n) * time.Millisecond)
		}
	}
	if v := os.Getenv("CIRCUIT_BREAKER_SUCCESS_THRESHOLD"); v != "" {
		if n, err := parseInt(v); err == nil {
			builder.WithCircuitBreakerSuccessThreshold(uint32(n))
		}
	}

	// Output / misc, not part of the documented env groups but retained for
	// operators driving this crawler outside the three standard groups.
	if v := os.Getenv("CRAWLER_OUTPUT_DIR"); v != "" {
		builder.WithOutputDir(v)
	}
	if v := os.Getenv("CRAWLER_OUTPUT_FORMAT"); v != "" {
		builder.WithOutputFormat(v)
	}
	if v := os.Getenv("CRAWLER_FINGERPRINT_CACHE_PATH"); v != "" {
		builder.WithFingerprintCachePath(v)
	}
	if v := os.Getenv("CRAWLER_DRY_RUN"); v == "true" || v == "1" {
		builder.WithDryRun(true)
	}

	return builder.Build()
}

func parseInt(s string) (int, error) {
	var n int
	_, err := fmt.Sscanf(s, "%d", &n)
	return n, err
}

func parseFloat(s string) (float64, error) {
	var f float64
	_, err := fmt.Sscanf(s, "%f", &f)
	return f, err
}
