package scraper

/*
Responsibilities
- Drive DOM extraction and sanitization for a single fetched page
- Derive title, headings, body text and outbound links
- Compute word count, detected language and content hash

The Scraper is the seam between the Page Fetcher (which hands it raw bytes)
and Change Detection / the Streaming Writer (which consume ScrapedContent).
*/

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rohmanhakim/webcrawler/internal/extractor"
	"github.com/rohmanhakim/webcrawler/internal/metadata"
	"github.com/rohmanhakim/webcrawler/internal/sanitizer"
	"github.com/rohmanhakim/webcrawler/pkg/hashutil"
	"github.com/rohmanhakim/webcrawler/pkg/urlutil"
	"golang.org/x/net/html"
)

var wsRun = regexp.MustCompile(`\s+`)

type Scraper struct {
	metadataSink metadata.MetadataSink
	extractor    extractor.DomExtractor
	sanitizer    sanitizer.HtmlSanitizer
}

func NewScraper(
	metadataSink metadata.MetadataSink,
	ext extractor.DomExtractor,
	san sanitizer.HtmlSanitizer,
) Scraper {
	return Scraper{
		metadataSink: metadataSink,
		extractor:    ext,
		sanitizer:    san,
	}
}

// Scrape runs the extraction/sanitization pipeline over raw HTML and derives
// a complete ScrapedContent record. It never returns an error: an extraction
// or sanitization failure is folded into a record with Status=FAILED and an
// ErrorMessage, a content-hashing failure into one with Status=PARTIAL,
// matching the fetcher/extractor convention of surfacing failures through
// the metadata sink rather than aborting the caller's batch.
func (s *Scraper) Scrape(htmlByte []byte, param ScrapeParam) ScrapedContent {
	scrapedAt := param.CrawledAt
	base := ScrapedContent{
		Url:           param.SourceUrl,
		CrawledAt:     param.CrawledAt,
		ScrapedAt:     scrapedAt,
		FetchDuration: param.FetchDuration,
		Depth:         param.Depth,
		ParentUrl:     param.ParentUrl,
		HttpStatus:    param.HttpStatus,
		ContentType:   param.ContentType,
	}

	extractionResult, err := s.extractor.Extract(param.SourceUrl, htmlByte)
	if err != nil {
		base.Status = StatusFailed
		base.ErrorMessage = err.Error()
		return base
	}

	sanitizedDoc, sErr := s.sanitizer.Sanitize(extractionResult.ContentNode)
	if sErr != nil {
		base.Status = StatusFailed
		base.ErrorMessage = sErr.Error()
		return base
	}

	contentNode := sanitizedDoc.GetContentNode()

	base.Title = extractTitle(extractionResult.DocumentRoot)
	base.Headings = extractHeadings(contentNode)
	base.Body = extractBodyText(contentNode)
	base.CleanedHTML = renderInnerHTML(contentNode)
	base.Links = s.resolveLinks(extractionResult.DocumentRoot, param.SourceUrl)
	base.WordCount = countWords(base.Body)
	base.Language = DetectLanguage(base.Body)

	hash, hErr := contentHash(base.Body)
	if hErr != nil {
		var scrapeErr *ScrapeError
		errors.As(hErr, &scrapeErr)
		s.metadataSink.RecordError(
			time.Now(),
			"scraper",
			"Scraper.Scrape",
			metadata.CauseUnknown,
			hErr.Error(),
			[]metadata.Attribute{metadata.NewAttr(metadata.AttrURL, param.SourceUrl.String())},
		)
		base.Status = StatusPartial
		base.ErrorMessage = hErr.Error()
		return base
	}
	base.ContentHash = hash
	base.Status = StatusSuccess

	s.metadataSink.RecordArtifact(
		metadata.ArtifactScrapeRecord,
		param.SourceUrl.String(),
		[]metadata.Attribute{
			metadata.NewAttr(metadata.AttrDepth, fmt.Sprintf("%d", param.Depth)),
		},
	)

	return base
}

func extractTitle(doc *html.Node) string {
	if doc == nil {
		return ""
	}
	gq := goquery.NewDocumentFromNode(doc)
	return strings.TrimSpace(gq.Find("title").First().Text())
}

func extractHeadings(node *html.Node) []string {
	if node == nil {
		return nil
	}
	gq := goquery.NewDocumentFromNode(node)
	var headings []string
	gq.Find("h1, h2, h3, h4, h5, h6").Each(func(i int, sel *goquery.Selection) {
		text := strings.TrimSpace(sel.Text())
		if text != "" {
			headings = append(headings, text)
		}
	})
	return headings
}

// extractBodyText walks node's text nodes and normalizes whitespace: runs
// of whitespace collapse to a single space, and the result is trimmed.
func extractBodyText(node *html.Node) string {
	if node == nil {
		return ""
	}
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(node)
	collapsed := wsRun.ReplaceAllString(sb.String(), " ")
	return strings.TrimSpace(collapsed)
}

func renderInnerHTML(node *html.Node) string {
	if node == nil {
		return ""
	}
	var buf bytes.Buffer
	for c := node.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return ""
		}
	}
	return buf.String()
}

// resolveLinks extracts every <a href> from the original (pre-removal) DOM,
// resolves it against sourceUrl, keeps only http(s) results, and deduplicates.
func (s *Scraper) resolveLinks(doc *html.Node, sourceUrl url.URL) []url.URL {
	if doc == nil {
		return nil
	}
	gq := goquery.NewDocumentFromNode(doc)

	seen := make(map[string]bool)
	var links []url.URL
	gq.Find("a[href]").Each(func(i int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok || strings.TrimSpace(href) == "" || strings.HasPrefix(href, "#") {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		resolved := urlutil.Resolve(sourceUrl, *ref)
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			return
		}
		key := resolved.String()
		if seen[key] {
			return
		}
		seen[key] = true
		links = append(links, resolved)
	})
	return links
}

func countWords(body string) int {
	if strings.TrimSpace(body) == "" {
		return 0
	}
	return len(strings.Fields(body))
}

// contentHash returns the first 16 hex characters of the SHA-256 digest of
// body. An empty body yields an empty hash.
func contentHash(body string) (string, *ScrapeError) {
	if body == "" {
		return "", nil
	}
	full, err := hashutil.HashBytes([]byte(body), hashutil.HashAlgoSHA256)
	if err != nil {
		return "", &ScrapeError{
			Message:   err.Error(),
			Retryable: false,
			Cause:     ErrCauseHash,
		}
	}
	if len(full) < 16 {
		return full, nil
	}
	return full[:16], nil
}
