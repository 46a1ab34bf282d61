package extractor

import "golang.org/x/net/html"

// ExtractionResult holds the extraction outcome.
// DocumentRoot is the original parsed HTML document.
// ContentNode is the extracted meaningful content node (semantic container).
type ExtractionResult struct {
	DocumentRoot *html.Node
	ContentNode  *html.Node
}

// ExtractParam tunes the heuristic layers of DomExtractor.
type ExtractParam struct {
	// LinkDensityThreshold is the link-text-to-total-text ratio above which
	// a candidate container's score is penalized during text-density scoring.
	LinkDensityThreshold float64

	// BodySpecificityBias is the minimum score ratio (relative to <body>'s
	// score) a child container must reach to be preferred over <body>.
	BodySpecificityBias float64
}

func NewExtractParam(linkDensityThreshold, bodySpecificityBias float64) ExtractParam {
	return ExtractParam{
		LinkDensityThreshold: linkDensityThreshold,
		BodySpecificityBias:  bodySpecificityBias,
	}
}

func DefaultExtractParam() ExtractParam {
	return ExtractParam{
		LinkDensityThreshold: 0.5,
		BodySpecificityBias:  0.6,
	}
}
