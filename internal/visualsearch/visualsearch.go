// Package visualsearch submits hosted image URLs to a reverse image search
// provider and returns its raw result lists.
package visualsearch

import "context"

// RelatedContent is a textual guess about what the image shows.
type RelatedContent struct {
	Query       string `json:"query"`
	Link        string `json:"link"`
	Thumbnail   string `json:"thumbnail"`
	SerpAPILink string `json:"serpapi_link"`
}

// VisualMatch is an item found elsewhere that looks like the image.
type VisualMatch struct {
	Position   int    `json:"position"`
	Title      string `json:"title"`
	Link       string `json:"link"`
	Source     string `json:"source"`
	SourceIcon string `json:"source_icon"`
	Thumbnail  string `json:"thumbnail"`
	Image      string `json:"image"`
}

// Response holds both lists in provider order. Either may be nil.
type Response struct {
	RelatedContent []RelatedContent `json:"related_content"`
	VisualMatches  []VisualMatch    `json:"visual_matches"`
}

// Client exposes the subset of functionality used by the identification flow.
type Client interface {
	// Configured reports whether an API key is present. It never performs I/O.
	Configured() bool
	Search(ctx context.Context, imageURL string) (*Response, error)
}
