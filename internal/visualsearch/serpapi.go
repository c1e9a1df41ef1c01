package visualsearch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/example/plant-identifier/internal/logging"
)

// SerpAPIOptions configures a SerpAPIClient.
type SerpAPIOptions struct {
	APIKey  string
	Engine  string
	BaseURL string
	Timeout time.Duration
}

// SerpAPIClient queries the SerpApi search endpoint. Provider side result
// caching is always disabled because each hosted image is new.
type SerpAPIClient struct {
	opts   SerpAPIOptions
	http   *resty.Client
	logger *zap.Logger
}

// noResultsMarker is how the provider reports a search that found nothing.
// That outcome is an empty result, not a failure.
const noResultsMarker = "hasn't returned any results"

type serpAPIResponse struct {
	Response
	SearchMetadata struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"search_metadata"`
	Error string `json:"error"`
}

// NewSerpAPIClient returns a client that is safe for concurrent use.
func NewSerpAPIClient(opts SerpAPIOptions, logger *zap.Logger) *SerpAPIClient {
	if opts.Engine == "" {
		opts.Engine = "google_lens"
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "https://serpapi.com"
	}
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetHeader("Accept", "application/json")
	if opts.Timeout > 0 {
		httpClient.SetTimeout(opts.Timeout)
	}
	return &SerpAPIClient{
		opts:   opts,
		http:   httpClient,
		logger: logger.Named("serpapi"),
	}
}

func (c *SerpAPIClient) Configured() bool {
	return c.opts.APIKey != ""
}

func (c *SerpAPIClient) Search(ctx context.Context, imageURL string) (*Response, error) {
	var out serpAPIResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"engine":   c.opts.Engine,
			"url":      imageURL,
			"api_key":  c.opts.APIKey,
			"no_cache": "true",
		}).
		SetError(&out).
		Get("/search.json")
	if err != nil {
		wrapped := logging.NewOperationError("visualsearch.serpapi", "", err)
		c.logger.Error("search request failed", zap.Error(wrapped))
		return nil, wrapped
	}
	if resp.IsError() {
		msg := out.Error
		if msg == "" {
			msg = resp.String()
		}
		wrapped := logging.NewOperationError("visualsearch.serpapi", out.SearchMetadata.ID,
			fmt.Errorf("serpapi returned status %d: %s", resp.StatusCode(), msg))
		c.logger.Error("search rejected", zap.Error(wrapped), zap.Int("status", resp.StatusCode()))
		return nil, wrapped
	}
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		wrapped := logging.NewOperationError("visualsearch.serpapi", "",
			fmt.Errorf("decode search response (status %d, content type %q): %w", resp.StatusCode(), resp.Header().Get("Content-Type"), err))
		c.logger.Error("search response unreadable", zap.Error(wrapped))
		return nil, wrapped
	}
	if out.Error != "" && !isNoResults(out.Error) {
		wrapped := logging.NewOperationError("visualsearch.serpapi", out.SearchMetadata.ID, errors.New(out.Error))
		c.logger.Error("search returned error", zap.Error(wrapped))
		return nil, wrapped
	}

	c.logger.Debug("search completed",
		zap.String("search_id", out.SearchMetadata.ID),
		zap.Int("related_content", len(out.RelatedContent)),
		zap.Int("visual_matches", len(out.VisualMatches)),
	)
	return &out.Response, nil
}

func isNoResults(msg string) bool {
	return strings.Contains(msg, noResultsMarker)
}
