// Package client drives the capture and display side of plant
// identification: it submits a selected photo to the proxy and holds the
// view state that is rendered for the user.
package client

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/example/plant-identifier/internal/identify"
)

const (
	defaultFailureMessage = "Failed to identify plant"
	unsuccessfulMessage   = "Identification failed"
	defaultRequestTimeout = 2 * time.Minute
)

// ProxyClient calls the identification proxy over HTTP.
type ProxyClient struct {
	http *resty.Client
}

// ProxyOption customises a ProxyClient.
type ProxyOption func(*resty.Client)

// WithBearerToken sends token on every request.
func WithBearerToken(token string) ProxyOption {
	return func(c *resty.Client) {
		if token != "" {
			c.SetAuthToken(token)
		}
	}
}

// WithTimeout bounds each identification call.
func WithTimeout(d time.Duration) ProxyOption {
	return func(c *resty.Client) {
		c.SetTimeout(d)
	}
}

// NewProxyClient returns a client for the proxy at baseURL.
func NewProxyClient(baseURL string, opts ...ProxyOption) *ProxyClient {
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(defaultRequestTimeout).
		SetHeader("Content-Type", "application/json")
	for _, opt := range opts {
		opt(c)
	}
	return &ProxyClient{http: c}
}

// Identify posts imageData and returns the proxy's lists. A non-2xx status
// becomes an error carrying the server's message.
func (p *ProxyClient) Identify(ctx context.Context, imageData string) (*identify.Response, error) {
	var out identify.Response
	var apiErr identify.ErrorResponse
	resp, err := p.http.R().
		SetContext(ctx).
		SetBody(identify.Request{ImageData: imageData}).
		SetResult(&out).
		SetError(&apiErr).
		Post(identify.Route)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		if apiErr.Error != "" {
			return nil, errors.New(apiErr.Error)
		}
		return nil, errors.New(defaultFailureMessage)
	}
	if !out.Success {
		return nil, errors.New(unsuccessfulMessage)
	}
	if out.PossibleNames == nil {
		out.PossibleNames = []identify.PossibleName{}
	}
	if out.Matches == nil {
		out.Matches = []identify.Match{}
	}
	return &out, nil
}
