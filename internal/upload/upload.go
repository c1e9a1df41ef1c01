// Package upload hosts images on an external service and returns a
// publicly fetchable URL for them.
package upload

import "context"

// Request describes one image to host.
type Request struct {
	// DataURI is the normalized inline image.
	DataURI string
	// PublicID names the hosted asset. It must be unique per request.
	PublicID string
}

// Result contains the outcome returned by the upload host.
type Result struct {
	SecureURL string
	PublicID  string
	Format    string
	Bytes     int64
}

// Client exposes the subset of functionality used by the identification flow.
type Client interface {
	// Configured reports whether credentials are present. It never performs I/O.
	Configured() bool
	Upload(ctx context.Context, req Request) (*Result, error)
}
