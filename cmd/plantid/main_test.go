package main

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/example/plant-identifier/internal/client"
	"github.com/example/plant-identifier/internal/identify"
)

type staticIdentifier struct {
	resp *identify.Response
	err  error
	got  string
}

func (s *staticIdentifier) Identify(ctx context.Context, imageData string) (*identify.Response, error) {
	s.got = imageData
	return s.resp, s.err
}

func TestIdentifyImagePrintsLoadingThenResult(t *testing.T) {
	id := &staticIdentifier{resp: &identify.Response{
		Success:       true,
		PossibleNames: []identify.PossibleName{{Name: "Aloe vera"}},
		Matches:       []identify.Match{{Title: "Aloe care", Link: "https://a"}},
	}}
	var out bytes.Buffer

	view := identifyImage(context.Background(), id, "data:image/png;base64,AAAA", &out, zap.NewNop())

	assert.Equal(t, client.PhaseResult, view.Phase)
	assert.Equal(t, "data:image/png;base64,AAAA", id.got)
	assert.Contains(t, out.String(), "Identifying Your Plant")
	assert.Contains(t, out.String(), "  - Aloe vera\n")
	assert.Contains(t, out.String(), "  1. Aloe care\n")
}

func TestIdentifyImagePrintsError(t *testing.T) {
	id := &staticIdentifier{err: errors.New("Cloudinary credentials not configured")}
	var out bytes.Buffer

	view := identifyImage(context.Background(), id, "AAAA", &out, zap.NewNop())

	assert.Equal(t, client.PhaseError, view.Phase)
	assert.Contains(t, out.String(), "Error: Cloudinary credentials not configured\n")
}
