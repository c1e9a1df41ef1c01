package client

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/example/plant-identifier/internal/identify"
)

// NoMatchesNotice is shown when identification succeeds with nothing to show.
const NoMatchesNotice = "No plant matches found. Try taking a clearer photo of the plant."

// Phase is the coarse state of the view.
type Phase int

const (
	PhaseEmpty Phase = iota
	PhaseLoading
	PhaseResult
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseEmpty:
		return "empty"
	case PhaseLoading:
		return "loading"
	case PhaseResult:
		return "result"
	case PhaseError:
		return "error"
	default:
		return "unknown"
	}
}

// View is a snapshot of everything the display needs.
type View struct {
	Phase         Phase
	Image         string
	PossibleNames []identify.PossibleName
	Matches       []identify.Match
	// Error is set in PhaseError only.
	Error string
	// Notice is set in PhaseResult when both lists are empty.
	Notice string
}

// NoMatches reports a successful identification that found nothing.
func (v View) NoMatches() bool {
	return v.Phase == PhaseResult && len(v.PossibleNames) == 0 && len(v.Matches) == 0
}

// Identifier submits one image for identification.
type Identifier interface {
	Identify(ctx context.Context, imageData string) (*identify.Response, error)
}

// Session owns the selected image and the latest identification outcome.
// Every selection bumps a generation counter; a response that arrives after
// its selection was replaced or reset is dropped.
type Session struct {
	identifier Identifier
	logger     *zap.Logger
	observer   func(View)

	mu         sync.Mutex
	view       View
	generation uint64
	inFlight   bool
	pending    chan struct{}

	// notifyMu keeps observer calls in state order.
	notifyMu sync.Mutex
}

// SessionOption customises a Session.
type SessionOption func(*Session)

// WithObserver registers fn to receive every new view. fn runs with the
// notification lock held and must not call back into the Session.
func WithObserver(fn func(View)) SessionOption {
	return func(s *Session) { s.observer = fn }
}

// NewSession returns a session in the empty phase.
func NewSession(identifier Identifier, logger *zap.Logger, opts ...SessionOption) *Session {
	s := &Session{
		identifier: identifier,
		logger:     logger.Named("session"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// View returns the current view.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

// Select replaces the current image, clears every prior result and error,
// and starts one identification request for it. The returned channel is
// closed once that request settles, whether its response was applied or
// dropped. An empty image behaves like Reset.
func (s *Session) Select(ctx context.Context, imageData string) <-chan struct{} {
	s.mu.Lock()
	s.generation++
	s.inFlight = false
	s.pending = nil
	s.view = View{Phase: PhaseEmpty, Image: imageData}
	return s.triggerLocked(ctx)
}

// Identify starts a request for the current image unless one is already in
// flight for it, in which case the pending request's channel is returned.
func (s *Session) Identify(ctx context.Context) <-chan struct{} {
	s.mu.Lock()
	return s.triggerLocked(ctx)
}

// Reset discards the image, results and errors and returns to the empty
// phase. Responses still in flight are dropped. No request is started.
func (s *Session) Reset() {
	s.mu.Lock()
	s.generation++
	s.inFlight = false
	s.pending = nil
	s.view = View{}
	s.publishLocked()
}

// triggerLocked is called with mu held and releases it.
func (s *Session) triggerLocked(ctx context.Context) <-chan struct{} {
	if s.inFlight {
		pending := s.pending
		s.mu.Unlock()
		return pending
	}

	done := make(chan struct{})
	if s.view.Image == "" {
		close(done)
		s.publishLocked()
		return done
	}

	gen := s.generation
	image := s.view.Image
	s.inFlight = true
	s.pending = done
	s.view = View{Phase: PhaseLoading, Image: image}
	s.publishLocked()

	go s.run(ctx, gen, image, done)
	return done
}

func (s *Session) run(ctx context.Context, gen uint64, image string, done chan struct{}) {
	defer close(done)

	resp, err := s.identifier.Identify(ctx, image)

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		s.logger.Debug("dropping stale identification response", zap.Uint64("generation", gen))
		return
	}
	s.inFlight = false
	s.pending = nil

	if err != nil {
		s.logger.Warn("identification failed", zap.Error(err))
		s.view = View{Phase: PhaseError, Image: image, Error: err.Error()}
	} else if resp == nil {
		s.view = View{Phase: PhaseResult, Image: image, Notice: NoMatchesNotice}
	} else {
		s.view = View{
			Phase:         PhaseResult,
			Image:         image,
			PossibleNames: resp.PossibleNames,
			Matches:       resp.Matches,
		}
		if resp.Empty() {
			s.view.Notice = NoMatchesNotice
		}
	}
	s.publishLocked()
}

// publishLocked is called with mu held, releases it and hands the current
// view to the observer.
func (s *Session) publishLocked() {
	view := s.view
	if s.observer == nil {
		s.mu.Unlock()
		return
	}
	s.notifyMu.Lock()
	s.mu.Unlock()
	defer s.notifyMu.Unlock()
	s.observer(view)
}
