package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/plant-identifier/internal/datauri"
	"github.com/example/plant-identifier/internal/identify"
	"github.com/example/plant-identifier/internal/logging"
	"github.com/example/plant-identifier/internal/metrics"
	"github.com/example/plant-identifier/internal/repository"
	"github.com/example/plant-identifier/internal/upload"
	"github.com/example/plant-identifier/internal/visualsearch"
)

var (
	// ErrImageRequired rejects a request without image data.
	ErrImageRequired = errors.New("image data is required")
	// ErrNoHostedURL means the upload host accepted the image but returned no URL.
	ErrNoHostedURL = errors.New("failed to obtain hosted URL")
)

// ConfigError reports a missing credential. Message is safe to show callers.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string { return e.Message }

type requestIDKey struct{}

// WithRequestID makes Identify log and audit under id instead of a fresh one.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// IdentificationRepository defines the audit operations needed by the use case.
type IdentificationRepository interface {
	SaveLog(ctx context.Context, log *repository.IdentificationLog) error
	FindByRequestID(ctx context.Context, requestID string) (*repository.IdentificationLog, error)
	AggregateMetrics(ctx context.Context) (*repository.MetricsAggregation, error)
}

// IdentificationUseCase proxies one image through the upload host and the
// visual search provider. It holds no per-request state.
type IdentificationUseCase struct {
	uploader     upload.Client
	searcher     visualsearch.Client
	repo         IdentificationRepository
	logger       *zap.Logger
	newRequestID func() string
	auditTimeout time.Duration
}

// NewIdentificationUseCase constructs a new use case instance. repo may be nil,
// in which case nothing is audited.
func NewIdentificationUseCase(uploader upload.Client, searcher visualsearch.Client, repo IdentificationRepository, logger *zap.Logger) *IdentificationUseCase {
	return &IdentificationUseCase{
		uploader:     uploader,
		searcher:     searcher,
		repo:         repo,
		logger:       logger.Named("identification_usecase"),
		newRequestID: uuid.NewString,
		auditTimeout: 5 * time.Second,
	}
}

// AuditEnabled reports whether identification logs are persisted.
func (uc *IdentificationUseCase) AuditEnabled() bool {
	return uc.repo != nil
}

// Identify validates imageData, hosts it, searches for it and maps the
// provider lists into the response shape. Empty lists are a success.
func (uc *IdentificationUseCase) Identify(ctx context.Context, imageData string) (*identify.Response, error) {
	started := time.Now()
	requestID, _ := ctx.Value(requestIDKey{}).(string)
	if requestID == "" {
		requestID = uc.newRequestID()
	}
	opLogger := logging.WithOperation(uc.logger, "usecase.identify", requestID)

	resp, err := uc.identify(ctx, requestID, imageData, opLogger)
	outcome := outcomeOf(resp, err)
	metrics.ObserveIdentify(outcome, started)
	uc.audit(ctx, requestID, outcome, resp, err, started, opLogger)

	if err != nil {
		return nil, err
	}
	opLogger.Info("identification completed",
		zap.Int("possible_names", len(resp.PossibleNames)),
		zap.Int("matches", len(resp.Matches)),
		zap.Duration("elapsed", time.Since(started)),
	)
	return resp, nil
}

func (uc *IdentificationUseCase) identify(ctx context.Context, requestID, imageData string, opLogger *zap.Logger) (*identify.Response, error) {
	if strings.TrimSpace(datauri.StripPrefix(imageData)) == "" {
		return nil, ErrImageRequired
	}
	if !uc.searcher.Configured() {
		return nil, &ConfigError{Message: "SerpApi key not configured"}
	}
	if !uc.uploader.Configured() {
		return nil, &ConfigError{Message: "Cloudinary credentials not configured"}
	}

	normalized := datauri.Normalize(imageData)

	uploadStarted := time.Now()
	hosted, err := uc.uploader.Upload(ctx, upload.Request{
		DataURI:  normalized,
		PublicID: "plant_" + requestID,
	})
	if err == nil && (hosted == nil || hosted.SecureURL == "") {
		err = ErrNoHostedURL
	}
	metrics.ObserveUpstream("upload", uploadStarted, err)
	if err != nil {
		wrapped := logging.NewOperationError("usecase.upload_image", requestID, err)
		opLogger.Error("image upload failed", zap.Error(wrapped))
		return nil, wrapped
	}
	opLogger.Debug("image hosted", zap.String("url", hosted.SecureURL))

	searchStarted := time.Now()
	raw, err := uc.searcher.Search(ctx, hosted.SecureURL)
	metrics.ObserveUpstream("search", searchStarted, err)
	if err != nil {
		wrapped := logging.NewOperationError("usecase.visual_search", requestID, err)
		opLogger.Error("visual search failed", zap.Error(wrapped))
		return nil, wrapped
	}

	return MapResponse(raw), nil
}

// MapResponse converts provider lists into the response shape, one entry per
// provider entry and in the same order. Missing lists become empty lists.
func MapResponse(raw *visualsearch.Response) *identify.Response {
	resp := &identify.Response{
		Success:       true,
		PossibleNames: []identify.PossibleName{},
		Matches:       []identify.Match{},
	}
	if raw == nil {
		return resp
	}

	for _, item := range raw.RelatedContent {
		resp.PossibleNames = append(resp.PossibleNames, identify.PossibleName{
			Name:      item.Query,
			Thumbnail: item.Thumbnail,
		})
	}
	for _, item := range raw.VisualMatches {
		resp.Matches = append(resp.Matches, identify.Match{
			Title:     item.Title,
			Link:      item.Link,
			Thumbnail: item.Thumbnail,
			Image:     item.Image,
		})
	}
	return resp
}

func outcomeOf(resp *identify.Response, err error) string {
	var cfgErr *ConfigError
	switch {
	case errors.Is(err, ErrImageRequired):
		return metrics.OutcomeInvalid
	case errors.As(err, &cfgErr):
		return metrics.OutcomeConfigError
	case err != nil:
		return metrics.OutcomeFailed
	case resp.Empty():
		return metrics.OutcomeEmpty
	default:
		return metrics.OutcomeSuccess
	}
}

func (uc *IdentificationUseCase) audit(ctx context.Context, requestID, outcome string, resp *identify.Response, err error, started time.Time, opLogger *zap.Logger) {
	if uc.repo == nil {
		return
	}

	log := &repository.IdentificationLog{
		RequestID: requestID,
		Outcome:   outcome,
		Success:   err == nil,
		LatencyMs: time.Since(started).Milliseconds(),
		CreatedAt: time.Now().UTC(),
	}
	if resp != nil {
		log.PossibleNames = len(resp.PossibleNames)
		log.Matches = len(resp.Matches)
	}
	if err != nil {
		log.Error = err.Error()
	}

	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), uc.auditTimeout)
	defer cancel()
	if saveErr := uc.repo.SaveLog(auditCtx, log); saveErr != nil {
		opLogger.Warn("failed to persist identification log", zap.Error(saveErr))
	}
}
