package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/plant-identifier/internal/identify"
	"github.com/example/plant-identifier/internal/logging"
	"github.com/example/plant-identifier/internal/metrics"
	"github.com/example/plant-identifier/internal/ratelimit"
	"github.com/example/plant-identifier/internal/repository"
	"github.com/example/plant-identifier/internal/usecase"
)

const (
	// MaxUploadSize is the default request body limit for identification calls.
	MaxUploadSize = 10 << 20
	// RequestIDHeader carries the id under which an identification is logged
	// and audited.
	RequestIDHeader = "X-Request-ID"
)

// Options carries the optional pieces of the HTTP surface.
type Options struct {
	// MaxBodyBytes caps the identification request body. Zero means MaxUploadSize.
	MaxBodyBytes int64
	// Auth guards the identification and audit routes. Nil means open.
	Auth gin.HandlerFunc
	// Limiter throttles the identification route. Nil means unlimited.
	Limiter ratelimit.Limiter
	Logger  *zap.Logger
}

// RegisterRoutes wires the HTTP handlers to the Gin router.
func RegisterRoutes(router *gin.Engine, uc *usecase.IdentificationUseCase, opts Options) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("handlers")
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = MaxUploadSize
	}

	guarded := []gin.HandlerFunc{}
	if opts.Auth != nil {
		guarded = append(guarded, opts.Auth)
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	identifyChain := append([]gin.HandlerFunc{}, guarded...)
	if opts.Limiter != nil {
		identifyChain = append(identifyChain, RateLimit(opts.Limiter, logger))
	}
	identifyChain = append(identifyChain, identifyHandler(uc, maxBody, logger))
	router.POST(identify.Route, identifyChain...)

	if uc.AuditEnabled() {
		audit := router.Group("/api", guarded...)
		audit.GET("/identifications/:id", getLogHandler(uc, logger))
		audit.GET("/metrics/summary", metricsSummaryHandler(uc, logger))
	}
}

func identifyHandler(uc *usecase.IdentificationUseCase, maxBody int64, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBody)

		var req identify.Request
		if err := c.ShouldBindJSON(&req); err != nil {
			var tooLarge *http.MaxBytesError
			switch {
			case errors.As(err, &tooLarge):
				c.JSON(http.StatusRequestEntityTooLarge, identify.ErrorResponse{Error: "Image payload too large"})
			case errors.Is(err, io.EOF):
				c.JSON(http.StatusBadRequest, identify.ErrorResponse{Error: "Image data is required"})
			default:
				c.JSON(http.StatusBadRequest, identify.ErrorResponse{Error: "Invalid request body"})
			}
			return
		}

		requestID := uuid.NewString()
		c.Header(RequestIDHeader, requestID)

		resp, err := uc.Identify(usecase.WithRequestID(c.Request.Context(), requestID), req.ImageData)
		if err != nil {
			writeIdentifyError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

// writeIdentifyError is the single place where identification failures
// become HTTP responses.
func writeIdentifyError(c *gin.Context, logger *zap.Logger, err error) {
	var cfgErr *usecase.ConfigError
	switch {
	case errors.Is(err, usecase.ErrImageRequired):
		c.JSON(http.StatusBadRequest, identify.ErrorResponse{Error: "Image data is required"})
	case errors.As(err, &cfgErr):
		logger.Error("identification misconfigured", zap.Error(err))
		c.JSON(http.StatusInternalServerError, identify.ErrorResponse{Error: cfgErr.Message})
	default:
		logger.Error("plant identification error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, identify.ErrorResponse{
			Error:   "Failed to identify plant",
			Details: logging.Cause(err),
		})
	}
}

func getLogHandler(uc *usecase.IdentificationUseCase, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.Param("id")
		if requestID == "" {
			c.JSON(http.StatusBadRequest, identify.ErrorResponse{Error: "id is required"})
			return
		}

		log, err := uc.GetLog(c.Request.Context(), requestID)
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, identify.ErrorResponse{Error: "identification not found"})
			return
		}
		if err != nil {
			logger.Error("failed to load identification log", zap.Error(err), zap.String("request_id", requestID))
			c.JSON(http.StatusInternalServerError, identify.ErrorResponse{Error: "failed to load identification"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"request_id":     log.RequestID,
			"outcome":        log.Outcome,
			"success":        log.Success,
			"possible_names": log.PossibleNames,
			"matches":        log.Matches,
			"error":          log.Error,
			"latency_ms":     log.LatencyMs,
			"created_at":     log.CreatedAt,
		})
	}
}

func metricsSummaryHandler(uc *usecase.IdentificationUseCase, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		summary, err := uc.GetMetricsSummary(c.Request.Context())
		if err != nil {
			logger.Error("failed to aggregate metrics", zap.Error(err))
			c.JSON(http.StatusInternalServerError, identify.ErrorResponse{Error: "failed to aggregate metrics"})
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}
