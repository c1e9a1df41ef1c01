package repository

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/plant-identifier/internal/logging"
)

// IdentificationLog is the audit record of one identification request. It
// stores counts and outcome only, never the image or the results.
type IdentificationLog struct {
	ID            uint      `gorm:"primaryKey"`
	RequestID     string    `gorm:"column:request_id;uniqueIndex;size:64"`
	Outcome       string    `gorm:"column:outcome;size:32;index"`
	Success       bool      `gorm:"column:success"`
	PossibleNames int       `gorm:"column:possible_names"`
	Matches       int       `gorm:"column:matches"`
	Error         string    `gorm:"column:error;type:text"`
	LatencyMs     int64     `gorm:"column:latency_ms"`
	CreatedAt     time.Time `gorm:"column:created_at;index"`
}

// TableName overrides the default table name.
func (IdentificationLog) TableName() string {
	return "identification_logs"
}

// MetricsAggregation is the raw aggregate computed by the database.
type MetricsAggregation struct {
	TotalCount           int64
	SuccessCount         int64
	EmptyCount           int64
	AverageLatencyMs     float64
	AveragePossibleNames float64
	AverageMatches       float64
}

// ErrNotFound is returned when no log matches a lookup.
var ErrNotFound = errors.New("identification log not found")

// IdentificationRepository provides persistence APIs for identification logs.
type IdentificationRepository struct {
	db             *gorm.DB
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewIdentificationRepository creates a new repository instance.
func NewIdentificationRepository(db *gorm.DB, logger *zap.Logger) *IdentificationRepository {
	return &IdentificationRepository{
		db:             db,
		logger:         logger.Named("identification_repository"),
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

// AutoMigrate ensures the schema is available.
func (r *IdentificationRepository) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&IdentificationLog{})
}

// SaveLog persists an identification log entry, retrying transient failures.
func (r *IdentificationRepository) SaveLog(ctx context.Context, log *IdentificationLog) error {
	return r.executeWithRetry(ctx, "repository.save_log", log.RequestID, func() error {
		return r.db.WithContext(ctx).Create(log).Error
	})
}

// FindByRequestID retrieves the log for one request.
func (r *IdentificationRepository) FindByRequestID(ctx context.Context, requestID string) (*IdentificationLog, error) {
	var log IdentificationLog
	err := r.executeWithRetry(ctx, "repository.find_by_request_id", requestID, func() error {
		return r.db.WithContext(ctx).First(&log, "request_id = ?", requestID).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &log, nil
}

// AggregateMetrics summarises every stored log.
func (r *IdentificationRepository) AggregateMetrics(ctx context.Context) (*MetricsAggregation, error) {
	var row struct {
		TotalCount           int64
		SuccessCount         int64
		EmptyCount           int64
		AverageLatencyMs     float64
		AveragePossibleNames float64
		AverageMatches       float64
	}
	err := r.executeWithRetry(ctx, "repository.aggregate_metrics", "", func() error {
		return r.db.WithContext(ctx).
			Model(&IdentificationLog{}).
			Select(`COUNT(*) AS total_count,
				COALESCE(SUM(CASE WHEN success THEN 1 ELSE 0 END), 0) AS success_count,
				COALESCE(SUM(CASE WHEN success AND possible_names = 0 AND matches = 0 THEN 1 ELSE 0 END), 0) AS empty_count,
				COALESCE(AVG(latency_ms), 0) AS average_latency_ms,
				COALESCE(AVG(CASE WHEN success THEN possible_names END), 0) AS average_possible_names,
				COALESCE(AVG(CASE WHEN success THEN matches END), 0) AS average_matches`).
			Scan(&row).Error
	})
	if err != nil {
		return nil, err
	}
	agg := MetricsAggregation(row)
	return &agg, nil
}

func (r *IdentificationRepository) executeWithRetry(ctx context.Context, operation, requestID string, fn func() error) error {
	attempts := r.retryAttempts
	if attempts < 1 {
		attempts = 1
	}

	backoff := r.initialBackoff
	opLogger := logging.WithOperation(r.logger, operation, requestID)
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, requestID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= r.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("database operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}

		if errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if !isTransientError(err) || attempt == attempts-1 {
			opLogger.Error("database operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return logging.NewOperationError(operation, requestID, err)
		}

		opLogger.Warn("transient database error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, requestID, err)
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var temporary interface{ Temporary() bool }
	if errors.As(err, &temporary) && temporary.Temporary() {
		return true
	}

	return false
}
