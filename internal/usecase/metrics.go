package usecase

import (
	"context"
	"errors"

	"github.com/example/plant-identifier/internal/repository"
)

// ErrAuditDisabled is returned by audit queries when no repository is wired.
var ErrAuditDisabled = errors.New("identification audit log is not enabled")

// MetricsSummary represents aggregated identification insights.
type MetricsSummary struct {
	TotalRequests        int64   `json:"total_requests"`
	SuccessfulRequests   int64   `json:"successful_requests"`
	EmptyResults         int64   `json:"empty_results"`
	SuccessRate          float64 `json:"success_rate"`
	EmptyRate            float64 `json:"empty_rate"`
	AverageLatencyMs     float64 `json:"average_latency_ms"`
	AveragePossibleNames float64 `json:"average_possible_names"`
	AverageMatches       float64 `json:"average_matches"`
}

// GetMetricsSummary aggregates identification metrics from persisted logs.
func (uc *IdentificationUseCase) GetMetricsSummary(ctx context.Context) (*MetricsSummary, error) {
	if uc.repo == nil {
		return nil, ErrAuditDisabled
	}
	aggregation, err := uc.repo.AggregateMetrics(ctx)
	if err != nil {
		return nil, err
	}

	summary := &MetricsSummary{
		TotalRequests:        aggregation.TotalCount,
		SuccessfulRequests:   aggregation.SuccessCount,
		EmptyResults:         aggregation.EmptyCount,
		AverageLatencyMs:     aggregation.AverageLatencyMs,
		AveragePossibleNames: aggregation.AveragePossibleNames,
		AverageMatches:       aggregation.AverageMatches,
	}

	if aggregation.TotalCount > 0 {
		summary.SuccessRate = float64(aggregation.SuccessCount) / float64(aggregation.TotalCount)
	}
	if aggregation.SuccessCount > 0 {
		summary.EmptyRate = float64(aggregation.EmptyCount) / float64(aggregation.SuccessCount)
	}

	return summary, nil
}

// GetLog returns the audit record for one request.
func (uc *IdentificationUseCase) GetLog(ctx context.Context, requestID string) (*repository.IdentificationLog, error) {
	if uc.repo == nil {
		return nil, ErrAuditDisabled
	}
	return uc.repo.FindByRequestID(ctx, requestID)
}
