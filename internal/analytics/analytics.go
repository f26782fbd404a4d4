// Package analytics aggregates stored return decisions into reports.
package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/opensource-commerce/heron/internal/domain"
)

// DefaultWindowDays is the report lookback when the caller gives none.
const DefaultWindowDays = 30

// Service produces aggregate return statistics per tenant.
type Service struct {
	repo domain.Repository
}

// NewService creates an analytics service.
func NewService(repo domain.Repository) *Service {
	return &Service{repo: repo}
}

// Report is a windowed analytics snapshot.
type Report struct {
	TenantID   string                  `json:"tenantId"`
	Since      time.Time               `json:"since"`
	WindowDays int                     `json:"windowDays"`
	Analytics  *domain.ReturnAnalytics `json:"analytics"`

	// Derived rates in [0,1]; zero when there are no returns.
	ApprovalRate float64 `json:"approvalRate"`
	FlagRate     float64 `json:"flagRate"`
}

// GetReport aggregates return activity over the last windowDays.
func (s *Service) GetReport(ctx context.Context, tenantID string, windowDays int) (*Report, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenantID is required")
	}
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}

	since := time.Now().UTC().AddDate(0, 0, -windowDays)
	agg, err := s.repo.GetReturnAnalytics(ctx, tenantID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load analytics: %w", err)
	}

	report := &Report{
		TenantID:   tenantID,
		Since:      since,
		WindowDays: windowDays,
		Analytics:  agg,
	}
	if agg.TotalReturns > 0 {
		report.ApprovalRate = float64(agg.TotalEligible) / float64(agg.TotalReturns)
		report.FlagRate = float64(agg.TotalFlagged) / float64(agg.TotalReturns)
	}

	return report, nil
}
