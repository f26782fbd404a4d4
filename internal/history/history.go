// Package history tracks a customer's recent return activity.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/opensource-commerce/heron/internal/domain"
	"github.com/opensource-commerce/heron/internal/fraud"
)

// DefaultWindowDays is the lookback window for the serial-returner
// signal when the config does not set one.
const DefaultWindowDays = 30

// Service counts recent returns per customer and category.
type Service struct {
	repo       domain.Repository
	cache      domain.Cache
	windowDays int
}

// NewService creates a return history service.
func NewService(repo domain.Repository, cache domain.Cache, windowDays int) *Service {
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}
	return &Service{
		repo:       repo,
		cache:      cache,
		windowDays: windowDays,
	}
}

// RecentReturns returns the number of returns the customer made in the
// given category within the lookback window. An empty category counts
// across all categories.
// This is the HistoryGetter signature expected by the fraud scorer.
func (s *Service) RecentReturns(ctx context.Context, tenantID, customerID, category string) (int64, error) {
	if tenantID == "" || customerID == "" {
		return 0, fmt.Errorf("tenantID and customerID are required")
	}
	if s.repo == nil {
		return 0, fmt.Errorf("no data source available")
	}

	since := time.Now().AddDate(0, 0, -s.windowDays)
	count, err := s.repo.CountReturnsByCategory(ctx, tenantID, customerID, category, since)
	if err != nil {
		return 0, fmt.Errorf("failed to count returns: %w", err)
	}
	return count, nil
}

// RecordReturn bumps the per-customer counter used for cheap rate
// observation. Counter failures are not fatal to request processing.
func (s *Service) RecordReturn(ctx context.Context, tenantID, customerID string) error {
	if s.cache == nil {
		return nil
	}
	key := "returns:" + customerID
	ttl := time.Duration(s.windowDays) * 24 * time.Hour
	if _, err := s.cache.IncrementCounter(ctx, tenantID, key, ttl); err != nil {
		return fmt.Errorf("failed to increment return counter: %w", err)
	}
	return nil
}

// GetHistoryGetter returns a HistoryGetter for the fraud scorer.
func (s *Service) GetHistoryGetter() fraud.HistoryGetter {
	return s.RecentReturns
}
