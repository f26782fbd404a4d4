package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/opensource-commerce/heron/internal/domain"
)

// stubRepo implements only the repository method the service uses.
type stubRepo struct {
	domain.Repository

	analytics *domain.ReturnAnalytics
	err       error

	gotTenantID string
	gotSince    time.Time
}

func (r *stubRepo) GetReturnAnalytics(ctx context.Context, tenantID string, since time.Time) (*domain.ReturnAnalytics, error) {
	r.gotTenantID = tenantID
	r.gotSince = since
	if r.err != nil {
		return nil, r.err
	}
	return r.analytics, nil
}

func TestGetReportRates(t *testing.T) {
	repo := &stubRepo{analytics: &domain.ReturnAnalytics{
		TotalReturns:    10,
		TotalEligible:   7,
		TotalRejected:   3,
		TotalFlagged:    2,
		AvgRefundAmount: 42.50,
	}}
	svc := NewService(repo)

	report, err := svc.GetReport(context.Background(), "tenant-001", 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.ApprovalRate != 0.7 {
		t.Errorf("expected approval rate 0.7, got %v", report.ApprovalRate)
	}
	if report.FlagRate != 0.2 {
		t.Errorf("expected flag rate 0.2, got %v", report.FlagRate)
	}
	if report.WindowDays != 7 {
		t.Errorf("expected window of 7 days, got %d", report.WindowDays)
	}
	if repo.gotTenantID != "tenant-001" {
		t.Errorf("expected tenant-001 passed through, got %s", repo.gotTenantID)
	}

	wantSince := time.Now().UTC().AddDate(0, 0, -7)
	if diff := repo.gotSince.Sub(wantSince); diff < -time.Minute || diff > time.Minute {
		t.Errorf("expected since ≈ 7 days ago, got %v", repo.gotSince)
	}
}

func TestGetReportZeroReturns(t *testing.T) {
	repo := &stubRepo{analytics: &domain.ReturnAnalytics{}}
	svc := NewService(repo)

	report, err := svc.GetReport(context.Background(), "tenant-001", 30)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.ApprovalRate != 0 || report.FlagRate != 0 {
		t.Errorf("expected zero rates with no returns, got %v / %v",
			report.ApprovalRate, report.FlagRate)
	}
}

func TestGetReportDefaultWindow(t *testing.T) {
	repo := &stubRepo{analytics: &domain.ReturnAnalytics{}}
	svc := NewService(repo)

	report, err := svc.GetReport(context.Background(), "tenant-001", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.WindowDays != DefaultWindowDays {
		t.Errorf("expected default window %d, got %d", DefaultWindowDays, report.WindowDays)
	}
}

func TestGetReportRequiresTenant(t *testing.T) {
	svc := NewService(&stubRepo{analytics: &domain.ReturnAnalytics{}})

	if _, err := svc.GetReport(context.Background(), "", 30); err == nil {
		t.Error("expected error for missing tenant id")
	}
}

func TestGetReportRepoError(t *testing.T) {
	svc := NewService(&stubRepo{err: errors.New("connection refused")})

	if _, err := svc.GetReport(context.Background(), "tenant-001", 30); err == nil {
		t.Error("expected repository error to propagate")
	}
}
