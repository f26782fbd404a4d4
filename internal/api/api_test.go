package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/opensource-commerce/heron/internal/analytics"
	"github.com/opensource-commerce/heron/internal/bus"
	"github.com/opensource-commerce/heron/internal/cache"
	"github.com/opensource-commerce/heron/internal/conversation"
	"github.com/opensource-commerce/heron/internal/domain"
	"github.com/opensource-commerce/heron/internal/fraud"
	"github.com/opensource-commerce/heron/internal/history"
	"github.com/opensource-commerce/heron/internal/policy"
	"github.com/opensource-commerce/heron/internal/repository"
)

const testPolicyText = `Returns are accepted within 30 days of purchase for electronics.
Items must be unopened and in original packaging.
A 15% restocking fee applies to all returns.
Excludes: final sale items, clearance items, and custom orders.
Approval within 48 hours. Refunds processed in 5-7 business days.
Exchange available for defective items. Free pickup for returns over $100.`

func setupTestServer(t *testing.T) *Server {
	t.Helper()

	tmpfile, err := os.CreateTemp("", "heron-api-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpfile.Close()

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpfile.Name(),
	})
	if err != nil {
		os.Remove(tmpfile.Name())
		t.Fatalf("failed to create repository: %v", err)
	}

	lru := cache.NewLRUCache(1000)
	eventBus := bus.NewChannelBus(100)
	compressor := policy.NewCompressor()
	hist := history.NewService(repo, lru, 30)

	scorer, err := fraud.NewScorer(hist.GetHistoryGetter(), 0.7)
	if err != nil {
		t.Fatalf("failed to create scorer: %v", err)
	}

	lookup := func(ctx context.Context, tenantID, sellerID string) (*domain.Policy, error) {
		return repo.GetPolicyBySeller(ctx, tenantID, sellerID)
	}
	chat := conversation.NewHandler(lookup, scorer, conversation.Config{EscalationThreshold: 0.7})
	reports := analytics.NewService(repo)

	srv := NewServer(domain.ServerConfig{}, repo, lru, eventBus, compressor, scorer, chat, hist, reports, "test")

	t.Cleanup(func() {
		eventBus.Close()
		repo.Close()
		os.Remove(tmpfile.Name())
	})
	return srv
}

func doRequest(t *testing.T, srv *Server, method, path string, body any, tenantID string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if tenantID != "" {
		req.Header.Set(TenantIDHeader, tenantID)
	}

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func compressTestPolicy(t *testing.T, srv *Server, tenantID string) {
	t.Helper()
	rec := doRequest(t, srv, http.MethodPost, "/policies", CompressPolicyRequest{
		SellerID:   "seller-001",
		Name:       "Electronics Returns",
		PolicyText: testPolicyText,
	}, tenantID)
	if rec.Code != http.StatusCreated {
		t.Fatalf("compress policy failed: %d %s", rec.Code, rec.Body.String())
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv := setupTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/health", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp map[string]string
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["status"] != "healthy" {
		t.Errorf("expected healthy, got %s", resp["status"])
	}
	if resp["version"] != "test" {
		t.Errorf("expected version test, got %s", resp["version"])
	}
}

func TestTenantHeaderRequired(t *testing.T) {
	srv := setupTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/policies", nil, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without tenant header, got %d", rec.Code)
	}
}

func TestCompressAndGetPolicy(t *testing.T) {
	srv := setupTestServer(t)
	compressTestPolicy(t, srv, "tenant-001")

	rec := doRequest(t, srv, http.MethodGet, "/policies/seller-001", nil, "tenant-001")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var p domain.Policy
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("failed to parse policy: %v", err)
	}
	if p.ReturnWindowDays != 30 {
		t.Errorf("expected 30-day window, got %d", p.ReturnWindowDays)
	}
	if p.RefundType != domain.RefundPartial || p.RefundDeductionPct != 15 {
		t.Errorf("expected 15%% partial refund, got %s %.0f", p.RefundType, p.RefundDeductionPct)
	}
	if len(p.Exclusions) != 3 {
		t.Errorf("expected 3 exclusions, got %v", p.Exclusions)
	}

	// Other tenants can't see it.
	rec = doRequest(t, srv, http.MethodGet, "/policies/seller-001", nil, "tenant-002")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for other tenant, got %d", rec.Code)
	}
}

func TestListPolicies(t *testing.T) {
	srv := setupTestServer(t)
	compressTestPolicy(t, srv, "tenant-001")

	rec := doRequest(t, srv, http.MethodGet, "/policies", nil, "tenant-001")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Policies []*domain.Policy `json:"policies"`
		Count    int              `json:"count"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Count != 1 || len(resp.Policies) != 1 {
		t.Errorf("expected 1 policy, got %d", resp.Count)
	}
}

func TestEvaluateReturnFlow(t *testing.T) {
	srv := setupTestServer(t)
	compressTestPolicy(t, srv, "tenant-001")

	rec := doRequest(t, srv, http.MethodPost, "/returns/evaluate", EvaluateReturnRequest{
		ReturnID:   "ret-001",
		CustomerID: "cust-001",
		SellerID:   "seller-001",
		Product: domain.Product{
			ID:           "prod-001",
			Name:         "Wireless Headphones",
			Category:     "electronics",
			Price:        100.00,
			PurchaseDate: time.Now().UTC().AddDate(0, 0, -5),
			Condition:    "unopened",
		},
		Reason: "not_as_described",
	}, "tenant-001")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp EvaluateReturnResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.ReturnID != "ret-001" || resp.EvaluationID == "" {
		t.Errorf("unexpected ids: %+v", resp)
	}
	if !resp.Result.IsEligible {
		t.Errorf("expected eligible, reasons: %v", resp.Result.Reasons)
	}
	if resp.Result.RefundAmount != 85.00 {
		t.Errorf("expected 85.00 after restocking fee, got %.2f", resp.Result.RefundAmount)
	}
	if len(resp.Result.ChecksPassed) != 4 {
		t.Errorf("expected 4 passed checks, got %v", resp.Result.ChecksPassed)
	}
	if resp.Metadata.Version != "test" {
		t.Errorf("expected metadata version, got %+v", resp.Metadata)
	}

	// The stored return and evaluation are retrievable.
	rec = doRequest(t, srv, http.MethodGet, "/returns/ret-001", nil, "tenant-001")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for stored return, got %d", rec.Code)
	}
	var stored domain.ReturnRequest
	json.Unmarshal(rec.Body.Bytes(), &stored)
	if stored.RefundStatus != domain.RefundApproved {
		t.Errorf("expected approved, got %s", stored.RefundStatus)
	}

	rec = doRequest(t, srv, http.MethodGet, "/evaluations/"+resp.EvaluationID, nil, "tenant-001")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for stored evaluation, got %d", rec.Code)
	}
}

func TestEvaluateReturnRejected(t *testing.T) {
	srv := setupTestServer(t)
	compressTestPolicy(t, srv, "tenant-001")

	rec := doRequest(t, srv, http.MethodPost, "/returns/evaluate", EvaluateReturnRequest{
		CustomerID: "cust-001",
		SellerID:   "seller-001",
		Product: domain.Product{
			ID:           "prod-002",
			Name:         "Smart Watch",
			Category:     "electronics",
			Price:        150.00,
			PurchaseDate: time.Now().UTC().AddDate(0, 0, -90),
			Condition:    "unopened",
		},
		Reason: "changed_mind",
	}, "tenant-001")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp EvaluateReturnResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Result.IsEligible {
		t.Error("expected rejection outside the window")
	}
	if len(resp.Result.ChecksFailed) != 1 {
		t.Errorf("expected only the window check to fail, got %v", resp.Result.ChecksFailed)
	}
}

func TestEvaluateReturnValidation(t *testing.T) {
	srv := setupTestServer(t)
	compressTestPolicy(t, srv, "tenant-001")

	// Zero price fails request validation.
	rec := doRequest(t, srv, http.MethodPost, "/returns/evaluate", EvaluateReturnRequest{
		CustomerID: "cust-001",
		SellerID:   "seller-001",
		Product: domain.Product{
			ID: "prod-001", Name: "Headphones", Category: "electronics",
			PurchaseDate: time.Now().UTC(),
		},
		Reason: "defective",
	}, "tenant-001")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid request, got %d", rec.Code)
	}

	// Unknown seller is 404.
	rec = doRequest(t, srv, http.MethodPost, "/returns/evaluate", EvaluateReturnRequest{
		CustomerID: "cust-001",
		SellerID:   "seller-404",
		Product: domain.Product{
			ID: "prod-001", Name: "Headphones", Category: "electronics", Price: 50,
			PurchaseDate: time.Now().UTC(),
		},
		Reason: "defective",
	}, "tenant-001")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown seller, got %d", rec.Code)
	}

	// Missing identifiers are 400.
	rec = doRequest(t, srv, http.MethodPost, "/returns/evaluate", EvaluateReturnRequest{}, "tenant-001")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing ids, got %d", rec.Code)
	}
}

func TestSignalsEndpoints(t *testing.T) {
	srv := setupTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/signals", nil, "tenant-001")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var listResp struct {
		Signals       []*fraud.SignalConfig `json:"signals"`
		Count         int                   `json:"count"`
		FlagThreshold float64               `json:"flagThreshold"`
	}
	json.Unmarshal(rec.Body.Bytes(), &listResp)
	if listResp.Count != 5 {
		t.Errorf("expected 5 builtin signals, got %d", listResp.Count)
	}
	if listResp.FlagThreshold != 0.7 {
		t.Errorf("expected threshold 0.7, got %.2f", listResp.FlagThreshold)
	}

	// Replace with a single custom signal.
	rec = doRequest(t, srv, http.MethodPost, "/signals/reload", ReloadSignalsRequest{
		Signals: []*fraud.SignalConfig{
			{ID: "big-ticket", Expression: "price > 2000.0", Weight: 0.5, Reason: "big ticket", Enabled: true},
		},
	}, "tenant-001")
	if rec.Code != http.StatusOK {
		t.Fatalf("reload failed: %d %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, srv, http.MethodGet, "/signals", nil, "tenant-001")
	json.Unmarshal(rec.Body.Bytes(), &listResp)
	if listResp.Count != 1 || listResp.Signals[0].ID != "big-ticket" {
		t.Errorf("expected custom signal set, got %+v", listResp.Signals)
	}

	// A bad expression is rejected.
	rec = doRequest(t, srv, http.MethodPost, "/signals/reload", ReloadSignalsRequest{
		Signals: []*fraud.SignalConfig{
			{ID: "broken", Expression: "price +", Weight: 0.5, Enabled: true},
		},
	}, "tenant-001")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid expression, got %d", rec.Code)
	}

	// Empty body restores the builtins.
	rec = doRequest(t, srv, http.MethodPost, "/signals/reload", nil, "tenant-001")
	if rec.Code != http.StatusOK {
		t.Fatalf("restore failed: %d %s", rec.Code, rec.Body.String())
	}
	rec = doRequest(t, srv, http.MethodGet, "/signals", nil, "tenant-001")
	json.Unmarshal(rec.Body.Bytes(), &listResp)
	if listResp.Count != 5 {
		t.Errorf("expected builtins restored, got %d", listResp.Count)
	}
}

func TestChatFlow(t *testing.T) {
	srv := setupTestServer(t)
	compressTestPolicy(t, srv, "tenant-001")

	rec := doRequest(t, srv, http.MethodPost, "/chat", ChatRequest{
		CustomerID: "cust-001",
		SellerID:   "seller-001",
		Message:    "What's your return policy?",
	}, "tenant-001")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var first ChatResponse
	json.Unmarshal(rec.Body.Bytes(), &first)
	if first.ConversationID == "" {
		t.Fatal("expected a conversation id")
	}
	if !strings.Contains(first.Reply, "Return window: 30 days") {
		t.Errorf("expected policy summary:\n%s", first.Reply)
	}
	if first.MessageCount != 1 {
		t.Errorf("expected message count 1, got %d", first.MessageCount)
	}

	// Second turn resumes the same conversation.
	rec = doRequest(t, srv, http.MethodPost, "/chat", ChatRequest{
		ConversationID: first.ConversationID,
		CustomerID:     "cust-001",
		SellerID:       "seller-001",
		Message:        "This is unacceptable, I'm furious!!!",
	}, "tenant-001")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var second ChatResponse
	json.Unmarshal(rec.Body.Bytes(), &second)
	if second.ConversationID != first.ConversationID {
		t.Error("conversation id changed between turns")
	}
	if second.MessageCount != 2 {
		t.Errorf("expected message count 2, got %d", second.MessageCount)
	}
	if second.Sentiment != domain.SentimentAngry {
		t.Errorf("expected angry sentiment, got %s", second.Sentiment)
	}

	// The stored conversation is retrievable.
	rec = doRequest(t, srv, http.MethodGet, "/conversations/"+first.ConversationID, nil, "tenant-001")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var conv domain.ConversationContext
	json.Unmarshal(rec.Body.Bytes(), &conv)
	if conv.MessageCount != 2 || len(conv.Messages) != 4 {
		t.Errorf("stored conversation incomplete: count %d, messages %d",
			conv.MessageCount, len(conv.Messages))
	}
}

func TestChatUnknownSeller(t *testing.T) {
	srv := setupTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/chat", ChatRequest{
		CustomerID: "cust-001",
		SellerID:   "seller-404",
		Message:    "Can I return my order?",
	}, "tenant-001")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown seller, got %d", rec.Code)
	}
}

func TestChatValidation(t *testing.T) {
	srv := setupTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/chat", ChatRequest{
		CustomerID: "cust-001",
		SellerID:   "seller-001",
	}, "tenant-001")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty message, got %d", rec.Code)
	}
}

func TestAnalyticsEndpoint(t *testing.T) {
	srv := setupTestServer(t)
	compressTestPolicy(t, srv, "tenant-001")

	// Two evaluations: one approved, one rejected.
	for i, daysAgo := range []int{5, 90} {
		rec := doRequest(t, srv, http.MethodPost, "/returns/evaluate", EvaluateReturnRequest{
			ReturnID:   fmt.Sprintf("ret-%03d", i+1),
			CustomerID: "cust-001",
			SellerID:   "seller-001",
			Product: domain.Product{
				ID: "prod-001", Name: "Headphones", Category: "electronics",
				Price:        100.00,
				PurchaseDate: time.Now().UTC().AddDate(0, 0, -daysAgo),
				Condition:    "unopened",
			},
			Reason: "not_as_described",
		}, "tenant-001")
		if rec.Code != http.StatusOK {
			t.Fatalf("evaluate failed: %d %s", rec.Code, rec.Body.String())
		}
	}

	rec := doRequest(t, srv, http.MethodGet, "/analytics?days=7", nil, "tenant-001")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var report analytics.Report
	json.Unmarshal(rec.Body.Bytes(), &report)
	if report.WindowDays != 7 {
		t.Errorf("expected 7-day window, got %d", report.WindowDays)
	}
	if report.Analytics.TotalReturns != 2 {
		t.Errorf("expected 2 returns, got %d", report.Analytics.TotalReturns)
	}
	if report.Analytics.TotalEligible != 1 || report.Analytics.TotalRejected != 1 {
		t.Errorf("unexpected verdict split: %+v", report.Analytics)
	}
	if report.ApprovalRate != 0.5 {
		t.Errorf("expected approval rate 0.5, got %.2f", report.ApprovalRate)
	}

	rec = doRequest(t, srv, http.MethodGet, "/analytics?days=-1", nil, "tenant-001")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad days, got %d", rec.Code)
	}
}
