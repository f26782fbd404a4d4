// Package worker provides async return processing for the Pro tier.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-commerce/heron/internal/domain"
	"github.com/opensource-commerce/heron/internal/eligibility"
	"github.com/opensource-commerce/heron/internal/fraud"
	"github.com/opensource-commerce/heron/internal/history"
)

// policyCacheTTL bounds how stale a cached policy may be for async
// evaluations.
const policyCacheTTL = 10 * time.Minute

// Worker processes return requests asynchronously from the EventBus.
type Worker struct {
	bus     domain.EventBus
	repo    domain.Repository
	cache   domain.Cache
	scorer  *fraud.Scorer
	history *history.Service

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to process
	TenantIDs []string
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, repo domain.Repository, cache domain.Cache, scorer *fraud.Scorer, hist *history.Service) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:     bus,
		repo:    repo,
		cache:   cache,
		scorer:  scorer,
		history: hist,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start begins processing return requests for the given tenants.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.TenantIDs) == 0 {
		return w.startGlobalWorker()
	}

	for _, tenantID := range cfg.TenantIDs {
		if err := w.startTenantWorker(tenantID); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"tenant_count", len(cfg.TenantIDs),
	)

	return nil
}

// startGlobalWorker subscribes under a catch-all tenant for dev setups.
func (w *Worker) startGlobalWorker() error {
	sub, err := w.bus.Subscribe(w.ctx, "_global", domain.TopicReturnRequested, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("global worker started")
	return nil
}

// startTenantWorker starts a worker for a specific tenant.
func (w *Worker) startTenantWorker(tenantID string) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicReturnRequested, func(ctx context.Context, msg *domain.Message) error {
		return w.processReturn(ctx, tenantID, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("tenant worker started",
		"tenant_id", tenantID,
		"topic", domain.TopicReturnRequested,
	)

	return nil
}

// handleMessage handles messages from the global subscription.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	return w.processReturn(ctx, msg.TenantID, msg)
}

// ReturnMessage is the message payload for async return evaluation.
type ReturnMessage struct {
	ReturnID   string              `json:"returnId"`
	TenantID   string              `json:"tenantId"`
	TraceID    string              `json:"traceId"`
	CustomerID string              `json:"customerId"`
	SellerID   string              `json:"sellerId"`
	Product    domain.Product      `json:"product"`
	Reason     domain.ReturnReason `json:"reason"`
}

// processReturn evaluates a return request through the pipeline.
func (w *Worker) processReturn(ctx context.Context, tenantID string, msg *domain.Message) error {
	w.wg.Add(1)
	defer w.wg.Done()

	// Detach from the delivery context so an unsubscribe mid-flight
	// does not abort persistence of a decision already underway.
	ctx = context.WithoutCancel(ctx)

	start := time.Now()

	var rm ReturnMessage
	if err := json.Unmarshal(msg.Payload, &rm); err != nil {
		slog.Error("failed to parse return message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	// Use message tenant if provided
	if rm.TenantID != "" {
		tenantID = rm.TenantID
	}

	traceID := rm.TraceID
	if traceID == "" {
		traceID = msg.ID
	}

	slog.Debug("processing return",
		"return_id", rm.ReturnID,
		"tenant_id", tenantID,
		"trace_id", traceID,
	)

	// 1. Resolve the seller's policy, cache first.
	policy, err := w.lookupPolicy(ctx, tenantID, rm.SellerID)
	if err != nil {
		slog.Error("policy lookup failed",
			"return_id", rm.ReturnID,
			"seller_id", rm.SellerID,
			"error", err,
		)
		return err
	}

	// 2. Evaluate eligibility and fraud signals.
	req := &domain.ReturnRequest{
		ID:           rm.ReturnID,
		TenantID:     tenantID,
		CustomerID:   rm.CustomerID,
		Product:      rm.Product,
		Reason:       rm.Reason,
		RefundStatus: domain.RefundPending,
		CreatedAt:    start.UTC(),
	}
	if req.ID == "" {
		req.ID = uuid.New().String()
	}

	engine := eligibility.NewEngine(policy, w.scorer)
	result, err := engine.CheckEligibility(ctx, req)
	if err != nil {
		slog.Error("eligibility evaluation failed",
			"return_id", req.ID,
			"error", err,
		)
		return err
	}

	evaluation := &domain.Evaluation{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		ReturnID:  req.ID,
		SellerID:  rm.SellerID,
		Timestamp: time.Now().UTC(),
		Result:    *result,
	}

	// 3. Persist request and evaluation.
	if w.repo != nil {
		if err := w.repo.SaveReturnRequest(ctx, tenantID, req); err != nil {
			slog.Error("failed to save return request",
				"return_id", req.ID,
				"error", err,
			)
		}
		if err := w.repo.SaveEvaluation(ctx, tenantID, evaluation); err != nil {
			slog.Error("failed to save evaluation",
				"return_id", req.ID,
				"error", err,
			)
		}
	}

	// 4. Bump the customer's return counter.
	if w.history != nil {
		if err := w.history.RecordReturn(ctx, tenantID, rm.CustomerID); err != nil {
			slog.Warn("failed to record return",
				"customer_id", rm.CustomerID,
				"error", err,
			)
		}
	}

	// 5. Publish the decision; flagged returns also go to the review topic.
	resultPayload, _ := json.Marshal(evaluation)
	if err := w.bus.Publish(ctx, tenantID, domain.TopicReturnDecision, resultPayload); err != nil {
		slog.Error("failed to publish decision",
			"return_id", req.ID,
			"error", err,
		)
	}

	if result.IsFlagged {
		if err := w.bus.Publish(ctx, tenantID, domain.TopicReturnFlagged, resultPayload); err != nil {
			slog.Error("failed to publish flagged return",
				"return_id", req.ID,
				"error", err,
			)
		}
	}

	slog.Info("return processed",
		"return_id", req.ID,
		"tenant_id", tenantID,
		"eligible", result.IsEligible,
		"fraud_score", result.FraudScore,
		"flagged", result.IsFlagged,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// lookupPolicy resolves a seller's active policy, cache first.
func (w *Worker) lookupPolicy(ctx context.Context, tenantID, sellerID string) (*domain.Policy, error) {
	if sellerID == "" {
		return nil, fmt.Errorf("sellerID is required")
	}

	if w.cache != nil {
		if policy, err := w.cache.GetPolicy(ctx, tenantID, sellerID); err == nil && policy != nil {
			return policy, nil
		}
	}

	policy, err := w.repo.GetPolicyBySeller(ctx, tenantID, sellerID)
	if err != nil {
		return nil, err
	}

	if w.cache != nil {
		_ = w.cache.SetPolicy(ctx, tenantID, sellerID, policy, policyCacheTTL)
	}

	return policy, nil
}

// Stop gracefully stops all workers. New deliveries are cut off first,
// then in-flight evaluations are drained before the context is canceled.
func (w *Worker) Stop() error {
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()
	w.cancel()

	slog.Info("workers stopped")
	return nil
}
