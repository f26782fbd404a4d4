package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/opensource-commerce/heron/internal/analytics"
	"github.com/opensource-commerce/heron/internal/conversation"
	"github.com/opensource-commerce/heron/internal/domain"
	"github.com/opensource-commerce/heron/internal/eligibility"
	"github.com/opensource-commerce/heron/internal/fraud"
	"github.com/opensource-commerce/heron/internal/history"
	"github.com/opensource-commerce/heron/internal/policy"
	"github.com/opensource-commerce/heron/internal/repository"
)

// policyCacheTTL bounds how stale a cached policy may be for API reads.
const policyCacheTTL = 10 * time.Minute

// Handler holds dependencies for API handlers.
type Handler struct {
	repo       domain.Repository
	cache      domain.Cache
	bus        domain.EventBus
	compressor *policy.Compressor
	scorer     *fraud.Scorer
	chat       *conversation.Handler
	history    *history.Service
	reports    *analytics.Service
	version    string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, compressor *policy.Compressor, scorer *fraud.Scorer, chat *conversation.Handler, hist *history.Service, reports *analytics.Service, version string) *Handler {
	return &Handler{
		repo:       repo,
		cache:      cache,
		bus:        bus,
		compressor: compressor,
		scorer:     scorer,
		chat:       chat,
		history:    hist,
		reports:    reports,
		version:    version,
	}
}

// CompressPolicyRequest is the request body for POST /policies.
type CompressPolicyRequest struct {
	SellerID   string `json:"sellerId"`
	Name       string `json:"name,omitempty"`
	PolicyText string `json:"policyText"`
}

// CompressPolicy handles POST /policies: free-form policy text in,
// structured policy out. The new policy becomes the seller's active one.
func (h *Handler) CompressPolicy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req CompressPolicyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.SellerID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "sellerId is required",
		})
		return
	}
	if req.PolicyText == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "policyText is required",
		})
		return
	}

	compressed := h.compressor.ParsePolicy(req.PolicyText, req.SellerID, req.Name)

	if h.repo != nil {
		if err := h.repo.SavePolicy(ctx, tenantID, compressed); err != nil {
			slog.Error("failed to save policy", "seller_id", req.SellerID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save policy",
			})
			return
		}
	}

	if h.cache != nil {
		_ = h.cache.SetPolicy(ctx, tenantID, req.SellerID, compressed, policyCacheTTL)
	}

	writeJSON(w, http.StatusCreated, compressed)
}

// GetPolicy retrieves the seller's active policy.
func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	sellerID := chi.URLParam(r, "sellerID")

	if sellerID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "seller id is required",
		})
		return
	}

	p, err := h.lookupPolicy(ctx, tenantID, sellerID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "policy not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, p)
}

// ListPolicies returns all active policies for the tenant.
func (h *Handler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	policies, err := h.repo.ListPolicies(ctx, tenantID)
	if err != nil {
		slog.Error("failed to list policies", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list policies",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"policies": policies,
		"count":    len(policies),
	})
}

// EvaluateReturnRequest is the request body for POST /returns/evaluate.
type EvaluateReturnRequest struct {
	ReturnID    string         `json:"returnId,omitempty"`
	CustomerID  string         `json:"customerId"`
	SellerID    string         `json:"sellerId"`
	Product     domain.Product `json:"product"`
	Reason      string         `json:"reason"`
	Description string         `json:"description,omitempty"`
}

// EvaluateReturnResponse is the response for POST /returns/evaluate.
type EvaluateReturnResponse struct {
	EvaluationID string                    `json:"evaluationId"`
	ReturnID     string                    `json:"returnId"`
	Result       *domain.EligibilityResult `json:"result"`
	Metadata     struct {
		TraceID string `json:"traceId"`
		TotalMs int64  `json:"totalMs"`
		Version string `json:"version"`
	} `json:"metadata"`
}

// EvaluateReturn handles POST /returns/evaluate requests synchronously.
func (h *Handler) EvaluateReturn(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	traceID := GetTraceID(ctx)

	var req EvaluateReturnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.CustomerID == "" || req.SellerID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "customerId and sellerId are required",
		})
		return
	}
	if req.Product.SellerID == "" {
		req.Product.SellerID = req.SellerID
	}

	// 1. Resolve the seller's policy, cache first.
	sellerPolicy, err := h.lookupPolicy(ctx, tenantID, req.SellerID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "no policy found for seller " + req.SellerID,
		})
		return
	}

	// 2. Build the return request record.
	returnID := req.ReturnID
	if returnID == "" {
		returnID = uuid.New().String()
	}

	ret := &domain.ReturnRequest{
		ID:           returnID,
		TenantID:     tenantID,
		CustomerID:   req.CustomerID,
		Product:      req.Product,
		Reason:       domain.ReturnReason(req.Reason),
		Description:  req.Description,
		RefundStatus: domain.RefundPending,
		CreatedAt:    start.UTC(),
	}

	// 3. Evaluate eligibility and fraud signals.
	engine := eligibility.NewEngine(sellerPolicy, h.scorer)
	result, err := engine.CheckEligibility(ctx, ret)
	if err != nil {
		if errors.Is(err, eligibility.ErrInvalidRequest) {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": err.Error(),
			})
			return
		}
		slog.Error("eligibility evaluation failed", "return_id", returnID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "eligibility evaluation failed",
		})
		return
	}

	evaluation := &domain.Evaluation{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		ReturnID:  returnID,
		SellerID:  req.SellerID,
		Timestamp: time.Now().UTC(),
		Result:    *result,
	}

	// 4. Persist request and evaluation.
	if h.repo != nil {
		if err := h.repo.SaveReturnRequest(ctx, tenantID, ret); err != nil {
			slog.Error("failed to save return request", "return_id", returnID, "error", err)
		}
		if err := h.repo.SaveEvaluation(ctx, tenantID, evaluation); err != nil {
			slog.Error("failed to save evaluation", "return_id", returnID, "error", err)
		}
	}

	// 5. Bump the customer's return counter.
	if h.history != nil {
		if err := h.history.RecordReturn(ctx, tenantID, req.CustomerID); err != nil {
			slog.Warn("failed to record return", "customer_id", req.CustomerID, "error", err)
		}
	}

	// 6. Publish the decision; flagged returns also go to the review topic.
	if h.bus != nil {
		payload, _ := json.Marshal(evaluation)
		if err := h.bus.Publish(ctx, tenantID, domain.TopicReturnDecision, payload); err != nil {
			slog.Error("failed to publish decision", "return_id", returnID, "error", err)
		}
		if result.IsFlagged {
			if err := h.bus.Publish(ctx, tenantID, domain.TopicReturnFlagged, payload); err != nil {
				slog.Error("failed to publish flagged return", "return_id", returnID, "error", err)
			}
		}
	}

	// 7. Respond
	resp := EvaluateReturnResponse{
		EvaluationID: evaluation.ID,
		ReturnID:     returnID,
		Result:       result,
	}
	resp.Metadata.TraceID = traceID
	resp.Metadata.TotalMs = time.Since(start).Milliseconds()
	resp.Metadata.Version = h.version

	writeJSON(w, http.StatusOK, resp)
}

// GetReturn retrieves a return request by ID.
func (h *Handler) GetReturn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	returnID := chi.URLParam(r, "id")

	if returnID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "return id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	ret, err := h.repo.GetReturnRequest(ctx, tenantID, returnID)
	if err != nil {
		slog.Error("failed to get return request", "id", returnID, "error", err)
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "return request not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, ret)
}

// GetEvaluation retrieves an evaluation by ID.
func (h *Handler) GetEvaluation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	evalID := chi.URLParam(r, "id")

	if evalID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "evaluation id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	eval, err := h.repo.GetEvaluation(ctx, tenantID, evalID)
	if err != nil {
		slog.Error("failed to get evaluation", "id", evalID, "error", err)
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "evaluation not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, eval)
}

// ListSignals returns the fraud signals loaded in the scorer.
func (h *Handler) ListSignals(w http.ResponseWriter, r *http.Request) {
	signals := h.scorer.Signals()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"signals":       signals,
		"count":         len(signals),
		"flagThreshold": h.scorer.FlagThreshold(),
	})
}

// ReloadSignalsRequest is the request body for POST /signals/reload.
// An empty body restores the builtin signal set.
type ReloadSignalsRequest struct {
	Signals []*fraud.SignalConfig `json:"signals,omitempty"`
}

// ReloadSignals replaces the loaded signal set after validating every
// expression.
func (h *Handler) ReloadSignals(w http.ResponseWriter, r *http.Request) {
	var req ReloadSignalsRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "invalid JSON request body",
			})
			return
		}
	}

	configs := req.Signals
	if len(configs) == 0 {
		configs = fraud.BuiltinSignals()
	}

	if err := h.scorer.LoadSignals(configs); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid signal expression: " + err.Error(),
		})
		return
	}

	slog.Info("fraud signals reloaded", "count", h.scorer.SignalCount())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "signals reloaded successfully",
		"count":   h.scorer.SignalCount(),
	})
}

// ChatRequest is the request body for POST /chat.
type ChatRequest struct {
	ConversationID string                `json:"conversationId,omitempty"`
	CustomerID     string                `json:"customerId"`
	CustomerName   string                `json:"customerName,omitempty"`
	SellerID       string                `json:"sellerId"`
	Message        string                `json:"message"`
	ReturnRequest  *domain.ReturnRequest `json:"returnRequest,omitempty"`
}

// ChatResponse is the response for POST /chat.
type ChatResponse struct {
	ConversationID     string           `json:"conversationId"`
	Reply              string           `json:"reply"`
	Sentiment          domain.Sentiment `json:"sentiment"`
	FrustrationLevel   float64          `json:"frustrationLevel"`
	EscalationRequired bool             `json:"escalationRequired"`
	EscalationReason   string           `json:"escalationReason,omitempty"`
	MessageCount       int              `json:"messageCount"`
}

// Chat handles one turn of the returns assistant conversation.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.Message == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "message is required",
		})
		return
	}
	if req.CustomerID == "" || req.SellerID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "customerId and sellerId are required",
		})
		return
	}

	// Resume the conversation if one exists, otherwise start fresh.
	var conv domain.ConversationContext
	if req.ConversationID != "" && h.repo != nil {
		if stored, err := h.repo.GetConversation(ctx, tenantID, req.ConversationID); err == nil {
			conv = *stored
		} else if !errors.Is(err, repository.ErrNotFound) {
			slog.Error("failed to load conversation", "id", req.ConversationID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to load conversation",
			})
			return
		}
	}
	if conv.ID == "" {
		id := req.ConversationID
		if id == "" {
			id = uuid.New().String()
		}
		conv = domain.NewConversation(id, tenantID, req.CustomerID, req.SellerID)
		conv.CustomerName = req.CustomerName
	}

	if req.ReturnRequest != nil {
		req.ReturnRequest.TenantID = tenantID
		req.ReturnRequest.CustomerID = req.CustomerID
		conv.CurrentReturnRequest = req.ReturnRequest
	}

	wasEscalated := conv.EscalationRequired

	reply, updated, err := h.chat.HandleMessage(ctx, conv, req.Message)
	if err != nil {
		if errors.Is(err, conversation.ErrUnknownPolicy) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "no policy found for seller " + req.SellerID,
			})
			return
		}
		slog.Error("chat turn failed", "conversation_id", conv.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to process message",
		})
		return
	}

	if h.repo != nil {
		if err := h.repo.SaveConversation(ctx, tenantID, &updated); err != nil {
			slog.Error("failed to save conversation", "id", updated.ID, "error", err)
		}
	}

	// Escalations are published once, on the turn they trip.
	if h.bus != nil && updated.EscalationRequired && !wasEscalated {
		payload, _ := json.Marshal(updated)
		if err := h.bus.Publish(ctx, tenantID, domain.TopicConversationEscalated, payload); err != nil {
			slog.Error("failed to publish escalation", "conversation_id", updated.ID, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, ChatResponse{
		ConversationID:     updated.ID,
		Reply:              reply,
		Sentiment:          updated.Sentiment,
		FrustrationLevel:   updated.FrustrationLevel,
		EscalationRequired: updated.EscalationRequired,
		EscalationReason:   updated.EscalationReason,
		MessageCount:       updated.MessageCount,
	})
}

// GetConversation retrieves a conversation by ID.
func (h *Handler) GetConversation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	convID := chi.URLParam(r, "id")

	if convID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "conversation id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	conv, err := h.repo.GetConversation(ctx, tenantID, convID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "conversation not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

// GetAnalytics returns windowed return statistics for the tenant.
// Window defaults to 30 days; override with ?days=N.
func (h *Handler) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.reports == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "analytics not available",
		})
		return
	}

	days := 0
	if v := r.URL.Query().Get("days"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "days must be a positive integer",
			})
			return
		}
		days = parsed
	}

	report, err := h.reports.GetReport(ctx, tenantID, days)
	if err != nil {
		slog.Error("failed to build analytics report", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to build analytics report",
		})
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// lookupPolicy resolves a seller's active policy, cache first.
func (h *Handler) lookupPolicy(ctx context.Context, tenantID, sellerID string) (*domain.Policy, error) {
	if h.cache != nil {
		if p, err := h.cache.GetPolicy(ctx, tenantID, sellerID); err == nil && p != nil {
			return p, nil
		}
	}

	p, err := h.repo.GetPolicyBySeller(ctx, tenantID, sellerID)
	if err != nil {
		return nil, err
	}

	if h.cache != nil {
		_ = h.cache.SetPolicy(ctx, tenantID, sellerID, p, policyCacheTTL)
	}

	return p, nil
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
