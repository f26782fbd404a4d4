// Package conversation drives the multi-turn returns assistant.
//
// The handler is a per-conversation state machine whose states live in
// the ConversationContext fields rather than an explicit table. Intent
// and sentiment are re-derived from every message; the context
// accumulates the results.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-commerce/heron/internal/domain"
	"github.com/opensource-commerce/heron/internal/eligibility"
	"github.com/opensource-commerce/heron/internal/fraud"
)

// ErrUnknownPolicy is returned when a conversation references a seller
// with no loaded policy. This is an operational configuration error,
// not a customer-facing one.
var ErrUnknownPolicy = errors.New("no policy loaded for seller")

// PolicyLookup resolves the active policy for a seller. Supplied by the
// caller; the handler never fetches from storage itself.
type PolicyLookup func(ctx context.Context, tenantID, sellerID string) (*domain.Policy, error)

// Config holds the handler's explicit tunables.
type Config struct {
	// EscalationThreshold is the frustration level at which a
	// conversation is routed to human support.
	EscalationThreshold float64
}

// DefaultEscalationThreshold routes a conversation to a human once
// frustration reaches this level.
const DefaultEscalationThreshold = 0.7

// Handler produces replies for customer messages and threads the
// conversation context through each turn. One conversation must be
// processed by one caller at a time; different conversations are
// independent.
type Handler struct {
	lookup    PolicyLookup
	scorer    *fraud.Scorer
	threshold float64
	now       func() time.Time
}

// NewHandler creates a conversation handler.
// The scorer may be nil; eligibility replies then omit fraud scoring.
func NewHandler(lookup PolicyLookup, scorer *fraud.Scorer, cfg Config) *Handler {
	threshold := cfg.EscalationThreshold
	if threshold <= 0 {
		threshold = DefaultEscalationThreshold
	}
	return &Handler{
		lookup:    lookup,
		scorer:    scorer,
		threshold: threshold,
		now:       time.Now,
	}
}

// HandleMessage processes one customer message and returns the reply
// plus the updated context. The passed context is not mutated; callers
// should replace their copy with the returned one.
//
// The only failure is ErrUnknownPolicy; every other input resolves to
// some reply, including unrecognized intents.
func (h *Handler) HandleMessage(ctx context.Context, conv domain.ConversationContext, text string) (string, domain.ConversationContext, error) {
	policy, err := h.lookup(ctx, conv.TenantID, conv.SellerID)
	if err != nil || policy == nil {
		return "", conv, fmt.Errorf("%w: seller %q", ErrUnknownPolicy, conv.SellerID)
	}

	now := h.now().UTC()
	conv.Messages = append(conv.Messages, domain.ChatMessage{
		Role: domain.RoleUser, Text: text, Timestamp: now,
	})
	conv.MessageCount++
	conv.UpdatedAt = now

	// 1. Sentiment accumulates into the context; the level never
	// decreases on an angry or frustrated turn.
	sentiment, delta := classifySentiment(text)
	conv.Sentiment = sentiment
	conv.FrustrationLevel = clamp01(conv.FrustrationLevel + delta)
	if sentiment == domain.SentimentAngry {
		conv.AngryTurns++
	}

	// 2. Escalation is sticky for the rest of the conversation.
	if !conv.EscalationRequired {
		switch {
		case conv.FrustrationLevel >= h.threshold:
			conv.EscalationRequired = true
			conv.EscalationReason = fmt.Sprintf(
				"frustration level %.2f reached threshold %.2f", conv.FrustrationLevel, h.threshold)
		case conv.AngryTurns >= 2:
			conv.EscalationRequired = true
			conv.EscalationReason = "repeated angry messages"
		}
	}

	// 3-4. Intent extraction and dispatch.
	intent := classifyIntent(text)
	reply := h.respond(ctx, &conv, policy, intent, text)

	if conv.EscalationRequired {
		reply += "\n\n" + renderEscalationNotice()
	}

	conv.Messages = append(conv.Messages, domain.ChatMessage{
		Role: domain.RoleAssistant, Text: reply, Timestamp: now,
	})

	return reply, conv, nil
}

// respond dispatches to the per-intent responder. The switch is
// exhaustive over the closed intent set.
func (h *Handler) respond(ctx context.Context, conv *domain.ConversationContext, policy *domain.Policy, intent domain.Intent, text string) string {
	switch intent {
	case domain.IntentCheckEligibility:
		return h.respondEligibility(ctx, conv, policy)

	case domain.IntentPolicyQuestion:
		return renderPolicySummary(policy)

	case domain.IntentInitiateReturn:
		return h.respondInitiate(ctx, conv, policy, text)

	case domain.IntentRefundStatus:
		if conv.CurrentReturnRequest == nil {
			return renderMissingReturnPrompt()
		}
		return renderRefundStatus(conv.CurrentReturnRequest)

	case domain.IntentReplacementRequest:
		return renderReplacementOptions(policy)

	case domain.IntentPickupScheduling:
		return renderPickupOptions(policy)

	case domain.IntentTrackReturn:
		if conv.CurrentReturnRequest == nil {
			return renderMissingReturnPrompt()
		}
		return renderTrackReturn(conv.CurrentReturnRequest)

	default:
		return renderFallback()
	}
}

// respondEligibility runs the engine when the conversation has gathered
// enough product facts, and asks a clarifying follow-up otherwise.
func (h *Handler) respondEligibility(ctx context.Context, conv *domain.ConversationContext, policy *domain.Policy) string {
	if conv.CurrentReturnRequest == nil {
		return renderProductDetailsPrompt()
	}

	engine := eligibility.NewEngine(policy, h.scorer)
	result, err := engine.CheckEligibility(ctx, conv.CurrentReturnRequest)
	if err != nil {
		// Incomplete or invalid facts are a prompt, not a failure.
		return renderProductDetailsPrompt()
	}
	return renderEligibility(result)
}

// respondInitiate starts gathering return facts from the message, or
// runs the check directly when a complete request is already attached.
func (h *Handler) respondInitiate(ctx context.Context, conv *domain.ConversationContext, policy *domain.Policy, text string) string {
	if conv.CurrentReturnRequest != nil {
		return h.respondEligibility(ctx, conv, policy)
	}

	name := extractProductName(text)
	reason := extractReason(text)
	if conv.ProductContext == nil {
		conv.ProductContext = &domain.Product{SellerID: conv.SellerID}
	}
	if name != "" {
		conv.ProductContext.Name = name
	}
	return renderInitiatePrompt(name, reason)
}
