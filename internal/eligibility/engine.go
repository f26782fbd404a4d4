// Package eligibility evaluates return requests against a compressed
// policy with step-by-step explainability.
package eligibility

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-commerce/heron/internal/domain"
	"github.com/opensource-commerce/heron/internal/fraud"
)

// ErrInvalidRequest is returned when a request fails validation before
// any check runs. Callers should surface it as a user-correctable error.
var ErrInvalidRequest = errors.New("invalid return request")

// Check labels, in evaluation order. The same label appears in
// ChecksPassed or ChecksFailed depending on the outcome.
const (
	CheckWindow    = "Return within window"
	CheckCategory  = "Product category eligible"
	CheckCondition = "Product condition eligible"
	CheckExclusion = "No exclusion match"
)

// Engine evaluates return requests against one policy. It never mutates
// the policy; it writes the verdict back into the passed request's
// decision fields as a convenience for the caller.
type Engine struct {
	policy *domain.Policy
	scorer *fraud.Scorer
	now    func() time.Time
}

// NewEngine creates an eligibility engine for the given policy.
// The scorer may be nil, in which case fraud scoring degrades to zero.
func NewEngine(policy *domain.Policy, scorer *fraud.Scorer) *Engine {
	return &Engine{
		policy: policy,
		scorer: scorer,
		now:    time.Now,
	}
}

// Policy returns the policy the engine evaluates against.
func (e *Engine) Policy() *domain.Policy {
	return e.policy
}

// CheckEligibility runs every check in fixed order and returns the full
// explanation trail. No short-circuit: the explanation is complete even
// on rejection. Fraud scoring never flips eligibility; it only sets the
// score and flag and adds a caution note.
func (e *Engine) CheckEligibility(ctx context.Context, req *domain.ReturnRequest) (*domain.EligibilityResult, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	result := &domain.EligibilityResult{}
	now := e.now().UTC()
	daysSincePurchase := int(now.Sub(req.Product.PurchaseDate).Hours() / 24)

	// 1. Return window. Damaged or defective goods are accepted
	// regardless of window.
	switch {
	case req.Reason.WaivesWindow():
		result.ChecksPassed = append(result.ChecksPassed, CheckWindow)
		result.Reasons = append(result.Reasons,
			"Return window waived for defective or damaged items")
	case daysSincePurchase <= e.policy.ReturnWindowDays:
		result.ChecksPassed = append(result.ChecksPassed, CheckWindow)
	default:
		result.ChecksFailed = append(result.ChecksFailed, CheckWindow)
		result.Reasons = append(result.Reasons, fmt.Sprintf(
			"Return submitted %d days after purchase (exceeds %d-day window)",
			daysSincePurchase, e.policy.ReturnWindowDays))
	}

	// 2. Category
	if e.policy.AllowsCategory(req.Product.Category) {
		result.ChecksPassed = append(result.ChecksPassed, CheckCategory)
	} else {
		result.ChecksFailed = append(result.ChecksFailed, CheckCategory)
		result.Reasons = append(result.Reasons, fmt.Sprintf(
			"Category %q is not eligible under this policy", req.Product.Category))
	}

	// 3. Condition
	if e.policy.AllowsCondition(req.Product.Condition) {
		result.ChecksPassed = append(result.ChecksPassed, CheckCondition)
	} else {
		result.ChecksFailed = append(result.ChecksFailed, CheckCondition)
		result.Reasons = append(result.Reasons, fmt.Sprintf(
			"Condition %q does not meet policy requirements", req.Product.Condition))
	}

	// 4. Exclusions
	if excl, matched := e.policy.MatchExclusion(req.Product.Name, req.Product.Category); matched {
		result.ChecksFailed = append(result.ChecksFailed, CheckExclusion)
		result.Reasons = append(result.Reasons, fmt.Sprintf(
			"Product matches exclusion: %s", excl))
	} else {
		result.ChecksPassed = append(result.ChecksPassed, CheckExclusion)
	}

	// 5. Fraud signals. Never flips eligibility.
	if e.scorer != nil {
		score, flagged, signals := e.scorer.Score(ctx, &fraud.Input{
			TenantID:           req.TenantID,
			CustomerID:         req.CustomerID,
			Price:              req.Product.Price,
			HoursSincePurchase: now.Sub(req.Product.PurchaseDate).Hours(),
			Reason:             req.Reason,
			Category:           req.Product.Category,
			Condition:          req.Product.Condition,
		})
		result.FraudScore = score
		result.IsFlagged = flagged
		result.Signals = signals
		if flagged {
			result.Reasons = append(result.Reasons,
				"This return has been flagged for manual review")
		}
	}

	result.IsEligible = len(result.ChecksFailed) == 0
	e.addSuggestions(result)

	// Write the verdict back for the caller's convenience.
	// Re-evaluation overwrites, never merges.
	req.IsEligible = result.IsEligible
	req.FraudScore = result.FraudScore
	req.IsFlagged = result.IsFlagged
	if result.IsEligible {
		req.RefundStatus = domain.RefundApproved
		req.EligibilityReason = "All policy checks passed"
	} else {
		req.RefundStatus = domain.RefundRejected
		req.EligibilityReason = joinReasons(result.Reasons)
	}

	result.RefundAmount, result.DeductionReason = e.CalculateRefund(req)
	req.RefundAmount = result.RefundAmount
	req.UpdatedAt = now

	return result, nil
}

// addSuggestions offers alternative actions based on the verdict.
func (e *Engine) addSuggestions(result *domain.EligibilityResult) {
	if result.IsEligible {
		if e.policy.SupportsReplacement {
			result.Suggestions = append(result.Suggestions,
				"You can choose a replacement instead of a refund")
		}
		if e.policy.SupportsPickup {
			result.Suggestions = append(result.Suggestions,
				"Free pickup is available if you prefer not to ship")
		}
	} else {
		if e.policy.SupportsReplacement && onlyProductChecksFailed(result.ChecksFailed) {
			result.Suggestions = append(result.Suggestions,
				"Request a replacement instead of a refund")
		}
		if containsLabel(result.ChecksFailed, CheckExclusion) {
			result.Suggestions = append(result.Suggestions,
				"This item is final sale and cannot be returned")
		}
	}
	if result.IsFlagged {
		result.Suggestions = append(result.Suggestions,
			"Contact support for manual review")
	}
}

// onlyProductChecksFailed reports whether every failed check concerns
// the product itself (category/condition), the cases where swapping the
// product can still help.
func onlyProductChecksFailed(failed []string) bool {
	if len(failed) == 0 {
		return false
	}
	for _, label := range failed {
		if label != CheckCategory && label != CheckCondition {
			return false
		}
	}
	return true
}

func containsLabel(labels []string, want string) bool {
	for _, l := range labels {
		if l == want {
			return true
		}
	}
	return false
}

func joinReasons(reasons []string) string {
	out := ""
	for i, r := range reasons {
		if i > 0 {
			out += "; "
		}
		out += r
	}
	return out
}

func validate(req *domain.ReturnRequest) error {
	if req == nil {
		return fmt.Errorf("%w: request is nil", ErrInvalidRequest)
	}
	if req.Product.Price <= 0 {
		return fmt.Errorf("%w: product price must be positive", ErrInvalidRequest)
	}
	if req.Product.ID == "" || req.Product.Name == "" || req.Product.Category == "" {
		return fmt.Errorf("%w: product id, name and category are required", ErrInvalidRequest)
	}
	if req.Product.PurchaseDate.IsZero() {
		return fmt.Errorf("%w: product purchase date is required", ErrInvalidRequest)
	}
	if !req.Reason.Valid() {
		return fmt.Errorf("%w: unknown return reason %q", ErrInvalidRequest, req.Reason)
	}
	return nil
}
