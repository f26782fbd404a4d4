package eligibility

import (
	"fmt"

	"github.com/opensource-commerce/heron/internal/domain"
)

// flaggedRemorseDeductionPct is the extra deduction, in percentage
// points, applied when a flagged request has reason changed_mind.
const flaggedRemorseDeductionPct = 10.0

// CalculateRefund computes the refund amount under the policy rules and
// a human-readable statement of which rule produced it.
//
// Defective or shipping-damaged goods always refund the full price,
// taking precedence over every deduction. Otherwise the policy's refund
// type governs, and a flagged changed-mind request takes an additional
// deduction on top of the policy's.
func (e *Engine) CalculateRefund(req *domain.ReturnRequest) (float64, string) {
	price := req.Product.Price

	if req.Reason.WaivesWindow() {
		return price, "Full refund: defective or damaged item (deductions waived)"
	}

	deductionPct := 0.0
	reason := ""

	switch e.policy.RefundType {
	case domain.RefundPartial:
		deductionPct = e.policy.RefundDeductionPct
		reason = fmt.Sprintf("Restocking fee of %.0f%% applied", deductionPct)
	case domain.RefundStoreCredit:
		reason = "Store credit for the full purchase price"
	default:
		reason = "Full refund (no deductions)"
	}

	if req.IsFlagged && req.Reason == domain.ReasonChangedMind {
		deductionPct += flaggedRemorseDeductionPct
		reason = fmt.Sprintf(
			"Total deduction of %.0f%% applied (includes %.0f%% for flagged changed-mind return)",
			deductionPct, flaggedRemorseDeductionPct)
	}

	amount := price * (1 - deductionPct/100)
	return amount, reason
}
