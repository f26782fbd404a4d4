package domain

import (
	"time"
)

// SignalResult is the outcome of a single fraud signal evaluation.
type SignalResult struct {
	SignalID  string  `json:"signalId"`
	Triggered bool    `json:"triggered"`
	Weight    float64 `json:"weight"`
	Reason    string  `json:"reason,omitempty"`
}

// EligibilityResult is the engine's explainable verdict for one return
// request. It is a pure function result, not stored state; the Evaluation
// record wraps it for persistence.
type EligibilityResult struct {
	IsEligible bool `json:"isEligible"`

	// Per-check labels in evaluation order.
	ChecksPassed []string `json:"checksPassed"`
	ChecksFailed []string `json:"checksFailed"`

	// Reasons restate failures in sentence form; Suggestions offer
	// alternative actions.
	Reasons     []string `json:"reasons"`
	Suggestions []string `json:"suggestions"`

	RefundAmount    float64 `json:"refundAmount"`
	DeductionReason string  `json:"deductionReason"`

	FraudScore float64        `json:"fraudScore"`
	IsFlagged  bool           `json:"isFlagged"`
	Signals    []SignalResult `json:"signals,omitempty"`
}

// Evaluation is a persisted eligibility verdict.
type Evaluation struct {
	ID        string            `json:"id"`
	TenantID  string            `json:"tenantId"`
	ReturnID  string            `json:"returnId"`
	SellerID  string            `json:"sellerId"`
	Timestamp time.Time         `json:"timestamp"`
	Result    EligibilityResult `json:"result"`
}

// ReturnAnalytics is an aggregate view over stored evaluations.
type ReturnAnalytics struct {
	TotalReturns    int64            `json:"totalReturns"`
	TotalEligible   int64            `json:"totalEligible"`
	TotalRejected   int64            `json:"totalRejected"`
	TotalFlagged    int64            `json:"totalFlagged"`
	AvgRefundAmount float64          `json:"avgRefundAmount"`
	AvgFraudScore   float64          `json:"avgFraudScore"`
	ReasonCounts    map[string]int64 `json:"reasonCounts"`
}
