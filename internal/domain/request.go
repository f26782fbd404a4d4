package domain

import (
	"time"
)

// ReturnReason is the customer's stated reason for a return.
type ReturnReason string

const (
	ReasonDefective      ReturnReason = "defective"
	ReasonDamaged        ReturnReason = "damaged_in_shipping"
	ReasonNotAsDescribed ReturnReason = "not_as_described"
	ReasonChangedMind    ReturnReason = "changed_mind"
	ReasonWrongItem      ReturnReason = "wrong_item"
	ReasonSizeIssue      ReturnReason = "size_issue"
	ReasonOther          ReturnReason = "other"
)

// Valid reports whether the reason is one of the closed set.
func (r ReturnReason) Valid() bool {
	switch r {
	case ReasonDefective, ReasonDamaged, ReasonNotAsDescribed,
		ReasonChangedMind, ReasonWrongItem, ReasonSizeIssue, ReasonOther:
		return true
	}
	return false
}

// WaivesWindow reports whether the reason waives the return-window check.
// Damaged or defective goods are accepted regardless of window.
func (r ReturnReason) WaivesWindow() bool {
	return r == ReasonDefective || r == ReasonDamaged
}

// RefundStatus tracks the lifecycle of a refund.
// pending -> approved/rejected -> processing -> completed
type RefundStatus string

const (
	RefundPending    RefundStatus = "pending"
	RefundApproved   RefundStatus = "approved"
	RefundRejected   RefundStatus = "rejected"
	RefundProcessing RefundStatus = "processing"
	RefundCompleted  RefundStatus = "completed"
)

// Product is a snapshot of the purchased item at return time.
// Supplied by the caller for each request; never fetched.
type Product struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Category     string    `json:"category"`
	Price        float64   `json:"price"`
	PurchaseDate time.Time `json:"purchaseDate"`
	Condition    string    `json:"condition"`
	SellerID     string    `json:"sellerId"`
	SKU          string    `json:"sku"`
}

// ReturnRequest is one return attempt. The decision fields are written
// by the eligibility engine; re-evaluation overwrites them wholesale.
type ReturnRequest struct {
	ID         string       `json:"id"`
	TenantID   string       `json:"tenantId"`
	CustomerID string       `json:"customerId"`
	Product    Product      `json:"product"`
	Reason     ReturnReason `json:"reason"`

	Description    string `json:"description"`
	ReasonCategory string `json:"reasonCategory"`

	// Decision fields
	IsEligible        bool         `json:"isEligible"`
	EligibilityReason string       `json:"eligibilityReason"`
	RefundAmount      float64      `json:"refundAmount"`
	RefundStatus      RefundStatus `json:"refundStatus"`
	FraudScore        float64      `json:"fraudScore"`
	IsFlagged         bool         `json:"isFlagged"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
