package domain

import (
	"strings"
	"time"
)

// RefundType determines how an approved return is paid out.
type RefundType string

const (
	RefundFull        RefundType = "full"
	RefundPartial     RefundType = "partial"
	RefundStoreCredit RefundType = "store_credit"
)

// Policy is a seller's return policy compressed into structured rules.
// A Policy is immutable once created; updating a seller's policy means
// compressing a new instance and replacing the old one.
type Policy struct {
	ID       string `json:"id"`
	SellerID string `json:"sellerId"`
	Name     string `json:"name"`

	// Core rules
	ReturnWindowDays   int        `json:"returnWindowDays"`
	RefundType         RefundType `json:"refundType"`
	RefundDeductionPct float64    `json:"refundDeductionPct"` // meaningful only when RefundType is partial

	// Eligibility rules. Empty slices mean "no restriction".
	EligibleCategories []string `json:"eligibleCategories"`
	EligibleConditions []string `json:"eligibleConditions"`

	// Exclusions are lower-cased substrings matched against product
	// name and category.
	Exclusions []string `json:"exclusions"`

	// Timelines
	ApprovalTimeHours int `json:"approvalTimeHours"`
	RefundTimeDays    int `json:"refundTimeDays"`

	// Features
	SupportsReplacement bool `json:"supportsReplacement"`
	SupportsPickup      bool `json:"supportsPickup"`

	CreatedAt time.Time `json:"createdAt"`

	// SourceText keeps the raw policy text for audit.
	SourceText string `json:"sourceText,omitempty"`
}

// AllowsCategory reports whether the product category is eligible.
// An empty category list means all categories are allowed.
func (p *Policy) AllowsCategory(category string) bool {
	if len(p.EligibleCategories) == 0 {
		return true
	}
	for _, c := range p.EligibleCategories {
		if strings.EqualFold(c, category) {
			return true
		}
	}
	return false
}

// AllowsCondition reports whether the product condition is eligible.
// An empty condition list means all conditions are allowed.
func (p *Policy) AllowsCondition(condition string) bool {
	if len(p.EligibleConditions) == 0 {
		return true
	}
	for _, c := range p.EligibleConditions {
		if strings.EqualFold(c, condition) {
			return true
		}
	}
	return false
}

// MatchExclusion returns the first exclusion substring found in the
// product name or category, and whether one matched.
func (p *Policy) MatchExclusion(productName, category string) (string, bool) {
	name := strings.ToLower(productName)
	cat := strings.ToLower(category)
	for _, excl := range p.Exclusions {
		e := strings.ToLower(excl)
		if e == "" {
			continue
		}
		if strings.Contains(name, e) || strings.Contains(cat, e) {
			return excl, true
		}
	}
	return "", false
}
