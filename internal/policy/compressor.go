// Package policy compresses free-form seller return policies into
// structured rule sets.
//
// Extraction is regex/keyword based over a closed vocabulary of policy
// phrasing. That is a deliberate precision/robustness trade-off: return
// policies are short-form legal text, and a missing field must degrade
// to a safe default rather than block a return from being evaluated.
package policy

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-commerce/heron/internal/domain"
)

// Compressor turns raw policy text into domain.Policy values.
// The zero value is not usable; create one with NewCompressor.
type Compressor struct{}

// NewCompressor creates a policy compressor.
func NewCompressor() *Compressor {
	return &Compressor{}
}

// ParsePolicy extracts structured rules from raw policy text. It is
// total over arbitrary input: every field falls back to a documented
// default when no pattern matches.
func (c *Compressor) ParsePolicy(text, sellerID, policyName string) *domain.Policy {
	refundType := c.extractRefundType(text)

	p := &domain.Policy{
		ID:                  uuid.New().String(),
		SellerID:            sellerID,
		Name:                policyName,
		ReturnWindowDays:    c.extractReturnWindow(text),
		RefundType:          refundType,
		RefundDeductionPct:  c.extractDeductionPct(text, refundType),
		EligibleCategories:  c.extractCategories(text),
		EligibleConditions:  c.extractConditions(text),
		Exclusions:          c.extractExclusions(text),
		ApprovalTimeHours:   c.extractApprovalTime(text),
		RefundTimeDays:      c.extractRefundTime(text),
		SupportsReplacement: c.extractSupportsReplacement(text),
		SupportsPickup:      c.extractSupportsPickup(text),
		CreatedAt:           time.Now().UTC(),
		SourceText:          text,
	}
	return p
}

// extractReturnWindow finds the first "<N> day(s)" mention tied to
// returning. Default 30.
func (c *Compressor) extractReturnWindow(text string) int {
	for _, re := range windowPatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n >= 0 {
				return n
			}
		}
	}
	return 30
}

// extractRefundType classifies the payout. Store credit wins over a
// restocking-fee mention, which wins over a "full refund" mention
// elsewhere in the text.
func (c *Compressor) extractRefundType(text string) domain.RefundType {
	lower := strings.ToLower(text)
	if strings.Contains(lower, "store credit") {
		return domain.RefundStoreCredit
	}
	if strings.Contains(lower, "restocking fee") || c.deductionMentioned(text) {
		return domain.RefundPartial
	}
	return domain.RefundFull
}

func (c *Compressor) deductionMentioned(text string) bool {
	for _, re := range deductionPatterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// extractDeductionPct finds the first percentage adjacent to a
// fee/deduction/restocking mention. The percentage only applies to
// partial refunds: 0 otherwise, 10 when partial and unstated.
func (c *Compressor) extractDeductionPct(text string, refundType domain.RefundType) float64 {
	if refundType != domain.RefundPartial {
		return 0
	}
	for _, re := range deductionPatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			if pct, err := strconv.ParseFloat(m[1], 64); err == nil && pct >= 0 && pct <= 100 {
				return pct
			}
		}
	}
	return 10
}

func (c *Compressor) extractCategories(text string) []string {
	lower := strings.ToLower(text)
	var categories []string
	for _, cat := range categoryVocabulary {
		if strings.Contains(lower, cat) {
			categories = append(categories, cat)
		}
	}
	return categories
}

func (c *Compressor) extractConditions(text string) []string {
	var conditions []string
	for _, cond := range conditionVocabulary {
		if conditionWordPatterns[cond].MatchString(text) {
			conditions = append(conditions, cond)
		}
	}
	return conditions
}

// extractExclusions captures the phrases following exclusion markers
// ("excludes", "final sale", "not eligible", ...) verbatim: trimmed,
// lower-cased, comma-split, de-duplicated in first-seen order.
func (c *Compressor) extractExclusions(text string) []string {
	var exclusions []string
	seen := make(map[string]bool)

	for _, m := range exclusionPattern.FindAllStringSubmatch(text, -1) {
		for _, item := range strings.Split(m[1], ",") {
			item = strings.ToLower(strings.TrimSpace(item))
			item = strings.TrimSuffix(item, ".")
			// "final sale items, clearance items, and custom orders"
			item = strings.TrimPrefix(item, "and ")
			item = strings.TrimSpace(item)
			if item == "" || seen[item] {
				continue
			}
			seen[item] = true
			exclusions = append(exclusions, item)
		}
	}
	return exclusions
}

// extractApprovalTime finds a numeric value near hour/business-day
// wording in an approval clause. Days convert to hours. Default 24.
func (c *Compressor) extractApprovalTime(text string) int {
	m := approvalPattern.FindStringSubmatch(text)
	if m == nil {
		return 24
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n < 0 {
		return 24
	}
	if strings.Contains(strings.ToLower(m[2]), "day") {
		n *= 24
	}
	return n
}

// extractRefundTime finds the refund processing time in days. A range
// like "5-7 business days" yields its lower bound. Default 7.
func (c *Compressor) extractRefundTime(text string) int {
	m := refundTimePattern.FindStringSubmatch(text)
	if m == nil {
		return 7
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n < 0 {
		return 7
	}
	return n
}

func (c *Compressor) extractSupportsReplacement(text string) bool {
	lower := strings.ToLower(text)
	if strings.Contains(lower, "no replacement") || strings.Contains(lower, "no exchange") {
		return false
	}
	return strings.Contains(lower, "replacement") || strings.Contains(lower, "exchange")
}

func (c *Compressor) extractSupportsPickup(text string) bool {
	lower := strings.ToLower(text)
	if strings.Contains(lower, "no pickup") || strings.Contains(lower, "no pick up") {
		return false
	}
	return strings.Contains(lower, "pickup") || strings.Contains(lower, "pick up")
}
