package conversation

import (
	"fmt"
	"strings"

	"github.com/opensource-commerce/heron/internal/domain"
)

// Customer-facing response templates. Every reply is self-contained and
// grounded in the current context so that a mid-conversation topic
// change never leaves the customer with a dangling reference.

func renderEligibility(result *domain.EligibilityResult) string {
	var b strings.Builder

	if result.IsEligible {
		b.WriteString("Good news! Your return is eligible.\n\n")
		b.WriteString("Why this return is accepted:\n")
		for _, check := range result.ChecksPassed {
			fmt.Fprintf(&b, "- %s\n", check)
		}
		fmt.Fprintf(&b, "\nRefund amount: $%.2f (%s)\n", result.RefundAmount, result.DeductionReason)
		b.WriteString("\nWhat happens next:\n")
		b.WriteString("1. We'll email you a return shipping label\n")
		b.WriteString("2. Pack the item securely\n")
		b.WriteString("3. Drop it off at a carrier location\n")
		b.WriteString("4. Your refund is processed after inspection\n")
	} else {
		b.WriteString("Unfortunately, this return doesn't meet the policy requirements.\n\n")
		b.WriteString("Reasons:\n")
		for _, reason := range result.Reasons {
			fmt.Fprintf(&b, "- %s\n", reason)
		}
	}

	if len(result.Suggestions) > 0 {
		b.WriteString("\nYour options:\n")
		for _, s := range result.Suggestions {
			fmt.Fprintf(&b, "- %s\n", s)
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

func renderPolicySummary(p *domain.Policy) string {
	var b strings.Builder

	b.WriteString("Here's a summary of the return policy:\n\n")
	fmt.Fprintf(&b, "Return window: %d days from purchase\n", p.ReturnWindowDays)
	fmt.Fprintf(&b, "Refund type: %s\n", p.RefundType)
	if p.RefundType == domain.RefundPartial && p.RefundDeductionPct > 0 {
		fmt.Fprintf(&b, "Restocking fee: %.0f%%\n", p.RefundDeductionPct)
	}
	if len(p.EligibleCategories) > 0 {
		fmt.Fprintf(&b, "Eligible categories: %s\n", strings.Join(p.EligibleCategories, ", "))
	}
	if len(p.EligibleConditions) > 0 {
		fmt.Fprintf(&b, "Eligible conditions: %s\n", strings.Join(p.EligibleConditions, ", "))
	}
	if len(p.Exclusions) > 0 {
		fmt.Fprintf(&b, "Cannot be returned: %s\n", strings.Join(p.Exclusions, ", "))
	}
	fmt.Fprintf(&b, "Refund processing: %d business days\n", p.RefundTimeDays)
	if p.SupportsReplacement {
		b.WriteString("Replacements: available\n")
	}
	if p.SupportsPickup {
		b.WriteString("Free pickup: available\n")
	}

	return strings.TrimRight(b.String(), "\n")
}

func renderRefundStatus(req *domain.ReturnRequest) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Refund status for %s:\n\n", req.Product.Name)
	fmt.Fprintf(&b, "Status: %s\n", strings.ToUpper(string(req.RefundStatus)))
	if req.RefundAmount > 0 {
		fmt.Fprintf(&b, "Refund amount: $%.2f\n", req.RefundAmount)
	}
	b.WriteString("\nRefunds typically complete within 5-7 business days of approval.")

	return b.String()
}

func renderTrackReturn(req *domain.ReturnRequest) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Tracking return %s:\n\n", req.ID)
	fmt.Fprintf(&b, "Return created: %s\n", req.CreatedAt.Format("2006-01-02"))
	fmt.Fprintf(&b, "Current status: %s\n", strings.ToUpper(string(req.RefundStatus)))
	if req.IsEligible {
		b.WriteString("\nYour return was approved and is moving through processing.")
	} else {
		b.WriteString("\nThis return was not approved; no shipment is expected.")
	}

	return b.String()
}

func renderReplacementOptions(p *domain.Policy) string {
	if !p.SupportsReplacement {
		return "Unfortunately, replacements are not available under this seller's policy."
	}
	return "We can send you a replacement. What would you like?\n" +
		"1. Same product (different unit)\n" +
		"2. Different size, color or variant\n" +
		"3. A different product at a similar price\n\n" +
		"Let me know your preference and I'll set it up."
}

func renderPickupOptions(p *domain.Policy) string {
	if !p.SupportsPickup {
		return "Pickup service is not available for this seller. You'll need to ship your return with the provided label."
	}
	return "We can arrange a free pickup. When works for you?\n" +
		"- Today (afternoon)\n" +
		"- Tomorrow (morning or afternoon)\n" +
		"- A specific date and time\n\n" +
		"Also, what's the best address for the pickup?"
}

func renderProductDetailsPrompt() string {
	return "I need a bit more information about your return. Could you tell me:\n" +
		"1. Which product are you returning?\n" +
		"2. What's the reason for the return?\n" +
		"3. When did you purchase it?"
}

func renderInitiatePrompt(productName string, reason domain.ReturnReason) string {
	name := productName
	if name == "" {
		name = "your item"
	}
	return fmt.Sprintf("Got it, you'd like to return %s (reason: %s).\n\n", name, reason) +
		"To finish the return request I still need:\n" +
		"1. The product's current condition (new, unopened, used, damaged)\n" +
		"2. The purchase date\n" +
		"3. Your order number, if you have it\n\n" +
		"Once I have those I can check eligibility right away."
}

func renderMissingReturnPrompt() string {
	return "I don't have an active return on this conversation yet. Do you have a return ID, or would you like to start a new return?"
}

func renderFallback() string {
	return "I'm here to help with returns. You can ask me about:\n" +
		"- Return eligibility\n" +
		"- The return policy\n" +
		"- Starting a return\n" +
		"- Refund status\n" +
		"- Replacements\n" +
		"- Pickup scheduling\n\n" +
		"What would you like to know?"
}

func renderEscalationNotice() string {
	return "I've flagged this conversation for our human support team - " +
		"a specialist will follow up with you shortly to make sure this gets resolved."
}
