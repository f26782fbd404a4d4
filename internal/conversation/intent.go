package conversation

import (
	"regexp"

	"github.com/opensource-commerce/heron/internal/domain"
)

// Intent classification is an ordered pattern match: the first matching
// pattern wins, no match falls through to IntentUnknown. Intent is
// re-derived from every message so customers can change topic mid-
// conversation; the context accumulates state, the classifier does not.
type intentPattern struct {
	intent   domain.Intent
	patterns []*regexp.Regexp
}

var intentPatterns = []intentPattern{
	{
		intent: domain.IntentCheckEligibility,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)eligib|can i return|able to return|can i send back`),
			regexp.MustCompile(`(?i)will you accept|do you accept|acceptable condition`),
		},
	},
	{
		intent: domain.IntentPolicyQuestion,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)polic(?:y|ies)|return window|how long do i have|how many days`),
			regexp.MustCompile(`(?i)restocking fee|deduction|refund policy`),
		},
	},
	{
		intent: domain.IntentInitiateReturn,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)i want to return|i'?d like to return|start a return|initiate (?:a )?return`),
			regexp.MustCompile(`(?i)return this|send (?:this |it )?back|get my money back`),
		},
	},
	{
		intent: domain.IntentRefundStatus,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)refund status|where'?s? (?:is )?my refund|when will i get|my money back yet`),
		},
	},
	{
		intent: domain.IntentReplacementRequest,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)replacement|exchange|swap|different (?:one|size|color|colour)`),
		},
	},
	{
		intent: domain.IntentPickupScheduling,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)pick\s?up|come get|collect(?:ion)?`),
		},
	},
	{
		intent: domain.IntentTrackReturn,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)track|where is (?:my|the)|arrived|has it been received`),
		},
	},
}

// classifyIntent returns the first intent whose pattern matches.
func classifyIntent(text string) domain.Intent {
	for _, ip := range intentPatterns {
		for _, re := range ip.patterns {
			if re.MatchString(text) {
				return ip.intent
			}
		}
	}
	return domain.IntentUnknown
}

var reasonPatterns = []struct {
	re     *regexp.Regexp
	reason domain.ReturnReason
}{
	{regexp.MustCompile(`(?i)defective|broken|stopped working|not working|doesn'?t work`), domain.ReasonDefective},
	{regexp.MustCompile(`(?i)damaged|arrived (?:broken|crushed|cracked)`), domain.ReasonDamaged},
	{regexp.MustCompile(`(?i)not as described|different from|doesn'?t match`), domain.ReasonNotAsDescribed},
	{regexp.MustCompile(`(?i)wrong item|wrong product|shipped wrong`), domain.ReasonWrongItem},
	{regexp.MustCompile(`(?i)changed my mind|don'?t want|don'?t need`), domain.ReasonChangedMind},
	{regexp.MustCompile(`(?i)too (?:small|big|large|tight|loose)|wrong size|doesn'?t fit`), domain.ReasonSizeIssue},
}

// extractReason maps the message text to a return reason, defaulting to
// other when nothing matches.
func extractReason(text string) domain.ReturnReason {
	for _, rp := range reasonPatterns {
		if rp.re.MatchString(text) {
			return rp.reason
		}
	}
	return domain.ReasonOther
}

var quotedName = regexp.MustCompile(`"([^"]+)"`)

// extractProductName pulls a quoted product name out of the message,
// if the customer supplied one.
func extractProductName(text string) string {
	if m := quotedName.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}
