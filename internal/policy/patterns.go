package policy

import "regexp"

// Extraction patterns over normalized, case-insensitive policy text.
// Extraction never fails: every field has a default applied when no
// pattern matches.

var windowPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(\d+)\s*days?\s*(?:to\s*)?return`),
	regexp.MustCompile(`(?i)returns?\s*(?:are\s*)?(?:accepted\s*)?(?:within|for|in)\s*(\d+)\s*days?`),
	regexp.MustCompile(`(?i)(?:within|window|period)\D{0,30}?(\d+)\s*days?`),
}

var deductionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*%\s*(?:deduction|restocking|handling|fee)`),
	regexp.MustCompile(`(?i)(?:deduction|restocking|handling|fee)\D{0,20}?(\d+(?:\.\d+)?)\s*%`),
}

var exclusionPattern = regexp.MustCompile(
	`(?i)(?:excludes?|excluded|final\s+sale|not\s+eligible(?:\s+for\s+returns?)?|non-?returnable|cannot\s+be\s+returned|cannot\s+return)[:\s]+([^.\n]+)`)

var approvalPattern = regexp.MustCompile(
	`(?i)(?:approv\w*|review\w*)\D{0,40}?(\d+)\s*(hours?|business\s+days?|days?)`)

var refundTimePattern = regexp.MustCompile(
	`(?i)(?:refund\w*|process\w*)\D{0,40}?(\d+)(?:\s*[-\x{2013}]\s*\d+)?\s*(?:business\s+)?days?`)

// Fixed vocabulary of category words the compressor recognizes. Only
// words literally present in the text are included; no match yields an
// empty set, which the eligibility engine reads as "no restriction".
var categoryVocabulary = []string{
	"electronics", "clothing", "footwear", "shoes", "accessories",
	"books", "furniture", "home goods", "sports", "toys",
	"beauty", "health",
}

// Fixed vocabulary of condition words.
var conditionVocabulary = []string{
	"new", "unopened", "unused", "original packaging",
}

var conditionWordPatterns = map[string]*regexp.Regexp{
	"new":                regexp.MustCompile(`(?i)\bnew\b`),
	"unopened":           regexp.MustCompile(`(?i)\bunopened\b`),
	"unused":             regexp.MustCompile(`(?i)\bunused\b`),
	"original packaging": regexp.MustCompile(`(?i)\boriginal\s+packaging\b`),
}
