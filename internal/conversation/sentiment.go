package conversation

import (
	"strings"

	"github.com/opensource-commerce/heron/internal/domain"
)

// Frustration increments per classified sentiment. Neutral turns apply
// a small decay so one-off venting does not pin the level.
const (
	angryIncrement      = 0.4
	frustratedIncrement = 0.2
	neutralDecay        = -0.05
)

var angryMarkers = []string{
	"angry", "furious", "outraged", "outrageous", "unacceptable",
	"terrible", "worst", "scam", "fraud", "disgusting", "criminal",
	"this is ridiculous",
}

var frustratedMarkers = []string{
	"frustrated", "disappointed", "annoyed", "upset", "fed up",
	"ridiculous", "still waiting", "waste of time", "not happy",
}

// classifySentiment performs a lexical scan for anger and frustration
// markers and returns the sentiment plus the frustration-level delta.
// Three or more exclamation marks escalate the classification one level.
func classifySentiment(text string) (domain.Sentiment, float64) {
	lower := strings.ToLower(text)

	sentiment := domain.SentimentNeutral
	for _, marker := range angryMarkers {
		if strings.Contains(lower, marker) {
			sentiment = domain.SentimentAngry
			break
		}
	}
	if sentiment == domain.SentimentNeutral {
		for _, marker := range frustratedMarkers {
			if strings.Contains(lower, marker) {
				sentiment = domain.SentimentFrustrated
				break
			}
		}
	}

	if strings.Count(text, "!") >= 3 {
		switch sentiment {
		case domain.SentimentNeutral:
			sentiment = domain.SentimentFrustrated
		case domain.SentimentFrustrated:
			sentiment = domain.SentimentAngry
		}
	}

	switch sentiment {
	case domain.SentimentAngry:
		return sentiment, angryIncrement
	case domain.SentimentFrustrated:
		return sentiment, frustratedIncrement
	default:
		return sentiment, neutralDecay
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
