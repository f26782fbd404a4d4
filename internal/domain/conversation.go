package domain

import (
	"time"
)

// Sentiment classifies a customer's mood on a single turn.
type Sentiment string

const (
	SentimentNeutral    Sentiment = "neutral"
	SentimentFrustrated Sentiment = "frustrated"
	SentimentAngry      Sentiment = "angry"
)

// Intent is the classified purpose of a customer message.
type Intent string

const (
	IntentCheckEligibility   Intent = "check_eligibility"
	IntentPolicyQuestion     Intent = "policy_question"
	IntentInitiateReturn     Intent = "initiate_return"
	IntentRefundStatus       Intent = "refund_status"
	IntentReplacementRequest Intent = "replacement_request"
	IntentPickupScheduling   Intent = "pickup_scheduling"
	IntentTrackReturn        Intent = "track_return"
	IntentUnknown            Intent = "unknown"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one entry in a conversation's history.
type ChatMessage struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// ConversationContext is the per-conversation state threaded through the
// handler. The handler returns an updated copy on every turn; callers own
// the value and must serialize concurrent access to the same conversation.
type ConversationContext struct {
	ID           string `json:"id"`
	TenantID     string `json:"tenantId"`
	CustomerID   string `json:"customerId"`
	CustomerName string `json:"customerName,omitempty"`
	SellerID     string `json:"sellerId"`

	Messages     []ChatMessage `json:"messages"`
	MessageCount int           `json:"messageCount"`

	// Facts gathered across turns.
	CurrentReturnRequest *ReturnRequest `json:"currentReturnRequest,omitempty"`
	ProductContext       *Product       `json:"productContext,omitempty"`

	// Sentiment tracking. FrustrationLevel is clamped to [0,1] and only
	// decays on neutral turns. EscalationRequired is sticky.
	Sentiment          Sentiment `json:"sentiment"`
	FrustrationLevel   float64   `json:"frustrationLevel"`
	AngryTurns         int       `json:"angryTurns"`
	EscalationRequired bool      `json:"escalationRequired"`
	EscalationReason   string    `json:"escalationReason,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewConversation creates the context for a conversation's first message.
func NewConversation(id, tenantID, customerID, sellerID string) ConversationContext {
	now := time.Now().UTC()
	return ConversationContext{
		ID:         id,
		TenantID:   tenantID,
		CustomerID: customerID,
		SellerID:   sellerID,
		Sentiment:  SentimentNeutral,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}
