// Package domain defines the core interfaces and types for Heron.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Policy operations. Saving a policy for a seller replaces the
	// active policy for that seller; prior versions remain queryable
	// by policy ID.
	SavePolicy(ctx context.Context, tenantID string, policy *Policy) error
	GetPolicy(ctx context.Context, tenantID string, policyID string) (*Policy, error)
	GetPolicyBySeller(ctx context.Context, tenantID string, sellerID string) (*Policy, error)
	ListPolicies(ctx context.Context, tenantID string) ([]*Policy, error)

	// Return request operations
	SaveReturnRequest(ctx context.Context, tenantID string, req *ReturnRequest) error
	GetReturnRequest(ctx context.Context, tenantID string, returnID string) (*ReturnRequest, error)
	CountReturnsByCategory(ctx context.Context, tenantID string, customerID string, category string, since time.Time) (int64, error)

	// Evaluation results
	SaveEvaluation(ctx context.Context, tenantID string, eval *Evaluation) error
	GetEvaluation(ctx context.Context, tenantID string, evalID string) (*Evaluation, error)

	// Conversation state
	SaveConversation(ctx context.Context, tenantID string, conv *ConversationContext) error
	GetConversation(ctx context.Context, tenantID string, convID string) (*ConversationContext, error)

	// Aggregates for the analytics surface
	GetReturnAnalytics(ctx context.Context, tenantID string, since time.Time) (*ReturnAnalytics, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
