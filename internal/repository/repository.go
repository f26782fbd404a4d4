// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-commerce/heron/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SavePolicy stores a policy with tenant isolation. The new policy
// becomes the seller's active one; prior versions are retained but
// deactivated.
func (r *SQLRepository) SavePolicy(ctx context.Context, tenantID string, policy *domain.Policy) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if policy.SellerID == "" {
		return fmt.Errorf("%w: sellerID is required", ErrInvalidInput)
	}

	categories, _ := json.Marshal(policy.EligibleCategories)
	conditions, _ := json.Marshal(policy.EligibleConditions)
	exclusions, _ := json.Marshal(policy.Exclusions)

	deactivate := `
		UPDATE policies SET active = 0
		WHERE tenant_id = ? AND seller_id = ? AND active = 1
	`
	if _, err := r.db.ExecContext(ctx, r.rebind(deactivate), tenantID, policy.SellerID); err != nil {
		return err
	}

	query := `
		INSERT INTO policies (
			id, tenant_id, seller_id, name, return_window_days,
			refund_type, refund_deduction_pct,
			eligible_categories, eligible_conditions, exclusions,
			approval_time_hours, refund_time_days,
			supports_replacement, supports_pickup,
			active, created_at, source_text
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		policy.ID, tenantID, policy.SellerID, policy.Name, policy.ReturnWindowDays,
		string(policy.RefundType), policy.RefundDeductionPct,
		string(categories), string(conditions), string(exclusions),
		policy.ApprovalTimeHours, policy.RefundTimeDays,
		boolToInt(policy.SupportsReplacement), boolToInt(policy.SupportsPickup),
		1, policy.CreatedAt, policy.SourceText,
	)
	return err
}

// GetPolicy retrieves a policy by ID with tenant isolation.
func (r *SQLRepository) GetPolicy(ctx context.Context, tenantID string, policyID string) (*domain.Policy, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := selectPolicy + ` WHERE tenant_id = ? AND id = ?`
	row := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, policyID)
	return scanPolicy(row)
}

// GetPolicyBySeller retrieves the seller's active policy.
func (r *SQLRepository) GetPolicyBySeller(ctx context.Context, tenantID string, sellerID string) (*domain.Policy, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := selectPolicy + `
		WHERE tenant_id = ? AND seller_id = ? AND active = 1
		ORDER BY created_at DESC
		LIMIT 1
	`
	row := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, sellerID)
	return scanPolicy(row)
}

// ListPolicies retrieves all active policies for a tenant.
func (r *SQLRepository) ListPolicies(ctx context.Context, tenantID string) ([]*domain.Policy, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := selectPolicy + `
		WHERE tenant_id = ? AND active = 1
		ORDER BY seller_id
	`
	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var policies []*domain.Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		policies = append(policies, p)
	}

	return policies, rows.Err()
}

const selectPolicy = `
	SELECT id, tenant_id, seller_id, name, return_window_days,
		   refund_type, refund_deduction_pct,
		   eligible_categories, eligible_conditions, exclusions,
		   approval_time_hours, refund_time_days,
		   supports_replacement, supports_pickup,
		   created_at, source_text
	FROM policies`

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanPolicy(row rowScanner) (*domain.Policy, error) {
	var p domain.Policy
	var tenantID, refundType string
	var categories, conditions, exclusions string
	var replacement, pickup int
	var sourceText sql.NullString

	err := row.Scan(
		&p.ID, &tenantID, &p.SellerID, &p.Name, &p.ReturnWindowDays,
		&refundType, &p.RefundDeductionPct,
		&categories, &conditions, &exclusions,
		&p.ApprovalTimeHours, &p.RefundTimeDays,
		&replacement, &pickup,
		&p.CreatedAt, &sourceText,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	p.RefundType = domain.RefundType(refundType)
	p.SupportsReplacement = replacement == 1
	p.SupportsPickup = pickup == 1
	p.SourceText = sourceText.String
	json.Unmarshal([]byte(categories), &p.EligibleCategories)
	json.Unmarshal([]byte(conditions), &p.EligibleConditions)
	json.Unmarshal([]byte(exclusions), &p.Exclusions)

	return &p, nil
}

// SaveReturnRequest stores a return request with tenant isolation.
// Re-evaluations upsert the decision fields in place.
func (r *SQLRepository) SaveReturnRequest(ctx context.Context, tenantID string, req *domain.ReturnRequest) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO return_requests (
			id, tenant_id, customer_id, seller_id,
			product_id, product_name, category, price, purchase_date, condition, sku,
			reason, description, reason_category,
			is_eligible, eligibility_reason, refund_amount, refund_status,
			fraud_score, is_flagged, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			is_eligible = excluded.is_eligible,
			eligibility_reason = excluded.eligibility_reason,
			refund_amount = excluded.refund_amount,
			refund_status = excluded.refund_status,
			fraud_score = excluded.fraud_score,
			is_flagged = excluded.is_flagged,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		req.ID, tenantID, req.CustomerID, req.Product.SellerID,
		req.Product.ID, req.Product.Name, req.Product.Category,
		req.Product.Price, req.Product.PurchaseDate, req.Product.Condition, req.Product.SKU,
		string(req.Reason), req.Description, req.ReasonCategory,
		boolToInt(req.IsEligible), req.EligibilityReason, req.RefundAmount, string(req.RefundStatus),
		req.FraudScore, boolToInt(req.IsFlagged), req.CreatedAt, req.UpdatedAt,
	)
	return err
}

// GetReturnRequest retrieves a return request by ID with tenant isolation.
func (r *SQLRepository) GetReturnRequest(ctx context.Context, tenantID string, returnID string) (*domain.ReturnRequest, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, customer_id, seller_id,
			   product_id, product_name, category, price, purchase_date, condition, sku,
			   reason, description, reason_category,
			   is_eligible, eligibility_reason, refund_amount, refund_status,
			   fraud_score, is_flagged, created_at, updated_at
		FROM return_requests
		WHERE tenant_id = ? AND id = ?
	`

	var req domain.ReturnRequest
	var reason, refundStatus string
	var eligible, flagged int
	var condition, sku, description, reasonCategory sql.NullString

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, returnID).Scan(
		&req.ID, &req.TenantID, &req.CustomerID, &req.Product.SellerID,
		&req.Product.ID, &req.Product.Name, &req.Product.Category,
		&req.Product.Price, &req.Product.PurchaseDate, &condition, &sku,
		&reason, &description, &reasonCategory,
		&eligible, &req.EligibilityReason, &req.RefundAmount, &refundStatus,
		&req.FraudScore, &flagged, &req.CreatedAt, &req.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	req.Product.Condition = condition.String
	req.Product.SKU = sku.String
	req.Reason = domain.ReturnReason(reason)
	req.Description = description.String
	req.ReasonCategory = reasonCategory.String
	req.IsEligible = eligible == 1
	req.RefundStatus = domain.RefundStatus(refundStatus)
	req.IsFlagged = flagged == 1

	return &req, nil
}

// CountReturnsByCategory counts a customer's returns since the given
// time, optionally narrowed to one product category.
func (r *SQLRepository) CountReturnsByCategory(ctx context.Context, tenantID string, customerID string, category string, since time.Time) (int64, error) {
	if tenantID == "" {
		return 0, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT COUNT(*) FROM return_requests
		WHERE tenant_id = ? AND customer_id = ? AND created_at >= ?
	`
	args := []any{tenantID, customerID, since}
	if category != "" {
		query += ` AND category = ?`
		args = append(args, category)
	}

	var count int64
	if err := r.db.QueryRowContext(ctx, r.rebind(query), args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count returns: %w", err)
	}
	return count, nil
}

// SaveEvaluation stores an evaluation result with tenant isolation.
func (r *SQLRepository) SaveEvaluation(ctx context.Context, tenantID string, eval *domain.Evaluation) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	result, _ := json.Marshal(eval.Result)

	query := `
		INSERT INTO evaluations (
			id, tenant_id, return_id, seller_id, timestamp, result
		) VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		eval.ID, tenantID, eval.ReturnID, eval.SellerID, eval.Timestamp, string(result),
	)
	return err
}

// GetEvaluation retrieves an evaluation by ID with tenant isolation.
func (r *SQLRepository) GetEvaluation(ctx context.Context, tenantID string, evalID string) (*domain.Evaluation, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, return_id, seller_id, timestamp, result
		FROM evaluations
		WHERE tenant_id = ? AND id = ?
	`

	var eval domain.Evaluation
	var result string

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, evalID).Scan(
		&eval.ID, &eval.TenantID, &eval.ReturnID, &eval.SellerID, &eval.Timestamp, &result,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(result), &eval.Result); err != nil {
		return nil, fmt.Errorf("failed to parse evaluation result: %w", err)
	}

	return &eval, nil
}

// SaveConversation upserts a conversation snapshot with tenant isolation.
func (r *SQLRepository) SaveConversation(ctx context.Context, tenantID string, conv *domain.ConversationContext) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	state, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("failed to encode conversation: %w", err)
	}

	query := `
		INSERT INTO conversations (
			id, tenant_id, customer_id, seller_id, escalated, state, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			escalated = excluded.escalated,
			state = excluded.state,
			updated_at = excluded.updated_at
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		conv.ID, tenantID, conv.CustomerID, conv.SellerID,
		boolToInt(conv.EscalationRequired), string(state),
		conv.CreatedAt, conv.UpdatedAt,
	)
	return err
}

// GetConversation retrieves a conversation snapshot with tenant isolation.
func (r *SQLRepository) GetConversation(ctx context.Context, tenantID string, convID string) (*domain.ConversationContext, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT state FROM conversations
		WHERE tenant_id = ? AND id = ?
	`

	var state string
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, convID).Scan(&state)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var conv domain.ConversationContext
	if err := json.Unmarshal([]byte(state), &conv); err != nil {
		return nil, fmt.Errorf("failed to parse conversation state: %w", err)
	}

	return &conv, nil
}

// GetReturnAnalytics aggregates stored return requests for a tenant.
func (r *SQLRepository) GetReturnAnalytics(ctx context.Context, tenantID string, since time.Time) (*domain.ReturnAnalytics, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT COUNT(*),
			   COALESCE(SUM(is_eligible), 0),
			   COALESCE(SUM(is_flagged), 0),
			   COALESCE(AVG(refund_amount), 0),
			   COALESCE(AVG(fraud_score), 0)
		FROM return_requests
		WHERE tenant_id = ? AND created_at >= ?
	`

	var a domain.ReturnAnalytics
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, since).Scan(
		&a.TotalReturns, &a.TotalEligible, &a.TotalFlagged,
		&a.AvgRefundAmount, &a.AvgFraudScore,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate returns: %w", err)
	}
	a.TotalRejected = a.TotalReturns - a.TotalEligible

	reasonQuery := `
		SELECT reason, COUNT(*) FROM return_requests
		WHERE tenant_id = ? AND created_at >= ?
		GROUP BY reason
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(reasonQuery), tenantID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate reasons: %w", err)
	}
	defer rows.Close()

	a.ReasonCounts = make(map[string]int64)
	for rows.Next() {
		var reason string
		var count int64
		if err := rows.Scan(&reason, &count); err != nil {
			return nil, err
		}
		a.ReasonCounts[reason] = count
	}

	return &a, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
