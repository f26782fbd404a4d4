package repository

// Schema definitions for the Heron database.
// Compatible with both SQLite and PostgreSQL.

const schemaPolicies = `
CREATE TABLE IF NOT EXISTS policies (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    seller_id TEXT NOT NULL,
    name TEXT NOT NULL,
    return_window_days INTEGER NOT NULL,
    refund_type TEXT NOT NULL,
    refund_deduction_pct REAL NOT NULL DEFAULT 0,
    eligible_categories TEXT NOT NULL,
    eligible_conditions TEXT NOT NULL,
    exclusions TEXT NOT NULL,
    approval_time_hours INTEGER NOT NULL,
    refund_time_days INTEGER NOT NULL,
    supports_replacement INTEGER NOT NULL DEFAULT 0,
    supports_pickup INTEGER NOT NULL DEFAULT 0,
    active INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    source_text TEXT
);

CREATE INDEX IF NOT EXISTS idx_policies_tenant ON policies(tenant_id);
CREATE INDEX IF NOT EXISTS idx_policies_seller ON policies(tenant_id, seller_id);
CREATE INDEX IF NOT EXISTS idx_policies_active ON policies(tenant_id, seller_id, active);
`

const schemaReturnRequests = `
CREATE TABLE IF NOT EXISTS return_requests (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    customer_id TEXT NOT NULL,
    seller_id TEXT NOT NULL,
    product_id TEXT NOT NULL,
    product_name TEXT NOT NULL,
    category TEXT NOT NULL,
    price REAL NOT NULL,
    purchase_date TIMESTAMP NOT NULL,
    condition TEXT,
    sku TEXT,
    reason TEXT NOT NULL,
    description TEXT,
    reason_category TEXT,
    is_eligible INTEGER NOT NULL DEFAULT 0,
    eligibility_reason TEXT,
    refund_amount REAL NOT NULL DEFAULT 0,
    refund_status TEXT NOT NULL,
    fraud_score REAL NOT NULL DEFAULT 0,
    is_flagged INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_returns_tenant ON return_requests(tenant_id);
CREATE INDEX IF NOT EXISTS idx_returns_customer ON return_requests(tenant_id, customer_id);
CREATE INDEX IF NOT EXISTS idx_returns_category ON return_requests(tenant_id, customer_id, category);
CREATE INDEX IF NOT EXISTS idx_returns_created ON return_requests(tenant_id, created_at);
`

const schemaEvaluations = `
CREATE TABLE IF NOT EXISTS evaluations (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    return_id TEXT NOT NULL,
    seller_id TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    result TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_evaluations_tenant ON evaluations(tenant_id);
CREATE INDEX IF NOT EXISTS idx_evaluations_return ON evaluations(tenant_id, return_id);
CREATE INDEX IF NOT EXISTS idx_evaluations_timestamp ON evaluations(tenant_id, timestamp);
`

// schemaConversations stores each conversation as a JSON snapshot.
// The handler rewrites the whole context on every turn, so a blob
// column is simpler and cheaper than per-message rows.
const schemaConversations = `
CREATE TABLE IF NOT EXISTS conversations (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    customer_id TEXT NOT NULL,
    seller_id TEXT NOT NULL,
    escalated INTEGER NOT NULL DEFAULT 0,
    state TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_conversations_tenant ON conversations(tenant_id);
CREATE INDEX IF NOT EXISTS idx_conversations_customer ON conversations(tenant_id, customer_id);
CREATE INDEX IF NOT EXISTS idx_conversations_escalated ON conversations(tenant_id, escalated);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaPolicies,
		schemaReturnRequests,
		schemaEvaluations,
		schemaConversations,
	}
}
