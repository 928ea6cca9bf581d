package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
)

// LinkProcedureName is the stored function that attaches an account to a tenant.
const LinkProcedureName = "link_tenant_account"

// LinkProcedure invokes the linking function. Older deployments return a bare boolean,
// current ones return a JSON object; the raw scanned value is handed back untouched.
type LinkProcedure struct {
	db *sql.DB
}

// NewLinkProcedure creates a new linking procedure caller.
func NewLinkProcedure(db *sql.DB) *LinkProcedure {
	return &LinkProcedure{db: db}
}

// Call runs the procedure and returns either a bool or the JSON bytes of the result.
func (p *LinkProcedure) Call(ctx context.Context, tenantID, accountID uuid.UUID) (any, error) {
	query := `SELECT ` + LinkProcedureName + `($1, $2)`
	var raw any
	if err := p.db.QueryRowContext(ctx, query, tenantID, accountID).Scan(&raw); err != nil {
		return nil, err
	}
	return raw, nil
}
