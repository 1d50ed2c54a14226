package repository

import (
	"context"
	"database/sql"
	"fmt"

	"roleshop-api/internal/model"
)

// MySQLMemberRepository resolves accounts against the community members
// database maintained by the bot. The connection is owned by the caller.
type MySQLMemberRepository struct {
	db *sql.DB
}

// NewMySQLMemberRepository creates a new MySQL member repository.
func NewMySQLMemberRepository(db *sql.DB) *MySQLMemberRepository {
	return &MySQLMemberRepository{db: db}
}

// Resolve finds the external chat identity for an account.
func (r *MySQLMemberRepository) Resolve(ctx context.Context, accountID string) (*model.MemberIdentity, error) {
	query := `SELECT account_id, external_user_id, username, is_active
		FROM members WHERE account_id = ? LIMIT 1`

	var m model.MemberIdentity
	var active int
	err := r.db.QueryRowContext(ctx, query, accountID).Scan(
		&m.AccountID, &m.ExternalUserID, &m.Username, &active)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("member not found for account: %s", accountID)
		}
		return nil, fmt.Errorf("failed to resolve member: %w", err)
	}
	m.IsActive = active == 1
	return &m, nil
}

// Ping reports member database reachability.
func (r *MySQLMemberRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Ensure MySQLMemberRepository implements MemberRepository
var _ MemberRepository = (*MySQLMemberRepository)(nil)
