package guard

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGAdminChecker resolves admin status from the users table.
type PGAdminChecker struct {
	pool *pgxpool.Pool
}

// NewPGAdminChecker constructs a checker backed by the provided pool.
func NewPGAdminChecker(pool *pgxpool.Pool) *PGAdminChecker {
	return &PGAdminChecker{pool: pool}
}

// CheckAdmin reports whether the user is an active admin. A vanished or
// deactivated account maps to KindUnauthenticated, query failures to
// KindTransport.
func (c *PGAdminChecker) CheckAdmin(ctx context.Context, userID int64) (bool, error) {
	var isAdmin, isActive bool
	err := c.pool.QueryRow(ctx, `SELECT is_admin, is_active FROM users WHERE id = $1`, userID).Scan(&isAdmin, &isActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, &AuthError{Kind: KindUnauthenticated, Err: errors.New("account not found")}
		}
		return false, &AuthError{Kind: KindTransport, Err: err}
	}
	if !isActive {
		return false, &AuthError{Kind: KindForbidden, Err: errors.New("account deactivated")}
	}
	return isAdmin, nil
}

var _ AdminChecker = (*PGAdminChecker)(nil)
