package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// QuotaRemaining returns how many shared-credential runs the user has left.
// Users without a quota row have no grant and therefore zero remaining.
func (s *Store) QuotaRemaining(ctx context.Context, userID string) (int, error) {
	var granted, used int
	err := s.pool.QueryRow(ctx,
		`SELECT granted, used FROM quota_usage WHERE user_id = $1`, userID).Scan(&granted, &used)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("quota for user %s: %w", userID, err)
	}
	if used >= granted {
		return 0, nil
	}
	return granted - used, nil
}

// IncrementQuotaUsage counts one actual use of the shared platform
// credential. Configured-but-unused substitutions are not counted.
func (s *Store) IncrementQuotaUsage(ctx context.Context, userID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE quota_usage SET used = used + 1, updated_at = NOW() WHERE user_id = $1`, userID)
	return execExpectOne(tag, err, "increment quota for user %s", userID)
}
