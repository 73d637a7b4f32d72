package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// RevokeToken puts a single token on the deny list until it expires.
func RevokeToken(ctx context.Context, db *sql.DB, jti string, expiresAt time.Time) error {
	_, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO revoked_tokens (jti, expires_at) VALUES (?, ?)`,
		jti, expiresAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("revoking token: %w", err)
	}
	return nil
}

// RevokeSessions invalidates every token issued to the user before the
// given instant. Token issue times have one-second precision, so the
// cutoff is truncated to the second.
func RevokeSessions(ctx context.Context, db *sql.DB, userID string, before time.Time) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO session_cutoffs (user_id, not_before) VALUES (?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET not_before = max(not_before, excluded.not_before)`,
		userID, before.Unix(),
	)
	if err != nil {
		return fmt.Errorf("revoking sessions: %w", err)
	}
	return nil
}

// IsTokenRevoked reports whether the token was logged out or predates the
// user's session cutoff.
func IsTokenRevoked(ctx context.Context, db *sql.DB, jti, userID string, issuedAt time.Time) (bool, error) {
	var revoked int
	err := db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM revoked_tokens WHERE jti = ?)
		     OR EXISTS (SELECT 1 FROM session_cutoffs WHERE user_id = ? AND not_before > ?)`,
		jti, userID, issuedAt.Unix(),
	).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("checking token revocation: %w", err)
	}
	return revoked != 0, nil
}

// PurgeRevokedTokens drops deny-list entries for tokens that have expired
// on their own.
func PurgeRevokedTokens(ctx context.Context, db *sql.DB, now time.Time) (int64, error) {
	res, err := db.ExecContext(ctx,
		`DELETE FROM revoked_tokens WHERE expires_at < ?`, now.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("purging revoked tokens: %w", err)
	}
	return res.RowsAffected()
}
