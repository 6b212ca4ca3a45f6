package database

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"userdeck/common"
)

var ErrTokenInvalid = errors.New("invalid or expired token")

// CreatePasswordResetToken issues a single-use reset token for a user.
func CreatePasswordResetToken(ctx context.Context, userID uuid.UUID, ttl time.Duration) (uuid.UUID, error) {
	token := uuid.New()
	_, err := common.DB.Exec(ctx, `
		INSERT INTO password_reset_tokens (token, user_id, expires_at)
		VALUES ($1, $2, $3)
	`, token, userID, time.Now().Add(ttl))
	return token, err
}

// ConsumePasswordResetToken deletes a token and returns the user it belonged
// to. Expired or unknown tokens yield ErrTokenInvalid.
func ConsumePasswordResetToken(ctx context.Context, token uuid.UUID) (uuid.UUID, error) {
	var userID uuid.UUID
	err := common.DB.QueryRow(ctx, `
		DELETE FROM password_reset_tokens
		WHERE token=$1 AND expires_at > now()
		RETURNING user_id
	`, token).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, ErrTokenInvalid
	}
	return userID, err
}

// SweepExpiredTokens removes expired reset tokens
func SweepExpiredTokens(ctx context.Context) (int64, error) {
	cmd, err := common.DB.Exec(ctx, `DELETE FROM password_reset_tokens WHERE expires_at <= now()`)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}
