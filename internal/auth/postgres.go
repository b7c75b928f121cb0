package auth

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Querier is the part of *pgxpool.Pool (or pgx.Tx) the validator needs.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const roomMemberQuery = `
	SELECT EXISTS (
		SELECT 1
		FROM room_users ru
		JOIN rooms r ON r.id = ru.room_id
		WHERE ru.token = $1 AND r.code = $2
	)`

// PostgresValidator admits a token when it belongs to a member of the room
// in the room_users table.
type PostgresValidator struct {
	q Querier
}

// NewPostgresValidator checks tokens with queries run on q.
func NewPostgresValidator(q Querier) *PostgresValidator {
	return &PostgresValidator{q: q}
}

func (v *PostgresValidator) Validate(ctx context.Context, token, roomCode string) (bool, error) {
	if token == "" {
		return false, nil
	}
	var ok bool
	if err := v.q.QueryRow(ctx, roomMemberQuery, token, roomCode).Scan(&ok); err != nil {
		return false, fmt.Errorf("check room membership: %w", err)
	}
	return ok, nil
}
