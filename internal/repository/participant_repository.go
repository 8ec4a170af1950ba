package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/neetpg/battle-backend/internal/model"
)

// ParticipantRepository handles battle_participants data access.
type ParticipantRepository struct {
	pool *pgxpool.Pool
}

// NewParticipantRepository creates a new ParticipantRepository.
func NewParticipantRepository(pool *pgxpool.Pool) *ParticipantRepository {
	return &ParticipantRepository{pool: pool}
}

// CountJoined returns the number of participants with status joined.
func (r *ParticipantRepository) CountJoined(ctx context.Context, battleID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM battle_participants WHERE battle_id = $1 AND status = $2`,
		battleID, model.ParticipantStatusJoined,
	).Scan(&n)
	return n, err
}
