package repository

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/neetpg/battle-backend/internal/model"
)

// BattleRepository calls the battle RPC functions defined in migrations/.
// Each function returns at most one row; no row means "nothing there".
type BattleRepository struct {
	pool *pgxpool.Pool
}

// NewBattleRepository creates a new BattleRepository.
func NewBattleRepository(pool *pgxpool.Pool) *BattleRepository {
	return &BattleRepository{pool: pool}
}

// FirstQuestion returns the battle's first MCQ, or nil if it has none.
func (r *BattleRepository) FirstQuestion(ctx context.Context, battleID uuid.UUID) (*model.Question, error) {
	return r.questionRow(ctx,
		`SELECT row_to_json(q) FROM get_first_mcq($1) AS q LIMIT 1`, battleID)
}

// NextQuestion returns the MCQ following reactOrder, or nil at the end of the battle.
func (r *BattleRepository) NextQuestion(ctx context.Context, battleID uuid.UUID, reactOrder int) (*model.Question, error) {
	return r.questionRow(ctx,
		`SELECT row_to_json(q) FROM get_next_mcq($1, $2) AS q LIMIT 1`, battleID, reactOrder)
}

// BattleStats returns the per-option answer counts for an MCQ as a JSON array (possibly empty).
func (r *BattleRepository) BattleStats(ctx context.Context, mcqID uuid.UUID) (json.RawMessage, error) {
	return r.jsonRows(ctx,
		`SELECT COALESCE(json_agg(s), '[]'::json) FROM get_battle_stats($1) AS s`, mcqID)
}

// Leaderboard returns the ranked participant scores as a JSON array (possibly empty).
func (r *BattleRepository) Leaderboard(ctx context.Context, battleID uuid.UUID) (json.RawMessage, error) {
	return r.jsonRows(ctx,
		`SELECT COALESCE(json_agg(l), '[]'::json) FROM get_leader_board($1) AS l`, battleID)
}

func (r *BattleRepository) questionRow(ctx context.Context, query string, args ...interface{}) (*model.Question, error) {
	var raw []byte
	err := r.pool.QueryRow(ctx, query, args...).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return model.DecodeQuestion(raw)
}

func (r *BattleRepository) jsonRows(ctx context.Context, query string, args ...interface{}) (json.RawMessage, error) {
	var raw []byte
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&raw); err != nil {
		return nil, err
	}
	return json.RawMessage(raw), nil
}
