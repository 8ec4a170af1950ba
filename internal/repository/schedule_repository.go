package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/neetpg/battle-backend/internal/model"
)

// ErrNotFound is returned when an update matches no row.
var ErrNotFound = errors.New("record not found")

// ScheduleRepository handles battle_schedule data access.
type ScheduleRepository struct {
	pool *pgxpool.Pool
}

// NewScheduleRepository creates a new ScheduleRepository.
func NewScheduleRepository(pool *pgxpool.Pool) *ScheduleRepository {
	return &ScheduleRepository{pool: pool}
}

// UpdateStatus sets the schedule status of a battle.
func (r *ScheduleRepository) UpdateStatus(ctx context.Context, battleID uuid.UUID, status model.ScheduleStatus) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE battle_schedule SET status = $1, updated_at = NOW() WHERE battle_id = $2`,
		string(status), battleID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("battle_schedule %s: %w", battleID, ErrNotFound)
	}
	return nil
}

// FindByMinute lists schedule rows whose date equals date (YYYY-MM-DD) and whose
// time, truncated to the minute, equals hhmm (HH:MM).
func (r *ScheduleRepository) FindByMinute(ctx context.Context, date, hhmm string) ([]model.ScheduleRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT battle_id, status, scheduled_date::text, to_char(scheduled_time, 'HH24:MI:SS')
		 FROM battle_schedule
		 WHERE scheduled_date = $1::date AND to_char(scheduled_time, 'HH24:MI') = $2`,
		date, hhmm,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []model.ScheduleRecord
	for rows.Next() {
		var rec model.ScheduleRecord
		var status string
		if err := rows.Scan(&rec.BattleID, &status, &rec.ScheduledDate, &rec.ScheduledTime); err != nil {
			return nil, err
		}
		rec.Status = model.ScheduleStatus(status)
		records = append(records, rec)
	}
	return records, rows.Err()
}
