package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/neetpg/battle-backend/internal/model"
)

// QuestionSource is the RPC collaborator the orchestrator reads questions,
// stats and leaderboards from. A nil question means "none".
type QuestionSource interface {
	FirstQuestion(ctx context.Context, battleID uuid.UUID) (*model.Question, error)
	NextQuestion(ctx context.Context, battleID uuid.UUID, reactOrder int) (*model.Question, error)
	BattleStats(ctx context.Context, mcqID uuid.UUID) (json.RawMessage, error)
	Leaderboard(ctx context.Context, battleID uuid.UUID) (json.RawMessage, error)
}

// ScheduleStore reads and writes battle_schedule rows.
type ScheduleStore interface {
	UpdateStatus(ctx context.Context, battleID uuid.UUID, status model.ScheduleStatus) error
	FindByMinute(ctx context.Context, date, hhmm string) ([]model.ScheduleRecord, error)
}

// ParticipantStore counts joined participants.
type ParticipantStore interface {
	CountJoined(ctx context.Context, battleID uuid.UUID) (int, error)
}

// Broadcaster publishes an event to a battle's topic. Delivery is best effort.
type Broadcaster interface {
	Broadcast(ctx context.Context, battleID uuid.UUID, event model.EventType, data interface{}) error
}

func callWithTimeout[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return fn(ctx)
}

func execWithTimeout(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	_, err := callWithTimeout(ctx, timeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
