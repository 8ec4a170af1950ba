package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/neetpg/battle-backend/internal/model"
)

type staticQuestions struct {
	stats json.RawMessage
	board json.RawMessage
	err   error
}

func (s staticQuestions) FirstQuestion(context.Context, uuid.UUID) (*model.Question, error) {
	return nil, nil
}

func (s staticQuestions) NextQuestion(context.Context, uuid.UUID, int) (*model.Question, error) {
	return nil, nil
}

func (s staticQuestions) BattleStats(context.Context, uuid.UUID) (json.RawMessage, error) {
	return s.stats, s.err
}

func (s staticQuestions) Leaderboard(context.Context, uuid.UUID) (json.RawMessage, error) {
	return s.board, s.err
}

func TestQueryService_EmptyResults(t *testing.T) {
	for _, raw := range []string{"", "null", "[]", " [] "} {
		svc := NewBattleQueryService(staticQuestions{stats: json.RawMessage(raw), board: json.RawMessage(raw)})
		if _, err := svc.Stats(context.Background(), uuid.New()); !errors.Is(err, ErrNoStats) {
			t.Errorf("Stats(%q) err = %v", raw, err)
		}
		if _, err := svc.Leaderboard(context.Background(), uuid.New()); !errors.Is(err, ErrNoLeaderboard) {
			t.Errorf("Leaderboard(%q) err = %v", raw, err)
		}
	}
}

func TestQueryService_PassesRowsThrough(t *testing.T) {
	svc := NewBattleQueryService(staticQuestions{
		stats: json.RawMessage(`[{"option":"a","count":3}]`),
		board: json.RawMessage(`[{"user_id":"u1","score":9}]`),
	})

	stats, err := svc.Stats(context.Background(), uuid.New())
	if err != nil || string(stats) != `[{"option":"a","count":3}]` {
		t.Errorf("Stats = %s, %v", stats, err)
	}
	board, err := svc.Leaderboard(context.Background(), uuid.New())
	if err != nil || string(board) != `[{"user_id":"u1","score":9}]` {
		t.Errorf("Leaderboard = %s, %v", board, err)
	}
}

func TestQueryService_PropagatesErrors(t *testing.T) {
	boom := errors.New("rpc down")
	svc := NewBattleQueryService(staticQuestions{err: boom})
	if _, err := svc.Stats(context.Background(), uuid.New()); !errors.Is(err, boom) {
		t.Errorf("err = %v", err)
	}
}
