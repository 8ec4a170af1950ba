package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
)

// Query errors.
var (
	ErrNoStats       = errors.New("no stats found")
	ErrNoLeaderboard = errors.New("no leaderboard data found")
)

// BattleQueryService serves the read-only stats and leaderboard endpoints.
type BattleQueryService struct {
	questions QuestionSource
}

// NewBattleQueryService creates a new BattleQueryService.
func NewBattleQueryService(questions QuestionSource) *BattleQueryService {
	return &BattleQueryService{questions: questions}
}

// Stats returns the answer distribution of one MCQ.
func (s *BattleQueryService) Stats(ctx context.Context, mcqID uuid.UUID) (json.RawMessage, error) {
	rows, err := s.questions.BattleStats(ctx, mcqID)
	if err != nil {
		return nil, err
	}
	if isEmptyJSON(rows) {
		return nil, ErrNoStats
	}
	return rows, nil
}

// Leaderboard returns the current standings of a battle.
func (s *BattleQueryService) Leaderboard(ctx context.Context, battleID uuid.UUID) (json.RawMessage, error) {
	rows, err := s.questions.Leaderboard(ctx, battleID)
	if err != nil {
		return nil, err
	}
	if isEmptyJSON(rows) {
		return nil, ErrNoLeaderboard
	}
	return rows, nil
}

func isEmptyJSON(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte("[]"))
}
