package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrMalformedQuestion is returned for question rows missing mcq_id or react_order.
var ErrMalformedQuestion = errors.New("question row missing mcq_id or react_order")

// ScheduleStatus enumerates the states of a battle_schedule row.
type ScheduleStatus string

const (
	ScheduleStatusUpcoming  ScheduleStatus = "Upcoming"
	ScheduleStatusActive    ScheduleStatus = "Active"
	ScheduleStatusCompleted ScheduleStatus = "Completed"
)

// ParticipantStatusJoined is the participant status counted toward a battle.
const ParticipantStatusJoined = "joined"

// ScheduleRecord is one row of the battle_schedule table.
type ScheduleRecord struct {
	BattleID      uuid.UUID      `json:"battle_id"`
	Status        ScheduleStatus `json:"status"`
	ScheduledDate string         `json:"scheduled_date"` // 2006-01-02
	ScheduledTime string         `json:"scheduled_time"` // 15:04:05
}

// Question is the pointer to the battle's current MCQ. Payload is the full
// RPC row, forwarded to clients verbatim.
type Question struct {
	MCQID      uuid.UUID       `json:"mcq_id"`
	ReactOrder int             `json:"react_order"`
	Payload    json.RawMessage `json:"-"`
}

// RunningBattle describes one entry of the active battle registry.
type RunningBattle struct {
	BattleID  uuid.UUID `json:"battle_id"`
	StartedAt time.Time `json:"started_at"`
}

// DecodeQuestion builds a Question from an RPC row, keeping the row as payload.
func DecodeQuestion(row json.RawMessage) (*Question, error) {
	var head struct {
		MCQID      *uuid.UUID `json:"mcq_id"`
		ReactOrder *int       `json:"react_order"`
	}
	if err := json.Unmarshal(row, &head); err != nil {
		return nil, fmt.Errorf("decode question row: %w", err)
	}
	if head.MCQID == nil || head.ReactOrder == nil {
		return nil, ErrMalformedQuestion
	}
	return &Question{
		MCQID:      *head.MCQID,
		ReactOrder: *head.ReactOrder,
		Payload:    append(json.RawMessage(nil), row...),
	}, nil
}
