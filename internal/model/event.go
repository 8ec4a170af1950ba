package model

import "encoding/json"

// EventType names a message broadcast to a battle's topic.
type EventType string

const (
	EventNewQuestion       EventType = "new_question"
	EventShowStats         EventType = "show_stats"
	EventUpdateLeaderboard EventType = "update_leaderboard"
	EventBattleEnd         EventType = "battle_end"
	EventWaitingPeriod     EventType = "waiting_period"
	EventBattleStart       EventType = "battle_start"

	// EventQuestionTimer is the per-second countdown inside the question phase.
	// It is not a phase transition.
	EventQuestionTimer EventType = "question_timer"
)

// IsPhaseTransition reports whether the event marks a change of battle phase.
func (e EventType) IsPhaseTransition() bool {
	return e != EventQuestionTimer
}

// Battle end reasons.
const (
	EndReasonCompleted   = "completed"
	EndReasonNoQuestions = "no MCQs found"
	EndReasonExpired     = "expired, no players"
	EndReasonCancelled   = "cancelled"
)

// Envelope is the canonical broadcast payload: {"type": ..., "data": ...}.
type Envelope struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data"`
}

// BattleEndData is the data of a battle_end event.
type BattleEndData struct {
	BattleID string `json:"battle_id"`
	Reason   string `json:"reason"`
}

// WaitingPeriodData is the data of a waiting_period event.
type WaitingPeriodData struct {
	BattleID     string `json:"battle_id"`
	Message      string `json:"message"`
	GraceSeconds int    `json:"grace_seconds"`
}

// BattleStartData is the data of a battle_start event.
type BattleStartData struct {
	BattleID string `json:"battle_id"`
}

// QuestionTimerData is the data of a question_timer event.
type QuestionTimerData struct {
	MCQID     string `json:"mcq_id"`
	Remaining int    `json:"remaining"`
}
