package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/neetpg/battle-backend/internal/clock"
	"github.com/neetpg/battle-backend/internal/metrics"
	"github.com/neetpg/battle-backend/internal/model"
	"github.com/rs/zerolog"
)

// Orchestrator errors.
var (
	ErrBattleCancelled      = errors.New("battle cancelled by operator")
	ErrReactOrderRegression = errors.New("next question did not advance react_order")
)

// Battle phases, used as log and error context.
const (
	PhaseFetchFirst  = "fetch_first"
	PhaseQuestion    = "question"
	PhaseStats       = "stats"
	PhaseLeaderboard = "leaderboard"
	PhaseAdvance     = "advance"
	PhaseComplete    = "complete"
)

// PhaseError tags a loop failure with the phase it happened in.
type PhaseError struct {
	Phase string
	Err   error
}

func (e *PhaseError) Error() string { return e.Phase + ": " + e.Err.Error() }
func (e *PhaseError) Unwrap() error { return e.Err }

// BattleTiming holds the dwell time of each phase.
type BattleTiming struct {
	Question    time.Duration
	Stats       time.Duration
	Leaderboard time.Duration
	// Countdown emits a question_timer event every second of the question phase.
	Countdown bool
}

// DefaultBattleTiming is the 20/10/10 second cadence.
var DefaultBattleTiming = BattleTiming{
	Question:    20 * time.Second,
	Stats:       10 * time.Second,
	Leaderboard: 10 * time.Second,
	Countdown:   true,
}

// CallPolicy bounds every collaborator call. Only idempotent reads are retried.
type CallPolicy struct {
	Timeout     time.Duration
	ReadRetries int
	Backoff     time.Duration
}

// BattleOrchestrator drives one battle at a time through
// question → stats → leaderboard until no question is left.
type BattleOrchestrator struct {
	questions   QuestionSource
	schedule    ScheduleStore
	broadcaster Broadcaster
	registry    *BattleRegistry
	clock       clock.Clock
	timing      BattleTiming
	policy      CallPolicy
	metrics     *metrics.Metrics
	log         zerolog.Logger
}

// NewBattleOrchestrator creates a new BattleOrchestrator.
func NewBattleOrchestrator(
	questions QuestionSource,
	schedule ScheduleStore,
	broadcaster Broadcaster,
	registry *BattleRegistry,
	clk clock.Clock,
	timing BattleTiming,
	policy CallPolicy,
	m *metrics.Metrics,
	log zerolog.Logger,
) *BattleOrchestrator {
	return &BattleOrchestrator{
		questions:   questions,
		schedule:    schedule,
		broadcaster: broadcaster,
		registry:    registry,
		clock:       clk,
		timing:      timing,
		policy:      policy,
		metrics:     m,
		log:         log.With().Str("component", "battle_orchestrator").Logger(),
	}
}

// Run drives battleID to completion. The battle is always removed from the
// registry before Run returns. Collaborator failures end the loop without
// writing Completed, so the battle can be started again.
func (o *BattleOrchestrator) Run(ctx context.Context, battleID uuid.UUID) (err error) {
	log := o.log.With().Str("battle_id", battleID.String()).Logger()

	defer o.registry.Remove(battleID)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("orchestrator panic: %v", r)
		}
		if err == nil {
			return
		}
		if ctx.Err() != nil {
			o.stopped(ctx, battleID, log)
			return
		}
		o.metrics.IncFailed()
		var pe *PhaseError
		phase := "unknown"
		if errors.As(err, &pe) {
			phase = pe.Phase
		}
		log.Error().Err(err).Str("phase", phase).Msg("Battle loop aborted, schedule left Active")
	}()

	log.Info().Msg("Battle loop started")
	return o.loop(ctx, battleID, log)
}

func (o *BattleOrchestrator) loop(ctx context.Context, battleID uuid.UUID, log zerolog.Logger) error {
	q, err := readWithRetry(ctx, o, log, PhaseFetchFirst, func(ctx context.Context) (*model.Question, error) {
		return o.questions.FirstQuestion(ctx, battleID)
	})
	if err != nil {
		return &PhaseError{Phase: PhaseFetchFirst, Err: err}
	}
	if q == nil {
		o.broadcast(ctx, battleID, model.EventBattleEnd, model.BattleEndData{
			BattleID: battleID.String(),
			Reason:   model.EndReasonNoQuestions,
		}, log)
		log.Info().Msg("No MCQs found, battle ended")
		return nil
	}

	for {
		qlog := log.With().Str("mcq_id", q.MCQID.String()).Int("react_order", q.ReactOrder).Logger()
		current := q

		// ─── Question ──────────────────────────────────────────────
		o.broadcast(ctx, battleID, model.EventNewQuestion, current.Payload, qlog)
		if err := o.holdQuestion(ctx, battleID, current, qlog); err != nil {
			return &PhaseError{Phase: PhaseQuestion, Err: err}
		}

		// ─── Stats ─────────────────────────────────────────────────
		stats, err := readWithRetry(ctx, o, qlog, PhaseStats, func(ctx context.Context) (json.RawMessage, error) {
			return o.questions.BattleStats(ctx, current.MCQID)
		})
		if err != nil {
			return &PhaseError{Phase: PhaseStats, Err: err}
		}
		o.broadcast(ctx, battleID, model.EventShowStats, stats, qlog)
		if err := o.clock.Sleep(ctx, o.timing.Stats); err != nil {
			return &PhaseError{Phase: PhaseStats, Err: err}
		}

		// ─── Leaderboard ───────────────────────────────────────────
		board, err := readWithRetry(ctx, o, qlog, PhaseLeaderboard, func(ctx context.Context) (json.RawMessage, error) {
			return o.questions.Leaderboard(ctx, battleID)
		})
		if err != nil {
			return &PhaseError{Phase: PhaseLeaderboard, Err: err}
		}
		o.broadcast(ctx, battleID, model.EventUpdateLeaderboard, board, qlog)
		if err := o.clock.Sleep(ctx, o.timing.Leaderboard); err != nil {
			return &PhaseError{Phase: PhaseLeaderboard, Err: err}
		}

		// ─── Advance ───────────────────────────────────────────────
		next, err := readWithRetry(ctx, o, qlog, PhaseAdvance, func(ctx context.Context) (*model.Question, error) {
			return o.questions.NextQuestion(ctx, battleID, current.ReactOrder)
		})
		if err != nil {
			return &PhaseError{Phase: PhaseAdvance, Err: err}
		}
		if next == nil {
			return o.complete(ctx, battleID, log)
		}
		if next.ReactOrder <= current.ReactOrder {
			return &PhaseError{Phase: PhaseAdvance, Err: fmt.Errorf("%w: %d after %d",
				ErrReactOrderRegression, next.ReactOrder, current.ReactOrder)}
		}
		q = next
	}
}

// holdQuestion keeps the question phase open for the configured dwell time,
// optionally emitting the remaining seconds before each one-second step.
func (o *BattleOrchestrator) holdQuestion(ctx context.Context, battleID uuid.UUID, q *model.Question, log zerolog.Logger) error {
	if !o.timing.Countdown {
		return o.clock.Sleep(ctx, o.timing.Question)
	}

	for remaining := o.timing.Question; remaining > 0; {
		step := time.Second
		if remaining < step {
			step = remaining
		}
		o.broadcast(ctx, battleID, model.EventQuestionTimer, model.QuestionTimerData{
			MCQID:     q.MCQID.String(),
			Remaining: int((remaining + time.Second - 1) / time.Second),
		}, log)
		if err := o.clock.Sleep(ctx, step); err != nil {
			return err
		}
		remaining -= step
	}
	return nil
}

func (o *BattleOrchestrator) complete(ctx context.Context, battleID uuid.UUID, log zerolog.Logger) error {
	err := execWithTimeout(ctx, o.policy.Timeout, func(ctx context.Context) error {
		return o.schedule.UpdateStatus(ctx, battleID, model.ScheduleStatusCompleted)
	})
	if err != nil {
		return &PhaseError{Phase: PhaseComplete, Err: err}
	}

	o.metrics.IncCompleted()
	o.broadcast(ctx, battleID, model.EventBattleEnd, model.BattleEndData{
		BattleID: battleID.String(),
		Reason:   model.EndReasonCompleted,
	}, log)
	log.Info().Msg("Battle completed")
	return nil
}

// stopped handles a loop interrupted by its context. Operator cancellation is
// announced to players; process shutdown is not.
func (o *BattleOrchestrator) stopped(ctx context.Context, battleID uuid.UUID, log zerolog.Logger) {
	if !errors.Is(context.Cause(ctx), ErrBattleCancelled) {
		log.Info().Msg("Battle loop stopped by shutdown")
		return
	}
	o.broadcast(context.WithoutCancel(ctx), battleID, model.EventBattleEnd, model.BattleEndData{
		BattleID: battleID.String(),
		Reason:   model.EndReasonCancelled,
	}, log)
	log.Warn().Msg("Battle loop cancelled by operator, schedule left Active")
}

// broadcast publishes one event. Failures are logged and counted, never returned.
func (o *BattleOrchestrator) broadcast(ctx context.Context, battleID uuid.UUID, event model.EventType, data interface{}, log zerolog.Logger) {
	err := execWithTimeout(ctx, o.policy.Timeout, func(ctx context.Context) error {
		return o.broadcaster.Broadcast(ctx, battleID, event, data)
	})
	o.metrics.IncBroadcast(string(event), err != nil)
	if err != nil {
		log.Warn().Err(err).Str("event", string(event)).Msg("Broadcast failed")
	}
}

func readWithRetry[T any](ctx context.Context, o *BattleOrchestrator, log zerolog.Logger, phase string, read func(context.Context) (T, error)) (T, error) {
	var zero T
	var err error
	for attempt := 0; attempt <= o.policy.ReadRetries; attempt++ {
		if attempt > 0 {
			log.Warn().Err(err).Str("phase", phase).Int("attempt", attempt+1).Msg("Retrying collaborator read")
			if serr := o.clock.Sleep(ctx, o.policy.Backoff); serr != nil {
				return zero, serr
			}
		}
		var v T
		v, err = callWithTimeout(ctx, o.policy.Timeout, read)
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
	}
	return zero, err
}
