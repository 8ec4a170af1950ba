package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/neetpg/battle-backend/internal/clock"
	"github.com/neetpg/battle-backend/internal/metrics"
	"github.com/neetpg/battle-backend/internal/model"
	"github.com/rs/zerolog"
)

// LaunchResult is the outcome of a start request.
type LaunchResult string

const (
	LaunchStarted        LaunchResult = "launched"
	LaunchAlreadyRunning LaunchResult = "already running"
	LaunchWaiting        LaunchResult = "waiting for players"
)

// Message is the caller-facing text for the result.
func (r LaunchResult) Message() string {
	if r == LaunchStarted {
		return "battle launched"
	}
	return string(r)
}

// BattleRunner runs one battle loop until it ends.
type BattleRunner interface {
	Run(ctx context.Context, battleID uuid.UUID) error
}

// LauncherConfig holds the launch controller timers.
type LauncherConfig struct {
	GracePeriod time.Duration
	// GracePoll is how often participants are re-checked during the grace
	// window. Zero means a single check when the window closes.
	GracePoll   time.Duration
	CallTimeout time.Duration
}

// BattleLauncher gates orchestrator loops so at most one runs per battle, and
// expires battles nobody joined.
type BattleLauncher struct {
	runner       BattleRunner
	participants ParticipantStore
	schedule     ScheduleStore
	broadcaster  Broadcaster
	registry     *BattleRegistry
	clock        clock.Clock
	cfg          LauncherConfig
	metrics      *metrics.Metrics
	log          zerolog.Logger

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup

	mu        sync.Mutex
	watchdogs map[uuid.UUID]*watchdog
}

type watchdog struct {
	cancel context.CancelCauseFunc
}

// NewBattleLauncher creates a new BattleLauncher. Loops and watchdogs it spawns
// outlive the request that started them and end on Shutdown.
func NewBattleLauncher(
	runner BattleRunner,
	participants ParticipantStore,
	schedule ScheduleStore,
	broadcaster Broadcaster,
	registry *BattleRegistry,
	clk clock.Clock,
	cfg LauncherConfig,
	m *metrics.Metrics,
	log zerolog.Logger,
) *BattleLauncher {
	baseCtx, stop := context.WithCancel(context.Background())
	return &BattleLauncher{
		runner:       runner,
		participants: participants,
		schedule:     schedule,
		broadcaster:  broadcaster,
		registry:     registry,
		clock:        clk,
		cfg:          cfg,
		metrics:      m,
		log:          log.With().Str("component", "battle_launcher").Logger(),
		baseCtx:      baseCtx,
		stop:         stop,
		watchdogs:    make(map[uuid.UUID]*watchdog),
	}
}

// Start launches the orchestrator for battleID when it has joined
// participants, or opens the grace window when it has none.
func (l *BattleLauncher) Start(ctx context.Context, battleID uuid.UUID) (LaunchResult, error) {
	return l.start(ctx, battleID, nil)
}

// start does the work of Start. A non-nil watch is the grace watchdog's
// context; once it is cancelled nothing is written and no loop is launched.
func (l *BattleLauncher) start(ctx context.Context, battleID uuid.UUID, watch context.Context) (LaunchResult, error) {
	log := l.log.With().Str("battle_id", battleID.String()).Logger()

	count, err := l.countJoined(ctx, battleID)
	if err != nil {
		return "", fmt.Errorf("count participants: %w", err)
	}
	if err := watchErr(watch); err != nil {
		return "", err
	}

	if count == 0 {
		if l.registry.Contains(battleID) {
			return LaunchAlreadyRunning, nil
		}
		if err := l.markStatus(ctx, battleID, model.ScheduleStatusActive); err != nil {
			return "", fmt.Errorf("mark active: %w", err)
		}
		if err := watchErr(watch); err != nil {
			return "", err
		}
		l.broadcast(ctx, battleID, model.EventWaitingPeriod, model.WaitingPeriodData{
			BattleID:     battleID.String(),
			Message:      "waiting for players to join",
			GraceSeconds: int(l.cfg.GracePeriod / time.Second),
		}, log)
		// The watchdog handing off keeps its own window.
		if watch == nil && l.armWatchdog(battleID) {
			log.Info().Dur("grace", l.cfg.GracePeriod).Msg("No participants, grace window opened")
		}
		return LaunchWaiting, nil
	}

	runCtx, cancel := context.WithCancelCause(l.baseCtx)
	if !l.registry.TryAdd(battleID, cancel, l.clock.Now()) {
		cancel(nil)
		return LaunchAlreadyRunning, nil
	}

	if err := l.markStatus(ctx, battleID, model.ScheduleStatusActive); err != nil {
		l.registry.Remove(battleID)
		cancel(nil)
		return "", fmt.Errorf("mark active: %w", err)
	}
	// Cancel may have landed while the status was written: before TryAdd it
	// only reaches the watchdog, after it the run context.
	if err := watchErr(watch); err != nil {
		l.registry.Remove(battleID)
		cancel(nil)
		return "", err
	}
	if watch != nil && runCtx.Err() != nil {
		l.registry.Remove(battleID)
		cancel(nil)
		return "", context.Cause(runCtx)
	}

	l.disarmWatchdog(battleID, nil)
	l.metrics.IncLaunched()
	l.broadcast(ctx, battleID, model.EventBattleStart, model.BattleStartData{BattleID: battleID.String()}, log)

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer cancel(nil)
		_ = l.runner.Run(runCtx, battleID)
	}()

	log.Info().Int("participants", count).Msg("Battle launched")
	return LaunchStarted, nil
}

// Cancel aborts the running loop or pending grace watchdog of battleID and
// reports whether there was one.
func (l *BattleLauncher) Cancel(battleID uuid.UUID) bool {
	cancelled := l.registry.Cancel(battleID, ErrBattleCancelled)
	if l.disarmWatchdog(battleID, ErrBattleCancelled) {
		cancelled = true
	}
	if cancelled {
		l.log.Warn().Str("battle_id", battleID.String()).Msg("Battle cancellation requested")
	}
	return cancelled
}

// Running lists the battles with a live orchestrator loop.
func (l *BattleLauncher) Running() []model.RunningBattle {
	return l.registry.List()
}

// waiting reports whether battleID has an open grace window.
func (l *BattleLauncher) waiting(battleID uuid.UUID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.watchdogs[battleID]
	return ok
}

// Shutdown stops every loop and watchdog and waits for them, up to ctx.
func (l *BattleLauncher) Shutdown(ctx context.Context) error {
	l.stop()

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ExpireIfEmpty is the grace watchdog. It waits out the grace window,
// re-checking participants every GracePoll; as soon as anyone joins it hands
// the battle to Start. If nobody joined by the end, the battle is Completed.
func (l *BattleLauncher) ExpireIfEmpty(ctx context.Context, battleID uuid.UUID) {
	log := l.log.With().Str("battle_id", battleID.String()).Str("component", "grace_watchdog").Logger()
	deadline := l.clock.Now().Add(l.cfg.GracePeriod)

	for {
		remaining := deadline.Sub(l.clock.Now())
		if remaining <= 0 {
			break
		}
		wait := l.cfg.GracePoll
		if wait <= 0 || wait > remaining {
			wait = remaining
		}
		if err := l.clock.Sleep(ctx, wait); err != nil {
			if errors.Is(context.Cause(ctx), ErrBattleCancelled) {
				l.endCancelled(ctx, battleID, log)
			}
			return
		}
		if !l.clock.Now().Before(deadline) {
			break
		}

		count, err := l.countJoined(ctx, battleID)
		if err != nil {
			log.Warn().Err(err).Msg("Participant re-check failed")
			continue
		}
		if count > 0 {
			// Players may leave again before Start counts them; keep watching then.
			res, err := l.handOff(ctx, battleID, log)
			if errors.Is(err, ErrBattleCancelled) || (err == nil && res != LaunchWaiting) {
				return
			}
		}
	}

	for {
		// Hold the registry slot from the final count to the Completed write so
		// a concurrent Start cannot launch in between.
		slotCtx, release := context.WithCancelCause(ctx)
		if !l.registry.TryAdd(battleID, release, l.clock.Now()) {
			release(nil)
			return
		}

		count, err := l.countJoined(slotCtx, battleID)
		if err != nil {
			l.vacate(battleID, release)
			log.Error().Err(err).Msg("Participant check at grace expiry failed, schedule left Active")
			return
		}
		if count == 0 {
			l.expire(slotCtx, battleID, log)
			l.vacate(battleID, release)
			return
		}

		l.vacate(battleID, release)
		if res, err := l.handOff(ctx, battleID, log); err != nil || res != LaunchWaiting {
			return
		}
	}
}

func (l *BattleLauncher) expire(ctx context.Context, battleID uuid.UUID, log zerolog.Logger) {
	if err := l.markStatus(ctx, battleID, model.ScheduleStatusCompleted); err != nil {
		log.Error().Err(err).Msg("Failed to expire battle")
		return
	}
	l.broadcast(ctx, battleID, model.EventBattleEnd, model.BattleEndData{
		BattleID: battleID.String(),
		Reason:   model.EndReasonExpired,
	}, log)
	log.Info().Msg("Grace window elapsed with no players, battle expired")
}

func (l *BattleLauncher) endCancelled(ctx context.Context, battleID uuid.UUID, log zerolog.Logger) {
	l.broadcast(context.WithoutCancel(ctx), battleID, model.EventBattleEnd, model.BattleEndData{
		BattleID: battleID.String(),
		Reason:   model.EndReasonCancelled,
	}, log)
	log.Warn().Msg("Grace watchdog cancelled by operator, schedule left Active")
}

func (l *BattleLauncher) vacate(battleID uuid.UUID, release context.CancelCauseFunc) {
	l.registry.Remove(battleID)
	release(nil)
}

func (l *BattleLauncher) handOff(ctx context.Context, battleID uuid.UUID, log zerolog.Logger) (LaunchResult, error) {
	// A launching Start disarms this watchdog, which cancels ctx, so the calls
	// run detached and ctx is only checked before the launch commits.
	res, err := l.start(context.WithoutCancel(ctx), battleID, ctx)
	if errors.Is(err, ErrBattleCancelled) {
		l.endCancelled(ctx, battleID, log)
		return "", err
	}
	if err != nil {
		log.Error().Err(err).Msg("Hand-off to launcher failed")
		return "", err
	}
	log.Info().Str("result", string(res)).Msg("Participants joined during grace window")
	return res, nil
}

// armWatchdog starts the grace watchdog unless one is already pending.
func (l *BattleLauncher) armWatchdog(battleID uuid.UUID) bool {
	l.mu.Lock()
	if _, ok := l.watchdogs[battleID]; ok {
		l.mu.Unlock()
		return false
	}
	ctx, cancel := context.WithCancelCause(l.baseCtx)
	w := &watchdog{cancel: cancel}
	l.watchdogs[battleID] = w
	l.mu.Unlock()

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer l.releaseWatchdog(battleID, w)
		l.ExpireIfEmpty(ctx, battleID)
	}()
	return true
}

// disarmWatchdog cancels the pending watchdog of battleID, if any.
func (l *BattleLauncher) disarmWatchdog(battleID uuid.UUID, cause error) bool {
	l.mu.Lock()
	w, ok := l.watchdogs[battleID]
	delete(l.watchdogs, battleID)
	l.mu.Unlock()
	if ok {
		w.cancel(cause)
	}
	return ok
}

func (l *BattleLauncher) releaseWatchdog(battleID uuid.UUID, w *watchdog) {
	l.mu.Lock()
	if l.watchdogs[battleID] == w {
		delete(l.watchdogs, battleID)
	}
	l.mu.Unlock()
	w.cancel(nil)
}

// watchErr reports the cancellation cause of a grace watchdog context.
func watchErr(watch context.Context) error {
	if watch == nil || watch.Err() == nil {
		return nil
	}
	return context.Cause(watch)
}

func (l *BattleLauncher) countJoined(ctx context.Context, battleID uuid.UUID) (int, error) {
	return callWithTimeout(ctx, l.cfg.CallTimeout, func(ctx context.Context) (int, error) {
		return l.participants.CountJoined(ctx, battleID)
	})
}

func (l *BattleLauncher) markStatus(ctx context.Context, battleID uuid.UUID, status model.ScheduleStatus) error {
	return execWithTimeout(ctx, l.cfg.CallTimeout, func(ctx context.Context) error {
		return l.schedule.UpdateStatus(ctx, battleID, status)
	})
}

func (l *BattleLauncher) broadcast(ctx context.Context, battleID uuid.UUID, event model.EventType, data interface{}, log zerolog.Logger) {
	err := execWithTimeout(ctx, l.cfg.CallTimeout, func(ctx context.Context) error {
		return l.broadcaster.Broadcast(ctx, battleID, event, data)
	})
	l.metrics.IncBroadcast(string(event), err != nil)
	if err != nil {
		log.Warn().Err(err).Str("event", string(event)).Msg("Broadcast failed")
	}
}
