package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/neetpg/battle-backend/internal/clock"
	"github.com/neetpg/battle-backend/internal/metrics"
	"github.com/neetpg/battle-backend/internal/model"
	"github.com/neetpg/battle-backend/internal/service"
	"github.com/rs/zerolog"
)

const (
	scheduleDateLayout = "2006-01-02"
	scheduleTimeLayout = "15:04"
	lookupTimeout      = 10 * time.Second
)

// ScheduleFinder looks up battles scheduled for a wall-clock minute.
type ScheduleFinder interface {
	FindByMinute(ctx context.Context, date, hhmm string) ([]model.ScheduleRecord, error)
}

// Starter is the launch controller entry point.
type Starter interface {
	Start(ctx context.Context, battleID uuid.UUID) (service.LaunchResult, error)
}

// AutostartWorker starts the Upcoming battle scheduled for each minute.
type AutostartWorker struct {
	schedule ScheduleFinder
	starter  Starter
	clock    clock.Clock
	location *time.Location
	metrics  *metrics.Metrics
	log      zerolog.Logger
}

func NewAutostartWorker(schedule ScheduleFinder, starter Starter, clk clock.Clock, location *time.Location, m *metrics.Metrics, log zerolog.Logger) *AutostartWorker {
	if location == nil {
		location = time.UTC
	}
	return &AutostartWorker{
		schedule: schedule,
		starter:  starter,
		clock:    clk,
		location: location,
		metrics:  m,
		log:      log.With().Str("component", "autostart_worker").Logger(),
	}
}

// Start checks the schedule on every minute boundary until ctx is done.
func (w *AutostartWorker) Start(ctx context.Context) {
	w.log.Info().Str("timezone", w.location.String()).Msg("AutostartWorker started")

	for {
		if err := w.clock.Sleep(ctx, clock.UntilNextMinute(w.clock.Now())); err != nil {
			w.log.Info().Msg("AutostartWorker stopped")
			return
		}
		w.CheckAndAutostart(ctx, w.clock.Now())
	}
}

// CheckAndAutostart starts the battle scheduled for the minute of now, if
// exactly one Upcoming battle is scheduled there.
func (w *AutostartWorker) CheckAndAutostart(ctx context.Context, now time.Time) {
	local := now.In(w.location)
	date := local.Format(scheduleDateLayout)
	hhmm := local.Format(scheduleTimeLayout)
	log := w.log.With().Str("date", date).Str("time", hhmm).Logger()

	lookupCtx, cancel := context.WithTimeout(ctx, lookupTimeout)
	records, err := w.schedule.FindByMinute(lookupCtx, date, hhmm)
	cancel()
	if err != nil {
		log.Error().Err(err).Msg("Schedule lookup failed")
		return
	}

	switch len(records) {
	case 0:
		return
	case 1:
	default:
		w.metrics.IncAutostartConflicts()
		ids := make([]string, 0, len(records))
		for _, r := range records {
			ids = append(ids, r.BattleID.String())
		}
		log.Error().Strs("battle_ids", ids).Msg("Multiple battles scheduled for the same minute, none started")
		return
	}

	rec := records[0]
	if rec.Status != model.ScheduleStatusUpcoming {
		log.Debug().Str("battle_id", rec.BattleID.String()).Str("status", string(rec.Status)).Msg("Scheduled battle is not upcoming, skipping")
		return
	}

	res, err := w.starter.Start(ctx, rec.BattleID)
	if err != nil {
		log.Error().Err(err).Str("battle_id", rec.BattleID.String()).Msg("Autostart failed")
		return
	}
	log.Info().Str("battle_id", rec.BattleID.String()).Str("result", string(res)).Msg("Battle autostarted")
}
