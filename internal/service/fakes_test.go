package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/neetpg/battle-backend/internal/clock"
	"github.com/neetpg/battle-backend/internal/model"
	"github.com/rs/zerolog"
)

var epoch = time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)

var nopLog = zerolog.Nop()

type recordedEvent struct {
	At     time.Time
	Type   model.EventType
	Data   interface{}
	Battle uuid.UUID
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	clock  clock.Clock
	events []recordedEvent
	err    error
}

func (b *fakeBroadcaster) Broadcast(_ context.Context, battleID uuid.UUID, event model.EventType, data interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, recordedEvent{At: b.clock.Now(), Type: event, Data: data, Battle: battleID})
	return b.err
}

func (b *fakeBroadcaster) Events() []recordedEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]recordedEvent(nil), b.events...)
}

func (b *fakeBroadcaster) PhaseEvents() []recordedEvent {
	var out []recordedEvent
	for _, e := range b.Events() {
		if e.Type.IsPhaseTransition() {
			out = append(out, e)
		}
	}
	return out
}

func (b *fakeBroadcaster) Count(event model.EventType) int {
	n := 0
	for _, e := range b.Events() {
		if e.Type == event {
			n++
		}
	}
	return n
}

type fakeQuestions struct {
	mu        sync.Mutex
	questions []model.Question
	firstErr  error
	statsErrs int
	panicOn   string
	// nextOverride replaces the natural successor when set.
	nextOverride *model.Question
	calls        map[string]int
	afterOrders  []int
}

func newFakeQuestions(orders ...int) *fakeQuestions {
	f := &fakeQuestions{calls: make(map[string]int)}
	for _, o := range orders {
		id := uuid.New()
		f.questions = append(f.questions, model.Question{
			MCQID:      id,
			ReactOrder: o,
			Payload:    json.RawMessage(fmt.Sprintf(`{"mcq_id":%q,"react_order":%d}`, id, o)),
		})
	}
	return f
}

func (f *fakeQuestions) hit(name string) {
	f.mu.Lock()
	f.calls[name]++
	f.mu.Unlock()
	if f.panicOn == name {
		panic("boom in " + name)
	}
}

func (f *fakeQuestions) Calls(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

// AfterOrders returns the react_order arguments NextQuestion was called with.
func (f *fakeQuestions) AfterOrders() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.afterOrders...)
}

func (f *fakeQuestions) FirstQuestion(_ context.Context, _ uuid.UUID) (*model.Question, error) {
	f.hit("first")
	if f.firstErr != nil {
		return nil, f.firstErr
	}
	if len(f.questions) == 0 {
		return nil, nil
	}
	q := f.questions[0]
	return &q, nil
}

func (f *fakeQuestions) NextQuestion(_ context.Context, _ uuid.UUID, reactOrder int) (*model.Question, error) {
	f.hit("next")
	f.mu.Lock()
	f.afterOrders = append(f.afterOrders, reactOrder)
	f.mu.Unlock()
	if f.nextOverride != nil {
		q := *f.nextOverride
		return &q, nil
	}
	for _, q := range f.questions {
		if q.ReactOrder > reactOrder {
			q := q
			return &q, nil
		}
	}
	return nil, nil
}

func (f *fakeQuestions) BattleStats(_ context.Context, mcqID uuid.UUID) (json.RawMessage, error) {
	f.hit("stats")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statsErrs > 0 {
		f.statsErrs--
		return nil, fmt.Errorf("stats unavailable")
	}
	return json.RawMessage(fmt.Sprintf(`[{"mcq_id":%q,"option":"a","count":1}]`, mcqID)), nil
}

func (f *fakeQuestions) Leaderboard(_ context.Context, _ uuid.UUID) (json.RawMessage, error) {
	f.hit("leaderboard")
	return json.RawMessage(`[{"user_id":"u1","score":4}]`), nil
}

type statusWrite struct {
	BattleID uuid.UUID
	Status   model.ScheduleStatus
}

type fakeSchedule struct {
	mu      sync.Mutex
	writes  []statusWrite
	err     error
	records []model.ScheduleRecord
	findErr error
	lookups []string
	// onWrite runs after a successful write, outside the lock.
	onWrite func(statusWrite)
}

func (s *fakeSchedule) UpdateStatus(_ context.Context, battleID uuid.UUID, status model.ScheduleStatus) error {
	s.mu.Lock()
	if s.err != nil {
		s.mu.Unlock()
		return s.err
	}
	w := statusWrite{BattleID: battleID, Status: status}
	s.writes = append(s.writes, w)
	hook := s.onWrite
	s.mu.Unlock()
	if hook != nil {
		hook(w)
	}
	return nil
}

func (s *fakeSchedule) FindByMinute(_ context.Context, date, hhmm string) ([]model.ScheduleRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookups = append(s.lookups, date+" "+hhmm)
	return s.records, s.findErr
}

func (s *fakeSchedule) Writes() []statusWrite {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]statusWrite(nil), s.writes...)
}

func (s *fakeSchedule) CountStatus(status model.ScheduleStatus) int {
	n := 0
	for _, w := range s.Writes() {
		if w.Status == status {
			n++
		}
	}
	return n
}

type fakeParticipants struct {
	mu    sync.Mutex
	count int
	err   error
	// seq is consumed one value per call before falling back to count.
	seq   []int
	calls int
	// onCount runs with the 1-based call number before the count returns,
	// outside the lock. Set it before the launcher starts.
	onCount func(call int)
}

func (p *fakeParticipants) CountJoined(_ context.Context, _ uuid.UUID) (int, error) {
	p.mu.Lock()
	p.calls++
	call := p.calls
	n, err := p.count, p.err
	if len(p.seq) > 0 {
		n = p.seq[0]
		p.seq = p.seq[1:]
	}
	hook := p.onCount
	p.mu.Unlock()
	if hook != nil {
		hook(call)
	}
	return n, err
}

func (p *fakeParticipants) Sequence(counts ...int) {
	p.mu.Lock()
	p.seq = counts
	p.mu.Unlock()
}

func (p *fakeParticipants) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *fakeParticipants) Set(n int) {
	p.mu.Lock()
	p.count = n
	p.mu.Unlock()
}

// drive advances clk to each pending deadline until done closes.
func drive(t *testing.T, clk *clock.Fake, done <-chan struct{}) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		select {
		case <-done:
			return
		default:
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out driving fake clock")
		}
		if !clk.AdvanceToNext() {
			time.Sleep(100 * time.Microsecond)
		}
	}
}

func waitForSleepers(t *testing.T, clk *clock.Fake, n int) {
	t.Helper()
	eventually(t, func() bool { return clk.Sleepers() >= n })
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(time.Millisecond)
	}
}

// when returns a channel closed once cond holds.
func when(cond func() bool) <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		defer close(ch)
		for !cond() {
			time.Sleep(time.Millisecond)
		}
	}()
	return ch
}
