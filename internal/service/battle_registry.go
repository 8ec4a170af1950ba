package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/neetpg/battle-backend/internal/model"
)

// BattleRegistry is the process-wide set of battles with a running orchestrator.
// It only answers "is something already driving this battle?"; nothing is persisted.
type BattleRegistry struct {
	mu      sync.Mutex
	running map[uuid.UUID]*registryEntry
}

type registryEntry struct {
	cancel    context.CancelCauseFunc
	startedAt time.Time
}

// NewBattleRegistry creates an empty registry.
func NewBattleRegistry() *BattleRegistry {
	return &BattleRegistry{running: make(map[uuid.UUID]*registryEntry)}
}

// TryAdd inserts battleID if absent and reports whether it did. The insert and
// the membership check happen under one lock.
func (r *BattleRegistry) TryAdd(battleID uuid.UUID, cancel context.CancelCauseFunc, startedAt time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.running[battleID]; ok {
		return false
	}
	r.running[battleID] = &registryEntry{cancel: cancel, startedAt: startedAt}
	return true
}

// Contains reports whether battleID is registered.
func (r *BattleRegistry) Contains(battleID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.running[battleID]
	return ok
}

// Remove deletes battleID. Removing an absent ID is a no-op.
func (r *BattleRegistry) Remove(battleID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.running, battleID)
}

// Cancel fires the cancellation token of battleID with cause and reports
// whether the battle was registered. The entry stays until its loop exits.
func (r *BattleRegistry) Cancel(battleID uuid.UUID, cause error) bool {
	r.mu.Lock()
	entry, ok := r.running[battleID]
	r.mu.Unlock()
	if !ok {
		return false
	}
	if entry.cancel != nil {
		entry.cancel(cause)
	}
	return true
}

// Len returns the number of registered battles.
func (r *BattleRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.running)
}

// List returns registered battles ordered by start time.
func (r *BattleRegistry) List() []model.RunningBattle {
	r.mu.Lock()
	out := make([]model.RunningBattle, 0, len(r.running))
	for id, e := range r.running {
		out = append(out, model.RunningBattle{BattleID: id, StartedAt: e.startedAt})
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}
