package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestRegistry_TryAddIsExclusive(t *testing.T) {
	r := NewBattleRegistry()
	battleID := uuid.New()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if r.TryAdd(battleID, nil, epoch) {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := wins.Load(); got != 1 {
		t.Fatalf("TryAdd succeeded %d times, want 1", got)
	}
	if r.Len() != 1 {
		t.Errorf("Len = %d, want 1", r.Len())
	}
}

func TestRegistry_RemoveAndReAdd(t *testing.T) {
	r := NewBattleRegistry()
	battleID := uuid.New()

	r.Remove(battleID)
	if !r.TryAdd(battleID, nil, epoch) {
		t.Fatal("first TryAdd failed")
	}
	r.Remove(battleID)
	if r.Contains(battleID) {
		t.Fatal("Contains after Remove")
	}
	if !r.TryAdd(battleID, nil, epoch) {
		t.Fatal("TryAdd after Remove failed")
	}
}

func TestRegistry_CancelFiresCause(t *testing.T) {
	r := NewBattleRegistry()
	battleID := uuid.New()
	ctx, cancel := context.WithCancelCause(context.Background())
	r.TryAdd(battleID, cancel, epoch)

	if r.Cancel(uuid.New(), ErrBattleCancelled) {
		t.Error("Cancel of unknown battle reported true")
	}
	if !r.Cancel(battleID, ErrBattleCancelled) {
		t.Fatal("Cancel reported false")
	}
	if !errors.Is(context.Cause(ctx), ErrBattleCancelled) {
		t.Errorf("cause = %v", context.Cause(ctx))
	}
	if !r.Contains(battleID) {
		t.Error("Cancel must leave removal to the loop")
	}
}

func TestRegistry_ListOrdersByStart(t *testing.T) {
	r := NewBattleRegistry()
	late, early := uuid.New(), uuid.New()
	r.TryAdd(late, nil, epoch.Add(time.Minute))
	r.TryAdd(early, nil, epoch)

	list := r.List()
	if len(list) != 2 || list[0].BattleID != early || list[1].BattleID != late {
		t.Errorf("List = %+v", list)
	}
}
