package kv

import (
	"context"
	"reflect"
	"testing"

	"github.com/noubgame/kv-server/internal/store"
)

func TestProgressLoadLazyCreate(t *testing.T) {
	ctx := context.Background()
	p := NewProgress(store.NewMemory())

	rec, err := p.Load(ctx, "p1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if rec.CurrentLevel != 1 || len(rec.Unlocked) != 0 || rec.LastResult != "" {
		t.Fatalf("defaults = %+v", rec)
	}

	// The lazily created record is durable: a second load round-trips.
	again, err := p.Load(ctx, "p1")
	if err != nil {
		t.Fatalf("second Load: %v", err)
	}
	if !reflect.DeepEqual(rec, again) {
		t.Fatalf("load not stable: %+v vs %+v", rec, again)
	}
}

func TestCommitWinIdempotent(t *testing.T) {
	ctx := context.Background()
	p := NewProgress(store.NewMemory())

	first, err := p.CommitWin(ctx, "p1", 3)
	if err != nil {
		t.Fatalf("CommitWin: %v", err)
	}
	second, err := p.CommitWin(ctx, "p1", 3)
	if err != nil {
		t.Fatalf("CommitWin replay: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("replay changed state: %+v vs %+v", first, second)
	}
	if second.CurrentLevel != 4 {
		t.Fatalf("current level = %d; want 4", second.CurrentLevel)
	}
	if !reflect.DeepEqual(second.Unlocked, []int{3}) {
		t.Fatalf("unlocked = %v; want [3]", second.Unlocked)
	}
}

func TestCommitWinMonotonic(t *testing.T) {
	ctx := context.Background()
	p := NewProgress(store.NewMemory())

	if _, err := p.CommitWin(ctx, "p1", 5); err != nil {
		t.Fatalf("CommitWin(5): %v", err)
	}
	// A replayed win for an earlier level never moves the level back.
	rec, err := p.CommitWin(ctx, "p1", 3)
	if err != nil {
		t.Fatalf("CommitWin(3): %v", err)
	}
	if rec.CurrentLevel != 6 {
		t.Fatalf("current level regressed: %d; want 6", rec.CurrentLevel)
	}
	if !reflect.DeepEqual(rec.Unlocked, []int{3, 5}) {
		t.Fatalf("unlocked = %v; want [3 5]", rec.Unlocked)
	}
}

func TestCommitLoss(t *testing.T) {
	ctx := context.Background()
	p := NewProgress(store.NewMemory())

	if _, err := p.CommitWin(ctx, "p1", 1); err != nil {
		t.Fatalf("CommitWin: %v", err)
	}
	rec, err := p.CommitLoss(ctx, "p1", 2)
	if err != nil {
		t.Fatalf("CommitLoss: %v", err)
	}
	if rec.CurrentLevel != 2 {
		t.Fatalf("loss changed current level: %d", rec.CurrentLevel)
	}
	if !reflect.DeepEqual(rec.Unlocked, []int{1}) {
		t.Fatalf("loss changed unlocked: %v", rec.Unlocked)
	}
	if rec.LastResult != store.ResultLoss {
		t.Fatalf("last result = %q", rec.LastResult)
	}
}

func TestProgressRoundTrip(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	p := NewProgress(mem)

	if _, err := p.CommitWin(ctx, "p1", 1); err != nil {
		t.Fatalf("CommitWin: %v", err)
	}
	rec, _ := p.Load(ctx, "p1")
	if err := mem.Upsert(ctx, "p1", rec); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	again, _ := p.Load(ctx, "p1")
	if !reflect.DeepEqual(rec, again) {
		t.Fatalf("upsert(load(p)) changed state: %+v vs %+v", rec, again)
	}
}
