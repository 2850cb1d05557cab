// internal/kv/progress.go
//
// Durable per-player level progression.
// Responsibilities:
//   - Lazy-create the record with defaults on first load.
//   - Commit wins idempotently and monotonically: current_level only
//     ever grows, the unlocked set only ever gains members.
//   - Commit losses as informational only (last_result).
//
// Replaying commitWin for the same level leaves the record unchanged,
// which is what neutralizes duplicate post-game pipeline runs.

package kv

import (
	"context"
	"fmt"

	"github.com/noubgame/kv-server/internal/store"
)

// Progress wraps the raw progression store with the game's invariants.
type Progress struct {
	st store.Progression
}

// NewProgress wraps a progression store.
func NewProgress(st store.Progression) *Progress { return &Progress{st: st} }

// Load fetches the player's record, creating defaults on first read.
// A concurrent first writer is tolerated: the upsert of defaults is a
// no-op relative to any record another writer just created from the
// same defaults.
func (p *Progress) Load(ctx context.Context, userID string) (*store.ProgressionRecord, error) {
	rec, err := p.st.Fetch(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load progression: %w", err)
	}
	if rec != nil {
		if rec.CurrentLevel < 1 {
			rec.CurrentLevel = 1
		}
		return rec, nil
	}
	rec = store.NewProgressionRecord()
	if err := p.st.Upsert(ctx, userID, rec); err != nil {
		return nil, fmt.Errorf("create progression: %w", err)
	}
	return rec, nil
}

// CommitWin records a cleared level. Read-modify-write, idempotent,
// monotonic. Returns the updated record.
func (p *Progress) CommitWin(ctx context.Context, userID string, level int) (*store.ProgressionRecord, error) {
	rec, err := p.Load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if next := level + 1; next > rec.CurrentLevel {
		rec.CurrentLevel = next
	}
	rec.AddUnlocked(level)
	rec.LastResult = store.ResultWin
	if err := p.st.Upsert(ctx, userID, rec); err != nil {
		return nil, fmt.Errorf("commit win: %w", err)
	}
	return rec, nil
}

// CommitLoss records a failed run. Level and unlocked set are untouched.
func (p *Progress) CommitLoss(ctx context.Context, userID string, level int) (*store.ProgressionRecord, error) {
	rec, err := p.Load(ctx, userID)
	if err != nil {
		return nil, err
	}
	rec.LastResult = store.ResultLoss
	if err := p.st.Upsert(ctx, userID, rec); err != nil {
		return nil, fmt.Errorf("commit loss: %w", err)
	}
	return rec, nil
}
