// internal/store/store.go
//
// Persistence interfaces consumed by the KV engine and the HTTP layer.
// Implementations may be backed by memory (memory.go) or SQLite
// (sqlite.go). The engine only ever sees these contracts.

package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get-style calls for missing rows.
var ErrNotFound = errors.New("not found")

// Profiles owns the player's currency/XP row.
type Profiles interface {
	// Get loads a profile. Returns ErrNotFound if the player has none.
	Get(ctx context.Context, userID string) (*Profile, error)

	// Create inserts a fresh profile row.
	Create(ctx context.Context, p *Profile) error

	// Update applies a partial patch; nil fields are left untouched.
	Update(ctx context.Context, userID string, patch ProfilePatch) error
}

// Consumables owns item quantities (hint scrolls, time amulets, ...).
type Consumables interface {
	// Qty returns the held quantity; 0 (not an error) when absent.
	Qty(ctx context.Context, userID, itemKey string) (int, error)

	// SetQty writes an absolute quantity. Negative values are rejected.
	SetQty(ctx context.Context, userID, itemKey string, qty int) error
}

// Progression owns the durable KV progression record.
type Progression interface {
	// Fetch loads the record, or (nil, nil) when the player has none yet.
	Fetch(ctx context.Context, userID string) (*ProgressionRecord, error)

	// Upsert writes the record, inserting or replacing as needed.
	Upsert(ctx context.Context, userID string, rec *ProgressionRecord) error

	// Leaderboard returns the top players by current level.
	Leaderboard(ctx context.Context, limit int) ([]LeaderboardRow, error)
}

// History owns the append-only game log.
type History interface {
	Append(ctx context.Context, e *HistoryEntry) error

	// Recent lists the newest entries for a player, newest first.
	Recent(ctx context.Context, userID string, limit int) ([]HistoryEntry, error)
}

// Library owns unlocked library pages. Unlock is idempotent.
type Library interface {
	Unlock(ctx context.Context, userID, entryKey string) error
	Entries(ctx context.Context, userID string) ([]LibraryEntry, error)
}
