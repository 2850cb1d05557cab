// internal/store/types.go
//
// Record types shared by the persistence layer and the KV engine.
// Defines:
//   - Profile: the player's currencies, XP and account level.
//   - ProgressionRecord: farthest KV level reached + cleared-level set.
//   - HistoryEntry: one finished game, win or loss.
//   - LibraryEntry: one unlocked library page.

package store

import (
	"sort"
	"time"
)

// Result values recorded on progression and history rows.
const (
	ResultWin  = "win"
	ResultLoss = "loss"
)

// Profile is the player's economy row. NoubScore is the soft currency,
// AnkhPremium the premium one.
type Profile struct {
	UserID      string    `json:"userId"`
	NoubScore   int64     `json:"noubScore"`
	AnkhPremium int64     `json:"ankhPremium"`
	XP          int64     `json:"xp"`
	Level       int       `json:"level"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ProfilePatch is a partial update: only non-nil fields are written.
type ProfilePatch struct {
	NoubScore   *int64
	AnkhPremium *int64
	XP          *int64
	Level       *int
}

// ProgressionRecord is the durable per-player KV progress.
// CurrentLevel is the next level to attempt and never decreases;
// Unlocked grows monotonically and holds each level at most once.
type ProgressionRecord struct {
	CurrentLevel int    `json:"currentLevel"`
	Unlocked     []int  `json:"unlockedLevels"`
	LastResult   string `json:"lastResult,omitempty"` // "", "win", "loss"
}

// NewProgressionRecord returns the defaults a first read creates.
func NewProgressionRecord() *ProgressionRecord {
	return &ProgressionRecord{CurrentLevel: 1, Unlocked: []int{}}
}

// HasUnlocked reports whether level l is in the cleared set.
func (r *ProgressionRecord) HasUnlocked(l int) bool {
	for _, v := range r.Unlocked {
		if v == l {
			return true
		}
	}
	return false
}

// AddUnlocked inserts level l, keeping the set sorted and duplicate-free.
func (r *ProgressionRecord) AddUnlocked(l int) {
	if r.HasUnlocked(l) {
		return
	}
	r.Unlocked = append(r.Unlocked, l)
	sort.Ints(r.Unlocked)
}

// Clone returns an independent copy; stores hand these out so callers
// cannot mutate cached state.
func (r *ProgressionRecord) Clone() *ProgressionRecord {
	cp := *r
	cp.Unlocked = append([]int{}, r.Unlocked...)
	return &cp
}

// HistoryEntry is one row of the player's game history.
type HistoryEntry struct {
	ID            string    `json:"id"`
	UserID        string    `json:"userId"`
	GameType      string    `json:"gameType"` // "KV"
	Level         int       `json:"level"`
	Result        string    `json:"result"` // ResultWin | ResultLoss
	TimeTakenSecs int       `json:"timeTakenSecs"`
	Code          string    `json:"code"`
	CreatedAt     time.Time `json:"createdAt"`
}

// LibraryEntry is one unlocked library page (e.g. "kv7").
type LibraryEntry struct {
	EntryKey   string    `json:"entryKey"`
	UnlockedAt time.Time `json:"unlockedAt"`
}

// LeaderboardRow is one line of the KV leaderboard.
type LeaderboardRow struct {
	UserID       string `json:"userId"`
	Username     string `json:"username"`
	CurrentLevel int    `json:"currentLevel"`
	Wins         int    `json:"wins"`
}
