// internal/xp/xp.go
//
// Experience points and account level.
// Responsibilities:
//   - Credit XP to the player's profile.
//   - Derive the account level from total XP and report level-ups.
//
// Curve: advancing from level n to n+1 costs 100*n XP, so the
// cumulative threshold for level n is 100*n*(n-1)/2.

package xp

import (
	"context"
	"fmt"

	"github.com/noubgame/kv-server/internal/store"
)

// Service credits XP against the profile store.
type Service struct {
	profiles store.Profiles
}

// New constructs an XP service.
func New(profiles store.Profiles) *Service { return &Service{profiles: profiles} }

// Result reports what an XP grant did to the account level.
type Result struct {
	LeveledUp bool  `json:"leveledUp"`
	NewLevel  int   `json:"newLevel"`
	TotalXP   int64 `json:"totalXp"`
}

// Add credits `amount` XP and recomputes the account level.
func (s *Service) Add(ctx context.Context, userID string, amount int64) (Result, error) {
	p, err := s.profiles.Get(ctx, userID)
	if err != nil {
		return Result{}, fmt.Errorf("xp add: %w", err)
	}
	total := p.XP + amount
	level := LevelForXP(total)
	patch := store.ProfilePatch{XP: &total, Level: &level}
	if err := s.profiles.Update(ctx, userID, patch); err != nil {
		return Result{}, fmt.Errorf("xp add: %w", err)
	}
	return Result{LeveledUp: level > p.Level, NewLevel: level, TotalXP: total}, nil
}

// LevelForXP maps cumulative XP to an account level (>= 1).
func LevelForXP(xp int64) int {
	level := 1
	for threshold(level+1) <= xp {
		level++
	}
	return level
}

// threshold is the cumulative XP needed to hold level n.
func threshold(n int) int64 {
	k := int64(n - 1)
	return 100 * k * (k + 1) / 2
}
