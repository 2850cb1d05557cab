// internal/kv/session.go
//
// One in-progress KV run for one player.
// Responsibilities:
//   - Track the secret code, the attempt counter and the paid-hint flag.
//   - Derive time-left from the session deadline and the wall clock, so
//     suspension or tab backgrounding cannot grant grace time.
//   - Validate and apply guesses (length, digits-only), consuming an
//     attempt only on well-formed wrong guesses.
//
// Termination reasons map onto the four ways a run can end.

package kv

import (
	"errors"
	"strings"
	"time"

	"github.com/noubgame/kv-server/internal/content"
	"github.com/noubgame/kv-server/internal/store"
)

// Outcome is the terminal reason of a finished session.
type Outcome string

const (
	OutcomeWin         Outcome = "win"
	OutcomeTimeout     Outcome = "timeout"
	OutcomeAttemptsOut Outcome = "attempts_exhausted"
	OutcomeAborted     Outcome = "aborted"
)

// Won reports whether the outcome pays out.
func (o Outcome) Won() bool { return o == OutcomeWin }

// HistoryResult maps an outcome onto the two-valued history result.
func (o Outcome) HistoryResult() string {
	if o.Won() {
		return store.ResultWin
	}
	return store.ResultLoss
}

// Guess validation errors. These never consume an attempt.
var (
	ErrGuessLength = errors.New("guess has wrong length")
	ErrGuessFormat = errors.New("guess must be digits only")
)

// Session is one in-progress run. At most one exists per player; the
// controller serializes all access, so Session itself carries no lock.
type Session struct {
	UserID string
	Level  int // 1-based KV number
	Config content.LevelConfig

	Code  string
	Hints Hints

	StartedAt    time.Time
	Deadline     time.Time
	BonusSeconds int // added by time amulets

	AttemptsLeft  int
	Hint4Revealed bool
	Active        bool
}

// newSession starts a run at `level` with the given code.
func newSession(userID string, cfg content.LevelConfig, code string, now time.Time) *Session {
	return &Session{
		UserID:       userID,
		Level:        cfg.Level,
		Config:       cfg,
		Code:         code,
		Hints:        DeriveHints(code),
		StartedAt:    now,
		Deadline:     now.Add(time.Duration(cfg.TimeSeconds) * time.Second),
		AttemptsLeft: cfg.Attempts,
		Active:       true,
	}
}

// TimeLeft reports whole seconds remaining, rounded up so the clock
// only shows 0 once the session is actually expired. Never negative.
func (s *Session) TimeLeft(now time.Time) int {
	rem := s.Deadline.Sub(now)
	if rem <= 0 {
		return 0
	}
	return int((rem + time.Second - 1) / time.Second)
}

// Expired reports whether the wall clock has reached the deadline.
// Exactly zero seconds left terminates; there is no grace second.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.Deadline)
}

// ExtendTime pushes the deadline out. No upper bound is imposed.
func (s *Session) ExtendTime(secs int) {
	s.Deadline = s.Deadline.Add(time.Duration(secs) * time.Second)
	s.BonusSeconds += secs
}

// TimeTaken is the elapsed budget at `now`: total budget minus time
// left, clamped to >= 0.
func (s *Session) TimeTaken(now time.Time) int {
	budget := s.Config.TimeSeconds + s.BonusSeconds
	taken := budget - s.TimeLeft(now)
	if taken < 0 {
		return 0
	}
	return taken
}

// ApplyGuess validates and applies one guess.
// Returns correct=true when the code was cracked. A malformed guess is
// rejected with an error and does not consume an attempt; a well-formed
// wrong guess decrements AttemptsLeft.
func (s *Session) ApplyGuess(guess string) (correct bool, err error) {
	guess = strings.TrimSpace(guess)
	if len(guess) != s.Config.Digits {
		return false, ErrGuessLength
	}
	if !isDigits(guess) {
		return false, ErrGuessFormat
	}
	if guess == s.Code {
		return true, nil
	}
	s.AttemptsLeft--
	return false, nil
}
