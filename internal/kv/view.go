// internal/kv/view.go
//
// Presentation payloads for the KV screens.
// The controller returns these to the HTTP layer; the secret code is
// never present while a session is active, and the last digit only
// appears after the paid hint is revealed.

package kv

import (
	"time"

	"github.com/noubgame/kv-server/internal/content"
	"github.com/noubgame/kv-server/internal/store"
	"github.com/noubgame/kv-server/internal/xp"
)

// Toast kinds understood by the client.
const (
	ToastInfo    = "info"
	ToastSuccess = "success"
	ToastError   = "error"
)

// ActionResult is what every KV operation hands back to the transport.
// Rule violations (bad guess format, empty purse) are in-band: OK=false
// plus a toast, never an HTTP error.
type ActionResult struct {
	OK        bool           `json:"ok"`
	Toast     string         `json:"toast,omitempty"`
	ToastKind string         `json:"toastKind,omitempty"`
	Session   *SessionView   `json:"session,omitempty"`
	Progress  *ProgressView  `json:"progress,omitempty"`
	Profile   *store.Profile `json:"profile,omitempty"`
	Result    *GameResult    `json:"result,omitempty"`
}

// SessionView is the renderable state of an active run.
type SessionView struct {
	Level        int  `json:"level"`
	Digits       int  `json:"digits"`
	TimeLeft     int  `json:"timeLeft"`
	AttemptsLeft int  `json:"attemptsLeft"`
	HintSum      int  `json:"hintSum"`
	HintProduct  int  `json:"hintProduct"`
	HintOdd      int  `json:"hintOdd"`
	HintEven     int  `json:"hintEven"`
	LastDigit    *int `json:"lastDigit,omitempty"` // only once purchased
}

// ProgressView is the renderable progression panel.
type ProgressView struct {
	CurrentLevel int    `json:"currentLevel"`
	MaxLevel     int    `json:"maxLevel"`
	Unlocked     []int  `json:"unlockedLevels"`
	LastResult   string `json:"lastResult,omitempty"`
}

// GameResult is the terminal payload of a finished run.
type GameResult struct {
	Outcome       Outcome `json:"outcome"`
	Won           bool    `json:"won"`
	Level         int     `json:"level"`
	Code          string  `json:"code"`
	TimeTakenSecs int     `json:"timeTakenSecs"`
	RewardNoub    int64   `json:"rewardNoub"`
	XPGained      int64   `json:"xpGained"`
	LeveledUp     bool    `json:"leveledUp"`
	AccountLevel  int     `json:"accountLevel"`
}

// viewSession maps a session onto its presentation payload.
func viewSession(s *Session, now time.Time) *SessionView {
	v := &SessionView{
		Level:        s.Level,
		Digits:       s.Config.Digits,
		TimeLeft:     s.TimeLeft(now),
		AttemptsLeft: s.AttemptsLeft,
		HintSum:      s.Hints.Sum,
		HintProduct:  s.Hints.Product,
		HintOdd:      s.Hints.OddCount,
		HintEven:     s.Hints.EvenCount,
	}
	if s.Hint4Revealed {
		last := s.Hints.LastDigit
		v.LastDigit = &last
	}
	return v
}

// viewProgress maps a progression record onto its panel payload.
func viewProgress(rec *store.ProgressionRecord) *ProgressView {
	return &ProgressView{
		CurrentLevel: rec.CurrentLevel,
		MaxLevel:     content.MaxLevel(),
		Unlocked:     append([]int{}, rec.Unlocked...),
		LastResult:   rec.LastResult,
	}
}

// resultFor assembles the terminal payload from the finished session
// and whatever the reward/XP steps managed to do.
func resultFor(s *Session, outcome Outcome, now time.Time, reward int64, xpRes xp.Result, xpGained int64) *GameResult {
	return &GameResult{
		Outcome:       outcome,
		Won:           outcome.Won(),
		Level:         s.Level,
		Code:          s.Code,
		TimeTakenSecs: s.TimeTaken(now),
		RewardNoub:    reward,
		XPGained:      xpGained,
		LeveledUp:     xpRes.LeveledUp,
		AccountLevel:  xpRes.NewLevel,
	}
}
