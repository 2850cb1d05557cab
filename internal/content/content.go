// internal/content/content.go
//
// Level content and economy constants for the KV (Valley of the Kings)
// code-cracking game.
//
// Responsibilities:
//   - Load the content file (level bands, costs, rewards) from an
//     environment-provided path or fall back to the embedded default.
//   - Answer "what does level L look like": digit count, time budget,
//     attempt budget.
//   - Expose economy constants (entry cost, win reward, hint/time prices).
//
// Content file:
//   - Bands are matched top-down by min_level; the last band whose
//     min_level is <= L applies. Bands must be sorted ascending.
//   - max_level caps the playable content; levels above it exist in the
//     numbering but cannot be started.
//
// Environment variables:
//   KV_CONTENT_FILE=/path/to/kv.yaml
//
// Initialization is run once (sync.Once).

package content

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed kv_default.yaml
var embeddedContent []byte

// LevelConfig describes one playable KV level.
type LevelConfig struct {
	Level       int // 1-based level number (KV1..KVmax)
	Digits      int // length of the secret code
	TimeSeconds int // wall-clock budget for the run
	Attempts    int // guesses allowed
}

// Economy holds the tunable prices and rewards of the KV game.
type Economy struct {
	EntryCostNoub          int64 `yaml:"entry_cost_noub"`
	WinRewardBase          int64 `yaml:"win_reward_base"`
	WinRewardPerLevel      int64 `yaml:"win_reward_per_level"`
	HintCostPremium        int64 `yaml:"hint_cost_premium"`
	TimeCostPremium        int64 `yaml:"time_cost_premium"`
	TimeAmuletBonusSeconds int   `yaml:"time_amulet_bonus_seconds"`
	XPWinBase              int64 `yaml:"xp_win_base"`
	XPWinPerLevel          int64 `yaml:"xp_win_per_level"`
	StartingNoub           int64 `yaml:"starting_noub"`
	StartingAnkh           int64 `yaml:"starting_ankh"`
}

// band is one row of the content file's band table.
type band struct {
	MinLevel    int `yaml:"min_level"`
	Digits      int `yaml:"digits"`
	TimeSeconds int `yaml:"time_seconds"`
	Attempts    int `yaml:"attempts"`
}

// file is the YAML structure of a KV content file.
type file struct {
	MaxLevel int     `yaml:"max_level"`
	Bands    []band  `yaml:"bands"`
	Economy  Economy `yaml:"economy"`
}

var (
	initOnce sync.Once
	initErr  error
	loaded   file
)

// Init loads the content exactly once. Safe to call from multiple places;
// subsequent calls return the first result.
func Init() error {
	initOnce.Do(func() {
		data := embeddedContent
		if path := os.Getenv("KV_CONTENT_FILE"); path != "" {
			b, err := os.ReadFile(path)
			if err != nil {
				initErr = fmt.Errorf("read content file %s: %w", path, err)
				return
			}
			data = b
		}
		initErr = load(data)
	})
	return initErr
}

// load parses and validates a content file. Split from Init for tests.
func load(data []byte) error {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse content: %w", err)
	}
	if err := validate(f); err != nil {
		return err
	}
	loaded = f
	return nil
}

// validate rejects content that would make the engine misbehave.
func validate(f file) error {
	if f.MaxLevel < 1 {
		return errors.New("content: max_level must be >= 1")
	}
	if len(f.Bands) == 0 {
		return errors.New("content: at least one band required")
	}
	if f.Bands[0].MinLevel != 1 {
		return errors.New("content: first band must start at level 1")
	}
	prev := 0
	for i, b := range f.Bands {
		if b.MinLevel <= prev {
			return fmt.Errorf("content: band %d min_level not ascending", i)
		}
		if b.Digits < 1 || b.Digits > 10 {
			return fmt.Errorf("content: band %d digits out of range", i)
		}
		if b.TimeSeconds < 1 || b.Attempts < 1 {
			return fmt.Errorf("content: band %d needs positive time and attempts", i)
		}
		prev = b.MinLevel
	}
	if f.Economy.EntryCostNoub < 0 || f.Economy.WinRewardBase < 0 {
		return errors.New("content: negative economy values")
	}
	return nil
}

// ConfigFor returns the LevelConfig for level L (1-based).
// Defined for every L >= 1; levels past the last band reuse that band.
func ConfigFor(level int) LevelConfig {
	if level < 1 {
		level = 1
	}
	b := loaded.Bands[0]
	for _, cand := range loaded.Bands {
		if cand.MinLevel > level {
			break
		}
		b = cand
	}
	return LevelConfig{
		Level:       level,
		Digits:      b.Digits,
		TimeSeconds: b.TimeSeconds,
		Attempts:    b.Attempts,
	}
}

// MaxLevel reports the highest startable level in the loaded content.
func MaxLevel() int { return loaded.MaxLevel }

// Econ returns the loaded economy constants.
func Econ() Economy { return loaded.Economy }
