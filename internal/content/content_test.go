package content

import (
	"strings"
	"testing"
)

func TestMain(m *testing.M) {
	if err := Init(); err != nil {
		panic(err)
	}
	m.Run()
}

func TestDefaultBandBoundaries(t *testing.T) {
	tests := []struct {
		level    int
		digits   int
		seconds  int
		attempts int
	}{
		{1, 3, 70, 4},
		{24, 3, 70, 4},
		{25, 4, 90, 5},
		{40, 4, 90, 5},
		{41, 5, 120, 5},
		{52, 5, 120, 5},
		{53, 6, 160, 5},
		{62, 6, 160, 5},
	}
	for _, tc := range tests {
		cfg := ConfigFor(tc.level)
		if cfg.Digits != tc.digits || cfg.TimeSeconds != tc.seconds || cfg.Attempts != tc.attempts {
			t.Errorf("level %d: got digits=%d time=%d attempts=%d; want %d/%d/%d",
				tc.level, cfg.Digits, cfg.TimeSeconds, cfg.Attempts, tc.digits, tc.seconds, tc.attempts)
		}
		if cfg.Level != tc.level {
			t.Errorf("level %d: config carries level %d", tc.level, cfg.Level)
		}
	}
}

func TestConfigForClampsBelowOne(t *testing.T) {
	cfg := ConfigFor(0)
	if cfg.Level != 1 || cfg.Digits != 3 {
		t.Fatalf("ConfigFor(0) = %+v", cfg)
	}
}

func TestDefaultEconomy(t *testing.T) {
	e := Econ()
	if e.EntryCostNoub != 100 {
		t.Errorf("entry cost = %d", e.EntryCostNoub)
	}
	if e.WinRewardBase != 500 || e.WinRewardPerLevel != 50 {
		t.Errorf("win reward = %d + %d/level", e.WinRewardBase, e.WinRewardPerLevel)
	}
	if e.HintCostPremium != 5 || e.TimeCostPremium != 10 {
		t.Errorf("premium prices = %d / %d", e.HintCostPremium, e.TimeCostPremium)
	}
	if e.TimeAmuletBonusSeconds != 45 {
		t.Errorf("amulet bonus = %d", e.TimeAmuletBonusSeconds)
	}
	if MaxLevel() != 62 {
		t.Errorf("max level = %d", MaxLevel())
	}
}

// Restores the embedded default after tests that swap the content.
func restoreDefault(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		if err := load(embeddedContent); err != nil {
			t.Fatalf("restore embedded content: %v", err)
		}
	})
}

func TestLoadOverride(t *testing.T) {
	restoreDefault(t)
	doc := `
max_level: 3
bands:
  - min_level: 1
    digits: 2
    time_seconds: 30
    attempts: 3
economy:
  entry_cost_noub: 10
  win_reward_base: 20
  win_reward_per_level: 5
`
	if err := load([]byte(doc)); err != nil {
		t.Fatalf("load override: %v", err)
	}
	if MaxLevel() != 3 {
		t.Fatalf("max level = %d", MaxLevel())
	}
	cfg := ConfigFor(2)
	if cfg.Digits != 2 || cfg.TimeSeconds != 30 || cfg.Attempts != 3 {
		t.Fatalf("overridden config = %+v", cfg)
	}
	if Econ().EntryCostNoub != 10 {
		t.Fatalf("overridden entry cost = %d", Econ().EntryCostNoub)
	}
}

func TestLoadRejectsBadContent(t *testing.T) {
	restoreDefault(t)
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "no bands",
			doc:  "max_level: 10\nbands: []\n",
			want: "at least one band",
		},
		{
			name: "first band not at level 1",
			doc: `max_level: 10
bands:
  - {min_level: 2, digits: 3, time_seconds: 60, attempts: 4}
`,
			want: "first band",
		},
		{
			name: "bands out of order",
			doc: `max_level: 10
bands:
  - {min_level: 1, digits: 3, time_seconds: 60, attempts: 4}
  - {min_level: 1, digits: 4, time_seconds: 60, attempts: 4}
`,
			want: "not ascending",
		},
		{
			name: "zero attempts",
			doc: `max_level: 10
bands:
  - {min_level: 1, digits: 3, time_seconds: 60, attempts: 0}
`,
			want: "positive time and attempts",
		},
		{
			name: "missing max_level",
			doc: `bands:
  - {min_level: 1, digits: 3, time_seconds: 60, attempts: 4}
`,
			want: "max_level",
		},
		{
			name: "not yaml",
			doc:  "{{{",
			want: "parse content",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := load([]byte(tc.doc))
			if err == nil {
				t.Fatal("bad content accepted")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestBadContentLeavesLoadedIntact(t *testing.T) {
	restoreDefault(t)
	if err := load([]byte("max_level: 0\nbands: []\n")); err == nil {
		t.Fatal("bad content accepted")
	}
	if MaxLevel() != 62 {
		t.Fatalf("failed load clobbered content: max level %d", MaxLevel())
	}
}
