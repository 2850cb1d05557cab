// internal/kv/controller.go
//
// The KV game controller: owns every player's (at most one) active
// session and drives the state machine.
// Responsibilities:
//   - Start: check progression + entry cost, debit, generate the code,
//     open the session with free hints visible.
//   - SubmitGuess: validate, spend attempts, terminate on win/exhaustion.
//   - UseHintLastDigit / UseTimeAmulet: consumable-first purchases,
//     premium currency as fallback, atomic with the effect.
//   - Abort: manual loss, no refund of the entry cost.
//   - Timeouts: time-left is re-derived from the wall clock on every
//     operation, and a background sweep terminates runs whose players
//     went away.
//
// Concurrency: operations are serialized per player; the sweep takes
// the same per-player lock, so a session terminates exactly once.
// Every operation returns an ActionResult and never an error — rule
// violations and backend hiccups both travel as toasts (the pipeline
// behind a terminal transition logs and continues per step).

package kv

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/noubgame/kv-server/internal/content"
	"github.com/noubgame/kv-server/internal/store"
	"github.com/noubgame/kv-server/internal/xp"
)

// Game type recorded on history rows.
const GameType = "KV"

// Consumable item keys the KV game spends.
const (
	ItemHintScroll = "hint_scroll"
	ItemTimeAmulet = "time_amulet_45s"
)

// Deps are the collaborators a Controller needs. RNG and Now are
// optional; production defaults are used when nil.
type Deps struct {
	Profiles    store.Profiles
	Consumables store.Consumables
	Progression store.Progression
	History     store.History
	Library     store.Library
	XP          *xp.Service
	RNG         RNG
	Now         func() time.Time
}

// Controller drives the KV state machine for all players.
type Controller struct {
	profiles    store.Profiles
	consumables store.Consumables
	progress    *Progress
	history     store.History
	library     store.Library
	xp          *xp.Service
	rng         RNG
	now         func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
	locks    map[string]*sync.Mutex
}

// NewController wires a controller from its collaborators.
func NewController(d Deps) *Controller {
	rng := d.RNG
	if rng == nil {
		rng = CryptoRNG()
	}
	now := d.Now
	if now == nil {
		now = time.Now
	}
	return &Controller{
		profiles:    d.Profiles,
		consumables: d.Consumables,
		progress:    NewProgress(d.Progression),
		history:     d.History,
		library:     d.Library,
		xp:          d.XP,
		rng:         rng,
		now:         now,
		sessions:    make(map[string]*Session),
		locks:       make(map[string]*sync.Mutex),
	}
}

// ------------------------------- operations --------------------------------

// EnterScreen loads the progression panel and, if a run is still going,
// its session view. Idempotent. An expired leftover run is settled
// first so the player always lands on a consistent screen.
func (c *Controller) EnterScreen(ctx context.Context, userID string) *ActionResult {
	lk := c.lockPlayer(userID)
	defer lk.Unlock()

	res := &ActionResult{OK: true}
	if term := c.reapExpired(ctx, userID); term != nil {
		res.Result = term.Result
		res.Toast, res.ToastKind = "Time ran out on your last dig.", ToastInfo
		res.Profile = term.Profile
	}

	rec, err := c.progress.Load(ctx, userID)
	if err != nil {
		log.Error().Err(err).Str("user", userID).Msg("load progression")
		return failToast("The expedition ledger is unreadable right now. Try again.")
	}
	res.Progress = viewProgress(rec)

	if res.Profile == nil {
		if p, err := c.profiles.Get(ctx, userID); err == nil {
			res.Profile = p
		} else {
			log.Warn().Err(err).Str("user", userID).Msg("load profile for kv screen")
		}
	}
	if s := c.session(userID); s != nil && s.Active {
		res.Session = viewSession(s, c.now())
	}
	return res
}

// Start opens a new run at the player's current level.
// Preconditions: no active run, level within content, entry cost
// covered. Re-entering while active is a no-op.
func (c *Controller) Start(ctx context.Context, userID string) *ActionResult {
	lk := c.lockPlayer(userID)
	defer lk.Unlock()

	if term := c.reapExpired(ctx, userID); term != nil {
		term.Toast, term.ToastKind = "Time ran out on your previous dig.", ToastInfo
		return term
	}
	if s := c.session(userID); s != nil && s.Active {
		return &ActionResult{
			OK:        true,
			Toast:     "You are already inside the tomb.",
			ToastKind: ToastInfo,
			Session:   viewSession(s, c.now()),
		}
	}

	rec, err := c.progress.Load(ctx, userID)
	if err != nil {
		log.Error().Err(err).Str("user", userID).Msg("load progression for start")
		return failToast("The expedition ledger is unreadable right now. Try again.")
	}
	if rec.CurrentLevel > content.MaxLevel() {
		return failToast("You have opened every tomb in the valley. Nothing left to crack.")
	}
	cfg := content.ConfigFor(rec.CurrentLevel)
	econ := content.Econ()

	p, err := c.profiles.Get(ctx, userID)
	if err != nil {
		log.Error().Err(err).Str("user", userID).Msg("load profile for start")
		return failToast("Your treasury is unreachable right now. Try again.")
	}
	if p.NoubScore < econ.EntryCostNoub {
		return failToast(fmt.Sprintf("Entering costs %d NOUB — you carry only %d.", econ.EntryCostNoub, p.NoubScore))
	}
	newBal := p.NoubScore - econ.EntryCostNoub
	if err := c.profiles.Update(ctx, userID, store.ProfilePatch{NoubScore: &newBal}); err != nil {
		log.Error().Err(err).Str("user", userID).Msg("debit entry cost")
		return failToast("Your treasury is unreachable right now. Try again.")
	}
	p.NoubScore = newBal

	s := newSession(userID, cfg, GenerateCode(c.rng, cfg.Digits), c.now())
	c.setSession(s)
	log.Info().Str("user", userID).Int("level", s.Level).Int("digits", cfg.Digits).Msg("kv run started")

	return &ActionResult{
		OK:        true,
		Toast:     fmt.Sprintf("The seal of KV%d breaks. %d attempts, %d seconds.", s.Level, cfg.Attempts, cfg.TimeSeconds),
		ToastKind: ToastInfo,
		Session:   viewSession(s, c.now()),
		Progress:  viewProgress(rec),
		Profile:   p,
	}
}

// SubmitGuess applies one guess to the active run.
// Malformed guesses are rejected without spending an attempt. Late
// guesses against a finished run are rejected silently.
func (c *Controller) SubmitGuess(ctx context.Context, userID, guess string) *ActionResult {
	lk := c.lockPlayer(userID)
	defer lk.Unlock()

	s := c.session(userID)
	if s == nil || !s.Active {
		return &ActionResult{OK: false}
	}
	if s.Expired(c.now()) {
		term := c.finish(ctx, s, OutcomeTimeout)
		term.Toast, term.ToastKind = "The sand ran out before your answer.", ToastError
		return term
	}

	correct, err := s.ApplyGuess(guess)
	if err != nil {
		switch {
		case errors.Is(err, ErrGuessLength):
			return failWithSession(fmt.Sprintf("The code has exactly %d glyphs.", s.Config.Digits), s, c.now())
		case errors.Is(err, ErrGuessFormat):
			return failWithSession("Glyphs are digits 0-9 only.", s, c.now())
		default:
			return failWithSession("That guess cannot be read.", s, c.now())
		}
	}
	if correct {
		term := c.finish(ctx, s, OutcomeWin)
		if term.Result != nil && term.Result.RewardNoub > 0 {
			term.Toast = fmt.Sprintf("The lock clicks open! +%d NOUB.", term.Result.RewardNoub)
		} else {
			term.Toast = "The lock clicks open!"
		}
		term.ToastKind = ToastSuccess
		return term
	}
	if s.AttemptsLeft <= 0 {
		term := c.finish(ctx, s, OutcomeAttemptsOut)
		term.Toast, term.ToastKind = fmt.Sprintf("No attempts left. The code was %s.", s.Code), ToastError
		return term
	}
	return &ActionResult{
		OK:        true,
		Toast:     fmt.Sprintf("Wrong code. %d attempts remain.", s.AttemptsLeft),
		ToastKind: ToastInfo,
		Session:   viewSession(s, c.now()),
	}
}

// UseHintLastDigit reveals the paid hint, consuming one hint scroll if
// held, otherwise debiting premium currency. Revealing twice is a
// no-op and charges nothing.
func (c *Controller) UseHintLastDigit(ctx context.Context, userID string) *ActionResult {
	lk := c.lockPlayer(userID)
	defer lk.Unlock()

	s := c.session(userID)
	if s == nil || !s.Active {
		return failToast("No dig in progress.")
	}
	if s.Expired(c.now()) {
		term := c.finish(ctx, s, OutcomeTimeout)
		term.Toast, term.ToastKind = "The sand ran out.", ToastError
		return term
	}
	if s.Hint4Revealed {
		return &ActionResult{
			OK:        true,
			Toast:     "The final glyph is already revealed.",
			ToastKind: ToastInfo,
			Session:   viewSession(s, c.now()),
		}
	}

	econ := content.Econ()
	res := c.pay(ctx, userID, ItemHintScroll, econ.HintCostPremium,
		fmt.Sprintf("You need a hint scroll or %d Ankh for the final glyph.", econ.HintCostPremium))
	if res != nil {
		return res
	}
	// Payment landed; the reveal happens with it or not at all.
	s.Hint4Revealed = true

	out := &ActionResult{
		OK:        true,
		Toast:     "The final glyph shimmers into view.",
		ToastKind: ToastSuccess,
		Session:   viewSession(s, c.now()),
	}
	if p, err := c.profiles.Get(ctx, userID); err == nil {
		out.Profile = p
	}
	return out
}

// UseTimeAmulet adds bonus seconds to the running clock, consuming one
// time amulet if held, otherwise debiting premium currency.
func (c *Controller) UseTimeAmulet(ctx context.Context, userID string) *ActionResult {
	lk := c.lockPlayer(userID)
	defer lk.Unlock()

	s := c.session(userID)
	if s == nil || !s.Active {
		return failToast("No dig in progress.")
	}
	if s.Expired(c.now()) {
		term := c.finish(ctx, s, OutcomeTimeout)
		term.Toast, term.ToastKind = "The sand ran out.", ToastError
		return term
	}

	econ := content.Econ()
	res := c.pay(ctx, userID, ItemTimeAmulet, econ.TimeCostPremium,
		fmt.Sprintf("You need a time amulet or %d Ankh to slow the sand.", econ.TimeCostPremium))
	if res != nil {
		return res
	}
	s.ExtendTime(econ.TimeAmuletBonusSeconds)

	out := &ActionResult{
		OK:        true,
		Toast:     fmt.Sprintf("The sand slows. +%d seconds.", econ.TimeAmuletBonusSeconds),
		ToastKind: ToastSuccess,
		Session:   viewSession(s, c.now()),
	}
	if p, err := c.profiles.Get(ctx, userID); err == nil {
		out.Profile = p
	}
	return out
}

// Abort ends the run as a manual loss. The entry cost is not refunded.
// A run that already expired settles as a timeout instead.
func (c *Controller) Abort(ctx context.Context, userID string) *ActionResult {
	lk := c.lockPlayer(userID)
	defer lk.Unlock()

	s := c.session(userID)
	if s == nil || !s.Active {
		return failToast("No dig in progress.")
	}
	outcome := OutcomeAborted
	if s.Expired(c.now()) {
		outcome = OutcomeTimeout
	}
	term := c.finish(ctx, s, outcome)
	term.Toast, term.ToastKind = "You climb back out of the tomb.", ToastInfo
	return term
}

// ------------------------------ payment rule -------------------------------

// paymentChoice is the single place deciding how a purchase is covered:
// one consumable unit when held, premium currency otherwise.
type paymentChoice struct {
	itemKey     string // consumable to decrement; empty when paying premium
	itemQty     int    // quantity observed at choice time
	premiumCost int64
}

// choosePayment inspects the player's resources and picks a source.
// Returns nil when neither source covers the purchase.
func (c *Controller) choosePayment(ctx context.Context, userID, itemKey string, premiumCost int64) (*paymentChoice, error) {
	qty, err := c.consumables.Qty(ctx, userID, itemKey)
	if err != nil {
		return nil, fmt.Errorf("check %s: %w", itemKey, err)
	}
	if qty > 0 {
		return &paymentChoice{itemKey: itemKey, itemQty: qty}, nil
	}
	p, err := c.profiles.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("check premium balance: %w", err)
	}
	if p.AnkhPremium >= premiumCost {
		return &paymentChoice{premiumCost: premiumCost}, nil
	}
	return nil, nil
}

// applyPayment consumes the chosen resource. The caller applies the
// paid-for effect only after this returns nil, which keeps the pair
// atomic from the player's point of view.
func (c *Controller) applyPayment(ctx context.Context, userID string, choice *paymentChoice) error {
	if choice.itemKey != "" {
		return c.consumables.SetQty(ctx, userID, choice.itemKey, choice.itemQty-1)
	}
	p, err := c.profiles.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("reload premium balance: %w", err)
	}
	if p.AnkhPremium < choice.premiumCost {
		return fmt.Errorf("premium balance dropped below %d", choice.premiumCost)
	}
	newBal := p.AnkhPremium - choice.premiumCost
	return c.profiles.Update(ctx, userID, store.ProfilePatch{AnkhPremium: &newBal})
}

// pay runs choose+apply and translates failures into toasts.
// Returns nil when the purchase landed.
func (c *Controller) pay(ctx context.Context, userID, itemKey string, premiumCost int64, insufficientMsg string) *ActionResult {
	choice, err := c.choosePayment(ctx, userID, itemKey, premiumCost)
	if err != nil {
		log.Warn().Err(err).Str("user", userID).Str("item", itemKey).Msg("payment check failed")
		return failToast("The merchant is unreachable right now. Try again.")
	}
	if choice == nil {
		return failToast(insufficientMsg)
	}
	if err := c.applyPayment(ctx, userID, choice); err != nil {
		log.Warn().Err(err).Str("user", userID).Str("item", itemKey).Msg("payment failed")
		return failToast("The merchant is unreachable right now. Try again.")
	}
	return nil
}

// ------------------------------- termination -------------------------------

// finish runs the post-game pipeline for a terminated session and
// assembles the terminal ActionResult. The session is deactivated and
// dropped before any effect runs, so no later tick or call can touch it.
func (c *Controller) finish(ctx context.Context, s *Session, outcome Outcome) *ActionResult {
	now := c.now()

	// Step 1: cancel the timer. Dropping the session is the
	// cancellation; it is idempotent.
	s.Active = false
	c.clearSession(s.UserID)

	econ := content.Econ()
	var (
		reward   int64
		xpGained int64
		xpRes    xp.Result
		rec      *store.ProgressionRecord
		prof     *store.Profile
	)

	steps := []pipelineStep{
		{name: "history", run: func(ctx context.Context) error {
			return c.history.Append(ctx, &store.HistoryEntry{
				UserID:        s.UserID,
				GameType:      GameType,
				Level:         s.Level,
				Result:        outcome.HistoryResult(),
				TimeTakenSecs: s.TimeTaken(now),
				Code:          s.Code,
				CreatedAt:     now,
			})
		}},
		{name: "progression", run: func(ctx context.Context) error {
			var err error
			if outcome.Won() {
				rec, err = c.progress.CommitWin(ctx, s.UserID, s.Level)
			} else {
				rec, err = c.progress.CommitLoss(ctx, s.UserID, s.Level)
			}
			return err
		}},
	}
	if outcome.Won() {
		steps = append(steps,
			pipelineStep{name: "library", run: func(ctx context.Context) error {
				return c.library.Unlock(ctx, s.UserID, fmt.Sprintf("kv%d", s.Level))
			}},
			pipelineStep{name: "reward", run: func(ctx context.Context) error {
				amount := econ.WinRewardBase + int64(s.Level-1)*econ.WinRewardPerLevel
				p, err := c.profiles.Get(ctx, s.UserID)
				if err != nil {
					return fmt.Errorf("load profile for reward: %w", err)
				}
				newBal := p.NoubScore + amount
				if err := c.profiles.Update(ctx, s.UserID, store.ProfilePatch{NoubScore: &newBal}); err != nil {
					return fmt.Errorf("credit reward: %w", err)
				}
				reward = amount
				return nil
			}},
			pipelineStep{name: "xp", run: func(ctx context.Context) error {
				amount := econ.XPWinBase + int64(s.Level-1)*econ.XPWinPerLevel
				res, err := c.xp.Add(ctx, s.UserID, amount)
				if err != nil {
					return err
				}
				xpGained, xpRes = amount, res
				return nil
			}},
		)
	}
	steps = append(steps, pipelineStep{name: "profile refresh", run: func(ctx context.Context) error {
		p, err := c.profiles.Get(ctx, s.UserID)
		if err != nil {
			return err
		}
		prof = p
		return nil
	}})

	runPipeline(ctx, s.UserID, steps)
	log.Info().
		Str("user", s.UserID).
		Int("level", s.Level).
		Str("outcome", string(outcome)).
		Int("timeTaken", s.TimeTaken(now)).
		Msg("kv run finished")

	out := &ActionResult{
		OK:      true,
		Result:  resultFor(s, outcome, now, reward, xpRes, xpGained),
		Profile: prof,
	}
	if rec != nil {
		out.Progress = viewProgress(rec)
	}
	return out
}

// reapExpired settles a leftover expired session, if any, and returns
// its terminal result. Callers hold the player lock.
func (c *Controller) reapExpired(ctx context.Context, userID string) *ActionResult {
	s := c.session(userID)
	if s == nil || !s.Active || !s.Expired(c.now()) {
		return nil
	}
	return c.finish(ctx, s, OutcomeTimeout)
}

// Sweep terminates every expired session server-side, so timeouts are
// recorded even when the player's client is gone. It also reclaims the
// per-player lock entries of players left with no session, keeping the
// registry bounded by the number of active runs.
func (c *Controller) Sweep(ctx context.Context) {
	c.mu.Lock()
	ids := make([]string, 0, len(c.locks))
	for id := range c.locks {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	for _, id := range ids {
		lk := c.lockPlayer(id)
		c.reapExpired(ctx, id)
		c.mu.Lock()
		if c.sessions[id] == nil {
			delete(c.locks, id)
		}
		c.mu.Unlock()
		lk.Unlock()
	}
}

// RunSweeper runs Sweep on a ticker until ctx is cancelled.
func (c *Controller) RunSweeper(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			c.Sweep(ctx)
		}
	}
}

// ----------------------------- session plumbing ----------------------------

func (c *Controller) session(userID string) *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessions[userID]
}

func (c *Controller) setSession(s *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions[s.UserID] = s
}

func (c *Controller) clearSession(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, userID)
}

// lockPlayer acquires the mutex serializing one player's operations and
// returns it locked. Sweep reclaims registry entries for idle players,
// so after acquisition the entry is re-checked; a waiter that won a
// reclaimed mutex retries against the current one.
func (c *Controller) lockPlayer(userID string) *sync.Mutex {
	for {
		c.mu.Lock()
		lk, ok := c.locks[userID]
		if !ok {
			lk = &sync.Mutex{}
			c.locks[userID] = lk
		}
		c.mu.Unlock()

		lk.Lock()
		c.mu.Lock()
		current := c.locks[userID]
		c.mu.Unlock()
		if current == lk {
			return lk
		}
		lk.Unlock()
	}
}

// ------------------------------- small helpers -----------------------------

func failToast(msg string) *ActionResult {
	return &ActionResult{OK: false, Toast: msg, ToastKind: ToastError}
}

func failWithSession(msg string, s *Session, now time.Time) *ActionResult {
	return &ActionResult{OK: false, Toast: msg, ToastKind: ToastError, Session: viewSession(s, now)}
}
