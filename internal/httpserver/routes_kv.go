// internal/httpserver/routes_kv.go
//
// HTTP routes for the KV (Valley of the Kings) code-cracking game.
// Exposes, under /kv (all require auth):
//   - POST /kv/enter   → load progression + idle panel (idempotent)
//   - POST /kv/start   → open a run at the player's current level
//   - POST /kv/guess   → submit a guess
//   - POST /kv/hint    → buy the last-digit hint (scroll first, Ankh fallback)
//   - POST /kv/amulet  → buy +45s (amulet first, Ankh fallback)
//   - POST /kv/abort   → give up (no refund)
//   - GET  /kv/history → the player's recent KV games
//   - GET  /kv/leaderboard → top players by level
//
// Game-rule failures come back as 200 with ok=false and a toast; the
// controller never raises them as transport errors.

package httpserver

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/noubgame/kv-server/internal/kv"
)

// mountKV registers all /kv routes on an auth-gated router.
func (s *Server) mountKV(r chi.Router) {
	r.Route("/kv", func(r chi.Router) {
		r.Post("/enter", s.kvAction(func(req *http.Request, userID string) *kv.ActionResult {
			return s.ctrl.EnterScreen(req.Context(), userID)
		}))
		r.Post("/start", s.kvAction(func(req *http.Request, userID string) *kv.ActionResult {
			return s.ctrl.Start(req.Context(), userID)
		}))
		r.Post("/guess", s.handleKVGuess)
		r.Post("/hint", s.kvAction(func(req *http.Request, userID string) *kv.ActionResult {
			return s.ctrl.UseHintLastDigit(req.Context(), userID)
		}))
		r.Post("/amulet", s.kvAction(func(req *http.Request, userID string) *kv.ActionResult {
			return s.ctrl.UseTimeAmulet(req.Context(), userID)
		}))
		r.Post("/abort", s.kvAction(func(req *http.Request, userID string) *kv.ActionResult {
			return s.ctrl.Abort(req.Context(), userID)
		}))
		r.Get("/history", s.handleKVHistory)
		r.Get("/leaderboard", s.handleKVLeaderboard)
	})
}

// kvAction adapts a controller call into a handler.
func (s *Server) kvAction(call func(r *http.Request, userID string) *kv.ActionResult) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		me := currentUser(r)
		if me == nil {
			http.Error(w, `{"error":"Unauthorized"}`, http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(call(r, me.ID))
	}
}

// kvGuessReq is the request payload for /kv/guess.
type kvGuessReq struct {
	Guess string `json:"guess"`
}

// handleKVGuess decodes the guess payload and applies it.
func (s *Server) handleKVGuess(w http.ResponseWriter, r *http.Request) {
	me := currentUser(r)
	if me == nil {
		http.Error(w, `{"error":"Unauthorized"}`, http.StatusUnauthorized)
		return
	}
	var p kvGuessReq
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, `{"error":"bad_json"}`, http.StatusBadRequest)
		return
	}
	_ = json.NewEncoder(w).Encode(s.ctrl.SubmitGuess(r.Context(), me.ID, p.Guess))
}

// handleKVHistory returns the player's recent KV games, newest first.
func (s *Server) handleKVHistory(w http.ResponseWriter, r *http.Request) {
	me := currentUser(r)
	if me == nil {
		http.Error(w, `{"error":"Unauthorized"}`, http.StatusUnauthorized)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	rows, err := s.st.History.Recent(r.Context(), me.ID, limit)
	if err != nil {
		http.Error(w, `{"error":"db_error"}`, http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(rows)
}

// handleKVLeaderboard returns the top diggers by current level.
func (s *Server) handleKVLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	rows, err := s.st.Progression.Leaderboard(r.Context(), limit)
	if err != nil {
		http.Error(w, `{"error":"db_error"}`, http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(rows)
}
