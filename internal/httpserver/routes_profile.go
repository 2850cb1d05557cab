// internal/httpserver/routes_profile.go
//
// Profile, consumable and library pages (require auth):
//   - GET /profile/me     → currencies, XP/level, KV progression summary
//   - GET /profile/items  → consumable quantities the KV game spends
//   - GET /library        → unlocked library entries

package httpserver

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/noubgame/kv-server/internal/kv"
)

// mountProfile registers the profile and library routes.
func (s *Server) mountProfile(r chi.Router) {
	r.Get("/profile/me", s.handleProfileMe)
	r.Get("/profile/items", s.handleProfileItems)
	r.Get("/library", s.handleLibrary)
}

// handleProfileMe returns the player's profile plus progression summary.
func (s *Server) handleProfileMe(w http.ResponseWriter, r *http.Request) {
	me := currentUser(r)
	if me == nil {
		http.Error(w, `{"error":"Unauthorized"}`, http.StatusUnauthorized)
		return
	}
	p, err := s.st.Profiles.Get(r.Context(), me.ID)
	if err != nil {
		http.Error(w, `{"error":"not_found"}`, http.StatusInternalServerError)
		return
	}
	out := map[string]any{
		"id":          me.ID,
		"username":    me.Username,
		"noubScore":   p.NoubScore,
		"ankhPremium": p.AnkhPremium,
		"xp":          p.XP,
		"level":       p.Level,
	}
	if rec, err := s.st.Progression.Fetch(r.Context(), me.ID); err == nil && rec != nil {
		out["kvCurrentLevel"] = rec.CurrentLevel
		out["kvCleared"] = len(rec.Unlocked)
	} else if err != nil {
		log.Warn().Err(err).Str("user", me.ID).Msg("progression summary")
	}
	_ = json.NewEncoder(w).Encode(out)
}

// handleProfileItems returns the quantities of the KV consumables.
func (s *Server) handleProfileItems(w http.ResponseWriter, r *http.Request) {
	me := currentUser(r)
	if me == nil {
		http.Error(w, `{"error":"Unauthorized"}`, http.StatusUnauthorized)
		return
	}
	out := map[string]int{}
	for _, key := range []string{kv.ItemHintScroll, kv.ItemTimeAmulet} {
		qty, err := s.st.Consumables.Qty(r.Context(), me.ID, key)
		if err != nil {
			http.Error(w, `{"error":"db_error"}`, http.StatusInternalServerError)
			return
		}
		out[key] = qty
	}
	_ = json.NewEncoder(w).Encode(out)
}

// handleLibrary lists the player's unlocked library entries.
func (s *Server) handleLibrary(w http.ResponseWriter, r *http.Request) {
	me := currentUser(r)
	if me == nil {
		http.Error(w, `{"error":"Unauthorized"}`, http.StatusUnauthorized)
		return
	}
	entries, err := s.st.Library.Entries(r.Context(), me.ID)
	if err != nil {
		http.Error(w, `{"error":"db_error"}`, http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(entries)
}
