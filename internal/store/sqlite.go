// internal/store/sqlite.go
//
// SQLite-backed implementation of the persistence interfaces.
// Responsibilities:
//   - Profiles / consumables / progression / history / library rows,
//     matching the schema in ./sql migrations.
//   - unlocked_levels is persisted as a JSON array blob; a malformed
//     blob is repaired to the empty set (logged, never surfaced).
//   - Library unlocks use INSERT OR IGNORE so duplicates are absorbed.
//
// Timestamps are stored as RFC3339 strings, matching the rest of the
// schema.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// SQLite implements every store interface over a *sql.DB handle.
type SQLite struct {
	db *sql.DB
}

// NewSQLite wraps an opened (and migrated) database handle.
func NewSQLite(db *sql.DB) *SQLite { return &SQLite{db: db} }

// --------------------------------- Profiles --------------------------------

func (s *SQLite) Get(ctx context.Context, userID string) (*Profile, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT user_id, noub_score, ankh_premium, xp, level, updated_at
        FROM profiles WHERE user_id=?`, userID)
	var p Profile
	var updated string
	if err := row.Scan(&p.UserID, &p.NoubScore, &p.AnkhPremium, &p.XP, &p.Level, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	p.UpdatedAt = parseTS(updated)
	return &p, nil
}

func (s *SQLite) Create(ctx context.Context, p *Profile) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO profiles (user_id, noub_score, ankh_premium, xp, level, updated_at)
        VALUES (?,?,?,?,?,?)`,
		p.UserID, p.NoubScore, p.AnkhPremium, p.XP, p.Level, now)
	if err != nil {
		return fmt.Errorf("create profile: %w", err)
	}
	return nil
}

func (s *SQLite) Update(ctx context.Context, userID string, patch ProfilePatch) error {
	sets := []string{}
	args := []any{}
	if patch.NoubScore != nil {
		sets, args = append(sets, "noub_score=?"), append(args, *patch.NoubScore)
	}
	if patch.AnkhPremium != nil {
		sets, args = append(sets, "ankh_premium=?"), append(args, *patch.AnkhPremium)
	}
	if patch.XP != nil {
		sets, args = append(sets, "xp=?"), append(args, *patch.XP)
	}
	if patch.Level != nil {
		sets, args = append(sets, "level=?"), append(args, *patch.Level)
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at=?")
	args = append(args, time.Now().UTC().Format(time.RFC3339), userID)
	res, err := s.db.ExecContext(ctx,
		`UPDATE profiles SET `+strings.Join(sets, ", ")+` WHERE user_id=?`, args...)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ------------------------------- Consumables -------------------------------

func (s *SQLite) Qty(ctx context.Context, userID, itemKey string) (int, error) {
	var qty int
	err := s.db.QueryRowContext(ctx,
		`SELECT qty FROM consumables WHERE user_id=? AND item_key=?`,
		userID, itemKey).Scan(&qty)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get qty: %w", err)
	}
	return qty, nil
}

func (s *SQLite) SetQty(ctx context.Context, userID, itemKey string, qty int) error {
	if qty < 0 {
		return fmt.Errorf("set qty %s/%s: negative quantity %d", userID, itemKey, qty)
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO consumables (user_id, item_key, qty) VALUES (?,?,?)
        ON CONFLICT(user_id, item_key) DO UPDATE SET qty=excluded.qty`,
		userID, itemKey, qty)
	if err != nil {
		return fmt.Errorf("set qty: %w", err)
	}
	return nil
}

// ------------------------------- Progression -------------------------------

func (s *SQLite) Fetch(ctx context.Context, userID string) (*ProgressionRecord, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT current_level, unlocked_levels, last_result
        FROM kv_progress WHERE user_id=?`, userID)
	var rec ProgressionRecord
	var blob string
	var lastResult sql.NullString
	if err := row.Scan(&rec.CurrentLevel, &blob, &lastResult); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch progression: %w", err)
	}
	rec.LastResult = lastResult.String
	rec.Unlocked = decodeUnlocked(userID, blob)
	return &rec, nil
}

func (s *SQLite) Upsert(ctx context.Context, userID string, rec *ProgressionRecord) error {
	blob, err := json.Marshal(rec.Unlocked)
	if err != nil {
		return fmt.Errorf("encode unlocked levels: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err = s.db.ExecContext(ctx, `
        INSERT INTO kv_progress (user_id, current_level, unlocked_levels, last_result, updated_at)
        VALUES (?,?,?,?,?)
        ON CONFLICT(user_id) DO UPDATE SET
            current_level=excluded.current_level,
            unlocked_levels=excluded.unlocked_levels,
            last_result=excluded.last_result,
            updated_at=excluded.updated_at`,
		userID, rec.CurrentLevel, string(blob), nullIfEmpty(rec.LastResult), now)
	if err != nil {
		return fmt.Errorf("upsert progression: %w", err)
	}
	return nil
}

func (s *SQLite) Leaderboard(ctx context.Context, limit int) ([]LeaderboardRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT p.user_id, COALESCE(u.username,''), p.current_level, p.unlocked_levels
        FROM kv_progress p LEFT JOIN users u ON u.id = p.user_id
        ORDER BY p.current_level DESC, p.updated_at ASC
        LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	defer rows.Close()

	out := make([]LeaderboardRow, 0, limit)
	for rows.Next() {
		var r LeaderboardRow
		var blob string
		if err := rows.Scan(&r.UserID, &r.Username, &r.CurrentLevel, &blob); err != nil {
			return nil, err
		}
		r.Wins = len(decodeUnlocked(r.UserID, blob))
		out = append(out, r)
	}
	return out, rows.Err()
}

// decodeUnlocked parses the JSON array blob. A malformed blob is treated
// as the empty set; the next Upsert rewrites it in canonical form.
func decodeUnlocked(userID, blob string) []int {
	if blob == "" {
		return []int{}
	}
	var levels []int
	if err := json.Unmarshal([]byte(blob), &levels); err != nil {
		log.Warn().Err(err).Str("user", userID).Msg("repairing malformed unlocked_levels blob")
		return []int{}
	}
	return levels
}

// --------------------------------- History ---------------------------------

func (s *SQLite) Append(ctx context.Context, e *HistoryEntry) error {
	id := e.ID
	if id == "" {
		id = uuid.NewString()
	}
	created := e.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO game_history (id, user_id, game_type, level, result, time_taken_secs, code, created_at)
        VALUES (?,?,?,?,?,?,?,?)`,
		id, e.UserID, e.GameType, e.Level, e.Result, e.TimeTakenSecs, e.Code,
		created.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

func (s *SQLite) Recent(ctx context.Context, userID string, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, user_id, game_type, level, result, time_taken_secs, code, created_at
        FROM game_history WHERE user_id=?
        ORDER BY created_at DESC, id DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent history: %w", err)
	}
	defer rows.Close()

	out := make([]HistoryEntry, 0, limit)
	for rows.Next() {
		var e HistoryEntry
		var created string
		if err := rows.Scan(&e.ID, &e.UserID, &e.GameType, &e.Level, &e.Result,
			&e.TimeTakenSecs, &e.Code, &created); err != nil {
			return nil, err
		}
		e.CreatedAt = parseTS(created)
		out = append(out, e)
	}
	return out, rows.Err()
}

// --------------------------------- Library ---------------------------------

func (s *SQLite) Unlock(ctx context.Context, userID, entryKey string) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT OR IGNORE INTO library_entries (user_id, entry_key, unlocked_at)
        VALUES (?,?,?)`,
		userID, entryKey, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("unlock library entry: %w", err)
	}
	return nil
}

func (s *SQLite) Entries(ctx context.Context, userID string) ([]LibraryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT entry_key, unlocked_at FROM library_entries
        WHERE user_id=? ORDER BY unlocked_at ASC, entry_key ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("library entries: %w", err)
	}
	defer rows.Close()

	var out []LibraryEntry
	for rows.Next() {
		var e LibraryEntry
		var at string
		if err := rows.Scan(&e.EntryKey, &at); err != nil {
			return nil, err
		}
		e.UnlockedAt = parseTS(at)
		out = append(out, e)
	}
	return out, rows.Err()
}

// ------------------------------- small helpers -----------------------------

// parseTS parses RFC3339 timestamps; on error returns zero time.
func parseTS(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

// nullIfEmpty maps "" to SQL NULL for nullable text columns.
func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
