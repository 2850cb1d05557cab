// internal/httpserver/users.go
//
// User account helpers backed by the users table.
// Responsibilities:
//   - Create password accounts (validated, bcrypt-hashed).
//   - Find or create accounts for Telegram Mini App identities.
//   - Ensure every account has a profile row with the starting
//     balances from the content file.

package httpserver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/noubgame/kv-server/internal/content"
	"github.com/noubgame/kv-server/internal/store"
	"github.com/noubgame/kv-server/internal/telegram"
)

// userRow matches the users table shape.
type userRow struct {
	ID           string
	Username     string
	PasswordHash string
	TgID         int64
	CreatedAt    time.Time
}

// normalizeUsername trims whitespace; adjust here if you want stricter rules.
func normalizeUsername(u string) string {
	return strings.TrimSpace(u)
}

// validateSignup enforces basic username/password rules.
func validateSignup(u, p string) error {
	if len(u) < 3 || len(u) > 24 {
		return errors.New("username must be 3–24 chars")
	}
	for _, r := range u {
		if !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return errors.New("username: letters, numbers, underscore only")
		}
	}
	if len(p) < 8 || len(p) > 100 {
		return errors.New("password must be 8–100 chars")
	}
	return nil
}

// checkPassword is a bcrypt verifier.
func checkPassword(hash, pw string) bool {
	return hash != "" && bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

// createUser validates input, checks uniqueness, hashes the password,
// inserts the user and seeds its profile.
func (s *Server) createUser(ctx context.Context, username, pw string) (*userRow, error) {
	username = normalizeUsername(username)
	if err := validateSignup(username, pw); err != nil {
		return nil, err
	}
	var exists int
	_ = s.db.QueryRow(`SELECT 1 FROM users WHERE lower(username)=lower(?)`, username).Scan(&exists)
	if exists == 1 {
		return nil, errors.New("username taken")
	}
	h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	id := uuid.NewString()
	if _, err := s.db.Exec(`INSERT INTO users (id, username, password_hash, created_at) VALUES (?,?,?,?)`,
		id, username, string(h), now.Format(time.RFC3339)); err != nil {
		return nil, err
	}
	if err := s.ensureProfile(ctx, id); err != nil {
		return nil, err
	}
	return &userRow{ID: id, Username: username, PasswordHash: string(h), CreatedAt: now}, nil
}

// findOrCreateTelegramUser maps a signed Telegram identity onto a user
// row, creating account and profile on first login.
func (s *Server) findOrCreateTelegramUser(ctx context.Context, tg *telegram.User) (*userRow, error) {
	row := s.db.QueryRow(`SELECT id, username, COALESCE(password_hash,''), COALESCE(tg_id,0), created_at
	                      FROM users WHERE tg_id=?`, tg.ID)
	u, err := scanUser(row)
	if err == nil {
		return u, s.ensureProfile(ctx, u.ID)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	username := tg.Username
	if username == "" {
		username = fmt.Sprintf("tg%d", tg.ID)
	}
	// Usernames collide across auth paths; fall back to the tg-prefixed one.
	var taken int
	_ = s.db.QueryRow(`SELECT 1 FROM users WHERE lower(username)=lower(?)`, username).Scan(&taken)
	if taken == 1 {
		username = fmt.Sprintf("tg%d", tg.ID)
	}

	now := time.Now().UTC()
	id := uuid.NewString()
	if _, err := s.db.Exec(`INSERT INTO users (id, username, tg_id, created_at) VALUES (?,?,?,?)`,
		id, username, tg.ID, now.Format(time.RFC3339)); err != nil {
		return nil, err
	}
	if err := s.ensureProfile(ctx, id); err != nil {
		return nil, err
	}
	return &userRow{ID: id, Username: username, TgID: tg.ID, CreatedAt: now}, nil
}

// findUserByUsername/ID load a user row or return an error if missing.
func (s *Server) findUserByUsername(username string) (*userRow, error) {
	row := s.db.QueryRow(`SELECT id, username, COALESCE(password_hash,''), COALESCE(tg_id,0), created_at
	                      FROM users WHERE lower(username)=lower(?)`, username)
	return scanUser(row)
}
func (s *Server) findUserByID(id string) (*userRow, error) {
	row := s.db.QueryRow(`SELECT id, username, COALESCE(password_hash,''), COALESCE(tg_id,0), created_at
	                      FROM users WHERE id=?`, id)
	return scanUser(row)
}

// scanUser converts a *sql.Row into a userRow.
func scanUser(row *sql.Row) (*userRow, error) {
	var u userRow
	var created string
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.TgID, &created); err != nil {
		return nil, err
	}
	u.CreatedAt = mustParse(created)
	return &u, nil
}

// mustParse parses RFC3339 timestamps; on error returns zero time.
func mustParse(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

// ensureProfile creates the profile row with starting balances on
// first sight of an account. Safe to call repeatedly.
func (s *Server) ensureProfile(ctx context.Context, userID string) error {
	_, err := s.st.Profiles.Get(ctx, userID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	econ := content.Econ()
	return s.st.Profiles.Create(ctx, &store.Profile{
		UserID:      userID,
		NoubScore:   econ.StartingNoub,
		AnkhPremium: econ.StartingAnkh,
		Level:       1,
	})
}
