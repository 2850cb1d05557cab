// internal/store/memory.go
//
// In-memory implementation of the persistence interfaces.
// This is a lightweight layer used for unit tests and ephemeral
// development runs, when durability is not required.
//
// Characteristics:
//   - One Memory value implements Profiles, Consumables, Progression,
//     History and Library.
//   - Concurrency-safe via RWMutex (concurrent reads allowed, writes exclusive).
//   - State is lost when the process restarts.
//   - Hands out copies so callers cannot mutate cached rows.

package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Memory is a map-backed implementation of every store interface.
type Memory struct {
	mu          sync.RWMutex
	profiles    map[string]Profile
	consumables map[string]map[string]int // userID → itemKey → qty
	progression map[string]*ProgressionRecord
	history     []HistoryEntry
	library     map[string]map[string]time.Time // userID → entryKey → unlockedAt
}

// NewMemory constructs an empty in-memory store bundle.
func NewMemory() *Memory {
	return &Memory{
		profiles:    make(map[string]Profile),
		consumables: make(map[string]map[string]int),
		progression: make(map[string]*ProgressionRecord),
		library:     make(map[string]map[string]time.Time),
	}
}

// --------------------------------- Profiles --------------------------------

func (m *Memory) Get(ctx context.Context, userID string) (*Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[userID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := p
	return &cp, nil
}

func (m *Memory) Create(ctx context.Context, p *Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.profiles[p.UserID]; ok {
		return fmt.Errorf("profile %s: already exists", p.UserID)
	}
	cp := *p
	cp.UpdatedAt = time.Now().UTC()
	m.profiles[p.UserID] = cp
	return nil
}

func (m *Memory) Update(ctx context.Context, userID string, patch ProfilePatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return ErrNotFound
	}
	if patch.NoubScore != nil {
		p.NoubScore = *patch.NoubScore
	}
	if patch.AnkhPremium != nil {
		p.AnkhPremium = *patch.AnkhPremium
	}
	if patch.XP != nil {
		p.XP = *patch.XP
	}
	if patch.Level != nil {
		p.Level = *patch.Level
	}
	p.UpdatedAt = time.Now().UTC()
	m.profiles[userID] = p
	return nil
}

// ------------------------------- Consumables -------------------------------

func (m *Memory) Qty(ctx context.Context, userID, itemKey string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.consumables[userID][itemKey], nil
}

func (m *Memory) SetQty(ctx context.Context, userID, itemKey string, qty int) error {
	if qty < 0 {
		return fmt.Errorf("set qty %s/%s: negative quantity %d", userID, itemKey, qty)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.consumables[userID] == nil {
		m.consumables[userID] = make(map[string]int)
	}
	m.consumables[userID][itemKey] = qty
	return nil
}

// ------------------------------- Progression -------------------------------

func (m *Memory) Fetch(ctx context.Context, userID string) (*ProgressionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.progression[userID]
	if !ok {
		return nil, nil
	}
	return r.Clone(), nil
}

func (m *Memory) Upsert(ctx context.Context, userID string, rec *ProgressionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.progression[userID] = rec.Clone()
	return nil
}

func (m *Memory) Leaderboard(ctx context.Context, limit int) ([]LeaderboardRow, error) {
	if limit <= 0 {
		limit = 20
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	rows := make([]LeaderboardRow, 0, len(m.progression))
	for uid, r := range m.progression {
		rows = append(rows, LeaderboardRow{
			UserID:       uid,
			Username:     uid, // no users table in memory; tests key by ID
			CurrentLevel: r.CurrentLevel,
			Wins:         len(r.Unlocked),
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].CurrentLevel != rows[j].CurrentLevel {
			return rows[i].CurrentLevel > rows[j].CurrentLevel
		}
		return rows[i].UserID < rows[j].UserID
	})
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

// --------------------------------- History ---------------------------------

func (m *Memory) Append(ctx context.Context, e *HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	m.history = append(m.history, cp)
	return nil
}

func (m *Memory) Recent(ctx context.Context, userID string, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []HistoryEntry
	for i := len(m.history) - 1; i >= 0 && len(out) < limit; i-- {
		if m.history[i].UserID == userID {
			out = append(out, m.history[i])
		}
	}
	return out, nil
}

// --------------------------------- Library ---------------------------------

func (m *Memory) Unlock(ctx context.Context, userID, entryKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.library[userID] == nil {
		m.library[userID] = make(map[string]time.Time)
	}
	// Second unlock of the same key is absorbed.
	if _, ok := m.library[userID][entryKey]; !ok {
		m.library[userID][entryKey] = time.Now().UTC()
	}
	return nil
}

func (m *Memory) Entries(ctx context.Context, userID string) ([]LibraryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]LibraryEntry, 0, len(m.library[userID]))
	for k, at := range m.library[userID] {
		out = append(out, LibraryEntry{EntryKey: k, UnlockedAt: at})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntryKey < out[j].EntryKey })
	return out, nil
}
