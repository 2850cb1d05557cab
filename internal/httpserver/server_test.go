package httpserver

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/noubgame/kv-server/internal/content"
	"github.com/noubgame/kv-server/internal/kv"
	"github.com/noubgame/kv-server/internal/store"
	"github.com/noubgame/kv-server/internal/telegram"
	"github.com/noubgame/kv-server/internal/xp"
)

func TestMain(m *testing.M) {
	if err := content.Init(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

// seqRNG deals digits from a fixed script, so test codes are known.
type seqRNG struct {
	vals []int
	i    int
}

func (r *seqRNG) Intn(n int) int {
	v := r.vals[r.i%len(r.vals)] % n
	r.i++
	return v
}

// newTestServer stands up the full stack on an in-memory database.
func newTestServer(t *testing.T, codeDigits ...int) (*httptest.Server, *sql.DB) {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// In-memory sqlite is per-connection; keep the pool at one.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	schema, err := os.ReadFile(filepath.Join("..", "..", "sql", "001_init.sql"))
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	if _, err := db.Exec(string(schema)); err != nil {
		t.Fatalf("apply migration: %v", err)
	}

	st := store.NewSQLite(db)
	ctrl := kv.NewController(kv.Deps{
		Profiles:    st,
		Consumables: st,
		Progression: st,
		History:     st,
		Library:     st,
		XP:          xp.New(st),
		RNG:         &seqRNG{vals: codeDigits},
	})
	srv := New(db, ctrl, Stores{
		Profiles:    st,
		Consumables: st,
		Progression: st,
		History:     st,
		Library:     st,
	})
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, db
}

// postJSON sends a JSON body and decodes the JSON response into out.
func postJSON(t *testing.T, c *http.Client, rawURL string, body any, out any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	resp, err := c.Post(rawURL, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("POST %s: %v", rawURL, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s response: %v", rawURL, err)
		}
	}
	return resp
}

func getJSON(t *testing.T, c *http.Client, rawURL string, out any) *http.Response {
	t.Helper()
	resp, err := c.Get(rawURL)
	if err != nil {
		t.Fatalf("GET %s: %v", rawURL, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s response: %v", rawURL, err)
		}
	}
	return resp
}

// cookieClient returns a client that keeps the auth cookie across calls.
func cookieClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return &http.Client{Jar: jar}
}

func signup(t *testing.T, c *http.Client, base, username string) string {
	t.Helper()
	var out map[string]any
	resp := postJSON(t, c, base+"/auth/signup", map[string]string{
		"Username": username, "Password": "hunter2hunter2",
	}, &out)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("signup status %d: %v", resp.StatusCode, out)
	}
	id, _ := out["id"].(string)
	if id == "" {
		t.Fatalf("signup returned no id: %v", out)
	}
	return id
}

func TestSignupLoginMe(t *testing.T) {
	ts, _ := newTestServer(t, 1)
	c := cookieClient(t)

	signup(t, c, ts.URL, "scribe")

	var me map[string]any
	if resp := getJSON(t, c, ts.URL+"/auth/me", &me); resp.StatusCode != http.StatusOK {
		t.Fatalf("/auth/me status %d", resp.StatusCode)
	}
	if me["username"] != "scribe" {
		t.Fatalf("me = %v", me)
	}

	// Duplicate username is a conflict.
	if resp := postJSON(t, cookieClient(t), ts.URL+"/auth/signup", map[string]string{
		"Username": "scribe", "Password": "hunter2hunter2",
	}, nil); resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate signup status %d", resp.StatusCode)
	}

	// Fresh client: wrong password rejected, right one accepted.
	c2 := cookieClient(t)
	if resp := postJSON(t, c2, ts.URL+"/auth/login", map[string]string{
		"Username": "scribe", "Password": "wrong-password",
	}, nil); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad login status %d", resp.StatusCode)
	}
	if resp := postJSON(t, c2, ts.URL+"/auth/login", map[string]string{
		"Username": "scribe", "Password": "hunter2hunter2",
	}, nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("login status %d", resp.StatusCode)
	}
}

func TestAuthRequired(t *testing.T) {
	ts, _ := newTestServer(t, 1)
	for _, path := range []string{"/kv/enter", "/kv/start"} {
		resp := postJSON(t, http.DefaultClient, ts.URL+path, map[string]string{}, nil)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("%s without auth: status %d", path, resp.StatusCode)
		}
	}
	if resp := getJSON(t, http.DefaultClient, ts.URL+"/profile/me", nil); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("/profile/me without auth: status %d", resp.StatusCode)
	}
}

func TestKVFlowOverHTTP(t *testing.T) {
	ts, _ := newTestServer(t, 3, 4, 5) // first code is "345"
	c := cookieClient(t)
	signup(t, c, ts.URL, "digger")

	var enter kv.ActionResult
	postJSON(t, c, ts.URL+"/kv/enter", map[string]string{}, &enter)
	if !enter.OK || enter.Progress == nil || enter.Progress.CurrentLevel != 1 {
		t.Fatalf("enter = %+v", enter)
	}

	var start kv.ActionResult
	postJSON(t, c, ts.URL+"/kv/start", map[string]string{}, &start)
	if !start.OK || start.Session == nil || start.Session.Digits != 3 {
		t.Fatalf("start = %+v", start)
	}
	if start.Profile == nil || start.Profile.NoubScore != content.Econ().StartingNoub-content.Econ().EntryCostNoub {
		t.Fatalf("entry cost not debited: %+v", start.Profile)
	}

	var guess kv.ActionResult
	postJSON(t, c, ts.URL+"/kv/guess", map[string]string{"guess": "345"}, &guess)
	if !guess.OK || guess.Result == nil || !guess.Result.Won {
		t.Fatalf("guess = %+v", guess)
	}

	var hist []store.HistoryEntry
	getJSON(t, c, ts.URL+"/kv/history", &hist)
	if len(hist) != 1 || hist[0].Result != store.ResultWin || hist[0].Level != 1 {
		t.Fatalf("history = %+v", hist)
	}

	var me map[string]any
	getJSON(t, c, ts.URL+"/profile/me", &me)
	if me["kvCurrentLevel"] != float64(2) {
		t.Fatalf("profile summary = %v", me)
	}

	var lib []store.LibraryEntry
	getJSON(t, c, ts.URL+"/library", &lib)
	if len(lib) != 1 || lib[0].EntryKey != "kv1" {
		t.Fatalf("library = %+v", lib)
	}

	var board []store.LeaderboardRow
	getJSON(t, c, ts.URL+"/kv/leaderboard", &board)
	if len(board) != 1 || board[0].Username != "digger" || board[0].CurrentLevel != 2 {
		t.Fatalf("leaderboard = %+v", board)
	}
}

func TestProfileItems(t *testing.T) {
	ts, db := newTestServer(t, 1)
	c := cookieClient(t)
	id := signup(t, c, ts.URL, "hoarder")

	st := store.NewSQLite(db)
	if err := st.SetQty(context.Background(), id, kv.ItemHintScroll, 3); err != nil {
		t.Fatalf("seed items: %v", err)
	}

	var items map[string]int
	getJSON(t, c, ts.URL+"/profile/items", &items)
	if items[kv.ItemHintScroll] != 3 || items[kv.ItemTimeAmulet] != 0 {
		t.Fatalf("items = %v", items)
	}
}

func TestTelegramLogin(t *testing.T) {
	const botToken = "12345:TEST_TOKEN"
	t.Setenv("TELEGRAM_BOT_TOKEN", botToken)

	ts, _ := newTestServer(t, 1)
	c := cookieClient(t)

	v := url.Values{}
	v.Set("auth_date", strconv.FormatInt(time.Now().Unix(), 10))
	v.Set("user", `{"id":42,"username":"ramses","first_name":"Ramses"}`)
	v.Set("hash", telegram.Sign(v, botToken))

	var out map[string]any
	resp := postJSON(t, c, ts.URL+"/auth/telegram", map[string]string{"initData": v.Encode()}, &out)
	if resp.StatusCode != http.StatusOK || out["username"] != "ramses" {
		t.Fatalf("telegram login: status %d, body %v", resp.StatusCode, out)
	}
	firstID := out["id"]

	// Same Telegram identity maps onto the same account.
	var again map[string]any
	postJSON(t, c, ts.URL+"/auth/telegram", map[string]string{"initData": v.Encode()}, &again)
	if again["id"] != firstID {
		t.Fatalf("second login made a new account: %v vs %v", again["id"], firstID)
	}

	// The cookie works against protected routes.
	var me map[string]any
	if resp := getJSON(t, c, ts.URL+"/auth/me", &me); resp.StatusCode != http.StatusOK {
		t.Fatalf("/auth/me after telegram login: status %d", resp.StatusCode)
	}

	// Tampered initData is rejected.
	v.Set("user", `{"id":43,"username":"usurper"}`)
	if resp := postJSON(t, cookieClient(t), ts.URL+"/auth/telegram",
		map[string]string{"initData": v.Encode()}, nil); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("tampered initData: status %d", resp.StatusCode)
	}
}
