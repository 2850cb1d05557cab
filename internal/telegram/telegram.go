// internal/telegram/telegram.go
//
// Validation of Telegram Mini App init data.
// Responsibilities:
//   - Verify the HMAC-SHA256 signature Telegram attaches to the
//     WebApp's initData query string against the bot token.
//   - Reject stale payloads (auth_date too old).
//   - Extract the signed user object (id, username, first name).
//
// Signature scheme (per the Telegram WebApp contract):
//   secret    = HMAC_SHA256(key="WebAppData", message=botToken)
//   signature = HMAC_SHA256(key=secret, message=dataCheckString)
// where dataCheckString is every key=value pair except "hash", sorted
// by key and joined with newlines.

package telegram

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Validation errors.
var (
	ErrNoHash       = errors.New("init data has no hash")
	ErrBadSignature = errors.New("init data signature mismatch")
	ErrExpired      = errors.New("init data expired")
	ErrNoUser       = errors.New("init data has no user")
)

// User is the signed identity inside initData.
type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
}

// Validate checks an initData query string against the bot token and
// returns the signed user. maxAge bounds auth_date staleness; pass 0
// to skip the age check.
func Validate(initData, botToken string, maxAge time.Duration, now time.Time) (*User, error) {
	values, err := url.ParseQuery(initData)
	if err != nil {
		return nil, fmt.Errorf("parse init data: %w", err)
	}
	gotHash := values.Get("hash")
	if gotHash == "" {
		return nil, ErrNoHash
	}

	// Rebuild the data-check-string: sorted key=value lines, hash excluded.
	keys := make([]string, 0, len(values))
	for k := range values {
		if k != "hash" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+"="+values.Get(k))
	}
	checkString := strings.Join(lines, "\n")

	secret := hmac.New(sha256.New, []byte("WebAppData"))
	secret.Write([]byte(botToken))
	sig := hmac.New(sha256.New, secret.Sum(nil))
	sig.Write([]byte(checkString))
	want := hex.EncodeToString(sig.Sum(nil))
	if !hmac.Equal([]byte(want), []byte(gotHash)) {
		return nil, ErrBadSignature
	}

	if maxAge > 0 {
		authDate, err := strconv.ParseInt(values.Get("auth_date"), 10, 64)
		if err != nil || now.Sub(time.Unix(authDate, 0)) > maxAge {
			return nil, ErrExpired
		}
	}

	rawUser := values.Get("user")
	if rawUser == "" {
		return nil, ErrNoUser
	}
	var u User
	if err := json.Unmarshal([]byte(rawUser), &u); err != nil {
		return nil, fmt.Errorf("parse user: %w", err)
	}
	if u.ID == 0 {
		return nil, ErrNoUser
	}
	return &u, nil
}

// Sign produces the hash for an initData value set. Exported for tests
// and the local bot tooling; production only verifies.
func Sign(values url.Values, botToken string) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		if k != "hash" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+"="+values.Get(k))
	}
	secret := hmac.New(sha256.New, []byte("WebAppData"))
	secret.Write([]byte(botToken))
	sig := hmac.New(sha256.New, secret.Sum(nil))
	sig.Write([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(sig.Sum(nil))
}
