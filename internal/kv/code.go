// internal/kv/code.go
//
// Secret-code generation and hint derivation for the KV game.
// Responsibilities:
//   - Generate an n-digit secret code, each digit uniform in 0..9
//     (leading zeros allowed).
//   - Derive the four hints shown to the player: digit sum, digit
//     product, odd/even counts, and the last digit.
//
// Notes:
//   - The random source is an interface so tests can script codes;
//     production uses crypto/rand.
//   - Hints 1-3 (sum, product, parity counts) are free and visible from
//     session start; the last digit is the paid hint.

package kv

import (
	"crypto/rand"
	"math/big"
	"strings"
)

// RNG is the random source used for code generation.
type RNG interface {
	// Intn returns a uniform value in [0, n).
	Intn(n int) int
}

// cryptoRNG draws from crypto/rand.
type cryptoRNG struct{}

func (cryptoRNG) Intn(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		// crypto/rand failing means the platform is broken; give up loudly.
		panic("kv: crypto/rand unavailable: " + err.Error())
	}
	return int(v.Int64())
}

// CryptoRNG returns the production random source.
func CryptoRNG() RNG { return cryptoRNG{} }

// GenerateCode produces a code of exactly `digits` decimal digits.
// Caller guarantees digits >= 1 (the level config table does).
func GenerateCode(rng RNG, digits int) string {
	var b strings.Builder
	b.Grow(digits)
	for i := 0; i < digits; i++ {
		b.WriteByte(byte('0' + rng.Intn(10)))
	}
	return b.String()
}

// Hints are the scalar clues derived from a secret code.
type Hints struct {
	Sum       int `json:"sum"`
	Product   int `json:"product"`
	OddCount  int `json:"oddCount"`
	EvenCount int `json:"evenCount"`
	LastDigit int `json:"-"` // paid hint, exposed only after purchase
}

// DeriveHints computes all hints for a code. Deterministic.
func DeriveHints(code string) Hints {
	h := Hints{Product: 1}
	for i := 0; i < len(code); i++ {
		d := int(code[i] - '0')
		h.Sum += d
		h.Product *= d
		if d%2 == 0 {
			h.EvenCount++
		} else {
			h.OddCount++
		}
	}
	h.LastDigit = int(code[len(code)-1] - '0')
	return h
}

// isDigits checks that a string consists only of ASCII digits 0-9.
func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return len(s) > 0
}
