// Package keycode generates short one-time codes for access keys.
//
// Codes must be cryptographically unguessable but short enough for a human to
// type from an email. The alphabet is a configuration detail; callers compare
// codes case-insensitively so the alphabet may be expanded without breaking
// stored keys.
package keycode

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// DefaultAlphabet produces numeric-looking codes matching what the intake
// emails historically sent.
const DefaultAlphabet = "0123456789"

// Generator produces one-time codes. Injected so tests can fix the code.
type Generator interface {
	NextCode(length int) (string, error)
}

// CryptoGenerator draws each character uniformly from its alphabet using
// crypto/rand.
type CryptoGenerator struct {
	alphabet string
}

// Option configures a CryptoGenerator.
type Option func(*CryptoGenerator)

// WithAlphabet overrides the code alphabet.
func WithAlphabet(alphabet string) Option {
	return func(g *CryptoGenerator) {
		if alphabet != "" {
			g.alphabet = alphabet
		}
	}
}

// New constructs a crypto/rand backed generator.
func New(opts ...Option) *CryptoGenerator {
	g := &CryptoGenerator{alphabet: DefaultAlphabet}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// NextCode returns a code of the requested length. rand.Int keeps the draw
// uniform; a modulo over raw bytes would bias short alphabets.
func (g *CryptoGenerator) NextCode(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("code length must be positive, got %d", length)
	}
	max := big.NewInt(int64(len(g.alphabet)))
	buf := make([]byte, length)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("could not generate code: %w", err)
		}
		buf[i] = g.alphabet[n.Int64()]
	}
	return string(buf), nil
}
