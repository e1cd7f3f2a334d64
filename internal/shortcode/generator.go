// Package shortcode generates collision-free short codes.
package shortcode

import (
	"crypto/rand"
	"errors"
	"io"
	"math/big"
	"strings"
)

const (
	// Alphabet is the 62-symbol set codes are drawn from.
	Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	// DefaultLength is the length of generated codes.
	DefaultLength = 6

	// DefaultMaxAttempts bounds redraws before giving up.
	DefaultMaxAttempts = 64
)

// ErrCodeSpaceExhausted is returned when no free code was found within the attempt budget.
var ErrCodeSpaceExhausted = errors.New("short code space exhausted")

// Generator draws random codes until one is absent from a taken set.
type Generator struct {
	length      int
	maxAttempts int
	random      io.Reader
}

// Option configures a Generator.
type Option func(*Generator)

// WithLength sets the generated code length.
func WithLength(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.length = n
		}
	}
}

// WithMaxAttempts sets the redraw budget.
func WithMaxAttempts(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.maxAttempts = n
		}
	}
}

// WithRandom replaces the crypto/rand source. Used by tests.
func WithRandom(r io.Reader) Option {
	return func(g *Generator) {
		g.random = r
	}
}

// NewGenerator creates a Generator with defaults applied before opts.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		length:      DefaultLength,
		maxAttempts: DefaultMaxAttempts,
		random:      rand.Reader,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate returns a code whose lower-cased form is not in existing.
// existing must hold lower-cased codes.
func (g *Generator) Generate(existing map[string]struct{}) (string, error) {
	for i := 0; i < g.maxAttempts; i++ {
		code, err := g.draw()
		if err != nil {
			return "", err
		}
		if _, taken := existing[strings.ToLower(code)]; !taken {
			return code, nil
		}
	}
	return "", ErrCodeSpaceExhausted
}

// draw picks each character uniformly from Alphabet.
func (g *Generator) draw() (string, error) {
	b := make([]byte, g.length)
	max := big.NewInt(int64(len(Alphabet)))
	for i := range b {
		n, err := rand.Int(g.random, max)
		if err != nil {
			return "", err
		}
		b[i] = Alphabet[n.Int64()]
	}
	return string(b), nil
}
