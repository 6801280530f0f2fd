// Package tracking generates and validates the public complaint handle.
//
// Format: SEC-YYYY-XXXXX
//
//	SEC   - fixed prefix
//	YYYY  - current 4-digit year
//	XXXXX - 5 characters drawn uniformly from A-Z0-9
//
// Example: "SEC-2026-A3KP7"
//
// Ids are not unique by construction (36^5 per year); the store's unique index
// is the authority and callers retry on collision.
package tracking

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"time"

	"grievance/backend/internal/config"
)

var pattern = regexp.MustCompile(`^` + config.TrackingPrefix + `-\d{4}-[A-Z0-9]{5}$`)

// Generator produces tracking ids.
type Generator interface {
	Generate() string
}

// RandomGenerator draws the suffix from crypto/rand.
type RandomGenerator struct {
	now func() time.Time
}

// Option configures a RandomGenerator.
type Option func(g *RandomGenerator)

// WithClock overrides the clock used for the year component.
func WithClock(now func() time.Time) Option {
	return func(g *RandomGenerator) {
		g.now = now
	}
}

// NewGenerator returns a RandomGenerator using the wall clock.
func NewGenerator(opts ...Option) *RandomGenerator {
	g := &RandomGenerator{now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate returns a fresh tracking id.
func (g *RandomGenerator) Generate() string {
	alphabet := config.TrackingAlphabet
	size := big.NewInt(int64(len(alphabet)))

	var b strings.Builder
	b.Grow(config.TrackingSuffixLength)
	for i := 0; i < config.TrackingSuffixLength; i++ {
		n, err := rand.Int(rand.Reader, size)
		if err != nil {
			// crypto/rand only fails when the OS entropy source is gone.
			panic(fmt.Sprintf("tracking: read random: %v", err))
		}
		b.WriteByte(alphabet[n.Int64()])
	}

	return fmt.Sprintf("%s-%04d-%s", config.TrackingPrefix, g.now().Year(), b.String())
}

// Normalize trims and uppercases user input; lookups are case-insensitive.
func Normalize(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}

// Valid reports whether id is a well-formed, normalized tracking id.
func Valid(id string) bool {
	return pattern.MatchString(id)
}
