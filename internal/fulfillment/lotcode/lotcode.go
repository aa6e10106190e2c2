// Package lotcode generates unique, sortable lot codes for newly received
// lots. A code is <PREFIX><YYYYMMDDHHmm><SUFFIX>: the timestamp gives coarse
// chronological ordering and human traceability, the random suffix resolves
// collisions within the same minute. Uniqueness is ultimately enforced by the
// ledger's insertion check, not here; the generator only makes collisions
// statistically rare.
package lotcode

import (
	"math/rand"
	"strings"
	"sync"
	"time"
)

// codeAlphabet omits I and O, which scan ambiguously against 1 and 0 on
// printed labels.
const codeAlphabet = "0123456789ABCDEFGHJKLMNPQRSTUVWXYZ"

const timestampLayout = "200601021504"

// DefaultSuffixLength is used when no suffix length is configured
const DefaultSuffixLength = 4

// Generator produces lot codes. Safe for concurrent use.
type Generator struct {
	prefix    string
	suffixLen int

	mu  sync.Mutex
	rng *rand.Rand
}

// NewGenerator creates a generator with the given prefix and suffix length
func NewGenerator(prefix string, suffixLen int) *Generator {
	if suffixLen <= 0 {
		suffixLen = DefaultSuffixLength
	}
	return &Generator{
		prefix:    prefix,
		suffixLen: suffixLen,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// NewGeneratorWithSeed creates a generator with a fixed seed. Tests use this
// to make collision behavior reproducible.
func NewGeneratorWithSeed(prefix string, suffixLen int, seed int64) *Generator {
	g := NewGenerator(prefix, suffixLen)
	g.rng = rand.New(rand.NewSource(seed))
	return g
}

// NewLotCode produces a fresh lot code for the given timestamp
func (g *Generator) NewLotCode(now time.Time) string {
	var b strings.Builder
	b.Grow(len(g.prefix) + len(timestampLayout) + g.suffixLen)
	b.WriteString(g.prefix)
	b.WriteString(now.UTC().Format(timestampLayout))

	g.mu.Lock()
	for i := 0; i < g.suffixLen; i++ {
		b.WriteByte(codeAlphabet[g.rng.Intn(len(codeAlphabet))])
	}
	g.mu.Unlock()

	return b.String()
}

// Prefix returns the configured prefix
func (g *Generator) Prefix() string {
	return g.prefix
}
