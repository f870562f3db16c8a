package token

import (
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

// IDGenerator produces version-4 shaped identifiers from a pseudo-random source.
// The source is not cryptographic; identifiers are only collision resistant.
type IDGenerator struct {
	mu sync.Mutex
	r  io.Reader
}

// NewIDGenerator returns a generator reading from r. A nil r uses a
// math/rand source seeded from the clock.
func NewIDGenerator(r io.Reader) *IDGenerator {
	if r == nil {
		r = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &IDGenerator{r: r}
}

// New returns a new identifier in 8-4-4-4-12 lowercase hex form.
// The version nibble is always 4 and the variant nibble is one of 8, 9, a, b.
func (g *IDGenerator) New() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id, err := uuid.NewRandomFromReader(g.r)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
