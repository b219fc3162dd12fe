package utils

import (
	"io"
	"math/rand"
)

// seededRand reads pseudo-random bytes, covering all the byte values.
type seededRand struct {
	rnd *rand.Rand
}

// NewSeededRand returns a random bytes reader initialized with the given seed.
// Two readers with the same seed give the same bytes.
func NewSeededRand(seed int64) io.Reader {
	return &seededRand{rnd: rand.New(rand.NewSource(seed))}
}

func (r *seededRand) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = byte(r.rnd.Intn(256))
	}
	return len(p), nil
}
