// Package idgen generates short, workspace-local identifiers for snapshots
// and checkpoints. Entropy is injected so tests can make generation
// deterministic; production draws from google/uuid.
package idgen

import (
	"fmt"

	"github.com/google/uuid"
)

const (
	idLength = 6
	alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
)

// Source supplies raw entropy for identifier generation. Production code
// uses UUIDSource (backed by google/uuid); tests inject a Fixed or
// Sequential source for reproducible ids.
type Source interface {
	// Bytes returns n bytes of entropy.
	Bytes(n int) []byte
}

// UUIDSource draws entropy from freshly generated UUIDs.
type UUIDSource struct{}

// Bytes returns n bytes drawn from one or more UUIDs concatenated together.
func (UUIDSource) Bytes(n int) []byte {
	out := make([]byte, 0, n)
	for len(out) < n {
		id := uuid.New()
		out = append(out, id[:]...)
	}
	return out[:n]
}

// Fixed always returns the same byte sequence, truncated or repeated to
// fill the request.
type Fixed struct {
	Data []byte
}

// Bytes returns n bytes derived from the fixed payload, repeating it as
// needed.
func (f Fixed) Bytes(n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = f.Data[i%len(f.Data)]
	}
	return out
}

// Sequential returns successive integers encoded as bytes, useful for
// generating a distinct, predictable id on every call within a test.
type Sequential struct {
	next uint64
}

// Bytes returns n bytes derived from an incrementing counter.
func (s *Sequential) Bytes(n int) []byte {
	s.next++
	v := s.next
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(v >> (uint(i%8) * 8))
		v = v*2654435761 + 1
	}
	return out
}

// Generator produces 6-character [a-z0-9] identifiers, retrying on
// collision against a caller-supplied predicate.
type Generator struct {
	source Source
}

// New creates a Generator drawing entropy from source.
func New(source Source) *Generator {
	return &Generator{source: source}
}

// Default creates a Generator backed by google/uuid, for production use.
func Default() *Generator {
	return New(UUIDSource{})
}

// Exists reports whether a candidate identifier is already taken. Callers
// pass a closure over their own index/store lookup.
type Exists func(id string) bool

// maxAttempts bounds retry loops so a pathological Exists predicate (or an
// entropy source with too little range) cannot hang id generation forever.
const maxAttempts = 1000

// Generate returns a fresh 6-character identifier not reported as taken by
// exists. It retries on collision up to maxAttempts times.
func (g *Generator) Generate(exists Exists) (string, error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		raw := g.source.Bytes(idLength)
		id := make([]byte, idLength)
		for i, b := range raw {
			id[i] = alphabet[int(b)%len(alphabet)]
		}
		candidate := string(id)
		if exists == nil || !exists(candidate) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("idgen: exhausted %d attempts generating a unique id", maxAttempts)
}
