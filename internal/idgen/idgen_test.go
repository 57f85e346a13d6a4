package idgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateWithFixedSource(t *testing.T) {
	g := New(Fixed{Data: []byte("ab")})

	id, err := g.Generate(nil)
	require.NoError(t, err)
	assert.Len(t, id, 6)
	for _, r := range id {
		assert.Contains(t, alphabet, string(r))
	}
}

func TestGenerateRetriesOnCollision(t *testing.T) {
	g := New(&Sequential{})
	seen := map[string]bool{}

	for i := 0; i < 5; i++ {
		id, err := g.Generate(func(candidate string) bool { return seen[candidate] })
		require.NoError(t, err)
		assert.False(t, seen[id])
		seen[id] = true
	}
}

func TestGenerateExhaustsAttempts(t *testing.T) {
	g := New(Fixed{Data: []byte{0}})

	_, err := g.Generate(func(string) bool { return true })
	assert.Error(t, err)
}

func TestUUIDSourceProducesRequestedLength(t *testing.T) {
	b := UUIDSource{}.Bytes(10)
	assert.Len(t, b, 10)
}

func TestDefaultGenerator(t *testing.T) {
	g := Default()
	id, err := g.Generate(nil)
	require.NoError(t, err)
	assert.Len(t, id, 6)
}
