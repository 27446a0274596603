package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/stigmergy/internal/auction"
)

var (
	_ auction.RoundIDGenerator = (*SequentialIDs)(nil)
	_ auction.RoundIDGenerator = (*FixedIDs)(nil)
	_ auction.Sequencer        = (*DeterministicClock)(nil)
)

func TestSequentialIDs(t *testing.T) {
	gen := NewSequentialIDs("")
	assert.Equal(t, "round-0001", gen.Generate())
	assert.Equal(t, "round-0002", gen.Generate())

	gen.Reset()
	assert.Equal(t, "round-0001", gen.Generate())

	assert.Equal(t, "heal-0001", NewSequentialIDs("heal").Generate())
}

func TestFixedIDs(t *testing.T) {
	gen := NewFixedIDs("a", "b")
	assert.Equal(t, "a", gen.Generate())
	assert.Equal(t, "b", gen.Generate())
	assert.Panics(t, func() { gen.Generate() })
}

func TestOpenStore(t *testing.T) {
	s := OpenStore(t)
	ok, err := s.EntityExists(context.Background(), [32]byte{1})
	assert.NoError(t, err)
	assert.False(t, ok)
}
