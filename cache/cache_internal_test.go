package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsert_PanicsOnCorruptBookkeeping(t *testing.T) {
	c, err := New[int](DefaultPolicy())
	require.NoError(t, err)

	c.items["ghost"] = nil

	assert.Panics(t, func() { c.insert("a", 1, nil) })
}

func TestRemove_PanicsOnUnindexedElement(t *testing.T) {
	c, err := New[int](DefaultPolicy())
	require.NoError(t, err)

	el := c.order.PushFront(&entry[int]{key: "stray"})

	assert.Panics(t, func() { c.remove(el, ReasonInvalidated) })
}

func TestInsert_SkipsGroundedFlight(t *testing.T) {
	c, err := New[int](DefaultPolicy())
	require.NoError(t, err)

	f := &flight{}
	c.flights["a"] = f
	c.Invalidate("a")

	c.insert("a", 1, f)
	assert.Equal(t, 0, c.Len())
	assert.Empty(t, c.flights)
}
