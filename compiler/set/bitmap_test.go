package set

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBitmap(t *testing.T) {
	s := MakeBitmap(4)

	assert.Equal(t, -1, s.First())
	assert.Equal(t, 0, s.Size())

	s.Set(3)
	s.Set(100) // grows past the inline word

	assert.True(t, s.IsSet(3))
	assert.True(t, s.IsSet(100))
	assert.False(t, s.IsSet(4))
	assert.Equal(t, 3, s.First())
	assert.Equal(t, 2, s.Size())

	s.Clear(3)
	assert.False(t, s.IsSet(3))
	assert.Equal(t, 100, s.First())

	var got []int
	s.Set(1)
	s.Range(func(i int) bool {
		got = append(got, i)
		return true
	})
	assert.Equal(t, []int{1, 100}, got)
}

func TestBitmapOps(t *testing.T) {
	a := MakeBitmap(8)
	a.Set(1)
	a.Set(2)

	b := MakeBitmap(8)
	b.Set(2)
	b.Set(70)

	c := a.Copy()
	c.Or(b)
	assert.True(t, c.IsSet(1))
	assert.True(t, c.IsSet(70))

	a.Intersect(b)
	assert.False(t, a.IsSet(1))
	assert.True(t, a.IsSet(2))
	assert.Equal(t, 1, a.Size())

	a.Reset()
	assert.Equal(t, 0, a.Size())
}

func TestBitmapIntersectShorter(t *testing.T) {
	a := MakeBitmap(8)
	a.Set(2)
	a.Set(80)

	b := MakeBitmap(8)
	b.Set(2)

	a.Intersect(b)
	assert.True(t, a.IsSet(2))
	assert.False(t, a.IsSet(80))
}
