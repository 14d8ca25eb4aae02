package bitset

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetIsSetClear(t *testing.T) {
	s := New()
	require.False(t, s.IsSet(0))
	require.Equal(t, -1, s.Max())

	s.Set(0)
	s.Set(63)
	s.Set(64)
	s.Set(200)
	require.True(t, s.IsSet(0))
	require.True(t, s.IsSet(63))
	require.True(t, s.IsSet(64))
	require.True(t, s.IsSet(200))
	require.False(t, s.IsSet(65))
	require.Equal(t, 200, s.Max())

	s.Clear(64)
	require.False(t, s.IsSet(64))
	// Clearing beyond the storage is a no-op.
	s.Clear(100000)
}

func TestValuesAndCount(t *testing.T) {
	s := New()
	members := []uint{3, 5, 31, 32, 33, 127, 128, 511}
	for _, m := range members {
		s.Set(m)
	}
	require.Equal(t, len(members), s.Count())
	require.Equal(t, members, s.Values())
}

func TestUnionIntersect(t *testing.T) {
	a, b := New(), New()
	for _, m := range []uint{1, 2, 3, 100} {
		a.Set(m)
	}
	for _, m := range []uint{2, 100, 300} {
		b.Set(m)
	}

	// (A ∪ B) ∩ B = B.
	u := a.Clone()
	u.Or(&b)
	u.And(&b)
	require.Equal(t, b.Values(), u.Values())

	i := a.Clone()
	i.And(&b)
	require.Equal(t, []uint{2, 100}, i.Values())
}

func TestSubSelfIsEmpty(t *testing.T) {
	a := New()
	for _, m := range []uint{0, 7, 64, 99} {
		a.Set(m)
	}
	a.Sub(&a)
	require.Zero(t, a.Count())
	require.Empty(t, a.Values())
}

func TestNotIsInvolution(t *testing.T) {
	s := New()
	for _, m := range []uint{0, 2, 5, 66, 80} {
		s.Set(m)
	}
	want := s.Values()
	s.Not()
	require.False(t, s.IsSet(2))
	require.True(t, s.IsSet(1))
	require.True(t, s.IsSet(80-1))
	require.False(t, s.IsSet(81))
	s.Not()
	require.Equal(t, want, s.Values())
}

func TestCountMatchesValues(t *testing.T) {
	s := New()
	for i := uint(0); i < 300; i += 7 {
		s.Set(i)
	}
	require.Equal(t, len(s.Values()), s.Count())
}

func TestReset(t *testing.T) {
	s := New()
	s.Set(42)
	s.Reset()
	require.Zero(t, s.Count())
	require.Equal(t, -1, s.Max())
	s.Set(1)
	require.Equal(t, []uint{1}, s.Values())
}
