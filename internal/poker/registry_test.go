package poker

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestNewRoomID(t *testing.T) {
	id := NewRoomID()
	assert.Len(t, id, 32)
	assert.NotContains(t, id, "-")
	assert.NotEqual(t, id, NewRoomID())
}

func TestRegistry_CreateAndGet(t *testing.T) {
	r := NewRegistry()
	s := r.Create()
	require.NotNil(t, s)
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, 1, r.Count())

	got, ok := r.Get(s.ID())
	require.True(t, ok)
	assert.Same(t, s, got)
	assert.True(t, r.Exists(s.ID()))

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestRegistry_CreateSkipsCollisions(t *testing.T) {
	r := NewRegistry()
	ids := []string{"dup", "dup", "fresh"}
	r.newID = func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}
	first := r.Create()
	second := r.Create()
	assert.Equal(t, "dup", first.ID())
	assert.Equal(t, "fresh", second.ID())
}

func TestRegistry_RemoveIdempotent(t *testing.T) {
	r := NewRegistry()
	s := r.Create()
	r.Remove(s.ID())
	r.Remove(s.ID())
	assert.False(t, r.Exists(s.ID()))

	_, err := s.Join("Alice", "c1")
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestRegistry_RemoveIfEmpty(t *testing.T) {
	r := NewRegistry()
	s := r.Create()
	_, err := s.Join("Alice", "c1")
	require.NoError(t, err)

	assert.False(t, r.RemoveIfEmpty(s.ID()))
	assert.True(t, r.Exists(s.ID()))

	s.Leave("c1")
	assert.True(t, r.RemoveIfEmpty(s.ID()))
	assert.False(t, r.Exists(s.ID()))
	assert.False(t, r.RemoveIfEmpty(s.ID()))

	_, err = s.Vote("Alice", "5")
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestRegistry_BindRelease(t *testing.T) {
	r := NewRegistry()
	r.Bind("c1", "r1")
	r.Bind("c1", "r2")
	r.Bind("c1", "r1")
	r.Bind("c2", "r1")

	assert.ElementsMatch(t, []string{"r1", "r2"}, r.Release("c1"))
	assert.Empty(t, r.Release("c1"))
	assert.Equal(t, []string{"r1"}, r.Release("c2"))
}

func TestRegistry_ConcurrentRooms(t *testing.T) {
	r := NewRegistry()
	const n = 100

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			s := r.Create()
			_, _ = s.Join(fmt.Sprintf("P%d", i), fmt.Sprintf("c%d", i))
			r.Bind(fmt.Sprintf("c%d", i), s.ID())
		}(i)
	}
	wg.Wait()
	assert.Equal(t, n, r.Count())

	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			conn := fmt.Sprintf("c%d", i)
			for _, id := range r.Release(conn) {
				s, ok := r.Get(id)
				if !ok {
					continue
				}
				if out := s.Leave(conn); out.Empty {
					r.RemoveIfEmpty(id)
				}
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 0, r.Count())
}

func TestPropertyRoomRemovedOnlyWhenEmpty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		r := NewRegistry()
		s := r.Create()
		n := rapid.IntRange(1, 8).Draw(t, "players")
		for i := 0; i < n; i++ {
			_, _ = s.Join(fmt.Sprintf("p%d", i), fmt.Sprintf("c%d", i))
		}

		leaving := rapid.SliceOfDistinct(rapid.IntRange(0, n-1), func(i int) int { return i }).Draw(t, "leaving")
		for _, i := range leaving {
			if out := s.Leave(fmt.Sprintf("c%d", i)); out.Empty {
				r.RemoveIfEmpty(s.ID())
			}
		}

		wantExists := len(leaving) < n
		if r.Exists(s.ID()) != wantExists {
			t.Fatalf("exists=%v after %d of %d left", r.Exists(s.ID()), len(leaving), n)
		}
	})
}
