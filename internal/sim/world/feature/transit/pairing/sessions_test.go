package pairing

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSessionStore_Lifecycle(t *testing.T) {
	s := NewSessionStore()
	s.Begin("P1", ref(1))
	got, ok := s.Peek("P1")
	require.True(t, ok)
	require.Equal(t, ref(1), got)

	s.Begin("P1", ref(2))
	got, ok = s.Take("P1")
	require.True(t, ok)
	require.Equal(t, ref(2), got)
	_, ok = s.Take("P1")
	require.False(t, ok, "take must clear the session")

	s.Begin("P2", ref(3))
	require.True(t, s.Cancel("P2"))
	require.False(t, s.Cancel("P2"))

	s.Begin("P3", ref(4))
	s.Begin("P4", ref(4))
	s.Begin("P5", ref(5))
	require.Equal(t, 2, s.DropInput(ref(4)))
	s.Clear()
	require.Zero(t, s.Len())
}

func TestSessionStore_Concurrent(t *testing.T) {
	s := NewSessionStore()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := string(rune('A' + i))
			s.Begin(id, ref(i))
			s.Peek(id)
			s.Take(id)
		}(i)
	}
	wg.Wait()
	require.Zero(t, s.Len())
}
