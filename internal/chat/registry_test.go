package chat

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := NewRegistry()

	_, ok := r.Lookup(1)
	require.False(t, ok)

	r.Register(1, "c1")
	connID, ok := r.Lookup(1)
	require.True(t, ok)
	require.Equal(t, "c1", connID)
}

func TestRegistry_SnapshotMatchesSequence(t *testing.T) {
	r := NewRegistry()

	r.Register(1, "c1")
	r.Register(2, "c2")
	r.Register(3, "c3")
	r.Unregister(2, "c2")

	require.ElementsMatch(t, []int{1, 3}, r.Snapshot())

	r.Unregister(1, "c1")
	r.Unregister(3, "c3")
	require.Empty(t, r.Snapshot())
}

func TestRegistry_StaleDisconnectDoesNotEvictReconnect(t *testing.T) {
	r := NewRegistry()

	r.Register(7, "c1")
	r.Register(7, "c2")   // reconnect overwrites
	r.Unregister(7, "c1") // stale disconnect from the first socket

	connID, ok := r.Lookup(7)
	require.True(t, ok)
	require.Equal(t, "c2", connID)
	require.ElementsMatch(t, []int{7}, r.Snapshot())
}

func TestRegistry_UnregisterUnknownUserIsNoop(t *testing.T) {
	r := NewRegistry()
	r.Unregister(42, "c1")
	require.Empty(t, r.Snapshot())
}

func TestRegistry_ConcurrentChurn(t *testing.T) {
	r := NewRegistry()
	const users = 50

	var wg sync.WaitGroup
	for i := 1; i <= users; i++ {
		wg.Add(1)
		go func(userID int) {
			defer wg.Done()
			old := fmt.Sprintf("old-%d", userID)
			cur := fmt.Sprintf("cur-%d", userID)
			r.Register(userID, old)
			r.Register(userID, cur)
			r.Unregister(userID, old) // stale, must not evict
			_, _ = r.Lookup(userID)
			_ = r.Snapshot()
		}(i)
	}
	wg.Wait()

	require.Len(t, r.Snapshot(), users)
	for i := 1; i <= users; i++ {
		connID, ok := r.Lookup(i)
		require.True(t, ok)
		require.Equal(t, fmt.Sprintf("cur-%d", i), connID)
	}
}
