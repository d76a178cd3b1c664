package hub

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func drain(c *Client) [][]byte {
	var out [][]byte
	for {
		select {
		case p := <-c.Outbox():
			out = append(out, p)
		default:
			return out
		}
	}
}

func TestRegisterFirstAndLast(t *testing.T) {
	h := New(zap.NewNop().Sugar())

	c1 := NewClient("u1")
	c2 := NewClient("u1")

	assert.True(t, h.Register(c1), "first session")
	assert.False(t, h.Register(c2), "second session for the same user")
	assert.Equal(t, 2, h.SessionCount("u1"))
	assert.True(t, h.IsOnline("u1"))

	assert.False(t, h.Deregister(c1), "one session still open")
	assert.True(t, h.Deregister(c2), "last session")
	assert.False(t, h.IsOnline("u1"))

	// deregistering an unknown client is harmless
	assert.False(t, h.Deregister(c1))
}

func TestSendToUserReachesAllSessions(t *testing.T) {
	h := New(zap.NewNop().Sugar())

	c1 := NewClient("u1")
	c2 := NewClient("u1")
	other := NewClient("u2")
	h.Register(c1)
	h.Register(c2)
	h.Register(other)

	h.SendToUser("u1", []byte("hello"))

	assert.Len(t, drain(c1), 1)
	assert.Len(t, drain(c2), 1)
	assert.Empty(t, drain(other))
}

func TestBroadcastExcept(t *testing.T) {
	h := New(zap.NewNop().Sugar())

	self := NewClient("u1")
	peer := NewClient("u2")
	h.Register(self)
	h.Register(peer)

	h.BroadcastExcept("u1", []byte("u1 is online"))

	assert.Empty(t, drain(self), "originator must not receive its own presence event")
	require.Len(t, drain(peer), 1)
}

func TestDeliverAfterCloseIsDropped(t *testing.T) {
	h := New(zap.NewNop().Sugar())
	c := NewClient("u1")
	h.Register(c)
	c.Close()
	c.Close() // idempotent

	assert.False(t, c.Deliver([]byte("late")))
	h.SendToUser("u1", []byte("late")) // must not panic on closed channel
}

func TestConcurrentRegisterDeregister(t *testing.T) {
	h := New(zap.NewNop().Sugar())

	const n = 64
	clients := make([]*Client, n)
	firsts := make([]bool, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			clients[i] = NewClient("u1")
			firsts[i] = h.Register(clients[i])
		}(i)
	}
	wg.Wait()

	var firstCount int
	for _, f := range firsts {
		if f {
			firstCount++
		}
	}
	assert.Equal(t, 1, firstCount, "exactly one registration observes the first-session transition")
	assert.Equal(t, n, h.SessionCount("u1"))

	lasts := make([]bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			lasts[i] = h.Deregister(clients[i])
		}(i)
	}
	wg.Wait()

	var lastCount int
	for _, l := range lasts {
		if l {
			lastCount++
		}
	}
	assert.Equal(t, 1, lastCount, "exactly one deregistration observes the last-session transition")
	assert.False(t, h.IsOnline("u1"))
}
