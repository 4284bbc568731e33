package relay

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPresence_MarkOnline(t *testing.T) {
	req := require.New(t)
	p := NewPresence()

	req.False(p.IsOnline("a@x.com"))

	replaced := p.MarkOnline("a@x.com", "conn-1")
	req.False(replaced)
	req.True(p.IsOnline("a@x.com"))

	// Same connection marking again replaces nothing
	req.False(p.MarkOnline("a@x.com", "conn-1"))

	// A different connection takes over the entry
	req.True(p.MarkOnline("a@x.com", "conn-2"))
	req.True(p.IsOnline("a@x.com"))
}

func TestPresence_MarkOfflineGuard(t *testing.T) {
	req := require.New(t)
	p := NewPresence()

	// Given user online on conn-1, then reconnected on conn-2
	p.MarkOnline("a@x.com", "conn-1")
	p.MarkOnline("a@x.com", "conn-2")

	// When conn-1's stale teardown arrives
	removed := p.MarkOffline("a@x.com", "conn-1")

	// Then the newer connection's presence survives
	req.False(removed)
	req.True(p.IsOnline("a@x.com"))

	// And the matching connection does remove it
	req.True(p.MarkOffline("a@x.com", "conn-2"))
	req.False(p.IsOnline("a@x.com"))
}

func TestPresence_MarkOfflineUnknownUser(t *testing.T) {
	req := require.New(t)
	p := NewPresence()

	req.False(p.MarkOffline("ghost@x.com", "conn-1"))
}
