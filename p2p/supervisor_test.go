package p2p

import (
	"net"
	"testing"

	"github.com/chaincore/core/addressbook"
	"github.com/chaincore/core/primitives"
	"github.com/stretchr/testify/require"
)

func TestRecyclingPercentRampsBetweenBounds(t *testing.T) {
	require.InDelta(t, 0.01, recyclingPercent(1000, 1000, 4000), 1e-9)
	require.InDelta(t, 0.20, recyclingPercent(4000, 1000, 4000), 1e-9)
	mid := recyclingPercent(2500, 1000, 4000)
	require.Greater(t, mid, 0.01)
	require.Less(t, mid, 0.20)
}

func TestRecyclingPercentHandlesDegenerateBounds(t *testing.T) {
	require.Equal(t, 0.20, recyclingPercent(10, 10, 10))
}

func TestUpdateAllowInboundExchangeOpensOnLowScore(t *testing.T) {
	p, book, _ := newTestPool()
	peer := primitives.Address{1}
	establish(t, p, peer, na("203.0.113.30"))
	book.Put(addressbook.PeerRecord{Address: peer, Score: 0})

	cfg := DefaultSupervisorConfig()
	s := NewSupervisor(cfg, p, book)
	s.updateAllowInboundExchange()

	// Score 0 is below the default threshold, so the gate should open.
	p.mu.RLock()
	allow := p.allowInboundExchange
	p.mu.RUnlock()
	require.True(t, allow)
}

func TestUpdateAllowInboundExchangeStaysShutWithNoPeers(t *testing.T) {
	p, book, _ := newTestPool()
	s := NewSupervisor(DefaultSupervisorConfig(), p, book)
	s.updateAllowInboundExchange()

	p.mu.RLock()
	allow := p.allowInboundExchange
	p.mu.RUnlock()
	require.False(t, allow)
}

func TestCheckPeerCountDialsUntilBookExhausted(t *testing.T) {
	p, book, dialer := newTestPool()
	book.Put(addressbook.PeerRecord{
		Address: primitives.Address{2},
		Net:     addressbook.NetAddress{IP: net.ParseIP("203.0.113.31"), Port: 1},
	})

	s := NewSupervisor(DefaultSupervisorConfig(), p, book)
	s.checkPeerCount()

	// Dials the one candidate, then exhausts the book on the next
	// iteration of the same call and backs off.
	require.Len(t, dialer.dialed, 1)
	require.Greater(t, s.backoff, s.cfg.ConnectBackoffInitial)
}

func TestCheckPeerCountBacksOffWhenBookEmpty(t *testing.T) {
	p, book, _ := newTestPool()
	s := NewSupervisor(DefaultSupervisorConfig(), p, book)
	s.checkPeerCount()
	require.Greater(t, s.backoff, s.cfg.ConnectBackoffInitial)
}

func TestRecomputeTimeOffsetIsMedianIncludingSelf(t *testing.T) {
	p, book, _ := newTestPool()
	h1 := establish(t, p, primitives.Address{3}, na("203.0.113.32"))
	p.SetTimeOffset(h1, 0)

	s := NewSupervisor(DefaultSupervisorConfig(), p, book)
	s.recomputeTimeOffset()
	// Two samples (self=0, peer=0): median of {0,0} is 0.
	require.Equal(t, int64(0), int64(s.TimeOffset()))
}
