package p2p

import (
	"net"
	"testing"
	"time"

	"github.com/chaincore/core/addressbook"
	"github.com/chaincore/core/primitives"
	"github.com/stretchr/testify/require"
)

type noopDialer struct{ dialed []string }

func (d *noopDialer) DialOutbound(token string, na addressbook.NetAddress, kind ConnKind) {
	d.dialed = append(d.dialed, token)
}

func na(ip string) addressbook.NetAddress {
	return addressbook.NetAddress{IP: net.ParseIP(ip), Port: 1}
}

func newTestPool() (*Pool, addressbook.AddressBook, *noopDialer) {
	book := addressbook.New()
	dialer := &noopDialer{}
	return New(DefaultConfig(), book, dialer), book, dialer
}

func establish(t *testing.T, p *Pool, peer primitives.Address, addr addressbook.NetAddress) Handle {
	t.Helper()
	h, _, ok := p.AdmitInbound(addr, ConnWs)
	require.True(t, ok)
	require.Equal(t, addressbook.CloseType(0), p.ReceivedVersion(h, peer, 1))
	require.Equal(t, addressbook.CloseType(0), p.HandshakeDone(h))
	return h
}

func TestConnectOutboundDialsAndTracksConnecting(t *testing.T) {
	p, _, dialer := newTestPool()
	ok := p.ConnectOutbound(nil, na("203.0.113.1"), ConnWs)
	require.True(t, ok)
	require.Equal(t, 1, p.ConnectingCount())
	require.Len(t, dialer.dialed, 1)
}

func TestConnectOutboundRefusesBannedAddress(t *testing.T) {
	p, book, _ := newTestPool()
	addr := na("203.0.113.2")
	book.Ban(addr.IP, time.Minute)
	ok := p.ConnectOutbound(nil, addr, ConnWs)
	require.False(t, ok)
}

func TestConnectOutboundRefusesAlreadyKnownPeer(t *testing.T) {
	p, _, _ := newTestPool()
	peer := primitives.Address{1}
	require.True(t, p.ConnectOutbound(&peer, na("203.0.113.3"), ConnWs))
	require.False(t, p.ConnectOutbound(&peer, na("203.0.113.4"), ConnWs))
}

func TestAbortOutboundIsIdempotent(t *testing.T) {
	p, _, _ := newTestPool()
	p.ConnectOutbound(nil, na("203.0.113.5"), ConnWs)
	h, info := p.findByToken(tokenOf(t, p))
	require.NotNil(t, info)

	p.AbortOutbound(info.AbortToken)
	require.Equal(t, 0, p.ConnectingCount())
	_, stillThere := p.Get(h)
	require.False(t, stillThere)

	require.NotPanics(t, func() { p.AbortOutbound(info.AbortToken) })
}

func tokenOf(t *testing.T, p *Pool) string {
	t.Helper()
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, s := range p.slots {
		if s != nil {
			return s.AbortToken
		}
	}
	t.Fatal("no connecting slot found")
	return ""
}

func TestAdmitOutboundTransitionsToConnected(t *testing.T) {
	p, _, _ := newTestPool()
	addr := na("203.0.113.6")
	p.ConnectOutbound(nil, addr, ConnWs)
	token := tokenOf(t, p)

	h, ok := p.AdmitOutbound(token)
	require.True(t, ok)
	info, _ := p.Get(h)
	require.Equal(t, StateConnected, info.State)
	require.Equal(t, 0, p.ConnectingCount())
}

func TestAdmitOutboundRejectsUnknownToken(t *testing.T) {
	p, _, _ := newTestPool()
	_, ok := p.AdmitOutbound("not-a-real-token")
	require.False(t, ok)
}

func TestHandshakeEstablishesAndNotifiesPeerJoined(t *testing.T) {
	p, _, _ := newTestPool()
	var joined []primitives.Address
	p.Notifier.Register(funcListener(func(evt interface{}) {
		if e, ok := evt.(PeerJoinedEvent); ok {
			joined = append(joined, e.Peer)
		}
	}))

	peer := primitives.Address{7}
	h := establish(t, p, peer, na("203.0.113.7"))

	info, ok := p.Get(h)
	require.True(t, ok)
	require.Equal(t, StateEstablished, info.State)
	require.Equal(t, []primitives.Address{peer}, joined)
	require.Equal(t, 1, p.PeerCount())
}

func TestReceivedVersionRejectsDuplicateEstablishedPeer(t *testing.T) {
	p, _, _ := newTestPool()
	peer := primitives.Address{8}
	establish(t, p, peer, na("203.0.113.8"))

	h2, _, ok := p.AdmitInbound(na("203.0.113.9"), ConnWs)
	require.True(t, ok)
	reason := p.ReceivedVersion(h2, peer, 2)
	require.Equal(t, addressbook.CloseDuplicateConnection, reason)
}

func TestHandshakeNegotiatingTieBreakSmallerNonceWins(t *testing.T) {
	p, _, _ := newTestPool()
	peer := primitives.Address{9}

	h1, _, ok := p.AdmitInbound(na("203.0.113.10"), ConnWs)
	require.True(t, ok)
	require.Equal(t, addressbook.CloseType(0), p.ReceivedVersion(h1, peer, 100))

	h2, _, ok := p.AdmitInbound(na("203.0.113.11"), ConnWs)
	require.True(t, ok)
	require.Equal(t, addressbook.CloseType(0), p.ReceivedVersion(h2, peer, 5))

	// h2 (smaller nonce) wins: resolving its handshake should close h1.
	require.Equal(t, addressbook.CloseType(0), p.HandshakeDone(h2))
	_, stillThere := p.Get(h1)
	require.False(t, stillThere)

	info2, ok := p.Get(h2)
	require.True(t, ok)
	require.Equal(t, StateEstablished, info2.State)
}

func TestCloseRemovesFromIndicesAndReportsToBook(t *testing.T) {
	p, book, _ := newTestPool()
	peer := primitives.Address{10}
	addr := na("203.0.113.12")
	h := establish(t, p, peer, addr)

	p.Close(h, addressbook.CloseProtocolViolation)
	_, ok := p.Get(h)
	require.False(t, ok)
	require.Equal(t, 0, p.PeerCount())
	require.True(t, book.IsBanned(addr.IP))
}

func TestDisconnectClosesEveryConnection(t *testing.T) {
	p, _, _ := newTestPool()
	establish(t, p, primitives.Address{11}, na("203.0.113.13"))
	establish(t, p, primitives.Address{12}, na("203.0.113.14"))
	require.Equal(t, 2, p.PeerCount())

	p.Disconnect(addressbook.CloseRegular)
	require.Equal(t, 0, p.PeerCount())
	require.Equal(t, 0, p.Count())
}

func TestAdmitInboundEnforcesPerIPQuota(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PeerCountPerIPMax = 1
	p := New(cfg, addressbook.New(), &noopDialer{})

	addr := na("203.0.113.15")
	_, _, ok := p.AdmitInbound(addr, ConnWs)
	require.True(t, ok)

	_, _, ok = p.AdmitInbound(addr, ConnWs)
	require.False(t, ok)
}

func TestSlotReuseAfterClose(t *testing.T) {
	p, _, _ := newTestPool()
	h1 := establish(t, p, primitives.Address{13}, na("203.0.113.16"))
	p.Close(h1, addressbook.CloseRegular)

	h2 := establish(t, p, primitives.Address{14}, na("203.0.113.17"))
	require.Equal(t, h1, h2)
	require.Equal(t, 1, p.Count())
}
