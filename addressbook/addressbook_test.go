package addressbook

import (
	"net"
	"testing"
	"time"

	"github.com/chaincore/core/primitives"
	"github.com/stretchr/testify/require"
	set "gopkg.in/fatih/set.v0"
)

func TestBanIPv4IsExact(t *testing.T) {
	b := New()
	a := net.ParseIP("203.0.113.5")
	other := net.ParseIP("203.0.113.6")

	require.False(t, b.IsBanned(a))
	b.Ban(a, time.Minute)
	require.True(t, b.IsBanned(a))
	require.False(t, b.IsBanned(other))
}

func TestBanIPv6CoversSlash64(t *testing.T) {
	b := New()
	a := net.ParseIP("2001:db8:1234:5678::1")
	sameSubnet := net.ParseIP("2001:db8:1234:5678:ffff:ffff:ffff:ffff")
	otherSubnet := net.ParseIP("2001:db8:1234:5679::1")

	b.Ban(a, time.Minute)
	require.True(t, b.IsBanned(sameSubnet))
	require.False(t, b.IsBanned(otherSubnet))
}

func TestBanExpires(t *testing.T) {
	b := New()
	a := net.ParseIP("203.0.113.5")
	b.Ban(a, -time.Second) // already expired
	require.False(t, b.IsBanned(a))
}

func TestReportCloseBansOnBanningCloseTypes(t *testing.T) {
	b := New()
	na := NetAddress{IP: net.ParseIP("198.51.100.9"), Port: 1}

	b.ReportClose(nil, na, CloseRegular)
	require.False(t, b.IsBanned(na.IP))

	b.ReportClose(nil, na, CloseProtocolViolation)
	require.True(t, b.IsBanned(na.IP))
}

func TestReportCloseAdjustsKnownPeerScore(t *testing.T) {
	b := New()
	peer := primitives.Address{1}
	na := NetAddress{IP: net.ParseIP("198.51.100.10"), Port: 1}
	b.Put(PeerRecord{Address: peer, Net: na, Score: 1})

	b.ReportClose(&peer, na, CloseNetworkError)
	require.Less(t, b.Score(peer), 1.0)
}

func TestPickUnconnectedExcludesAndSkipsBanned(t *testing.T) {
	b := New()
	na1 := NetAddress{IP: net.ParseIP("198.51.100.20"), Port: 1}
	na2 := NetAddress{IP: net.ParseIP("198.51.100.21"), Port: 1}
	peer1 := primitives.Address{1}
	peer2 := primitives.Address{2}
	b.Put(PeerRecord{Address: peer1, Net: na1})
	b.Put(PeerRecord{Address: peer2, Net: na2})

	b.Ban(na1.IP, time.Minute)
	na, ok := b.PickUnconnected(set.New())
	require.True(t, ok)
	require.Equal(t, na2.String(), na.String())

	exclude := set.New(na2.String())
	_, ok = b.PickUnconnected(exclude)
	require.False(t, ok)
}

func TestCloseTypeBanning(t *testing.T) {
	require.False(t, CloseRegular.Banning())
	require.False(t, CloseDuplicateConnection.Banning())
	require.True(t, ClosePeerIsBanned.Banning())
	require.True(t, CloseManualBan.Banning())
	require.True(t, CloseProtocolViolation.Banning())
}

func TestUnknownPeerScoresZero(t *testing.T) {
	b := New()
	require.Equal(t, 0.0, b.Score(primitives.Address{9}))
	_, ok := b.Get(primitives.Address{9})
	require.False(t, ok)
}
