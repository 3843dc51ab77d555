package p2p

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNegotiatePicksHighestMutualVersion(t *testing.T) {
	p := Protocol{Name: "core", Versions: []uint{3, 2, 1}}
	v, ok := Negotiate(p, []uint{1, 2})
	require.True(t, ok)
	require.Equal(t, uint(2), v)
}

func TestNegotiateNoMutualVersion(t *testing.T) {
	p := Protocol{Name: "core", Versions: []uint{3}}
	_, ok := Negotiate(p, []uint{1, 2})
	require.False(t, ok)
}

func TestConnKindString(t *testing.T) {
	require.Equal(t, "ws", ConnWs.String())
	require.Equal(t, "dumb", ConnDumb.String())
	require.Equal(t, "unknown", ConnKind(99).String())
}

func TestServiceKindString(t *testing.T) {
	require.Equal(t, "full", ServiceFull.String())
	require.Equal(t, "nano", ServiceNano.String())
	require.Equal(t, "unknown", ServiceKind(99).String())
}
