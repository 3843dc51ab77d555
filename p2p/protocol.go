package p2p

// Protocol names and negotiates the wire protocol a connection speaks,
// grounded on the teacher's (now superseded) consensus.Protocol{Name,
// Versions, Lengths}: a short capability name plus the ordered list of
// versions this node will negotiate down to.
type Protocol struct {
	Name     string
	Versions []uint
	Lengths  []uint64
}

// ConnKind is the transport a connection was established over (spec §4.I
// Model: "per-protocol peer counts (Ws/Wss/Rtc/Dumb)"). Dumb connections
// speak no sub-protocol at all and are capped independently
// (PEER_COUNT_DUMB_MAX) since they can't be scored or asked to relay.
type ConnKind int

const (
	ConnWs ConnKind = iota
	ConnWss
	ConnRtc
	ConnDumb
)

func (k ConnKind) String() string {
	switch k {
	case ConnWs:
		return "ws"
	case ConnWss:
		return "wss"
	case ConnRtc:
		return "rtc"
	case ConnDumb:
		return "dumb"
	default:
		return "unknown"
	}
}

// ServiceKind is the service level a peer advertises (spec §4.I Model:
// "per-service peer counts (Full/Light/Nano)").
type ServiceKind int

const (
	ServiceFull ServiceKind = iota
	ServiceLight
	ServiceNano
)

func (s ServiceKind) String() string {
	switch s {
	case ServiceFull:
		return "full"
	case ServiceLight:
		return "light"
	case ServiceNano:
		return "nano"
	default:
		return "unknown"
	}
}

// CoreProtocol is the one wire protocol this consensus core negotiates;
// unlike the teacher's multi-protocol gxp/istanbul split, there is exactly
// one protocol version in scope here (spec §1 Non-goals: wire protocol
// versioning/negotiation beyond what's needed to identify peers).
var CoreProtocol = Protocol{
	Name:     "core",
	Versions: []uint{1},
	Lengths:  []uint64{8},
}

// Negotiate returns the highest mutually supported version of p that both
// sides list, and false if the two peers share none.
func Negotiate(p Protocol, peerVersions []uint) (uint, bool) {
	peerSet := make(map[uint]bool, len(peerVersions))
	for _, v := range peerVersions {
		peerSet[v] = true
	}
	for _, v := range p.Versions {
		if peerSet[v] {
			return v, true
		}
	}
	return 0, false
}
