// Package addressbook tracks known peer addresses, IP bans and the scoring
// inputs the network supervisor consults when deciding whom to recycle or
// dial next (spec §4.H). The spec describes this component as "interface
// only here": the connection pool and supervisor only ever talk to the
// AddressBook interface, never to a concrete type, so a node can swap in a
// persistent, gossip-fed implementation without touching p2p.
//
// The in-memory implementation below exists so p2p has something real to
// exercise in tests; it is deliberately the simplest thing that satisfies
// the interface, not a full peer-exchange protocol (out of scope per §1).
package addressbook

import (
	"net"
	"sync"
	"time"

	"github.com/chaincore/core/log"
	"github.com/chaincore/core/params"
	"github.com/chaincore/core/primitives"
	set "gopkg.in/fatih/set.v0"
)

var logger = log.NewModuleLogger(log.P2P)

// NetAddress is the bare network endpoint a TCP/WS connection is made to,
// independent of which peer address (public key derived) answers it.
type NetAddress struct {
	IP   net.IP
	Port uint16
}

func (a NetAddress) String() string {
	return net.JoinHostPort(a.IP.String(), portString(a.Port))
}

func portString(p uint16) string {
	const digits = "0123456789"
	if p == 0 {
		return "0"
	}
	buf := [5]byte{}
	i := len(buf)
	for p > 0 {
		i--
		buf[i] = digits[p%10]
		p /= 10
	}
	return string(buf[i:])
}

// CloseType classifies why a connection closed, for peer scoring and the
// address book's own bookkeeping (spec §4.I Close, §7). The zero value,
// CloseRegular, doubles as the p2p pool's "no close, handshake step
// succeeded" sentinel on functions that either advance a connection's
// state or report why it must be torn down.
type CloseType int

const (
	CloseRegular CloseType = iota
	CloseInvalidConnectionState
	CloseDuplicateConnection
	CloseSimultaneousConnection
	ClosePeerIsBanned
	CloseConnectionLimitDumb
	CloseNetworkError
	CloseManualBan
	CloseProtocolViolation
)

// Banning reports whether a CloseType warrants banning the remote IP, per
// spec §4.I Close ("optionally ban the peer's IP when the close type is a
// banning type").
func (c CloseType) Banning() bool {
	switch c {
	case ClosePeerIsBanned, CloseManualBan, CloseProtocolViolation:
		return true
	default:
		return false
	}
}

// PeerRecord is what the address book remembers about a peer address
// independent of whether it currently holds a live connection.
type PeerRecord struct {
	Address primitives.Address
	Net     NetAddress
	Score   float64
}

// AddressBook is the surface the connection pool (I) and network
// supervisor (J) depend on. Every method must be safe for concurrent use.
type AddressBook interface {
	// IsBanned reports whether addr (or, for the IPv6 /64 it falls in) is
	// currently under an active ban.
	IsBanned(addr net.IP) bool

	// Ban blocks addr for d. IPv4 addresses are banned exactly; IPv6
	// addresses are banned by their /64 (spec §4.I Close).
	Ban(addr net.IP, d time.Duration)

	// ReportClose records that a connection to peer (if any) and net ended
	// with the given CloseType, banning the IP first if the type warrants
	// it (spec §4.I Close: "report the close type to the address book").
	ReportClose(peer *primitives.Address, net NetAddress, closeType CloseType)

	// Put records (or refreshes) a known peer address.
	Put(rec PeerRecord)

	// Get returns the record known for peer, if any.
	Get(peer primitives.Address) (PeerRecord, bool)

	// PickUnconnected returns a net address worth dialing that isn't in
	// excludeNet (matched by its "ip:port" string or by its bare IP string)
	// and isn't currently banned, for the supervisor's
	// check_peer_count auto-connect loop (spec §4.J). Returns false if no
	// candidate is available.
	PickUnconnected(excludeNet *set.Set) (NetAddress, bool)

	// Score returns the scoring input for peer, used by the supervisor's
	// recycling selection and allow_inbound_exchange computation (spec
	// §4.J). Higher is better; unknown peers score 0.
	Score(peer primitives.Address) float64
}

type banEntry struct {
	expires time.Time
}

// memBook is a plain in-memory AddressBook: bans as NetAddress->expiry,
// same model the original implementation uses (see package doc), peer
// records in a map keyed by address. Candidate net addresses for
// PickUnconnected are just whatever Put has seen, minus excludeNet and
// minus anything currently banned.
type memBook struct {
	mu         sync.Mutex
	records    map[primitives.Address]PeerRecord
	byNet      map[string]primitives.Address
	ipBans     map[string]banEntry
	subnetBans map[string]banEntry
}

// New returns an empty in-memory address book.
func New() AddressBook {
	return &memBook{
		records:    make(map[primitives.Address]PeerRecord),
		byNet:      make(map[string]primitives.Address),
		ipBans:     make(map[string]banEntry),
		subnetBans: make(map[string]banEntry),
	}
}

func (b *memBook) IsBanned(addr net.IP) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now()
	if e, ok := b.ipBans[addr.String()]; ok {
		if now.Before(e.expires) {
			return true
		}
		delete(b.ipBans, addr.String())
	}
	if v4 := addr.To4(); v4 == nil {
		key := ipv6SubnetKey(addr)
		if e, ok := b.subnetBans[key]; ok {
			if now.Before(e.expires) {
				return true
			}
			delete(b.subnetBans, key)
		}
	}
	return false
}

func (b *memBook) Ban(addr net.IP, d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	expires := time.Now().Add(d)
	if v4 := addr.To4(); v4 != nil {
		b.ipBans[addr.String()] = banEntry{expires: expires}
		return
	}
	b.subnetBans[ipv6SubnetKey(addr)] = banEntry{expires: expires}
}

func ipv6SubnetKey(ip net.IP) string {
	masked := ip.Mask(net.CIDRMask(64, 128))
	return masked.String()
}

func (b *memBook) ReportClose(peer *primitives.Address, na NetAddress, closeType CloseType) {
	if closeType.Banning() {
		b.Ban(na.IP, params.DefaultBanTime)
	}
	if peer == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.records[*peer]
	if !ok {
		return
	}
	if closeType != CloseRegular {
		rec.Score -= 1
	} else {
		rec.Score += 0.1
	}
	b.records[*peer] = rec
	logger.Debug("address book recorded close", "peer", peer.String(), "close_type", int(closeType), "score", rec.Score)
}

func (b *memBook) Put(rec PeerRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records[rec.Address] = rec
	b.byNet[rec.Net.String()] = rec.Address
}

func (b *memBook) Get(peer primitives.Address) (PeerRecord, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.records[peer]
	return rec, ok
}

func (b *memBook) PickUnconnected(excludeNet *set.Set) (NetAddress, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for netStr, addr := range b.byNet {
		rec := b.records[addr]
		if excludeNet != nil && (excludeNet.Has(netStr) || excludeNet.Has(rec.Net.IP.String())) {
			continue
		}
		if b.isBannedLocked(rec.Net.IP) {
			continue
		}
		return rec.Net, true
	}
	return NetAddress{}, false
}

func (b *memBook) isBannedLocked(ip net.IP) bool {
	now := time.Now()
	if e, ok := b.ipBans[ip.String()]; ok && now.Before(e.expires) {
		return true
	}
	if v4 := ip.To4(); v4 == nil {
		if e, ok := b.subnetBans[ipv6SubnetKey(ip)]; ok && now.Before(e.expires) {
			return true
		}
	}
	return false
}

func (b *memBook) Score(peer primitives.Address) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if rec, ok := b.records[peer]; ok {
		return rec.Score
	}
	return 0
}
