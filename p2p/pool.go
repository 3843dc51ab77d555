// Package p2p implements the connection pool (spec §4.I) and network
// supervisor (§4.J): the lifecycle, quota enforcement and handshake race
// resolution for peer connections, and the periodic housekeeping loop that
// drives recycling and auto-connect.
//
// Grounded on the teacher's node/cn/peer.go peerSet (lock-guarded map of
// live peers, Register/Unregister returning typed errors, secondary
// indices by node type) generalized from klaytn's CN/PN/EN node-type split
// to this spec's by-address/by-net/by-subnet indices, quota checks and
// explicit connection-state machine.
package p2p

import (
	"sync"
	"time"

	"github.com/chaincore/core/addressbook"
	"github.com/chaincore/core/event"
	"github.com/chaincore/core/log"
	"github.com/chaincore/core/p2p/netutil"
	"github.com/chaincore/core/params"
	"github.com/chaincore/core/primitives"
	uuid "github.com/hashicorp/go-uuid"
	metrics "github.com/rcrowley/go-metrics"
	set "gopkg.in/fatih/set.v0"
)

var logger = log.NewModuleLogger(log.P2P)

// ConnState is a connection's position in the admission/handshake
// lifecycle (spec §4.I Admission, Handshake race resolution).
type ConnState int

const (
	StateConnecting ConnState = iota
	StateConnected
	StateNegotiating
	StateEstablished
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateNegotiating:
		return "negotiating"
	case StateEstablished:
		return "established"
	default:
		return "unknown"
	}
}

// Handle is a stable index into the pool's sparse connection vector.
type Handle int

// ConnectionInfo is everything the pool tracks about one connection across
// its lifetime (spec §4.I Model).
type ConnectionInfo struct {
	Handle      Handle
	PeerAddress *primitives.Address
	Net         addressbook.NetAddress
	Kind        ConnKind
	Service     ServiceKind
	State       ConnState
	Outbound    bool
	PeerNonce   uint64 // exchanged during handshake; breaks simultaneous-connection ties
	AbortToken  string // idempotent abort handle for a pending outbound attempt
	TimeOffset  time.Duration
	aborted     bool
}

// Event types the pool notifies (spec §4.I Public operations).
type ConnectionEvent struct{ Handle Handle }
type PeerJoinedEvent struct {
	Handle Handle
	Peer   primitives.Address
}
type PeerLeftEvent struct {
	Handle Handle
	Peer   primitives.Address
}
type PeersChangedEvent struct{}
type ConnectErrorEvent struct {
	Net    addressbook.NetAddress
	Reason string
}
type CloseEvent struct {
	Handle Handle
	Info   ConnectionInfo
	Reason addressbook.CloseType
}
type RecyclingRequestEvent struct{}

// Dialer abstracts the actual socket/transport layer: the pool drives
// connection lifecycle and quotas (spec §4.I) but never speaks a wire
// protocol itself. DialOutbound must eventually call exactly one of
// Pool.AdmitOutbound or Pool.ConnectFailed for the given token.
type Dialer interface {
	DialOutbound(token string, na addressbook.NetAddress, kind ConnKind)
}

// Config groups the runtime-tunable quotas a deployment may override,
// loadable from TOML (see LoadConfig) the same way the teacher loads node
// config; the protocol constants in params are the compiled-in defaults.
type Config struct {
	PeerCountMax                  int
	PeerCountPerIPMax             int
	InboundPeerCountPerSubnetMax  int
	OutboundPeerCountPerSubnetMax int
	PeerCountDumbMax              int
	IPv4SubnetMask                int
	IPv6SubnetMask                int
}

// DefaultConfig mirrors the compiled-in protocol constants (spec §6).
func DefaultConfig() Config {
	return Config{
		PeerCountMax:                  params.PeerCountMax,
		PeerCountPerIPMax:             params.PeerCountPerIPMax,
		InboundPeerCountPerSubnetMax:  params.InboundPeerCountPerSubnetMax,
		OutboundPeerCountPerSubnetMax: params.OutboundPeerCountPerSubnetMax,
		PeerCountDumbMax:              params.PeerCountDumbMax,
		IPv4SubnetMask:                params.IPv4SubnetMask,
		IPv6SubnetMask:                params.IPv6SubnetMask,
	}
}

// Pool is the connection pool (spec §4.I). changeLock serializes every
// lifecycle transition; mu guards the indices and counters for readers
// (spec §5 Locks).
type Pool struct {
	changeLock sync.Mutex
	mu         sync.RWMutex

	cfg    Config
	book   addressbook.AddressBook
	dialer Dialer

	slots    []*ConnectionInfo
	freeList []Handle

	byPeer   map[primitives.Address]Handle
	byNet    map[string]*set.Set // net key -> set of int(Handle)
	bySubnet map[string]*set.Set

	countByKind     map[ConnKind]int
	countByService  map[ServiceKind]int
	outboundCount   int
	connectingCount int
	inboundPending  int

	allowInboundConnections bool
	allowInboundExchange    bool

	Notifier *event.Multi

	connectMeter metrics.Counter
	closeMeter   metrics.Counter
}

// New builds an empty pool backed by book for ban/score lookups and dialer
// for actually opening outbound sockets.
func New(cfg Config, book addressbook.AddressBook, dialer Dialer) *Pool {
	return &Pool{
		cfg:                     cfg,
		book:                    book,
		dialer:                  dialer,
		byPeer:                  make(map[primitives.Address]Handle),
		byNet:                   make(map[string]*set.Set),
		bySubnet:                make(map[string]*set.Set),
		countByKind:             make(map[ConnKind]int),
		countByService:          make(map[ServiceKind]int),
		allowInboundConnections: true,
		Notifier:                event.NewMulti(),
		connectMeter:            metrics.NewCounter(),
		closeMeter:              metrics.NewCounter(),
	}
}

func (p *Pool) SetAllowInboundConnections(v bool) {
	p.mu.Lock()
	p.allowInboundConnections = v
	p.mu.Unlock()
}

func (p *Pool) SetAllowInboundExchange(v bool) {
	p.mu.Lock()
	p.allowInboundExchange = v
	p.mu.Unlock()
}

func (p *Pool) PeerCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.countByKind[ConnWs] + p.countByKind[ConnWss] + p.countByKind[ConnRtc] + p.countByKind[ConnDumb]
}

func (p *Pool) ConnectingCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connectingCount
}

// Count is the number of slots currently occupied, at any lifecycle stage.
func (p *Pool) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	n := 0
	for _, s := range p.slots {
		if s != nil {
			n++
		}
	}
	return n
}

// ConnectOutbound starts an outbound attempt to na (spec §4.I
// connect_outbound). Fails fast (false) if na's peer is banned, already
// known, or quotas are exceeded; otherwise allocates a Connecting info and
// asynchronously hands the dial off to the injected Dialer.
func (p *Pool) ConnectOutbound(peerAddress *primitives.Address, na addressbook.NetAddress, kind ConnKind) bool {
	p.changeLock.Lock()
	defer p.changeLock.Unlock()

	if p.book.IsBanned(na.IP) {
		logger.Debug("refusing outbound connect, banned", "addr", na.String())
		return false
	}
	if peerAddress != nil {
		p.mu.RLock()
		_, known := p.byPeer[*peerAddress]
		p.mu.RUnlock()
		if known {
			logger.Debug("refusing outbound connect, already known", "peer", peerAddress.String())
			return false
		}
	}
	if p.ConnectingCount() >= params.ConnectingCountMax {
		return false
	}

	token, err := uuid.GenerateUUID()
	if err != nil {
		logger.Warn("failed to generate abort token", "err", err)
		return false
	}

	info := &ConnectionInfo{
		PeerAddress: peerAddress,
		Net:         na,
		Kind:        kind,
		State:       StateConnecting,
		Outbound:    true,
		AbortToken:  token,
	}
	h := p.insert(info)

	p.mu.Lock()
	p.connectingCount++
	if peerAddress != nil {
		p.byPeer[*peerAddress] = h
	}
	p.mu.Unlock()

	p.connectMeter.Inc(1)
	p.Notifier.Notify(ConnectionEvent{Handle: h})

	p.dialer.DialOutbound(token, na, kind)
	return true
}

// ConnectFailed reports that the outbound attempt identified by token
// never produced a socket. Aborting is idempotent: a second call (e.g. a
// race with AbortOutbound) is a no-op.
func (p *Pool) ConnectFailed(token string, reason string) {
	p.changeLock.Lock()
	defer p.changeLock.Unlock()
	p.abortLocked(token, reason)
}

// AbortOutbound cancels a pending outbound attempt. Idempotent (spec §5
// Cancellation): aborting an already-aborted or already-resolved token is
// a silent no-op.
func (p *Pool) AbortOutbound(token string) {
	p.changeLock.Lock()
	defer p.changeLock.Unlock()
	p.abortLocked(token, "aborted")
}

// abortLocked assumes changeLock is already held; used directly by
// HandshakeDone (which already holds changeLock) so it never re-enters
// the non-reentrant lock via AbortOutbound/ConnectFailed.
func (p *Pool) abortLocked(token string, reason string) {
	h, info := p.findByToken(token)
	if info == nil || info.aborted {
		return
	}
	info.aborted = true
	p.removeConnecting(h, info)
	p.Notifier.Notify(ConnectErrorEvent{Net: info.Net, Reason: reason})
}

func (p *Pool) removeConnecting(h Handle, info *ConnectionInfo) {
	p.mu.Lock()
	p.connectingCount--
	if info.PeerAddress != nil && p.byPeer[*info.PeerAddress] == h {
		delete(p.byPeer, *info.PeerAddress)
	}
	p.mu.Unlock()
	p.remove(h)
}

func (p *Pool) findByToken(token string) (Handle, *ConnectionInfo) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for i, s := range p.slots {
		if s != nil && s.AbortToken == token {
			return Handle(i), s
		}
	}
	return -1, nil
}

// AdmitOutbound attaches a newly opened outbound socket to its pending
// Connecting info, per spec §4.I Admission step 1. Returns false (and
// closes, conceptually, with InvalidConnectionState) if no matching
// Connecting info exists.
func (p *Pool) AdmitOutbound(token string) (Handle, bool) {
	p.changeLock.Lock()
	defer p.changeLock.Unlock()

	h, info := p.findByToken(token)
	if info == nil || info.State != StateConnecting || info.aborted {
		logger.Warn("rejecting outbound socket, invalid connection state")
		return -1, false
	}
	info.State = StateConnected
	p.mu.Lock()
	p.connectingCount--
	p.mu.Unlock()
	return h, true
}

// AdmitInbound allocates a new Connected info for an inbound socket (spec
// §4.I Admission step 2-3). Returns the handle and true on acceptance;
// false means the caller must close the socket with the returned reason.
func (p *Pool) AdmitInbound(na addressbook.NetAddress, kind ConnKind) (Handle, addressbook.CloseType, bool) {
	p.changeLock.Lock()
	defer p.changeLock.Unlock()

	if p.book.IsBanned(na.IP) {
		return -1, addressbook.ClosePeerIsBanned, false
	}

	p.mu.RLock()
	allowInbound := p.allowInboundConnections
	allowExchange := p.allowInboundExchange
	ipCount := setSize(p.byNet[netutil.ExactKey(na.IP)])
	subnetCount := setSize(p.bySubnet[netutil.SubnetKey(na.IP, p.cfg.IPv4SubnetMask, p.cfg.IPv6SubnetMask)])
	total := p.totalPeerCountLocked()
	p.mu.RUnlock()

	if !allowInbound {
		return -1, addressbook.CloseInvalidConnectionState, false
	}
	if ipCount >= p.cfg.PeerCountPerIPMax {
		return -1, addressbook.CloseInvalidConnectionState, false
	}
	if subnetCount >= p.cfg.InboundPeerCountPerSubnetMax {
		return -1, addressbook.CloseInvalidConnectionState, false
	}
	if total >= p.cfg.PeerCountMax && !allowExchange {
		return -1, addressbook.CloseInvalidConnectionState, false
	}

	info := &ConnectionInfo{
		Net:      na,
		Kind:     kind,
		State:    StateConnected,
		Outbound: false,
	}
	h := p.insert(info)
	p.registerNetIndex(h, na)

	p.mu.Lock()
	p.inboundPending++
	p.mu.Unlock()

	p.connectMeter.Inc(1)
	p.Notifier.Notify(ConnectionEvent{Handle: h})
	return h, 0, true
}

func (p *Pool) totalPeerCountLocked() int {
	n := 0
	for _, c := range p.countByKind {
		n += c
	}
	return n
}

func setSize(s *set.Set) int {
	if s == nil {
		return 0
	}
	return s.Size()
}

// ReceivedVersion runs the pre-handshake race checks (spec §4.I Handshake
// race resolution, "on receiving peer's Version") and, if the connection
// survives, transitions it to Negotiating.
func (p *Pool) ReceivedVersion(h Handle, peerAddress primitives.Address, nonce uint64) addressbook.CloseType {
	p.changeLock.Lock()
	defer p.changeLock.Unlock()

	if p.book.IsBanned(p.slotNet(h).IP) {
		return addressbook.ClosePeerIsBanned
	}

	p.mu.RLock()
	existingHandle, hasExisting := p.byPeer[peerAddress]
	p.mu.RUnlock()
	if hasExisting {
		if existing := p.slot(existingHandle); existing != nil && existing.State == StateEstablished {
			return addressbook.CloseDuplicateConnection
		}
	}

	info := p.slot(h)
	if info == nil {
		return addressbook.CloseInvalidConnectionState
	}
	if info.Kind == ConnDumb {
		p.mu.RLock()
		dumbCount := p.countByKind[ConnDumb]
		p.mu.RUnlock()
		if dumbCount >= p.cfg.PeerCountDumbMax {
			return addressbook.CloseConnectionLimitDumb
		}
	}

	info.PeerAddress = &peerAddress
	info.PeerNonce = nonce
	info.State = StateNegotiating

	// First contender for peerAddress wins the byPeer slot, so a later
	// simultaneous arrival doesn't clobber the reference HandshakeDone
	// needs to find the other side of the race (see its tie-break logic).
	if !hasExisting {
		p.mu.Lock()
		p.byPeer[peerAddress] = h
		p.mu.Unlock()
	}
	return 0
}

func (p *Pool) slotNet(h Handle) addressbook.NetAddress {
	if info := p.slot(h); info != nil {
		return info.Net
	}
	return addressbook.NetAddress{}
}

// HandshakeDone resolves a completed handshake for connection h (spec
// §4.I Handshake race resolution, "on handshake completion for an inbound
// connection"). A zero return means h is now Established; any other
// CloseType means the caller must close h with that reason - the other
// side of a resolved race, if any, is closed directly by this call.
func (p *Pool) HandshakeDone(h Handle) addressbook.CloseType {
	p.changeLock.Lock()
	defer p.changeLock.Unlock()

	info := p.slot(h)
	if info == nil {
		return addressbook.CloseInvalidConnectionState
	}

	p.mu.RLock()
	total := p.totalPeerCountLocked()
	allowExchange := p.allowInboundExchange
	p.mu.RUnlock()
	if !info.Outbound && total >= p.cfg.PeerCountMax && !allowExchange {
		return addressbook.CloseInvalidConnectionState
	}

	if info.PeerAddress != nil {
		p.mu.RLock()
		existingHandle, hasExisting := p.byPeer[*info.PeerAddress]
		p.mu.RUnlock()
		if hasExisting && existingHandle != h {
			existing := p.slot(existingHandle)
			if existing != nil {
				switch existing.State {
				case StateConnecting:
					p.abortLocked(existing.AbortToken, "superseded by simultaneous inbound connection")
				case StateEstablished:
					return addressbook.CloseDuplicateConnection
				case StateNegotiating:
					if info.PeerNonce < existing.PeerNonce {
						p.closeLocked(existingHandle, addressbook.CloseSimultaneousConnection)
					} else {
						return addressbook.CloseSimultaneousConnection
					}
				default:
					p.closeLocked(existingHandle, addressbook.CloseDuplicateConnection)
				}
			}
		}
	}

	info.State = StateEstablished
	p.mu.Lock()
	if info.PeerAddress != nil {
		p.byPeer[*info.PeerAddress] = h
	}
	p.countByKind[info.Kind]++
	p.countByService[info.Service]++
	if info.Outbound {
		p.outboundCount++
	} else {
		p.inboundPending--
	}
	newTotal := p.totalPeerCountLocked()
	p.mu.Unlock()

	if info.PeerAddress != nil {
		p.Notifier.Notify(PeerJoinedEvent{Handle: h, Peer: *info.PeerAddress})
	}
	p.Notifier.Notify(PeersChangedEvent{})
	if newTotal >= p.cfg.PeerCountMax {
		p.Notifier.Notify(RecyclingRequestEvent{})
	}
	return 0
}

// Close tears down connection h for reason (spec §4.I Close): reports the
// close to the address book, removes it from every index, optionally bans
// the IP, and emits Close (and PeerLeft/PeersChanged if it was
// Established).
func (p *Pool) Close(h Handle, reason addressbook.CloseType) {
	p.changeLock.Lock()
	defer p.changeLock.Unlock()
	p.closeLocked(h, reason)
}

// closeLocked assumes changeLock is already held.
func (p *Pool) closeLocked(h Handle, reason addressbook.CloseType) {
	info := p.slot(h)
	if info == nil {
		return
	}

	p.book.ReportClose(info.PeerAddress, info.Net, reason)

	wasEstablished := info.State == StateEstablished
	p.mu.Lock()
	if info.PeerAddress != nil && p.byPeer[*info.PeerAddress] == h {
		delete(p.byPeer, *info.PeerAddress)
	}
	p.unindexNet(info)
	if wasEstablished {
		p.countByKind[info.Kind]--
		p.countByService[info.Service]--
		if info.Outbound {
			p.outboundCount--
		}
	} else if info.State == StateConnecting {
		p.connectingCount--
	} else if !info.Outbound {
		p.inboundPending--
	}
	p.mu.Unlock()

	p.closeMeter.Inc(1)
	snapshot := *info
	p.remove(h)

	p.Notifier.Notify(CloseEvent{Handle: h, Info: snapshot, Reason: reason})
	if wasEstablished && snapshot.PeerAddress != nil {
		p.Notifier.Notify(PeerLeftEvent{Handle: h, Peer: *snapshot.PeerAddress})
		p.Notifier.Notify(PeersChangedEvent{})
	}
}

// Disconnect closes every active connection (spec §4.I Public operations).
func (p *Pool) Disconnect(reason addressbook.CloseType) {
	p.mu.RLock()
	handles := make([]Handle, 0, len(p.slots))
	for i, s := range p.slots {
		if s != nil {
			handles = append(handles, Handle(i))
		}
	}
	p.mu.RUnlock()
	for _, h := range handles {
		p.Close(h, reason)
	}
}

func (p *Pool) registerNetIndex(h Handle, na addressbook.NetAddress) {
	p.mu.Lock()
	defer p.mu.Unlock()
	netKey := netutil.ExactKey(na.IP)
	if p.byNet[netKey] == nil {
		p.byNet[netKey] = set.New()
	}
	p.byNet[netKey].Add(int(h))

	subnetKey := netutil.SubnetKey(na.IP, p.cfg.IPv4SubnetMask, p.cfg.IPv6SubnetMask)
	if p.bySubnet[subnetKey] == nil {
		p.bySubnet[subnetKey] = set.New()
	}
	p.bySubnet[subnetKey].Add(int(h))
}

// unindexNet assumes p.mu is already held for writing.
func (p *Pool) unindexNet(info *ConnectionInfo) {
	netKey := netutil.ExactKey(info.Net.IP)
	if s := p.byNet[netKey]; s != nil {
		s.Remove(int(info.Handle))
		if s.Size() == 0 {
			delete(p.byNet, netKey)
		}
	}
	subnetKey := netutil.SubnetKey(info.Net.IP, p.cfg.IPv4SubnetMask, p.cfg.IPv6SubnetMask)
	if s := p.bySubnet[subnetKey]; s != nil {
		s.Remove(int(info.Handle))
		if s.Size() == 0 {
			delete(p.bySubnet, subnetKey)
		}
	}
}

// insert places info into a free slot (or grows the vector) and returns
// its handle, reusing freed slots before ever extending the vector (spec
// §4.I Model: "reuses freed slots, no shrink").
func (p *Pool) insert(info *ConnectionInfo) Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	var h Handle
	if n := len(p.freeList); n > 0 {
		h = p.freeList[n-1]
		p.freeList = p.freeList[:n-1]
		p.slots[h] = info
	} else {
		h = Handle(len(p.slots))
		p.slots = append(p.slots, info)
	}
	info.Handle = h
	return h
}

func (p *Pool) remove(h Handle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if int(h) < 0 || int(h) >= len(p.slots) || p.slots[h] == nil {
		return
	}
	p.slots[h] = nil
	p.freeList = append(p.freeList, h)
}

func (p *Pool) slot(h Handle) *ConnectionInfo {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if int(h) < 0 || int(h) >= len(p.slots) {
		return nil
	}
	return p.slots[h]
}

// Get returns a copy of the current info for h, for tests and diagnostics.
func (p *Pool) Get(h Handle) (ConnectionInfo, bool) {
	info := p.slot(h)
	if info == nil {
		return ConnectionInfo{}, false
	}
	return *info, true
}

// SetTimeOffset records the clock offset a peer reported during handshake,
// for the supervisor's network time offset computation (spec §4.J).
func (p *Pool) SetTimeOffset(h Handle, offset time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if int(h) >= 0 && int(h) < len(p.slots) && p.slots[h] != nil {
		p.slots[h].TimeOffset = offset
	}
}

// EstablishedPeers returns a snapshot of every currently Established
// connection, for the supervisor's recycling and time-offset computations.
func (p *Pool) EstablishedPeers() []ConnectionInfo {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]ConnectionInfo, 0, len(p.slots))
	for _, info := range p.slots {
		if info != nil && info.State == StateEstablished {
			out = append(out, *info)
		}
	}
	return out
}

// ConnectedNets returns the IP of every connection in the pool, at any
// lifecycle stage, deduplicated, for the supervisor's exclude-set when
// picking a new outbound candidate.
func (p *Pool) ConnectedNets() *set.Set {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s := set.New()
	for _, info := range p.slots {
		if info != nil {
			s.Add(netutil.ExactKey(info.Net.IP))
		}
	}
	return s
}
