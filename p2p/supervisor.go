package p2p

import (
	"sort"
	"sync"
	"time"

	"github.com/chaincore/core/addressbook"
	"github.com/chaincore/core/event"
	"github.com/chaincore/core/p2p/netutil"
)

// funcListener adapts a plain function to event.Listener so Supervisor
// doesn't need its own named type for the single event handler it needs.
type funcListener func(evt interface{})

func (f funcListener) Notify(evt interface{}) { f(evt) }

// Supervisor runs the periodic housekeeping loop that keeps a pool healthy
// (spec §4.J): it ramps the share of established peers offered up for
// recycling as the pool fills, opens the inbound-exchange gate when the
// worst peer is scoring poorly, drives the auto-connect loop while keeping
// an exponential backoff value, and tracks the node's network time offset as the
// median of its established peers' reported offsets.
//
// Grounded on the teacher's single discovery/dial housekeeping goroutine
// (node/cn and p2p/discover run one ticker-driven loop each, not a thread
// per concern); this supervisor folds the spec's three housekeeping
// concerns into that same one-goroutine shape.
type Supervisor struct {
	cfg  SupervisorConfig
	pool *Pool
	book addressbook.AddressBook

	mu             sync.Mutex
	autoConnect    bool
	backoff        time.Duration
	timeOffset     time.Duration
	stop           chan struct{}
	listenerHandle event.Handle
}

// NewSupervisor builds a supervisor for pool, consulting book for ban
// status, scores and dial candidates.
func NewSupervisor(cfg SupervisorConfig, pool *Pool, book addressbook.AddressBook) *Supervisor {
	return &Supervisor{
		cfg:         cfg,
		pool:        pool,
		book:        book,
		autoConnect: true,
		backoff:     cfg.ConnectBackoffInitial,
		stop:        make(chan struct{}),
	}
}

// Start launches the housekeeping loop and subscribes to the pool's peer
// join/leave events to keep the network time offset current between ticks.
func (s *Supervisor) Start() {
	s.listenerHandle = s.pool.Notifier.Register(funcListener(func(ev interface{}) {
		switch ev.(type) {
		case PeerJoinedEvent, PeerLeftEvent:
			s.recomputeTimeOffset()
		}
	}))
	go s.loop()
}

// Stop ends the housekeeping loop. Safe to call once.
func (s *Supervisor) Stop() {
	s.pool.Notifier.Deregister(s.listenerHandle)
	close(s.stop)
}

// SetAutoConnect enables or disables the check_peer_count auto-connect
// loop, for nodes that only want inbound peers (spec §4.J).
func (s *Supervisor) SetAutoConnect(v bool) {
	s.mu.Lock()
	s.autoConnect = v
	s.mu.Unlock()
}

// TimeOffset returns the current network time offset estimate.
func (s *Supervisor) TimeOffset() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeOffset
}

func (s *Supervisor) loop() {
	ticker := time.NewTicker(s.cfg.HousekeepingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.housekeep()
		}
	}
}

// housekeep runs one round of the three housekeeping concerns (spec §4.J):
// allow_inbound_exchange, recycling, and check_peer_count.
func (s *Supervisor) housekeep() {
	s.updateAllowInboundExchange()
	s.recycle()
	s.checkPeerCount()
}

// updateAllowInboundExchange opens the inbound-exchange gate ("accept one
// more inbound even past PEER_COUNT_MAX") whenever the worst-scoring
// established peer falls below SCORE_INBOUND_EXCHANGE (spec §4.J).
func (s *Supervisor) updateAllowInboundExchange() {
	peers := s.pool.EstablishedPeers()
	lowest := s.cfg.ScoreInboundExchange // no peers: neither above nor below, gate stays shut below
	seen := false
	for _, info := range peers {
		if info.PeerAddress == nil {
			continue
		}
		score := s.book.Score(*info.PeerAddress)
		if !seen || score < lowest {
			lowest = score
			seen = true
		}
	}
	s.pool.SetAllowInboundExchange(seen && lowest < s.cfg.ScoreInboundExchange)
}

// recycle closes a ramping share of established peers, from 1% of them at
// PEER_COUNT_RECYCLING_ACTIVE peers up to 20% at PEER_COUNT_MAX, worst
// score first, freeing slots for healthier connections (spec §4.J).
func (s *Supervisor) recycle() {
	peers := s.pool.EstablishedPeers()
	total := len(peers)
	if total < s.cfg.PeerCountRecyclingActive {
		return
	}

	pct := recyclingPercent(total, s.cfg.PeerCountRecyclingActive, s.pool.cfg.PeerCountMax)
	n := int(float64(total) * pct)
	if n <= 0 {
		return
	}

	sort.Slice(peers, func(i, j int) bool {
		return s.peerScore(peers[i]) < s.peerScore(peers[j])
	})
	for i := 0; i < n && i < len(peers); i++ {
		s.pool.Close(peers[i].Handle, addressbook.CloseRegular)
	}
}

func (s *Supervisor) peerScore(info ConnectionInfo) float64 {
	if info.PeerAddress == nil {
		return 0
	}
	return s.book.Score(*info.PeerAddress)
}

// recyclingPercent linearly interpolates from 1% at active up to 20% at
// max, clamped to that range; total >= active is the loop's precondition.
func recyclingPercent(total, active, peerMax int) float64 {
	const minPct, maxPct = 0.01, 0.20
	if peerMax <= active {
		return maxPct
	}
	frac := float64(total-active) / float64(peerMax-active)
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	return minPct + frac*(maxPct-minPct)
}

// checkPeerCount drives the auto-connect loop: while auto-connect is
// enabled, the pool isn't already saturated with pending outbound attempts,
// and the address book can still suggest a candidate, dial it. Backoff
// doubles (bounded by CONNECT_BACKOFF_MAX) each time the book has nothing
// left to offer, and resets on the next successful dial (spec §4.J). The
// backoff value is only recorded: checkPeerCount still runs on every
// housekeeping tick, whatever its current value.
func (s *Supervisor) checkPeerCount() {
	s.mu.Lock()
	auto := s.autoConnect
	s.mu.Unlock()
	if !auto {
		return
	}

	exclude := s.pool.ConnectedNets()
	for s.pool.ConnectingCount() < s.cfg.ConnectingCountMax {
		na, ok := s.book.PickUnconnected(exclude)
		if !ok {
			s.growBackoff()
			return
		}
		exclude.Add(netutil.ExactKey(na.IP))
		if s.pool.ConnectOutbound(nil, na, ConnWs) {
			s.resetBackoff()
		}
	}
}

func (s *Supervisor) growBackoff() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backoff *= 2
	if s.backoff > s.cfg.ConnectBackoffMax {
		s.backoff = s.cfg.ConnectBackoffMax
	}
}

func (s *Supervisor) resetBackoff() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backoff = s.cfg.ConnectBackoffInitial
}

// recomputeTimeOffset sets the network time offset to the median of every
// established peer's reported offset, plus an implicit 0 for the node
// itself (spec §4.J).
func (s *Supervisor) recomputeTimeOffset() {
	peers := s.pool.EstablishedPeers()
	offsets := make([]time.Duration, 0, len(peers)+1)
	offsets = append(offsets, 0)
	for _, info := range peers {
		offsets = append(offsets, info.TimeOffset)
	}
	sort.Slice(offsets, func(i, j int) bool { return offsets[i] < offsets[j] })

	mid := len(offsets) / 2
	var median time.Duration
	if len(offsets)%2 == 1 {
		median = offsets[mid]
	} else {
		median = (offsets[mid-1] + offsets[mid]) / 2
	}

	s.mu.Lock()
	s.timeOffset = median
	s.mu.Unlock()

	logger.Debug("network time offset updated", "offset", median, "peers", len(peers))
}
