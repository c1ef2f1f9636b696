package discovery

import (
	"context"
	"sync"
	"time"

	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lncore/chainntnfs"
	"github.com/lightningnetwork/lncore/chainscript"
	"github.com/lightningnetwork/lncore/lnwire"
	"github.com/lightningnetwork/lncore/subscribe"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/queue"
	"github.com/lightningnetwork/lnd/ticker"
)

const (
	// DefaultMaxParallelValidations caps how many stashed channel
	// announcements are submitted for on-chain validation in one batch.
	DefaultMaxParallelValidations = 50

	// DefaultTrickleInterval is how often the rebroadcast queue is
	// drained downstream.
	DefaultTrickleInterval = 90 * time.Second

	// DefaultPruneInterval is how often stale channels are swept from
	// the graph.
	DefaultPruneInterval = 24 * time.Hour

	// DefaultValidateInterval is how often a pending validation batch is
	// started.
	DefaultValidateInterval = 5 * time.Second

	// DefaultRPCTimeout bounds each on-chain validation lookup.
	DefaultRPCTimeout = 30 * time.Second

	// staleChannelBlocks is how far behind the chain tip a channel's
	// funding height must be before it can be considered stale.
	staleChannelBlocks = 2016

	// staleUpdateAge is how old the freshest update in either direction
	// must be before a channel is considered stale.
	staleUpdateAge = 14 * 24 * time.Hour
)

// ExternalChannelSpent is the watch tag the router attaches to the spend
// watches it registers on announced funding outputs. Receiving it back means
// the channel is closed on-chain and must leave the graph.
type ExternalChannelSpent struct {
	// ShortChanID identifies the closed channel.
	ShortChanID lnwire.ShortChannelID
}

// ChainView is the slice of the chain watcher the router depends on.
type ChainView interface {
	// ValidateChannel resolves an announcement to its funding
	// transaction and reports whether the funding output is unspent.
	ValidateChannel(ctx context.Context,
		ann *lnwire.ChannelAnnouncement) (*wire.MsgTx, bool, error)

	// Register adds a watch delivering to the given consumer.
	Register(watch chainntnfs.Watch, consumer *chainntnfs.Consumer)

	// BestBlockHeight returns the best known block height.
	BestBlockHeight() uint32
}

// Config bundles the collaborators and knobs of the Router.
//
//nolint:lll
type Config struct {
	// Chain validates announced channels against the blockchain and
	// watches admitted funding outputs.
	Chain ChainView

	// Clock is the time source for staleness decisions and exclusion
	// lifetimes.
	Clock clock.Clock

	// Broadcast drains a rebroadcast batch to the downstream gossip
	// broadcaster, preserving the batch's order.
	Broadcast func(msgs []lnwire.Message) error

	// SendError delivers a protocol-error reply to the peer a rejected
	// message came from.
	SendError func(peer Vertex, err error)

	// TrickleTicker fires the periodic rebroadcast drain.
	TrickleTicker ticker.Ticker

	// PruneTicker fires the periodic stale-channel sweep.
	PruneTicker ticker.Ticker

	// ValidateTicker fires the periodic start of a validation batch.
	ValidateTicker ticker.Ticker

	// MaxParallelValidations caps the validation batch size.
	MaxParallelValidations int `long:"maxparallelvalidations" description:"Maximum channel announcements validated on-chain in one batch."`

	// RPCTimeout bounds each individual validation lookup.
	RPCTimeout time.Duration `long:"rpctimeout" description:"Timeout applied to every on-chain validation lookup."`
}

// fsmState is the router's explicit processing state.
type fsmState uint8

const (
	// stateNormal is the steady state: everything is handled, and a new
	// validation batch may be started.
	stateNormal fsmState = iota

	// stateWaitingForValidation is entered while a validation batch is
	// in flight. All events are handled as in stateNormal except that no
	// second batch may start.
	stateWaitingForValidation
)

// String returns a human readable state name.
func (s fsmState) String() string {
	switch s {
	case stateNormal:
		return "NORMAL"
	case stateWaitingForValidation:
		return "WAITING_FOR_VALIDATION"
	default:
		return "<unknown>"
	}
}

// localChannel is a channel of our own, fed to the router through its
// lifecycle events rather than through gossip.
type localChannel struct {
	desc   ChannelDesc
	update *lnwire.ChannelUpdate
}

// stashedMsg is a gossip message parked until the channel it depends on has
// been validated.
type stashedMsg struct {
	peer Vertex
	msg  lnwire.Message
}

// routerState is the complete graph state owned by the router's event loop.
type routerState struct {
	// nodes holds the freshest announcement of every node referenced by
	// at least one channel.
	nodes map[Vertex]*lnwire.NodeAnnouncement

	// channels holds every announcement that passed on-chain validation.
	channels map[lnwire.ShortChannelID]*lnwire.ChannelAnnouncement

	// updates holds the freshest policy per directed edge.
	updates map[ChannelDesc]*lnwire.ChannelUpdate

	// stash parks messages whose channel has not been validated yet, in
	// receipt order.
	stash []stashedMsg

	// stashedChans indexes the channel announcements currently in the
	// stash.
	stashedChans map[lnwire.ShortChannelID]struct{}

	// awaiting holds the announcements of the validation batch in
	// flight.
	awaiting map[lnwire.ShortChannelID]*lnwire.ChannelAnnouncement

	// rebroadcast collects messages to forward downstream on the next
	// trickle tick, in insertion order.
	rebroadcast []lnwire.Message

	// origins remembers which peer sent each message, reset on every
	// trickle tick.
	origins map[lnwire.Message]Vertex

	// localUpdates holds the edges of our own channels, keyed by
	// channel.
	localUpdates map[lnwire.ShortChannelID]*localChannel

	// excluded holds temporarily unusable edges and the time their
	// exclusion lifts.
	excluded map[ChannelDesc]time.Time
}

// newRouterState returns an empty graph state.
func newRouterState() routerState {
	return routerState{
		nodes:        make(map[Vertex]*lnwire.NodeAnnouncement),
		channels:     make(map[lnwire.ShortChannelID]*lnwire.ChannelAnnouncement),
		updates:      make(map[ChannelDesc]*lnwire.ChannelUpdate),
		stashedChans: make(map[lnwire.ShortChannelID]struct{}),
		awaiting:     make(map[lnwire.ShortChannelID]*lnwire.ChannelAnnouncement),
		origins:      make(map[lnwire.Message]Vertex),
		localUpdates: make(map[lnwire.ShortChannelID]*localChannel),
		excluded:     make(map[ChannelDesc]time.Time),
	}
}

// Messages processed by the router's mailbox.
type (
	// networkMsg is a gossip message received from a peer.
	networkMsg struct {
		peer Vertex
		msg  lnwire.Message
	}

	// validationResult is the outcome of one on-chain channel lookup.
	validationResult struct {
		ann       *lnwire.ChannelAnnouncement
		fundingTx *wire.MsgTx
		unspent   bool
		err       error
	}

	// batchResultMsg carries a finished validation batch back into the
	// event loop.
	batchResultMsg struct {
		results []*validationResult
	}

	// excludeMsg makes an edge unusable for a while.
	excludeMsg struct {
		desc     ChannelDesc
		duration time.Duration
	}

	// liftExclusionMsg reinstates an excluded edge once its deadline
	// passed.
	liftExclusionMsg struct {
		desc     ChannelDesc
		deadline time.Time
	}

	// localChannelMsg is a lifecycle event of one of our own channels.
	localChannelMsg struct {
		scid    lnwire.ShortChannelID
		active  bool
		channel *localChannel
	}

	// watchEventMsg is a chain watch event delivered to the router.
	watchEventMsg struct {
		event chainntnfs.WatchEvent
	}
)

// Router ingests gossip into a validated channel graph and answers route
// requests over it. All state is owned by a single goroutine fed through a
// mailbox; the exported methods only enqueue.
type Router struct {
	started sync.Once
	stopped sync.Once

	cfg Config

	state routerState
	fsm   fsmState

	rejects *rejectCache

	mailbox *queue.ConcurrentQueue

	ntfnServer *subscribe.Server

	// spendConsumer receives the spend events of watched funding
	// outputs.
	spendConsumer *chainntnfs.Consumer

	wg   sync.WaitGroup
	quit chan struct{}
}

// New creates a Router from the given config.
func New(cfg Config) *Router {
	if cfg.Clock == nil {
		cfg.Clock = clock.NewDefaultClock()
	}
	if cfg.MaxParallelValidations == 0 {
		cfg.MaxParallelValidations = DefaultMaxParallelValidations
	}
	if cfg.RPCTimeout == 0 {
		cfg.RPCTimeout = DefaultRPCTimeout
	}
	if cfg.TrickleTicker == nil {
		cfg.TrickleTicker = ticker.New(DefaultTrickleInterval)
	}
	if cfg.PruneTicker == nil {
		cfg.PruneTicker = ticker.New(DefaultPruneInterval)
	}
	if cfg.ValidateTicker == nil {
		cfg.ValidateTicker = ticker.New(DefaultValidateInterval)
	}

	return &Router{
		cfg:           cfg,
		state:         newRouterState(),
		fsm:           stateNormal,
		rejects:       newRejectCache(),
		mailbox:       queue.NewConcurrentQueue(20),
		ntfnServer:    subscribe.NewServer(),
		spendConsumer: chainntnfs.NewConsumer("gossip-router"),
		quit:          make(chan struct{}),
	}
}

// Start launches the router's goroutines.
func (r *Router) Start() error {
	var startErr error
	r.started.Do(func() {
		log.Info("GossipRouter starting")

		if err := r.ntfnServer.Start(); err != nil {
			startErr = err
			return
		}

		r.mailbox.Start()
		r.cfg.TrickleTicker.Resume()
		r.cfg.PruneTicker.Resume()
		r.cfg.ValidateTicker.Resume()

		r.wg.Add(2)
		go r.eventLoop()
		go r.forwardWatchEvents()
	})

	return startErr
}

// Stop shuts the router down and waits for its goroutines to exit.
func (r *Router) Stop() error {
	r.stopped.Do(func() {
		log.Info("GossipRouter shutting down")

		close(r.quit)
		r.spendConsumer.Close()
		r.wg.Wait()

		r.mailbox.Stop()
		if err := r.ntfnServer.Stop(); err != nil {
			log.Warnf("Unable to stop topology notifier: %v", err)
		}
		r.cfg.TrickleTicker.Stop()
		r.cfg.PruneTicker.Stop()
		r.cfg.ValidateTicker.Stop()
	})

	return nil
}

// ProcessMessage hands the router a gossip message received from the given
// peer. Messages from one peer are processed in the order they were handed
// in.
func (r *Router) ProcessMessage(peer Vertex, msg lnwire.Message) {
	r.enqueue(networkMsg{peer: peer, msg: msg})
}

// FindRoute computes a path from start to end over the currently usable
// graph, with the given nodes and channels excluded for just this request.
func (r *Router) FindRoute(start, end Vertex,
	ignoreNodes map[Vertex]struct{},
	ignoreChans map[lnwire.ShortChannelID]struct{}) ([]*Hop, error) {

	req := &routeReq{
		start:       start,
		end:         end,
		ignoreNodes: ignoreNodes,
		ignoreChans: ignoreChans,
		resp:        make(chan routeResp, 1),
	}

	r.enqueue(req)

	select {
	case resp := <-req.resp:
		return resp.hops, resp.err
	case <-r.quit:
		return nil, subscribe.ErrServerShuttingDown
	}
}

// ExcludeChannel makes the given edge unusable for routing for the given
// duration, after which it is automatically reinstated.
func (r *Router) ExcludeChannel(desc ChannelDesc, duration time.Duration) {
	r.enqueue(excludeMsg{desc: desc, duration: duration})
}

// LocalChannelUp records one of our own channels (or a policy change on it)
// so that routing can use it even before any public announcement exists.
func (r *Router) LocalChannelUp(desc ChannelDesc,
	update *lnwire.ChannelUpdate) {

	r.enqueue(localChannelMsg{
		scid:   desc.ShortChanID,
		active: true,
		channel: &localChannel{
			desc:   desc,
			update: update,
		},
	})
}

// LocalChannelDown removes one of our own channels from the graph.
func (r *Router) LocalChannelDown(scid lnwire.ShortChannelID) {
	r.enqueue(localChannelMsg{scid: scid})
}

// enqueue posts a message to the router's mailbox.
func (r *Router) enqueue(msg interface{}) {
	select {
	case r.mailbox.ChanIn() <- msg:
	case <-r.quit:
	}
}

// forwardWatchEvents moves spend events from the watch consumer into the
// mailbox so they are serialized with everything else.
//
// NOTE: MUST be run as a goroutine.
func (r *Router) forwardWatchEvents() {
	defer r.wg.Done()

	for {
		select {
		case event, ok := <-r.spendConsumer.Events():
			if !ok {
				return
			}
			r.enqueue(watchEventMsg{
				event: event.(chainntnfs.WatchEvent),
			})

		case <-r.quit:
			return
		}
	}
}

// eventLoop is the router's single state-owning goroutine.
//
// NOTE: MUST be run as a goroutine.
func (r *Router) eventLoop() {
	defer r.wg.Done()

	for {
		select {
		case msg := <-r.mailbox.ChanOut():
			r.handleMessage(msg)

		case <-r.cfg.TrickleTicker.Ticks():
			r.handleTickBroadcast()

		case <-r.cfg.PruneTicker.Ticks():
			r.handleTickPrune()

		case <-r.cfg.ValidateTicker.Ticks():
			r.handleTickValidate()

		case <-r.quit:
			return
		}
	}
}

// handleMessage dispatches a single mailbox message. Both FSM states handle
// the same set of messages; only starting a validation batch is gated on
// the state.
func (r *Router) handleMessage(msg interface{}) {
	switch msg := msg.(type) {
	case networkMsg:
		r.handleNetworkMsg(msg.peer, msg.msg)

	case *routeReq:
		hops, err := r.findRoute(msg)
		msg.resp <- routeResp{hops: hops, err: err}

	case batchResultMsg:
		r.handleBatchResult(msg.results)

	case excludeMsg:
		r.handleExclude(msg.desc, msg.duration)

	case liftExclusionMsg:
		r.handleLiftExclusion(msg.desc, msg.deadline)

	case localChannelMsg:
		r.handleLocalChannel(msg)

	case watchEventMsg:
		r.handleWatchEvent(msg.event)

	default:
		log.Warnf("Unknown mailbox message %T", msg)
	}
}

// handleNetworkMsg routes an ingested gossip message to its handler.
func (r *Router) handleNetworkMsg(peer Vertex, msg lnwire.Message) {
	switch msg := msg.(type) {
	case *lnwire.ChannelAnnouncement:
		r.handleChannelAnnouncement(peer, msg)

	case *lnwire.NodeAnnouncement:
		r.handleNodeAnnouncement(peer, msg)

	case *lnwire.ChannelUpdate:
		r.handleChannelUpdate(peer, msg)

	default:
		log.Debugf("Ignoring gossip message of type %T from %v", msg,
			peer)
	}
}

// handleChannelAnnouncement stashes a fresh, well-signed announcement for
// on-chain validation. Duplicates are dropped silently, bad signatures are
// bounced back to the sender.
func (r *Router) handleChannelAnnouncement(peer Vertex,
	ann *lnwire.ChannelAnnouncement) {

	scid := ann.ShortChannelID

	// Duplicate of something already admitted, being validated, or
	// queued for validation.
	if _, ok := r.state.channels[scid]; ok {
		return
	}
	if _, ok := r.state.awaiting[scid]; ok {
		return
	}
	if _, ok := r.state.stashedChans[scid]; ok {
		return
	}

	if r.rejects.isRejected(ann) {
		return
	}

	if !ann.LessNodeID() {
		r.rejects.remember(ann)
		r.replyError(peer, ErrBadSignature)
		return
	}

	if err := validateChannelAnn(ann); err != nil {
		log.Debugf("Rejecting channel announcement %v from %v: %v",
			scid, peer, err)
		r.rejects.remember(ann)
		r.replyError(peer, err)
		return
	}

	r.state.stash = append(r.state.stash, stashedMsg{peer: peer, msg: ann})
	r.state.stashedChans[scid] = struct{}{}
	r.state.origins[ann] = peer
}

// handleNodeAnnouncement stores or stashes a node announcement depending on
// whether any channel references the node yet.
func (r *Router) handleNodeAnnouncement(peer Vertex,
	na *lnwire.NodeAnnouncement) {

	node := Vertex(na.NodeID)

	stored, known := r.state.nodes[node]
	if known && stored.Timestamp >= na.Timestamp {
		return
	}

	if r.rejects.isRejected(na) {
		return
	}

	if err := validateNodeAnn(na); err != nil {
		log.Debugf("Rejecting node announcement for %v from %v: %v",
			node, peer, err)
		r.rejects.remember(na)
		r.replyError(peer, err)
		return
	}

	switch {
	// A fresher copy of a node we already track.
	case known:
		r.state.nodes[node] = na
		r.enqueueRebroadcast(na, peer)

	// First announcement of a node some admitted channel references.
	case r.hasChannelForNode(node):
		r.state.nodes[node] = na
		r.enqueueRebroadcast(na, peer)

	// The referencing channel is still being validated; park the
	// announcement until that resolves.
	case r.pendingChannelReferences(node):
		r.state.stash = append(r.state.stash, stashedMsg{
			peer: peer,
			msg:  na,
		})
		r.state.origins[na] = peer

	// No channel relates to this node at all.
	default:
	}
}

// handleChannelUpdate applies a policy update to a known channel, or parks
// it while the channel's announcement is being validated.
func (r *Router) handleChannelUpdate(peer Vertex, upd *lnwire.ChannelUpdate) {
	scid := upd.ShortChannelID

	nodeA, nodeB, known := r.channelEndpoints(scid)
	if known {
		desc := descForUpdate(scid, nodeA, nodeB, upd)

		stored, ok := r.state.updates[desc]
		if ok && stored.Timestamp >= upd.Timestamp {
			return
		}

		if r.rejects.isRejected(upd) {
			return
		}

		if err := validateChannelUpdate(desc.From, upd); err != nil {
			log.Debugf("Rejecting channel update %v from %v: %v",
				scid, peer, err)
			r.rejects.remember(upd)
			r.replyError(peer, err)
			return
		}

		r.state.updates[desc] = upd
		r.enqueueRebroadcast(upd, peer)
		return
	}

	// Announcement still pending validation: park the update.
	_, stashed := r.state.stashedChans[scid]
	_, awaiting := r.state.awaiting[scid]
	if stashed || awaiting {
		r.state.stash = append(r.state.stash, stashedMsg{
			peer: peer,
			msg:  upd,
		})
		r.state.origins[upd] = peer
		return
	}

	// Nothing known about this channel at all.
}

// channelEndpoints returns the two endpoints of a channel the router knows
// about, through its public announcement or as one of our own channels.
func (r *Router) channelEndpoints(scid lnwire.ShortChannelID) (Vertex, Vertex,
	bool) {

	if ann, ok := r.state.channels[scid]; ok {
		return Vertex(ann.NodeID1), Vertex(ann.NodeID2), true
	}
	if local, ok := r.state.localUpdates[scid]; ok {
		return local.desc.From, local.desc.To, true
	}

	return Vertex{}, Vertex{}, false
}

// hasChannelForNode reports whether any admitted or local channel has the
// node as an endpoint.
func (r *Router) hasChannelForNode(node Vertex) bool {
	for _, ann := range r.state.channels {
		if Vertex(ann.NodeID1) == node || Vertex(ann.NodeID2) == node {
			return true
		}
	}
	for _, local := range r.state.localUpdates {
		if local.desc.From == node || local.desc.To == node {
			return true
		}
	}

	return false
}

// pendingChannelReferences reports whether any stashed or in-validation
// channel announcement references the node.
func (r *Router) pendingChannelReferences(node Vertex) bool {
	for _, s := range r.state.stash {
		ann, ok := s.msg.(*lnwire.ChannelAnnouncement)
		if !ok {
			continue
		}
		if Vertex(ann.NodeID1) == node || Vertex(ann.NodeID2) == node {
			return true
		}
	}
	for _, ann := range r.state.awaiting {
		if Vertex(ann.NodeID1) == node || Vertex(ann.NodeID2) == node {
			return true
		}
	}

	return false
}

// enqueueRebroadcast queues a message for the next trickle tick.
func (r *Router) enqueueRebroadcast(msg lnwire.Message, peer Vertex) {
	r.state.rebroadcast = append(r.state.rebroadcast, msg)
	r.state.origins[msg] = peer
}

// replyError bounces a protocol error back to the peer a message came from.
func (r *Router) replyError(peer Vertex, err error) {
	if r.cfg.SendError == nil {
		return
	}
	r.cfg.SendError(peer, err)
}

// handleTickValidate starts a validation batch when one can be started and
// there is something to validate.
func (r *Router) handleTickValidate() {
	batch := r.extractValidationBatch()
	if len(batch) == 0 {
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		results := r.runValidations(batch)
		r.enqueue(batchResultMsg{results: results})
	}()
}

// extractValidationBatch moves up to MaxParallelValidations announcements
// from the stash into the awaiting set and transitions the FSM. It returns
// nil while a batch is already in flight, refusing to start a second one.
func (r *Router) extractValidationBatch() []*lnwire.ChannelAnnouncement {
	if r.fsm != stateNormal {
		return nil
	}

	var (
		batch []*lnwire.ChannelAnnouncement
		rest  []stashedMsg
	)
	for _, s := range r.state.stash {
		ann, ok := s.msg.(*lnwire.ChannelAnnouncement)
		if !ok || len(batch) >= r.cfg.MaxParallelValidations {
			rest = append(rest, s)
			continue
		}

		delete(r.state.stashedChans, ann.ShortChannelID)
		r.state.awaiting[ann.ShortChannelID] = ann
		batch = append(batch, ann)
	}

	if len(batch) == 0 {
		return nil
	}

	r.state.stash = rest
	r.fsm = stateWaitingForValidation

	log.Debugf("Validating batch of %d channel announcement(s)",
		len(batch))

	return batch
}

// runValidations resolves every announcement of a batch against the chain.
// It runs outside the event loop; individual lookup failures only affect
// their own announcement.
func (r *Router) runValidations(
	batch []*lnwire.ChannelAnnouncement) []*validationResult {

	results := make([]*validationResult, len(batch))

	var wg sync.WaitGroup
	for i, ann := range batch {
		wg.Add(1)
		go func(i int, ann *lnwire.ChannelAnnouncement) {
			defer wg.Done()

			ctx, cancel := context.WithTimeout(
				context.Background(), r.cfg.RPCTimeout,
			)
			defer cancel()

			tx, unspent, err := r.cfg.Chain.ValidateChannel(
				ctx, ann,
			)
			results[i] = &validationResult{
				ann:       ann,
				fundingTx: tx,
				unspent:   unspent,
				err:       err,
			}
		}(i, ann)
	}
	wg.Wait()

	return results
}

// handleBatchResult folds a finished validation batch back into the graph
// and returns the FSM to its steady state.
func (r *Router) handleBatchResult(results []*validationResult) {
	for _, res := range results {
		scid := res.ann.ShortChannelID
		delete(r.state.awaiting, scid)

		switch {
		// The funding tx could not be retrieved: drop from this
		// batch, without prejudice.
		case res.err != nil:
			log.Debugf("Dropping channel %v from batch: %v", scid,
				res.err)

		// The funding output is already spent: the channel is dead
		// on arrival.
		case !res.unspent:
			log.Debugf("Discarding channel %v: funding output "+
				"spent", scid)

		case !fundingScriptMatches(res.ann, res.fundingTx):
			log.Debugf("Discarding channel %v: funding output "+
				"script mismatch", scid)

		default:
			r.admitChannel(res.ann, res.fundingTx)
		}
	}

	r.fsm = stateNormal
}

// fundingScriptMatches checks that the funding output referenced by the
// announcement is the P2WSH of the 2-of-2 multisig over its bitcoin keys.
func fundingScriptMatches(ann *lnwire.ChannelAnnouncement,
	fundingTx *wire.MsgTx) bool {

	idx := int(ann.ShortChannelID.TxPosition)
	if fundingTx == nil || idx >= len(fundingTx.TxOut) {
		return false
	}

	ok, err := chainscript.IsFundingScript(
		fundingTx.TxOut[idx].PkScript, ann.BitcoinKey1[:],
		ann.BitcoinKey2[:],
	)

	return err == nil && ok
}

// admitChannel adds a validated channel to the graph, arranges for its
// removal when the funding output is spent, and re-injects any parked
// messages that were waiting on it.
func (r *Router) admitChannel(ann *lnwire.ChannelAnnouncement,
	fundingTx *wire.MsgTx) {

	scid := ann.ShortChannelID

	log.Infof("Admitting channel %v", scid)

	r.state.channels[scid] = ann
	r.state.rebroadcast = append(r.state.rebroadcast, ann)

	txHash := fundingTx.TxHash()
	r.cfg.Chain.Register(chainntnfs.WatchSpentBasic{
		TxID:        txHash,
		OutputIndex: uint32(scid.TxPosition),
		Tag:         ExternalChannelSpent{ShortChanID: scid},
	}, r.spendConsumer)

	r.reinjectPending(ann)
}

// reinjectPending re-runs stashed node announcements and channel updates
// that reference the just-admitted channel.
func (r *Router) reinjectPending(ann *lnwire.ChannelAnnouncement) {
	node1, node2 := Vertex(ann.NodeID1), Vertex(ann.NodeID2)
	scid := ann.ShortChannelID

	var pending, rest []stashedMsg
	for _, s := range r.state.stash {
		switch msg := s.msg.(type) {
		case *lnwire.NodeAnnouncement:
			node := Vertex(msg.NodeID)
			if node == node1 || node == node2 {
				pending = append(pending, s)
				continue
			}

		case *lnwire.ChannelUpdate:
			if msg.ShortChannelID == scid {
				pending = append(pending, s)
				continue
			}
		}
		rest = append(rest, s)
	}
	r.state.stash = rest

	for _, s := range pending {
		r.handleNetworkMsg(s.peer, s.msg)
	}
}

// handleTickBroadcast drains the rebroadcast queue downstream and resets
// the per-interval origin tracking.
func (r *Router) handleTickBroadcast() {
	batch := r.state.rebroadcast
	r.state.rebroadcast = nil
	r.state.origins = make(map[lnwire.Message]Vertex)

	if len(batch) == 0 || r.cfg.Broadcast == nil {
		return
	}

	log.Debugf("Rebroadcasting batch of %d message(s)", len(batch))

	if err := r.cfg.Broadcast(batch); err != nil {
		log.Errorf("Unable to rebroadcast batch: %v", err)
	}
}

// handleTickPrune sweeps channels that are both anchored far behind the
// chain tip and silent in both directions for too long, then drops any
// nodes left without channels.
func (r *Router) handleTickPrune() {
	height := r.cfg.Chain.BestBlockHeight()
	if height <= staleChannelBlocks {
		return
	}
	cutoffHeight := height - staleChannelBlocks
	now := r.cfg.Clock.Now()

	var stale []lnwire.ShortChannelID
	for scid := range r.state.channels {
		if scid.BlockHeight >= cutoffHeight {
			continue
		}
		if r.hasFreshUpdate(scid, now) {
			continue
		}
		stale = append(stale, scid)
	}

	if len(stale) == 0 {
		return
	}

	log.Infof("Pruning %d stale channel(s)", len(stale))

	for _, scid := range stale {
		r.removeChannel(scid)
	}
	r.pruneOrphanNodes()
}

// hasFreshUpdate reports whether either direction of the channel saw an
// update within the staleness window.
func (r *Router) hasFreshUpdate(scid lnwire.ShortChannelID,
	now time.Time) bool {

	for desc, upd := range r.state.updates {
		if desc.ShortChanID != scid {
			continue
		}

		age := now.Sub(time.Unix(int64(upd.Timestamp), 0))
		if age <= staleUpdateAge {
			return true
		}
	}

	return false
}

// removeChannel deletes a channel and every update keyed by it, publishing
// a ChannelLost event.
func (r *Router) removeChannel(scid lnwire.ShortChannelID) {
	if _, ok := r.state.channels[scid]; !ok {
		return
	}

	delete(r.state.channels, scid)
	for desc := range r.state.updates {
		if desc.ShortChanID == scid {
			delete(r.state.updates, desc)
		}
	}

	r.notifyTopologyChange(ChannelLost{ShortChanID: scid})
}

// pruneOrphanNodes drops every node no remaining channel references,
// publishing a NodeLost event per node.
func (r *Router) pruneOrphanNodes() {
	for node := range r.state.nodes {
		if r.hasChannelForNode(node) {
			continue
		}

		delete(r.state.nodes, node)
		r.notifyTopologyChange(NodeLost{Node: node})
	}
}

// handleWatchEvent removes a channel whose funding output was spent
// on-chain.
func (r *Router) handleWatchEvent(event chainntnfs.WatchEvent) {
	spent, ok := event.(chainntnfs.SpentBasicEvent)
	if !ok {
		return
	}
	tag, ok := spent.Tag.(ExternalChannelSpent)
	if !ok {
		return
	}

	log.Infof("Channel %v spent on-chain, removing from graph",
		tag.ShortChanID)

	r.removeChannel(tag.ShortChanID)
	r.pruneOrphanNodes()
}

// handleExclude makes an edge unusable and schedules its reinstatement.
func (r *Router) handleExclude(desc ChannelDesc, duration time.Duration) {
	deadline := r.cfg.Clock.Now().Add(duration)
	r.state.excluded[desc] = deadline

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		select {
		case <-r.cfg.Clock.TickAfter(duration):
			r.enqueue(liftExclusionMsg{
				desc:     desc,
				deadline: deadline,
			})
		case <-r.quit:
		}
	}()
}

// handleLiftExclusion reinstates an edge, unless a later exclusion extended
// its deadline in the meantime.
func (r *Router) handleLiftExclusion(desc ChannelDesc, deadline time.Time) {
	stored, ok := r.state.excluded[desc]
	if !ok || stored.After(deadline) {
		return
	}

	delete(r.state.excluded, desc)
}

// handleLocalChannel applies a lifecycle event of one of our own channels.
func (r *Router) handleLocalChannel(msg localChannelMsg) {
	if msg.active {
		r.state.localUpdates[msg.scid] = msg.channel
		return
	}

	delete(r.state.localUpdates, msg.scid)

	// Updates keyed by the channel lose their anchor unless a public
	// announcement still carries it.
	if _, ok := r.state.channels[msg.scid]; !ok {
		for desc := range r.state.updates {
			if desc.ShortChanID == msg.scid {
				delete(r.state.updates, desc)
			}
		}
	}

	// A node may have been tracked solely for this channel.
	r.pruneOrphanNodes()
}
