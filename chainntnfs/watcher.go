package chainntnfs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lncore/lnwire"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/queue"
	"github.com/lightningnetwork/lnd/ticker"
)

const (
	// DefaultBlockTickDelay is how long the watcher waits after a new
	// block notification before it queries the backend, coalescing block
	// storms into a single tick.
	DefaultBlockTickDelay = 2 * time.Second

	// DefaultBroadcastBackoff is how long the broadcaster waits before
	// its single retry when the backend reports missing inputs.
	DefaultBroadcastBackoff = 3 * time.Second

	// DefaultReapInterval is how often the watcher checks registered
	// consumers for liveness.
	DefaultReapInterval = time.Minute

	// DefaultRPCTimeout bounds every individual backend call made by the
	// watcher.
	DefaultRPCTimeout = 30 * time.Second
)

// Config bundles the collaborators and knobs of the ChainWatcher.
//
//nolint:lll
type Config struct {
	// Backend is the Bitcoin backend queried for chain state.
	Backend ChainBackend

	// Clock is the time source used for debouncing and backoff, made
	// injectable so tests can run on a virtual clock.
	Clock clock.Clock

	// ReapTicker fires the periodic pass dropping watches whose consumer
	// has gone away.
	ReapTicker ticker.Ticker

	// BlockTickDelay is the debounce interval applied to new block
	// notifications.
	BlockTickDelay time.Duration `long:"blocktickdelay" description:"Delay before reacting to a new block, coalescing bursts."`

	// BroadcastBackoff is the wait before retrying a broadcast that
	// failed with missing inputs.
	BroadcastBackoff time.Duration `long:"broadcastbackoff" description:"Backoff before the single rebroadcast retry."`

	// RPCTimeout bounds each individual backend RPC.
	RPCTimeout time.Duration `long:"rpctimeout" description:"Timeout applied to every backend RPC call."`
}

// DefaultConfig returns a Config with all knobs at their defaults. Backend
// still needs to be populated; New falls back to the system clock and a
// default reap ticker when Clock and ReapTicker are left nil.
func DefaultConfig() Config {
	return Config{
		BlockTickDelay:   DefaultBlockTickDelay,
		BroadcastBackoff: DefaultBroadcastBackoff,
		RPCTimeout:       DefaultRPCTimeout,
	}
}

// watchEntry couples a registered watch with the consumer its events are
// delivered to. A nil consumer marks a watch the watcher registered for its
// own publish bookkeeping.
type watchEntry struct {
	watch    Watch
	consumer *Consumer
}

// parentConfirmedTag tags the confirmation watches the watcher registers on
// the parents of a CSV-delayed transaction awaiting publication.
type parentConfirmedTag struct {
	child chainhash.Hash
}

// pendingPublish tracks a transaction whose publication waits on its
// CSV-delayed parents reaching sufficient depth.
type pendingPublish struct {
	tx        *wire.MsgTx
	remaining int
}

// Messages processed by the watcher's mailbox.
type (
	// newBlockMsg signals that the backend announced a new block.
	newBlockMsg struct{}

	// newTxMsg signals that the backend announced a new mempool
	// transaction, or that a historical lookup discovered a relevant
	// spend.
	newTxMsg struct {
		tx *wire.MsgTx
	}

	// blockTickMsg is the debounced follow-up to one or more
	// newBlockMsgs. Only the generation issued last is acted upon.
	blockTickMsg struct {
		gen uint64
	}

	// registerMsg adds a watch on behalf of a consumer.
	registerMsg struct {
		watch    Watch
		consumer *Consumer
	}

	// publishMsg asks for a transaction to be broadcast once its
	// timelocks allow. csvChecked is set on re-entry after the
	// transaction's CSV parents have confirmed.
	publishMsg struct {
		tx         *wire.MsgTx
		csvChecked bool
	}
)

// ChainWatcher maintains the set of active watches, translates backend
// events into WatchEvents, and schedules transaction publication constrained
// by absolute and relative timelocks. All state is owned by a single
// goroutine fed through a mailbox; the exported methods only enqueue.
type ChainWatcher struct {
	started sync.Once
	stopped sync.Once

	cfg Config

	// bestBlock is the best known block height. It is written only by
	// the watcher's tick handler and read by anyone.
	bestBlock atomic.Uint32

	mailbox *queue.ConcurrentQueue

	// broadcastQueue feeds the single-writer broadcast goroutine,
	// preserving submission order across all publishes.
	broadcastQueue *queue.ConcurrentQueue

	// watches holds every active watch. Registration is idempotent by
	// virtue of watches being comparable map keys.
	watches map[Watch]*watchEntry

	// utxoIndex is a secondary index from watched outpoint to the
	// watches interested in it, so a new transaction is matched in
	// O(inputs) rather than O(watches).
	utxoIndex map[wire.OutPoint]map[Watch]*watchEntry

	// cltvQueue holds transactions waiting for an absolute locktime,
	// keyed by the height at which they become broadcastable.
	cltvQueue map[uint32][]*wire.MsgTx

	// csvWaiting tracks transactions waiting for their CSV parents to
	// confirm, keyed by their own hash.
	csvWaiting map[chainhash.Hash]*pendingPublish

	// tickGen invalidates pending debounced ticks when a newer block
	// notification supersedes them.
	tickGen uint64

	wg   sync.WaitGroup
	quit chan struct{}
}

// New creates a ChainWatcher from the given config.
func New(cfg Config) *ChainWatcher {
	if cfg.BlockTickDelay == 0 {
		cfg.BlockTickDelay = DefaultBlockTickDelay
	}
	if cfg.BroadcastBackoff == 0 {
		cfg.BroadcastBackoff = DefaultBroadcastBackoff
	}
	if cfg.RPCTimeout == 0 {
		cfg.RPCTimeout = DefaultRPCTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.NewDefaultClock()
	}
	if cfg.ReapTicker == nil {
		cfg.ReapTicker = ticker.New(DefaultReapInterval)
	}

	return &ChainWatcher{
		cfg:            cfg,
		mailbox:        queue.NewConcurrentQueue(20),
		broadcastQueue: queue.NewConcurrentQueue(10),
		watches:        make(map[Watch]*watchEntry),
		utxoIndex:      make(map[wire.OutPoint]map[Watch]*watchEntry),
		cltvQueue:      make(map[uint32][]*wire.MsgTx),
		csvWaiting:     make(map[chainhash.Hash]*pendingPublish),
		quit:           make(chan struct{}),
	}
}

// Start launches the watcher's goroutines.
func (w *ChainWatcher) Start() error {
	w.started.Do(func() {
		log.Info("ChainWatcher starting")

		w.mailbox.Start()
		w.broadcastQueue.Start()
		w.cfg.ReapTicker.Resume()

		w.wg.Add(2)
		go w.eventLoop()
		go w.broadcastLoop()
	})

	return nil
}

// Stop shuts the watcher down and waits for its goroutines to exit.
func (w *ChainWatcher) Stop() error {
	w.stopped.Do(func() {
		log.Info("ChainWatcher shutting down")

		close(w.quit)
		w.wg.Wait()

		w.mailbox.Stop()
		w.broadcastQueue.Stop()
		w.cfg.ReapTicker.Stop()
	})

	return nil
}

// BestBlockHeight returns the best known block height. Safe for concurrent
// use; the value is written only by the watcher itself.
func (w *ChainWatcher) BestBlockHeight() uint32 {
	return w.bestBlock.Load()
}

// Register adds a watch delivering to the given consumer. Registering a
// duplicate watch is a no-op. For spend watches the condition may already
// hold, in which case the triggering transaction is looked up historically
// and the event delivered as if it had just been observed.
func (w *ChainWatcher) Register(watch Watch, consumer *Consumer) {
	w.enqueue(registerMsg{watch: watch, consumer: consumer})
}

// PublishASAP hands the watcher a signed transaction to broadcast as soon as
// its CSV and CLTV constraints are satisfied. Publication may be arbitrarily
// delayed but is never reordered with respect to other publishes whose
// constraints are already met.
func (w *ChainWatcher) PublishASAP(tx *wire.MsgTx) {
	w.enqueue(publishMsg{tx: tx})
}

// NotifyBlockConnected informs the watcher that the backend learned of a new
// block. The reaction is debounced by BlockTickDelay.
func (w *ChainWatcher) NotifyBlockConnected() {
	w.enqueue(newBlockMsg{})
}

// NotifyMempoolTx informs the watcher of a newly observed mempool
// transaction.
func (w *ChainWatcher) NotifyMempoolTx(tx *wire.MsgTx) {
	w.enqueue(newTxMsg{tx: tx})
}

// ValidateChannel resolves a channel announcement's short channel ID to its
// funding transaction and reports whether the funding output is currently
// unspent. The lookup is stateless and may be called from any goroutine.
func (w *ChainWatcher) ValidateChannel(ctx context.Context,
	ann *lnwire.ChannelAnnouncement) (*wire.MsgTx, bool, error) {

	ctx, cancel := context.WithTimeout(ctx, w.cfg.RPCTimeout)
	defer cancel()

	scid := ann.ShortChannelID

	blockHash, err := w.cfg.Backend.GetBlockHash(
		ctx, int64(scid.BlockHeight),
	)
	if err != nil {
		return nil, false, fmt.Errorf("unable to locate block %d: %w",
			scid.BlockHeight, err)
	}

	block, err := w.cfg.Backend.GetBlock(ctx, blockHash)
	if err != nil {
		return nil, false, fmt.Errorf("unable to fetch block %v: %w",
			blockHash, err)
	}

	if scid.TxIndex >= uint32(len(block.Transactions)) {
		return nil, false, fmt.Errorf("block %d has no tx at "+
			"index %d: %w", scid.BlockHeight, scid.TxIndex,
			ErrTxNotFound)
	}
	fundingTx := block.Transactions[scid.TxIndex]

	txHash := fundingTx.TxHash()
	unspent, err := w.cfg.Backend.IsOutputSpendable(
		ctx, &txHash, uint32(scid.TxPosition), true,
	)
	if err != nil {
		return nil, false, fmt.Errorf("unable to query funding "+
			"output %v:%d: %w", txHash, scid.TxPosition, err)
	}

	return fundingTx, unspent, nil
}

// GetTxWithMeta fetches a transaction together with its best-effort block
// metadata. Stateless; may be called from any goroutine.
func (w *ChainWatcher) GetTxWithMeta(ctx context.Context,
	txid *chainhash.Hash) (*TxWithMeta, error) {

	ctx, cancel := context.WithTimeout(ctx, w.cfg.RPCTimeout)
	defer cancel()

	return w.cfg.Backend.GetTransaction(ctx, txid)
}

// enqueue posts a message to the watcher's mailbox.
func (w *ChainWatcher) enqueue(msg interface{}) {
	select {
	case w.mailbox.ChanIn() <- msg:
	case <-w.quit:
	}
}

// eventLoop is the watcher's single state-owning goroutine.
//
// NOTE: MUST be run as a goroutine.
func (w *ChainWatcher) eventLoop() {
	defer w.wg.Done()

	for {
		select {
		case msg := <-w.mailbox.ChanOut():
			w.handleMessage(msg)

		case <-w.cfg.ReapTicker.Ticks():
			w.reapConsumers()

		case <-w.quit:
			return
		}
	}
}

// handleMessage dispatches a single mailbox message.
func (w *ChainWatcher) handleMessage(msg interface{}) {
	switch msg := msg.(type) {
	case newBlockMsg:
		w.scheduleBlockTick()

	case blockTickMsg:
		// A newer block notification superseded this tick.
		if msg.gen != w.tickGen {
			return
		}
		w.handleBlockTick()

	case newTxMsg:
		w.handleNewTx(msg.tx)

	case registerMsg:
		w.handleRegister(msg.watch, msg.consumer)

	case publishMsg:
		w.handlePublish(msg.tx, msg.csvChecked)

	default:
		log.Warnf("Unknown mailbox message %T", msg)
	}
}

// scheduleBlockTick (re)arms the debounced block tick. A pending tick is
// invalidated by bumping the generation counter, so only the latest
// scheduled tick has any effect.
func (w *ChainWatcher) scheduleBlockTick() {
	w.tickGen++
	gen := w.tickGen

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()

		select {
		case <-w.cfg.Clock.TickAfter(w.cfg.BlockTickDelay):
			w.enqueue(blockTickMsg{gen: gen})
		case <-w.quit:
		}
	}()
}

// handleBlockTick reacts to the chain having grown: it refreshes the best
// height, re-evaluates all confirmation watches and drains the locktime
// publish queue. RPC errors are logged and retried on the next tick.
func (w *ChainWatcher) handleBlockTick() {
	ctx, cancel := context.WithTimeout(
		context.Background(), w.cfg.RPCTimeout,
	)
	defer cancel()

	count, err := w.cfg.Backend.GetBlockCount(ctx)
	if err != nil {
		log.Errorf("Unable to query block count: %v", err)
		return
	}
	height := uint32(count)
	w.bestBlock.Store(height)

	log.Debugf("Block tick: new height %d", height)

	w.checkConfWatches(ctx)
	w.drainCLTVQueue(height)
}

// checkConfWatches re-evaluates every confirmation watch against the
// backend, emitting Confirmed events for those that reached their depth.
func (w *ChainWatcher) checkConfWatches(ctx context.Context) {
	for watch, entry := range w.watches {
		conf, ok := watch.(WatchConfirmed)
		if !ok {
			continue
		}

		meta, err := w.cfg.Backend.GetTransaction(ctx, &conf.TxID)
		if err != nil {
			log.Debugf("Conf watch %v: tx lookup failed: %v",
				watch, err)
			continue
		}

		if meta.Confirmations < conf.MinDepth {
			continue
		}

		event := ConfirmedEvent{
			Tag:         conf.Tag,
			BlockHeight: meta.BlockHeight.UnwrapOr(0),
			TxIndex:     meta.BlockIndex.UnwrapOr(0),
			Tx:          meta.Tx,
		}

		// A confirmation watch fires exactly once.
		w.removeWatch(watch)
		w.deliver(entry, event)
	}
}

// handleNewTx matches a newly observed transaction against the watched UTXO
// index and fires the corresponding spend events.
func (w *ChainWatcher) handleNewTx(tx *wire.MsgTx) {
	for _, txIn := range tx.TxIn {
		entries, ok := w.utxoIndex[txIn.PreviousOutPoint]
		if !ok {
			continue
		}

		for watch, entry := range entries {
			switch watch := watch.(type) {
			case WatchSpentBasic:
				// Fires once, then resolves.
				w.removeWatch(watch)
				w.deliver(entry, SpentBasicEvent{
					Tag: watch.Tag,
				})

			case WatchSpent:
				// Permanent: fires for every spender seen.
				w.deliver(entry, SpentEvent{
					Tag:        watch.Tag,
					SpendingTx: tx,
				})
			}
		}
	}
}

// handleRegister installs a new watch. Duplicates are ignored.
func (w *ChainWatcher) handleRegister(watch Watch, consumer *Consumer) {
	if _, ok := w.watches[watch]; ok {
		return
	}

	entry := &watchEntry{watch: watch, consumer: consumer}

	switch watch := watch.(type) {
	case WatchConfirmed:
		w.watches[watch] = entry

		// The transaction may already be buried deep enough, so ask
		// for a tick rather than waiting for the next block.
		w.scheduleBlockTick()

	case WatchSpentBasic:
		w.watches[watch] = entry
		w.indexOutpoint(watch.TxID, watch.OutputIndex, entry)
		w.checkHistoricalSpend(watch.TxID, watch.OutputIndex)

	case WatchSpent:
		w.watches[watch] = entry
		w.indexOutpoint(watch.TxID, watch.OutputIndex, entry)
		w.checkHistoricalSpend(watch.TxID, watch.OutputIndex)

	default:
		// Unknown watch kinds are silently ignored.
		log.Debugf("Ignoring unsupported watch kind %T", watch)
	}
}

// indexOutpoint adds the entry to the watched UTXO index.
func (w *ChainWatcher) indexOutpoint(txid chainhash.Hash, index uint32,
	entry *watchEntry) {

	op := wire.OutPoint{Hash: txid, Index: index}
	if w.utxoIndex[op] == nil {
		w.utxoIndex[op] = make(map[Watch]*watchEntry)
	}
	w.utxoIndex[op][entry.watch] = entry
}

// removeWatch drops a watch from the watch set and the UTXO index.
func (w *ChainWatcher) removeWatch(watch Watch) {
	delete(w.watches, watch)

	var op wire.OutPoint
	switch watch := watch.(type) {
	case WatchSpentBasic:
		op = wire.OutPoint{Hash: watch.TxID, Index: watch.OutputIndex}
	case WatchSpent:
		op = wire.OutPoint{Hash: watch.TxID, Index: watch.OutputIndex}
	default:
		return
	}

	if entries, ok := w.utxoIndex[op]; ok {
		delete(entries, watch)
		if len(entries) == 0 {
			delete(w.utxoIndex, op)
		}
	}
}

// checkHistoricalSpend looks for a spend of the given outpoint that happened
// before the watch was registered. The lookup runs outside the event loop
// and feeds any discovered spender back through the normal new-transaction
// path.
func (w *ChainWatcher) checkHistoricalSpend(txid chainhash.Hash,
	index uint32) {

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()

		ctx, cancel := context.WithTimeout(
			context.Background(), w.cfg.RPCTimeout,
		)
		defer cancel()

		spender := w.findHistoricalSpender(ctx, txid, index)
		if spender != nil {
			w.enqueue(newTxMsg{tx: spender})
		}
	}()
}

// findHistoricalSpender returns the transaction spending the given outpoint
// if the output is already spent, checking the mempool first and falling
// back to a block scan from the output's own height.
func (w *ChainWatcher) findHistoricalSpender(ctx context.Context,
	txid chainhash.Hash, index uint32) *wire.MsgTx {

	spendable, err := w.cfg.Backend.IsOutputSpendable(
		ctx, &txid, index, true,
	)
	if err != nil {
		log.Errorf("Unable to query spendability of %v:%d: %v",
			txid, index, err)
		return nil
	}
	if spendable {
		return nil
	}

	op := wire.OutPoint{Hash: txid, Index: index}

	// The output is gone; the spender is hopefully still in the mempool.
	mempool, err := w.cfg.Backend.GetMempool(ctx)
	if err != nil {
		log.Errorf("Unable to scan mempool for spend of %v: %v",
			op, err)
		return nil
	}
	for _, tx := range mempool {
		if spendsOutpoint(tx, op) {
			return tx
		}
	}

	// Not in the mempool: the spend confirmed some time ago. Scan blocks
	// from the output's own height up to the tip.
	meta, err := w.cfg.Backend.GetTransaction(ctx, &txid)
	if err != nil {
		log.Errorf("Unable to locate watched tx %v: %v", txid, err)
		return nil
	}

	var start uint32
	meta.BlockHeight.WhenSome(func(h uint32) {
		start = h
	})

	count, err := w.cfg.Backend.GetBlockCount(ctx)
	if err != nil {
		log.Errorf("Unable to query block count: %v", err)
		return nil
	}

	for height := start; height <= uint32(count); height++ {
		hash, err := w.cfg.Backend.GetBlockHash(ctx, int64(height))
		if err != nil {
			log.Errorf("Unable to fetch block hash %d: %v",
				height, err)
			return nil
		}
		block, err := w.cfg.Backend.GetBlock(ctx, hash)
		if err != nil {
			log.Errorf("Unable to fetch block %v: %v", hash, err)
			return nil
		}

		for _, tx := range block.Transactions {
			if spendsOutpoint(tx, op) {
				return tx
			}
		}
	}

	return nil
}

// spendsOutpoint reports whether the transaction spends the given outpoint.
func spendsOutpoint(tx *wire.MsgTx, op wire.OutPoint) bool {
	for _, txIn := range tx.TxIn {
		if txIn.PreviousOutPoint == op {
			return true
		}
	}

	return false
}

// handlePublish decides how a transaction reaches the network: wait for CSV
// parents, wait for its absolute locktime, or broadcast right away.
func (w *ChainWatcher) handlePublish(tx *wire.MsgTx, csvChecked bool) {
	if !csvChecked {
		if w.deferForCSVParents(tx) {
			return
		}
	}

	// An absolute locktime below the threshold is a block height; wait
	// until the chain reaches it.
	height := w.bestBlock.Load()
	if tx.LockTime != 0 && tx.LockTime < txscript.LockTimeThreshold &&
		tx.LockTime > height {

		log.Debugf("Deferring publish of %v until height %d "+
			"(currently %d)", tx.TxHash(), tx.LockTime, height)

		w.cltvQueue[tx.LockTime] = append(w.cltvQueue[tx.LockTime], tx)
		return
	}

	w.sendToBroadcaster(tx)
}

// deferForCSVParents registers confirmation watches for every CSV-delayed
// input of the transaction. It returns true when publication has to wait.
func (w *ChainWatcher) deferForCSVParents(tx *wire.MsgTx) bool {
	if tx.Version < 2 {
		return false
	}

	type parentWatch struct {
		parent chainhash.Hash
		delay  uint32
	}
	var parents []parentWatch
	seen := make(map[parentWatch]struct{})

	for _, txIn := range tx.TxIn {
		seq := txIn.Sequence

		// A disabled or time-based sequence imposes no block-count
		// delay.
		if seq&wire.SequenceLockTimeDisabled != 0 {
			continue
		}
		if seq&wire.SequenceLockTimeIsSeconds != 0 {
			continue
		}

		delay := seq & wire.SequenceLockTimeMask
		if delay == 0 {
			continue
		}

		pw := parentWatch{
			parent: txIn.PreviousOutPoint.Hash,
			delay:  delay,
		}
		if _, ok := seen[pw]; ok {
			continue
		}
		seen[pw] = struct{}{}
		parents = append(parents, pw)
	}

	if len(parents) == 0 {
		return false
	}

	childHash := tx.TxHash()
	w.csvWaiting[childHash] = &pendingPublish{
		tx:        tx,
		remaining: len(parents),
	}

	log.Debugf("Publish of %v waits on %d CSV parent(s)", childHash,
		len(parents))

	for _, pw := range parents {
		w.handleRegister(WatchConfirmed{
			TxID:     pw.parent,
			MinDepth: pw.delay,
			Tag:      parentConfirmedTag{child: childHash},
		}, nil)
	}

	return true
}

// handleParentConfirmed accounts for one CSV parent of a pending publish
// reaching its depth. Once all parents have, the transaction re-enters the
// publish path with relative locks considered satisfied.
func (w *ChainWatcher) handleParentConfirmed(tag parentConfirmedTag) {
	pending, ok := w.csvWaiting[tag.child]
	if !ok {
		return
	}

	pending.remaining--
	if pending.remaining > 0 {
		return
	}

	delete(w.csvWaiting, tag.child)
	w.handlePublish(pending.tx, true)
}

// drainCLTVQueue broadcasts every queued transaction whose locktime height
// has been reached, lowest heights first.
func (w *ChainWatcher) drainCLTVQueue(height uint32) {
	var due []uint32
	for h := range w.cltvQueue {
		if h <= height {
			due = append(due, h)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i] < due[j] })

	for _, h := range due {
		for _, tx := range w.cltvQueue[h] {
			w.sendToBroadcaster(tx)
		}
		delete(w.cltvQueue, h)
	}
}

// sendToBroadcaster hands the transaction to the single-writer broadcast
// goroutine, preserving submission order.
func (w *ChainWatcher) sendToBroadcaster(tx *wire.MsgTx) {
	select {
	case w.broadcastQueue.ChanIn() <- tx:
	case <-w.quit:
	}
}

// deliver routes an event: internally registered watches loop back into the
// publish machinery, everything else goes to the owning consumer. Events for
// consumers that have gone away are dropped along with their watches.
func (w *ChainWatcher) deliver(entry *watchEntry, event WatchEvent) {
	if entry.consumer == nil {
		if conf, ok := event.(ConfirmedEvent); ok {
			if tag, ok := conf.Tag.(parentConfirmedTag); ok {
				w.handleParentConfirmed(tag)
			}
		}
		return
	}

	if entry.consumer.gone() {
		w.reapConsumers()
		return
	}

	entry.consumer.deliver(event)
}

// reapConsumers drops every watch whose consumer has been closed.
func (w *ChainWatcher) reapConsumers() {
	for watch, entry := range w.watches {
		if entry.consumer == nil || !entry.consumer.gone() {
			continue
		}

		log.Debugf("Reaping watch %v of departed consumer %v",
			watch, entry.consumer.Name())
		w.removeWatch(watch)
	}
}

// broadcastLoop serializes every transaction publication through a single
// writer so that parents are always submitted before their children. A
// missing-inputs failure is retried exactly once after a short backoff.
//
// NOTE: MUST be run as a goroutine.
func (w *ChainWatcher) broadcastLoop() {
	defer w.wg.Done()

	for {
		select {
		case msg := <-w.broadcastQueue.ChanOut():
			w.broadcastTx(msg.(*wire.MsgTx))

		case <-w.quit:
			return
		}
	}
}

// broadcastTx submits one transaction to the backend, retrying once on a
// missing-inputs race.
func (w *ChainWatcher) broadcastTx(tx *wire.MsgTx) {
	err := w.trySend(tx)
	if err == nil {
		return
	}

	if !errors.Is(err, ErrMissingInputs) {
		log.Errorf("Unable to broadcast %v: %v", tx.TxHash(), err)
		return
	}

	// The parent may simply not have propagated yet; give it a moment
	// and try once more.
	log.Debugf("Broadcast of %v hit missing inputs, retrying in %v",
		tx.TxHash(), w.cfg.BroadcastBackoff)

	select {
	case <-w.cfg.Clock.TickAfter(w.cfg.BroadcastBackoff):
	case <-w.quit:
		return
	}

	if err := w.trySend(tx); err != nil {
		log.Errorf("Broadcast retry of %v failed: %v", tx.TxHash(),
			err)
	}
}

// trySend performs a single broadcast attempt. A backend that already knows
// the transaction counts as success.
func (w *ChainWatcher) trySend(tx *wire.MsgTx) error {
	ctx, cancel := context.WithTimeout(
		context.Background(), w.cfg.RPCTimeout,
	)
	defer cancel()

	_, err := w.cfg.Backend.SendRawTransaction(ctx, tx)
	if errors.Is(err, ErrTxAlreadyKnown) {
		log.Debugf("Broadcast of %v: already known", tx.TxHash())
		return nil
	}

	return err
}
