package chainntnfs

import (
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/queue"
)

// EventTag is an opaque, comparable value attached to a watch at
// registration and echoed back in every event the watch produces. Consumers
// use it to tell their watches apart.
type EventTag any

// Watch describes a single on-chain condition a consumer wants to be told
// about. Watches are plain comparable values: registering the same watch
// twice is a no-op.
type Watch interface {
	fmt.Stringer

	watch()
}

// WatchSpentBasic fires once when the watched output is first observed
// spent. The output may already be spent at registration time, in which case
// the event is delivered after a historical lookup.
type WatchSpentBasic struct {
	// TxID is the hash of the transaction holding the watched output.
	TxID chainhash.Hash

	// OutputIndex is the index of the watched output.
	OutputIndex uint32

	// Tag is echoed back in the resulting event.
	Tag EventTag
}

func (w WatchSpentBasic) watch() {}

// String returns a human readable description of the watch.
func (w WatchSpentBasic) String() string {
	return fmt.Sprintf("spent-basic(%v:%d)", w.TxID, w.OutputIndex)
}

// WatchSpent fires for every transaction observed spending the watched
// output. The watch is permanent: a funding output may be spent by several
// candidate commitment transactions racing each other, and the consumer must
// hear about each.
type WatchSpent struct {
	// TxID is the hash of the transaction holding the watched output.
	TxID chainhash.Hash

	// OutputIndex is the index of the watched output.
	OutputIndex uint32

	// Tag is echoed back in the resulting events.
	Tag EventTag
}

func (w WatchSpent) watch() {}

// String returns a human readable description of the watch.
func (w WatchSpent) String() string {
	return fmt.Sprintf("spent(%v:%d)", w.TxID, w.OutputIndex)
}

// WatchConfirmed fires once when the watched transaction has at least
// MinDepth confirmations.
type WatchConfirmed struct {
	// TxID is the hash of the watched transaction.
	TxID chainhash.Hash

	// MinDepth is the number of confirmations required before the event
	// fires.
	MinDepth uint32

	// Tag is echoed back in the resulting event.
	Tag EventTag
}

func (w WatchConfirmed) watch() {}

// String returns a human readable description of the watch.
func (w WatchConfirmed) String() string {
	return fmt.Sprintf("confirmed(%v, depth=%d)", w.TxID, w.MinDepth)
}

// WatchEvent is the notification produced by a resolved (or, for WatchSpent,
// triggered) watch.
type WatchEvent interface {
	watchEvent()
}

// SpentBasicEvent signals that the output watched by a WatchSpentBasic has
// been spent.
type SpentBasicEvent struct {
	// Tag is the tag the watch was registered with.
	Tag EventTag
}

func (e SpentBasicEvent) watchEvent() {}

// SpentEvent signals that a transaction spending the output watched by a
// WatchSpent has been observed.
type SpentEvent struct {
	// Tag is the tag the watch was registered with.
	Tag EventTag

	// SpendingTx is the transaction spending the watched output.
	SpendingTx *wire.MsgTx
}

func (e SpentEvent) watchEvent() {}

// ConfirmedEvent signals that the transaction watched by a WatchConfirmed
// has reached its required depth.
type ConfirmedEvent struct {
	// Tag is the tag the watch was registered with.
	Tag EventTag

	// BlockHeight is the height of the block the transaction confirmed
	// in.
	BlockHeight uint32

	// TxIndex is the transaction's position within that block.
	TxIndex uint32

	// Tx is the confirmed transaction.
	Tx *wire.MsgTx
}

func (e ConfirmedEvent) watchEvent() {}

// Consumer is the delivery endpoint for watch events. The watcher treats the
// back-reference embedded in each watch as weak: once a consumer is closed,
// its remaining watches are silently reaped.
type Consumer struct {
	name string

	events *queue.ConcurrentQueue

	closeOnce sync.Once
	quit      chan struct{}
}

// NewConsumer creates a named delivery endpoint for watch events.
func NewConsumer(name string) *Consumer {
	c := &Consumer{
		name:   name,
		events: queue.NewConcurrentQueue(10),
		quit:   make(chan struct{}),
	}
	c.events.Start()

	return c
}

// Name returns the consumer's name, used only for logging.
func (c *Consumer) Name() string {
	return c.name
}

// Events returns the channel watch events are delivered on. Each element is
// a WatchEvent.
func (c *Consumer) Events() <-chan interface{} {
	return c.events.ChanOut()
}

// Close marks the consumer as gone. Any watches still registered for it will
// be dropped by the watcher.
func (c *Consumer) Close() {
	c.closeOnce.Do(func() {
		close(c.quit)
		c.events.Stop()
	})
}

// gone reports whether the consumer has been closed.
func (c *Consumer) gone() bool {
	select {
	case <-c.quit:
		return true
	default:
		return false
	}
}

// deliver hands the event to the consumer unless it has gone away.
func (c *Consumer) deliver(event WatchEvent) {
	select {
	case c.events.ChanIn() <- event:
	case <-c.quit:
	}
}
