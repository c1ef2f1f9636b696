// Package chainntnfs implements the chain watcher: the component that keeps
// the rest of the node informed about what happens on-chain. Callers register
// watches on transaction outputs and confirmations, and hand the watcher
// signed transactions to broadcast once their timelock constraints allow.
package chainntnfs

import (
	"context"
	"errors"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/fn/v2"
)

var (
	// ErrTxNotFound is returned by a ChainBackend when the requested
	// transaction is neither in the mempool nor in a block it knows of.
	ErrTxNotFound = errors.New("transaction not found")

	// ErrBlockNotFound is returned by a ChainBackend when the requested
	// block hash or height is unknown to it.
	ErrBlockNotFound = errors.New("block not found")

	// ErrMissingInputs is returned by SendRawTransaction when one of the
	// transaction's inputs does not exist from the backend's point of
	// view. This is usually a transient mempool race: the parent has been
	// broadcast but not yet accepted.
	ErrMissingInputs = errors.New("transaction spends missing inputs")

	// ErrTxAlreadyKnown is returned by SendRawTransaction when the
	// backend already has the transaction in its mempool or chain.
	ErrTxAlreadyKnown = errors.New("transaction already known")

	// ErrChainWatcherShuttingDown is used when the watcher is in the
	// process of shutting down.
	ErrChainWatcherShuttingDown = errors.New("chain watcher shutting down")
)

// TxWithMeta couples a transaction with the best-effort block metadata the
// backend had for it at query time. A transaction still in the mempool has
// zero confirmations and no height or index.
type TxWithMeta struct {
	// Tx is the transaction itself.
	Tx *wire.MsgTx

	// Confirmations is the number of blocks mined on top of and including
	// the block containing the transaction.
	Confirmations uint32

	// BlockHeight is the height of the block the transaction was mined
	// in, if known.
	BlockHeight fn.Option[uint32]

	// BlockIndex is the transaction's position within that block, if
	// known.
	BlockIndex fn.Option[uint32]
}

// ChainBackend is the RPC surface of the Bitcoin backend the chain watcher
// consumes. The backend is shared but stateless per call, so its methods may
// be invoked from any goroutine.
type ChainBackend interface {
	// GetBlockCount returns the height of the best known block.
	GetBlockCount(ctx context.Context) (int64, error)

	// GetBlockHash returns the hash of the block at the given height.
	GetBlockHash(ctx context.Context, height int64) (*chainhash.Hash,
		error)

	// GetBlock returns the full block with the given hash.
	GetBlock(ctx context.Context, hash *chainhash.Hash) (*wire.MsgBlock,
		error)

	// GetTransaction returns the transaction with the given hash together
	// with any block metadata known for it, or ErrTxNotFound.
	GetTransaction(ctx context.Context, txid *chainhash.Hash) (*TxWithMeta,
		error)

	// IsOutputSpendable reports whether the given output is known and
	// unspent. With includeMempool set, an output spent by an unconfirmed
	// transaction counts as already spent.
	IsOutputSpendable(ctx context.Context, txid *chainhash.Hash,
		index uint32, includeMempool bool) (bool, error)

	// GetMempool returns the transactions currently in the mempool.
	GetMempool(ctx context.Context) ([]*wire.MsgTx, error)

	// SendRawTransaction submits the transaction to the network. It
	// returns ErrMissingInputs when an input is unknown and
	// ErrTxAlreadyKnown when the transaction was submitted before.
	SendRawTransaction(ctx context.Context, tx *wire.MsgTx) (
		*chainhash.Hash, error)
}
