package chainntnfs

import (
	"context"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// mockBackend is a scriptable in-memory ChainBackend.
type mockBackend struct {
	mu sync.Mutex

	height int64
	blocks map[int64]*wire.MsgBlock

	txs     map[chainhash.Hash]*TxWithMeta
	unspent map[wire.OutPoint]bool

	mempool []*wire.MsgTx

	sent []*wire.MsgTx

	// sendErrs holds scripted errors returned by SendRawTransaction for
	// a given txid, consumed front to back.
	sendErrs map[chainhash.Hash][]error

	blockCountCalls int
}

func newMockBackend() *mockBackend {
	return &mockBackend{
		blocks:   make(map[int64]*wire.MsgBlock),
		txs:      make(map[chainhash.Hash]*TxWithMeta),
		unspent:  make(map[wire.OutPoint]bool),
		sendErrs: make(map[chainhash.Hash][]error),
	}
}

func (m *mockBackend) setHeight(height int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.height = height
}

func (m *mockBackend) setTx(txid chainhash.Hash, meta *TxWithMeta) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txs[txid] = meta
}

func (m *mockBackend) setConfs(txid chainhash.Hash, tx *wire.MsgTx,
	confs, height, index uint32) {

	m.mu.Lock()
	defer m.mu.Unlock()
	m.txs[txid] = &TxWithMeta{
		Tx:            tx,
		Confirmations: confs,
		BlockHeight:   fn.Some(height),
		BlockIndex:    fn.Some(index),
	}
}

func (m *mockBackend) setUnspent(op wire.OutPoint, unspent bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unspent[op] = unspent
}

func (m *mockBackend) addMempoolTx(tx *wire.MsgTx) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mempool = append(m.mempool, tx)
}

func (m *mockBackend) addBlock(height int64, block *wire.MsgBlock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocks[height] = block
}

func (m *mockBackend) scriptSendErr(txid chainhash.Hash, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendErrs[txid] = append(m.sendErrs[txid], err)
}

func (m *mockBackend) sentTxs() []*wire.MsgTx {
	m.mu.Lock()
	defer m.mu.Unlock()
	sent := make([]*wire.MsgTx, len(m.sent))
	copy(sent, m.sent)
	return sent
}

func (m *mockBackend) numBlockCountCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.blockCountCalls
}

func (m *mockBackend) GetBlockCount(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blockCountCalls++
	return m.height, nil
}

func (m *mockBackend) GetBlockHash(_ context.Context, height int64) (
	*chainhash.Hash, error) {

	m.mu.Lock()
	defer m.mu.Unlock()
	block, ok := m.blocks[height]
	if !ok {
		return nil, ErrBlockNotFound
	}
	hash := block.BlockHash()
	return &hash, nil
}

func (m *mockBackend) GetBlock(_ context.Context, hash *chainhash.Hash) (
	*wire.MsgBlock, error) {

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, block := range m.blocks {
		if block.BlockHash() == *hash {
			return block, nil
		}
	}
	return nil, ErrBlockNotFound
}

func (m *mockBackend) GetTransaction(_ context.Context,
	txid *chainhash.Hash) (*TxWithMeta, error) {

	m.mu.Lock()
	defer m.mu.Unlock()
	meta, ok := m.txs[*txid]
	if !ok {
		return nil, ErrTxNotFound
	}
	return meta, nil
}

func (m *mockBackend) IsOutputSpendable(_ context.Context,
	txid *chainhash.Hash, index uint32, _ bool) (bool, error) {

	m.mu.Lock()
	defer m.mu.Unlock()
	op := wire.OutPoint{Hash: *txid, Index: index}
	unspent, ok := m.unspent[op]
	if !ok {
		// Unknown outputs default to unspent so that registering a
		// watch does not trigger a historical scan.
		return true, nil
	}
	return unspent, nil
}

func (m *mockBackend) GetMempool(_ context.Context) ([]*wire.MsgTx, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mempool := make([]*wire.MsgTx, len(m.mempool))
	copy(mempool, m.mempool)
	return mempool, nil
}

func (m *mockBackend) SendRawTransaction(_ context.Context,
	tx *wire.MsgTx) (*chainhash.Hash, error) {

	m.mu.Lock()
	defer m.mu.Unlock()

	txid := tx.TxHash()
	if errs := m.sendErrs[txid]; len(errs) > 0 {
		err := errs[0]
		m.sendErrs[txid] = errs[1:]
		return nil, err
	}

	m.sent = append(m.sent, tx)
	return &txid, nil
}
