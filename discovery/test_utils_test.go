package discovery

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lncore/chainntnfs"
	"github.com/lightningnetwork/lncore/chainscript"
	"github.com/lightningnetwork/lncore/lnwire"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/stretchr/testify/require"
)

// testStartTime is the virtual wall clock all router tests run at.
var testStartTime = time.Unix(1700000000, 0)

// testNode is a graph participant with a usable signing key.
type testNode struct {
	priv   *btcec.PrivateKey
	vertex Vertex
}

func newTestNode(t *testing.T) *testNode {
	t.Helper()

	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	return &testNode{
		priv:   priv,
		vertex: NewVertex(priv.PubKey()),
	}
}

// signData signs the double-SHA256 of data with the node's key.
func (n *testNode) signData(t *testing.T, data []byte) lnwire.Sig {
	t.Helper()

	hash := chainhash.DoubleHashB(data)
	sig, err := lnwire.NewSigFromSignature(ecdsa.Sign(n.priv, hash))
	require.NoError(t, err)

	return sig
}

// mockChainView is a scriptable stand-in for the chain watcher.
type mockChainView struct {
	mu sync.Mutex

	height uint32

	fundingTxs map[lnwire.ShortChannelID]*wire.MsgTx
	spent      map[lnwire.ShortChannelID]bool
	errs       map[lnwire.ShortChannelID]error

	watches []chainntnfs.Watch
}

func newMockChainView() *mockChainView {
	return &mockChainView{
		fundingTxs: make(map[lnwire.ShortChannelID]*wire.MsgTx),
		spent:      make(map[lnwire.ShortChannelID]bool),
		errs:       make(map[lnwire.ShortChannelID]error),
	}
}

func (m *mockChainView) ValidateChannel(_ context.Context,
	ann *lnwire.ChannelAnnouncement) (*wire.MsgTx, bool, error) {

	m.mu.Lock()
	defer m.mu.Unlock()

	scid := ann.ShortChannelID
	if err, ok := m.errs[scid]; ok {
		return nil, false, err
	}
	tx, ok := m.fundingTxs[scid]
	if !ok {
		return nil, false, chainntnfs.ErrTxNotFound
	}

	return tx, !m.spent[scid], nil
}

func (m *mockChainView) Register(watch chainntnfs.Watch,
	_ *chainntnfs.Consumer) {

	m.mu.Lock()
	defer m.mu.Unlock()
	m.watches = append(m.watches, watch)
}

func (m *mockChainView) BestBlockHeight() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.height
}

func (m *mockChainView) setHeight(height uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.height = height
}

func (m *mockChainView) registeredWatches() []chainntnfs.Watch {
	m.mu.Lock()
	defer m.mu.Unlock()
	watches := make([]chainntnfs.Watch, len(m.watches))
	copy(watches, m.watches)
	return watches
}

// testRouterCtx drives the router's handlers synchronously, without the
// event loop, so tests observe state transitions deterministically.
type testRouterCtx struct {
	t      *testing.T
	router *Router
	chain  *mockChainView
	clock  *clock.TestClock

	mu         sync.Mutex
	broadcasts [][]lnwire.Message
	errReplies []Vertex
}

func newTestRouterCtx(t *testing.T) *testRouterCtx {
	t.Helper()

	ctx := &testRouterCtx{
		t:     t,
		chain: newMockChainView(),
		clock: clock.NewTestClock(testStartTime),
	}

	cfg := Config{
		Chain: ctx.chain,
		Clock: ctx.clock,
		Broadcast: func(msgs []lnwire.Message) error {
			ctx.mu.Lock()
			defer ctx.mu.Unlock()
			ctx.broadcasts = append(ctx.broadcasts, msgs)
			return nil
		},
		SendError: func(peer Vertex, _ error) {
			ctx.mu.Lock()
			defer ctx.mu.Unlock()
			ctx.errReplies = append(ctx.errReplies, peer)
		},
		TrickleTicker:  ticker.NewForce(DefaultTrickleInterval),
		PruneTicker:    ticker.NewForce(DefaultPruneInterval),
		ValidateTicker: ticker.NewForce(DefaultValidateInterval),
	}

	ctx.router = New(cfg)

	// The topology notifier needs its fan-out goroutine even when the
	// router's own event loop is driven by hand.
	require.NoError(t, ctx.router.ntfnServer.Start())
	t.Cleanup(func() {
		close(ctx.router.quit)
		ctx.router.wg.Wait()
		ctx.router.spendConsumer.Close()
		require.NoError(t, ctx.router.ntfnServer.Stop())
	})

	return ctx
}

// runValidationCycle performs one full validate tick: batch extraction,
// on-chain lookups and result folding.
func (c *testRouterCtx) runValidationCycle() {
	c.t.Helper()

	batch := c.router.extractValidationBatch()
	if len(batch) == 0 {
		return
	}
	results := c.router.runValidations(batch)
	c.router.handleBatchResult(results)
}

// numErrReplies returns how many protocol-error replies went out.
func (c *testRouterCtx) numErrReplies() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.errReplies)
}

// testChannel couples an announcement with the parties that signed it.
type testChannel struct {
	ann       *lnwire.ChannelAnnouncement
	fundingTx *wire.MsgTx

	// node1 is the endpoint whose key sorts first, node2 the other.
	node1, node2 *testNode
}

// createTestChannel builds a fully signed channel announcement together
// with a funding transaction whose output carries the correct 2-of-2
// script. The nodes' identity keys double as their funding keys.
func createTestChannel(t *testing.T, a, b *testNode,
	scid lnwire.ShortChannelID) *testChannel {

	t.Helper()

	node1, node2 := a, b
	if bytes.Compare(node1.vertex[:], node2.vertex[:]) > 0 {
		node1, node2 = node2, node1
	}

	ann := &lnwire.ChannelAnnouncement{
		ShortChannelID: scid,
		NodeID1:        [33]byte(node1.vertex),
		NodeID2:        [33]byte(node2.vertex),
		BitcoinKey1:    [33]byte(node1.vertex),
		BitcoinKey2:    [33]byte(node2.vertex),
	}

	data, err := ann.DataToSign()
	require.NoError(t, err)

	ann.NodeSig1 = node1.signData(t, data)
	ann.NodeSig2 = node2.signData(t, data)
	ann.BitcoinSig1 = node1.signData(t, data)
	ann.BitcoinSig2 = node2.signData(t, data)

	_, txOut, err := chainscript.GenFundingPkScript(
		node1.vertex[:], node2.vertex[:], 100000,
	)
	require.NoError(t, err)

	fundingTx := wire.NewMsgTx(2)
	for i := uint16(0); i < scid.TxPosition; i++ {
		fundingTx.AddTxOut(&wire.TxOut{Value: 1, PkScript: []byte{0x51}})
	}
	fundingTx.AddTxOut(txOut)

	return &testChannel{
		ann:       ann,
		fundingTx: fundingTx,
		node1:     node1,
		node2:     node2,
	}
}

// install makes the channel resolvable by the mock chain.
func (tc *testChannel) install(chain *mockChainView) {
	chain.mu.Lock()
	defer chain.mu.Unlock()
	chain.fundingTxs[tc.ann.ShortChannelID] = tc.fundingTx
}

// signedUpdate builds a signed policy update for the channel in the
// direction leaving the given node.
func (tc *testChannel) signedUpdate(t *testing.T, from *testNode,
	timestamp uint32, disabled bool) *lnwire.ChannelUpdate {

	t.Helper()

	var flags uint8
	if from == tc.node2 {
		flags |= uint8(lnwire.ChanUpdateDirection)
	}
	if disabled {
		flags |= uint8(lnwire.ChanUpdateDisabled)
	}

	upd := &lnwire.ChannelUpdate{
		ShortChannelID:  tc.ann.ShortChannelID,
		Timestamp:       timestamp,
		ChannelFlags:    flags,
		TimeLockDelta:   144,
		HtlcMinimumMsat: 1000,
		HtlcMaximumMsat: 100000000,
		BaseFee:         1000,
		FeeRate:         100,
	}

	data, err := upd.DataToSign()
	require.NoError(t, err)
	upd.Signature = from.signData(t, data)

	return upd
}

// signedNodeAnn builds a signed node announcement for the node.
func signedNodeAnn(t *testing.T, node *testNode,
	timestamp uint32) *lnwire.NodeAnnouncement {

	t.Helper()

	alias, err := lnwire.NewNodeAlias("test-node")
	require.NoError(t, err)

	na := &lnwire.NodeAnnouncement{
		Timestamp: timestamp,
		NodeID:    [33]byte(node.vertex),
		Alias:     alias,
	}

	data, err := na.DataToSign()
	require.NoError(t, err)
	na.Signature = node.signData(t, data)

	return na
}

// scidAt builds a short channel id anchored at the given block height.
func scidAt(height uint32) lnwire.ShortChannelID {
	return lnwire.ShortChannelID{
		BlockHeight: height,
		TxIndex:     1,
		TxPosition:  0,
	}
}
