package discovery

import (
	"testing"
	"time"

	"github.com/lightningnetwork/lncore/lnwire"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/stretchr/testify/require"
)

// TestRouterEndToEnd drives a started router through its public API:
// gossip ingestion, a forced validation tick, route queries and temporary
// exclusions, all flowing through the mailbox.
func TestRouterEndToEnd(t *testing.T) {
	t.Parallel()

	chain := newMockChainView()
	validateTick := ticker.NewForce(DefaultValidateInterval)
	trickleTick := ticker.NewForce(DefaultTrickleInterval)
	pruneTick := ticker.NewForce(DefaultPruneInterval)

	router := New(Config{
		Chain: chain,
		Clock: clock.NewTestClock(testStartTime),
		Broadcast: func([]lnwire.Message) error {
			return nil
		},
		TrickleTicker:  trickleTick,
		PruneTicker:    pruneTick,
		ValidateTicker: validateTick,
	})
	require.NoError(t, router.Start())
	t.Cleanup(func() {
		require.NoError(t, router.Stop())
	})

	alice, bob := newTestNode(t), newTestNode(t)
	peer := newTestNode(t).vertex

	channel := createTestChannel(t, alice, bob, scidAt(650000))
	channel.install(chain)

	router.ProcessMessage(peer, channel.ann)
	router.ProcessMessage(
		peer, channel.signedUpdate(t, channel.node1, 100, false),
	)

	// Keep forcing validation ticks until the channel is admitted and
	// the parked update makes it routable.
	var hops []*Hop
	require.Eventually(t, func() bool {
		select {
		case validateTick.Force <- time.Now():
		default:
		}

		var err error
		hops, err = router.FindRoute(
			channel.node1.vertex, channel.node2.vertex, nil, nil,
		)
		return err == nil
	}, 10*time.Second, 10*time.Millisecond)

	require.Len(t, hops, 1)
	require.Equal(t, channel.ann.ShortChannelID, hops[0].ChanID)

	// Routing to oneself fails straight from the public API.
	_, err := router.FindRoute(
		channel.node1.vertex, channel.node1.vertex, nil, nil,
	)
	require.ErrorIs(t, err, ErrCannotRouteToSelf)

	// Excluding the only edge leaves no route until the exclusion lifts.
	desc := ChannelDesc{
		ShortChanID: channel.ann.ShortChannelID,
		From:        channel.node1.vertex,
		To:          channel.node2.vertex,
	}
	router.ExcludeChannel(desc, time.Minute)

	require.Eventually(t, func() bool {
		_, err := router.FindRoute(
			channel.node1.vertex, channel.node2.vertex, nil, nil,
		)
		return err == ErrRouteNotFound
	}, 10*time.Second, 10*time.Millisecond)
}
