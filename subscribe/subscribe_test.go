package subscribe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestSubscribeFanOut asserts every active client receives every update, in
// order.
func TestSubscribeFanOut(t *testing.T) {
	t.Parallel()

	server := NewServer()
	require.NoError(t, server.Start())
	defer func() {
		require.NoError(t, server.Stop())
	}()

	clientA, err := server.Subscribe()
	require.NoError(t, err)
	clientB, err := server.Subscribe()
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, server.SendUpdate(i))
	}

	for _, client := range []*Client{clientA, clientB} {
		for i := 0; i < 5; i++ {
			select {
			case update := <-client.Updates():
				require.Equal(t, i, update)
			case <-time.After(5 * time.Second):
				t.Fatal("missing update")
			}
		}
	}
}

// TestSubscribeCancel asserts a cancelled client stops receiving updates
// and has its quit channel closed.
func TestSubscribeCancel(t *testing.T) {
	t.Parallel()

	server := NewServer()
	require.NoError(t, server.Start())
	defer func() {
		require.NoError(t, server.Stop())
	}()

	client, err := server.Subscribe()
	require.NoError(t, err)

	client.Cancel()

	select {
	case <-client.Quit():
	case <-time.After(5 * time.Second):
		t.Fatal("client quit channel not closed")
	}

	// Updates sent after cancellation must not reach the client.
	require.NoError(t, server.SendUpdate("late"))
	select {
	case update, ok := <-client.Updates():
		if ok {
			t.Fatalf("unexpected update %v", update)
		}
	case <-time.After(100 * time.Millisecond):
	}
}

// TestSubscribeAfterStop asserts subscribing to a stopped server fails.
func TestSubscribeAfterStop(t *testing.T) {
	t.Parallel()

	server := NewServer()
	require.NoError(t, server.Start())
	require.NoError(t, server.Stop())

	_, err := server.Subscribe()
	require.ErrorIs(t, err, ErrServerShuttingDown)
}
