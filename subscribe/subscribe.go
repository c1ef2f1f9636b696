// Package subscribe implements a simple multi-consumer event broadcaster:
// every update sent to the server is delivered, in order, to each client
// subscribed at the time of the send.
package subscribe

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/lightningnetwork/lnd/queue"
)

// ErrServerShuttingDown is an error returned in case the server is in the
// process of shutting down.
var ErrServerShuttingDown = errors.New("subscription server shutting down")

// Client is used to get notified about updates the caller has subscribed to.
type Client struct {
	// cancel should be called in case the client no longer wants to
	// subscribe for updates from the server.
	cancel func()

	updates *queue.ConcurrentQueue
	quit    chan struct{}
}

// Updates returns a read-only channel where the updates the client has
// subscribed to will be delivered. Each client has its own unbounded queue
// behind this channel, so one slow consumer cannot stall the rest.
func (c *Client) Updates() <-chan interface{} {
	return c.updates.ChanOut()
}

// Quit is a channel that will be closed in case the server decides to no
// longer deliver updates to this client.
func (c *Client) Quit() <-chan struct{} {
	return c.quit
}

// Cancel should be called in case the client no longer wants to subscribe
// for updates from the server.
func (c *Client) Cancel() {
	c.cancel()
}

// clientUpdate is an internal message to the event handler, registering a
// new client or cancelling an existing one.
type clientUpdate struct {
	cancel   bool
	clientID uint64
	client   *Client
}

// Server manages a set of subscriptions and their corresponding clients. Any
// update will be delivered to all active clients.
type Server struct {
	clientCounter atomic.Uint64
	started       atomic.Bool
	stopped       atomic.Bool

	clients       map[uint64]*Client
	clientUpdates chan *clientUpdate

	updates chan interface{}

	quit chan struct{}
	wg   sync.WaitGroup
}

// NewServer returns a new subscription server.
func NewServer() *Server {
	return &Server{
		clients:       make(map[uint64]*Client),
		clientUpdates: make(chan *clientUpdate),
		updates:       make(chan interface{}),
		quit:          make(chan struct{}),
	}
}

// Start starts the Server, making it ready to accept subscriptions and
// updates.
func (s *Server) Start() error {
	if !s.started.CompareAndSwap(false, true) {
		return nil
	}

	s.wg.Add(1)
	go s.eventHandler()

	return nil
}

// Stop stops the server.
func (s *Server) Stop() error {
	if !s.stopped.CompareAndSwap(false, true) {
		return nil
	}

	close(s.quit)
	s.wg.Wait()

	return nil
}

// Subscribe returns a Client that will receive updates any time the Server
// is made aware of a new event.
func (s *Server) Subscribe() (*Client, error) {
	clientID := s.clientCounter.Add(1)

	client := &Client{
		updates: queue.NewConcurrentQueue(20),
		quit:    make(chan struct{}),
	}
	client.cancel = func() {
		select {
		case s.clientUpdates <- &clientUpdate{
			cancel:   true,
			clientID: clientID,
		}:
		case <-s.quit:
		}
	}

	select {
	case s.clientUpdates <- &clientUpdate{
		clientID: clientID,
		client:   client,
	}:
	case <-s.quit:
		return nil, ErrServerShuttingDown
	}

	return client, nil
}

// SendUpdate is called to send the passed update to all currently active
// subscription clients.
func (s *Server) SendUpdate(update interface{}) error {
	select {
	case s.updates <- update:
		return nil
	case <-s.quit:
		return ErrServerShuttingDown
	}
}

// eventHandler is the main event loop of the server, handling subscriptions,
// cancellations and update fan-out.
//
// NOTE: MUST be run as a goroutine.
func (s *Server) eventHandler() {
	defer s.wg.Done()

	for {
		select {
		case update := <-s.clientUpdates:
			if update.cancel {
				client, ok := s.clients[update.clientID]
				if ok {
					client.updates.Stop()
					close(client.quit)
					delete(s.clients, update.clientID)
				}

				continue
			}

			update.client.updates.Start()
			s.clients[update.clientID] = update.client

		case upd := <-s.updates:
			for _, client := range s.clients {
				select {
				case client.updates.ChanIn() <- upd:
				case <-client.quit:
				case <-s.quit:
					return
				}
			}

		case <-s.quit:
			for _, client := range s.clients {
				client.updates.Stop()
				close(client.quit)
			}
			return
		}
	}
}
