package network

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-zeromq/zmq4"

	"github.com/VanDung-dev/HieraChain-Relay/hierachain-relay/protocol"
)

// ErrClientClosed is returned when sending on a closed client.
var ErrClientClosed = errors.New("client is closed")

// PeerClient is the peer side of the hub connection: a DEALER socket whose
// identity names the peer.
type PeerClient struct {
	id        string
	address   string
	heartbeat time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	dealer   zmq4.Socket
	messages chan *protocol.Message

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewPeerClient creates a client that will connect to the hub at address.
// A heartbeat of zero disables keepalive frames.
func NewPeerClient(id string, address string, heartbeat time.Duration) *PeerClient {
	ctx, cancel := context.WithCancel(context.Background())

	return &PeerClient{
		id:        id,
		address:   address,
		heartbeat: heartbeat,
		ctx:       ctx,
		cancel:    cancel,
		messages:  make(chan *protocol.Message, 100),
	}
}

// ID returns the identity the client connects with.
func (c *PeerClient) ID() string {
	return c.id
}

// Dial connects to the hub and announces the peer.
func (c *PeerClient) Dial() error {
	c.dealer = zmq4.NewDealer(c.ctx, zmq4.WithID(zmq4.SocketIdentity(c.id)))

	if err := c.dealer.Dial(c.address); err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.address, err)
	}

	if err := c.sendFrames([]byte(commandConnect)); err != nil {
		return err
	}

	c.wg.Add(1)
	go c.receiverLoop()

	if c.heartbeat > 0 {
		c.wg.Add(1)
		go c.heartbeatLoop()
	}

	return nil
}

// Send sends a message to the hub.
func (c *PeerClient) Send(msg *protocol.Message) error {
	data, err := msg.Encode()
	if err != nil {
		return err
	}
	return c.sendFrames([]byte(commandMessage), data)
}

// Messages returns the channel of messages received from the hub.
func (c *PeerClient) Messages() <-chan *protocol.Message {
	return c.messages
}

// Close tells the hub the peer is leaving and releases the socket.
func (c *PeerClient) Close() error {
	// if this is lost the hub prunes the peer later
	_ = c.sendFrames([]byte(commandLeave))

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	if c.dealer == nil {
		return nil
	}
	err := c.dealer.Close()
	c.wg.Wait()
	return err
}

func (c *PeerClient) sendFrames(frames ...[]byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.dealer == nil {
		return ErrClientClosed
	}
	if err := c.dealer.Send(zmq4.NewMsgFrom(frames...)); err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	return nil
}

// receiverLoop reads [M, body] frames sent by the hub.
func (c *PeerClient) receiverLoop() {
	defer c.wg.Done()

	for {
		msg, err := c.dealer.Recv()
		if err != nil {
			select {
			case <-c.ctx.Done():
				return
			default:
				continue
			}
		}

		if len(msg.Frames) != 2 || string(msg.Frames[0]) != commandMessage {
			continue
		}

		decoded, err := protocol.Decode(msg.Frames[1])
		if err != nil {
			continue
		}

		select {
		case c.messages <- decoded:
		case <-c.ctx.Done():
			return
		}
	}
}

// heartbeatLoop keeps the peer from being pruned while idle.
func (c *PeerClient) heartbeatLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			_ = c.sendFrames([]byte(commandHello))
		}
	}
}
