// Package network provides the ZeroMQ transport of the relay hub.
//
// This package implements:
//   - ZmqHub: ROUTER socket every peer connects to
//   - PeerRegistry: the live set of peers with liveness and rate limits
//   - PeerClient: DEALER side used by peers, tools and tests
package network

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bitmark-inc/logger"
	"github.com/go-zeromq/zmq4"

	"github.com/VanDung-dev/HieraChain-Relay/hierachain-relay/protocol"
)

// Common errors for network operations
var (
	ErrHubNotRunning = errors.New("hub is not running")
	ErrPeerNotFound  = errors.New("peer not found")
	ErrSendFailed    = errors.New("failed to send message")
)

// frame commands, peer -> hub: connect, hello (heartbeat), leave, message;
// hub -> peer: message. A connect always starts a new session.
const (
	commandConnect = "C"
	commandHello   = "H"
	commandLeave   = "L"
	commandMessage = "M"
)

// ZmqHub is the ZeroMQ ROUTER socket all peers connect to.
type ZmqHub struct {
	log     *logger.L
	address string

	ctx    context.Context
	cancel context.CancelFunc

	router   zmq4.Socket
	registry *PeerRegistry

	// inbound events in arrival order, single consumer
	events chan Event

	// serialises writes to the router socket
	sendMu sync.Mutex

	mu      sync.RWMutex
	running bool
	wg      sync.WaitGroup
}

// NewZmqHub creates a hub that will listen on address (e.g. "tcp://0.0.0.0:3001").
func NewZmqHub(address string, registry *PeerRegistry, mailboxSize int) *ZmqHub {
	if mailboxSize <= 0 {
		mailboxSize = 1
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &ZmqHub{
		log:      logger.New("hub"),
		address:  address,
		ctx:      ctx,
		cancel:   cancel,
		registry: registry,
		events:   make(chan Event, mailboxSize),
	}
}

// Start binds the ROUTER socket and begins receiving.
func (h *ZmqHub) Start() error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return errors.New("hub already running")
	}

	h.router = zmq4.NewRouter(h.ctx)

	if err := h.router.Listen(h.address); err != nil {
		h.mu.Unlock()
		return fmt.Errorf("failed to bind router: %w", err)
	}

	h.running = true
	h.mu.Unlock()

	h.log.Infof("listening on: %s", h.Addr())

	h.wg.Add(1)
	go h.receiverLoop()

	return nil
}

// Stop closes the socket and the event channel.
func (h *ZmqHub) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.running = false
	h.mu.Unlock()

	h.cancel()

	if err := h.router.Close(); err != nil {
		h.log.Debugf("router close: %v", err)
	}

	h.wg.Wait()
	close(h.events)

	h.log.Info("stopped")
}

// Events returns the inbound event channel. It is closed by Stop.
func (h *ZmqHub) Events() <-chan Event {
	return h.events
}

// Addr returns the bound address, which differs from the configured one
// when port 0 was requested.
func (h *ZmqHub) Addr() string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.router == nil || h.router.Addr() == nil {
		return h.address
	}
	return "tcp://" + h.router.Addr().String()
}

// Peers returns the live peer set.
func (h *ZmqHub) Peers() []Peer {
	return h.registry.Live()
}

// SendTo sends a message to one live peer.
func (h *ZmqHub) SendTo(peer Peer, msg *protocol.Message) error {
	if !h.IsRunning() {
		return ErrHubNotRunning
	}
	if !h.registry.IsLive(peer) {
		return fmt.Errorf("%w: %s", ErrPeerNotFound, peer)
	}

	data, err := msg.Encode()
	if err != nil {
		return err
	}
	return h.send(peer.ID, data)
}

// BroadcastExcept sends a message to every live peer other than exclude
// and returns how many sends succeeded. Failed sends are logged and skipped.
func (h *ZmqHub) BroadcastExcept(exclude Peer, msg *protocol.Message) int {
	if !h.IsRunning() {
		return 0
	}

	data, err := msg.Encode()
	if err != nil {
		h.log.Errorf("broadcast encode: %v", err)
		return 0
	}

	sent := 0
	for _, peer := range h.registry.Live() {
		if peer.ID == exclude.ID {
			continue
		}
		if err := h.send(peer.ID, data); err != nil {
			h.log.Warnf("broadcast to %s: %v", peer, err)
			continue
		}
		sent++
	}
	return sent
}

// IsRunning returns whether the hub is accepting traffic.
func (h *ZmqHub) IsRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}

func (h *ZmqHub) send(id string, data []byte) error {
	h.sendMu.Lock()
	defer h.sendMu.Unlock()

	msg := zmq4.NewMsgFrom([]byte(id), []byte(commandMessage), data)
	if err := h.router.Send(msg); err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	return nil
}

// receiverLoop continuously receives frames from the ROUTER socket.
func (h *ZmqHub) receiverLoop() {
	defer h.wg.Done()

	for {
		select {
		case <-h.ctx.Done():
			return
		default:
			msg, err := h.router.Recv()
			if err != nil {
				select {
				case <-h.ctx.Done():
					return
				default:
					h.log.Debugf("receive error: %v", err)
					continue
				}
			}

			ev, ok := parseFrames(msg.Frames, time.Now())
			if !ok {
				continue
			}
			if ev.Type == EventMalformed {
				h.log.Warnf("malformed frame from %q: %v", ev.From, ev.Err)
			}

			// block rather than drop: ordering and completeness matter more
			// than receive latency
			select {
			case h.events <- ev:
			case <-h.ctx.Done():
				return
			}
		}
	}
}

// parseFrames turns a ROUTER multipart message [identity, command, body?]
// into an event. Frames without an identity are discarded.
func parseFrames(frames [][]byte, now time.Time) (Event, bool) {
	if len(frames) < 1 || len(frames[0]) == 0 {
		return Event{}, false
	}

	ev := Event{
		From: string(frames[0]),
		At:   now,
	}

	if len(frames) < 2 {
		ev.Type = EventMalformed
		ev.Err = fmt.Errorf("%w: missing command frame", protocol.ErrMalformedMessage)
		return ev, true
	}

	switch command := string(frames[1]); command {
	case commandConnect:
		ev.Type = EventConnect
	case commandHello:
		ev.Type = EventHello
	case commandLeave:
		ev.Type = EventLeave
	case commandMessage:
		if len(frames) != 3 {
			ev.Type = EventMalformed
			ev.Err = fmt.Errorf("%w: expected 1 body frame, got %d", protocol.ErrMalformedMessage, len(frames)-2)
			return ev, true
		}
		msg, err := protocol.Decode(frames[2])
		if err != nil {
			ev.Type = EventMalformed
			ev.Err = err
			return ev, true
		}
		ev.Type = EventMessage
		ev.Message = msg
	default:
		ev.Type = EventMalformed
		ev.Err = fmt.Errorf("%w: unknown command %q", protocol.ErrMalformedMessage, command)
	}

	return ev, true
}

// HubStats contains hub statistics.
type HubStats struct {
	Address   string `json:"address"`
	PeerCount int    `json:"peer_count"`
	IsRunning bool   `json:"is_running"`
	QueueSize int    `json:"queue_size"`
}

// GetStats returns current hub statistics.
func (h *ZmqHub) GetStats() HubStats {
	return HubStats{
		Address:   h.Addr(),
		PeerCount: h.registry.Count(),
		IsRunning: h.IsRunning(),
		QueueSize: len(h.events),
	}
}
