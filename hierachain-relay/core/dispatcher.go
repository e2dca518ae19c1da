package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bitmark-inc/logger"

	"github.com/VanDung-dev/HieraChain-Relay/api"
	"github.com/VanDung-dev/HieraChain-Relay/hierachain-relay/network"
	"github.com/VanDung-dev/HieraChain-Relay/hierachain-relay/protocol"
)

// DispatcherConfig holds the dispatcher's timer settings.
type DispatcherConfig struct {
	// peers silent for longer than this are removed
	StaleTimeout time.Duration
	// how often silent peers are looked for
	PruneInterval time.Duration
	// how often timed out requests are answered
	SweepInterval time.Duration
}

// DefaultDispatcherConfig returns the default timer settings.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		StaleTimeout:  60 * time.Second,
		PruneInterval: 10 * time.Second,
		SweepInterval: time.Second,
	}
}

// Dispatcher consumes hub events one at a time and routes messages by
// kind. It is the only writer of the peer registry and the tracker.
type Dispatcher struct {
	log      *logger.L
	config   DispatcherConfig
	registry *network.PeerRegistry
	relay    *Relay
	tracker  *Tracker
	metrics  *api.Metrics
}

// NewDispatcher creates a dispatcher over the given components.
func NewDispatcher(config DispatcherConfig, registry *network.PeerRegistry, relay *Relay, tracker *Tracker, metrics *api.Metrics) *Dispatcher {
	defaults := DefaultDispatcherConfig()
	if config.StaleTimeout <= 0 {
		config.StaleTimeout = defaults.StaleTimeout
	}
	if config.PruneInterval <= 0 {
		config.PruneInterval = defaults.PruneInterval
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = defaults.SweepInterval
	}

	return &Dispatcher{
		log:      logger.New("dispatcher"),
		config:   config,
		registry: registry,
		relay:    relay,
		tracker:  tracker,
		metrics:  metrics,
	}
}

// Run handles events until ctx is cancelled or events is closed.
func (d *Dispatcher) Run(ctx context.Context, events <-chan network.Event) {
	prune := time.NewTicker(d.config.PruneInterval)
	defer prune.Stop()

	sweep := time.NewTicker(d.config.SweepInterval)
	defer sweep.Stop()

	d.log.Info("starting…")

loop:
	for {
		select {
		case <-ctx.Done():
			break loop

		case ev, ok := <-events:
			if !ok {
				break loop
			}
			d.Handle(ev)

		case now := <-prune.C:
			d.Prune(now)

		case <-sweep.C:
			d.tracker.Expire()
		}
	}

	d.log.Info("stopped")
}

// Handle processes a single event to completion.
func (d *Dispatcher) Handle(ev network.Event) {
	switch ev.Type {
	case network.EventHello:
		d.registry.Touch(ev.From, ev.At)
		d.metrics.UpdatePeers(d.registry.Count())

	case network.EventConnect:
		// a re-dial under a live identity replaces the old session
		d.leave(ev.From)
		d.registry.Touch(ev.From, ev.At)
		d.metrics.UpdatePeers(d.registry.Count())

	case network.EventLeave:
		d.leave(ev.From)

	case network.EventMalformed:
		d.registry.Touch(ev.From, ev.At)
		d.metrics.UpdatePeers(d.registry.Count())
		d.drop(ev.From, ev.Err)

	case network.EventMessage:
		peer, joined := d.registry.Touch(ev.From, ev.At)
		if joined {
			d.metrics.UpdatePeers(d.registry.Count())
		}
		if !d.registry.Allow(peer, ev.At) {
			d.metrics.RecordDropped(api.DropRateLimited)
			d.log.Warnf("rate limited: %s  %s", peer, ev.Message.Kind)
			return
		}
		d.route(peer, ev.Message)

	default:
		d.log.Errorf("unexpected event type: %d from %q", ev.Type, ev.From)
	}
}

// Prune removes peers not heard from within the stale timeout and
// settles their pending requests.
func (d *Dispatcher) Prune(now time.Time) {
	for _, peer := range d.registry.Prune(now.Add(-d.config.StaleTimeout)) {
		d.tracker.PeerLeft(peer)
	}
	d.metrics.UpdatePeers(d.registry.Count())
}

func (d *Dispatcher) route(peer network.Peer, msg *protocol.Message) {
	d.metrics.RecordReceived(msg.Kind.String())

	switch msg.Kind {
	case protocol.NewBlockRequest, protocol.NewBlockAnnouncement:
		d.relay.Forward(peer, msg)

	case protocol.GetChainRequest:
		if err := d.tracker.OnChainRequest(peer, msg); err != nil {
			d.log.Warnf("chain request rejected: %v", err)
		}

	case protocol.GetChainResponse:
		d.tracker.OnChainResponse(peer, msg)

	default:
		d.drop(peer.ID, fmt.Errorf("%w: %s", protocol.ErrUnknownType, msg.Kind))
	}
}

func (d *Dispatcher) leave(id string) {
	peer, ok := d.registry.Remove(id)
	if !ok {
		return
	}
	d.tracker.PeerLeft(peer)
	d.metrics.UpdatePeers(d.registry.Count())
}

func (d *Dispatcher) drop(from string, err error) {
	if errors.Is(err, protocol.ErrUnknownType) {
		d.metrics.RecordDropped(api.DropUnknownType)
	} else {
		d.metrics.RecordDropped(api.DropMalformed)
	}
	d.log.Warnf("dropped message from %q: %v", from, err)
}
