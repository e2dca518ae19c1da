package core

import (
	"github.com/bitmark-inc/logger"

	"github.com/VanDung-dev/HieraChain-Relay/api"
	"github.com/VanDung-dev/HieraChain-Relay/hierachain-relay/network"
	"github.com/VanDung-dev/HieraChain-Relay/hierachain-relay/protocol"
)

// Relay forwards block proposals and announcements unchanged to every
// live peer except the one that sent them.
type Relay struct {
	log       *logger.L
	transport Transport
	metrics   *api.Metrics
}

// NewRelay creates a relay sending through transport.
func NewRelay(transport Transport, metrics *api.Metrics) *Relay {
	return &Relay{
		log:       logger.New("relay"),
		transport: transport,
		metrics:   metrics,
	}
}

// Forward sends msg to every live peer other than sender and returns the
// number of peers reached. NewBlockRequest and NewBlockAnnouncement are
// treated the same.
func (r *Relay) Forward(sender network.Peer, msg *protocol.Message) int {
	sent := r.transport.BroadcastExcept(sender, msg)
	r.metrics.RecordRelayed(sent)

	r.log.Debugf("%s from %s  id: %q  forwarded to: %d", msg.Kind, sender, msg.CorrelationID, sent)
	return sent
}
