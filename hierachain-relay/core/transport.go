package core

import (
	"github.com/VanDung-dev/HieraChain-Relay/hierachain-relay/network"
	"github.com/VanDung-dev/HieraChain-Relay/hierachain-relay/protocol"
)

//go:generate mockgen -destination=mocks/transport.go -package=mocks . Transport

// Transport is what the core needs from the connection layer.
type Transport interface {
	// Peers returns the live peer set at the time of the call.
	Peers() []network.Peer

	// SendTo delivers msg to one peer, best effort.
	SendTo(peer network.Peer, msg *protocol.Message) error

	// BroadcastExcept delivers msg to every live peer but exclude and
	// returns the number of successful sends.
	BroadcastExcept(exclude network.Peer, msg *protocol.Message) int
}
