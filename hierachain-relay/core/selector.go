package core

import (
	"errors"

	"github.com/VanDung-dev/HieraChain-Relay/hierachain-relay/protocol"
)

// ErrNoReplies is returned when selecting from an empty reply set.
var ErrNoReplies = errors.New("no replies to select from")

// SelectWinner returns the reply with the longest payload. On equal
// lengths the earlier reply wins.
func SelectWinner(replies []*protocol.Message) (*protocol.Message, error) {
	if len(replies) == 0 {
		return nil, ErrNoReplies
	}

	winner := replies[0]
	for _, candidate := range replies[1:] {
		if candidate.Len() > winner.Len() {
			winner = candidate
		}
	}
	return winner, nil
}
