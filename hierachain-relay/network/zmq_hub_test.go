package network

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VanDung-dev/HieraChain-Relay/hierachain-relay/protocol"
)

func TestParseFrames(t *testing.T) {
	now := time.Now()
	body := []byte(`{"type":"NewBlockRequest","correlationId":"b","payload":[1]}`)

	cases := []struct {
		name   string
		frames [][]byte
		ok     bool
		want   EventType
	}{
		{"no frames", nil, false, 0},
		{"empty identity", [][]byte{{}, []byte("H")}, false, 0},
		{"connect", [][]byte{[]byte("p1"), []byte("C")}, true, EventConnect},
		{"hello", [][]byte{[]byte("p1"), []byte("H")}, true, EventHello},
		{"leave", [][]byte{[]byte("p1"), []byte("L")}, true, EventLeave},
		{"message", [][]byte{[]byte("p1"), []byte("M"), body}, true, EventMessage},
		{"missing command", [][]byte{[]byte("p1")}, true, EventMalformed},
		{"missing body", [][]byte{[]byte("p1"), []byte("M")}, true, EventMalformed},
		{"bad body", [][]byte{[]byte("p1"), []byte("M"), []byte("{")}, true, EventMalformed},
		{"unknown command", [][]byte{[]byte("p1"), []byte("X")}, true, EventMalformed},
	}

	for _, c := range cases {
		ev, ok := parseFrames(c.frames, now)
		assert.Equal(t, c.ok, ok, c.name)
		if !ok {
			continue
		}
		assert.Equal(t, c.want, ev.Type, c.name)
		assert.Equal(t, "p1", ev.From, c.name)
		assert.Equal(t, now, ev.At, c.name)
	}

	ev, _ := parseFrames([][]byte{[]byte("p1"), []byte("M"), body}, now)
	require.NotNil(t, ev.Message)
	assert.Equal(t, protocol.NewBlockRequest, ev.Message.Kind)

	ev, _ = parseFrames([][]byte{[]byte("p1"), []byte("M"), []byte(`{"type":"Nope","payload":[]}`)}, now)
	assert.True(t, errors.Is(ev.Err, protocol.ErrUnknownType))
}

func TestNewZmqHub(t *testing.T) {
	hub := NewZmqHub("tcp://127.0.0.1:0", NewPeerRegistry(0, 0), 10)
	require.NotNil(t, hub)

	assert.False(t, hub.IsRunning())
	assert.Equal(t, "tcp://127.0.0.1:0", hub.Addr())

	stats := hub.GetStats()
	assert.Equal(t, 0, stats.PeerCount)
	assert.False(t, stats.IsRunning)
}

func TestZmqHubSendBeforeStart(t *testing.T) {
	registry := NewPeerRegistry(0, 0)
	hub := NewZmqHub("tcp://127.0.0.1:0", registry, 10)

	p, _ := registry.Touch("p1", time.Now())

	err := hub.SendTo(p, protocol.NewChainRequest("1"))
	assert.Equal(t, ErrHubNotRunning, err)
	assert.Equal(t, 0, hub.BroadcastExcept(Peer{}, protocol.NewChainRequest("1")))
}

func TestZmqHubRoundTrip(t *testing.T) {
	registry := NewPeerRegistry(0, 0)
	hub := NewZmqHub("tcp://127.0.0.1:0", registry, 10)
	require.NoError(t, hub.Start())
	defer hub.Stop()

	client := NewPeerClient("peer-1", hub.Addr(), 0)
	require.NoError(t, client.Dial())
	defer client.Close()

	ev := nextEvent(t, hub)
	assert.Equal(t, EventConnect, ev.Type)
	assert.Equal(t, "peer-1", ev.From)

	require.NoError(t, client.Send(protocol.NewChainRequest("c-1")))

	ev = nextEvent(t, hub)
	require.Equal(t, EventMessage, ev.Type)
	assert.Equal(t, protocol.GetChainRequest, ev.Message.Kind)
	assert.Equal(t, "c-1", ev.Message.CorrelationID)

	// the dispatcher normally does this
	peer, _ := registry.Touch(ev.From, ev.At)

	require.NoError(t, hub.SendTo(peer, protocol.NewChainResponse("c-1", nil)))

	select {
	case msg := <-client.Messages():
		assert.Equal(t, protocol.GetChainResponse, msg.Kind)
		assert.Equal(t, "c-1", msg.CorrelationID)
		assert.Equal(t, 0, msg.Len())
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for response")
	}

	err := hub.SendTo(Peer{ID: "peer-1", Session: peer.Session + 1}, protocol.NewChainRequest("x"))
	assert.True(t, errors.Is(err, ErrPeerNotFound))
}

func nextEvent(t *testing.T, hub *ZmqHub) Event {
	t.Helper()

	select {
	case ev := <-hub.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for event")
	}
	return Event{}
}
