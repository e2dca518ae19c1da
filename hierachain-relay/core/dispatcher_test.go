package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VanDung-dev/HieraChain-Relay/api"
	"github.com/VanDung-dev/HieraChain-Relay/hierachain-relay/data"
	"github.com/VanDung-dev/HieraChain-Relay/hierachain-relay/network"
	"github.com/VanDung-dev/HieraChain-Relay/hierachain-relay/protocol"
)

type dispatcherFixture struct {
	registry   *network.PeerRegistry
	transport  *recordingTransport
	tracker    *Tracker
	metrics    *api.Metrics
	journal    *data.Journal
	dispatcher *Dispatcher
	now        time.Time
}

func newDispatcherFixture(rate float64, burst int) *dispatcherFixture {
	f := &dispatcherFixture{
		registry: network.NewPeerRegistry(rate, burst),
		metrics:  api.NewMetrics("test"),
		journal:  data.NewJournal(16),
		now:      time.Now(),
	}
	f.transport = &recordingTransport{registry: f.registry, failing: map[network.Peer]bool{}}
	f.tracker = NewTracker(f.transport, time.Minute, f.metrics, f.journal)
	f.dispatcher = NewDispatcher(DispatcherConfig{
		StaleTimeout:  30 * time.Second,
		PruneInterval: time.Hour,
		SweepInterval: time.Hour,
	}, f.registry, NewRelay(f.transport, f.metrics), f.tracker, f.metrics)
	return f
}

func value(t *testing.T, m prometheus.Metric) float64 {
	t.Helper()

	var pb dto.Metric
	require.NoError(t, m.Write(&pb))
	switch {
	case pb.Counter != nil:
		return pb.Counter.GetValue()
	case pb.Gauge != nil:
		return pb.Gauge.GetValue()
	}
	return 0
}

func (f *dispatcherFixture) hello(id string) network.Peer {
	f.dispatcher.Handle(network.Event{Type: network.EventHello, From: id, At: f.now})
	peer, _ := f.registry.Lookup(id)
	return peer
}

func (f *dispatcherFixture) message(id string, msg *protocol.Message) {
	f.dispatcher.Handle(network.Event{Type: network.EventMessage, From: id, Message: msg, At: f.now})
}

func TestDispatcherHelloAndLeave(t *testing.T) {
	f := newDispatcherFixture(0, 0)

	a := f.hello("a")
	f.hello("b")
	assert.Equal(t, 2, f.registry.Count())
	assert.Equal(t, float64(2), value(t, f.metrics.LivePeers))

	f.dispatcher.Handle(network.Event{Type: network.EventLeave, From: "b", At: f.now})
	assert.Equal(t, []network.Peer{a}, f.registry.Live())

	// unknown leave is harmless
	f.dispatcher.Handle(network.Event{Type: network.EventLeave, From: "zz", At: f.now})
	assert.Equal(t, 1, f.registry.Count())
}

func TestDispatcherRoutesBlocksToRelay(t *testing.T) {
	f := newDispatcherFixture(0, 0)
	a, b, c := f.hello("a"), f.hello("b"), f.hello("c")

	msg := protocol.NewBlockMessage(protocol.NewBlockAnnouncement, "9", chain("x", 1)[0])
	f.message("b", msg)

	assert.Len(t, f.transport.to(a), 1)
	assert.Len(t, f.transport.to(c), 1)
	assert.Empty(t, f.transport.to(b))
	assert.Equal(t, float64(2), value(t, f.metrics.MessagesRelayed))
	assert.Equal(t, float64(1), value(t, f.metrics.MessagesReceived.WithLabelValues("NewBlockAnnouncement")))
}

func TestDispatcherChainQuery(t *testing.T) {
	f := newDispatcherFixture(0, 0)
	a, b, c := f.hello("a"), f.hello("b"), f.hello("c")

	f.message("a", protocol.NewChainRequest("1"))
	assert.Len(t, f.transport.to(b), 1)
	assert.Len(t, f.transport.to(c), 1)
	assert.Equal(t, 1, f.tracker.Pending())

	fromB := protocol.NewChainResponse("1", chain("b", 2))
	f.message("b", fromB)
	f.message("c", protocol.NewChainResponse("1", chain("c", 1)))

	got := f.transport.to(a)
	require.Len(t, got, 1)
	assert.Same(t, fromB, got[0])
	assert.Equal(t, float64(1), value(t, f.metrics.ChainResolutions.WithLabelValues(api.OutcomeComplete)))
}

func TestDispatcherDuplicateRequestCounted(t *testing.T) {
	f := newDispatcherFixture(0, 0)
	f.hello("a")
	f.hello("b")

	f.message("a", protocol.NewChainRequest("1"))
	f.message("b", protocol.NewChainRequest("1"))

	assert.Equal(t, float64(1), value(t, f.metrics.DuplicateRequests))
	assert.Equal(t, 1, f.tracker.Pending())
}

func TestDispatcherLeaveCompletesQuery(t *testing.T) {
	f := newDispatcherFixture(0, 0)
	a := f.hello("a")
	f.hello("b")
	f.hello("c")

	f.message("a", protocol.NewChainRequest("1"))
	f.message("b", protocol.NewChainResponse("1", chain("b", 1)))
	assert.Empty(t, f.transport.to(a))

	f.dispatcher.Handle(network.Event{Type: network.EventLeave, From: "c", At: f.now})
	assert.Len(t, f.transport.to(a), 1)
}

func TestDispatcherReconnectIsNewPeer(t *testing.T) {
	f := newDispatcherFixture(0, 0)
	f.hello("a")
	f.hello("b")

	f.message("a", protocol.NewChainRequest("1"))
	f.dispatcher.Handle(network.Event{Type: network.EventLeave, From: "a", At: f.now})

	// a reconnects under the same identity and must not get the old answer
	a2 := f.hello("a")
	f.message("b", protocol.NewChainResponse("1", chain("b", 1)))

	assert.Empty(t, f.transport.to(a2))
	assert.Equal(t, 0, f.tracker.Pending())
}

func (f *dispatcherFixture) connect(id string) network.Peer {
	f.dispatcher.Handle(network.Event{Type: network.EventConnect, From: id, At: f.now})
	peer, _ := f.registry.Lookup(id)
	return peer
}

func TestDispatcherRedialWithoutLeave(t *testing.T) {
	f := newDispatcherFixture(0, 0)
	a := f.connect("a")
	b := f.connect("b")

	f.message("a", protocol.NewChainRequest("1"))
	require.Equal(t, 1, f.tracker.Pending())

	// a crashed and dialed again before it could be pruned
	a2 := f.connect("a")
	assert.NotEqual(t, a, a2)
	assert.Equal(t, []network.Peer{b, a2}, f.registry.Live())
	assert.Equal(t, 0, f.tracker.Pending(), "query from the old session is dropped")

	f.message("b", protocol.NewChainResponse("1", chain("b", 1)))
	assert.Empty(t, f.transport.to(a2))
	assert.Empty(t, f.transport.to(a))

	// heartbeats keep the session
	assert.Equal(t, a2, f.hello("a"))
	assert.Equal(t, 2, f.registry.Count())
	assert.Equal(t, float64(2), value(t, f.metrics.LivePeers))
}

func TestDispatcherMalformedAndUnknown(t *testing.T) {
	f := newDispatcherFixture(0, 0)

	f.dispatcher.Handle(network.Event{
		Type: network.EventMalformed,
		From: "a",
		Err:  fmt.Errorf("%w: bad json", protocol.ErrMalformedMessage),
		At:   f.now,
	})
	f.dispatcher.Handle(network.Event{
		Type: network.EventMalformed,
		From: "a",
		Err:  fmt.Errorf("%w: \"Ping\"", protocol.ErrUnknownType),
		At:   f.now,
	})
	f.message("a", &protocol.Message{Kind: protocol.KindUnknown})

	// connection stays
	assert.Equal(t, 1, f.registry.Count())
	assert.Equal(t, float64(1), value(t, f.metrics.MessagesDropped.WithLabelValues(api.DropMalformed)))
	assert.Equal(t, float64(2), value(t, f.metrics.MessagesDropped.WithLabelValues(api.DropUnknownType)))
	assert.Empty(t, f.transport.sent)
}

func TestDispatcherRateLimit(t *testing.T) {
	f := newDispatcherFixture(1, 2)
	f.hello("a")
	f.hello("b")

	msg := protocol.NewBlockMessage(protocol.NewBlockRequest, "1", chain("x", 1)[0])
	for i := 0; i < 5; i++ {
		f.message("a", msg)
	}

	assert.Len(t, f.transport.sent, 2)
	assert.Equal(t, float64(3), value(t, f.metrics.MessagesDropped.WithLabelValues(api.DropRateLimited)))
}

func TestDispatcherPrune(t *testing.T) {
	f := newDispatcherFixture(0, 0)
	f.hello("a")
	f.hello("b")
	f.hello("c")

	f.message("a", protocol.NewChainRequest("1"))
	f.now = f.now.Add(20 * time.Second)
	f.hello("a")
	f.message("b", protocol.NewChainResponse("1", chain("b", 1)))

	// c has been silent past the stale timeout, a and b have not
	f.dispatcher.Prune(f.now.Add(15 * time.Second))

	assert.Equal(t, 2, f.registry.Count())
	a, _ := f.registry.Lookup("a")
	assert.Len(t, f.transport.to(a), 1)
}

func TestDispatcherRun(t *testing.T) {
	f := newDispatcherFixture(0, 0)
	events := make(chan network.Event, 8)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.dispatcher.Run(ctx, events)
		close(done)
	}()

	events <- network.Event{Type: network.EventHello, From: "a", At: time.Now()}
	events <- network.Event{Type: network.EventMessage, From: "a", Message: protocol.NewChainRequest("1"), At: time.Now()}
	close(events)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		cancel()
		t.Fatal("dispatcher did not stop on closed events")
	}
	cancel()

	a, ok := f.registry.Lookup("a")
	require.True(t, ok)
	got := f.transport.to(a)
	require.Len(t, got, 1)
	assert.Equal(t, 0, got[0].Len())
}

func TestDispatcherRunStopsOnCancel(t *testing.T) {
	f := newDispatcherFixture(0, 0)
	events := make(chan network.Event)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.dispatcher.Run(ctx, events)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal(errors.New("dispatcher did not stop on cancel"))
	}
}

func TestDispatcherSweepsOnTicker(t *testing.T) {
	registry := network.NewPeerRegistry(0, 0)
	metrics := api.NewMetrics("test")
	transport := &recordingTransport{registry: registry, failing: map[network.Peer]bool{}}
	tracker := NewTracker(transport, 10*time.Millisecond, metrics, data.NewJournal(4))
	d := NewDispatcher(DispatcherConfig{
		StaleTimeout:  time.Hour,
		PruneInterval: time.Hour,
		SweepInterval: 5 * time.Millisecond,
	}, registry, NewRelay(transport, metrics), tracker, metrics)

	now := time.Now()
	d.Handle(network.Event{Type: network.EventHello, From: "a", At: now})
	d.Handle(network.Event{Type: network.EventHello, From: "b", At: now})
	d.Handle(network.Event{Type: network.EventMessage, From: "a", Message: protocol.NewChainRequest("1"), At: now})
	require.Equal(t, 1, tracker.Pending())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx, make(chan network.Event))
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()
	<-done

	a, _ := registry.Lookup("a")
	got := transport.to(a)
	require.Len(t, got, 1)
	assert.Equal(t, protocol.GetChainResponse, got[0].Kind)
}
