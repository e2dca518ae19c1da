package core

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/bitmark-inc/logger"
	"github.com/patrickmn/go-cache"

	"github.com/VanDung-dev/HieraChain-Relay/api"
	"github.com/VanDung-dev/HieraChain-Relay/hierachain-relay/data"
	"github.com/VanDung-dev/HieraChain-Relay/hierachain-relay/network"
	"github.com/VanDung-dev/HieraChain-Relay/hierachain-relay/protocol"
)

// ErrDuplicateCorrelationID is returned for a request whose correlation id
// is already in flight.
var ErrDuplicateCorrelationID = errors.New("correlation id already pending")

// pendingRequest is one longest chain query waiting for replies.
type pendingRequest struct {
	correlationID string
	requester     network.Peer
	started       time.Time

	// replies in first-arrival order; a repeat reply keeps its slot
	order   []network.Peer
	replies map[network.Peer]*protocol.Message

	// set once answered so the cache eviction callback does not answer again
	done bool
}

func newPendingRequest(id string, requester network.Peer, now time.Time) *pendingRequest {
	return &pendingRequest{
		correlationID: id,
		requester:     requester,
		started:       now,
		replies:       make(map[network.Peer]*protocol.Message),
	}
}

func (p *pendingRequest) record(sender network.Peer, msg *protocol.Message) {
	if _, ok := p.replies[sender]; !ok {
		p.order = append(p.order, sender)
	}
	p.replies[sender] = msg
}

func (p *pendingRequest) ordered() []*protocol.Message {
	out := make([]*protocol.Message, 0, len(p.order))
	for _, peer := range p.order {
		out = append(out, p.replies[peer])
	}
	return out
}

// complete reports whether every live peer other than the requester has
// replied. live is read fresh for each evaluation.
func (p *pendingRequest) complete(live []network.Peer) bool {
	for _, peer := range live {
		if peer == p.requester {
			continue
		}
		if _, ok := p.replies[peer]; !ok {
			return false
		}
	}
	return true
}

// Tracker correlates longest chain queries with their replies.
//
// It is not safe for concurrent use; the dispatcher goroutine is its only
// caller. Expiry runs only when Expire is called.
type Tracker struct {
	log       *logger.L
	transport Transport
	pending   *cache.Cache
	metrics   *api.Metrics
	journal   *data.Journal
}

// NewTracker creates a tracker whose requests are answered after timeout
// with whatever replies have arrived.
func NewTracker(transport Transport, timeout time.Duration, metrics *api.Metrics, journal *data.Journal) *Tracker {
	t := &Tracker{
		log:       logger.New("tracker"),
		transport: transport,
		pending:   cache.New(timeout, 0),
		metrics:   metrics,
		journal:   journal,
	}
	t.pending.OnEvicted(t.evicted)
	return t
}

// OnChainRequest starts a longest chain query from requester.
func (t *Tracker) OnChainRequest(requester network.Peer, msg *protocol.Message) error {
	id := msg.CorrelationID

	if _, found := t.pending.Get(id); found {
		t.metrics.DuplicateRequests.Inc()
		return fmt.Errorf("%w: %q from %s", ErrDuplicateCorrelationID, id, requester)
	}

	// an expired entry not yet swept is answered now, before its id is reused
	t.pending.Delete(id)

	t.metrics.ChainRequests.Inc()
	now := time.Now()

	others := 0
	for _, peer := range t.transport.Peers() {
		if peer != requester {
			others++
		}
	}

	if others == 0 {
		t.log.Debugf("request %q from %s: no other peers", id, requester)
		t.answer(newPendingRequest(id, requester, now), api.OutcomeAlone)
		return nil
	}

	t.pending.Set(id, newPendingRequest(id, requester, now), cache.DefaultExpiration)
	t.metrics.UpdatePending(t.pending.ItemCount())

	sent := t.transport.BroadcastExcept(requester, msg)
	t.metrics.RecordRelayed(sent)

	t.log.Debugf("request %q from %s: asked %d of %d peers", id, requester, sent, others)
	return nil
}

// OnChainResponse records a reply and answers the requester once every
// live peer has replied. Replies for unknown ids are ignored.
func (t *Tracker) OnChainResponse(sender network.Peer, msg *protocol.Message) {
	v, found := t.pending.Get(msg.CorrelationID)
	if !found {
		t.log.Debugf("reply %q from %s: not pending", msg.CorrelationID, sender)
		return
	}
	request := v.(*pendingRequest)

	if sender == request.requester {
		t.log.Debugf("reply %q from its requester %s ignored", msg.CorrelationID, sender)
		return
	}

	request.record(sender, msg)
	t.evaluate(request)
}

// PeerLeft settles pending requests after peer has gone: requests it made
// are discarded, the rest are re-tested against the smaller live set.
func (t *Tracker) PeerLeft(peer network.Peer) {
	items := t.pending.Items()

	requests := make([]*pendingRequest, 0, len(items))
	for _, item := range items {
		requests = append(requests, item.Object.(*pendingRequest))
	}
	sort.Slice(requests, func(i, j int) bool {
		if requests[i].started.Equal(requests[j].started) {
			return requests[i].correlationID < requests[j].correlationID
		}
		return requests[i].started.Before(requests[j].started)
	})

	for _, request := range requests {
		if request.requester == peer {
			t.discard(request)
			continue
		}
		t.evaluate(request)
	}
}

// Expire answers every request that has passed its timeout.
func (t *Tracker) Expire() {
	t.pending.DeleteExpired()
	t.metrics.UpdatePending(t.pending.ItemCount())
}

// Pending returns the number of requests in flight.
func (t *Tracker) Pending() int {
	return t.pending.ItemCount()
}

// IsPending reports whether id is in flight and not yet expired.
func (t *Tracker) IsPending(id string) bool {
	_, found := t.pending.Get(id)
	return found
}

func (t *Tracker) evaluate(request *pendingRequest) {
	if !request.complete(t.transport.Peers()) {
		return
	}
	t.finish(request)
	t.answer(request, api.OutcomeComplete)
}

func (t *Tracker) discard(request *pendingRequest) {
	t.finish(request)
	t.log.Infof("request %q dropped: requester %s left", request.correlationID, request.requester)
	t.record(request, api.OutcomeRequesterLeft, 0)
}

func (t *Tracker) finish(request *pendingRequest) {
	request.done = true
	t.pending.Delete(request.correlationID)
	t.metrics.UpdatePending(t.pending.ItemCount())
}

// evicted is the cache callback; only timed out requests reach answer from here.
func (t *Tracker) evicted(_ string, v interface{}) {
	request := v.(*pendingRequest)
	if request.done {
		return
	}
	request.done = true

	t.log.Warnf("request %q from %s timed out with %d replies", request.correlationID, request.requester, len(request.order))
	t.answer(request, api.OutcomeTimeout)
}

// answer sends the winning reply, or an empty chain when there is none.
func (t *Tracker) answer(request *pendingRequest, outcome string) {
	response, err := SelectWinner(request.ordered())
	if errors.Is(err, ErrNoReplies) {
		response = protocol.NewChainResponse(request.correlationID, nil)
	}

	if err := t.transport.SendTo(request.requester, response); err != nil {
		t.metrics.SendFailures.Inc()
		t.log.Warnf("answer %q to %s: %v", request.correlationID, request.requester, err)
	}

	t.record(request, outcome, response.Len())
	t.log.Debugf("request %q answered: %s  replies: %d  length: %d", request.correlationID, outcome, len(request.order), response.Len())
}

func (t *Tracker) record(request *pendingRequest, outcome string, length int) {
	now := time.Now()
	elapsed := now.Sub(request.started)

	t.metrics.RecordResolution(outcome, elapsed)
	t.journal.Append(data.Resolution{
		CorrelationID: request.correlationID,
		Requester:     request.requester.String(),
		Replies:       len(request.order),
		WinnerLength:  length,
		Outcome:       outcome,
		LatencyMs:     float64(elapsed) / float64(time.Millisecond),
		ResolvedAt:    float64(now.UnixNano()) / float64(time.Second),
	})
}
