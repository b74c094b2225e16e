package rosbridge

import "encoding/json"

// registry holds every piece of mutable session state: subscriber fan-out,
// publisher/subscribe reference counts, in-flight service calls, and
// locally-hosted service servers. It is owned exclusively by the session
// actor goroutine (spec.md §5) and is never touched from another
// goroutine, so none of its methods take a lock — the single-writer
// discipline is the synchronization.
type registry struct {
	topics   map[string]*topicState
	services map[string]*serviceAdState

	pending map[CallId]pendingCall

	svcServers map[string]*serviceServer
}

type topicState struct {
	msgType string

	subs map[SubId]*subEntry
	advs map[AdvId]bool
}

type subEntry struct {
	ch       chan json.RawMessage
	queueLen int
}

type serviceAdState struct {
	msgType string
	count   int
}

type pendingCall struct {
	service string
	reply   chan *Envelope
}

type serviceServer struct {
	id      SvcAdvId
	msgType string
	handler ServiceHandler
}

// ServiceHandler answers an inbound call_service frame addressed to a
// locally-advertised service. It returns the response values, or a non-nil
// error to fail the call; on error the reply carries result=false and an
// empty values payload.
type ServiceHandler func(args json.RawMessage) (values json.RawMessage, err error)

func newRegistry() *registry {
	return &registry{
		topics:     make(map[string]*topicState),
		services:   make(map[string]*serviceAdState),
		pending:    make(map[CallId]pendingCall),
		svcServers: make(map[string]*serviceServer),
	}
}

// --- subscriber fan-out ---------------------------------------------------

// addSubscriber registers a new subscriber on topic, creating the topic's
// fan-out state if this is the first one. The bool return reports whether
// the caller must now send an outbound "subscribe" frame: true exactly when
// this is the topic's first subscriber (spec.md §4.5 reference counting).
func (r *registry) addSubscriber(topic, msgType string, id SubId, queueLen int) (*subEntry, bool) {
	ts, ok := r.topics[topic]
	if !ok {
		ts = &topicState{msgType: msgType, subs: make(map[SubId]*subEntry), advs: make(map[AdvId]bool)}
		r.topics[topic] = ts
	}
	entry := &subEntry{ch: make(chan json.RawMessage, queueLen), queueLen: queueLen}
	ts.subs[id] = entry
	return entry, len(ts.subs) == 1
}

// removeSubscriber drops a subscriber. The bool return reports whether the
// caller must now send an outbound "unsubscribe" frame: true exactly when
// this was the topic's last subscriber.
func (r *registry) removeSubscriber(topic string, id SubId) bool {
	ts, ok := r.topics[topic]
	if !ok {
		return false
	}
	entry, had := ts.subs[id]
	if had {
		drainSubEntry(entry)
		delete(ts.subs, id)
	}
	if len(ts.subs) == 0 && len(ts.advs) == 0 {
		delete(r.topics, topic)
	}
	return had && len(ts.subs) == 0
}

// deliver fans payload out to every subscriber on topic, applying the
// bounded-buffer drop-oldest policy per receiver (spec.md §4.5): when a
// subscriber's channel is full, the oldest buffered message is discarded to
// make room rather than blocking the dispatcher or dropping the newest
// message. It reports how many subscribers received it.
func (r *registry) deliver(topic string, payload json.RawMessage) int {
	ts, ok := r.topics[topic]
	if !ok {
		return 0
	}
	delivered := 0
	for _, entry := range ts.subs {
		if deliverOne(entry.ch, payload) {
			delivered++
		}
	}
	return delivered
}

// deliverOne pushes payload onto ch, dropping the oldest queued item first
// if ch is already full.
func deliverOne(ch chan json.RawMessage, payload json.RawMessage) bool {
	select {
	case ch <- payload:
		return true
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- payload:
		return true
	default:
		return false
	}
}

// drainSubEntry discards any frames still sitting in entry's buffer before
// closing it, so a dropped subscription never yields stale queued messages
// to a caller still reading from Messages() (spec.md §8 cancellation).
func drainSubEntry(entry *subEntry) {
	for {
		select {
		case <-entry.ch:
		default:
			close(entry.ch)
			return
		}
	}
}

// subscriberCount reports how many subscribers a topic currently has,
// principally for tests asserting reference-count behavior.
func (r *registry) subscriberCount(topic string) int {
	ts, ok := r.topics[topic]
	if !ok {
		return 0
	}
	return len(ts.subs)
}

// subscribedTopics lists every topic with at least one live subscriber,
// used by the reconnect sweep to resubscribe (spec.md §4.6). The SubId
// returned for each is an arbitrary live subscriber on that topic — any one
// will do, since inbound publish frames route by topic, not by id.
func (r *registry) subscribedTopics() []topicResub {
	var out []topicResub
	for topic, ts := range r.topics {
		if len(ts.subs) == 0 {
			continue
		}
		var any SubId
		for id := range ts.subs {
			any = id
			break
		}
		out = append(out, topicResub{Topic: topic, MsgType: ts.msgType, ID: string(any)})
	}
	return out
}

type topicResub struct {
	Topic   string
	MsgType string
	ID      string
}

// --- publisher reference counting -----------------------------------------

// addAdvertiser registers a new publisher handle on topic. The bool return
// reports whether the caller must send an outbound "advertise" frame: true
// exactly when this is the topic's first advertiser.
func (r *registry) addAdvertiser(topic, msgType string, id AdvId) bool {
	ts, ok := r.topics[topic]
	if !ok {
		ts = &topicState{msgType: msgType, subs: make(map[SubId]*subEntry), advs: make(map[AdvId]bool)}
		r.topics[topic] = ts
	}
	ts.advs[id] = true
	return len(ts.advs) == 1
}

// removeAdvertiser drops a publisher handle. The bool return reports
// whether the caller must send an outbound "unadvertise" frame: true
// exactly when this was the topic's last advertiser.
func (r *registry) removeAdvertiser(topic string, id AdvId) bool {
	ts, ok := r.topics[topic]
	if !ok {
		return false
	}
	_, had := ts.advs[id]
	delete(ts.advs, id)
	if len(ts.subs) == 0 && len(ts.advs) == 0 {
		delete(r.topics, topic)
	}
	return had && len(ts.advs) == 0
}

// advertisedTopics lists every topic with at least one live advertiser,
// used by the reconnect sweep to re-advertise (spec.md §4.6/§4.7).
func (r *registry) advertisedTopics() []topicResub {
	var out []topicResub
	for topic, ts := range r.topics {
		if len(ts.advs) == 0 {
			continue
		}
		var any AdvId
		for id := range ts.advs {
			any = id
			break
		}
		out = append(out, topicResub{Topic: topic, MsgType: ts.msgType, ID: string(any)})
	}
	return out
}

// isAdvertised reports whether topic currently has at least one live
// advertiser, used to reject Publish after the last handle closed
// (ErrNotAdvertised).
func (r *registry) isAdvertised(topic string) bool {
	ts, ok := r.topics[topic]
	return ok && len(ts.advs) > 0
}

// --- outbound service calls -------------------------------------------------

func (r *registry) addPendingCall(id CallId, service string, reply chan *Envelope) {
	r.pending[id] = pendingCall{service: service, reply: reply}
}

func (r *registry) resolvePendingCall(id CallId, env *Envelope) bool {
	pc, ok := r.pending[id]
	if !ok {
		return false
	}
	delete(r.pending, id)
	pc.reply <- env
	close(pc.reply)
	return true
}

// failAllPendingCalls fails every outstanding call with a nil envelope,
// which callers interpret as ErrDisconnected; used on connection loss
// (spec.md §4.6, "in-flight service calls fail immediately").
func (r *registry) failAllPendingCalls() {
	for id, pc := range r.pending {
		close(pc.reply)
		delete(r.pending, id)
	}
}

// --- locally-hosted service servers -----------------------------------------

func (r *registry) addServiceServer(service, msgType string, id SvcAdvId, handler ServiceHandler) bool {
	_, existed := r.svcServers[service]
	r.svcServers[service] = &serviceServer{id: id, msgType: msgType, handler: handler}
	return !existed
}

func (r *registry) removeServiceServer(service string, id SvcAdvId) bool {
	s, ok := r.svcServers[service]
	if !ok || s.id != id {
		return false
	}
	delete(r.svcServers, service)
	return true
}

func (r *registry) serviceServer(service string) (*serviceServer, bool) {
	s, ok := r.svcServers[service]
	return s, ok
}

func (r *registry) hostedServices() []string {
	out := make([]string, 0, len(r.svcServers))
	for name := range r.svcServers {
		out = append(out, name)
	}
	return out
}
