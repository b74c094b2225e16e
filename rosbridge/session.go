package rosbridge

import (
	"context"
	"encoding/json"

	"github.com/sirupsen/logrus"
)

// connState mirrors spec.md §3's session state machine.
type connState int

const (
	stateDisconnected connState = iota
	stateConnecting
	stateConnected
	stateShuttingDown
)

func (s connState) String() string {
	switch s {
	case stateDisconnected:
		return "disconnected"
	case stateConnecting:
		return "connecting"
	case stateConnected:
		return "connected"
	case stateShuttingDown:
		return "shutting_down"
	default:
		return "unknown"
	}
}

// Session is one application-owned connection to one rosbridge endpoint
// (spec.md §5). Every exported method is a thread-safe handle that sends a
// request onto an internal command channel and waits for the actor
// goroutine's reply; the actor itself is the only thing that ever touches
// the registry, the transport, or the backoff state.
type Session struct {
	cfg Config
	log *logrus.Entry

	subscribeCh   chan *subscribeCmd
	unsubscribeCh chan *unsubscribeCmd
	advertiseCh   chan *advertiseCmd
	unadvertiseCh chan *unadvertiseCmd
	publishCh     chan *publishCmd
	callCh        chan *callCmd
	cancelCallCh  chan CallId
	advSvcCh      chan *advertiseServiceCmd
	unadvSvcCh    chan *unadvertiseServiceCmd
	shutdownCh    chan *shutdownCmd

	done chan struct{}
}

// Dial opens a rosbridge session at url and starts its actor goroutine.
// The initial connection attempt happens synchronously: Dial returns an
// error if it cannot establish the first connection at all (a later,
// involuntary disconnect is instead handled by the reconnect loop and never
// surfaces from Dial).
func Dial(url string, opts ...Option) (*Session, error) {
	cfg := defaultConfig(url)
	for _, opt := range opts {
		opt(&cfg)
	}

	t, err := dialTransport(url)
	if err != nil {
		return nil, err
	}
	return newSession(cfg, t), nil
}

// newSession wires a Session to an already-established transport and starts
// its actor goroutine. Redials after a connection loss use dialTransport.
func newSession(cfg Config, t wireTransport) *Session {
	s := &Session{
		cfg:           cfg,
		log:           moduleLog(cfg.Logger, "rosbridge"),
		subscribeCh:   make(chan *subscribeCmd),
		unsubscribeCh: make(chan *unsubscribeCmd),
		advertiseCh:   make(chan *advertiseCmd),
		unadvertiseCh: make(chan *unadvertiseCmd),
		publishCh:     make(chan *publishCmd),
		callCh:        make(chan *callCmd),
		cancelCallCh:  make(chan CallId),
		advSvcCh:      make(chan *advertiseServiceCmd),
		unadvSvcCh:    make(chan *unadvertiseServiceCmd),
		shutdownCh:    make(chan *shutdownCmd),
		done:          make(chan struct{}),
	}

	a := &actor{
		session: s,
		cfg:     cfg,
		log:     s.log,
		reg:     newRegistry(),
		back:    newBackoff(cfg),
		state:   stateConnected,
		trans:   t,
		dial:    dialTransport,
	}
	go a.run()

	return s
}

// Subscriber is a live subscription handle (spec.md §4.5). Messages arrive
// on the channel returned by Messages in the order the bridge delivered
// them; the channel is closed when the handle is closed or the session
// shuts down.
type Subscriber struct {
	session *Session
	topic   string
	id      SubId
	ch      chan json.RawMessage
}

func (s *Subscriber) Messages() <-chan json.RawMessage { return s.ch }
func (s *Subscriber) Topic() string                    { return s.topic }

// Close removes this subscription. If it was the topic's last live
// subscriber, an outbound unsubscribe is sent.
func (s *Subscriber) Close() error {
	reply := make(chan struct{})
	select {
	case s.session.unsubscribeCh <- &unsubscribeCmd{topic: s.topic, id: s.id, reply: reply}:
	case <-s.session.done:
		return ErrClosed
	}
	<-reply
	return nil
}

// Publisher is a live advertisement handle (spec.md §4.5).
type Publisher struct {
	session *Session
	topic   string
	msgType string
	id      AdvId
}

func (p *Publisher) Topic() string { return p.topic }

// Publish marshals payload to JSON and sends a publish frame. It fails
// with ErrNotAdvertised if this handle (or some other handle on the same
// topic) has already been closed and no advertiser remains.
func (p *Publisher) Publish(payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return errWrap(ErrSerialization, err)
	}
	reply := make(chan error, 1)
	select {
	case p.session.publishCh <- &publishCmd{topic: p.topic, payload: raw, reply: reply}:
	case <-p.session.done:
		return ErrClosed
	}
	return <-reply
}

// Close withdraws this advertisement. If it was the topic's last live
// advertiser, an outbound unadvertise is sent. Publish returns only after
// the actor has handled its publish frame, so a Publish that returned before
// Close was called is always written ahead of the unadvertise. A Publish
// running concurrently with Close reaches the actor on a different channel
// and is not ordered with it: if the unadvertise is handled first, that
// Publish fails with ErrNotAdvertised and nothing is written.
func (p *Publisher) Close() error {
	reply := make(chan struct{})
	select {
	case p.session.unadvertiseCh <- &unadvertiseCmd{topic: p.topic, id: p.id, reply: reply}:
	case <-p.session.done:
		return ErrClosed
	}
	<-reply
	return nil
}

// ServiceServer is a locally-hosted service handle.
type ServiceServer struct {
	session *Session
	service string
	id      SvcAdvId
}

func (h *ServiceServer) Close() error {
	reply := make(chan struct{})
	select {
	case h.session.unadvSvcCh <- &unadvertiseServiceCmd{service: h.service, id: h.id, reply: reply}:
	case <-h.session.done:
		return ErrClosed
	}
	<-reply
	return nil
}

// Subscribe registers a subscriber on topic with the default queue depth.
func (s *Session) Subscribe(topic, msgType string) (*Subscriber, error) {
	return s.SubscribeQueue(topic, msgType, s.cfg.DefaultQueueLength)
}

// SubscribeQueue registers a subscriber with an explicit bounded buffer
// depth, overriding Config.DefaultQueueLength.
func (s *Session) SubscribeQueue(topic, msgType string, queueLen int) (*Subscriber, error) {
	reply := make(chan *subEntry, 1)
	id := newSubId(topic)
	select {
	case s.subscribeCh <- &subscribeCmd{topic: topic, msgType: msgType, id: id, queueLen: queueLen, reply: reply}:
	case <-s.done:
		return nil, ErrClosed
	}
	entry := <-reply
	return &Subscriber{session: s, topic: topic, id: id, ch: entry.ch}, nil
}

// SubscribeAny subscribes to topic without declaring a message type
// up front, mirroring ROS's ShapeShifter idiom of accepting whatever
// concrete type the publisher turns out to be (SPEC_FULL.md §10): the
// bridge is left to infer the type, and payloads arrive exactly as
// SubscribeQueue delivers them.
func (s *Session) SubscribeAny(topic string) (*Subscriber, error) {
	return s.SubscribeQueue(topic, "", s.cfg.DefaultQueueLength)
}

// Advertise declares intent to publish on topic.
func (s *Session) Advertise(topic, msgType string) (*Publisher, error) {
	reply := make(chan struct{}, 1)
	id := newAdvId(topic)
	select {
	case s.advertiseCh <- &advertiseCmd{topic: topic, msgType: msgType, id: id, reply: reply}:
	case <-s.done:
		return nil, ErrClosed
	}
	<-reply
	return &Publisher{session: s, topic: topic, msgType: msgType, id: id}, nil
}

// CallService invokes a remote service and blocks until the response
// arrives, ctx is done, or the session disconnects. If ctx carries no
// deadline, Config.CallTimeout applies.
func (s *Session) CallService(ctx context.Context, service, msgType string, args interface{}) (json.RawMessage, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, errWrap(ErrSerialization, err)
	}

	if _, ok := ctx.Deadline(); !ok && s.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.CallTimeout)
		defer cancel()
	}

	id := newCallId(service)
	reply := make(chan *Envelope, 1)
	select {
	case s.callCh <- &callCmd{service: service, msgType: msgType, args: raw, id: id, reply: reply}:
	case <-s.done:
		return nil, ErrClosed
	}

	select {
	case env, ok := <-reply:
		if !ok || env == nil {
			return nil, ErrDisconnected
		}
		if !env.ResultOK() {
			return nil, &CallError{Service: service, Values: env.Values}
		}
		return env.Values, nil
	case <-ctx.Done():
		select {
		case s.cancelCallCh <- id:
		case <-s.done:
		}
		if ctx.Err() == context.DeadlineExceeded {
			return nil, ErrTimeout
		}
		return nil, ctx.Err()
	case <-s.done:
		return nil, ErrClosed
	}
}

// Publish is the unchecked convenience form of publishing (spec.md §4.5):
// it requires some live advertisement on topic already exist (via Advertise)
// and fails with ErrNotAdvertised otherwise, without a Publisher handle.
func (s *Session) Publish(topic string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return errWrap(ErrSerialization, err)
	}
	reply := make(chan error, 1)
	select {
	case s.publishCh <- &publishCmd{topic: topic, payload: raw, reply: reply}:
	case <-s.done:
		return ErrClosed
	}
	return <-reply
}

// AdvertiseService installs handler as the local server for service and
// advertises it on the bridge.
func (s *Session) AdvertiseService(service, msgType string, handler ServiceHandler) (*ServiceServer, error) {
	reply := make(chan struct{}, 1)
	id := newSvcAdvId(service)
	select {
	case s.advSvcCh <- &advertiseServiceCmd{service: service, msgType: msgType, id: id, handler: handler, reply: reply}:
	case <-s.done:
		return nil, ErrClosed
	}
	<-reply
	return &ServiceServer{session: s, service: service, id: id}, nil
}

// Shutdown transitions the session to ShuttingDown: it best-effort sends
// unadvertise/unsubscribe for every live registration, closes the socket,
// fails every pending call with ErrDisconnected, and stops the reconnect
// loop for good. It blocks until the actor goroutine has exited or ctx is
// done.
func (s *Session) Shutdown(ctx context.Context) error {
	reply := make(chan struct{})
	cmd := &shutdownCmd{reply: reply}
	select {
	case s.shutdownCh <- cmd:
	case <-s.done:
		return nil
	}
	select {
	case <-reply:
		return nil
	case <-ctx.Done():
		return ErrTimeout
	}
}

func errWrap(sentinel, cause error) error {
	return &wrappedError{sentinel: sentinel, cause: cause}
}

type wrappedError struct {
	sentinel error
	cause    error
}

func (e *wrappedError) Error() string { return e.sentinel.Error() + ": " + e.cause.Error() }
func (e *wrappedError) Unwrap() error { return e.sentinel }
