package rosbridge

import (
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"
)

// --- command payloads, one per Session public operation -------------------

type subscribeCmd struct {
	topic, msgType string
	id             SubId
	queueLen       int
	reply          chan *subEntry
}

type unsubscribeCmd struct {
	topic string
	id    SubId
	reply chan struct{}
}

type advertiseCmd struct {
	topic, msgType string
	id             AdvId
	reply          chan struct{}
}

type unadvertiseCmd struct {
	topic string
	id    AdvId
	reply chan struct{}
}

type publishCmd struct {
	topic   string
	payload json.RawMessage
	reply   chan error
}

type callCmd struct {
	service, msgType string
	args             json.RawMessage
	id               CallId
	reply            chan *Envelope
}

type advertiseServiceCmd struct {
	service, msgType string
	id               SvcAdvId
	handler          ServiceHandler
	reply            chan struct{}
}

type unadvertiseServiceCmd struct {
	service string
	id      SvcAdvId
	reply   chan struct{}
}

type shutdownCmd struct {
	reply chan struct{}
}

// actor is the session core: the single goroutine that owns the transport,
// the registry, and the reconnect/backoff state (spec.md §5). Every field
// here is touched only from run's goroutine.
type actor struct {
	session *Session
	cfg     Config
	log     *logrus.Entry

	reg   *registry
	back  *backoff
	state connState

	trans wireTransport
	dial  func(url string) (wireTransport, error)

	frameCh   chan []byte
	readErrCh chan error
}

// run is the actor's event loop. It owns the transport for as long as the
// session is connected, reading frames on a helper goroutine and handling
// every command and inbound frame on this one.
func (a *actor) run() {
	defer close(a.session.done)

	a.startReader()

	var reconnectTimer *time.Timer
	var reconnectCh <-chan time.Time

	for {
		select {
		case data := <-a.frameCh:
			a.handleFrame(data)

		case err := <-a.readErrCh:
			if a.state == stateShuttingDown {
				continue
			}
			a.log.WithError(err).Warn("rosbridge connection lost")
			a.reg.failAllPendingCalls()
			if !a.cfg.AutoReconnect {
				a.state = stateDisconnected
				continue
			}
			a.state = stateConnecting
			delay := a.back.next()
			a.log.WithField("delay", delay).Info("scheduling reconnect")
			reconnectTimer = time.NewTimer(delay)
			reconnectCh = reconnectTimer.C

		case <-reconnectCh:
			reconnectCh = nil
			if a.state != stateConnecting {
				continue
			}
			t, err := a.dial(a.cfg.URL)
			if err != nil {
				a.log.WithError(err).Warn("reconnect attempt failed")
				delay := a.back.next()
				reconnectTimer = time.NewTimer(delay)
				reconnectCh = reconnectTimer.C
				continue
			}
			a.trans = t
			a.state = stateConnected
			a.back.reset()
			a.startReader()
			a.resubscribeSweep()

		case cmd := <-a.session.subscribeCh:
			entry, needSubscribe := a.reg.addSubscriber(cmd.topic, cmd.msgType, cmd.id, cmd.queueLen)
			if needSubscribe {
				a.sendSubscribe(cmd.topic, cmd.msgType, cmd.id)
			}
			cmd.reply <- entry

		case cmd := <-a.session.unsubscribeCh:
			needUnsubscribe := a.reg.removeSubscriber(cmd.topic, cmd.id)
			if needUnsubscribe {
				a.send(newUnsubscribe(cmd.topic, string(cmd.id)))
			}
			close(cmd.reply)

		case cmd := <-a.session.advertiseCh:
			needAdvertise := a.reg.addAdvertiser(cmd.topic, cmd.msgType, cmd.id)
			if needAdvertise {
				a.send(newAdvertise(cmd.topic, cmd.msgType, string(cmd.id)))
			}
			close(cmd.reply)

		case cmd := <-a.session.unadvertiseCh:
			needUnadvertise := a.reg.removeAdvertiser(cmd.topic, cmd.id)
			if needUnadvertise {
				a.send(newUnadvertise(cmd.topic, string(cmd.id)))
			}
			close(cmd.reply)

		case cmd := <-a.session.publishCh:
			if !a.reg.isAdvertised(cmd.topic) {
				cmd.reply <- ErrNotAdvertised
				continue
			}
			cmd.reply <- a.send(newPublish(cmd.topic, cmd.payload))

		case cmd := <-a.session.callCh:
			a.reg.addPendingCall(cmd.id, cmd.service, cmd.reply)
			if err := a.send(newCallService(cmd.service, cmd.args, string(cmd.id), cmd.msgType)); err != nil {
				a.reg.resolvePendingCall(cmd.id, nil)
			}

		case id := <-a.session.cancelCallCh:
			a.reg.resolvePendingCall(id, nil)

		case cmd := <-a.session.advSvcCh:
			a.reg.addServiceServer(cmd.service, cmd.msgType, cmd.id, cmd.handler)
			a.send(newAdvertiseService(cmd.service, cmd.msgType))
			close(cmd.reply)

		case cmd := <-a.session.unadvSvcCh:
			if a.reg.removeServiceServer(cmd.service, cmd.id) {
				a.send(newUnadvertiseService(cmd.service))
			}
			close(cmd.reply)

		case cmd := <-a.session.shutdownCh:
			a.doShutdown()
			close(cmd.reply)
			return
		}
	}
}

// startReader spawns the goroutine that blocks on transport reads and
// forwards each frame (or the terminal read error) back to the actor.
func (a *actor) startReader() {
	a.frameCh = make(chan []byte)
	a.readErrCh = make(chan error, 1)
	trans := a.trans
	go func() {
		for {
			data, err := trans.readFrame()
			if err != nil {
				a.readErrCh <- err
				return
			}
			a.frameCh <- data
		}
	}()
}

// send encodes and writes env, logging and returning any transport error
// without tearing down the session — the reader goroutine is what notices a
// dead connection.
func (a *actor) send(env *Envelope) error {
	data, err := Encode(env)
	if err != nil {
		a.log.WithError(err).Error("failed to encode outbound frame")
		return errWrap(ErrSerialization, err)
	}
	if err := a.trans.writeFrame(data); err != nil {
		a.log.WithError(err).Warn("failed to write outbound frame")
		return err
	}
	return nil
}

func (a *actor) sendSubscribe(topic, msgType string, id SubId) {
	a.send(newSubscribe(topic, msgType, string(id), SubscribeOptions{}))
}

// handleFrame decodes and dispatches a single inbound frame (spec.md
// §4.4/§4.5). Decoding failures and unrecognized ops are logged and
// discarded; they never propagate to a subscriber or reach other frames.
func (a *actor) handleFrame(data []byte) {
	env, err := Decode(data)
	if err != nil {
		if cerr, ok := err.(*CodecError); ok && cerr.Unknown {
			a.log.WithField("reason", cerr.Reason).Debug("discarding frame with unknown op")
			return
		}
		a.log.WithError(err).Warn("discarding malformed inbound frame")
		return
	}

	switch env.Op {
	case OpPublish:
		a.reg.deliver(env.Topic, env.Msg)

	case OpServiceResponse:
		a.reg.resolvePendingCall(CallId(env.ID), env)

	case OpCallService:
		a.handleInboundCall(env)

	case OpStatus:
		a.handleStatus(env)

	default:
		a.log.WithField("op", env.Op).Debug("no handler for op on this side of the session")
	}
}

// handleInboundCall answers a call_service frame the bridge forwarded to a
// service this session advertises (spec.md §4.5).
func (a *actor) handleInboundCall(env *Envelope) {
	server, ok := a.reg.serviceServer(env.Service)
	if !ok {
		a.send(newServiceResponse(env.Service, env.ID, json.RawMessage("{}"), false))
		return
	}
	values, err := server.handler(env.Args)
	if err != nil {
		a.log.WithError(err).WithField("service", env.Service).Warn("service handler failed")
		a.send(newServiceResponse(env.Service, env.ID, json.RawMessage("{}"), false))
		return
	}
	a.send(newServiceResponse(env.Service, env.ID, values, true))
}

// handleStatus applies the §9 open-question decision: an error-level
// status targeting a pending call fails it; anything else, including a
// status aimed at a subscription id, is logged only (log-only was chosen
// over tearing the subscription down, see the Open Questions section of
// DESIGN.md).
func (a *actor) handleStatus(env *Envelope) {
	logLine := a.log.WithFields(logrus.Fields{"level": env.Level, "id": env.ID})
	if env.Level != "error" {
		logLine.Debug("status frame")
		return
	}
	logLine.Warn("status frame at error level")
	if env.ID != "" {
		a.reg.resolvePendingCall(CallId(env.ID), env)
	}
}

// resubscribeSweep replays subscribe/advertise for every live registration
// after a reconnect, before any other outbound frame (spec.md §4.7/§8):
// subscriptions first, then advertisements, then hosted services. The order
// of topics within each group follows map iteration and is not defined.
func (a *actor) resubscribeSweep() {
	for _, t := range a.reg.subscribedTopics() {
		a.send(newSubscribe(t.Topic, t.MsgType, t.ID, SubscribeOptions{}))
	}
	for _, t := range a.reg.advertisedTopics() {
		a.send(newAdvertise(t.Topic, t.MsgType, t.ID))
	}
	for _, service := range a.reg.hostedServices() {
		server, ok := a.reg.serviceServer(service)
		if ok {
			a.send(newAdvertiseService(service, server.msgType))
		}
	}
}

// doShutdown best-effort tears down every live registration, closes the
// transport, and fails outstanding calls (spec.md §4.5's shutdown
// operation).
func (a *actor) doShutdown() {
	a.state = stateShuttingDown
	for topic, ts := range a.reg.topics {
		if len(ts.subs) > 0 {
			a.send(newUnsubscribe(topic, ""))
		}
		if len(ts.advs) > 0 {
			a.send(newUnadvertise(topic, ""))
		}
		for _, entry := range ts.subs {
			close(entry.ch)
		}
	}
	a.reg.failAllPendingCalls()
	if a.trans != nil {
		_ = a.trans.close()
	}
}
