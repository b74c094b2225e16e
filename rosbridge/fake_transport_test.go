package rosbridge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeTransport is an in-memory wireTransport standing in for a real
// rosbridge socket: test code feeds inbound bytes on in and drains frames
// the session actor writes from out, letting the whole dispatch/registry/
// reconnect pipeline run without a network.
type fakeTransport struct {
	in    chan []byte
	out   chan []byte
	errCh chan error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		in:    make(chan []byte, 32),
		out:   make(chan []byte, 32),
		errCh: make(chan error, 1),
	}
}

func (f *fakeTransport) readFrame() ([]byte, error) {
	select {
	case data := <-f.in:
		return data, nil
	case err := <-f.errCh:
		return nil, err
	}
}

func (f *fakeTransport) writeFrame(data []byte) error {
	f.out <- data
	return nil
}

func (f *fakeTransport) close() error { return nil }

// push delivers an inbound frame to the session as if the bridge had sent it.
func (f *fakeTransport) push(data string) {
	f.in <- []byte(data)
}

// drop simulates an involuntary socket loss.
func (f *fakeTransport) drop() {
	f.errCh <- errTestSocketDropped
}

// nextOut waits for the next outbound frame and decodes it, failing the
// test if none arrives in time.
func (f *fakeTransport) nextOut(t *testing.T) *Envelope {
	t.Helper()
	select {
	case data := <-f.out:
		env, err := Decode(data)
		require.NoError(t, err)
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for an outbound frame")
		return nil
	}
}

func (f *fakeTransport) expectNoOutboundFrame(t *testing.T) {
	t.Helper()
	select {
	case data := <-f.out:
		t.Fatalf("unexpected outbound frame: %s", data)
	case <-time.After(100 * time.Millisecond):
	}
}

var errTestSocketDropped = errTest("simulated socket drop")

type errTest string

func (e errTest) Error() string { return string(e) }

// dialQueue is a test dialer: each call to dial pops the next queued fake
// transport, standing in for a successful reconnect.
type dialQueue struct {
	queue chan *fakeTransport
}

func newDialQueue() *dialQueue {
	return &dialQueue{queue: make(chan *fakeTransport, 8)}
}

func (d *dialQueue) push(t *fakeTransport) { d.queue <- t }

func (d *dialQueue) dial(url string) (wireTransport, error) {
	select {
	case t := <-d.queue:
		return t, nil
	default:
		return nil, errTest("no transport queued for reconnect")
	}
}

// newTestSession builds a Session wired to trans, bypassing Dial's real
// network call, with fast backoff and reconnects served from redial.
func newTestSession(trans *fakeTransport, redial *dialQueue) *Session {
	cfg := defaultConfig("ws://test")
	cfg.BackoffInitial = time.Millisecond
	cfg.BackoffMax = 10 * time.Millisecond
	cfg.BackoffJitter = 0
	cfg.CallTimeout = time.Second

	s := &Session{
		cfg:           cfg,
		log:           moduleLog(cfg.Logger, "rosbridge-test"),
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

	dial := dialTransport
	if redial != nil {
		dial = redial.dial
	}

	a := &actor{
		session: s,
		cfg:     cfg,
		log:     s.log,
		reg:     newRegistry(),
		back:    newBackoff(cfg),
		state:   stateConnected,
		trans:   trans,
		dial:    dial,
	}
	go a.run()

	return s
}
