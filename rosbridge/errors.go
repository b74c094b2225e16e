package rosbridge

import "github.com/pkg/errors"

// Sentinel errors a caller can match with errors.Is (spec.md §7).
var (
	// ErrDisconnected is returned by Session.CallService when the connection
	// is lost (or the session shuts down) before a response arrives, or when
	// its call_service frame cannot be written. Other handle operations do
	// not return it, whether or not the session has a live transport.
	ErrDisconnected = errors.New("rosbridge: not connected")

	// ErrTimeout is returned by Session.CallService when its context's
	// deadline (or Config.CallTimeout) passes before a response arrives, and
	// by Session.Shutdown when its context is done before the actor replies.
	ErrTimeout = errors.New("rosbridge: timed out waiting for reply")

	// ErrNotAdvertised is returned by Publisher.Publish after the topic's
	// advertisement has been withdrawn (all Advertise handles closed).
	ErrNotAdvertised = errors.New("rosbridge: topic is not advertised")

	// ErrServiceFailed is matched, through *CallError, by the error
	// Session.CallService returns when the remote service responded with a
	// service_response frame carrying result=false, or when an error-level
	// status frame names the pending call.
	ErrServiceFailed = errors.New("rosbridge: service call failed")

	// ErrSerialization is returned when a payload cannot be marshaled to or
	// unmarshaled from JSON at a handle boundary.
	ErrSerialization = errors.New("rosbridge: serialization error")

	// ErrUnknownOp is matched via errors.Is against a *CodecError for a
	// frame whose "op" field isn't one rosbridge defines. It is informational
	// only: receiving it must never tear down the session.
	ErrUnknownOp = errors.New("rosbridge: unknown op")

	// ErrClosed is returned by any operation other than Shutdown attempted on
	// a Session or handle after Shutdown has completed.
	ErrClosed = errors.New("rosbridge: session closed")
)

// CallError reports a failed service call, preserving the remote values
// payload (if any) alongside ErrServiceFailed so a caller can inspect why.
type CallError struct {
	Service string
	Values  []byte
}

func (e *CallError) Error() string {
	return "rosbridge: service call to " + e.Service + " failed"
}

func (e *CallError) Unwrap() error { return ErrServiceFailed }
