package rosbridge

import (
	"encoding/json"

	"github.com/buger/jsonparser"
	"github.com/pkg/errors"
)

// Op names the rosbridge JSON protocol's "op" discriminant (spec.md §4.4).
type Op string

const (
	OpAdvertise          Op = "advertise"
	OpUnadvertise        Op = "unadvertise"
	OpPublish            Op = "publish"
	OpSubscribe          Op = "subscribe"
	OpUnsubscribe        Op = "unsubscribe"
	OpCallService        Op = "call_service"
	OpServiceResponse    Op = "service_response"
	OpAdvertiseService   Op = "advertise_service"
	OpUnadvertiseService Op = "unadvertise_service"
	OpStatus             Op = "status"
)

// knownOps is used to validate the "op" discriminant of an inbound frame
// without fully unmarshaling it.
var knownOps = map[Op]bool{
	OpAdvertise:          true,
	OpUnadvertise:        true,
	OpPublish:            true,
	OpSubscribe:          true,
	OpUnsubscribe:        true,
	OpCallService:        true,
	OpServiceResponse:    true,
	OpAdvertiseService:   true,
	OpUnadvertiseService: true,
	OpStatus:             true,
}

// Envelope is the union of every field any rosbridge operation frame can
// carry (spec.md §4.4). The core stays JSON-valued: Msg/Args/Values are
// left as json.RawMessage so a typed façade can deserialize them at the
// handle boundary without the dispatcher ever needing to know the concrete
// message type (spec.md §9, "Typed wrappers vs untyped core").
type Envelope struct {
	Op Op `json:"op"`

	Topic string `json:"topic,omitempty"`
	Type  string `json:"type,omitempty"`
	ID    string `json:"id,omitempty"`

	Msg json.RawMessage `json:"msg,omitempty"`

	ThrottleRate *int   `json:"throttle_rate,omitempty"`
	QueueLength  *int   `json:"queue_length,omitempty"`
	FragmentSize *int   `json:"fragment_size,omitempty"`
	Compression  string `json:"compression,omitempty"`

	Service string          `json:"service,omitempty"`
	Args    json.RawMessage `json:"args,omitempty"`
	Values  json.RawMessage `json:"values,omitempty"`
	Result  *bool           `json:"result,omitempty"`

	Level string `json:"level,omitempty"`
}

// CodecError wraps a frame decoding failure. When Unknown is true the op
// discriminant simply wasn't recognized: per spec.md §4.4 this must not
// terminate the session, only cause the one frame to be discarded.
type CodecError struct {
	Unknown bool
	Reason  string
}

func (e *CodecError) Error() string { return e.Reason }

// Is allows errors.Is(err, ErrUnknownOp) to match a CodecError with
// Unknown set, per the spec.md §7 error taxonomy.
func (e *CodecError) Is(target error) bool {
	return e.Unknown && target == ErrUnknownOp
}

func newUnknownOpError(op string) *CodecError {
	return &CodecError{Unknown: true, Reason: "unknown op discriminant: " + op}
}

// peekOp extracts just the "op" field from raw JSON without a full
// unmarshal, using jsonparser — this keeps dispatch cost close to
// independent of payload size (spec.md §9) by letting the codec reject an
// unrecognized or malformed frame before paying for a full decode.
func peekOp(data []byte) (string, error) {
	op, err := jsonparser.GetString(data, "op")
	if err != nil {
		return "", errors.Wrap(err, "reading \"op\" field")
	}
	return op, nil
}

// Decode parses a single inbound WebSocket text frame into an Envelope.
// An unrecognized op yields a *CodecError satisfying errors.Is(err,
// ErrUnknownOp); callers must log and discard rather than treat it as
// fatal.
func Decode(data []byte) (*Envelope, error) {
	opStr, err := peekOp(data)
	if err != nil {
		return nil, &CodecError{Reason: err.Error()}
	}
	if !knownOps[Op(opStr)] {
		return nil, newUnknownOpError(opStr)
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &CodecError{Reason: errors.Wrap(err, "decoding envelope").Error()}
	}
	return &env, nil
}

// Encode serializes an outbound Envelope to its wire JSON form.
func Encode(env *Envelope) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, errors.Wrap(err, "encoding envelope")
	}
	return data, nil
}

// --- outbound envelope constructors -------------------------------------

func newAdvertise(topic, msgType, id string) *Envelope {
	return &Envelope{Op: OpAdvertise, Topic: topic, Type: msgType, ID: id}
}

func newUnadvertise(topic, id string) *Envelope {
	return &Envelope{Op: OpUnadvertise, Topic: topic, ID: id}
}

func newPublish(topic string, payload json.RawMessage) *Envelope {
	return &Envelope{Op: OpPublish, Topic: topic, Msg: payload}
}

// SubscribeOptions carries the optional subscribe-frame fields from
// spec.md §4.4.
type SubscribeOptions struct {
	ThrottleRate *int
	QueueLength  *int
	FragmentSize *int
	Compression  string
}

func newSubscribe(topic, msgType, id string, opts SubscribeOptions) *Envelope {
	return &Envelope{
		Op: OpSubscribe, Topic: topic, Type: msgType, ID: id,
		ThrottleRate: opts.ThrottleRate,
		QueueLength:  opts.QueueLength,
		FragmentSize: opts.FragmentSize,
		Compression:  opts.Compression,
	}
}

func newUnsubscribe(topic, id string) *Envelope {
	return &Envelope{Op: OpUnsubscribe, Topic: topic, ID: id}
}

func newCallService(service string, args json.RawMessage, id, msgType string) *Envelope {
	return &Envelope{Op: OpCallService, Service: service, Args: args, ID: id, Type: msgType}
}

func newServiceResponse(service, id string, values json.RawMessage, result bool) *Envelope {
	r := result
	return &Envelope{Op: OpServiceResponse, Service: service, ID: id, Values: values, Result: &r}
}

func newAdvertiseService(service, msgType string) *Envelope {
	return &Envelope{Op: OpAdvertiseService, Service: service, Type: msgType}
}

func newUnadvertiseService(service string) *Envelope {
	return &Envelope{Op: OpUnadvertiseService, Service: service}
}

// ResultOK reports the boolean "result" field of a service_response frame,
// defaulting to false (failure) if absent, since a missing result can never
// represent success per spec.md §4.4.
func (e *Envelope) ResultOK() bool {
	return e.Result != nil && *e.Result
}
