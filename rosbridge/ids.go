package rosbridge

import "github.com/google/uuid"

// SubId, AdvId, CallId and SvcAdvId are opaque handle identifiers, each a
// 128-bit random value rendered as hex with the topic or service name as a
// prefix (spec.md §3 / §4.5) — this keeps ids human-readable in transport
// logs while remaining collision-safe across concurrent handles on the same
// topic.
type SubId string
type AdvId string
type CallId string
type SvcAdvId string

func newId(prefix string) string {
	return prefix + "/" + uuid.New().String()
}

func newSubId(topic string) SubId     { return SubId(newId(topic)) }
func newAdvId(topic string) AdvId     { return AdvId(newId(topic)) }
func newCallId(service string) CallId { return CallId(newId(service)) }
func newSvcAdvId(service string) SvcAdvId {
	return SvcAdvId(newId(service))
}
