// Package rosbridge implements a client session for the rosbridge WebSocket
// JSON gateway: a single actor that owns one connection, demultiplexes
// inbound frames to subscribers, service callers and service servers, and
// reference-counts topic advertisements and subscriptions across
// reconnects.
package rosbridge
