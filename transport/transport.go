// Package transport defines the contract between the forwarding pipeline and
// the network layer that carries transmission units to a collector.
//
// The pipeline calls every method while holding its own lock, so
// implementations must never block on network I/O inside these calls and must
// never call back into the pipeline synchronously.
package transport

import "github.com/lixenwraith/logfwd/codec"

// Transport resolves collector addresses to live channels.
type Transport interface {
	// ResolveChannel returns the channel for addr, or nil if no usable
	// connection exists yet. A nil result may start connecting in the background.
	ResolveChannel(addr string) Channel
	// Close tears down every channel.
	Close() error
}

// Channel is one connection to a collector.
type Channel interface {
	// Enqueue appends the unit to the channel's outgoing buffer.
	Enqueue(u *codec.Unit)
	// DeferredSend schedules transmission of the outgoing buffer outside the
	// caller's critical section.
	DeferredSend()
	// IsSending reports whether a transmission is in flight.
	IsSending() bool
}
