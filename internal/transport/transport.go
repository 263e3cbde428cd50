// Package transport defines the boundary between the call framing core and
// the messaging media that carry frames.
//
// A Sink accepts whole frames without blocking or queuing on the caller's
// behalf. A Source hands received frames to a handler when polled by the
// goroutine that owns it. Concrete media live in the sub-packages and are
// selected by the scheme of a Channel URI through a Mux.
package transport

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownScheme is returned when no media is registered for a channel.
	ErrUnknownScheme = errors.New("transport: no media for channel scheme")

	// ErrClosed is returned by operations on closed media.
	ErrClosed = errors.New("transport: closed")
)

// Sink is the output side of a channel.
type Sink interface {
	// Offer hands buf to the transport. It returns false when the frame was
	// not accepted (back pressure, no connected subscriber, closed). buf may
	// be reused by the caller as soon as Offer returns.
	Offer(buf []byte) bool
	// IsConnected is advisory liveness information only.
	IsConnected() bool
}

// FragmentHandler receives one frame starting at offset. buf is only valid
// for the duration of the call.
type FragmentHandler func(buf []byte, offset int)

// Source is the input side of a channel.
type Source interface {
	// Poll delivers up to limit available frames to handler, in arrival
	// order, and returns how many it delivered. A limit of zero or less
	// drains everything currently available.
	Poll(handler FragmentHandler, limit int) int
	Close() error
}

// Publication is a Sink owned by a media that must be released.
type Publication interface {
	Sink
	Close() error
}

// Subscription is a Source that can report whether a publisher is present.
type Subscription interface {
	Source
	IsConnected() bool
}

// Channel identifies a transport channel: a URI whose scheme selects the
// media, plus a stream number.
type Channel struct {
	URI    string `json:"uri"`
	Stream int32  `json:"stream"`
}

// Scheme returns the URI text before the first ':', or the whole URI.
func (c Channel) Scheme() string {
	scheme, _, _ := strings.Cut(c.URI, ":")
	return scheme
}

// Address returns the URI text after "<scheme>://" or "<scheme>:".
func (c Channel) Address() string {
	_, rest, ok := strings.Cut(c.URI, ":")
	if !ok {
		return ""
	}
	return strings.TrimPrefix(rest, "//")
}

// String renders the channel as uri#stream.
func (c Channel) String() string {
	return fmt.Sprintf("%s#%d", c.URI, c.Stream)
}

// Media creates publications and subscriptions for one URI scheme.
type Media interface {
	Scheme() string
	Publication(ch Channel) (Publication, error)
	Subscription(ch Channel) (Subscription, error)
	Close() error
}
