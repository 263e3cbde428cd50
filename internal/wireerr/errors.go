// Package wireerr defines the error taxonomy shared by the schema, codec,
// registry and cluster packages.
//
// Every failure carries a Kind so callers can branch with errors.Is against
// the package sentinels without caring which component produced it:
//
//	if errors.Is(err, wireerr.ErrProtocol) {
//		// drop the frame and keep polling
//	}
package wireerr

import (
	"strconv"
	"strings"
)

// Kind classifies a failure.
type Kind string

const (
	// KindSchema is an unsupported or inconsistent parameter type. Fatal at registration.
	KindSchema Kind = "schema_error"
	// KindConfiguration is a registration that violates registry policy. Fatal at registration.
	KindConfiguration Kind = "configuration_error"
	// KindProtocol is a malformed or unknown frame. Reported per frame.
	KindProtocol Kind = "protocol_error"
	// KindRouting is a session message without a recognised binding. Reported per message.
	KindRouting Kind = "routing_error"
)

// Sentinels for errors.Is matching. They compare by Kind only.
var (
	ErrSchema        = &Error{Kind: KindSchema, Message: "schema error"}
	ErrConfiguration = &Error{Kind: KindConfiguration, Message: "configuration error"}
	ErrProtocol      = &Error{Kind: KindProtocol, Message: "protocol error"}
	ErrRouting       = &Error{Kind: KindRouting, Message: "routing error"}
)

// Error is a structured failure with enough context to locate the offending
// interface, method, parameter or session.
type Error struct {
	Kind      Kind   `json:"kind"`
	Interface string `json:"interface,omitempty"`
	Method    string `json:"method,omitempty"`
	Param     string `json:"param,omitempty"`
	Session   int64  `json:"session,omitempty"`
	Message   string `json:"message"`
	Cause     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	b.WriteString(": ")
	b.WriteString(e.Message)

	var where []string
	if e.Interface != "" {
		where = append(where, "interface="+e.Interface)
	}
	if e.Method != "" {
		where = append(where, "method="+e.Method)
	}
	if e.Param != "" {
		where = append(where, "param="+e.Param)
	}
	if e.Session != 0 {
		where = append(where, "session="+strconv.FormatInt(e.Session, 10))
	}
	if len(where) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(where, " "))
		b.WriteString(")")
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Schema builds a KindSchema error.
func Schema(iface, method, param, message string) *Error {
	return &Error{Kind: KindSchema, Interface: iface, Method: method, Param: param, Message: message}
}

// Configuration builds a KindConfiguration error.
func Configuration(iface, message string) *Error {
	return &Error{Kind: KindConfiguration, Interface: iface, Message: message}
}

// Protocol builds a KindProtocol error.
func Protocol(iface, message string, cause error) *Error {
	return &Error{Kind: KindProtocol, Interface: iface, Message: message, Cause: cause}
}

// Routing builds a KindRouting error for a session.
func Routing(session int64, message string) *Error {
	return &Error{Kind: KindRouting, Session: session, Message: message}
}

// WithMethod returns a copy of e annotated with a method name.
func (e *Error) WithMethod(method string) *Error {
	c := *e
	c.Method = method
	return &c
}

// WithCause returns a copy of e wrapping cause.
func (e *Error) WithCause(cause error) *Error {
	c := *e
	c.Cause = cause
	return &c
}
