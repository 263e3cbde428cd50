package cluster

import (
	"fmt"
	"sync"

	"github.com/nfrund/wirecall/internal/transport"
)

// Media opens both ends of a channel. *transport.Mux satisfies it.
type Media interface {
	Publication(ch transport.Channel) (transport.Publication, error)
	Subscription(ch transport.Channel) (transport.Subscription, error)
}

// LocalClient opens client sessions directly on a Container in the same
// process. The egress of session n travels on stream n of the client's
// channel URI. Session events are delivered to the container one at a
// time.
type LocalClient struct {
	container *Container
	media     Media
	uri       string

	mu     sync.Mutex
	nextID int64
	open   map[int64]*localIngress
}

// NewLocalClient returns a client of c whose session egress is carried by
// media on uri, for example "ipc:session".
func NewLocalClient(c *Container, media Media, uri string) *LocalClient {
	return &LocalClient{container: c, media: media, uri: uri, open: make(map[int64]*localIngress)}
}

// Connect opens a session with principal. Offers on the returned sink are
// ingress messages of the session, and closing it closes the session. The
// source receives the session's egress.
func (l *LocalClient) Connect(principal []byte) (transport.Sink, transport.Source, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	id := l.nextID

	ch := transport.Channel{URI: l.uri, Stream: int32(id)}
	sub, err := l.media.Subscription(ch)
	if err != nil {
		return nil, nil, fmt.Errorf("open session %d egress: %w", id, err)
	}
	pub, err := l.media.Publication(ch)
	if err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("open session %d egress: %w", id, err)
	}

	s := &localSession{id: id, principal: append([]byte(nil), principal...), egress: pub}
	in := &localIngress{client: l, session: s}
	l.open[id] = in
	l.container.OnSessionOpen(s)
	l.container.cfg.logger.Debug("local session opened", "session_id", id, "principal", string(principal))
	return in, sub, nil
}

// Sessions returns the number of open sessions.
func (l *LocalClient) Sessions() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.open)
}

func (l *LocalClient) message(in *localIngress, buf []byte) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.open[in.session.id]; !ok {
		return false
	}
	if err := l.container.OnSessionMessage(in.session, buf, 0); err != nil {
		l.container.cfg.logger.Debug("local session message rejected", "session_id", in.session.id, "error", err)
		return false
	}
	return true
}

func (l *LocalClient) close(in *localIngress) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.open[in.session.id]; !ok {
		return nil
	}
	delete(l.open, in.session.id)
	l.container.OnSessionClose(in.session)
	return in.session.egress.Close()
}

// localSession is the container's view of a local client session.
type localSession struct {
	id        int64
	principal []byte
	egress    transport.Publication
}

func (s *localSession) ID() int64                { return s.id }
func (s *localSession) EncodedPrincipal() []byte { return s.principal }
func (s *localSession) Offer(buf []byte) bool    { return s.egress.Offer(buf) }
func (s *localSession) IsConnected() bool        { return s.egress.IsConnected() }

// localIngress is the client's view of a session.
type localIngress struct {
	client  *LocalClient
	session *localSession
}

func (in *localIngress) Offer(buf []byte) bool {
	return in.client.message(in, buf)
}

func (in *localIngress) IsConnected() bool {
	in.client.mu.Lock()
	defer in.client.mu.Unlock()
	_, ok := in.client.open[in.session.id]
	return ok
}

func (in *localIngress) Close() error {
	return in.client.close(in)
}
