// Package grpcstream is a point-to-point media for the "grpc" scheme.
//
// A subscription on grpc://host:port listens on that address; publications
// dial it and push frames over one long-lived bidirectional gRPC stream per
// publication. The stream number travels in the stream metadata, so one
// listener serves every stream on its address.
package grpcstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/iox"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/nfrund/wirecall/internal/transport"
)

// Scheme is the URI scheme served by this media.
const Scheme = "grpc"

const (
	publishMethod = "/wirecall.Transport/Publish"
	metaKeyStream = "wirecall-stream"

	// queueSize bounds frames accepted by Offer but not yet written to the
	// stream, and frames received but not yet polled.
	queueSize = 1024
)

var publishDesc = &grpc.StreamDesc{
	StreamName:    "Publish",
	ClientStreams: true,
	ServerStreams: true,
}

// Media owns the listeners and client connections of the grpc scheme.
type Media struct {
	logger *slog.Logger

	mu      sync.Mutex
	servers map[string]*server
	conns   map[string]*grpc.ClientConn
	pubs    []*publication
	closed  bool
}

// New returns an empty media. Listeners are opened by the first
// subscription on an address.
func New(logger *slog.Logger) *Media {
	if logger == nil {
		logger = slog.Default()
	}
	return &Media{
		logger:  logger,
		servers: make(map[string]*server),
		conns:   make(map[string]*grpc.ClientConn),
	}
}

func (m *Media) Scheme() string { return Scheme }

// Addr returns the bound address of the listener serving address, which
// differs from address when it asked for port 0.
func (m *Media) Addr(address string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.servers[address]
	if !ok {
		return "", false
	}
	return s.lis.Addr().String(), true
}

func (m *Media) Subscription(ch transport.Channel) (transport.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, transport.ErrClosed
	}
	addr := ch.Address()
	s, ok := m.servers[addr]
	if !ok {
		var err error
		s, err = m.listen(addr)
		if err != nil {
			return nil, err
		}
		m.servers[addr] = s
	}
	return s.subscribe(ch.Stream), nil
}

func (m *Media) listen(addr string) (*server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("grpcstream listen %s: %w", addr, err)
	}
	s := &server{
		lis:        lis,
		logger:     m.logger,
		subs:       make(map[int32][]*subscription),
		publishers: make(map[int32]int),
	}
	s.srv = grpc.NewServer(grpc.UnknownServiceHandler(s.handle))
	go func() {
		if err := s.srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			m.logger.Error("grpcstream server stopped", "addr", addr, "error", err)
		}
	}()
	return s, nil
}

func (m *Media) Publication(ch transport.Channel) (transport.Publication, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, transport.ErrClosed
	}
	addr := ch.Address()
	conn, ok := m.conns[addr]
	if !ok {
		var err error
		conn, err = grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, fmt.Errorf("grpcstream dial %s: %w", addr, err)
		}
		m.conns[addr] = conn
	}

	ctx, cancel := context.WithCancel(context.Background())
	ctx = metadata.AppendToOutgoingContext(ctx, metaKeyStream, strconv.Itoa(int(ch.Stream)))
	p := &publication{
		conn:    conn,
		channel: ch,
		queue:   make(chan []byte, queueSize),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		logger:  m.logger,
	}
	m.pubs = append(m.pubs, p)
	go p.run()
	return p, nil
}

// Close stops every listener and client connection.
func (m *Media) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	var errs []error
	for _, p := range m.pubs {
		_ = p.Close()
	}
	for _, s := range m.servers {
		s.srv.Stop()
	}
	for addr, c := range m.conns {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close conn %s: %w", addr, err))
		}
	}
	m.servers = map[string]*server{}
	m.conns = map[string]*grpc.ClientConn{}
	m.pubs = nil
	return errors.Join(errs...)
}

type server struct {
	lis    net.Listener
	srv    *grpc.Server
	logger *slog.Logger

	mu         sync.RWMutex
	subs       map[int32][]*subscription
	publishers map[int32]int
}

func (s *server) subscribe(stream int32) *subscription {
	sub := &subscription{server: s, stream: stream, frames: make(chan []byte, queueSize)}
	s.mu.Lock()
	s.subs[stream] = append(s.subs[stream], sub)
	s.mu.Unlock()
	return sub
}

func (s *server) unsubscribe(sub *subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	subs := s.subs[sub.stream]
	for i, x := range subs {
		if x == sub {
			s.subs[sub.stream] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

func (s *server) connected(stream int32) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.publishers[stream] > 0
}

func (s *server) handle(_ any, ss grpc.ServerStream) error {
	method, _ := grpc.MethodFromServerStream(ss)
	if method != publishMethod {
		return status.Errorf(codes.Unimplemented, "unknown method %s", method)
	}
	md, _ := metadata.FromIncomingContext(ss.Context())
	values := md.Get(metaKeyStream)
	if len(values) == 0 {
		return status.Error(codes.InvalidArgument, "missing stream id")
	}
	id, err := strconv.ParseInt(values[0], 10, 32)
	if err != nil {
		return status.Errorf(codes.InvalidArgument, "invalid stream id %q", values[0])
	}
	stream := int32(id)

	s.mu.Lock()
	s.publishers[stream]++
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.publishers[stream]--
		s.mu.Unlock()
	}()

	for {
		var f frame
		if err := ss.RecvMsg(&f); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		s.deliver(stream, f.data)
	}
}

func (s *server) deliver(stream int32, data []byte) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sub := range s.subs[stream] {
		select {
		case sub.frames <- data:
		default:
			s.logger.Debug("grpcstream frame dropped", "stream", stream)
		}
	}
}

type subscription struct {
	server *server
	stream int32
	frames chan []byte
	once   sync.Once
}

func (s *subscription) Poll(handler transport.FragmentHandler, limit int) int {
	n := 0
	for limit <= 0 || n < limit {
		select {
		case f := <-s.frames:
			handler(f, 0)
			n++
		default:
			return n
		}
	}
	return n
}

func (s *subscription) IsConnected() bool {
	return s.server.connected(s.stream)
}

func (s *subscription) Close() error {
	s.once.Do(func() { s.server.unsubscribe(s) })
	return nil
}

type publication struct {
	conn    *grpc.ClientConn
	channel transport.Channel
	queue   chan []byte
	ready   atomix.Uint32
	closed  atomix.Uint32

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
	logger *slog.Logger
}

// Offer queues a copy of buf for the stream writer. It is rejected while
// the stream is not established or the queue is full.
func (p *publication) Offer(buf []byte) bool {
	if p.closed.Load() != 0 || p.ready.Load() == 0 {
		return false
	}
	select {
	case p.queue <- append([]byte(nil), buf...):
		return true
	default:
		return false
	}
}

func (p *publication) IsConnected() bool {
	return p.closed.Load() == 0 && p.ready.Load() != 0
}

// run owns the stream: it (re)opens it and writes queued frames in order.
func (p *publication) run() {
	defer close(p.done)
	var bo iox.Backoff
	for p.ctx.Err() == nil {
		stream, err := p.conn.NewStream(p.ctx, publishDesc, publishMethod, grpc.CallContentSubtype(codecName))
		if err != nil {
			if status.Code(err) == codes.Canceled {
				return
			}
			bo.Wait()
			continue
		}
		p.ready.Store(1)
		bo.Reset()
		if err := p.pump(stream); err != nil {
			p.logger.Debug("grpcstream stream broken", "channel", p.channel.String(), "error", err)
		}
		p.ready.Store(0)
	}
}

func (p *publication) pump(stream grpc.ClientStream) error {
	for {
		select {
		case <-p.ctx.Done():
			return stream.CloseSend()
		case buf := <-p.queue:
			if err := stream.SendMsg(&frame{data: buf}); err != nil {
				return err
			}
		}
	}
}

func (p *publication) Close() error {
	p.once.Do(func() {
		p.closed.Store(1)
		p.cancel()
		<-p.done
	})
	return nil
}
