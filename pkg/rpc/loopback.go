package rpc

import (
	"fmt"
	"sync"
	"time"
)

// Loopback is an in-process SocketFactory. Reply sockets listen on names
// within one Loopback; request sockets dial those names. Used by tests and
// single-process deployments.
type Loopback struct {
	mu        sync.Mutex
	listeners map[string]*loopbackReply
}

// NewLoopback creates an empty in-process network
func NewLoopback() *Loopback {
	return &Loopback{listeners: make(map[string]*loopbackReply)}
}

func (l *Loopback) NewRequestSocket() (DialSocket, error) {
	return &loopbackRequest{net: l}, nil
}

func (l *Loopback) NewReplySocket() (ListenSocket, error) {
	return &loopbackReply{
		net:     l,
		inbound: make(chan loopbackMessage, 16),
		closed:  make(chan struct{}),
	}, nil
}

func (l *Loopback) lookup(addr string) *loopbackReply {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.listeners[addr]
}

type loopbackMessage struct {
	data  []byte
	reply chan []byte
}

type deadlines struct {
	recv time.Duration
	send time.Duration
}

func (d *deadlines) SetRecvDeadline(v time.Duration) error { d.recv = v; return nil }
func (d *deadlines) SetSendDeadline(v time.Duration) error { d.send = v; return nil }

func after(d time.Duration) (<-chan time.Time, func()) {
	if d <= 0 {
		return nil, func() {}
	}
	t := time.NewTimer(d)
	return t.C, func() { t.Stop() }
}

// loopbackReply is the REP side
type loopbackReply struct {
	deadlines
	net       *Loopback
	addr      string
	inbound   chan loopbackMessage
	pending   chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func (s *loopbackReply) Listen(addr string) error {
	s.net.mu.Lock()
	defer s.net.mu.Unlock()
	if _, taken := s.net.listeners[addr]; taken {
		return fmt.Errorf("loopback: address %s in use", addr)
	}
	s.addr = addr
	s.net.listeners[addr] = s
	return nil
}

func (s *loopbackReply) Recv() ([]byte, error) {
	timeout, stop := after(s.recv)
	defer stop()
	select {
	case msg := <-s.inbound:
		s.pending = msg.reply
		return msg.data, nil
	case <-timeout:
		return nil, ErrTimeout
	case <-s.closed:
		return nil, ErrClosed
	}
}

func (s *loopbackReply) Send(data []byte) error {
	if s.pending == nil {
		return fmt.Errorf("loopback: send without a pending request")
	}
	s.pending <- append([]byte(nil), data...)
	s.pending = nil
	return nil
}

func (s *loopbackReply) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.net.mu.Lock()
		if s.net.listeners[s.addr] == s {
			delete(s.net.listeners, s.addr)
		}
		s.net.mu.Unlock()
	})
	return nil
}

// loopbackRequest is the REQ side
type loopbackRequest struct {
	deadlines
	net    *Loopback
	addr   string
	reply  chan []byte
	closed bool
}

func (s *loopbackRequest) Dial(addr string) error {
	s.addr = addr
	return nil
}

func (s *loopbackRequest) Send(data []byte) error {
	if s.closed {
		return ErrClosed
	}
	target := s.net.lookup(s.addr)
	if target == nil {
		return fmt.Errorf("loopback: connection refused: %s", s.addr)
	}

	reply := make(chan []byte, 1)
	timeout, stop := after(s.send)
	defer stop()
	select {
	case target.inbound <- loopbackMessage{data: append([]byte(nil), data...), reply: reply}:
		s.reply = reply
		return nil
	case <-timeout:
		return ErrTimeout
	case <-target.closed:
		return ErrClosed
	}
}

func (s *loopbackRequest) Recv() ([]byte, error) {
	if s.reply == nil {
		return nil, fmt.Errorf("loopback: receive without a request")
	}
	timeout, stop := after(s.recv)
	defer stop()
	select {
	case data := <-s.reply:
		s.reply = nil
		return data, nil
	case <-timeout:
		s.reply = nil
		return nil, ErrTimeout
	}
}

func (s *loopbackRequest) Close() error {
	s.closed = true
	return nil
}

var _ SocketFactory = (*Loopback)(nil)
