package rpc

import (
	"io"
	"time"
)

// Socket represents a messaging socket that can send and receive frames.
// Implementations map their own deadline errors to ErrTimeout.
type Socket interface {
	io.Closer
	Send([]byte) error
	Recv() ([]byte, error)
	SetRecvDeadline(d time.Duration) error
	SetSendDeadline(d time.Duration) error
}

// ListenSocket is a socket that can bind to an address and accept connections.
type ListenSocket interface {
	Socket
	Listen(addr string) error
}

// DialSocket is a socket that can connect to a remote address.
type DialSocket interface {
	Socket
	Dial(addr string) error
}

// SocketFactory creates the request/reply sockets used by clients and
// servers. Implementations can provide mangos, ZeroMQ or in-process sockets.
type SocketFactory interface {
	NewRequestSocket() (DialSocket, error)
	NewReplySocket() (ListenSocket, error)
}
