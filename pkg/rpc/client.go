package rpc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dd0wney/cluso-petasos/pkg/logging"
	"github.com/dd0wney/cluso-petasos/pkg/metrics"
)

const tracerName = "github.com/dd0wney/cluso-petasos/pkg/rpc"

// CallObserver receives per-call latency and frame sizes
type CallObserver interface {
	ObserveRPCLatency(method string, duration time.Duration)
	RecordRPCFrame(direction string, size int)
}

// ClientConfig configures a Client
type ClientConfig struct {
	From        string        // caller identity placed in every request
	Timeout     time.Duration // unicast timeout per call (default: 5s)
	MaxIdle     int           // idle sockets kept per address (default: 4)
	Compression int           // codec threshold in bytes (default: 1024, negative disables)
}

// DefaultClientConfig returns the default configuration
func DefaultClientConfig(from string) ClientConfig {
	return ClientConfig{
		From:        from,
		Timeout:     5 * time.Second,
		MaxIdle:     4,
		Compression: DefaultCompressionThreshold,
	}
}

// Client issues synchronous calls with a bounded timeout. A failed call
// returns a *CallError; nothing panics across the boundary. In-flight calls
// are not cancelled by ctx, only bounded by its deadline.
//
// Concurrent Safety: safe for concurrent use; each call holds its own socket.
type Client struct {
	factory  SocketFactory
	codec    Codec
	auth     *Authenticator
	from     string
	timeout  time.Duration
	maxIdle  int
	agent    metrics.Agent
	observer CallObserver
	tracer   trace.Tracer
	logger   logging.Logger

	idle   map[string][]DialSocket
	mu     sync.Mutex
	closed bool
}

// NewClient creates a client. auth and agent may be nil; an agent that also
// implements CallObserver receives latency and frame metrics.
func NewClient(factory SocketFactory, config ClientConfig, auth *Authenticator, agent metrics.Agent, logger logging.Logger) *Client {
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}
	if config.MaxIdle <= 0 {
		config.MaxIdle = 4
	}
	codec := NewCodec()
	if config.Compression != 0 {
		codec.Threshold = config.Compression
	}

	c := &Client{
		factory: factory,
		codec:   codec,
		auth:    auth,
		from:    config.From,
		timeout: config.Timeout,
		maxIdle: config.MaxIdle,
		agent:   metrics.OrNop(agent),
		tracer:  otel.Tracer(tracerName),
		logger:  logging.OrDefault(logger).With(logging.Component("rpc-client")),
		idle:    make(map[string][]DialSocket),
	}
	if obs, ok := agent.(CallObserver); ok {
		c.observer = obs
	}
	return c
}

// Call sends in to method at address and decodes the reply payload into
// out (which may be nil).
func (c *Client) Call(ctx context.Context, address string, method Method, in, out any) error {
	ctx, span := c.tracer.Start(ctx, "rpc."+string(method),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("rpc.system", "petasos"),
			attribute.String("rpc.method", string(method)),
			attribute.String("server.address", address),
		))
	defer span.End()

	start := time.Now()
	c.agent.IncrementRemoteProcedureCallCount(string(method))
	err := c.call(ctx, address, method, in, out)
	elapsed := time.Since(start)
	if c.observer != nil {
		c.observer.ObserveRPCLatency(string(method), elapsed)
	}

	if err != nil {
		c.agent.IncrementRemoteProcedureCallFailureCount(string(method))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Debug("rpc call failed",
			logging.Method(string(method)), logging.Address(address),
			logging.Latency(elapsed), logging.Error(err))
		return err
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

func (c *Client) call(ctx context.Context, address string, method Method, in, out any) error {
	fail := func(kind ErrorKind, err error) error {
		return &CallError{Method: method, Address: address, Kind: kind, Err: err}
	}

	if address == "" {
		return fail(KindTransport, ErrNoAddress)
	}
	if err := ctx.Err(); err != nil {
		return fail(KindTimeout, err)
	}
	timeout := c.timeout
	if dl, ok := ctx.Deadline(); ok {
		if remaining := time.Until(dl); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		return fail(KindTimeout, context.DeadlineExceeded)
	}

	payload, err := marshalPayload(in)
	if err != nil {
		return fail(KindEncoding, err)
	}
	req := Request{
		Method:    method,
		RequestID: uuid.NewString(),
		From:      c.from,
		Instant:   time.Now(),
		Payload:   payload,
	}
	if c.auth != nil {
		if req.Token, err = c.auth.Sign(c.from, method); err != nil {
			return fail(KindUnauthorized, err)
		}
	}
	frame, err := c.codec.Encode(req)
	if err != nil {
		return fail(KindEncoding, err)
	}

	sock, err := c.acquire(address)
	if err != nil {
		return fail(KindTransport, err)
	}
	healthy := false
	defer func() { c.release(address, sock, healthy) }()

	if err := sock.SetSendDeadline(timeout); err != nil {
		return fail(KindTransport, err)
	}
	if err := sock.SetRecvDeadline(timeout); err != nil {
		return fail(KindTransport, err)
	}
	if err := sock.Send(frame); err != nil {
		return fail(transportKind(err), err)
	}
	c.frame("out", len(frame))

	reply, err := sock.Recv()
	if err != nil {
		return fail(transportKind(err), err)
	}
	c.frame("in", len(reply))

	var resp Response
	if err := c.codec.Decode(reply, &resp); err != nil {
		return fail(KindEncoding, err)
	}
	if resp.RequestID != "" && resp.RequestID != req.RequestID {
		return fail(KindTransport, fmt.Errorf("reply %s does not match request %s", resp.RequestID, req.RequestID))
	}
	healthy = true

	if !resp.Successful {
		kind := resp.Kind
		if kind == "" {
			kind = KindRemote
		}
		return &CallError{Method: method, Address: address, Kind: kind, Commentary: resp.Commentary}
	}
	if err := unmarshalPayload(resp.Payload, out); err != nil {
		return fail(KindEncoding, err)
	}
	return nil
}

func transportKind(err error) ErrorKind {
	if errors.Is(err, ErrTimeout) {
		return KindTimeout
	}
	return KindTransport
}

func (c *Client) frame(direction string, size int) {
	if c.observer != nil {
		c.observer.RecordRPCFrame(direction, size)
	}
}

func (c *Client) acquire(address string) (DialSocket, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if pool := c.idle[address]; len(pool) > 0 {
		sock := pool[len(pool)-1]
		c.idle[address] = pool[:len(pool)-1]
		c.mu.Unlock()
		return sock, nil
	}
	c.mu.Unlock()

	sock, err := c.factory.NewRequestSocket()
	if err != nil {
		return nil, fmt.Errorf("failed to create request socket: %w", err)
	}
	if err := sock.Dial(address); err != nil {
		sock.Close()
		return nil, fmt.Errorf("failed to dial %s: %w", address, err)
	}
	return sock, nil
}

// release returns a socket to the idle pool. A socket whose call failed is
// closed, since a REQ socket may be left mid-exchange.
func (c *Client) release(address string, sock DialSocket, healthy bool) {
	c.mu.Lock()
	if healthy && !c.closed && len(c.idle[address]) < c.maxIdle {
		c.idle[address] = append(c.idle[address], sock)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	sock.Close()
}

// Close closes idle sockets; later calls fail with ErrClosed
func (c *Client) Close() error {
	c.mu.Lock()
	idle := c.idle
	c.idle = make(map[string][]DialSocket)
	c.closed = true
	c.mu.Unlock()

	var errs []error
	for _, pool := range idle {
		for _, sock := range pool {
			if err := sock.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
