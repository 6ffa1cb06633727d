package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/dd0wney/cluso-petasos/pkg/logging"
	"github.com/dd0wney/cluso-petasos/pkg/validation"
)

// HandlerFunc serves one method. The returned value becomes the reply
// payload; an error becomes an unsuccessful reply.
type HandlerFunc func(ctx context.Context, payload json.RawMessage) (any, error)

// ServedRecorder receives per-request server metrics
type ServedRecorder interface {
	RecordRPCServed(method string, ok bool)
	RecordAuthFailure()
}

// ServerConfig configures a Server
type ServerConfig struct {
	Address        string        // listen address, e.g. tcp://0.0.0.0:7000
	PollInterval   time.Duration // receive deadline used to observe Stop (default: 250ms)
	HandlerTimeout time.Duration // context deadline given to handlers (default: 10s)
	Compression    int           // codec threshold in bytes (default: 1024)
}

// DefaultServerConfig returns the default configuration
func DefaultServerConfig(address string) ServerConfig {
	return ServerConfig{
		Address:        address,
		PollInterval:   250 * time.Millisecond,
		HandlerTimeout: 10 * time.Second,
		Compression:    DefaultCompressionThreshold,
	}
}

type callerKey struct{}

// CallerFrom returns the caller identity of the request being served
func CallerFrom(ctx context.Context) string {
	from, _ := ctx.Value(callerKey{}).(string)
	return from
}

// Server answers requests on a REP socket, one at a time.
//
// Concurrent Safety:
// 1. Handlers are registered before Start
// 2. Start/Stop guarded by runningMu; Stop joins the serve loop
type Server struct {
	factory  SocketFactory
	config   ServerConfig
	codec    Codec
	auth     *Authenticator
	handlers map[Method]HandlerFunc
	recorder ServedRecorder
	logger   logging.Logger

	socket    ListenSocket
	stopCh    chan struct{}
	wg        sync.WaitGroup
	running   bool
	runningMu sync.Mutex
}

// NewServer creates a server. auth and recorder may be nil.
func NewServer(factory SocketFactory, config ServerConfig, auth *Authenticator, recorder ServedRecorder, logger logging.Logger) *Server {
	if config.PollInterval <= 0 {
		config.PollInterval = 250 * time.Millisecond
	}
	if config.HandlerTimeout <= 0 {
		config.HandlerTimeout = 10 * time.Second
	}
	codec := NewCodec()
	if config.Compression != 0 {
		codec.Threshold = config.Compression
	}
	return &Server{
		factory:  factory,
		config:   config,
		codec:    codec,
		auth:     auth,
		handlers: make(map[Method]HandlerFunc),
		recorder: recorder,
		logger:   logging.OrDefault(logger).With(logging.Component("rpc-server"), logging.Address(config.Address)),
	}
}

// HandleFunc registers fn for method, replacing any previous handler
func (s *Server) HandleFunc(method Method, fn HandlerFunc) {
	s.handlers[method] = fn
}

// Handle registers a typed handler. The payload is decoded into Req and
// validated before fn runs; a nil pointer request is rejected.
func Handle[Req, Resp any](s *Server, method Method, fn func(ctx context.Context, req Req) (Resp, error)) {
	s.HandleFunc(method, func(ctx context.Context, payload json.RawMessage) (any, error) {
		var req Req
		if len(payload) > 0 && string(payload) != "null" {
			if err := json.Unmarshal(payload, &req); err != nil {
				return nil, Invalid(fmt.Errorf("malformed payload: %w", err))
			}
		}
		if err := validateRequest(req); err != nil {
			return nil, Invalid(err)
		}
		return fn(ctx, req)
	})
}

func validateRequest(req any) error {
	v := reflect.ValueOf(req)
	if !v.IsValid() {
		return nil
	}
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return validation.ErrNilRequest
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil
	}
	return validation.Struct(v.Interface())
}

// Methods returns the registered methods
func (s *Server) Methods() []Method {
	out := make([]Method, 0, len(s.handlers))
	for m := range s.handlers {
		out = append(out, m)
	}
	return out
}

// Start binds the socket and begins serving
func (s *Server) Start() error {
	s.runningMu.Lock()
	defer s.runningMu.Unlock()

	if s.running {
		return ErrAlreadyRunning
	}

	cleanup := newResourceCleanup(s.logger)
	defer cleanup.cleanup()

	sock, err := s.factory.NewReplySocket()
	if err != nil {
		return fmt.Errorf("failed to create reply socket: %w", err)
	}
	cleanup.add(sock, "reply socket")

	if err := sock.SetRecvDeadline(s.config.PollInterval); err != nil {
		return fmt.Errorf("failed to set receive deadline: %w", err)
	}
	if err := sock.Listen(s.config.Address); err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Address, err)
	}
	cleanup.clear()

	s.socket = sock
	s.stopCh = make(chan struct{})
	s.running = true
	s.wg.Add(1)
	go s.serve(sock, s.stopCh)

	s.logger.Info("rpc server started", logging.Count(len(s.handlers)))
	return nil
}

// Stop ends the serve loop and closes the socket
func (s *Server) Stop() error {
	s.runningMu.Lock()
	if !s.running {
		s.runningMu.Unlock()
		return ErrNotRunning
	}
	close(s.stopCh)
	s.running = false
	sock := s.socket
	s.runningMu.Unlock()

	s.wg.Wait()
	err := sock.Close()
	s.logger.Info("rpc server stopped")
	return err
}

func (s *Server) serve(sock ListenSocket, stopCh <-chan struct{}) {
	defer s.wg.Done()

	for {
		select {
		case <-stopCh:
			return
		default:
		}

		frame, err := sock.Recv()
		if err != nil {
			if errors.Is(err, ErrTimeout) {
				continue
			}
			if errors.Is(err, ErrClosed) {
				return
			}
			s.logger.Warn("receive failed", logging.Error(err))
			continue
		}

		resp := s.dispatch(frame)
		out, err := s.codec.Encode(resp)
		if err != nil {
			s.logger.Error("failed to encode reply", logging.Error(err))
			out, _ = s.codec.Encode(failure(resp.RequestID, KindEncoding, "reply could not be encoded"))
		}
		if err := sock.Send(out); err != nil {
			s.logger.Warn("send failed", logging.Error(err))
		}
	}
}

func (s *Server) dispatch(frame []byte) (resp *Response) {
	var req Request
	if err := s.codec.Decode(frame, &req); err != nil {
		return failure("", KindEncoding, err.Error())
	}

	defer func() {
		if s.recorder != nil && req.Method.Known() {
			s.recorder.RecordRPCServed(string(req.Method), resp.Successful)
		}
	}()

	handler, ok := s.handlers[req.Method]
	if !ok {
		return failure(req.RequestID, KindNoSuchMethod, fmt.Sprintf("no such method %q", req.Method))
	}

	if s.auth != nil {
		if _, err := s.auth.Verify(req.Token, req.Method); err != nil {
			if s.recorder != nil {
				s.recorder.RecordAuthFailure()
			}
			s.logger.Warn("rejected unauthenticated request",
				logging.Method(string(req.Method)), logging.String("from", req.From), logging.Error(err))
			return failure(req.RequestID, KindUnauthorized, "unauthorized")
		}
	}

	ctx, cancel := context.WithTimeout(context.WithValue(context.Background(), callerKey{}, req.From), s.config.HandlerTimeout)
	defer cancel()

	result, err := s.invoke(ctx, handler, req)
	if err != nil {
		kind := kindForHandlerError(err)
		if kind == KindRemote {
			s.logger.Warn("handler failed", logging.Method(string(req.Method)), logging.Error(err))
		}
		return failure(req.RequestID, kind, err.Error())
	}

	payload, err := marshalPayload(result)
	if err != nil {
		return failure(req.RequestID, KindEncoding, err.Error())
	}
	return &Response{RequestID: req.RequestID, Successful: true, Payload: payload}
}

func (s *Server) invoke(ctx context.Context, handler HandlerFunc, req Request) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("handler panicked", logging.Method(string(req.Method)), logging.Any("panic", r))
			result, err = nil, fmt.Errorf("internal error in %s", req.Method)
		}
	}()
	return handler(ctx, req.Payload)
}
