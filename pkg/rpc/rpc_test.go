package rpc

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-petasos/pkg/logging"
)

type echoRequest struct {
	Text string `json:"text" validate:"required"`
}

type echoReply struct {
	Text   string `json:"text"`
	Caller string `json:"caller"`
}

type recordingAgent struct {
	mu       sync.Mutex
	calls    map[string]int
	failures map[string]int
	served   map[string]int
	authFail int
	frames   int
}

func newRecordingAgent() *recordingAgent {
	return &recordingAgent{calls: map[string]int{}, failures: map[string]int{}, served: map[string]int{}}
}

func (a *recordingAgent) IncrementRemoteProcedureCallCount(m string) {
	a.mu.Lock()
	a.calls[m]++
	a.mu.Unlock()
}

func (a *recordingAgent) IncrementRemoteProcedureCallFailureCount(m string) {
	a.mu.Lock()
	a.failures[m]++
	a.mu.Unlock()
}

func (a *recordingAgent) UpdateLocalCacheStatus(string, int)      {}
func (a *recordingAgent) TouchWatchDogActivityIndicator(string)   {}
func (a *recordingAgent) ObserveRPCLatency(string, time.Duration) {}

func (a *recordingAgent) RecordRPCFrame(string, int) {
	a.mu.Lock()
	a.frames++
	a.mu.Unlock()
}

func (a *recordingAgent) RecordRPCServed(m string, ok bool) {
	a.mu.Lock()
	if ok {
		a.served[m]++
	}
	a.mu.Unlock()
}

func (a *recordingAgent) RecordAuthFailure() {
	a.mu.Lock()
	a.authFail++
	a.mu.Unlock()
}

const testAddr = "inproc://repository"

func startServer(t *testing.T, net *Loopback, auth *Authenticator, rec ServedRecorder, register func(*Server)) *Server {
	t.Helper()
	cfg := DefaultServerConfig(testAddr)
	cfg.PollInterval = 10 * time.Millisecond
	s := NewServer(net, cfg, auth, rec, logging.NewNopLogger())
	register(s)
	require.NoError(t, s.Start())
	t.Cleanup(func() { _ = s.Stop() })
	return s
}

func newTestClient(net *Loopback, auth *Authenticator, agent *recordingAgent, timeout time.Duration) *Client {
	cfg := DefaultClientConfig("lab.plant-1")
	cfg.Timeout = timeout
	if agent == nil {
		return NewClient(net, cfg, auth, nil, logging.NewNopLogger())
	}
	return NewClient(net, cfg, auth, agent, logging.NewNopLogger())
}

func echoHandler(s *Server) {
	Handle(s, MethodPing, func(ctx context.Context, req echoRequest) (echoReply, error) {
		return echoReply{Text: req.Text, Caller: CallerFrom(ctx)}, nil
	})
}

func TestClientServer_Call(t *testing.T) {
	net := NewLoopback()
	agent := newRecordingAgent()
	startServer(t, net, nil, agent, echoHandler)
	c := newTestClient(net, nil, agent, time.Second)
	defer c.Close()

	for i := 0; i < 3; i++ {
		var out echoReply
		require.NoError(t, c.Call(context.Background(), testAddr, MethodPing, echoRequest{Text: "hello"}, &out))
		assert.Equal(t, "hello", out.Text)
		assert.Equal(t, "lab.plant-1", out.Caller)
	}

	assert.Equal(t, 3, agent.calls["ping"])
	assert.Equal(t, 0, agent.failures["ping"])
	assert.Equal(t, 3, agent.served["ping"])
	assert.Equal(t, 6, agent.frames)
}

func TestClientServer_Errors(t *testing.T) {
	net := NewLoopback()
	startServer(t, net, nil, nil, func(s *Server) {
		echoHandler(s)
		Handle(s, MethodQueueTask, func(context.Context, Empty) (Empty, error) {
			return Empty{}, errors.New("store unavailable")
		})
		Handle(s, MethodGetAllRegistrations, func(context.Context, Empty) (Empty, error) {
			panic("boom")
		})
	})
	agent := newRecordingAgent()
	c := newTestClient(net, nil, agent, time.Second)
	defer c.Close()
	ctx := context.Background()

	tests := []struct {
		name   string
		method Method
		in     any
		kind   ErrorKind
	}{
		{"unknown method", MethodRequestSubscription, Empty{}, KindNoSuchMethod},
		{"validation", MethodPing, echoRequest{}, KindInvalid},
		{"malformed payload", MethodPing, []int{1, 2}, KindInvalid},
		{"handler error", MethodQueueTask, Empty{}, KindRemote},
		{"handler panic", MethodGetAllRegistrations, Empty{}, KindRemote},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Call(ctx, testAddr, tt.method, tt.in, nil)
			require.Error(t, err)
			assert.Equal(t, tt.kind, KindOf(err), err.Error())

			var ce *CallError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.method, ce.Method)
			assert.NotEmpty(t, ce.Commentary)
		})
	}

	// The server survives all of the above
	var out echoReply
	require.NoError(t, c.Call(ctx, testAddr, MethodPing, echoRequest{Text: "still here"}, &out))
	assert.Equal(t, 1, agent.failures["requestSubscription"])
	assert.Equal(t, 2, agent.failures["ping"])
	assert.Equal(t, 1, agent.failures["queueTask"])
	assert.Equal(t, 1, agent.failures["getAllRegistrations"])
}

func TestClientServer_Timeout(t *testing.T) {
	net := NewLoopback()
	startServer(t, net, nil, nil, func(s *Server) {
		Handle(s, MethodPing, func(context.Context, Empty) (Empty, error) {
			time.Sleep(200 * time.Millisecond)
			return Empty{}, nil
		})
	})
	c := newTestClient(net, nil, nil, 30*time.Millisecond)
	defer c.Close()

	err := c.Call(context.Background(), testAddr, MethodPing, Empty{}, nil)
	require.Error(t, err)
	assert.True(t, IsTimeout(err), err.Error())
}

func TestClient_ContextDeadlineBoundsTimeout(t *testing.T) {
	net := NewLoopback()
	c := newTestClient(net, nil, nil, time.Minute)
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := c.Call(ctx, testAddr, MethodPing, Empty{}, nil)
	assert.Equal(t, KindTimeout, KindOf(err))

	err = c.Call(context.Background(), "", MethodPing, Empty{}, nil)
	assert.ErrorIs(t, err, ErrNoAddress)

	err = c.Call(context.Background(), "inproc://nobody", MethodPing, Empty{}, nil)
	assert.Equal(t, KindTransport, KindOf(err))
}

func TestClientServer_Auth(t *testing.T) {
	net := NewLoopback()
	serverAuth, err := NewAuthenticator(testSecret, "cluster-a", time.Minute)
	require.NoError(t, err)
	agent := newRecordingAgent()
	startServer(t, net, serverAuth, agent, echoHandler)

	clientAuth, _ := NewAuthenticator(testSecret, "cluster-a", time.Minute)
	good := newTestClient(net, clientAuth, nil, time.Second)
	defer good.Close()
	var out echoReply
	require.NoError(t, good.Call(context.Background(), testAddr, MethodPing, echoRequest{Text: "hi"}, &out))

	anonymous := newTestClient(net, nil, nil, time.Second)
	defer anonymous.Close()
	err = anonymous.Call(context.Background(), testAddr, MethodPing, echoRequest{Text: "hi"}, &out)
	assert.Equal(t, KindUnauthorized, KindOf(err))

	wrongAuth, _ := NewAuthenticator("ffffffffffffffffffffffffffffffff", "cluster-a", time.Minute)
	wrong := newTestClient(net, wrongAuth, nil, time.Second)
	defer wrong.Close()
	err = wrong.Call(context.Background(), testAddr, MethodPing, echoRequest{Text: "hi"}, &out)
	assert.Equal(t, KindUnauthorized, KindOf(err))

	assert.Equal(t, 2, agent.authFail)
}

func TestClient_Closed(t *testing.T) {
	c := newTestClient(NewLoopback(), nil, nil, time.Second)
	require.NoError(t, c.Close())
	err := c.Call(context.Background(), testAddr, MethodPing, Empty{}, nil)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestServer_StartStop(t *testing.T) {
	net := NewLoopback()
	s := NewServer(net, DefaultServerConfig(testAddr), nil, nil, logging.NewNopLogger())
	require.NoError(t, s.Start())
	assert.ErrorIs(t, s.Start(), ErrAlreadyRunning)
	require.NoError(t, s.Stop())
	assert.ErrorIs(t, s.Stop(), ErrNotRunning)

	// The address is free again
	require.NoError(t, s.Start())
	require.NoError(t, s.Stop())
}

func TestSocketFactoryRegistry(t *testing.T) {
	f, err := NewSocketFactory("")
	require.NoError(t, err)
	assert.IsType(t, &MangosSocketFactory{}, f)

	_, err = NewSocketFactory("carrier-pigeon")
	assert.Error(t, err)
	assert.Contains(t, Transports(), TransportMangos)
}
