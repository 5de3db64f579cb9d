package bridge_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"realm/internal/bridge"
	"realm/internal/harness"
	"realm/internal/host"
	"realm/internal/module"
	"realm/internal/navigation"
	"realm/internal/page"
	"realm/internal/transport"
)

type call struct {
	name string
	arg  any
}

// fakeRuntime records calls and reports a started event for navigations.
type fakeRuntime struct {
	mu    sync.Mutex
	calls []call
	tc    *harness.TestContext
	emit  harness.Emitter
}

func (f *fakeRuntime) record(name string, arg any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{name, arg})
}

func (f *fakeRuntime) SetTestContext(tc *harness.TestContext) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tc = tc
}

func (f *fakeRuntime) Navigate(u string, _, _ bool) {
	f.record("navigate", u)
	if f.emit != nil {
		f.emit.Emit(harness.Event{Kind: harness.Started}, harness.Event{Kind: harness.TestDone})
	}
}

func (f *fakeRuntime) Submit(payload any) error {
	f.record("submit", payload)
	return nil
}

func (f *fakeRuntime) LoadDocument() error {
	f.record("load", nil)
	return nil
}

func (f *fakeRuntime) Render(data any) error {
	f.record("render", data)
	return errors.New("render failed")
}

func (f *fakeRuntime) snapshot() ([]call, *harness.TestContext) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...), f.tc
}

func TestDispatch(t *testing.T) {
	b := bridge.New(nil)
	require.ErrorIs(t, b.Dispatch(harness.Command{Action: harness.ActionNavigate}), bridge.ErrNotBound)

	rt := &fakeRuntime{}
	b.Bind(rt)

	require.NoError(t, b.Dispatch(harness.Command{Action: harness.ActionNavigate, URL: "/foo/", Elm: "Pages.Foo"}))
	require.NoError(t, b.Dispatch(harness.Command{Action: harness.ActionSubmit, Payload: json.RawMessage(`"/x/"`)}))
	require.NoError(t, b.Dispatch(harness.Command{Action: harness.ActionLoad}))
	require.Error(t, b.Dispatch(harness.Command{Action: harness.ActionRender, Data: json.RawMessage(`{"id":"A"}`)}))
	require.ErrorIs(t, b.Dispatch(harness.Command{Action: "dance"}), bridge.ErrUnknownAction)

	calls, tc := rt.snapshot()
	require.Len(t, calls, 4)
	assert.Equal(t, call{"navigate", "/foo/"}, calls[0])
	assert.Equal(t, "submit", calls[1].name)
	assert.Equal(t, json.RawMessage(`"/x/"`), calls[1].arg)
	assert.Equal(t, "load", calls[2].name)
	assert.Equal(t, "render", calls[3].name)
	require.NotNil(t, tc)
	assert.Equal(t, harness.ActionLoad, tc.Action)
}

func TestEmitFansOut(t *testing.T) {
	b := bridge.New(nil)
	b.Emit(harness.Event{Kind: harness.Started})

	a, cancelA := b.Subscribe()
	c, cancelC := b.Subscribe()
	defer cancelC()
	assert.Equal(t, 2, b.Subscribers())

	b.Emit(harness.Event{Kind: harness.TestDone})
	b.Relay("hello")

	for _, ch := range []<-chan bridge.Frame{a, c} {
		f := <-ch
		assert.Equal(t, bridge.FrameEvents, f.Type)
		assert.Equal(t, []harness.Event{{Kind: harness.TestDone}}, f.Events)
		f = <-ch
		assert.Equal(t, bridge.FrameRelay, f.Type)
		assert.Equal(t, "hello", f.Value)
	}

	cancelA()
	cancelA()
	assert.Equal(t, 1, b.Subscribers())
}

func wsURL(s *httptest.Server) string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func TestWebsocketRoundTrip(t *testing.T) {
	b := bridge.New(nil)
	rt := &fakeRuntime{emit: b}
	b.Bind(rt)
	srv := httptest.NewServer(b)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := bridge.Dial(ctx, wsURL(srv), nil)
	require.NoError(t, err)
	defer client.Close()
	require.Eventually(t, func() bool { return b.Subscribers() == 1 }, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, client.Send(harness.Command{Action: harness.ActionNavigate, URL: "/foo/"}))
	events, err := client.WaitFor(ctx, harness.TestDone)
	require.NoError(t, err)
	assert.Equal(t, []harness.Event{{Kind: harness.Started}, {Kind: harness.TestDone}}, events)

	calls, _ := rt.snapshot()
	assert.Equal(t, []call{{"navigate", "/foo/"}}, calls)
}

func TestWebsocketReplies(t *testing.T) {
	b := bridge.New(nil)
	b.Bind(&fakeRuntime{})
	srv := httptest.NewServer(b)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := bridge.Dial(ctx, wsURL(srv), nil)
	require.NoError(t, err)
	defer client.Close()

	next := func() bridge.Frame {
		select {
		case f := <-client.Frames():
			return f
		case <-ctx.Done():
			t.Fatal("no frame")
		}
		return bridge.Frame{}
	}

	require.NoError(t, client.Send(harness.Command{Action: "ping"}))
	assert.Equal(t, bridge.FramePong, next().Type)

	require.NoError(t, client.Send(harness.Command{Action: "dance"}))
	f := next()
	assert.Equal(t, bridge.FrameError, f.Type)
	assert.Contains(t, f.Message, "unknown action")

	require.NoError(t, client.Send(harness.Command{Action: harness.ActionLoad}))
	f = next()
	assert.Equal(t, bridge.FrameAck, f.Type)
	assert.Equal(t, harness.ActionLoad, f.Action)
}

func TestDialGivesUp(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := bridge.Dial(ctx, "ws://127.0.0.1:1/", nil)
	assert.Error(t, err)
}

func TestHarnessServiceRPC(t *testing.T) {
	b := bridge.New(nil)
	rt := &fakeRuntime{emit: b}
	b.Bind(rt)

	mux := http.NewServeMux()
	mux.Handle(bridge.NewHarnessServiceHandler(b))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client := bridge.NewHarnessClient(srv.Client(), srv.URL)

	stream, err := client.Events(ctx)
	require.NoError(t, err)
	defer stream.Close()
	require.True(t, stream.Receive(), "stream error: %v", stream.Err())
	assert.Equal(t, bridge.FrameReady, stream.Msg().Type)
	assert.Equal(t, 1, b.Subscribers())

	require.NoError(t, client.Dispatch(ctx, harness.Command{Action: harness.ActionNavigate, URL: "/foo/"}))
	require.True(t, stream.Receive(), "stream error: %v", stream.Err())
	assert.Equal(t, bridge.FrameEvents, stream.Msg().Type)
	assert.Len(t, stream.Msg().Events, 2)

	err = client.Dispatch(ctx, harness.Command{Action: "dance"})
	require.Error(t, err)
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
}

func TestBridgeDrivesRuntime(t *testing.T) {
	b := bridge.New(nil)
	registry := module.NewRegistry()
	registry.MustRegister("Pages.FooTest", module.Static("Pages.FooTest", nil))
	body := `{"id":"Pages.Foo","title":"Foo","url":"/foo/","config":{}}`
	rt, err := navigation.New(navigation.Config{
		Host: host.NewHeadless(),
		Transport: transport.Func(func(_ context.Context, url string, _ any) (string, error) {
			if url != "/foo/?realm_mode=ised" {
				return "", errors.New("unexpected url " + url)
			}
			return body, nil
		}),
		Registry: registry,
		Parent:   b,
	})
	require.NoError(t, err)
	defer rt.Close()
	b.Bind(rt)

	frames, unsubscribe := b.Subscribe()
	defer unsubscribe()

	require.NoError(t, b.Dispatch(harness.Command{
		Action: harness.ActionNavigate, URL: "/foo/", ID: "t1", Elm: "Pages.Foo",
	}))

	select {
	case f := <-frames:
		require.Equal(t, bridge.FrameEvents, f.Type)
		assert.Equal(t, harness.Started, f.Events[0].Kind)
	case <-time.After(5 * time.Second):
		t.Fatal("no Started event")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, rt.Wait(ctx))
	id, _ := rt.Current()
	assert.Equal(t, "Pages.FooTest", id)
	_, mode := rt.Context()
	assert.Equal(t, page.ModeAuthenticated, mode)
}
