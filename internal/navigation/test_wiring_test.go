package navigation

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"realm/internal/module"
	"realm/internal/page"
	"realm/internal/ports"
)

func mountFoo(t *testing.T, f *fixture) *module.Instance {
	t.Helper()
	nc := f.rt.newContext()
	require.NoError(t, f.rt.HandleResponse(pageJSON(t, page.Response{ID: "Pages.Foo", URL: "/foo/"}),
		"/foo/", false, false, page.ModeAuthenticated, nc.id))
	_, inst := f.rt.Current()
	require.NotNil(t, inst)
	return inst
}

func TestNavigatePort(t *testing.T) {
	f := newFixture(t, fastHost())
	f.origin.set("/bar/?realm_mode=pure", pageJSON(t, page.Response{ID: "Pages.Bar", URL: "/bar/"}))
	inst := mountFoo(t, f)

	inst.Ports.Send(ports.Navigate, "/bar/")
	f.wait(t)

	assert.Equal(t, "Pages.Bar", currentID(f.rt))
}

func TestStoragePorts(t *testing.T) {
	f := newFixture(t, fastHost())
	inst := mountFoo(t, f)

	inst.Ports.Send(ports.SetSessionStorage, map[string]any{
		"key":   "k",
		"value": map[string]any{"local": 1, "session": "s"},
	})
	inst.Ports.Send(ports.SetLocalStorage, map[string]any{"key": "a", "value": []int{1, 2}})
	f.wait(t)

	v, ok := f.host.LocalStorage("k")
	require.True(t, ok)
	assert.Equal(t, "1", v)
	v, ok = f.host.SessionStorage("k")
	require.True(t, ok)
	assert.Equal(t, `"s"`, v)
	v, _ = f.host.LocalStorage("a")
	assert.Equal(t, "[1,2]", v)

	inst.Ports.Send(ports.DeleteSessionStorage, map[string]any{"key": "k"})
	f.wait(t)
	v, _ = f.host.LocalStorage("k")
	assert.Equal(t, "null", v)
	v, _ = f.host.SessionStorage("k")
	assert.Equal(t, "null", v)
}

func TestClipboardRelayAndScrollingPorts(t *testing.T) {
	f := newFixture(t, fastHost())
	inst := mountFoo(t, f)

	inst.Ports.Send(ports.CopyToClipboard, "hello")
	inst.Ports.Send(ports.ToIframe, map[string]any{"kind": "Ping"})
	inst.Ports.Send(ports.DisableScrolling, nil)
	f.wait(t)

	assert.Equal(t, "hello", f.host.Clipboard())
	assert.Equal(t, []any{map[string]any{"kind": "Ping"}}, f.parent.Relayed())
	assert.True(t, f.host.ScrollLocked())

	var scrolls int
	var mu sync.Mutex
	inst.Ports[ports.OnScroll].Subscribe(func(any) {
		mu.Lock()
		scrolls++
		mu.Unlock()
	})
	f.host.Scroll(120)
	assert.Equal(t, 0, f.host.ScrollY())
	mu.Lock()
	assert.Equal(t, 1, scrolls)
	mu.Unlock()
}

func TestExtraPortsAndViewport(t *testing.T) {
	got := make(chan any, 1)
	f := newFixture(t, fastHost(), func(c *Config) {
		c.ExtraPorts = map[ports.Name]func(any){
			"track": func(v any) { got <- v },
		}
	})
	var viewports []any
	var mu sync.Mutex
	f.registry.MustRegister("Pages.Extra", func(module.Flags) (*module.Instance, error) {
		p := ports.NewSet("track", ports.ViewPortChanged)
		p[ports.ViewPortChanged].Subscribe(func(v any) {
			mu.Lock()
			viewports = append(viewports, v)
			mu.Unlock()
		})
		return module.NewInstance(p), nil
	})
	nc := f.rt.newContext()
	require.NoError(t, f.rt.HandleResponse(pageJSON(t, page.Response{ID: "Pages.Extra", URL: "/x/"}),
		"/x/", false, false, page.ModeAuthenticated, nc.id))
	_, inst := f.rt.Current()

	inst.Ports.Send("track", "clicked")
	select {
	case v := <-got:
		assert.Equal(t, "clicked", v)
	case <-time.After(5 * time.Second):
		t.Fatal("extra port handler not called")
	}

	f.host.Resize(375, 812)
	f.rt.ViewportChanged()
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, viewports, 1)
	assert.Equal(t, map[string]any{"width": 375, "height": 812, "notch": 0}, viewports[0])
}

func TestLoadingIndicator(t *testing.T) {
	f := newFixture(t, fastHost(), func(c *Config) { c.LoadingDelay = 10 * time.Millisecond })
	inst := mountFoo(t, f)
	m := f.modules["Pages.Foo"]

	inst.Ports.Send(ports.SetLoading, nil)
	assert.Eventually(t, func() bool { return len(m.unloadingSignals()) == 1 }, 5*time.Second, 5*time.Millisecond)

	inst.Ports.Send(ports.CancelLoading, nil)
	assert.Eventually(t, func() bool { return len(m.unloadingSignals()) == 2 }, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, []any{true, false}, m.unloadingSignals())
}

func TestCancelLoadingBeforeIndicator(t *testing.T) {
	f := newFixture(t, fastHost(), func(c *Config) { c.LoadingDelay = 10 * time.Millisecond })
	inst := mountFoo(t, f)

	inst.Ports.Send(ports.CancelLoading, nil)
	f.wait(t)
	inst.Ports.Send(ports.SetLoading, nil)
	f.wait(t)

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, f.modules["Pages.Foo"].unloadingSignals())
}

func TestLoadingSuppressedWhileShuttingDown(t *testing.T) {
	f := newFixture(t, fastHost(), func(c *Config) { c.LoadingDelay = 20 * time.Millisecond })
	mountFoo(t, f)

	f.rt.showLoading()
	nc := f.rt.newContext()
	require.NoError(t, f.rt.HandleResponse(pageJSON(t, page.Response{ID: "Pages.Bar", URL: "/bar/"}),
		"/bar/", false, false, page.ModeAuthenticated, nc.id))

	time.Sleep(60 * time.Millisecond)
	assert.Empty(t, f.modules["Pages.Foo"].unloadingSignals())
}
