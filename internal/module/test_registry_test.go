package module

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"realm/internal/ports"
)

func noop(Flags) (*Instance, error) { return NewInstance(nil), nil }

func other(Flags) (*Instance, error) { return NewInstance(nil), nil }

func TestRegistryRegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("Pages.Index", noop))
	require.NoError(t, r.Register("Pages.Index", noop), "same factory twice is a no-op")

	f, ok := r.Lookup("Pages.Index")
	require.True(t, ok)
	require.NotNil(t, f)

	_, ok = r.Lookup("Pages")
	assert.False(t, ok, "lookups are key equality, not namespace walks")
	_, ok = r.Lookup("Pages.IndexTest")
	assert.False(t, ok)
}

func TestRegistryRejectsBadRegistrations(t *testing.T) {
	r := NewRegistry()
	assert.True(t, errors.Is(r.Register(" ", noop), ErrEmptyID))
	assert.True(t, errors.Is(r.Register("Pages.A", nil), ErrNilFactory))

	require.NoError(t, r.Register("Pages.A", noop))
	assert.True(t, errors.Is(r.Register("Pages.A", other), ErrConflictingRegistration))
}

func TestRegistryIDsSorted(t *testing.T) {
	r := NewRegistry()
	r.MustRegister("Pages.B", noop)
	r.MustRegister("Pages.A", noop)
	assert.Equal(t, []string{"Pages.A", "Pages.B"}, r.IDs())
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = r.Register("Pages.Shared", noop)
		}()
		go func() {
			defer wg.Done()
			_, _ = r.Lookup("Pages.Shared")
		}()
	}
	wg.Wait()
	assert.Equal(t, []string{"Pages.Shared"}, r.IDs())
}

func TestInstanceAcknowledgeShutdown(t *testing.T) {
	inst := NewInstance(nil)
	done := inst.ShutdownAcknowledged()
	select {
	case <-done:
		t.Fatal("acknowledged before AcknowledgeShutdown")
	default:
	}
	inst.AcknowledgeShutdown()
	inst.AcknowledgeShutdown()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("acknowledgement not signalled")
	}
}

func TestStaticModuleAcknowledgesShutdown(t *testing.T) {
	inst, err := Static("Pages.Index", nil)(Flags{"title": "Index"})
	require.NoError(t, err)
	assert.True(t, inst.Ports.Send(ports.Shutdown, nil))
	select {
	case <-inst.ShutdownAcknowledged():
	case <-time.After(time.Second):
		t.Fatal("static module did not acknowledge shutdown")
	}
}
