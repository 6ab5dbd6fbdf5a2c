package session

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/wavehub/instance-server-go/internal/errors"
	"github.com/wavehub/instance-server-go/internal/model"
	"github.com/wavehub/instance-server-go/internal/transport"
)

func TestRegistryCreateDuplicate(t *testing.T) {
	factory := &fakeFactory{}
	registry := NewRegistry(factory.New)

	_, err := registry.Create("A", "")
	require.NoError(t, err)

	_, err = registry.Create("A", "")
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeAlreadyExists, appErr.Code)
}

func TestRegistryConcurrentCreate(t *testing.T) {
	factory := &fakeFactory{}
	registry := NewRegistry(factory.New)

	const attempts = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := registry.Create("A", ""); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes, "exactly one concurrent create may win")
	assert.Len(t, registry.List(), 1)
}

func TestRegistrySingleLiveTransport(t *testing.T) {
	factory := &fakeFactory{}
	registry := NewRegistry(factory.New)

	_, err := registry.Create("A", "")
	require.NoError(t, err)
	require.NoError(t, registry.StartSession("A"))
	assert.Equal(t, 1, factory.count())

	err = registry.StartSession("A")
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeAlreadyExists, appErr.Code)
	assert.Equal(t, 1, factory.count())

	// a restart with a gone-by generation must not build a second transport
	err = registry.Restart("A", 0)
	assert.ErrorIs(t, err, ErrStaleGeneration)
	assert.Equal(t, 1, factory.count())
}

func TestRegistryRemoveIdempotent(t *testing.T) {
	factory := &fakeFactory{}
	registry := NewRegistry(factory.New)

	_, err := registry.Create("A", "")
	require.NoError(t, err)
	require.NoError(t, registry.StartSession("A"))
	tr := factory.last()

	registry.Remove("A")
	_, ok := registry.Lookup("A")
	assert.False(t, ok)
	assert.True(t, tr.isClosed())

	// removing an absent id is a no-op success
	registry.Remove("A")
	registry.Remove("never-existed")
}

func TestRegistryRemoveEmitsRemovalTransition(t *testing.T) {
	factory := &fakeFactory{}
	registry := NewRegistry(factory.New)

	rec := &recordingListener{}
	registry.Subscribe(rec)

	_, err := registry.Create("A", "")
	require.NoError(t, err)
	require.NoError(t, registry.StartSession("A"))
	registry.Remove("A")

	last := rec.lastFor("A")
	require.NotNil(t, last)
	assert.True(t, last.Removed)
	assert.Equal(t, model.StatusDisconnecting, last.To)
}

func TestRegistryListOrdered(t *testing.T) {
	factory := &fakeFactory{}
	registry := NewRegistry(factory.New)

	for _, id := range []string{"charlie", "alpha", "bravo"} {
		_, err := registry.Create(id, "")
		require.NoError(t, err)
	}

	snaps := registry.List()
	require.Len(t, snaps, 3)
	assert.Equal(t, "alpha", snaps[0].ID)
	assert.Equal(t, "bravo", snaps[1].ID)
	assert.Equal(t, "charlie", snaps[2].ID)

	assert.ElementsMatch(t, []string{"alpha", "bravo", "charlie"}, registry.ActiveIDs())
}

func TestRegistryCloseReleasesWithoutTransitions(t *testing.T) {
	factory := &fakeFactory{}
	registry := NewRegistry(factory.New)

	rec := &recordingListener{}
	registry.Subscribe(rec)

	_, err := registry.Create("A", "")
	require.NoError(t, err)
	require.NoError(t, registry.StartSession("A"))
	tr := factory.last()

	before := len(rec.all())
	registry.Close()

	assert.True(t, tr.isClosed())
	assert.Empty(t, registry.List())
	assert.Len(t, rec.all(), before, "shutdown must not emit transitions")
}

// recordingListener captures transitions for assertions.
type recordingListener struct {
	mu          sync.Mutex
	transitions []Transition
}

func (r *recordingListener) OnTransition(t Transition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, t)
}

func (r *recordingListener) all() []Transition {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Transition, len(r.transitions))
	copy(out, r.transitions)
	return out
}

func (r *recordingListener) lastFor(id string) *Transition {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.transitions) - 1; i >= 0; i-- {
		if r.transitions[i].InstanceID == id {
			t := r.transitions[i]
			return &t
		}
	}
	return nil
}

var _ transport.Transport = (*fakeTransport)(nil)
