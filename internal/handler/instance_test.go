package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wavehub/instance-server-go/internal/model"
	"github.com/wavehub/instance-server-go/internal/session"
	"github.com/wavehub/instance-server-go/internal/transport"
)

type stubTransport struct {
	events chan transport.Event
	mu     sync.Mutex
	closed bool
}

func newStubTransport() *stubTransport {
	return &stubTransport{events: make(chan transport.Event, 16)}
}

func (s *stubTransport) Start(ctx context.Context) error { return nil }

func (s *stubTransport) Events() <-chan transport.Event { return s.events }

func (s *stubTransport) Send(ctx context.Context, target string, payload transport.Payload) (string, error) {
	return "provider-id", nil
}

func (s *stubTransport) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	return nil
}

type stubFactory struct {
	mu      sync.Mutex
	current *stubTransport
}

func (f *stubFactory) New(instanceID, name string) (transport.Transport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = newStubTransport()
	return f.current, nil
}

func (f *stubFactory) last() *stubTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

func newInstanceRouter(t *testing.T) (chi.Router, *session.Registry, *stubFactory) {
	t.Helper()
	factory := &stubFactory{}
	registry := session.NewRegistry(factory.New)
	t.Cleanup(registry.Close)

	r := chi.NewRouter()
	r.Mount("/instances", NewInstanceHandler(registry).Routes())
	return r, registry, factory
}

func doJSON(t *testing.T, router chi.Router, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("{}")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var payload map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	}
	return rec, payload
}

func waitStatus(t *testing.T, registry *session.Registry, id string, want model.InstanceStatus) {
	t.Helper()
	require.Eventually(t, func() bool {
		s, ok := registry.Lookup(id)
		return ok && s.Status == want
	}, 2*time.Second, 5*time.Millisecond)
}

func TestInstancePairingFlow(t *testing.T) {
	router, registry, factory := newInstanceRouter(t)

	rec, body := doJSON(t, router, http.MethodPost, "/instances", `{"instanceId":"A","name":"primary"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "A", body["instanceId"])
	assert.Equal(t, "connecting", body["status"])

	factory.last().events <- transport.Event{Kind: transport.EventPairingReady, PairingCode: "CODE1"}
	waitStatus(t, registry, "A", model.StatusAwaitingPairing)

	rec, body = doJSON(t, router, http.MethodGet, "/instances/A/qr", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "CODE1", body["pairingArtifact"])
	assert.Equal(t, false, body["isConnected"])

	factory.last().events <- transport.Event{Kind: transport.EventReady, Address: "+5511999999999"}
	waitStatus(t, registry, "A", model.StatusConnected)

	rec, body = doJSON(t, router, http.MethodGet, "/instances/A/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "connected", body["status"])
	assert.Equal(t, true, body["connected"])
	assert.Equal(t, "+5511999999999", body["boundAddress"])

	// the pairing artifact is gone once connected
	rec, body = doJSON(t, router, http.MethodGet, "/instances/A/qr", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, body["pairingArtifact"])
	assert.Equal(t, true, body["isConnected"])
}

func TestInstanceCreateDuplicate(t *testing.T) {
	router, _, _ := newInstanceRouter(t)

	rec, _ := doJSON(t, router, http.MethodPost, "/instances", `{"instanceId":"A"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, body := doJSON(t, router, http.MethodPost, "/instances", `{"instanceId":"A"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "ALREADY_EXISTS", body["code"])
}

func TestInstanceCreateGeneratesID(t *testing.T) {
	router, registry, _ := newInstanceRouter(t)

	rec, body := doJSON(t, router, http.MethodPost, "/instances", `{}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	id, ok := body["instanceId"].(string)
	require.True(t, ok)
	assert.NotEmpty(t, id)
	_, exists := registry.Lookup(id)
	assert.True(t, exists)
}

func TestInstanceUnknownID(t *testing.T) {
	router, _, _ := newInstanceRouter(t)

	for _, path := range []string{"/instances/ghost/qr", "/instances/ghost/status"} {
		rec, body := doJSON(t, router, http.MethodGet, path, "")
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
		assert.Equal(t, "NOT_FOUND", body["code"], path)
	}

	rec, body := doJSON(t, router, http.MethodPost, "/instances/ghost/disconnect", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", body["code"])
}

func TestInstanceDisconnect(t *testing.T) {
	router, registry, _ := newInstanceRouter(t)

	rec, _ := doJSON(t, router, http.MethodPost, "/instances", `{"instanceId":"A"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, body := doJSON(t, router, http.MethodPost, "/instances/A/disconnect", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])

	_, ok := registry.Lookup("A")
	assert.False(t, ok)

	rec, _ = doJSON(t, router, http.MethodGet, "/instances/A/status", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInstanceReset(t *testing.T) {
	router, registry, factory := newInstanceRouter(t)

	rec, _ := doJSON(t, router, http.MethodPost, "/instances", `{"instanceId":"A","name":"primary"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	factory.last().events <- transport.Event{Kind: transport.EventReady, Address: "+111"}
	waitStatus(t, registry, "A", model.StatusConnected)
	old := factory.last()

	rec, body := doJSON(t, router, http.MethodPost, "/instances/A/reset", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "connecting", body["status"])

	old.mu.Lock()
	closed := old.closed
	old.mu.Unlock()
	assert.True(t, closed, "reset must tear down the previous transport")

	snap, ok := registry.Lookup("A")
	require.True(t, ok)
	assert.Equal(t, "primary", snap.Name, "reset keeps the configured name")
}

func TestInstanceList(t *testing.T) {
	router, registry, factory := newInstanceRouter(t)

	rec, _ := doJSON(t, router, http.MethodPost, "/instances", `{"instanceId":"A"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	factory.last().events <- transport.Event{Kind: transport.EventReady, Address: "+111"}
	waitStatus(t, registry, "A", model.StatusConnected)

	rec, _ = doJSON(t, router, http.MethodPost, "/instances", `{"instanceId":"B"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/instances", nil)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	require.Equal(t, http.StatusOK, recorder.Code)

	var items []map[string]any
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &items))
	require.Len(t, items, 2)

	assert.Equal(t, "A", items[0]["instanceId"])
	assert.Equal(t, true, items[0]["isConnected"])
	assert.Equal(t, "+111", items[0]["connectedAddress"])
	assert.Equal(t, "B", items[1]["instanceId"])
	assert.Equal(t, false, items[1]["isConnected"])
	assert.Nil(t, items[1]["connectedAddress"])
}
