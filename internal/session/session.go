// Package session owns the in-memory state of every managed instance: the
// per-instance state machine, the registry of live sessions, the reconnection
// supervisor and the durable status mirror.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/wavehub/instance-server-go/internal/errors"
	"github.com/wavehub/instance-server-go/internal/model"
	"github.com/wavehub/instance-server-go/internal/transport"
)

// Transition describes one status change of one session. Listeners receive a
// copy after the in-memory state has already been updated.
type Transition struct {
	InstanceID      string
	Name            string
	From            model.InstanceStatus
	To              model.InstanceStatus
	PairingArtifact string
	BoundAddress    string
	Generation      uint64
	Removed         bool
	At              time.Time
}

type TransitionListener interface {
	OnTransition(t Transition)
}

// Snapshot is a point-in-time copy of a session's observable state.
type Snapshot struct {
	ID               string
	Name             string
	Status           model.InstanceStatus
	PairingArtifact  string
	BoundAddress     string
	Generation       uint64
	LastTransitionAt time.Time
}

// Session is the state machine for one instance. All mutations go through
// methods holding mu; the event loop of the currently installed transport
// generation is the only writer for transport-driven transitions. Events
// from a replaced transport carry a stale generation and are discarded.
type Session struct {
	id     string
	name   string
	notify func(Transition)

	// sendMu serializes outbound sends so a transport handle is never used
	// by two senders at once.
	sendMu sync.Mutex

	// notifyMu is held across apply-and-notify so listeners observe
	// transitions in the order they were applied. Always acquired before mu.
	notifyMu sync.Mutex

	mu               sync.Mutex
	status           model.InstanceStatus
	pairingArtifact  string
	boundAddress     string
	lastTransitionAt time.Time
	gen              uint64
	tr               transport.Transport
	cancel           context.CancelFunc
	stopped          bool
}

func newSession(id, name string, notify func(Transition)) *Session {
	return &Session{
		id:               id,
		name:             name,
		notify:           notify,
		status:           model.StatusUninitialized,
		lastTransitionAt: time.Now(),
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		ID:               s.id,
		Name:             s.name,
		Status:           s.status,
		PairingArtifact:  s.pairingArtifact,
		BoundAddress:     s.boundAddress,
		Generation:       s.gen,
		LastTransitionAt: s.lastTransitionAt,
	}
}

// start installs the first transport and begins connecting. Only legal from
// the uninitialized state; a session that has already started keeps its
// single live transport.
func (s *Session) start(factory transport.Factory) error {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return apperrors.NotFound("instance")
	}
	if s.tr != nil {
		s.mu.Unlock()
		return apperrors.AlreadyExists("live transport for instance")
	}

	tr, err := factory(s.id, s.name)
	if err != nil {
		s.mu.Unlock()
		return apperrors.TransportFailure("failed to create transport", err)
	}

	t := s.installLocked(tr)
	s.mu.Unlock()

	s.notify(t)
	return nil
}

// restart replaces a dead transport with a fresh one. It is a no-op unless
// the session still exists, is still disconnected (or stuck mid-reconnect)
// and the generation matches the one the caller observed.
func (s *Session) restart(expectedGen uint64, factory transport.Factory) error {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if s.stopped || s.gen != expectedGen {
		s.mu.Unlock()
		return ErrStaleGeneration
	}
	if s.status != model.StatusDisconnected && s.status != model.StatusReconnecting {
		s.mu.Unlock()
		return ErrStaleGeneration
	}

	var transitions []Transition
	if s.status == model.StatusDisconnected {
		transitions = append(transitions, s.transitionLocked(model.StatusReconnecting, "", ""))
	}

	tr, err := factory(s.id, s.name)
	if err != nil {
		s.mu.Unlock()
		for _, t := range transitions {
			s.notify(t)
		}
		return apperrors.TransportFailure("failed to recreate transport", err)
	}

	old := s.tr
	transitions = append(transitions, s.installLocked(tr))
	s.mu.Unlock()

	closeTransport(s.id, old)
	for _, t := range transitions {
		s.notify(t)
	}
	return nil
}

// installLocked replaces s.tr with tr, bumps the generation and launches the
// event loop and the (possibly slow) transport start for the new generation.
// The prior transport, if any, must already be closed or scheduled for
// closing by the caller.
func (s *Session) installLocked(tr transport.Transport) Transition {
	s.gen++
	gen := s.gen
	s.tr = tr

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	t := s.transitionLocked(model.StatusConnecting, "", "")

	go s.consume(gen, tr)
	go s.runStart(ctx, gen, tr)

	return t
}

// stop tears the session down: cancels any in-flight start, closes the
// transport and emits a terminal disconnecting transition tagged as removal.
func (s *Session) stop() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	if s.cancel != nil {
		s.cancel()
	}
	tr := s.tr
	s.tr = nil
	// late events from the abandoned transport must not be honored
	s.gen++
	t := s.transitionLocked(model.StatusDisconnecting, "", "")
	t.Removed = true
	s.mu.Unlock()

	closeTransport(s.id, tr)
	s.notify(t)
}

// closeQuiet releases resources without emitting transitions. Used on process
// shutdown, where sessions are not being removed.
func (s *Session) closeQuiet() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	if s.cancel != nil {
		s.cancel()
	}
	tr := s.tr
	s.tr = nil
	s.gen++
	s.mu.Unlock()

	closeTransport(s.id, tr)
}

// Send delivers one payload through the live transport. Fails with
// NotConnected unless the session is currently connected.
func (s *Session) Send(ctx context.Context, target string, payload transport.Payload) (string, error) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	s.mu.Lock()
	if s.status != model.StatusConnected || s.tr == nil {
		s.mu.Unlock()
		return "", apperrors.NotConnected(s.id)
	}
	tr := s.tr
	s.mu.Unlock()

	providerID, err := tr.Send(ctx, target, payload)
	if err != nil {
		return "", apperrors.TransportFailure(err.Error(), err)
	}
	return providerID, nil
}

func (s *Session) consume(gen uint64, tr transport.Transport) {
	for ev := range tr.Events() {
		s.handleEvent(gen, ev)
	}
}

// runStart drives the blocking transport start. A start error while this
// generation is still current is folded into a disconnected event so the
// supervisor schedules a fresh attempt.
func (s *Session) runStart(ctx context.Context, gen uint64, tr transport.Transport) {
	if err := tr.Start(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		s.handleEvent(gen, transport.Event{
			Kind:   transport.EventDisconnected,
			Reason: "start failed: " + err.Error(),
		})
	}
}

func (s *Session) handleEvent(gen uint64, ev transport.Event) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if s.stopped || gen != s.gen {
		s.mu.Unlock()
		log.Debug().
			Str("instanceId", s.id).
			Str("kind", string(ev.Kind)).
			Uint64("eventGeneration", gen).
			Msg("discarding event from stale transport generation")
		return
	}

	var transitions []Transition
	switch ev.Kind {
	case transport.EventPairingReady:
		// each emission overwrites the previous artifact; codes rotate
		if s.status == model.StatusConnecting || s.status == model.StatusAwaitingPairing {
			transitions = append(transitions, s.transitionLocked(model.StatusAwaitingPairing, ev.PairingCode, ""))
		}

	case transport.EventAuthenticated:
		log.Info().Str("instanceId", s.id).Msg("transport authenticated, finishing connect")

	case transport.EventReady:
		if s.status == model.StatusConnecting || s.status == model.StatusAwaitingPairing {
			transitions = append(transitions, s.transitionLocked(model.StatusConnected, "", ev.Address))
		}

	case transport.EventDisconnected:
		if s.status == model.StatusConnecting || s.status == model.StatusAwaitingPairing || s.status == model.StatusConnected {
			log.Warn().Str("instanceId", s.id).Str("reason", ev.Reason).Msg("transport disconnected")
			transitions = append(transitions, s.transitionLocked(model.StatusDisconnected, "", ""))
		}

	case transport.EventAuthFailed:
		if s.status == model.StatusConnecting || s.status == model.StatusAwaitingPairing {
			log.Warn().Str("instanceId", s.id).Str("reason", ev.Reason).Msg("transport authentication failed")
			transitions = append(transitions, s.transitionLocked(model.StatusAuthFailed, "", ""))
		}
	}
	s.mu.Unlock()

	for _, t := range transitions {
		s.notify(t)
	}
}

// transitionLocked applies a status change while holding mu. The artifact and
// address arguments are the full new values, keeping the invariants
// (artifact set only while awaiting pairing, address only while connected)
// in one place.
func (s *Session) transitionLocked(to model.InstanceStatus, pairingArtifact, boundAddress string) Transition {
	from := s.status
	s.status = to
	s.pairingArtifact = pairingArtifact
	s.boundAddress = boundAddress
	s.lastTransitionAt = time.Now()

	log.Info().
		Str("instanceId", s.id).
		Str("from", string(from)).
		Str("to", string(to)).
		Uint64("generation", s.gen).
		Msg("session transition")

	return Transition{
		InstanceID:      s.id,
		Name:            s.name,
		From:            from,
		To:              to,
		PairingArtifact: pairingArtifact,
		BoundAddress:    boundAddress,
		Generation:      s.gen,
		At:              s.lastTransitionAt,
	}
}

func closeTransport(instanceID string, tr transport.Transport) {
	if tr == nil {
		return
	}
	if err := tr.Close(); err != nil {
		log.Warn().Err(err).Str("instanceId", instanceID).Msg("transport teardown failed")
	}
}
