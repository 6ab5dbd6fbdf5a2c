package session

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wavehub/instance-server-go/internal/model"
)

// Supervisor watches sessions fall into the disconnected state and schedules
// a transport replacement after a fixed delay. There is no backoff growth and
// no attempt cap: reconnection repeats until the instance is explicitly
// removed. Timers are tagged with the generation they observed, so an
// intentional stop() before the delay elapses makes the fire a no-op.
type Supervisor struct {
	registry *Registry
	delay    time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool
}

func NewSupervisor(registry *Registry, delay time.Duration) *Supervisor {
	return &Supervisor{
		registry: registry,
		delay:    delay,
		timers:   make(map[string]*time.Timer),
	}
}

func (s *Supervisor) OnTransition(t Transition) {
	if t.Removed || t.To == model.StatusDisconnecting {
		s.cancelTimer(t.InstanceID)
		return
	}
	if t.To == model.StatusDisconnected {
		s.schedule(t.InstanceID, t.Generation)
	}
}

func (s *Supervisor) schedule(id string, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if old, ok := s.timers[id]; ok {
		old.Stop()
	}
	s.timers[id] = time.AfterFunc(s.delay, func() { s.fire(id, gen) })

	log.Info().
		Str("instanceId", id).
		Dur("delay", s.delay).
		Uint64("generation", gen).
		Msg("reconnect scheduled")
}

func (s *Supervisor) fire(id string, gen uint64) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	delete(s.timers, id)
	s.mu.Unlock()

	err := s.registry.Restart(id, gen)
	switch {
	case err == nil:
		log.Info().Str("instanceId", id).Msg("reconnect started")
	case errors.Is(err, ErrStaleGeneration):
		log.Debug().Str("instanceId", id).Msg("reconnect skipped, session replaced or removed")
	default:
		// recreate failed (e.g. resource exhaustion): retry on the same delay
		log.Error().Err(err).Str("instanceId", id).Msg("reconnect attempt failed, rescheduling")
		s.schedule(id, gen)
	}
}

func (s *Supervisor) cancelTimer(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if timer, ok := s.timers[id]; ok {
		timer.Stop()
		delete(s.timers, id)
		log.Debug().Str("instanceId", id).Msg("reconnect cancelled")
	}
}

func (s *Supervisor) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
}
