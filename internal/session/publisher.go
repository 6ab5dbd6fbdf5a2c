package session

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wavehub/instance-server-go/internal/model"
	"github.com/wavehub/instance-server-go/internal/repository"
)

// Publisher mirrors every transition into the durable store so external
// observers can read current status without touching live sessions. Writes
// are best-effort: the in-memory session is authoritative and a failed
// publish is logged, never propagated back into the state machine.
type Publisher struct {
	repo    repository.InstanceRepository
	timeout time.Duration
}

func NewPublisher(repo repository.InstanceRepository, timeout time.Duration) *Publisher {
	return &Publisher{repo: repo, timeout: timeout}
}

func (p *Publisher) OnTransition(t Transition) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	if t.Removed {
		if err := p.repo.Delete(ctx, t.InstanceID); err != nil {
			log.Error().Err(err).Str("instanceId", t.InstanceID).Msg("failed to delete instance row")
		}
		return
	}

	err := p.repo.Upsert(ctx, model.UpsertInstanceParams{
		ID:               t.InstanceID,
		Name:             t.Name,
		Status:           t.To,
		PairingArtifact:  nullable(t.PairingArtifact),
		BoundAddress:     nullable(t.BoundAddress),
		LastTransitionAt: t.At,
	})
	if err != nil {
		log.Error().Err(err).
			Str("instanceId", t.InstanceID).
			Str("status", string(t.To)).
			Msg("failed to publish instance status")
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
