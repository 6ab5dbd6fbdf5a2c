package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wavehub/instance-server-go/internal/repository"
)

// ActiveInstances reports which instance ids currently exist in the registry.
type ActiveInstances interface {
	ActiveIDs() []string
}

// CleanupJob periodically prunes the durable store: terminal outgoing
// messages past their retention window and instance rows whose session no
// longer exists.
type CleanupJob struct {
	msgRepo      repository.OutgoingMessageRepository
	instanceRepo repository.InstanceRepository
	active       ActiveInstances
	interval     time.Duration
	retention    time.Duration
	done         chan struct{}
}

func NewCleanupJob(
	msgRepo repository.OutgoingMessageRepository,
	instanceRepo repository.InstanceRepository,
	active ActiveInstances,
	interval, retention time.Duration,
) *CleanupJob {
	return &CleanupJob{
		msgRepo:      msgRepo,
		instanceRepo: instanceRepo,
		active:       active,
		interval:     interval,
		retention:    retention,
		done:         make(chan struct{}),
	}
}

func (j *CleanupJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("cleanup job started")
}

func (j *CleanupJob) Stop() {
	close(j.done)
	log.Info().Msg("cleanup job stopped")
}

func (j *CleanupJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.cleanup()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.cleanup()
		}
	}
}

func (j *CleanupJob) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	count, err := j.msgRepo.DeleteTerminalBefore(ctx, time.Now().Add(-j.retention))
	if err != nil {
		log.Error().Err(err).Msg("failed to cleanup terminal messages")
	} else if count > 0 {
		log.Info().Int64("count", count).Msg("cleaned up terminal messages")
	}

	count, err = j.instanceRepo.DeleteOrphaned(ctx, j.active.ActiveIDs())
	if err != nil {
		log.Error().Err(err).Msg("failed to cleanup orphaned instance rows")
	} else if count > 0 {
		log.Info().Int64("count", count).Msg("cleaned up orphaned instance rows")
	}
}
