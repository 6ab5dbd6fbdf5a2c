// Package dispatch drains the durable queue of pending outbound messages
// through whichever sessions are currently connected.
package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/wavehub/instance-server-go/internal/errors"
	"github.com/wavehub/instance-server-go/internal/model"
	"github.com/wavehub/instance-server-go/internal/repository"
	"github.com/wavehub/instance-server-go/internal/session"
	"github.com/wavehub/instance-server-go/internal/transport"
)

const pollBatchLimit = 100

const (
	reasonInstanceNotFound     = "instance not found"
	reasonInstanceNotConnected = "instance not connected"
)

// SessionDirectory is the registry surface the dispatcher needs: existence
// and status of an instance, plus delivery through it.
type SessionDirectory interface {
	Lookup(instanceID string) (session.Snapshot, bool)
	Send(ctx context.Context, instanceID, target string, payload transport.Payload) (string, error)
}

// PendingSource streams the ids of newly-enqueued pending messages. The
// stream ends when the stop function is called or the context is done.
type PendingSource interface {
	SubscribePending(ctx context.Context) (<-chan string, func() error)
}

// Result is the terminal outcome of processing one queue row.
type Result struct {
	MessageID         string
	Status            model.OutgoingMessageStatus
	ProviderMessageID string
	Reason            string
}

// AppError maps a failed result onto the error taxonomy, nil for a sent one.
func (r *Result) AppError() *apperrors.AppError {
	if r.Status != model.OutgoingStatusFailed {
		return nil
	}
	switch r.Reason {
	case reasonInstanceNotFound:
		return apperrors.NotFound("instance")
	case reasonInstanceNotConnected:
		return apperrors.New(apperrors.ErrCodeNotConnected, r.Reason)
	default:
		return apperrors.New(apperrors.ErrCodeTransportFailure, r.Reason)
	}
}

// Dispatcher consumes pending rows via Redis push notification plus a poll
// fallback for rows that outlived the pending-age threshold (covering missed
// notifications). Rows for different instances dispatch concurrently; there
// is deliberately no per-instance ordering queue, so relative order between
// two rows for the same instance is not guaranteed.
type Dispatcher struct {
	repo     repository.OutgoingMessageRepository
	sessions SessionDirectory
	resolver TargetResolver
	pending  PendingSource

	pollInterval time.Duration
	pendingAge   time.Duration
	sem          chan struct{}

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewDispatcher(
	repo repository.OutgoingMessageRepository,
	sessions SessionDirectory,
	resolver TargetResolver,
	pending PendingSource,
	pollInterval, pendingAge time.Duration,
	concurrency int,
) *Dispatcher {
	return &Dispatcher{
		repo:         repo,
		sessions:     sessions,
		resolver:     resolver,
		pending:      pending,
		pollInterval: pollInterval,
		pendingAge:   pendingAge,
		sem:          make(chan struct{}, concurrency),
	}
}

func (d *Dispatcher) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel

	d.wg.Add(2)
	go d.notifyLoop(ctx)
	go d.pollLoop(ctx)

	log.Info().
		Dur("pollInterval", d.pollInterval).
		Dur("pendingAge", d.pendingAge).
		Msg("dispatcher started")
}

func (d *Dispatcher) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()
	log.Info().Msg("dispatcher stopped")
}

func (d *Dispatcher) notifyLoop(ctx context.Context) {
	defer d.wg.Done()

	ids, stop := d.pending.SubscribePending(ctx)
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return
		case id, ok := <-ids:
			if !ok {
				return
			}
			d.dispatchAsync(ctx, id)
		}
	}
}

func (d *Dispatcher) pollLoop(ctx context.Context) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.poll(ctx)
		}
	}
}

func (d *Dispatcher) poll(ctx context.Context) {
	msgs, err := d.repo.FindPendingOlderThan(ctx, d.pendingAge, pollBatchLimit)
	if err != nil {
		log.Error().Err(err).Msg("pending poll failed")
		return
	}
	if len(msgs) > 0 {
		log.Info().Int("count", len(msgs)).Msg("dispatching stale pending messages")
	}
	for _, msg := range msgs {
		d.dispatchAsync(ctx, msg.ID)
	}
}

func (d *Dispatcher) dispatchAsync(ctx context.Context, messageID string) {
	select {
	case d.sem <- struct{}{}:
	case <-ctx.Done():
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() { <-d.sem }()

		if _, err := d.Process(ctx, messageID); err != nil {
			log.Error().Err(err).Str("messageId", messageID).Msg("dispatch failed")
		}
	}()
}

// Process drives one queue row to a terminal state. It is safe to invoke
// twice for the same row: the terminal write is conditional on the row still
// being pending, so a duplicate delivery becomes a no-op instead of a
// double-send.
func (d *Dispatcher) Process(ctx context.Context, messageID string) (*Result, error) {
	msg, err := d.repo.FindByID(ctx, messageID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if msg == nil {
		return nil, apperrors.NotFound("message")
	}
	if msg.Status != model.OutgoingStatusPending {
		log.Debug().Str("messageId", msg.ID).Str("status", string(msg.Status)).
			Msg("message already terminal, skipping")
		return resultFromRow(msg), nil
	}

	snap, ok := d.sessions.Lookup(msg.InstanceID)
	if !ok {
		return d.fail(ctx, msg, reasonInstanceNotFound)
	}
	if snap.Status != model.StatusConnected {
		return d.fail(ctx, msg, reasonInstanceNotConnected)
	}

	target, err := d.resolver.Resolve(*msg)
	if err != nil {
		return d.fail(ctx, msg, err.Error())
	}

	payload := transport.Payload{Text: msg.Content}
	if msg.MediaRef != nil {
		payload.MediaRef = *msg.MediaRef
	}

	providerID, err := d.sessions.Send(ctx, msg.InstanceID, target, payload)
	if err != nil {
		reason := err.Error()
		if appErr, ok := apperrors.AsAppError(err); ok {
			reason = appErr.Message
		}
		return d.fail(ctx, msg, reason)
	}

	// the message already left through the transport; a caller that gave up
	// mid-request must not abort recording that fact, or the poll fallback
	// would re-dispatch a delivered message
	ctx = context.WithoutCancel(ctx)

	updated, err := d.repo.MarkSent(ctx, msg.ID, providerID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if !updated {
		return d.reread(ctx, msg.ID)
	}

	log.Info().
		Str("messageId", msg.ID).
		Str("instanceId", msg.InstanceID).
		Str("providerMessageId", providerID).
		Msg("message sent")

	return &Result{
		MessageID:         msg.ID,
		Status:            model.OutgoingStatusSent,
		ProviderMessageID: providerID,
	}, nil
}

func (d *Dispatcher) fail(ctx context.Context, msg *model.OutgoingMessage, reason string) (*Result, error) {
	// the attempt's outcome is decided; persist it even if the caller is gone
	ctx = context.WithoutCancel(ctx)

	updated, err := d.repo.MarkFailed(ctx, msg.ID, reason)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if !updated {
		return d.reread(ctx, msg.ID)
	}

	log.Warn().
		Str("messageId", msg.ID).
		Str("instanceId", msg.InstanceID).
		Str("reason", reason).
		Msg("message failed")

	return &Result{
		MessageID: msg.ID,
		Status:    model.OutgoingStatusFailed,
		Reason:    reason,
	}, nil
}

// reread reports the outcome another worker already wrote for this row.
func (d *Dispatcher) reread(ctx context.Context, messageID string) (*Result, error) {
	msg, err := d.repo.FindByID(ctx, messageID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if msg == nil {
		return nil, apperrors.NotFound("message")
	}
	log.Debug().Str("messageId", messageID).Msg("duplicate dispatch, row already terminal")
	return resultFromRow(msg), nil
}

func resultFromRow(msg *model.OutgoingMessage) *Result {
	res := &Result{MessageID: msg.ID, Status: msg.Status}
	if msg.ProviderMessageID != nil {
		res.ProviderMessageID = *msg.ProviderMessageID
	}
	if msg.ErrorReason != nil {
		res.Reason = *msg.ErrorReason
	}
	return res
}
