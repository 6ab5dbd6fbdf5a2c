package repository

import (
	"context"
	"time"

	"github.com/wavehub/instance-server-go/internal/database"
	"github.com/wavehub/instance-server-go/internal/model"
)

type OutgoingMessageRepository interface {
	FindByID(ctx context.Context, id string) (*model.OutgoingMessage, error)
	FindPendingOlderThan(ctx context.Context, age time.Duration, limit int) ([]model.OutgoingMessage, error)
	Create(ctx context.Context, params model.CreateOutgoingMessageParams) (*model.OutgoingMessage, error)
	MarkSent(ctx context.Context, id string, providerMessageID string) (bool, error)
	MarkFailed(ctx context.Context, id string, reason string) (bool, error)
	CountByStatus(ctx context.Context, status model.OutgoingMessageStatus) (int, error)
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type outgoingMessageRepo struct {
	db database.DBTX
}

func NewOutgoingMessageRepository(db database.DBTX) OutgoingMessageRepository {
	return &outgoingMessageRepo{db: db}
}

func (r *outgoingMessageRepo) FindByID(ctx context.Context, id string) (*model.OutgoingMessage, error) {
	var msg model.OutgoingMessage
	err := r.db.GetContext(ctx, &msg, `SELECT * FROM outgoing_messages WHERE id = $1`, id)
	return HandleNotFound(&msg, err)
}

func (r *outgoingMessageRepo) FindPendingOlderThan(ctx context.Context, age time.Duration, limit int) ([]model.OutgoingMessage, error) {
	var msgs []model.OutgoingMessage
	err := r.db.SelectContext(ctx, &msgs, `
		SELECT * FROM outgoing_messages
		WHERE status = 'pending' AND created_at < $1
		ORDER BY created_at ASC
		LIMIT $2
	`, time.Now().Add(-age), limit)
	return msgs, err
}

func (r *outgoingMessageRepo) Create(ctx context.Context, params model.CreateOutgoingMessageParams) (*model.OutgoingMessage, error) {
	var msg model.OutgoingMessage
	err := r.db.GetContext(ctx, &msg, `
		INSERT INTO outgoing_messages
			(id, instance_id, target_address, content, media_ref)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING *
	`, params.ID, params.InstanceID, params.TargetAddress, params.Content, params.MediaRef)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// MarkSent transitions a row from pending to sent. The status guard makes the
// write idempotent under duplicate notification delivery: the second caller
// sees zero rows affected and must not send again.
func (r *outgoingMessageRepo) MarkSent(ctx context.Context, id string, providerMessageID string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE outgoing_messages SET
			status = 'sent',
			provider_message_id = $2,
			updated_at = $3
		WHERE id = $1 AND status = 'pending'
	`, id, providerMessageID, time.Now())
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	return rows > 0, err
}

// MarkFailed transitions a row from pending to failed, same guard as MarkSent.
func (r *outgoingMessageRepo) MarkFailed(ctx context.Context, id string, reason string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE outgoing_messages SET
			status = 'failed',
			error_reason = $2,
			updated_at = $3
		WHERE id = $1 AND status = 'pending'
	`, id, reason, time.Now())
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	return rows > 0, err
}

func (r *outgoingMessageRepo) CountByStatus(ctx context.Context, status model.OutgoingMessageStatus) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM outgoing_messages WHERE status = $1
	`, status)
	return count, err
}

func (r *outgoingMessageRepo) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM outgoing_messages
		WHERE status IN ('sent', 'failed') AND updated_at < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
