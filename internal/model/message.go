package model

import "time"

// OutgoingMessage is one row of the durable send queue. A row transitions
// exactly once from pending to a terminal state; it is never re-queued
// automatically.
type OutgoingMessage struct {
	ID                string                `db:"id" json:"id"`
	InstanceID        string                `db:"instance_id" json:"instanceId"`
	TargetAddress     string                `db:"target_address" json:"targetAddress"`
	Content           string                `db:"content" json:"content"`
	MediaRef          *string               `db:"media_ref" json:"mediaRef,omitempty"`
	Status            OutgoingMessageStatus `db:"status" json:"status"`
	ProviderMessageID *string               `db:"provider_message_id" json:"providerMessageId,omitempty"`
	ErrorReason       *string               `db:"error_reason" json:"errorReason,omitempty"`
	CreatedAt         time.Time             `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time             `db:"updated_at" json:"updatedAt"`
}

type CreateOutgoingMessageParams struct {
	ID            string
	InstanceID    string
	TargetAddress string
	Content       string
	MediaRef      *string
}
