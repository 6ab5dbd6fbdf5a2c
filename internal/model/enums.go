package model

type InstanceStatus string

const (
	StatusUninitialized   InstanceStatus = "uninitialized"
	StatusConnecting      InstanceStatus = "connecting"
	StatusAwaitingPairing InstanceStatus = "awaiting_pairing"
	StatusConnected       InstanceStatus = "connected"
	StatusDisconnecting   InstanceStatus = "disconnecting"
	StatusDisconnected    InstanceStatus = "disconnected"
	StatusReconnecting    InstanceStatus = "reconnecting"
	StatusAuthFailed      InstanceStatus = "auth_failed"
)

type OutgoingMessageStatus string

const (
	OutgoingStatusPending OutgoingMessageStatus = "pending"
	OutgoingStatusSent    OutgoingMessageStatus = "sent"
	OutgoingStatusFailed  OutgoingMessageStatus = "failed"
)
