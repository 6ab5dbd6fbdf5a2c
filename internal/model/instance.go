package model

import "time"

// Instance is the durable mirror of one managed session. The in-memory
// session is authoritative; this row is a read-optimized copy that may lag
// briefly behind the live state.
type Instance struct {
	ID               string         `db:"id" json:"id"`
	Name             string         `db:"name" json:"name,omitempty"`
	Status           InstanceStatus `db:"status" json:"status"`
	PairingArtifact  *string        `db:"pairing_artifact" json:"pairingArtifact,omitempty"`
	BoundAddress     *string        `db:"bound_address" json:"boundAddress,omitempty"`
	LastTransitionAt time.Time      `db:"last_transition_at" json:"lastTransitionAt"`
	CreatedAt        time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time      `db:"updated_at" json:"updatedAt"`
}

type UpsertInstanceParams struct {
	ID               string
	Name             string
	Status           InstanceStatus
	PairingArtifact  *string
	BoundAddress     *string
	LastTransitionAt time.Time
}
