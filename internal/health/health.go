// Package health aggregates registry state for liveness endpoints.
package health

import (
	"time"

	"github.com/wavehub/instance-server-go/internal/model"
	"github.com/wavehub/instance-server-go/internal/session"
)

type Lister interface {
	List() []session.Snapshot
}

type Report struct {
	Status        string `json:"status"`
	Timestamp     int64  `json:"timestamp"`
	UptimeSeconds int64  `json:"uptimeSeconds"`
	Instances     Counts `json:"instances"`
}

type Counts struct {
	Total        int `json:"total"`
	Connected    int `json:"connected"`
	Connecting   int `json:"connecting"`
	Disconnected int `json:"disconnected"`
}

// Reporter is a pure read-side aggregation over the registry snapshot; it
// has no side effects.
type Reporter struct {
	sessions  Lister
	startedAt time.Time
}

func NewReporter(sessions Lister) *Reporter {
	return &Reporter{sessions: sessions, startedAt: time.Now()}
}

func (r *Reporter) Report() Report {
	snapshots := r.sessions.List()

	counts := Counts{Total: len(snapshots)}
	for _, s := range snapshots {
		switch s.Status {
		case model.StatusConnected:
			counts.Connected++
		case model.StatusConnecting, model.StatusAwaitingPairing, model.StatusReconnecting, model.StatusUninitialized:
			counts.Connecting++
		default:
			counts.Disconnected++
		}
	}

	return Report{
		Status:        "ok",
		Timestamp:     time.Now().UnixMilli(),
		UptimeSeconds: int64(time.Since(r.startedAt).Seconds()),
		Instances:     counts,
	}
}
