package health

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wavehub/instance-server-go/internal/model"
	"github.com/wavehub/instance-server-go/internal/session"
)

type staticLister []session.Snapshot

func (l staticLister) List() []session.Snapshot { return l }

func TestReportBucketsStatuses(t *testing.T) {
	reporter := NewReporter(staticLister{
		{ID: "a", Status: model.StatusConnected},
		{ID: "b", Status: model.StatusConnected},
		{ID: "c", Status: model.StatusConnecting},
		{ID: "d", Status: model.StatusAwaitingPairing},
		{ID: "e", Status: model.StatusReconnecting},
		{ID: "f", Status: model.StatusUninitialized},
		{ID: "g", Status: model.StatusDisconnected},
		{ID: "h", Status: model.StatusAuthFailed},
	})

	report := reporter.Report()

	assert.Equal(t, "ok", report.Status)
	assert.Equal(t, 8, report.Instances.Total)
	assert.Equal(t, 2, report.Instances.Connected)
	assert.Equal(t, 4, report.Instances.Connecting)
	assert.Equal(t, 2, report.Instances.Disconnected)
	assert.GreaterOrEqual(t, report.UptimeSeconds, int64(0))
	assert.Positive(t, report.Timestamp)
}

func TestReportEmptyRegistry(t *testing.T) {
	reporter := NewReporter(staticLister{})

	report := reporter.Report()

	assert.Equal(t, "ok", report.Status)
	assert.Equal(t, Counts{}, report.Instances)
}
