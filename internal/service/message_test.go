package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatDelay(t *testing.T) {
	assert.Equal(t, "0 min", formatDelay(0))
	assert.Equal(t, "+30 min", formatDelay(30))
	assert.Equal(t, "-30 min", formatDelay(-30))
	assert.Equal(t, "+1h", formatDelay(60))
	assert.Equal(t, "+1h 15min", formatDelay(75))
	assert.Equal(t, "-2h 5min", formatDelay(-125))
}

func TestBuildSummaryMessage_Empty(t *testing.T) {
	f := newFixture(t)

	msg, err := f.svc.BuildSummaryMessage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "No data available", msg)
}

func TestBuildSummaryMessage_ReportsDelayedActivities(t *testing.T) {
	f := newFixture(t)
	plannedEnd := f.now.Add(-time.Hour)
	f.seedActivity(t, "REDE", 1, "Swap uplink", &plannedEnd, false)

	_, err := f.svc.UpdateActivity(context.Background(), UpdateRequest{
		GroupID:      "REDE",
		Seq:          1,
		RealStart:    timePtr(f.now.Add(-2 * time.Hour)),
		DelayMinutes: intPtr(75),
		Notes:        strPtr("waiting on vendor"),
	})
	require.NoError(t, err)

	msg, err := f.svc.BuildSummaryMessage(context.Background())
	require.NoError(t, err)

	assert.Contains(t, msg, "*OVERALL STATUS*")
	assert.Contains(t, msg, "*DELAYED ACTIVITIES*")
	assert.Contains(t, msg, "[REDE] Swap uplink: +1h 15min")
	assert.Contains(t, msg, "Note: waiting on vendor")
	assert.Contains(t, msg, "In execution late: 1/1")
}

func TestBuildSummaryMessage_ListsFinishedGroups(t *testing.T) {
	f := newFixture(t)
	f.seedActivity(t, "SI", 1, "Only task", timePtr(f.now.Add(time.Hour)), false)

	_, err := f.svc.UpdateActivity(context.Background(), UpdateRequest{
		GroupID:   "SI",
		Seq:       1,
		RealStart: timePtr(f.now.Add(-time.Hour)),
		RealEnd:   timePtr(f.now.Add(-30 * time.Minute)),
	})
	require.NoError(t, err)

	msg, err := f.svc.BuildSummaryMessage(context.Background())
	require.NoError(t, err)

	assert.Contains(t, msg, "*FINISHED*")
	assert.Contains(t, msg, "SI")
}

func TestBuildDetailedMessage_ShowsCompletedWithTimes(t *testing.T) {
	f := newFixture(t)
	f.seedActivity(t, "OPENSHIFT", 1, "Upgrade operators", timePtr(f.now.Add(time.Hour)), false)

	start := time.Date(2026, 8, 30, 23, 10, 0, 0, time.UTC)
	end := time.Date(2026, 8, 30, 23, 55, 0, 0, time.UTC)
	_, err := f.svc.UpdateActivity(context.Background(), UpdateRequest{
		GroupID:   "OPENSHIFT",
		Seq:       1,
		RealStart: &start,
		RealEnd:   &end,
	})
	require.NoError(t, err)

	msg, err := f.svc.BuildDetailedMessage(context.Background())
	require.NoError(t, err)

	assert.Contains(t, msg, "✅ Upgrade operators (23:10 – 23:55)")
	assert.Contains(t, msg, "⬜ Rollback: not triggered")
	assert.Contains(t, msg, "*Status legend*")
}

func TestBuildDetailedMessage_MarksRollbackActive(t *testing.T) {
	f := newFixture(t)
	f.seedActivity(t, "NFS", 1, "Main", timePtr(f.now.Add(time.Hour)), false)

	_, err := f.svc.SetRollbackState(context.Background(), "NFS", true)
	require.NoError(t, err)

	msg, err := f.svc.BuildDetailedMessage(context.Background())
	require.NoError(t, err)

	assert.Contains(t, msg, "NFS (Rollback active)")
	assert.Contains(t, msg, "⏳ Rollback: triggered, plan in progress")
}
