package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatistics_CountsByStatus(t *testing.T) {
	f := newFixture(t)
	plannedEnd := f.now.Add(-time.Hour)

	f.seedActivity(t, "REDE", 1, "Done", timePtr(f.now.Add(time.Hour)), false)
	f.seedActivity(t, "REDE", 2, "Running", timePtr(f.now.Add(time.Hour)), false)
	f.seedActivity(t, "REDE", 3, "Late", &plannedEnd, false)
	f.seedActivity(t, "REDE", 4, "Pending", timePtr(f.now.Add(time.Hour)), false)

	_, err := f.svc.UpdateActivity(context.Background(), UpdateRequest{
		GroupID: "REDE", Seq: 1, RealStart: timePtr(f.now.Add(-time.Hour)), RealEnd: timePtr(f.now.Add(-30 * time.Minute)),
	})
	require.NoError(t, err)
	_, err = f.svc.UpdateActivity(context.Background(), UpdateRequest{
		GroupID: "REDE", Seq: 2, RealStart: timePtr(f.now.Add(-10 * time.Minute)),
	})
	require.NoError(t, err)
	_, err = f.svc.UpdateActivity(context.Background(), UpdateRequest{
		GroupID: "REDE", Seq: 3, RealStart: timePtr(f.now.Add(-2 * time.Hour)), DelayMinutes: intPtr(20),
	})
	require.NoError(t, err)

	stats, err := f.svc.Statistics(context.Background())
	require.NoError(t, err)

	rede := stats.Groups["REDE"]
	assert.Equal(t, 4, rede.Total)
	assert.Equal(t, 1, rede.Completed)
	assert.Equal(t, 1, rede.InExecutionOnTime)
	assert.Equal(t, 1, rede.InExecutionLate)
	assert.Equal(t, 1, rede.NotStartedOnTime)
	assert.InDelta(t, 25.0, rede.PctCompleted, 0.01)

	assert.Equal(t, 4, stats.Overall.Total)
}

func TestStatistics_ExcludesMilestones(t *testing.T) {
	f := newFixture(t)
	f.seedActivity(t, "SI", 1, "Work", timePtr(f.now.Add(time.Hour)), false)
	f.seedActivity(t, "SI", 2, "Checkpoint", timePtr(f.now.Add(time.Hour)), false)

	_, err := f.svc.UpdateActivity(context.Background(), UpdateRequest{
		GroupID: "SI", Seq: 2, IsMilestone: boolPtr(true),
	})
	require.NoError(t, err)

	stats, err := f.svc.Statistics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Groups["SI"].Total)
}

func TestStatistics_RespectsRollbackPartition(t *testing.T) {
	f := newFixture(t)
	f.seedActivity(t, "NFS", 1, "Main", timePtr(f.now.Add(time.Hour)), false)
	f.seedActivity(t, "NFS", 2, "Revert", timePtr(f.now.Add(time.Hour)), true)
	f.seedActivity(t, "NFS", 3, "Close", timePtr(f.now.Add(time.Hour)), false)

	stats, err := f.svc.Statistics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Groups["NFS"].Total)

	_, err = f.svc.SetRollbackState(context.Background(), "NFS", true)
	require.NoError(t, err)

	stats, err = f.svc.Statistics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Groups["NFS"].Total)
}
