package service

import (
	"context"

	"changewindow-tracker/internal/tracking"
)

// StatusCounts aggregates one population of activities over the five
// executable statuses. Milestones (status N/A) never enter the counts.
type StatusCounts struct {
	Total                int     `json:"total"`
	Completed            int     `json:"completed"`
	InExecutionOnTime    int     `json:"in_execution_on_time"`
	InExecutionLate      int     `json:"in_execution_late"`
	NotStartedOnTime     int     `json:"not_started_on_time"`
	NotStartedLate       int     `json:"not_started_late"`
	PctCompleted         float64 `json:"pct_completed"`
	PctInExecutionOnTime float64 `json:"pct_in_execution_on_time"`
	PctInExecutionLate   float64 `json:"pct_in_execution_late"`
	PctNotStartedOnTime  float64 `json:"pct_not_started_on_time"`
	PctNotStartedLate    float64 `json:"pct_not_started_late"`
}

func (c *StatusCounts) add(status tracking.Status) {
	switch status {
	case tracking.StatusNA:
		return
	case tracking.StatusCompleted:
		c.Completed++
	case tracking.StatusInExecutionOnTime:
		c.InExecutionOnTime++
	case tracking.StatusInExecutionLate:
		c.InExecutionLate++
	case tracking.StatusNotStartedOnTime:
		c.NotStartedOnTime++
	case tracking.StatusNotStartedLate:
		c.NotStartedLate++
	}
	c.Total++
}

func (c *StatusCounts) finalize() {
	if c.Total == 0 {
		return
	}
	total := float64(c.Total)
	c.PctCompleted = float64(c.Completed) / total * 100
	c.PctInExecutionOnTime = float64(c.InExecutionOnTime) / total * 100
	c.PctInExecutionLate = float64(c.InExecutionLate) / total * 100
	c.PctNotStartedOnTime = float64(c.NotStartedOnTime) / total * 100
	c.PctNotStartedLate = float64(c.NotStartedLate) / total * 100
}

// started reports whether any activity of the population left the
// not-started statuses.
func (c *StatusCounts) started() bool {
	return c.Completed > 0 || c.InExecutionOnTime > 0 || c.InExecutionLate > 0
}

// completed reports whether every counted activity is done.
func (c *StatusCounts) completed() bool {
	return c.Total > 0 && c.Completed == c.Total
}

// Statistics is the aggregate the statistics endpoint serves.
type Statistics struct {
	Overall StatusCounts            `json:"overall"`
	Groups  map[string]StatusCounts `json:"groups"`
}

// Statistics counts the visible activities of every group by derived status.
// The rollback partition applies here exactly as it does on the activity
// listing, so the numbers always describe what operators currently see.
func (s *TrackerService) Statistics(ctx context.Context) (*Statistics, error) {
	views, err := s.ListActivities(ctx)
	if err != nil {
		return nil, err
	}

	stats := &Statistics{Groups: make(map[string]StatusCounts, len(views))}
	for _, group := range views {
		var counts StatusCounts
		for _, av := range group.Activities {
			counts.add(av.Status)
			stats.Overall.add(av.Status)
		}
		counts.finalize()
		stats.Groups[group.GroupID] = counts
	}
	stats.Overall.finalize()
	return stats, nil
}
