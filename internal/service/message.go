package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"changewindow-tracker/internal/tracking"
)

const messageDivider = "━━━━━━━━━━━━━━━━━━"

var statusEmoji = map[tracking.Status]string{
	tracking.StatusCompleted:         "✅",
	tracking.StatusInExecutionOnTime: "⏳",
	tracking.StatusInExecutionLate:   "🔴",
	tracking.StatusNotStartedOnTime:  "⬜",
	tracking.StatusNotStartedLate:    "⛔",
}

// formatDelay renders a signed delay as "+1h 15min", "-30 min" or "0 min".
func formatDelay(minutes int) string {
	if minutes == 0 {
		return "0 min"
	}
	sign := "+"
	if minutes < 0 {
		sign = "-"
		minutes = -minutes
	}
	if minutes < 60 {
		return fmt.Sprintf("%s%d min", sign, minutes)
	}
	hours := minutes / 60
	mins := minutes % 60
	if mins == 0 {
		return fmt.Sprintf("%s%dh", sign, hours)
	}
	return fmt.Sprintf("%s%dh %dmin", sign, hours, mins)
}

func writeCounts(b *strings.Builder, c StatusCounts) {
	fmt.Fprintf(b, "  ✅ Completed: %d/%d (%.1f%%)\n", c.Completed, c.Total, c.PctCompleted)
	fmt.Fprintf(b, "  ⏳ In execution on time: %d/%d (%.1f%%)\n", c.InExecutionOnTime, c.Total, c.PctInExecutionOnTime)
	fmt.Fprintf(b, "  🔴 In execution late: %d/%d (%.1f%%)\n", c.InExecutionLate, c.Total, c.PctInExecutionLate)
	fmt.Fprintf(b, "  🟦 Not started on time: %d/%d (%.1f%%)\n", c.NotStartedOnTime, c.Total, c.PctNotStartedOnTime)
	fmt.Fprintf(b, "  🟠 Not started late: %d/%d (%.1f%%)\n", c.NotStartedLate, c.Total, c.PctNotStartedLate)
}

// BuildSummaryMessage renders the consolidated operator report: overall
// counts, per-group counts for started groups, the not-started and finished
// groups, and the list of delayed activities with their notes.
func (s *TrackerService) BuildSummaryMessage(ctx context.Context) (string, error) {
	views, err := s.ListActivities(ctx)
	if err != nil {
		return "", err
	}
	if empty(views) {
		return "No data available", nil
	}

	byGroup := make(map[string]StatusCounts, len(views))
	var overall StatusCounts
	for _, group := range views {
		var counts StatusCounts
		for _, av := range group.Activities {
			counts.add(av.Status)
			overall.add(av.Status)
		}
		counts.finalize()
		byGroup[group.GroupID] = counts
	}
	overall.finalize()

	now := s.now()
	var b strings.Builder
	b.WriteString("🚀 *CHANGE WINDOW*\n\n")
	fmt.Fprintf(&b, "📅 Date: %s | 🕐 Time: %s\n\n", now.Format("02/01/2006"), now.Format("15:04:05"))
	b.WriteString(messageDivider + "\n\n")
	b.WriteString("📈 *OVERALL STATUS*\n")
	writeCounts(&b, overall)
	b.WriteString("\n" + messageDivider + "\n")

	var started, notStarted []string
	for _, group := range views {
		counts := byGroup[group.GroupID]
		if counts.Total == 0 {
			continue
		}
		if counts.started() {
			started = append(started, group.GroupID)
		} else {
			notStarted = append(notStarted, group.GroupID)
		}
	}

	if len(started) > 0 {
		b.WriteString("\n📊 *STARTED GROUPS*\n")
		for _, groupID := range started {
			fmt.Fprintf(&b, "\n🔹 *STATUS %s*\n", groupID)
			writeCounts(&b, byGroup[groupID])
		}
	}
	if len(notStarted) > 0 {
		b.WriteString("\n\n⏸️ *NOT STARTED GROUPS*\n")
		fmt.Fprintf(&b, "  %s\n", strings.Join(notStarted, ", "))
	}
	b.WriteString("\n" + messageDivider + "\n\n")

	var finished []string
	for _, group := range views {
		counts := byGroup[group.GroupID]
		if counts.completed() {
			finished = append(finished, group.GroupID)
		}
	}
	if len(finished) > 0 {
		b.WriteString("📋 *FINISHED*\n")
		fmt.Fprintf(&b, "  %s\n\n", strings.Join(finished, ", "))
		b.WriteString(messageDivider + "\n\n")
	}

	wroteDelayed := false
	for _, group := range views {
		for _, av := range group.Activities {
			if av.Status == tracking.StatusNA {
				continue
			}
			delay := 0
			notes := ""
			if av.Control != nil {
				if av.Control.DelayMinutes != nil {
					delay = *av.Control.DelayMinutes
				}
				notes = av.Control.Notes
			}
			late := av.Status == tracking.StatusInExecutionLate || av.Status == tracking.StatusNotStartedLate
			if !late && delay <= 0 {
				continue
			}
			if !wroteDelayed {
				b.WriteString("🚨 *DELAYED ACTIVITIES*\n")
				wroteDelayed = true
			}
			fmt.Fprintf(&b, "\n  🔹 [%s] %s: %s\n", group.GroupID, av.Activity.Title, formatDelay(delay))
			if strings.TrimSpace(notes) != "" {
				fmt.Fprintf(&b, "     Note: %s\n", notes)
			}
		}
	}
	if wroteDelayed {
		b.WriteString("\n" + messageDivider + "\n\n")
	}

	fmt.Fprintf(&b, "✅ Updated at: %s\n", now.Format("02/01/2006 15:04:05"))
	return b.String(), nil
}

// BuildDetailedMessage renders the per-group follow-up report: completed
// activities with their real times, plus each group's rollback state. The
// listing goes through the same visibility partition as everything else.
func (s *TrackerService) BuildDetailedMessage(ctx context.Context) (string, error) {
	views, err := s.ListActivities(ctx)
	if err != nil {
		return "", err
	}
	if empty(views) {
		return "No data available", nil
	}

	now := s.now()
	var b strings.Builder
	b.WriteString("⏳ *CHANGE WINDOW FOLLOW-UP*\n\n")
	fmt.Fprintf(&b, "Status: %s\n", now.Format("02/01 – 15:04"))
	fmt.Fprintf(&b, "Next status: %s\n\n", now.Add(time.Hour).Format("02/01 – 15:04"))

	for _, group := range views {
		fmt.Fprintf(&b, "🔹 %s", group.GroupID)
		if group.RollbackActive {
			b.WriteString(" (Rollback active)")
		}
		b.WriteString("\n")

		wrote := false
		for _, av := range group.Activities {
			if av.Status != tracking.StatusCompleted {
				continue
			}
			wrote = true
			fmt.Fprintf(&b, "%s %s", statusEmoji[av.Status], av.Activity.Title)
			if av.Control != nil && av.Control.RealStart != nil {
				if av.Control.RealEnd != nil {
					fmt.Fprintf(&b, " (%s – %s)", av.Control.RealStart.Format("15:04"), av.Control.RealEnd.Format("15:04"))
				} else {
					fmt.Fprintf(&b, " (%s)", av.Control.RealStart.Format("15:04"))
				}
			} else if av.Activity.PlannedEnd != nil {
				fmt.Fprintf(&b, " (window until %s)", av.Activity.PlannedEnd.Format("15:04"))
			}
			if av.Control != nil && strings.TrimSpace(av.Control.Notes) != "" {
				fmt.Fprintf(&b, "\n   %s", av.Control.Notes)
			}
			b.WriteString("\n")
		}
		if !wrote {
			b.WriteString("No completed activities.\n")
		}

		if group.RollbackActive {
			b.WriteString("⏳ Rollback: triggered, plan in progress\n\n")
		} else {
			b.WriteString("⬜ Rollback: not triggered\n\n")
		}
	}

	b.WriteString("📘 *Status legend*\n")
	b.WriteString("✅ Completed\n")
	b.WriteString("⏳ In execution on time\n")
	b.WriteString("🔴 In execution late\n")
	b.WriteString("⬜ Not started on time\n")
	b.WriteString("⛔ Not started late\n")
	b.WriteString("🔁 Rollback available\n")
	return b.String(), nil
}

func empty(views []GroupView) bool {
	for _, g := range views {
		if len(g.Activities) > 0 {
			return false
		}
	}
	return true
}
