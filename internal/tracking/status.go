// Package tracking holds the pure execution-tracking rules: status
// derivation, delay computation, the update state machine and the rollback
// visibility partition. Nothing in this package performs I/O; all inputs
// arrive as values and the current time is always injected.
package tracking

import (
	"strings"

	"changewindow-tracker/internal/domain"
)

// Status is the derived lifecycle label of an activity. The six values form a
// closed set; every combination of control fields maps to exactly one of them.
type Status string

const (
	StatusNA                Status = "N/A"
	StatusCompleted         Status = "Completed"
	StatusInExecutionOnTime Status = "In execution on time"
	StatusInExecutionLate   Status = "In execution late"
	StatusNotStartedOnTime  Status = "Not started on time"
	StatusNotStartedLate    Status = "Not started late"
)

// DeriveStatus maps an activity's control fields to its status label.
// Branch order matters: milestone wins over everything, a set RealEnd wins
// over a set RealStart. A nil DelayMinutes counts as zero, not as missing
// data. The function is total; there is no error path.
func DeriveStatus(c domain.ActivityControl) Status {
	if c.IsMilestone {
		return StatusNA
	}
	if c.RealEnd != nil {
		return StatusCompleted
	}

	late := c.DelayMinutes != nil && *c.DelayMinutes > 0

	if c.RealStart != nil {
		if late {
			return StatusInExecutionLate
		}
		return StatusInExecutionOnTime
	}
	if late {
		return StatusNotStartedLate
	}
	return StatusNotStartedOnTime
}

// IsInExecution reports whether s is one of the two "in execution" labels.
func (s Status) IsInExecution() bool {
	return s == StatusInExecutionOnTime || s == StatusInExecutionLate
}

// IsNotStarted reports whether s is one of the two "not started" labels.
func (s Status) IsNotStarted() bool {
	return s == StatusNotStartedOnTime || s == StatusNotStartedLate
}

// statusFolder strips the accents that show up in the Portuguese status
// vocabulary the spreadsheets use ("Concluído", "Em execução") so substring
// matching can be accent-insensitive without pulling in a Unicode folding
// table.
var statusFolder = strings.NewReplacer(
	"á", "a", "à", "a", "ã", "a", "â", "a",
	"é", "e", "ê", "e",
	"í", "i",
	"ó", "o", "õ", "o", "ô", "o",
	"ú", "u", "ü", "u",
	"ç", "c",
)

func foldStatusText(s string) string {
	return statusFolder.Replace(strings.ToLower(strings.TrimSpace(s)))
}

// NormalizeStatusText maps a free-text status string (typically from a
// spreadsheet sync) onto one of the canonical labels. Matching is substring
// based, case- and accent-insensitive, and understands both the English
// labels and the Portuguese vocabulary of the source spreadsheets.
//
// Precedence follows the category order of DeriveStatus: completed beats
// in-execution beats not-started, and within a category the late variant is
// picked when a lateness marker is present. Strings that match no category
// return ok=false and are ignored by the update state machine.
func NormalizeStatusText(text string) (Status, bool) {
	folded := foldStatusText(text)
	if folded == "" {
		return "", false
	}

	late := strings.Contains(folded, "fora do prazo") ||
		strings.Contains(folded, "fora de prazo") ||
		strings.Contains(folded, "late") ||
		strings.Contains(folded, "atrasad")

	switch {
	case strings.Contains(folded, "concluid"),
		strings.Contains(folded, "completed"),
		strings.Contains(folded, "finalizad"),
		folded == "done":
		return StatusCompleted, true
	case strings.Contains(folded, "em execucao"),
		strings.Contains(folded, "in execution"),
		strings.Contains(folded, "in progress"),
		strings.Contains(folded, "executando"):
		if late {
			return StatusInExecutionLate, true
		}
		return StatusInExecutionOnTime, true
	case strings.Contains(folded, "a iniciar"),
		strings.Contains(folded, "not started"),
		strings.Contains(folded, "nao iniciad"):
		if late {
			return StatusNotStartedLate, true
		}
		return StatusNotStartedOnTime, true
	}

	return "", false
}
