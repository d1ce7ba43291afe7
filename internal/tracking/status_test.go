package tracking

import (
	"testing"
	"time"

	"changewindow-tracker/internal/domain"

	"github.com/stretchr/testify/assert"
)

func timePtr(t time.Time) *time.Time { return &t }
func intPtr(i int) *int              { return &i }

func TestDeriveStatus_MilestoneAlwaysNA(t *testing.T) {
	now := time.Now()

	// Milestone wins regardless of every other field.
	controls := []domain.ActivityControl{
		{IsMilestone: true},
		{IsMilestone: true, RealStart: timePtr(now)},
		{IsMilestone: true, RealStart: timePtr(now), RealEnd: timePtr(now)},
		{IsMilestone: true, DelayMinutes: intPtr(120)},
	}
	for _, c := range controls {
		assert.Equal(t, StatusNA, DeriveStatus(c))
	}
}

func TestDeriveStatus_RealEndMeansCompleted(t *testing.T) {
	now := time.Now()

	assert.Equal(t, StatusCompleted, DeriveStatus(domain.ActivityControl{
		RealEnd: timePtr(now),
	}))
	// Even a huge delay does not matter once the activity finished.
	assert.Equal(t, StatusCompleted, DeriveStatus(domain.ActivityControl{
		RealStart:    timePtr(now.Add(-time.Hour)),
		RealEnd:      timePtr(now),
		DelayMinutes: intPtr(500),
	}))
}

func TestDeriveStatus_InExecution(t *testing.T) {
	start := time.Now().Add(-30 * time.Minute)

	assert.Equal(t, StatusInExecutionOnTime, DeriveStatus(domain.ActivityControl{
		RealStart: timePtr(start),
	}))
	assert.Equal(t, StatusInExecutionOnTime, DeriveStatus(domain.ActivityControl{
		RealStart:    timePtr(start),
		DelayMinutes: intPtr(0),
	}))
	// Negative delay (early) still counts as on time; only > 0 is late.
	assert.Equal(t, StatusInExecutionOnTime, DeriveStatus(domain.ActivityControl{
		RealStart:    timePtr(start),
		DelayMinutes: intPtr(-3),
	}))
	assert.Equal(t, StatusInExecutionLate, DeriveStatus(domain.ActivityControl{
		RealStart:    timePtr(start),
		DelayMinutes: intPtr(1),
	}))
}

func TestDeriveStatus_NotStarted(t *testing.T) {
	assert.Equal(t, StatusNotStartedOnTime, DeriveStatus(domain.ActivityControl{}))
	assert.Equal(t, StatusNotStartedOnTime, DeriveStatus(domain.ActivityControl{
		DelayMinutes: intPtr(0),
	}))
	assert.Equal(t, StatusNotStartedLate, DeriveStatus(domain.ActivityControl{
		DelayMinutes: intPtr(5),
	}))
}

func TestNormalizeStatusText_Portuguese(t *testing.T) {
	cases := map[string]Status{
		"Concluído":                 StatusCompleted,
		"concluido":                 StatusCompleted,
		"CONCLUÍDO COM RESSALVAS":   StatusCompleted,
		"Em execução no prazo":      StatusInExecutionOnTime,
		"em execucao":               StatusInExecutionOnTime,
		"Em execução fora do prazo": StatusInExecutionLate,
		"A Iniciar no prazo":        StatusNotStartedOnTime,
		"A Iniciar fora do prazo":   StatusNotStartedLate,
	}
	for text, want := range cases {
		got, ok := NormalizeStatusText(text)
		assert.True(t, ok, "expected %q to normalize", text)
		assert.Equal(t, want, got, "text %q", text)
	}
}

func TestNormalizeStatusText_English(t *testing.T) {
	cases := map[string]Status{
		"Completed":         StatusCompleted,
		"done":              StatusCompleted,
		"In execution late": StatusInExecutionLate,
		"in progress":       StatusInExecutionOnTime,
		"Not started late":  StatusNotStartedLate,
		"not started":       StatusNotStartedOnTime,
	}
	for text, want := range cases {
		got, ok := NormalizeStatusText(text)
		assert.True(t, ok, "expected %q to normalize", text)
		assert.Equal(t, want, got, "text %q", text)
	}
}

func TestNormalizeStatusText_CompletedBeatsExecution(t *testing.T) {
	// Precedence: a string mentioning both categories resolves to Completed.
	got, ok := NormalizeStatusText("concluído após em execução fora do prazo")
	assert.True(t, ok)
	assert.Equal(t, StatusCompleted, got)
}

func TestNormalizeStatusText_Unrecognized(t *testing.T) {
	for _, text := range []string{"", "   ", "Planejado", "Adiantado", "waiting for approval"} {
		_, ok := NormalizeStatusText(text)
		assert.False(t, ok, "expected %q to be unrecognized", text)
	}
}
