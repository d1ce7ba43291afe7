package importer

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

func buildWorkbook(t *testing.T, sheets map[string][][]string) *bytes.Reader {
	f := excelize.NewFile()
	defer f.Close()

	first := true
	for name, rows := range sheets {
		if first {
			require.NoError(t, f.SetSheetName("Sheet1", name))
			first = false
		} else {
			_, err := f.NewSheet(name)
			require.NoError(t, err)
		}
		for i, row := range rows {
			cell, err := excelize.CoordinatesToCellName(1, i+1)
			require.NoError(t, err)
			require.NoError(t, f.SetSheetRow(name, cell, &row))
		}
	}

	var buf bytes.Buffer
	_, err := f.WriteTo(&buf)
	require.NoError(t, err)
	return bytes.NewReader(buf.Bytes())
}

func newTestParser() *Parser {
	return NewParser([]string{"REDE", "OPENSHIFT", "NFS", "SI"}, zap.NewNop())
}

func TestParse_ReadsMatchingSheet(t *testing.T) {
	wb := buildWorkbook(t, map[string][][]string{
		"CRQ REDE 2": {
			{"Seq", "Atividade", "Grupo", "Início", "Fim", "Tempo", "Status", "Início Real", "Fim Real"},
			{"1", "Desativar alarmes", "NOC", "30/08/2026 22:00", "30/08/2026 22:30", "30", "", "", ""},
			{"2", "Janela de mudança", "", "30/08/2026 22:30", "31/08/2026 02:00", "03:30", "N/A", "", ""},
		},
	})

	result, err := newTestParser().Parse(wb)
	require.NoError(t, err)
	require.Len(t, result.Rows, 2)
	assert.Equal(t, []string{"CRQ REDE 2"}, result.Sheets)
	assert.Zero(t, result.Skipped)

	first := result.Rows[0]
	assert.Equal(t, 1, first.Seq)
	assert.Equal(t, "REDE", first.GroupID)
	assert.Equal(t, "Desativar alarmes", first.Title)
	assert.Equal(t, "NOC", first.Team)
	require.NotNil(t, first.PlannedStart)
	assert.Equal(t, 30, first.PlannedMinutes)
	assert.False(t, first.IsMilestone)
	assert.False(t, first.IsRollback)

	second := result.Rows[1]
	assert.Equal(t, 210, second.PlannedMinutes)
	assert.True(t, second.IsMilestone)
	assert.Equal(t, "N/A", second.StatusText)
}

func TestParse_IgnoresUnknownSheets(t *testing.T) {
	wb := buildWorkbook(t, map[string][][]string{
		"Resumo": {
			{"Seq", "Atividade", "Início", "Fim"},
			{"1", "Algo", "30/08/2026 22:00", "30/08/2026 23:00"},
		},
	})

	result, err := newTestParser().Parse(wb)
	require.NoError(t, err)
	assert.Empty(t, result.Rows)
	assert.Empty(t, result.Sheets)
}

func TestParse_RollbackSheet(t *testing.T) {
	wb := buildWorkbook(t, map[string][][]string{
		"CRQ NFS ROLLBACK 2": {
			{"Seq", "Atividade", "Início", "Fim"},
			{"10", "Reverter export", "31/08/2026 01:00", "31/08/2026 01:30"},
		},
	})

	result, err := newTestParser().Parse(wb)
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.True(t, result.Rows[0].IsRollback)
	assert.Equal(t, "NFS", result.Rows[0].GroupID)
}

func TestParse_SkipsInvalidRows(t *testing.T) {
	wb := buildWorkbook(t, map[string][][]string{
		"CRQ SI 2": {
			{"Seq", "Atividade", "Início", "Fim"},
			{"", "Sem seq", "30/08/2026 22:00", "30/08/2026 23:00"},
			{"abc", "Seq inválido", "30/08/2026 22:00", "30/08/2026 23:00"},
			{"3", "", "30/08/2026 22:00", "30/08/2026 23:00"},
			{"4", "Sem datas", "", ""},
			{"5", "Válida", "30/08/2026 22:00", ""},
		},
	})

	result, err := newTestParser().Parse(wb)
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, 5, result.Rows[0].Seq)
	assert.Equal(t, 4, result.Skipped)
}

func TestParse_StatusWordInTimestampColumn(t *testing.T) {
	wb := buildWorkbook(t, map[string][][]string{
		"CRQ OPENSHIFT 2": {
			{"Seq", "Atividade", "Início", "Fim", "Fim Real"},
			{"1", "Upgrade cluster", "30/08/2026 22:00", "30/08/2026 23:00", "Concluído"},
		},
	})

	result, err := newTestParser().Parse(wb)
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Nil(t, result.Rows[0].RealEnd)
}

func TestParse_RealColumnsDistinguishedFromPlanned(t *testing.T) {
	wb := buildWorkbook(t, map[string][][]string{
		"CRQ REDE 2": {
			{"Seq", "Atividade", "Início", "Fim", "Início Real da Execução", "Fim Real da Execução"},
			{"1", "Failover", "30/08/2026 22:00", "30/08/2026 23:00", "30/08/2026 22:05", "30/08/2026 22:50"},
		},
	})

	result, err := newTestParser().Parse(wb)
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)

	row := result.Rows[0]
	require.NotNil(t, row.PlannedStart)
	require.NotNil(t, row.RealStart)
	assert.Equal(t, 5, int(row.RealStart.Sub(*row.PlannedStart).Minutes()))
	require.NotNil(t, row.RealEnd)
}
