// Package importer parses change-window workbooks into planned activities.
// Sheets are matched to known group names, columns are discovered by header
// text, and rows missing the minimum data (seq, title, a planned timestamp)
// are skipped with a log line rather than failing the whole import.
package importer

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"changewindow-tracker/internal/tracking"
)

// Row is one parsed workbook line. Planned fields feed the plan table; the
// real timestamps and status text, when present, feed the update state
// machine so a re-imported workbook carries execution progress too.
type Row struct {
	Seq            int
	GroupID        string
	Title          string
	Team           string
	PlannedStart   *time.Time
	PlannedEnd     *time.Time
	PlannedMinutes int
	IsRollback     bool
	RealStart      *time.Time
	RealEnd        *time.Time
	StatusText     string
	IsMilestone    bool
}

// Result is the outcome of parsing one workbook.
type Result struct {
	Rows    []Row
	Sheets  []string
	Skipped int
}

// Parser reads workbooks for a fixed set of group names.
type Parser struct {
	groups []string
	logger *zap.Logger
}

func NewParser(groups []string, logger *zap.Logger) *Parser {
	return &Parser{groups: groups, logger: logger}
}

// headerFolder strips the accents that appear in the workbook headers so
// "Início" and "Inicio" match the same column.
var headerFolder = strings.NewReplacer(
	"á", "a", "â", "a", "ã", "a", "à", "a",
	"é", "e", "ê", "e",
	"í", "i",
	"ó", "o", "ô", "o", "õ", "o",
	"ú", "u",
	"ç", "c",
)

func foldHeader(s string) string {
	return headerFolder.Replace(strings.ToLower(strings.TrimSpace(s)))
}

// columnMap holds the discovered column index per field, -1 when absent.
type columnMap struct {
	seq          int
	title        int
	team         int
	status       int
	duration     int
	plannedStart int
	plannedEnd   int
	realStart    int
	realEnd      int
}

func mapColumns(header []string) columnMap {
	cols := columnMap{
		seq: -1, title: -1, team: -1, status: -1, duration: -1,
		plannedStart: -1, plannedEnd: -1, realStart: -1, realEnd: -1,
	}

	var startCols, endCols []int
	for i, h := range header {
		f := foldHeader(h)
		switch {
		case cols.seq < 0 && strings.HasPrefix(f, "seq"):
			cols.seq = i
		case cols.title < 0 && (strings.HasPrefix(f, "atividade") || strings.HasPrefix(f, "activity") || strings.HasPrefix(f, "title")):
			cols.title = i
		case cols.status < 0 && strings.HasPrefix(f, "status"):
			cols.status = i
		case cols.team < 0 && (strings.HasPrefix(f, "grupo") || strings.HasPrefix(f, "executor") || strings.HasPrefix(f, "team")):
			cols.team = i
		case cols.duration < 0 && (strings.HasPrefix(f, "tempo") || strings.HasPrefix(f, "duration")):
			cols.duration = i
		case strings.Contains(f, "inicio") || strings.Contains(f, "start"):
			startCols = append(startCols, i)
		case strings.Contains(f, "fim") || strings.Contains(f, "end"):
			endCols = append(endCols, i)
		}
	}

	// Real columns are the ones whose header also says so; the first
	// remaining start/end column is the planned one.
	isReal := func(i int) bool {
		f := foldHeader(header[i])
		return strings.Contains(f, "real") || strings.Contains(f, "execucao")
	}
	for _, i := range startCols {
		if isReal(i) {
			if cols.realStart < 0 {
				cols.realStart = i
			}
		} else if cols.plannedStart < 0 {
			cols.plannedStart = i
		}
	}
	for _, i := range endCols {
		if isReal(i) {
			if cols.realEnd < 0 {
				cols.realEnd = i
			}
		} else if cols.plannedEnd < 0 {
			cols.plannedEnd = i
		}
	}
	return cols
}

// matchGroup maps a sheet name to a configured group, case-insensitively.
// Rollback sheets carry the group name plus a rollback marker.
func (p *Parser) matchGroup(sheetName string) (string, bool) {
	upper := strings.ToUpper(sheetName)
	for _, g := range p.groups {
		if strings.Contains(upper, strings.ToUpper(g)) {
			return g, true
		}
	}
	return "", false
}

func isRollbackSheet(sheetName string) bool {
	upper := strings.ToUpper(sheetName)
	return strings.Contains(upper, "ROLLBACK") || strings.Contains(upper, "RB")
}

var timestampLayouts = []string{
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"02/01/2006",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02",
	"01-02-06 15:04",
}

// parseTimestamp is deliberately tolerant: workbooks mix date formats, Excel
// serial numbers, and stray status words pasted into timestamp columns. A
// cell that cannot be read as a time is treated as absent.
func parseTimestamp(cell string) *time.Time {
	s := strings.TrimSpace(cell)
	if s == "" {
		return nil
	}
	if _, ok := tracking.NormalizeStatusText(s); ok {
		return nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	// Excel serial date: days since 1899-12-30.
	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial > 0 {
		epoch := time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)
		t := epoch.Add(time.Duration(serial * 24 * float64(time.Hour)))
		return &t
	}
	return nil
}

// parseDuration reads a planned duration cell as plain minutes or hh:mm[:ss].
func parseDuration(cell string) int {
	s := strings.TrimSpace(cell)
	if s == "" {
		return 0
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return int(v)
	}
	parts := strings.Split(s, ":")
	switch len(parts) {
	case 2, 3:
		hours, err1 := strconv.Atoi(parts[0])
		minutes, err2 := strconv.Atoi(parts[1])
		if err1 != nil || err2 != nil {
			return 0
		}
		return hours*60 + minutes
	}
	return 0
}

func cellAt(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// Parse reads every sheet that matches a configured group and extracts its
// activity rows.
func (p *Parser) Parse(r io.Reader) (*Result, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	result := &Result{}
	for _, sheetName := range f.GetSheetList() {
		groupID, ok := p.matchGroup(sheetName)
		if !ok {
			p.logger.Debug("Skipping sheet with no matching group",
				zap.String("sheet", sheetName),
			)
			continue
		}

		rows, err := f.GetRows(sheetName)
		if err != nil {
			return nil, fmt.Errorf("failed to read sheet %s: %w", sheetName, err)
		}
		if len(rows) < 2 {
			continue
		}

		result.Sheets = append(result.Sheets, sheetName)
		rollback := isRollbackSheet(sheetName)
		cols := mapColumns(rows[0])
		if cols.seq < 0 || (cols.plannedStart < 0 && cols.plannedEnd < 0) {
			p.logger.Warn("Sheet is missing required columns",
				zap.String("sheet", sheetName),
				zap.Strings("header", rows[0]),
			)
			continue
		}

		for i, row := range rows[1:] {
			parsed, ok := p.parseRow(row, cols, groupID, rollback)
			if !ok {
				result.Skipped++
				p.logger.Debug("Skipping workbook row",
					zap.String("sheet", sheetName),
					zap.Int("row", i+2),
				)
				continue
			}
			result.Rows = append(result.Rows, parsed)
		}
	}
	return result, nil
}

func (p *Parser) parseRow(row []string, cols columnMap, groupID string, rollback bool) (Row, bool) {
	seqCell := cellAt(row, cols.seq)
	if seqCell == "" {
		return Row{}, false
	}
	seqFloat, err := strconv.ParseFloat(seqCell, 64)
	if err != nil {
		return Row{}, false
	}
	seq := int(seqFloat)

	title := cellAt(row, cols.title)
	if title == "" {
		return Row{}, false
	}

	plannedStart := parseTimestamp(cellAt(row, cols.plannedStart))
	plannedEnd := parseTimestamp(cellAt(row, cols.plannedEnd))
	if plannedStart == nil && plannedEnd == nil {
		return Row{}, false
	}

	parsed := Row{
		Seq:            seq,
		GroupID:        groupID,
		Title:          title,
		Team:           cellAt(row, cols.team),
		PlannedStart:   plannedStart,
		PlannedEnd:     plannedEnd,
		PlannedMinutes: parseDuration(cellAt(row, cols.duration)),
		IsRollback:     rollback,
		RealStart:      parseTimestamp(cellAt(row, cols.realStart)),
		RealEnd:        parseTimestamp(cellAt(row, cols.realEnd)),
	}

	status := cellAt(row, cols.status)
	if status != "" && parseTimestamp(status) == nil && !strings.EqualFold(status, "nan") {
		parsed.StatusText = status
	}

	// A row whose status says N/A and whose team cell is empty is a
	// milestone marker, not an executable activity.
	if strings.EqualFold(status, "N/A") && parsed.Team == "" {
		parsed.IsMilestone = true
	}
	return parsed, true
}
