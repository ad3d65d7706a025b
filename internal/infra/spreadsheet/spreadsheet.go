// Package spreadsheet converts question sets to and from .xlsx workbooks.
// The correct option of each row is the option cell filled red.
package spreadsheet

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"live-quiz-service/internal/domain"
)

const (
	DefaultDuration = 30
	DefaultPoints   = 10

	sheetName = "Sheet1"
	redFill   = "FF0000"
)

// Headers are the template column titles, in order.
var Headers = []string{"ID", "Question", "Option A", "Option B", "Option C", "Option D", "Duration (seconds)", "Points"}

type columns struct {
	id, question, duration, points int
	options                        [4]int
}

// Parse reads the first sheet of an uploaded workbook. Blank rows are
// skipped; any other malformed row fails the whole upload.
func Parse(r io.Reader) ([]domain.Question, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, &domain.ValidationError{Reason: "not a readable xlsx workbook: " + err.Error()}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, &domain.ValidationError{Reason: "workbook has no sheets"}
	}
	sheet := sheets[0]
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, &domain.ValidationError{Reason: "header row missing"}
	}
	cols, err := mapHeader(rows[0])
	if err != nil {
		return nil, err
	}

	var questions []domain.Question
	for i, row := range rows[1:] {
		rowNum := i + 2
		if blank(row) {
			continue
		}
		q, err := parseRow(f, sheet, cols, row, rowNum)
		if err != nil {
			return nil, err
		}
		q.Position = len(questions)
		questions = append(questions, q)
	}
	if err := domain.ValidateQuestions(questions); err != nil {
		return nil, err
	}
	return questions, nil
}

func mapHeader(header []string) (columns, error) {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	find := func(names ...string) int {
		for _, n := range names {
			if i, ok := idx[n]; ok {
				return i
			}
		}
		return -1
	}

	c := columns{
		id:       find("id"),
		question: find("question"),
		duration: find("duration (seconds)", "duration"),
		points:   find("points"),
	}
	if c.question < 0 {
		return c, &domain.ValidationError{Row: 1, Field: "Question", Reason: "column missing"}
	}
	for i, label := range domain.OptionLabels {
		c.options[i] = find("option " + strings.ToLower(label))
		if c.options[i] < 0 {
			return c, &domain.ValidationError{Row: 1, Field: "Option " + label, Reason: "column missing"}
		}
	}
	return c, nil
}

func parseRow(f *excelize.File, sheet string, cols columns, row []string, rowNum int) (domain.Question, error) {
	q := domain.Question{
		ID:       cell(row, cols.id),
		Prompt:   cell(row, cols.question),
		Duration: DefaultDuration,
		Points:   DefaultPoints,
	}
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if q.Prompt == "" {
		return q, &domain.ValidationError{Row: rowNum, Field: "Question", Reason: "is empty"}
	}

	texts := make([]string, len(domain.OptionLabels))
	for i, label := range domain.OptionLabels {
		texts[i] = cell(row, cols.options[i])
		if texts[i] == "" {
			return q, &domain.ValidationError{Row: rowNum, Field: "Option " + label, Reason: "is empty"}
		}
	}
	q.Options = domain.NewOptions(texts[0], texts[1], texts[2], texts[3])

	var err error
	if q.Duration, err = intCell(row, cols.duration, DefaultDuration); err != nil || q.Duration <= 0 {
		return q, &domain.ValidationError{Row: rowNum, Field: "Duration", Reason: "must be a positive number of seconds"}
	}
	if q.Points, err = intCell(row, cols.points, DefaultPoints); err != nil || q.Points < 0 {
		return q, &domain.ValidationError{Row: rowNum, Field: "Points", Reason: "must be a non-negative number"}
	}

	for i, label := range domain.OptionLabels {
		red, err := isRed(f, sheet, cols.options[i], rowNum)
		if err != nil {
			return q, fmt.Errorf("row %d: %w", rowNum, err)
		}
		if !red {
			continue
		}
		if q.CorrectOption != "" {
			return q, &domain.ValidationError{Row: rowNum, Field: "correct_answer", Reason: "more than one option is marked red"}
		}
		q.CorrectOption = label
	}
	if q.CorrectOption == "" {
		return q, &domain.ValidationError{Row: rowNum, Field: "correct_answer", Reason: "no option is marked red"}
	}
	return q, nil
}

func isRed(f *excelize.File, sheet string, col, rowNum int) (bool, error) {
	name, err := excelize.CoordinatesToCellName(col+1, rowNum)
	if err != nil {
		return false, err
	}
	styleID, err := f.GetCellStyle(sheet, name)
	if err != nil || styleID == 0 {
		return false, err
	}
	style, err := f.GetStyle(styleID)
	if err != nil {
		return false, err
	}
	for _, c := range style.Fill.Color {
		if normalizeColor(c) == redFill {
			return true, nil
		}
	}
	return false, nil
}

// normalizeColor reduces ARGB or #RGB notations to six upper-case hex digits.
func normalizeColor(c string) string {
	c = strings.ToUpper(strings.TrimPrefix(strings.TrimSpace(c), "#"))
	if len(c) > 6 {
		c = c[len(c)-6:]
	}
	return c
}

func cell(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}

func intCell(row []string, col, fallback int) (int, error) {
	raw := cell(row, col)
	if raw == "" {
		return fallback, nil
	}
	if n, err := strconv.Atoi(raw); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, err
	}
	return int(f), nil
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// Template renders questions into a workbook that Parse accepts, marking
// each correct option red.
func Template(questions []domain.Question) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	for i, h := range Headers {
		name, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheetName, name, h); err != nil {
			return nil, err
		}
	}
	red, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{redFill}},
	})
	if err != nil {
		return nil, err
	}

	for i, q := range questions {
		rowNum := i + 2
		values := []interface{}{q.ID, q.Prompt}
		for _, opt := range q.Options {
			values = append(values, opt.Text)
		}
		values = append(values, q.Duration, q.Points)
		for col, v := range values {
			name, _ := excelize.CoordinatesToCellName(col+1, rowNum)
			if err := f.SetCellValue(sheetName, name, v); err != nil {
				return nil, err
			}
		}
		for j, label := range domain.OptionLabels {
			if label != q.CorrectOption {
				continue
			}
			name, _ := excelize.CoordinatesToCellName(3+j, rowNum)
			if err := f.SetCellStyle(sheetName, name, name, red); err != nil {
				return nil, err
			}
		}
	}
	return f.WriteToBuffer()
}
