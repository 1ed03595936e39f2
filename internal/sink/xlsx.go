package sink

import (
	"fmt"
	"os"
	"sync"

	"github.com/xuri/excelize/v2"

	"github.com/auto-tuner-laser/tuning-core/pkg/models"
)

// DefaultSheet is the worksheet rows are appended to when none is
// configured, matching the capture-log workbook
const DefaultSheet = "Microscope_Captures"

// paramColumns are the engraving parameter columns in workbook order.
// Parameters outside this set are folded into the notes column.
var paramColumns = []string{
	"feedRate_mm_min",
	"minPower_pct",
	"maxPower_pct",
	"quality",
	"whiteClip",
	"contrast",
	"brightness",
}

// headerColumns is the full workbook header
var headerColumns = buildHeader()

func buildHeader() []string {
	header := []string{"capture_id", "timestamp", "job_id", "material", "image_path"}
	header = append(header, paramColumns...)
	return append(header,
		"manual_score",
		"contrast_score",
		"sharpness_score",
		"histogram_spread",
		"histogram_similarity",
		"composite_score",
		"objective",
		"session_id",
		"iteration",
		"notes",
	)
}

const (
	manualScoreColumn = 13 // 1-based, after the five id columns and seven params
	timestampLayout   = "2006-01-02 15:04:05"
)

// XLSXSink appends trial rows to an xlsx workbook. The workbook is saved
// after every mutation so a crashed daemon loses at most the row in
// flight.
type XLSXSink struct {
	mu      sync.Mutex
	file    *excelize.File
	path    string
	sheet   string
	nextRow int
	rowByID map[string]int
}

// NewXLSXSink opens or creates the workbook at path. An existing workbook
// is resumed: new rows append after the rows already present.
func NewXLSXSink(path, sheet string) (*XLSXSink, error) {
	if sheet == "" {
		sheet = DefaultSheet
	}
	s := &XLSXSink{path: path, sheet: sheet, rowByID: make(map[string]int)}

	if _, err := os.Stat(path); err == nil {
		if err := s.open(); err != nil {
			return nil, err
		}
		return s, nil
	}
	if err := s.create(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *XLSXSink) create() error {
	f := excelize.NewFile()
	if _, err := f.NewSheet(s.sheet); err != nil {
		return fmt.Errorf("failed to create sheet %s: %w", s.sheet, err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("failed to remove default sheet: %w", err)
	}

	header := make([]interface{}, len(headerColumns))
	for i, h := range headerColumns {
		header[i] = h
	}
	if err := f.SetSheetRow(s.sheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if err := f.SaveAs(s.path); err != nil {
		return fmt.Errorf("failed to save workbook %s: %w", s.path, err)
	}

	s.file = f
	s.nextRow = 2
	return nil
}

func (s *XLSXSink) open() error {
	f, err := excelize.OpenFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to open workbook %s: %w", s.path, err)
	}

	rows, err := f.GetRows(s.sheet)
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to read sheet %s: %w", s.sheet, err)
	}
	for i, row := range rows {
		if i == 0 || len(row) == 0 {
			continue
		}
		s.rowByID[row[0]] = i + 1
	}

	s.file = f
	s.nextRow = len(rows) + 1
	if s.nextRow < 2 {
		s.nextRow = 2
	}
	return nil
}

// Append writes the record as the next workbook row and saves
func (s *XLSXSink) Append(record models.TrialRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cell, err := excelize.CoordinatesToCellName(1, s.nextRow)
	if err != nil {
		return fmt.Errorf("failed to address row %d: %w", s.nextRow, err)
	}

	row := recordRow(record)
	if err := s.file.SetSheetRow(s.sheet, cell, &row); err != nil {
		return fmt.Errorf("failed to write row for capture %s: %w", record.CaptureID, err)
	}
	if err := s.file.SaveAs(s.path); err != nil {
		return fmt.Errorf("failed to save workbook %s: %w", s.path, err)
	}

	s.rowByID[record.CaptureID] = s.nextRow
	s.nextRow++
	return nil
}

// UpdateManualScore fills the manual-score cell of an existing row
func (s *XLSXSink) UpdateManualScore(captureID string, rating int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rowNum, ok := s.rowByID[captureID]
	if !ok {
		return &CaptureNotFoundError{CaptureID: captureID}
	}

	cell, err := excelize.CoordinatesToCellName(manualScoreColumn, rowNum)
	if err != nil {
		return fmt.Errorf("failed to address manual-score cell: %w", err)
	}
	if err := s.file.SetCellValue(s.sheet, cell, rating); err != nil {
		return fmt.Errorf("failed to update manual score for capture %s: %w", captureID, err)
	}
	if err := s.file.SaveAs(s.path); err != nil {
		return fmt.Errorf("failed to save workbook %s: %w", s.path, err)
	}
	return nil
}

// Close releases the workbook handle
func (s *XLSXSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

// recordRow flattens a trial record into the workbook column order
func recordRow(record models.TrialRecord) []interface{} {
	row := make([]interface{}, 0, len(headerColumns))
	row = append(row,
		record.CaptureID,
		record.Timestamp.Format(timestampLayout),
		record.JobID,
		record.Material,
		record.ImagePath,
	)

	seen := make(map[string]bool, len(paramColumns))
	for _, name := range paramColumns {
		seen[name] = true
		if v, ok := record.Params[name]; ok {
			row = append(row, v)
		} else {
			row = append(row, "")
		}
	}

	if record.Score.HumanRating != nil {
		row = append(row, *record.Score.HumanRating)
	} else {
		row = append(row, "")
	}

	similarity := interface{}("")
	if record.Score.Metrics.HistogramSimilarity != nil {
		similarity = *record.Score.Metrics.HistogramSimilarity
	}
	row = append(row,
		record.Score.Metrics.Contrast,
		record.Score.Metrics.Sharpness,
		record.Score.Metrics.HistogramSpread,
		similarity,
		record.Score.Metrics.Composite,
		record.Score.Objective,
		record.SessionID,
		record.Iteration,
		notesWithExtraParams(record, seen),
	)
	return row
}

// notesWithExtraParams appends parameters without a dedicated column to
// the notes field so no trial input is lost
func notesWithExtraParams(record models.TrialRecord, seen map[string]bool) string {
	notes := record.Notes
	for _, name := range record.Params.Names() {
		if seen[name] {
			continue
		}
		if notes != "" {
			notes += "; "
		}
		notes += fmt.Sprintf("%s=%v", name, record.Params[name])
	}
	return notes
}
