package workbook

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/timmy/outreach/internal/domain"
	"github.com/xuri/excelize/v2"
)

// Writeback column headers appended to the first sheet when missing.
const (
	ColumnStatus    = "EmailStatus"
	ColumnTimestamp = "EmailTimestamp"
	ColumnError     = "EmailError"
)

// Row status values written to ColumnStatus.
const (
	StatusAccepted  = "Accepted"
	StatusError     = "Error"
	StatusCancelled = "Cancelled"
	StatusDryRun    = "DryRun"
)

const (
	// TimestampLayout formats ColumnTimestamp values.
	TimestampLayout = "2006-01-02 15:04:05"

	// ContentType is the MIME type of materialized workbooks.
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	legacySentColumn = "emailsent"
)

var (
	// ErrEmptyWorkbook is returned when the first sheet has no header row.
	ErrEmptyWorkbook = errors.New("workbook: first sheet is empty")
	// ErrMissingColumns is returned when the recipient name or email column is absent.
	ErrMissingColumns = errors.New("workbook: required columns not found")
)

// Columns lists accepted header names per field, matched case-insensitively.
type Columns struct {
	Name     []string
	Email    []string
	RepName  []string
	RepEmail []string
}

// DefaultColumns matches the upload template headers.
func DefaultColumns() Columns {
	return Columns{
		Name:     []string{"client", "clientname", "name"},
		Email:    []string{"clientemailid", "clientemail", "email"},
		RepName:  []string{"sisrepresentativename", "representativename"},
		RepEmail: []string{"sisrepresentativeemail", "representativeemail"},
	}
}

// Options controls how an uploaded workbook becomes recipients.
type Options struct {
	Columns   Columns
	DefaultCc []string
	Location  *time.Location
	DryRun    bool
}

// Sheet is an uploaded workbook that records send outcomes in place.
// It implements dispatch.ResultSink.
type Sheet struct {
	mu   sync.Mutex
	file *excelize.File
	name string
	loc  *time.Location

	statusCol    int
	timestampCol int
	errorCol     int
	dryRun       bool
	err          error
}

// Open parses the first sheet of the workbook read from r. Rows without a
// name or email, and rows already marked as sent, are skipped.
func Open(r io.Reader, opts Options) (*Sheet, []domain.RecipientUnit, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read workbook: %w", err)
	}

	sheetName := f.GetSheetName(0)
	if sheetName == "" {
		f.Close()
		return nil, nil, ErrEmptyWorkbook
	}
	rows, err := f.GetRows(sheetName)
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("failed to read rows: %w", err)
	}
	if len(rows) == 0 {
		f.Close()
		return nil, nil, ErrEmptyWorkbook
	}

	cols := opts.Columns
	if len(cols.Name) == 0 && len(cols.Email) == 0 {
		cols = DefaultColumns()
	}

	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = strings.TrimSpace(h)
	}

	nameCol := findColumn(header, cols.Name...)
	emailCol := findColumn(header, cols.Email...)
	if nameCol < 0 || emailCol < 0 {
		f.Close()
		return nil, nil, fmt.Errorf("%w: need one of %v and one of %v", ErrMissingColumns, cols.Name, cols.Email)
	}
	repNameCol := findColumn(header, cols.RepName...)
	repEmailCol := findColumn(header, cols.RepEmail...)
	legacyCol := findColumn(header, legacySentColumn)

	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	s := &Sheet{
		file:   f,
		name:   sheetName,
		loc:    loc,
		dryRun: opts.DryRun,
	}
	s.statusCol = s.ensureColumn(&header, ColumnStatus)
	s.timestampCol = s.ensureColumn(&header, ColumnTimestamp)
	s.errorCol = s.ensureColumn(&header, ColumnError)
	if s.err != nil {
		f.Close()
		return nil, nil, s.err
	}

	var units []domain.RecipientUnit
	for r := 1; r < len(rows); r++ {
		row := rows[r]
		name := cell(row, nameCol)
		email := cell(row, emailCol)
		if name == "" || email == "" {
			continue
		}
		status := strings.ToLower(cell(row, s.statusCol))
		legacy := strings.ToLower(cell(row, legacyCol))
		if status == "accepted" || legacy == "yes" || legacy == "y" {
			continue
		}

		repName := cell(row, repNameCol)
		repEmail := cell(row, repEmailCol)
		units = append(units, domain.RecipientUnit{
			Name:  name,
			Email: email,
			Cc:    MergeAddresses(opts.DefaultCc, repEmail),
			Vars: map[string]string{
				"clientName":          name,
				"companyName":         name,
				"representativeName":  repName,
				"representativeEmail": repEmail,
			},
			Row: r,
		})
	}

	return s, units, nil
}

// MarkAccepted records a delivered message, or a skipped one in dry runs.
func (s *Sheet) MarkAccepted(unit domain.RecipientUnit, at time.Time) {
	status := StatusAccepted
	if s.dryRun {
		status = StatusDryRun
	}
	s.write(unit.Row, status, at, "")
}

// MarkError records a failed send with its message.
func (s *Sheet) MarkError(unit domain.RecipientUnit, at time.Time, message string) {
	s.write(unit.Row, StatusError, at, message)
}

// MarkCancelled records a recipient that was never attempted.
func (s *Sheet) MarkCancelled(unit domain.RecipientUnit, at time.Time) {
	s.write(unit.Row, StatusCancelled, at, "")
}

// Materialize serializes the workbook with all recorded outcomes.
func (s *Sheet) Materialize(jobID string) (domain.ResultArtifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return domain.ResultArtifact{}, s.err
	}
	buf, err := s.file.WriteToBuffer()
	if err != nil {
		return domain.ResultArtifact{}, fmt.Errorf("failed to write workbook: %w", err)
	}
	return domain.ResultArtifact{
		FileName:    ResultFileName(jobID),
		ContentType: ContentType,
		Data:        buf.Bytes(),
	}, nil
}

// Close releases the underlying workbook.
func (s *Sheet) Close() error {
	return s.file.Close()
}

// ResultFileName is the download name of a job's workbook.
func ResultFileName(jobID string) string {
	return fmt.Sprintf("updated-%s.xlsx", jobID)
}

func (s *Sheet) write(row int, status string, at time.Time, message string) {
	if row < 1 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.setCell(s.statusCol, row, status)
	s.setCell(s.timestampCol, row, at.In(s.loc).Format(TimestampLayout))
	s.setCell(s.errorCol, row, message)
}

// setCell writes a string at 0-based coordinates and keeps the first error.
func (s *Sheet) setCell(col, row int, value string) {
	if s.err != nil {
		return
	}
	ref, err := excelize.CoordinatesToCellName(col+1, row+1)
	if err == nil {
		err = s.file.SetCellStr(s.name, ref, value)
	}
	if err != nil {
		s.err = fmt.Errorf("failed to write cell: %w", err)
	}
}

func (s *Sheet) ensureColumn(header *[]string, name string) int {
	if idx := findColumn(*header, name); idx >= 0 {
		return idx
	}
	idx := len(*header)
	*header = append(*header, name)
	s.setCell(idx, 0, name)
	return idx
}

func findColumn(header []string, names ...string) int {
	for _, name := range names {
		for i, h := range header {
			if strings.EqualFold(h, name) {
				return i
			}
		}
	}
	return -1
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// MergeAddresses joins address lists, dropping blanks and case-insensitive
// duplicates while keeping first-seen order.
func MergeAddresses(base []string, extra ...string) []string {
	seen := make(map[string]struct{}, len(base)+len(extra))
	var out []string
	for _, list := range [][]string{base, extra} {
		for _, addr := range list {
			addr = strings.TrimSpace(addr)
			if addr == "" {
				continue
			}
			key := strings.ToLower(addr)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, addr)
		}
	}
	return out
}
