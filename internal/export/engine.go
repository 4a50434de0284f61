// Package export renders attendance lists joined with member names as CSV,
// XLSX or PDF.
package export

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"scan-licences/internal/model"
	"scan-licences/internal/season"
)

type Format string

const (
	CSV  Format = "csv"
	XLSX Format = "xlsx"
	PDF  Format = "pdf"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case CSV, XLSX, PDF:
		return f, nil
	case "":
		return CSV, nil
	case "xls", "excel":
		return XLSX, nil
	}
	return "", fmt.Errorf("export format %q: %w", s, model.ErrInvalidInput)
}

func (f Format) ContentType() string {
	switch f {
	case XLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case PDF:
		return "application/pdf"
	}
	return "text/csv; charset=utf-8"
}

// Selector picks the entries to export: one session, one season, or
// everything when both are zero.
type Selector struct {
	SessionID int64
	Season    string
}

type EntrySource interface {
	ForSession(ctx context.Context, sessionID int64) ([]model.Entry, error)
	InRange(ctx context.Context, start, end time.Time) ([]model.Entry, error)
	All(ctx context.Context) ([]model.Entry, error)
}

type MemberSource interface {
	ByLicences(ctx context.Context, licences []string) (map[string]model.Member, error)
}

type SessionSource interface {
	Get(ctx context.Context, id int64) (*model.Session, error)
}

// File is a rendered export.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

type Engine struct {
	entries  EntrySource
	members  MemberSource
	sessions SessionSource
	cal      *season.Calendar
}

func NewEngine(entries EntrySource, members MemberSource, sessions SessionSource, cal *season.Calendar) *Engine {
	return &Engine{entries: entries, members: members, sessions: sessions, cal: cal}
}

// Rows returns one row per entry in sel, oldest first, and the name the
// export file is known by.
func (e *Engine) Rows(ctx context.Context, sel Selector) ([]model.ExportRow, string, error) {
	var (
		entries []model.Entry
		name    string
		err     error
	)
	switch {
	case sel.SessionID > 0:
		sess, gerr := e.sessions.Get(ctx, sel.SessionID)
		if gerr != nil {
			return nil, "", gerr
		}
		name = sess.Date
		entries, err = e.entries.ForSession(ctx, sel.SessionID)
	case sel.Season != "":
		r, rerr := e.cal.Range(sel.Season)
		if rerr != nil {
			return nil, "", fmt.Errorf("%v: %w", rerr, model.ErrInvalidInput)
		}
		start, end, _ := season.ParseLabel(sel.Season)
		name = fmt.Sprintf("%d-%d", start, end)
		entries, err = e.entries.InRange(ctx, r.Start, r.End.Add(time.Second))
	default:
		name = "tout"
		entries, err = e.entries.All(ctx)
	}
	if err != nil {
		return nil, "", err
	}

	members, err := e.members.ByLicences(ctx, model.DistinctLicences(entries))
	if err != nil {
		return nil, "", err
	}
	return Join(entries, members, e.cal), name, nil
}

// Export renders sel in format f.
func (e *Engine) Export(ctx context.Context, sel Selector, f Format) (*File, error) {
	rows, name, err := e.Rows(ctx, sel)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	switch f {
	case XLSX:
		err = WriteXLSX(&buf, rows)
	case PDF:
		err = WritePDF(&buf, rows, "Enregistrements "+name)
	default:
		f = CSV
		err = WriteCSV(&buf, rows)
	}
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", f, err)
	}
	return &File{
		Name:        fmt.Sprintf("presences_%s.%s", name, f),
		ContentType: f.ContentType(),
		Data:        buf.Bytes(),
	}, nil
}

// Join left-joins entries to members. Every entry yields exactly one row;
// an unknown member leaves the name columns empty.
func Join(entries []model.Entry, members map[string]model.Member, cal *season.Calendar) []model.ExportRow {
	rows := make([]model.ExportRow, len(entries))
	for i, en := range entries {
		m := members[en.LicenceNo]
		rows[i] = model.ExportRow{
			LastName:   model.Deref(m.LastName),
			FirstName:  model.Deref(m.FirstName),
			LicenceNo:  en.LicenceNo,
			RecordedAt: cal.FormatLocal(en.CreatedAt),
		}
	}
	return rows
}

var header = []string{"Nom", "Prénom", "Licence", "Date/Heure"}

func values(r model.ExportRow) []string {
	return []string{r.LastName, r.FirstName, r.LicenceNo, r.RecordedAt}
}
