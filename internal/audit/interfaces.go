package audit

import (
	"context"
	"fmt"
	"io"
	"time"
)

// TableExporter provides access to database tables for export.
type TableExporter interface {
	// GetTableNames returns list of table names to export.
	GetTableNames(ctx context.Context) ([]string, error)

	// GetTableData returns rows for a table as maps along with the column order.
	GetTableData(ctx context.Context, tableName string) ([]map[string]any, []string, error)
}

// ExcelWriter writes data to Excel format.
type ExcelWriter interface {
	AddSheet(name string) error
	WriteHeader(columns []string) error
	WriteRow(row []any) error
	Save(w io.Writer) error
	Close() error
}

// DocumentSender delivers audit reports to administrators.
type DocumentSender interface {
	SendDocument(ctx context.Context, filename string, data io.Reader, caption string) error
}

// DataCleaner removes slots that are past retention.
type DataCleaner interface {
	DeleteSlotsEndedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// GenerateFilename creates a filename like "sessions_2026_01.xlsx" for the month of t.
func GenerateFilename(t time.Time) string {
	return fmt.Sprintf("sessions_%d_%02d.xlsx", t.Year(), int(t.Month()))
}

// previousMonth returns a time inside the calendar month before now.
func previousMonth(now time.Time) time.Time {
	// AddDate(0, -1, 0) on March 31 lands on March 3, so step back from the 1st.
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	return first.AddDate(0, 0, -1)
}
