package audit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// Config holds configuration for the audit service.
type Config struct {
	// ExportDir receives one workbook per month.
	ExportDir string
	// RetentionDays is how long ended slots are kept. Default: 365.
	RetentionDays int
	// ExportOnStart runs an export as soon as the service starts.
	ExportOnStart bool
}

// Service handles monthly audit exports and retention cleanup.
type Service struct {
	config   Config
	exporter TableExporter
	writer   func() ExcelWriter
	sender   DocumentSender
	cleaner  DataCleaner
	logger   zerolog.Logger
	now      func() time.Time
}

// NewService creates an audit service. sender and cleaner may be nil.
func NewService(
	cfg Config,
	exporter TableExporter,
	writerFactory func() ExcelWriter,
	sender DocumentSender,
	cleaner DataCleaner,
	logger *zerolog.Logger,
) *Service {
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 365
	}
	if writerFactory == nil {
		writerFactory = NewExcelizeWriter
	}

	return &Service{
		config:   cfg,
		exporter: exporter,
		writer:   writerFactory,
		sender:   sender,
		cleaner:  cleaner,
		logger:   logger.With().Str("component", "audit").Logger(),
		now:      time.Now,
	}
}

// Start runs the export on the first of every month until ctx is done.
func (s *Service) Start(ctx context.Context) {
	s.logger.Info().
		Int("retention_days", s.config.RetentionDays).
		Str("export_dir", s.config.ExportDir).
		Msg("Audit service started")

	if s.config.ExportOnStart {
		s.RunExportAndCleanup(ctx)
	}

	nextRun := s.nextFirstOfMonth()
	timer := time.NewTimer(time.Until(nextRun))
	defer timer.Stop()
	s.logger.Info().Time("time", nextRun).Msg("Next audit scheduled")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Audit service stopped")
			return
		case <-timer.C:
			s.RunExportAndCleanup(ctx)

			nextRun = s.nextFirstOfMonth()
			timer.Reset(time.Until(nextRun))
			s.logger.Info().Time("time", nextRun).Msg("Next audit scheduled")
		}
	}
}

// First day of next month at 00:01.
func (s *Service) nextFirstOfMonth() time.Time {
	now := s.now()
	return time.Date(now.Year(), now.Month()+1, 1, 0, 1, 0, 0, now.Location())
}

// RunExportAndCleanup exports the previous month's report and then applies retention.
// Cleanup runs even when the export fails.
func (s *Service) RunExportAndCleanup(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Minute)
	defer cancel()

	if _, err := s.Export(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Failed to export audit data")
	}

	if _, err := s.Cleanup(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Failed to cleanup old data")
	}
}

// Export writes every audit table into one workbook named after the previous month,
// stores it under ExportDir and hands it to the sender if one is configured. It
// returns the path of the saved file.
func (s *Service) Export(ctx context.Context) (string, error) {
	if s.exporter == nil {
		return "", errors.New("exporter not configured")
	}

	tables, err := s.exporter.GetTableNames(ctx)
	if err != nil {
		return "", fmt.Errorf("get table names: %w", err)
	}
	if len(tables) == 0 {
		s.logger.Info().Msg("No tables to export")
		return "", nil
	}

	excel := s.writer()
	defer excel.Close() //nolint:errcheck

	for _, tableName := range tables {
		data, columns, err := s.exporter.GetTableData(ctx, tableName)
		if err != nil {
			s.logger.Error().Err(err).Str("table", tableName).Msg("Failed to get table data")
			continue
		}

		if err := excel.AddSheet(tableName); err != nil {
			return "", fmt.Errorf("add sheet %s: %w", tableName, err)
		}
		if err := excel.WriteHeader(columns); err != nil {
			return "", fmt.Errorf("write header %s: %w", tableName, err)
		}

		for _, row := range data {
			rowData := make([]any, len(columns))
			for i, col := range columns {
				rowData[i] = row[col]
			}
			if err := excel.WriteRow(rowData); err != nil {
				s.logger.Error().Err(err).Str("table", tableName).Msg("Failed to write row")
			}
		}

		s.logger.Debug().Str("table", tableName).Int("rows", len(data)).Msg("Exported table")
	}

	var buf bytes.Buffer
	if err := excel.Save(&buf); err != nil {
		return "", fmt.Errorf("save excel: %w", err)
	}

	filename := GenerateFilename(previousMonth(s.now()))
	path := filepath.Join(s.config.ExportDir, filename)
	if err := os.MkdirAll(s.config.ExportDir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	s.logger.Info().Str("path", path).Msg("Audit report saved")

	if s.sender != nil {
		caption := fmt.Sprintf("Monthly session report %s", previousMonth(s.now()).Format("January 2006"))
		if err := s.sender.SendDocument(ctx, filename, bytes.NewReader(buf.Bytes()), caption); err != nil {
			return path, fmt.Errorf("send document: %w", err)
		}
		s.logger.Info().Str("filename", filename).Msg("Audit report sent")
	}

	return path, nil
}

// Cleanup deletes slots that ended more than RetentionDays ago.
func (s *Service) Cleanup(ctx context.Context) (int64, error) {
	if s.cleaner == nil {
		return 0, nil
	}

	cutoff := s.now().AddDate(0, 0, -s.config.RetentionDays)
	deleted, err := s.cleaner.DeleteSlotsEndedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old slots: %w", err)
	}

	s.logger.Info().
		Int64("deleted_count", deleted).
		Int("retention_days", s.config.RetentionDays).
		Msg("Cleaned up old data")
	return deleted, nil
}
