package service

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/internal/dto"
	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/internal/models"
	appErrors "github.com/michaelkatsweb/Heronix-Scheduler-sub010/pkg/errors"
	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/pkg/export"
	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/pkg/storage"
)

type reportHealthSource interface {
	LoadSchedule(ctx context.Context, id string) (*models.Schedule, error)
	CalculateHealthMetrics(ctx context.Context, schedule *models.Schedule) (*models.HealthMetrics, error)
}

type reportMatrixSource interface {
	Entries(ctx context.Context, year int) ([]models.ConflictMatrixEntry, error)
}

type fileStorage interface {
	Save(name string, data []byte) (string, error)
	Load(name string) ([]byte, error)
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(rows interface{}) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

// ReportServiceConfig governs download links and cleanup.
type ReportServiceConfig struct {
	APIPrefix       string
	ResultTTL       time.Duration
	CleanupInterval time.Duration
}

// ReportDownload is a resolved report file.
type ReportDownload struct {
	Filename    string
	ContentType string
	Data        []byte
	ExpiresAt   time.Time
}

// ReportService renders health PDFs and heatmap CSVs behind signed download tokens.
type ReportService struct {
	health  reportHealthSource
	matrix  reportMatrixSource
	storage fileStorage
	signer  *storage.SignedURLSigner
	csv     csvRenderer
	pdf     pdfRenderer
	cfg     ReportServiceConfig
	logger  *zap.Logger
	now     func() time.Time
}

type heatmapRow struct {
	Course1ID          string  `csv:"course1_id"`
	Course1Name        string  `csv:"course1_name"`
	Course2ID          string  `csv:"course2_id"`
	Course2Name        string  `csv:"course2_name"`
	ConflictCount      int     `csv:"conflict_count"`
	ConflictPercentage float64 `csv:"conflict_percentage"`
	SingletonConflict  bool    `csv:"singleton_conflict"`
}

const (
	contentTypePDF = "application/pdf"
	contentTypeCSV = "text/csv"
)

// NewReportService constructs the report service.
func NewReportService(health reportHealthSource, matrix reportMatrixSource, files fileStorage, signer *storage.SignedURLSigner, csv csvRenderer, pdf pdfRenderer, cfg ReportServiceConfig, logger *zap.Logger) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if csv == nil {
		csv = export.NewCSVExporter(',')
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ReportService{
		health:  health,
		matrix:  matrix,
		storage: files,
		signer:  signer,
		csv:     csv,
		pdf:     pdf,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// HealthReport renders a schedule's health metrics as a PDF.
func (s *ReportService) HealthReport(ctx context.Context, scheduleID string) (*dto.ReportResponse, error) {
	schedule, err := s.health.LoadSchedule(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	metrics, err := s.health.CalculateHealthMetrics(ctx, schedule)
	if err != nil {
		return nil, err
	}

	dataset := export.Dataset{
		Title: fmt.Sprintf("Schedule Health Report: %s", schedule.Name),
		Summary: [][2]string{
			{"Schedule Year", fmt.Sprintf("%d", schedule.ScheduleYear)},
			{"Overall Score", fmt.Sprintf("%.1f (%s)", metrics.OverallScore, HealthGrade(metrics.OverallScore))},
			{"Total Conflicts", fmt.Sprintf("%d", metrics.TotalConflicts)},
			{"Calculated At", metrics.CalculatedAt.Format(time.RFC3339)},
		},
		Headers: []string{"Component", "Score"},
		Rows: [][]string{
			{"Conflicts", fmt.Sprintf("%.1f", metrics.ConflictScore)},
			{"Balance", fmt.Sprintf("%.1f", metrics.BalanceScore)},
			{"Utilization", fmt.Sprintf("%.1f", metrics.UtilizationScore)},
			{"Compliance", fmt.Sprintf("%.1f", metrics.ComplianceScore)},
			{"Coverage", fmt.Sprintf("%.1f", metrics.CoverageScore)},
		},
	}
	for _, issue := range metrics.CriticalIssues {
		dataset.Rows = append(dataset.Rows, []string{"Critical", issue})
	}
	for _, rec := range metrics.Recommendations {
		dataset.Rows = append(dataset.Rows, []string{"Recommendation", rec})
	}

	payload, err := s.pdf.Render(dataset)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to render health report")
	}
	return s.store(schedule.ID, fmt.Sprintf("health_%s", sanitizeFilename(schedule.Name)), "pdf", contentTypePDF, payload)
}

// HeatmapCSV exports a year's conflict matrix rows.
func (s *ReportService) HeatmapCSV(ctx context.Context, year int) (*dto.ReportResponse, error) {
	entries, err := s.matrix.Entries(ctx, year)
	if err != nil {
		return nil, err
	}
	rows := make([]heatmapRow, 0, len(entries))
	for _, entry := range entries {
		rows = append(rows, heatmapRow{
			Course1ID:          entry.Course1ID,
			Course1Name:        entry.Course1Name,
			Course2ID:          entry.Course2ID,
			Course2Name:        entry.Course2Name,
			ConflictCount:      entry.ConflictCount,
			ConflictPercentage: entry.ConflictPercentage,
			SingletonConflict:  entry.IsSingletonConflict,
		})
	}
	payload, err := s.csv.Render(rows)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to render heatmap export")
	}
	return s.store(fmt.Sprintf("heatmap-%d", year), fmt.Sprintf("conflict_heatmap_%d", year), "csv", contentTypeCSV, payload)
}

func (s *ReportService) store(subject, base, ext, contentType string, payload []byte) (*dto.ReportResponse, error) {
	filename := fmt.Sprintf("%s_%s.%s", base, s.now().UTC().Format("20060102_150405"), ext)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to store report")
	}
	token, expiresAt, err := s.signer.Generate(subject, relPath)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to sign report link")
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	return &dto.ReportResponse{
		FileName:    filepath.Base(relPath),
		ContentType: contentType,
		Token:       token,
		URL:         fmt.Sprintf("%s/reports/%s", prefix, token),
		ExpiresAt:   expiresAt,
	}, nil
}

// Download validates token and loads the stored report.
func (s *ReportService) Download(token string) (*ReportDownload, error) {
	_, relPath, expiresAt, err := s.signer.Parse(token)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	data, err := s.storage.Load(relPath)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "report file not found")
	}
	contentType := contentTypeCSV
	if strings.HasSuffix(relPath, ".pdf") {
		contentType = contentTypePDF
	}
	return &ReportDownload{
		Filename:    filepath.Base(relPath),
		ContentType: contentType,
		Data:        data,
		ExpiresAt:   expiresAt,
	}, nil
}

// StartCleanup purges expired report files periodically until ctx ends.
func (s *ReportService) StartCleanup(ctx context.Context) {
	if s.cfg.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, err := s.storage.CleanupOlderThan(s.cfg.ResultTTL)
				if err != nil {
					s.logger.Warn("report cleanup failed", zap.Error(err))
					continue
				}
				if len(removed) > 0 {
					s.logger.Info("expired reports removed", zap.Int("files", len(removed)))
				}
			}
		}
	}()
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}
