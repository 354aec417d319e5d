package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/svnapro/campus-api/internal/models"
	"github.com/svnapro/campus-api/pkg/export"
)

var migrationHistoryHeaders = []string{
	"Migration ID", "Type", "Status", "From Year", "To Year",
	"Students Promoted", "Sections Archived", "Subjects Archived",
	"Assignments Cleared", "Triggered By", "Completed At",
}

var promotionLedgerHeaders = []string{
	"Request ID", "Student ID", "From Year", "To Year",
	"Fee Paid", "Status", "Requested At", "Reviewed By", "Promoted At",
}

type exportMigrationLister interface {
	List(ctx context.Context, filter models.MigrationFilter) ([]models.Migration, int, error)
}

type exportPromotionLister interface {
	List(ctx context.Context, filter models.PromotionFilter) ([]models.PromotionRequest, int, error)
}

// ExportService assembles datasets for report jobs and renders them with the
// format-specific exporters.
type ExportService struct {
	migrations exportMigrationLister
	promotions exportPromotionLister
	csv        *export.CSVExporter
	pdf        *export.PDFExporter
}

// NewExportService constructs the service.
func NewExportService(migrations exportMigrationLister, promotions exportPromotionLister) *ExportService {
	return &ExportService{
		migrations: migrations,
		promotions: promotions,
		csv:        export.NewCSVExporter(),
		pdf:        export.NewPDFExporter(),
	}
}

// Generate builds and renders the report described by the job, returning the
// file bytes and a suggested filename.
func (s *ExportService) Generate(ctx context.Context, job *models.ReportJob) ([]byte, string, error) {
	var dataset export.Dataset
	var title string
	var err error

	switch job.Type {
	case models.ReportTypeMigrationHistory:
		dataset, err = s.migrationDataset(ctx, job.Params)
		title = "Migration History"
	case models.ReportTypePromotionLedger:
		dataset, err = s.promotionDataset(ctx, job.Params)
		title = "Promotion Ledger"
	default:
		return nil, "", fmt.Errorf("unsupported report type %q", job.Type)
	}
	if err != nil {
		return nil, "", err
	}

	switch job.Params.Format {
	case models.ReportFormatCSV:
		data, err := s.csv.Render(dataset)
		if err != nil {
			return nil, "", err
		}
		return data, fmt.Sprintf("%s/%s.csv", job.Params.CollegeID, job.ID), nil
	case models.ReportFormatPDF:
		data, err := s.pdf.Render(dataset, title)
		if err != nil {
			return nil, "", err
		}
		return data, fmt.Sprintf("%s/%s.pdf", job.Params.CollegeID, job.ID), nil
	default:
		return nil, "", fmt.Errorf("unsupported report format %q", job.Params.Format)
	}
}

func (s *ExportService) migrationDataset(ctx context.Context, params models.ReportJobParams) (export.Dataset, error) {
	filter := models.MigrationFilter{CollegeID: params.CollegeID, Limit: 200}
	if params.Status != "" {
		filter.Status = []models.MigrationStatus{models.MigrationStatus(params.Status)}
	}
	migrations, _, err := s.migrations.List(ctx, filter)
	if err != nil {
		return export.Dataset{}, fmt.Errorf("load migration history: %w", err)
	}

	rows := make([]map[string]string, 0, len(migrations))
	for _, m := range migrations {
		rows = append(rows, map[string]string{
			"Migration ID":        m.ID,
			"Type":                string(m.MigrationType),
			"Status":              string(m.Status),
			"From Year":           derefString(m.FromAcademicYearID),
			"To Year":             derefString(m.ToAcademicYearID),
			"Students Promoted":   strconv.Itoa(m.StudentsPromoted),
			"Sections Archived":   strconv.Itoa(m.SectionsArchived),
			"Subjects Archived":   strconv.Itoa(m.SubjectsArchived),
			"Assignments Cleared": strconv.Itoa(m.AssignmentsCleared),
			"Triggered By":        m.TriggeredBy,
			"Completed At":        formatTime(m.CompletedAt),
		})
	}
	return export.Dataset{Headers: migrationHistoryHeaders, Rows: rows}, nil
}

func (s *ExportService) promotionDataset(ctx context.Context, params models.ReportJobParams) (export.Dataset, error) {
	filter := models.PromotionFilter{CollegeID: params.CollegeID, Limit: 200}
	if params.Status != "" {
		filter.Status = []models.PromotionStatus{models.PromotionStatus(params.Status)}
	}
	requests, _, err := s.promotions.List(ctx, filter)
	if err != nil {
		return export.Dataset{}, fmt.Errorf("load promotion ledger: %w", err)
	}

	rows := make([]map[string]string, 0, len(requests))
	for _, r := range requests {
		rows = append(rows, map[string]string{
			"Request ID":   r.ID,
			"Student ID":   r.StudentID,
			"From Year":    r.FromYear,
			"To Year":      r.ToYear,
			"Fee Paid":     strconv.FormatBool(r.FeePaid),
			"Status":       string(r.Status),
			"Requested At": r.RequestedAt.Format(time.RFC3339),
			"Reviewed By":  derefString(r.ReviewedBy),
			"Promoted At":  formatTime(r.PromotedAt),
		})
	}
	return export.Dataset{Headers: promotionLedgerHeaders, Rows: rows}, nil
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func formatTime(ts *time.Time) string {
	if ts == nil {
		return ""
	}
	return ts.Format(time.RFC3339)
}
