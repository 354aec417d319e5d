package dto

import "github.com/svnapro/campus-api/internal/models"

// ReportRequest queues an asynchronous export job.
type ReportRequest struct {
	Type   models.ReportType   `json:"type" validate:"required"`
	Format models.ReportFormat `json:"format" validate:"required,oneof=csv pdf"`
	Status string              `json:"status,omitempty"`
}

// ReportJobResponse acknowledges a queued job.
type ReportJobResponse struct {
	ID     string              `json:"id"`
	Status models.ReportStatus `json:"status"`
}

// ReportStatusResponse exposes job progress and, once finished, the download URL.
type ReportStatusResponse struct {
	ID        string              `json:"id"`
	Status    models.ReportStatus `json:"status"`
	ResultURL *string             `json:"result_url,omitempty"`
	Error     *string             `json:"error,omitempty"`
}
