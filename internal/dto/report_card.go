package dto

import (
	"time"

	"github.com/noah-isme/school-admin-api/internal/models"
)

// GenerateReportCardsRequest is the optional body of POST /report-cards/generate/...
// Overrides is keyed by enrollment id.
type GenerateReportCardsRequest struct {
	EditionDate *time.Time                           `json:"edition_date,omitempty"`
	Overrides   map[string]models.ReportCardOverride `json:"overrides,omitempty"`
}

// GenerateReportCardsResponse summarises a class generation.
type GenerateReportCardsResponse struct {
	ClassID     string              `json:"class_id"`
	SessionID   string              `json:"session_id"`
	Generated   int                 `json:"generated"`
	ReportCards []models.ReportCard `json:"report_cards"`
}

// ExportRequest captures POST /report-cards/export.
type ExportRequest struct {
	ClassID   string              `json:"class_id" validate:"required"`
	SessionID string              `json:"session_id" validate:"required"`
	Format    models.ExportFormat `json:"format" validate:"required,oneof=csv pdf"`
}

// ExportJobResponse is returned after enqueueing an export.
type ExportJobResponse struct {
	ID       string              `json:"id"`
	Status   models.ExportStatus `json:"status"`
	Progress int                 `json:"progress"`
}

// ExportStatusResponse exposes job progress and, once finished, the signed download URL.
type ExportStatusResponse struct {
	ID         string              `json:"id"`
	Status     models.ExportStatus `json:"status"`
	Progress   int                 `json:"progress"`
	ResultURL  *string             `json:"result_url,omitempty"`
	Error      *string             `json:"error,omitempty"`
	FinishedAt *time.Time          `json:"finished_at,omitempty"`
}
