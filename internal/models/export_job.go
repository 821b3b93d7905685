package models

import "time"

// ExportFormat enumerates class report card export formats.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

type ExportStatus string

const (
	ExportStatusQueued     ExportStatus = "QUEUED"
	ExportStatusProcessing ExportStatus = "PROCESSING"
	ExportStatusFinished   ExportStatus = "FINISHED"
	ExportStatusFailed     ExportStatus = "FAILED"
)

// ExportJob tracks an asynchronous class report card export.
type ExportJob struct {
	ID           string       `db:"id" json:"id"`
	ClassID      string       `db:"class_id" json:"class_id"`
	SessionID    string       `db:"session_id" json:"session_id"`
	Format       ExportFormat `db:"format" json:"format"`
	Status       ExportStatus `db:"status" json:"status"`
	Progress     int          `db:"progress" json:"progress"`
	FilePath     *string      `db:"file_path" json:"-"`
	ResultURL    *string      `db:"result_url" json:"result_url,omitempty"`
	ErrorMessage *string      `db:"error_message" json:"error_message,omitempty"`
	CreatedBy    string       `db:"created_by" json:"created_by"`
	CreatedAt    time.Time    `db:"created_at" json:"created_at"`
	FinishedAt   *time.Time   `db:"finished_at" json:"finished_at,omitempty"`
}
