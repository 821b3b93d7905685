package service

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/school-admin-api/internal/models"
	"github.com/noah-isme/school-admin-api/pkg/export"
	"github.com/noah-isme/school-admin-api/pkg/storage"
)

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type classDocumentSource interface {
	ClassDocuments(ctx context.Context, classID, sessionID string) ([]export.ReportCardDocument, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type tablePDFRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       models.ExportFormat
	ExpiresAt    time.Time
}

// ExportService renders the report cards of a class and stores the file
// behind a signed download token.
type ExportService struct {
	documents classDocumentSource
	storage   fileStorage
	csv       csvRenderer
	pdf       tablePDFRenderer
	signer    *storage.SignedURLSigner
	logger    *zap.Logger
	cfg       ExportConfig
}

func NewExportService(documents classDocumentSource, files fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf tablePDFRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter(export.Letterhead{})
	}
	return &ExportService{
		documents: documents,
		storage:   files,
		csv:       csv,
		pdf:       pdf,
		signer:    signer,
		logger:    logger,
		cfg:       cfg,
	}
}

// Generate renders the ranked class sheet of the job as CSV or a PDF table and
// stores the result. Per-student report cards are served by ReportCardService.ClassPDF.
func (s *ExportService) Generate(ctx context.Context, job *models.ExportJob) (*ExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("job nil")
	}
	docs, err := s.documents.ClassDocuments(ctx, job.ClassID, job.SessionID)
	if err != nil {
		return nil, err
	}

	var payload []byte
	switch job.Format {
	case models.ExportFormatCSV:
		payload, err = s.csv.Render(reportCardDataset(docs))
	case models.ExportFormatPDF:
		payload, err = s.pdf.Render(reportCardDataset(docs), sheetTitle(docs))
	default:
		err = fmt.Errorf("unsupported format %s", job.Format)
	}
	if err != nil {
		return nil, err
	}

	relPath, err := s.storage.Save(s.buildFilename(job, docs), payload)
	if err != nil {
		return nil, err
	}
	token, expiresAt, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		return nil, err
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          fmt.Sprintf("%s/export/%s", prefix, token),
		Format:       job.Format,
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates a download token.
func (s *ExportService) ParseToken(token string, allowExpired bool) (storage.DownloadToken, error) {
	return s.signer.Parse(token, allowExpired)
}

func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl, the configured ResultTTL when ttl <= 0.
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) buildFilename(job *models.ExportJob, docs []export.ReportCardDocument) string {
	class, session := job.ClassID, job.SessionID
	if len(docs) > 0 {
		class, session = docs[0].ClassName, docs[0].SessionLabel
	}
	timestamp := time.Now().UTC().Format("20060102_150405")
	return fmt.Sprintf("report-cards_%s_%s_%s.%s", slug(class), slug(session), timestamp, job.Format)
}

func sheetTitle(docs []export.ReportCardDocument) string {
	if len(docs) == 0 {
		return "Report cards"
	}
	return fmt.Sprintf("Report cards %s, %s (%s)", docs[0].ClassName, docs[0].SessionLabel, docs[0].AcademicYear)
}

var reportCardExportHeaders = []string{"Rank", "Registration", "Student", "Average", "Cohort", "Decision", "Remark"}

// reportCardDataset flattens one row per student, in rank order, followed by
// one column per subject grade.
func reportCardDataset(docs []export.ReportCardDocument) export.Dataset {
	headers := append([]string{}, reportCardExportHeaders...)
	var subjects []string
	seen := map[string]bool{}
	for _, doc := range docs {
		for _, line := range doc.Lines {
			if !seen[line.Subject] {
				seen[line.Subject] = true
				subjects = append(subjects, line.Subject)
			}
		}
	}
	headers = append(headers, subjects...)

	dataset := export.Dataset{Headers: headers}
	for _, doc := range docs {
		row := map[string]string{
			"Rank":         strconv.Itoa(doc.Rank),
			"Registration": doc.RegistrationNumber,
			"Student":      doc.StudentName,
			"Average":      strconv.FormatFloat(doc.Average, 'f', 2, 64),
			"Cohort":       strconv.Itoa(doc.CohortSize),
			"Decision":     doc.Decision,
			"Remark":       doc.Remark,
		}
		for _, line := range doc.Lines {
			if line.Grade != nil {
				row[line.Subject] = strconv.FormatFloat(*line.Grade, 'f', 2, 64)
			}
		}
		dataset.Rows = append(dataset.Rows, row)
	}
	return dataset
}
