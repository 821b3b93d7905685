package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/school-admin-api/internal/models"
	appErrors "github.com/noah-isme/school-admin-api/pkg/errors"
	"github.com/noah-isme/school-admin-api/pkg/export"
)

type enrollmentDetailReader interface {
	FindDetail(ctx context.Context, id string) (*models.EnrollmentDetail, error)
}

type certificateRenderer interface {
	EnrollmentCertificate(doc export.EnrollmentCertificateDocument) ([]byte, error)
}

// EnrollmentService issues documents about existing enrollments.
type EnrollmentService struct {
	enrollments enrollmentDetailReader
	pdf         certificateRenderer
	logger      *zap.Logger
	now         func() time.Time
}

func NewEnrollmentService(enrollments enrollmentDetailReader, pdf certificateRenderer, logger *zap.Logger) *EnrollmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{
		enrollments: enrollments,
		pdf:         pdf,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Certificate renders the enrollment certificate of an ACTIVE enrollment.
func (s *EnrollmentService) Certificate(ctx context.Context, id string) ([]byte, string, error) {
	enrollment, err := s.enrollments.FindDetail(ctx, id)
	if err != nil {
		return nil, "", lookupError(err, "enrollment not found", "failed to load enrollment")
	}
	if !enrollment.IsActive() {
		return nil, "", appErrors.Clone(appErrors.ErrPreconditionFailed, fmt.Sprintf("enrollment is %s", enrollment.Status))
	}

	issuedAt := s.now()
	content, err := s.pdf.EnrollmentCertificate(export.EnrollmentCertificateDocument{
		Reference:          fmt.Sprintf("INS-%s-%s", enrollment.ID, issuedAt.Format("20060102150405")),
		StudentLastName:    enrollment.LastName,
		StudentFirstName:   enrollment.FirstName,
		RegistrationNumber: enrollment.RegistrationNumber,
		BirthDate:          enrollment.BirthDate,
		ClassName:          enrollment.ClassName,
		LevelName:          enrollment.LevelName,
		AcademicYear:       enrollment.AcademicYearLabel,
		IssuedAt:           issuedAt,
	})
	if err != nil {
		return nil, "", internalError(err, "failed to render enrollment certificate")
	}
	s.logger.Debug("enrollment certificate issued", zap.String("enrollment_id", enrollment.ID))
	return content, fmt.Sprintf("enrollment-certificate-%s.pdf", enrollment.RegistrationNumber), nil
}
