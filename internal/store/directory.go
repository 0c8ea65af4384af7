package store

import (
	"context"

	"github.com/google/uuid"

	"carebridge/backend/internal/domain"
)

// Directory resolves doctor and patient profiles. Lookups return ErrNotFound
// when no profile exists.
type Directory interface {
	DoctorByID(ctx context.Context, doctorID uuid.UUID) (domain.DoctorProfile, error)
	DoctorByUser(ctx context.Context, userID string) (domain.DoctorProfile, error)
	PatientByID(ctx context.Context, patientID uuid.UUID) (domain.PatientProfile, error)
	PatientByUser(ctx context.Context, userID string) (domain.PatientProfile, error)
}
