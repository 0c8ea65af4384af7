package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"carebridge/backend/internal/domain"
)

// SchedulingTx is the view of one doctor's calendar held under that doctor's
// scheduling lock. Reads and the insert observe the same snapshot.
type SchedulingTx interface {
	// FindOverlapping returns SCHEDULED appointments of the doctor whose
	// [start_time, end_time) intersects [windowStart, windowEnd).
	FindOverlapping(ctx context.Context, doctorID uuid.UUID, windowStart, windowEnd time.Time) ([]domain.Appointment, error)
	// GetAppointment returns ErrNotFound when no row has the id.
	GetAppointment(ctx context.Context, appointmentID uuid.UUID) (domain.Appointment, error)
	CreateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
}

type AppointmentRepository interface {
	InDoctorTransaction(ctx context.Context, doctorID uuid.UUID, fn func(ctx context.Context, tx SchedulingTx) error) error
	Get(ctx context.Context, appointmentID uuid.UUID) (domain.Appointment, error)
	// Transition writes appt only if the stored status still equals from;
	// otherwise it returns ErrStaleState.
	Transition(ctx context.Context, appt domain.Appointment, from domain.AppointmentStatus) (domain.Appointment, error)
	ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]domain.Appointment, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]domain.Appointment, error)
}
