package store

import (
	"context"

	"github.com/google/uuid"

	"carebridge/backend/internal/domain"
)

// ConsultationTx runs with the appointment row locked for update.
type ConsultationTx interface {
	Appointment() domain.Appointment
	FindConsultation(ctx context.Context, appointmentID uuid.UUID) (domain.Consultation, bool, error)
	UpdateAppointment(ctx context.Context, appt domain.Appointment, from domain.AppointmentStatus) (domain.Appointment, error)
	CreateConsultation(ctx context.Context, c domain.Consultation) (domain.Consultation, error)
}

type ConsultationRepository interface {
	InAppointmentTransaction(ctx context.Context, appointmentID uuid.UUID, fn func(ctx context.Context, tx ConsultationTx) error) error
	GetConsultation(ctx context.Context, appointmentID uuid.UUID) (domain.Consultation, error)
	// ListConsultations returns the patient's notes, newest consultation first.
	ListConsultations(ctx context.Context, patientID uuid.UUID) ([]domain.Consultation, error)
}
