// Package consultations records the clinical notes a doctor writes for an
// appointment. Recording notes completes a still-scheduled appointment.
package consultations

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"carebridge/backend/internal/clock"
	"carebridge/backend/internal/domain"
	"carebridge/backend/internal/observability/metrics"
	"carebridge/backend/internal/store"
)

const maxNoteLength = 10000

var tracer = otel.Tracer("carebridge.internal.service.consultations")

type Service struct {
	repo         store.ConsultationRepository
	appointments store.AppointmentRepository
	directory    store.Directory
	clock        clock.Clock
	metrics      *metrics.SchedulingMetrics
	log          *slog.Logger
}

type Option func(*Service)

func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = c }
}

func WithMetrics(m *metrics.SchedulingMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(log *slog.Logger) Option {
	return func(s *Service) { s.log = log }
}

func NewService(repo store.ConsultationRepository, appointments store.AppointmentRepository, directory store.Directory, opts ...Option) *Service {
	s := &Service{
		repo:         repo,
		appointments: appointments,
		directory:    directory,
		clock:        clock.System{},
		log:          slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(slog.String("component", "consultations"))
	return s
}

type RecordInput struct {
	AppointmentID     uuid.UUID
	SubjectiveNotes   string
	ObjectiveFindings string
	Assessment        string
	Plan              string
}

// Record stores the notes for an appointment once. A SCHEDULED appointment is
// completed in the same transaction; a COMPLETED one is accepted as is.
func (s *Service) Record(ctx context.Context, caller domain.CallerIdentity, in RecordInput) (out domain.Consultation, err error) {
	ctx, span := tracer.Start(ctx, "consultations.record")
	defer span.End()
	defer func() {
		s.metrics.ObserveTransition("record_consultation", outcome(err))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	appt, doctor, _, err := s.load(ctx, caller, in.AppointmentID)
	if err != nil {
		return domain.Consultation{}, err
	}
	if caller.UserID != doctor.UserID {
		return domain.Consultation{}, domain.NewError(domain.ErrForbidden, "only the assigned doctor may record consultation notes")
	}
	span.SetAttributes(attribute.String("carebridge.appointment_id", appt.ID.String()))

	notes := domain.Consultation{
		AppointmentID: appt.ID,
		PatientID:     appt.PatientID,
		DoctorID:      appt.DoctorID,
	}
	fields := []struct {
		name string
		in   string
		out  *string
	}{
		{"subjective_notes", in.SubjectiveNotes, &notes.SubjectiveNotes},
		{"objective_findings", in.ObjectiveFindings, &notes.ObjectiveFindings},
		{"assessment", in.Assessment, &notes.Assessment},
		{"plan", in.Plan, &notes.Plan},
	}
	for _, f := range fields {
		v := strings.TrimSpace(f.in)
		if utf8.RuneCountInString(v) > maxNoteLength {
			return domain.Consultation{}, domain.Errorf(domain.ErrInvalidRequest, "%s must be at most %d characters", f.name, maxNoteLength)
		}
		*f.out = v
	}

	completed := false
	err = s.repo.InAppointmentTransaction(ctx, appt.ID, func(ctx context.Context, tx store.ConsultationTx) error {
		completed = false
		_, found, err := tx.FindConsultation(ctx, appt.ID)
		if err != nil {
			return err
		}
		if found {
			return domain.NewError(domain.ErrConflict, "consultation notes already exist for this appointment")
		}

		current := tx.Appointment()
		now := s.clock.Now()
		if current.Status != domain.AppointmentStatusCompleted {
			next := current
			if err := next.Complete(now); err != nil {
				return err
			}
			if _, err := tx.UpdateAppointment(ctx, next, domain.AppointmentStatusScheduled); err != nil {
				return err
			}
			completed = true
		}

		record := notes
		record.ConsultationDate = now
		created, err := tx.CreateConsultation(ctx, record)
		if err != nil {
			return err
		}
		out = created
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return domain.Consultation{}, domain.NewError(domain.ErrConflict, "consultation notes already exist for this appointment")
		}
		return domain.Consultation{}, store.DomainError(err, "appointment")
	}

	s.log.InfoContext(ctx, "consultation recorded",
		slog.String("appointment_id", appt.ID.String()),
		slog.String("consultation_id", out.ID.String()),
		slog.Bool("completed_appointment", completed),
	)
	return out, nil
}

// Get returns the notes of an appointment to one of its participants.
func (s *Service) Get(ctx context.Context, caller domain.CallerIdentity, appointmentID uuid.UUID) (domain.Consultation, error) {
	_, doctor, patient, err := s.load(ctx, caller, appointmentID)
	if err != nil {
		return domain.Consultation{}, err
	}
	if caller.UserID != doctor.UserID && caller.UserID != patient.UserID {
		return domain.Consultation{}, domain.NewError(domain.ErrForbidden, "only the appointment's participants may view its notes")
	}
	c, err := s.repo.GetConsultation(ctx, appointmentID)
	if err != nil {
		return domain.Consultation{}, store.DomainError(err, "consultation")
	}
	return c, nil
}

// History lists the calling patient's notes, most recent consultation first.
func (s *Service) History(ctx context.Context, caller domain.CallerIdentity) ([]domain.Consultation, error) {
	if !caller.Authenticated() {
		return nil, domain.NewError(domain.ErrUnauthenticated, "authentication required")
	}
	patient, err := s.directory.PatientByUser(ctx, caller.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domain.NewError(domain.ErrProfileRequired, "a patient profile is required to view consultation history")
		}
		return nil, store.DomainError(err, "patient")
	}
	rows, err := s.repo.ListConsultations(ctx, patient.ID)
	if err != nil {
		return nil, store.DomainError(err, "consultation")
	}
	return rows, nil
}

func (s *Service) load(ctx context.Context, caller domain.CallerIdentity, appointmentID uuid.UUID) (domain.Appointment, domain.DoctorProfile, domain.PatientProfile, error) {
	if !caller.Authenticated() {
		return domain.Appointment{}, domain.DoctorProfile{}, domain.PatientProfile{}, domain.NewError(domain.ErrUnauthenticated, "authentication required")
	}
	if appointmentID == uuid.Nil {
		return domain.Appointment{}, domain.DoctorProfile{}, domain.PatientProfile{}, domain.NewError(domain.ErrInvalidRequest, "appointment_id is required")
	}
	appt, err := s.appointments.Get(ctx, appointmentID)
	if err != nil {
		return domain.Appointment{}, domain.DoctorProfile{}, domain.PatientProfile{}, store.DomainError(err, "appointment")
	}
	doctor, err := s.directory.DoctorByID(ctx, appt.DoctorID)
	if err != nil {
		return domain.Appointment{}, domain.DoctorProfile{}, domain.PatientProfile{}, store.DomainError(err, "doctor")
	}
	patient, err := s.directory.PatientByID(ctx, appt.PatientID)
	if err != nil {
		return domain.Appointment{}, domain.DoctorProfile{}, domain.PatientProfile{}, store.DomainError(err, "patient")
	}
	return appt, doctor, patient, nil
}

func outcome(err error) string {
	switch domain.KindOf(err) {
	case nil:
		if err == nil {
			return "ok"
		}
		return "error"
	case domain.ErrForbidden:
		return "forbidden"
	case domain.ErrInvalidStateTransition:
		return "invalid_state"
	case domain.ErrConflict:
		return "conflict"
	default:
		return "invalid"
	}
}
