package appointments

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"carebridge/backend/internal/clock"
	"carebridge/backend/internal/domain"
	"carebridge/backend/internal/notify"
	"carebridge/backend/internal/observability/metrics"
	"carebridge/backend/internal/store"
)

// LeadTime is the minimum notice between booking and appointment start.
const LeadTime = time.Hour

const (
	maxFreeText       = 2000
	maxIdempotencyKey = 256
)

var tracer = otel.Tracer("carebridge.internal.service.appointments")

type Service struct {
	repo      store.AppointmentRepository
	directory store.Directory
	notifier  notify.Dispatcher
	clock     clock.Clock
	conflicts ConflictDetector
	links     MeetingLinks
	metrics   *metrics.SchedulingMetrics
	log       *slog.Logger
}

type Option func(*Service)

func WithNotifier(d notify.Dispatcher) Option {
	return func(s *Service) { s.notifier = d }
}

func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = c }
}

func WithMeetingLinks(m MeetingLinks) Option {
	return func(s *Service) { s.links = m }
}

func WithMetrics(m *metrics.SchedulingMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(log *slog.Logger) Option {
	return func(s *Service) { s.log = log }
}

func NewService(repo store.AppointmentRepository, directory store.Directory, opts ...Option) *Service {
	s := &Service{
		repo:      repo,
		directory: directory,
		notifier:  notify.Nop{},
		clock:     clock.System{},
		conflicts: NewConflictDetector(),
		links:     NewMeetingLinks(""),
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(slog.String("component", "appointments"))
	return s
}

type BookInput struct {
	DoctorID       uuid.UUID
	StartTime      time.Time
	Purpose        string
	Symptoms       string
	IdempotencyKey string
}

// Book schedules a 60-minute consultation for the calling patient. The
// conflict check and the insert run under the doctor's scheduling lock.
func (s *Service) Book(ctx context.Context, caller domain.CallerIdentity, in BookInput) (appt domain.Appointment, err error) {
	ctx, span := tracer.Start(ctx, "appointments.book")
	defer span.End()
	began := time.Now()
	defer func() {
		s.metrics.ObserveBooking(bookingOutcome(err), time.Since(began).Seconds())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	if !caller.Authenticated() {
		return domain.Appointment{}, domain.NewError(domain.ErrUnauthenticated, "authentication required")
	}
	patient, err := s.directory.PatientByUser(ctx, caller.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Appointment{}, domain.NewError(domain.ErrProfileRequired, "a patient profile is required to book appointments")
		}
		return domain.Appointment{}, store.DomainError(err, "patient")
	}

	if in.DoctorID == uuid.Nil {
		return domain.Appointment{}, domain.NewError(domain.ErrInvalidRequest, "doctor_id is required")
	}
	doctor, err := s.directory.DoctorByID(ctx, in.DoctorID)
	if err != nil {
		return domain.Appointment{}, store.DomainError(err, "doctor")
	}
	span.SetAttributes(
		attribute.String("carebridge.doctor_id", doctor.ID.String()),
		attribute.String("carebridge.patient_id", patient.ID.String()),
	)

	if in.StartTime.IsZero() {
		return domain.Appointment{}, domain.NewError(domain.ErrInvalidRequest, "start_time is required")
	}
	start := in.StartTime.UTC()
	end := start.Add(domain.SlotDuration)

	purpose, err := freeText("purpose_of_consultation", in.Purpose)
	if err != nil {
		return domain.Appointment{}, err
	}
	symptoms, err := freeText("initial_symptoms", in.Symptoms)
	if err != nil {
		return domain.Appointment{}, err
	}
	request := domain.Appointment{
		DoctorID:              doctor.ID,
		PatientID:             patient.ID,
		StartTime:             start,
		PurposeOfConsultation: purpose,
		InitialSymptoms:       symptoms,
	}

	var id uuid.UUID
	key := strings.TrimSpace(in.IdempotencyKey)
	if key != "" {
		if len(key) > maxIdempotencyKey {
			return domain.Appointment{}, domain.NewError(domain.ErrInvalidRequest, "idempotency_key too long")
		}
		id = uuid.NewSHA1(uuid.NameSpaceOID, []byte("carebridge:book_appointment:"+patient.ID.String()+":"+key))

		// A committed booking is returned as is, even once its start is inside
		// the lead time.
		existing, err := s.repo.Get(ctx, id)
		switch {
		case err == nil:
			if !existing.SameBooking(request) {
				return domain.Appointment{}, store.DomainError(store.ErrIdempotencyConflict, "appointment")
			}
			s.log.InfoContext(ctx, "booking replayed", slog.String("appointment_id", existing.ID.String()))
			return existing, nil
		case !errors.Is(err, store.ErrNotFound):
			return domain.Appointment{}, store.DomainError(err, "appointment")
		}
	}

	if !start.After(s.clock.Now().Add(LeadTime)) {
		return domain.Appointment{}, domain.NewError(domain.ErrInvalidRequest, "appointments must be booked more than 1 hour in advance")
	}

	link, err := s.links.Generate()
	if err != nil {
		return domain.Appointment{}, err
	}

	candidate, err := domain.NewScheduledAppointment(domain.NewAppointmentInput{
		ID:                    id,
		DoctorID:              doctor.ID,
		PatientID:             patient.ID,
		StartTime:             start,
		MeetingLink:           link,
		PurposeOfConsultation: purpose,
		InitialSymptoms:       symptoms,
	})
	if err != nil {
		return domain.Appointment{}, err
	}

	replayed := false
	err = s.repo.InDoctorTransaction(ctx, doctor.ID, func(ctx context.Context, tx store.SchedulingTx) error {
		replayed = false
		if id != uuid.Nil {
			existing, err := tx.GetAppointment(ctx, id)
			switch {
			case err == nil:
				if !existing.SameBooking(candidate) {
					return store.ErrIdempotencyConflict
				}
				appt = existing
				replayed = true
				return nil
			case !errors.Is(err, store.ErrNotFound):
				return err
			}
		}

		conflict, err := s.conflicts.HasConflict(ctx, tx, doctor.ID, start, end)
		if err != nil {
			return err
		}
		s.metrics.ObserveConflictCheck(conflict)
		if conflict {
			return domain.NewError(domain.ErrConflict, "the doctor is not available at the requested time")
		}

		created, err := tx.CreateAppointment(ctx, candidate)
		if err != nil {
			return err
		}
		appt = created
		return nil
	})
	if err != nil {
		return domain.Appointment{}, store.DomainError(err, "appointment")
	}

	if replayed {
		s.log.InfoContext(ctx, "booking replayed", slog.String("appointment_id", appt.ID.String()))
		return appt, nil
	}

	s.log.InfoContext(ctx, "appointment booked",
		slog.String("appointment_id", appt.ID.String()),
		slog.String("doctor_id", doctor.ID.String()),
		slog.String("patient_id", patient.ID.String()),
		slog.Time("start_time", appt.StartTime),
	)
	s.notifyBooked(ctx, appt, doctor, patient)
	return appt, nil
}

// Cancel moves a SCHEDULED appointment to CANCELLED on behalf of one of its
// participants.
func (s *Service) Cancel(ctx context.Context, caller domain.CallerIdentity, appointmentID uuid.UUID) (out domain.Appointment, err error) {
	ctx, span := tracer.Start(ctx, "appointments.cancel")
	defer span.End()
	defer func() {
		s.metrics.ObserveTransition("cancel", transitionOutcome(err))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	appt, doctor, patient, err := s.load(ctx, caller, appointmentID)
	if err != nil {
		return domain.Appointment{}, err
	}
	byDoctor := caller.UserID == doctor.UserID
	if !byDoctor && caller.UserID != patient.UserID {
		return domain.Appointment{}, domain.NewError(domain.ErrForbidden, "only the appointment's patient or doctor may cancel it")
	}

	next := appt
	if err := next.Cancel(caller.UserID); err != nil {
		return domain.Appointment{}, err
	}
	saved, err := s.repo.Transition(ctx, next, domain.AppointmentStatusScheduled)
	if err != nil {
		return domain.Appointment{}, store.DomainError(err, "appointment")
	}

	cancelledBy := patient.DisplayName()
	if byDoctor {
		cancelledBy = doctor.DisplayName()
	}
	s.log.InfoContext(ctx, "appointment cancelled",
		slog.String("appointment_id", saved.ID.String()),
		slog.Bool("by_doctor", byDoctor),
	)
	s.notifyCancelled(ctx, saved, doctor, patient, cancelledBy)
	return saved, nil
}

// Complete moves a SCHEDULED appointment to COMPLETED and records the end.
// Only the assigned doctor may complete it.
func (s *Service) Complete(ctx context.Context, caller domain.CallerIdentity, appointmentID uuid.UUID) (out domain.Appointment, err error) {
	ctx, span := tracer.Start(ctx, "appointments.complete")
	defer span.End()
	defer func() {
		s.metrics.ObserveTransition("complete", transitionOutcome(err))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	appt, doctor, _, err := s.load(ctx, caller, appointmentID)
	if err != nil {
		return domain.Appointment{}, err
	}
	if caller.UserID != doctor.UserID {
		return domain.Appointment{}, domain.NewError(domain.ErrForbidden, "only the assigned doctor may complete the appointment")
	}

	next := appt
	if err := next.Complete(s.clock.Now()); err != nil {
		return domain.Appointment{}, err
	}
	saved, err := s.repo.Transition(ctx, next, domain.AppointmentStatusScheduled)
	if err != nil {
		return domain.Appointment{}, store.DomainError(err, "appointment")
	}

	s.log.InfoContext(ctx, "appointment completed",
		slog.String("appointment_id", saved.ID.String()),
		slog.Time("end_time", saved.EndTime),
	)
	return saved, nil
}

// Get returns an appointment to one of its participants.
func (s *Service) Get(ctx context.Context, caller domain.CallerIdentity, appointmentID uuid.UUID) (domain.Appointment, error) {
	appt, doctor, patient, err := s.load(ctx, caller, appointmentID)
	if err != nil {
		return domain.Appointment{}, err
	}
	if caller.UserID != doctor.UserID && caller.UserID != patient.UserID {
		return domain.Appointment{}, domain.NewError(domain.ErrForbidden, "only the appointment's participants may view it")
	}
	return appt, nil
}

// ListMine returns the caller's appointments, newest first. A caller holding
// the doctor role and a doctor profile sees the doctor's calendar.
func (s *Service) ListMine(ctx context.Context, caller domain.CallerIdentity) ([]domain.Appointment, error) {
	if !caller.Authenticated() {
		return nil, domain.NewError(domain.ErrUnauthenticated, "authentication required")
	}

	if caller.HasRole(domain.RoleDoctor) {
		doctor, err := s.directory.DoctorByUser(ctx, caller.UserID)
		switch {
		case err == nil:
			rows, err := s.repo.ListByDoctor(ctx, doctor.ID)
			return rows, store.DomainError(err, "appointment")
		case !errors.Is(err, store.ErrNotFound):
			return nil, store.DomainError(err, "doctor")
		}
	}

	patient, err := s.directory.PatientByUser(ctx, caller.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domain.NewError(domain.ErrProfileRequired, "a doctor or patient profile is required")
		}
		return nil, store.DomainError(err, "patient")
	}
	rows, err := s.repo.ListByPatient(ctx, patient.ID)
	return rows, store.DomainError(err, "appointment")
}

func (s *Service) load(ctx context.Context, caller domain.CallerIdentity, appointmentID uuid.UUID) (domain.Appointment, domain.DoctorProfile, domain.PatientProfile, error) {
	if !caller.Authenticated() {
		return domain.Appointment{}, domain.DoctorProfile{}, domain.PatientProfile{}, domain.NewError(domain.ErrUnauthenticated, "authentication required")
	}
	if appointmentID == uuid.Nil {
		return domain.Appointment{}, domain.DoctorProfile{}, domain.PatientProfile{}, domain.NewError(domain.ErrInvalidRequest, "appointment_id is required")
	}

	appt, err := s.repo.Get(ctx, appointmentID)
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

func freeText(field, value string) (string, error) {
	v := strings.TrimSpace(value)
	if utf8.RuneCountInString(v) > maxFreeText {
		return "", domain.Errorf(domain.ErrInvalidRequest, "%s must be at most %d characters", field, maxFreeText)
	}
	return v, nil
}

func bookingOutcome(err error) string {
	switch domain.KindOf(err) {
	case nil:
		if err == nil {
			return "booked"
		}
		return "error"
	case domain.ErrConflict:
		return "conflict"
	case domain.ErrUnavailable:
		return "error"
	default:
		return "invalid"
	}
}

func transitionOutcome(err error) string {
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
	case domain.ErrNotFound:
		return "not_found"
	case domain.ErrUnavailable:
		return "error"
	default:
		return "invalid"
	}
}
