package grpc

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/grpc/metadata"

	"carebridge/backend/internal/auth"
	"carebridge/backend/internal/domain"
	"carebridge/backend/internal/service/appointments"
	"carebridge/backend/internal/service/consultations"
)

type AppointmentsServer struct {
	appointments  appointmentsService
	consultations consultationsService
	resolver      auth.Resolver
	log           *slog.Logger
}

type appointmentsService interface {
	Book(ctx context.Context, caller domain.CallerIdentity, in appointments.BookInput) (domain.Appointment, error)
	Cancel(ctx context.Context, caller domain.CallerIdentity, appointmentID uuid.UUID) (domain.Appointment, error)
	Complete(ctx context.Context, caller domain.CallerIdentity, appointmentID uuid.UUID) (domain.Appointment, error)
	Get(ctx context.Context, caller domain.CallerIdentity, appointmentID uuid.UUID) (domain.Appointment, error)
	ListMine(ctx context.Context, caller domain.CallerIdentity) ([]domain.Appointment, error)
}

type consultationsService interface {
	Record(ctx context.Context, caller domain.CallerIdentity, in consultations.RecordInput) (domain.Consultation, error)
	Get(ctx context.Context, caller domain.CallerIdentity, appointmentID uuid.UUID) (domain.Consultation, error)
	History(ctx context.Context, caller domain.CallerIdentity) ([]domain.Consultation, error)
}

var _ AppointmentsServiceServer = (*AppointmentsServer)(nil)

func NewAppointmentsServer(appts appointmentsService, notes consultationsService, resolver auth.Resolver, log *slog.Logger) *AppointmentsServer {
	if log == nil {
		log = slog.Default()
	}
	return &AppointmentsServer{
		appointments:  appts,
		consultations: notes,
		resolver:      resolver,
		log:           log.With(slog.String("component", "grpc.appointments")),
	}
}

func (s *AppointmentsServer) BookAppointment(ctx context.Context, req *BookAppointmentRequest) (*AppointmentResponse, error) {
	log := s.log.With(slog.String("rpc", "BookAppointment"))

	caller, err := s.resolver.Resolve(ctx)
	if err != nil {
		return nil, s.fail(ctx, log, "unauthenticated request", err)
	}
	doctorID, err := parseID("doctor_id", req.DoctorID)
	if err != nil {
		return nil, s.fail(ctx, log, "invalid request", err, slog.String("user_id", caller.UserID))
	}
	if req.StartTime.IsZero() {
		return nil, s.fail(ctx, log, "invalid request", domain.NewError(domain.ErrInvalidRequest, "start_time is required"), slog.String("user_id", caller.UserID))
	}

	key := idempotencyKey(ctx)
	if key == "" {
		key = strings.TrimSpace(req.IdempotencyKey)
	}

	appt, err := s.appointments.Book(ctx, caller, appointments.BookInput{
		DoctorID:       doctorID,
		StartTime:      req.StartTime,
		Purpose:        req.PurposeOfConsultation,
		Symptoms:       req.InitialSymptoms,
		IdempotencyKey: key,
	})
	if err != nil {
		return nil, s.fail(ctx, log, "appointment booking failed", err,
			slog.String("user_id", caller.UserID),
			slog.String("doctor_id", doctorID.String()),
			slog.Time("start_time", req.StartTime),
		)
	}

	log.InfoContext(ctx, "appointment booked",
		slog.String("appointment_id", appt.ID.String()),
		slog.String("doctor_id", appt.DoctorID.String()),
		slog.Time("start_time", appt.StartTime),
	)
	return &AppointmentResponse{Appointment: toWireAppointment(appt)}, nil
}

func idempotencyKey(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get("idempotency-key")
	if len(values) == 0 {
		values = md.Get("x-idempotency-key")
	}
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}

func (s *AppointmentsServer) CancelAppointment(ctx context.Context, req *AppointmentRequest) (*AppointmentResponse, error) {
	return s.transition(ctx, "CancelAppointment", "appointment cancelled", req, s.appointments.Cancel)
}

func (s *AppointmentsServer) CompleteAppointment(ctx context.Context, req *AppointmentRequest) (*AppointmentResponse, error) {
	return s.transition(ctx, "CompleteAppointment", "appointment completed", req, s.appointments.Complete)
}

func (s *AppointmentsServer) transition(ctx context.Context, rpc, done string, req *AppointmentRequest, apply func(context.Context, domain.CallerIdentity, uuid.UUID) (domain.Appointment, error)) (*AppointmentResponse, error) {
	log := s.log.With(slog.String("rpc", rpc))

	caller, id, err := s.callerAndAppointment(ctx, req.AppointmentID)
	if err != nil {
		return nil, s.fail(ctx, log, "invalid request", err)
	}

	appt, err := apply(ctx, caller, id)
	if err != nil {
		return nil, s.fail(ctx, log, "appointment transition failed", err,
			slog.String("appointment_id", id.String()),
			slog.String("user_id", caller.UserID),
		)
	}

	log.InfoContext(ctx, done,
		slog.String("appointment_id", appt.ID.String()),
		slog.String("user_id", caller.UserID),
		slog.String("status", string(appt.Status)),
	)
	return &AppointmentResponse{Appointment: toWireAppointment(appt)}, nil
}

func (s *AppointmentsServer) GetAppointment(ctx context.Context, req *AppointmentRequest) (*AppointmentResponse, error) {
	log := s.log.With(slog.String("rpc", "GetAppointment"))

	caller, id, err := s.callerAndAppointment(ctx, req.AppointmentID)
	if err != nil {
		return nil, s.fail(ctx, log, "invalid request", err)
	}
	appt, err := s.appointments.Get(ctx, caller, id)
	if err != nil {
		return nil, s.fail(ctx, log, "appointment lookup failed", err, slog.String("appointment_id", id.String()))
	}
	return &AppointmentResponse{Appointment: toWireAppointment(appt)}, nil
}

func (s *AppointmentsServer) ListMyAppointments(ctx context.Context, _ *ListMyAppointmentsRequest) (*ListAppointmentsResponse, error) {
	log := s.log.With(slog.String("rpc", "ListMyAppointments"))

	caller, err := s.resolver.Resolve(ctx)
	if err != nil {
		return nil, s.fail(ctx, log, "unauthenticated request", err)
	}
	appts, err := s.appointments.ListMine(ctx, caller)
	if err != nil {
		return nil, s.fail(ctx, log, "appointments list failed", err, slog.String("user_id", caller.UserID))
	}

	out := make([]*Appointment, 0, len(appts))
	for _, a := range appts {
		out = append(out, toWireAppointment(a))
	}
	log.DebugContext(ctx, "appointments listed", slog.String("user_id", caller.UserID), slog.Int("count", len(out)))
	return &ListAppointmentsResponse{Appointments: out}, nil
}

func (s *AppointmentsServer) RecordConsultation(ctx context.Context, req *RecordConsultationRequest) (*ConsultationResponse, error) {
	log := s.log.With(slog.String("rpc", "RecordConsultation"))

	caller, id, err := s.callerAndAppointment(ctx, req.AppointmentID)
	if err != nil {
		return nil, s.fail(ctx, log, "invalid request", err)
	}
	notes, err := s.consultations.Record(ctx, caller, consultations.RecordInput{
		AppointmentID:     id,
		SubjectiveNotes:   req.SubjectiveNotes,
		ObjectiveFindings: req.ObjectiveFindings,
		Assessment:        req.Assessment,
		Plan:              req.Plan,
	})
	if err != nil {
		return nil, s.fail(ctx, log, "consultation record failed", err,
			slog.String("appointment_id", id.String()),
			slog.String("user_id", caller.UserID),
		)
	}
	return &ConsultationResponse{Consultation: toWireConsultation(notes)}, nil
}

func (s *AppointmentsServer) GetConsultation(ctx context.Context, req *AppointmentRequest) (*ConsultationResponse, error) {
	log := s.log.With(slog.String("rpc", "GetConsultation"))

	caller, id, err := s.callerAndAppointment(ctx, req.AppointmentID)
	if err != nil {
		return nil, s.fail(ctx, log, "invalid request", err)
	}
	notes, err := s.consultations.Get(ctx, caller, id)
	if err != nil {
		return nil, s.fail(ctx, log, "consultation lookup failed", err, slog.String("appointment_id", id.String()))
	}
	return &ConsultationResponse{Consultation: toWireConsultation(notes)}, nil
}

func (s *AppointmentsServer) ListConsultationHistory(ctx context.Context, _ *ListConsultationHistoryRequest) (*ListConsultationsResponse, error) {
	log := s.log.With(slog.String("rpc", "ListConsultationHistory"))

	caller, err := s.resolver.Resolve(ctx)
	if err != nil {
		return nil, s.fail(ctx, log, "unauthenticated request", err)
	}
	rows, err := s.consultations.History(ctx, caller)
	if err != nil {
		return nil, s.fail(ctx, log, "consultation history failed", err, slog.String("user_id", caller.UserID))
	}
	out := make([]*Consultation, 0, len(rows))
	for _, c := range rows {
		out = append(out, toWireConsultation(c))
	}
	return &ListConsultationsResponse{Consultations: out}, nil
}

func (s *AppointmentsServer) callerAndAppointment(ctx context.Context, rawID string) (domain.CallerIdentity, uuid.UUID, error) {
	caller, err := s.resolver.Resolve(ctx)
	if err != nil {
		return domain.CallerIdentity{}, uuid.Nil, err
	}
	id, err := parseID("appointment_id", rawID)
	if err != nil {
		return domain.CallerIdentity{}, uuid.Nil, err
	}
	return caller, id, nil
}

func parseID(field, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, domain.Errorf(domain.ErrInvalidRequest, "%s must be a UUID", field)
	}
	return id, nil
}
