package grpc

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"carebridge/backend/internal/auth"
	"carebridge/backend/internal/clock"
	"carebridge/backend/internal/domain"
	"carebridge/backend/internal/service/appointments"
	"carebridge/backend/internal/service/consultations"
	"carebridge/backend/internal/store/memory"
)

type fakeAppointmentsService struct {
	bookFn     func(ctx context.Context, caller domain.CallerIdentity, in appointments.BookInput) (domain.Appointment, error)
	cancelFn   func(ctx context.Context, caller domain.CallerIdentity, id uuid.UUID) (domain.Appointment, error)
	completeFn func(ctx context.Context, caller domain.CallerIdentity, id uuid.UUID) (domain.Appointment, error)
	getFn      func(ctx context.Context, caller domain.CallerIdentity, id uuid.UUID) (domain.Appointment, error)
	listFn     func(ctx context.Context, caller domain.CallerIdentity) ([]domain.Appointment, error)
}

func (f *fakeAppointmentsService) Book(ctx context.Context, caller domain.CallerIdentity, in appointments.BookInput) (domain.Appointment, error) {
	if f.bookFn == nil {
		panic("Book not configured")
	}
	return f.bookFn(ctx, caller, in)
}

func (f *fakeAppointmentsService) Cancel(ctx context.Context, caller domain.CallerIdentity, id uuid.UUID) (domain.Appointment, error) {
	if f.cancelFn == nil {
		panic("Cancel not configured")
	}
	return f.cancelFn(ctx, caller, id)
}

func (f *fakeAppointmentsService) Complete(ctx context.Context, caller domain.CallerIdentity, id uuid.UUID) (domain.Appointment, error) {
	if f.completeFn == nil {
		panic("Complete not configured")
	}
	return f.completeFn(ctx, caller, id)
}

func (f *fakeAppointmentsService) Get(ctx context.Context, caller domain.CallerIdentity, id uuid.UUID) (domain.Appointment, error) {
	if f.getFn == nil {
		panic("Get not configured")
	}
	return f.getFn(ctx, caller, id)
}

func (f *fakeAppointmentsService) ListMine(ctx context.Context, caller domain.CallerIdentity) ([]domain.Appointment, error) {
	if f.listFn == nil {
		panic("ListMine not configured")
	}
	return f.listFn(ctx, caller)
}

type fakeConsultationsService struct {
	recordFn func(ctx context.Context, caller domain.CallerIdentity, in consultations.RecordInput) (domain.Consultation, error)
}

func (f *fakeConsultationsService) Record(ctx context.Context, caller domain.CallerIdentity, in consultations.RecordInput) (domain.Consultation, error) {
	if f.recordFn == nil {
		panic("Record not configured")
	}
	return f.recordFn(ctx, caller, in)
}

func (f *fakeConsultationsService) Get(context.Context, domain.CallerIdentity, uuid.UUID) (domain.Consultation, error) {
	panic("Get not configured")
}

func (f *fakeConsultationsService) History(context.Context, domain.CallerIdentity) ([]domain.Consultation, error) {
	panic("History not configured")
}

func patientContext(pairs ...string) context.Context {
	pairs = append([]string{"x-user-id", "user-p1", "x-user-roles", "PATIENT"}, pairs...)
	return metadata.NewIncomingContext(context.Background(), metadata.Pairs(pairs...))
}

func TestIdempotencyKey_ReadsHeadersAndTrims(t *testing.T) {
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("idempotency-key", "  abc  "))
	if got := idempotencyKey(ctx); got != "abc" {
		t.Fatalf("idempotencyKey = %q, want %q", got, "abc")
	}

	ctx = metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-idempotency-key", "xyz"))
	if got := idempotencyKey(ctx); got != "xyz" {
		t.Fatalf("idempotencyKey = %q, want %q", got, "xyz")
	}
}

func TestBookAppointment_PassesIdempotencyKeyToService(t *testing.T) {
	var got appointments.BookInput
	srv := NewAppointmentsServer(&fakeAppointmentsService{
		bookFn: func(ctx context.Context, caller domain.CallerIdentity, in appointments.BookInput) (domain.Appointment, error) {
			got = in
			return domain.Appointment{ID: uuid.MustParse("00000000-0000-0000-0000-000000000010")}, nil
		},
	}, &fakeConsultationsService{}, auth.HeaderResolver{}, slog.Default())

	doctorID := uuid.New()
	_, err := srv.BookAppointment(patientContext("idempotency-key", "k1"), &BookAppointmentRequest{
		DoctorID:       doctorID.String(),
		StartTime:      time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC),
		IdempotencyKey: "ignored",
	})
	if err != nil {
		t.Fatalf("BookAppointment error: %v", err)
	}
	if got.IdempotencyKey != "k1" || got.DoctorID != doctorID {
		t.Fatalf("input = %+v", got)
	}
}

func TestBookAppointment_RejectsBadInputBeforeService(t *testing.T) {
	srv := NewAppointmentsServer(&fakeAppointmentsService{}, &fakeConsultationsService{}, auth.HeaderResolver{}, slog.Default())

	cases := map[string]struct {
		ctx  context.Context
		req  *BookAppointmentRequest
		code codes.Code
	}{
		"anonymous":     {context.Background(), &BookAppointmentRequest{}, codes.Unauthenticated},
		"bad doctor id": {patientContext(), &BookAppointmentRequest{DoctorID: "nope", StartTime: time.Now()}, codes.InvalidArgument},
		"missing start": {patientContext(), &BookAppointmentRequest{DoctorID: uuid.NewString()}, codes.InvalidArgument},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := srv.BookAppointment(tc.ctx, tc.req)
			if status.Code(err) != tc.code {
				t.Fatalf("code = %s, want %s", status.Code(err), tc.code)
			}
		})
	}
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		code   codes.Code
		reason string
	}{
		{domain.NewError(domain.ErrUnauthenticated, "x"), codes.Unauthenticated, "UNAUTHENTICATED"},
		{domain.NewError(domain.ErrProfileRequired, "x"), codes.FailedPrecondition, "PROFILE_REQUIRED"},
		{domain.NewError(domain.ErrNotFound, "x"), codes.NotFound, "NOT_FOUND"},
		{domain.NewError(domain.ErrInvalidRequest, "x"), codes.InvalidArgument, "INVALID_REQUEST"},
		{domain.NewError(domain.ErrConflict, "x"), codes.AlreadyExists, "CONFLICT"},
		{domain.NewError(domain.ErrForbidden, "x"), codes.PermissionDenied, "FORBIDDEN"},
		{domain.NewError(domain.ErrInvalidStateTransition, "x"), codes.FailedPrecondition, "INVALID_STATE_TRANSITION"},
		{domain.NewError(domain.ErrUnavailable, "x"), codes.Unavailable, "UNAVAILABLE"},
		{errors.New("boom"), codes.Internal, "INTERNAL"},
	}
	for _, tc := range cases {
		srv := NewAppointmentsServer(&fakeAppointmentsService{
			cancelFn: func(context.Context, domain.CallerIdentity, uuid.UUID) (domain.Appointment, error) {
				return domain.Appointment{}, tc.err
			},
		}, &fakeConsultationsService{}, auth.HeaderResolver{}, slog.Default())

		_, err := srv.CancelAppointment(patientContext(), &AppointmentRequest{AppointmentID: uuid.NewString()})
		if status.Code(err) != tc.code {
			t.Fatalf("%v: code = %s, want %s", tc.err, status.Code(err), tc.code)
		}
		if got := ErrorReason(err); got != tc.reason {
			t.Fatalf("%v: reason = %q, want %q", tc.err, got, tc.reason)
		}
	}

	st, _ := status.FromError(toStatus(errors.New("pq: password authentication failed")))
	if st.Message() != "internal error" {
		t.Fatalf("internal message leaked: %q", st.Message())
	}
}

func TestRecordConsultation_RejectsInvalidUUID(t *testing.T) {
	srv := NewAppointmentsServer(&fakeAppointmentsService{}, &fakeConsultationsService{}, auth.HeaderResolver{}, slog.Default())

	_, err := srv.RecordConsultation(patientContext(), &RecordConsultationRequest{AppointmentID: "not-a-uuid"})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("code = %s, want %s", status.Code(err), codes.InvalidArgument)
	}
}

func TestDefaultRequestTimeoutInterceptor_AddsDeadline(t *testing.T) {
	interceptor := DefaultRequestTimeoutInterceptor(time.Second)
	_, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{}, func(ctx context.Context, req any) (any, error) {
		if _, ok := ctx.Deadline(); !ok {
			t.Fatal("expected a deadline")
		}
		return nil, nil
	})
	if err != nil {
		t.Fatalf("interceptor error: %v", err)
	}
}

func TestRecoveryInterceptor(t *testing.T) {
	interceptor := RecoveryInterceptor(slog.Default())
	_, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: BookAppointmentMethod}, func(context.Context, any) (any, error) {
		panic("boom")
	})
	if status.Code(err) != codes.Internal {
		t.Fatalf("code = %s, want %s", status.Code(err), codes.Internal)
	}
}

func TestJSONCodecRoundTripOverBufconn(t *testing.T) {
	st := memory.New()
	doctor := st.PutDoctor(domain.DoctorProfile{UserID: "user-d1", FirstName: "Ada"})
	st.PutPatient(domain.PatientProfile{UserID: "user-p1", FirstName: "Tunde"})
	fixed := clock.NewFixed(time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC))

	appts := appointments.NewService(st, st, appointments.WithClock(fixed))
	notes := consultations.NewService(st, st, st, consultations.WithClock(fixed))
	server, _ := NewServer(NewAppointmentsServer(appts, notes, auth.HeaderResolver{}, slog.Default()), time.Second, slog.Default())

	lis := bufconn.Listen(1 << 20)
	go func() { _ = server.Serve(lis) }()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	health, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil || health.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("health = %v, %v", health, err)
	}

	client := NewAppointmentsServiceClient(conn)
	patientCtx := metadata.AppendToOutgoingContext(ctx, "x-user-id", "user-p1", "x-user-roles", "PATIENT")

	booked, err := client.BookAppointment(patientCtx, &BookAppointmentRequest{
		DoctorID:              doctor.ID.String(),
		StartTime:             time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC),
		PurposeOfConsultation: "follow-up",
	})
	if err != nil {
		t.Fatalf("BookAppointment error: %v", err)
	}
	if booked.Appointment.Status != string(domain.AppointmentStatusScheduled) || booked.Appointment.MeetingLink == "" {
		t.Fatalf("booked = %+v", booked.Appointment)
	}

	_, err = client.BookAppointment(patientCtx, &BookAppointmentRequest{
		DoctorID:  doctor.ID.String(),
		StartTime: time.Date(2026, 3, 2, 12, 30, 0, 0, time.UTC),
	})
	if status.Code(err) != codes.AlreadyExists || ErrorReason(err) != "CONFLICT" {
		t.Fatalf("overlapping booking err = %v", err)
	}

	listed, err := client.ListMyAppointments(patientCtx, &ListMyAppointmentsRequest{})
	if err != nil || len(listed.Appointments) != 1 {
		t.Fatalf("ListMyAppointments = %+v, %v", listed, err)
	}

	cancelled, err := client.CancelAppointment(patientCtx, &AppointmentRequest{AppointmentID: booked.Appointment.ID})
	if err != nil || cancelled.Appointment.CancelledBy != "user-p1" {
		t.Fatalf("CancelAppointment = %+v, %v", cancelled, err)
	}

	_, err = client.CancelAppointment(patientCtx, &AppointmentRequest{AppointmentID: booked.Appointment.ID})
	if status.Code(err) != codes.FailedPrecondition || ErrorReason(err) != "INVALID_STATE_TRANSITION" {
		t.Fatalf("second cancel err = %v", err)
	}
}
