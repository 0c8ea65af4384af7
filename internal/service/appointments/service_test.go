package appointments

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"carebridge/backend/internal/clock"
	"carebridge/backend/internal/domain"
	"carebridge/backend/internal/notify"
	"carebridge/backend/internal/store"
	"carebridge/backend/internal/store/memory"
)

type capturingDispatcher struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (c *capturingDispatcher) Dispatch(ctx context.Context, n notify.Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, n)
}

func (c *capturingDispatcher) templates() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.sent))
	for _, n := range c.sent {
		out = append(out, n.Template+"->"+n.Recipient)
	}
	return out
}

type fixture struct {
	store    *memory.Store
	clock    *clock.Fixed
	notifier *capturingDispatcher
	svc      *Service

	doctor      domain.DoctorProfile
	otherDoctor domain.DoctorProfile
	patient     domain.PatientProfile
	other       domain.PatientProfile
}

var fixtureNow = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := memory.New()
	f := &fixture{
		store:    st,
		clock:    clock.NewFixed(fixtureNow),
		notifier: &capturingDispatcher{},
		doctor: st.PutDoctor(domain.DoctorProfile{
			UserID: "user-d1", FirstName: "Ada", LastName: "Okafor", Email: "ada@clinic.example",
		}),
		otherDoctor: st.PutDoctor(domain.DoctorProfile{
			UserID: "user-d2", FirstName: "Ken", LastName: "Mori", Email: "ken@clinic.example",
		}),
		patient: st.PutPatient(domain.PatientProfile{
			UserID: "user-p1", FirstName: "Tunde", LastName: "Bello", Email: "tunde@mail.example",
		}),
		other: st.PutPatient(domain.PatientProfile{
			UserID: "user-p2", FirstName: "Mia", LastName: "Chen", Email: "mia@mail.example",
		}),
	}
	f.svc = NewService(st, st,
		WithClock(f.clock),
		WithNotifier(f.notifier),
		WithMeetingLinks(NewMeetingLinks("https://meet.example")),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	return f
}

func patientCaller(p domain.PatientProfile) domain.CallerIdentity {
	return domain.CallerIdentity{UserID: p.UserID, Roles: []string{domain.RolePatient}}
}

func doctorCaller(d domain.DoctorProfile) domain.CallerIdentity {
	return domain.CallerIdentity{UserID: d.UserID, Roles: []string{domain.RoleDoctor}}
}

func (f *fixture) book(t *testing.T, p domain.PatientProfile, start time.Time) domain.Appointment {
	t.Helper()
	appt, err := f.svc.Book(context.Background(), patientCaller(p), BookInput{DoctorID: f.doctor.ID, StartTime: start})
	if err != nil {
		t.Fatalf("Book(%s) error: %v", start.Format(time.Kitchen), err)
	}
	return appt
}

func at(hour, minute int) time.Time {
	return time.Date(2026, 3, 2, hour, minute, 0, 0, time.UTC)
}

func TestServiceBook_CreatesScheduledAppointmentAndNotifiesBoth(t *testing.T) {
	f := newFixture(t)

	appt, err := f.svc.Book(context.Background(), patientCaller(f.patient), BookInput{
		DoctorID:  f.doctor.ID,
		StartTime: at(10, 0),
		Purpose:   "  follow-up  ",
		Symptoms:  "headache",
	})
	if err != nil {
		t.Fatalf("Book error: %v", err)
	}
	if appt.Status != domain.AppointmentStatusScheduled {
		t.Fatalf("status = %s", appt.Status)
	}
	if !appt.EndTime.Equal(at(11, 0)) {
		t.Fatalf("end_time = %s, want 11:00", appt.EndTime)
	}
	if appt.PurposeOfConsultation != "follow-up" {
		t.Fatalf("purpose = %q, want trimmed", appt.PurposeOfConsultation)
	}
	if appt.MeetingLink == "" || appt.ID == uuid.Nil {
		t.Fatalf("id or meeting link missing: %+v", appt)
	}

	got := f.notifier.templates()
	want := []string{
		notify.TemplatePatientAppointment + "->" + f.patient.Email,
		notify.TemplateDoctorAppointment + "->" + f.doctor.Email,
	}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("notifications = %v, want %v", got, want)
	}
	if f.notifier.sent[0].Variables["meeting_link"] != appt.MeetingLink {
		t.Fatalf("patient notification lacks the meeting link")
	}
}

func TestServiceBook_BufferScenarios(t *testing.T) {
	f := newFixture(t)
	f.book(t, f.patient, at(10, 0))

	_, err := f.svc.Book(context.Background(), patientCaller(f.other), BookInput{DoctorID: f.doctor.ID, StartTime: at(11, 30)})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("11:30 err = %v, want %v", err, domain.ErrConflict)
	}

	appt, err := f.svc.Book(context.Background(), patientCaller(f.other), BookInput{DoctorID: f.doctor.ID, StartTime: at(12, 0)})
	if err != nil {
		t.Fatalf("12:00 err = %v, want success", err)
	}
	if appt.Status != domain.AppointmentStatusScheduled {
		t.Fatalf("status = %s", appt.Status)
	}

	other, err := f.svc.Book(context.Background(), patientCaller(f.other), BookInput{DoctorID: f.otherDoctor.ID, StartTime: at(10, 30)})
	if err != nil {
		t.Fatalf("other doctor err = %v, want success", err)
	}
	if other.DoctorID != f.otherDoctor.ID {
		t.Fatalf("doctor = %s", other.DoctorID)
	}
}

func TestServiceBook_CancelledAppointmentsDoNotBlock(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t, f.patient, at(10, 0))
	if _, err := f.svc.Cancel(context.Background(), patientCaller(f.patient), appt.ID); err != nil {
		t.Fatalf("Cancel error: %v", err)
	}
	f.book(t, f.other, at(10, 0))
}

func TestServiceBook_LeadTime(t *testing.T) {
	cases := []struct {
		name   string
		offset time.Duration
		ok     bool
	}{
		{"30 minutes ahead", 30 * time.Minute, false},
		{"exactly one hour ahead", time.Hour, false},
		{"in the past", -time.Hour, false},
		{"one hour and a minute ahead", time.Hour + time.Minute, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.Book(context.Background(), patientCaller(f.patient), BookInput{
				DoctorID:  f.doctor.ID,
				StartTime: fixtureNow.Add(tc.offset),
			})
			if tc.ok && err != nil {
				t.Fatalf("err = %v, want success", err)
			}
			if !tc.ok && !errors.Is(err, domain.ErrInvalidRequest) {
				t.Fatalf("err = %v, want %v", err, domain.ErrInvalidRequest)
			}
		})
	}
}

func TestServiceBook_CallerAndDirectoryFailures(t *testing.T) {
	f := newFixture(t)
	start := at(12, 0)

	cases := []struct {
		name   string
		caller domain.CallerIdentity
		doctor uuid.UUID
		want   error
	}{
		{"anonymous", domain.CallerIdentity{}, f.doctor.ID, domain.ErrUnauthenticated},
		{"doctor-only account", doctorCaller(f.doctor), f.otherDoctor.ID, domain.ErrProfileRequired},
		{"unknown doctor", patientCaller(f.patient), uuid.New(), domain.ErrNotFound},
		{"missing doctor id", patientCaller(f.patient), uuid.Nil, domain.ErrInvalidRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Book(context.Background(), tc.caller, BookInput{DoctorID: tc.doctor, StartTime: start})
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
	if n := len(f.notifier.templates()); n != 0 {
		t.Fatalf("rejected bookings sent %d notifications", n)
	}
}

func TestServiceBook_FreeTextBound(t *testing.T) {
	f := newFixture(t)
	long := make([]rune, maxFreeText+1)
	for i := range long {
		long[i] = 'x'
	}
	_, err := f.svc.Book(context.Background(), patientCaller(f.patient), BookInput{
		DoctorID:  f.doctor.ID,
		StartTime: at(12, 0),
		Symptoms:  string(long),
	})
	if !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("err = %v, want %v", err, domain.ErrInvalidRequest)
	}
}

func TestServiceBook_IdempotencyKey(t *testing.T) {
	f := newFixture(t)
	in := BookInput{DoctorID: f.doctor.ID, StartTime: at(12, 0), Purpose: "checkup", IdempotencyKey: "k-1"}

	first, err := f.svc.Book(context.Background(), patientCaller(f.patient), in)
	if err != nil {
		t.Fatalf("first Book error: %v", err)
	}
	again, err := f.svc.Book(context.Background(), patientCaller(f.patient), in)
	if err != nil {
		t.Fatalf("replayed Book error: %v", err)
	}
	if again.ID != first.ID || again.MeetingLink != first.MeetingLink {
		t.Fatalf("replay = %+v, want %+v", again, first)
	}
	if n := len(f.notifier.templates()); n != 2 {
		t.Fatalf("notifications = %d, want 2 (replay must not notify)", n)
	}

	changed := in
	changed.Purpose = "something else"
	_, err = f.svc.Book(context.Background(), patientCaller(f.patient), changed)
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("err = %v, want %v", err, domain.ErrConflict)
	}
}

func TestServiceBook_ReplayInsideLeadTimeReturnsStoredAppointment(t *testing.T) {
	f := newFixture(t)
	in := BookInput{DoctorID: f.doctor.ID, StartTime: at(12, 0), Purpose: "checkup", IdempotencyKey: "k-late"}

	first, err := f.svc.Book(context.Background(), patientCaller(f.patient), in)
	if err != nil {
		t.Fatalf("first Book error: %v", err)
	}

	f.clock.Set(at(11, 30))
	again, err := f.svc.Book(context.Background(), patientCaller(f.patient), in)
	if err != nil {
		t.Fatalf("replayed Book error: %v", err)
	}
	if again.ID != first.ID {
		t.Fatalf("replay id = %s, want %s", again.ID, first.ID)
	}
	if n := len(f.notifier.templates()); n != 2 {
		t.Fatalf("notifications = %d, want 2", n)
	}

	fresh := in
	fresh.IdempotencyKey = "k-new"
	fresh.StartTime = at(12, 15)
	if _, err := f.svc.Book(context.Background(), patientCaller(f.patient), fresh); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("new key inside lead time err = %v, want %v", err, domain.ErrInvalidRequest)
	}
}

func TestServiceBook_ConcurrentOverlappingRequestsOneWins(t *testing.T) {
	f := newFixture(t)
	const n = 20

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins, conflicts := 0, 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			start := at(12, 0).Add(time.Duration(i%4) * 10 * time.Minute)
			_, err := f.svc.Book(context.Background(), patientCaller(f.patient), BookInput{DoctorID: f.doctor.ID, StartTime: start})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, domain.ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected err: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if wins != 1 || conflicts != n-1 {
		t.Fatalf("wins = %d conflicts = %d, want 1 and %d", wins, conflicts, n-1)
	}
}

func TestServiceBook_NoTwoScheduledBufferedWindowsOverlap(t *testing.T) {
	f := newFixture(t)
	for minutes := 70; minutes < 14*60; minutes += 25 {
		_, err := f.svc.Book(context.Background(), patientCaller(f.patient), BookInput{
			DoctorID:  f.doctor.ID,
			StartTime: fixtureNow.Add(time.Duration(minutes) * time.Minute),
		})
		if err != nil && !errors.Is(err, domain.ErrConflict) {
			t.Fatalf("Book error: %v", err)
		}
	}

	rows, err := f.store.ListByDoctor(context.Background(), f.doctor.ID)
	if err != nil {
		t.Fatalf("ListByDoctor error: %v", err)
	}
	if len(rows) < 2 {
		t.Fatalf("expected several bookings, got %d", len(rows))
	}
	for i := range rows {
		for j := i + 1; j < len(rows); j++ {
			a, b := rows[i], rows[j]
			if a.StartTime.Add(-Buffer).Before(b.EndTime) && b.StartTime.Add(-Buffer).Before(a.EndTime) {
				t.Fatalf("buffered windows overlap: %s and %s", a.StartTime, b.StartTime)
			}
		}
	}
}

func TestServiceCancel_PatientCancelsOnceThenInvalidState(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t, f.patient, at(12, 0))

	cancelled, err := f.svc.Cancel(context.Background(), patientCaller(f.patient), appt.ID)
	if err != nil {
		t.Fatalf("Cancel error: %v", err)
	}
	if cancelled.Status != domain.AppointmentStatusCancelled {
		t.Fatalf("status = %s", cancelled.Status)
	}
	if cancelled.CancelledBy == nil || *cancelled.CancelledBy != f.patient.UserID {
		t.Fatalf("cancelled_by = %v", cancelled.CancelledBy)
	}

	_, err = f.svc.Cancel(context.Background(), patientCaller(f.patient), appt.ID)
	if !errors.Is(err, domain.ErrInvalidStateTransition) {
		t.Fatalf("second cancel err = %v, want %v", err, domain.ErrInvalidStateTransition)
	}

	var cancellations []notify.Notification
	for _, n := range f.notifier.sent {
		if n.Template == notify.TemplateAppointmentCancellation {
			cancellations = append(cancellations, n)
		}
	}
	if len(cancellations) != 2 {
		t.Fatalf("cancellation notifications = %d, want 2", len(cancellations))
	}
	if cancellations[1].Variables["cancelling_party_name"] != f.patient.DisplayName() {
		t.Fatalf("cancelling party = %v", cancellations[1].Variables["cancelling_party_name"])
	}
}

func TestServiceCancel_DoctorMayCancel(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t, f.patient, at(12, 0))

	if _, err := f.svc.Cancel(context.Background(), doctorCaller(f.doctor), appt.ID); err != nil {
		t.Fatalf("Cancel error: %v", err)
	}
}

func TestServiceTransitions_Authorization(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t, f.patient, at(12, 0))
	ctx := context.Background()

	if _, err := f.svc.Cancel(ctx, patientCaller(f.other), appt.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("stranger cancel err = %v, want %v", err, domain.ErrForbidden)
	}
	if _, err := f.svc.Cancel(ctx, doctorCaller(f.otherDoctor), appt.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("other doctor cancel err = %v, want %v", err, domain.ErrForbidden)
	}
	if _, err := f.svc.Complete(ctx, patientCaller(f.patient), appt.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("patient complete err = %v, want %v", err, domain.ErrForbidden)
	}
	if _, err := f.svc.Complete(ctx, doctorCaller(f.otherDoctor), appt.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("unassigned doctor complete err = %v, want %v", err, domain.ErrForbidden)
	}

	stored, err := f.store.Get(ctx, appt.ID)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if stored.Status != domain.AppointmentStatusScheduled {
		t.Fatalf("status = %s, want SCHEDULED", stored.Status)
	}
}

func TestServiceComplete_RecordsEndAndIsTerminal(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t, f.patient, at(12, 0))
	ctx := context.Background()

	f.clock.Set(at(12, 45))
	done, err := f.svc.Complete(ctx, doctorCaller(f.doctor), appt.ID)
	if err != nil {
		t.Fatalf("Complete error: %v", err)
	}
	if done.Status != domain.AppointmentStatusCompleted || !done.EndTime.Equal(at(12, 45)) {
		t.Fatalf("completed = %+v", done)
	}

	if _, err := f.svc.Complete(ctx, doctorCaller(f.doctor), appt.ID); !errors.Is(err, domain.ErrInvalidStateTransition) {
		t.Fatalf("second complete err = %v, want %v", err, domain.ErrInvalidStateTransition)
	}
	if _, err := f.svc.Cancel(ctx, patientCaller(f.patient), appt.ID); !errors.Is(err, domain.ErrInvalidStateTransition) {
		t.Fatalf("cancel after complete err = %v, want %v", err, domain.ErrInvalidStateTransition)
	}
}

func TestServiceTransitions_ConcurrentCancelAndCompleteOneWins(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t, f.patient, at(12, 0))
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = f.svc.Cancel(ctx, patientCaller(f.patient), appt.ID)
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = f.svc.Complete(ctx, doctorCaller(f.doctor), appt.ID)
	}()
	wg.Wait()

	ok := 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case !errors.Is(err, domain.ErrInvalidStateTransition):
			t.Fatalf("unexpected err: %v", err)
		}
	}
	if ok != 1 {
		t.Fatalf("successes = %d, want 1 (errs = %v)", ok, errs)
	}
}

func TestServiceCancel_UnknownAppointment(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Cancel(context.Background(), patientCaller(f.patient), uuid.New())
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want %v", err, domain.ErrNotFound)
	}
}

func TestServiceListMine_ByRole(t *testing.T) {
	f := newFixture(t)
	first := f.book(t, f.patient, at(10, 0))
	second := f.book(t, f.patient, at(14, 0))
	ctx := context.Background()

	mine, err := f.svc.ListMine(ctx, patientCaller(f.patient))
	if err != nil {
		t.Fatalf("ListMine error: %v", err)
	}
	if len(mine) != 2 || mine[0].ID != second.ID || mine[1].ID != first.ID {
		t.Fatalf("patient listing = %+v, want newest first", mine)
	}

	calendar, err := f.svc.ListMine(ctx, doctorCaller(f.doctor))
	if err != nil || len(calendar) != 2 {
		t.Fatalf("doctor listing = %d, %v", len(calendar), err)
	}

	_, err = f.svc.ListMine(ctx, domain.CallerIdentity{UserID: "user-nobody"})
	if !errors.Is(err, domain.ErrProfileRequired) {
		t.Fatalf("err = %v, want %v", err, domain.ErrProfileRequired)
	}
}

func TestServiceGet_ParticipantsOnly(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t, f.patient, at(10, 0))
	ctx := context.Background()

	if _, err := f.svc.Get(ctx, doctorCaller(f.doctor), appt.ID); err != nil {
		t.Fatalf("doctor Get error: %v", err)
	}
	if _, err := f.svc.Get(ctx, patientCaller(f.other), appt.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("stranger Get err = %v, want %v", err, domain.ErrForbidden)
	}
}

type fakeRepo struct {
	inDoctorTransactionFn func(ctx context.Context, doctorID uuid.UUID, fn func(ctx context.Context, tx store.SchedulingTx) error) error
	getFn                 func(ctx context.Context, appointmentID uuid.UUID) (domain.Appointment, error)
	transitionFn          func(ctx context.Context, appt domain.Appointment, from domain.AppointmentStatus) (domain.Appointment, error)
}

func (f *fakeRepo) InDoctorTransaction(ctx context.Context, doctorID uuid.UUID, fn func(ctx context.Context, tx store.SchedulingTx) error) error {
	if f.inDoctorTransactionFn == nil {
		panic("InDoctorTransaction not configured")
	}
	return f.inDoctorTransactionFn(ctx, doctorID, fn)
}

func (f *fakeRepo) Get(ctx context.Context, appointmentID uuid.UUID) (domain.Appointment, error) {
	if f.getFn == nil {
		panic("Get not configured")
	}
	return f.getFn(ctx, appointmentID)
}

func (f *fakeRepo) Transition(ctx context.Context, appt domain.Appointment, from domain.AppointmentStatus) (domain.Appointment, error) {
	if f.transitionFn == nil {
		panic("Transition not configured")
	}
	return f.transitionFn(ctx, appt, from)
}

func (f *fakeRepo) ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]domain.Appointment, error) {
	panic("ListByDoctor not configured")
}

func (f *fakeRepo) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]domain.Appointment, error) {
	panic("ListByPatient not configured")
}

func TestServiceBook_StoreUnavailable(t *testing.T) {
	f := newFixture(t)
	svc := NewService(&fakeRepo{
		inDoctorTransactionFn: func(ctx context.Context, doctorID uuid.UUID, fn func(ctx context.Context, tx store.SchedulingTx) error) error {
			return store.ErrUnavailable
		},
	}, f.store, WithClock(f.clock), WithNotifier(f.notifier))

	_, err := svc.Book(context.Background(), patientCaller(f.patient), BookInput{DoctorID: f.doctor.ID, StartTime: at(12, 0)})
	if !errors.Is(err, domain.ErrUnavailable) {
		t.Fatalf("err = %v, want %v", err, domain.ErrUnavailable)
	}
	if n := len(f.notifier.templates()); n != 0 {
		t.Fatalf("notifications = %d, want 0", n)
	}
}

func TestServiceCancel_LostRaceIsInvalidState(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t, f.patient, at(12, 0))
	svc := NewService(&fakeRepo{
		getFn: func(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
			return appt, nil
		},
		transitionFn: func(ctx context.Context, a domain.Appointment, from domain.AppointmentStatus) (domain.Appointment, error) {
			if from != domain.AppointmentStatusScheduled {
				t.Fatalf("from = %s, want SCHEDULED", from)
			}
			return domain.Appointment{}, store.ErrStaleState
		},
	}, f.store, WithClock(f.clock))

	_, err := svc.Cancel(context.Background(), patientCaller(f.patient), appt.ID)
	if !errors.Is(err, domain.ErrInvalidStateTransition) {
		t.Fatalf("err = %v, want %v", err, domain.ErrInvalidStateTransition)
	}
}
