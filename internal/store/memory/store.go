// Package memory keeps appointments, profiles and consultation notes in
// process memory. It backs local demos and service tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"carebridge/backend/internal/domain"
	"carebridge/backend/internal/store"
)

type Store struct {
	mu            sync.RWMutex
	appointments  map[uuid.UUID]domain.Appointment
	doctors       map[uuid.UUID]domain.DoctorProfile
	patients      map[uuid.UUID]domain.PatientProfile
	consultations map[uuid.UUID]domain.Consultation

	locksMu     sync.Mutex
	doctorLocks map[uuid.UUID]*sync.Mutex
	apptLocks   map[uuid.UUID]*sync.Mutex

	now func() time.Time
}

var (
	_ store.AppointmentRepository  = (*Store)(nil)
	_ store.Directory              = (*Store)(nil)
	_ store.ConsultationRepository = (*Store)(nil)
)

func New() *Store {
	return &Store{
		appointments:  make(map[uuid.UUID]domain.Appointment),
		doctors:       make(map[uuid.UUID]domain.DoctorProfile),
		patients:      make(map[uuid.UUID]domain.PatientProfile),
		consultations: make(map[uuid.UUID]domain.Consultation),
		doctorLocks:   make(map[uuid.UUID]*sync.Mutex),
		apptLocks:     make(map[uuid.UUID]*sync.Mutex),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) PutDoctor(d domain.DoctorProfile) domain.DoctorProfile {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	s.mu.Lock()
	s.doctors[d.ID] = d
	s.mu.Unlock()
	return d
}

func (s *Store) PutPatient(p domain.PatientProfile) domain.PatientProfile {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	s.mu.Lock()
	s.patients[p.ID] = p
	s.mu.Unlock()
	return p
}

func lockFor(mu *sync.Mutex, locks map[uuid.UUID]*sync.Mutex, id uuid.UUID) *sync.Mutex {
	mu.Lock()
	defer mu.Unlock()
	l, ok := locks[id]
	if !ok {
		l = &sync.Mutex{}
		locks[id] = l
	}
	return l
}

type schedulingTx struct {
	s       *Store
	pending map[uuid.UUID]domain.Appointment
}

// InDoctorTransaction holds the doctor's mutex while fn runs. Inserts made
// through tx become visible only when fn returns nil.
func (s *Store) InDoctorTransaction(ctx context.Context, doctorID uuid.UUID, fn func(ctx context.Context, tx store.SchedulingTx) error) error {
	l := lockFor(&s.locksMu, s.doctorLocks, doctorID)
	l.Lock()
	defer l.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &schedulingTx{s: s, pending: make(map[uuid.UUID]domain.Appointment)}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	s.mu.Lock()
	for id, a := range tx.pending {
		s.appointments[id] = a
	}
	s.mu.Unlock()
	return nil
}

func (t *schedulingTx) FindOverlapping(ctx context.Context, doctorID uuid.UUID, windowStart, windowEnd time.Time) ([]domain.Appointment, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	var out []domain.Appointment
	match := func(a domain.Appointment) {
		if a.DoctorID == doctorID && a.Status == domain.AppointmentStatusScheduled &&
			a.StartTime.Before(windowEnd) && windowStart.Before(a.EndTime) {
			out = append(out, a)
		}
	}
	for _, a := range t.s.appointments {
		match(a)
	}
	for _, a := range t.pending {
		match(a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (t *schedulingTx) GetAppointment(ctx context.Context, appointmentID uuid.UUID) (domain.Appointment, error) {
	if a, ok := t.pending[appointmentID]; ok {
		return a, nil
	}
	return t.s.Get(ctx, appointmentID)
}

func (t *schedulingTx) CreateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	if appt.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return domain.Appointment{}, err
		}
		appt.ID = id
	}

	existing, err := t.GetAppointment(ctx, appt.ID)
	if err == nil {
		if !existing.SameBooking(appt) {
			return domain.Appointment{}, store.ErrIdempotencyConflict
		}
		return existing, nil
	}

	t.s.mu.RLock()
	for _, a := range t.s.appointments {
		if a.MeetingLink == appt.MeetingLink {
			t.s.mu.RUnlock()
			return domain.Appointment{}, store.ErrConflict
		}
	}
	t.s.mu.RUnlock()

	now := t.s.now()
	appt.CreatedAt = now
	appt.UpdatedAt = now
	t.pending[appt.ID] = appt
	return appt, nil
}

func (s *Store) Get(ctx context.Context, appointmentID uuid.UUID) (domain.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.appointments[appointmentID]
	if !ok {
		return domain.Appointment{}, store.ErrNotFound
	}
	return a, nil
}

func (s *Store) Transition(ctx context.Context, appt domain.Appointment, from domain.AppointmentStatus) (domain.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitionLocked(appt, from)
}

func (s *Store) transitionLocked(appt domain.Appointment, from domain.AppointmentStatus) (domain.Appointment, error) {
	cur, ok := s.appointments[appt.ID]
	if !ok {
		return domain.Appointment{}, store.ErrNotFound
	}
	if cur.Status != from {
		return domain.Appointment{}, store.ErrStaleState
	}
	cur.Status = appt.Status
	cur.EndTime = appt.EndTime
	cur.CancelledBy = appt.CancelledBy
	cur.UpdatedAt = s.now()
	s.appointments[cur.ID] = cur
	return cur, nil
}

func (s *Store) ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]domain.Appointment, error) {
	return s.list(func(a domain.Appointment) bool { return a.DoctorID == doctorID }), nil
}

func (s *Store) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]domain.Appointment, error) {
	return s.list(func(a domain.Appointment) bool { return a.PatientID == patientID }), nil
}

func (s *Store) list(keep func(domain.Appointment) bool) []domain.Appointment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Appointment
	for _, a := range s.appointments {
		if keep(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	return out
}
