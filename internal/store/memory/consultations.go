package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"carebridge/backend/internal/domain"
	"carebridge/backend/internal/store"
)

type consultationTx struct {
	s    *Store
	appt domain.Appointment
}

// InAppointmentTransaction serializes fn with any other notes transaction on
// the same appointment.
func (s *Store) InAppointmentTransaction(ctx context.Context, appointmentID uuid.UUID, fn func(ctx context.Context, tx store.ConsultationTx) error) error {
	l := lockFor(&s.locksMu, s.apptLocks, appointmentID)
	l.Lock()
	defer l.Unlock()

	appt, err := s.Get(ctx, appointmentID)
	if err != nil {
		return err
	}
	return fn(ctx, &consultationTx{s: s, appt: appt})
}

func (t *consultationTx) Appointment() domain.Appointment {
	return t.appt
}

func (t *consultationTx) FindConsultation(ctx context.Context, appointmentID uuid.UUID) (domain.Consultation, bool, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	c, ok := t.s.consultations[appointmentID]
	return c, ok, nil
}

func (t *consultationTx) UpdateAppointment(ctx context.Context, appt domain.Appointment, from domain.AppointmentStatus) (domain.Appointment, error) {
	return t.s.Transition(ctx, appt, from)
}

func (t *consultationTx) CreateConsultation(ctx context.Context, c domain.Consultation) (domain.Consultation, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if _, ok := t.s.consultations[c.AppointmentID]; ok {
		return domain.Consultation{}, store.ErrConflict
	}
	if c.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return domain.Consultation{}, err
		}
		c.ID = id
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = t.s.now()
	}
	t.s.consultations[c.AppointmentID] = c
	return c, nil
}

func (s *Store) GetConsultation(ctx context.Context, appointmentID uuid.UUID) (domain.Consultation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.consultations[appointmentID]
	if !ok {
		return domain.Consultation{}, store.ErrNotFound
	}
	return c, nil
}

func (s *Store) ListConsultations(ctx context.Context, patientID uuid.UUID) ([]domain.Consultation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Consultation
	for _, c := range s.consultations {
		if c.PatientID == patientID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConsultationDate.After(out[j].ConsultationDate) })
	return out, nil
}
