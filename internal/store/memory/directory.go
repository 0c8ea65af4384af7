package memory

import (
	"context"

	"github.com/google/uuid"

	"carebridge/backend/internal/domain"
	"carebridge/backend/internal/store"
)

func (s *Store) DoctorByID(ctx context.Context, doctorID uuid.UUID) (domain.DoctorProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.doctors[doctorID]
	if !ok {
		return domain.DoctorProfile{}, store.ErrNotFound
	}
	return d, nil
}

func (s *Store) DoctorByUser(ctx context.Context, userID string) (domain.DoctorProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.doctors {
		if d.UserID == userID {
			return d, nil
		}
	}
	return domain.DoctorProfile{}, store.ErrNotFound
}

func (s *Store) PatientByID(ctx context.Context, patientID uuid.UUID) (domain.PatientProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.patients[patientID]
	if !ok {
		return domain.PatientProfile{}, store.ErrNotFound
	}
	return p, nil
}

func (s *Store) PatientByUser(ctx context.Context, userID string) (domain.PatientProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.patients {
		if p.UserID == userID {
			return p, nil
		}
	}
	return domain.PatientProfile{}, store.ErrNotFound
}
