package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"carebridge/backend/internal/domain"
	"carebridge/backend/internal/store"
)

// DirectoryRepo reads the doctor and patient profiles owned by the
// directory tables.
type DirectoryRepo struct {
	db    *bun.DB
	retry RetryPolicy
}

func NewDirectoryRepo(db *bun.DB, retry RetryPolicy) *DirectoryRepo {
	return &DirectoryRepo{db: db, retry: retry}
}

func (r *DirectoryRepo) DoctorByID(ctx context.Context, doctorID uuid.UUID) (domain.DoctorProfile, error) {
	var out domain.DoctorProfile
	err := r.selectOne(ctx, &out, "id = ?", doctorID)
	return out, err
}

func (r *DirectoryRepo) DoctorByUser(ctx context.Context, userID string) (domain.DoctorProfile, error) {
	var out domain.DoctorProfile
	err := r.selectOne(ctx, &out, "user_id = ?", userID)
	return out, err
}

func (r *DirectoryRepo) PatientByID(ctx context.Context, patientID uuid.UUID) (domain.PatientProfile, error) {
	var out domain.PatientProfile
	err := r.selectOne(ctx, &out, "id = ?", patientID)
	return out, err
}

func (r *DirectoryRepo) PatientByUser(ctx context.Context, userID string) (domain.PatientProfile, error) {
	var out domain.PatientProfile
	err := r.selectOne(ctx, &out, "user_id = ?", userID)
	return out, err
}

func (r *DirectoryRepo) selectOne(ctx context.Context, model any, where string, arg any) error {
	return r.retry.Do(ctx, "directory", func(ctx context.Context) error {
		err := r.db.NewSelect().Model(model).Where(where, arg).Limit(1).Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		return err
	})
}
