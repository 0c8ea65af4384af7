package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"carebridge/backend/internal/domain"
	"carebridge/backend/internal/store"
)

type ConsultationRepo struct {
	db    *bun.DB
	retry RetryPolicy
}

func NewConsultationRepo(db *bun.DB, retry RetryPolicy) *ConsultationRepo {
	return &ConsultationRepo{db: db, retry: retry}
}

type consultationTx struct {
	tx   bun.Tx
	appt domain.Appointment
}

// InAppointmentTransaction locks the appointment row for the duration of fn.
func (r *ConsultationRepo) InAppointmentTransaction(ctx context.Context, appointmentID uuid.UUID, fn func(ctx context.Context, tx store.ConsultationTx) error) error {
	return r.retry.Do(ctx, "record_consultation", func(ctx context.Context) error {
		return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			appt, err := getAppointment(ctx, tx, appointmentID, true)
			if err != nil {
				return err
			}
			return fn(ctx, consultationTx{tx: tx, appt: appt})
		})
	})
}

func (r *ConsultationRepo) GetConsultation(ctx context.Context, appointmentID uuid.UUID) (domain.Consultation, error) {
	var out domain.Consultation
	err := r.retry.Do(ctx, "get_consultation", func(ctx context.Context) error {
		c, found, err := findConsultation(ctx, r.db, appointmentID)
		if err != nil {
			return err
		}
		if !found {
			return store.ErrNotFound
		}
		out = c
		return nil
	})
	return out, err
}

func (r *ConsultationRepo) ListConsultations(ctx context.Context, patientID uuid.UUID) ([]domain.Consultation, error) {
	var rows []domain.Consultation
	err := r.retry.Do(ctx, "list_consultations", func(ctx context.Context) error {
		rows = nil
		return r.db.NewSelect().
			Model(&rows).
			Where("patient_id = ?", patientID).
			OrderExpr("consultation_date DESC").
			Scan(ctx)
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (t consultationTx) Appointment() domain.Appointment {
	return t.appt
}

func (t consultationTx) FindConsultation(ctx context.Context, appointmentID uuid.UUID) (domain.Consultation, bool, error) {
	return findConsultation(ctx, t.tx, appointmentID)
}

func (t consultationTx) UpdateAppointment(ctx context.Context, appt domain.Appointment, from domain.AppointmentStatus) (domain.Appointment, error) {
	return compareAndSetStatus(ctx, t.tx, appt, from)
}

func (t consultationTx) CreateConsultation(ctx context.Context, c domain.Consultation) (domain.Consultation, error) {
	m := c
	if _, err := t.tx.NewInsert().Model(&m).Exec(ctx); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "consultations_appointment_key" {
			return domain.Consultation{}, store.ErrConflict
		}
		return domain.Consultation{}, err
	}
	return m, nil
}

func findConsultation(ctx context.Context, db bun.IDB, appointmentID uuid.UUID) (domain.Consultation, bool, error) {
	var out domain.Consultation
	err := db.NewSelect().
		Model(&out).
		Where("appointment_id = ?", appointmentID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Consultation{}, false, nil
	}
	if err != nil {
		return domain.Consultation{}, false, err
	}
	return out, true, nil
}
