package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"carebridge/backend/internal/domain"
	"carebridge/backend/internal/store"
)

type AppointmentRepo struct {
	db    *bun.DB
	retry RetryPolicy
}

func NewAppointmentRepo(db *bun.DB, retry RetryPolicy) *AppointmentRepo {
	return &AppointmentRepo{db: db, retry: retry}
}

type schedulingTx struct {
	tx bun.Tx
}

// InDoctorTransaction runs fn in a transaction holding the doctor's advisory
// lock, so conflict checks and inserts for one doctor are serialized.
func (r *AppointmentRepo) InDoctorTransaction(ctx context.Context, doctorID uuid.UUID, fn func(ctx context.Context, tx store.SchedulingTx) error) error {
	return r.retry.Do(ctx, "book", func(ctx context.Context) error {
		return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			if err := lockDoctorCalendar(ctx, tx, doctorID); err != nil {
				return err
			}
			return fn(ctx, schedulingTx{tx: tx})
		})
	})
}

func lockDoctorCalendar(ctx context.Context, tx bun.Tx, doctorID uuid.UUID) error {
	_, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", "doctor:"+doctorID.String()).Exec(ctx)
	return err
}

func (r *AppointmentRepo) Get(ctx context.Context, appointmentID uuid.UUID) (domain.Appointment, error) {
	var out domain.Appointment
	err := r.retry.Do(ctx, "get", func(ctx context.Context) error {
		var err error
		out, err = getAppointment(ctx, r.db, appointmentID, false)
		return err
	})
	return out, err
}

func (r *AppointmentRepo) Transition(ctx context.Context, appt domain.Appointment, from domain.AppointmentStatus) (domain.Appointment, error) {
	var out domain.Appointment
	err := r.retry.Do(ctx, "transition", func(ctx context.Context) error {
		var err error
		out, err = compareAndSetStatus(ctx, r.db, appt, from)
		return err
	})
	return out, err
}

func (r *AppointmentRepo) ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]domain.Appointment, error) {
	return r.list(ctx, "doctor_id", doctorID)
}

func (r *AppointmentRepo) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]domain.Appointment, error) {
	return r.list(ctx, "patient_id", patientID)
}

func (r *AppointmentRepo) list(ctx context.Context, column string, id uuid.UUID) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	err := r.retry.Do(ctx, "list", func(ctx context.Context) error {
		rows = nil
		return r.db.NewSelect().
			Model(&rows).
			Where("? = ?", bun.Ident(column), id).
			OrderExpr("start_time DESC").
			Scan(ctx)
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (t schedulingTx) FindOverlapping(ctx context.Context, doctorID uuid.UUID, windowStart, windowEnd time.Time) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	err := t.tx.NewSelect().
		Model(&rows).
		Where("doctor_id = ?", doctorID).
		Where("status = ?", domain.AppointmentStatusScheduled).
		Where("start_time < ?", windowEnd.UTC()).
		Where("end_time > ?", windowStart.UTC()).
		OrderExpr("start_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (t schedulingTx) GetAppointment(ctx context.Context, appointmentID uuid.UUID) (domain.Appointment, error) {
	return getAppointment(ctx, t.tx, appointmentID, false)
}

// CreateAppointment inserts appt. A row with the same id is an idempotent
// replay when its booking fields match and an ErrIdempotencyConflict otherwise.
func (t schedulingTx) CreateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	m := appt
	res, err := t.tx.NewInsert().
		Model(&m).
		On("CONFLICT (id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23P01" && pgErr.ConstraintName == "appointments_no_overlap" {
			return domain.Appointment{}, store.ErrConflict
		}
		return domain.Appointment{}, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Appointment{}, err
	}
	if affected == 1 {
		return m, nil
	}

	existing, err := getAppointment(ctx, t.tx, appt.ID, false)
	if err != nil {
		return domain.Appointment{}, err
	}
	if !existing.SameBooking(appt) {
		return domain.Appointment{}, store.ErrIdempotencyConflict
	}
	return existing, nil
}

func getAppointment(ctx context.Context, db bun.IDB, appointmentID uuid.UUID, forUpdate bool) (domain.Appointment, error) {
	var out domain.Appointment
	q := db.NewSelect().
		Model(&out).
		Where("id = ?", appointmentID).
		Limit(1)
	if forUpdate {
		q = q.For("UPDATE")
	}
	if err := q.Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Appointment{}, store.ErrNotFound
		}
		return domain.Appointment{}, err
	}
	return out, nil
}

// compareAndSetStatus writes the transition only while the row still holds
// the from status.
func compareAndSetStatus(ctx context.Context, db bun.IDB, appt domain.Appointment, from domain.AppointmentStatus) (domain.Appointment, error) {
	m := appt
	res, err := db.NewUpdate().
		Model(&m).
		Column("status", "end_time", "cancelled_by", "updated_at").
		Where("id = ?", appt.ID).
		Where("status = ?", from).
		Exec(ctx)
	if err != nil {
		return domain.Appointment{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Appointment{}, err
	}
	if affected == 1 {
		return m, nil
	}

	if _, err := getAppointment(ctx, db, appt.ID, false); err != nil {
		return domain.Appointment{}, err
	}
	return domain.Appointment{}, fmt.Errorf("appointment %s is no longer %s: %w", appt.ID, from, store.ErrStaleState)
}
