package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Consultation holds the clinical notes a doctor records for one appointment.
type Consultation struct {
	bun.BaseModel `bun:"table:consultations"`

	ID                uuid.UUID `bun:"id,pk,type:uuid"`
	AppointmentID     uuid.UUID `bun:"appointment_id,notnull,type:uuid"`
	PatientID         uuid.UUID `bun:"patient_id,notnull,type:uuid"`
	DoctorID          uuid.UUID `bun:"doctor_id,notnull,type:uuid"`
	ConsultationDate  time.Time `bun:"consultation_date,notnull"`
	SubjectiveNotes   string    `bun:"subjective_notes"`
	ObjectiveFindings string    `bun:"objective_findings"`
	Assessment        string    `bun:"assessment"`
	Plan              string    `bun:"plan"`
	CreatedAt         time.Time `bun:"created_at,notnull"`
}

func (c *Consultation) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	if _, ok := query.(*bun.InsertQuery); !ok {
		return nil
	}
	if c.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		c.ID = id
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	return nil
}
