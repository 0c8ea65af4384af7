package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// SlotDuration is the fixed length of every consultation.
const SlotDuration = 60 * time.Minute

type AppointmentStatus string

const (
	AppointmentStatusScheduled AppointmentStatus = "SCHEDULED"
	AppointmentStatusCancelled AppointmentStatus = "CANCELLED"
	AppointmentStatusCompleted AppointmentStatus = "COMPLETED"
)

func (s AppointmentStatus) Terminal() bool {
	return s == AppointmentStatusCancelled || s == AppointmentStatusCompleted
}

func (s AppointmentStatus) Valid() bool {
	switch s {
	case AppointmentStatusScheduled, AppointmentStatusCancelled, AppointmentStatusCompleted:
		return true
	default:
		return false
	}
}

type Appointment struct {
	bun.BaseModel `bun:"table:appointments"`

	ID                    uuid.UUID         `bun:"id,pk,type:uuid"`
	DoctorID              uuid.UUID         `bun:"doctor_id,notnull,type:uuid"`
	PatientID             uuid.UUID         `bun:"patient_id,notnull,type:uuid"`
	StartTime             time.Time         `bun:"start_time,notnull"`
	EndTime               time.Time         `bun:"end_time,notnull"`
	Status                AppointmentStatus `bun:"status,notnull"`
	MeetingLink           string            `bun:"meeting_link,notnull"`
	PurposeOfConsultation string            `bun:"purpose_of_consultation"`
	InitialSymptoms       string            `bun:"initial_symptoms"`
	CancelledBy           *string           `bun:"cancelled_by"`
	CreatedAt             time.Time         `bun:"created_at,notnull"`
	UpdatedAt             time.Time         `bun:"updated_at,notnull"`
}

// ScheduledEnd is the end of the booked slot, ignoring any completion rewrite.
func (a Appointment) ScheduledEnd() time.Time {
	return a.StartTime.Add(SlotDuration)
}

// HasParticipant reports whether the doctor or patient profile ids belong to the appointment.
func (a Appointment) HasParticipant(doctorID, patientID uuid.UUID) bool {
	if doctorID != uuid.Nil && a.DoctorID == doctorID {
		return true
	}
	return patientID != uuid.Nil && a.PatientID == patientID
}

// SameBooking reports whether b requests the same booking as a. The meeting
// link and audit fields are generated per attempt and are not compared.
func (a Appointment) SameBooking(b Appointment) bool {
	return a.DoctorID == b.DoctorID &&
		a.PatientID == b.PatientID &&
		a.StartTime.Equal(b.StartTime) &&
		a.PurposeOfConsultation == b.PurposeOfConsultation &&
		a.InitialSymptoms == b.InitialSymptoms
}

func (a *Appointment) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if a.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			a.ID = id
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		if a.UpdatedAt.IsZero() {
			a.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		a.UpdatedAt = now
	}
	return nil
}
