package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type NewAppointmentInput struct {
	ID                    uuid.UUID
	DoctorID              uuid.UUID
	PatientID             uuid.UUID
	StartTime             time.Time
	MeetingLink           string
	PurposeOfConsultation string
	InitialSymptoms       string
}

// NewScheduledAppointment is the create event of the appointment state machine.
// Lead time and conflict guards are evaluated by the caller before this runs.
func NewScheduledAppointment(in NewAppointmentInput) (Appointment, error) {
	if in.DoctorID == uuid.Nil || in.PatientID == uuid.Nil {
		return Appointment{}, NewError(ErrInvalidRequest, "doctor and patient are required")
	}
	if in.StartTime.IsZero() {
		return Appointment{}, NewError(ErrInvalidRequest, "start_time is required")
	}
	if strings.TrimSpace(in.MeetingLink) == "" {
		return Appointment{}, NewError(ErrInvalidRequest, "meeting link is required")
	}

	start := in.StartTime.UTC()
	return Appointment{
		ID:                    in.ID,
		DoctorID:              in.DoctorID,
		PatientID:             in.PatientID,
		StartTime:             start,
		EndTime:               start.Add(SlotDuration),
		Status:                AppointmentStatusScheduled,
		MeetingLink:           in.MeetingLink,
		PurposeOfConsultation: in.PurposeOfConsultation,
		InitialSymptoms:       in.InitialSymptoms,
	}, nil
}

// Cancel moves a scheduled appointment to CANCELLED.
func (a *Appointment) Cancel(byUserID string) error {
	if err := a.requireScheduled("cancel"); err != nil {
		return err
	}
	a.Status = AppointmentStatusCancelled
	if byUserID != "" {
		by := byUserID
		a.CancelledBy = &by
	}
	return nil
}

// Complete moves a scheduled appointment to COMPLETED and records the actual end.
func (a *Appointment) Complete(at time.Time) error {
	if err := a.requireScheduled("complete"); err != nil {
		return err
	}
	a.Status = AppointmentStatusCompleted
	a.EndTime = at.UTC()
	return nil
}

func (a *Appointment) requireScheduled(event string) error {
	if a.Status == AppointmentStatusScheduled {
		return nil
	}
	return Errorf(ErrInvalidStateTransition, "cannot %s an appointment that is %s", event, strings.ToLower(string(a.Status)))
}
