package grpc

import (
	"time"

	"carebridge/backend/internal/domain"
)

type Appointment struct {
	ID                    string    `json:"id"`
	DoctorID              string    `json:"doctor_id"`
	PatientID             string    `json:"patient_id"`
	StartTime             time.Time `json:"start_time"`
	EndTime               time.Time `json:"end_time"`
	Status                string    `json:"status"`
	MeetingLink           string    `json:"meeting_link"`
	PurposeOfConsultation string    `json:"purpose_of_consultation,omitempty"`
	InitialSymptoms       string    `json:"initial_symptoms,omitempty"`
	CancelledBy           string    `json:"cancelled_by,omitempty"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

type Consultation struct {
	ID                string    `json:"id"`
	AppointmentID     string    `json:"appointment_id"`
	DoctorID          string    `json:"doctor_id"`
	PatientID         string    `json:"patient_id"`
	ConsultationDate  time.Time `json:"consultation_date"`
	SubjectiveNotes   string    `json:"subjective_notes,omitempty"`
	ObjectiveFindings string    `json:"objective_findings,omitempty"`
	Assessment        string    `json:"assessment,omitempty"`
	Plan              string    `json:"plan,omitempty"`
}

type BookAppointmentRequest struct {
	DoctorID              string    `json:"doctor_id"`
	StartTime             time.Time `json:"start_time"`
	PurposeOfConsultation string    `json:"purpose_of_consultation,omitempty"`
	InitialSymptoms       string    `json:"initial_symptoms,omitempty"`
	// IdempotencyKey is used when the idempotency-key metadata is absent.
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// AppointmentRequest addresses one appointment by id.
type AppointmentRequest struct {
	AppointmentID string `json:"appointment_id"`
}

type AppointmentResponse struct {
	Appointment *Appointment `json:"appointment"`
}

type ListMyAppointmentsRequest struct{}

type ListAppointmentsResponse struct {
	Appointments []*Appointment `json:"appointments"`
}

type RecordConsultationRequest struct {
	AppointmentID     string `json:"appointment_id"`
	SubjectiveNotes   string `json:"subjective_notes,omitempty"`
	ObjectiveFindings string `json:"objective_findings,omitempty"`
	Assessment        string `json:"assessment,omitempty"`
	Plan              string `json:"plan,omitempty"`
}

type ConsultationResponse struct {
	Consultation *Consultation `json:"consultation"`
}

type ListConsultationHistoryRequest struct{}

type ListConsultationsResponse struct {
	Consultations []*Consultation `json:"consultations"`
}

func toWireAppointment(a domain.Appointment) *Appointment {
	out := &Appointment{
		ID:                    a.ID.String(),
		DoctorID:              a.DoctorID.String(),
		PatientID:             a.PatientID.String(),
		StartTime:             a.StartTime.UTC(),
		EndTime:               a.EndTime.UTC(),
		Status:                string(a.Status),
		MeetingLink:           a.MeetingLink,
		PurposeOfConsultation: a.PurposeOfConsultation,
		InitialSymptoms:       a.InitialSymptoms,
		CreatedAt:             a.CreatedAt.UTC(),
		UpdatedAt:             a.UpdatedAt.UTC(),
	}
	if a.CancelledBy != nil {
		out.CancelledBy = *a.CancelledBy
	}
	return out
}

func toWireConsultation(c domain.Consultation) *Consultation {
	return &Consultation{
		ID:                c.ID.String(),
		AppointmentID:     c.AppointmentID.String(),
		DoctorID:          c.DoctorID.String(),
		PatientID:         c.PatientID.String(),
		ConsultationDate:  c.ConsultationDate.UTC(),
		SubjectiveNotes:   c.SubjectiveNotes,
		ObjectiveFindings: c.ObjectiveFindings,
		Assessment:        c.Assessment,
		Plan:              c.Plan,
	}
}
