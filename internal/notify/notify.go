// Package notify delivers best-effort email notifications about appointment
// changes. Dispatch never reports delivery results to the caller.
package notify

import (
	"context"
	"time"
)

const (
	TemplatePatientAppointment      = "patient-appointment"
	TemplateDoctorAppointment       = "doctor-appointment"
	TemplateAppointmentCancellation = "appointment-cancellation"
)

const (
	SubjectPatientAppointment      = "CareBridge: Your Appointment is Confirmed"
	SubjectDoctorAppointment       = "CareBridge: Your Appointment is Booked"
	SubjectAppointmentCancellation = "CareBridge: Appointment Cancellation"
)

// TimeLayout renders appointment instants in notification bodies.
const TimeLayout = "Monday, Jan 02, 2006 at 03:04 PM"

func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout) + " UTC"
}

type Notification struct {
	Recipient     string         `json:"recipient"`
	RecipientName string         `json:"recipient_name,omitempty"`
	Subject       string         `json:"subject"`
	Template      string         `json:"template"`
	Variables     map[string]any `json:"variables,omitempty"`
}

// Dispatcher hands a notification to a background executor. Implementations
// must not block the caller on delivery.
type Dispatcher interface {
	Dispatch(ctx context.Context, n Notification)
}

// Nop drops every notification.
type Nop struct{}

func (Nop) Dispatch(context.Context, Notification) {}
