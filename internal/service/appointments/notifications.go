package appointments

import (
	"context"
	"log/slog"

	"carebridge/backend/internal/domain"
	"carebridge/backend/internal/notify"
)

func (s *Service) notifyBooked(ctx context.Context, appt domain.Appointment, doctor domain.DoctorProfile, patient domain.PatientProfile) {
	when := notify.FormatTime(appt.StartTime)

	s.dispatch(ctx, notify.Notification{
		Recipient:     patient.Email,
		RecipientName: patient.DisplayName(),
		Subject:       notify.SubjectPatientAppointment,
		Template:      notify.TemplatePatientAppointment,
		Variables: map[string]any{
			"patient_name":            patient.DisplayName(),
			"doctor_name":             doctor.DisplayName(),
			"appointment_time":        when,
			"is_virtual":              true,
			"meeting_link":            appt.MeetingLink,
			"purpose_of_consultation": appt.PurposeOfConsultation,
		},
	})
	s.dispatch(ctx, notify.Notification{
		Recipient:     doctor.Email,
		RecipientName: doctor.DisplayName(),
		Subject:       notify.SubjectDoctorAppointment,
		Template:      notify.TemplateDoctorAppointment,
		Variables: map[string]any{
			"doctor_name":             doctor.DisplayName(),
			"patient_full_name":       patient.DisplayName(),
			"appointment_time":        when,
			"is_virtual":              true,
			"meeting_link":            appt.MeetingLink,
			"initial_symptoms":        appt.InitialSymptoms,
			"purpose_of_consultation": appt.PurposeOfConsultation,
		},
	})
}

// notifyCancelled sends the cancellation template to both participants.
func (s *Service) notifyCancelled(ctx context.Context, appt domain.Appointment, doctor domain.DoctorProfile, patient domain.PatientProfile, cancelledBy string) {
	base := func(recipientName string) map[string]any {
		return map[string]any{
			"recipient_name":        recipientName,
			"cancelling_party_name": cancelledBy,
			"appointment_time":      notify.FormatTime(appt.StartTime),
			"doctor_name":           doctor.DisplayName(),
			"patient_full_name":     patient.DisplayName(),
		}
	}

	s.dispatch(ctx, notify.Notification{
		Recipient:     patient.Email,
		RecipientName: patient.DisplayName(),
		Subject:       notify.SubjectAppointmentCancellation,
		Template:      notify.TemplateAppointmentCancellation,
		Variables:     base(patient.DisplayName()),
	})
	s.dispatch(ctx, notify.Notification{
		Recipient:     doctor.Email,
		RecipientName: doctor.DisplayName(),
		Subject:       notify.SubjectAppointmentCancellation,
		Template:      notify.TemplateAppointmentCancellation,
		Variables:     base(doctor.DisplayName()),
	})
}

func (s *Service) dispatch(ctx context.Context, n notify.Notification) {
	if n.Recipient == "" {
		s.log.WarnContext(ctx, "notification skipped: recipient has no email",
			slog.String("template", n.Template),
			slog.String("recipient_name", n.RecipientName),
		)
		return
	}
	s.notifier.Dispatch(ctx, n)
}
