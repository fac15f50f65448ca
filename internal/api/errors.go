package api

import (
	"errors"
	"net/http"

	"github.com/parchi-health/parchi/internal/appointment"
)

// classifyError maps service errors to a status, a stable machine code and a
// message safe to show to callers.
func classifyError(err error) (int, string, string) {
	var verr *appointment.ValidationError
	if errors.As(err, &verr) {
		return http.StatusBadRequest, "validation_error", verr.Message
	}

	switch {
	case errors.Is(err, appointment.ErrDoctorNotFound):
		return http.StatusNotFound, "doctor_not_found", "Doctor not found"
	case errors.Is(err, appointment.ErrPatientNotFound):
		return http.StatusNotFound, "patient_not_found", "Patient not found"
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		return http.StatusNotFound, "appointment_not_found", "Appointment not found"

	case errors.Is(err, appointment.ErrOTPAlreadyVerified):
		return http.StatusBadRequest, "otp_already_verified", "OTP already verified for this appointment"
	case errors.Is(err, appointment.ErrOTPExpired):
		return http.StatusBadRequest, "otp_expired", "OTP has expired"
	case errors.Is(err, appointment.ErrInvalidOTP):
		return http.StatusBadRequest, "invalid_otp", "Invalid OTP"

	case errors.Is(err, appointment.ErrInvalidTransition):
		return http.StatusBadRequest, "invalid_transition", err.Error()
	case errors.Is(err, appointment.ErrNotTreated):
		return http.StatusBadRequest, "invalid_state", "Can only review appointments that have been treated"
	case errors.Is(err, appointment.ErrReviewExists):
		return http.StatusBadRequest, "review_exists", "Review already exists for this appointment"

	case errors.Is(err, appointment.ErrSlotTaken):
		return http.StatusConflict, "slot_taken", "Doctor already has an appointment at this date and time"
	case errors.Is(err, appointment.ErrSlotBeingBooked):
		return http.StatusConflict, "slot_being_booked", "Slot is currently being booked, please retry shortly"
	case errors.Is(err, appointment.ErrAppointmentBusy):
		return http.StatusConflict, "appointment_busy", "Appointment is being updated, please retry shortly"

	case errors.Is(err, appointment.ErrPrescriptionUpload),
		errors.Is(err, appointment.ErrBlobStoreMissing):
		return http.StatusInternalServerError, "prescription_upload_failed", "failed to store prescription file"
	}

	return http.StatusInternalServerError, "internal_error", "server error"
}
