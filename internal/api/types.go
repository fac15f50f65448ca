package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/parchi-health/parchi/internal/appointment"
)

type VerifyOTPRequest struct {
	OTP string `json:"otp"`
}

type PrescriptionTextRequest struct {
	Text string `json:"text"`
}

type ReviewResponse struct {
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"createdAt"`
}

type DoctorSummary struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	Specialization string    `json:"specialization"`
	Avatar         *string   `json:"avatar,omitempty"`
}

type PatientSummary struct {
	ID               uuid.UUID `json:"id"`
	Name             string    `json:"name"`
	Email            *string   `json:"email,omitempty"`
	AppointmentCount int       `json:"appointmentCount,omitempty"`
}

// AppointmentResponse is the full view of an appointment. OTP is only filled
// for the booker and the linked patient.
type AppointmentResponse struct {
	ID               uuid.UUID       `json:"id"`
	DoctorID         uuid.UUID       `json:"doctorId"`
	PatientID        *uuid.UUID      `json:"patientId"`
	PatientName      string          `json:"patientName"`
	Date             appointment.Day `json:"date"`
	DisplayDate      string          `json:"displayDate"`
	Time             string          `json:"time"`
	Treatment        string          `json:"treatment"`
	Status           string          `json:"status"`
	TreatmentState   string          `json:"treatmentState"`
	OTP              string          `json:"otp,omitempty"`
	OTPExpires       time.Time       `json:"otpExpires"`
	OTPVerified      bool            `json:"otpVerified"`
	PrescriptionFile string          `json:"prescriptionFile,omitempty"`
	PrescriptionURL  string          `json:"prescriptionUrl,omitempty"`
	PrescriptionText string          `json:"prescriptionText,omitempty"`
	DoctorNotes      string          `json:"doctorNotes,omitempty"`
	Review           *ReviewResponse `json:"review,omitempty"`
	Doctor           *DoctorSummary  `json:"doctor,omitempty"`
	Patient          *PatientSummary `json:"patient,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// PublicAppointmentResponse is what anyone may see on a doctor's calendar.
type PublicAppointmentResponse struct {
	ID          uuid.UUID       `json:"id"`
	Date        appointment.Day `json:"date"`
	DisplayDate string          `json:"displayDate"`
	Time        string          `json:"time"`
	Status      string          `json:"status"`
}

type AppointmentEnvelope struct {
	Success     bool                 `json:"success"`
	Message     string               `json:"message,omitempty"`
	Appointment *AppointmentResponse `json:"appointment"`
	OTP         string               `json:"otp,omitempty"`
}

type AppointmentsEnvelope struct {
	Success      bool                  `json:"success"`
	Appointments []AppointmentResponse `json:"appointments"`
}

type PublicAppointmentsEnvelope struct {
	Success      bool                        `json:"success"`
	Appointments []PublicAppointmentResponse `json:"appointments"`
}

type PatientsEnvelope struct {
	Success  bool             `json:"success"`
	Patients []PatientSummary `json:"patients"`
}

type PatientEnvelope struct {
	Success bool            `json:"success"`
	Patient *PatientSummary `json:"patient"`
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

// toAppointmentResponse builds the full view. withOTP controls whether the
// plaintext code is included.
func toAppointmentResponse(a *appointment.Appointment, prescriptionURL string, withOTP bool) AppointmentResponse {
	resp := AppointmentResponse{
		ID:               a.ID,
		DoctorID:         a.DoctorID,
		PatientID:        a.PatientID,
		PatientName:      a.PatientName,
		Date:             a.Date,
		DisplayDate:      a.Date.Display(),
		Time:             a.Time,
		Treatment:        a.Treatment,
		Status:           string(a.Status),
		TreatmentState:   string(a.TreatmentState),
		OTPExpires:       a.OTPExpires,
		OTPVerified:      a.OTPVerified,
		PrescriptionFile: a.PrescriptionFile,
		PrescriptionURL:  prescriptionURL,
		PrescriptionText: a.PrescriptionText,
		DoctorNotes:      a.DoctorNotes,
		CreatedAt:        a.CreatedAt,
		UpdatedAt:        a.UpdatedAt,
	}
	if withOTP {
		resp.OTP = a.OTP
	}
	if a.Reviewed() {
		resp.Review = &ReviewResponse{
			Rating:    a.Review.Rating,
			Comment:   a.Review.Comment,
			CreatedAt: a.Review.CreatedAt,
		}
	}
	return resp
}

func toDoctorSummary(d *appointment.Doctor) *DoctorSummary {
	if d == nil {
		return nil
	}
	return &DoctorSummary{
		ID:             d.ID,
		Name:           d.Name,
		Email:          d.Email,
		Specialization: d.Specialization,
		Avatar:         d.Avatar,
	}
}

func toPatientSummary(p *appointment.Patient) *PatientSummary {
	if p == nil {
		return nil
	}
	return &PatientSummary{ID: p.ID, Name: p.Name, Email: p.Email}
}

func toPublicAppointment(a appointment.Appointment) PublicAppointmentResponse {
	return PublicAppointmentResponse{
		ID:          a.ID,
		Date:        a.Date,
		DisplayDate: a.Date.Display(),
		Time:        a.Time,
		Status:      string(a.Status),
	}
}
