package appointment

import (
	"time"

	"github.com/google/uuid"
)

// Status is the calendar-level state of an appointment.
type Status string

const (
	StatusUpcoming  Status = "upcoming"
	StatusPast      Status = "past"
	StatusCancelled Status = "cancelled"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
)

// Live reports whether the appointment still occupies its doctor's slot.
func (s Status) Live() bool {
	return s == StatusUpcoming || s == StatusApproved
}

// TreatmentState is the clinical, in-person progress of an appointment.
type TreatmentState string

const (
	TreatmentPending  TreatmentState = "pending"
	TreatmentVerified TreatmentState = "verified"
	TreatmentTreated  TreatmentState = "treated"
	TreatmentNoShow   TreatmentState = "no-show"
)

type Review struct {
	Rating    int
	Comment   string
	CreatedAt time.Time
}

type Appointment struct {
	ID               uuid.UUID
	DoctorID         uuid.UUID
	PatientID        *uuid.UUID // nil for anonymous bookings
	PatientName      string
	Date             Day
	Time             string
	Treatment        string
	Status           Status
	TreatmentState   TreatmentState
	OTP              string
	OTPExpires       time.Time
	OTPVerified      bool
	PrescriptionFile string
	PrescriptionText string
	DoctorNotes      string
	Review           *Review
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Reviewed reports whether a review with a rating has been recorded.
func (a *Appointment) Reviewed() bool {
	return a.Review != nil && a.Review.Rating != 0
}

type Doctor struct {
	ID             uuid.UUID
	Name           string
	Email          string
	Specialization string
	Avatar         *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PatientSummary is one linked patient of a doctor and how often they booked.
type PatientSummary struct {
	ID               uuid.UUID
	Name             string
	Email            *string
	AppointmentCount int
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

type AppointmentDetail struct {
	Appointment
	Doctor  *Doctor
	Patient *Patient
}

// Booking is the result of a successful booking: the stored appointment and
// the plaintext OTP the booker must present at the visit.
type Booking struct {
	Appointment *Appointment
	OTP         string
}
