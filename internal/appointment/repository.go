package appointment

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrPatientNotFound     = errors.New("patient not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
)

// Repository contains all store interactions needed by the service. Every
// write touches exactly one appointment document.
type Repository interface {
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)

	CreateAppointment(ctx context.Context, a *Appointment) error
	SaveAppointment(ctx context.Context, a *Appointment) error

	// Scoped lookups return ErrAppointmentNotFound when the owner does not
	// match, indistinguishable from a missing id.
	GetAppointmentForDoctor(ctx context.Context, id, doctorID uuid.UUID) (*Appointment, error)
	GetAppointmentForPatient(ctx context.Context, id, patientID uuid.UUID) (*Appointment, error)
	GetAppointmentDetail(ctx context.Context, id, doctorID uuid.UUID) (*AppointmentDetail, error)

	// For double booking checks
	FindLiveAppointmentForSlot(ctx context.Context, doctorID uuid.UUID, day Day, slotTime string) (*Appointment, error)

	// Listings, all ordered by date then time ascending
	ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]Appointment, error)
	ListByDoctorAndPatient(ctx context.Context, doctorID, patientID uuid.UUID) ([]Appointment, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]AppointmentDetail, error)
	ListDoctorPatients(ctx context.Context, doctorID uuid.UUID) ([]PatientSummary, error)

	// Rollover worker
	MarkPast(ctx context.Context, before Day) ([]uuid.UUID, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}

// Directory registers doctors and patients. Account management lives
// elsewhere; the seed tool and integration tests use this to populate a store.
type Directory interface {
	CreateDoctor(ctx context.Context, d *Doctor) error
	CreatePatient(ctx context.Context, p *Patient) error
}
