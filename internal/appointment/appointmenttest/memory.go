// Package appointmenttest provides an in-memory appointment store for tests.
package appointmenttest

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/parchi-health/parchi/internal/appointment"
)

// MemoryRepository satisfies appointment.Repository with maps guarded by a
// mutex. Stored values are copied on the way in and out.
type MemoryRepository struct {
	mu           sync.Mutex
	doctors      map[uuid.UUID]appointment.Doctor
	patients     map[uuid.UUID]appointment.Patient
	appointments map[uuid.UUID]appointment.Appointment
	events       []appointment.EventLog
}

var (
	_ appointment.Repository = (*MemoryRepository)(nil)
	_ appointment.Directory  = (*MemoryRepository)(nil)
)

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		doctors:      map[uuid.UUID]appointment.Doctor{},
		patients:     map[uuid.UUID]appointment.Patient{},
		appointments: map[uuid.UUID]appointment.Appointment{},
	}
}

func (r *MemoryRepository) AddDoctor(d appointment.Doctor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.doctors[d.ID] = d
}

func (r *MemoryRepository) AddPatient(p appointment.Patient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patients[p.ID] = p
}

func (r *MemoryRepository) CreateDoctor(_ context.Context, d *appointment.Doctor) error {
	r.AddDoctor(*d)
	return nil
}

func (r *MemoryRepository) CreatePatient(_ context.Context, p *appointment.Patient) error {
	r.AddPatient(*p)
	return nil
}

// Appointment returns the stored copy of an appointment.
func (r *MemoryRepository) Appointment(id uuid.UUID) (appointment.Appointment, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appointments[id]
	return clone(a), ok
}

// Put stores an appointment directly, bypassing the service.
func (r *MemoryRepository) Put(a appointment.Appointment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appointments[a.ID] = clone(a)
}

// Events returns the event types logged so far, oldest first.
func (r *MemoryRepository) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.EventType)
	}
	return out
}

func clone(a appointment.Appointment) appointment.Appointment {
	if a.PatientID != nil {
		id := *a.PatientID
		a.PatientID = &id
	}
	if a.Review != nil {
		rv := *a.Review
		a.Review = &rv
	}
	return a
}

func (r *MemoryRepository) GetDoctorByID(_ context.Context, id uuid.UUID) (*appointment.Doctor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.doctors[id]
	if !ok {
		return nil, appointment.ErrDoctorNotFound
	}
	return &d, nil
}

func (r *MemoryRepository) GetPatientByID(_ context.Context, id uuid.UUID) (*appointment.Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.patients[id]
	if !ok {
		return nil, appointment.ErrPatientNotFound
	}
	return &p, nil
}

func (r *MemoryRepository) CreateAppointment(_ context.Context, a *appointment.Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appointments[a.ID] = clone(*a)
	return nil
}

func (r *MemoryRepository) SaveAppointment(_ context.Context, a *appointment.Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.appointments[a.ID]; !ok {
		return appointment.ErrAppointmentNotFound
	}
	r.appointments[a.ID] = clone(*a)
	return nil
}

func (r *MemoryRepository) find(match func(appointment.Appointment) bool) (*appointment.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.appointments {
		if match(a) {
			c := clone(a)
			return &c, nil
		}
	}
	return nil, appointment.ErrAppointmentNotFound
}

func (r *MemoryRepository) GetAppointmentForDoctor(_ context.Context, id, doctorID uuid.UUID) (*appointment.Appointment, error) {
	return r.find(func(a appointment.Appointment) bool {
		return a.ID == id && a.DoctorID == doctorID
	})
}

func (r *MemoryRepository) GetAppointmentForPatient(_ context.Context, id, patientID uuid.UUID) (*appointment.Appointment, error) {
	return r.find(func(a appointment.Appointment) bool {
		return a.ID == id && a.PatientID != nil && *a.PatientID == patientID
	})
}

func (r *MemoryRepository) GetAppointmentDetail(ctx context.Context, id, doctorID uuid.UUID) (*appointment.AppointmentDetail, error) {
	a, err := r.GetAppointmentForDoctor(ctx, id, doctorID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	detail := &appointment.AppointmentDetail{Appointment: *a}
	if d, ok := r.doctors[a.DoctorID]; ok {
		detail.Doctor = &d
	}
	if a.PatientID != nil {
		if p, ok := r.patients[*a.PatientID]; ok {
			detail.Patient = &p
		}
	}
	return detail, nil
}

func (r *MemoryRepository) FindLiveAppointmentForSlot(_ context.Context, doctorID uuid.UUID, day appointment.Day, slotTime string) (*appointment.Appointment, error) {
	return r.find(func(a appointment.Appointment) bool {
		return a.DoctorID == doctorID && a.Date.Equal(day) && a.Time == slotTime && a.Status.Live()
	})
}

func (r *MemoryRepository) list(match func(appointment.Appointment) bool) []appointment.Appointment {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []appointment.Appointment{}
	for _, a := range r.appointments {
		if match(a) {
			out = append(out, clone(a))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Time < out[j].Time
	})
	return out
}

func (r *MemoryRepository) ListByDoctor(_ context.Context, doctorID uuid.UUID) ([]appointment.Appointment, error) {
	return r.list(func(a appointment.Appointment) bool { return a.DoctorID == doctorID }), nil
}

func (r *MemoryRepository) ListByDoctorAndPatient(_ context.Context, doctorID, patientID uuid.UUID) ([]appointment.Appointment, error) {
	return r.list(func(a appointment.Appointment) bool {
		return a.DoctorID == doctorID && a.PatientID != nil && *a.PatientID == patientID
	}), nil
}

func (r *MemoryRepository) ListByPatient(_ context.Context, patientID uuid.UUID) ([]appointment.AppointmentDetail, error) {
	list := r.list(func(a appointment.Appointment) bool {
		return a.PatientID != nil && *a.PatientID == patientID
	})

	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]appointment.AppointmentDetail, 0, len(list))
	for _, a := range list {
		detail := appointment.AppointmentDetail{Appointment: a}
		if d, ok := r.doctors[a.DoctorID]; ok {
			detail.Doctor = &d
		}
		out = append(out, detail)
	}
	return out, nil
}

func (r *MemoryRepository) ListDoctorPatients(_ context.Context, doctorID uuid.UUID) ([]appointment.PatientSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	counts := map[uuid.UUID]int{}
	for _, a := range r.appointments {
		if a.DoctorID == doctorID && a.PatientID != nil {
			counts[*a.PatientID]++
		}
	}

	out := []appointment.PatientSummary{}
	for id, n := range counts {
		p, ok := r.patients[id]
		if !ok {
			continue
		}
		out = append(out, appointment.PatientSummary{ID: p.ID, Name: p.Name, Email: p.Email, AppointmentCount: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *MemoryRepository) MarkPast(_ context.Context, before appointment.Day) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []uuid.UUID
	for id, a := range r.appointments {
		if a.Status.Live() && a.Date.Before(before) {
			a.Status = appointment.StatusPast
			r.appointments[id] = a
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r *MemoryRepository) InsertEvent(_ context.Context, ev appointment.EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}
