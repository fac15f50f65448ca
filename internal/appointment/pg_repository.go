package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const appointmentColumns = `
	a.id, a.doctor_id, a.patient_id, a.patient_name, a.date, a.time, a.treatment,
	a.status, a.treatment_state, a.otp, a.otp_expires, a.otp_verified,
	a.prescription_file, a.prescription_text, a.doctor_notes,
	a.review_rating, a.review_comment, a.review_created_at,
	a.created_at, a.updated_at`

const doctorColumns = `d.id, d.name, d.email, d.specialization, d.avatar, d.created_at, d.updated_at`

// Helpers

func appointmentDest(a *Appointment, date *time.Time, rating **int32, comment **string, reviewedAt **time.Time) []any {
	return []any{
		&a.ID,
		&a.DoctorID,
		&a.PatientID,
		&a.PatientName,
		date,
		&a.Time,
		&a.Treatment,
		&a.Status,
		&a.TreatmentState,
		&a.OTP,
		&a.OTPExpires,
		&a.OTPVerified,
		&a.PrescriptionFile,
		&a.PrescriptionText,
		&a.DoctorNotes,
		rating,
		comment,
		reviewedAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	}
}

func finishAppointment(a *Appointment, date time.Time, rating *int32, comment *string, reviewedAt *time.Time) {
	a.Date = DayOf(date)
	if rating != nil {
		a.Review = &Review{Rating: int(*rating)}
		if comment != nil {
			a.Review.Comment = *comment
		}
		if reviewedAt != nil {
			a.Review.CreatedAt = *reviewedAt
		}
	}
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a          Appointment
		date       time.Time
		rating     *int32
		comment    *string
		reviewedAt *time.Time
	)

	if err := row.Scan(appointmentDest(&a, &date, &rating, &comment, &reviewedAt)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	finishAppointment(&a, date, rating, comment, reviewedAt)
	return &a, nil
}

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor

	err := row.Scan(
		&d.ID,
		&d.Name,
		&d.Email,
		&d.Specialization,
		&d.Avatar,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}

	return &d, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	result := []Appointment{}
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func reviewColumns(a *Appointment) (*int32, *string, *time.Time) {
	if a.Review == nil || a.Review.Rating == 0 {
		return nil, nil, nil
	}
	rating := int32(a.Review.Rating)
	comment := a.Review.Comment
	reviewedAt := a.Review.CreatedAt
	return &rating, &comment, &reviewedAt
}

// Interface methods

func (r *PgRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+doctorColumns+`
		FROM doctors d
		WHERE d.id = $1
	`, id)
	return scanDoctor(row)
}

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	var p Patient
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Email, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *PgRepository) CreateDoctor(ctx context.Context, d *Doctor) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO doctors (id, name, email, specialization, avatar, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, d.ID, d.Name, d.Email, d.Specialization, d.Avatar, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert doctor: %w", err)
	}
	return nil
}

func (r *PgRepository) CreatePatient(ctx context.Context, p *Patient) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO patients (id, name, email, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, p.ID, p.Name, p.Email, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert patient: %w", err)
	}
	return nil
}

func (r *PgRepository) CreateAppointment(ctx context.Context, a *Appointment) error {
	rating, comment, reviewedAt := reviewColumns(a)

	_, err := r.pool.Exec(ctx, `
		INSERT INTO appointments (
			id, doctor_id, patient_id, patient_name, date, time, treatment,
			status, treatment_state, otp, otp_expires, otp_verified,
			prescription_file, prescription_text, doctor_notes,
			review_rating, review_comment, review_created_at,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`,
		a.ID, a.DoctorID, a.PatientID, a.PatientName, a.Date.Time(), a.Time, a.Treatment,
		a.Status, a.TreatmentState, a.OTP, a.OTPExpires, a.OTPVerified,
		a.PrescriptionFile, a.PrescriptionText, a.DoctorNotes,
		rating, comment, reviewedAt,
		a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

// SaveAppointment writes back the mutable fields of an existing appointment.
func (r *PgRepository) SaveAppointment(ctx context.Context, a *Appointment) error {
	rating, comment, reviewedAt := reviewColumns(a)

	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET status = $2,
		    treatment_state = $3,
		    otp_verified = $4,
		    prescription_file = $5,
		    prescription_text = $6,
		    doctor_notes = $7,
		    review_rating = $8,
		    review_comment = $9,
		    review_created_at = $10,
		    updated_at = $11
		WHERE id = $1
	`,
		a.ID, a.Status, a.TreatmentState, a.OTPVerified,
		a.PrescriptionFile, a.PrescriptionText, a.DoctorNotes,
		rating, comment, reviewedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *PgRepository) GetAppointmentForDoctor(ctx context.Context, id, doctorID uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments a
		WHERE a.id = $1 AND a.doctor_id = $2
	`, id, doctorID)
	return scanAppointment(row)
}

func (r *PgRepository) GetAppointmentForPatient(ctx context.Context, id, patientID uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments a
		WHERE a.id = $1 AND a.patient_id = $2
	`, id, patientID)
	return scanAppointment(row)
}

func (r *PgRepository) GetAppointmentDetail(ctx context.Context, id, doctorID uuid.UUID) (*AppointmentDetail, error) {
	var (
		detail     AppointmentDetail
		date       time.Time
		rating     *int32
		comment    *string
		reviewedAt *time.Time
		doc        Doctor
		patID      *uuid.UUID
		patName    *string
		patEmail   *string
	)

	dest := appointmentDest(&detail.Appointment, &date, &rating, &comment, &reviewedAt)
	dest = append(dest,
		&doc.ID, &doc.Name, &doc.Email, &doc.Specialization, &doc.Avatar, &doc.CreatedAt, &doc.UpdatedAt,
		&patID, &patName, &patEmail,
	)

	err := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`, `+doctorColumns+`, p.id, p.name, p.email
		FROM appointments a
		JOIN doctors d ON d.id = a.doctor_id
		LEFT JOIN patients p ON p.id = a.patient_id
		WHERE a.id = $1 AND a.doctor_id = $2
	`, id, doctorID).Scan(dest...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	finishAppointment(&detail.Appointment, date, rating, comment, reviewedAt)
	detail.Doctor = &doc
	if patID != nil {
		detail.Patient = &Patient{ID: *patID, Email: patEmail}
		if patName != nil {
			detail.Patient.Name = *patName
		}
	}
	return &detail, nil
}

func (r *PgRepository) FindLiveAppointmentForSlot(ctx context.Context, doctorID uuid.UUID, day Day, slotTime string) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments a
		WHERE a.doctor_id = $1
		  AND a.date = $2
		  AND a.time = $3
		  AND a.status IN ('upcoming', 'approved')
		LIMIT 1
	`, doctorID, day.Time(), slotTime)
	return scanAppointment(row)
}

func (r *PgRepository) ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments a
		WHERE a.doctor_id = $1
		ORDER BY a.date ASC, a.time ASC
	`, doctorID)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) ListByDoctorAndPatient(ctx context.Context, doctorID, patientID uuid.UUID) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments a
		WHERE a.doctor_id = $1 AND a.patient_id = $2
		ORDER BY a.date ASC, a.time ASC
	`, doctorID, patientID)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]AppointmentDetail, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`, `+doctorColumns+`
		FROM appointments a
		JOIN doctors d ON d.id = a.doctor_id
		WHERE a.patient_id = $1
		ORDER BY a.date ASC, a.time ASC
	`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []AppointmentDetail{}
	for rows.Next() {
		var (
			detail     AppointmentDetail
			date       time.Time
			rating     *int32
			comment    *string
			reviewedAt *time.Time
			doc        Doctor
		)
		dest := appointmentDest(&detail.Appointment, &date, &rating, &comment, &reviewedAt)
		dest = append(dest, &doc.ID, &doc.Name, &doc.Email, &doc.Specialization, &doc.Avatar, &doc.CreatedAt, &doc.UpdatedAt)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		finishAppointment(&detail.Appointment, date, rating, comment, reviewedAt)
		detail.Doctor = &doc
		result = append(result, detail)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) ListDoctorPatients(ctx context.Context, doctorID uuid.UUID) ([]PatientSummary, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT p.id, p.name, p.email, COUNT(a.id)
		FROM appointments a
		JOIN patients p ON p.id = a.patient_id
		WHERE a.doctor_id = $1
		GROUP BY p.id, p.name, p.email
		ORDER BY p.name ASC
	`, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []PatientSummary{}
	for rows.Next() {
		var s PatientSummary
		if err := rows.Scan(&s.ID, &s.Name, &s.Email, &s.AppointmentCount); err != nil {
			return nil, err
		}
		result = append(result, s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// MarkPast flips every still-live appointment dated before the given day.
func (r *PgRepository) MarkPast(ctx context.Context, before Day) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE appointments
		SET status = 'past',
		    updated_at = now()
		WHERE status IN ('upcoming', 'approved')
		  AND date < $1
		RETURNING id
	`, before.Time())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

// Ping reports whether the pool can still reach postgres.
func (r *PgRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
