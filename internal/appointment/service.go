package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/parchi-health/parchi/internal/config"
	"github.com/parchi-health/parchi/internal/logger"
	redisclient "github.com/parchi-health/parchi/internal/redis"
)

const (
	EventAppointmentBooked     = "appointment.booked"
	EventOTPVerified           = "appointment.otp_verified"
	EventTreatmentUpdated      = "appointment.treatment_updated"
	EventPrescriptionAttached  = "appointment.prescription_attached"
	EventReviewSubmitted       = "appointment.reviewed"
	EventStatusChanged         = "appointment.status_changed"
	EventAppointmentRolledOver = "appointment.rolled_over"
)

const (
	NotificationOTP        = "otp"
	NotificationNewBooking = "new_booking"

	notificationTimeout = 5 * time.Second
	defaultOTPTTL       = 24 * time.Hour
)

var (
	ErrOTPAlreadyVerified = errors.New("otp already verified for this appointment")
	ErrOTPExpired         = errors.New("otp has expired")
	ErrInvalidOTP         = errors.New("invalid otp")
	ErrNotTreated         = errors.New("can only review appointments that have been treated")
	ErrReviewExists       = errors.New("review already exists for this appointment")
	ErrInvalidTransition  = errors.New("treatment state transition not allowed")
	ErrSlotTaken          = errors.New("doctor already has an appointment at this date and time")
	ErrSlotBeingBooked    = errors.New("slot is currently being booked, please retry")
	ErrAppointmentBusy    = errors.New("appointment is being updated, please retry")
	ErrBlobStoreMissing   = errors.New("prescription file storage is not configured")
	ErrPrescriptionUpload = errors.New("failed to store prescription file")
)

// Publisher receives lifecycle events. It replaces a process-wide realtime
// emitter so the service can be tested with a double.
type Publisher interface {
	Publish(ctx context.Context, eventName string, payload map[string]any) error
}

// Notifier accepts a message for asynchronous delivery to a recipient.
type Notifier interface {
	Notify(ctx context.Context, recipient, kind string, payload map[string]any) error
}

// BlobStore keeps uploaded files and resolves their references to URLs.
type BlobStore interface {
	Put(ctx context.Context, name, contentType string, body io.Reader) (string, error)
	URL(ref string) string
}

type BookingInput struct {
	PatientName string `json:"patientName" validate:"required"`
	Date        string `json:"date" validate:"required"`
	Time        string `json:"time" validate:"required"`
	Treatment   string `json:"treatment" validate:"required"`
}

type TreatmentUpdate struct {
	State       TreatmentState `json:"treatmentState" validate:"required,oneof=pending verified treated no-show"`
	DoctorNotes string         `json:"doctorNotes" validate:"max=1000"`
}

type ReviewInput struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment" validate:"max=500"`
}

type StatusInput struct {
	Status Status `json:"status" validate:"required,oneof=approved rejected cancelled"`
}

// Upload is a prescription file received from a doctor.
type Upload struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

type PrescriptionInput struct {
	File *Upload
	Text string
}

type Service struct {
	repo      Repository
	locker    redisclient.Locker
	cfg       config.Config
	log       *logger.Logger
	publisher Publisher
	notifier  Notifier
	blobs     BlobStore
	now       func() time.Time
	newOTP    func() (string, error)
}

type Option func(*Service)

func WithPublisher(p Publisher) Option { return func(s *Service) { s.publisher = p } }

func WithNotifier(n Notifier) Option { return func(s *Service) { s.notifier = n } }

func WithBlobStore(b BlobStore) Option { return func(s *Service) { s.blobs = b } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func WithOTPGenerator(gen func() (string, error)) Option {
	return func(s *Service) { s.newOTP = gen }
}

// NewService wires the lifecycle engine. locker may be nil, in which case
// critical sections run unguarded.
func NewService(repo Repository, locker redisclient.Locker, cfg config.Config, log *logger.Logger, opts ...Option) *Service {
	if cfg.OTPTTL <= 0 {
		cfg.OTPTTL = defaultOTPTTL
	}
	s := &Service{
		repo:   repo,
		locker: locker,
		cfg:    cfg,
		log:    log,
		now:    time.Now,
		newOTP: GenerateOTP,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BlobURL resolves a stored prescription reference, or "" when there is none.
func (s *Service) BlobURL(ref string) string {
	if ref == "" || s.blobs == nil {
		return ""
	}
	return s.blobs.URL(ref)
}

// Book creates an appointment with a fresh OTP. patientID is nil for
// anonymous bookers, who are identified only by name.
func (s *Service) Book(ctx context.Context, doctorID uuid.UUID, patientID *uuid.UUID, in BookingInput) (*Booking, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	day, err := ParseDay(in.Date)
	if err != nil {
		return nil, newValidationError("date", "date must be a calendar date like 2025-06-01")
	}

	if _, err := s.repo.GetDoctorByID(ctx, doctorID); err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}

	otp, err := s.newOTP()
	if err != nil {
		return nil, err
	}

	now := s.now()
	appt := &Appointment{
		ID:             uuid.New(),
		DoctorID:       doctorID,
		PatientID:      patientID,
		PatientName:    in.PatientName,
		Date:           day,
		Time:           in.Time,
		Treatment:      in.Treatment,
		Status:         StatusUpcoming,
		TreatmentState: TreatmentPending,
		OTP:            otp,
		OTPExpires:     now.Add(s.cfg.OTPTTL),
		OTPVerified:    false,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	create := func(ctx context.Context) error {
		if s.cfg.PreventDoubleBooking {
			existing, err := s.repo.FindLiveAppointmentForSlot(ctx, doctorID, day, in.Time)
			if err != nil && !errors.Is(err, ErrAppointmentNotFound) {
				return fmt.Errorf("check slot: %w", err)
			}
			if existing != nil {
				return ErrSlotTaken
			}
		}
		if err := s.repo.CreateAppointment(ctx, appt); err != nil {
			return fmt.Errorf("create appointment: %w", err)
		}
		return nil
	}

	if s.cfg.PreventDoubleBooking {
		key := fmt.Sprintf("slot:%s:%s:%s", doctorID, day, in.Time)
		err = s.withLock(ctx, key, ErrSlotBeingBooked, create)
	} else {
		err = create(ctx)
	}
	if err != nil {
		return nil, err
	}

	payload := map[string]any{
		"doctor_id": doctorID.String(),
		"date":      day.String(),
		"time":      appt.Time,
		"anonymous": patientID == nil,
	}
	s.logEvent(ctx, appt.ID, EventAppointmentBooked, payload)
	actor := "anonymous"
	if patientID != nil {
		actor = patientID.String()
	}
	s.audit(actor, "book", appt.ID, true, map[string]interface{}{"doctor_id": doctorID.String()})

	if patientID != nil {
		s.dispatch(ctx, patientID.String(), NotificationOTP, map[string]any{
			"appointment_id": appt.ID.String(),
			"otp":            otp,
			"otp_expires":    appt.OTPExpires,
			"date":           day.String(),
			"time":           appt.Time,
		})
	}
	s.dispatch(ctx, doctorID.String(), NotificationNewBooking, map[string]any{
		"appointment_id": appt.ID.String(),
		"patient_name":   appt.PatientName,
		"date":           day.String(),
		"time":           appt.Time,
		"treatment":      appt.Treatment,
	})

	return &Booking{Appointment: appt, OTP: otp}, nil
}

// VerifyOTP confirms the patient's in-person presence. The lookup is scoped to
// the calling doctor so one doctor cannot check in another's visit.
func (s *Service) VerifyOTP(ctx context.Context, id, doctorID uuid.UUID, submitted string) (*Appointment, error) {
	if submitted == "" {
		return nil, newValidationError("otp", "otp is required")
	}

	var verified *Appointment
	err := s.withLock(ctx, appointmentLockKey(id), ErrAppointmentBusy, func(ctx context.Context) error {
		appt, err := s.repo.GetAppointmentForDoctor(ctx, id, doctorID)
		if err != nil {
			return err
		}

		if appt.OTPVerified {
			return ErrOTPAlreadyVerified
		}
		if s.now().After(appt.OTPExpires) {
			return ErrOTPExpired
		}
		if !otpMatches(appt.OTP, submitted) {
			return ErrInvalidOTP
		}

		appt.OTPVerified = true
		appt.TreatmentState = TreatmentVerified
		appt.UpdatedAt = s.now()
		if err := s.repo.SaveAppointment(ctx, appt); err != nil {
			return fmt.Errorf("save appointment: %w", err)
		}
		verified = appt
		return nil
	})
	if err != nil {
		s.audit(doctorID.String(), "verify_otp", id, false, map[string]interface{}{"reason": err.Error()})
		return nil, err
	}

	s.logEvent(ctx, id, EventOTPVerified, map[string]any{"doctor_id": doctorID.String()})
	s.audit(doctorID.String(), "verify_otp", id, true, nil)
	return verified, nil
}

// UpdateTreatmentState records clinical progress and optionally replaces the
// doctor's notes.
func (s *Service) UpdateTreatmentState(ctx context.Context, id, doctorID uuid.UUID, in TreatmentUpdate) (*Appointment, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}

	var (
		updated *Appointment
		from    TreatmentState
	)
	err := s.withLock(ctx, appointmentLockKey(id), ErrAppointmentBusy, func(ctx context.Context) error {
		appt, err := s.repo.GetAppointmentForDoctor(ctx, id, doctorID)
		if err != nil {
			return err
		}

		from = appt.TreatmentState
		if !canTransition(from, in.State, s.cfg.StrictTreatmentTransitions) {
			return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, from, in.State)
		}

		appt.TreatmentState = in.State
		if in.DoctorNotes != "" {
			appt.DoctorNotes = in.DoctorNotes
		}
		appt.UpdatedAt = s.now()
		if err := s.repo.SaveAppointment(ctx, appt); err != nil {
			return fmt.Errorf("save appointment: %w", err)
		}
		updated = appt
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, id, EventTreatmentUpdated, map[string]any{
		"from": string(from),
		"to":   string(in.State),
	})
	s.audit(doctorID.String(), "update_treatment_state", id, true, map[string]interface{}{"to": in.State})
	return updated, nil
}

// AttachPrescription stores a prescription file and/or text. Whichever part is
// supplied replaces the stored one; the other is left untouched. The upload
// happens outside the appointment lock, and the appointment is re-read under
// it before the references are written.
func (s *Service) AttachPrescription(ctx context.Context, id, doctorID uuid.UUID, in PrescriptionInput) (*Appointment, error) {
	if in.File == nil && in.Text == "" {
		return nil, newValidationError("prescription", "a prescription file or text is required")
	}

	if _, err := s.repo.GetAppointmentForDoctor(ctx, id, doctorID); err != nil {
		return nil, err
	}

	var ref string
	if in.File != nil {
		if s.blobs == nil {
			return nil, ErrBlobStoreMissing
		}
		name := fmt.Sprintf("%s_%d%s", doctorID, s.now().UnixMilli(), path.Ext(in.File.Filename))
		stored, err := s.blobs.Put(ctx, name, in.File.ContentType, in.File.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrPrescriptionUpload, err)
		}
		ref = stored
	}

	var updated *Appointment
	err := s.withLock(ctx, appointmentLockKey(id), ErrAppointmentBusy, func(ctx context.Context) error {
		appt, err := s.repo.GetAppointmentForDoctor(ctx, id, doctorID)
		if err != nil {
			return err
		}

		if ref != "" {
			appt.PrescriptionFile = ref
		}
		if in.Text != "" {
			appt.PrescriptionText = in.Text
		}
		appt.UpdatedAt = s.now()
		if err := s.repo.SaveAppointment(ctx, appt); err != nil {
			return fmt.Errorf("save appointment: %w", err)
		}
		updated = appt
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, id, EventPrescriptionAttached, map[string]any{
		"file": in.File != nil,
		"text": in.Text != "",
	})
	s.audit(doctorID.String(), "attach_prescription", id, true, nil)
	return updated, nil
}

// SubmitReview lets the linked patient rate a treated visit exactly once.
func (s *Service) SubmitReview(ctx context.Context, id, patientID uuid.UUID, in ReviewInput) (*Appointment, error) {
	if in.Rating < 1 || in.Rating > 10 {
		return nil, newValidationError("rating", "rating must be an integer between 1 and 10")
	}
	if err := validateInput(in); err != nil {
		return nil, err
	}

	var reviewed *Appointment
	err := s.withLock(ctx, appointmentLockKey(id), ErrAppointmentBusy, func(ctx context.Context) error {
		appt, err := s.repo.GetAppointmentForPatient(ctx, id, patientID)
		if err != nil {
			return err
		}

		if appt.TreatmentState != TreatmentTreated {
			return ErrNotTreated
		}
		if appt.Reviewed() {
			return ErrReviewExists
		}

		now := s.now()
		appt.Review = &Review{
			Rating:    in.Rating,
			Comment:   in.Comment,
			CreatedAt: now,
		}
		appt.UpdatedAt = now
		if err := s.repo.SaveAppointment(ctx, appt); err != nil {
			return fmt.Errorf("save appointment: %w", err)
		}
		reviewed = appt
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, id, EventReviewSubmitted, map[string]any{
		"doctor_id": reviewed.DoctorID.String(),
		"rating":    in.Rating,
	})
	s.audit(patientID.String(), "submit_review", id, true, nil)
	return reviewed, nil
}

// SetStatus is the doctor's coarse scheduling control.
func (s *Service) SetStatus(ctx context.Context, id, doctorID uuid.UUID, in StatusInput) (*Appointment, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	if !settableStatuses[in.Status] {
		return nil, newValidationError("status", "status must be one of: approved, rejected, cancelled")
	}

	var (
		updated *Appointment
		from    Status
	)
	err := s.withLock(ctx, appointmentLockKey(id), ErrAppointmentBusy, func(ctx context.Context) error {
		appt, err := s.repo.GetAppointmentForDoctor(ctx, id, doctorID)
		if err != nil {
			return err
		}

		from = appt.Status
		appt.Status = in.Status
		appt.UpdatedAt = s.now()
		if err := s.repo.SaveAppointment(ctx, appt); err != nil {
			return fmt.Errorf("save appointment: %w", err)
		}
		updated = appt
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, id, EventStatusChanged, map[string]any{
		"from": string(from),
		"to":   string(in.Status),
	})
	s.audit(doctorID.String(), "set_status", id, true, map[string]interface{}{"to": in.Status})
	return updated, nil
}

// GetForDoctor returns one of the doctor's appointments with party summaries.
func (s *Service) GetForDoctor(ctx context.Context, id, doctorID uuid.UUID) (*AppointmentDetail, error) {
	detail, err := s.repo.GetAppointmentDetail(ctx, id, doctorID)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return detail, nil
}

// ListForDoctor is the doctor's calendar, ordered by date then time.
func (s *Service) ListForDoctor(ctx context.Context, doctorID uuid.UUID) ([]Appointment, error) {
	appointments, err := s.repo.ListByDoctor(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("list appointments by doctor: %w", err)
	}
	return appointments, nil
}

// ListPublicForDoctor backs the public calendar of a doctor. Callers must not
// expose OTPs or clinical fields from the result.
func (s *Service) ListPublicForDoctor(ctx context.Context, doctorID uuid.UUID) ([]Appointment, error) {
	return s.ListForDoctor(ctx, doctorID)
}

func (s *Service) ListForPatient(ctx context.Context, patientID uuid.UUID) ([]AppointmentDetail, error) {
	appointments, err := s.repo.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return appointments, nil
}

func (s *Service) ListDoctorPatients(ctx context.Context, doctorID uuid.UUID) ([]PatientSummary, error) {
	patients, err := s.repo.ListDoctorPatients(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("list doctor patients: %w", err)
	}
	return patients, nil
}

// GetDoctorPatient resolves a patient for a doctor's view. When no account
// exists, the name recorded on one of the doctor's appointments with that
// patient stands in for it.
func (s *Service) GetDoctorPatient(ctx context.Context, doctorID, patientID uuid.UUID) (*Patient, error) {
	patient, err := s.repo.GetPatientByID(ctx, patientID)
	if err == nil {
		return patient, nil
	}
	if !errors.Is(err, ErrPatientNotFound) {
		return nil, fmt.Errorf("get patient: %w", err)
	}

	appointments, err := s.repo.ListByDoctorAndPatient(ctx, doctorID, patientID)
	if err != nil {
		return nil, fmt.Errorf("list appointments by doctor and patient: %w", err)
	}
	if len(appointments) == 0 {
		return nil, ErrPatientNotFound
	}
	return &Patient{ID: patientID, Name: appointments[0].PatientName}, nil
}

func (s *Service) ListDoctorPatientAppointments(ctx context.Context, doctorID, patientID uuid.UUID) ([]Appointment, error) {
	appointments, err := s.repo.ListByDoctorAndPatient(ctx, doctorID, patientID)
	if err != nil {
		return nil, fmt.Errorf("list appointments by doctor and patient: %w", err)
	}
	return appointments, nil
}

// MarkPastAppointments is called by the rollover worker. Appointments still
// live on a calendar date before today become past.
func (s *Service) MarkPastAppointments(ctx context.Context) (int, error) {
	today := DayOf(s.now())
	ids, err := s.repo.MarkPast(ctx, today)
	if err != nil {
		return 0, fmt.Errorf("mark past appointments: %w", err)
	}

	for _, id := range ids {
		s.logEvent(ctx, id, EventAppointmentRolledOver, map[string]any{
			"before": today.String(),
		})
	}
	return len(ids), nil
}

func appointmentLockKey(id uuid.UUID) string {
	return "appointment:" + id.String()
}

func (s *Service) withLock(ctx context.Context, key string, busy error, fn func(ctx context.Context) error) error {
	if s.locker == nil {
		return fn(ctx)
	}
	err := s.locker.WithLock(ctx, key, fn)
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return busy
	}
	return err
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.WithError(err).WithField("event", eventType).Error("failed to marshal event payload")
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"event":          eventType,
			"appointment_id": appointmentID.String(),
		}).Error("failed to insert event log")
	}

	if s.publisher == nil {
		return
	}
	published := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		published[k] = v
	}
	published["appointment_id"] = appointmentID.String()
	if err := s.publisher.Publish(ctx, eventType, published); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"event":          eventType,
			"appointment_id": appointmentID.String(),
		}).Warn("failed to publish event")
	}
}

// dispatch hands a notification to the sink without blocking the caller.
// Delivery failures are only logged.
func (s *Service) dispatch(ctx context.Context, recipient, kind string, payload map[string]any) {
	if s.notifier == nil {
		return
	}
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notificationTimeout)
	go func() {
		defer cancel()
		if err := s.notifier.Notify(sendCtx, recipient, kind, payload); err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{
				"recipient": recipient,
				"kind":      kind,
			}).Warn("notification delivery failed")
		}
	}()
}

func (s *Service) audit(actor, action string, id uuid.UUID, success bool, details map[string]interface{}) {
	s.log.Audit(actor, action, "appointment:"+id.String(), success, details)
}
