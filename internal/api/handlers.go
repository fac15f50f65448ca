package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/parchi-health/parchi/internal/appointment"
	"github.com/parchi-health/parchi/internal/auth"
	"github.com/parchi-health/parchi/internal/logger"
	"github.com/parchi-health/parchi/internal/metrics"
)

const maxPrescriptionUpload = 10 << 20

type Handler struct {
	svc     *appointment.Service
	log     *logger.Logger
	metrics *metrics.Collector
}

func NewHandler(svc *appointment.Service, log *logger.Logger, m *metrics.Collector) *Handler {
	return &Handler{svc: svc, log: log, metrics: m}
}

func (h *Handler) bookAppointment(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := h.uuidParam(w, r, "doctorId")
	if !ok {
		return
	}

	var req appointment.BookingInput
	if !h.decode(w, r, &req) {
		return
	}

	var patientID *uuid.UUID
	if identity, ok := auth.FromContext(r.Context()); ok && identity.IsPatient() {
		id := identity.ID
		patientID = &id
	}

	booking, err := h.svc.Book(r.Context(), doctorID, patientID, req)
	if err != nil {
		h.fail(w, r, "book", err)
		return
	}
	h.record("book", "ok")

	resp := toAppointmentResponse(booking.Appointment, "", true)
	writeJSON(w, http.StatusCreated, AppointmentEnvelope{
		Success:     true,
		Message:     "Appointment booked successfully",
		Appointment: &resp,
		OTP:         booking.OTP,
	})
}

func (h *Handler) verifyOTP(w http.ResponseWriter, r *http.Request) {
	id, ok := h.uuidParam(w, r, "id")
	if !ok {
		return
	}
	identity, _ := auth.FromContext(r.Context())

	var req VerifyOTPRequest
	if !h.decode(w, r, &req) {
		return
	}

	appt, err := h.svc.VerifyOTP(r.Context(), id, identity.ID, req.OTP)
	if err != nil {
		h.fail(w, r, "verify_otp", err)
		return
	}
	h.record("verify_otp", "ok")
	h.writeDoctorAppointment(w, "OTP verified successfully", appt)
}

func (h *Handler) updateTreatmentState(w http.ResponseWriter, r *http.Request) {
	id, ok := h.uuidParam(w, r, "id")
	if !ok {
		return
	}
	identity, _ := auth.FromContext(r.Context())

	var req appointment.TreatmentUpdate
	if !h.decode(w, r, &req) {
		return
	}

	appt, err := h.svc.UpdateTreatmentState(r.Context(), id, identity.ID, req)
	if err != nil {
		h.fail(w, r, "update_treatment_state", err)
		return
	}
	h.record("update_treatment_state", "ok")
	h.writeDoctorAppointment(w, "Treatment state updated", appt)
}

// attachPrescription accepts multipart form data with an optional "file" part
// and "text" field, or a JSON body carrying text only.
func (h *Handler) attachPrescription(w http.ResponseWriter, r *http.Request) {
	id, ok := h.uuidParam(w, r, "id")
	if !ok {
		return
	}
	identity, _ := auth.FromContext(r.Context())

	var in appointment.PrescriptionInput
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		r.Body = http.MaxBytesReader(w, r.Body, maxPrescriptionUpload+1<<20)
		if err := r.ParseMultipartForm(maxPrescriptionUpload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse multipart form")
			return
		}
		defer r.MultipartForm.RemoveAll()

		in.Text = r.FormValue("text")
		file, header, err := r.FormFile("file")
		switch {
		case errors.Is(err, http.ErrMissingFile):
		case err != nil:
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not read uploaded file")
			return
		default:
			defer file.Close()
			in.File = &appointment.Upload{
				Filename:    header.Filename,
				ContentType: header.Header.Get("Content-Type"),
				Body:        file,
			}
		}
	} else {
		var req PrescriptionTextRequest
		if !h.decode(w, r, &req) {
			return
		}
		in.Text = req.Text
	}

	appt, err := h.svc.AttachPrescription(r.Context(), id, identity.ID, in)
	if err != nil {
		h.fail(w, r, "attach_prescription", err)
		return
	}
	h.record("attach_prescription", "ok")
	h.writeDoctorAppointment(w, "Prescription saved", appt)
}

func (h *Handler) submitReview(w http.ResponseWriter, r *http.Request) {
	id, ok := h.uuidParam(w, r, "id")
	if !ok {
		return
	}
	identity, _ := auth.FromContext(r.Context())

	var req appointment.ReviewInput
	if !h.decode(w, r, &req) {
		return
	}

	appt, err := h.svc.SubmitReview(r.Context(), id, identity.ID, req)
	if err != nil {
		h.fail(w, r, "submit_review", err)
		return
	}
	h.record("submit_review", "ok")

	resp := toAppointmentResponse(appt, h.svc.BlobURL(appt.PrescriptionFile), true)
	writeJSON(w, http.StatusOK, AppointmentEnvelope{
		Success:     true,
		Message:     "Review submitted successfully",
		Appointment: &resp,
	})
}

func (h *Handler) setStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.uuidParam(w, r, "id")
	if !ok {
		return
	}
	identity, _ := auth.FromContext(r.Context())

	var req appointment.StatusInput
	if !h.decode(w, r, &req) {
		return
	}

	appt, err := h.svc.SetStatus(r.Context(), id, identity.ID, req)
	if err != nil {
		h.fail(w, r, "set_status", err)
		return
	}
	h.record("set_status", "ok")
	h.writeDoctorAppointment(w, "Appointment status updated", appt)
}

func (h *Handler) listDoctorAppointments(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.FromContext(r.Context())

	list, err := h.svc.ListForDoctor(r.Context(), identity.ID)
	if err != nil {
		h.fail(w, r, "list_doctor_appointments", err)
		return
	}
	h.writeDoctorAppointments(w, list)
}

func (h *Handler) getDoctorAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.uuidParam(w, r, "id")
	if !ok {
		return
	}
	identity, _ := auth.FromContext(r.Context())

	detail, err := h.svc.GetForDoctor(r.Context(), id, identity.ID)
	if err != nil {
		h.fail(w, r, "get_doctor_appointment", err)
		return
	}

	resp := toAppointmentResponse(&detail.Appointment, h.svc.BlobURL(detail.PrescriptionFile), false)
	resp.Doctor = toDoctorSummary(detail.Doctor)
	resp.Patient = toPatientSummary(detail.Patient)
	writeJSON(w, http.StatusOK, AppointmentEnvelope{Success: true, Appointment: &resp})
}

func (h *Handler) listDoctorPatients(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.FromContext(r.Context())

	patients, err := h.svc.ListDoctorPatients(r.Context(), identity.ID)
	if err != nil {
		h.fail(w, r, "list_doctor_patients", err)
		return
	}

	out := make([]PatientSummary, 0, len(patients))
	for _, p := range patients {
		out = append(out, PatientSummary{ID: p.ID, Name: p.Name, Email: p.Email, AppointmentCount: p.AppointmentCount})
	}
	writeJSON(w, http.StatusOK, PatientsEnvelope{Success: true, Patients: out})
}

func (h *Handler) getDoctorPatient(w http.ResponseWriter, r *http.Request) {
	patientID, ok := h.uuidParam(w, r, "patientId")
	if !ok {
		return
	}
	identity, _ := auth.FromContext(r.Context())

	patient, err := h.svc.GetDoctorPatient(r.Context(), identity.ID, patientID)
	if err != nil {
		h.fail(w, r, "get_doctor_patient", err)
		return
	}
	writeJSON(w, http.StatusOK, PatientEnvelope{Success: true, Patient: toPatientSummary(patient)})
}

func (h *Handler) listDoctorPatientAppointments(w http.ResponseWriter, r *http.Request) {
	patientID, ok := h.uuidParam(w, r, "patientId")
	if !ok {
		return
	}
	identity, _ := auth.FromContext(r.Context())

	list, err := h.svc.ListDoctorPatientAppointments(r.Context(), identity.ID, patientID)
	if err != nil {
		h.fail(w, r, "list_doctor_patient_appointments", err)
		return
	}
	h.writeDoctorAppointments(w, list)
}

func (h *Handler) listPublicDoctorAppointments(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := h.uuidParam(w, r, "doctorId")
	if !ok {
		return
	}

	list, err := h.svc.ListPublicForDoctor(r.Context(), doctorID)
	if err != nil {
		h.fail(w, r, "list_public_appointments", err)
		return
	}

	out := make([]PublicAppointmentResponse, 0, len(list))
	for _, a := range list {
		out = append(out, toPublicAppointment(a))
	}
	writeJSON(w, http.StatusOK, PublicAppointmentsEnvelope{Success: true, Appointments: out})
}

func (h *Handler) listMyAppointments(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.FromContext(r.Context())

	list, err := h.svc.ListForPatient(r.Context(), identity.ID)
	if err != nil {
		h.fail(w, r, "list_patient_appointments", err)
		return
	}

	out := make([]AppointmentResponse, 0, len(list))
	for i := range list {
		resp := toAppointmentResponse(&list[i].Appointment, h.svc.BlobURL(list[i].PrescriptionFile), true)
		resp.Doctor = toDoctorSummary(list[i].Doctor)
		out = append(out, resp)
	}
	writeJSON(w, http.StatusOK, AppointmentsEnvelope{Success: true, Appointments: out})
}

// Helpers

func (h *Handler) writeDoctorAppointment(w http.ResponseWriter, message string, a *appointment.Appointment) {
	resp := toAppointmentResponse(a, h.svc.BlobURL(a.PrescriptionFile), false)
	writeJSON(w, http.StatusOK, AppointmentEnvelope{Success: true, Message: message, Appointment: &resp})
}

func (h *Handler) writeDoctorAppointments(w http.ResponseWriter, list []appointment.Appointment) {
	out := make([]AppointmentResponse, 0, len(list))
	for i := range list {
		out = append(out, toAppointmentResponse(&list[i], h.svc.BlobURL(list[i].PrescriptionFile), false))
	}
	writeJSON(w, http.StatusOK, AppointmentsEnvelope{Success: true, Appointments: out})
}

func (h *Handler) uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+toSnake(name), name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	// An empty body decodes to the zero value so field validation can name
	// what is missing.
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	return true
}

func (h *Handler) record(operation, outcome string) {
	if h.metrics != nil {
		h.metrics.RecordOperation(operation, outcome)
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, operation string, err error) {
	status, code, message := classifyError(err)
	h.record(operation, code)

	if status >= http.StatusInternalServerError {
		h.log.WithRequestID(GetRequestID(r.Context())).WithError(err).
			WithField("operation", operation).Error("request failed")
	}
	writeError(w, status, code, message)
}

func toSnake(s string) string {
	var b strings.Builder
	for i, c := range s {
		if c >= 'A' && c <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			c += 'a' - 'A'
		}
		b.WriteRune(c)
	}
	return b.String()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Success: false, Message: message, Error: code})
}
