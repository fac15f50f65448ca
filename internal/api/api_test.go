package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parchi-health/parchi/internal/appointment"
	"github.com/parchi-health/parchi/internal/appointment/appointmenttest"
	"github.com/parchi-health/parchi/internal/auth"
	"github.com/parchi-health/parchi/internal/blob"
	"github.com/parchi-health/parchi/internal/config"
	"github.com/parchi-health/parchi/internal/logger"
	"github.com/parchi-health/parchi/internal/metrics"
	redisclient "github.com/parchi-health/parchi/internal/redis"
)

const testOTP = "482913"

type testServer struct {
	handler  http.Handler
	repo     *appointmenttest.MemoryRepository
	doctor   appointment.Doctor
	other    appointment.Doctor
	patient  appointment.Patient
	verifier *auth.Verifier
}

func newTestServer(t *testing.T, tweak func(*config.Config)) *testServer {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := config.Config{
		Env:                        "test",
		JWTSecret:                  "test-secret",
		OTPTTL:                     24 * time.Hour,
		LockTTL:                    5 * time.Second,
		PreventDoubleBooking:       true,
		StrictTreatmentTransitions: true,
		RateLimitRequests:          1000,
		RateLimitWindow:            15 * time.Minute,
		OTPVerifyLimit:             50,
		OTPVerifyWindow:            15 * time.Minute,
		UploadBaseURL:              "/uploads/prescriptions",
		CORSOrigin:                 "http://localhost:3000",
	}
	if tweak != nil {
		tweak(&cfg)
	}

	uploadDir := t.TempDir()
	store, err := blob.NewDiskStore(uploadDir, cfg.UploadBaseURL)
	require.NoError(t, err)

	repo := appointmenttest.NewMemoryRepository()
	email := "asha@example.test"
	ts := &testServer{
		repo:     repo,
		doctor:   appointment.Doctor{ID: uuid.New(), Name: "Dr. Rao", Email: "rao@example.test", Specialization: "Dentist"},
		other:    appointment.Doctor{ID: uuid.New(), Name: "Dr. Iyer", Email: "iyer@example.test", Specialization: "ENT"},
		patient:  appointment.Patient{ID: uuid.New(), Name: "Asha", Email: &email},
		verifier: auth.NewVerifier(cfg.JWTSecret),
	}
	repo.AddDoctor(ts.doctor)
	repo.AddDoctor(ts.other)
	repo.AddPatient(ts.patient)

	log := logger.Discard()
	svc := appointment.NewService(repo, redisclient.NewRedisLocker(rdb, cfg.LockTTL), cfg, log,
		appointment.WithBlobStore(store),
		appointment.WithOTPGenerator(func() (string, error) { return testOTP, nil }),
	)

	health := NewHealthHandler("test", "v0",
		Dependency{Name: "redis", Pinger: PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() }), Critical: true},
	)

	ts.handler = NewRouter(RouterConfig{
		Service:   svc,
		Verifier:  ts.verifier,
		Limiter:   redisclient.NewRateLimiter(rdb),
		Metrics:   metrics.New("test"),
		Health:    health,
		Log:       log,
		Config:    cfg,
		UploadDir: uploadDir,
	})
	return ts
}

func (ts *testServer) token(t *testing.T, id uuid.UUID, role auth.Role) string {
	t.Helper()
	token, err := ts.verifier.Issue(id, role, time.Hour)
	require.NoError(t, err)
	return token
}

func (ts *testServer) doctorToken(t *testing.T) string {
	return ts.token(t, ts.doctor.ID, auth.RoleDoctor)
}

func (ts *testServer) patientToken(t *testing.T) string {
	return ts.token(t, ts.patient.ID, auth.RolePatient)
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func bookBody() map[string]string {
	return map[string]string{
		"patientName": "Asha",
		"date":        "2025-06-01",
		"time":        "10:30",
		"treatment":   "Cleaning",
	}
}

func (ts *testServer) book(t *testing.T, token string) AppointmentResponse {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/doctors/"+ts.doctor.ID.String()+"/appointments", token, bookBody())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	env := decodeBody[AppointmentEnvelope](t, rec)
	require.NotNil(t, env.Appointment)
	return *env.Appointment
}

func requireErrorCode(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	require.Equal(t, status, rec.Code, rec.Body.String())
	body := decodeBody[ErrorResponse](t, rec)
	assert.False(t, body.Success)
	assert.Equal(t, code, body.Error)
	assert.NotEmpty(t, body.Message)
}

func TestBookAppointment(t *testing.T) {
	t.Run("anonymous booking returns the otp", func(t *testing.T) {
		ts := newTestServer(t, nil)

		rec := ts.do(t, http.MethodPost, "/api/doctors/"+ts.doctor.ID.String()+"/appointments", "", bookBody())
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		env := decodeBody[AppointmentEnvelope](t, rec)
		assert.True(t, env.Success)
		assert.Equal(t, testOTP, env.OTP)
		require.NotNil(t, env.Appointment)
		assert.Nil(t, env.Appointment.PatientID)
		assert.Equal(t, "upcoming", env.Appointment.Status)
		assert.Equal(t, "pending", env.Appointment.TreatmentState)
		assert.Equal(t, "2025-06-01", env.Appointment.Date.String())
		assert.Equal(t, "01 Jun 2025", env.Appointment.DisplayDate)
		assert.False(t, env.Appointment.OTPVerified)
	})

	t.Run("patient token links the booking", func(t *testing.T) {
		ts := newTestServer(t, nil)

		a := ts.book(t, ts.patientToken(t))
		require.NotNil(t, a.PatientID)
		assert.Equal(t, ts.patient.ID, *a.PatientID)
	})

	t.Run("invalid token books anonymously", func(t *testing.T) {
		ts := newTestServer(t, nil)

		a := ts.book(t, "garbage")
		assert.Nil(t, a.PatientID)
	})

	t.Run("missing field", func(t *testing.T) {
		ts := newTestServer(t, nil)
		body := bookBody()
		delete(body, "treatment")

		rec := ts.do(t, http.MethodPost, "/api/doctors/"+ts.doctor.ID.String()+"/appointments", "", body)
		requireErrorCode(t, rec, http.StatusBadRequest, "validation_error")
		assert.Contains(t, rec.Body.String(), "treatment is required")
	})

	t.Run("unknown doctor", func(t *testing.T) {
		ts := newTestServer(t, nil)

		rec := ts.do(t, http.MethodPost, "/api/doctors/"+uuid.NewString()+"/appointments", "", bookBody())
		requireErrorCode(t, rec, http.StatusNotFound, "doctor_not_found")
	})

	t.Run("bad doctor id", func(t *testing.T) {
		ts := newTestServer(t, nil)

		rec := ts.do(t, http.MethodPost, "/api/doctors/42/appointments", "", bookBody())
		requireErrorCode(t, rec, http.StatusBadRequest, "invalid_doctor_id")
	})

	t.Run("slot taken", func(t *testing.T) {
		ts := newTestServer(t, nil)
		ts.book(t, "")

		rec := ts.do(t, http.MethodPost, "/api/doctors/"+ts.doctor.ID.String()+"/appointments", "", bookBody())
		requireErrorCode(t, rec, http.StatusConflict, "slot_taken")
	})
}

func TestVerifyOTP(t *testing.T) {
	verifyPath := func(id uuid.UUID) string {
		return "/api/doctors/appointments/" + id.String() + "/verify-otp"
	}

	t.Run("wrong then right otp", func(t *testing.T) {
		ts := newTestServer(t, nil)
		a := ts.book(t, "")

		rec := ts.do(t, http.MethodPost, verifyPath(a.ID), ts.doctorToken(t), map[string]string{"otp": "000000"})
		requireErrorCode(t, rec, http.StatusBadRequest, "invalid_otp")

		rec = ts.do(t, http.MethodPost, verifyPath(a.ID), ts.doctorToken(t), map[string]string{"otp": testOTP})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		env := decodeBody[AppointmentEnvelope](t, rec)
		assert.True(t, env.Appointment.OTPVerified)
		assert.Equal(t, "verified", env.Appointment.TreatmentState)
		assert.Empty(t, env.Appointment.OTP, "doctor views never carry the otp")
		assert.NotContains(t, rec.Body.String(), testOTP)

		rec = ts.do(t, http.MethodPost, verifyPath(a.ID), ts.doctorToken(t), map[string]string{"otp": testOTP})
		requireErrorCode(t, rec, http.StatusBadRequest, "otp_already_verified")
	})

	t.Run("missing otp", func(t *testing.T) {
		ts := newTestServer(t, nil)
		a := ts.book(t, "")

		rec := ts.do(t, http.MethodPost, verifyPath(a.ID), ts.doctorToken(t), nil)
		requireErrorCode(t, rec, http.StatusBadRequest, "validation_error")
	})

	t.Run("auth", func(t *testing.T) {
		ts := newTestServer(t, nil)
		a := ts.book(t, "")
		body := map[string]string{"otp": testOTP}

		requireErrorCode(t, ts.do(t, http.MethodPost, verifyPath(a.ID), "", body), http.StatusUnauthorized, "unauthorized")
		requireErrorCode(t, ts.do(t, http.MethodPost, verifyPath(a.ID), ts.patientToken(t), body), http.StatusForbidden, "forbidden")
		requireErrorCode(t, ts.do(t, http.MethodPost, verifyPath(a.ID), ts.token(t, ts.other.ID, auth.RoleDoctor), body), http.StatusNotFound, "appointment_not_found")
	})

	t.Run("attempts are rate limited per appointment", func(t *testing.T) {
		ts := newTestServer(t, func(c *config.Config) { c.OTPVerifyLimit = 2 })
		a := ts.book(t, "")
		body := map[string]string{"otp": "000000"}

		for i := 0; i < 2; i++ {
			requireErrorCode(t, ts.do(t, http.MethodPost, verifyPath(a.ID), ts.doctorToken(t), body), http.StatusBadRequest, "invalid_otp")
		}
		rec := ts.do(t, http.MethodPost, verifyPath(a.ID), ts.doctorToken(t), map[string]string{"otp": testOTP})
		requireErrorCode(t, rec, http.StatusTooManyRequests, "rate_limited")
		assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	})
}

func TestTreatmentAndReviewFlow(t *testing.T) {
	ts := newTestServer(t, nil)
	a := ts.book(t, ts.patientToken(t))
	base := "/api/doctors/appointments/" + a.ID.String()

	rec := ts.do(t, http.MethodPatch, base+"/treatment-state", ts.doctorToken(t), map[string]string{"treatmentState": "treated"})
	requireErrorCode(t, rec, http.StatusBadRequest, "invalid_transition")

	rec = ts.do(t, http.MethodPost, base+"/review", ts.patientToken(t), map[string]any{"rating": 9})
	requireErrorCode(t, rec, http.StatusBadRequest, "invalid_state")

	rec = ts.do(t, http.MethodPost, base+"/verify-otp", ts.doctorToken(t), map[string]string{"otp": testOTP})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodPatch, base+"/treatment-state", ts.doctorToken(t), map[string]string{
		"treatmentState": "treated",
		"doctorNotes":    "Scaling done",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	env := decodeBody[AppointmentEnvelope](t, rec)
	assert.Equal(t, "treated", env.Appointment.TreatmentState)
	assert.Equal(t, "Scaling done", env.Appointment.DoctorNotes)

	rec = ts.do(t, http.MethodPost, base+"/review", ts.patientToken(t), map[string]any{"rating": 11})
	requireErrorCode(t, rec, http.StatusBadRequest, "validation_error")
	assert.Contains(t, rec.Body.String(), "rating must be an integer between 1 and 10")

	rec = ts.do(t, http.MethodPost, base+"/review", ts.doctorToken(t), map[string]any{"rating": 9})
	requireErrorCode(t, rec, http.StatusForbidden, "forbidden")

	rec = ts.do(t, http.MethodPost, base+"/review", ts.patientToken(t), map[string]any{"rating": 9, "comment": "Gentle"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	env = decodeBody[AppointmentEnvelope](t, rec)
	require.NotNil(t, env.Appointment.Review)
	assert.Equal(t, 9, env.Appointment.Review.Rating)

	rec = ts.do(t, http.MethodPost, base+"/review", ts.patientToken(t), map[string]any{"rating": 3})
	requireErrorCode(t, rec, http.StatusBadRequest, "review_exists")

	rec = ts.do(t, http.MethodGet, "/api/auth/my-appointments", ts.patientToken(t), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	list := decodeBody[AppointmentsEnvelope](t, rec)
	require.Len(t, list.Appointments, 1)
	mine := list.Appointments[0]
	assert.Equal(t, testOTP, mine.OTP)
	require.NotNil(t, mine.Doctor)
	assert.Equal(t, "Dr. Rao", mine.Doctor.Name)
	assert.Equal(t, "Dentist", mine.Doctor.Specialization)
	require.NotNil(t, mine.Review)
	assert.Equal(t, 9, mine.Review.Rating)
}

func TestAttachPrescription(t *testing.T) {
	t.Run("multipart file and text", func(t *testing.T) {
		ts := newTestServer(t, nil)
		a := ts.book(t, "")

		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		require.NoError(t, mw.WriteField("text", "Ibuprofen 400mg"))
		part, err := mw.CreateFormFile("file", "scan.pdf")
		require.NoError(t, err)
		_, err = part.Write([]byte("%PDF-1.4"))
		require.NoError(t, err)
		require.NoError(t, mw.Close())

		req := httptest.NewRequest(http.MethodPatch, "/api/doctors/appointments/"+a.ID.String()+"/prescription", &body)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+ts.doctorToken(t))
		rec := httptest.NewRecorder()
		ts.handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		env := decodeBody[AppointmentEnvelope](t, rec)
		assert.Equal(t, "Ibuprofen 400mg", env.Appointment.PrescriptionText)
		require.NotEmpty(t, env.Appointment.PrescriptionFile)
		assert.Equal(t, "/uploads/prescriptions/"+env.Appointment.PrescriptionFile, env.Appointment.PrescriptionURL)

		file := ts.do(t, http.MethodGet, env.Appointment.PrescriptionURL, "", nil)
		require.Equal(t, http.StatusOK, file.Code)
		assert.Equal(t, "%PDF-1.4", file.Body.String())
	})

	t.Run("json text only", func(t *testing.T) {
		ts := newTestServer(t, nil)
		a := ts.book(t, "")

		rec := ts.do(t, http.MethodPatch, "/api/doctors/appointments/"+a.ID.String()+"/prescription", ts.doctorToken(t), map[string]string{"text": "Rest"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		env := decodeBody[AppointmentEnvelope](t, rec)
		assert.Equal(t, "Rest", env.Appointment.PrescriptionText)
		assert.Empty(t, env.Appointment.PrescriptionURL)
	})

	t.Run("nothing supplied", func(t *testing.T) {
		ts := newTestServer(t, nil)
		a := ts.book(t, "")

		rec := ts.do(t, http.MethodPatch, "/api/doctors/appointments/"+a.ID.String()+"/prescription", ts.doctorToken(t), map[string]string{})
		requireErrorCode(t, rec, http.StatusBadRequest, "validation_error")
	})
}

func TestSetStatus(t *testing.T) {
	ts := newTestServer(t, nil)
	a := ts.book(t, "")
	path := "/api/doctors/appointments/" + a.ID.String() + "/status"

	rec := ts.do(t, http.MethodPatch, path, ts.doctorToken(t), map[string]string{"status": "past"})
	requireErrorCode(t, rec, http.StatusBadRequest, "validation_error")

	rec = ts.do(t, http.MethodPatch, path, ts.doctorToken(t), map[string]string{"status": "approved"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "approved", decodeBody[AppointmentEnvelope](t, rec).Appointment.Status)
}

func TestDoctorReads(t *testing.T) {
	ts := newTestServer(t, nil)
	linked := ts.book(t, ts.patientToken(t))

	body := bookBody()
	body["time"] = "08:00"
	rec := ts.do(t, http.MethodPost, "/api/doctors/"+ts.doctor.ID.String()+"/appointments", "", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	t.Run("calendar is sorted and hides otp", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/api/doctors/appointments", ts.doctorToken(t), nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		list := decodeBody[AppointmentsEnvelope](t, rec)
		require.Len(t, list.Appointments, 2)
		assert.Equal(t, "08:00", list.Appointments[0].Time)
		assert.Equal(t, "10:30", list.Appointments[1].Time)
		assert.NotContains(t, rec.Body.String(), testOTP)
	})

	t.Run("other doctor sees nothing", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/api/doctors/appointments", ts.token(t, ts.other.ID, auth.RoleDoctor), nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, decodeBody[AppointmentsEnvelope](t, rec).Appointments)
	})

	t.Run("single appointment with parties", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/api/doctors/appointments/"+linked.ID.String(), ts.doctorToken(t), nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		a := decodeBody[AppointmentEnvelope](t, rec).Appointment
		require.NotNil(t, a.Patient)
		assert.Equal(t, "Asha", a.Patient.Name)
		require.NotNil(t, a.Doctor)
		assert.Equal(t, "Dr. Rao", a.Doctor.Name)
	})

	t.Run("patients and their history", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/api/doctors/patients", ts.doctorToken(t), nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		patients := decodeBody[PatientsEnvelope](t, rec).Patients
		require.Len(t, patients, 1)
		assert.Equal(t, 1, patients[0].AppointmentCount)

		rec = ts.do(t, http.MethodGet, "/api/doctors/patients/"+ts.patient.ID.String()+"/appointments", ts.doctorToken(t), nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Len(t, decodeBody[AppointmentsEnvelope](t, rec).Appointments, 1)
	})

	t.Run("single patient", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/api/doctors/patients/"+ts.patient.ID.String(), ts.doctorToken(t), nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		env := decodeBody[PatientEnvelope](t, rec)
		assert.True(t, env.Success)
		require.NotNil(t, env.Patient)
		assert.Equal(t, ts.patient.ID, env.Patient.ID)
		assert.Equal(t, "Asha", env.Patient.Name)
		require.NotNil(t, env.Patient.Email)
		assert.Equal(t, "asha@example.test", *env.Patient.Email)

		rec = ts.do(t, http.MethodGet, "/api/doctors/patients/"+uuid.NewString(), ts.doctorToken(t), nil)
		requireErrorCode(t, rec, http.StatusNotFound, "patient_not_found")

		rec = ts.do(t, http.MethodGet, "/api/doctors/patients/nope", ts.doctorToken(t), nil)
		requireErrorCode(t, rec, http.StatusBadRequest, "invalid_patient_id")

		rec = ts.do(t, http.MethodGet, "/api/doctors/patients/"+ts.patient.ID.String(), ts.patientToken(t), nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("public calendar exposes only slots", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/api/doctors/"+ts.doctor.ID.String()+"/appointments", "", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var raw struct {
			Appointments []map[string]any `json:"appointments"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
		require.Len(t, raw.Appointments, 2)
		for _, a := range raw.Appointments {
			assert.NotContains(t, a, "otp")
			assert.NotContains(t, a, "patientName")
			assert.NotContains(t, a, "doctorNotes")
			assert.Contains(t, a, "time")
		}
	})

	t.Run("my appointments needs a patient", func(t *testing.T) {
		requireErrorCode(t, ts.do(t, http.MethodGet, "/api/auth/my-appointments", "", nil), http.StatusUnauthorized, "unauthorized")
		requireErrorCode(t, ts.do(t, http.MethodGet, "/api/auth/my-appointments", ts.doctorToken(t), nil), http.StatusForbidden, "forbidden")
	})
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/health/live", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/health/ready", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "ok", decodeBody[ReadinessResponse](t, rec).Status)

	ts.book(t, "")
	rec = ts.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `appointment_operations_total{operation="book",outcome="ok"`)
}

func TestReadiness(t *testing.T) {
	down := PingFunc(func(context.Context) error { return errors.New("down") })
	up := PingFunc(func(context.Context) error { return nil })

	cases := []struct {
		name   string
		deps   []Dependency
		status string
		code   int
	}{
		{"all up", []Dependency{{Name: "db", Pinger: up, Critical: true}}, "ok", http.StatusOK},
		{"optional down", []Dependency{{Name: "db", Pinger: up, Critical: true}, {Name: "redis", Pinger: down}}, "degraded", http.StatusOK},
		{"critical down", []Dependency{{Name: "db", Pinger: down, Critical: true}, {Name: "redis", Pinger: up}}, "error", http.StatusServiceUnavailable},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			NewHealthHandler("test", "v0", tc.deps...).Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

			require.Equal(t, tc.code, rec.Code)
			assert.Equal(t, tc.status, decodeBody[ReadinessResponse](t, rec).Status)
		})
	}
}

func TestClassifyError(t *testing.T) {
	status, code, msg := classifyError(errors.New("pq: connection reset"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "internal_error", code)
	assert.Equal(t, "server error", msg)

	status, code, _ = classifyError(appointment.ErrAppointmentBusy)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "appointment_busy", code)
}
