package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/parchi-health/parchi/internal/appointment"
	"github.com/parchi-health/parchi/internal/auth"
	"github.com/parchi-health/parchi/internal/config"
	"github.com/parchi-health/parchi/internal/logger"
	"github.com/parchi-health/parchi/internal/metrics"
)

type RouterConfig struct {
	Service  *appointment.Service
	Verifier *auth.Verifier
	Limiter  RequestLimiter
	Metrics  *metrics.Collector
	Health   *HealthHandler
	Log      *logger.Logger
	Config   config.Config
	// UploadDir is served under Config.UploadBaseURL when set.
	UploadDir string
}

func NewRouter(cfg RouterConfig) http.Handler {
	h := NewHandler(cfg.Service, cfg.Log, cfg.Metrics)
	c := cfg.Config

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware(cfg.Log))
	r.Use(middleware.Recoverer)
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{c.CORSOrigin},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "RateLimit-Limit", "RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if cfg.Health != nil {
		r.Get("/health/live", cfg.Health.Liveness)
		r.Get("/health/ready", cfg.Health.Readiness)
	}
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}
	if cfg.UploadDir != "" && c.UploadBaseURL != "" {
		base := "/" + strings.Trim(c.UploadBaseURL, "/")
		r.Handle(base+"/*", http.StripPrefix(base+"/", http.FileServer(http.Dir(cfg.UploadDir))))
	}

	byIP := func(r *http.Request) string { return clientIP(r) }
	byAppointment := func(r *http.Request) string { return chi.URLParam(r, "id") }

	doctorOnly := chi.Chain(Authenticate(cfg.Verifier, true), RequireRole(auth.RoleDoctor))
	patientOnly := chi.Chain(Authenticate(cfg.Verifier, true), RequireRole(auth.RolePatient))

	r.Route("/api", func(r chi.Router) {
		r.Use(RateLimit(cfg.Limiter, "general", c.RateLimitRequests, window(c.RateLimitWindow), byIP, cfg.Log, cfg.Metrics))

		r.Route("/doctors", func(r chi.Router) {
			r.With(Authenticate(cfg.Verifier, false)).Post("/{doctorId}/appointments", h.bookAppointment)
			r.Get("/{doctorId}/appointments", h.listPublicDoctorAppointments)

			r.Group(func(r chi.Router) {
				r.Use(doctorOnly.Handler)

				r.Get("/appointments", h.listDoctorAppointments)
				r.Get("/appointments/{id}", h.getDoctorAppointment)
				r.With(RateLimit(cfg.Limiter, "otp", c.OTPVerifyLimit, window(c.OTPVerifyWindow), byAppointment, cfg.Log, cfg.Metrics)).
					Post("/appointments/{id}/verify-otp", h.verifyOTP)
				r.Patch("/appointments/{id}/treatment-state", h.updateTreatmentState)
				r.Patch("/appointments/{id}/prescription", h.attachPrescription)
				r.Patch("/appointments/{id}/status", h.setStatus)
				r.Get("/patients", h.listDoctorPatients)
				r.Get("/patients/{patientId}", h.getDoctorPatient)
				r.Get("/patients/{patientId}/appointments", h.listDoctorPatientAppointments)
			})

			r.With(patientOnly.Handler).Post("/appointments/{id}/review", h.submitReview)
		})

		r.With(patientOnly.Handler).Get("/auth/my-appointments", h.listMyAppointments)
	})

	return r
}

func window(d time.Duration) time.Duration {
	if d <= 0 {
		return 15 * time.Minute
	}
	return d
}
