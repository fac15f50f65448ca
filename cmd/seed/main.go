package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"

	"github.com/parchi-health/parchi/internal/appointment"
	"github.com/parchi-health/parchi/internal/auth"
	"github.com/parchi-health/parchi/internal/config"
	"github.com/parchi-health/parchi/internal/logger"
	"github.com/parchi-health/parchi/internal/store"
)

var specializations = []string{
	"General Dentistry",
	"Orthodontics",
	"Dermatology",
	"Cardiology",
	"General Practice",
	"Orthopedics",
	"Pediatrics",
	"Ophthalmology",
	"ENT",
	"Physiotherapy",
}

func main() {
	doctors := flag.Int("doctors", 20, "number of doctors to create")
	patients := flag.Int("patients", 500, "number of patients to create")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "lifetime of the printed dev tokens")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.New("info").WithError(err).Fatal("config load error")
	}
	log := logger.New(cfg.LogLevel)
	log.WithField("store", cfg.StoreDriver).Info("seed starting")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	st, err := store.Open(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("store connection error")
	}
	defer st.Close()

	gofakeit.Seed(time.Now().UnixNano())

	doctorIDs, err := seedDoctors(ctx, st, *doctors)
	if err != nil {
		log.WithError(err).Error("seed doctors")
		return
	}
	log.WithField("count", len(doctorIDs)).Info("doctors seeded")

	patientIDs, err := seedPatients(ctx, st, *patients)
	if err != nil {
		log.WithError(err).Error("seed patients")
		return
	}
	log.WithField("count", len(patientIDs)).Info("patients seeded")

	if len(doctorIDs) == 0 || len(patientIDs) == 0 {
		return
	}

	// Tokens for poking the API locally; the identity service issues real ones.
	verifier := auth.NewVerifier(cfg.JWTSecret)
	doctorToken, err := verifier.Issue(doctorIDs[0], auth.RoleDoctor, *tokenTTL)
	if err != nil {
		log.WithError(err).Error("issue doctor token")
		return
	}
	patientToken, err := verifier.Issue(patientIDs[0], auth.RolePatient, *tokenTTL)
	if err != nil {
		log.WithError(err).Error("issue patient token")
		return
	}

	fmt.Fprintf(os.Stdout, "DOCTOR_ID=%s\nDOCTOR_TOKEN=%s\nPATIENT_ID=%s\nPATIENT_TOKEN=%s\n",
		doctorIDs[0], doctorToken, patientIDs[0], patientToken)
}

func seedDoctors(ctx context.Context, dir appointment.Directory, count int) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		now := time.Now().UTC()
		d := &appointment.Doctor{
			ID:             uuid.New(),
			Name:           "Dr. " + gofakeit.Name(),
			Email:          gofakeit.Email(),
			Specialization: specializations[gofakeit.Number(0, len(specializations)-1)],
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if gofakeit.Bool() {
			avatar := gofakeit.URL()
			d.Avatar = &avatar
		}
		if err := dir.CreateDoctor(ctx, d); err != nil {
			return ids, fmt.Errorf("doctor %d: %w", i, err)
		}
		ids = append(ids, d.ID)
	}
	return ids, nil
}

func seedPatients(ctx context.Context, dir appointment.Directory, count int) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		now := time.Now().UTC()
		email := gofakeit.Email()
		p := &appointment.Patient{
			ID:        uuid.New(),
			Name:      gofakeit.Name(),
			Email:     &email,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := dir.CreatePatient(ctx, p); err != nil {
			return ids, fmt.Errorf("patient %d: %w", i, err)
		}
		ids = append(ids, p.ID)
		if (i+1)%100 == 0 {
			fmt.Fprintf(os.Stderr, "patients seeded: %d/%d\n", i+1, count)
		}
	}
	return ids, nil
}
