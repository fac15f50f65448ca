package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"

	"github.com/parchi-health/parchi/internal/appointment"
	"github.com/parchi-health/parchi/internal/auth"
	"github.com/parchi-health/parchi/internal/config"
	"github.com/parchi-health/parchi/internal/logger"
	"github.com/parchi-health/parchi/internal/store"
)

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	Doctors      int
	Patients     int
	Days         int
	BookingRatio float64
	FlowRatio    float64
	ReadRatio    float64
}

type party struct {
	ID    uuid.UUID
	Token string
}

// booked is an appointment the simulator created and can drive forward.
type booked struct {
	ID      uuid.UUID
	Doctor  party
	Patient party
	OTP     string
}

type DataPool struct {
	Doctors  []party
	Patients []party

	mu     sync.Mutex
	booked []booked
}

func (dp *DataPool) Add(b booked) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.booked = append(dp.booked, b)
}

// Take removes a random booked appointment so only one worker drives it.
func (dp *DataPool) Take(rng *rand.Rand) (booked, bool) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	if len(dp.booked) == 0 {
		return booked{}, false
	}
	i := rng.Intn(len(dp.booked))
	b := dp.booked[i]
	dp.booked[i] = dp.booked[len(dp.booked)-1]
	dp.booked = dp.booked[:len(dp.booked)-1]
	return b, true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, status int, err error) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case err == nil && status < 300:
		atomic.AddInt64(&om.Success, 1)
	case status == http.StatusConflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, p50, p95, max time.Duration) {
	om.mu.Lock()
	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	om.mu.Unlock()

	if len(latencies) == 0 {
		return 0, 0, 0, 0
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	pick := func(pct int) time.Duration {
		idx := len(latencies) * pct / 100
		if idx >= len(latencies) {
			idx = len(latencies) - 1
		}
		return latencies[idx]
	}
	return sum / time.Duration(len(latencies)), pick(50), pick(95), latencies[len(latencies)-1]
}

type Metrics struct {
	Book      OperationMetrics
	VerifyOTP OperationMetrics
	Treat     OperationMetrics
	Review    OperationMetrics
	Calendar  OperationMetrics
	Public    OperationMetrics
	Mine      OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	log     *logger.Logger
	metrics Metrics
}

func main() {
	baseCfg, err := config.Load()
	if err != nil {
		logger.New("info").WithError(err).Fatal("config load error")
	}
	log := logger.New(baseCfg.LogLevel)

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		log.WithError(err).Fatal("invalid simulator config")
	}
	log.WithField("duration", cfg.Duration.String()).WithField("workers", cfg.Workers).
		Info("simulator starting")

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	st, err := store.Open(ctx, baseCfg, log)
	if err != nil {
		log.WithError(err).Fatal("store connection error")
	}
	defer st.Close()

	pool, err := buildDataPool(ctx, st, auth.NewVerifier(baseCfg.JWTSecret), cfg)
	if err != nil {
		log.WithError(err).Error("build data pool")
		return
	}
	log.WithField("doctors", len(pool.Doctors)).WithField("patients", len(pool.Patients)).
		Info("data pool ready")

	sim := &Simulator{
		config: cfg,
		pool:   pool,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log,
	}
	sim.Run()
	sim.PrintReport()
}

func loadConfig() SimConfig {
	cfg := SimConfig{
		APIBaseURL:   strings.TrimRight(getEnv("SIM_API_BASE_URL", "http://localhost:8080"), "/"),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 10),
		Doctors:      getInt("SIM_DOCTORS", 3),
		Patients:     getInt("SIM_PATIENTS", 50),
		Days:         getInt("SIM_DAYS", 2),
		BookingRatio: getFloat("SIM_BOOKING_RATIO", 0.5),
		FlowRatio:    getFloat("SIM_FLOW_RATIO", 0.3),
		ReadRatio:    getFloat("SIM_READ_RATIO", 0.2),
	}

	total := cfg.BookingRatio + cfg.FlowRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.FlowRatio /= total
		cfg.ReadRatio /= total
	}
	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.Doctors <= 0 || cfg.Patients <= 0 || cfg.Days <= 0 {
		return fmt.Errorf("SIM_DOCTORS, SIM_PATIENTS and SIM_DAYS must be > 0")
	}
	return nil
}

// buildDataPool registers fresh doctors and patients and issues tokens for
// them, so a run never depends on seed data.
func buildDataPool(ctx context.Context, dir appointment.Directory, verifier *auth.Verifier, cfg SimConfig) (*DataPool, error) {
	pool := &DataPool{}
	now := time.Now().UTC()

	for i := 0; i < cfg.Doctors; i++ {
		d := &appointment.Doctor{
			ID:             uuid.New(),
			Name:           "Dr. " + gofakeit.Name(),
			Email:          gofakeit.Email(),
			Specialization: "General Dentistry",
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := dir.CreateDoctor(ctx, d); err != nil {
			return nil, fmt.Errorf("create doctor: %w", err)
		}
		token, err := verifier.Issue(d.ID, auth.RoleDoctor, cfg.Duration+time.Hour)
		if err != nil {
			return nil, err
		}
		pool.Doctors = append(pool.Doctors, party{ID: d.ID, Token: token})
	}

	for i := 0; i < cfg.Patients; i++ {
		email := gofakeit.Email()
		p := &appointment.Patient{ID: uuid.New(), Name: gofakeit.Name(), Email: &email, CreatedAt: now, UpdatedAt: now}
		if err := dir.CreatePatient(ctx, p); err != nil {
			return nil, fmt.Errorf("create patient: %w", err)
		}
		token, err := verifier.Issue(p.ID, auth.RolePatient, cfg.Duration+time.Hour)
		if err != nil {
			return nil, err
		}
		pool.Patients = append(pool.Patients, party{ID: p.ID, Token: token})
	}

	return pool, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.log.Info("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for ctx.Err() == nil {
		r := rng.Float64()
		switch {
		case r < s.config.BookingRatio:
			s.doBooking(ctx, rng)
		case r < s.config.BookingRatio+s.config.FlowRatio:
			s.doFlow(ctx, rng)
		default:
			s.doRead(ctx, rng)
		}
	}
}

// doBooking picks from a small slot grid so concurrent workers collide and
// exercise the slot lock.
func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	doctor := s.pool.Doctors[rng.Intn(len(s.pool.Doctors))]
	patient := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	day := time.Now().UTC().AddDate(0, 0, 1+rng.Intn(s.config.Days))
	slot := fmt.Sprintf("%02d:%02d", 9+rng.Intn(8), 30*rng.Intn(2))

	var resp struct {
		OTP         string `json:"otp"`
		Appointment struct {
			ID uuid.UUID `json:"id"`
		} `json:"appointment"`
	}
	status, err := s.call(ctx, &s.metrics.Book, http.MethodPost,
		"/api/doctors/"+doctor.ID.String()+"/appointments", patient.Token,
		map[string]string{
			"patientName": gofakeit.Name(),
			"date":        day.Format("2006-01-02"),
			"time":        slot,
			"treatment":   "Cleaning",
		}, &resp)
	if err != nil || status != http.StatusCreated {
		return
	}
	s.pool.Add(booked{ID: resp.Appointment.ID, Doctor: doctor, Patient: patient, OTP: resp.OTP})
}

// doFlow walks one booked appointment through verify, treat and review.
func (s *Simulator) doFlow(ctx context.Context, rng *rand.Rand) {
	b, ok := s.pool.Take(rng)
	if !ok {
		return
	}
	base := "/api/doctors/appointments/" + b.ID.String()

	status, err := s.call(ctx, &s.metrics.VerifyOTP, http.MethodPost, base+"/verify-otp", b.Doctor.Token,
		map[string]string{"otp": b.OTP}, nil)
	if err != nil || status != http.StatusOK {
		return
	}

	status, err = s.call(ctx, &s.metrics.Treat, http.MethodPatch, base+"/treatment-state", b.Doctor.Token,
		map[string]string{"treatmentState": "treated", "doctorNotes": gofakeit.Sentence(8)}, nil)
	if err != nil || status != http.StatusOK {
		return
	}

	_, _ = s.call(ctx, &s.metrics.Review, http.MethodPost, base+"/review", b.Patient.Token,
		map[string]any{"rating": 1 + rng.Intn(10), "comment": gofakeit.Sentence(6)}, nil)
}

func (s *Simulator) doRead(ctx context.Context, rng *rand.Rand) {
	switch rng.Intn(3) {
	case 0:
		doctor := s.pool.Doctors[rng.Intn(len(s.pool.Doctors))]
		_, _ = s.call(ctx, &s.metrics.Calendar, http.MethodGet, "/api/doctors/appointments", doctor.Token, nil, nil)
	case 1:
		doctor := s.pool.Doctors[rng.Intn(len(s.pool.Doctors))]
		_, _ = s.call(ctx, &s.metrics.Public, http.MethodGet, "/api/doctors/"+doctor.ID.String()+"/appointments", "", nil, nil)
	default:
		patient := s.pool.Patients[rng.Intn(len(s.pool.Patients))]
		_, _ = s.call(ctx, &s.metrics.Mine, http.MethodGet, "/api/auth/my-appointments", patient.Token, nil, nil)
	}
}

func (s *Simulator) call(ctx context.Context, om *OperationMetrics, method, path, token string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() == nil {
			om.Record(time.Since(start), 0, err)
		}
		return 0, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		err = json.NewDecoder(resp.Body).Decode(out)
	} else {
		_, _ = io.Copy(io.Discard, resp.Body)
	}
	om.Record(time.Since(start), resp.StatusCode, err)
	return resp.StatusCode, err
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Book", &s.metrics.Book)
	printOperationReport("Verify OTP", &s.metrics.VerifyOTP)
	printOperationReport("Treat", &s.metrics.Treat)
	printOperationReport("Review", &s.metrics.Review)
	printOperationReport("Doctor calendar", &s.metrics.Calendar)
	printOperationReport("Public calendar", &s.metrics.Public)
	printOperationReport("My appointments", &s.metrics.Mine)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)
	avg, p50, p95, max := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s p50=%s p95=%s max=%s\n",
		avg.Round(time.Millisecond), p50.Round(time.Millisecond),
		p95.Round(time.Millisecond), max.Round(time.Millisecond))
	fmt.Println()
}

// Helper functions

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
