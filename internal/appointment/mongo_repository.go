package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	appointmentsCollection = "appointments"
	doctorsCollection      = "doctors"
	patientsCollection     = "patients"
	eventLogsCollection    = "event_logs"
)

// MongoRepository keeps one document per appointment. Ids are stored as UUID
// strings and dates as ISO strings, which sort chronologically.
type MongoRepository struct {
	db *mongo.Database
}

func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{db: db}
}

type reviewDoc struct {
	Rating    int       `bson:"rating"`
	Comment   string    `bson:"comment"`
	CreatedAt time.Time `bson:"createdAt"`
}

type appointmentDoc struct {
	ID               string     `bson:"_id"`
	Doctor           string     `bson:"doctor"`
	Patient          *string    `bson:"patient,omitempty"`
	PatientName      string     `bson:"patientName"`
	Date             string     `bson:"date"`
	Time             string     `bson:"time"`
	Treatment        string     `bson:"treatment"`
	Status           string     `bson:"status"`
	TreatmentState   string     `bson:"treatmentState"`
	OTP              string     `bson:"otp"`
	OTPExpires       time.Time  `bson:"otpExpires"`
	OTPVerified      bool       `bson:"otpVerified"`
	PrescriptionFile string     `bson:"prescriptionFile"`
	PrescriptionText string     `bson:"prescriptionText"`
	DoctorNotes      string     `bson:"doctorNotes"`
	Review           *reviewDoc `bson:"review,omitempty"`
	CreatedAt        time.Time  `bson:"createdAt"`
	UpdatedAt        time.Time  `bson:"updatedAt"`
}

type doctorDoc struct {
	ID             string    `bson:"_id"`
	Name           string    `bson:"name"`
	Email          string    `bson:"email"`
	Specialization string    `bson:"specialization"`
	Avatar         *string   `bson:"avatar,omitempty"`
	CreatedAt      time.Time `bson:"createdAt"`
	UpdatedAt      time.Time `bson:"updatedAt"`
}

type patientDoc struct {
	ID        string    `bson:"_id"`
	Name      string    `bson:"name"`
	Email     *string   `bson:"email,omitempty"`
	CreatedAt time.Time `bson:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

type eventLogDoc struct {
	EventType     string    `bson:"eventType"`
	AppointmentID *string   `bson:"appointmentId,omitempty"`
	Payload       string    `bson:"payload"`
	CreatedAt     time.Time `bson:"createdAt"`
}

// Helpers

func toAppointmentDoc(a *Appointment) appointmentDoc {
	doc := appointmentDoc{
		ID:               a.ID.String(),
		Doctor:           a.DoctorID.String(),
		PatientName:      a.PatientName,
		Date:             a.Date.String(),
		Time:             a.Time,
		Treatment:        a.Treatment,
		Status:           string(a.Status),
		TreatmentState:   string(a.TreatmentState),
		OTP:              a.OTP,
		OTPExpires:       a.OTPExpires,
		OTPVerified:      a.OTPVerified,
		PrescriptionFile: a.PrescriptionFile,
		PrescriptionText: a.PrescriptionText,
		DoctorNotes:      a.DoctorNotes,
		CreatedAt:        a.CreatedAt,
		UpdatedAt:        a.UpdatedAt,
	}
	if a.PatientID != nil {
		p := a.PatientID.String()
		doc.Patient = &p
	}
	if a.Reviewed() {
		doc.Review = &reviewDoc{
			Rating:    a.Review.Rating,
			Comment:   a.Review.Comment,
			CreatedAt: a.Review.CreatedAt,
		}
	}
	return doc
}

func (d appointmentDoc) toAppointment() (*Appointment, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("appointment id %q: %w", d.ID, err)
	}
	doctorID, err := uuid.Parse(d.Doctor)
	if err != nil {
		return nil, fmt.Errorf("doctor id %q: %w", d.Doctor, err)
	}
	day, err := ParseDay(d.Date)
	if err != nil {
		return nil, err
	}

	a := &Appointment{
		ID:               id,
		DoctorID:         doctorID,
		PatientName:      d.PatientName,
		Date:             day,
		Time:             d.Time,
		Treatment:        d.Treatment,
		Status:           Status(d.Status),
		TreatmentState:   TreatmentState(d.TreatmentState),
		OTP:              d.OTP,
		OTPExpires:       d.OTPExpires,
		OTPVerified:      d.OTPVerified,
		PrescriptionFile: d.PrescriptionFile,
		PrescriptionText: d.PrescriptionText,
		DoctorNotes:      d.DoctorNotes,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
	if d.Patient != nil {
		patientID, err := uuid.Parse(*d.Patient)
		if err != nil {
			return nil, fmt.Errorf("patient id %q: %w", *d.Patient, err)
		}
		a.PatientID = &patientID
	}
	if d.Review != nil {
		a.Review = &Review{
			Rating:    d.Review.Rating,
			Comment:   d.Review.Comment,
			CreatedAt: d.Review.CreatedAt,
		}
	}
	return a, nil
}

func (d doctorDoc) toDoctor() (*Doctor, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("doctor id %q: %w", d.ID, err)
	}
	return &Doctor{
		ID:             id,
		Name:           d.Name,
		Email:          d.Email,
		Specialization: d.Specialization,
		Avatar:         d.Avatar,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}, nil
}

func (d patientDoc) toPatient() (*Patient, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("patient id %q: %w", d.ID, err)
	}
	return &Patient{
		ID:        id,
		Name:      d.Name,
		Email:     d.Email,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}, nil
}

var byDateThenTime = options.Find().SetSort(bson.D{{Key: "date", Value: 1}, {Key: "time", Value: 1}})

func (r *MongoRepository) appointments() *mongo.Collection {
	return r.db.Collection(appointmentsCollection)
}

func (r *MongoRepository) findOneAppointment(ctx context.Context, filter bson.M) (*Appointment, error) {
	var doc appointmentDoc
	if err := r.appointments().FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	return doc.toAppointment()
}

func (r *MongoRepository) findAppointments(ctx context.Context, filter bson.M) ([]Appointment, error) {
	cur, err := r.appointments().Find(ctx, filter, byDateThenTime)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	result := []Appointment{}
	for cur.Next(ctx) {
		var doc appointmentDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		a, err := doc.toAppointment()
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// EnsureIndexes creates the indexes backing the listing and slot queries.
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.appointments().Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "doctor", Value: 1}, {Key: "date", Value: 1}, {Key: "time", Value: 1}}},
		{Keys: bson.D{{Key: "patient", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "date", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create appointment indexes: %w", err)
	}
	return nil
}

// Interface methods

func (r *MongoRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	var doc doctorDoc
	err := r.db.Collection(doctorsCollection).FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}
	return doc.toDoctor()
}

func (r *MongoRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	var doc patientDoc
	err := r.db.Collection(patientsCollection).FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return doc.toPatient()
}

func (r *MongoRepository) CreateDoctor(ctx context.Context, d *Doctor) error {
	_, err := r.db.Collection(doctorsCollection).InsertOne(ctx, doctorDoc{
		ID:             d.ID.String(),
		Name:           d.Name,
		Email:          d.Email,
		Specialization: d.Specialization,
		Avatar:         d.Avatar,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("insert doctor: %w", err)
	}
	return nil
}

func (r *MongoRepository) CreatePatient(ctx context.Context, p *Patient) error {
	_, err := r.db.Collection(patientsCollection).InsertOne(ctx, patientDoc{
		ID:        p.ID.String(),
		Name:      p.Name,
		Email:     p.Email,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("insert patient: %w", err)
	}
	return nil
}

func (r *MongoRepository) CreateAppointment(ctx context.Context, a *Appointment) error {
	if _, err := r.appointments().InsertOne(ctx, toAppointmentDoc(a)); err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (r *MongoRepository) SaveAppointment(ctx context.Context, a *Appointment) error {
	res, err := r.appointments().ReplaceOne(ctx, bson.M{"_id": a.ID.String()}, toAppointmentDoc(a))
	if err != nil {
		return fmt.Errorf("replace appointment: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *MongoRepository) GetAppointmentForDoctor(ctx context.Context, id, doctorID uuid.UUID) (*Appointment, error) {
	return r.findOneAppointment(ctx, bson.M{"_id": id.String(), "doctor": doctorID.String()})
}

func (r *MongoRepository) GetAppointmentForPatient(ctx context.Context, id, patientID uuid.UUID) (*Appointment, error) {
	return r.findOneAppointment(ctx, bson.M{"_id": id.String(), "patient": patientID.String()})
}

func (r *MongoRepository) GetAppointmentDetail(ctx context.Context, id, doctorID uuid.UUID) (*AppointmentDetail, error) {
	a, err := r.GetAppointmentForDoctor(ctx, id, doctorID)
	if err != nil {
		return nil, err
	}

	detail := &AppointmentDetail{Appointment: *a}
	doctor, err := r.GetDoctorByID(ctx, doctorID)
	if err != nil && !errors.Is(err, ErrDoctorNotFound) {
		return nil, err
	}
	detail.Doctor = doctor

	if a.PatientID != nil {
		patient, err := r.GetPatientByID(ctx, *a.PatientID)
		if err != nil && !errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		detail.Patient = patient
	}
	return detail, nil
}

func (r *MongoRepository) FindLiveAppointmentForSlot(ctx context.Context, doctorID uuid.UUID, day Day, slotTime string) (*Appointment, error) {
	return r.findOneAppointment(ctx, bson.M{
		"doctor": doctorID.String(),
		"date":   day.String(),
		"time":   slotTime,
		"status": bson.M{"$in": bson.A{string(StatusUpcoming), string(StatusApproved)}},
	})
}

func (r *MongoRepository) ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]Appointment, error) {
	return r.findAppointments(ctx, bson.M{"doctor": doctorID.String()})
}

func (r *MongoRepository) ListByDoctorAndPatient(ctx context.Context, doctorID, patientID uuid.UUID) ([]Appointment, error) {
	return r.findAppointments(ctx, bson.M{"doctor": doctorID.String(), "patient": patientID.String()})
}

func (r *MongoRepository) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]AppointmentDetail, error) {
	appointments, err := r.findAppointments(ctx, bson.M{"patient": patientID.String()})
	if err != nil {
		return nil, err
	}

	doctors := map[uuid.UUID]*Doctor{}
	result := make([]AppointmentDetail, 0, len(appointments))
	for _, a := range appointments {
		doctor, ok := doctors[a.DoctorID]
		if !ok {
			doctor, err = r.GetDoctorByID(ctx, a.DoctorID)
			if err != nil && !errors.Is(err, ErrDoctorNotFound) {
				return nil, err
			}
			doctors[a.DoctorID] = doctor
		}
		result = append(result, AppointmentDetail{Appointment: a, Doctor: doctor})
	}
	return result, nil
}

func (r *MongoRepository) ListDoctorPatients(ctx context.Context, doctorID uuid.UUID) ([]PatientSummary, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"doctor": doctorID.String(), "patient": bson.M{"$exists": true, "$ne": nil}}}},
		{{Key: "$group", Value: bson.M{"_id": "$patient", "appointmentCount": bson.M{"$sum": 1}}}},
		{{Key: "$lookup", Value: bson.M{
			"from":         patientsCollection,
			"localField":   "_id",
			"foreignField": "_id",
			"as":           "patient",
		}}},
		{{Key: "$unwind", Value: "$patient"}},
		{{Key: "$sort", Value: bson.M{"patient.name": 1}}},
	}

	cur, err := r.appointments().Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	result := []PatientSummary{}
	for cur.Next(ctx) {
		var row struct {
			AppointmentCount int        `bson:"appointmentCount"`
			Patient          patientDoc `bson:"patient"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		p, err := row.Patient.toPatient()
		if err != nil {
			return nil, err
		}
		result = append(result, PatientSummary{
			ID:               p.ID,
			Name:             p.Name,
			Email:            p.Email,
			AppointmentCount: row.AppointmentCount,
		})
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// MarkPast flips live appointments dated before the given day one document at
// a time, re-checking liveness in each update so a concurrent cancel wins.
// Only the ids actually flipped are returned.
func (r *MongoRepository) MarkPast(ctx context.Context, before Day) ([]uuid.UUID, error) {
	live := bson.M{"$in": bson.A{string(StatusUpcoming), string(StatusApproved)}}

	cur, err := r.appointments().Find(ctx,
		bson.M{"status": live, "date": bson.M{"$lt": before.String()}},
		options.Find().SetProjection(bson.M{"_id": 1}),
	)
	if err != nil {
		return nil, err
	}
	var rows []struct {
		ID string `bson:"_id"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, err
	}

	var ids []uuid.UUID
	for _, row := range rows {
		id, err := uuid.Parse(row.ID)
		if err != nil {
			return ids, fmt.Errorf("appointment id %q: %w", row.ID, err)
		}
		res, err := r.appointments().UpdateOne(ctx,
			bson.M{"_id": row.ID, "status": live},
			bson.M{"$set": bson.M{"status": string(StatusPast), "updatedAt": time.Now()}},
		)
		if err != nil {
			return ids, fmt.Errorf("mark past: %w", err)
		}
		if res.ModifiedCount == 1 {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r *MongoRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	doc := eventLogDoc{
		EventType: ev.EventType,
		Payload:   string(ev.Payload),
		CreatedAt: ev.CreatedAt,
	}
	if ev.AppointmentID != nil {
		id := ev.AppointmentID.String()
		doc.AppointmentID = &id
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}

	if _, err := r.db.Collection(eventLogsCollection).InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}

// Ping reports whether the database still answers.
func (r *MongoRepository) Ping(ctx context.Context) error {
	return r.db.RunCommand(ctx, bson.D{{Key: "ping", Value: 1}}).Err()
}
