package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medisync/clinic-scheduler/internal/db"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	clinicID := uuid.New()
	if err := seedClinic(context.Background(), pool, clinicID); err != nil {
		log.Fatalf("seed clinic: %v", err)
	}
	clinicians, err := seedClinicians(context.Background(), pool, 40)
	if err != nil {
		log.Fatalf("seed clinicians: %v", err)
	}
	resources, err := seedResources(context.Background(), pool, 12)
	if err != nil {
		log.Fatalf("seed resources: %v", err)
	}
	patients, err := seedPatients(context.Background(), pool, 2000)
	if err != nil {
		log.Fatalf("seed patients: %v", err)
	}
	if err := seedAppointments(context.Background(), pool, clinicID, patients, clinicians, resources, 5000); err != nil {
		log.Fatalf("seed appointments: %v", err)
	}

	log.Println("seed complete")
}

func seedClinic(ctx context.Context, pool *pgxpool.Pool, id uuid.UUID) error {
	_, err := pool.Exec(ctx, `
		INSERT INTO clinics (id, name, timezone, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
	`, id, gofakeit.Company()+" Clinic", "UTC")
	return err
}

func seedClinicians(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d clinicians", count)

	specialties := []string{
		"Primary Care",
		"Infusion Therapy",
		"Physical Therapy",
		"Cardiology",
		"Endocrinology",
		"Neurology",
		"Oncology",
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := gofakeit.Name()
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO clinicians (id, name, specialty, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, id, name, spec)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("clinicians seeded")
	return ids, nil
}

func seedResources(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d resources", count)

	kinds := []string{"iv_chair", "exam_room", "therapy_room", "lab_station"}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		kind := kinds[gofakeit.Number(0, len(kinds)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO resources (id, name, kind, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, id, gofakeit.Word()+"-"+kind, kind)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("resources seeded")
	return ids, nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d patients", count)

	const batchSize = 500
	ids := make([]uuid.UUID, 0, count)

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return nil, err
		}

		for i := offset; i < end; i++ {
			id := uuid.New()
			name := gofakeit.Name()
			email := gofakeit.Email()

			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, email, created_at, updated_at)
				VALUES ($1, $2, $3, now(), now())
			`, id, name, email)
			if err != nil {
				_ = tx.Rollback(ctx)
				return nil, err
			}
			ids = append(ids, id)
		}

		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}

		log.Printf("patients seeded: %d/%d", end, count)
	}

	log.Println("patients seeded")
	return ids, nil
}

// seedAppointments scatters pre-existing bookings over the next 30 days so
// clustering has something to cluster against.
func seedAppointments(ctx context.Context, pool *pgxpool.Pool, clinicID uuid.UUID, patients, clinicians, resources []uuid.UUID, count int) error {
	log.Printf("seeding %d appointments", count)

	types := []string{"PRIMARY_CARE_VISIT", "IV_THERAPY", "PHYSICAL_THERAPY", "LAB_DRAW"}
	durations := []int{30, 45, 60, 120}

	const batchSize = 500
	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			patient := patients[gofakeit.Number(0, len(patients)-1)]
			day := gofakeit.Number(1, 30)
			startMinute := gofakeit.Number(0, 35) * 15 // 08:00..16:45
			start := time.Now().UTC().Truncate(24*time.Hour).
				AddDate(0, 0, day).
				Add(time.Duration(8*60+startMinute) * time.Minute)
			dur := durations[gofakeit.Number(0, len(durations)-1)]

			var clinicianID, resourceID *uuid.UUID
			if gofakeit.Bool() {
				clinicianID = &clinicians[gofakeit.Number(0, len(clinicians)-1)]
			} else {
				resourceID = &resources[gofakeit.Number(0, len(resources)-1)]
			}

			_, err := tx.Exec(ctx, `
				INSERT INTO appointments
					(id, clinic_id, patient_id, clinician_id, resource_id,
					 appointment_type, start_time, end_time, series_key, occurrence,
					 reserved, requested_by, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'seed', 1, true, $9, now())
			`, uuid.New(), clinicID, patient, clinicianID, resourceID,
				types[gofakeit.Number(0, len(types)-1)], start,
				start.Add(time.Duration(dur)*time.Minute),
				clinicians[gofakeit.Number(0, len(clinicians)-1)])
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Printf("appointments seeded: %d/%d", end, count)
	}

	log.Println("appointments seeded")
	return nil
}
