package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgStore persists appointments in Postgres. Reservation commits run in a
// single transaction: every candidate slot is re-checked against the live
// table before anything is inserted, so a batch that races a concurrent
// commit rolls back whole.
type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func scanExistingAppointment(row pgx.Row) (*ExistingAppointment, error) {
	var (
		a           ExistingAppointment
		clinicianID *uuid.UUID
		resourceID  *uuid.UUID
	)

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.ClinicID,
		&clinicianID,
		&resourceID,
		&a.Type,
		&a.Start,
		&a.End,
	)
	if err != nil {
		return nil, err
	}

	a.Provider = ProviderRef{ClinicianID: clinicianID, ResourceID: resourceID}
	return &a, nil
}

func (s *PgStore) ListPatientAppointments(ctx context.Context, patientID, clinicID uuid.UUID, from, to time.Time) ([]ExistingAppointment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, patient_id, clinic_id, clinician_id, resource_id, appointment_type, start_time, end_time
		FROM appointments
		WHERE patient_id = $1
		  AND clinic_id = $2
		  AND start_time >= $3
		  AND start_time < $4
		ORDER BY start_time
	`, patientID, clinicID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list patient appointments: %w", err)
	}
	defer rows.Close()

	var result []ExistingAppointment
	for rows.Next() {
		a, err := scanExistingAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan appointment: %w", err)
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list patient appointments: %w", err)
	}

	return result, nil
}

func (s *PgStore) ReserveSlots(ctx context.Context, rc ReservationContext, slots []AppointmentSlot) ([]AppointmentSlot, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin reservation: %w", err)
	}
	defer tx.Rollback(ctx)

	reserved := make([]AppointmentSlot, 0, len(slots))
	for _, slot := range slots {
		if err := s.checkSlotFree(ctx, tx, slot); err != nil {
			return nil, err
		}

		id := uuid.New()
		_, err := tx.Exec(ctx, `
			INSERT INTO appointments
				(id, clinic_id, patient_id, clinician_id, resource_id,
				 appointment_type, start_time, end_time, series_key, occurrence,
				 reserved, requested_by, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, true, $11, now())
		`, id, rc.ClinicID, rc.PatientID, slot.Provider.ClinicianID, slot.Provider.ResourceID,
			slot.Type, slot.Start, slot.End(), slot.SeriesID, slot.Occurrence, rc.RequestedBy)
		if err != nil {
			return nil, fmt.Errorf("insert slot: %w", err)
		}

		slot.Reserved = true
		reserved = append(reserved, slot)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit reservation: %w", err)
	}

	return reserved, nil
}

// checkSlotFree looks for any live appointment occupying the slot's provider
// or resource during the slot's interval. Search ran lock-free, so this is
// where a slot taken since the search began surfaces.
func (s *PgStore) checkSlotFree(ctx context.Context, tx pgx.Tx, slot AppointmentSlot) error {
	var (
		query string
		owner *uuid.UUID
	)
	switch {
	case slot.Provider.ClinicianID != nil:
		query = `SELECT id FROM appointments WHERE clinician_id = $1 AND start_time < $3 AND end_time > $2 LIMIT 1`
		owner = slot.Provider.ClinicianID
	case slot.Provider.ResourceID != nil:
		query = `SELECT id FROM appointments WHERE resource_id = $1 AND start_time < $3 AND end_time > $2 LIMIT 1`
		owner = slot.Provider.ResourceID
	default:
		return fmt.Errorf("slot for series %q has no provider", slot.SeriesID)
	}

	var existingID uuid.UUID
	err := tx.QueryRow(ctx, query, owner, slot.Start, slot.End()).Scan(&existingID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("check slot availability: %w", err)
	}
	return &ReservationConflictError{Slot: slot}
}
