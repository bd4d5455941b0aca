package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ReservationContext carries the request identity the store records against
// every committed slot.
type ReservationContext struct {
	ClinicID    uuid.UUID
	PatientID   uuid.UUID
	RequestedBy uuid.UUID
}

// Store is the engine's only boundary with persistence: the existing
// appointment lookup that seeds clustering, and the transactional commit of a
// candidate slot batch.
type Store interface {
	// ListPatientAppointments returns all of the patient's appointments in
	// the clinic within [from, to).
	ListPatientAppointments(ctx context.Context, patientID, clinicID uuid.UUID, from, to time.Time) ([]ExistingAppointment, error)

	// ReserveSlots re-validates every candidate against the live store and
	// commits the whole batch in one transaction, or commits nothing and
	// returns *ReservationConflictError naming the first conflicting slot.
	ReserveSlots(ctx context.Context, rc ReservationContext, slots []AppointmentSlot) ([]AppointmentSlot, error)
}
