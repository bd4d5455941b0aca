package scheduling

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type SeriesStatus string

const (
	StatusFullyScheduled     SeriesStatus = "FULLY_SCHEDULED"
	StatusPartiallyScheduled SeriesStatus = "PARTIALLY_SCHEDULED"
	StatusCannotSchedule     SeriesStatus = "CANNOT_SCHEDULE"
)

type AppointmentType string

const (
	TypePrimaryCareVisit AppointmentType = "PRIMARY_CARE_VISIT"
	TypeIVTherapy        AppointmentType = "IV_THERAPY"
	TypePhysicalTherapy  AppointmentType = "PHYSICAL_THERAPY"
	TypeLabDraw          AppointmentType = "LAB_DRAW"
)

// ProviderRef identifies who or what an appointment occupies. Exactly one of
// ClinicianID or ResourceID must be set.
type ProviderRef struct {
	ClinicianID *uuid.UUID
	ResourceID  *uuid.UUID
}

func ClinicianRef(id uuid.UUID) ProviderRef {
	return ProviderRef{ClinicianID: &id}
}

func ResourceRef(id uuid.UUID) ProviderRef {
	return ProviderRef{ResourceID: &id}
}

// Key returns the canonical identifier used for overlap checks and lock
// ordering. Clinicians and resources live in disjoint key spaces.
func (p ProviderRef) Key() string {
	if p.ClinicianID != nil {
		return "clinician:" + p.ClinicianID.String()
	}
	if p.ResourceID != nil {
		return "resource:" + p.ResourceID.String()
	}
	return ""
}

func (p ProviderRef) Equal(o ProviderRef) bool {
	return p.Key() == o.Key()
}

// ExistingAppointment is a previously booked appointment loaded from the
// reservation store. Read-only to the engine.
type ExistingAppointment struct {
	ID        uuid.UUID
	PatientID uuid.UUID
	ClinicID  uuid.UUID
	Provider  ProviderRef
	Type      AppointmentType
	Start     time.Time
	End       time.Time
}

// RecurringPattern describes how a series repeats.
type RecurringPattern struct {
	TotalOccurrences int
	MaxPerWeek       int
	// PreferredPerWeek is the target placement rate. Zero means unset, in
	// which case MaxPerWeek is the target.
	PreferredPerWeek int
	FixedStartDate   *time.Time
	// StartAfterSeriesID defers occurrence 1 of this series until the named
	// occurrence of another series in the same request has ended.
	StartAfterSeriesID   string
	StartAfterOccurrence int
}

// AppointmentRequest is one line item of a scheduling request.
type AppointmentRequest struct {
	SeriesID string
	// SameDaySequence orders this series relative to siblings placed on the
	// same day. Zero means no preference.
	SameDaySequence int
	Provider        ProviderRef
	Type            AppointmentType
	DurationMinutes int
	Pattern         *RecurringPattern
}

// ClusteringPreference controls whether new appointments are packed onto days
// the patient already visits the clinic.
type ClusteringPreference struct {
	Enabled               bool
	PreferExistingDays    bool
	MaxAppointmentsPerDay int
	MinMinutesBetween     int
	MaxMinutesBetween     int
}

// AppointmentSlot is a proposed or committed appointment.
type AppointmentSlot struct {
	SeriesID        string
	Occurrence      int
	Provider        ProviderRef
	Type            AppointmentType
	Start           time.Time
	DurationMinutes int
	Reserved        bool
}

func (s AppointmentSlot) End() time.Time {
	return s.Start.Add(time.Duration(s.DurationMinutes) * time.Minute)
}

type SeriesOutcome struct {
	SeriesID string
	Slots    []AppointmentSlot
	Status   SeriesStatus
	Message  string
}

type FindAvailableAppointmentsRequest struct {
	ClinicID              uuid.UUID
	PatientID             uuid.UUID
	RequestingClinicianID uuid.UUID
	RequestDate           time.Time
	MaxDaysToSearch       int
	Clustering            ClusteringPreference
	Requests              []AppointmentRequest
}

// ReservationDetail is one committed slot in the flattened response listing.
type ReservationDetail struct {
	SeriesID        string
	Occurrence      int
	Provider        ProviderRef
	Type            AppointmentType
	Start           time.Time
	End             time.Time
	DurationMinutes int
}

type FindAvailableAppointmentsResponse struct {
	Success            bool
	Series             []SeriesOutcome
	ReservationDetails []ReservationDetail
}

// overlaps reports whether [aStart, aEnd) and [bStart, bEnd) intersect.
func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// isoWeekKey buckets a time into its ISO calendar week, e.g. "2024-W52".
func isoWeekKey(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%04d-W%02d", year, week)
}

// midnight truncates t to the start of its calendar day in loc.
func midnight(t time.Time, loc *time.Location) time.Time {
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
}
