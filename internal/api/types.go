package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/medisync/clinic-scheduler/internal/scheduling"
)

type RecurringPatternRequest struct {
	TotalOccurrences     int    `json:"totalOccurrences"`
	MaxPerWeek           int    `json:"maxPerWeek"`
	PreferredPerWeek     int    `json:"preferredPerWeek,omitempty"`
	FixedStartDate       string `json:"fixedStartDate,omitempty"` // YYYY-MM-DD
	StartAfterSeriesID   string `json:"startAfterSeriesId,omitempty"`
	StartAfterOccurrence int    `json:"startAfterOccurrence,omitempty"`
}

type AppointmentRequestItem struct {
	SeriesID        string                   `json:"seriesId"`
	SameDaySequence int                      `json:"sameDaySequence,omitempty"`
	ClinicianID     string                   `json:"clinicianId,omitempty"`
	ResourceID      string                   `json:"resourceId,omitempty"`
	AppointmentType string                   `json:"appointmentType"`
	DurationMinutes int                      `json:"durationMinutes"`
	Pattern         *RecurringPatternRequest `json:"recurringPattern,omitempty"`
}

type ClusteringPreferenceRequest struct {
	Enabled               bool `json:"enabled"`
	PreferExistingDays    bool `json:"preferExistingDays"`
	MaxAppointmentsPerDay int  `json:"maxAppointmentsPerDay"`
	MinMinutesBetween     int  `json:"minTimeBetweenAppointments"`
	MaxMinutesBetween     int  `json:"maxTimeBetweenAppointments"`
}

type FindAvailableAppointmentsRequest struct {
	ClinicID              string                      `json:"clinicId"`
	PatientID             string                      `json:"patientId"`
	RequestingClinicianID string                      `json:"requestingClinicianId"`
	RequestDate           string                      `json:"requestDate"` // YYYY-MM-DD
	MaxDaysToSearch       int                         `json:"maxDaysToSearch"`
	Clustering            ClusteringPreferenceRequest `json:"clusteringPreference"`
	Requests              []AppointmentRequestItem    `json:"appointmentRequests"`
}

type SlotResponse struct {
	SeriesID        string    `json:"seriesId"`
	Occurrence      int       `json:"occurrence"`
	ClinicianID     string    `json:"clinicianId,omitempty"`
	ResourceID      string    `json:"resourceId,omitempty"`
	AppointmentType string    `json:"appointmentType"`
	StartTime       time.Time `json:"startTime"`
	EndTime         time.Time `json:"endTime"`
	DurationMinutes int       `json:"durationMinutes"`
	Reserved        bool      `json:"reserved"`
}

type SeriesOutcomeResponse struct {
	SeriesID string         `json:"seriesId"`
	Status   string         `json:"status"`
	Message  string         `json:"message,omitempty"`
	Slots    []SlotResponse `json:"slots,omitempty"`
}

type FindAvailableAppointmentsResponse struct {
	Success            bool                    `json:"success"`
	Series             []SeriesOutcomeResponse `json:"series"`
	ReservationDetails []SlotResponse          `json:"reservationDetails,omitempty"`
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func providerIDs(p scheduling.ProviderRef) (clinicianID, resourceID string) {
	if p.ClinicianID != nil {
		clinicianID = p.ClinicianID.String()
	}
	if p.ResourceID != nil {
		resourceID = p.ResourceID.String()
	}
	return clinicianID, resourceID
}

func parseOptionalUUID(s string) (*uuid.UUID, error) {
	if s == "" {
		return nil, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil, err
	}
	return &id, nil
}
