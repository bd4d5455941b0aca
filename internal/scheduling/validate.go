package scheduling

import (
	"github.com/google/uuid"
)

// ValidateRequest rejects malformed requests before any search or store
// access happens. Dependency graph problems are reported separately by the
// resolver.
func ValidateRequest(req FindAvailableAppointmentsRequest) error {
	if req.ClinicID == uuid.Nil {
		return validationError("clinic_id is required")
	}
	if req.PatientID == uuid.Nil {
		return validationError("patient_id is required")
	}
	if req.RequestDate.IsZero() {
		return validationError("request_date is required")
	}
	if req.MaxDaysToSearch < 0 {
		return validationError("max_days_to_search must not be negative")
	}
	if len(req.Requests) == 0 {
		return validationError("at least one appointment request is required")
	}

	if req.Clustering.Enabled {
		if req.Clustering.MaxAppointmentsPerDay < 1 {
			return validationError("clustering max_appointments_per_day must be at least 1")
		}
		if req.Clustering.MinMinutesBetween < 0 {
			return validationError("clustering min_minutes_between must not be negative")
		}
		if req.Clustering.MaxMinutesBetween < req.Clustering.MinMinutesBetween {
			return validationError("clustering max_minutes_between must be >= min_minutes_between")
		}
	}

	seen := make(map[string]struct{}, len(req.Requests))
	for _, ar := range req.Requests {
		if ar.SeriesID == "" {
			return validationError("series_id is required")
		}
		if _, dup := seen[ar.SeriesID]; dup {
			return validationError("duplicate series_id %q", ar.SeriesID)
		}
		seen[ar.SeriesID] = struct{}{}

		if err := validateProvider(ar); err != nil {
			return err
		}
		if ar.DurationMinutes <= 0 {
			return validationError("series %q: duration must be positive", ar.SeriesID)
		}
		if ar.Type == "" {
			return validationError("series %q: appointment type is required", ar.SeriesID)
		}
		if ar.Pattern != nil {
			if err := validatePattern(ar.SeriesID, ar.Pattern); err != nil {
				return err
			}
		}
	}

	return nil
}

func validateProvider(ar AppointmentRequest) error {
	hasClinician := ar.Provider.ClinicianID != nil && *ar.Provider.ClinicianID != uuid.Nil
	hasResource := ar.Provider.ResourceID != nil && *ar.Provider.ResourceID != uuid.Nil

	switch {
	case hasClinician && hasResource:
		return validationError("series %q: clinician and resource are mutually exclusive", ar.SeriesID)
	case !hasClinician && !hasResource:
		return validationError("series %q: exactly one of clinician or resource is required", ar.SeriesID)
	}
	return nil
}

func validatePattern(seriesID string, p *RecurringPattern) error {
	if p.TotalOccurrences < 1 {
		return validationError("series %q: total_occurrences must be at least 1", seriesID)
	}
	if p.MaxPerWeek < 1 {
		return validationError("series %q: max_per_week must be at least 1", seriesID)
	}
	if p.PreferredPerWeek < 0 {
		return validationError("series %q: preferred_per_week must not be negative", seriesID)
	}
	if p.PreferredPerWeek > p.MaxPerWeek {
		return validationError("series %q: preferred_per_week must be <= max_per_week", seriesID)
	}
	if p.StartAfterSeriesID != "" && p.StartAfterOccurrence < 1 {
		return validationError("series %q: start_after_occurrence must be at least 1", seriesID)
	}
	if p.StartAfterSeriesID == "" && p.StartAfterOccurrence != 0 {
		return validationError("series %q: start_after_occurrence requires start_after_series_id", seriesID)
	}
	return nil
}
