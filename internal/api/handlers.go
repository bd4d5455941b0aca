package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/medisync/clinic-scheduler/internal/scheduling"
)

// Scheduler is the engine surface the transport needs.
type Scheduler interface {
	FindAvailableAppointments(ctx context.Context, req scheduling.FindAvailableAppointmentsRequest) (scheduling.FindAvailableAppointmentsResponse, error)
}

func findAvailableAppointmentsHandler(svc Scheduler, maxHorizonDays int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req FindAvailableAppointmentsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		engineReq, err := toEngineRequest(req, maxHorizonDays)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}

		resp, err := svc.FindAvailableAppointments(r.Context(), engineReq)
		if err != nil {
			handleSchedulingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toResponse(resp))
	}
}

func toEngineRequest(req FindAvailableAppointmentsRequest, maxHorizonDays int) (scheduling.FindAvailableAppointmentsRequest, error) {
	var out scheduling.FindAvailableAppointmentsRequest

	clinicID, err := uuid.Parse(req.ClinicID)
	if err != nil {
		return out, errors.New("clinicId must be a valid UUID")
	}
	patientID, err := uuid.Parse(req.PatientID)
	if err != nil {
		return out, errors.New("patientId must be a valid UUID")
	}
	requestedBy, err := uuid.Parse(req.RequestingClinicianID)
	if err != nil {
		return out, errors.New("requestingClinicianId must be a valid UUID")
	}
	requestDate, err := time.Parse("2006-01-02", req.RequestDate)
	if err != nil {
		return out, errors.New("requestDate must be YYYY-MM-DD")
	}
	if req.MaxDaysToSearch > maxHorizonDays {
		return out, errors.New("maxDaysToSearch exceeds the configured maximum")
	}

	items := make([]scheduling.AppointmentRequest, 0, len(req.Requests))
	for _, it := range req.Requests {
		clinician, err := parseOptionalUUID(it.ClinicianID)
		if err != nil {
			return out, errors.New("clinicianId must be a valid UUID")
		}
		resource, err := parseOptionalUUID(it.ResourceID)
		if err != nil {
			return out, errors.New("resourceId must be a valid UUID")
		}

		item := scheduling.AppointmentRequest{
			SeriesID:        it.SeriesID,
			SameDaySequence: it.SameDaySequence,
			Provider:        scheduling.ProviderRef{ClinicianID: clinician, ResourceID: resource},
			Type:            scheduling.AppointmentType(it.AppointmentType),
			DurationMinutes: it.DurationMinutes,
		}
		if it.Pattern != nil {
			pattern := scheduling.RecurringPattern{
				TotalOccurrences:     it.Pattern.TotalOccurrences,
				MaxPerWeek:           it.Pattern.MaxPerWeek,
				PreferredPerWeek:     it.Pattern.PreferredPerWeek,
				StartAfterSeriesID:   it.Pattern.StartAfterSeriesID,
				StartAfterOccurrence: it.Pattern.StartAfterOccurrence,
			}
			if it.Pattern.FixedStartDate != "" {
				d, err := time.Parse("2006-01-02", it.Pattern.FixedStartDate)
				if err != nil {
					return out, errors.New("fixedStartDate must be YYYY-MM-DD")
				}
				pattern.FixedStartDate = &d
			}
			item.Pattern = &pattern
		}
		items = append(items, item)
	}

	out = scheduling.FindAvailableAppointmentsRequest{
		ClinicID:              clinicID,
		PatientID:             patientID,
		RequestingClinicianID: requestedBy,
		RequestDate:           requestDate,
		MaxDaysToSearch:       req.MaxDaysToSearch,
		Clustering: scheduling.ClusteringPreference{
			Enabled:               req.Clustering.Enabled,
			PreferExistingDays:    req.Clustering.PreferExistingDays,
			MaxAppointmentsPerDay: req.Clustering.MaxAppointmentsPerDay,
			MinMinutesBetween:     req.Clustering.MinMinutesBetween,
			MaxMinutesBetween:     req.Clustering.MaxMinutesBetween,
		},
		Requests: items,
	}
	return out, nil
}

func toResponse(resp scheduling.FindAvailableAppointmentsResponse) FindAvailableAppointmentsResponse {
	out := FindAvailableAppointmentsResponse{
		Success: resp.Success,
		Series:  make([]SeriesOutcomeResponse, 0, len(resp.Series)),
	}
	for _, s := range resp.Series {
		outcome := SeriesOutcomeResponse{
			SeriesID: s.SeriesID,
			Status:   string(s.Status),
			Message:  s.Message,
		}
		for _, slot := range s.Slots {
			outcome.Slots = append(outcome.Slots, toSlotResponse(slot))
		}
		out.Series = append(out.Series, outcome)
	}

	for _, d := range resp.ReservationDetails {
		clinicianID, resourceID := providerIDs(d.Provider)
		out.ReservationDetails = append(out.ReservationDetails, SlotResponse{
			SeriesID:        d.SeriesID,
			Occurrence:      d.Occurrence,
			ClinicianID:     clinicianID,
			ResourceID:      resourceID,
			AppointmentType: string(d.Type),
			StartTime:       d.Start,
			EndTime:         d.End,
			DurationMinutes: d.DurationMinutes,
			Reserved:        true,
		})
	}
	return out
}

func toSlotResponse(slot scheduling.AppointmentSlot) SlotResponse {
	clinicianID, resourceID := providerIDs(slot.Provider)
	return SlotResponse{
		SeriesID:        slot.SeriesID,
		Occurrence:      slot.Occurrence,
		ClinicianID:     clinicianID,
		ResourceID:      resourceID,
		AppointmentType: string(slot.Type),
		StartTime:       slot.Start,
		EndTime:         slot.End(),
		DurationMinutes: slot.DurationMinutes,
		Reserved:        slot.Reserved,
	}
}

func handleSchedulingError(w http.ResponseWriter, err error) {
	var (
		validationErr *scheduling.ValidationError
		cycleErr      *scheduling.DependencyCycleError
		unknownErr    *scheduling.UnknownSeriesReferenceError
		lookupErr     *scheduling.LookupError
	)
	switch {
	case errors.As(err, &validationErr):
		writeError(w, http.StatusBadRequest, "validation_failed", validationErr.Error())
	case errors.As(err, &cycleErr):
		writeError(w, http.StatusUnprocessableEntity, "dependency_cycle", cycleErr.Error())
	case errors.As(err, &unknownErr):
		writeError(w, http.StatusUnprocessableEntity, "unknown_series_reference", unknownErr.Error())
	case errors.As(err, &lookupErr):
		writeError(w, http.StatusBadGateway, "appointment_lookup_failed", lookupErr.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{
		Success: false,
		Error:   code,
		Details: details,
	})
}
