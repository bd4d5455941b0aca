package scheduling

import "sort"

// assembleResponse turns per-series search results and the committed slot set
// into the documented response shape. Outcomes follow the request's
// declaration order; the flattened reservation listing exists only when at
// least one series was fully or partially scheduled.
func assembleResponse(reqs []AppointmentRequest, results map[string]seriesResult, committed []AppointmentSlot) FindAvailableAppointmentsResponse {
	bySeries := make(map[string][]AppointmentSlot, len(reqs))
	for _, slot := range committed {
		bySeries[slot.SeriesID] = append(bySeries[slot.SeriesID], slot)
	}

	resp := FindAvailableAppointmentsResponse{
		Series: make([]SeriesOutcome, 0, len(reqs)),
	}
	for _, ar := range reqs {
		res := results[ar.SeriesID]
		outcome := SeriesOutcome{
			SeriesID: ar.SeriesID,
			Status:   res.Status,
			Message:  res.Message,
		}
		if slots := bySeries[ar.SeriesID]; len(slots) > 0 {
			sort.Slice(slots, func(i, j int) bool { return slots[i].Start.Before(slots[j].Start) })
			outcome.Slots = slots
		}
		if outcome.Status == StatusFullyScheduled || outcome.Status == StatusPartiallyScheduled {
			resp.Success = true
		}
		resp.Series = append(resp.Series, outcome)
	}

	if !resp.Success {
		// No details on failure, not even an empty list; absence is the
		// contract API consumers rely on.
		return resp
	}

	details := make([]ReservationDetail, 0, len(committed))
	for _, slot := range committed {
		details = append(details, ReservationDetail{
			SeriesID:        slot.SeriesID,
			Occurrence:      slot.Occurrence,
			Provider:        slot.Provider,
			Type:            slot.Type,
			Start:           slot.Start,
			End:             slot.End(),
			DurationMinutes: slot.DurationMinutes,
		})
	}
	sort.Slice(details, func(i, j int) bool { return details[i].Start.Before(details[j].Start) })
	resp.ReservationDetails = details
	return resp
}
