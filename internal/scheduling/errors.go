package scheduling

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrReservationContention = errors.New("reservation locks could not be acquired")
)

// FailureReason classifies why a single series could not be fully placed.
type FailureReason string

const (
	ReasonPatternConflict     FailureReason = "PATTERN_CONFLICT"
	ReasonClusteringConflict  FailureReason = "CLUSTERING_CONFLICT"
	ReasonHorizonExhausted    FailureReason = "HORIZON_EXHAUSTED"
	ReasonReservationConflict FailureReason = "RESERVATION_CONFLICT"
)

// ValidationError rejects a malformed request before any search begins.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(format string, args ...any) error {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

// DependencyCycleError reports a circular startAfter chain between series.
type DependencyCycleError struct {
	Cycle []string
}

func (e *DependencyCycleError) Error() string {
	return "dependency cycle between series: " + strings.Join(e.Cycle, " -> ")
}

// UnknownSeriesReferenceError reports a startAfterSeriesId that names no
// series in the request.
type UnknownSeriesReferenceError struct {
	SeriesID  string
	Reference string
}

func (e *UnknownSeriesReferenceError) Error() string {
	return fmt.Sprintf("series %q references unknown series %q", e.SeriesID, e.Reference)
}

// LookupError wraps a failure to load the patient's existing appointments.
// Clustering cannot be trusted without that data, so the whole request fails.
type LookupError struct {
	Err error
}

func (e *LookupError) Error() string {
	return "existing appointment lookup failed: " + e.Err.Error()
}

func (e *LookupError) Unwrap() error {
	return e.Err
}

// ReservationConflictError aborts a commit batch, naming the first slot that
// was taken between search and reservation.
type ReservationConflictError struct {
	Slot AppointmentSlot
}

func (e *ReservationConflictError) Error() string {
	return fmt.Sprintf("slot conflict for %s at %s (series %q occurrence %d)",
		e.Slot.Provider.Key(), e.Slot.Start.Format("2006-01-02T15:04"), e.Slot.SeriesID, e.Slot.Occurrence)
}
