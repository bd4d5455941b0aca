package scheduling

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func validFindRequest() FindAvailableAppointmentsRequest {
	clinician := uuid.MustParse("00000000-0000-0000-0000-0000000000aa")
	return FindAvailableAppointmentsRequest{
		ClinicID:              uuid.MustParse("00000000-0000-0000-0000-000000000001"),
		PatientID:             uuid.MustParse("00000000-0000-0000-0000-000000000002"),
		RequestingClinicianID: clinician,
		RequestDate:           time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC),
		MaxDaysToSearch:       14,
		Requests: []AppointmentRequest{
			{
				SeriesID:        "s1",
				Provider:        ClinicianRef(clinician),
				Type:            TypePrimaryCareVisit,
				DurationMinutes: 30,
			},
		},
	}
}

func TestValidateRequest(t *testing.T) {
	clinician := uuid.MustParse("00000000-0000-0000-0000-0000000000aa")
	resource := uuid.MustParse("00000000-0000-0000-0000-0000000000bb")

	tests := []struct {
		name    string
		mutate  func(*FindAvailableAppointmentsRequest)
		wantErr bool
	}{
		{
			name:   "valid request",
			mutate: func(r *FindAvailableAppointmentsRequest) {},
		},
		{
			name:    "missing clinic",
			mutate:  func(r *FindAvailableAppointmentsRequest) { r.ClinicID = uuid.Nil },
			wantErr: true,
		},
		{
			name:    "missing patient",
			mutate:  func(r *FindAvailableAppointmentsRequest) { r.PatientID = uuid.Nil },
			wantErr: true,
		},
		{
			name:    "negative horizon",
			mutate:  func(r *FindAvailableAppointmentsRequest) { r.MaxDaysToSearch = -1 },
			wantErr: true,
		},
		{
			name:    "no series",
			mutate:  func(r *FindAvailableAppointmentsRequest) { r.Requests = nil },
			wantErr: true,
		},
		{
			name: "both clinician and resource",
			mutate: func(r *FindAvailableAppointmentsRequest) {
				r.Requests[0].Provider = ProviderRef{ClinicianID: &clinician, ResourceID: &resource}
			},
			wantErr: true,
		},
		{
			name: "neither clinician nor resource",
			mutate: func(r *FindAvailableAppointmentsRequest) {
				r.Requests[0].Provider = ProviderRef{}
			},
			wantErr: true,
		},
		{
			name: "zero duration",
			mutate: func(r *FindAvailableAppointmentsRequest) {
				r.Requests[0].DurationMinutes = 0
			},
			wantErr: true,
		},
		{
			name: "duplicate series id",
			mutate: func(r *FindAvailableAppointmentsRequest) {
				r.Requests = append(r.Requests, r.Requests[0])
			},
			wantErr: true,
		},
		{
			name: "preferred above max per week",
			mutate: func(r *FindAvailableAppointmentsRequest) {
				r.Requests[0].Pattern = &RecurringPattern{
					TotalOccurrences: 4,
					MaxPerWeek:       2,
					PreferredPerWeek: 3,
				}
			},
			wantErr: true,
		},
		{
			name: "dependency without occurrence",
			mutate: func(r *FindAvailableAppointmentsRequest) {
				r.Requests[0].Pattern = &RecurringPattern{
					TotalOccurrences:   1,
					MaxPerWeek:         1,
					StartAfterSeriesID: "other",
				}
			},
			wantErr: true,
		},
		{
			name: "clustering with inverted bounds",
			mutate: func(r *FindAvailableAppointmentsRequest) {
				r.Clustering = ClusteringPreference{
					Enabled:               true,
					MaxAppointmentsPerDay: 3,
					MinMinutesBetween:     60,
					MaxMinutesBetween:     30,
				}
			},
			wantErr: true,
		},
		{
			name: "clustering without day capacity",
			mutate: func(r *FindAvailableAppointmentsRequest) {
				r.Clustering = ClusteringPreference{Enabled: true}
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validFindRequest()
			tt.mutate(&req)

			err := ValidateRequest(req)
			if tt.wantErr {
				var vErr *ValidationError
				if !errors.As(err, &vErr) {
					t.Fatalf("error = %v, want ValidationError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
