package kitchen

import (
	"errors"
	"testing"

	"github.com/appetiteclub/kitchenops/internal/apperr"
	"github.com/appetiteclub/kitchenops/pkg/enums/station"
)

func intPtr(v int) *int { return &v }

func TestStationInputValidate(t *testing.T) {
	tests := []struct {
		name    string
		in      StationInput
		wantErr bool
		check   func(t *testing.T, s Station)
	}{
		{
			name: "defaults",
			in:   StationInput{Code: " grill ", DisplayName: "Grill"},
			check: func(t *testing.T, s Station) {
				if s.Code != "GRILL" || s.LocationID != DefaultLocationID {
					t.Errorf("code/location = %s/%s", s.Code, s.LocationID)
				}
				if s.Type != station.TypeHot || s.Status != station.StatusActive {
					t.Errorf("type/status = %s/%s", s.Type, s.Status)
				}
				if s.MaxConcurrentTickets != 20 {
					t.Errorf("capacity = %d, want 20", s.MaxConcurrentTickets)
				}
			},
		},
		{
			name: "clampsCapacity",
			in:   StationInput{Code: "A", DisplayName: "A", MaxConcurrentTickets: intPtr(0)},
			check: func(t *testing.T, s Station) {
				if s.MaxConcurrentTickets != 1 {
					t.Errorf("capacity = %d, want 1", s.MaxConcurrentTickets)
				}
			},
		},
		{name: "missingCode", in: StationInput{DisplayName: "A"}, wantErr: true},
		{name: "missingName", in: StationInput{Code: "A"}, wantErr: true},
		{name: "badType", in: StationInput{Code: "A", DisplayName: "A", Type: "oven"}, wantErr: true},
		{name: "badStatus", in: StationInput{Code: "A", DisplayName: "A", Status: "paused"}, wantErr: true},
		{name: "negativeOrder", in: StationInput{Code: "A", DisplayName: "A", DisplayOrder: intPtr(-1)}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := tt.in.Validate()
			if tt.wantErr {
				if !errors.Is(err, apperr.ErrValidation) {
					t.Errorf("Validate() error = %v, want validation", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate() error = %v", err)
			}
			tt.check(t, s)
		})
	}
}

func TestDefaultStations(t *testing.T) {
	got := DefaultStations("", testNow)
	want := []string{"HOT_LINE", "COLD", "BAR", "PIZZA", "DESSERT", "EXPO"}

	if len(got) != len(want) {
		t.Fatalf("DefaultStations() = %d stations, want %d", len(got), len(want))
	}
	for i, code := range want {
		if got[i].Code != code || got[i].DisplayOrder != i+1 {
			t.Errorf("station %d = %s/%d, want %s/%d", i, got[i].Code, got[i].DisplayOrder, code, i+1)
		}
		if got[i].LocationID != DefaultLocationID {
			t.Errorf("station %d location = %s", i, got[i].LocationID)
		}
	}
}
