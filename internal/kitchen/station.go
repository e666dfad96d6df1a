package kitchen

import (
	"strings"
	"time"

	"github.com/appetiteclub/kitchenops/internal/apperr"
	"github.com/appetiteclub/kitchenops/pkg/enums/station"
	"github.com/google/uuid"
)

const (
	DefaultLocationID = "default"

	defaultStationCapacity = 20
	maxStationCapacity     = 500
)

// Station is a kitchen work area items are routed to.
type Station struct {
	ID                   uuid.UUID      `bson:"_id" json:"id"`
	LocationID           string         `bson:"location_id" json:"location_id"`
	Code                 string         `bson:"code" json:"code"`
	DisplayName          string         `bson:"display_name" json:"display_name"`
	Type                 station.Type   `bson:"type" json:"type"`
	Status               station.Status `bson:"status" json:"status"`
	DisplayOrder         int            `bson:"display_order" json:"display_order"`
	MaxConcurrentTickets int            `bson:"max_concurrent_tickets" json:"max_concurrent_tickets"`
	CreatedAt            time.Time      `bson:"created_at" json:"created_at"`
	UpdatedAt            time.Time      `bson:"updated_at" json:"updated_at"`
}

func (s Station) Active() bool {
	return s.Status == station.StatusActive
}

// Capacity is the station's concurrent ticket limit, never below 1.
func (s Station) Capacity() int {
	if s.MaxConcurrentTickets < 1 {
		return 1
	}
	return s.MaxConcurrentTickets
}

// StationInput is the upsert payload for a station.
type StationInput struct {
	LocationID           string `json:"location_id"`
	Code                 string `json:"code"`
	DisplayName          string `json:"display_name"`
	Type                 string `json:"type"`
	Status               string `json:"status"`
	DisplayOrder         *int   `json:"display_order"`
	MaxConcurrentTickets *int   `json:"max_concurrent_tickets"`
}

// NormalizeLocationID trims the id and falls back to the default location.
func NormalizeLocationID(raw string) string {
	v := strings.TrimSpace(raw)
	if v == "" {
		return DefaultLocationID
	}
	return v
}

// Validate normalizes the input into a Station. Type and status default to
// HOT and ACTIVE; capacity defaults to 20 and is clamped to [1,500].
func (in StationInput) Validate() (Station, error) {
	code := strings.ToUpper(strings.TrimSpace(in.Code))
	name := strings.TrimSpace(in.DisplayName)
	if code == "" || name == "" {
		return Station{}, apperr.Validation("code and display_name are required")
	}

	st := Station{
		LocationID:           NormalizeLocationID(in.LocationID),
		Code:                 code,
		DisplayName:          name,
		Type:                 station.TypeHot,
		Status:               station.StatusActive,
		MaxConcurrentTickets: defaultStationCapacity,
	}

	if strings.TrimSpace(in.Type) != "" {
		t, ok := station.ParseType(in.Type)
		if !ok {
			return Station{}, apperr.Validation("invalid station type: %s", in.Type)
		}
		st.Type = t
	}

	if strings.TrimSpace(in.Status) != "" {
		s, ok := station.ParseStatus(in.Status)
		if !ok {
			return Station{}, apperr.Validation("invalid station status: %s", in.Status)
		}
		st.Status = s
	}

	if in.DisplayOrder != nil {
		if *in.DisplayOrder < 0 {
			return Station{}, apperr.Validation("display_order must be zero or positive")
		}
		st.DisplayOrder = *in.DisplayOrder
	}

	if in.MaxConcurrentTickets != nil {
		st.MaxConcurrentTickets = clamp(*in.MaxConcurrentTickets, 1, maxStationCapacity)
	}

	return st, nil
}

// DefaultStations is the station set every location starts with.
func DefaultStations(locationID string, now time.Time) []Station {
	defs := []struct {
		code string
		name string
		typ  station.Type
	}{
		{"HOT_LINE", "Hot Line", station.TypeHot},
		{"COLD", "Cold/Garde Manger", station.TypeCold},
		{"BAR", "Bar/Drinks", station.TypeBar},
		{"PIZZA", "Pizza Station", station.TypePizza},
		{"DESSERT", "Dessert", station.TypeDessert},
		{"EXPO", "Expo", station.TypeExpo},
	}

	loc := NormalizeLocationID(locationID)
	stations := make([]Station, 0, len(defs))
	for i, d := range defs {
		stations = append(stations, Station{
			ID:                   uuid.New(),
			LocationID:           loc,
			Code:                 d.code,
			DisplayName:          d.name,
			Type:                 d.typ,
			Status:               station.StatusActive,
			DisplayOrder:         i + 1,
			MaxConcurrentTickets: defaultStationCapacity,
			CreatedAt:            now,
			UpdatedAt:            now,
		})
	}
	return stations
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
