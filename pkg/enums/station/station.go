package station

import "strings"

// Type is the formal kind of a kitchen station.
type Type string

const (
	TypeHot     Type = "HOT"
	TypeCold    Type = "COLD"
	TypeBar     Type = "BAR"
	TypeDessert Type = "DESSERT"
	TypePizza   Type = "PIZZA"
	TypeExpo    Type = "EXPO"
	TypeOther   Type = "OTHER"
)

// Status tells whether a station accepts routed items.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusInactive Status = "INACTIVE"
)

var AllTypes = []Type{
	TypeHot,
	TypeCold,
	TypeBar,
	TypeDessert,
	TypePizza,
	TypeExpo,
	TypeOther,
}

// ParseType returns the type for a code, or false if it is not recognized.
func ParseType(raw string) (Type, bool) {
	code := strings.ToUpper(strings.TrimSpace(raw))
	for _, t := range AllTypes {
		if string(t) == code {
			return t, true
		}
	}
	return "", false
}

// ParseStatus returns the station status for a code.
func ParseStatus(raw string) (Status, bool) {
	switch Status(strings.ToUpper(strings.TrimSpace(raw))) {
	case StatusActive:
		return StatusActive, true
	case StatusInactive:
		return StatusInactive, true
	}
	return "", false
}
