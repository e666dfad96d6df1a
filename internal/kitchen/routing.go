package kitchen

import (
	"sort"
	"strings"

	"github.com/appetiteclub/kitchenops/pkg/enums/station"
)

// Provisional routing categories assigned by Classify.
const (
	CategoryHotLine = "HOT_LINE"
	CategoryCold    = "COLD"
	CategoryBar     = "BAR"
	CategoryPizza   = "PIZZA"
	CategoryDessert = "DESSERT"
	CategoryExpo    = "EXPO"
)

type categoryBucket struct {
	code     string
	keywords []string
}

// Order matters: the first bucket with a matching keyword wins.
var categoryBuckets = []categoryBucket{
	{
		code: CategoryBar,
		keywords: []string{
			"chai", "soda", "lassi", "coffee", "tea", "water", "cocktail",
			"whiskey", "vodka", "rum", "tequila", "beer", "iced", "lemon",
			"茶", "饮料", "酒", "啤", "白酒", "黄酒", "红酒", "奶茶", "酸梅", "柠檬", "橙汁",
		},
	},
	{
		code:     CategoryDessert,
		keywords: []string{"gulab", "kulfi", "chocolate lava", "ras malai", "dessert", "甜", "糕", "甘露"},
	},
	{
		code:     CategoryPizza,
		keywords: []string{"pizza"},
	},
	{
		code:     CategoryCold,
		keywords: []string{"salad", "凉菜", "小吃"},
	},
}

// Classify maps an item name to a routing category by keyword.
// Names matching nothing go to the hot line.
func Classify(itemName string) string {
	name := strings.ToLower(strings.TrimSpace(itemName))
	for _, b := range categoryBuckets {
		for _, kw := range b.keywords {
			if strings.Contains(name, kw) {
				return b.code
			}
		}
	}
	return CategoryHotLine
}

// CategoryToStationType maps a category code to a station type, HOT when unknown.
func CategoryToStationType(code string) station.Type {
	switch strings.ToUpper(strings.TrimSpace(code)) {
	case CategoryHotLine:
		return station.TypeHot
	case CategoryCold:
		return station.TypeCold
	case CategoryBar:
		return station.TypeBar
	case CategoryPizza:
		return station.TypePizza
	case CategoryDessert:
		return station.TypeDessert
	case CategoryExpo:
		return station.TypeExpo
	default:
		return station.TypeHot
	}
}

// LoadMap is the outstanding item quantity per station code.
type LoadMap map[string]int

func (l LoadMap) clone() LoadMap {
	out := make(LoadMap, len(l))
	for k, v := range l {
		out[k] = v
	}
	return out
}

// ChooseLeastLoaded picks the candidate with the lowest utilization.
// Ties fall back to absolute load, then display order, then code.
func ChooseLeastLoaded(candidates []Station, load LoadMap) (Station, bool) {
	if len(candidates) == 0 {
		return Station{}, false
	}

	ranked := make([]Station, len(candidates))
	copy(ranked, candidates)

	utilization := func(s Station) float64 {
		return float64(load[s.Code]) / float64(s.Capacity())
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		ua, ub := utilization(a), utilization(b)
		if ua != ub {
			return ua < ub
		}
		if load[a.Code] != load[b.Code] {
			return load[a.Code] < load[b.Code]
		}
		if a.DisplayOrder != b.DisplayOrder {
			return a.DisplayOrder < b.DisplayOrder
		}
		return a.Code < b.Code
	})

	return ranked[0], true
}

// AssignStations routes items in input order. Each assignment adds the item
// quantity to a running tally seeded from base, so later items of the same
// ticket see the load of earlier ones. Items whose StationCode holds the
// provisional category and that find no station keep it unassigned.
func AssignStations(items []TicketItem, stations []Station, base LoadMap) []TicketItem {
	tally := base.clone()
	out := make([]TicketItem, len(items))

	for i, item := range items {
		out[i] = item

		code := strings.ToUpper(strings.TrimSpace(item.StationCode))
		want := CategoryToStationType(code)

		var candidates []Station
		for _, s := range stations {
			if s.Active() && s.Type == want {
				candidates = append(candidates, s)
			}
		}

		target, ok := ChooseLeastLoaded(candidates, tally)
		if !ok {
			for _, s := range stations {
				if s.Active() && s.Code == code {
					target, ok = s, true
					break
				}
			}
		}
		if !ok {
			continue
		}

		qty := item.Quantity
		if qty < 1 {
			qty = 1
		}
		tally[target.Code] += qty

		out[i].StationCode = target.Code
		out[i].StationType = target.Type
		out[i].LoadBalanced = true
	}

	return out
}

// OpenLoad sums outstanding item quantity per station over open tickets.
func OpenLoad(tickets []Ticket) LoadMap {
	load := LoadMap{}
	for _, t := range tickets {
		if !t.Status.Open() {
			continue
		}
		for _, it := range t.Items {
			if !it.Outstanding() {
				continue
			}
			load[it.StationCode] += it.Quantity
		}
	}
	return load
}
