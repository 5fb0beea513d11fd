package search

import (
	"encoding/json"
	"math"
	"time"
)

// ModelFilters are the business-model gates a result must pass.
type ModelFilters struct {
	ConsumerFacingOnly           bool
	IncludeServiceAreaBusinesses bool
	RequireDelivery              bool
	RequireTakeout               bool
	RequireDineIn                bool
	RequireCurbsidePickup        bool
}

func modelSection(model map[string]any, path ...string) map[string]any {
	current := model
	for _, key := range path {
		next, ok := current[key].(map[string]any)
		if !ok {
			return nil
		}
		current = next
	}
	return current
}

func modelBool(section map[string]any, key string) (bool, bool) {
	if section == nil {
		return false, false
	}
	value, ok := section[key].(bool)
	return value, ok
}

// passesModelFilters evaluates the business-model document against the
// requested gates. Absent fields fail require-style gates and pass
// permissive ones.
func passesModelFilters(model map[string]any, filters ModelFilters) bool {
	classification := modelSection(model, "business_model", "classification")
	fulfillment := modelSection(model, "business_model", "fulfillment")

	if filters.ConsumerFacingOnly {
		if facing, ok := modelBool(classification, "consumer_facing"); ok && !facing {
			return false
		}
	}
	if !filters.IncludeServiceAreaBusinesses {
		if serviceArea, ok := modelBool(classification, "service_area_business"); ok && serviceArea {
			return false
		}
	}

	requirements := []struct {
		wanted bool
		key    string
	}{
		{filters.RequireDelivery, "delivery"},
		{filters.RequireTakeout, "takeout"},
		{filters.RequireDineIn, "dine_in"},
		{filters.RequireCurbsidePickup, "curbside_pickup"},
	}
	for _, req := range requirements {
		if !req.wanted {
			continue
		}
		if offered, ok := modelBool(fulfillment, req.key); !ok || !offered {
			return false
		}
	}
	return true
}

// modelOpenNow reads the live open flag from the business-model
// document; the second return is false when the document has none.
func modelOpenNow(model map[string]any) (bool, bool) {
	return modelBool(modelSection(model, "business_model", "operational"), "open_now")
}

type hoursWindow struct {
	Open  string `json:"open"`
	Close string `json:"close"`
}

// openNowFromHours checks the stored weekly hours against the current
// local time. Missing or unparsable hours read as closed: the open_now
// filter only passes businesses with affirmative hours data.
func openNowFromHours(hoursJSON, timezone string, now time.Time) bool {
	if hoursJSON == "" {
		return false
	}
	var week map[string][]hoursWindow
	if err := json.Unmarshal([]byte(hoursJSON), &week); err != nil {
		return false
	}

	loc := time.UTC
	if timezone != "" {
		if parsed, err := time.LoadLocation(timezone); err == nil {
			loc = parsed
		}
	}
	local := now.In(loc)
	day := local.Weekday().String()
	clock := local.Format("15:04")

	for _, window := range week[day] {
		if window.Open == "" || window.Close == "" {
			continue
		}
		if window.Open <= clock && clock < window.Close {
			return true
		}
	}
	return false
}

const earthRadiusKm = 6371.0

func haversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(a)))
}

const (
	walkingMinutesPerKm = 12.0
	drivingMinutesPerKm = 2.0
	drivingOverheadMin  = 3.0
)

// travelMinutes estimates walking, driving, and fastest travel times
// for a straight-line distance.
func travelMinutes(distanceKm float64) (walking, driving, fastest float64) {
	walking = distanceKm * walkingMinutesPerKm
	driving = distanceKm*drivingMinutesPerKm + drivingOverheadMin
	fastest = math.Min(walking, driving)
	return walking, driving, fastest
}
