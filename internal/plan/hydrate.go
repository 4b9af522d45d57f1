package plan

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"coldroute/internal/model"
	"coldroute/internal/oracle"
)

// ErrNoValidDeliveries marks a trip whose delivery stops were all filtered
// out; the trip is discarded and its orders return to the pool.
var ErrNoValidDeliveries = errors.New("plan: no valid deliveries left in trip")

// monthlyOperatingHours is the assumed divisor for amortizing a vehicle's
// monthly fixed cost over trip hours.
const monthlyOperatingHours = 160.0

// Hydrate converts a validated raw sequence into a fully-computed trip.
// Delivery stops referencing unknown order ids are silently dropped (the
// oracle occasionally invents ids); break and idle stops carry forward the
// last known coordinates; a return stop is the terminal marker. Distance and
// duration come only from the oracle's own figures, never re-derived.
func Hydrate(raw oracle.RawSequence, v model.Vehicle, orderIndex map[string]model.Order, cfg model.PlanConfig) (model.Trip, error) {
	startMin, err := model.ParseClock(raw.StartTime)
	if err != nil {
		return model.Trip{}, fmt.Errorf("hydrate: %w", err)
	}

	trip := model.Trip{
		ID:          uuid.New().String(),
		VehicleID:   v.ID,
		VehicleType: v.Type,
		StartTime:   model.FormatClock(startMin),
		DistanceKm:  raw.TotalKm,
	}

	lastLat, lastLng := cfg.Depot.Lat, cfg.Depot.Lng
	endMin := startMin
	for _, rs := range raw.Stops {
		arr, err := model.ParseClock(rs.Arr)
		if err != nil {
			return model.Trip{}, fmt.Errorf("hydrate: %w", err)
		}
		if arr < startMin {
			// past-midnight arrival reported on a 24h clock
			arr += 24 * 60
		}
		stop := model.Stop{
			Arrival:     model.FormatClock(arr),
			ArrivalMin:  arr,
			DurationMin: rs.Dur,
			KmFromPrev:  rs.Km,
			Lat:         rs.Lat,
			Lng:         rs.Lng,
			Note:        rs.Msg,
		}
		switch rs.Act {
		case "D":
			o, ok := orderIndex[rs.ID]
			if !ok {
				continue
			}
			stop.Action = model.ActionDelivery
			stop.OrderID = o.ID
			stop.Name = o.Name
			stop.ChilledQty = o.ChilledQty
			stop.FrozenQty = o.FrozenQty
			if ws, err := model.ParseClock(o.WindowStart); err == nil && ws > arr {
				stop.EarlyMin = ws - arr
			}
			if we, err := model.ParseClock(o.WindowEnd); err == nil && arr+rs.Dur > we {
				stop.LateMin = arr + rs.Dur - we
			}
		case "R":
			stop.Action = model.ActionReturn
			stop.Name = cfg.Depot.Name
		case "B":
			stop.Action = model.ActionBreak
			stop.Lat, stop.Lng = lastLat, lastLng
		default: // "I"
			stop.Action = model.ActionIdle
			stop.Lat, stop.Lng = lastLat, lastLng
		}
		if stop.Lat != 0 || stop.Lng != 0 {
			lastLat, lastLng = stop.Lat, stop.Lng
		}
		if arr+rs.Dur > endMin {
			endMin = arr + rs.Dur
		}
		trip.Stops = append(trip.Stops, stop)
	}

	trip.DurationMin = endMin - startMin
	trip.EndTime = model.FormatClock(endMin)
	trip.Cost = costOf(trip, v)
	trip.CO2Kg = round2(trip.DistanceKm * v.CO2PerKm)
	return trip, nil
}

// FilterTolerance strips delivery stops later than the configured tolerance
// (failsafe against the oracle violating a hard window). If no delivery
// survives, ErrNoValidDeliveries is returned and the trip must be discarded.
func FilterTolerance(trip model.Trip, toleranceMin int) (model.Trip, []string, error) {
	kept := make([]model.Stop, 0, len(trip.Stops))
	var dropped []string
	for _, s := range trip.Stops {
		if s.Action == model.ActionDelivery && s.LateMin > toleranceMin {
			dropped = append(dropped, s.OrderID)
			continue
		}
		kept = append(kept, s)
	}
	trip.Stops = kept
	if len(trip.Deliveries()) == 0 {
		return trip, dropped, ErrNoValidDeliveries
	}
	return trip, dropped, nil
}

// costOf applies the four-term additive cost model.
func costOf(t model.Trip, v model.Vehicle) model.CostBreakdown {
	hours := float64(t.DurationMin) / 60
	c := model.CostBreakdown{
		Personnel:    round2(hours * v.HourlyRate),
		Fuel:         round2(t.DistanceKm / 100 * v.ConsumptionPer100 * v.FuelPrice),
		Fixed:        round2(v.FlatTripFee),
		Depreciation: round2(hours / monthlyOperatingHours * v.MonthlyFixed),
	}
	c.Total = round2(c.Personnel + c.Fuel + c.Fixed + c.Depreciation)
	return c
}

func round2(f float64) float64 {
	if f < 0 {
		return float64(int64(f*100-0.5)) / 100
	}
	return float64(int64(f*100+0.5)) / 100
}
