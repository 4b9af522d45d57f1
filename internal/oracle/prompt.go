package oracle

import (
	"encoding/json"
	"fmt"
	"strings"

	"coldroute/internal/model"
)

// batchEntry is the compact per-order shape embedded in the prompt.
type batchEntry struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Address        string `json:"address"`
	City           string `json:"city"`
	Postcode       string `json:"postcode"`
	Window         string `json:"window"`
	ServiceMinutes int    `json:"serviceMinutes"`
	ChilledQty     int    `json:"chilledQty"`
	FrozenQty      int    `json:"frozenQty"`
}

func strategyPolicy(strategy string) string {
	if strategy == model.StrategyDensity {
		return "Minimize total driving distance first. Cluster stops by postcode " +
			"proximity and accept waiting time at a stop over extra kilometers, " +
			"as long as every delivery still lands inside its time window."
	}
	return "Deliver each order as close to the start of its time window as " +
		"possible (just-in-time). Sequence stops by window start first and " +
		"only then by distance. Never plan an arrival after a window end."
}

// BuildPrompt renders the sequencing instruction for one vehicle/batch pair.
// The policy override has already passed ValidatePolicy.
func BuildPrompt(req SequenceRequest) (string, error) {
	entries := make([]batchEntry, 0, len(req.Orders))
	for _, o := range req.Orders {
		entries = append(entries, batchEntry{
			ID:             o.ID,
			Name:           o.Name,
			Address:        o.Address,
			City:           o.City,
			Postcode:       o.Postcode,
			Window:         o.WindowStart + "-" + o.WindowEnd,
			ServiceMinutes: o.ServiceMin,
			ChilledQty:     o.ChilledQty,
			FrozenQty:      o.FrozenQty,
		})
	}
	batchJSON, err := json.Marshal(entries)
	if err != nil {
		return "", fmt.Errorf("marshal batch: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Plan a delivery trip for vehicle %s (%s), starting and ending at depot %s (%.5f, %.5f).\n\n",
		req.Vehicle.ID, req.Vehicle.Type, req.Depot.Name, req.Depot.Lat, req.Depot.Lng)
	fmt.Fprintf(&b, "Orders (JSON):\n%s\n\n", batchJSON)
	b.WriteString("Policy:\n")
	b.WriteString("- " + strategyPolicy(req.Strategy) + "\n")
	fmt.Fprintf(&b, "- The whole trip must not exceed %.1f hours.\n", req.MaxTripHours)
	b.WriteString("- Plan a mandatory rest break of 45 minutes after every 4.5 hours of work; the break may be split into parts of at least 15 minutes each.\n")
	b.WriteString("- Prefer the smallest and cheapest vehicle class that fits the load; do not exceed the stated capacities.\n")
	if req.PolicyOverride != "" {
		fmt.Fprintf(&b, "- Dispatcher note: %s\n", req.PolicyOverride)
	}
	b.WriteString("\nRespond with ONLY a JSON object, no prose, matching exactly:\n")
	b.WriteString(`{"start_time":"HH:MM","totaal_km":0.0,"stops":[{"id":"<order id, deliveries only>","arr":"HH:MM","act":"D|B|I|R","dur":0,"km":0.0,"lat":0.0,"lng":0.0,"msg":"optional"}]}` + "\n")
	b.WriteString("Every order appears exactly once as an act=\"D\" stop. End with a single act=\"R\" stop back at the depot.\n")
	return b.String(), nil
}

// BuildAdvicePrompt renders the best-effort savings analysis instruction.
func BuildAdvicePrompt(trips []model.Trip, orders []model.Order) (string, error) {
	type tripLine struct {
		Vehicle    string  `json:"vehicle"`
		Stops      int     `json:"stops"`
		DistanceKm float64 `json:"distanceKm"`
		Cost       float64 `json:"cost"`
		CO2Kg      float64 `json:"co2Kg"`
	}
	lines := make([]tripLine, 0, len(trips))
	for _, t := range trips {
		lines = append(lines, tripLine{Vehicle: t.VehicleID, Stops: len(t.Deliveries()), DistanceKm: t.DistanceKm, Cost: t.Cost.Total, CO2Kg: t.CO2Kg})
	}
	tripsJSON, err := json.Marshal(lines)
	if err != nil {
		return "", fmt.Errorf("marshal trips: %w", err)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Review this fleet plan (%d trips, %d orders) and suggest up to 3 concrete cost or emission savings.\n\nTrips (JSON):\n%s\n\n", len(trips), len(orders), tripsJSON)
	b.WriteString(`Respond with ONLY a JSON array: [{"title":"...","detail":"..."}]` + "\n")
	return b.String(), nil
}
