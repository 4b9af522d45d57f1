package model

// Core domain types for order consolidation and fleet allocation.

// Order is a consolidated delivery demand: one address, one time window,
// two independent load dimensions (chilled and frozen container counts).
type Order struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Address     string `json:"address"`
	Postcode    string `json:"postcode"`
	City        string `json:"city"`
	WindowStart string `json:"windowStart"` // "HH:MM"
	WindowEnd   string `json:"windowEnd"`   // "HH:MM"
	ServiceMin  int    `json:"serviceMin"`
	ChilledQty  int    `json:"chilledQty"`
	FrozenQty   int    `json:"frozenQty"`
	RouteRef    string `json:"routeRef,omitempty"` // optional recurring-route link
}

// TotalQty returns the combined load across both dimensions.
func (o Order) TotalQty() int { return o.ChilledQty + o.FrozenQty }

// Vehicle describes one fleet member with a two-dimensional capacity and
// the rate figures the cost model needs.
type Vehicle struct {
	ID                string  `json:"id"`
	Type              string  `json:"type"`
	ChilledCap        int     `json:"chilledCap"`
	FrozenCap         int     `json:"frozenCap"`
	HourlyRate        float64 `json:"hourlyRate"`        // personnel, per hour
	FuelPrice         float64 `json:"fuelPrice"`         // per liter
	ConsumptionPer100 float64 `json:"consumptionPer100"` // liters per 100 km
	FlatTripFee       float64 `json:"flatTripFee"`       // per-trip fixed fee
	MonthlyFixed      float64 `json:"monthlyFixed"`      // lease/insurance per month
	CO2PerKm          float64 `json:"co2PerKm"`          // kg per km
	Available         bool    `json:"available"`
}

// TotalCap returns the combined capacity across both dimensions.
func (v Vehicle) TotalCap() int { return v.ChilledCap + v.FrozenCap }

// Stop actions as reported by the sequencing oracle.
const (
	ActionDelivery = "delivery"
	ActionBreak    = "break"
	ActionIdle     = "idle"
	ActionReturn   = "return"
)

// Stop is one hydrated element of a trip.
type Stop struct {
	OrderID     string  `json:"orderId,omitempty"`
	Name        string  `json:"name,omitempty"`
	Action      string  `json:"action"`
	Arrival     string  `json:"arrival"` // "HH:MM"
	ArrivalMin  int     `json:"arrivalMin"`
	DurationMin int     `json:"durationMin"`
	KmFromPrev  float64 `json:"kmFromPrev"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	ChilledQty  int     `json:"chilledQty,omitempty"`
	FrozenQty   int     `json:"frozenQty,omitempty"`
	EarlyMin    int     `json:"earlyMin,omitempty"`
	LateMin     int     `json:"lateMin,omitempty"`
	Note        string  `json:"note,omitempty"`
}

// CostBreakdown itemizes a trip's cost.
type CostBreakdown struct {
	Personnel    float64 `json:"personnel"`
	Fuel         float64 `json:"fuel"`
	Fixed        float64 `json:"fixed"`
	Depreciation float64 `json:"depreciation"`
	Total        float64 `json:"total"`
}

// Trip is the hydrated, costed output for one vehicle. PlanID links it back
// to the allocation run that committed it.
type Trip struct {
	ID          string        `json:"id"`
	PlanID      string        `json:"planId,omitempty"`
	VehicleID   string        `json:"vehicleId"`
	VehicleType string        `json:"vehicleType"`
	Stops       []Stop        `json:"stops"`
	StartTime   string        `json:"startTime"` // "HH:MM"
	EndTime     string        `json:"endTime"`   // "HH:MM"
	DurationMin int           `json:"durationMin"`
	DistanceKm  float64       `json:"distanceKm"`
	Cost        CostBreakdown `json:"cost"`
	CO2Kg       float64       `json:"co2Kg"`
}

// Deliveries returns only the delivery stops of a trip.
func (t Trip) Deliveries() []Stop {
	out := make([]Stop, 0, len(t.Stops))
	for _, s := range t.Stops {
		if s.Action == ActionDelivery {
			out = append(out, s)
		}
	}
	return out
}

// Depot is the common start/end location of every trip.
type Depot struct {
	Name string  `json:"name" yaml:"name"`
	Lat  float64 `json:"lat" yaml:"lat"`
	Lng  float64 `json:"lng" yaml:"lng"`
}

// Batching strategies.
const (
	StrategyJIT     = "jit"     // time-window priority
	StrategyDensity = "density" // distance/postcode priority
)

// PlanConfig is the caller-supplied configuration for one optimization run.
// RunID lets the caller name the run up front so it can subscribe to the
// run's event stream before the result comes back; left empty, the planner
// generates one.
type PlanConfig struct {
	RunID          string  `json:"runId,omitempty"`
	Strategy       string  `json:"strategy"`
	ToleranceMin   int     `json:"toleranceMin"`
	MaxTripHours   float64 `json:"maxTripHours"`
	Depot          Depot   `json:"depot"`
	PolicyOverride string  `json:"policyOverride,omitempty"`
}

// Summary aggregates a whole allocation run.
type Summary struct {
	TotalTrips      int     `json:"totalTrips"`
	TotalContainers int     `json:"totalContainers"`
	TotalCost       float64 `json:"totalCost"`
	TotalDistanceKm float64 `json:"totalDistanceKm"`
	TotalCO2Kg      float64 `json:"totalCo2Kg"`
}

// PlanResult is the final outcome of an allocation run. Unassigned holds the
// consolidated orders no remaining vehicle could serve.
type PlanResult struct {
	ID         string  `json:"id"`
	Trips      []Trip  `json:"trips"`
	Unassigned []Order `json:"unassignedOrders"`
	Summary    Summary `json:"summary"`
}

// Advice is one best-effort savings suggestion.
type Advice struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
}
