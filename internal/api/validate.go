package api

import (
	"fmt"

	"github.com/google/uuid"

	"coldroute/internal/model"
	"coldroute/internal/oracle"
)

func validateOrder(o model.Order) error {
	if o.Address == "" || o.Postcode == "" || o.City == "" {
		return fmt.Errorf("address, postcode and city are required")
	}
	ws, err := model.ParseClock(o.WindowStart)
	if err != nil {
		return fmt.Errorf("windowStart: %v", err)
	}
	we, err := model.ParseClock(o.WindowEnd)
	if err != nil {
		return fmt.Errorf("windowEnd: %v", err)
	}
	if we <= ws {
		return fmt.Errorf("windowEnd must be after windowStart")
	}
	if o.ChilledQty < 0 || o.FrozenQty < 0 {
		return fmt.Errorf("container quantities must be >= 0")
	}
	if o.ServiceMin < 0 {
		return fmt.Errorf("serviceMinutes must be >= 0")
	}
	return nil
}

func validateVehicle(v model.Vehicle) error {
	if v.Type == "" {
		return fmt.Errorf("type is required")
	}
	if v.ChilledCap < 0 || v.FrozenCap < 0 {
		return fmt.Errorf("capacities must be >= 0")
	}
	if v.ChilledCap == 0 && v.FrozenCap == 0 {
		return fmt.Errorf("vehicle has no capacity")
	}
	if v.HourlyRate < 0 || v.FuelPrice < 0 || v.ConsumptionPer100 < 0 || v.FlatTripFee < 0 || v.MonthlyFixed < 0 || v.CO2PerKm < 0 {
		return fmt.Errorf("cost parameters must be >= 0")
	}
	return nil
}

func validatePlanConfig(cfg model.PlanConfig) error {
	if cfg.RunID != "" {
		// run ids double as plan primary keys
		if _, err := uuid.Parse(cfg.RunID); err != nil {
			return fmt.Errorf("runId must be a UUID")
		}
	}
	if cfg.Strategy != "" && cfg.Strategy != model.StrategyJIT && cfg.Strategy != model.StrategyDensity {
		return fmt.Errorf("invalid strategy: %s", cfg.Strategy)
	}
	if cfg.ToleranceMin < 0 {
		return fmt.Errorf("toleranceMinutes must be >= 0")
	}
	if cfg.MaxTripHours < 0 {
		return fmt.Errorf("maxTripHours must be >= 0")
	}
	return oracle.ValidatePolicy(cfg.PolicyOverride)
}
