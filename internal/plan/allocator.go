package plan

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"coldroute/internal/metrics"
	"coldroute/internal/model"
	"coldroute/internal/oracle"
	"coldroute/internal/ratelimit"
)

// ErrRateLimited marks a rejected limiter check on a load-bearing call.
var ErrRateLimited = errors.New("plan: rate limit exceeded")

// RateLimitError carries the wait hint for a rejected call.
type RateLimitError struct {
	ResetInMs int64
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry in %dms", e.ResetInMs)
}

func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }

// Notifier receives progress events during an allocation run (trip committed,
// vehicle skipped). May be nil.
type Notifier func(eventType string, data map[string]any)

// Planner runs allocation loops. A single run is strictly sequential: each
// vehicle/batch/oracle/hydrate cycle completes before the next begins, so the
// working pool needs no locking. Multiple runs may execute concurrently; the
// shared limiter is safe for that.
type Planner struct {
	Seq     oracle.Sequencer
	Adv     oracle.Advisor // optional
	Limiter *ratelimit.Limiter
	Pace    *rate.Limiter // throttles consecutive oracle calls within a run
	Log     *logrus.Logger
	Notify  Notifier
}

// NewPlanner wires a planner with the given sequencer and limiter. callsPerSec
// paces the oracle; zero disables pacing.
func NewPlanner(seq oracle.Sequencer, lim *ratelimit.Limiter, callsPerSec float64, log *logrus.Logger) *Planner {
	p := &Planner{Seq: seq, Limiter: lim, Log: log}
	if adv, ok := seq.(oracle.Advisor); ok {
		p.Adv = adv
	}
	if callsPerSec > 0 {
		p.Pace = rate.NewLimiter(rate.Limit(callsPerSec), 1)
	}
	if p.Log == nil {
		p.Log = logrus.New()
	}
	return p
}

func (p *Planner) checkLimit(callerID, op string) error {
	if p.Limiter == nil {
		return nil
	}
	res := p.Limiter.Check(callerID)
	if res.Allowed {
		return nil
	}
	metrics.RateLimited.WithLabelValues(op).Inc()
	return &RateLimitError{ResetInMs: res.ResetInMs}
}

func normalizeConfig(cfg *model.PlanConfig) {
	if cfg.Strategy != model.StrategyDensity {
		cfg.Strategy = model.StrategyJIT
	}
	if cfg.ToleranceMin <= 0 {
		cfg.ToleranceMin = 15
	}
	if cfg.MaxTripHours <= 0 {
		cfg.MaxTripHours = 10
	}
}

// Optimize partitions orders across the available fleet into feasible trips.
// Partial results are always returned: a failed oracle call wastes one
// vehicle for this run but never aborts the loop. Orders no vehicle could
// serve come back in Unassigned.
func (p *Planner) Optimize(ctx context.Context, orders []model.Order, fleet []model.Vehicle, cfg model.PlanConfig, callerID string) (model.PlanResult, error) {
	started := time.Now()
	defer func() { metrics.PlanDuration.Observe(time.Since(started).Seconds()) }()

	if err := p.checkLimit(callerID, "optimize"); err != nil {
		return model.PlanResult{}, err
	}
	normalizeConfig(&cfg)
	if err := oracle.ValidatePolicy(cfg.PolicyOverride); err != nil {
		return model.PlanResult{}, err
	}

	pool := Consolidate(orders)
	sortPool(pool, cfg.Strategy)

	available := make([]model.Vehicle, 0, len(fleet))
	for _, v := range fleet {
		if v.Available {
			available = append(available, v)
		}
	}

	runID := cfg.RunID
	if runID == "" {
		runID = uuid.New().String()
	}
	result := model.PlanResult{ID: runID, Trips: []model.Trip{}}
	log := p.Log.WithFields(logrus.Fields{"run": result.ID, "strategy": cfg.Strategy})
	log.WithFields(logrus.Fields{"orders": len(pool), "vehicles": len(available)}).Info("allocation run started")

	for len(pool) > 0 && len(available) > 0 {
		vi := selectVehicle(available, pool)
		if vi < 0 {
			// not even the smallest remaining order fits any vehicle
			break
		}
		v := available[vi]
		available = append(available[:vi], available[vi+1:]...)

		batch, rest := BuildBatch(pool, v)
		if len(batch) == 0 {
			continue
		}

		trip, assigned, err := p.planOne(ctx, v, batch, cfg)
		if err != nil {
			if errors.Is(err, oracle.ErrConfigMissing) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return model.PlanResult{}, err
			}
			log.WithFields(logrus.Fields{"vehicle": v.ID, "batch": len(batch)}).WithError(err).Warn("vehicle skipped")
			p.emit("vehicle.skipped", map[string]any{"runId": result.ID, "vehicleId": v.ID, "reason": err.Error()})
			pool = requeue(rest, batch, nil, cfg.Strategy)
			continue
		}

		trip.PlanID = result.ID
		result.Trips = append(result.Trips, trip)
		accumulate(&result.Summary, trip)
		metrics.TripsPlanned.WithLabelValues(cfg.Strategy).Inc()
		log.WithFields(logrus.Fields{"vehicle": v.ID, "deliveries": len(assigned), "km": trip.DistanceKm}).Info("trip committed")
		p.emit("trip.committed", map[string]any{"runId": result.ID, "tripId": trip.ID, "vehicleId": v.ID, "deliveries": len(assigned)})

		pool = requeue(rest, batch, assigned, cfg.Strategy)
	}

	result.Unassigned = pool
	if result.Unassigned == nil {
		result.Unassigned = []model.Order{}
	}
	metrics.OrdersUnassigned.Add(float64(len(result.Unassigned)))
	log.WithFields(logrus.Fields{"trips": len(result.Trips), "unassigned": len(result.Unassigned)}).Info("allocation run finished")
	return result, nil
}

// planOne runs one vehicle/batch cycle: pace, sequence, hydrate, filter.
// Returns the committed trip and the set of assigned order ids.
func (p *Planner) planOne(ctx context.Context, v model.Vehicle, batch []model.Order, cfg model.PlanConfig) (model.Trip, map[string]bool, error) {
	if p.Pace != nil {
		if err := p.Pace.Wait(ctx); err != nil {
			return model.Trip{}, nil, err
		}
	}
	raw, err := p.Seq.Sequence(ctx, oracle.SequenceRequest{
		Vehicle:        v,
		Depot:          cfg.Depot,
		Orders:         batch,
		Strategy:       cfg.Strategy,
		MaxTripHours:   cfg.MaxTripHours,
		PolicyOverride: cfg.PolicyOverride,
	})
	if err != nil {
		return model.Trip{}, nil, fmt.Errorf("sequence batch: %w", err)
	}

	idx := make(map[string]model.Order, len(batch))
	for _, o := range batch {
		idx[o.ID] = o
	}
	trip, err := Hydrate(raw, v, idx, cfg)
	if err != nil {
		return model.Trip{}, nil, err
	}
	trip, dropped, err := FilterTolerance(trip, cfg.ToleranceMin)
	if err != nil {
		return model.Trip{}, nil, err
	}
	if len(dropped) > 0 {
		p.Log.WithFields(logrus.Fields{"vehicle": v.ID, "dropped": dropped}).Warn("deliveries outside tolerance stripped")
	}

	assigned := map[string]bool{}
	for _, s := range trip.Deliveries() {
		assigned[s.OrderID] = true
	}
	return trip, assigned, nil
}

// selectVehicle picks the smallest available vehicle whose both capacities
// cover the total remaining demand; when none can clear everything in one go
// it falls back to the largest vehicle still able to hold at least the
// smallest remaining order. Returns -1 when no vehicle can hold any order.
func selectVehicle(available []model.Vehicle, pool []model.Order) int {
	var chilled, frozen int
	for _, o := range pool {
		chilled += o.ChilledQty
		frozen += o.FrozenQty
	}

	order := make([]int, len(available))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return available[order[a]].TotalCap() < available[order[b]].TotalCap()
	})

	for _, i := range order {
		if available[i].ChilledCap >= chilled && available[i].FrozenCap >= frozen {
			return i
		}
	}
	// largest first: maximize throughput per trip when demand exceeds any
	// single vehicle, but only if it can hold at least one remaining order
	for k := len(order) - 1; k >= 0; k-- {
		v := available[order[k]]
		for _, o := range pool {
			if o.ChilledQty <= v.ChilledCap && o.FrozenQty <= v.FrozenCap {
				return order[k]
			}
		}
	}
	return -1
}

// requeue rebuilds the pool after a vehicle cycle: rest plus every batch
// order that was not assigned, re-sorted for the next iteration.
func requeue(rest, batch []model.Order, assigned map[string]bool, strategy string) []model.Order {
	pool := append([]model.Order(nil), rest...)
	for _, o := range batch {
		if !assigned[o.ID] {
			pool = append(pool, o)
		}
	}
	sortPool(pool, strategy)
	return pool
}

func accumulate(s *model.Summary, t model.Trip) {
	s.TotalTrips++
	for _, d := range t.Deliveries() {
		s.TotalContainers += d.ChilledQty + d.FrozenQty
	}
	s.TotalCost = round2(s.TotalCost + t.Cost.Total)
	s.TotalDistanceKm = round2(s.TotalDistanceKm + t.DistanceKm)
	s.TotalCO2Kg = round2(s.TotalCO2Kg + t.CO2Kg)
}

func (p *Planner) emit(eventType string, data map[string]any) {
	if p.Notify != nil {
		p.Notify(eventType, data)
	}
}

// RecalculateTrip re-sequences one vehicle with an explicit order list, for
// manual reshuffles of an existing trip. Load-bearing: rate-limit rejections
// surface to the caller.
func (p *Planner) RecalculateTrip(ctx context.Context, v model.Vehicle, stopOrder []string, orders []model.Order, cfg model.PlanConfig, callerID string) (model.Trip, error) {
	if err := p.checkLimit(callerID, "recalculate"); err != nil {
		return model.Trip{}, err
	}
	normalizeConfig(&cfg)
	if err := oracle.ValidatePolicy(cfg.PolicyOverride); err != nil {
		return model.Trip{}, err
	}

	byID := make(map[string]model.Order, len(orders))
	for _, o := range orders {
		byID[o.ID] = o
	}
	batch := make([]model.Order, 0, len(stopOrder))
	for _, id := range stopOrder {
		o, ok := byID[id]
		if !ok {
			return model.Trip{}, fmt.Errorf("recalculate: unknown order id %q", id)
		}
		batch = append(batch, o)
	}
	if len(batch) == 0 {
		return model.Trip{}, errors.New("recalculate: empty stop order")
	}

	trip, _, err := p.planOne(ctx, v, batch, cfg)
	if err != nil {
		return model.Trip{}, err
	}
	return trip, nil
}

// SavingsAdvice is advisory and best-effort: rate limiting, a missing
// advisor, and parse failures all yield an empty list, never an error the
// caller has to handle.
func (p *Planner) SavingsAdvice(ctx context.Context, trips []model.Trip, orders []model.Order, callerID string) []model.Advice {
	if p.Adv == nil {
		return []model.Advice{}
	}
	if err := p.checkLimit(callerID, "advice"); err != nil {
		return []model.Advice{}
	}
	advice, err := p.Adv.Advise(ctx, trips, orders)
	if err != nil {
		p.Log.WithError(err).Debug("savings advice unavailable")
		return []model.Advice{}
	}
	if advice == nil {
		advice = []model.Advice{}
	}
	return advice
}
