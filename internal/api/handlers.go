package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"coldroute/internal/model"
	"coldroute/internal/oracle"
	"coldroute/internal/plan"
	"coldroute/internal/store"
)

// writePlanError maps planner errors to problem responses.
func writePlanError(w http.ResponseWriter, r *http.Request, err error) {
	var rl *plan.RateLimitError
	switch {
	case errors.As(err, &rl):
		secs := rl.ResetInMs / 1000
		if rl.ResetInMs%1000 > 0 {
			secs++
		}
		w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
		writeProblem(w, http.StatusTooManyRequests, "Too Many Requests", err.Error(), r.URL.Path)
	case errors.Is(err, oracle.ErrUntrustedPolicy):
		writeProblem(w, http.StatusBadRequest, "Invalid Request", err.Error(), r.URL.Path)
	case errors.Is(err, oracle.ErrConfigMissing):
		writeProblem(w, http.StatusServiceUnavailable, "Oracle Unavailable", err.Error(), r.URL.Path)
	default:
		writeProblem(w, http.StatusInternalServerError, "Internal Error", err.Error(), r.URL.Path)
	}
}

func pageParams(r *http.Request) (string, int) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	return r.URL.Query().Get("cursor"), limit
}

// OrdersHandler handles /v1/orders: POST bulk upsert, GET paged list,
// DELETE by ids.
func (s *Server) OrdersHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req struct {
			Orders []model.Order `json:"orders"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if len(req.Orders) == 0 {
			writeProblem(w, http.StatusBadRequest, "Invalid Request", "orders is empty", r.URL.Path)
			return
		}
		for i, o := range req.Orders {
			if err := validateOrder(o); err != nil {
				writeProblem(w, http.StatusBadRequest, "Invalid Order", fmt.Sprintf("orders[%d]: %v", i, err), r.URL.Path)
				return
			}
		}
		created, err := s.Store.CreateOrders(r.Context(), req.Orders)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Internal Error", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"orders": created, "created": len(created)})
	case http.MethodGet:
		cursor, limit := pageParams(r)
		items, next, err := s.Store.ListOrders(r.Context(), cursor, limit)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Internal Error", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"orders": items, "nextCursor": next})
	case http.MethodDelete:
		var req struct {
			IDs []string `json:"ids"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		deleted, err := s.Store.DeleteOrders(r.Context(), req.IDs)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Internal Error", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// FleetHandler handles /v1/fleet: PUT replaces the whole fleet, GET lists it.
func (s *Server) FleetHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPut:
		var req struct {
			Vehicles []model.Vehicle `json:"vehicles"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		for i, v := range req.Vehicles {
			if err := validateVehicle(v); err != nil {
				writeProblem(w, http.StatusBadRequest, "Invalid Vehicle", fmt.Sprintf("vehicles[%d]: %v", i, err), r.URL.Path)
				return
			}
		}
		fleet, err := s.Store.ReplaceFleet(r.Context(), req.Vehicles)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Internal Error", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"vehicles": fleet})
	case http.MethodGet:
		fleet, err := s.Store.ListFleet(r.Context())
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Internal Error", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"vehicles": fleet})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// OptimizeHandler handles POST /v1/optimize: runs a full allocation over the
// stored orders and fleet and persists the result. The run executes
// synchronously, so a caller that wants the run's event stream names the run
// itself (runId in the body) and subscribes to that id before posting.
func (s *Server) OptimizeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var cfg model.PlanConfig
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
	}
	s.applyPlanDefaults(&cfg)
	if err := validatePlanConfig(cfg); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Request", err.Error(), r.URL.Path)
		return
	}

	orders, err := s.Store.AllOrders(r.Context())
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Internal Error", err.Error(), r.URL.Path)
		return
	}
	fleet, err := s.Store.ListFleet(r.Context())
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Internal Error", err.Error(), r.URL.Path)
		return
	}
	if len(fleet) == 0 {
		writeProblem(w, http.StatusBadRequest, "Invalid Request", "fleet is empty", r.URL.Path)
		return
	}

	result, err := s.Planner.Optimize(r.Context(), orders, fleet, cfg, callerID(r))
	if err != nil {
		writePlanError(w, r, err)
		return
	}
	if err := s.Store.SavePlan(r.Context(), result); err != nil {
		writeProblem(w, http.StatusInternalServerError, "Internal Error", err.Error(), r.URL.Path)
		return
	}
	s.Broker.Publish(result.ID, PlanEvent{Type: "plan.finished", Data: map[string]any{
		"planId":     result.ID,
		"trips":      result.Summary.TotalTrips,
		"unassigned": len(result.Unassigned),
	}})
	writeJSON(w, http.StatusOK, result)
}

// applyPlanDefaults fills unset run parameters from server config.
func (s *Server) applyPlanDefaults(cfg *model.PlanConfig) {
	if cfg.Strategy == "" {
		cfg.Strategy = s.Cfg.Plan.Strategy
	}
	if cfg.ToleranceMin == 0 {
		cfg.ToleranceMin = s.Cfg.Plan.ToleranceMin
	}
	if cfg.MaxTripHours == 0 {
		cfg.MaxTripHours = s.Cfg.Plan.MaxTripHours
	}
	if cfg.Depot.Name == "" && cfg.Depot.Lat == 0 && cfg.Depot.Lng == 0 {
		cfg.Depot = s.Cfg.Plan.Depot
	}
}

// TripsHandler handles GET /v1/trips.
func (s *Server) TripsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	cursor, limit := pageParams(r)
	items, next, err := s.Store.ListTrips(r.Context(), cursor, limit)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Internal Error", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"trips": items, "nextCursor": next})
}

// TripByIDHandler handles /v1/trips/{tripId} and /v1/trips/{tripId}/recalculate.
func (s *Server) TripByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/trips/")
	parts := strings.Split(rest, "/")
	if len(parts) == 0 || parts[0] == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	id := parts[0]

	if len(parts) > 1 && parts[1] == "recalculate" {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		s.recalculateTrip(w, r, id)
		return
	}

	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	trip, err := s.Store.GetTrip(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "Not Found", "trip not found", r.URL.Path)
		return
	}
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Internal Error", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, trip)
}

func (s *Server) recalculateTrip(w http.ResponseWriter, r *http.Request, id string) {
	var req struct {
		StopOrder []string `json:"stopOrder"`
		model.PlanConfig
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}

	trip, err := s.Store.GetTrip(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "Not Found", "trip not found", r.URL.Path)
		return
	}
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Internal Error", err.Error(), r.URL.Path)
		return
	}

	// default to the trip's current delivery order
	if len(req.StopOrder) == 0 {
		for _, d := range trip.Deliveries() {
			req.StopOrder = append(req.StopOrder, d.OrderID)
		}
	}

	vehicle, err := s.Store.GetVehicle(r.Context(), trip.VehicleID)
	if errors.Is(err, store.ErrNotFound) {
		writeProblem(w, http.StatusConflict, "Vehicle Gone", "trip vehicle no longer in fleet", r.URL.Path)
		return
	}
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Internal Error", err.Error(), r.URL.Path)
		return
	}

	cfg := req.PlanConfig
	s.applyPlanDefaults(&cfg)
	if err := validatePlanConfig(cfg); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Request", err.Error(), r.URL.Path)
		return
	}

	orders, err := s.Store.AllOrders(r.Context())
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Internal Error", err.Error(), r.URL.Path)
		return
	}

	updated, err := s.Planner.RecalculateTrip(r.Context(), vehicle, req.StopOrder, orders, cfg, callerID(r))
	if err != nil {
		writePlanError(w, r, err)
		return
	}
	updated.ID = trip.ID
	updated.PlanID = trip.PlanID
	if err := s.Store.UpdateTrip(r.Context(), updated); err != nil {
		writeProblem(w, http.StatusInternalServerError, "Internal Error", err.Error(), r.URL.Path)
		return
	}
	if updated.PlanID != "" {
		s.Broker.Publish(updated.PlanID, PlanEvent{Type: "trip.recalculated", Data: map[string]any{
			"planId":     updated.PlanID,
			"tripId":     updated.ID,
			"vehicleId":  updated.VehicleID,
			"distanceKm": updated.DistanceKm,
		}})
	}
	writeJSON(w, http.StatusOK, updated)
}

// AdviceHandler handles POST /v1/advice: best-effort savings suggestions for
// a finished plan.
func (s *Server) AdviceHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		PlanID string `json:"planId"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
	}

	var trips []model.Trip
	var unassigned []model.Order
	if req.PlanID != "" {
		p, err := s.Store.GetPlan(r.Context(), req.PlanID)
		if errors.Is(err, store.ErrNotFound) {
			writeProblem(w, http.StatusNotFound, "Not Found", "plan not found", r.URL.Path)
			return
		}
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Internal Error", err.Error(), r.URL.Path)
			return
		}
		trips, unassigned = p.Trips, p.Unassigned
	} else {
		var err error
		trips, _, err = s.Store.ListTrips(r.Context(), "", 500)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Internal Error", err.Error(), r.URL.Path)
			return
		}
	}

	advice := s.Planner.SavingsAdvice(r.Context(), trips, unassigned, callerID(r))
	writeJSON(w, http.StatusOK, map[string]any{"advice": advice})
}

// PlansHandler handles /v1/plans/{planId} and /v1/plans/{planId}/events/stream.
func (s *Server) PlansHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/plans/")
	parts := strings.Split(rest, "/")
	if len(parts) == 0 || parts[0] == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	id := parts[0]

	if len(parts) > 2 && parts[1] == "events" && parts[2] == "stream" {
		s.planEventsStream(w, r, id)
		return
	}

	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p, err := s.Store.GetPlan(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "Not Found", "plan not found", r.URL.Path)
		return
	}
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Internal Error", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) planEventsStream(w http.ResponseWriter, r *http.Request, id string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "Streaming Unsupported", "", r.URL.Path)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := s.Broker.Subscribe(id)
	defer s.Broker.Unsubscribe(id, ch)

	fmt.Fprintf(w, "event: heartbeat\n")
	fmt.Fprintf(w, "data: {\"planId\":\"%s\",\"ts\":\"%s\"}\n\n", id, time.Now().Format(time.RFC3339))
	flusher.Flush()

	notify := r.Context().Done()
	for {
		select {
		case <-notify:
			return
		case evt := <-ch:
			b, _ := json.Marshal(evt.Data)
			fmt.Fprintf(w, "event: %s\n", evt.Type)
			fmt.Fprintf(w, "data: %s\n\n", string(b))
			flusher.Flush()
		case <-time.After(15 * time.Second):
			fmt.Fprintf(w, "event: heartbeat\n")
			fmt.Fprintf(w, "data: {\"planId\":\"%s\",\"ts\":\"%s\"}\n\n", id, time.Now().Format(time.RFC3339))
			flusher.Flush()
		}
	}
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	if _, err := s.Store.ListFleet(r.Context()); err != nil {
		writeProblem(w, http.StatusServiceUnavailable, "Not Ready", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
