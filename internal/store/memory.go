package store

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"coldroute/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu       sync.Mutex
	orders   map[string]model.Order // id -> order
	orderIDs []string               // insertion order
	fleet    map[string]model.Vehicle
	fleetIDs []string
	plans    map[string]model.PlanResult
	trips    map[string]model.Trip
	tripIDs  []string
}

func NewMemory() *Memory {
	return &Memory{
		orders: map[string]model.Order{},
		fleet:  map[string]model.Vehicle{},
		plans:  map[string]model.PlanResult{},
		trips:  map[string]model.Trip{},
	}
}

func (m *Memory) CreateOrders(ctx context.Context, orders []model.Order) ([]model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Order, 0, len(orders))
	for _, o := range orders {
		if o.ID == "" {
			o.ID = uuid.New().String()
		}
		if _, exists := m.orders[o.ID]; !exists {
			m.orderIDs = append(m.orderIDs, o.ID)
		}
		m.orders[o.ID] = o
		out = append(out, o)
	}
	return out, nil
}

func (m *Memory) ListOrders(ctx context.Context, cursor string, limit int) ([]model.Order, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	start := 0
	if cursor != "" {
		for i, id := range m.orderIDs {
			if id == cursor {
				start = i + 1
				break
			}
		}
	}
	out := []model.Order{}
	var next string
	for i := start; i < len(m.orderIDs) && len(out) < limit; i++ {
		out = append(out, m.orders[m.orderIDs[i]])
		next = m.orderIDs[i]
	}
	if len(out) < limit {
		next = ""
	}
	return out, next, nil
}

func (m *Memory) AllOrders(ctx context.Context) ([]model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Order, 0, len(m.orderIDs))
	for _, id := range m.orderIDs {
		out = append(out, m.orders[id])
	}
	return out, nil
}

func (m *Memory) DeleteOrders(ctx context.Context, ids []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	deleted := 0
	for _, id := range ids {
		if _, ok := m.orders[id]; !ok {
			continue
		}
		delete(m.orders, id)
		deleted++
	}
	if deleted > 0 {
		kept := m.orderIDs[:0]
		for _, id := range m.orderIDs {
			if _, ok := m.orders[id]; ok {
				kept = append(kept, id)
			}
		}
		m.orderIDs = kept
	}
	return deleted, nil
}

func (m *Memory) ReplaceFleet(ctx context.Context, fleet []model.Vehicle) ([]model.Vehicle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fleet = map[string]model.Vehicle{}
	m.fleetIDs = m.fleetIDs[:0]
	out := make([]model.Vehicle, 0, len(fleet))
	for _, v := range fleet {
		if v.ID == "" {
			v.ID = uuid.New().String()
		}
		m.fleet[v.ID] = v
		m.fleetIDs = append(m.fleetIDs, v.ID)
		out = append(out, v)
	}
	return out, nil
}

func (m *Memory) ListFleet(ctx context.Context) ([]model.Vehicle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Vehicle, 0, len(m.fleetIDs))
	for _, id := range m.fleetIDs {
		out = append(out, m.fleet[id])
	}
	return out, nil
}

func (m *Memory) GetVehicle(ctx context.Context, id string) (model.Vehicle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.fleet[id]
	if !ok {
		return model.Vehicle{}, ErrNotFound
	}
	return v, nil
}

func (m *Memory) SavePlan(ctx context.Context, plan model.PlanResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plans[plan.ID] = plan
	for _, t := range plan.Trips {
		if t.PlanID == "" {
			t.PlanID = plan.ID
		}
		if _, exists := m.trips[t.ID]; !exists {
			m.tripIDs = append(m.tripIDs, t.ID)
		}
		m.trips[t.ID] = t
	}
	return nil
}

func (m *Memory) GetPlan(ctx context.Context, id string) (model.PlanResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plans[id]
	if !ok {
		return model.PlanResult{}, ErrNotFound
	}
	return p, nil
}

func (m *Memory) ListTrips(ctx context.Context, cursor string, limit int) ([]model.Trip, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	start := 0
	if cursor != "" {
		for i, id := range m.tripIDs {
			if id == cursor {
				start = i + 1
				break
			}
		}
	}
	out := []model.Trip{}
	var next string
	for i := start; i < len(m.tripIDs) && len(out) < limit; i++ {
		out = append(out, m.trips[m.tripIDs[i]])
		next = m.tripIDs[i]
	}
	if len(out) < limit {
		next = ""
	}
	return out, next, nil
}

func (m *Memory) GetTrip(ctx context.Context, id string) (model.Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trips[id]
	if !ok {
		return model.Trip{}, ErrNotFound
	}
	return t, nil
}

func (m *Memory) UpdateTrip(ctx context.Context, trip model.Trip) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.trips[trip.ID]; !ok {
		return ErrNotFound
	}
	m.trips[trip.ID] = trip
	return nil
}
