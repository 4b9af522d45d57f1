package store

import (
	"context"
	"errors"

	"coldroute/internal/model"
)

// Store is the persistence interface used by the API server. The planner
// never touches it directly; handlers load orders and fleet, run the
// planner, and save the result.
type Store interface {
	// Orders
	CreateOrders(ctx context.Context, orders []model.Order) ([]model.Order, error)
	ListOrders(ctx context.Context, cursor string, limit int) ([]model.Order, string, error)
	AllOrders(ctx context.Context) ([]model.Order, error)
	DeleteOrders(ctx context.Context, ids []string) (int, error)

	// Fleet
	ReplaceFleet(ctx context.Context, fleet []model.Vehicle) ([]model.Vehicle, error)
	ListFleet(ctx context.Context) ([]model.Vehicle, error)
	GetVehicle(ctx context.Context, id string) (model.Vehicle, error)

	// Plans & trips
	SavePlan(ctx context.Context, plan model.PlanResult) error
	GetPlan(ctx context.Context, id string) (model.PlanResult, error)
	ListTrips(ctx context.Context, cursor string, limit int) ([]model.Trip, string, error)
	GetTrip(ctx context.Context, id string) (model.Trip, error)
	UpdateTrip(ctx context.Context, trip model.Trip) error
}

var ErrNotFound = errors.New("not found")
