// Package oracle talks to the external route-sequencing service. The service
// is an opaque planner: it receives a vehicle, a batch of orders and a policy
// block, and returns an ordered, timed stop sequence. Everything it returns
// is treated as untrusted until validated.
package oracle

import (
	"context"
	"errors"

	"coldroute/internal/model"
)

var (
	// ErrInvalidResponse marks a non-JSON or schema-violating oracle payload.
	ErrInvalidResponse = errors.New("oracle: invalid response")
	// ErrConfigMissing marks a missing credential or endpoint; no allocation
	// can proceed without the oracle, so this is fatal to a run.
	ErrConfigMissing = errors.New("oracle: configuration missing")
	// ErrUntrustedPolicy marks a rejected free-text policy override.
	ErrUntrustedPolicy = errors.New("oracle: untrusted policy instruction")
)

// SequenceRequest carries everything the oracle needs for one trip.
type SequenceRequest struct {
	Vehicle        model.Vehicle
	Depot          model.Depot
	Orders         []model.Order
	Strategy       string
	MaxTripHours   float64
	PolicyOverride string // pre-validated via ValidatePolicy
}

// RawStop is one element of the oracle's stop list, schema-checked but not
// yet hydrated against the order index.
type RawStop struct {
	ID  string  `json:"id,omitempty"`
	Arr string  `json:"arr"` // "HH:MM"
	Act string  `json:"act"` // "D" delivery, "B" break, "I" idle, "R" return
	Dur int     `json:"dur"` // minutes
	Km  float64 `json:"km"`  // distance from previous stop
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
	Msg string  `json:"msg,omitempty"`
}

// RawSequence is the oracle's strictly-typed answer for one batch.
type RawSequence struct {
	StartTime string    `json:"start_time"`
	TotalKm   float64   `json:"totaal_km"`
	Stops     []RawStop `json:"stops"`
}

// Sequencer is the narrow interface the allocator depends on. Tests and
// offline runs substitute a deterministic implementation.
type Sequencer interface {
	Sequence(ctx context.Context, req SequenceRequest) (RawSequence, error)
}

// Advisor produces best-effort savings suggestions over a finished plan.
type Advisor interface {
	Advise(ctx context.Context, trips []model.Trip, orders []model.Order) ([]model.Advice, error)
}
