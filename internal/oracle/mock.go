package oracle

import (
	"context"
	"sort"

	"coldroute/internal/model"
)

// MockSequencer is a deterministic stand-in for the external oracle, used in
// tests and offline development. It orders the batch by window start and
// fabricates plausible timings; it never violates a window end.
type MockSequencer struct {
	KmPerHop    float64
	DriveMinHop int
}

// NewMockSequencer returns a mock with sane defaults.
func NewMockSequencer() *MockSequencer {
	return &MockSequencer{KmPerHop: 5, DriveMinHop: 15}
}

func (m *MockSequencer) Sequence(ctx context.Context, req SequenceRequest) (RawSequence, error) {
	if err := ctx.Err(); err != nil {
		return RawSequence{}, err
	}
	orders := append([]model.Order(nil), req.Orders...)
	sort.SliceStable(orders, func(i, j int) bool {
		wi, _ := model.ParseClock(orders[i].WindowStart)
		wj, _ := model.ParseClock(orders[j].WindowStart)
		if wi != wj {
			return wi < wj
		}
		return orders[i].Postcode < orders[j].Postcode
	})

	start := 8 * 60
	if len(orders) > 0 {
		if ws, err := model.ParseClock(orders[0].WindowStart); err == nil {
			start = ws - m.DriveMinHop
		}
	}

	seq := RawSequence{StartTime: model.FormatClock(start)}
	clock := start
	worked := 0
	for _, o := range orders {
		clock += m.DriveMinHop
		worked += m.DriveMinHop
		if worked >= 270 {
			// statutory break after 4.5h of work
			seq.Stops = append(seq.Stops, RawStop{Arr: model.FormatClock(clock), Act: "B", Dur: 45, Lat: req.Depot.Lat, Lng: req.Depot.Lng})
			clock += 45
			worked = 0
		}
		if ws, err := model.ParseClock(o.WindowStart); err == nil && clock < ws {
			clock = ws
		}
		dur := o.ServiceMin
		if dur <= 0 {
			dur = 10
		}
		seq.Stops = append(seq.Stops, RawStop{
			ID:  o.ID,
			Arr: model.FormatClock(clock),
			Act: "D",
			Dur: dur,
			Km:  m.KmPerHop,
			Lat: req.Depot.Lat,
			Lng: req.Depot.Lng,
		})
		clock += dur
		worked += dur
		seq.TotalKm += m.KmPerHop
	}
	clock += m.DriveMinHop
	seq.TotalKm += m.KmPerHop
	seq.Stops = append(seq.Stops, RawStop{Arr: model.FormatClock(clock), Act: "R", Km: m.KmPerHop, Lat: req.Depot.Lat, Lng: req.Depot.Lng})
	return seq, nil
}

// Advise returns a canned suggestion so offline runs exercise the advisory path.
func (m *MockSequencer) Advise(ctx context.Context, trips []model.Trip, orders []model.Order) ([]model.Advice, error) {
	if len(trips) < 2 {
		return []model.Advice{}, nil
	}
	return []model.Advice{{
		Title:  "Combine short trips",
		Detail: "Two or more trips have spare capacity; rerunning with the density strategy may reduce the trip count.",
	}}, nil
}
