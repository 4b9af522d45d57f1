package plan

import (
	"coldroute/internal/model"
)

// regionOf returns the postcode prefix used for geographic affinity.
func regionOf(o model.Order) string {
	if len(o.Postcode) < 2 {
		return o.Postcode
	}
	return o.Postcode[:2]
}

func fits(chilled, frozen int, o model.Order, v model.Vehicle) bool {
	return chilled+o.ChilledQty <= v.ChilledCap && frozen+o.FrozenQty <= v.FrozenCap
}

// BuildBatch selects a capacity-feasible, geographically coherent subset of
// the pool for one vehicle. The pool must already be sorted by the caller
// (see sortPool). Returns the batch and the remaining pool.
//
// The seed is the first order that fits the vehicle on its own; orders ahead
// of it that exceed the vehicle stay in the pool for a bigger vehicle or the
// unassigned list. The seed's postcode prefix becomes the batch region;
// same-region candidates are preferred, any fitting candidate is the
// fallback, so no order is ever skipped permanently.
func BuildBatch(pool []model.Order, v model.Vehicle) (batch, rest []model.Order) {
	if len(pool) == 0 {
		return nil, nil
	}
	rest = append([]model.Order(nil), pool...)

	seedIdx := -1
	for i, o := range rest {
		if fits(0, 0, o, v) {
			seedIdx = i
			break
		}
	}
	if seedIdx < 0 {
		return nil, rest
	}
	seed := rest[seedIdx]
	rest = append(rest[:seedIdx], rest[seedIdx+1:]...)
	batch = []model.Order{seed}
	region := regionOf(seed)
	chilled, frozen := seed.ChilledQty, seed.FrozenQty

	// stop early once either dimension is exactly full; a zero capacity
	// does not constrain (nothing with load in that dimension fits anyway)
	for (v.ChilledCap == 0 || chilled < v.ChilledCap) && (v.FrozenCap == 0 || frozen < v.FrozenCap) {
		pick := -1
		for i, o := range rest {
			if fits(chilled, frozen, o, v) && regionOf(o) == region {
				pick = i
				break
			}
		}
		if pick < 0 {
			for i, o := range rest {
				if fits(chilled, frozen, o, v) {
					pick = i
					break
				}
			}
		}
		if pick < 0 {
			break
		}
		o := rest[pick]
		chilled += o.ChilledQty
		frozen += o.FrozenQty
		batch = append(batch, o)
		rest = append(rest[:pick], rest[pick+1:]...)
	}
	return batch, rest
}
