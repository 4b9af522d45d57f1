// Package plan implements the order consolidation and fleet allocation
// engine: it partitions consolidated orders across the available fleet into
// capacity-feasible trips, delegating stop sequencing to the oracle.
package plan

import (
	"sort"
	"strings"

	"coldroute/internal/model"
)

// groupKey builds the exact-match consolidation key. The literal window
// strings are part of the key on purpose: two orders at one address with
// different windows stay separate deliveries.
func groupKey(o model.Order) string {
	return strings.ToLower(strings.TrimSpace(o.Address)) + "|" +
		strings.ToLower(strings.TrimSpace(o.Postcode)) + "|" +
		strings.ToLower(strings.TrimSpace(o.City)) + "|" +
		o.WindowStart + "|" + o.WindowEnd
}

// Consolidate merges orders sharing address, postcode, city and time window.
// Loads sum, service duration takes the max, names concatenate. Orders with
// zero total load carry no capacity demand and are dropped entirely. Output
// preserves first-occurrence order of each group.
func Consolidate(orders []model.Order) []model.Order {
	out := make([]model.Order, 0, len(orders))
	idx := map[string]int{}
	for _, o := range orders {
		if o.TotalQty() == 0 {
			continue
		}
		k := groupKey(o)
		if i, ok := idx[k]; ok {
			merged := out[i]
			merged.ChilledQty += o.ChilledQty
			merged.FrozenQty += o.FrozenQty
			if o.ServiceMin > merged.ServiceMin {
				merged.ServiceMin = o.ServiceMin
			}
			if o.Name != "" && o.Name != merged.Name {
				merged.Name = merged.Name + " + " + o.Name
			}
			out[i] = merged
			continue
		}
		idx[k] = len(out)
		out = append(out, o)
	}
	return out
}

// sortPool orders the pool for batching: JIT sorts by window start then
// postcode, density purely by postcode. Stable so consolidation order breaks
// ties deterministically.
func sortPool(pool []model.Order, strategy string) {
	if strategy == model.StrategyDensity {
		sort.SliceStable(pool, func(i, j int) bool { return pool[i].Postcode < pool[j].Postcode })
		return
	}
	sort.SliceStable(pool, func(i, j int) bool {
		wi, _ := model.ParseClock(pool[i].WindowStart)
		wj, _ := model.ParseClock(pool[j].WindowStart)
		if wi != wj {
			return wi < wj
		}
		return pool[i].Postcode < pool[j].Postcode
	})
}
