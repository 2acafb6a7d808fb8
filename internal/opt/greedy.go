package opt

import (
	"fieldsched/internal/geo"
)

// NearestNeighbor builds a route from origin by repeatedly taking the closest
// unrouted stop whose drive plus work still fits the remaining budget. It stops
// when nothing fits. Ties go to the lower index so the result is deterministic.
// A budget <= 0 means unlimited.
func NearestNeighbor(origin Stop, stops []Stop, budget float64, tm geo.TravelModel) []int {
	routed := make([]bool, len(stops))
	order := make([]int, 0, len(stops))
	used := 0.0
	cur := origin
	for {
		best := -1
		bestDist := 0.0
		bestCost := 0.0
		for i, s := range stops {
			if routed[i] {
				continue
			}
			cost := tm.Hours(cur.Site, cur.Point, s.Site, s.Point) + s.Duration
			if budget > 0 && used+cost > budget+1e-9 {
				continue
			}
			d := geo.DistanceMiles(cur.Point, s.Point)
			if best < 0 || d < bestDist {
				best, bestDist, bestCost = i, d, cost
			}
		}
		if best < 0 {
			return order
		}
		routed[best] = true
		order = append(order, best)
		used += bestCost
		cur = stops[best]
	}
}
