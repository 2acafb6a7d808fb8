package opt

import (
	"fieldsched/internal/geo"
)

// ImproveOrder2Opt applies 2-opt segment reversals to an open path that starts
// at origin. Reversals that break the hour budget are skipped.
func ImproveOrder2Opt(origin Stop, stops []Stop, order []int, budget float64, tm geo.TravelModel, iterations int) []int {
	if iterations <= 0 {
		iterations = 1
	}
	best := append([]int(nil), order...)
	_, bestDist := RouteCost(origin, stops, best, tm)
	n := len(order)
	for it := 0; it < iterations; it++ {
		improved := false
		for i := 0; i < n-1; i++ {
			for k := i + 1; k < n; k++ {
				newOrder := twoOptSwap(best, i, k)
				h, d := RouteCost(origin, stops, newOrder, tm)
				if budget > 0 && h > budget+1e-9 {
					continue
				}
				if d+1e-3 < bestDist {
					best = newOrder
					bestDist = d
					improved = true
				}
			}
		}
		if !improved {
			break
		}
	}
	return best
}

func twoOptSwap(ord []int, i, k int) []int {
	out := make([]int, len(ord))
	copy(out, ord[:i])
	// reverse i..k
	pos := i
	for j := k; j >= i; j-- {
		out[pos] = ord[j]
		pos++
	}
	copy(out[pos:], ord[k+1:])
	return out
}

// RelocateOrOpt moves single stops to the position that shortens the route
// most, repeating until no move helps. Moves that break the budget are skipped.
func RelocateOrOpt(origin Stop, stops []Stop, order []int, budget float64, tm geo.TravelModel) []int {
	best := append([]int(nil), order...)
	_, bestDist := RouteCost(origin, stops, best, tm)
	n := len(best)
	for improved := true; improved; {
		improved = false
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				if j == i {
					continue
				}
				cand := relocate(best, i, j)
				h, d := RouteCost(origin, stops, cand, tm)
				if budget > 0 && h > budget+1e-9 {
					continue
				}
				if d+1e-3 < bestDist {
					best, bestDist = cand, d
					improved = true
				}
			}
		}
	}
	return best
}

// relocate removes the stop at i and reinserts it so it lands at index j.
func relocate(ord []int, i, j int) []int {
	out := make([]int, 0, len(ord))
	out = append(out, ord[:i]...)
	out = append(out, ord[i+1:]...)
	node := ord[i]
	out = append(out[:j], append([]int{node}, out[j:]...)...)
	return out
}
