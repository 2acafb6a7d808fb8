package opt

import (
	"math"
	"math/rand"

	"fieldsched/internal/geo"
)

// Schedule is the geometric cooling schedule of the annealer.
type Schedule struct {
	InitialTemp float64
	Cooling     float64
	Floor       float64
}

// DefaultSchedule runs from 100 down to 0.1 at 0.99 per step, about 687 iterations.
var DefaultSchedule = Schedule{InitialTemp: 100, Cooling: 0.99, Floor: 0.1}

func (s Schedule) normalized() Schedule {
	if s.InitialTemp <= 0 {
		s.InitialTemp = DefaultSchedule.InitialTemp
	}
	if s.Cooling <= 0 || s.Cooling >= 1 {
		s.Cooling = DefaultSchedule.Cooling
	}
	if s.Floor <= 0 || s.Floor >= s.InitialTemp {
		s.Floor = DefaultSchedule.Floor
	}
	return s
}

// Metrics describes one refinement run.
type Metrics struct {
	Iterations     int     `json:"iterations"`
	Improvements   int     `json:"improvements"`
	AcceptedWorse  int     `json:"acceptedWorse"`
	RejectedBudget int     `json:"rejectedBudget"`
	InitialMiles   float64 `json:"initialMiles"`
	BestMiles      float64 `json:"bestMiles"`
	FinalMiles     float64 `json:"finalMiles"`
}

// Anneal refines initial by random pair swaps. A swap is accepted when it
// shortens the route, or with probability exp(-delta/temp) otherwise. Swaps that
// push the route over budget are rejected outright. The best route seen is
// returned, so its distance never exceeds the starting route's.
func Anneal(origin Stop, stops []Stop, initial []int, budget float64, tm geo.TravelModel, rng *rand.Rand, sched Schedule) ([]int, Metrics) {
	sched = sched.normalized()
	curr := append([]int(nil), initial...)
	best := append([]int(nil), initial...)
	_, currMiles := RouteCost(origin, stops, curr, tm)
	bestMiles := currMiles
	m := Metrics{InitialMiles: currMiles, BestMiles: currMiles, FinalMiles: currMiles}
	n := len(curr)
	if n < 2 || rng == nil {
		return best, m
	}
	cand := make([]int, n)
	for temp := sched.InitialTemp; temp > sched.Floor; temp *= sched.Cooling {
		m.Iterations++
		i, j := rng.Intn(n), rng.Intn(n)
		copy(cand, curr)
		cand[i], cand[j] = cand[j], cand[i]
		hours, miles := RouteCost(origin, stops, cand, tm)
		if budget > 0 && hours > budget+1e-9 {
			m.RejectedBudget++
			continue
		}
		delta := miles - currMiles
		if delta < 0 || rng.Float64() < math.Exp(-delta/(temp+1e-9)) {
			if delta > 0 {
				m.AcceptedWorse++
			}
			curr, cand = cand, curr
			currMiles = miles
			if currMiles < bestMiles-1e-9 {
				best = append(best[:0], curr...)
				bestMiles = currMiles
				m.Improvements++
			}
		}
	}
	m.BestMiles = bestMiles
	m.FinalMiles = currMiles
	return best, m
}
