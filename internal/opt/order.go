package opt

import (
	"math/rand"

	"fieldsched/internal/geo"
)

// Plan is the result of ordering a fixed job set.
type Plan struct {
	Order    []int
	Hours    float64
	Miles    float64
	Strategy Strategy
	Metrics  *Metrics
}

// Order reorders an already selected stop set. baseline is the order the set
// was selected in and is feasible within budget; no strategy returns a route
// longer than it. Every stop stays on the route.
func Order(strategy Strategy, origin Stop, stops []Stop, baseline []int, budget float64, tm geo.TravelModel, rng *rand.Rand, sched Schedule) Plan {
	if baseline == nil {
		baseline = identity(len(stops))
	}
	order := greedyReorder(origin, stops, baseline, budget, tm)
	var metrics *Metrics
	switch strategy {
	case Annealing:
		refined, m := Anneal(origin, stops, order, budget, tm, rng, sched)
		order = refined
		metrics = &m
	case TwoOpt:
		order = ImproveOrder2Opt(origin, stops, order, budget, tm, 10)
		order = RelocateOrOpt(origin, stops, order, budget, tm)
	}
	h, mi := RouteCost(origin, stops, order, tm)
	return Plan{Order: order, Hours: h, Miles: mi, Strategy: strategy, Metrics: metrics}
}

// greedyReorder keeps the nearest-neighbor order when it routes every stop
// within budget and is no longer than baseline.
func greedyReorder(origin Stop, stops []Stop, baseline []int, budget float64, tm geo.TravelModel) []int {
	nn := NearestNeighbor(origin, stops, budget, tm)
	if len(nn) != len(baseline) {
		return append([]int(nil), baseline...)
	}
	_, nnMiles := RouteCost(origin, stops, nn, tm)
	_, baseMiles := RouteCost(origin, stops, baseline, tm)
	if nnMiles <= baseMiles {
		return nn
	}
	return append([]int(nil), baseline...)
}
