package opt

import (
	"fmt"
	"strings"

	"fieldsched/internal/geo"
)

// Stop is the minimal view of a job the ordering heuristics need.
type Stop struct {
	ID       int64
	Site     string
	Point    geo.Point
	Duration float64
}

// Strategy selects how a day's selected jobs are ordered.
type Strategy string

const (
	Greedy    Strategy = "greedy"
	Annealing Strategy = "annealing"
	TwoOpt    Strategy = "2opt"
)

// ParseStrategy maps a request value to a Strategy; empty means Greedy.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case "", Greedy:
		return Greedy, nil
	case Annealing, "sa":
		return Annealing, nil
	case TwoOpt:
		return TwoOpt, nil
	}
	return "", fmt.Errorf("unknown strategy %q", s)
}

// RouteCost walks order from origin and returns total hours (drive + work)
// and drive miles.
func RouteCost(origin Stop, stops []Stop, order []int, tm geo.TravelModel) (hours, miles float64) {
	prev := origin
	for _, idx := range order {
		s := stops[idx]
		miles += geo.DistanceMiles(prev.Point, s.Point)
		hours += tm.Hours(prev.Site, prev.Point, s.Site, s.Point) + s.Duration
		prev = s
	}
	return hours, miles
}

func identity(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
