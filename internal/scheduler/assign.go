package scheduler

import (
	"sort"

	"github.com/ppissanetzky/barcode-sub000/internal/distance"
)

type pair struct {
	origin, destination int
	el                  *distance.Element
}

// Assign gives each destination to at most one origin, closest pairs first,
// with no origin getting more than limit destinations. It returns, per
// origin, the indexes of its destinations in the order they were assigned.
// Equal durations are broken by destination index, then origin index.
func Assign(matrix [][]*distance.Element, destinations, limit int) [][]int {
	out := make([][]int, len(matrix))
	if limit <= 0 {
		return out
	}

	var pairs []pair
	for i, row := range matrix {
		for j, el := range row {
			if el != nil && j < destinations {
				pairs = append(pairs, pair{origin: i, destination: j, el: el})
			}
		}
	}
	sort.SliceStable(pairs, func(a, b int) bool {
		pa, pb := pairs[a], pairs[b]
		if pa.el.Duration != pb.el.Duration {
			return pa.el.Duration < pb.el.Duration
		}
		if pa.destination != pb.destination {
			return pa.destination < pb.destination
		}
		return pa.origin < pb.origin
	})

	taken := make([]bool, destinations)
	for _, p := range pairs {
		if taken[p.destination] || len(out[p.origin]) >= limit {
			continue
		}
		taken[p.destination] = true
		out[p.origin] = append(out[p.origin], p.destination)
	}
	return out
}
