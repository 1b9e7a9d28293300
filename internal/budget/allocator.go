// Package budget splits a remaining call quota across sources by priority tier.
package budget

import (
	"sort"

	"FeedCurator/internal/domain"
)

// Tier shares of the original total, in percent. Tier 3 takes what is left.
const (
	tierOneShare = 50
	tierTwoShare = 35
)

// Allocation maps a source ID to the number of calls it may spend.
// Sources that receive nothing are absent.
type Allocation map[string]int

// Total sums the allocated calls.
func (a Allocation) Total() int {
	sum := 0
	for _, n := range a {
		sum += n
	}
	return sum
}

// Allocate distributes totalCalls tier by tier, highest priority first.
// A tier without sources does not hand its share to other tiers. Priority
// values outside 1..3 are clamped.
func Allocate(sources []domain.Source, totalCalls int) Allocation {
	result := make(Allocation)
	if totalCalls <= 0 || len(sources) == 0 {
		return result
	}

	tiers := make(map[int][]domain.Source, 3)
	for _, src := range sources {
		tiers[src.Tier()] = append(tiers[src.Tier()], src)
	}

	remaining := totalCalls
	for tier := domain.PriorityHigh; tier <= domain.PriorityLow; tier++ {
		members := tiers[tier]
		if len(members) == 0 || remaining == 0 {
			continue
		}
		sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })

		var tierTotal int
		switch tier {
		case domain.PriorityHigh:
			tierTotal = max(1, totalCalls*tierOneShare/100)
		case domain.PriorityMedium:
			tierTotal = max(1, totalCalls*tierTwoShare/100)
		default:
			tierTotal = remaining
		}

		perSource := max(1, tierTotal/len(members))
		for _, src := range members {
			calls := min(perSource, remaining)
			if calls <= 0 {
				break
			}
			result[src.ID] += calls
			remaining -= calls
		}
	}

	return result
}
