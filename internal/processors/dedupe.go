package processors

import (
	"forecastbot/internal/types"
)

// Partition splits a filtered batch into items whose identifier is not yet in
// the identity set and items that are. Every input item lands in exactly one
// of the two slices, and input order is preserved within each.
func Partition(batch []*types.Opportunity, seen types.Membership) (newItems, seenItems []*types.Opportunity) {
	newItems = make([]*types.Opportunity, 0, len(batch))
	seenItems = make([]*types.Opportunity, 0)

	for _, opp := range batch {
		if seen.Contains(opp.ID) {
			seenItems = append(seenItems, opp)
			continue
		}
		newItems = append(newItems, opp)
	}

	return newItems, seenItems
}
