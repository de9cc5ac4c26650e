package services

import (
	"sort"

	"github.com/tipline/go-tipline-server/types"
)

// Route computes the recipients a submission in the given category is sealed
// to, from an explicit registry snapshot. The result is sorted by recipient id
// so the same snapshot and category always produce the same recipient set in
// the same order. Returns ErrNoRoute when no active recipient handles the
// category; the caller persists nothing in that case.
func Route(snapshot *types.RegistrySnapshot, category string) ([]*types.Recipient, error) {
	eligible := make([]*types.Recipient, 0, len(snapshot.Recipients))
	for _, r := range snapshot.Recipients {
		if !r.Active {
			continue
		}
		if !r.HandlesCategory(category) {
			continue
		}
		eligible = append(eligible, r)
	}
	if len(eligible) == 0 {
		return nil, types.ErrNoRoute
	}
	sort.Slice(eligible, func(i, j int) bool {
		return eligible[i].UnderscoreID < eligible[j].UnderscoreID
	})
	return eligible, nil
}
