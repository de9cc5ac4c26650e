package services

import (
	"errors"
	"testing"

	"github.com/tipline/go-tipline-server/types"
	"github.com/tj/assert"
)

func snapshotWith(recipients ...*types.Recipient) *types.RegistrySnapshot {
	return &types.RegistrySnapshot{Version: 1, Recipients: recipients}
}

func recipient(id string, active bool, tags ...string) *types.Recipient {
	r := &types.Recipient{
		Name:   "r-" + id,
		Role:   types.RecipientRoleHandler,
		Tags:   tags,
		Active: active,
	}
	r.UnderscoreID = id
	return r
}

func TestRouteDeterministic(t *testing.T) {
	snapshot := snapshotWith(
		recipient("charlie", true, "corruption"),
		recipient("alice", true),
		recipient("bob", true, "corruption", "environment"),
	)

	first, err := Route(snapshot, "corruption")
	assert.NoError(t, err)

	ids := make([]string, 0, len(first))
	for _, r := range first {
		ids = append(ids, r.UnderscoreID)
	}
	assert.Equal(t, []string{"alice", "bob", "charlie"}, ids)

	// same snapshot, same category, same result every time
	for i := 0; i < 10; i++ {
		again, err := Route(snapshot, "corruption")
		assert.NoError(t, err)
		assert.Equal(t, len(first), len(again))
		for j := range again {
			assert.Equal(t, first[j].UnderscoreID, again[j].UnderscoreID)
		}
	}
}

func TestRouteUntaggedHandlesEverything(t *testing.T) {
	snapshot := snapshotWith(recipient("alice", true))

	routed, err := Route(snapshot, "anything-at-all")
	assert.NoError(t, err)
	assert.Equal(t, 1, len(routed))
	assert.Equal(t, "alice", routed[0].UnderscoreID)
}

func TestRouteSkipsInactiveAndMismatched(t *testing.T) {
	snapshot := snapshotWith(
		recipient("alice", false),
		recipient("bob", true, "environment"),
	)

	routed, err := Route(snapshot, "corruption")
	assert.Nil(t, routed)
	assert.True(t, errors.Is(err, types.ErrNoRoute))
}

func TestRouteEmptyRegistry(t *testing.T) {
	_, err := Route(snapshotWith(), "corruption")
	assert.True(t, errors.Is(err, types.ErrNoRoute))
}

func TestRouteRevocationIsNotRetroactive(t *testing.T) {
	snapshot := snapshotWith(
		recipient("alice", true),
		recipient("bob", true),
	)

	routed, err := Route(snapshot, "corruption")
	assert.NoError(t, err)
	assert.Equal(t, 2, len(routed))

	// revocation only changes future snapshots
	revoked := snapshotWith(
		recipient("alice", false),
		recipient("bob", true),
	)
	afterRevoke, err := Route(revoked, "corruption")
	assert.NoError(t, err)
	assert.Equal(t, 1, len(afterRevoke))
	assert.Equal(t, "bob", afterRevoke[0].UnderscoreID)

	// the earlier snapshot still routes to both
	before, err := Route(snapshot, "corruption")
	assert.NoError(t, err)
	assert.Equal(t, 2, len(before))
}
