package carpool

import (
	"context"
	"testing"

	"carpool/internal/types"
)

func TestMemoryStoreGroupsDoNotAlias(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	g := &Group{HostBookingID: 1, Status: GroupActive, MemberBookingIDs: []int64{}}
	if err := store.CreateGroup(ctx, g); err != nil {
		t.Fatalf("create group: %v", err)
	}

	route := &CombinedRoute{
		Waypoints:       []Waypoint{{BookingID: 1, Type: WaypointPickup, Point: &types.Point{Lat: 25.04, Lng: 121.51}}},
		TotalDistanceKm: 10,
	}
	err := store.InTx(ctx, func(tx Tx) error {
		_, err := tx.UpdateGroupState(ctx, g.ID, GroupUpdate{From: GroupActive, To: GroupMerged, Members: []int64{2}, Route: route})
		return err
	})
	if err != nil {
		t.Fatalf("update group: %v", err)
	}
	route.TotalDistanceKm = 99
	route.Waypoints[0].Point.Lat = 0

	cost := SharedCost{Mode: CostEqual, Shares: []CostShare{{BookingID: 1, Amount: 5}}}
	if ok, err := store.UpdateSharedCost(ctx, g.ID, cost, "u_admin"); err != nil || !ok {
		t.Fatalf("update cost: ok=%v err=%v", ok, err)
	}
	cost.Shares[0].Amount = 0

	got, err := store.GetGroup(ctx, g.ID)
	if err != nil {
		t.Fatalf("get group: %v", err)
	}
	got.CombinedRoute.Waypoints[0].BookingID = 42
	got.SharedCost.Shares[0].BookingID = 42
	*got.CostMode = CostProportionalDistance

	again, _ := store.GetGroup(ctx, g.ID)
	r := again.CombinedRoute
	if r.TotalDistanceKm != 10 || r.Waypoints[0].Point.Lat != 25.04 || r.Waypoints[0].BookingID != 1 {
		t.Fatalf("stored route changed through a caller pointer: %+v", r)
	}
	s := again.SharedCost.Shares[0]
	if s.Amount != 5 || s.BookingID != 1 {
		t.Fatalf("stored cost changed through a caller pointer: %+v", s)
	}
	if *again.CostMode != CostEqual {
		t.Fatalf("cost mode = %s, want EQUAL", *again.CostMode)
	}
}
