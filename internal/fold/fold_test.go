package fold

import (
	"encoding/json"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/sparklehq/sparkle/internal/types"
)

func mustJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func TestBuild_LatestStatusWins(t *testing.T) {
	created := types.CreatedBody{Tagline: "fix the thing", Status: "incomplete"}
	events := []types.Event{
		{Kind: types.KindStatus, Timestamp: "20260101000000001", Rand: "a", Body: mustJSON(t, types.StatusBody{Status: "completed"})},
		{Kind: types.KindStatus, Timestamp: "20260101000000000", Rand: "a", Body: mustJSON(t, types.StatusBody{Status: "incomplete"})},
	}
	agg := Build("00000001", created, events)
	if agg.Status != "completed" {
		t.Fatalf("status = %q, want completed", agg.Status)
	}
}

func TestBuild_OrderIndependent(t *testing.T) {
	created := types.CreatedBody{Tagline: "t", Status: "incomplete"}
	events := []types.Event{
		{Kind: types.KindDependency, ItemID: "00000001", NeededID: "00000002", DependencyAction: types.DependencyLinked, Timestamp: "20260101000000000", Rand: "a"},
		{Kind: types.KindDependency, ItemID: "00000001", NeededID: "00000002", DependencyAction: types.DependencyUnlinked, Timestamp: "20260101000000001", Rand: "a"},
		{Kind: types.KindMonitor, ItemID: "00000001", PersonHash: "p1", MonitorAction: types.MonitorAdded, Timestamp: "20260101000000000", Rand: "a", Body: mustJSON(t, types.PersonOnlyBody{Person: types.Person{Name: "A", Email: "a@x.com"}})},
	}

	first := Build("00000001", created, events)

	shuffled := append([]types.Event(nil), events...)
	rand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	second := Build("00000001", created, shuffled)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("fold not order-independent (-first +shuffled):\n%s", diff)
	}
	if len(first.Dependencies) != 0 {
		t.Fatalf("expected unlinked dependency to be absent, got %v", first.Dependencies)
	}
}

func TestBuild_EntriesSortedByTimestamp(t *testing.T) {
	created := types.CreatedBody{Tagline: "t", Status: "incomplete"}
	events := []types.Event{
		{Kind: types.KindEntry, Body: mustJSON(t, types.EntryBody{Text: "second", Person: types.Person{Timestamp: "2"}})},
		{Kind: types.KindEntry, Body: mustJSON(t, types.EntryBody{Text: "first", Person: types.Person{Timestamp: "1"}})},
	}
	agg := Build("00000001", created, events)
	if len(agg.Entries) != 2 || agg.Entries[0].Text != "first" || agg.Entries[1].Text != "second" {
		t.Fatalf("entries not sorted: %+v", agg.Entries)
	}
}

func TestBuild_TakenAcrossMultiplePeople(t *testing.T) {
	created := types.CreatedBody{Tagline: "t", Status: "incomplete"}
	alice := types.PersonOnlyBody{Person: types.Person{Name: "Alice", Email: "alice@x.com"}}
	bob := types.PersonOnlyBody{Person: types.Person{Name: "Bob", Email: "bob@x.com"}}
	events := []types.Event{
		{Kind: types.KindTaken, PersonHash: "alice", TakenAction: types.TakenTaken, Timestamp: "20260101000000000", Rand: "a", Body: mustJSON(t, alice)},
		{Kind: types.KindTaken, PersonHash: "alice", TakenAction: types.TakenSurrendered, Timestamp: "20260101000000001", Rand: "a", Body: mustJSON(t, alice)},
		{Kind: types.KindTaken, PersonHash: "bob", TakenAction: types.TakenTaken, Timestamp: "20260101000000002", Rand: "a", Body: mustJSON(t, bob)},
	}
	agg := Build("00000001", created, events)
	if agg.TakenBy == nil || agg.TakenBy.Email != "bob@x.com" {
		t.Fatalf("expected bob to hold the item, got %+v", agg.TakenBy)
	}
}
