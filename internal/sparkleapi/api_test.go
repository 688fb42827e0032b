package sparkleapi

import (
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/sparklehq/sparkle/internal/aggregates"
	"github.com/sparklehq/sparkle/internal/clock"
	"github.com/sparklehq/sparkle/internal/eventstore"
)

type noopScheduler struct{ notified []string }

func (s *noopScheduler) NotifyFileCreated(filename string) { s.notified = append(s.notified, filename) }

func testIdentity() (string, string, string, error) {
	return "Ada Lovelace", "ada@example.com", "deadbeefcafebabe", nil
}

func newTestAPI(t *testing.T) (*API, *noopScheduler) {
	t.Helper()
	fs := afero.NewMemMapFs()
	c := clock.NewWithSource(func() time.Time { return time.Unix(0, 0) })
	store := eventstore.New(fs, "/data", c)
	mgr := aggregates.New(store, fs, "/cache")
	sched := &noopScheduler{}
	return New(store, mgr, sched, testIdentity, c), sched
}

func TestCreateItem(t *testing.T) {
	api, sched := newTestAPI(t)
	agg, err := api.CreateItem("write more tests", "", "")
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	if agg.Tagline != "write more tests" || agg.Status != "incomplete" {
		t.Fatalf("unexpected aggregate: %+v", agg)
	}
	if len(sched.notified) != 1 {
		t.Fatalf("expected scheduler to be notified once, got %d", len(sched.notified))
	}
}

func TestCreateItem_RejectsEmptyTagline(t *testing.T) {
	api, _ := newTestAPI(t)
	if _, err := api.CreateItem("   ", "", ""); err == nil {
		t.Fatal("expected validation error for empty tagline")
	} else if apiErr, ok := err.(*Error); !ok || apiErr.Kind != ErrValidation {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestCreateItem_WithInitialEntryAlsoEmitsAnEntry(t *testing.T) {
	api, sched := newTestAPI(t)
	agg, err := api.CreateItem("write more tests", "", "seed note")
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	if len(agg.Entries) != 1 || agg.Entries[0].Text != "seed note" {
		t.Fatalf("expected one seeded entry, got %+v", agg.Entries)
	}
	// One notification for the creation file, one for the entry file.
	if len(sched.notified) != 2 {
		t.Fatalf("expected scheduler to be notified twice, got %d", len(sched.notified))
	}
}

func TestCreateItem_WithoutInitialEntryEmitsNoEntry(t *testing.T) {
	api, _ := newTestAPI(t)
	agg, err := api.CreateItem("write more tests", "", "")
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	if len(agg.Entries) != 0 {
		t.Fatalf("expected no entries, got %+v", agg.Entries)
	}
}

func TestAddDependency_RejectsCycle(t *testing.T) {
	api, _ := newTestAPI(t)
	a, _ := api.CreateItem("a", "", "")
	b, _ := api.CreateItem("b", "", "")

	if err := api.AddDependency(a.ItemID, b.ItemID); err != nil {
		t.Fatalf("AddDependency a->b: %v", err)
	}
	err := api.AddDependency(b.ItemID, a.ItemID)
	if err == nil {
		t.Fatal("expected cycle error")
	}
	if apiErr, ok := err.(*Error); !ok || apiErr.Kind != ErrCycle {
		t.Fatalf("expected ErrCycle, got %v", err)
	}
}

func TestTakeItem_ImplicitlySurrendersPreviousItem(t *testing.T) {
	api, _ := newTestAPI(t)
	first, _ := api.CreateItem("first", "", "")
	second, _ := api.CreateItem("second", "", "")

	if err := api.TakeItem(first.ItemID); err != nil {
		t.Fatalf("TakeItem first: %v", err)
	}
	if err := api.TakeItem(second.ItemID); err != nil {
		t.Fatalf("TakeItem second: %v", err)
	}

	firstAgg, _ := api.GetItemDetails(first.ItemID)
	if firstAgg.TakenBy != nil {
		t.Fatalf("expected first item to be surrendered, got %+v", firstAgg.TakenBy)
	}
	secondAgg, _ := api.GetItemDetails(second.ItemID)
	if secondAgg.TakenBy == nil || secondAgg.TakenBy.Email != "ada@example.com" {
		t.Fatalf("expected second item taken by ada, got %+v", secondAgg.TakenBy)
	}
}

func TestPendingWork_ExcludesBlockedAndCompleted(t *testing.T) {
	api, _ := newTestAPI(t)
	blocker, _ := api.CreateItem("blocker", "", "")
	blocked, _ := api.CreateItem("blocked", "", "")
	if err := api.AddDependency(blocked.ItemID, blocker.ItemID); err != nil {
		t.Fatalf("AddDependency: %v", err)
	}

	pending, err := api.PendingWork()
	if err != nil {
		t.Fatalf("PendingWork: %v", err)
	}
	ids := map[string]bool{}
	for _, agg := range pending {
		ids[agg.ItemID] = true
	}
	if !ids[blocker.ItemID] {
		t.Fatal("blocker should be pending")
	}
	if ids[blocked.ItemID] {
		t.Fatal("blocked item should not be pending until blocker completes")
	}

	if err := api.UpdateStatus(blocker.ItemID, "completed", ""); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	pending, err = api.PendingWork()
	if err != nil {
		t.Fatalf("PendingWork: %v", err)
	}
	ids = map[string]bool{}
	for _, agg := range pending {
		ids[agg.ItemID] = true
	}
	if !ids[blocked.ItemID] {
		t.Fatal("blocked item should become pending once blocker completes")
	}
}
