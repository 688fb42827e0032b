package aggregates

import (
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/sparklehq/sparkle/internal/clock"
	"github.com/sparklehq/sparkle/internal/eventstore"
	"github.com/sparklehq/sparkle/internal/types"
)

func newTestStore(t *testing.T) (*eventstore.Store, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	c := clock.NewWithSource(func() time.Time { return time.Unix(0, 0) })
	return eventstore.New(fs, "/data", c), fs
}

func TestUpdateForEvent_BuildsFromEventStore(t *testing.T) {
	store, fs := newTestStore(t)
	if _, err := store.WriteCreated("00000001", types.CreatedBody{
		ItemID: "00000001", Tagline: "write tests", Status: types.StatusIncomplete,
	}); err != nil {
		t.Fatalf("WriteCreated: %v", err)
	}

	mgr := New(store, fs, "/cache")
	if err := mgr.UpdateForEvent("00000001", types.CauseUserEdit); err != nil {
		t.Fatalf("UpdateForEvent: %v", err)
	}

	agg, ok := mgr.Get("00000001")
	if !ok {
		t.Fatal("expected aggregate to exist")
	}
	if agg.Tagline != "write tests" {
		t.Fatalf("tagline = %q", agg.Tagline)
	}
}

func TestOnChange_FiresWithCause(t *testing.T) {
	store, fs := newTestStore(t)
	store.WriteCreated("00000001", types.CreatedBody{ItemID: "00000001", Status: types.StatusIncomplete})

	mgr := New(store, fs, "/cache")
	var gotID string
	var gotCause types.ChangeCause
	mgr.OnChange(func(id string, cause types.ChangeCause) {
		gotID, gotCause = id, cause
	})

	if err := mgr.UpdateForEvent("00000001", types.CauseGitPull); err != nil {
		t.Fatalf("UpdateForEvent: %v", err)
	}
	if gotID != "00000001" || gotCause != types.CauseGitPull {
		t.Fatalf("subscriber got (%q, %q)", gotID, gotCause)
	}
}

func TestInvalidateByFiles_CoversBothDependencyEndpoints(t *testing.T) {
	store, fs := newTestStore(t)
	store.WriteCreated("00000001", types.CreatedBody{ItemID: "00000001", Status: types.StatusIncomplete})
	store.WriteCreated("00000002", types.CreatedBody{ItemID: "00000002", Status: types.StatusIncomplete})
	name, err := store.WriteEvent(types.KindDependency, "00000001", types.PersonOnlyBody{}, string(types.DependencyLinked), "00000002")
	if err != nil {
		t.Fatalf("WriteEvent: %v", err)
	}

	mgr := New(store, fs, "/cache")
	if err := mgr.InvalidateByFiles([]string{name}, types.CauseGitPull); err != nil {
		t.Fatalf("InvalidateByFiles: %v", err)
	}

	dependerAgg, ok := mgr.Get("00000001")
	if !ok || len(dependerAgg.Dependencies) != 1 || dependerAgg.Dependencies[0] != "00000002" {
		t.Fatalf("depender aggregate not updated: %+v ok=%v", dependerAgg, ok)
	}
	dependeeAgg, ok := mgr.Get("00000002")
	if !ok || len(dependeeAgg.Dependents) != 1 || dependeeAgg.Dependents[0] != "00000001" {
		t.Fatalf("dependee aggregate not updated: %+v ok=%v", dependeeAgg, ok)
	}
}

func TestRebuildAll_MatchesIncrementalUpdate(t *testing.T) {
	store, fs := newTestStore(t)
	store.WriteCreated("00000001", types.CreatedBody{ItemID: "00000001", Tagline: "a", Status: types.StatusIncomplete})
	store.WriteEvent(types.KindEntry, "00000001", types.EntryBody{Text: "note"})

	incremental := New(store, fs, "/cache-incremental")
	incremental.UpdateForEvent("00000001", types.CauseUserEdit)

	rebuilt := New(store, fs, "/cache-rebuilt")
	if err := rebuilt.RebuildAll(nil); err != nil {
		t.Fatalf("RebuildAll: %v", err)
	}

	a, _ := incremental.Get("00000001")
	b, _ := rebuilt.Get("00000001")
	if a.Tagline != b.Tagline || len(a.Entries) != len(b.Entries) {
		t.Fatalf("incremental and rebuilt aggregates diverge: %+v vs %+v", a, b)
	}
}
