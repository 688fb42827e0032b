package sparkleapi

import "testing"

func TestGetItemAuditTrail_IncludesCreationAndSubsequentEvents(t *testing.T) {
	api, _ := newTestAPI(t)
	item, err := api.CreateItem("ship the thing", "", "")
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	if err := api.AddEntry(item.ItemID, "started investigating"); err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	if err := api.UpdateStatus(item.ItemID, "completed", "done"); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	trail, err := api.GetItemAuditTrail(item.ItemID)
	if err != nil {
		t.Fatalf("GetItemAuditTrail: %v", err)
	}
	if len(trail) != 3 {
		t.Fatalf("expected 3 audit entries, got %d: %+v", len(trail), trail)
	}
	if trail[0].Description == "" || trail[1].Description == "" || trail[2].Description == "" {
		t.Fatalf("expected every entry to have a description, got %+v", trail)
	}
}

func TestGetItemAuditTrail_DescribesDependencyFromBothEndpoints(t *testing.T) {
	api, _ := newTestAPI(t)
	needing, _ := api.CreateItem("needs other", "", "")
	needed, _ := api.CreateItem("is needed", "", "")

	if err := api.AddDependency(needing.ItemID, needed.ItemID); err != nil {
		t.Fatalf("AddDependency: %v", err)
	}

	needingTrail, err := api.GetItemAuditTrail(needing.ItemID)
	if err != nil {
		t.Fatalf("GetItemAuditTrail(needing): %v", err)
	}
	needingDesc := needingTrail[len(needingTrail)-1].Description
	if needingDesc == "" {
		t.Fatal("expected a description for the needing side")
	}

	neededTrail, err := api.GetItemAuditTrail(needed.ItemID)
	if err != nil {
		t.Fatalf("GetItemAuditTrail(needed): %v", err)
	}
	neededDesc := neededTrail[len(neededTrail)-1].Description
	if neededDesc == "" {
		t.Fatal("expected a description for the needed side")
	}
	if neededDesc == needingDesc {
		t.Fatalf("expected the two endpoints to be described differently, both were %q", needingDesc)
	}
}

func TestGetItemAuditTrail_UnknownItem(t *testing.T) {
	api, _ := newTestAPI(t)
	if _, err := api.GetItemAuditTrail("00000000"); err == nil {
		t.Fatal("expected not-found error")
	}
}
