package sparkleapi

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/sparklehq/sparkle/internal/types"
)

// AuditEntry is one human-readable line of an item's history, derived
// from a single event file (§4.6's audit trail read path).
type AuditEntry struct {
	Filename    string `json:"filename"`
	Timestamp   string `json:"timestamp"`
	RelativeAge string `json:"relativeAge"`
	Person      string `json:"person"`
	Description string `json:"description"`
}

// GetItemAuditTrail reconstructs a chronological, human-readable history
// of itemID from its raw event files, resolving cross-references (a
// dependency's other endpoint) to that item's current tagline where
// possible.
func (a *API) GetItemAuditTrail(itemID string) ([]AuditEntry, error) {
	if err := a.requireExists(itemID); err != nil {
		return nil, err
	}

	events, err := a.store.ListEventFilesForItem(itemID)
	if err != nil {
		return nil, &Error{Kind: ErrFatal, Message: "reading event history failed", Detail: err.Error()}
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].Timestamp < events[j].Timestamp })

	out := make([]AuditEntry, 0, len(events)+1)
	if created, err := a.readCreationEntry(itemID); err == nil {
		out = append(out, created)
	}
	for _, ev := range events {
		entry, ok := a.describeEvent(itemID, ev)
		if !ok {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

func (a *API) readCreationEntry(itemID string) (AuditEntry, error) {
	ev, err := a.store.ReadEvent(itemID + ".json")
	if err != nil {
		return AuditEntry{}, err
	}
	var body types.CreatedBody
	if json.Unmarshal(ev.Body, &body) != nil {
		return AuditEntry{}, fmt.Errorf("malformed creation event")
	}
	return AuditEntry{
		Filename:    ev.Filename,
		Timestamp:   body.Created,
		RelativeAge: relativeAge(body.Created),
		Person:      body.Person.Name,
		Description: fmt.Sprintf("created with tagline %q and status %q", body.Tagline, body.Status),
	}, nil
}

func (a *API) describeEvent(itemID string, ev types.Event) (AuditEntry, bool) {
	entry := AuditEntry{
		Filename:    ev.Filename,
		Timestamp:   ev.Timestamp,
		RelativeAge: relativeAge(ev.Timestamp),
	}

	switch ev.Kind {
	case types.KindTagline:
		var body types.TaglineBody
		if json.Unmarshal(ev.Body, &body) != nil {
			return entry, false
		}
		entry.Person = body.Person.Name
		entry.Description = fmt.Sprintf("changed tagline to %q", body.Tagline)

	case types.KindEntry:
		var body types.EntryBody
		if json.Unmarshal(ev.Body, &body) != nil {
			return entry, false
		}
		entry.Person = body.Person.Name
		entry.Description = fmt.Sprintf("added entry: %s", body.Text)

	case types.KindStatus:
		var body types.StatusBody
		if json.Unmarshal(ev.Body, &body) != nil {
			return entry, false
		}
		entry.Person = body.Person.Name
		if body.Text != "" {
			entry.Description = fmt.Sprintf("changed status to %q (%s)", body.Status, body.Text)
		} else {
			entry.Description = fmt.Sprintf("changed status to %q", body.Status)
		}

	case types.KindDependency:
		var body types.PersonOnlyBody
		if json.Unmarshal(ev.Body, &body) != nil {
			return entry, false
		}
		entry.Person = body.Person.Name
		// A dependency event touches both endpoints (§3.2 invariant 1):
		// phrase it relative to whichever side this audit trail is for.
		if itemID == ev.ItemID {
			other := a.describeOtherItem(ev.NeededID)
			if ev.DependencyAction == types.DependencyLinked {
				entry.Description = fmt.Sprintf("added dependency on %s", other)
			} else {
				entry.Description = fmt.Sprintf("removed dependency on %s", other)
			}
		} else {
			other := a.describeOtherItem(ev.ItemID)
			if ev.DependencyAction == types.DependencyLinked {
				entry.Description = fmt.Sprintf("%s added a dependency on this item", other)
			} else {
				entry.Description = fmt.Sprintf("%s removed its dependency on this item", other)
			}
		}

	case types.KindMonitor:
		var body types.PersonOnlyBody
		if json.Unmarshal(ev.Body, &body) != nil {
			return entry, false
		}
		entry.Person = body.Person.Name
		if ev.MonitorAction == types.MonitorAdded {
			entry.Description = "started monitoring this item"
		} else {
			entry.Description = "stopped monitoring this item"
		}

	case types.KindTaken:
		var body types.PersonOnlyBody
		if json.Unmarshal(ev.Body, &body) != nil {
			return entry, false
		}
		entry.Person = body.Person.Name
		if ev.TakenAction == types.TakenTaken {
			entry.Description = "took this item"
		} else {
			entry.Description = "surrendered this item"
		}

	case types.KindIgnored:
		var body types.PersonOnlyBody
		if json.Unmarshal(ev.Body, &body) != nil {
			return entry, false
		}
		entry.Person = body.Person.Name
		if ev.IgnoredAction == types.IgnoredSet {
			entry.Description = "marked this item as ignored"
		} else {
			entry.Description = "cleared the ignored flag"
		}

	default:
		return entry, false
	}

	return entry, true
}

// describeOtherItem resolves the other endpoint of a dependency event to
// a readable "itemId: tagline" label, falling back to a MISSING marker
// when the referenced item's aggregate can't be found (e.g. its creation
// event hasn't synced yet).
func (a *API) describeOtherItem(itemID string) string {
	if itemID == "" {
		return "(unknown item)"
	}
	agg, ok := a.mgr.Get(itemID)
	if !ok {
		return fmt.Sprintf("%s (MISSING)", itemID)
	}
	return fmt.Sprintf("%s: %s", itemID, agg.Tagline)
}

// relativeAge formats a §3.1 17-character timestamp as a humanized
// relative duration, returning the raw string unchanged if it can't be
// parsed (e.g. the empty creation-event timestamp placeholder).
func relativeAge(ts string) string {
	if len(ts) < 14 {
		return ts
	}
	t, err := time.Parse("20060102150405", ts[:14])
	if err != nil {
		return ts
	}
	return humanize.Time(t)
}
