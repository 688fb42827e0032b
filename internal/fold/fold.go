// Package fold implements the pure, deterministic state-builder of §4.2:
// folding an item's event files into its Aggregate. Every function here is
// side-effect free so it can be exercised directly by the fold-determinism
// and fold-commutativity properties of §8.
package fold

import (
	"encoding/json"
	"sort"

	"github.com/sparklehq/sparkle/internal/types"
)

// Build folds every event naming itemID (in primary or dependency-needed
// position, per eventstore.ListEventFilesForItem) into an Aggregate.
// Folding is order-independent: every field below is computed by picking
// the event with the greatest Timestamp (ties broken by Rand) within its
// own category, never by replaying events in file order.
func Build(itemID string, created types.CreatedBody, events []types.Event) types.Aggregate {
	agg := types.Aggregate{
		ItemID:        itemID,
		Tagline:       created.Tagline,
		Status:        created.Status,
		Created:       created.Created,
		Person:        created.Person,
		Dependencies:  []string{},
		Dependents:    []string{},
		Monitors:      []types.Person{},
		Entries:       []types.Entry{},
		SchemaVersion: types.CurrentSchemaVersion,
	}

	var (
		latestTagline *types.Event
		latestStatus  *types.Event
		dependencies  = map[string]types.Event{} // neededID -> latest dependency event where itemID is the needing side
		dependents    = map[string]types.Event{} // needingID(==other item) -> latest dependency event where itemID is the needed side
		monitors      = map[string]types.Event{} // personHash -> latest monitor event
		takens        = map[string]types.Event{} // personHash -> latest taken event (across every person who ever took it)
		latestIgnored *types.Event
	)

	for i := range events {
		ev := events[i]
		switch ev.Kind {
		case types.KindTagline:
			if isLater(latestTagline, &ev) {
				latestTagline = &events[i]
			}
		case types.KindStatus:
			if isLater(latestStatus, &ev) {
				latestStatus = &events[i]
			}
		case types.KindEntry:
			agg.Entries = append(agg.Entries, entryFromEvent(ev))
		case types.KindDependency:
			if ev.ItemID == itemID {
				if cur, ok := dependencies[ev.NeededID]; !ok || isLater(&cur, &ev) {
					dependencies[ev.NeededID] = ev
				}
			}
			if ev.NeededID == itemID {
				if cur, ok := dependents[ev.ItemID]; !ok || isLater(&cur, &ev) {
					dependents[ev.ItemID] = ev
				}
			}
		case types.KindMonitor:
			if cur, ok := monitors[ev.PersonHash]; !ok || isLater(&cur, &ev) {
				monitors[ev.PersonHash] = ev
			}
		case types.KindTaken:
			if cur, ok := takens[ev.PersonHash]; !ok || isLater(&cur, &ev) {
				takens[ev.PersonHash] = ev
			}
		case types.KindIgnored:
			if isLater(latestIgnored, &ev) {
				latestIgnored = &events[i]
			}
		}
	}

	if latestTagline != nil {
		var body types.TaglineBody
		if decode(latestTagline.Body, &body) {
			agg.Tagline = body.Tagline
		}
	}
	if latestStatus != nil {
		var body types.StatusBody
		if decode(latestStatus.Body, &body) {
			agg.Status = body.Status
		}
	}
	if latestIgnored != nil {
		agg.Ignored = latestIgnored.IgnoredAction == types.IgnoredSet
	}

	for needed, ev := range dependencies {
		if ev.DependencyAction == types.DependencyLinked {
			agg.Dependencies = append(agg.Dependencies, needed)
		}
	}
	for needing, ev := range dependents {
		if ev.DependencyAction == types.DependencyLinked {
			agg.Dependents = append(agg.Dependents, needing)
		}
	}
	sort.Strings(agg.Dependencies)
	sort.Strings(agg.Dependents)

	for _, ev := range monitors {
		if ev.MonitorAction != types.MonitorAdded {
			continue
		}
		var body types.PersonOnlyBody
		if decode(ev.Body, &body) {
			agg.Monitors = append(agg.Monitors, body.Person)
		}
	}
	sort.Slice(agg.Monitors, func(i, j int) bool { return agg.Monitors[i].Email < agg.Monitors[j].Email })

	var latestTaken *types.Event
	for i := range takens {
		ev := takens[i]
		if isLater(latestTaken, &ev) {
			e := ev
			latestTaken = &e
		}
	}
	if latestTaken != nil && latestTaken.TakenAction == types.TakenTaken {
		var body types.PersonOnlyBody
		if decode(latestTaken.Body, &body) {
			agg.TakenBy = &body.Person
		}
	}

	sort.Slice(agg.Entries, func(i, j int) bool {
		return agg.Entries[i].Person.Timestamp < agg.Entries[j].Person.Timestamp
	})

	return agg
}

// isLater reports whether candidate sorts strictly after current by
// (Timestamp, Rand), treating a nil current as "always later".
func isLater(current, candidate *types.Event) bool {
	if current == nil {
		return true
	}
	if candidate.Timestamp != current.Timestamp {
		return candidate.Timestamp > current.Timestamp
	}
	return candidate.Rand > current.Rand
}

func entryFromEvent(ev types.Event) types.Entry {
	var body types.EntryBody
	if !decode(ev.Body, &body) {
		return types.Entry{}
	}
	return types.Entry{Text: body.Text, Person: body.Person}
}

func decode(data []byte, v interface{}) bool {
	if len(data) == 0 {
		return false
	}
	return json.Unmarshal(data, v) == nil
}
