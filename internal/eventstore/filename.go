package eventstore

import (
	"fmt"
	"strings"

	"github.com/sparklehq/sparkle/internal/types"
)

// parseFilename decodes the dot-separated grammar of §3.2 into a tagged
// types.Event, populating the body separately. This parse is total against
// the grammar: every field the spec says must be extractable (in
// particular both endpoints of a dependency filename) is always present
// on success, so callers never need to special-case a partial parse
// (Design Note §9: invalidateByFiles must invalidate both endpoints).
func parseFilename(name string) (types.Event, error) {
	trimmed := strings.TrimSuffix(name, ".json")
	if trimmed == name {
		return types.Event{}, fmt.Errorf("eventstore: %q is not a .json file", name)
	}
	parts := strings.Split(trimmed, ".")
	if len(parts) == 0 || !types.ItemIDPattern.MatchString(parts[0]) {
		return types.Event{}, fmt.Errorf("eventstore: %q does not start with an 8-digit item id", name)
	}

	ev := types.Event{Filename: name, ItemID: parts[0]}

	if len(parts) == 1 {
		ev.Kind = types.KindCreated
		return ev, nil
	}

	kind := parts[1]
	switch types.EventKind(kind) {
	case types.KindTagline, types.KindEntry, types.KindStatus:
		if len(parts) != 4 {
			return types.Event{}, fmt.Errorf("eventstore: %q malformed %s filename", name, kind)
		}
		ev.Kind = types.EventKind(kind)
		ev.Timestamp = parts[2]
		ev.Rand = parts[3]
		return ev, nil

	case types.KindDependency:
		if len(parts) != 6 {
			return types.Event{}, fmt.Errorf("eventstore: %q malformed dependency filename", name)
		}
		ev.Kind = types.KindDependency
		action := types.DependencyAction(parts[2])
		if action != types.DependencyLinked && action != types.DependencyUnlinked {
			return types.Event{}, fmt.Errorf("eventstore: %q has unknown dependency action %q", name, parts[2])
		}
		ev.DependencyAction = action
		ev.NeededID = parts[3]
		if !types.ItemIDPattern.MatchString(ev.NeededID) {
			return types.Event{}, fmt.Errorf("eventstore: %q has malformed needed id %q", name, ev.NeededID)
		}
		ev.Timestamp = parts[4]
		ev.Rand = parts[5]
		return ev, nil

	case types.KindMonitor, types.KindTaken:
		if len(parts) != 6 {
			return types.Event{}, fmt.Errorf("eventstore: %q malformed %s filename", name, kind)
		}
		ev.Kind = types.EventKind(kind)
		if types.EventKind(kind) == types.KindMonitor {
			action := types.MonitorAction(parts[2])
			if action != types.MonitorAdded && action != types.MonitorRemoved {
				return types.Event{}, fmt.Errorf("eventstore: %q has unknown monitor action %q", name, parts[2])
			}
			ev.MonitorAction = action
		} else {
			action := types.TakenAction(parts[2])
			if action != types.TakenTaken && action != types.TakenSurrendered {
				return types.Event{}, fmt.Errorf("eventstore: %q has unknown taken action %q", name, parts[2])
			}
			ev.TakenAction = action
		}
		ev.PersonHash = parts[3]
		ev.Timestamp = parts[4]
		ev.Rand = parts[5]
		return ev, nil

	case types.KindIgnored:
		if len(parts) != 5 {
			return types.Event{}, fmt.Errorf("eventstore: %q malformed ignored filename", name)
		}
		ev.Kind = types.KindIgnored
		action := types.IgnoredAction(parts[2])
		if action != types.IgnoredSet && action != types.IgnoredCleared {
			return types.Event{}, fmt.Errorf("eventstore: %q has unknown ignored action %q", name, parts[2])
		}
		ev.IgnoredAction = action
		ev.Timestamp = parts[3]
		ev.Rand = parts[4]
		return ev, nil

	default:
		return types.Event{}, fmt.Errorf("eventstore: %q has unknown event kind %q", name, kind)
	}
}

// buildFilename is the inverse of parseFilename: it assembles a filename
// from the fields a caller is about to write (ts/rand/personHash are
// supplied by the caller, never invented here).
func buildFilename(itemID string, kind types.EventKind, ts, rand string, extras ...string) string {
	segments := append([]string{itemID, string(kind)}, extras...)
	segments = append(segments, ts, rand)
	return strings.Join(segments, ".") + ".json"
}

func createdFilename(itemID string) string {
	return itemID + ".json"
}

// endpoints returns every item id this event's state affects: one for
// most kinds, two for dependency events (§3.2 invariant 3, §4.8 change-
// file discovery).
func endpoints(ev types.Event) []string {
	if ev.Kind == types.KindDependency {
		return []string{ev.ItemID, ev.NeededID}
	}
	return []string{ev.ItemID}
}
