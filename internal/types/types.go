// Package types holds the data shapes shared by every Sparkle package: the
// person record, the tagged event-kind sum decoded from event filenames
// (§3.2), and the per-item aggregate folded from those events (§3.3).
package types

import "regexp"

// ItemIDPattern is the shape every item identifier must match (§3.1).
var ItemIDPattern = regexp.MustCompile(`^\d{8}$`)

// Person identifies who performed an action and when (§3.1).
type Person struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Timestamp string `json:"timestamp"`
}

// EventKind enumerates the event filename grammar of §3.2.
type EventKind string

const (
	KindCreated    EventKind = "created"
	KindTagline    EventKind = "tagline"
	KindEntry      EventKind = "entry"
	KindStatus     EventKind = "status"
	KindDependency EventKind = "dependency"
	KindMonitor    EventKind = "monitor"
	KindTaken      EventKind = "taken"
	KindIgnored    EventKind = "ignored"
)

// DependencyAction is the action carried by a dependency event filename.
type DependencyAction string

const (
	DependencyLinked   DependencyAction = "linked"
	DependencyUnlinked DependencyAction = "unlinked"
)

// MonitorAction is the action carried by a monitor event filename.
type MonitorAction string

const (
	MonitorAdded   MonitorAction = "added"
	MonitorRemoved MonitorAction = "removed"
)

// TakenAction is the action carried by a taken event filename.
type TakenAction string

const (
	TakenTaken       TakenAction = "taken"
	TakenSurrendered TakenAction = "surrendered"
)

// IgnoredAction is the action carried by an ignored event filename.
type IgnoredAction string

const (
	IgnoredSet     IgnoredAction = "set"
	IgnoredCleared IgnoredAction = "cleared"
)

// Event is the fully decoded form of one event file: the filename grammar
// of §3.2 parsed into a tagged union, plus the JSON body it carries.
type Event struct {
	Filename string
	Kind     EventKind

	// ItemID is the primary-position item for every kind. For dependency
	// events it is the "needing" side.
	ItemID string

	// NeededID is set only for KindDependency; the "needed" side.
	NeededID string

	// PersonHash is set for KindMonitor and KindTaken.
	PersonHash string

	// Timestamp is the 17-char lexicographically sortable string in the
	// filename, empty for the creation event (which carries no <ts>).
	Timestamp string

	// Rand is the random filename disambiguator, empty for the creation
	// event.
	Rand string

	DependencyAction DependencyAction
	MonitorAction    MonitorAction
	TakenAction      TakenAction
	IgnoredAction    IgnoredAction

	Body []byte
}

// CreatedBody is the payload of an item-creation event file.
type CreatedBody struct {
	ItemID  string `json:"itemId"`
	Tagline string `json:"tagline"`
	Status  string `json:"status"`
	Person  Person `json:"person"`
	Created string `json:"created"`
}

// TaglineBody is the payload of a tagline-change event file.
type TaglineBody struct {
	Tagline string `json:"tagline"`
	Person  Person `json:"person"`
}

// EntryBody is the payload of an entry (note) event file.
type EntryBody struct {
	Text   string `json:"text"`
	Person Person `json:"person"`
}

// StatusBody is the payload of a status-change event file.
type StatusBody struct {
	Status string `json:"status"`
	Text   string `json:"text,omitempty"`
	Person Person `json:"person"`
}

// PersonOnlyBody is the payload shared by dependency, monitor, taken and
// ignored event files: only the acting person.
type PersonOnlyBody struct {
	Person Person `json:"person"`
}

// Entry is one chronological note attached to an item (§3.3).
type Entry struct {
	Text   string `json:"text"`
	Person Person `json:"person"`
}

// Aggregate is the derived per-item state folded from event files (§3.3).
type Aggregate struct {
	ItemID       string   `json:"itemId"`
	Tagline      string   `json:"tagline"`
	Status       string   `json:"status"`
	Created      string   `json:"created"`
	Person       Person   `json:"person"`
	Dependencies []string `json:"dependencies"`
	Dependents   []string `json:"dependents"`
	Monitors     []Person `json:"monitors"`
	TakenBy      *Person  `json:"takenBy"`
	Entries      []Entry  `json:"entries"`
	Ignored      bool     `json:"ignored"`

	// SchemaVersion guards cache compatibility; bumped whenever the
	// Aggregate shape changes in a way that requires a full rebuild.
	SchemaVersion int `json:"schemaVersion"`
}

// CurrentSchemaVersion is written into every aggregate cache file and
// checked by the aggregate manager's cheap validation pass (§4.3).
const CurrentSchemaVersion = 1

// ChangeCause explains why an aggregate was (re)written, carried on the
// aggregatesUpdated SSE event (§4.9.2) and passed to aggregates.Manager
// subscribers (§4.3).
type ChangeCause string

const (
	CauseUserEdit      ChangeCause = "user_edit"
	CauseExternalWrite ChangeCause = "external_write"
	CauseGitPull       ChangeCause = "git_pull"
)

// BuiltinStatuses are the non-deletable statuses every project starts
// with (§3.3).
var BuiltinStatuses = []string{"incomplete", "completed"}

const (
	StatusIncomplete = "incomplete"
	StatusCompleted  = "completed"
)
