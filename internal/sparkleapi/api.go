package sparkleapi

import (
	"fmt"
	"math/rand"
	"regexp"
	"sort"
	"strings"

	"github.com/sparklehq/sparkle/internal/aggregates"
	"github.com/sparklehq/sparkle/internal/clock"
	"github.com/sparklehq/sparkle/internal/eventstore"
	"github.com/sparklehq/sparkle/internal/graph"
	"github.com/sparklehq/sparkle/internal/types"
)

// Scheduler is the subset of the commit scheduler this package depends
// on: arming it after every successful write (§4.5's last step).
type Scheduler interface {
	NotifyFileCreated(filename string)
}

// Identity resolves the local person for every write, re-read on each
// call so a mid-session git-config edit takes effect immediately.
type Identity func() (name, email, personHash string, err error)

// API is the single entry point used by the daemon's HTTP handlers; the
// CLI reaches it only through those handlers.
type API struct {
	store     *eventstore.Store
	mgr       *aggregates.Manager
	scheduler Scheduler
	identity  Identity
	clock     *clock.Clock
}

// New constructs an API bound to the given store, aggregate manager,
// commit scheduler, local-identity resolver, and timestamp clock.
func New(store *eventstore.Store, mgr *aggregates.Manager, scheduler Scheduler, identity Identity, c *clock.Clock) *API {
	return &API{store: store, mgr: mgr, scheduler: scheduler, identity: identity, clock: c}
}

func (a *API) person(_ string) (types.Person, error) {
	name, email, _, err := a.identity()
	if err != nil {
		return types.Person{}, &Error{Kind: ErrConfigMissing, Message: "local git identity not configured", Detail: err.Error()}
	}
	return types.Person{Name: name, Email: email, Timestamp: a.clock.Next()}, nil
}

func (a *API) personHash() (string, error) {
	_, _, hash, err := a.identity()
	if err != nil {
		return "", &Error{Kind: ErrConfigMissing, Message: "local git identity not configured", Detail: err.Error()}
	}
	return hash, nil
}

func (a *API) write(itemID string, kind types.EventKind, payload interface{}, extras ...string) error {
	name, err := a.store.WriteEvent(kind, itemID, payload, extras...)
	if err != nil {
		return &Error{Kind: ErrConcurrencyConflict, Message: "writing event failed", Detail: err.Error()}
	}
	if err := a.mgr.UpdateForEvent(itemID, types.CauseUserEdit); err != nil {
		return &Error{Kind: ErrFatal, Message: "updating aggregate failed", Detail: err.Error()}
	}
	a.scheduler.NotifyFileCreated(name)
	return nil
}

func (a *API) exists(itemID string) bool {
	_, ok := a.mgr.Get(itemID)
	return ok
}

func (a *API) requireExists(itemID string) error {
	if !a.exists(itemID) {
		return notFoundErr(itemID)
	}
	return nil
}

// CreateItem creates a new item with the given tagline and initial status
// (defaulting to "incomplete"), generating a fresh 8-digit id. If
// initialEntry is non-empty, an entry event is emitted immediately after
// the creation event (§4.5 step 1: "createItem(tagline, status=incomplete,
// initialEntry?)").
func (a *API) CreateItem(tagline, status, initialEntry string) (types.Aggregate, error) {
	tagline = strings.TrimSpace(tagline)
	if tagline == "" {
		return types.Aggregate{}, validationErr("tagline must not be empty")
	}
	if status == "" {
		status = types.StatusIncomplete
	}
	if !a.isValidStatus(status) {
		return types.Aggregate{}, validationErr("unknown status %q", status)
	}

	itemID, err := a.freshItemID()
	if err != nil {
		return types.Aggregate{}, err
	}

	person, err := a.person("")
	if err != nil {
		return types.Aggregate{}, err
	}

	body := types.CreatedBody{ItemID: itemID, Tagline: tagline, Status: status, Person: person, Created: person.Timestamp}
	if _, err := a.store.WriteCreated(itemID, body); err != nil {
		return types.Aggregate{}, &Error{Kind: ErrConcurrencyConflict, Message: "writing creation event failed", Detail: err.Error()}
	}
	if err := a.mgr.UpdateForEvent(itemID, types.CauseUserEdit); err != nil {
		return types.Aggregate{}, &Error{Kind: ErrFatal, Message: "updating aggregate failed", Detail: err.Error()}
	}
	a.scheduler.NotifyFileCreated(itemID + ".json")

	initialEntry = strings.TrimSpace(initialEntry)
	if initialEntry != "" {
		if err := a.AddEntry(itemID, initialEntry); err != nil {
			return types.Aggregate{}, err
		}
	}

	agg, _ := a.mgr.Get(itemID)
	return agg, nil
}

var itemIDDigits = regexp.MustCompile(`^\d{8}$`)

func (a *API) freshItemID() (string, error) {
	for attempt := 0; attempt < 20; attempt++ {
		candidate := fmt.Sprintf("%08d", rand.Intn(100000000))
		if !itemIDDigits.MatchString(candidate) {
			continue
		}
		has, err := a.store.HasCreationFile(candidate)
		if err != nil {
			return "", &Error{Kind: ErrFatal, Message: "checking item id availability failed", Detail: err.Error()}
		}
		if !has {
			return candidate, nil
		}
	}
	return "", &Error{Kind: ErrFatal, Message: "could not allocate a free item id"}
}

// AddEntry appends a chronological note to an item (§4.5).
func (a *API) AddEntry(itemID, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return validationErr("entry text must not be empty")
	}
	if err := a.requireExists(itemID); err != nil {
		return err
	}
	person, err := a.person("")
	if err != nil {
		return err
	}
	return a.write(itemID, types.KindEntry, types.EntryBody{Text: text, Person: person})
}

// AlterTagline changes an item's tagline.
func (a *API) AlterTagline(itemID, tagline string) error {
	tagline = strings.TrimSpace(tagline)
	if tagline == "" {
		return validationErr("tagline must not be empty")
	}
	if err := a.requireExists(itemID); err != nil {
		return err
	}
	person, err := a.person("")
	if err != nil {
		return err
	}
	return a.write(itemID, types.KindTagline, types.TaglineBody{Tagline: tagline, Person: person})
}

// UpdateStatus transitions an item to a new status, with an optional note
// attached in the same event.
func (a *API) UpdateStatus(itemID, status, text string) error {
	if err := a.requireExists(itemID); err != nil {
		return err
	}
	if !a.isValidStatus(status) {
		return validationErr("unknown status %q", status)
	}
	person, err := a.person("")
	if err != nil {
		return err
	}
	return a.write(itemID, types.KindStatus, types.StatusBody{Status: status, Text: text, Person: person})
}

func (a *API) isValidStatus(status string) bool {
	for _, s := range a.mgr.Statuses() {
		if s == status {
			return true
		}
	}
	return false
}

// UpdateStatuses registers a new custom status name, available to every
// subsequent UpdateStatus call (§3.3's extensible status set).
func (a *API) UpdateStatuses(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return validationErr("status name must not be empty")
	}
	a.mgr.AddStatus(name)
	return nil
}

// AddDependency records that itemID needs neededID to be completed
// first, rejecting the write if it would create a cycle (§4.4, §4.5).
func (a *API) AddDependency(itemID, neededID string) error {
	if err := a.requireExists(itemID); err != nil {
		return err
	}
	if err := a.requireExists(neededID); err != nil {
		return err
	}
	if graph.WouldCreateCycle(itemID, neededID, a.mgr.Get) {
		return cycleErr(itemID, neededID)
	}
	person, err := a.person("")
	if err != nil {
		return err
	}
	if err := a.write(itemID, types.KindDependency, types.PersonOnlyBody{Person: person}, string(types.DependencyLinked), neededID); err != nil {
		return err
	}
	// The needed side's Dependents list also changed; refresh it too so
	// a reader of neededID sees the new edge without waiting for a
	// separate invalidation pass.
	return a.mgr.UpdateForEvent(neededID, types.CauseUserEdit)
}

// RemoveDependency undoes a previously added dependency edge.
func (a *API) RemoveDependency(itemID, neededID string) error {
	if err := a.requireExists(itemID); err != nil {
		return err
	}
	person, err := a.person("")
	if err != nil {
		return err
	}
	if err := a.write(itemID, types.KindDependency, types.PersonOnlyBody{Person: person}, string(types.DependencyUnlinked), neededID); err != nil {
		return err
	}
	return a.mgr.UpdateForEvent(neededID, types.CauseUserEdit)
}

// AddMonitor subscribes the local person to an item's future changes.
func (a *API) AddMonitor(itemID string) error {
	if err := a.requireExists(itemID); err != nil {
		return err
	}
	person, err := a.person("")
	if err != nil {
		return err
	}
	hash, err := a.personHash()
	if err != nil {
		return err
	}
	return a.write(itemID, types.KindMonitor, types.PersonOnlyBody{Person: person}, string(types.MonitorAdded), hash)
}

// RemoveMonitor unsubscribes the local person from an item.
func (a *API) RemoveMonitor(itemID string) error {
	if err := a.requireExists(itemID); err != nil {
		return err
	}
	person, err := a.person("")
	if err != nil {
		return err
	}
	hash, err := a.personHash()
	if err != nil {
		return err
	}
	return a.write(itemID, types.KindMonitor, types.PersonOnlyBody{Person: person}, string(types.MonitorRemoved), hash)
}

// TakeItem claims an item for the local person. If that person already
// holds a different item, this implicitly surrenders it first: the spec
// models "one item in progress per person" and always emits the
// surrender event rather than leaving it implicit (Design Note §9).
func (a *API) TakeItem(itemID string) error {
	if err := a.requireExists(itemID); err != nil {
		return err
	}
	hash, err := a.personHash()
	if err != nil {
		return err
	}
	person, err := a.person("")
	if err != nil {
		return err
	}

	for _, agg := range a.mgr.All() {
		if agg.ItemID == itemID || agg.TakenBy == nil {
			continue
		}
		if agg.TakenBy.Email == person.Email {
			if err := a.surrender(agg.ItemID, hash); err != nil {
				return err
			}
		}
	}

	return a.write(itemID, types.KindTaken, types.PersonOnlyBody{Person: person}, string(types.TakenTaken), hash)
}

// SurrenderItem releases the local person's claim on itemID.
func (a *API) SurrenderItem(itemID string) error {
	if err := a.requireExists(itemID); err != nil {
		return err
	}
	hash, err := a.personHash()
	if err != nil {
		return err
	}
	return a.surrender(itemID, hash)
}

func (a *API) surrender(itemID, hash string) error {
	person, err := a.person("")
	if err != nil {
		return err
	}
	return a.write(itemID, types.KindTaken, types.PersonOnlyBody{Person: person}, string(types.TakenSurrendered), hash)
}

// IgnoreItem marks an item as ignored, excluding it from pending work.
func (a *API) IgnoreItem(itemID string) error {
	if err := a.requireExists(itemID); err != nil {
		return err
	}
	person, err := a.person("")
	if err != nil {
		return err
	}
	return a.write(itemID, types.KindIgnored, types.PersonOnlyBody{Person: person}, string(types.IgnoredSet))
}

// UnignoreItem clears a previously set ignore flag.
func (a *API) UnignoreItem(itemID string) error {
	if err := a.requireExists(itemID); err != nil {
		return err
	}
	person, err := a.person("")
	if err != nil {
		return err
	}
	return a.write(itemID, types.KindIgnored, types.PersonOnlyBody{Person: person}, string(types.IgnoredCleared))
}

// GetItemDetails returns the current aggregate for itemID.
func (a *API) GetItemDetails(itemID string) (types.Aggregate, error) {
	agg, ok := a.mgr.Get(itemID)
	if !ok {
		return types.Aggregate{}, notFoundErr(itemID)
	}
	return agg, nil
}

// GetAllItems returns every item whose tagline contains filter
// (case-insensitive), sorted by id. An empty filter returns every item.
func (a *API) GetAllItems(filter string) ([]types.Aggregate, error) {
	if a.mgr.IsRebuilding() {
		return nil, rebuildingErr()
	}
	all := a.mgr.All()
	if filter == "" {
		return all, nil
	}
	filter = strings.ToLower(filter)
	out := make([]types.Aggregate, 0, len(all))
	for _, agg := range all {
		if strings.Contains(strings.ToLower(agg.Tagline), filter) {
			out = append(out, agg)
		}
	}
	return out, nil
}

// PendingWork returns every actionable item: not completed, not ignored,
// and not blocked by an incomplete dependency (§4.4).
func (a *API) PendingWork() ([]types.Aggregate, error) {
	if a.mgr.IsRebuilding() {
		return nil, rebuildingErr()
	}
	all := a.mgr.All()
	out := make([]types.Aggregate, 0, len(all))
	for _, agg := range all {
		if graph.IsPending(agg, a.mgr.Get) {
			out = append(out, agg)
		}
	}
	return out, nil
}

// GetAllItemsAsDag returns the bidirectional dependency neighbourhood of
// referenceID (§4.4 dag()).
func (a *API) GetAllItemsAsDag(referenceID string) ([]graph.Node, error) {
	if a.mgr.IsRebuilding() {
		return nil, rebuildingErr()
	}
	if err := a.requireExists(referenceID); err != nil {
		return nil, err
	}
	return graph.DAG(referenceID, a.mgr.Get), nil
}

// PotentialDependencies returns every item referenceID could validly
// depend on without creating a cycle.
func (a *API) PotentialDependencies(referenceID string) ([]string, error) {
	if a.mgr.IsRebuilding() {
		return nil, rebuildingErr()
	}
	if err := a.requireExists(referenceID); err != nil {
		return nil, err
	}
	ids := a.allIDs()
	return graph.PotentialDependencies(referenceID, ids, a.mgr.Get), nil
}

// PotentialDependents returns every item that could validly depend on
// referenceID without creating a cycle.
func (a *API) PotentialDependents(referenceID string) ([]string, error) {
	if a.mgr.IsRebuilding() {
		return nil, rebuildingErr()
	}
	if err := a.requireExists(referenceID); err != nil {
		return nil, err
	}
	ids := a.allIDs()
	return graph.PotentialDependents(referenceID, ids, a.mgr.Get), nil
}

// GetTakers returns every person currently holding an item, deduplicated
// by email and sorted by name. getTakers (§4.9.1) is a coarse presence
// signal for the web UI's "who's working on what" view, not a full
// historical roster — someone who surrendered every item they ever took
// drops off the list.
func (a *API) GetTakers() ([]types.Person, error) {
	if a.mgr.IsRebuilding() {
		return nil, rebuildingErr()
	}
	seen := map[string]types.Person{}
	for _, agg := range a.mgr.All() {
		if agg.TakenBy != nil {
			seen[agg.TakenBy.Email] = *agg.TakenBy
		}
	}
	out := make([]types.Person, 0, len(seen))
	for _, p := range seen {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Roots returns every known item id with no dependencies (§4.4).
func (a *API) Roots() ([]string, error) {
	if a.mgr.IsRebuilding() {
		return nil, rebuildingErr()
	}
	ids := a.allIDs()
	return graph.Roots(ids, a.mgr.Get), nil
}

func (a *API) allIDs() []string {
	all := a.mgr.All()
	ids := make([]string, 0, len(all))
	for _, agg := range all {
		ids = append(ids, agg.ItemID)
	}
	sort.Strings(ids)
	return ids
}
