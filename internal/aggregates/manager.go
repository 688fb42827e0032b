// Package aggregates owns the derived, cached per-item state described in
// §4.3: one Aggregate per item, kept in memory and mirrored to a JSON
// cache file so a restart doesn't require a full rebuild. It is grounded
// on the teacher's cache-with-invalidation idiom in internal/git/worktree.go
// (CheckWorktreeHealth's "cheap check, rebuild on mismatch" shape),
// generalized from one worktree-health boolean to one Aggregate per item.
package aggregates

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/spf13/afero"

	"github.com/sparklehq/sparkle/internal/eventstore"
	"github.com/sparklehq/sparkle/internal/fold"
	"github.com/sparklehq/sparkle/internal/types"
)

// Subscriber is called after an item's aggregate changes. cause
// distinguishes a local API write from a change discovered via git pull
// or an externally-written event file (§4.3, §4.9.2).
type Subscriber func(itemID string, cause types.ChangeCause)

// Manager holds every item's current Aggregate and keeps a cache file in
// sync with it. All public methods are safe for concurrent use; writes to
// a single item are serialized through itemLock.
type Manager struct {
	store    *eventstore.Store
	fs       afero.Fs
	cacheDir string

	mu    sync.RWMutex
	items map[string]types.Aggregate

	itemLocksMu sync.Mutex
	itemLocks   map[string]*sync.Mutex

	subsMu sync.Mutex
	subs   []Subscriber

	statusesMu sync.Mutex
	statuses   []string // custom statuses beyond types.BuiltinStatuses

	rebuildMu  sync.RWMutex
	rebuilding bool
}

// New returns a Manager backed by store for rebuilds and a cache
// directory on fs for persisted aggregate snapshots.
func New(store *eventstore.Store, fs afero.Fs, cacheDir string) *Manager {
	return &Manager{
		store:     store,
		fs:        fs,
		cacheDir:  cacheDir,
		items:     make(map[string]types.Aggregate),
		itemLocks: make(map[string]*sync.Mutex),
	}
}

// Get returns the current aggregate for id.
func (m *Manager) Get(id string) (types.Aggregate, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	agg, ok := m.items[id]
	return agg, ok
}

// All returns every known aggregate, sorted by item id.
func (m *Manager) All() []types.Aggregate {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.Aggregate, 0, len(m.items))
	for _, agg := range m.items {
		out = append(out, agg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out
}

// OnChange registers a subscriber. Subscribers are invoked synchronously,
// in registration order, after the in-memory map is updated.
func (m *Manager) OnChange(sub Subscriber) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	m.subs = append(m.subs, sub)
}

func (m *Manager) notify(itemID string, cause types.ChangeCause) {
	m.subsMu.Lock()
	subs := append([]Subscriber(nil), m.subs...)
	m.subsMu.Unlock()
	for _, sub := range subs {
		sub(itemID, cause)
	}
}

func (m *Manager) lockFor(itemID string) *sync.Mutex {
	m.itemLocksMu.Lock()
	defer m.itemLocksMu.Unlock()
	l, ok := m.itemLocks[itemID]
	if !ok {
		l = &sync.Mutex{}
		m.itemLocks[itemID] = l
	}
	return l
}

// UpdateForEvent incrementally refolds a single item's aggregate after a
// new event file affecting it becomes visible (either the local API just
// wrote one, or a watcher discovered one written externally). It reads
// every event file for the item from the store, refolds from scratch
// (the fold itself is cheap and order-independent, so a partial-update
// shortcut would only add complexity, not speed) and persists the result.
func (m *Manager) UpdateForEvent(itemID string, cause types.ChangeCause) error {
	lock := m.lockFor(itemID)
	lock.Lock()
	defer lock.Unlock()

	agg, err := m.rebuildOne(itemID)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.items[itemID] = agg
	m.mu.Unlock()

	if err := m.persist(agg); err != nil {
		return err
	}

	m.notify(itemID, cause)
	return nil
}

// rebuildOne folds itemID's aggregate directly from the event store,
// without touching the in-memory map or cache file.
func (m *Manager) rebuildOne(itemID string) (types.Aggregate, error) {
	has, err := m.store.HasCreationFile(itemID)
	if err != nil {
		return types.Aggregate{}, err
	}
	if !has {
		return types.Aggregate{}, fmt.Errorf("aggregates: no creation event for %s", itemID)
	}
	created, err := m.store.ReadEvent(itemID + ".json")
	if err != nil {
		return types.Aggregate{}, err
	}
	var createdBody types.CreatedBody
	if err := json.Unmarshal(created.Body, &createdBody); err != nil {
		return types.Aggregate{}, fmt.Errorf("aggregates: decoding creation event for %s: %w", itemID, err)
	}
	createdBody.ItemID = itemID

	events, err := m.store.ListEventFilesForItem(itemID)
	if err != nil {
		return types.Aggregate{}, err
	}
	return fold.Build(itemID, createdBody, events), nil
}

// RebuildAll rebuilds every item's aggregate from the event store,
// replacing the in-memory map wholesale (§4.3's full-rebuild path, used on
// cache-schema mismatch or explicit rebuild request). progressCb, if
// non-nil, is called after each item with the number completed and the
// total.
func (m *Manager) RebuildAll(progressCb func(done, total int)) error {
	m.rebuildMu.Lock()
	m.rebuilding = true
	m.rebuildMu.Unlock()
	defer func() {
		m.rebuildMu.Lock()
		m.rebuilding = false
		m.rebuildMu.Unlock()
	}()

	ids, err := m.store.ReadAllItemIDs()
	if err != nil {
		return err
	}
	sorted := make([]string, 0, len(ids))
	for id := range ids {
		sorted = append(sorted, id)
	}
	sort.Strings(sorted)

	fresh := make(map[string]types.Aggregate, len(sorted))
	for i, id := range sorted {
		agg, err := m.rebuildOne(id)
		if err != nil {
			return fmt.Errorf("aggregates: rebuilding %s: %w", id, err)
		}
		fresh[id] = agg
		if progressCb != nil {
			progressCb(i+1, len(sorted))
		}
	}

	m.mu.Lock()
	m.items = fresh
	m.mu.Unlock()

	for _, agg := range fresh {
		if err := m.persist(agg); err != nil {
			return err
		}
	}
	return nil
}

// IsRebuilding reports whether a full RebuildAll is currently in flight.
// Read paths that require a consistent view across items (§7's
// ConcurrencyConflict) should check this and refuse rather than serve a
// partially-rebuilt map.
func (m *Manager) IsRebuilding() bool {
	m.rebuildMu.RLock()
	defer m.rebuildMu.RUnlock()
	return m.rebuilding
}

// LoadCache populates the in-memory map from the on-disk cache without
// touching the event store, for fast startup. Callers must still run
// ValidateAll afterward to decide whether a rebuild is required.
func (m *Manager) LoadCache() error {
	entries, err := afero.ReadDir(m.fs, m.cacheDir)
	if err != nil {
		return nil // absent cache dir just means "rebuild from scratch"
	}
	items := make(map[string]types.Aggregate)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := afero.ReadFile(m.fs, m.cachePath(itemIDFromCacheName(e.Name())))
		if err != nil {
			continue
		}
		var agg types.Aggregate
		if err := json.Unmarshal(data, &agg); err != nil {
			continue
		}
		items[agg.ItemID] = agg
	}
	m.mu.Lock()
	m.items = items
	m.mu.Unlock()
	return nil
}

// ValidateAll reports whether every cached aggregate carries the current
// schema version and whether the cached id set matches the event store's
// id set. A false result means the caller should run RebuildAll (§4.3).
func (m *Manager) ValidateAll() (bool, error) {
	ids, err := m.store.ReadAllItemIDs()
	if err != nil {
		return false, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(ids) != len(m.items) {
		return false, nil
	}
	for id := range ids {
		agg, ok := m.items[id]
		if !ok || agg.SchemaVersion != types.CurrentSchemaVersion {
			return false, nil
		}
	}
	return true, nil
}

// InvalidateByFiles re-derives the aggregates for every item touched by
// the given event filenames (both endpoints, for dependency files), used
// after a git pull brings in new event files (§4.8). Malformed filenames
// are skipped rather than aborting the whole invalidation pass.
func (m *Manager) InvalidateByFiles(filenames []string, cause types.ChangeCause) error {
	affected := map[string]bool{}
	for _, name := range filenames {
		ids, err := eventstore.Endpoints(name)
		if err != nil {
			continue
		}
		for _, id := range ids {
			affected[id] = true
		}
	}
	ordered := make([]string, 0, len(affected))
	for id := range affected {
		ordered = append(ordered, id)
	}
	sort.Strings(ordered)

	for _, id := range ordered {
		if err := m.UpdateForEvent(id, cause); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) cachePath(itemID string) string {
	return m.cacheDir + "/" + itemID + ".agg.json"
}

func itemIDFromCacheName(name string) string {
	const suffix = ".agg.json"
	if len(name) > len(suffix) && name[len(name)-len(suffix):] == suffix {
		return name[:len(name)-len(suffix)]
	}
	return name
}

func (m *Manager) persist(agg types.Aggregate) error {
	if err := m.fs.MkdirAll(m.cacheDir, 0750); err != nil {
		return err
	}
	data, err := json.Marshal(agg)
	if err != nil {
		return err
	}
	return afero.WriteFile(m.fs, m.cachePath(agg.ItemID), data, 0640)
}

// Statuses returns the full allowed status set: the two builtin statuses
// plus every registered custom status, in registration order.
func (m *Manager) Statuses() []string {
	m.statusesMu.Lock()
	defer m.statusesMu.Unlock()
	out := append([]string{}, types.BuiltinStatuses...)
	return append(out, m.statuses...)
}

// AddStatus registers a new custom status name, idempotently.
func (m *Manager) AddStatus(name string) {
	m.statusesMu.Lock()
	defer m.statusesMu.Unlock()
	for _, s := range types.BuiltinStatuses {
		if s == name {
			return
		}
	}
	for _, s := range m.statuses {
		if s == name {
			return
		}
	}
	m.statuses = append(m.statuses, name)
}

// LoadStatuses replaces the custom status set, used when reading
// statuses.json back at startup.
func (m *Manager) LoadStatuses(names []string) {
	m.statusesMu.Lock()
	defer m.statusesMu.Unlock()
	m.statuses = append([]string{}, names...)
}
