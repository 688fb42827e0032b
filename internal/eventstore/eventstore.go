// Package eventstore is the pure-filesystem event log described in §4.1:
// every mutation is one small JSON file whose name encodes everything the
// rebuild engine needs. It is grounded on the teacher's worktree file
// juggling (internal/git/worktree.go's atomic-write-then-rename idiom),
// generalized from "one JSONL blob" to "one file per event".
package eventstore

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/sparklehq/sparkle/internal/clock"
	"github.com/sparklehq/sparkle/internal/types"
)

// ErrDuplicateEvent is returned when a filename collision survives every
// retry attempt (§4.1); in practice this only happens against a
// pathologically small random space.
var ErrDuplicateEvent = fmt.Errorf("eventstore: duplicate event filename")

const maxWriteRetries = 5

// Store reads and writes event files in a single flat data directory.
type Store struct {
	fs    afero.Fs
	dir   string
	clock *clock.Clock
}

// New returns a Store rooted at dir on fs. Pass afero.NewOsFs() in
// production and afero.NewMemMapFs() in tests (AMBIENT STACK: test
// tooling).
func New(fs afero.Fs, dir string, c *clock.Clock) *Store {
	return &Store{fs: fs, dir: dir, clock: c}
}

// Dir returns the event-store directory.
func (s *Store) Dir() string { return s.dir }

// WriteCreated writes the item-creation event file (§3.2). itemID
// generation/collision-retry happens one layer up (sparkleapi), since only
// that layer knows the set of currently-assigned ids.
func (s *Store) WriteCreated(itemID string, body types.CreatedBody) (string, error) {
	name := createdFilename(itemID)
	data, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	if err := s.atomicWriteNew(name, data); err != nil {
		return "", err
	}
	return name, nil
}

// WriteEvent writes any non-creation event kind, retrying with a fresh
// random suffix on filename collision (§4.1: "Fails with DuplicateEvent
// only on filesystem collision, retried with a new <rand>").
func (s *Store) WriteEvent(kind types.EventKind, itemID string, payload interface{}, extras ...string) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	ts := s.clock.Next()
	var lastErr error
	for attempt := 0; attempt < maxWriteRetries; attempt++ {
		name := buildFilename(itemID, kind, ts, randSuffix(), extras...)
		if err := s.atomicWriteNew(name, data); err != nil {
			if os.IsExist(err) {
				lastErr = err
				continue
			}
			return "", err
		}
		return name, nil
	}
	return "", fmt.Errorf("%w: %s after %d attempts: %v", ErrDuplicateEvent, itemID, maxWriteRetries, lastErr)
}

// randSuffix produces the <rand> filename component. A short uuid-derived
// token keeps filenames readable while the retry loop in WriteEvent
// absorbs the (astronomically unlikely) collision case.
func randSuffix() string {
	id := uuid.New()
	return fmt.Sprintf("%08x", id[:4])
}

// atomicWriteNew writes data to dir/name via temp-file-plus-rename,
// refusing to clobber an existing file of the same name (os.IsExist on
// the rename target is how WriteEvent detects a collision to retry).
func (s *Store) atomicWriteNew(name string, data []byte) error {
	if err := s.fs.MkdirAll(s.dir, 0750); err != nil {
		return err
	}
	target := filepath.Join(s.dir, name)
	if _, err := s.fs.Stat(target); err == nil {
		return os.ErrExist
	}

	tmp := filepath.Join(s.dir, fmt.Sprintf(".tmp-%s-%d", name, rand.Int63()))
	f, err := s.fs.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0640)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = s.fs.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = s.fs.Remove(tmp)
		return err
	}

	if err := s.fs.Rename(tmp, target); err != nil {
		_ = s.fs.Remove(tmp)
		return err
	}
	return nil
}

// ListEventFilesForItem returns every decoded event naming itemID in
// either the primary or "needed" position (§3.2 invariant 1), sorted by
// filename so kind-grouping callers (the state builder) see a stable
// order. This is a linear scan over the directory, as specified.
func (s *Store) ListEventFilesForItem(itemID string) ([]types.Event, error) {
	all, err := s.listAll()
	if err != nil {
		return nil, err
	}
	var out []types.Event
	for _, ev := range all {
		for _, id := range endpoints(ev) {
			if id == itemID {
				out = append(out, ev)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Filename < out[j].Filename })
	return out, nil
}

// ReadAllItemIDs returns the set of every id appearing as the primary
// (first) position of any event file.
func (s *Store) ReadAllItemIDs() (map[string]bool, error) {
	entries, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]bool{}, nil
		}
		return nil, err
	}
	ids := make(map[string]bool)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ev, err := parseFilename(e.Name())
		if err != nil {
			continue // not a recognised event file; ignore silently
		}
		ids[ev.ItemID] = true
	}
	return ids, nil
}

// listAll decodes every event file in the directory, loading its body.
func (s *Store) listAll() ([]types.Event, error) {
	entries, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []types.Event
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ev, err := parseFilename(e.Name())
		if err != nil {
			continue
		}
		body, err := afero.ReadFile(s.fs, filepath.Join(s.dir, e.Name()))
		if err != nil {
			continue // file vanished mid-scan (e.g. concurrent git checkout); skip
		}
		ev.Body = body
		out = append(out, ev)
	}
	return out, nil
}

// ReadEvent reads and decodes a single event file by name.
func (s *Store) ReadEvent(name string) (types.Event, error) {
	ev, err := parseFilename(name)
	if err != nil {
		return types.Event{}, err
	}
	body, err := afero.ReadFile(s.fs, filepath.Join(s.dir, name))
	if err != nil {
		return types.Event{}, err
	}
	ev.Body = body
	return ev, nil
}

// Endpoints exposes the item ids a given filename affects (§4.8 change-
// file discovery: dependency files affect both sides).
func Endpoints(name string) ([]string, error) {
	ev, err := parseFilename(name)
	if err != nil {
		return nil, err
	}
	return endpoints(ev), nil
}

// HasCreationFile reports whether itemID's creation event exists.
func (s *Store) HasCreationFile(itemID string) (bool, error) {
	_, err := s.fs.Stat(filepath.Join(s.dir, createdFilename(itemID)))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
