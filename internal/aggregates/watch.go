package aggregates

import (
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/sparklehq/sparkle/internal/eventstore"
	"github.com/sparklehq/sparkle/internal/types"
)

// WatchExternalWrites watches dir (the event store's directory on the
// real filesystem) and refreshes the affected aggregates with cause
// external_write whenever an event file is created or written there. It
// does not tell apart files this process wrote itself: the API's own
// writes (and files brought in by a pull) are reported as well. Only
// meaningful when the Manager's afero.Fs is
// backed by the OS; a MemMapFs in tests has nothing for fsnotify to
// watch, so callers should skip this in that case. Returns the running
// watcher, which the caller must Close on shutdown.
func (m *Manager) WatchExternalWrites(dir string, log *zap.Logger) (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, err
	}

	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
					continue
				}
				m.onExternalFileEvent(ev.Name, log)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				if log != nil {
					log.Warn("event directory watch error", zap.Error(err))
				}
			}
		}
	}()

	return watcher, nil
}

func (m *Manager) onExternalFileEvent(path string, log *zap.Logger) {
	name := base(path)
	ids, err := eventstore.Endpoints(name)
	if err != nil {
		return // not a recognised event filename; ignore
	}
	for _, id := range ids {
		if err := m.UpdateForEvent(id, types.CauseExternalWrite); err != nil && log != nil {
			log.Warn("updating aggregate after externally written event file failed",
				zap.String("file", name), zap.String("itemId", id), zap.Error(err))
		}
	}
}

func base(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' || path[i] == '\\' {
			return path[i+1:]
		}
	}
	return path
}
