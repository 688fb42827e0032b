// Package daemon is the long-lived process described in §4.9: one HTTP
// server per project worktree, a commit scheduler, a periodic fetch
// observer, and an SSE broadcaster. Grounded on the teacher's daemon
// command tree (cmd/bd/daemon_server.go, internal/daemon/registry.go),
// generalized from bd's module-level globals (port, shutdown flag,
// subscriber list) into one *Daemon value threaded through every
// handler, per Design Note §9.
package daemon

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sparklehq/sparkle/internal/aggregates"
	"github.com/sparklehq/sparkle/internal/gitops"
	"github.com/sparklehq/sparkle/internal/metrics"
	"github.com/sparklehq/sparkle/internal/scheduler"
	"github.com/sparklehq/sparkle/internal/sparkleapi"
	"github.com/sparklehq/sparkle/internal/types"
)

// Config bundles the daemon's external dependencies and static
// settings.
type Config struct {
	RepoDir       string
	WorktreePath  string
	DataDir       string // event-store data directory (§6.1); where last_port.data and .aggregates/ live
	StaticDir     string // web UI assets, served at "/"; empty disables static serving
	IdleShutdown  time.Duration
	FetchInterval time.Duration
	PreferredPort int // 0 means let the OS choose
}

// Daemon is the single piece of shared state every HTTP handler and
// background goroutine closes over.
type Daemon struct {
	cfg       Config
	api       *sparkleapi.API
	mgr       *aggregates.Manager
	worktree  *gitops.Worktree
	scheduler *scheduler.Scheduler
	metrics   *metrics.Metrics
	log       *zap.Logger

	broadcaster *broadcaster

	mu           sync.Mutex
	shuttingDown bool
	lastActivity time.Time
	lastChange   time.Time
	port         int

	server *http.Server
}

// New assembles a Daemon from its already-constructed components. The
// caller (cmd/sparkled) is responsible for wiring store, manager,
// worktree, scheduler, and api before calling this.
func New(cfg Config, api *sparkleapi.API, mgr *aggregates.Manager, worktree *gitops.Worktree, sched *scheduler.Scheduler, m *metrics.Metrics, log *zap.Logger) *Daemon {
	d := &Daemon{
		cfg:         cfg,
		api:         api,
		mgr:         mgr,
		worktree:    worktree,
		scheduler:   sched,
		metrics:     m,
		log:         log,
		broadcaster: newBroadcaster(),
	}
	d.touch()

	mgr.OnChange(func(itemID string, cause types.ChangeCause) {
		d.touch()
		d.markChanged()
		d.broadcaster.publish(sseMessage{
			Event: EventAggregatesUpdated,
			Data: map[string]interface{}{
				"itemIds": []string{itemID},
				"reason":  cause,
			},
		})
		d.broadcaster.publish(sseMessage{Event: EventDataUpdated, Data: map[string]interface{}{"itemId": itemID}})
	})

	return d
}

// Publish broadcasts an SSE event to every connected client. Used by
// cmd/sparkled to report rebuild progress, since a full rebuild (and the
// events describing it) happens around daemon construction rather than
// inside an HTTP handler.
func (d *Daemon) Publish(event string, data interface{}) {
	d.broadcaster.publish(sseMessage{Event: event, Data: data})
}

func (d *Daemon) touch() {
	d.mu.Lock()
	d.lastActivity = time.Now()
	d.mu.Unlock()
}

func (d *Daemon) markChanged() {
	d.mu.Lock()
	d.lastChange = time.Now()
	d.mu.Unlock()
}

// LastChange returns the timestamp of the most recent aggregate change
// observed by this daemon, the zero time if none has happened yet
// (§4.9.1's getLastChange).
func (d *Daemon) LastChange() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastChange
}

// Port returns the port the HTTP server is bound to, valid only after
// Serve has started listening.
func (d *Daemon) Port() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.port
}

// IsShuttingDown reports whether a graceful shutdown has begun; write
// handlers consult this to return ShuttingDown (§7) instead of racing
// the server close.
func (d *Daemon) IsShuttingDown() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shuttingDown
}

// Serve starts the HTTP server, the commit scheduler's notification
// path (already running, owned by cfg), and the idle-shutdown and fetch
// observers. It blocks until ctx is cancelled or the server fails.
func (d *Daemon) Serve(ctx context.Context, listenAddr string) error {
	mux := d.routes()
	d.server = &http.Server{Addr: listenAddr, Handler: mux}

	ln, port, err := listen(listenAddr, d.cfg.PreferredPort)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.port = port
	d.mu.Unlock()
	if d.cfg.DataDir != "" {
		if err := WritePortFile(d.cfg.DataDir, port); err != nil && d.log != nil {
			d.log.Warn("writing port handoff file failed", zap.Error(err))
		}
	}

	if d.cfg.IdleShutdown > 0 {
		go d.runIdleShutdownWatcher(ctx)
	}
	if d.worktree != nil && d.cfg.FetchInterval > 0 {
		d.worktree.StartAvailabilityObserver(ctx, d.cfg.FetchInterval, d.onFetchStarted, d.onFetchResult, d.log)
	}
	go d.runHeartbeat(ctx)

	errCh := make(chan error, 1)
	go func() { errCh <- d.server.Serve(ln) }()

	select {
	case <-ctx.Done():
		return d.shutdown(context.Background())
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (d *Daemon) onFetchStarted() {
	d.broadcaster.publish(sseMessage{Event: EventFetchStatus, Data: map[string]string{"status": "fetching"}})
}

func (d *Daemon) onFetchResult(reason gitops.AvailabilityReason, newFiles []string) {
	if len(newFiles) > 0 {
		if err := d.mgr.InvalidateByFiles(newFiles, types.CauseGitPull); err != nil && d.log != nil {
			d.log.Error("invalidating aggregates after fetch", zap.Error(err))
		}
	}
	d.broadcaster.publish(sseMessage{
		Event: EventGitStatus,
		Data:  map[string]interface{}{"reason": reason},
	})
	d.broadcaster.publish(sseMessage{
		Event: EventFetchCompleted,
		Data:  map[string]interface{}{"reason": reason, "changedFiles": len(newFiles)},
	})
}

// runHeartbeat emits a heartbeat every second (keep-alives so proxies and
// browsers don't time out an idle SSE connection) and a countdown every
// second carrying seconds until the idle-shutdown deadline, both per
// §4.9.2. Neither ticker does anything when there are no subscribers;
// publish is a no-op broadcast in that case.
func (d *Daemon) runHeartbeat(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.broadcaster.publish(sseMessage{Event: EventHeartbeat, Data: nil})
			if d.cfg.IdleShutdown <= 0 {
				continue
			}
			d.mu.Lock()
			remaining := d.cfg.IdleShutdown - time.Since(d.lastActivity)
			d.mu.Unlock()
			if remaining < 0 {
				remaining = 0
			}
			d.broadcaster.publish(sseMessage{Event: EventCountdown, Data: map[string]int{"secondsRemaining": int(remaining.Seconds())}})
		}
	}
}

func (d *Daemon) runIdleShutdownWatcher(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.mu.Lock()
			idleFor := time.Since(d.lastActivity)
			subscribers := d.broadcaster.count()
			d.mu.Unlock()
			if subscribers == 0 && idleFor >= d.cfg.IdleShutdown {
				if d.log != nil {
					d.log.Info("shutting down after idle timeout", zap.Duration("idle", idleFor))
				}
				_ = d.shutdown(context.Background())
				return
			}
		}
	}
}

// shutdown flushes any pending commit, stops accepting new connections,
// and closes every SSE stream.
func (d *Daemon) shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.shuttingDown = true
	d.mu.Unlock()

	if d.scheduler != nil {
		flushCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := d.scheduler.ForcePushNow(flushCtx); err != nil && d.log != nil {
			d.log.Warn("final flush before shutdown failed", zap.Error(err))
		}
	}

	d.broadcaster.closeAll()

	if d.server != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return d.server.Shutdown(shutdownCtx)
	}
	return nil
}
