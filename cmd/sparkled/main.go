// Command sparkled is the per-project daemon described in §4.9: one
// process per git worktree, synchronizing the event store over git and
// serving the HTTP + SSE API the sparkle CLI and web UI talk to.
// Grounded on the teacher's cmd/bd/daemon_server.go bootstrap sequence:
// load config, ensure the worktree, load-or-rebuild the aggregate cache,
// then serve.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/sparklehq/sparkle/internal/aggregates"
	"github.com/sparklehq/sparkle/internal/clock"
	"github.com/sparklehq/sparkle/internal/config"
	"github.com/sparklehq/sparkle/internal/daemon"
	"github.com/sparklehq/sparkle/internal/eventstore"
	"github.com/sparklehq/sparkle/internal/gitops"
	"github.com/sparklehq/sparkle/internal/identity"
	"github.com/sparklehq/sparkle/internal/logging"
	"github.com/sparklehq/sparkle/internal/metrics"
	"github.com/sparklehq/sparkle/internal/scheduler"
	"github.com/sparklehq/sparkle/internal/sparkleapi"
)

func main() {
	repoDir := flag.String("repo", ".", "path to the git repository to serve")
	staticDir := flag.String("static-dir", "", "path to web UI assets to serve at /")
	logFile := flag.String("log-file", "", "rotated log file path (stderr only if empty)")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	if err := run(*repoDir, *staticDir, *logFile, *debug); err != nil {
		fmt.Fprintln(os.Stderr, "sparkled:", err)
		os.Exit(1)
	}
}

func run(repoDir, staticDir, logFile string, debug bool) error {
	repoDir, err := filepath.Abs(repoDir)
	if err != nil {
		return fmt.Errorf("resolving repo path: %w", err)
	}

	if err := config.Initialize(); err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	projectCfg, err := config.LoadProjectConfig(repoDir)
	if err != nil {
		return fmt.Errorf("loading project config: %w", err)
	}
	branch := projectCfg.GitBranch
	if branch == "" {
		branch = "sparkle-data"
	}
	worktreePath := projectCfg.DefaultWorktreePath(repoDir)
	dataDir := filepath.Join(worktreePath, gitops.EventsDir)

	log, err := logging.New(logging.Options{LogFile: logFile, Debug: debug})
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer log.Sync()

	lock, err := daemon.AcquireSingleInstanceLock(worktreePath, dataDir)
	if err != nil {
		if already, ok := err.(*daemon.ErrAlreadyRunning); ok {
			// §4.9 step 3: a second launch against an already-served
			// worktree hands off to the running daemon instead of
			// failing, so "run sparkled twice" is a no-op from the
			// user's perspective.
			url := fmt.Sprintf("http://127.0.0.1:%d", already.Port)
			if probeRunningDaemon(url) {
				log.Info("a sparkle daemon is already running for this worktree, opening browser", zap.Int("port", already.Port))
				openBrowser(url)
				return nil
			}
			return fmt.Errorf("a sparkle daemon is already running for this worktree on port %d", already.Port)
		}
		return err
	}
	defer lock.Unlock()

	remote := config.GetString("git.remote")
	worktree := gitops.New(repoDir, worktreePath, branch, remote, log)
	if err := worktree.Ensure(); err != nil {
		return fmt.Errorf("preparing worktree: %w", err)
	}

	fs := afero.NewOsFs()
	c := clock.New()
	store := eventstore.New(fs, worktree.EventsPath(), c)
	mgr := aggregates.New(store, fs, filepath.Join(worktree.EventsPath(), ".aggregates"))

	if err := mgr.LoadCache(); err != nil {
		log.Warn("loading aggregate cache failed, rebuilding", zap.Error(err))
	}
	valid, err := mgr.ValidateAll()
	needsRebuild := err != nil || !valid

	watcher, err := mgr.WatchExternalWrites(worktree.EventsPath(), log)
	if err != nil {
		log.Warn("watching event directory for external writes failed", zap.Error(err))
	} else {
		defer watcher.Close()
	}

	sched := scheduler.New(worktree, log)

	idFn := func() (string, string, string, error) {
		name, email, err := identity.Local(repoDir)
		if err != nil {
			return "", "", "", err
		}
		return name, email, identity.Hash(name, email), nil
	}

	api := sparkleapi.New(store, mgr, sched, idFn, c)
	m := metrics.New()

	fetchInterval := 15 * time.Second
	if parsed, err := time.ParseDuration(config.GetDuration("fetch-interval")); err == nil {
		fetchInterval = parsed
	}
	idleShutdown := 30 * time.Minute
	if parsed, err := time.ParseDuration(config.GetDuration("idle-shutdown")); err == nil {
		idleShutdown = parsed
	}

	d := daemon.New(daemon.Config{
		RepoDir:       repoDir,
		WorktreePath:  worktreePath,
		DataDir:       dataDir,
		StaticDir:     staticDir,
		IdleShutdown:  idleShutdown,
		FetchInterval: fetchInterval,
		PreferredPort: config.GetInt("port"),
	}, api, mgr, worktree, sched, m, log)

	if needsRebuild {
		log.Info("rebuilding aggregates from event store")
		d.Publish(daemon.EventRebuildStarted, nil)
		rebuildErr := mgr.RebuildAll(func(done, total int) {
			d.Publish(daemon.EventRebuildProgress, map[string]int{"done": done, "total": total})
			if total > 0 && done%50 == 0 {
				log.Debug("rebuild progress", zap.Int("done", done), zap.Int("total", total))
			}
		})
		if rebuildErr != nil {
			d.Publish(daemon.EventRebuildFailed, map[string]string{"error": rebuildErr.Error()})
			return fmt.Errorf("rebuilding aggregates: %w", rebuildErr)
		}
		d.Publish(daemon.EventRebuildCompleted, nil)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("sparkle daemon starting", zap.String("repo", repoDir), zap.String("worktree", worktreePath))
	return d.Serve(ctx, "127.0.0.1:0")
}

// probeRunningDaemon reports whether a Sparkle daemon is actually
// answering at url, distinguishing a live handoff target from a stale
// last_port.data left behind by a daemon that crashed without cleaning
// up its lock (in which case the caller should fail loudly rather than
// silently do nothing).
func probeRunningDaemon(url string) bool {
	client := http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(url + "/api/ping")
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 500
}

func openBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		fmt.Println(url)
	}
}
