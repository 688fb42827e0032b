package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/sparklehq/sparkle/internal/config"
	"github.com/sparklehq/sparkle/internal/daemon"
	"github.com/sparklehq/sparkle/internal/gitops"
)

// apiError mirrors sparkleapi.Error's JSON shape (§7), decoded here
// without importing sparkleapi directly since the CLI only ever sees the
// daemon's HTTP surface.
type apiError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Detail  string `json:"detail"`
}

func (e *apiError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

type client struct {
	base string
	http *http.Client
}

// newClient resolves the daemon's base URL: an explicit --server flag
// wins, otherwise it reads the port handoff file sparkled wrote under the
// project's data directory. §6.3 describes the CLI as working "through
// the local daemon (ensured-running)": if no daemon answers there, this
// starts one rather than just telling the user to run 'sparkled'
// themselves.
func newClient() (*client, error) {
	if serverURL != "" {
		return &client{base: serverURL, http: &http.Client{Timeout: 10 * time.Second}}, nil
	}

	abs, err := filepath.Abs(repoDir)
	if err != nil {
		return nil, err
	}
	if err := config.Initialize(); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	projectCfg, err := config.LoadProjectConfig(abs)
	if err != nil {
		return nil, err
	}
	worktreePath := projectCfg.DefaultWorktreePath(abs)
	dataDir := filepath.Join(worktreePath, gitops.EventsDir)

	if port, err := daemon.ReadPortFile(dataDir); err == nil {
		base := fmt.Sprintf("http://127.0.0.1:%d", port)
		if c := (&client{base: base, http: &http.Client{Timeout: 10 * time.Second}}); c.ping() {
			return c, nil
		}
	}

	if err := ensureDaemonRunning(abs); err != nil {
		return nil, fmt.Errorf("starting sparkle daemon: %w", err)
	}

	port, err := waitForPortFile(dataDir, 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("sparkle daemon did not start in time: %w", err)
	}
	return &client{base: fmt.Sprintf("http://127.0.0.1:%d", port), http: &http.Client{Timeout: 10 * time.Second}}, nil
}

func (c *client) ping() bool {
	resp, err := c.http.Get(c.base + "/api/ping")
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 500
}

// ensureDaemonRunning launches sparkled as a detached background
// process rooted at repoDir. sparkled performs its own single-instance
// handoff (§4.9 step 3), so a race against another CLI invocation
// starting the same daemon is harmless.
func ensureDaemonRunning(repoDir string) error {
	bin, err := exec.LookPath("sparkled")
	if err != nil {
		return fmt.Errorf("'sparkled' not found on PATH: %w", err)
	}
	cmd := exec.Command(bin, "-repo", repoDir)
	return cmd.Start()
}

// waitForPortFile polls dataDir's port handoff file until it appears (or
// timeout elapses), since sparkled writes it only after it has bound its
// listener.
func waitForPortFile(dataDir string, timeout time.Duration) (int, error) {
	deadline := time.Now().Add(timeout)
	for {
		if port, err := daemon.ReadPortFile(dataDir); err == nil {
			return port, nil
		}
		if time.Now().After(deadline) {
			return 0, fmt.Errorf("timed out waiting for daemon to write its port file")
		}
		time.Sleep(100 * time.Millisecond)
	}
}

func (c *client) do(method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.base+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("contacting daemon: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Message != "" {
			return &apiErr
		}
		return fmt.Errorf("daemon returned %s", resp.Status)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *client) get(path string, out interface{}) error { return c.do(http.MethodGet, path, nil, out) }
func (c *client) post(path string, body, out interface{}) error {
	return c.do(http.MethodPost, path, body, out)
}
