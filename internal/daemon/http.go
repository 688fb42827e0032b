package daemon

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sparklehq/sparkle/internal/config"
	"github.com/sparklehq/sparkle/internal/gitops"
	"github.com/sparklehq/sparkle/internal/sparkleapi"
	"github.com/sparklehq/sparkle/internal/types"
)

// Version is the daemon's build version, reported by /api/version and
// compared against the CLI's own version for compatibility (cmd/sparkle's
// version command).
const Version = "v0.1.0"

// routes wires every endpoint of §4.9.1's literal read/write table. The
// table is a uniform RPC surface, not a RESTful resource tree: reads
// that can be expressed as a GET with a query string are GET, and every
// write (including the semantically-read-but-stateful getItemDetails)
// is a POST with a JSON body, mirroring the teacher's cmd/bd/rpc.Server
// method-name dispatch one level up at the HTTP layer.
func (d *Daemon) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/ping", d.handlePing)
	mux.HandleFunc("GET /api/status", d.handleStatus)
	mux.HandleFunc("GET /api/serverInfo", d.handleServerInfo)
	mux.HandleFunc("GET /api/version", d.handleVersion)
	mux.HandleFunc("GET /api/allItems", d.handleAllItems)
	mux.HandleFunc("GET /api/pendingWork", d.handlePendingWork)
	mux.HandleFunc("GET /api/roots", d.handleRoots)
	mux.HandleFunc("GET /api/dag", d.handleDag)
	mux.HandleFunc("GET /api/allowedStatuses", d.handleAllowedStatuses)
	mux.HandleFunc("GET /api/getTakers", d.handleGetTakers)
	mux.HandleFunc("GET /api/aggregateStatus", d.handleAggregateStatus)
	mux.HandleFunc("GET /api/getLastChange", d.handleGetLastChange)
	mux.HandleFunc("GET /api/events", d.handleEvents)

	mux.HandleFunc("POST /api/createItem", d.handleCreateItem)
	mux.HandleFunc("POST /api/getItemDetails", d.handleGetItemDetails)
	mux.HandleFunc("POST /api/alterTagline", d.handleAlterTagline)
	mux.HandleFunc("POST /api/updateTagline", d.handleAlterTagline)
	mux.HandleFunc("POST /api/addEntry", d.handleAddEntry)
	mux.HandleFunc("POST /api/updateStatus", d.handleUpdateStatus)
	mux.HandleFunc("POST /api/addDependency", d.handleAddDependency)
	mux.HandleFunc("POST /api/removeDependency", d.handleRemoveDependency)
	mux.HandleFunc("POST /api/addMonitor", d.handleAddMonitor)
	mux.HandleFunc("POST /api/removeMonitor", d.handleRemoveMonitor)
	mux.HandleFunc("POST /api/ignoreItem", d.handleIgnoreItem)
	mux.HandleFunc("POST /api/unignoreItem", d.handleUnignoreItem)
	mux.HandleFunc("POST /api/takeItem", d.handleTakeItem)
	mux.HandleFunc("POST /api/surrenderItem", d.handleSurrenderItem)
	mux.HandleFunc("POST /api/updateStatuses", d.handleUpdateStatuses)
	mux.HandleFunc("POST /api/config/get", d.handleConfigGet)
	mux.HandleFunc("POST /api/config/setProject", d.handleConfigSetProject)
	mux.HandleFunc("POST /api/config/notifyChange", d.handleConfigNotifyChange)
	mux.HandleFunc("POST /api/getPotentialDependencies", d.handlePotentialDependencies)
	mux.HandleFunc("POST /api/getPotentialDependents", d.handlePotentialDependents)
	mux.HandleFunc("POST /api/getItemAuditTrail", d.handleAuditTrail)
	mux.HandleFunc("POST /api/fetch", d.handleFetch)
	mux.HandleFunc("POST /api/shutdown", d.handleShutdown)
	mux.HandleFunc("POST /api/internal/aggregateUpdated", d.handleInternalAggregateUpdated)
	mux.HandleFunc("POST /log", d.handleClientLog)
	mux.HandleFunc("POST /api/clientLog", d.handleClientLog)

	mux.Handle("GET /api/metrics", promhttp.HandlerFor(d.metrics.Registry, promhttp.HandlerOpts{}))

	if d.cfg.StaticDir != "" {
		mux.Handle("/", d.staticHandler())
	}

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	if apiErr, ok := err.(*sparkleapi.Error); ok {
		body := map[string]interface{}{
			"kind":    string(apiErr.Kind),
			"message": apiErr.Message,
			"detail":  apiErr.Detail,
		}
		if apiErr.Kind == sparkleapi.ErrConcurrencyConflict {
			// §7 kind 4: HTTP 503 with a literal rebuilding:true field the
			// client can check without string-matching detail.
			body["rebuilding"] = true
		}
		writeJSON(w, apiErr.HTTPStatus(), body)
		return
	}
	writeJSON(w, http.StatusInternalServerError, map[string]string{"message": err.Error()})
}

func (d *Daemon) guardShuttingDown(w http.ResponseWriter) bool {
	if d.IsShuttingDown() {
		writeError(w, &sparkleapi.Error{Kind: sparkleapi.ErrShuttingDown, Message: "daemon is shutting down"})
		return true
	}
	return false
}

func decodeBody(w http.ResponseWriter, r *http.Request, out interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		writeError(w, &sparkleapi.Error{Kind: sparkleapi.ErrValidation, Message: "malformed request body"})
		return false
	}
	return true
}

// --- plain reads (§4.9.1) ---

func (d *Daemon) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (d *Daemon) handleStatus(w http.ResponseWriter, r *http.Request) {
	d.touch()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"shuttingDown": d.IsShuttingDown(),
		"rebuilding":   d.mgr.IsRebuilding(),
		"subscribers":  d.broadcaster.count(),
	})
}

func (d *Daemon) handleServerInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"version":      Version,
		"port":         d.Port(),
		"repoDir":      d.cfg.RepoDir,
		"worktreePath": d.cfg.WorktreePath,
	})
}

func (d *Daemon) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": Version})
}

func (d *Daemon) handleAllItems(w http.ResponseWriter, r *http.Request) {
	d.touch()
	items, err := d.api.GetAllItems(r.URL.Query().Get("search"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (d *Daemon) handlePendingWork(w http.ResponseWriter, r *http.Request) {
	d.touch()
	items, err := d.api.PendingWork()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (d *Daemon) handleRoots(w http.ResponseWriter, r *http.Request) {
	d.touch()
	ids, err := d.api.Roots()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ids)
}

func (d *Daemon) handleDag(w http.ResponseWriter, r *http.Request) {
	d.touch()
	nodes, err := d.api.GetAllItemsAsDag(r.URL.Query().Get("referenceId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nodes)
}

func (d *Daemon) handleAllowedStatuses(w http.ResponseWriter, r *http.Request) {
	d.touch()
	writeJSON(w, http.StatusOK, d.mgr.Statuses())
}

func (d *Daemon) handleGetTakers(w http.ResponseWriter, r *http.Request) {
	d.touch()
	takers, err := d.api.GetTakers()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, takers)
}

func (d *Daemon) handleAggregateStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"rebuilding": d.mgr.IsRebuilding()})
}

func (d *Daemon) handleGetLastChange(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"lastChange": d.LastChange()})
}

// --- writes (§4.9.1): POST + JSON body, uniform across semantic reads
// and writes alike ---

func (d *Daemon) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	if d.guardShuttingDown(w) {
		return
	}
	var body struct {
		Tagline      string `json:"tagline"`
		Status       string `json:"status"`
		InitialEntry string `json:"initialEntry"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	agg, err := d.api.CreateItem(body.Tagline, body.Status, body.InitialEntry)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, agg)
}

func (d *Daemon) handleGetItemDetails(w http.ResponseWriter, r *http.Request) {
	d.touch()
	var body struct {
		ItemID string `json:"itemId"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	agg, err := d.api.GetItemDetails(body.ItemID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agg)
}

func (d *Daemon) handleAddEntry(w http.ResponseWriter, r *http.Request) {
	if d.guardShuttingDown(w) {
		return
	}
	var body struct {
		ItemID string `json:"itemId"`
		Text   string `json:"text"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if err := d.api.AddEntry(body.ItemID, body.Text); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (d *Daemon) handleAlterTagline(w http.ResponseWriter, r *http.Request) {
	if d.guardShuttingDown(w) {
		return
	}
	var body struct {
		ItemID  string `json:"itemId"`
		Tagline string `json:"tagline"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if err := d.api.AlterTagline(body.ItemID, body.Tagline); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (d *Daemon) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	if d.guardShuttingDown(w) {
		return
	}
	var body struct {
		ItemID string `json:"itemId"`
		Status string `json:"status"`
		Text   string `json:"text"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if err := d.api.UpdateStatus(body.ItemID, body.Status, body.Text); err != nil {
		writeError(w, err)
		return
	}
	d.broadcaster.publish(sseMessage{Event: EventStatusesUpdated, Data: map[string]string{"itemId": body.ItemID, "status": body.Status}})
	writeJSON(w, http.StatusNoContent, nil)
}

func (d *Daemon) handleAddDependency(w http.ResponseWriter, r *http.Request) {
	if d.guardShuttingDown(w) {
		return
	}
	var body struct {
		ItemID   string `json:"itemId"`
		NeededID string `json:"neededId"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if err := d.api.AddDependency(body.ItemID, body.NeededID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (d *Daemon) handleRemoveDependency(w http.ResponseWriter, r *http.Request) {
	if d.guardShuttingDown(w) {
		return
	}
	var body struct {
		ItemID   string `json:"itemId"`
		NeededID string `json:"neededId"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if err := d.api.RemoveDependency(body.ItemID, body.NeededID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (d *Daemon) handleAddMonitor(w http.ResponseWriter, r *http.Request) {
	if d.guardShuttingDown(w) {
		return
	}
	var body struct {
		ItemID string `json:"itemId"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if err := d.api.AddMonitor(body.ItemID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (d *Daemon) handleRemoveMonitor(w http.ResponseWriter, r *http.Request) {
	if d.guardShuttingDown(w) {
		return
	}
	var body struct {
		ItemID string `json:"itemId"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if err := d.api.RemoveMonitor(body.ItemID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (d *Daemon) handleIgnoreItem(w http.ResponseWriter, r *http.Request) {
	if d.guardShuttingDown(w) {
		return
	}
	var body struct {
		ItemID string `json:"itemId"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if err := d.api.IgnoreItem(body.ItemID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (d *Daemon) handleUnignoreItem(w http.ResponseWriter, r *http.Request) {
	if d.guardShuttingDown(w) {
		return
	}
	var body struct {
		ItemID string `json:"itemId"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if err := d.api.UnignoreItem(body.ItemID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (d *Daemon) handleTakeItem(w http.ResponseWriter, r *http.Request) {
	if d.guardShuttingDown(w) {
		return
	}
	var body struct {
		ItemID string `json:"itemId"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if err := d.api.TakeItem(body.ItemID); err != nil {
		writeError(w, err)
		return
	}
	d.publishTakersUpdated()
	writeJSON(w, http.StatusNoContent, nil)
}

func (d *Daemon) handleSurrenderItem(w http.ResponseWriter, r *http.Request) {
	if d.guardShuttingDown(w) {
		return
	}
	var body struct {
		ItemID string `json:"itemId"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if err := d.api.SurrenderItem(body.ItemID); err != nil {
		writeError(w, err)
		return
	}
	d.publishTakersUpdated()
	writeJSON(w, http.StatusNoContent, nil)
}

func (d *Daemon) publishTakersUpdated() {
	takers, err := d.api.GetTakers()
	if err != nil {
		return
	}
	d.broadcaster.publish(sseMessage{Event: EventTakersUpdated, Data: map[string]interface{}{"takers": takers}})
}

func (d *Daemon) handleUpdateStatuses(w http.ResponseWriter, r *http.Request) {
	if d.guardShuttingDown(w) {
		return
	}
	var body struct {
		Name string `json:"name"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if err := d.api.UpdateStatuses(body.Name); err != nil {
		writeError(w, err)
		return
	}
	d.broadcaster.publish(sseMessage{Event: EventStatusesUpdated, Data: map[string]interface{}{"statuses": d.mgr.Statuses()}})
	writeJSON(w, http.StatusNoContent, nil)
}

// --- config (§3.4, §4.9.1) ---

func (d *Daemon) handleConfigGet(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Key string `json:"key"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"key": body.Key, "value": config.GetString(body.Key)})
}

func (d *Daemon) handleConfigSetProject(w http.ResponseWriter, r *http.Request) {
	if d.guardShuttingDown(w) {
		return
	}
	var body struct {
		Key   string      `json:"key"`
		Value interface{} `json:"value"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	config.Set(body.Key, body.Value)
	d.broadcaster.publish(sseMessage{Event: EventConfigurationUpdated, Data: map[string]interface{}{"key": body.Key, "value": body.Value}})
	writeJSON(w, http.StatusNoContent, nil)
}

func (d *Daemon) handleConfigNotifyChange(w http.ResponseWriter, r *http.Request) {
	var body map[string]interface{}
	if !decodeBody(w, r, &body) {
		return
	}
	d.broadcaster.publish(sseMessage{Event: EventConfigurationUpdated, Data: body})
	writeJSON(w, http.StatusNoContent, nil)
}

// --- dependency browsing, audit trail (§4.4, §4.6) ---

func (d *Daemon) handlePotentialDependencies(w http.ResponseWriter, r *http.Request) {
	d.touch()
	var body struct {
		ReferenceID string `json:"referenceId"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	ids, err := d.api.PotentialDependencies(body.ReferenceID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ids)
}

func (d *Daemon) handlePotentialDependents(w http.ResponseWriter, r *http.Request) {
	d.touch()
	var body struct {
		ReferenceID string `json:"referenceId"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	ids, err := d.api.PotentialDependents(body.ReferenceID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ids)
}

func (d *Daemon) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
	d.touch()
	var body struct {
		ItemID string `json:"itemId"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	trail, err := d.api.GetItemAuditTrail(body.ItemID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trail)
}

// --- fetch, shutdown, internal, logging (§4.8, §4.9) ---

func (d *Daemon) handleFetch(w http.ResponseWriter, r *http.Request) {
	if d.guardShuttingDown(w) {
		return
	}
	if d.worktree == nil {
		writeError(w, &sparkleapi.Error{Kind: sparkleapi.ErrFatal, Message: "no worktree configured"})
		return
	}
	d.broadcaster.publish(sseMessage{Event: EventFetchStatus, Data: map[string]string{"status": "fetching"}})
	files, _, _, err := d.worktree.FetchAndMerge(r.Context())
	if err != nil {
		d.onFetchResult(gitops.ClassifyError(err), nil)
		writeError(w, &sparkleapi.Error{Kind: sparkleapi.ErrFatal, Message: "fetch failed", Detail: err.Error()})
		return
	}
	d.onFetchResult(gitops.ClassifyError(err), files)
	writeJSON(w, http.StatusOK, map[string]int{"changedFiles": len(files)})
}

func (d *Daemon) handleShutdown(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusAccepted, map[string]bool{"shuttingDown": true})
	// Shutdown outlives this request: the HTTP server cancels r.Context()
	// the instant this handler returns, so the flush-and-close sequence
	// runs against a fresh background context instead.
	go func() { _ = d.shutdown(context.Background()) }()
}

func (d *Daemon) handleInternalAggregateUpdated(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ItemID string `json:"itemId"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	d.markChanged()
	d.broadcaster.publish(sseMessage{Event: EventAggregatesUpdated, Data: map[string]interface{}{"itemIds": []string{body.ItemID}, "reason": types.CauseExternalWrite}})
	writeJSON(w, http.StatusNoContent, nil)
}

func (d *Daemon) handleClientLog(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
	if err == nil && d.log != nil {
		d.log.Info("client log", zap.String("body", string(raw)))
	}
	writeJSON(w, http.StatusNoContent, nil)
}

