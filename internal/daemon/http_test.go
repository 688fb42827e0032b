package daemon

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/sparklehq/sparkle/internal/aggregates"
	"github.com/sparklehq/sparkle/internal/clock"
	"github.com/sparklehq/sparkle/internal/eventstore"
	"github.com/sparklehq/sparkle/internal/metrics"
	"github.com/sparklehq/sparkle/internal/sparkleapi"
	"github.com/sparklehq/sparkle/internal/types"
)

type noopScheduler struct{}

func (noopScheduler) NotifyFileCreated(string) {}

func testIdentity() (string, string, string, error) {
	return "Ada Lovelace", "ada@example.com", "deadbeefcafebabe", nil
}

func newTestDaemon(t *testing.T) *Daemon {
	t.Helper()
	fs := afero.NewMemMapFs()
	c := clock.NewWithSource(func() time.Time { return time.Unix(0, 0) })
	store := eventstore.New(fs, "/data", c)
	mgr := aggregates.New(store, fs, "/cache")
	api := sparkleapi.New(store, mgr, noopScheduler{}, testIdentity, c)
	return New(Config{}, api, mgr, nil, nil, metrics.New(), nil)
}

func doRequest(t *testing.T, d *Daemon, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	d.routes().ServeHTTP(rec, req)
	return rec
}

func createItem(t *testing.T, d *Daemon, tagline string) types.Aggregate {
	t.Helper()
	rec := doRequest(t, d, http.MethodPost, "/api/createItem", map[string]string{"tagline": tagline})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created types.Aggregate
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	return created
}

func TestHTTP_CreateAndGetItem(t *testing.T) {
	d := newTestDaemon(t)

	created := createItem(t, d, "write more tests")
	require.Equal(t, "write more tests", created.Tagline)
	require.Equal(t, types.StatusIncomplete, created.Status)

	rec := doRequest(t, d, http.MethodPost, "/api/getItemDetails", map[string]string{"itemId": created.ItemID})
	require.Equal(t, http.StatusOK, rec.Code)

	var fetched types.Aggregate
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fetched))
	require.Equal(t, created.ItemID, fetched.ItemID)
}

func TestHTTP_GetItemDetails_UnknownIDReturnsNotFound(t *testing.T) {
	d := newTestDaemon(t)
	rec := doRequest(t, d, http.MethodPost, "/api/getItemDetails", map[string]string{"itemId": "00000000"})
	require.Equal(t, http.StatusNotFound, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, string(sparkleapi.ErrNotFound), body["kind"])
}

func TestHTTP_CreateItem_RejectsEmptyTagline(t *testing.T) {
	d := newTestDaemon(t)
	rec := doRequest(t, d, http.MethodPost, "/api/createItem", map[string]string{"tagline": "   "})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHTTP_CreateItem_WithInitialEntry(t *testing.T) {
	d := newTestDaemon(t)
	rec := doRequest(t, d, http.MethodPost, "/api/createItem", map[string]string{"tagline": "track progress", "initialEntry": "kickoff note"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created types.Aggregate
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = doRequest(t, d, http.MethodPost, "/api/getItemAuditTrail", map[string]string{"itemId": created.ItemID})
	require.Equal(t, http.StatusOK, rec.Code)
	var trail []sparkleapi.AuditEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &trail))
	require.Len(t, trail, 2)
}

func TestHTTP_AddEntryAndAudit(t *testing.T) {
	d := newTestDaemon(t)
	created := createItem(t, d, "track progress")

	rec := doRequest(t, d, http.MethodPost, "/api/addEntry", map[string]string{"itemId": created.ItemID, "text": "first update"})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(t, d, http.MethodPost, "/api/getItemAuditTrail", map[string]string{"itemId": created.ItemID})
	require.Equal(t, http.StatusOK, rec.Code)

	var trail []sparkleapi.AuditEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &trail))
	require.Len(t, trail, 2)
}

func TestHTTP_AddDependency_RejectsCycle(t *testing.T) {
	d := newTestDaemon(t)

	a := createItem(t, d, "a")
	b := createItem(t, d, "b")

	rec := doRequest(t, d, http.MethodPost, "/api/addDependency", map[string]string{"itemId": a.ItemID, "neededId": b.ItemID})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(t, d, http.MethodPost, "/api/addDependency", map[string]string{"itemId": b.ItemID, "neededId": a.ItemID})
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestHTTP_PendingWork_ExcludesIgnoredItems(t *testing.T) {
	d := newTestDaemon(t)
	created := createItem(t, d, "ignore me")

	rec := doRequest(t, d, http.MethodPost, "/api/ignoreItem", map[string]string{"itemId": created.ItemID})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(t, d, http.MethodGet, "/api/pendingWork", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var pending []types.Aggregate
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pending))
	for _, agg := range pending {
		require.NotEqual(t, created.ItemID, agg.ItemID)
	}
}

func TestHTTP_AllItems_FiltersBySearch(t *testing.T) {
	d := newTestDaemon(t)
	createItem(t, d, "fix the leaky faucet")
	createItem(t, d, "write documentation")

	rec := doRequest(t, d, http.MethodGet, "/api/allItems?search=faucet", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var items []types.Aggregate
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	require.Len(t, items, 1)
}

func TestHTTP_TakeAndSurrenderItem(t *testing.T) {
	d := newTestDaemon(t)
	created := createItem(t, d, "claim me")

	rec := doRequest(t, d, http.MethodPost, "/api/takeItem", map[string]string{"itemId": created.ItemID})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(t, d, http.MethodGet, "/api/getTakers", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var takers []types.Person
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &takers))
	require.Len(t, takers, 1)

	rec = doRequest(t, d, http.MethodPost, "/api/surrenderItem", map[string]string{"itemId": created.ItemID})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(t, d, http.MethodGet, "/api/getTakers", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	takers = nil
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &takers))
	require.Len(t, takers, 0)
}

func TestHTTP_Roots_ReturnsItemsWithNoDependencies(t *testing.T) {
	d := newTestDaemon(t)
	a := createItem(t, d, "a")
	createItem(t, d, "b")

	rec := doRequest(t, d, http.MethodGet, "/api/roots", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var ids []string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ids))
	require.Contains(t, ids, a.ItemID)
}

func TestHTTP_AllowedStatuses_IncludesBuiltins(t *testing.T) {
	d := newTestDaemon(t)
	rec := doRequest(t, d, http.MethodGet, "/api/allowedStatuses", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var statuses []string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &statuses))
	require.Contains(t, statuses, types.StatusIncomplete)
}

func TestHTTP_UpdateStatuses_RegistersCustomStatus(t *testing.T) {
	d := newTestDaemon(t)
	rec := doRequest(t, d, http.MethodPost, "/api/updateStatuses", map[string]string{"name": "in-review"})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(t, d, http.MethodGet, "/api/allowedStatuses", nil)
	var statuses []string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &statuses))
	require.Contains(t, statuses, "in-review")
}

func TestHTTP_Ping(t *testing.T) {
	d := newTestDaemon(t)
	rec := doRequest(t, d, http.MethodGet, "/api/ping", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHTTP_AggregateStatus_ReflectsRebuilding(t *testing.T) {
	d := newTestDaemon(t)
	rec := doRequest(t, d, http.MethodGet, "/api/aggregateStatus", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]bool
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.False(t, body["rebuilding"])
}

func TestHTTP_Metrics_ServedAtSlashAPISlashMetrics(t *testing.T) {
	d := newTestDaemon(t)
	rec := doRequest(t, d, http.MethodGet, "/api/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "sparkle_")
}
