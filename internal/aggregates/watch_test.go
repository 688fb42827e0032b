package aggregates

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/sparklehq/sparkle/internal/clock"
	"github.com/sparklehq/sparkle/internal/eventstore"
	"github.com/sparklehq/sparkle/internal/types"
)

func TestWatchExternalWrites_PicksUpFileWrittenOutsideTheAPI(t *testing.T) {
	dir := t.TempDir()
	fs := afero.NewOsFs()
	c := clock.NewWithSource(func() time.Time { return time.Unix(0, 0) })
	store := eventstore.New(fs, dir, c)
	mgr := New(store, fs, filepath.Join(dir, "cache"))

	body := types.CreatedBody{ItemID: "12345678", Tagline: "external item", Status: types.StatusIncomplete}
	_, err := store.WriteCreated("12345678", body)
	require.NoError(t, err)
	require.NoError(t, mgr.UpdateForEvent("12345678", types.CauseUserEdit))

	watcher, err := mgr.WatchExternalWrites(dir, nil)
	require.NoError(t, err)
	defer watcher.Close()

	taglineBody := types.TaglineBody{Tagline: "written by another process"}
	data, err := json.Marshal(taglineBody)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "12345678.tagline.20260101000000000.aaaaaaaa.json"), data, 0640))

	require.Eventually(t, func() bool {
		agg, ok := mgr.Get("12345678")
		return ok && agg.Tagline == "written by another process"
	}, 2*time.Second, 20*time.Millisecond, "expected external write to be picked up")
}
