package retention

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dealerchat/pkg/config"
	"dealerchat/pkg/models"
	"dealerchat/pkg/store"
)

type fakePurger struct {
	calls   []int64
	batches []store.PurgeResult
}

func (f *fakePurger) PurgeDeleted(before int64, limit int, dryRun bool) (store.PurgeResult, error) {
	f.calls = append(f.calls, before)
	if len(f.batches) == 0 {
		return store.PurgeResult{}, nil
	}
	r := f.batches[0]
	f.batches = f.batches[1:]
	return r, nil
}

func TestNewRejectsInvalidCron(t *testing.T) {
	_, err := New(&fakePurger{}, config.RetentionConfig{Cron: "not a cron"}, "")
	assert.Error(t, err)
}

func TestRunOnceLoopsUntilShortBatch(t *testing.T) {
	dir := t.TempDir()
	fp := &fakePurger{batches: []store.PurgeResult{{Leads: 2, Messages: 9, Appointments: 2}, {Chats: 1}}}
	r, err := New(fp, config.RetentionConfig{BatchSize: 2, Period: config.Duration(time.Hour)}, dir)
	require.NoError(t, err)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	total, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, store.PurgeResult{Leads: 2, Messages: 9, Appointments: 2, Chats: 1}, total)
	require.Len(t, fp.calls, 2)
	assert.Equal(t, now.Add(-time.Hour).UnixNano(), fp.calls[0])

	raw, err := os.ReadFile(filepath.Join(dir, "last_run.json"))
	require.NoError(t, err)
	var rep Report
	require.NoError(t, json.Unmarshal(raw, &rep))
	assert.Equal(t, 14, rep.Purged.Total())
}

func TestRunOncePurgesStore(t *testing.T) {
	db, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	past := time.Now().Add(-48 * time.Hour)
	db.SetClock(func() time.Time { return past })
	lead := models.Lead{ID: "lead-1", CustomerID: "c", CarID: "car", Type: models.LeadTestDrive, Status: models.LeadNew}
	require.NoError(t, db.CreateLead(lead))
	_, err = db.SoftDeleteLead(lead.ID)
	require.NoError(t, err)
	db.SetClock(time.Now)

	r, err := New(db, config.RetentionConfig{Period: config.Duration(24 * time.Hour)}, "")
	require.NoError(t, err)
	total, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, total.Leads)

	_, err = db.GetLead(lead.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStartDisabled(t *testing.T) {
	cancel, err := Start(context.Background(), &fakePurger{}, config.RetentionConfig{}, "")
	require.NoError(t, err)
	cancel()
}
