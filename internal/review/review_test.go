package review

import (
	"bytes"
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/spigell/jobnorm/internal/dedupe"
	"github.com/spigell/jobnorm/internal/store"
	"github.com/spigell/jobnorm/internal/store/sqlstore"
)

// seed stores one canonical job and two pending duplicates of it.
func seed(t *testing.T) (*sqlstore.Store, []int64) {
	t.Helper()
	ctx := context.Background()

	s, err := sqlstore.Open(ctx, sqlstore.Config{Driver: sqlstore.DriverSQLite, DSN: ":memory:"}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	ids := make([]int64, 0, 3)
	for i, title := range []string{"Data Analyst", "Data Analyst II", "Data Analyst (Nairobi)"} {
		id, err := s.InsertJob(ctx, store.RawJob{
			Source:   "test",
			URL:      "https://jobs.example/" + strconv.Itoa(i),
			URLHash:  "h" + strconv.Itoa(i),
			TitleRaw: title,
		})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	sig := dedupe.Signature{1, 2, 3}
	require.NoError(t, s.CommitDedupe(ctx, dedupe.Decision{JobID: ids[0], CanonicalID: ids[0], Similarity: 1, Signature: sig}))
	require.NoError(t, s.CommitDedupe(ctx, dedupe.Decision{JobID: ids[1], CanonicalID: ids[0], Similarity: 0.95, Signature: sig, Duplicate: true}))
	require.NoError(t, s.CommitDedupe(ctx, dedupe.Decision{JobID: ids[2], CanonicalID: ids[0], Similarity: 0.92, Signature: sig, Duplicate: true}))
	return s, ids
}

// primedCache returns a cache with a loaded index and a counter of loads.
func primedCache(t *testing.T) (*dedupe.IndexCache, *int) {
	t.Helper()
	cache := &dedupe.IndexCache{}
	loads := 0
	_, err := cache.Get(context.Background(), dedupe.DefaultConfig(), func(context.Context) ([]dedupe.Entry, error) {
		loads++
		return nil, nil
	})
	require.NoError(t, err)
	return cache, &loads
}

func reload(t *testing.T, cache *dedupe.IndexCache, loads *int) {
	t.Helper()
	_, err := cache.Get(context.Background(), dedupe.DefaultConfig(), func(context.Context) ([]dedupe.Entry, error) {
		*loads++
		return nil, nil
	})
	require.NoError(t, err)
}

func TestPending(t *testing.T) {
	s, ids := seed(t)
	svc := New(s, &dedupe.IndexCache{}, zap.NewNop())

	got, err := svc.Pending(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, ids[1], got[0].Job.ID)
	assert.Equal(t, ids[0], got[0].Canonical.ID)
	assert.Equal(t, "Data Analyst", got[0].Canonical.TitleRaw)
	assert.Equal(t, ids[2], got[1].Job.ID)

	limited, err := svc.Pending(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestMergeAndDismiss(t *testing.T) {
	s, ids := seed(t)
	ctx := context.Background()
	cache, loads := primedCache(t)
	svc := New(s, cache, zap.NewNop())

	_, err := svc.Merge(ctx, ids[1], "alice")
	require.NoError(t, err)
	reload(t, cache, loads)
	assert.Equal(t, 1, *loads, "merge keeps the index")

	require.NoError(t, svc.Dismiss(ctx, ids[2], "alice"))
	reload(t, cache, loads)
	assert.Equal(t, 2, *loads, "dismiss drops the index")

	m, err := s.GetDedupe(ctx, ids[1])
	require.NoError(t, err)
	assert.Equal(t, dedupe.StatusMerged, m.Status)
	assert.Equal(t, "alice", m.ReviewedBy)

	_, err = svc.Merge(ctx, ids[1], "bob")
	require.ErrorIs(t, err, dedupe.ErrTerminalStatus)
	require.ErrorIs(t, svc.Dismiss(ctx, ids[2], "bob"), dedupe.ErrTerminalStatus)

	pending, err := svc.Pending(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestExpire(t *testing.T) {
	s, ids := seed(t)
	ctx := context.Background()
	svc := New(s, &dedupe.IndexCache{}, zap.NewNop())

	_, err := svc.Expire(ctx, 0)
	require.Error(t, err)

	n, err := svc.Expire(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n)

	svc.now = func() time.Time { return time.Now().UTC().Add(48 * time.Hour) }
	n, err = svc.Expire(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	m, err := s.GetDedupe(ctx, ids[2])
	require.NoError(t, err)
	assert.Equal(t, dedupe.StatusDismissed, m.Status)
	assert.Equal(t, ExpireReviewer, m.ReviewedBy)

	self, err := s.GetDedupe(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, dedupe.StatusPending, self.Status)
}

func TestExport(t *testing.T) {
	s, ids := seed(t)
	svc := New(s, &dedupe.IndexCache{}, zap.NewNop())

	data, err := svc.Export(context.Background(), 0)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{exportSheet}, f.GetSheetList())
	rows, err := f.GetRows(exportSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, exportHeaders, rows[0])
	assert.Equal(t, strconv.FormatInt(ids[1], 10), rows[1][0])
	assert.Equal(t, "Data Analyst II", rows[1][1])
	assert.Equal(t, strconv.FormatInt(ids[0], 10), rows[1][3])
	assert.Equal(t, "0.95", rows[1][6])
}

type scripted struct {
	answers []string
	labels  []string
}

func (p *scripted) Select(label string, _ []string) (string, error) {
	p.labels = append(p.labels, label)
	if len(p.answers) == 0 {
		return "", promptui.ErrInterrupt
	}
	answer := p.answers[0]
	p.answers = p.answers[1:]
	return answer, nil
}

func TestInteractive(t *testing.T) {
	t.Run("decisions", func(t *testing.T) {
		s, ids := seed(t)
		ctx := context.Background()
		svc := New(s, &dedupe.IndexCache{}, zap.NewNop())
		p := &scripted{answers: []string{PromptMerge, PromptDismiss}}

		tally, err := svc.Interactive(ctx, p, "carol", 0)
		require.NoError(t, err)
		assert.Equal(t, Tally{Merged: 1, Dismissed: 1}, tally)
		require.Len(t, p.labels, 2)
		assert.Contains(t, p.labels[0], "Data Analyst II")

		m, err := s.GetDedupe(ctx, ids[2])
		require.NoError(t, err)
		assert.Equal(t, dedupe.StatusDismissed, m.Status)
	})

	t.Run("quit and interrupt", func(t *testing.T) {
		s, _ := seed(t)
		svc := New(s, &dedupe.IndexCache{}, zap.NewNop())

		tally, err := svc.Interactive(context.Background(), &scripted{answers: []string{PromptSkip, PromptQuit}}, "carol", 0)
		require.NoError(t, err)
		assert.Equal(t, Tally{Skipped: 1}, tally)

		tally, err = svc.Interactive(context.Background(), &scripted{}, "carol", 0)
		require.NoError(t, err)
		assert.Equal(t, Tally{}, tally)
	})
}
