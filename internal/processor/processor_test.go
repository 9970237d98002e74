package processor

import (
	"bytes"
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reception-agent-go/internal/config"
	"reception-agent-go/internal/dedup"
	"reception-agent-go/internal/logger"
	"reception-agent-go/internal/pipeline"
	"reception-agent-go/internal/store"
	"reception-agent-go/internal/types"
)

type stubTranscriber struct{ text string }

func (s stubTranscriber) Transcribe(context.Context, []byte, string) (string, error) {
	return s.text, nil
}

type flakyExtractor struct {
	fails  int
	fields types.RawFields
}

func (f *flakyExtractor) Extract(context.Context, string) (types.RawFields, error) {
	if f.fails > 0 {
		f.fails--
		return nil, types.ErrExtractionFailed
	}
	return f.fields, nil
}

func newService(t *testing.T, ex pipeline.Extractor) (*Service, *store.Store) {
	t.Helper()
	st, err := store.Open(context.Background(), config.Database{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "calls.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	tr := stubTranscriber{text: "Hi this is John, my number is 987-654-3210, billing issue, need refund for order 123."}
	orch := pipeline.New(tr, ex, st, dedup.NewDetector(0.6, dedup.Window{Size: 50}), logger.Discard())
	return New(orch, st, time.Hour, logger.Discard()), st
}

func johnFields() types.RawFields {
	return types.RawFields{
		"caller_name": "John",
		"phone":       "987-654-3210",
		"department":  "Billing",
		"summary":     "Refund for order 123",
		"priority":    "High",
	}
}

func TestSessionLifecycle(t *testing.T) {
	svc, st := newService(t, &flakyExtractor{fields: johnFields()})
	ctx := context.Background()

	v, err := svc.Start(ctx, pipeline.Upload{Audio: []byte("audio"), Filename: "call.MP3"})
	require.NoError(t, err)
	assert.Equal(t, pipeline.StateAwaitingReview, v.State)
	assert.Equal(t, "mp3", v.Format)
	require.NotNil(t, v.Draft)
	assert.Equal(t, "9876543210", v.Draft.PhoneNumber, "draft is editable and unmasked")

	v, err = svc.Edit(v.ID, func(rec types.CallRecord) types.CallRecord {
		rec.Department = "Accounts"
		return rec
	})
	require.NoError(t, err)
	assert.Equal(t, "Accounts", v.Draft.Department)

	v, err = svc.Confirm(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, pipeline.StateSaved, v.State)
	require.NotNil(t, v.Saved)
	assert.Equal(t, "9876******", v.Saved.PhoneNumber)

	_, err = svc.Get(v.ID)
	require.ErrorIs(t, err, types.ErrNotFound, "confirmed sessions are dropped")

	stored, err := st.Get(ctx, v.Saved.ID)
	require.NoError(t, err)
	assert.Equal(t, "9876543210", stored.PhoneNumber)
	assert.Equal(t, "Accounts", stored.Department)

	got, err := svc.GetCall(ctx, v.Saved.ID)
	require.NoError(t, err)
	assert.Equal(t, "9876******", got.PhoneNumber)

	list, err := svc.ListCalls(ctx, store.Filter{Query: "refund"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "9876******", list[0].PhoneNumber)
}

func TestConcurrentEditsAllLand(t *testing.T) {
	svc, _ := newService(t, &flakyExtractor{fields: johnFields()})
	v, err := svc.Start(context.Background(), pipeline.Upload{Audio: []byte("audio"), Format: "mp3"})
	require.NoError(t, err)

	edits := []func(*types.CallRecord){
		func(r *types.CallRecord) { r.CallerName = "Johnny" },
		func(r *types.CallRecord) { r.Department = "Accounts" },
		func(r *types.CallRecord) { r.Summary = "Refund for order 456" },
		func(r *types.CallRecord) { r.AIResponse = "We will refund you." },
		func(r *types.CallRecord) { r.Priority = types.PriorityLow },
	}
	var wg sync.WaitGroup
	for _, edit := range edits {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Edit(v.ID, func(rec types.CallRecord) types.CallRecord {
				time.Sleep(time.Millisecond)
				edit(&rec)
				return rec
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	v, err = svc.Get(v.ID)
	require.NoError(t, err)
	assert.Equal(t, "Johnny", v.Draft.CallerName)
	assert.Equal(t, "Accounts", v.Draft.Department)
	assert.Equal(t, "Refund for order 456", v.Draft.Summary)
	assert.Equal(t, "We will refund you.", v.Draft.AIResponse)
	assert.Equal(t, types.PriorityLow, v.Draft.Priority)
}

func TestSecondUploadIsFlaggedAsDuplicate(t *testing.T) {
	svc, _ := newService(t, &flakyExtractor{fields: johnFields()})
	ctx := context.Background()

	first, err := svc.Start(ctx, pipeline.Upload{Audio: []byte("a"), Format: "wav"})
	require.NoError(t, err)
	_, err = svc.Confirm(ctx, first.ID)
	require.NoError(t, err)

	second, err := svc.Start(ctx, pipeline.Upload{Audio: []byte("b"), Format: "wav"})
	require.NoError(t, err)
	require.NotNil(t, second.Duplicate)
	assert.Equal(t, "9876******", second.Duplicate.Record.PhoneNumber)

	saved, err := svc.Confirm(ctx, second.ID)
	require.NoError(t, err, "duplicates are advisory")
	require.NotNil(t, saved.Saved)
	assert.Equal(t, int64(2), saved.Saved.ID)
}

func TestFailedSessionCanBeRetried(t *testing.T) {
	svc, st := newService(t, &flakyExtractor{fails: 1, fields: johnFields()})
	ctx := context.Background()

	v, err := svc.Start(ctx, pipeline.Upload{Audio: []byte("audio"), Format: "ogg"})
	require.ErrorIs(t, err, types.ErrExtractionFailed)
	assert.True(t, IsSessionError(err))
	assert.Equal(t, pipeline.StateFailed, v.State)
	assert.Equal(t, pipeline.StateExtracting, v.FailedStage)
	assert.Nil(t, v.Draft)

	n, err := st.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	v, err = svc.Retry(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, pipeline.StateAwaitingReview, v.State)
	assert.Empty(t, v.Error)
}

func TestUnsupportedFormatCreatesNoSession(t *testing.T) {
	svc, _ := newService(t, &flakyExtractor{fields: johnFields()})
	_, err := svc.Start(context.Background(), pipeline.Upload{Audio: []byte("a"), Filename: "call.flac"})
	require.ErrorIs(t, err, types.ErrUnsupportedFormat)
	assert.False(t, IsSessionError(err))
	assert.Empty(t, svc.sessions)
}

func TestDiscardAndExpiry(t *testing.T) {
	svc, _ := newService(t, &flakyExtractor{fields: johnFields()})
	ctx := context.Background()

	v, err := svc.Start(ctx, pipeline.Upload{Audio: []byte("a"), Format: "mp3"})
	require.NoError(t, err)
	require.NoError(t, svc.Discard(v.ID))
	require.ErrorIs(t, svc.Discard(v.ID), types.ErrNotFound)

	v, err = svc.Start(ctx, pipeline.Upload{Audio: []byte("a"), Format: "mp3"})
	require.NoError(t, err)
	later := time.Now().Add(2 * time.Hour)
	svc.now = func() time.Time { return later }

	_, err = svc.Get(v.ID)
	require.ErrorIs(t, err, types.ErrNotFound)
	assert.Equal(t, 1, svc.Sweep())
	assert.Zero(t, svc.Sweep())
}

func TestStatsAndExport(t *testing.T) {
	svc, _ := newService(t, &flakyExtractor{fields: johnFields()})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		v, err := svc.Start(ctx, pipeline.Upload{Audio: []byte("a"), Format: "mp3"})
		require.NoError(t, err)
		_, err = svc.Confirm(ctx, v.ID)
		require.NoError(t, err)
	}

	rep, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Stats.Total)
	assert.Equal(t, 2, rep.Stats.ByDepartment["Billing"])
	assert.NotEmpty(t, rep.Action.Insight)

	var buf bytes.Buffer
	n, err := svc.Export(ctx, &buf, "")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NotZero(t, buf.Len())

	require.ErrorIs(t, svc.DeleteCall(ctx, 999), types.ErrNotFound)
}
