package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reception-agent-go/internal/config"
	"reception-agent-go/internal/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), config.Database{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "calls.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleCall(name, summary string) types.CallRecord {
	return types.CallRecord{
		CallerName:  name,
		PhoneNumber: "9876543210",
		Department:  "Billing",
		Summary:     summary,
		Priority:    types.PriorityHigh,
		AIResponse:  "We will call you back.",
		Transcript:  "transcript for " + summary,
	}
}

func TestInsertAssignsIDAndTimestamp(t *testing.T) {
	s := openTestStore(t)
	fixed := time.Date(2025, 3, 4, 5, 6, 7, 8, time.UTC)
	s.now = func() time.Time { return fixed }
	ctx := context.Background()

	saved, err := s.Insert(ctx, sampleCall("John", "refund request"))
	require.NoError(t, err)
	assert.NotZero(t, saved.ID)
	assert.Equal(t, fixed, saved.CreatedAt)

	got, err := s.Get(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, saved, got)
	assert.Equal(t, "9876543210", got.PhoneNumber, "phone is stored unmasked")
}

func TestInsertAssignsUniqueIDs(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seen := map[int64]bool{}
	for i := 0; i < 5; i++ {
		rec, err := s.Insert(ctx, sampleCall("John", fmt.Sprintf("call %d", i)))
		require.NoError(t, err)
		assert.False(t, seen[rec.ID])
		seen[rec.ID] = true
	}
}

func TestInsertRejectsInvalidRecord(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	bad := sampleCall("John", "x")
	bad.Priority = "URGENT"
	_, err := s.Insert(ctx, bad)
	require.Error(t, err)

	bad = sampleCall("John", "x")
	bad.PhoneNumber = "9876******"
	_, err = s.Insert(ctx, bad)
	require.Error(t, err)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDeleteMissingLeavesStoreUnchanged(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	_, err := s.Insert(ctx, sampleCall("John", "refund request"))
	require.NoError(t, err)

	before, err := s.Count(ctx)
	require.NoError(t, err)

	err = s.Delete(ctx, 9999)
	require.ErrorIs(t, err, types.ErrNotFound)

	after, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestDeleteRemovesRecord(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	rec, err := s.Insert(ctx, sampleCall("John", "refund request"))
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, rec.ID))

	_, err = s.Get(ctx, rec.ID)
	require.ErrorIs(t, err, types.ErrNotFound)
	require.ErrorIs(t, s.Delete(ctx, rec.ID), types.ErrNotFound)
}

func TestListSearchAndOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first, err := s.Insert(ctx, sampleCall("John", "Refund for order 123"))
	require.NoError(t, err)
	second := sampleCall("Maria", "Delivery delayed")
	second.Department = "Logistics"
	_, err = s.Insert(ctx, second)
	require.NoError(t, err)
	third := sampleCall("Ana", "General question")
	third.Transcript = "the caller mentioned a 50% DISCOUNT"
	_, err = s.Insert(ctx, third)
	require.NoError(t, err)

	all, err := s.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "Ana", all[0].CallerName, "newest first")

	cases := map[string][]string{
		"john":       {"John"},
		"LOGISTICS":  {"Maria"},
		"refund":     {"John"},
		"discount":   {"Ana"},
		"50%":        {"Ana"},
		"nobody":     nil,
		"order 1_3":  nil,
		"   maria  ": {"Maria"},
	}
	for q, want := range cases {
		got, err := s.List(ctx, Filter{Query: q})
		require.NoError(t, err, q)
		var names []string
		for _, r := range got {
			names = append(names, r.CallerName)
		}
		assert.Equal(t, want, names, "query %q", q)
	}

	page, err := s.List(ctx, Filter{Limit: 1, Offset: 2})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, first.ID, page[0].ID)
}

func TestListSearchFoldsNonASCII(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Insert(ctx, sampleCall("Émile", "Ärger mit Rechnung"))
	require.NoError(t, err)
	_, err = s.Insert(ctx, sampleCall("John", "refund request"))
	require.NoError(t, err)

	for _, q := range []string{"Émile", "émile", "ÉMILE", "ärger", "ÄRGER", "rechnung"} {
		got, err := s.List(ctx, Filter{Query: q})
		require.NoError(t, err, q)
		require.Len(t, got, 1, "query %q", q)
		assert.Equal(t, "Émile", got[0].CallerName, "stored text keeps its case")
	}
}

func TestRecentHonorsLimit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		_, err := s.Insert(ctx, sampleCall("John", fmt.Sprintf("call %d", i)))
		require.NoError(t, err)
	}

	recent, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "call 3", recent[0].Summary)
	assert.Equal(t, "call 2", recent[1].Summary)

	none, err := s.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calls.db")
	ctx := context.Background()
	cfg := config.Database{Driver: "sqlite", DSN: path}

	s, err := Open(ctx, cfg)
	require.NoError(t, err)
	_, err = s.Insert(ctx, sampleCall("John", "persisted"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(ctx, cfg)
	require.NoError(t, err)
	defer s.Close()
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRebind(t *testing.T) {
	assert.Equal(t, "SELECT 1 WHERE a = $1 AND b = $2", postgresDialect.rebind("SELECT 1 WHERE a = ? AND b = ?"))
	assert.Equal(t, "SELECT ?", sqliteDialect.rebind("SELECT ?"))

	_, err := dialectFor("oracle")
	assert.Error(t, err)
}
