package reconcile

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vodcast/internal/domain"
	"vodcast/internal/store"
)

func newTestStore(t *testing.T) *store.SQLStore {
	t.Helper()
	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "db", "vodcast.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestReconcileInsertsNewConfiguredFeeds(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	r := New(s)

	configured := []*domain.Feed{
		{ID: "a", SourceType: domain.SourceChannel, SourceURL: "https://example.test/@a", Schedule: "0 3 * * *"},
	}
	require.NoError(t, r.Reconcile(ctx, configured))

	got, err := s.GetFeed(ctx, "a")
	require.NoError(t, err)
	assert.True(t, got.IsEnabled)
}

func TestReconcileDisablesFeedsRemovedFromConfig(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	r := New(s)

	first := []*domain.Feed{
		{ID: "a", SourceType: domain.SourceChannel, SourceURL: "https://example.test/@a"},
		{ID: "b", SourceType: domain.SourceChannel, SourceURL: "https://example.test/@b"},
	}
	require.NoError(t, r.Reconcile(ctx, first))

	second := []*domain.Feed{
		{ID: "a", SourceType: domain.SourceChannel, SourceURL: "https://example.test/@a"},
	}
	require.NoError(t, r.Reconcile(ctx, second))

	a, err := s.GetFeed(ctx, "a")
	require.NoError(t, err)
	assert.True(t, a.IsEnabled)

	b, err := s.GetFeed(ctx, "b")
	require.NoError(t, err)
	assert.False(t, b.IsEnabled)
}

func TestReconcileLeavesAlreadyDisabledFeedsUntouched(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	r := New(s)

	require.NoError(t, r.Reconcile(ctx, []*domain.Feed{
		{ID: "a", SourceType: domain.SourceChannel, SourceURL: "https://example.test/@a"},
	}))
	require.NoError(t, r.Reconcile(ctx, nil))
	require.NoError(t, r.Reconcile(ctx, nil))

	a, err := s.GetFeed(ctx, "a")
	require.NoError(t, err)
	assert.False(t, a.IsEnabled)
}
