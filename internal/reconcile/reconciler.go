// Package reconcile matches configured feeds against stored rows at
// startup: new feeds are inserted enabled, stored feeds missing from the
// configuration are disabled (never deleted, so their downloads and
// published RSS survive until an operator removes them outright).
package reconcile

import (
	"context"
	"fmt"

	"vodcast/internal/domain"
	"vodcast/internal/store"
)

// StateReconciler owns the one startup reconciliation pass.
type StateReconciler struct {
	Store store.Store
}

// New constructs a StateReconciler.
func New(s store.Store) *StateReconciler {
	return &StateReconciler{Store: s}
}

// Reconcile upserts every entry in configured (enabling it) and disables
// any stored feed whose ID no longer appears there.
func (r *StateReconciler) Reconcile(ctx context.Context, configured []*domain.Feed) error {
	seen := make(map[string]bool, len(configured))
	for _, f := range configured {
		seen[f.ID] = true
		f.IsEnabled = true
		if err := r.Store.UpsertFeed(ctx, f); err != nil {
			return fmt.Errorf("reconcile: upsert configured feed %s: %w", f.ID, err)
		}
	}

	existing, err := r.Store.ListFeeds(ctx)
	if err != nil {
		return fmt.Errorf("reconcile: list stored feeds: %w", err)
	}
	for _, f := range existing {
		if seen[f.ID] || !f.IsEnabled {
			continue
		}
		f.IsEnabled = false
		if err := r.Store.UpsertFeed(ctx, f); err != nil {
			return fmt.Errorf("reconcile: disable removed feed %s: %w", f.ID, err)
		}
	}
	return nil
}
