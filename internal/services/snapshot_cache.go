package services

import (
	"context"
	"fmt"

	"spendwise/internal/cache"
	"spendwise/internal/core"
	"spendwise/internal/ports"
)

// CachedSnapshotStore serves snapshots from an LRU in front of the durable
// store. Snapshots never change once written, so entries are only added
// after a successful read or save and are never invalidated.
type CachedSnapshotStore struct {
	next  ports.SnapshotStore
	cache cache.Cache[core.InsightSnapshot]
}

var _ ports.SnapshotStore = (*CachedSnapshotStore)(nil)

func NewCachedSnapshotStore(next ports.SnapshotStore, c cache.Cache[core.InsightSnapshot]) *CachedSnapshotStore {
	return &CachedSnapshotStore{next: next, cache: c}
}

func snapshotKey(ownerID string, month core.Month) string {
	return fmt.Sprintf("%s|%s", ownerID, month)
}

func (s *CachedSnapshotStore) GetSnapshot(ctx context.Context, ownerID string, month core.Month) (core.InsightSnapshot, error) {
	key := snapshotKey(ownerID, month)
	if snap, ok := s.cache.Get(key); ok {
		return snap, nil
	}
	snap, err := s.next.GetSnapshot(ctx, ownerID, month)
	if err != nil {
		return core.InsightSnapshot{}, err
	}
	s.cache.Set(key, snap)
	return snap, nil
}

func (s *CachedSnapshotStore) SaveSnapshot(ctx context.Context, snap core.InsightSnapshot) error {
	if err := s.next.SaveSnapshot(ctx, snap); err != nil {
		return err
	}
	s.cache.Set(snapshotKey(snap.OwnerID, snap.Month), snap)
	return nil
}
