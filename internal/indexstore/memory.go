package indexstore

import (
	"context"
	"fmt"
)

// MemoryStore keeps the whole index in memory.
type MemoryStore struct {
	*Metadata
	postings map[string]PostingList
}

// NewMemoryStore builds a store from a snapshot. The snapshot must not be
// modified afterwards.
func NewMemoryStore(snap *Snapshot) (*MemoryStore, error) {
	if err := snap.Normalize(); err != nil {
		return nil, fmt.Errorf("building memory store: %w", err)
	}
	postings := make(map[string]PostingList, len(snap.Terms))
	for _, t := range snap.Terms {
		postings[t.Term] = t.Postings
	}
	return &MemoryStore{Metadata: snap.Metadata(), postings: postings}, nil
}

// OpenMemoryStore loads a JSON snapshot file into a MemoryStore.
func OpenMemoryStore(path string) (*MemoryStore, error) {
	snap, err := LoadSnapshot(path)
	if err != nil {
		return nil, err
	}
	return NewMemoryStore(snap)
}

func (s *MemoryStore) ReadPostingList(ctx context.Context, term string) (PostingList, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.postings[term], nil
}
