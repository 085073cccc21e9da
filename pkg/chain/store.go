package chain

import (
	"iter"
	"sync"
)

// Store owns the committed chain sequence and its height counter.
// Append is internal to the service append protocol; nothing else may
// mutate the chain. Defined as an interface so a durable append-only
// backend can replace the in-memory one without touching validation or
// append logic.
type Store interface {
	// Height returns the current chain height, -1 when empty.
	Height() int64
	// Tail returns the last committed block, false when empty.
	Tail() (Block, bool)
	// Append commits b as the new tail. Callers must have validated first.
	Append(b Block)
	// All yields committed blocks in height order over a consistent
	// snapshot; the sequence is restartable.
	All() iter.Seq[Block]
}

type MemoryStore struct {
	mu     sync.RWMutex
	blocks []Block
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Height() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.blocks)) - 1
}

func (s *MemoryStore) Tail() (Block, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.blocks) == 0 {
		return Block{}, false
	}
	return s.blocks[len(s.blocks)-1], true
}

func (s *MemoryStore) Append(b Block) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks = append(s.blocks, b)
}

func (s *MemoryStore) All() iter.Seq[Block] {
	s.mu.RLock()
	snapshot := make([]Block, len(s.blocks))
	copy(snapshot, s.blocks)
	s.mu.RUnlock()

	return func(yield func(Block) bool) {
		for _, b := range snapshot {
			if !yield(b) {
				return
			}
		}
	}
}
