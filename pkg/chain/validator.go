package chain

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// Validator walks a chain and reports every integrity violation found.
// It never short-circuits: each block is checked and each violation
// reported so callers get a complete diagnostic.
type Validator struct{}

// Validate checks every committed block and returns the list of
// violation descriptions, empty for a clean chain.
//
// Self-validation is read-only and order-independent, so it fans out
// across goroutines; linkage needs each block's immediate predecessor
// and runs as a single pass over adjacent pairs.
func (Validator) Validate(ctx context.Context, s Store) []string {
	blocks := slices.Collect(s.All())

	tampered := make([]bool, len(blocks))
	var wg sync.WaitGroup
	for i := range blocks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tampered[i] = !blocks[i].SelfValidate()
		}()
	}
	wg.Wait()

	var violations []string
	for i, b := range blocks {
		if tampered[i] {
			violations = append(violations, fmt.Sprintf("tampered at height %d", b.Height))
		}
		if i > 0 && b.PrevHash != blocks[i-1].Hash {
			violations = append(violations, fmt.Sprintf("broken linkage at height %d", b.Height))
		}
	}
	return violations
}
