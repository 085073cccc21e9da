package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/uhyunpark/starledger/pkg/crypto"
	"github.com/uhyunpark/starledger/pkg/ownership"
	"github.com/uhyunpark/starledger/pkg/util"
)

func newTestChain(t *testing.T) (*Service, *MemoryStore, *util.FakeClock, *crypto.Signer) {
	t.Helper()
	store := NewMemoryStore()
	clock := util.NewFakeClock(time.Unix(1_700_000_000, 0))
	signer, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	svc, err := New(store, ownership.NewVerifier(clock, 0), clock, nil)
	if err != nil {
		t.Fatalf("failed to build service: %v", err)
	}
	return svc, store, clock, signer
}

// submitStar runs the full challenge/sign/submit flow for signer.
func submitStar(t *testing.T, svc *Service, signer *crypto.Signer, star string) Block {
	t.Helper()
	ctx := context.Background()
	address := signer.Address().Hex()

	message, err := svc.RequestChallenge(ctx, address)
	if err != nil {
		t.Fatalf("RequestChallenge() failed: %v", err)
	}
	sig, err := signer.SignText(message)
	if err != nil {
		t.Fatalf("failed to sign challenge: %v", err)
	}

	b, err := svc.SubmitStar(ctx, address, message, fmt.Sprintf("0x%x", sig), json.RawMessage(star))
	if err != nil {
		t.Fatalf("SubmitStar() failed: %v", err)
	}
	return b
}

func TestFreshServiceHasGenesis(t *testing.T) {
	svc, store, _, _ := newTestChain(t)
	ctx := context.Background()

	if got := svc.Height(ctx); got != 0 {
		t.Errorf("Height() = %d on fresh service, want 0", got)
	}

	genesis, err := svc.BlockByHeight(ctx, 0)
	if err != nil || genesis == nil {
		t.Fatalf("BlockByHeight(0) = (%v, %v), want genesis", genesis, err)
	}
	if !genesis.PrevHash.IsZero() {
		t.Error("genesis has a previous hash")
	}
	if !genesis.SelfValidate() {
		t.Error("genesis does not self-validate")
	}

	rec, err := genesis.DecodeStar()
	if err != nil {
		t.Fatalf("DecodeStar() failed: %v", err)
	}
	if rec != nil {
		t.Errorf("genesis decoded to a star record: %+v", rec)
	}

	// Exactly one block.
	if len(store.blocks) != 1 {
		t.Errorf("store holds %d blocks, want 1", len(store.blocks))
	}

	// Constructing a second service over the same store must not mint
	// another genesis.
	if _, err := New(store, ownership.NewVerifier(util.RealClock{}, 0), util.RealClock{}, nil); err != nil {
		t.Fatalf("second New() failed: %v", err)
	}
	if len(store.blocks) != 1 {
		t.Errorf("store holds %d blocks after re-wrapping, want 1", len(store.blocks))
	}
}

func TestSubmitStarAppends(t *testing.T) {
	svc, _, _, signer := newTestChain(t)
	ctx := context.Background()

	b := submitStar(t, svc, signer, `{"ra":"16h","dec":"-26","story":"s1"}`)

	if b.Height != 1 {
		t.Errorf("committed height = %d, want 1", b.Height)
	}
	genesis, _ := svc.BlockByHeight(ctx, 0)
	if b.PrevHash != genesis.Hash {
		t.Errorf("PrevHash = %s, want genesis hash %s", b.PrevHash, genesis.Hash)
	}
	if !b.SelfValidate() {
		t.Error("committed block does not self-validate")
	}
	if got := svc.ValidateChain(ctx); len(got) != 0 {
		t.Errorf("ValidateChain() = %v after append, want empty", got)
	}
}

func TestChainInvariants(t *testing.T) {
	// For all i > 0: height == i and PrevHash == predecessor's hash.
	svc, store, _, signer := newTestChain(t)

	for i := 0; i < 4; i++ {
		submitStar(t, svc, signer, fmt.Sprintf(`{"story":"s%d"}`, i))
	}

	for i, b := range store.blocks {
		if b.Height != int64(i) {
			t.Errorf("blocks[%d].Height = %d", i, b.Height)
		}
		if !b.SelfValidate() {
			t.Errorf("blocks[%d] does not self-validate", i)
		}
		if i > 0 && b.PrevHash != store.blocks[i-1].Hash {
			t.Errorf("blocks[%d].PrevHash does not match predecessor", i)
		}
	}
}

func TestSubmitStarExpiredChallenge(t *testing.T) {
	// Valid signature, stale challenge: the window check wins.
	svc, _, clock, signer := newTestChain(t)
	ctx := context.Background()
	address := signer.Address().Hex()

	message, err := svc.RequestChallenge(ctx, address)
	if err != nil {
		t.Fatalf("RequestChallenge() failed: %v", err)
	}
	sig, err := signer.SignText(message)
	if err != nil {
		t.Fatalf("failed to sign: %v", err)
	}

	clock.Advance(301 * time.Second)

	_, err = svc.SubmitStar(ctx, address, message, fmt.Sprintf("0x%x", sig), json.RawMessage(`{}`))
	if !errors.Is(err, ownership.ErrChallengeExpired) {
		t.Errorf("SubmitStar() = %v, want ErrChallengeExpired", err)
	}
	if got := svc.Height(ctx); got != 0 {
		t.Errorf("Height() = %d after failed submit, want 0", got)
	}
}

func TestSubmitStarBadSignature(t *testing.T) {
	svc, _, _, signer := newTestChain(t)
	ctx := context.Background()
	address := signer.Address().Hex()

	message, err := svc.RequestChallenge(ctx, address)
	if err != nil {
		t.Fatalf("RequestChallenge() failed: %v", err)
	}

	other, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	sig, err := other.SignText(message)
	if err != nil {
		t.Fatalf("failed to sign: %v", err)
	}

	_, err = svc.SubmitStar(ctx, address, message, fmt.Sprintf("0x%x", sig), json.RawMessage(`{}`))
	if !errors.Is(err, ownership.ErrSignatureInvalid) {
		t.Errorf("SubmitStar() = %v, want ErrSignatureInvalid", err)
	}
}

func TestSubmitStarOntoCorruptChain(t *testing.T) {
	// The pre-append gate refuses to grow a chain already known bad and
	// leaves it untouched.
	svc, store, _, signer := newTestChain(t)
	ctx := context.Background()
	submitStar(t, svc, signer, `{"story":"s1"}`)

	store.blocks[1].Body = "00"
	heightBefore := svc.Height(ctx)

	address := signer.Address().Hex()
	message, _ := svc.RequestChallenge(ctx, address)
	sig, _ := signer.SignText(message)

	_, err := svc.SubmitStar(ctx, address, message, fmt.Sprintf("0x%x", sig), json.RawMessage(`{}`))

	var valErr *ValidationError
	if !errors.As(err, &valErr) {
		t.Fatalf("SubmitStar() = %v, want *ValidationError", err)
	}
	if len(valErr.Violations) != 1 {
		t.Errorf("violations = %v, want exactly one", valErr.Violations)
	}
	if got := svc.Height(ctx); got != heightBefore {
		t.Errorf("Height() = %d after rejected append, want %d", got, heightBefore)
	}
}

func TestLookupQueries(t *testing.T) {
	svc, _, _, signer := newTestChain(t)
	ctx := context.Background()
	committed := submitStar(t, svc, signer, `{"story":"s1"}`)

	byHeight, err := svc.BlockByHeight(ctx, 1)
	if err != nil || byHeight == nil || byHeight.Hash != committed.Hash {
		t.Errorf("BlockByHeight(1) = (%v, %v), want committed block", byHeight, err)
	}

	byHash, err := svc.BlockByHash(ctx, committed.Hash)
	if err != nil || byHash == nil || byHash.Height != 1 {
		t.Errorf("BlockByHash() = (%v, %v), want committed block", byHash, err)
	}

	// Misses are not errors.
	miss, err := svc.BlockByHeight(ctx, 99)
	if err != nil || miss != nil {
		t.Errorf("BlockByHeight(99) = (%v, %v), want (nil, nil)", miss, err)
	}
	missHash, err := svc.BlockByHash(ctx, Hash{0xff})
	if err != nil || missHash != nil {
		t.Errorf("BlockByHash(absent) = (%v, %v), want (nil, nil)", missHash, err)
	}
}

func TestStarsByWallet(t *testing.T) {
	svc, _, _, signer := newTestChain(t)
	ctx := context.Background()

	other, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	submitStar(t, svc, signer, `{"story":"mine-1"}`)
	submitStar(t, svc, other, `{"story":"theirs"}`)
	submitStar(t, svc, signer, `{"story":"mine-2"}`)

	stars, err := svc.StarsByWallet(ctx, signer.Address().Hex())
	if err != nil {
		t.Fatalf("StarsByWallet() failed: %v", err)
	}
	if len(stars) != 2 {
		t.Fatalf("StarsByWallet() returned %d records, want 2", len(stars))
	}
	// Chain order preserved.
	if string(stars[0].Star) != `{"story":"mine-1"}` || string(stars[1].Star) != `{"story":"mine-2"}` {
		t.Errorf("StarsByWallet() = %v, out of order or wrong records", stars)
	}

	none, err := svc.StarsByWallet(ctx, "0x0000000000000000000000000000000000000001")
	if err != nil {
		t.Fatalf("StarsByWallet() failed: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("StarsByWallet(unknown) returned %d records, want 0", len(none))
	}
}

func TestConcurrentSubmits(t *testing.T) {
	// Appends are serialized: N concurrent submits must produce N distinct
	// consecutive heights and a chain that still validates.
	svc, _, _, _ := newTestChain(t)
	ctx := context.Background()

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			signer, err := crypto.GenerateKey()
			if err != nil {
				errs[i] = err
				return
			}
			address := signer.Address().Hex()
			message, err := svc.RequestChallenge(ctx, address)
			if err != nil {
				errs[i] = err
				return
			}
			sig, err := signer.SignText(message)
			if err != nil {
				errs[i] = err
				return
			}
			_, errs[i] = svc.SubmitStar(ctx, address, message, fmt.Sprintf("0x%x", sig), json.RawMessage(`{}`))
		}()
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("submit %d failed: %v", i, err)
		}
	}
	if got := svc.Height(ctx); got != n {
		t.Errorf("Height() = %d after %d submits, want %d", got, n, n)
	}
	if got := svc.ValidateChain(ctx); len(got) != 0 {
		t.Errorf("ValidateChain() = %v, want empty", got)
	}
}

func TestOnCommitHook(t *testing.T) {
	svc, _, _, signer := newTestChain(t)

	var mu sync.Mutex
	var seen []int64
	svc.OnCommit = func(b Block) {
		mu.Lock()
		seen = append(seen, b.Height)
		mu.Unlock()
	}

	submitStar(t, svc, signer, `{"story":"s1"}`)
	submitStar(t, svc, signer, `{"story":"s2"}`)

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 || seen[0] != 1 || seen[1] != 2 {
		t.Errorf("OnCommit saw heights %v, want [1 2]", seen)
	}
}
