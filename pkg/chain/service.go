package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/starledger/pkg/ownership"
	"github.com/uhyunpark/starledger/pkg/util"
)

// Service orchestrates genesis initialization, the append protocol and
// read queries. It is the only component other layers call directly;
// the append path itself (addBlock) is unexported so no caller can
// bypass the validation gate.
type Service struct {
	store     Store
	verifier  *ownership.Verifier
	clock     util.Clock
	validator Validator
	log       *zap.SugaredLogger

	// appendMu serializes the whole stamp-link-hash-validate-commit
	// sequence: two concurrent appends must never read the same height.
	appendMu sync.Mutex

	// OnCommit, when set, fires after every successful append.
	OnCommit func(Block)
}

// New builds a service around store. If the store is empty the genesis
// block is synthesized and committed unconditionally: with nothing
// before it there is no linkage to violate.
func New(store Store, verifier *ownership.Verifier, clock util.Clock, logger *zap.SugaredLogger) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	s := &Service{
		store:    store,
		verifier: verifier,
		clock:    clock,
		log:      logger,
	}
	if store.Height() < 0 {
		genesis, err := NewBlock(genesisPayload{Data: genesisData})
		if err != nil {
			return nil, fmt.Errorf("failed to build genesis block: %w", err)
		}
		genesis.Height = 0
		genesis.Time = clock.Now().Unix()
		genesis.Hash = genesis.ComputeHash()
		store.Append(genesis)
		s.log.Infow("genesis_committed", "hash", genesis.Hash.String())
	}
	return s, nil
}

// RequestChallenge issues the time-bound message address must sign to
// prove key control before registering a star.
func (s *Service) RequestChallenge(ctx context.Context, address string) (string, error) {
	if !common.IsHexAddress(address) {
		return "", fmt.Errorf("%q is not a valid address", address)
	}
	return s.verifier.Challenge(address), nil
}

// SubmitStar verifies the signed challenge answer and, on success,
// appends a block carrying the star record. Failures are one of the
// ownership errors or a *ValidationError from the append gate.
func (s *Service) SubmitStar(ctx context.Context, address, message, signature string, star json.RawMessage) (Block, error) {
	if err := s.verifier.VerifyAnswer(address, message, signature); err != nil {
		return Block{}, err
	}
	b, err := NewBlock(StarRecord{Owner: address, Star: star})
	if err != nil {
		return Block{}, err
	}
	return s.addBlock(ctx, b)
}

// addBlock runs the append protocol on a block carrying only its payload:
// stamp time and height, link to the tail, compute the content hash, gate
// on a full validation of the chain as it stands, then commit. On a dirty
// gate the chain is left untouched.
func (s *Service) addBlock(ctx context.Context, b Block) (Block, error) {
	s.appendMu.Lock()
	defer s.appendMu.Unlock()

	h := s.store.Height()
	b.Height = h + 1
	b.Time = s.clock.Now().Unix()
	if h >= 0 {
		tail, _ := s.store.Tail()
		b.PrevHash = tail.Hash
	}
	b.Hash = b.ComputeHash()

	// Gate: refuse to append onto a chain already known to be corrupt.
	// The new block's own linkage is guaranteed by the stamping above.
	if violations := s.validator.Validate(ctx, s.store); len(violations) > 0 {
		s.log.Warnw("append_rejected", "height", b.Height, "violations", len(violations))
		return Block{}, &ValidationError{Violations: violations}
	}

	s.store.Append(b)
	s.log.Infow("block_committed", "height", b.Height, "hash", b.Hash.String())
	if s.OnCommit != nil {
		s.OnCommit(b)
	}
	return b, nil
}

// Height returns the current chain height.
func (s *Service) Height(ctx context.Context) int64 {
	return s.store.Height()
}

// ValidateChain runs a full integrity walk and returns every violation.
func (s *Service) ValidateChain(ctx context.Context) []string {
	return s.validator.Validate(ctx, s.store)
}

// BlockByHeight returns the block at height, or nil on a miss.
// A miss is not an error.
func (s *Service) BlockByHeight(ctx context.Context, height int64) (*Block, error) {
	for b := range s.store.All() {
		if b.Height == height {
			return &b, nil
		}
	}
	return nil, nil
}

// BlockByHash returns the block with the given hash, or nil on a miss.
func (s *Service) BlockByHash(ctx context.Context, hash Hash) (*Block, error) {
	for b := range s.store.All() {
		if b.Hash == hash {
			return &b, nil
		}
	}
	return nil, nil
}

// StarsByWallet returns every decoded star record owned by address, in
// chain order. Genesis is naturally excluded: it decodes to no record.
func (s *Service) StarsByWallet(ctx context.Context, address string) ([]StarRecord, error) {
	var stars []StarRecord
	for b := range s.store.All() {
		rec, err := b.DecodeStar()
		if err != nil {
			return nil, fmt.Errorf("failed to decode block %d: %w", b.Height, err)
		}
		if rec != nil && strings.EqualFold(rec.Owner, address) {
			stars = append(stars, *rec)
		}
	}
	return stars, nil
}
