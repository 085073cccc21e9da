package ownership

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/starledger/pkg/crypto"
	"github.com/uhyunpark/starledger/pkg/util"
)

// DefaultWindow is how long a challenge stays answerable.
const DefaultWindow = 300 * time.Second

var (
	ErrChallengeExpired   = errors.New("ownership challenge expired")
	ErrChallengeMalformed = errors.New("malformed challenge message")
	ErrSignatureInvalid   = errors.New("signature does not match address")
)

// Verifier issues time-bound challenge messages and verifies signed
// answers against an address. It stores no per-challenge state: the
// window is evaluated once against the clock at verification time.
type Verifier struct {
	clock  util.Clock
	window time.Duration
}

func NewVerifier(clock util.Clock, window time.Duration) *Verifier {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Verifier{clock: clock, window: window}
}

// Challenge returns the message the caller must have signed off-system
// by whatever private key controls address:
// "<address>:<nowSeconds>:starRegistry".
func (v *Verifier) Challenge(address string) string {
	return fmt.Sprintf("%s:%d:starRegistry", address, v.clock.Now().Unix())
}

// VerifyAnswer checks the challenge window first, then the signature.
// Failures are one of ErrChallengeMalformed, ErrChallengeExpired or
// ErrSignatureInvalid (possibly wrapped with detail).
func (v *Verifier) VerifyAnswer(address, message, signature string) error {
	parts := strings.Split(message, ":")
	if len(parts) < 2 {
		return fmt.Errorf("%w: missing timestamp field", ErrChallengeMalformed)
	}
	issued, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad timestamp %q", ErrChallengeMalformed, parts[1])
	}

	if v.clock.Now().Unix()-issued > int64(v.window/time.Second) {
		return ErrChallengeExpired
	}

	if !common.IsHexAddress(address) {
		return fmt.Errorf("%w: %q is not a hex address", ErrSignatureInvalid, address)
	}
	sig, err := decodeSignature(signature)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
	if !crypto.VerifyTextSignature(common.HexToAddress(address), message, sig) {
		return ErrSignatureInvalid
	}
	return nil
}

// decodeSignature parses a hex signature with optional 0x prefix.
func decodeSignature(sig string) ([]byte, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(sig, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid signature hex: %w", err)
	}
	if len(raw) != 65 {
		return nil, fmt.Errorf("signature must be 65 bytes, got %d", len(raw))
	}
	return raw, nil
}
