package chain

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

type Hash [32]byte

func (h Hash) String() string { return fmt.Sprintf("%x", h[:]) }
func (h Hash) IsZero() bool   { return h == Hash{} }

// ParseHash decodes a 64-char hex string into a Hash.
func ParseHash(s string) (Hash, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, fmt.Errorf("invalid hash: %w", err)
	}
	if len(raw) != 32 {
		return Hash{}, fmt.Errorf("invalid hash length: %d", len(raw))
	}
	var h Hash
	copy(h[:], raw)
	return h, nil
}

// MarshalJSON renders the hash as a hex string, empty for the zero value
// (a genesis block has no previous hash).
func (h Hash) MarshalJSON() ([]byte, error) {
	if h.IsZero() {
		return json.Marshal("")
	}
	return json.Marshal(h.String())
}

func (h *Hash) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*h = Hash{}
		return nil
	}
	parsed, err := ParseHash(s)
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// Block is one ledger entry. Immutable once committed: Height, Time and
// PrevHash are stamped by the append protocol, Hash commits to every
// other field.
type Block struct {
	Height   int64  `json:"height"`
	Time     int64  `json:"time"` // unix seconds, assigned at append
	Body     string `json:"body"` // hex-encoded JSON payload
	PrevHash Hash   `json:"previousBlockHash"`
	Hash     Hash   `json:"hash"`
}

// StarRecord is the owner-bearing payload registered after a successful
// ownership challenge. Star data stays opaque to the chain.
type StarRecord struct {
	Owner string          `json:"owner"`
	Star  json.RawMessage `json:"star"`
}

type genesisPayload struct {
	Data string `json:"data"`
}

const genesisData = "Genesis Block"

// NewBlock encodes an arbitrary payload into a not-yet-committed block.
// Only Body is set; the append protocol stamps the rest.
func NewBlock(payload any) (Block, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Block{}, fmt.Errorf("failed to encode payload: %w", err)
	}
	return Block{Body: hex.EncodeToString(raw)}, nil
}

// DecodeStar returns the block's star record, or nil when the payload
// carries no owner field (genesis sentinel). A nil result is not an error.
func (b Block) DecodeStar() (*StarRecord, error) {
	if b.Body == "" {
		return nil, nil
	}
	raw, err := hex.DecodeString(b.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode body: %w", err)
	}
	var rec StarRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}
	if rec.Owner == "" {
		return nil, nil
	}
	return &rec, nil
}

// ComputeHash computes the content hash over every field except the
// stored hash itself.
func (b Block) ComputeHash() Hash {
	h := sha256.New()

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(b.Height))
	h.Write(buf[:])

	binary.BigEndian.PutUint64(buf[:], uint64(b.Time))
	h.Write(buf[:])

	h.Write([]byte(b.Body))
	h.Write(b.PrevHash[:])

	return sha256.Sum256(h.Sum(nil))
}

// SelfValidate reports whether the stored hash still matches a fresh
// recomputation. Read-only; a mismatch signals tampering.
func (b Block) SelfValidate() bool {
	return b.ComputeHash() == b.Hash
}
