package crypto

import (
	"fmt"

	"golang.org/x/crypto/sha3"
)

// TextHash computes the EIP-191 personal-message digest:
// keccak256("\x19Ethereum Signed Message:\n" + len(msg) + msg).
// This is the digest wallets sign for plain text challenges.
func TextHash(message string) []byte {
	h := sha3.NewLegacyKeccak256()
	fmt.Fprintf(h, "\x19Ethereum Signed Message:\n%d%s", len(message), message)
	return h.Sum(nil)
}
