package api

import (
	"encoding/json"

	"github.com/uhyunpark/starledger/pkg/chain"
)

// API request/response types for REST endpoints and WebSocket messages

// ChallengeRequest asks for an ownership challenge for an address.
type ChallengeRequest struct {
	Address string `json:"address"`
}

// ChallengeResponse carries the message the wallet must sign.
type ChallengeResponse struct {
	Message string `json:"message"`
}

// SubmitStarRequest carries a signed challenge answer plus the star data
// to register.
type SubmitStarRequest struct {
	Address   string          `json:"address"`
	Message   string          `json:"message"`
	Signature string          `json:"signature"` // hex, 0x prefix optional
	Star      json.RawMessage `json:"star"`
}

// ChainStatus summarizes the chain for dashboards.
type ChainStatus struct {
	Height     int64 `json:"height"`
	Valid      bool  `json:"valid"`
	Violations int   `json:"violations"`
}

// ValidateResponse is the full integrity report.
type ValidateResponse struct {
	Valid      bool     `json:"valid"`
	Violations []string `json:"violations"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// ==============================
// WebSocket Types
// ==============================

// WSSubscribeRequest is the client -> server subscription control frame.
type WSSubscribeRequest struct {
	Op       string   `json:"op"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}

// BlockUpdate is pushed on the "blocks" channel for every commit.
type BlockUpdate struct {
	Type  string      `json:"type"` // always "block"
	Block chain.Block `json:"block"`
}
