package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/uhyunpark/starledger/pkg/crypto"
)

// Off-system signing tool for the ownership challenge flow: the node
// never sees a private key, so this walks through key generation,
// challenge signing and the submit request body.
func main() {
	keyHex := flag.String("key", "", "hex private key (default: generate a new one)")
	message := flag.String("message", "", "challenge message to sign (default: build one locally)")
	star := flag.String("star", `{"dec":"68 52 56.9","ra":"16h 29m 1.0s","story":"first star"}`, "star data JSON")
	flag.Parse()

	var signer *crypto.Signer
	var err error
	if *keyHex != "" {
		signer, err = crypto.FromPrivateKeyHex(*keyHex)
	} else {
		fmt.Println("Generating new keypair...")
		signer, err = crypto.GenerateKey()
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	address := signer.Address().Hex()
	fmt.Printf("Address: %s\n", address)
	if *keyHex == "" {
		fmt.Printf("Private Key: %s (KEEP SECRET!)\n", signer.PrivateKeyHex())
	}
	fmt.Println()

	challenge := *message
	if challenge == "" {
		// Same form the node issues via POST /api/v1/challenges
		challenge = fmt.Sprintf("%s:%d:starRegistry", address, time.Now().Unix())
		fmt.Println("No message given, built challenge locally:")
	}
	fmt.Printf("Message: %s\n\n", challenge)

	signature, err := signer.SignText(challenge)
	if err != nil {
		fmt.Printf("Error signing: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Signature: 0x%x\n\n", signature)

	body := map[string]interface{}{
		"address":   address,
		"message":   challenge,
		"signature": fmt.Sprintf("0x%x", signature),
		"star":      json.RawMessage(*star),
	}
	bodyJSON, err := json.MarshalIndent(body, "", "  ")
	if err != nil {
		fmt.Printf("Error marshaling JSON: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("To register this star:")
	fmt.Println("  POST http://localhost:8080/api/v1/stars")
	fmt.Println("  Content-Type: application/json")
	fmt.Println("  Body:")
	fmt.Println(string(bodyJSON))
}
