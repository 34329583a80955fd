// Copyright 2025 Certen Protocol
//
// Network-triangulation plugin. Verifies each stamp signature as a real
// ECDSA signature (secp256k1, Ethereum-style recoverable signature) over
// the canonical stamp payload, recovering the signer address and
// comparing it against the claimed signer.

package plugin

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/certen/astral-location-services/pkg/types"
)

// NetworkPlugin evaluates stamps produced by network-triangulation
// challengers (e.g. cell-tower or Wi-Fi AP proximity challenges).
type NetworkPlugin struct{}

// NewNetworkPlugin constructs the network-triangulation plugin.
func NewNetworkPlugin() *NetworkPlugin {
	return &NetworkPlugin{}
}

func (p *NetworkPlugin) Metadata() Metadata {
	return Metadata{
		Name:         "network",
		Version:      "0.1.0",
		Environments: []string{"cell", "wifi"},
		Description:  "ECDSA-verified network-triangulation location stamps.",
	}
}

func (p *NetworkPlugin) Verify(stamp types.LocationStamp) (VerifyResult, error) {
	structOK, details := structureValid(stamp)

	message, err := canonicalStampMessage(stamp)
	if err != nil {
		details["canonicalization"] = err.Error()
		return VerifyResult{StructureValid: structOK, Details: details}, nil
	}
	digest := crypto.Keccak256(message)

	signaturesValid := len(stamp.Signatures) > 0
	for i, sig := range stamp.Signatures {
		valid, reason := verifyECDSASignature(digest, sig)
		details[sigKey(i)] = reason
		if !valid {
			signaturesValid = false
		}
	}

	return VerifyResult{
		SignaturesValid:   signaturesValid,
		StructureValid:    structOK,
		SignalsConsistent: true,
		Valid:             signaturesValid && structOK,
		Details:           details,
	}, nil
}

func (p *NetworkPlugin) Evaluate(stamp types.LocationStamp, claim types.LocationClaim) (EvaluateResult, error) {
	return evaluateCommon(stamp, claim)
}

// verifyECDSASignature recovers the signer from a 65-byte recoverable
// signature and compares it against the signature's declared signer
// address (scheme "eth-address").
func verifyECDSASignature(digest []byte, sig types.Signature) (bool, string) {
	if sig.Signer.Scheme != "eth-address" {
		return false, "unsupported signer scheme"
	}
	if !common.IsHexAddress(sig.Signer.Value) {
		return false, "invalid signer address"
	}

	sigBytes := common.FromHex(sig.Value)
	if len(sigBytes) != 65 {
		return false, "signature must be 65 bytes"
	}
	// go-ethereum expects v in {0,1}; accept the 27/28 convention too.
	if sigBytes[64] >= 27 {
		sigBytes[64] -= 27
	}

	pub, err := crypto.SigToPub(digest, sigBytes)
	if err != nil {
		return false, "signature recovery failed"
	}
	recovered := crypto.PubkeyToAddress(*pub)
	claimed := common.HexToAddress(sig.Signer.Value)
	if recovered != claimed {
		return false, "recovered address does not match signer"
	}
	return true, "valid"
}

func sigKey(i int) string {
	return "signature[" + strconv.Itoa(i) + "]"
}
