// Copyright 2025 Certen Protocol
//
// Attestation Signer
// Builds EAS EIP-712 typed data for a chain and signs it with the
// service's immutable signing key. The nonce counter is the only mutable
// state and is advanced atomically.

package signer

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/certen/astral-location-services/pkg/types"
)

// attestTypeHash is keccak256("Attest(bytes32 schema,address recipient,uint64 expirationTime,bool revocable,bytes32 refUID,bytes data,uint256 value,uint256 nonce,uint64 deadline)"),
// matching the field order the EAS contract hashes.
var attestTypeHash = crypto.Keccak256([]byte("Attest(bytes32 schema,address recipient,uint64 expirationTime,bool revocable,bytes32 refUID,bytes data,uint256 value,uint256 nonce,uint64 deadline)"))

// domainTypeHash is keccak256("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)").
var domainTypeHash = crypto.Keccak256([]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"))

const (
	domainName           = "EAS"
	domainVersion        = "1.2.0"
	defaultSigningWindow = time.Hour
)

// Signer holds the service's signing key and the process-local nonce
// counter. It never logs or returns the private key.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chains     map[int64]string // chainId -> EAS contract address
	window     time.Duration    // delegated-signature validity window
	nonce      atomic.Uint64
}

// New builds a signer from a hex-encoded ECDSA private key and the
// per-chain EAS contract address table. A non-positive signingWindow
// falls back to the one-hour default.
func New(privateKeyHex string, easAddresses map[int64]string, signingWindow time.Duration) (*Signer, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid signing key: %w", err)
	}
	pub, ok := key.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("invalid signing key: not ECDSA")
	}
	if signingWindow <= 0 {
		signingWindow = defaultSigningWindow
	}
	return &Signer{
		privateKey: key,
		address:    crypto.PubkeyToAddress(*pub),
		chains:     easAddresses,
		window:     signingWindow,
	}, nil
}

// Address returns the attester address for this signing key.
func (s *Signer) Address() common.Address {
	return s.address
}

// Nonce returns the next nonce that will be drawn, for observability only.
func (s *Signer) Nonce() uint64 {
	return s.nonce.Load()
}

// AttestInput is the typed-data message minus attester/deadline/nonce,
// which the signer fills in itself.
type AttestInput struct {
	Schema         [32]byte
	Recipient      common.Address
	RefUID         [32]byte
	Data           []byte
	ExpirationTime uint64
	Revocable      bool
	ChainID        int64
}

// Sign builds the EIP-712 digest for one attestation, signs it, and
// returns the flat + delegated attestation pair.
func (s *Signer) Sign(in AttestInput) (*types.FlatAttestation, *types.DelegatedAttestation, error) {
	verifyingContract, ok := s.chains[in.ChainID]
	if !ok {
		return nil, nil, fmt.Errorf("invalid input: unsupported chain: %d", in.ChainID)
	}

	deadline := uint64(time.Now().Add(s.window).Unix())
	nonce := s.nonce.Add(1) - 1

	digest, err := s.digest(in, verifyingContract, deadline, nonce)
	if err != nil {
		return nil, nil, err
	}

	sig, err := crypto.Sign(digest, s.privateKey)
	if err != nil {
		return nil, nil, fmt.Errorf("sign digest: %w", err)
	}
	// crypto.Sign returns v in {0,1}; EAS/Ethereum convention is 27/28.
	sig[64] += 27

	flat := &types.FlatAttestation{
		Schema:    hexOf(in.Schema[:]),
		Recipient: in.Recipient.Hex(),
		Attester:  s.address.Hex(),
		Data:      hexOf(in.Data),
		Signature: hexOf(sig),
	}
	delegated := &types.DelegatedAttestation{
		Attester: s.address.Hex(),
		Deadline: int64(deadline),
		Nonce:    new(big.Int).SetUint64(nonce).String(),
	}
	return flat, delegated, nil
}

func (s *Signer) digest(in AttestInput, verifyingContract string, deadline, nonce uint64) ([]byte, error) {
	if !common.IsHexAddress(verifyingContract) {
		return nil, fmt.Errorf("invalid EAS contract address for chain %d", in.ChainID)
	}

	domainSeparator := crypto.Keccak256(
		domainTypeHash,
		crypto.Keccak256([]byte(domainName)),
		crypto.Keccak256([]byte(domainVersion)),
		leftPad32(big.NewInt(in.ChainID).Bytes()),
		leftPad32(common.HexToAddress(verifyingContract).Bytes()),
	)

	hashStruct := crypto.Keccak256(
		attestTypeHash,
		in.Schema[:],
		leftPad32(in.Recipient.Bytes()),
		leftPad32(new(big.Int).SetUint64(in.ExpirationTime).Bytes()),
		leftPad32(boolBytes(in.Revocable)),
		in.RefUID[:],
		crypto.Keccak256(in.Data),
		leftPad32(big.NewInt(0).Bytes()), // value
		leftPad32(new(big.Int).SetUint64(nonce).Bytes()),
		leftPad32(new(big.Int).SetUint64(deadline).Bytes()),
	)

	return crypto.Keccak256(append([]byte{0x19, 0x01}, append(domainSeparator, hashStruct...)...)), nil
}

func leftPad32(b []byte) []byte {
	return common.LeftPadBytes(b, 32)
}

func boolBytes(v bool) []byte {
	if v {
		return []byte{1}
	}
	return []byte{0}
}

func hexOf(b []byte) string {
	return "0x" + common.Bytes2Hex(b)
}

// ParseSchema validates a 0x + 64 hex schema UID and returns its bytes32.
func ParseSchema(schema string) ([32]byte, error) {
	var out [32]byte
	s := strings.TrimPrefix(schema, "0x")
	if len(s) != 64 {
		return out, fmt.Errorf("invalid schema: expected 0x + 64 hex characters")
	}
	b := common.FromHex(schema)
	if len(b) != 32 {
		return out, fmt.Errorf("invalid schema: not valid hex")
	}
	copy(out[:], b)
	return out, nil
}

// ParseRecipient validates a 0x + 40 hex recipient address, or returns the
// zero address when empty.
func ParseRecipient(recipient string) (common.Address, error) {
	if recipient == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(recipient) {
		return common.Address{}, fmt.Errorf("invalid recipient: expected 0x + 40 hex characters")
	}
	return common.HexToAddress(recipient), nil
}

// ParseRefUID validates an optional 0x + 64 hex refUID, returning the zero
// value when empty.
func ParseRefUID(refUID string) ([32]byte, error) {
	if refUID == "" {
		return [32]byte{}, nil
	}
	return ParseSchema(refUID)
}
