// Copyright 2025 Certen Protocol
//
// EAS Client
// Fetches attestations by UID from one of several chains and decodes
// Location Protocol v0.2 payloads. RPC providers are cached per chain for
// the process lifetime.

package eas

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/certen/astral-location-services/pkg/types"
)

// easGetAttestationABI is the EAS contract's getAttestation(bytes32) view.
const easGetAttestationABI = `[{"inputs":[{"internalType":"bytes32","name":"uid","type":"bytes32"}],"name":"getAttestation","outputs":[{"components":[{"internalType":"bytes32","name":"uid","type":"bytes32"},{"internalType":"bytes32","name":"schema","type":"bytes32"},{"internalType":"uint64","name":"time","type":"uint64"},{"internalType":"uint64","name":"expirationTime","type":"uint64"},{"internalType":"uint64","name":"revocationTime","type":"uint64"},{"internalType":"bytes32","name":"refUID","type":"bytes32"},{"internalType":"address","name":"recipient","type":"address"},{"internalType":"address","name":"attester","type":"address"},{"internalType":"bool","name":"revocable","type":"bool"},{"internalType":"bytes","name":"data","type":"bytes"}],"internalType":"struct Attestation","name":"","type":"tuple"}],"stateMutability":"view","type":"function"}]`

// rawAttestation mirrors the EAS Attestation tuple field-for-field so the
// ABI decoder can unpack directly into it.
type rawAttestation struct {
	Uid            [32]byte
	Schema         [32]byte
	Time           uint64
	ExpirationTime uint64
	RevocationTime uint64
	RefUID         [32]byte
	Recipient      common.Address
	Attester       common.Address
	Revocable      bool
	Data           []byte
}

// ChainConfig describes how to reach EAS on one chain.
type ChainConfig struct {
	RPCURL             string
	EASContractAddress string
}

// Client resolves attestation UIDs against a table of per-chain EAS
// deployments, caching one ethclient.Client per chain; the ABI is parsed
// once and shared by all chains.
type Client struct {
	chains  map[int64]ChainConfig
	parsed  abi.ABI
	timeout time.Duration

	mu        sync.Mutex
	providers map[int64]*ethclient.Client
}

const defaultRPCTimeout = 10 * time.Second

// NewClient builds an EAS client over the given chain table. The ABI is
// parsed once; RPC connections are established lazily and cached. A
// non-positive rpcTimeout falls back to the 10s default.
func NewClient(chains map[int64]ChainConfig, rpcTimeout time.Duration) (*Client, error) {
	parsed, err := abi.JSON(strings.NewReader(easGetAttestationABI))
	if err != nil {
		return nil, fmt.Errorf("parse EAS ABI: %w", err)
	}
	if rpcTimeout <= 0 {
		rpcTimeout = defaultRPCTimeout
	}
	return &Client{
		chains:    chains,
		parsed:    parsed,
		timeout:   rpcTimeout,
		providers: make(map[int64]*ethclient.Client),
	}, nil
}

func (c *Client) providerFor(chainID int64) (*ethclient.Client, string, error) {
	cfg, ok := c.chains[chainID]
	if !ok {
		return nil, "", fmt.Errorf("invalid input: unsupported chain: %d", chainID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.providers[chainID]; ok {
		return p, cfg.EASContractAddress, nil
	}

	p, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, "", fmt.Errorf("dial chain %d: %w", chainID, err)
	}
	c.providers[chainID] = p
	return p, cfg.EASContractAddress, nil
}

// GetAttestation fetches an attestation by UID from the given chain.
func (c *Client) GetAttestation(ctx context.Context, uid string, chainID int64) (*types.EASAttestation, error) {
	uidBytes, err := parseUID(uid)
	if err != nil {
		return nil, fmt.Errorf("invalid input: invalid uid format: %w", err)
	}

	provider, contractAddr, err := c.providerFor(chainID)
	if err != nil {
		return nil, err
	}

	callData, err := c.parsed.Pack("getAttestation", uidBytes)
	if err != nil {
		return nil, fmt.Errorf("pack getAttestation call: %w", err)
	}

	addr := common.HexToAddress(contractAddr)
	result, err := c.callWithRetry(ctx, provider, ethereum.CallMsg{To: &addr, Data: callData})
	if err != nil {
		return nil, fmt.Errorf("getAttestation call failed: %w", err)
	}

	var out rawAttestation
	if err := c.parsed.UnpackIntoInterface(&out, "getAttestation", result); err != nil {
		return nil, fmt.Errorf("decode failure: %w", err)
	}

	if out.Uid == ([32]byte{}) {
		return nil, fmt.Errorf("invalid input: attestation %s does not exist on chain %d", uid, chainID)
	}
	if out.RevocationTime > 0 {
		return nil, fmt.Errorf("invalid input: attestation %s was revoked", uid)
	}
	if out.ExpirationTime > 0 && out.ExpirationTime < uint64(time.Now().Unix()) {
		return nil, fmt.Errorf("invalid input: attestation %s expired", uid)
	}

	return &types.EASAttestation{
		UID:            hexString(out.Uid[:]),
		Schema:         hexString(out.Schema[:]),
		Time:           out.Time,
		ExpirationTime: out.ExpirationTime,
		RevocationTime: out.RevocationTime,
		RefUID:         hexString(out.RefUID[:]),
		Recipient:      out.Recipient.Hex(),
		Attester:       out.Attester.Hex(),
		Revocable:      out.Revocable,
		Data:           out.Data,
	}, nil
}

// callWithRetry performs an eth_call under the per-call timeout, retrying
// a transport failure once after a short backoff before surfacing it.
func (c *Client) callWithRetry(ctx context.Context, provider *ethclient.Client, msg ethereum.CallMsg) ([]byte, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	result, err := provider.CallContract(callCtx, msg, nil)
	cancel()
	if err == nil {
		return result, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, err
	case <-time.After(250 * time.Millisecond):
	}

	callCtx, cancel = context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return provider.CallContract(callCtx, msg, nil)
}

// locationArguments is the LP v0.2 ABI shape: four strings in a fixed
// order (lpVersion, srs, locationType, location).
var locationArguments = abi.Arguments{
	{Type: mustType("string")},
	{Type: mustType("string")},
	{Type: mustType("string")},
	{Type: mustType("string")},
}

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

// DecodeLocationAttestation ABI-decodes a Location Protocol v0.2 payload.
func DecodeLocationAttestation(data []byte) (*types.DecodedLocationAttestation, error) {
	values, err := locationArguments.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("decode failure: %w", err)
	}
	if len(values) != 4 {
		return nil, fmt.Errorf("decode failure: expected 4 fields, got %d", len(values))
	}
	lpVersion, ok1 := values[0].(string)
	srs, ok2 := values[1].(string)
	locationType, ok3 := values[2].(string)
	location, ok4 := values[3].(string)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return nil, fmt.Errorf("decode failure: unexpected field types")
	}
	return &types.DecodedLocationAttestation{
		LPVersion:    lpVersion,
		SRS:          srs,
		LocationType: locationType,
		Location:     location,
	}, nil
}

func parseUID(uid string) ([32]byte, error) {
	var out [32]byte
	s := strings.TrimPrefix(uid, "0x")
	if len(s) != 64 {
		return out, fmt.Errorf("expected 0x + 64 hex characters, got %d", len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, err
	}
	copy(out[:], b)
	return out, nil
}

func hexString(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}
