// Copyright 2025 Certen Protocol
//
// Attestation Payload Encoding
// ABI-encodes the numeric, boolean and verify attestation payloads
// embedded (as the "data" field) in an EAS attestation.

package payload

import (
	"fmt"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(fmt.Sprintf("payload: invalid abi type %q: %v", t, err))
	}
	return typ
}

var numericArgs = abi.Arguments{
	{Type: mustType("uint256")},
	{Type: mustType("string")},
	{Type: mustType("bytes32[]")},
	{Type: mustType("uint256")},
	{Type: mustType("string")},
}

var booleanArgs = abi.Arguments{
	{Type: mustType("bool")},
	{Type: mustType("bytes32[]")},
	{Type: mustType("uint256")},
	{Type: mustType("string")},
}

var verifyArgs = abi.Arguments{
	{Type: mustType("bytes32")},
	{Type: mustType("uint32")},
	{Type: mustType("uint32")},
	{Type: mustType("uint16")},
	{Type: mustType("uint16")},
	{Type: mustType("uint16")},
	{Type: mustType("uint16")},
	{Type: mustType("uint16")},
	{Type: mustType("uint16")},
	{Type: mustType("uint16")},
	{Type: mustType("uint8")},
}

// EncodeNumeric ABI-encodes a distance/length/area payload. scaled is the
// result already multiplied by the operation's scaling factor (100 for
// metres, 10000 for square metres) and range-checked against uint256.
func EncodeNumeric(scaled *big.Int, units string, inputRefs [][32]byte, timestamp int64, operation string) ([]byte, error) {
	return numericArgs.Pack(scaled, units, refsToFixed(inputRefs), big.NewInt(timestamp), operation)
}

// EncodeBoolean ABI-encodes a contains/within/intersects payload.
func EncodeBoolean(result bool, inputRefs [][32]byte, timestamp int64, operation string) ([]byte, error) {
	return booleanArgs.Pack(result, refsToFixed(inputRefs), big.NewInt(timestamp), operation)
}

// VerifyFields is the set of scalar values the verify attestation encodes.
type VerifyFields struct {
	ProofHash            [32]byte
	MeanDistanceMeters   uint32
	MaxDistanceMeters    uint32
	WithinRadiusBp       uint16
	MeanOverlapBp        uint16
	MinOverlapBp         uint16
	SignaturesValidBp    uint16
	StructureValidBp     uint16
	SignalsConsistentBp  uint16
	UniquePluginRatioBp  uint16
	StampCount           uint8
}

// EncodeVerify ABI-encodes a location-proof verification payload.
func EncodeVerify(f VerifyFields) ([]byte, error) {
	return verifyArgs.Pack(
		f.ProofHash,
		f.MeanDistanceMeters,
		f.MaxDistanceMeters,
		f.WithinRadiusBp,
		f.MeanOverlapBp,
		f.MinOverlapBp,
		f.SignaturesValidBp,
		f.StructureValidBp,
		f.SignalsConsistentBp,
		f.UniquePluginRatioBp,
		f.StampCount,
	)
}

func refsToFixed(refs [][32]byte) []common.Hash {
	out := make([]common.Hash, len(refs))
	for i, r := range refs {
		out[i] = common.Hash(r)
	}
	return out
}

// BasisPoints encodes a fraction in [0,1] (clamped) as basis points (0..10000).
func BasisPoints(x float64) uint16 {
	if x < 0 {
		x = 0
	}
	if x > 1 {
		x = 1
	}
	return uint16(math.Round(x * 10000))
}

// ClampUint32 clamps a non-negative float to the uint32 range, used for
// the sentinel-capped distance fields in the verify payload.
func ClampUint32(x float64) uint32 {
	if x < 0 {
		x = 0
	}
	if x > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(x)
}
