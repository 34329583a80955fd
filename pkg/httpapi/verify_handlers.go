// Copyright 2025 Certen Protocol
//
// Proof and stamp verification routes. /verify/v0/proof additionally
// signs a compact EAS attestation summarising the computed
// CredibilityVector, mirroring the numeric/boolean compute routes.

package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/certen/astral-location-services/pkg/payload"
	"github.com/certen/astral-location-services/pkg/problem"
	"github.com/certen/astral-location-services/pkg/resolve"
	"github.com/certen/astral-location-services/pkg/signer"
	"github.com/certen/astral-location-services/pkg/types"
)

type stampRequest struct {
	Stamp types.LocationStamp `json:"stamp"`
}

type stampResponse struct {
	Valid             bool                   `json:"valid"`
	SignaturesValid   bool                   `json:"signaturesValid"`
	StructureValid    bool                   `json:"structureValid"`
	SignalsConsistent bool                   `json:"signalsConsistent"`
	Details           map[string]interface{} `json:"details,omitempty"`
}

func (s *Server) handleVerifyStamp(w http.ResponseWriter, r *http.Request) error {
	var req stampRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	result, err := s.verify.VerifyStamp(req.Stamp)
	if err != nil {
		return problem.ErrInvalidInput(err.Error())
	}
	writeJSON(w, http.StatusOK, stampResponse{
		Valid:             result.Valid,
		SignaturesValid:   result.SignaturesValid,
		StructureValid:    result.StructureValid,
		SignalsConsistent: result.SignalsConsistent,
		Details:           result.Details,
	})
	return nil
}

type verifyProofOptions struct {
	ChainID      int64  `json:"chainId"`
	Schema       string `json:"schema,omitempty"`
	Recipient    string `json:"recipient,omitempty"`
	SubmitOnchain bool  `json:"submitOnchain,omitempty"`
}

type verifyProofRequest struct {
	Proof   types.LocationProof `json:"proof"`
	Options verifyProofOptions  `json:"options"`
}

type verifyProofResponse struct {
	Proof                types.LocationProof         `json:"proof"`
	Credibility          *types.CredibilityVector    `json:"credibility"`
	Attestation          *types.EASAttestation       `json:"attestation"`
	DelegatedAttestation *types.DelegatedAttestation `json:"delegatedAttestation"`
	ChainID              int64                       `json:"chainId"`
	EvaluationMethod     string                      `json:"evaluationMethod"`
	EvaluatedAt          int64                       `json:"evaluatedAt"`
}

// validateProof enforces the claim invariants checked at the request
// boundary: LP version, radius, time ordering, and stamp/signature counts.
func validateProof(proof types.LocationProof) error {
	if proof.Claim.LPVersion != "0.2" {
		return problem.ErrInvalidInput("claim.lpVersion must be \"0.2\"")
	}
	if proof.Claim.Radius <= 0 {
		return problem.ErrInvalidInput("claim.radius is required and must be positive")
	}
	if proof.Claim.Time.Start > proof.Claim.Time.End {
		return problem.ErrInvalidInput("claim.time.start must not be after claim.time.end")
	}
	if len(proof.Stamps) == 0 {
		return problem.ErrInvalidInput("proof requires at least one stamp")
	}
	for i, stamp := range proof.Stamps {
		if len(stamp.Signatures) == 0 {
			return problem.ErrInvalidInput(fmt.Sprintf("stamp %d requires at least one signature", i))
		}
	}
	return nil
}

func (s *Server) handleVerifyProof(w http.ResponseWriter, r *http.Request) error {
	var req verifyProofRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	if err := validateProof(req.Proof); err != nil {
		return err
	}
	chainID := req.Options.ChainID
	if chainID == 0 {
		chainID = s.cfg.DefaultChainID
	}
	if chainID <= 0 {
		return problem.ErrInvalidInput("options.chainId is required and must be positive")
	}

	now := time.Now().Unix()
	credibility, err := s.verify.VerifyProof(req.Proof, now, s.cfg.EvaluationMode)
	if err != nil {
		return err
	}

	schemaUID, err := s.schemas.SchemaFor("verify", req.Options.Schema)
	if err != nil {
		return problem.ErrInvalidInput(err.Error())
	}
	schema, err := signer.ParseSchema(schemaUID)
	if err != nil {
		return problem.ErrInvalidInput(err.Error())
	}
	recipient, err := signer.ParseRecipient(req.Options.Recipient)
	if err != nil {
		return problem.ErrInvalidInput(err.Error())
	}

	proofJSON, err := json.Marshal(req.Proof)
	if err != nil {
		return problem.ErrInternal("failed to canonicalise proof: " + err.Error())
	}
	proofHash, err := resolve.RefFor(proofJSON)
	if err != nil {
		return problem.ErrInternal("failed to hash proof: " + err.Error())
	}

	data, err := payload.EncodeVerify(payload.VerifyFields{
		ProofHash:           proofHash,
		MeanDistanceMeters:  payload.ClampUint32(credibility.Spatial.MeanDistanceMeters),
		MaxDistanceMeters:   payload.ClampUint32(credibility.Spatial.MaxDistanceMeters),
		WithinRadiusBp:      payload.BasisPoints(credibility.Spatial.WithinRadiusFraction),
		MeanOverlapBp:       payload.BasisPoints(credibility.Temporal.MeanOverlap),
		MinOverlapBp:        payload.BasisPoints(credibility.Temporal.MinOverlap),
		SignaturesValidBp:   payload.BasisPoints(credibility.Validity.SignaturesValidFraction),
		StructureValidBp:    payload.BasisPoints(credibility.Validity.StructureValidFraction),
		SignalsConsistentBp: payload.BasisPoints(credibility.Validity.SignalsConsistentFraction),
		UniquePluginRatioBp: payload.BasisPoints(credibility.Independence.UniquePluginRatio),
		StampCount:          uint8(clampStampCount(credibility.Meta.StampCount)),
	})
	if err != nil {
		return problem.ErrInternal("failed to encode verify payload: " + err.Error())
	}

	flat, delegated, err := s.signer.Sign(signer.AttestInput{
		Schema:    schema,
		Recipient: recipient,
		RefUID:    [32]byte{},
		Data:      data,
		Revocable: true,
		ChainID:   chainID,
	})
	if err != nil {
		return problem.ErrInternal(err.Error())
	}

	// The real UID is only assigned on-chain; this synthetic one is
	// informational, derived from the proof hash and evaluation time.
	uid := crypto.Keccak256([]byte(fmt.Sprintf("0x%x:%d", proofHash, now)))

	writeJSON(w, http.StatusOK, verifyProofResponse{
		Proof:       req.Proof,
		Credibility: credibility,
		Attestation: &types.EASAttestation{
			UID:            "0x" + common.Bytes2Hex(uid),
			Schema:         flat.Schema,
			Time:           uint64(now),
			ExpirationTime: 0,
			RevocationTime: 0,
			RefUID:         "0x" + common.Bytes2Hex(make([]byte, 32)),
			Recipient:      flat.Recipient,
			Attester:       flat.Attester,
			Revocable:      true,
			Data:           data,
			Signature:      flat.Signature,
		},
		DelegatedAttestation: delegated,
		ChainID:              chainID,
		EvaluationMethod:     s.cfg.EvaluationMode,
		EvaluatedAt:          now,
	})
	return nil
}

func clampStampCount(n int) int {
	if n > 255 {
		return 255
	}
	if n < 0 {
		return 0
	}
	return n
}
