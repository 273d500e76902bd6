package consensus

import (
	"crypto/ed25519"

	"bftsim/sign"
)

const (
	PhasePrevote   = "prevote"
	PhasePrecommit = "precommit"
)

// Vote is a first- or second-phase vote for a block hash at a height. The
// signature covers {height, block_hash, phase, voter} in the VOTE domain, so
// a vote replayed with an altered height or phase fails verification.
type Vote struct {
	Height    uint64
	BlockHash string
	Phase     string
	Voter     string
	Signature []byte
	PublicKey []byte
}

// Data returns the signed portion of the vote.
func (v *Vote) Data() map[string]interface{} {
	return map[string]interface{}{
		"height":     v.Height,
		"block_hash": v.BlockHash,
		"phase":      v.Phase,
		"voter":      v.Voter,
	}
}

// Verify reports whether the vote carries a valid VOTE-domain signature.
func (v *Vote) Verify(signer *sign.Signer) bool {
	if len(v.Signature) == 0 || len(v.PublicKey) == 0 {
		return false
	}
	return signer.VerifyVote(ed25519.PublicKey(v.PublicKey), v.Data(), v.Signature)
}

// BlockRequest asks peers for an already-finalized block's header.
type BlockRequest struct {
	Height    uint64
	Requester string
}

// voteKey identifies a (height, block hash) pair a node has voted on.
type voteKey struct {
	height uint64
	hash   string
}
