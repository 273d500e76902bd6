package execution

import (
	"crypto/ed25519"

	"bftsim/hashing"
	"bftsim/sign"
)

// GenesisParent is the parent hash of the first block on the chain.
const GenesisParent = "genesis"

// Block chains an ordered transaction batch to its parent. StateHash is the
// commitment of the parent's state after executing the transactions in
// order. Hash covers {height, parent_hash, tx_count, state_hash}; it does
// not cover the transaction contents or the proposer signature.
type Block struct {
	Height       uint64
	ParentHash   string
	Transactions []*Transaction
	StateHash    string
	ProposerSig  []byte
	ProposerKey  []byte
	Hash         string
}

func NewBlock(height uint64, parentHash string, txs []*Transaction, stateHash string) *Block {
	b := &Block{
		Height:       height,
		ParentHash:   parentHash,
		Transactions: txs,
		StateHash:    stateHash,
	}
	b.Hash = b.ComputeHash()
	return b
}

// ComputeHash derives the block's content hash.
func (b *Block) ComputeHash() string {
	hash, err := hashing.HashData(map[string]interface{}{
		"height":      b.Height,
		"parent_hash": b.ParentHash,
		"tx_count":    len(b.Transactions),
		"state_hash":  b.StateHash,
	})
	if err != nil {
		panic(err)
	}
	return hash
}

// HeaderData returns the signed portion of the header.
func (b *Block) HeaderData() map[string]interface{} {
	return map[string]interface{}{
		"height":      b.Height,
		"parent_hash": b.ParentHash,
		"state_hash":  b.StateHash,
	}
}

// SignHeader signs the header in the HEADER domain and attaches the
// proposer's public key.
func (b *Block) SignHeader(signer *sign.Signer, privKey ed25519.PrivateKey, pubKey ed25519.PublicKey) error {
	sig, err := signer.SignHeader(privKey, b.HeaderData())
	if err != nil {
		return err
	}
	b.ProposerSig = sig
	b.ProposerKey = pubKey
	return nil
}

// VerifyHeader reports whether the proposer signature is valid.
func (b *Block) VerifyHeader(signer *sign.Signer) bool {
	if len(b.ProposerSig) == 0 || len(b.ProposerKey) == 0 {
		return false
	}
	return signer.VerifyHeader(ed25519.PublicKey(b.ProposerKey), b.HeaderData(), b.ProposerSig)
}
