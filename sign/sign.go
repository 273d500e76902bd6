package sign

import (
	"crypto/ed25519"

	"bftsim/hashing"

	"github.com/seafooler/sign_tools"
)

// Domains separate the three kinds of signed artifacts. Bytes signed in one
// domain must fail verification in every other.
const (
	DomainTX     = "TX"
	DomainHeader = "HEADER"
	DomainVote   = "VOTE"
)

// Signer binds signing and verification to a chain identifier. Signatures
// made for one chain fail verification under any other.
type Signer struct {
	chainID string
}

func NewSigner(chainID string) *Signer {
	return &Signer{chainID: chainID}
}

func (s *Signer) ChainID() string {
	return s.chainID
}

// Envelope builds the signed bytes: DOMAIN:chain_id:canonical_json(data).
func (s *Signer) Envelope(domain string, data interface{}) ([]byte, error) {
	encoded, err := hashing.CanonicalJSON(data)
	if err != nil {
		return nil, err
	}
	return []byte(domain + ":" + s.chainID + ":" + string(encoded)), nil
}

// Sign signs data within the given domain.
func (s *Signer) Sign(domain string, privKey ed25519.PrivateKey, data interface{}) ([]byte, error) {
	message, err := s.Envelope(domain, data)
	if err != nil {
		return nil, err
	}
	return sign_tools.SignEd25519(privKey, message), nil
}

// Verify reports whether sig is a valid signature over data within the given
// domain. Any failure, including an encoding failure, yields false.
func (s *Signer) Verify(domain string, pubKey ed25519.PublicKey, data interface{}, sig []byte) bool {
	message, err := s.Envelope(domain, data)
	if err != nil {
		return false
	}
	ok, err := sign_tools.VerifySignEd25519(pubKey, message, sig)
	if err != nil {
		return false
	}
	return ok
}

func (s *Signer) SignTransaction(privKey ed25519.PrivateKey, data interface{}) ([]byte, error) {
	return s.Sign(DomainTX, privKey, data)
}

func (s *Signer) VerifyTransaction(pubKey ed25519.PublicKey, data interface{}, sig []byte) bool {
	return s.Verify(DomainTX, pubKey, data, sig)
}

func (s *Signer) SignHeader(privKey ed25519.PrivateKey, data interface{}) ([]byte, error) {
	return s.Sign(DomainHeader, privKey, data)
}

func (s *Signer) VerifyHeader(pubKey ed25519.PublicKey, data interface{}, sig []byte) bool {
	return s.Verify(DomainHeader, pubKey, data, sig)
}

func (s *Signer) SignVote(privKey ed25519.PrivateKey, data interface{}) ([]byte, error) {
	return s.Sign(DomainVote, privKey, data)
}

func (s *Signer) VerifyVote(pubKey ed25519.PublicKey, data interface{}, sig []byte) bool {
	return s.Verify(DomainVote, pubKey, data, sig)
}

// GenKeyPair creates a fresh ED25519 key pair.
func GenKeyPair() (ed25519.PrivateKey, ed25519.PublicKey) {
	return sign_tools.GenED25519Keys()
}
