package execution

import (
	"crypto/ed25519"
	"strings"

	"bftsim/sign"
)

// Transaction is an authenticated key/value update. The signature covers the
// canonical encoding of {sender, key, value} in the TX domain, and the key
// must live under the sender's namespace prefix.
type Transaction struct {
	Sender    string
	Key       string
	Value     string
	Signature []byte
	PublicKey []byte
}

// NewTransaction builds and signs a transaction for the signer's chain.
func NewTransaction(signer *sign.Signer, privKey ed25519.PrivateKey, pubKey ed25519.PublicKey,
	sender, key, value string) (*Transaction, error) {
	tx := &Transaction{
		Sender: sender,
		Key:    key,
		Value:  value,
	}
	sig, err := signer.SignTransaction(privKey, tx.Data())
	if err != nil {
		return nil, err
	}
	tx.Signature = sig
	tx.PublicKey = pubKey
	return tx, nil
}

// Data returns the signed portion of the transaction.
func (tx *Transaction) Data() map[string]interface{} {
	return map[string]interface{}{
		"sender": tx.Sender,
		"key":    tx.Key,
		"value":  tx.Value,
	}
}

// Verify reports whether the transaction is acceptable: signature and public
// key present, key under the sender's prefix, and a valid TX-domain
// signature for the signer's chain.
func (tx *Transaction) Verify(signer *sign.Signer) bool {
	if len(tx.Signature) == 0 || len(tx.PublicKey) == 0 {
		return false
	}
	if !strings.HasPrefix(tx.Key, tx.Sender+"/") {
		return false
	}
	return signer.VerifyTransaction(ed25519.PublicKey(tx.PublicKey), tx.Data(), tx.Signature)
}
