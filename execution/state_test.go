package execution

import (
	"testing"

	"bftsim/sign"
)

func TestStateSetGet(t *testing.T) {
	state := NewState(sign.NewSigner("mainnet"))
	state.Set("alice/balance", "100")
	value, ok := state.Get("alice/balance")
	if !ok || value != "100" {
		t.Fatalf("get returned %q, %v", value, ok)
	}
	if _, ok := state.Get("missing"); ok {
		t.Fatalf("missing key reported present")
	}
}

func TestCommitmentInsertionOrderIndependent(t *testing.T) {
	signer := sign.NewSigner("mainnet")
	first := NewState(signer)
	first.Set("a/x", "1")
	first.Set("b/y", "2")
	first.Set("c/z", "3")

	second := NewState(signer)
	second.Set("c/z", "3")
	second.Set("a/x", "1")
	second.Set("b/y", "2")

	if first.Commitment() != second.Commitment() {
		t.Fatalf("insertion order changed the commitment")
	}
}

func TestApplyTransaction(t *testing.T) {
	signer := sign.NewSigner("mainnet")
	privKey, pubKey := sign.GenKeyPair()
	state := NewState(signer)

	tx, err := NewTransaction(signer, privKey, pubKey, "alice", "alice/balance", "100")
	if err != nil {
		t.Fatal(err)
	}
	if err := state.ApplyTransaction(tx); err != nil {
		t.Fatal(err)
	}
	value, _ := state.Get("alice/balance")
	if value != "100" {
		t.Fatalf("state value = %q after apply", value)
	}

	// applying the same transaction twice leaves the commitment unchanged
	before := state.Commitment()
	if err := state.ApplyTransaction(tx); err != nil {
		t.Fatal(err)
	}
	if state.Commitment() != before {
		t.Fatalf("idempotent re-apply changed the commitment")
	}
}

func TestApplyInvalidTransaction(t *testing.T) {
	signer := sign.NewSigner("mainnet")
	privKey, pubKey := sign.GenKeyPair()
	state := NewState(signer)

	tx, err := NewTransaction(signer, privKey, pubKey, "alice", "bob/balance", "999")
	if err != nil {
		t.Fatal(err)
	}
	if err := state.ApplyTransaction(tx); err == nil {
		t.Fatalf("unauthorized transaction applied")
	}
	if state.Len() != 0 {
		t.Fatalf("failed apply mutated the state")
	}
}

func TestCopyIsolation(t *testing.T) {
	signer := sign.NewSigner("mainnet")
	state := NewState(signer)
	state.Set("alice/balance", "100")

	snapshot := state.Copy()
	snapshot.Set("alice/balance", "200")
	snapshot.Set("bob/balance", "1")

	if value, _ := state.Get("alice/balance"); value != "100" {
		t.Fatalf("snapshot write leaked into the live state")
	}
	if _, ok := state.Get("bob/balance"); ok {
		t.Fatalf("snapshot insert leaked into the live state")
	}
	if state.Commitment() == snapshot.Commitment() {
		t.Fatalf("diverged states share a commitment")
	}
}
