package consensus

import (
	"testing"

	"bftsim/execution"
	"bftsim/network"
)

// A vote signed in the HEADER domain must never enter a vote book.
func TestVoteSignedInWrongDomainRejected(t *testing.T) {
	_, nodes := setupNodes(2, reliableNetwork(), 1)
	signerNode, receiver := nodes[0], nodes[1]

	vote := &Vote{
		Height:    1,
		BlockHash: "abc123",
		Phase:     PhasePrevote,
		Voter:     signerNode.name,
		PublicKey: signerNode.publicKey,
	}
	sig, err := signerNode.signer.SignHeader(signerNode.privateKey, vote.Data())
	if err != nil {
		t.Fatal(err)
	}
	vote.Signature = sig

	payload, err := encodePayload(vote)
	if err != nil {
		t.Fatal(err)
	}
	receiver.ReceiveMessage(network.NewMessage(network.KindPrevote, signerNode.name, 0, 1, payload))

	if receiver.PrevoteCount(1, "abc123") != 0 {
		t.Fatalf("wrong-domain vote entered the prevote book")
	}
}

// Replaying the same message id must not grow the pending queue; an
// independently created message with the same content is a new message.
func TestDuplicateMessageIgnored(t *testing.T) {
	_, nodes := setupNodes(2, reliableNetwork(), 1)
	node := nodes[0]

	tx := makeTx(t, "mainnet", "alice", "alice/balance", "100")
	payload, err := encodePayload(tx)
	if err != nil {
		t.Fatal(err)
	}
	msg := network.NewMessage(network.KindTransaction, "external", 0, 0, payload)

	node.ReceiveMessage(msg)
	node.ReceiveMessage(msg)
	if node.PendingTransactionCount() != 1 {
		t.Fatalf("pending queue has %d entries after a replay, want 1", node.PendingTransactionCount())
	}

	node.ReceiveMessage(network.NewMessage(network.KindTransaction, "external", 0, 0, payload))
	if node.PendingTransactionCount() != 2 {
		t.Fatalf("an independently created message was treated as a duplicate")
	}
}

// A well-signed prevote from an id outside the validator set is discarded.
func TestVoteFromNonValidatorIgnored(t *testing.T) {
	sim, nodes := setupNodes(2, reliableNetwork(), 1)
	attacker := NewNode("attacker", true, newTestConfig(2, reliableNetwork(), 1), sim)

	vote := &Vote{
		Height:    1,
		BlockHash: "abc123",
		Phase:     PhasePrevote,
		Voter:     attacker.name,
	}
	msg := voteMessage(t, attacker, network.KindPrevote, vote)
	for _, node := range nodes {
		node.ReceiveMessage(msg)
	}

	for _, node := range nodes {
		if node.PrevoteCount(1, "abc123") != 0 {
			t.Fatalf("%s booked a vote from outside the validator set", node.name)
		}
	}
}

// A vote signature covers the height: replaying it with an altered height
// fails verification.
func TestVoteReplayAtAlteredHeightRejected(t *testing.T) {
	_, nodes := setupNodes(2, reliableNetwork(), 1)
	signerNode, receiver := nodes[0], nodes[1]

	vote := &Vote{
		Height:    1,
		BlockHash: "abc123",
		Phase:     PhasePrevote,
		Voter:     signerNode.name,
		PublicKey: signerNode.publicKey,
	}
	sig, err := signerNode.signer.SignVote(signerNode.privateKey, vote.Data())
	if err != nil {
		t.Fatal(err)
	}
	vote.Signature = sig
	vote.Height = 2 // replay attempt

	payload, err := encodePayload(vote)
	if err != nil {
		t.Fatal(err)
	}
	receiver.ReceiveMessage(network.NewMessage(network.KindPrevote, signerNode.name, 0, 2, payload))

	if receiver.PrevoteCount(2, "abc123") != 0 {
		t.Fatalf("replayed vote with an altered height was booked")
	}
}

// A precommit-phase vote delivered in a prevote envelope must not cross
// books.
func TestPhaseEnvelopeMismatchRejected(t *testing.T) {
	_, nodes := setupNodes(2, reliableNetwork(), 1)
	signerNode, receiver := nodes[0], nodes[1]

	vote := &Vote{Height: 1, BlockHash: "abc123", Phase: PhasePrecommit, Voter: signerNode.name}
	receiver.ReceiveMessage(voteMessage(t, signerNode, network.KindPrevote, vote))

	if receiver.PrevoteCount(1, "abc123") != 0 {
		t.Fatalf("precommit-phase vote entered the prevote book")
	}
	if receiver.PrecommitCount(1, "abc123") != 0 {
		t.Fatalf("precommit-phase vote in a prevote envelope entered the precommit book")
	}
}

// Old votes arriving after finalization are discarded.
func TestStaleVoteIgnored(t *testing.T) {
	sim, nodes := setupNodes(3, reliableNetwork(), 2)

	tx := makeTx(t, "mainnet", "alice", "alice/balance", "100")
	if err := nodes[0].SubmitTransaction(tx); err != nil {
		t.Fatal(err)
	}
	nodes[0].ProposeBlock()
	runSteps(sim, 40, 0.05)
	if nodes[1].CurrentHeight() != 1 {
		t.Fatalf("setup failed, node at height %d", nodes[1].CurrentHeight())
	}
	hash := nodes[1].Ledger()[0].Hash

	vote := &Vote{Height: 1, BlockHash: hash, Phase: PhasePrevote, Voter: nodes[2].name}
	nodes[1].ReceiveMessage(voteMessage(t, nodes[2], network.KindPrevote, vote))

	if nodes[1].PrevoteCount(1, hash) != 0 {
		t.Fatalf("vote for a finalized height was booked")
	}
}

// A header whose state commitment does not match re-execution gets no vote
// and is not admitted.
func TestBlockWithWrongStateHashRejected(t *testing.T) {
	_, nodes := setupNodes(3, reliableNetwork(), 3)
	proposer, receiver := nodes[0], nodes[1]

	tx := makeTx(t, "mainnet", "alice", "alice/balance", "100")
	block := execution.NewBlock(1, execution.GenesisParent, []*execution.Transaction{tx}, "bogus-state-hash")
	if err := block.SignHeader(proposer.signer, proposer.privateKey, proposer.publicKey); err != nil {
		t.Fatal(err)
	}
	receiver.ReceiveMessage(blockMessage(t, proposer.name, block))

	if receiver.PrevoteCount(1, block.Hash) != 0 {
		t.Fatalf("node prevoted a block with a bad state hash")
	}
	if len(receiver.pendingBlocks) != 0 {
		t.Fatalf("invalid block was admitted to pending blocks")
	}
}

// An unsigned header is rejected even as a future block.
func TestUnsignedHeaderRejected(t *testing.T) {
	_, nodes := setupNodes(3, reliableNetwork(), 3)
	receiver := nodes[1]

	block := execution.NewBlock(5, "whatever", nil, "statehash")
	receiver.ReceiveMessage(blockMessage(t, "node0", block))

	if len(receiver.pendingBlocks) != 0 {
		t.Fatalf("unsigned future header was buffered")
	}
}

// A header whose hash field disagrees with its contents is rejected.
func TestForgedBlockHashRejected(t *testing.T) {
	_, nodes := setupNodes(3, reliableNetwork(), 3)
	proposer, receiver := nodes[0], nodes[1]

	tx := makeTx(t, "mainnet", "alice", "alice/balance", "100")
	block := buildBlock(t, proposer, []*execution.Transaction{tx})
	block.Hash = "forged"
	receiver.ReceiveMessage(blockMessage(t, proposer.name, block))

	if len(receiver.pendingBlocks) != 0 {
		t.Fatalf("block with a forged hash was admitted")
	}
}

// An invalid transaction never reaches the pending queue.
func TestInvalidTransactionNotQueued(t *testing.T) {
	_, nodes := setupNodes(2, reliableNetwork(), 1)
	node := nodes[0]

	tx := makeTx(t, "mainnet", "alice", "alice/balance", "100")
	tx.Value = "999999" // breaks the signature
	payload, err := encodePayload(tx)
	if err != nil {
		t.Fatal(err)
	}
	node.ReceiveMessage(network.NewMessage(network.KindTransaction, "external", 0, 0, payload))

	if node.PendingTransactionCount() != 0 {
		t.Fatalf("tampered transaction entered the pending queue")
	}
}
