package consensus

import (
	"bftsim/execution"
	"bftsim/network"
)

// ReceiveMessage is the node's single inbound entry point. Duplicate message
// ids are dropped before dispatch; malformed payloads and failed
// verifications are silent discards, never errors.
func (n *Node) ReceiveMessage(msg *network.Message) {
	n.lock.Lock()
	if n.seenMessages[msg.ID] {
		n.lock.Unlock()
		return
	}
	n.seenMessages[msg.ID] = true
	n.lock.Unlock()

	body, err := decodePayload(msg.Kind, msg.Payload)
	if err != nil {
		n.logger.Debug("discarding undecodable message", "type", msg.Kind.String(),
			"sender", msg.Sender, "error", err)
		return
	}

	switch payload := body.(type) {
	case *execution.Transaction:
		n.handleTransaction(payload)
	case *execution.Block:
		n.handleBlockHeader(payload)
	case *Vote:
		switch msg.Kind {
		case network.KindPrevote:
			n.handlePrevote(payload)
		case network.KindPrecommit:
			n.handlePrecommit(payload)
		}
	case *BlockRequest:
		n.handleBlockRequest(payload)
	}
}

func (n *Node) handleTransaction(tx *execution.Transaction) {
	if !tx.Verify(n.signer) {
		n.logger.Debug("discarding invalid transaction", "sender", tx.Sender, "key", tx.Key)
		return
	}
	n.lock.Lock()
	n.pendingTransactions = append(n.pendingTransactions, tx)
	n.lock.Unlock()
}

// handleBlockHeader admits a well-formed header. Headers for the next height
// are validated and prevoted; future headers are buffered as-is because the
// state to validate them against does not exist yet; old headers are
// discarded.
func (n *Node) handleBlockHeader(b *execution.Block) {
	if !n.wellFormedBlock(b) {
		n.logger.Debug("discarding malformed block header", "height", b.Height)
		return
	}

	n.lock.Lock()
	next := n.currentHeight + 1
	if b.Height < next {
		n.lock.Unlock()
		return
	}
	if b.Height > next {
		n.pendingBlocks[b.Height] = b
		n.lock.Unlock()
		return
	}
	n.lock.Unlock()

	if !n.validateBlock(b) {
		n.logger.Debug("discarding invalid block", "height", b.Height, "hash", shortHash(b.Hash))
		return
	}

	n.lock.Lock()
	n.pendingBlocks[b.Height] = b
	n.lock.Unlock()

	n.sendPrevote(b.Height, b.Hash)

	// Votes may have arrived ahead of the header.
	n.checkMajorities(b.Height, b.Hash)
}

func (n *Node) handlePrevote(v *Vote) {
	if v.Phase != PhasePrevote {
		return
	}
	if !n.recordVote(v, n.prevotes) {
		return
	}

	// A header buffered while it was a future height is held without a
	// prevote; once it is the next height, a prevote for it makes this node
	// validate the block and cast its own prevote.
	n.lock.RLock()
	block := n.pendingBlocks[v.Height]
	atNext := v.Height == n.currentHeight+1
	voted := n.sentPrevotes[voteKey{v.Height, v.BlockHash}]
	n.lock.RUnlock()
	if atNext && !voted && block != nil && block.Hash == v.BlockHash && n.validateBlock(block) {
		n.sendPrevote(v.Height, v.BlockHash)
	}

	n.checkMajorities(v.Height, v.BlockHash)
}

func (n *Node) handlePrecommit(v *Vote) {
	if v.Phase != PhasePrecommit {
		return
	}
	if !n.recordVote(v, n.precommits) {
		return
	}
	n.checkMajorities(v.Height, v.BlockHash)
}

// recordVote verifies and books a vote. Votes for finalized heights, votes
// with bad signatures and votes from outside the validator set are
// discarded.
func (n *Node) recordVote(v *Vote, book map[uint64]map[string]map[string]bool) bool {
	if !v.Verify(n.signer) {
		n.logger.Debug("discarding vote with invalid signature", "phase", v.Phase,
			"height", v.Height, "voter", v.Voter)
		return false
	}
	n.lock.Lock()
	defer n.lock.Unlock()
	if v.Height < n.currentHeight+1 {
		return false
	}
	if !n.validators[v.Voter] {
		n.logger.Debug("discarding vote from non-validator", "phase", v.Phase,
			"height", v.Height, "voter", v.Voter)
		return false
	}
	storeVote(book, v)
	return true
}

// handleBlockRequest serves a finalized block's header to the requester.
func (n *Node) handleBlockRequest(req *BlockRequest) {
	if req.Height < 1 || req.Requester == n.name {
		return
	}
	n.lock.RLock()
	var block *execution.Block
	if uint64(len(n.ledger)) >= req.Height {
		block = n.ledger[req.Height-1]
	}
	n.lock.RUnlock()
	if block == nil {
		return
	}
	n.send(network.KindBlockHeader, block.Height, block, req.Requester)
}
