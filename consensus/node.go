package consensus

import (
	"crypto/ed25519"
	"fmt"
	"sync"

	"bftsim/config"
	"bftsim/execution"
	"bftsim/network"
	"bftsim/sign"

	"github.com/hashicorp/go-hclog"
)

// Node is one validator's consensus state machine. It owns its state,
// ledger, vote books and pending blocks exclusively; the network simulator
// drives it by synchronous ReceiveMessage calls, so every handler completes
// before the next delivery.
type Node struct {
	name        string
	lock        sync.RWMutex
	isValidator bool

	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
	signer     *sign.Signer

	state               *execution.State
	ledger              []*execution.Block
	pendingTransactions []*execution.Transaction

	currentHeight uint64
	pendingBlocks map[uint64]*execution.Block            // height -> latest header seen
	prevotes      map[uint64]map[string]map[string]bool  // height -> hash -> voter set
	precommits    map[uint64]map[string]map[string]bool  // height -> hash -> voter set

	seenMessages   map[string]bool
	sentPrevotes   map[voteKey]bool
	sentPrecommits map[voteKey]bool

	validators map[string]bool

	net    *network.Simulator
	logger hclog.Logger
}

func NewNode(name string, isValidator bool, conf *config.Config, net *network.Simulator) *Node {
	privKey, pubKey := sign.GenKeyPair()
	signer := sign.NewSigner(conf.ChainID)
	n := &Node{
		name:           name,
		isValidator:    isValidator,
		privateKey:     privKey,
		publicKey:      pubKey,
		signer:         signer,
		state:          execution.NewState(signer),
		currentHeight:  0,
		pendingBlocks:  make(map[uint64]*execution.Block),
		prevotes:       make(map[uint64]map[string]map[string]bool),
		precommits:     make(map[uint64]map[string]map[string]bool),
		seenMessages:   make(map[string]bool),
		sentPrevotes:   make(map[voteKey]bool),
		sentPrecommits: make(map[voteKey]bool),
		validators:     make(map[string]bool),
		net:            net,
	}
	n.logger = hclog.New(&hclog.LoggerOptions{
		Name:   name,
		Output: hclog.DefaultOutput,
		Level:  hclog.Level(conf.LogLevel),
	})
	return n
}

// ID implements network.Receiver.
func (n *Node) ID() string {
	return n.name
}

// SetValidators installs the static, equal-weight validator set.
func (n *Node) SetValidators(ids []string) {
	n.lock.Lock()
	defer n.lock.Unlock()
	n.validators = make(map[string]bool, len(ids))
	for _, id := range ids {
		n.validators[id] = true
	}
}

// SubmitTransaction queues a verified transaction for a future proposal.
func (n *Node) SubmitTransaction(tx *execution.Transaction) error {
	if !tx.Verify(n.signer) {
		return fmt.Errorf("invalid transaction: %s: %s=%s", tx.Sender, tx.Key, tx.Value)
	}
	n.lock.Lock()
	n.pendingTransactions = append(n.pendingTransactions, tx)
	n.lock.Unlock()
	return nil
}

// ProposeBlock builds a block from the pending queue, broadcasts its header
// and self-delivers it. Invalid pending transactions are dropped; the queue
// is cleared once a proposal goes out.
func (n *Node) ProposeBlock() {
	n.lock.Lock()
	if len(n.pendingTransactions) == 0 {
		n.lock.Unlock()
		n.logger.Debug("no transactions to propose")
		return
	}
	pending := n.pendingTransactions
	height := n.currentHeight + 1
	parentHash := execution.GenesisParent
	if len(n.ledger) > 0 {
		parentHash = n.ledger[len(n.ledger)-1].Hash
	}
	snapshot := n.state.Copy()
	n.lock.Unlock()

	valid := make([]*execution.Transaction, 0, len(pending))
	for _, tx := range pending {
		if err := snapshot.ApplyTransaction(tx); err != nil {
			n.logger.Debug("dropping invalid pending transaction", "error", err)
			continue
		}
		valid = append(valid, tx)
	}
	if len(valid) == 0 {
		n.logger.Debug("no valid transactions to propose")
		return
	}

	block := execution.NewBlock(height, parentHash, valid, snapshot.Commitment())
	if err := block.SignHeader(n.signer, n.privateKey, n.publicKey); err != nil {
		n.logger.Error("fail to sign the block header", "error", err)
		return
	}

	n.lock.Lock()
	n.pendingTransactions = nil
	n.lock.Unlock()

	n.logger.Info("proposing block", "height", height, "hash", shortHash(block.Hash), "txs", len(valid))
	n.broadcast(network.KindBlockHeader, height, block)
}

// SendBlockRequest asks all peers for the finalized block at height.
func (n *Node) SendBlockRequest(height uint64) {
	req := &BlockRequest{Height: height, Requester: n.name}
	msg, err := n.newMessage(network.KindRequestBlock, height, req)
	if err != nil {
		n.logger.Error("fail to encode the block request", "error", err)
		return
	}
	n.net.Broadcast(n.name, msg)
}

// wellFormedBlock runs the stateless checks a header must pass before it is
// admitted to pendingBlocks: consistent content hash and a valid proposer
// signature.
func (n *Node) wellFormedBlock(b *execution.Block) bool {
	if b.Hash != b.ComputeHash() {
		return false
	}
	return b.VerifyHeader(n.signer)
}

// validateBlock checks a header against the node's chain tip: expected
// height, parent link, transaction validity and the post-state commitment.
func (n *Node) validateBlock(b *execution.Block) bool {
	_, ok := n.replayBlock(b)
	return ok
}

// replayBlock validates b for the current next height and returns the
// speculative post-state on success.
func (n *Node) replayBlock(b *execution.Block) (*execution.State, bool) {
	n.lock.RLock()
	next := n.currentHeight + 1
	expectedParent := execution.GenesisParent
	if len(n.ledger) > 0 {
		expectedParent = n.ledger[len(n.ledger)-1].Hash
	}
	snapshot := n.state.Copy()
	n.lock.RUnlock()

	if b.Height != next {
		return nil, false
	}
	if b.ParentHash != expectedParent {
		return nil, false
	}
	for _, tx := range b.Transactions {
		if !tx.Verify(n.signer) {
			return nil, false
		}
	}
	for _, tx := range b.Transactions {
		if err := snapshot.ApplyTransaction(tx); err != nil {
			return nil, false
		}
	}
	if snapshot.Commitment() != b.StateHash {
		return nil, false
	}
	return snapshot, true
}

func storeVote(book map[uint64]map[string]map[string]bool, v *Vote) {
	if _, ok := book[v.Height]; !ok {
		book[v.Height] = make(map[string]map[string]bool)
	}
	if _, ok := book[v.Height][v.BlockHash]; !ok {
		book[v.Height][v.BlockHash] = make(map[string]bool)
	}
	book[v.Height][v.BlockHash][v.Voter] = true
}

// hasMajority reports a strict simple majority of distinct voters. The
// caller must hold the lock.
func (n *Node) hasMajority(book map[uint64]map[string]map[string]bool, height uint64, blockHash string) bool {
	return len(book[height][blockHash])*2 > len(n.validators)
}

// checkMajorities re-evaluates both vote books for (height, blockHash):
// majority prevotes authorize this node's precommit, majority precommits
// trigger finalization.
func (n *Node) checkMajorities(height uint64, blockHash string) {
	n.lock.RLock()
	prevoteMajority := n.hasMajority(n.prevotes, height, blockHash)
	precommitMajority := n.hasMajority(n.precommits, height, blockHash)
	n.lock.RUnlock()

	if prevoteMajority {
		n.sendPrecommit(height, blockHash)
	}
	if precommitMajority {
		n.tryFinalize(height, blockHash)
	}
}

// tryFinalize finalizes (height, blockHash) if it is the next height, the
// matching header is held, and the block still validates: the replayed
// snapshot becomes the live state, the block is appended, and buffered
// blocks and precommits for the following height are tried in cascade.
func (n *Node) tryFinalize(height uint64, blockHash string) {
	n.lock.RLock()
	block := n.pendingBlocks[height]
	next := n.currentHeight + 1
	n.lock.RUnlock()

	if height != next {
		return
	}
	if block == nil || block.Hash != blockHash {
		return
	}

	post, ok := n.replayBlock(block)
	if !ok {
		// The block validated when it was prevoted; failing here means a
		// broken invariant, so it is logged rather than silently dropped.
		n.logger.Error("finalize aborted, block failed replay against live state",
			"height", height, "hash", shortHash(blockHash))
		return
	}

	n.lock.Lock()
	if height != n.currentHeight+1 {
		n.lock.Unlock()
		return
	}
	n.state = post
	n.ledger = append(n.ledger, block)
	n.currentHeight = height
	n.cleanup(height)
	n.lock.Unlock()

	n.logger.Info("finalized block", "height", height, "hash", shortHash(blockHash),
		"txs", len(block.Transactions), "state", shortHash(post.Commitment()))

	n.tryFinalizeNext()
}

// tryFinalizeNext attempts catch-up from already-buffered headers and
// precommits after a finalization advanced the height.
func (n *Node) tryFinalizeNext() {
	n.lock.RLock()
	next := n.currentHeight + 1
	block := n.pendingBlocks[next]
	found := block != nil && n.hasMajority(n.precommits, next, block.Hash)
	n.lock.RUnlock()

	if found {
		n.tryFinalize(next, block.Hash)
	}
}

// cleanup discards vote books and pending headers for all heights at or
// below the finalized height. The caller must hold the lock.
func (n *Node) cleanup(finalizedHeight uint64) {
	for h := range n.prevotes {
		if h <= finalizedHeight {
			delete(n.prevotes, h)
		}
	}
	for h := range n.precommits {
		if h <= finalizedHeight {
			delete(n.precommits, h)
		}
	}
	for h := range n.pendingBlocks {
		if h <= finalizedHeight {
			delete(n.pendingBlocks, h)
		}
	}
}

// CurrentHeight returns the node's finalized height.
func (n *Node) CurrentHeight() uint64 {
	n.lock.RLock()
	defer n.lock.RUnlock()
	return n.currentHeight
}

// StateCommitment returns the live state's commitment hash.
func (n *Node) StateCommitment() string {
	n.lock.RLock()
	defer n.lock.RUnlock()
	return n.state.Commitment()
}

// StateValue reads one key from the live state.
func (n *Node) StateValue(key string) (string, bool) {
	n.lock.RLock()
	defer n.lock.RUnlock()
	return n.state.Get(key)
}

// Ledger returns the finalized chain in height order.
func (n *Node) Ledger() []*execution.Block {
	n.lock.RLock()
	defer n.lock.RUnlock()
	ledger := make([]*execution.Block, len(n.ledger))
	copy(ledger, n.ledger)
	return ledger
}

// PendingTransactionCount reports the size of the proposal queue.
func (n *Node) PendingTransactionCount() int {
	n.lock.RLock()
	defer n.lock.RUnlock()
	return len(n.pendingTransactions)
}

// PrevoteCount reports the distinct prevoters recorded for a pair.
func (n *Node) PrevoteCount(height uint64, blockHash string) int {
	n.lock.RLock()
	defer n.lock.RUnlock()
	return len(n.prevotes[height][blockHash])
}

// PrecommitCount reports the distinct precommitters recorded for a pair.
func (n *Node) PrecommitCount(height uint64, blockHash string) int {
	n.lock.RLock()
	defer n.lock.RUnlock()
	return len(n.precommits[height][blockHash])
}

func shortHash(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}
