package consensus

import (
	"bftsim/network"
)

func (n *Node) sendPrevote(height uint64, blockHash string) {
	n.castVote(PhasePrevote, network.KindPrevote, height, blockHash, n.sentPrevotes)
}

func (n *Node) sendPrecommit(height uint64, blockHash string) {
	n.castVote(PhasePrecommit, network.KindPrecommit, height, blockHash, n.sentPrecommits)
}

// castVote signs and broadcasts one vote per (height, hash) pair and phase.
// Non-validators never vote.
func (n *Node) castVote(phase string, kind network.Kind, height uint64, blockHash string, sent map[voteKey]bool) {
	if !n.isValidator {
		return
	}
	key := voteKey{height, blockHash}
	n.lock.Lock()
	if sent[key] {
		n.lock.Unlock()
		return
	}
	sent[key] = true
	n.lock.Unlock()

	vote := &Vote{
		Height:    height,
		BlockHash: blockHash,
		Phase:     phase,
		Voter:     n.name,
		PublicKey: n.publicKey,
	}
	sig, err := n.signer.SignVote(n.privateKey, vote.Data())
	if err != nil {
		n.logger.Error("fail to sign the vote", "phase", phase, "height", height, "error", err)
		return
	}
	vote.Signature = sig
	n.broadcast(kind, height, vote)
}

// broadcast sends a message to all peers and self-delivers it, so the sender
// observes its own proposal or vote at the same virtual time it was sent.
func (n *Node) broadcast(kind network.Kind, height uint64, body interface{}) {
	msg, err := n.newMessage(kind, height, body)
	if err != nil {
		n.logger.Error("fail to encode the message", "type", kind.String(), "error", err)
		return
	}
	n.net.Broadcast(n.name, msg)
	n.ReceiveMessage(msg)
}

// send unicasts a message to one peer.
func (n *Node) send(kind network.Kind, height uint64, body interface{}, target string) {
	msg, err := n.newMessage(kind, height, body)
	if err != nil {
		n.logger.Error("fail to encode the message", "type", kind.String(), "error", err)
		return
	}
	n.net.Send(n.name, target, msg)
}

func (n *Node) newMessage(kind network.Kind, height uint64, body interface{}) (*network.Message, error) {
	payload, err := encodePayload(body)
	if err != nil {
		return nil, err
	}
	return network.NewMessage(kind, n.name, n.net.Now(), height, payload), nil
}
