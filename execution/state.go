package execution

import (
	"fmt"
	"sort"

	"bftsim/hashing"
	"bftsim/sign"
)

// State is the replicated key/value store. ApplyTransaction mutates it only
// for verified transactions, while Set writes a value directly without any
// check; Copy gives a snapshot for speculative execution.
type State struct {
	signer *sign.Signer
	data   map[string]string
}

func NewState(signer *sign.Signer) *State {
	return &State{
		signer: signer,
		data:   make(map[string]string),
	}
}

func (s *State) Get(key string) (string, bool) {
	value, ok := s.data[key]
	return value, ok
}

func (s *State) Set(key, value string) {
	s.data[key] = value
}

func (s *State) Len() int {
	return len(s.data)
}

// ApplyTransaction applies tx if it verifies for this state's chain.
func (s *State) ApplyTransaction(tx *Transaction) error {
	if !tx.Verify(s.signer) {
		return fmt.Errorf("invalid transaction: %s: %s=%s", tx.Sender, tx.Key, tx.Value)
	}
	s.data[tx.Key] = tx.Value
	return nil
}

// Commitment hashes the key-sorted [key,value] pair list.
func (s *State) Commitment() string {
	keys := make([]string, 0, len(s.data))
	for key := range s.data {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	pairs := make([][2]string, 0, len(keys))
	for _, key := range keys {
		pairs = append(pairs, [2]string{key, s.data[key]})
	}
	commitment, err := hashing.HashData(pairs)
	if err != nil {
		// string pairs always encode
		panic(err)
	}
	return commitment
}

// Copy returns a snapshot sharing no data with the live state.
func (s *State) Copy() *State {
	snapshot := NewState(s.signer)
	for key, value := range s.data {
		snapshot.data[key] = value
	}
	return snapshot
}
