package logging

import (
	"io/ioutil"
	"os"
	"path/filepath"

	"bftsim/hashing"
)

// DeterministicLog is an append-only record of a run. Timestamps come from
// the virtual clock, so the same schedule yields byte-identical output and
// Hash can be compared across runs.
type DeterministicLog struct {
	events []map[string]interface{}
}

func NewDeterministicLog() *DeterministicLog {
	return &DeterministicLog{}
}

// Append records one event.
func (l *DeterministicLog) Append(timestamp float64, eventType string, data map[string]interface{}) {
	l.events = append(l.events, map[string]interface{}{
		"timestamp": timestamp,
		"type":      eventType,
		"data":      data,
	})
}

func (l *DeterministicLog) Len() int {
	return len(l.events)
}

// encode returns the canonical encoding the log is saved and hashed over.
func (l *DeterministicLog) encode() ([]byte, error) {
	return hashing.CanonicalJSON(l.events)
}

// Save writes the canonically encoded log, creating parent directories.
func (l *DeterministicLog) Save(path string) error {
	encoded, err := l.encode()
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return ioutil.WriteFile(path, encoded, 0644)
}

// Hash returns the hex SHA-256 of the canonical encoding.
func (l *DeterministicLog) Hash() (string, error) {
	encoded, err := l.encode()
	if err != nil {
		return "", err
	}
	return hashing.HashBytes(encoded), nil
}
