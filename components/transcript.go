package components

import (
	"encoding/json"
	"slices"
	"sync"
)

// Transcript is the ordered, append-only record of the turns of one run.
// It is owned by a single run and discarded when the run terminates.
// threadsafe
type Transcript struct {
	//	history is a list of messages representing the run so far.
	history []Message
	//	turnID is the ID of the current turn.
	turnID string
	// mtx sync lock
	mtx *sync.RWMutex
}

// NewTranscript initializes a Transcript seeded with the given messages
func NewTranscript(seed ...*Message) *Transcript {
	ret := &Transcript{
		history: make([]Message, 0, len(seed)+8),
		mtx:     new(sync.RWMutex),
	}
	ret.NewTurn()
	for _, msg := range seed {
		ret.Append(msg)
	}
	return ret
}

// TurnID returns the current turn ID
func (t *Transcript) TurnID() string {
	t.mtx.RLock()
	defer t.mtx.RUnlock()
	return t.turnID
}

// NewTurn starts a new turn by generating a random turn ID.
func (t *Transcript) NewTurn() string {
	id := NewTurnID()
	t.mtx.Lock()
	t.turnID = id
	t.mtx.Unlock()
	return id
}

// Append adds a message stamped with the current turn ID and returns the stored copy
func (t *Transcript) Append(msg *Message) Message {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	stored := *msg
	stored.turnID = t.turnID
	t.history = append(t.history, stored)
	return stored
}

// History returns a copy of the transcript
func (t *Transcript) History() []Message {
	t.mtx.RLock()
	defer t.mtx.RUnlock()
	return slices.Clone(t.history)
}

// Len returns the number of messages in the transcript
func (t *Transcript) Len() int {
	t.mtx.RLock()
	defer t.mtx.RUnlock()
	return len(t.history)
}

// Last returns the most recent message
func (t *Transcript) Last() (Message, bool) {
	t.mtx.RLock()
	defer t.mtx.RUnlock()
	if len(t.history) == 0 {
		return Message{}, false
	}
	return t.history[len(t.history)-1], true
}

// LastCandidate returns the payload of the most recent CandidateAnswer
func (t *Transcript) LastCandidate() (json.RawMessage, bool) {
	t.mtx.RLock()
	defer t.mtx.RUnlock()
	for i := len(t.history) - 1; i >= 0; i-- {
		if t.history[i].kind == CandidateAnswerKind {
			return slices.Clone(t.history[i].payload), true
		}
	}
	return nil, false
}

// Count returns the number of messages of the given kind
func (t *Transcript) Count(kind MessageKind) int {
	t.mtx.RLock()
	defer t.mtx.RUnlock()
	var n int
	for _, msg := range t.history {
		if msg.kind == kind {
			n++
		}
	}
	return n
}
