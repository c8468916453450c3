package reading

import "sync"

// WordState is the pronunciation verdict for one reference word.
type WordState int

const (
	// Pending words have not been resolved yet.
	Pending WordState = iota
	// Correct words were matched (or skipped over by a forward jump).
	Correct
	// Incorrect words were passed without a match.
	Incorrect
)

// String returns the lowercase name of the state.
func (s WordState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Correct:
		return "correct"
	case Incorrect:
		return "incorrect"
	default:
		return "unknown"
	}
}

// IsResolved reports whether s is final for the session.
func (s WordState) IsResolved() bool {
	return s == Correct || s == Incorrect
}

// Decision is the outcome of aligning one hypothesis batch.
type Decision struct {
	// Matched is false for a no-match outcome.
	Matched bool

	// Index is the matched reference index; meaningless when Matched is false.
	Index int

	// Score is the weighted similarity of the winning candidate.
	Score float64

	// Token is the spoken token that produced the match.
	Token string
}

// Match returns a matched Decision for index i.
func Match(i int, score float64, token string) Decision {
	return Decision{Matched: true, Index: i, Score: score, Token: token}
}

// NoMatch returns the no-match Decision.
func NoMatch() Decision {
	return Decision{Index: -1}
}

// Tracker owns the per-word states and the session pointer. State changes
// are forward-only: a resolved word never reverts, and the pointer never
// decreases except through [Tracker.Reset].
//
// Tracker is safe for concurrent use; the session event loop is its only
// writer while readers may take snapshots at any time.
type Tracker struct {
	mu      sync.RWMutex
	states  []WordState
	pointer int

	onChange func(index int, state WordState)
}

// NewTracker returns a Tracker with n pending words and the pointer at 0.
// onChange, if non-nil, is called for every state transition (outside the
// tracker's lock).
func NewTracker(n int, onChange func(index int, state WordState)) *Tracker {
	return &Tracker{
		states:   make([]WordState, n),
		onChange: onChange,
	}
}

// Apply records d and advances the pointer. It returns the indices whose
// state changed, in ascending order. Apply is a no-op once complete.
//
// A match at m marks m correct, forgives every pending word between the
// pointer and m as correct, and moves the pointer to m+1. A no-match marks
// the word under the pointer incorrect and moves the pointer forward by one.
func (t *Tracker) Apply(d Decision) []int {
	t.mu.Lock()
	if t.pointer >= len(t.states) {
		t.mu.Unlock()
		return nil
	}

	var changed []int
	if d.Matched && d.Index >= 0 && d.Index < len(t.states) {
		for i := t.pointer; i < d.Index; i++ {
			if t.mark(i, Correct) {
				changed = append(changed, i)
			}
		}
		if t.mark(d.Index, Correct) {
			changed = append(changed, d.Index)
		}
		t.pointer = max(t.pointer, d.Index+1)
	} else {
		if t.mark(t.pointer, Incorrect) {
			changed = append(changed, t.pointer)
		}
		t.pointer++
	}
	t.advancePastResolved()
	t.mu.Unlock()

	t.notify(changed)
	return changed
}

// Finish marks every pending word incorrect and moves the pointer to the
// end. Used when the caller stops a session before completion.
func (t *Tracker) Finish() []int {
	t.mu.Lock()
	var changed []int
	for i := range t.states {
		if t.mark(i, Incorrect) {
			changed = append(changed, i)
		}
	}
	t.pointer = len(t.states)
	t.mu.Unlock()

	t.notify(changed)
	return changed
}

// Reset returns every word to pending and the pointer to 0 (explicit restart).
func (t *Tracker) Reset() {
	t.mu.Lock()
	for i := range t.states {
		t.states[i] = Pending
	}
	t.pointer = 0
	t.mu.Unlock()
}

// Pointer returns the index of the word currently expected.
func (t *Tracker) Pointer() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.pointer
}

// Len returns the number of tracked words.
func (t *Tracker) Len() int {
	return len(t.states)
}

// State returns the state of word i.
func (t *Tracker) State(i int) WordState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.states[i]
}

// States returns a snapshot of all word states.
func (t *Tracker) States() []WordState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]WordState, len(t.states))
	copy(out, t.states)
	return out
}

// Complete reports whether the pointer reached the end of the passage.
func (t *Tracker) Complete() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.pointer >= len(t.states)
}

// mark sets a pending word to s. Must be called with t.mu held.
func (t *Tracker) mark(i int, s WordState) bool {
	if t.states[i].IsResolved() {
		return false
	}
	t.states[i] = s
	return true
}

// advancePastResolved skips words already resolved by an earlier forward
// jump so the pointer always rests on a pending word or the end.
// Must be called with t.mu held.
func (t *Tracker) advancePastResolved() {
	for t.pointer < len(t.states) && t.states[t.pointer].IsResolved() {
		t.pointer++
	}
}

func (t *Tracker) notify(changed []int) {
	if t.onChange == nil {
		return
	}
	for _, i := range changed {
		t.onChange(i, t.State(i))
	}
}
