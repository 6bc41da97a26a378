package dispatch

import "fmt"

// StateKind enumerates the Resolver states.
type StateKind int

const (
	Seeking   StateKind = iota // probing the candidate at Index
	Found                      // candidate at Index dispatches with Status
	Exhausted                  // nothing claimed the request
)

func (k StateKind) String() string {
	switch k {
	case Seeking:
		return "seeking"
	case Found:
		return "found"
	case Exhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// State is the Resolver cursor position.
type State struct {
	Kind    StateKind
	Index   int
	Status  int
	Matched bool
}

// Terminal reports whether resolution has finished.
func (s State) Terminal() bool {
	return s.Kind != Seeking
}

func (s State) String() string {
	switch s.Kind {
	case Seeking:
		return fmt.Sprintf("seeking(%d)", s.Index)
	case Found:
		return fmt.Sprintf("found(%d, %d)", s.Index, s.Status)
	default:
		return s.Kind.String()
	}
}

// Resolver walks an ordered candidate list one probe at a time. It holds no
// reference to the request, so the caller drives it with a plain loop:
//
//	r := NewResolver(candidates)
//	for !r.Done() {
//		h, _ := r.Current()
//		r.Advance(h.Probe(ctx, req))
//	}
//
// The index only moves forward and every Advance either moves it by one or
// reaches a terminal state, so a list of n candidates terminates in at most n
// transitions.
type Resolver struct {
	candidates []Handler
	state      State
	steps      int
}

// NewResolver starts at Seeking(0), or Exhausted for an empty list.
func NewResolver(candidates []Handler) Resolver {
	r := Resolver{candidates: candidates}
	if len(candidates) == 0 {
		r.state = State{Kind: Exhausted, Status: StatusMiss}
	}
	return r
}

// State returns the current cursor state.
func (r *Resolver) State() State {
	return r.state
}

// Done reports whether the resolver reached Found or Exhausted.
func (r *Resolver) Done() bool {
	return r.state.Terminal()
}

// Steps returns the number of transitions taken so far.
func (r *Resolver) Steps() int {
	return r.steps
}

// Current returns the candidate to probe next and its index. ok is false once
// the resolver is terminal.
func (r *Resolver) Current() (h Handler, index int, ok bool) {
	if r.state.Kind != Seeking {
		return nil, r.state.Index, false
	}
	return r.candidates[r.state.Index], r.state.Index, true
}

// Selected returns the candidate chosen by a Found state.
func (r *Resolver) Selected() (h Handler, ok bool) {
	if r.state.Kind != Found {
		return nil, false
	}
	return r.candidates[r.state.Index], true
}

// Advance applies the outcome of probing the current candidate. Advancing a
// terminal resolver does nothing.
func (r *Resolver) Advance(o Outcome) State {
	if r.state.Terminal() {
		return r.state
	}

	r.steps++
	i := r.state.Index

	switch {
	case !o.Miss():
		r.state = State{Kind: Found, Index: i, Status: o.Status, Matched: o.Matched}
	case i+1 < len(r.candidates):
		r.state = State{Kind: Seeking, Index: i + 1}
	default:
		r.state = State{Kind: Exhausted, Index: i, Status: StatusMiss}
	}

	return r.state
}
