package rates

import (
	"context"
	"sync"
)

// Sequencer orders lookups per subject (for example "acct:BTC->USD"). Each
// Begin supersedes the previous request for the subject and cancels its
// context; only the latest ticket may apply its result.
type Sequencer struct {
	mu       sync.Mutex
	subjects map[string]*subject
}

type subject struct {
	seq    uint64
	cancel context.CancelFunc
	apply  sync.Mutex
}

func NewSequencer() *Sequencer {
	return &Sequencer{subjects: make(map[string]*subject)}
}

// Ticket identifies one request in a subject's sequence.
type Ticket struct {
	s       *Sequencer
	name    string
	seq     uint64
	state   *subject
	release context.CancelFunc
}

// Begin registers a new request for name and returns a context that is
// cancelled as soon as a newer request for the same subject begins.
func (s *Sequencer) Begin(ctx context.Context, name string) (context.Context, *Ticket) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.subjects[name]
	if !ok {
		st = &subject{}
		s.subjects[name] = st
	}
	if st.cancel != nil {
		st.cancel()
	}
	st.seq++

	reqCtx, cancel := context.WithCancel(ctx)
	st.cancel = cancel

	return reqCtx, &Ticket{s: s, name: name, seq: st.seq, state: st, release: cancel}
}

// Forget drops the subject, cancelling whatever is in flight for it.
func (s *Sequencer) Forget(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := s.subjects[name]; ok {
		if st.cancel != nil {
			st.cancel()
		}
		delete(s.subjects, name)
	}
}

func (t *Ticket) Seq() uint64 { return t.seq }

// Current reports whether no newer request for the subject has begun.
func (t *Ticket) Current() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	st, ok := t.s.subjects[t.name]
	return ok && st == t.state && st.seq == t.seq
}

// Apply runs fn only if the ticket is still the latest for its subject.
// Applies for one subject never interleave.
func (t *Ticket) Apply(fn func() error) error {
	t.state.apply.Lock()
	defer t.state.apply.Unlock()

	if !t.Current() {
		return ErrSuperseded
	}
	return fn()
}

// Done releases the ticket's context.
func (t *Ticket) Done() {
	t.release()

	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if st, ok := t.s.subjects[t.name]; ok && st == t.state && st.seq == t.seq {
		st.cancel = nil
	}
}
