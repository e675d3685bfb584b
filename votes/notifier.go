package votes

import (
	"sync"
	"time"
)

// Vote collects the outcome of a voting round. Any single veto wins; when
// nobody votes the outcome falls back to the notifier's default, allow
// unless configured otherwise.
type Vote struct {
	vetoed      bool
	approved    bool
	defaultVeto bool
	reasons     []string
	mux         sync.Mutex
}

func (v *Vote) Veto(reason string) {
	v.mux.Lock()
	v.vetoed = true
	if reason != "" {
		v.reasons = append(v.reasons, reason)
	}
	v.mux.Unlock()
}

// Approve records an explicit allow. It overrides a veto-by-default
// outcome but never an explicit veto.
func (v *Vote) Approve() {
	v.mux.Lock()
	v.approved = true
	v.mux.Unlock()
}

func (v *Vote) IsVetoed() bool {
	v.mux.Lock()
	defer v.mux.Unlock()
	if v.vetoed {
		return true
	}
	if v.approved {
		return false
	}
	return v.defaultVeto
}

func (v *Vote) Reasons() []string {
	v.mux.Lock()
	defer v.mux.Unlock()
	reasons := make([]string, len(v.reasons))
	copy(reasons, v.reasons)
	return reasons
}

// VotingHandler may veto a proposed topology change before it commits.
type VotingHandler[C any, CH any] func(timestamp time.Time, context C, child CH, vote *Vote)

// NotificationHandler announces a committed topology change. It cannot fail
// the operation.
type NotificationHandler[C any, CH any] func(timestamp time.Time, context C, child CH)

// Notifier is the two-phase add/remove notification primitive bound to one
// (context, child) type pair. SendVoting runs the voting phase and returns
// the aggregate vote; the caller commits the collection mutation only when
// the vote is not vetoed, then calls SendNotification.
type Notifier[C any, CH any] struct {
	voting        []VotingHandler[C, CH]
	notifications []NotificationHandler[C, CH]
	defaultVeto   bool
	mux           sync.Mutex
}

func NewNotifier[C any, CH any]() *Notifier[C, CH] {
	return &Notifier[C, CH]{}
}

// NewNotifierWithDefault sets the outcome of a voting round in which no
// handler votes: veto true blocks mutations unless a handler approves.
func NewNotifierWithDefault[C any, CH any](veto bool) *Notifier[C, CH] {
	return &Notifier[C, CH]{defaultVeto: veto}
}

// SetDefaultVote changes the no-vote outcome of future voting rounds.
func (n *Notifier[C, CH]) SetDefaultVote(veto bool) {
	n.mux.Lock()
	n.defaultVeto = veto
	n.mux.Unlock()
}

func (n *Notifier[C, CH]) OnVoting(handler VotingHandler[C, CH]) {
	if handler == nil {
		return
	}
	n.mux.Lock()
	n.voting = append(n.voting, handler)
	n.mux.Unlock()
}

func (n *Notifier[C, CH]) OnNotification(handler NotificationHandler[C, CH]) {
	if handler == nil {
		return
	}
	n.mux.Lock()
	n.notifications = append(n.notifications, handler)
	n.mux.Unlock()
}

// SendVoting calls every voting handler with a shared mutable vote. Voting
// continues through all handlers even after a veto, so every observer sees
// the proposal.
func (n *Notifier[C, CH]) SendVoting(timestamp time.Time, context C, child CH) *Vote {
	n.mux.Lock()
	voting := make([]VotingHandler[C, CH], len(n.voting))
	copy(voting, n.voting)
	defaultVeto := n.defaultVeto
	n.mux.Unlock()

	vote := &Vote{defaultVeto: defaultVeto}
	for _, handler := range voting {
		handler(timestamp, context, child, vote)
	}
	return vote
}

// SendNotification announces a committed change.
func (n *Notifier[C, CH]) SendNotification(timestamp time.Time, context C, child CH) {
	n.mux.Lock()
	notifications := make([]NotificationHandler[C, CH], len(n.notifications))
	copy(notifications, n.notifications)
	n.mux.Unlock()

	for _, handler := range notifications {
		handler(timestamp, context, child)
	}
}

// Bridge forwards both phases into a parent-level notifier of the same
// shape, so a veto registered anywhere up the chain blocks a leaf mutation
// and every committed mutation is observable at every ancestor level.
func (n *Notifier[C, CH]) Bridge(parent *Notifier[C, CH]) {
	if parent == nil {
		return
	}
	n.OnVoting(func(timestamp time.Time, context C, child CH, vote *Vote) {
		parentVote := parent.SendVoting(timestamp, context, child)
		if parentVote.IsVetoed() {
			for _, reason := range parentVote.Reasons() {
				vote.Veto(reason)
			}
			if len(parentVote.Reasons()) == 0 {
				vote.Veto("")
			}
		}
	})
	n.OnNotification(func(timestamp time.Time, context C, child CH) {
		parent.SendNotification(timestamp, context, child)
	})
}
