package groups

import (
	vocab "github.com/go-ap/activitypub"
)

// authorized reports whether the authenticated sender is the actor that
// owns the object being mutated. It is the first gating check in every
// processor and never errors: a mismatch makes the whole activity a no-op.
func (p *P) authorized(author vocab.Actor, owner vocab.IRI) bool {
	if len(owner) == 0 {
		return false
	}
	sender := author.GetLink()
	if len(sender) == 0 || sender.Equals(vocab.PublicNS, true) {
		return false
	}
	return sender.Equals(owner, false)
}
