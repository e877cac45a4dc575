package groups

import (
	"time"

	"git.sr.ht/~mariusor/lw"
	vocab "github.com/go-ap/activitypub"
	"github.com/go-ap/errors"
)

// AcceptActivity approves a pending join request.
//
// The object resolves to the Follow/Join activity the request was created
// from, embedded or by IRI. Only the group named by that request may accept
// it, and only if the request is still outstanding - an Accept can not
// fabricate a membership out of thin air, and re-accepting an already
// consumed request is a safe no-op.
func (p *P) AcceptActivity(accept *vocab.Activity, author vocab.Actor) (*vocab.Activity, error) {
	if vocab.IsNil(accept) {
		return nil, InvalidActivity("nil Accept activity")
	}

	ll := p.l.WithContext(lw.Ctx{"activity": accept.GetLink(), "actor": author.GetLink()})
	ref, err := p.resolve(accept.Object)
	if err != nil {
		ll.WithContext(lw.Ctx{"err": err.Error()}).Warnf("unable to resolve Accept object")
		return accept, nil
	}
	rr, ok := ref.(RequestRef)
	if !ok {
		ll.Warnf("Accept object %s is not a join request", accept.Object.GetLink())
		return accept, nil
	}
	if !p.authorized(author, rr.Request.Group) {
		ll.Warnf("actor is not the group of join request %s", rr.Request.IRI)
		return accept, nil
	}

	stored, err := p.s.LoadRequest(rr.Request.Account, rr.Request.Group)
	if err != nil || stored == nil {
		// Already accepted or rejected.
		return accept, nil
	}
	member := Membership{
		Account: stored.Account,
		Group:   stored.Group,
		Created: time.Now().UTC(),
	}
	if _, err = p.s.SaveMembership(&member); err != nil && !errors.IsConflict(err) {
		return accept, errors.Annotatef(err, "unable to save membership for %s in %s", member.Account, member.Group)
	}
	if err = p.s.DeleteRequest(stored.Account, stored.Group); err != nil && !errors.IsNotFound(err) {
		return accept, errors.Annotatef(err, "unable to remove join request %s", stored.IRI)
	}
	return accept, nil
}

// RejectActivity denies either a pending join request or a pending group
// status, depending on what the object resolves to.
//
// A rejected join request is destroyed without creating a membership. A
// rejected status stays in storage with its approval state flipped to
// rejected, and only its own group may do that.
func (p *P) RejectActivity(reject *vocab.Activity, author vocab.Actor) (*vocab.Activity, error) {
	if vocab.IsNil(reject) {
		return nil, InvalidActivity("nil Reject activity")
	}

	ll := p.l.WithContext(lw.Ctx{"activity": reject.GetLink(), "actor": author.GetLink()})
	ref, err := p.resolve(reject.Object)
	if err != nil {
		ll.WithContext(lw.Ctx{"err": err.Error()}).Warnf("unable to resolve Reject object")
		return reject, nil
	}

	switch ref := ref.(type) {
	case RequestRef:
		if !p.authorized(author, ref.Request.Group) {
			ll.Warnf("actor is not the group of join request %s", ref.Request.IRI)
			return reject, nil
		}
		if err = p.s.DeleteRequest(ref.Request.Account, ref.Request.Group); err != nil && !errors.IsNotFound(err) {
			return reject, errors.Annotatef(err, "unable to remove join request %s", ref.Request.IRI)
		}
	case StatusRef:
		st, err := p.s.LoadStatus(ref.Status.IRI)
		if err != nil || st == nil {
			// Nothing local to reject.
			return reject, nil
		}
		if !st.BelongsTo(author.GetLink()) {
			ll.Warnf("status %s does not belong to the actor's wall", st.IRI)
			return reject, nil
		}
		if st.Approval == ApprovalRejected {
			return reject, nil
		}
		st.Approval = ApprovalRejected
		if _, err = p.s.SaveStatus(st); err != nil {
			return reject, errors.Annotatef(err, "unable to save rejected status %s", st.IRI)
		}
	default:
		ll.Warnf("Reject object %s is neither a join request nor a status", reject.Object.GetLink())
	}
	return reject, nil
}
