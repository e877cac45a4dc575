package groups

import (
	"git.sr.ht/~mariusor/lw"
	vocab "github.com/go-ap/activitypub"
	"github.com/go-ap/errors"
)

// UpdateActivity overwrites the local copy of the sender's profile from the
// actor document in the activity's object.
//
// The resolved document's identity must equal the authenticated sender's: a
// sender may never update another actor's representation. On mismatch
// nothing changes, including the sender's own record - this is a strict
// reject, not a partial apply.
func (p *P) UpdateActivity(update *vocab.Activity, author vocab.Actor) (*vocab.Activity, error) {
	if vocab.IsNil(update) {
		return nil, InvalidActivity("nil Update activity")
	}

	ll := p.l.WithContext(lw.Ctx{"activity": update.GetLink(), "actor": author.GetLink()})
	ref, err := p.resolve(update.Object)
	if err != nil {
		ll.WithContext(lw.Ctx{"err": err.Error()}).Warnf("unable to resolve Update object")
		return update, nil
	}
	ar, ok := ref.(ActorRef)
	if !ok {
		ll.Warnf("Update object %s is not an actor document", update.Object.GetLink())
		return update, nil
	}
	if !p.authorized(author, ar.Actor.IRI) {
		ll.Warnf("actor may not update the profile of %s", ar.Actor.IRI)
		return update, nil
	}

	existing, err := p.s.LoadActor(author.GetLink())
	if err != nil || existing == nil {
		// First reference to this actor; store the document as-is.
		if _, err = p.s.SaveActor(ar.Actor); err != nil {
			return update, errors.Annotatef(err, "unable to save actor %s", ar.Actor.IRI)
		}
		return update, nil
	}

	existing.Name = ar.Actor.Name
	existing.Type = ar.Actor.Type
	if len(ar.Actor.Inbox) > 0 {
		existing.Inbox = ar.Actor.Inbox
	}
	if len(ar.Actor.Wall) > 0 {
		existing.Wall = ar.Actor.Wall
	}
	if len(ar.Actor.Members) > 0 {
		existing.Members = ar.Actor.Members
	}
	if _, err = p.s.SaveActor(existing); err != nil {
		return update, errors.Annotatef(err, "unable to save actor %s", existing.IRI)
	}
	return update, nil
}

// DeleteActivity removes the sender's own actor record, or a status the
// sending group owns.
//
// Deleting an actor cascades through its memberships and outstanding
// requests in the storage layer. Deleting anything that is not the sender
// itself or one of its wall statuses is a no-op.
func (p *P) DeleteActivity(del *vocab.Activity, author vocab.Actor) (*vocab.Activity, error) {
	if vocab.IsNil(del) {
		return nil, InvalidActivity("nil Delete activity")
	}
	if vocab.IsNil(del.Object) {
		return nil, InvalidActivityObject("unable to Delete nil object")
	}

	ll := p.l.WithContext(lw.Ctx{"activity": del.GetLink(), "actor": author.GetLink()})
	obj := del.Object.GetLink()
	if len(obj) == 0 {
		ll.Warnf("Delete object has no identity")
		return del, nil
	}

	if obj.Equals(author.GetLink(), false) {
		if err := p.s.DeleteActor(obj); err != nil && !errors.IsNotFound(err) {
			return del, errors.Annotatef(err, "unable to delete actor %s", obj)
		}
		return del, nil
	}

	if st, err := p.s.LoadStatus(obj); err == nil && st != nil {
		if !st.BelongsTo(author.GetLink()) {
			ll.Warnf("status %s does not belong to the actor's wall", st.IRI)
			return del, nil
		}
		if err = p.s.DeleteStatus(st.IRI); err != nil && !errors.IsNotFound(err) {
			return del, errors.Annotatef(err, "unable to delete status %s", st.IRI)
		}
		return del, nil
	}

	// A different actor, or something we never stored.
	ll.Warnf("actor may not delete %s", obj)
	return del, nil
}
