package groups

import (
	"time"

	"git.sr.ht/~mariusor/lw"
	vocab "github.com/go-ap/activitypub"
	"github.com/go-ap/errors"
)

// AddActivity publishes a status to the group's wall or adds an account to
// its members collection, depending on the activity's target.
//
// Only self-addressed deliveries reach this processor, so the authenticated
// sender is the group whose collections are being mutated; the per-branch
// checks below make sure the object actually belongs to that group.
func (p *P) AddActivity(add *vocab.Activity, author vocab.Actor) (*vocab.Activity, error) {
	if vocab.IsNil(add) {
		return nil, InvalidActivity("nil Add activity")
	}
	if vocab.IsNil(add.Object) {
		return nil, InvalidActivityObject("unable to Add nil object")
	}
	if vocab.IsNil(add.Target) {
		return nil, InvalidTarget("is nil for %s activity", add.GetType())
	}

	ll := p.l.WithContext(lw.Ctx{"activity": add.GetLink(), "actor": author.GetLink(), "target": add.Target.GetLink()})
	group := p.group(author)
	if group == nil {
		ll.Warnf("Add actor is not a known group")
		return add, nil
	}
	switch classifyTarget(add.Target, group) {
	case wallCollection:
		return add, p.addToWall(add, group, ll)
	case membersCollection:
		return add, p.addToMembers(add, group, ll)
	}
	ll.Warnf("Add target matches neither the group's wall nor its members collection")
	return add, nil
}

// addToWall publishes the resolved status onto the group's wall.
//
// A post we do not already hold must resolve through its Create activity,
// embedded or by IRI, because only the Create carries the target property
// that makes the post an explicit group submission. A bare Note document
// has no way to express a target, so addressing the Note's own IRI always
// drops - senders reference the Create instead.
func (p *P) addToWall(add *vocab.Activity, group *Actor, ll lw.Logger) error {
	ref, err := p.resolve(add.Object)
	if err != nil {
		ll.WithContext(lw.Ctx{"err": err.Error()}).Warnf("unable to resolve Add object")
		return nil
	}
	sr, ok := ref.(StatusRef)
	if !ok {
		ll.Warnf("Add object %s is not a status", add.Object.GetLink())
		return nil
	}

	if sr.Local {
		st := sr.Status
		if !st.BelongsTo(group.IRI) {
			// An Add from one group can not approve another group's post.
			ll.Warnf("status %s does not belong to the group's wall", st.IRI)
			return nil
		}
		if st.Approval != ApprovalPending {
			return nil
		}
		st.Approval = ApprovalApproved
		if _, err = p.s.SaveStatus(st); err != nil {
			return errors.Annotatef(err, "unable to approve status %s", st.IRI)
		}
		return nil
	}

	// A post we have never seen. The fetched document must explicitly
	// carry the group's wall as its target, otherwise anyone could
	// cross-post into a group the author never addressed.
	if len(sr.Target) == 0 || !sr.Target.Equals(group.Wall, true) {
		ll.Warnf("remote status %s was not explicitly targeted at the group's wall", sr.Status.IRI)
		return nil
	}
	st := sr.Status
	st.Group = group.IRI
	st.Visibility = VisibilityGroup
	st.Approval = ApprovalApproved
	if st.Published.IsZero() {
		st.Published = time.Now().UTC()
	}
	if _, err = p.s.SaveStatus(st); err != nil && !errors.IsConflict(err) {
		return errors.Annotatef(err, "unable to save status %s to the group wall", st.IRI)
	}
	return nil
}

// addToMembers syncs a member onto the group outside the request/accept
// flow: a plain membership create keyed by account and group,
// duplicate-tolerant. A pending join request for the pair is consumed, so
// the account never holds both a membership and an outstanding request.
func (p *P) addToMembers(add *vocab.Activity, group *Actor, ll lw.Logger) error {
	ref, err := p.resolve(add.Object)
	if err != nil {
		ll.WithContext(lw.Ctx{"err": err.Error()}).Warnf("unable to resolve Add object")
		return nil
	}
	ar, ok := ref.(ActorRef)
	if !ok {
		ll.Warnf("Add object %s is not an account", add.Object.GetLink())
		return nil
	}
	if _, err = p.s.SaveActor(ar.Actor); err != nil {
		return errors.Annotatef(err, "unable to save account %s", ar.Actor.IRI)
	}
	member := Membership{
		Account: ar.Actor.IRI,
		Group:   group.IRI,
		Created: time.Now().UTC(),
	}
	if _, err = p.s.SaveMembership(&member); err != nil && !errors.IsConflict(err) {
		return errors.Annotatef(err, "unable to save membership for %s in %s", member.Account, member.Group)
	}
	if err = p.s.DeleteRequest(member.Account, member.Group); err != nil && !errors.IsNotFound(err) {
		return errors.Annotatef(err, "unable to remove join request of %s for %s", member.Account, member.Group)
	}
	return nil
}

// RemoveActivity is the mirror of Add: it takes a status off the group's
// wall or an account out of its members collection.
func (p *P) RemoveActivity(remove *vocab.Activity, author vocab.Actor) (*vocab.Activity, error) {
	if vocab.IsNil(remove) {
		return nil, InvalidActivity("nil Remove activity")
	}
	if vocab.IsNil(remove.Object) {
		return nil, InvalidActivityObject("unable to Remove nil object")
	}
	if vocab.IsNil(remove.Target) {
		return nil, InvalidTarget("is nil for %s activity", remove.GetType())
	}

	ll := p.l.WithContext(lw.Ctx{"activity": remove.GetLink(), "actor": author.GetLink(), "target": remove.Target.GetLink()})
	group := p.group(author)
	if group == nil {
		ll.Warnf("Remove actor is not a known group")
		return remove, nil
	}
	switch classifyTarget(remove.Target, group) {
	case wallCollection:
		return remove, p.removeFromWall(remove, group, ll)
	case membersCollection:
		return remove, p.removeFromMembers(remove, group, ll)
	}
	ll.Warnf("Remove target matches neither the group's wall nor its members collection")
	return remove, nil
}

func (p *P) removeFromWall(remove *vocab.Activity, group *Actor, ll lw.Logger) error {
	st, err := p.s.LoadStatus(remove.Object.GetLink())
	if err != nil || st == nil {
		// Already gone, or never ours.
		return nil
	}
	if !st.BelongsTo(group.IRI) {
		ll.Warnf("status %s does not belong to the group's wall", st.IRI)
		return nil
	}
	if err = p.s.DeleteStatus(st.IRI); err != nil && !errors.IsNotFound(err) {
		return errors.Annotatef(err, "unable to remove status %s from the group wall", st.IRI)
	}
	return nil
}

func (p *P) removeFromMembers(remove *vocab.Activity, group *Actor, ll lw.Logger) error {
	// Removal only needs the account's identity, no dereferencing.
	account := remove.Object.GetLink()
	if len(account) == 0 {
		ll.Warnf("Remove object has no identity")
		return nil
	}
	if err := p.s.DeleteMembership(account, group.IRI); err != nil && !errors.IsNotFound(err) {
		return errors.Annotatef(err, "unable to remove membership of %s in %s", account, group.IRI)
	}
	return nil
}
