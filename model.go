package groups

import (
	"time"

	vocab "github.com/go-ap/activitypub"
	"github.com/go-ap/errors"
)

// Actor is the local representation of a federated identity.
//
// For Group type actors the Wall IRI points at the collection holding the
// group's posts, and Members at the collection holding its approved
// accounts. When materializing a remote Group document these map to the
// actor's outbox, respectively followers, collections.
type Actor struct {
	IRI     vocab.IRI
	Type    vocab.ActivityVocabularyType
	Name    string
	Domain  string
	Inbox   vocab.IRI
	Wall    vocab.IRI
	Members vocab.IRI
}

func (a *Actor) IsGroup() bool {
	return a != nil && a.Type == vocab.GroupType
}

// Membership is an approved (account, group) relation.
// The storage layer guarantees at most one row per pair.
type Membership struct {
	Account vocab.IRI
	Group   vocab.IRI
	Created time.Time
}

// MembershipRequest is a pending (account, group) join request,
// identified by the IRI of the Follow/Join activity that created it.
type MembershipRequest struct {
	IRI     vocab.IRI
	Account vocab.IRI
	Group   vocab.IRI
}

// Approval is the moderation state of a status on a group wall.
type Approval uint8

const (
	ApprovalNone Approval = iota
	ApprovalPending
	ApprovalApproved
	ApprovalRejected
)

func (a Approval) String() string {
	switch a {
	case ApprovalPending:
		return "pending"
	case ApprovalApproved:
		return "approved"
	case ApprovalRejected:
		return "rejected"
	}
	return "none"
}

type Visibility uint8

const (
	VisibilityPublic Visibility = iota
	VisibilityUnlisted
	VisibilityPrivate
	VisibilityGroup
)

func (v Visibility) String() string {
	switch v {
	case VisibilityUnlisted:
		return "unlisted"
	case VisibilityPrivate:
		return "private"
	case VisibilityGroup:
		return "group"
	}
	return "public"
}

// Status is a piece of content attributed to an account, optionally
// associated with a group wall.
type Status struct {
	IRI          vocab.IRI
	AttributedTo vocab.IRI
	Group        vocab.IRI
	Approval     Approval
	Visibility   Visibility
	Content      string
	Published    time.Time
}

func (s *Status) BelongsTo(group vocab.IRI) bool {
	return s != nil && len(s.Group) > 0 && s.Group.Equals(group, false)
}

func displayName(a *vocab.Actor) string {
	if a == nil {
		return ""
	}
	if len(a.Name) > 0 {
		return a.Name.First().String()
	}
	if len(a.PreferredUsername) > 0 {
		return a.PreferredUsername.First().String()
	}
	return ""
}

func domainOf(iri vocab.IRI) string {
	u, err := iri.URL()
	if err != nil {
		return ""
	}
	return u.Host
}

// ActorFromItem materializes a local Actor record from an ActivityStreams
// document, usually one embedded in an activity or freshly dereferenced.
func ActorFromItem(it vocab.Item) (*Actor, error) {
	if vocab.IsNil(it) {
		return nil, errors.NotValidf("unable to materialize actor from nil item")
	}
	if !vocab.ActorTypes.Match(it.GetType()) {
		return nil, errors.NotValidf("invalid type %s for actor document", it.GetType())
	}
	a := Actor{}
	err := vocab.OnActor(it, func(act *vocab.Actor) error {
		if len(act.ID) == 0 {
			return errors.NotValidf("actor document is missing its id")
		}
		a.IRI = act.ID
		// The vocab Type property can hold multiple values; a local actor
		// record keeps the single concrete one.
		if t, ok := act.Type.(vocab.ActivityVocabularyType); ok {
			a.Type = t
		}
		a.Name = displayName(act)
		a.Domain = domainOf(act.ID)
		if !vocab.IsNil(act.Inbox) {
			a.Inbox = act.Inbox.GetLink()
		}
		if !vocab.IsNil(act.Outbox) {
			a.Wall = act.Outbox.GetLink()
		}
		if !vocab.IsNil(act.Followers) {
			a.Members = act.Followers.GetLink()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// StatusFromItem materializes a Status from an ActivityStreams object.
// The group association and approval state are left for the caller,
// as they depend on the activity the object arrived in.
func StatusFromItem(it vocab.Item) (*Status, error) {
	if vocab.IsNil(it) {
		return nil, errors.NotValidf("unable to materialize status from nil item")
	}
	if !vocab.ObjectTypes.Match(it.GetType()) {
		return nil, errors.NotValidf("invalid type %s for status document", it.GetType())
	}
	s := Status{}
	err := vocab.OnObject(it, func(o *vocab.Object) error {
		if len(o.ID) == 0 {
			return errors.NotValidf("status document is missing its id")
		}
		s.IRI = o.ID
		if !vocab.IsNil(o.AttributedTo) {
			s.AttributedTo = o.AttributedTo.GetLink()
		}
		if len(o.Content) > 0 {
			s.Content = o.Content.First().String()
		}
		s.Published = o.Published
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// requestFromActivity maps a Follow/Join shaped activity onto the join
// request it represents: the activity's actor asks to become a member of
// the group in its object.
func requestFromActivity(act *vocab.Activity) (*MembershipRequest, error) {
	if vocab.IsNil(act.Actor) {
		return nil, errors.NotValidf("join request %s is missing its actor", act.ID)
	}
	if vocab.IsNil(act.Object) {
		return nil, errors.NotValidf("join request %s is missing its object", act.ID)
	}
	return &MembershipRequest{
		IRI:     act.ID,
		Account: act.Actor.GetLink(),
		Group:   act.Object.GetLink(),
	}, nil
}
