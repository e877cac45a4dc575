package groups

import (
	vocab "github.com/go-ap/activitypub"
)

// Store is the persistence port the processors mutate through.
//
// Uniqueness of the (account, group) pairs is the implementation's
// responsibility: saving an existing membership or request must fail with
// an error matching errors.IsConflict, and deleting a missing row with one
// matching errors.IsNotFound, so that re-delivered activities stay no-ops.
type Store interface {
	ActorStore
	MembershipStore
	RequestStore
	StatusStore
}

type ActorStore interface {
	// LoadActor returns the actor with the given IRI.
	LoadActor(vocab.IRI) (*Actor, error)
	// SaveActor creates or overwrites the record for the actor's IRI.
	SaveActor(*Actor) (*Actor, error)
	// DeleteActor removes the actor and cascades over its memberships,
	// membership requests, and the statuses on its wall.
	DeleteActor(vocab.IRI) error
}

type MembershipStore interface {
	LoadMembership(account, group vocab.IRI) (*Membership, error)
	SaveMembership(*Membership) (*Membership, error)
	DeleteMembership(account, group vocab.IRI) error
}

type RequestStore interface {
	LoadRequest(account, group vocab.IRI) (*MembershipRequest, error)
	// LoadRequestIRI looks a request up by the IRI of the Follow/Join
	// activity that created it.
	LoadRequestIRI(vocab.IRI) (*MembershipRequest, error)
	SaveRequest(*MembershipRequest) (*MembershipRequest, error)
	DeleteRequest(account, group vocab.IRI) error
}

type StatusStore interface {
	LoadStatus(vocab.IRI) (*Status, error)
	SaveStatus(*Status) (*Status, error)
	DeleteStatus(vocab.IRI) error
}
