package groups

import (
	vocab "github.com/go-ap/activitypub"
)

// collectionKind is what an Add/Remove activity's target resolves to for a
// given group.
type collectionKind uint8

const (
	unknownCollection collectionKind = iota
	wallCollection
	membersCollection
)

func (k collectionKind) String() string {
	switch k {
	case wallCollection:
		return "wall"
	case membersCollection:
		return "members"
	}
	return "unknown"
}

// classifyTarget matches the activity's raw target against the group's
// known collection URLs. Exact comparison only; anything else is unknown
// and the caller must no-op rather than guess.
func classifyTarget(target vocab.Item, group *Actor) collectionKind {
	if vocab.IsNil(target) || group == nil {
		return unknownCollection
	}
	iri := target.GetLink()
	if len(iri) == 0 {
		return unknownCollection
	}
	if len(group.Wall) > 0 && iri.Equals(group.Wall, true) {
		return wallCollection
	}
	if len(group.Members) > 0 && iri.Equals(group.Members, true) {
		return membersCollection
	}
	return unknownCollection
}
