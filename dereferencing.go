package groups

import (
	"context"

	"git.sr.ht/~mariusor/lw"
	vocab "github.com/go-ap/activitypub"
	"github.com/go-ap/errors"
)

// Ref is the resolved form of an activity's object property. Processors
// switch exhaustively over the concrete variants instead of duck-typing on
// attribute presence.
type Ref interface {
	isRef()
}

// RequestRef is a resolved join request, parsed from a Follow/Join shaped
// activity. Processors must still match it against a stored
// MembershipRequest before acting on it.
type RequestRef struct {
	Request *MembershipRequest
}

// ActorRef is a resolved actor document.
type ActorRef struct {
	Actor *Actor
}

// StatusRef is a resolved status. Local reports whether it came out of
// storage; Target carries the explicit wall IRI of the fetched Create
// wrapper, when there was one.
type StatusRef struct {
	Status *Status
	Target vocab.IRI
	Local  bool
}

func (RequestRef) isRef() {}
func (ActorRef) isRef()   {}
func (StatusRef) isRef()  {}

var joinRequestTypes = vocab.ActivityVocabularyTypes{vocab.FollowType, vocab.JoinType}

// resolve materializes the value of an object property, which is either an
// embedded ActivityStreams document or a bare IRI to dereference.
//
// IRIs are looked up in local storage first; only misses on non-local IRIs
// go over the wire. A nil Ref with an error means the reference could not
// be resolved - callers treat that as "drop the activity effect", never as
// something to surface back to the remote sender.
func (p *P) resolve(it vocab.Item) (Ref, error) {
	if vocab.IsNil(it) {
		return nil, InvalidActivityObject("is nil")
	}
	if vocab.IsIRI(it) {
		iri := it.GetLink()
		if ref := p.resolveLocal(iri); ref != nil {
			return ref, nil
		}
		if p.IsLocalIRI(iri) {
			// A local IRI we have no record of; fetching it from
			// ourselves would be pointless.
			return nil, errors.NotFoundf("no local record for %s", iri)
		}
		full, err := p.dereferenceIRI(iri)
		if err != nil {
			return nil, err
		}
		return p.resolveEmbedded(full)
	}
	return p.resolveEmbedded(it)
}

func (p *P) resolveLocal(iri vocab.IRI) Ref {
	if a, err := p.s.LoadActor(iri); err == nil && a != nil {
		return ActorRef{Actor: a}
	}
	if st, err := p.s.LoadStatus(iri); err == nil && st != nil {
		return StatusRef{Status: st, Local: true}
	}
	if rq, err := p.s.LoadRequestIRI(iri); err == nil && rq != nil {
		return RequestRef{Request: rq}
	}
	return nil
}

func (p *P) resolveEmbedded(it vocab.Item) (Ref, error) {
	typ := it.GetType()
	switch {
	case joinRequestTypes.Match(typ):
		var ref Ref
		err := vocab.OnActivity(it, func(act *vocab.Activity) error {
			rq, err := requestFromActivity(act)
			if err != nil {
				return err
			}
			ref = RequestRef{Request: rq}
			return nil
		})
		return ref, err
	case vocab.CreateType.Match(typ):
		// A status wrapped in its Create activity. The wrapper's target
		// is what makes a fetched document an explicit group post.
		var ref Ref
		err := vocab.OnActivity(it, func(act *vocab.Activity) error {
			st, err := StatusFromItem(act.Object)
			if err != nil {
				return err
			}
			sr := StatusRef{Status: st}
			if !vocab.IsNil(act.Target) {
				sr.Target = act.Target.GetLink()
			}
			if local, lerr := p.s.LoadStatus(st.IRI); lerr == nil && local != nil {
				sr.Status = local
				sr.Local = true
			}
			ref = sr
			return nil
		})
		return ref, err
	case vocab.ActorTypes.Match(typ):
		a, err := ActorFromItem(it)
		if err != nil {
			return nil, err
		}
		return ActorRef{Actor: a}, nil
	case vocab.ObjectTypes.Match(typ):
		// An embedded copy of a status we may already hold.
		if local, err := p.s.LoadStatus(it.GetLink()); err == nil && local != nil {
			return StatusRef{Status: local, Local: true}, nil
		}
		st, err := StatusFromItem(it)
		if err != nil {
			return nil, err
		}
		return StatusRef{Status: st}, nil
	}
	return nil, errors.NotValidf("unable to resolve object of type %s", typ)
}

// dereferenceIRI fetches a remote document, bounded by the configured
// timeout. The response must carry the id we asked for - a document
// claiming a different identity is discarded.
func (p *P) dereferenceIRI(iri vocab.IRI) (vocab.Item, error) {
	if p.c == nil {
		return nil, errors.NotImplementedf("no client configured for dereferencing %s", iri)
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.fetchTimeout)
	defer cancel()

	it, err := p.c.CtxLoadIRI(ctx, iri)
	if err != nil {
		p.l.WithContext(lw.Ctx{"iri": iri, "err": err.Error()}).Warnf("unable to fetch remote IRI")
		return nil, errors.Annotatef(err, "unable to fetch remote IRI %s", iri)
	}
	if vocab.IsNil(it) {
		return nil, errors.NotFoundf("remote document %s is empty", iri)
	}
	if !it.GetLink().Equals(iri, false) {
		return nil, errors.NotValidf("remote document id %s does not match the dereferenced IRI %s", it.GetLink(), iri)
	}
	return it, nil
}
