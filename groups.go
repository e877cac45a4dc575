// Package groups implements the inbound side of group federation: the
// processing of Accept, Reject, Add, Remove, Update and Delete activities
// delivered to a group actor's inbox.
//
// The package assumes the transport layer has already verified the HTTP
// signature of the delivery against the claimed sender; processors receive
// that sender as an authenticated vocab.Actor and only decide whether it is
// allowed to perform the state change the activity describes. Semantic
// failures - unauthorized senders, unresolvable references, inconsistent
// state - are uniform silent no-ops, per ActivityPub convention.
package groups

import (
	"context"
	"time"

	"git.sr.ht/~mariusor/lw"
	vocab "github.com/go-ap/activitypub"
	client "github.com/go-ap/client"
	"github.com/go-ap/errors"
)

// Client is the surface of the ActivityPub client used for dereferencing
// remote objects. It is satisfied by client.Basic.
type Client interface {
	LoadIRI(vocab.IRI) (vocab.Item, error)
	CtxLoadIRI(context.Context, vocab.IRI) (vocab.Item, error)
}

type P struct {
	baseIRI         vocab.IRIs
	c               Client
	s               Store
	l               lw.Logger
	localIRICheckFn func(vocab.IRI) bool
	fetchTimeout    time.Duration
}

const defaultFetchTimeout = 30 * time.Second

func defaultLocalIRICheck(_ vocab.IRI) bool { return false }

type OptionFn func(p *P)

func New(o ...OptionFn) *P {
	p := &P{
		localIRICheckFn: defaultLocalIRICheck,
		fetchTimeout:    defaultFetchTimeout,
	}
	for _, fn := range o {
		fn(p)
	}
	if p.l == nil {
		p.l = lw.Dev()
	}
	if p.c == nil {
		p.c = client.New(client.WithLogger(p.l))
	}
	return p
}

func WithLogger(l lw.Logger) OptionFn {
	return func(p *P) {
		p.l = l
	}
}

func WithStorage(s Store) OptionFn {
	return func(p *P) {
		p.s = s
	}
}

func WithClient(c client.Basic) OptionFn {
	return func(p *P) {
		p.c = c
	}
}

func WithBaseIRI(i ...vocab.IRI) OptionFn {
	return func(p *P) {
		p.baseIRI = i
	}
}

func WithLocalIRIChecker(fn func(vocab.IRI) bool) OptionFn {
	return func(p *P) {
		p.localIRICheckFn = fn
	}
}

// WithFetchTimeout bounds the single remote dereference a processor can
// make, so a hung adversarial server can not stall a processing slot.
func WithFetchTimeout(d time.Duration) OptionFn {
	return func(p *P) {
		p.fetchTimeout = d
	}
}

// IsLocalIRI shows if the received IRI belongs to the current instance.
func (p P) IsLocalIRI(i vocab.IRI) bool {
	for _, base := range p.baseIRI {
		if i.Contains(base, false) {
			return true
		}
	}
	return p.localIRICheckFn(i)
}

// ProcessInboxActivity applies the side effects of an activity received in
// a group actor's inbox. The author is the sender whose HTTP signature the
// delivery layer has already verified.
//
// Structural problems with the envelope surface as errors; semantic
// rejections do not - the activity is returned unchanged and no local
// state is mutated.
func (p *P) ProcessInboxActivity(it vocab.Item, author vocab.Actor) (vocab.Item, error) {
	if vocab.IsNil(it) {
		return nil, InvalidActivity("received nil")
	}
	if err := p.ValidateInboxActivity(it, author); err != nil {
		return it, err
	}
	err := vocab.OnActivity(it, func(act *vocab.Activity) error {
		var err error
		switch act.GetType() {
		case vocab.AcceptType:
			_, err = p.AcceptActivity(act, author)
		case vocab.RejectType:
			_, err = p.RejectActivity(act, author)
		case vocab.AddType:
			_, err = p.AddActivity(act, author)
		case vocab.RemoveType:
			_, err = p.RemoveActivity(act, author)
		case vocab.UpdateType:
			_, err = p.UpdateActivity(act, author)
		case vocab.DeleteType:
			_, err = p.DeleteActivity(act, author)
		default:
			err = errors.NotImplementedf("processing %s activities is not supported", act.GetType())
		}
		return err
	})
	return it, err
}

// group returns the local record for the authenticated sender when it is a
// group, materializing one from the actor document on first reference.
func (p *P) group(author vocab.Actor) *Actor {
	if act, err := p.s.LoadActor(author.GetLink()); err == nil && act != nil {
		if !act.IsGroup() {
			return nil
		}
		return act
	}
	act, err := ActorFromItem(&author)
	if err != nil || !act.IsGroup() {
		return nil
	}
	return act
}
