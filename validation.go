package groups

import (
	"fmt"

	vocab "github.com/go-ap/activitypub"
	"github.com/go-ap/errors"
	"github.com/go-ap/filters"
)

var ValidationError = errors.BadRequestf

var InvalidActivity = func(s string, p ...interface{}) error {
	return ValidationError(fmt.Sprintf("Activity is not valid: %s", s), p...)
}
var InvalidActivityActor = func(s string, p ...interface{}) error {
	return ValidationError(fmt.Sprintf("Actor is not valid: %s", s), p...)
}
var InvalidActivityObject = func(s string, p ...interface{}) error {
	return ValidationError(fmt.Sprintf("Object is not valid: %s", s), p...)
}
var InvalidTarget = func(s string, p ...interface{}) error {
	return ValidationError(fmt.Sprintf("Target is not valid: %s", s), p...)
}

// InboxActivityTypes is the closed set of verbs this package processes.
// Anything else is rejected at the dispatch boundary, not silently
// swallowed by a processor.
var InboxActivityTypes = vocab.ActivityVocabularyTypes{
	vocab.AcceptType,
	vocab.RejectType,
	vocab.AddType,
	vocab.RemoveType,
	vocab.UpdateType,
	vocab.DeleteType,
}

var targetRequiredTypes = vocab.ActivityVocabularyTypes{vocab.AddType, vocab.RemoveType}

var validInboxActivity = filters.All(
	filters.HasType(InboxActivityTypes...),
	filters.Not(filters.NilID),
)

// ValidateInboxActivity checks the structural envelope of an inbound
// activity before any processor runs. The processors themselves assume a
// syntactically valid envelope and only perform semantic
// authorization/resolution no-ops.
func (p *P) ValidateInboxActivity(a vocab.Item, author vocab.Actor) error {
	if vocab.IsNil(a) {
		return InvalidActivity("received nil")
	}
	authorIRI := author.GetLink()
	if len(authorIRI) == 0 || authorIRI.Equals(vocab.PublicNS, true) {
		return errors.Unauthorizedf("anonymous actor is not allowed to post to an inbox")
	}
	if !validInboxActivity.Match(a) {
		return InvalidActivity("type %s is not one of %v, or id is missing", a.GetType(), InboxActivityTypes)
	}
	return vocab.OnActivity(a, func(act *vocab.Activity) error {
		if vocab.IsNil(act.Object) {
			return InvalidActivityObject("is nil for %s activity", act.GetType())
		}
		if !vocab.IsNil(act.Actor) && !act.Actor.GetLink().Equals(authorIRI, false) {
			// The envelope names a different actor than the one the
			// signature was verified against.
			return InvalidActivityActor("%s does not match the authenticated actor %s", act.Actor.GetLink(), authorIRI)
		}
		if targetRequiredTypes.Match(act.GetType()) && vocab.IsNil(act.Target) {
			return InvalidTarget("is nil for %s activity", act.GetType())
		}
		return nil
	})
}
