package groups

import (
	"io"
	"net/http"

	vocab "github.com/go-ap/activitypub"
	"github.com/go-ap/errors"
	json "github.com/go-ap/jsonld"
)

// AuthorizeFn authenticates the sender of an inbox delivery, usually by
// verifying its HTTP signature against the actor's published key. It is
// provided by the transport layer; this package performs no signature
// verification of its own.
type AuthorizeFn func(r *http.Request) (vocab.Actor, error)

const maxActivitySize = 1 << 20

// HandleInbox returns the POST handler for a group actor's inbox. The body
// is parsed into an ActivityStreams item and run through
// ProcessInboxActivity under the authenticated sender's identity.
//
// Per ActivityPub convention semantic rejections are indistinguishable from
// success on the wire: the activity is accepted either way.
func (p *P) HandleInbox(authorize AuthorizeFn) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			errors.HandleError(errors.MethodNotAllowedf("invalid HTTP method %s", r.Method)).ServeHTTP(w, r)
			return
		}
		author, err := authorize(r)
		if err != nil {
			errors.HandleError(errors.Unauthorizedf("unable to verify the request signature: %s", err)).ServeHTTP(w, r)
			return
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, maxActivitySize))
		if err != nil {
			errors.HandleError(errors.BadRequestf("unable to read request body: %s", err)).ServeHTTP(w, r)
			return
		}
		it, err := vocab.UnmarshalJSON(body)
		if err != nil {
			errors.HandleError(errors.BadRequestf("unable to parse activity: %s", err)).ServeHTTP(w, r)
			return
		}
		if it, err = p.ProcessInboxActivity(it, author); err != nil {
			errors.HandleError(err).ServeHTTP(w, r)
			return
		}
		w.Header().Set("Content-Type", json.ContentType)
		if len(it.GetLink()) > 0 {
			w.Header().Set("Location", it.GetLink().String())
		}
		w.WriteHeader(http.StatusAccepted)
		dat, _ := vocab.MarshalJSON(it)
		_, _ = w.Write(dat)
	}
}
