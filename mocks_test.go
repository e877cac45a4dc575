package groups

import (
	"context"
	"sync"
	"testing"
	"time"

	"git.sr.ht/~mariusor/lw"
	vocab "github.com/go-ap/activitypub"
	"github.com/go-ap/errors"
)

type mockStore struct {
	actors      *sync.Map
	memberships *sync.Map
	requests    *sync.Map
	statuses    *sync.Map
}

func newMockStore() *mockStore {
	return &mockStore{
		actors:      &sync.Map{},
		memberships: &sync.Map{},
		requests:    &sync.Map{},
		statuses:    &sync.Map{},
	}
}

func pairKey(account, group vocab.IRI) string {
	return group.String() + "#" + account.String()
}

func (m *mockStore) LoadActor(iri vocab.IRI) (*Actor, error) {
	blob, ok := m.actors.Load(iri.String())
	if !ok {
		return nil, errors.NotFoundf("%s not found in mock storage", iri)
	}
	a := blob.(Actor)
	return &a, nil
}

func (m *mockStore) SaveActor(a *Actor) (*Actor, error) {
	if a == nil || len(a.IRI) == 0 {
		return nil, errors.Newf("unable to save actor without an IRI")
	}
	m.actors.Store(a.IRI.String(), *a)
	return a, nil
}

func (m *mockStore) DeleteActor(iri vocab.IRI) error {
	if _, ok := m.actors.LoadAndDelete(iri.String()); !ok {
		return errors.NotFoundf("%s not found in mock storage", iri)
	}
	drop := func(mm *sync.Map, match func(interface{}) bool) {
		mm.Range(func(k, v interface{}) bool {
			if match(v) {
				mm.Delete(k)
			}
			return true
		})
	}
	drop(m.memberships, func(v interface{}) bool {
		mb := v.(Membership)
		return mb.Account.Equals(iri, false) || mb.Group.Equals(iri, false)
	})
	drop(m.requests, func(v interface{}) bool {
		rq := v.(MembershipRequest)
		return rq.Account.Equals(iri, false) || rq.Group.Equals(iri, false)
	})
	drop(m.statuses, func(v interface{}) bool {
		st := v.(Status)
		return st.Group.Equals(iri, false) || st.AttributedTo.Equals(iri, false)
	})
	return nil
}

func (m *mockStore) LoadMembership(account, group vocab.IRI) (*Membership, error) {
	blob, ok := m.memberships.Load(pairKey(account, group))
	if !ok {
		return nil, errors.NotFoundf("no membership for %s in %s", account, group)
	}
	mb := blob.(Membership)
	return &mb, nil
}

func (m *mockStore) SaveMembership(mb *Membership) (*Membership, error) {
	if mb == nil {
		return nil, errors.Newf("unable to save nil membership")
	}
	if _, loaded := m.memberships.LoadOrStore(pairKey(mb.Account, mb.Group), *mb); loaded {
		return nil, errors.Conflictf("duplicate membership for %s in %s", mb.Account, mb.Group)
	}
	return mb, nil
}

func (m *mockStore) DeleteMembership(account, group vocab.IRI) error {
	if _, ok := m.memberships.LoadAndDelete(pairKey(account, group)); !ok {
		return errors.NotFoundf("no membership for %s in %s", account, group)
	}
	return nil
}

func (m *mockStore) LoadRequest(account, group vocab.IRI) (*MembershipRequest, error) {
	blob, ok := m.requests.Load(pairKey(account, group))
	if !ok {
		return nil, errors.NotFoundf("no request for %s in %s", account, group)
	}
	rq := blob.(MembershipRequest)
	return &rq, nil
}

func (m *mockStore) LoadRequestIRI(iri vocab.IRI) (*MembershipRequest, error) {
	var found *MembershipRequest
	m.requests.Range(func(_, v interface{}) bool {
		rq := v.(MembershipRequest)
		if rq.IRI.Equals(iri, false) {
			found = &rq
			return false
		}
		return true
	})
	if found == nil {
		return nil, errors.NotFoundf("no request with id %s", iri)
	}
	return found, nil
}

func (m *mockStore) SaveRequest(rq *MembershipRequest) (*MembershipRequest, error) {
	if rq == nil {
		return nil, errors.Newf("unable to save nil request")
	}
	if _, loaded := m.requests.LoadOrStore(pairKey(rq.Account, rq.Group), *rq); loaded {
		return nil, errors.Conflictf("duplicate request for %s in %s", rq.Account, rq.Group)
	}
	return rq, nil
}

func (m *mockStore) DeleteRequest(account, group vocab.IRI) error {
	if _, ok := m.requests.LoadAndDelete(pairKey(account, group)); !ok {
		return errors.NotFoundf("no request for %s in %s", account, group)
	}
	return nil
}

func (m *mockStore) LoadStatus(iri vocab.IRI) (*Status, error) {
	blob, ok := m.statuses.Load(iri.String())
	if !ok {
		return nil, errors.NotFoundf("%s not found in mock storage", iri)
	}
	st := blob.(Status)
	return &st, nil
}

func (m *mockStore) SaveStatus(st *Status) (*Status, error) {
	if st == nil || len(st.IRI) == 0 {
		return nil, errors.Newf("unable to save status without an IRI")
	}
	m.statuses.Store(st.IRI.String(), *st)
	return st, nil
}

func (m *mockStore) DeleteStatus(iri vocab.IRI) error {
	if _, ok := m.statuses.LoadAndDelete(iri.String()); !ok {
		return errors.NotFoundf("%s not found in mock storage", iri)
	}
	return nil
}

var _ Store = &mockStore{}

// mockClient serves canned documents keyed by IRI, standing in for remote
// instances during dereferencing.
type mockClient struct {
	items map[vocab.IRI]vocab.Item
}

func (m mockClient) LoadIRI(iri vocab.IRI) (vocab.Item, error) {
	if it, ok := m.items[iri]; ok {
		return it, nil
	}
	return nil, errors.NotFoundf("%s not found on mock remote", iri)
}

func (m mockClient) CtxLoadIRI(_ context.Context, iri vocab.IRI) (vocab.Item, error) {
	return m.LoadIRI(iri)
}

var _ Client = mockClient{}

func mockProcessor(t *testing.T, s Store, remote map[vocab.IRI]vocab.Item) *P {
	l := lw.Dev(lw.SetOutput(t.Output()))
	return &P{
		baseIRI:         vocab.IRIs{"https://group.example.local"},
		c:               mockClient{items: remote},
		s:               s,
		l:               l,
		localIRICheckFn: defaultLocalIRICheck,
		fetchTimeout:    time.Second,
	}
}

var (
	testGroup = Actor{
		IRI:     "https://group.example.local/groups/hiking",
		Type:    vocab.GroupType,
		Name:    "hiking",
		Domain:  "group.example.local",
		Inbox:   "https://group.example.local/groups/hiking/inbox",
		Wall:    "https://group.example.local/groups/hiking/outbox",
		Members: "https://group.example.local/groups/hiking/followers",
	}
	testOtherGroup = Actor{
		IRI:     "https://other.example.com/groups/cycling",
		Type:    vocab.GroupType,
		Name:    "cycling",
		Domain:  "other.example.com",
		Inbox:   "https://other.example.com/groups/cycling/inbox",
		Wall:    "https://other.example.com/groups/cycling/outbox",
		Members: "https://other.example.com/groups/cycling/followers",
	}
	testAccount = Actor{
		IRI:    "https://remote.example.com/users/jdoe",
		Type:   vocab.PersonType,
		Name:   "jdoe",
		Domain: "remote.example.com",
		Inbox:  "https://remote.example.com/users/jdoe/inbox",
	}
)

func groupAsActor(a Actor) vocab.Actor {
	return vocab.Actor{
		ID:        a.IRI,
		Type:      a.Type,
		Inbox:     a.Inbox,
		Outbox:    a.Wall,
		Followers: a.Members,
	}
}
