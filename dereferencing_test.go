package groups

import (
	"testing"

	vocab "github.com/go-ap/activitypub"
	"github.com/google/go-cmp/cmp"
)

func TestP_Resolve_EmbeddedAndFetchedAgree(t *testing.T) {
	followIRI := vocab.IRI("https://remote.example.com/users/jdoe/follows/5")
	doc := follow(followIRI, testAccount, testGroup)

	s := newMockStore()
	p := mockProcessor(t, s, map[vocab.IRI]vocab.Item{followIRI: doc})

	embedded, err := p.resolve(doc)
	if err != nil {
		t.Fatalf("resolve() embedded: %v", err)
	}
	fetched, err := p.resolve(followIRI)
	if err != nil {
		t.Fatalf("resolve() fetched: %v", err)
	}

	er, ok := embedded.(RequestRef)
	if !ok {
		t.Fatalf("resolve() embedded ref = %T, want %T", embedded, RequestRef{})
	}
	fr, ok := fetched.(RequestRef)
	if !ok {
		t.Fatalf("resolve() fetched ref = %T, want %T", fetched, RequestRef{})
	}
	if diff := cmp.Diff(er.Request, fr.Request); diff != "" {
		t.Errorf("resolve() embedded and fetched requests differ (-embedded +fetched):\n%s", diff)
	}
}

func TestP_Resolve_IdentityMismatch(t *testing.T) {
	askedFor := vocab.IRI("https://remote.example.com/users/jdoe/follows/6")
	impostor := follow("https://remote.example.com/users/jdoe/follows/666", testAccount, testGroup)

	p := mockProcessor(t, newMockStore(), map[vocab.IRI]vocab.Item{askedFor: impostor})
	if _, err := p.resolve(askedFor); err == nil {
		t.Errorf("resolve() accepted a document claiming a different id")
	}
}

func TestP_Resolve_LocalMissSkipsFetch(t *testing.T) {
	// The IRI is under our own base; a storage miss must fail without
	// going over the wire.
	local := vocab.IRI("https://group.example.local/groups/hiking/statuses/404")
	p := mockProcessor(t, newMockStore(), nil)
	if _, err := p.resolve(local); err == nil {
		t.Errorf("resolve() expected an error for an unknown local IRI")
	}
}

func TestP_Resolve_PrefersLocalRecord(t *testing.T) {
	statusIRI := vocab.IRI("https://remote.example.com/users/jdoe/statuses/20")
	s := newMockStore()
	seed := Status{IRI: statusIRI, AttributedTo: testAccount.IRI, Group: testGroup.IRI, Approval: ApprovalPending}
	if _, err := s.SaveStatus(&seed); err != nil {
		t.Fatalf("unable to seed status: %v", err)
	}
	// The remote serves a conflicting copy; the local record must win.
	remote := map[vocab.IRI]vocab.Item{statusIRI: note(statusIRI, testAccount, "remote copy")}
	p := mockProcessor(t, s, remote)

	ref, err := p.resolve(statusIRI)
	if err != nil {
		t.Fatalf("resolve() %v", err)
	}
	sr, ok := ref.(StatusRef)
	if !ok {
		t.Fatalf("resolve() ref = %T, want %T", ref, StatusRef{})
	}
	if !sr.Local {
		t.Errorf("resolve() returned a non-local ref for a stored status")
	}
	if diff := cmp.Diff(&seed, sr.Status); diff != "" {
		t.Errorf("resolve() status mismatch (-want +got):\n%s", diff)
	}
}

func TestP_Resolve_Nil(t *testing.T) {
	p := mockProcessor(t, newMockStore(), nil)
	if _, err := p.resolve(nil); err == nil {
		t.Errorf("resolve() expected an error for a nil item")
	}
}
