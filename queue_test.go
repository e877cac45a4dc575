package groups

import (
	"context"
	"testing"
	"time"

	vocab "github.com/go-ap/activitypub"
)

func TestQueue_ProcessBatch(t *testing.T) {
	followIRI := vocab.IRI("https://remote.example.com/users/jdoe/follows/8")

	s := newMockStore()
	if _, err := s.SaveRequest(&MembershipRequest{IRI: followIRI, Account: testAccount.IRI, Group: testGroup.IRI}); err != nil {
		t.Fatalf("unable to seed request: %v", err)
	}
	q := NewQueue(mockProcessor(t, s, nil))

	accept := &vocab.Activity{
		ID:     "https://group.example.local/groups/hiking/accepts/8",
		Type:   vocab.AcceptType,
		Actor:  testGroup.IRI,
		Object: follow(followIRI, testAccount, testGroup),
	}
	// A verb outside the closed set is dropped terminally, without
	// failing the batch or burning retries.
	like := &vocab.Activity{
		ID:     "https://remote.example.com/users/jdoe/likes/8",
		Type:   vocab.LikeType,
		Actor:  testAccount.IRI,
		Object: vocab.IRI("https://group.example.local/groups/hiking/statuses/1"),
	}

	err := q.ProcessBatch(context.Background(),
		QueueItem{Item: accept, Author: groupAsActor(testGroup)},
		QueueItem{Item: like, Author: vocab.Actor{ID: testAccount.IRI}},
	)
	if err != nil {
		t.Fatalf("ProcessBatch() %v", err)
	}
	if _, err = s.LoadMembership(testAccount.IRI, testGroup.IRI); err != nil {
		t.Errorf("ProcessBatch() membership missing: %v", err)
	}
}

func TestQueue_Run(t *testing.T) {
	followIRI := vocab.IRI("https://remote.example.com/users/jdoe/follows/9")

	s := newMockStore()
	if _, err := s.SaveRequest(&MembershipRequest{IRI: followIRI, Account: testAccount.IRI, Group: testGroup.IRI}); err != nil {
		t.Fatalf("unable to seed request: %v", err)
	}
	q := NewQueue(mockProcessor(t, s, nil))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- q.Run(ctx) }()

	q.Push(&vocab.Activity{
		ID:     "https://group.example.local/groups/hiking/accepts/9",
		Type:   vocab.AcceptType,
		Actor:  testGroup.IRI,
		Object: follow(followIRI, testAccount, testGroup),
	}, groupAsActor(testGroup))

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := s.LoadMembership(testAccount.IRI, testGroup.IRI); err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != context.Canceled {
		t.Errorf("Run() returned %v, want %v", err, context.Canceled)
	}
	if _, err := s.LoadMembership(testAccount.IRI, testGroup.IRI); err != nil {
		t.Errorf("Run() membership missing after processing: %v", err)
	}
}
