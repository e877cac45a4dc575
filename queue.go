package groups

import (
	"context"
	"time"

	"git.sr.ht/~mariusor/lw"
	"git.sr.ht/~mariusor/ssm"
	vocab "github.com/go-ap/activitypub"
	"github.com/go-ap/errors"
)

// Queue decouples inbox ingestion from side effect application: each
// queued activity is applied in its own worker invocation, with transient
// storage failures retried under backoff. Semantic no-ops and structural
// rejections are terminal on the first pass - a reference that failed to
// resolve stays failed, per the resolver's no-retry contract.
type Queue struct {
	p  *P
	l  lw.Logger
	ch chan QueueItem
}

// QueueItem pairs an activity with the sender the delivery layer
// authenticated it against.
type QueueItem struct {
	Item   vocab.Item
	Author vocab.Actor
}

const defaultQueueDepth = 256

func NewQueue(p *P) *Queue {
	return &Queue{
		p:  p,
		l:  p.l,
		ch: make(chan QueueItem, defaultQueueDepth),
	}
}

// Push enqueues an authenticated activity for processing. It blocks when
// the queue is full, which pushes back on the HTTP layer.
func (q *Queue) Push(it vocab.Item, author vocab.Actor) {
	q.ch <- QueueItem{Item: it, Author: author}
}

const (
	jitterDelay = 200 * time.Millisecond

	baseWaitTime = time.Second
	multiplier   = 1.4

	retries = 5
)

func retryFn(fn ssm.Fn) ssm.Fn {
	return ssm.Retry(retries, ssm.BackOff(baseWaitTime, ssm.Jitter(jitterDelay, ssm.Linear(multiplier)), fn))
}

func (q *Queue) state(next QueueItem) ssm.Fn {
	attempt := 0
	return retryFn(func(ctx context.Context) ssm.Fn {
		defer func() { attempt += 1 }()
		ll := q.l.WithContext(lw.Ctx{"activity": next.Item.GetLink(), "attempt": attempt})
		if _, err := q.p.ProcessInboxActivity(next.Item, next.Author); err != nil {
			if errors.IsBadRequest(err) || errors.IsNotImplemented(err) || errors.IsUnauthorized(err) {
				// Malformed or unsupported envelope; retrying can not fix it.
				ll.Warnf("Dropping activity: %s", err)
				return ssm.End
			}
			ll.Warnf("Unable to process activity: %s", err)
			return ssm.ErrorEnd(err)
		}
		return ssm.End
	})
}

// Run drains the queue until the context is cancelled.
func (q *Queue) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case next := <-q.ch:
			if err := ssm.Run(ctx, q.state(next)); err != nil {
				q.l.WithContext(lw.Ctx{"activity": next.Item.GetLink(), "err": err.Error()}).Errorf("Giving up on activity")
			}
		}
	}
}

// ProcessBatch applies a batch of already authenticated activities
// concurrently, one state machine per activity.
func (q *Queue) ProcessBatch(ctx context.Context, batch ...QueueItem) error {
	states := make([]ssm.Fn, 0, len(batch))
	for _, next := range batch {
		states = append(states, q.state(next))
	}
	return ssm.RunParallel(ctx, states...)
}
