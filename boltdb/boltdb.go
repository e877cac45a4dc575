// Package boltdb provides a bolt backed implementation of the groups.Store
// persistence port, suitable for running a group federation instance off a
// single file.
package boltdb

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/boltdb/bolt"
	vocab "github.com/go-ap/activitypub"
	"github.com/go-ap/errors"
	"github.com/go-ap/groups"
)

type repo struct {
	d     *bolt.DB
	root  []byte
	logFn loggerFn
	errFn loggerFn
}

type loggerFn func(string, ...interface{})

const (
	bucketActors      = "actors"
	bucketMemberships = "memberships"
	bucketRequests    = "requests"
	bucketStatuses    = "statuses"
)

var buckets = [...]string{bucketActors, bucketMemberships, bucketRequests, bucketStatuses}

// Config
type Config struct {
	Path       string
	BucketName string
	LogFn      loggerFn
	ErrFn      loggerFn
}

// New returns a new bolt repository, creating the bucket hierarchy when it
// does not exist yet.
func New(c Config) (*repo, error) {
	db, err := bolt.Open(c.Path, 0600, nil)
	if err != nil {
		return nil, errors.Annotatef(err, "could not open db %s", c.Path)
	}
	rootBucket := []byte(c.BucketName)
	err = db.Update(func(tx *bolt.Tx) error {
		root, err := tx.CreateBucketIfNotExists(rootBucket)
		if err != nil {
			return err
		}
		for _, b := range buckets {
			if _, err = root.CreateBucketIfNotExists([]byte(b)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.Annotatef(err, "could not set up buckets")
	}

	b := repo{
		d:     db,
		root:  rootBucket,
		logFn: func(string, ...interface{}) {},
		errFn: func(string, ...interface{}) {},
	}
	if c.ErrFn != nil {
		b.errFn = c.ErrFn
	}
	if c.LogFn != nil {
		b.logFn = c.LogFn
	}
	return &b, nil
}

func (r *repo) Close() error {
	return r.d.Close()
}

// Persisted rows use plain string fields. The vocab IRI type marshals an
// empty value to no bytes at all, which encoding/json rejects, and most
// entities legitimately carry unset IRI fields (an account without wall or
// members collections, a status without a group).
type actorRow struct {
	IRI     string `json:"iri"`
	Type    string `json:"type,omitempty"`
	Name    string `json:"name,omitempty"`
	Domain  string `json:"domain,omitempty"`
	Inbox   string `json:"inbox,omitempty"`
	Wall    string `json:"wall,omitempty"`
	Members string `json:"members,omitempty"`
}

func rowFromActor(a *groups.Actor) actorRow {
	return actorRow{
		IRI:     a.IRI.String(),
		Type:    string(a.Type),
		Name:    a.Name,
		Domain:  a.Domain,
		Inbox:   a.Inbox.String(),
		Wall:    a.Wall.String(),
		Members: a.Members.String(),
	}
}

func (row actorRow) actor() *groups.Actor {
	return &groups.Actor{
		IRI:     vocab.IRI(row.IRI),
		Type:    vocab.ActivityVocabularyType(row.Type),
		Name:    row.Name,
		Domain:  row.Domain,
		Inbox:   vocab.IRI(row.Inbox),
		Wall:    vocab.IRI(row.Wall),
		Members: vocab.IRI(row.Members),
	}
}

type membershipRow struct {
	Account string    `json:"account"`
	Group   string    `json:"group"`
	Created time.Time `json:"created"`
}

func (row membershipRow) membership() *groups.Membership {
	return &groups.Membership{
		Account: vocab.IRI(row.Account),
		Group:   vocab.IRI(row.Group),
		Created: row.Created,
	}
}

type requestRow struct {
	IRI     string `json:"iri"`
	Account string `json:"account"`
	Group   string `json:"group"`
}

func (row requestRow) request() *groups.MembershipRequest {
	return &groups.MembershipRequest{
		IRI:     vocab.IRI(row.IRI),
		Account: vocab.IRI(row.Account),
		Group:   vocab.IRI(row.Group),
	}
}

type statusRow struct {
	IRI          string    `json:"iri"`
	AttributedTo string    `json:"attributed_to,omitempty"`
	Group        string    `json:"group,omitempty"`
	Approval     uint8     `json:"approval"`
	Visibility   uint8     `json:"visibility"`
	Content      string    `json:"content,omitempty"`
	Published    time.Time `json:"published"`
}

func rowFromStatus(st *groups.Status) statusRow {
	return statusRow{
		IRI:          st.IRI.String(),
		AttributedTo: st.AttributedTo.String(),
		Group:        st.Group.String(),
		Approval:     uint8(st.Approval),
		Visibility:   uint8(st.Visibility),
		Content:      st.Content,
		Published:    st.Published,
	}
}

func (row statusRow) status() *groups.Status {
	return &groups.Status{
		IRI:          vocab.IRI(row.IRI),
		AttributedTo: vocab.IRI(row.AttributedTo),
		Group:        vocab.IRI(row.Group),
		Approval:     groups.Approval(row.Approval),
		Visibility:   groups.Visibility(row.Visibility),
		Content:      row.Content,
		Published:    row.Published,
	}
}

// pairKey keys memberships and requests by their (group, account) pair, so
// a cursor scan over a group prefix finds everything the group owns.
func pairKey(group, account vocab.IRI) []byte {
	k := make([]byte, 0, len(group)+len(account)+1)
	k = append(k, group...)
	k = append(k, '#')
	k = append(k, account...)
	return k
}

func loadRaw(db *bolt.DB, root []byte, bucket string, key []byte) ([]byte, error) {
	var blob []byte
	err := db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(root).Bucket([]byte(bucket))
		if b == nil {
			return errors.Errorf("invalid bucket %s.%s", root, bucket)
		}
		if raw := b.Get(key); raw != nil {
			blob = make([]byte, len(raw))
			copy(blob, raw)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if blob == nil {
		return nil, errors.NotFoundf("no entry for %s in %s", key, bucket)
	}
	return blob, nil
}

func saveRaw(db *bolt.DB, root []byte, bucket string, key []byte, entry interface{}, unique bool) error {
	blob, err := json.Marshal(entry)
	if err != nil {
		return errors.Annotatef(err, "could not marshal %s entry", bucket)
	}
	return db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(root).Bucket([]byte(bucket))
		if b == nil {
			return errors.Errorf("invalid bucket %s.%s", root, bucket)
		}
		if unique && b.Get(key) != nil {
			return errors.Conflictf("duplicate entry for %s in %s", key, bucket)
		}
		return b.Put(key, blob)
	})
}

func deleteRaw(db *bolt.DB, root []byte, bucket string, key []byte) error {
	return db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(root).Bucket([]byte(bucket))
		if b == nil {
			return errors.Errorf("invalid bucket %s.%s", root, bucket)
		}
		if b.Get(key) == nil {
			return errors.NotFoundf("no entry for %s in %s", key, bucket)
		}
		return b.Delete(key)
	})
}

func (r *repo) LoadActor(iri vocab.IRI) (*groups.Actor, error) {
	blob, err := loadRaw(r.d, r.root, bucketActors, []byte(iri))
	if err != nil {
		return nil, err
	}
	row := actorRow{}
	if err = json.Unmarshal(blob, &row); err != nil {
		return nil, errors.Annotatef(err, "could not unmarshal actor %s", iri)
	}
	return row.actor(), nil
}

func (r *repo) SaveActor(a *groups.Actor) (*groups.Actor, error) {
	if a == nil || len(a.IRI) == 0 {
		return nil, errors.NotValidf("unable to save actor without an IRI")
	}
	err := saveRaw(r.d, r.root, bucketActors, []byte(a.IRI), rowFromActor(a), false)
	if err == nil {
		r.logFn("Saved actor: %s", a.IRI)
	}
	return a, err
}

// DeleteActor removes the actor together with every membership, request
// and wall status that references it.
func (r *repo) DeleteActor(iri vocab.IRI) error {
	return r.d.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket(r.root)
		actors := root.Bucket([]byte(bucketActors))
		if actors.Get([]byte(iri)) == nil {
			return errors.NotFoundf("no entry for %s in %s", iri, bucketActors)
		}
		if err := actors.Delete([]byte(iri)); err != nil {
			return err
		}
		for _, name := range []string{bucketMemberships, bucketRequests} {
			if err := deletePairsMatching(root.Bucket([]byte(name)), iri); err != nil {
				return err
			}
		}
		return deleteStatusesMatching(root.Bucket([]byte(bucketStatuses)), iri)
	})
}

// deletePairsMatching drops every (group, account) keyed row where either
// side is the given actor.
func deletePairsMatching(b *bolt.Bucket, iri vocab.IRI) error {
	groupPrefix := append([]byte(iri), '#')
	accountSuffix := append([]byte{'#'}, iri...)
	toDelete := make([][]byte, 0)
	c := b.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		if bytes.HasPrefix(k, groupPrefix) || bytes.HasSuffix(k, accountSuffix) {
			toDelete = append(toDelete, k)
		}
	}
	for _, k := range toDelete {
		if err := b.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

func deleteStatusesMatching(b *bolt.Bucket, iri vocab.IRI) error {
	toDelete := make([][]byte, 0)
	c := b.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		row := statusRow{}
		if err := json.Unmarshal(v, &row); err != nil {
			continue
		}
		if row.Group == iri.String() || row.AttributedTo == iri.String() {
			toDelete = append(toDelete, k)
		}
	}
	for _, k := range toDelete {
		if err := b.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) LoadMembership(account, group vocab.IRI) (*groups.Membership, error) {
	blob, err := loadRaw(r.d, r.root, bucketMemberships, pairKey(group, account))
	if err != nil {
		return nil, err
	}
	row := membershipRow{}
	if err = json.Unmarshal(blob, &row); err != nil {
		return nil, errors.Annotatef(err, "could not unmarshal membership")
	}
	return row.membership(), nil
}

func (r *repo) SaveMembership(m *groups.Membership) (*groups.Membership, error) {
	if m == nil || len(m.Account) == 0 || len(m.Group) == 0 {
		return nil, errors.NotValidf("unable to save membership without both account and group")
	}
	if m.Created.IsZero() {
		m.Created = time.Now().UTC()
	}
	row := membershipRow{Account: m.Account.String(), Group: m.Group.String(), Created: m.Created}
	err := saveRaw(r.d, r.root, bucketMemberships, pairKey(m.Group, m.Account), row, true)
	if err == nil {
		r.logFn("Saved membership: %s in %s", m.Account, m.Group)
	}
	return m, err
}

func (r *repo) DeleteMembership(account, group vocab.IRI) error {
	return deleteRaw(r.d, r.root, bucketMemberships, pairKey(group, account))
}

func (r *repo) LoadRequest(account, group vocab.IRI) (*groups.MembershipRequest, error) {
	blob, err := loadRaw(r.d, r.root, bucketRequests, pairKey(group, account))
	if err != nil {
		return nil, err
	}
	row := requestRow{}
	if err = json.Unmarshal(blob, &row); err != nil {
		return nil, errors.Annotatef(err, "could not unmarshal membership request")
	}
	return row.request(), nil
}

func (r *repo) LoadRequestIRI(iri vocab.IRI) (*groups.MembershipRequest, error) {
	var found *groups.MembershipRequest
	err := r.d.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(r.root).Bucket([]byte(bucketRequests)).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			row := requestRow{}
			if err := json.Unmarshal(v, &row); err != nil {
				continue
			}
			if row.IRI == iri.String() {
				found = row.request()
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, errors.NotFoundf("no membership request with id %s", iri)
	}
	return found, nil
}

func (r *repo) SaveRequest(rq *groups.MembershipRequest) (*groups.MembershipRequest, error) {
	if rq == nil || len(rq.Account) == 0 || len(rq.Group) == 0 {
		return nil, errors.NotValidf("unable to save request without both account and group")
	}
	row := requestRow{IRI: rq.IRI.String(), Account: rq.Account.String(), Group: rq.Group.String()}
	err := saveRaw(r.d, r.root, bucketRequests, pairKey(rq.Group, rq.Account), row, true)
	if err == nil {
		r.logFn("Saved membership request: %s for %s", rq.Account, rq.Group)
	}
	return rq, err
}

func (r *repo) DeleteRequest(account, group vocab.IRI) error {
	return deleteRaw(r.d, r.root, bucketRequests, pairKey(group, account))
}

func (r *repo) LoadStatus(iri vocab.IRI) (*groups.Status, error) {
	blob, err := loadRaw(r.d, r.root, bucketStatuses, []byte(iri))
	if err != nil {
		return nil, err
	}
	row := statusRow{}
	if err = json.Unmarshal(blob, &row); err != nil {
		return nil, errors.Annotatef(err, "could not unmarshal status %s", iri)
	}
	return row.status(), nil
}

func (r *repo) SaveStatus(st *groups.Status) (*groups.Status, error) {
	if st == nil || len(st.IRI) == 0 {
		return nil, errors.NotValidf("unable to save status without an IRI")
	}
	err := saveRaw(r.d, r.root, bucketStatuses, []byte(st.IRI), rowFromStatus(st), false)
	if err == nil {
		r.logFn("Saved status: %s", st.IRI)
	}
	return st, err
}

func (r *repo) DeleteStatus(iri vocab.IRI) error {
	return deleteRaw(r.d, r.root, bucketStatuses, []byte(iri))
}

var _ groups.Store = &repo{}
