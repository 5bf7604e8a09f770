package tokenrepofake

import (
	"context"
	"errors"
	"sync"

	"github.com/jrsteele09/passport-session/tokenstore"
)

var _ tokenstore.Repo = (*FakeTokenRepo)(nil)

// ErrInjected is returned by every operation the fake has been told to fail.
var ErrInjected = errors.New("injected storage failure")

// FakeTokenRepo is an in-memory repo whose operations can be made to fail,
// standing in for disabled storage, a full disk or a dropped connection.
type FakeTokenRepo struct {
	values map[string]string
	lock   sync.RWMutex

	failGet    bool
	failUpsert bool
	failDelete bool
	// upsertsLeft fails every upsert once it reaches zero; negative disables it.
	upsertsLeft int

	gets    int
	upserts int
	deletes int
}

func NewFakeTokenRepo() *FakeTokenRepo {
	return &FakeTokenRepo{
		values:      make(map[string]string),
		upsertsLeft: -1,
	}
}

func (r *FakeTokenRepo) FailGets(fail bool) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.failGet = fail
}

func (r *FakeTokenRepo) FailUpserts(fail bool) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.failUpsert = fail
}

func (r *FakeTokenRepo) FailDeletes(fail bool) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.failDelete = fail
}

// FailUpsertsAfter lets n more upserts succeed and fails the rest.
func (r *FakeTokenRepo) FailUpsertsAfter(n int) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.upsertsLeft = n
}

func (r *FakeTokenRepo) Get(_ context.Context, key string) (string, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.gets++
	if r.failGet {
		return "", ErrInjected
	}
	v, ok := r.values[key]
	if !ok {
		return "", tokenstore.ErrNotFound
	}
	return v, nil
}

func (r *FakeTokenRepo) Upsert(_ context.Context, key, value string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.upserts++
	if r.failUpsert || r.upsertsLeft == 0 {
		return ErrInjected
	}
	if r.upsertsLeft > 0 {
		r.upsertsLeft--
	}
	r.values[key] = value
	return nil
}

func (r *FakeTokenRepo) Delete(_ context.Context, key string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.deletes++
	if r.failDelete {
		return ErrInjected
	}
	delete(r.values, key)
	return nil
}

// Set writes directly, bypassing failure injection.
func (r *FakeTokenRepo) Set(key, value string) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.values[key] = value
}

// Value reads directly, bypassing failure injection.
func (r *FakeTokenRepo) Value(key string) (string, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	v, ok := r.values[key]
	return v, ok
}

func (r *FakeTokenRepo) Len() int {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return len(r.values)
}

func (r *FakeTokenRepo) Upserts() int {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return r.upserts
}
