package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"authportal/internal/models"
	"authportal/internal/replica"
	"authportal/internal/repositories"
)

// memRepo is an in-memory AccountRepository for service tests.
type memRepo struct {
	mu        sync.Mutex
	byID      map[string]*models.Account
	deleteErr error
	redeemErr error // fails ConsumeAndMarkVerified and ResetCredential
}

func newMemRepo() *memRepo {
	return &memRepo{byID: map[string]*models.Account{}}
}

func clone(a *models.Account) *models.Account {
	cp := *a
	if a.Verification != nil {
		v := *a.Verification
		cp.Verification = &v
	}
	if a.EmailVerifiedAt != nil {
		t := *a.EmailVerifiedAt
		cp.EmailVerifiedAt = &t
	}
	return &cp
}

func (r *memRepo) Create(_ context.Context, a *models.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.byID {
		if existing.IdentityKey == a.IdentityKey {
			return repositories.ErrConflict
		}
	}
	r.byID[a.ID] = clone(a)
	return nil
}

func (r *memRepo) FindByIdentity(_ context.Context, email string) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := models.NormalizeIdentity(email)
	for _, a := range r.byID {
		if a.IdentityKey == key {
			return clone(a), nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (r *memRepo) FindByID(_ context.Context, id string) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return clone(a), nil
}

func (r *memRepo) mutate(id string, fn func(a *models.Account)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok {
		return repositories.ErrNotFound
	}
	fn(a)
	return nil
}

func (r *memRepo) SetVerification(_ context.Context, id string, v *models.VerificationArtifact) error {
	cp := *v
	return r.mutate(id, func(a *models.Account) { a.Verification = &cp })
}

func (r *memRepo) ClearVerification(_ context.Context, id string, purpose models.Purpose, code string, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.byID[id]; ok && a.Verification != nil &&
		a.Verification.Purpose == purpose && a.Verification.Code == code {
		a.Verification = nil
	}
	return nil
}

// redeem mirrors the conditional store write: all or nothing.
func (r *memRepo) redeem(id string, purpose models.Purpose, code string, now time.Time, fail error, apply func(a *models.Account)) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if fail != nil {
		return false, fail
	}
	a, ok := r.byID[id]
	if !ok || a.Verification == nil || a.Verification.Purpose != purpose ||
		a.Verification.Code != code || a.Verification.Expired(now) {
		return false, nil
	}
	a.Verification = nil
	a.UpdatedAt = now
	apply(a)
	return true, nil
}

func (r *memRepo) ConsumeVerification(_ context.Context, id string, purpose models.Purpose, code string, now time.Time) (bool, error) {
	return r.redeem(id, purpose, code, now, nil, func(*models.Account) {})
}

func (r *memRepo) ConsumeAndMarkVerified(_ context.Context, id, code string, now time.Time) (bool, error) {
	return r.redeem(id, models.PurposeEmailVerification, code, now, r.redeemErr, func(a *models.Account) {
		a.EmailVerifiedAt = &now
	})
}

func (r *memRepo) ResetCredential(_ context.Context, id, code, hash string, now time.Time) (bool, error) {
	return r.redeem(id, models.PurposePasswordReset, code, now, r.redeemErr, func(a *models.Account) {
		a.PasswordHash = hash
	})
}

func (r *memRepo) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleteErr != nil {
		return r.deleteErr
	}
	if _, ok := r.byID[id]; !ok {
		return repositories.ErrNotFound
	}
	delete(r.byID, id)
	return nil
}

func (r *memRepo) Count(context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID), nil
}

func (r *memRepo) stored(email string) *models.Account {
	a, err := r.FindByIdentity(context.Background(), email)
	if err != nil {
		return nil
	}
	return a
}

// fakeReplica records writes and fails on demand.
type fakeReplica struct {
	mu       sync.Mutex
	records  map[string]replica.Fields
	putErr   error
	patchErr error
	putHook  func()
}

func newFakeReplica() *fakeReplica {
	return &fakeReplica{records: map[string]replica.Fields{}}
}

func (f *fakeReplica) Put(_ context.Context, id string, fields replica.Fields) error {
	if f.putHook != nil {
		f.putHook()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return f.putErr
	}
	rec := replica.Fields{}
	for k, v := range fields {
		rec[k] = v
	}
	f.records[id] = rec
	return nil
}

func (f *fakeReplica) Patch(_ context.Context, id string, fields replica.Fields) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.patchErr != nil {
		return f.patchErr
	}
	rec, ok := f.records[id]
	if !ok {
		return replica.ErrRecordMissing
	}
	for k, v := range fields {
		rec[k] = v
	}
	return nil
}

func (f *fakeReplica) record(id string) replica.Fields {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.records[id]
}

type sentEmail struct {
	to, subject, body string
}

type fakeEmails struct {
	mu   sync.Mutex
	sent []sentEmail
	err  error
}

func (f *fakeEmails) Send(_ context.Context, to, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentEmail{to: to, subject: subject, body: body})
	return nil
}

func (f *fakeEmails) all() []sentEmail {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentEmail(nil), f.sent...)
}

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// sequenceCodes hands out 100001, 100002, ...
func sequenceCodes() func() (string, error) {
	var mu sync.Mutex
	n := 100000
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%06d", n), nil
	}
}

var errReplicaDown = errors.New("replica down")
