package passportfake

import (
	"context"
	"sync"

	"github.com/jrsteele09/passport-session/passport"
)

// FakeClient stands in for the remote service. Results are configured per
// token; a gate can be installed to hold calls until the test releases them.
type FakeClient struct {
	lock sync.Mutex

	profiles    map[string]*passport.UserProfile
	verifyErrs  map[string]error
	refreshed   map[string]passport.TokenPair
	refreshErrs map[string]error
	logoutErr   error

	verifyGate  chan struct{}
	refreshGate chan struct{}
	logoutGate  chan struct{}

	verifyCalls  []string
	refreshCalls []string
	logoutCalls  []string
}

func NewFakeClient() *FakeClient {
	return &FakeClient{
		profiles:    make(map[string]*passport.UserProfile),
		verifyErrs:  make(map[string]error),
		refreshed:   make(map[string]passport.TokenPair),
		refreshErrs: make(map[string]error),
	}
}

// AddUser makes VerifyUser(accessToken) return profile.
func (c *FakeClient) AddUser(accessToken string, profile *passport.UserProfile) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.profiles[accessToken] = profile
	delete(c.verifyErrs, accessToken)
}

// FailVerify makes VerifyUser(accessToken) return err.
func (c *FakeClient) FailVerify(accessToken string, err error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.verifyErrs[accessToken] = err
}

// AddRefresh makes Refresh(refreshToken) return pair.
func (c *FakeClient) AddRefresh(refreshToken string, pair passport.TokenPair) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.refreshed[refreshToken] = pair
	delete(c.refreshErrs, refreshToken)
}

func (c *FakeClient) FailRefresh(refreshToken string, err error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.refreshErrs[refreshToken] = err
}

func (c *FakeClient) FailLogout(err error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.logoutErr = err
}

// HoldVerify blocks VerifyUser until the returned func is called.
func (c *FakeClient) HoldVerify() (release func()) {
	return c.hold(&c.verifyGate)
}

func (c *FakeClient) HoldRefresh() (release func()) {
	return c.hold(&c.refreshGate)
}

// HoldLogout blocks Logout until released or until its context is done.
func (c *FakeClient) HoldLogout() (release func()) {
	return c.hold(&c.logoutGate)
}

func (c *FakeClient) hold(gate *chan struct{}) func() {
	c.lock.Lock()
	defer c.lock.Unlock()
	ch := make(chan struct{})
	*gate = ch
	var once sync.Once
	return func() {
		once.Do(func() {
			close(ch)
			c.lock.Lock()
			if *gate == ch {
				*gate = nil
			}
			c.lock.Unlock()
		})
	}
}

func (c *FakeClient) VerifyCalls() []string {
	c.lock.Lock()
	defer c.lock.Unlock()
	return append([]string(nil), c.verifyCalls...)
}

func (c *FakeClient) RefreshCalls() []string {
	c.lock.Lock()
	defer c.lock.Unlock()
	return append([]string(nil), c.refreshCalls...)
}

func (c *FakeClient) LogoutCalls() []string {
	c.lock.Lock()
	defer c.lock.Unlock()
	return append([]string(nil), c.logoutCalls...)
}

func (c *FakeClient) VerifyUser(ctx context.Context, accessToken string) (*passport.UserProfile, error) {
	c.lock.Lock()
	c.verifyCalls = append(c.verifyCalls, accessToken)
	gate := c.verifyGate
	c.lock.Unlock()

	if err := wait(ctx, gate); err != nil {
		return nil, &passport.AuthError{Op: "verify user", Kind: passport.ErrUnreachable, Err: err}
	}

	c.lock.Lock()
	defer c.lock.Unlock()
	if err, ok := c.verifyErrs[accessToken]; ok {
		return nil, err
	}
	profile, ok := c.profiles[accessToken]
	if !ok {
		return nil, &passport.AuthError{Op: "verify user", Kind: passport.ErrInvalidToken, Status: 401}
	}
	cp := *profile
	return &cp, nil
}

func (c *FakeClient) Logout(ctx context.Context, accessToken string) error {
	c.lock.Lock()
	c.logoutCalls = append(c.logoutCalls, accessToken)
	gate := c.logoutGate
	c.lock.Unlock()

	if err := wait(ctx, gate); err != nil {
		return &passport.AuthError{Op: "logout", Kind: passport.ErrUnreachable, Err: err}
	}

	c.lock.Lock()
	defer c.lock.Unlock()
	return c.logoutErr
}

func (c *FakeClient) Refresh(ctx context.Context, refreshToken string) (passport.TokenPair, error) {
	c.lock.Lock()
	c.refreshCalls = append(c.refreshCalls, refreshToken)
	gate := c.refreshGate
	c.lock.Unlock()

	if err := wait(ctx, gate); err != nil {
		return passport.TokenPair{}, &passport.AuthError{Op: "refresh", Kind: passport.ErrUnreachable, Err: err}
	}

	c.lock.Lock()
	defer c.lock.Unlock()
	if err, ok := c.refreshErrs[refreshToken]; ok {
		return passport.TokenPair{}, err
	}
	pair, ok := c.refreshed[refreshToken]
	if !ok {
		return passport.TokenPair{}, &passport.AuthError{Op: "refresh", Kind: passport.ErrInvalidToken, Status: 400}
	}
	return pair, nil
}

func wait(ctx context.Context, gate chan struct{}) error {
	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
