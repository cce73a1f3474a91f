package session

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"storefront/internal/api"
	"storefront/internal/domain"
	"storefront/internal/kvstore"
	"storefront/internal/notify"
	"storefront/internal/state"

	"github.com/stretchr/testify/require"
)

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
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingNav struct {
	mu     sync.Mutex
	routes []string
}

func (n *recordingNav) Redirect(route string) {
	n.mu.Lock()
	n.routes = append(n.routes, route)
	n.mu.Unlock()
}

func (n *recordingNav) Routes() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.routes...)
}

type fixture struct {
	store   *Store
	kv      kvstore.Store
	app     *state.Store
	nav     *recordingNav
	notices *notify.Queue
	clock   *fakeClock
}

func newFixture() *fixture {
	clock := &fakeClock{now: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
	f := &fixture{
		kv:    kvstore.NewMemory(),
		app:   state.NewStore(nil),
		nav:   &recordingNav{},
		clock: clock,
	}
	f.notices = notify.NewQueue(time.Hour, nil).WithClock(clock.Now)
	f.store = NewStore(f.kv, f.app, f.nav, f.notices, nil, WithClock(clock.Now))
	return f
}

func TestLogin_PersistsTriple(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	require.NoError(t, f.store.Login(ctx, "tok", domain.RoleUser, time.Hour))

	token, err := f.kv.Get(ctx, KeyToken)
	require.NoError(t, err)
	require.Equal(t, "tok", token)

	role, _ := f.kv.Get(ctx, KeyRole)
	require.Equal(t, "user", role)

	exp, _ := f.kv.Get(ctx, KeyExpiration)
	require.Equal(t, strconv.FormatInt(f.clock.Now().Add(time.Hour).UnixMilli(), 10), exp)

	require.NotNil(t, f.app.Snapshot().Session)
}

func TestLogin_RejectsInvalidParameters(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	require.ErrorIs(t, f.store.Login(ctx, "", domain.RoleUser, time.Hour), ErrInvalidSession)
	require.ErrorIs(t, f.store.Login(ctx, "tok", domain.Role("root"), time.Hour), ErrInvalidSession)
	require.ErrorIs(t, f.store.Login(ctx, "tok", domain.RoleUser, 0), ErrInvalidSession)
	require.False(t, f.store.LoggedIn())
}

// Feature: storefront, Property 6: Session expiry
func TestCheckExpiry_LogsOutAfterExpiry(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	require.NoError(t, f.store.Login(ctx, "tok", domain.RoleAdmin, time.Second))
	require.False(t, f.store.CheckExpiry(ctx), "session still valid")

	f.clock.Advance(1500 * time.Millisecond)
	require.True(t, f.store.CheckExpiry(ctx))

	require.False(t, f.store.LoggedIn())
	for _, key := range []string{KeyToken, KeyRole, KeyExpiration} {
		_, err := f.kv.Get(ctx, key)
		require.ErrorIs(t, err, kvstore.ErrNotFound, key)
	}
	require.Equal(t, []string{AdminLoginRoute}, f.nav.Routes())
	require.Len(t, f.notices.Active(), 1)
	require.Nil(t, f.app.Snapshot().Session)
}

func TestCheckExpiry_ConcurrentCallersEndOnce(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	require.NoError(t, f.store.Login(ctx, "tok", domain.RoleUser, time.Second))
	f.clock.Advance(2 * time.Second)
	epoch := f.app.Epoch()

	var wg sync.WaitGroup
	var mu sync.Mutex
	ended := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if f.store.CheckExpiry(ctx) {
				mu.Lock()
				ended++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, ended)
	require.Len(t, f.notices.Active(), 1)
	require.Equal(t, []string{LoginRoute}, f.nav.Routes())
	require.Equal(t, epoch+1, f.app.Epoch(), "the session ends exactly once")
}

func TestWatch_EndsSessionOnTick(t *testing.T) {
	f := newFixture()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, f.store.Login(ctx, "tok", domain.RoleUser, time.Second))
	f.clock.Advance(2 * time.Second)

	done := make(chan struct{})
	go func() {
		f.store.Watch(ctx, 5*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return !f.store.LoggedIn() }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watch did not stop after cancel")
	}
}

func TestRequire_RedirectsWhenLoggedOut(t *testing.T) {
	f := newFixture()

	_, err := f.store.Require(context.Background())

	require.ErrorIs(t, err, ErrNotAuthenticated)
	require.Equal(t, []string{LoginRoute}, f.nav.Routes())
}

func TestRequireRole(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	require.NoError(t, f.store.Login(ctx, "tok", domain.RoleUser, time.Hour))

	_, err := f.store.RequireRole(ctx, domain.RoleAdmin)
	require.ErrorIs(t, err, ErrInsufficientRole)

	sess, err := f.store.RequireRole(ctx, domain.RoleUser)
	require.NoError(t, err)
	require.Equal(t, "tok", sess.Token)
}

func TestHandleAuthFailure_LogsOut(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	require.NoError(t, f.store.Login(ctx, "tok", domain.RoleUser, time.Hour))

	f.store.HandleAuthFailure(ctx, api.ErrUnauthorized)

	require.False(t, f.store.LoggedIn())
	require.Equal(t, []string{LoginRoute}, f.nav.Routes())
	_, err := f.kv.Get(ctx, KeyToken)
	require.ErrorIs(t, err, kvstore.ErrNotFound)
}

func TestHandleAuthFailure_ConcurrentFailuresEndOnce(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	require.NoError(t, f.store.Login(ctx, "tok", domain.RoleUser, time.Hour))
	epoch := f.app.Epoch()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.store.HandleAuthFailure(ctx, api.ErrUnauthorized)
		}()
	}
	wg.Wait()

	require.Len(t, f.notices.Active(), 1)
	require.Equal(t, epoch+1, f.app.Epoch())
	require.False(t, f.store.LoggedIn())
}

func TestRestore(t *testing.T) {
	ctx := context.Background()

	t.Run("valid session", func(t *testing.T) {
		f := newFixture()
		require.NoError(t, f.store.Login(ctx, "tok", domain.RoleAdmin, time.Hour))

		restored := NewStore(f.kv, state.NewStore(nil), f.nav, nil, nil, WithClock(f.clock.Now))
		ok, err := restored.Restore(ctx)
		require.NoError(t, err)
		require.True(t, ok)

		sess, _ := restored.Current()
		require.Equal(t, domain.RoleAdmin, sess.Role)
		require.Equal(t, f.clock.Now().Add(time.Hour).UnixMilli(), sess.ExpiresAt.UnixMilli())
	})

	t.Run("expired session is cleared", func(t *testing.T) {
		f := newFixture()
		require.NoError(t, f.store.Login(ctx, "tok", domain.RoleUser, time.Second))
		f.clock.Advance(time.Minute)

		restored := NewStore(f.kv, nil, nil, nil, nil, WithClock(f.clock.Now))
		ok, err := restored.Restore(ctx)
		require.NoError(t, err)
		require.False(t, ok)

		_, err = f.kv.Get(ctx, KeyToken)
		require.ErrorIs(t, err, kvstore.ErrNotFound)
	})

	t.Run("malformed session is cleared", func(t *testing.T) {
		f := newFixture()
		require.NoError(t, f.kv.Set(ctx, KeyToken, "tok"))
		require.NoError(t, f.kv.Set(ctx, KeyRole, "user"))
		require.NoError(t, f.kv.Set(ctx, KeyExpiration, "soon"))

		ok, err := f.store.Restore(ctx)
		require.NoError(t, err)
		require.False(t, ok)

		_, err = f.kv.Get(ctx, KeyRole)
		require.ErrorIs(t, err, kvstore.ErrNotFound)
	})

	t.Run("nothing persisted", func(t *testing.T) {
		f := newFixture()
		ok, err := f.store.Restore(ctx)
		require.NoError(t, err)
		require.False(t, ok)
	})
}

type fakeAuth struct {
	calls int
	resp  *api.LoginResponse
	err   error
}

func (a *fakeAuth) Login(ctx context.Context, email, password string) (*api.LoginResponse, error) {
	a.calls++
	return a.resp, a.err
}

func TestSignIn(t *testing.T) {
	ctx := context.Background()

	t.Run("invalid email sends nothing", func(t *testing.T) {
		f := newFixture()
		auth := &fakeAuth{}
		require.Error(t, f.store.SignIn(ctx, auth, "not-an-email", "secret"))
		require.Equal(t, 0, auth.calls)
	})

	t.Run("successful login starts session", func(t *testing.T) {
		f := newFixture()
		auth := &fakeAuth{resp: &api.LoginResponse{Token: "tok", Role: domain.RoleUser, ExpiresIn: 3600}}
		require.NoError(t, f.store.SignIn(ctx, auth, "jane@example.com", "secret"))

		sess, ok := f.store.Current()
		require.True(t, ok)
		require.Equal(t, f.clock.Now().Add(time.Hour), sess.ExpiresAt)
	})

	t.Run("backend rejection", func(t *testing.T) {
		f := newFixture()
		auth := &fakeAuth{err: errors.New("invalid email or password")}
		require.Error(t, f.store.SignIn(ctx, auth, "jane@example.com", "wrong"))
		require.False(t, f.store.LoggedIn())
	})
}
