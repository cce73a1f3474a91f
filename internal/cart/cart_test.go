package cart

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"storefront/internal/api"
	"storefront/internal/domain"
	"storefront/internal/kvstore"
	"storefront/internal/notify"
	"storefront/internal/session"
	"storefront/internal/state"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type loggedIn struct {
	failures []error
}

func (g *loggedIn) Require(ctx context.Context) (domain.Session, error) {
	return domain.Session{Token: "t", Role: domain.RoleUser}, nil
}

func (g *loggedIn) HandleAuthFailure(ctx context.Context, cause error) {
	g.failures = append(g.failures, cause)
}

type loggedOut struct{}

func (loggedOut) Require(ctx context.Context) (domain.Session, error) {
	return domain.Session{}, session.ErrNotAuthenticated
}

func (loggedOut) HandleAuthFailure(ctx context.Context, cause error) {}

type staticCatalog map[string]domain.Product

func (c staticCatalog) Lookup(id string) (domain.Product, bool) {
	p, ok := c[id]
	return p, ok
}

// fakeBackend is an in-process cart whose calls can be delayed or failed
type fakeBackend struct {
	mu         sync.Mutex
	lines      []domain.CartLine
	calls      int
	removeErrs []error
	removed    []domain.LineKey
	hold       map[int]chan struct{}
	checkouts  []api.CheckoutRequest
}

func (b *fakeBackend) snapshot() []domain.CartLine {
	return append([]domain.CartLine{}, b.lines...)
}

func (b *fakeBackend) enter() {
	b.mu.Lock()
	b.calls++
	ch := b.hold[b.calls]
	b.mu.Unlock()
	if ch != nil {
		<-ch
	}
}

func (b *fakeBackend) GetCart(ctx context.Context) ([]domain.CartLine, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshot(), nil
}

func (b *fakeBackend) AddToCart(ctx context.Context, req api.AddToCartRequest) ([]domain.CartLine, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = append(b.lines, domain.CartLine{ProductID: req.ProductID, Size: req.Size, Quantity: req.Quantity, Price: req.Price, Name: req.Name, ImageURL: req.ImageURL})
	return b.snapshot(), nil
}

func (b *fakeBackend) UpdateCartLine(ctx context.Context, req api.UpdateCartRequest) ([]domain.CartLine, error) {
	b.enter()
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.lines {
		if b.lines[i].ProductID == req.ProductID && b.lines[i].Size == req.Size {
			b.lines[i].Quantity = req.Quantity
		}
	}
	return b.snapshot(), nil
}

func (b *fakeBackend) RemoveCartLine(ctx context.Context, req api.RemoveCartRequest) ([]domain.CartLine, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.removeErrs) > 0 {
		err := b.removeErrs[0]
		b.removeErrs = b.removeErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	key := domain.LineKey{ProductID: req.ProductID, Size: req.Size}
	for i := range b.lines {
		if b.lines[i].Key() == key {
			b.lines = append(b.lines[:i], b.lines[i+1:]...)
			b.removed = append(b.removed, key)
			return b.snapshot(), nil
		}
	}
	return nil, &api.Error{Op: "cart.remove", StatusCode: 404}
}

func (b *fakeBackend) Checkout(ctx context.Context, req api.CheckoutRequest) (*api.CheckoutResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.checkouts = append(b.checkouts, req)
	return &api.CheckoutResponse{OrderID: fmt.Sprintf("order-%d", len(b.checkouts))}, nil
}

var fastSweep = SweepPolicy{Base: time.Millisecond, MaxRetries: 3, MaxDelay: 5 * time.Millisecond}

func newController(backend Backend, gate Gate, catalog Catalog, opts ...Option) (*Controller, *state.Store, kvstore.Store) {
	app := state.NewStore(nil)
	kv := kvstore.NewMemory()
	opts = append([]Option{WithSweepPolicy(fastSweep)}, opts...)
	return NewController(backend, gate, catalog, app, kv, nil, opts...), app, kv
}

// Feature: storefront, Property 7: Cart amount uses current catalog prices
func TestProperty_AmountUsesCatalogPrice(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("amount is the sum of quantity times catalog price", prop.ForAll(
		func(quantities []int, prices []int64, stale int64) bool {
			catalog := staticCatalog{}
			var lines []domain.CartLine
			var want int64
			for i, q := range quantities {
				id := string(rune('a' + i))
				price := prices[i%len(prices)]
				catalog[id] = domain.Product{ID: id, Price: price}
				lines = append(lines, domain.CartLine{ProductID: id, Size: domain.SizeM, Quantity: q, Price: stale})
				want += int64(q) * price
			}
			lines = append(lines, domain.CartLine{ProductID: "gone", Size: domain.SizeM, Quantity: 3, Price: stale})

			c, app, _ := newController(&fakeBackend{}, &loggedIn{}, catalog)
			app.Dispatch(state.CartReplaced{Lines: lines})
			return c.Amount() == want
		},
		gen.SliceOfN(6, gen.IntRange(1, 20)),
		gen.SliceOfN(3, gen.Int64Range(0, 5_000_000)),
		gen.Int64Range(0, 5_000_000),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestCount(t *testing.T) {
	c, app, _ := newController(&fakeBackend{}, &loggedIn{}, staticCatalog{})
	assert.Zero(t, c.Count())

	app.Dispatch(state.CartReplaced{Lines: []domain.CartLine{
		{ProductID: "a", Size: domain.SizeM, Quantity: 2},
		{ProductID: "a", Size: domain.SizeL, Quantity: 3},
	}})
	assert.Equal(t, 5, c.Count())
}

func TestAddToCart_UsesFirstImageOrPlaceholder(t *testing.T) {
	backend := &fakeBackend{}
	catalog := staticCatalog{
		"with":    {ID: "with", Images: []string{"", "/img/2.jpg"}},
		"without": {ID: "without"},
	}
	c, _, _ := newController(backend, &loggedIn{}, catalog)
	ctx := context.Background()

	require.NoError(t, c.AddToCart(ctx, "with", domain.SizeM, 100, "A", 1))
	require.NoError(t, c.AddToCart(ctx, "without", domain.SizeM, 100, "B", 1))

	lines := c.Lines()
	require.Len(t, lines, 2)
	assert.Equal(t, "/img/2.jpg", lines[0].ImageURL)
	assert.Equal(t, domain.PlaceholderImage, lines[1].ImageURL)
}

func TestMutations_ValidateBeforeCalling(t *testing.T) {
	backend := &fakeBackend{}
	c, _, _ := newController(backend, &loggedIn{}, staticCatalog{})
	ctx := context.Background()

	assert.ErrorIs(t, c.UpdateQuantity(ctx, "p1", domain.SizeM, 0), ErrValidation)
	assert.ErrorIs(t, c.AddToCart(ctx, "p1", domain.Size("XXXL"), 100, "x", 1), ErrValidation)
	assert.ErrorIs(t, c.AddToCart(ctx, "", domain.SizeM, 100, "x", 1), ErrValidation)
	assert.ErrorIs(t, c.RemoveFromCart(ctx, "p1", ""), ErrValidation)
	assert.Zero(t, backend.calls)
}

func TestMutations_RequireSession(t *testing.T) {
	backend := &fakeBackend{}
	c, _, _ := newController(backend, loggedOut{}, staticCatalog{})

	err := c.AddToCart(context.Background(), "p1", domain.SizeM, 100, "x", 1)
	assert.ErrorIs(t, err, session.ErrNotAuthenticated)
	assert.Empty(t, backend.lines)
}

func TestStaleResponseIsDiscarded(t *testing.T) {
	first := make(chan struct{})
	backend := &fakeBackend{
		lines: []domain.CartLine{{ProductID: "p1", Size: domain.SizeM, Quantity: 1}},
		hold:  map[int]chan struct{}{1: first},
	}
	c, _, _ := newController(backend, &loggedIn{}, staticCatalog{})
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- c.UpdateQuantity(ctx, "p1", domain.SizeM, 3) }()

	require.Eventually(t, func() bool {
		backend.mu.Lock()
		defer backend.mu.Unlock()
		return backend.calls == 1
	}, time.Second, time.Millisecond)

	require.NoError(t, c.UpdateQuantity(ctx, "p1", domain.SizeM, 5))
	require.Equal(t, 5, c.Lines()[0].Quantity)

	close(first)
	require.NoError(t, <-done)

	assert.Equal(t, 5, c.Lines()[0].Quantity, "the older request's response must not overwrite the newer one")
}

func TestAuthFailureEndsSession(t *testing.T) {
	gate := &loggedIn{}
	backend := &authFailingBackend{}
	notices := notify.NewQueue(time.Minute, nil)
	c, _, _ := newController(backend, gate, staticCatalog{}, WithNotifier(notices))

	err := c.Refresh(context.Background())
	require.Error(t, err)
	assert.True(t, api.IsAuth(err))
	assert.Len(t, gate.failures, 1)
	assert.Empty(t, notices.Active())
}

func TestTransportFailureKeepsState(t *testing.T) {
	notices := notify.NewQueue(time.Minute, nil)
	c, app, _ := newController(&transportFailingBackend{}, &loggedIn{}, staticCatalog{}, WithNotifier(notices))
	app.Dispatch(state.CartReplaced{Lines: []domain.CartLine{{ProductID: "p1", Size: domain.SizeM, Quantity: 2}}})

	err := c.Refresh(context.Background())
	require.ErrorIs(t, err, api.ErrTransport)
	assert.Equal(t, 2, c.Count())

	active := notices.Active()
	require.Len(t, active, 1)
	assert.Equal(t, "Failed to load cart", active[0].Message)
}

type authFailingBackend struct{ fakeBackend }

func (b *authFailingBackend) GetCart(ctx context.Context) ([]domain.CartLine, error) {
	return nil, &api.Error{Op: "cart.get", StatusCode: 401}
}

type transportFailingBackend struct{ fakeBackend }

func (b *transportFailingBackend) GetCart(ctx context.Context) ([]domain.CartLine, error) {
	return nil, api.ErrTransport
}

func validCheckout(items ...domain.SelectedItem) api.CheckoutRequest {
	return api.CheckoutRequest{
		Shipping: domain.Shipping{
			Name:    "Una",
			Email:   "una@example.com",
			Address: domain.Address{Street: "1 Main", City: "Town", PostalCode: "1000"},
			Phone:   "5551234",
		},
		PaymentMethod: "cod",
		SelectedItems: items,
	}
}

func TestCheckout_RemovesSelectedLines(t *testing.T) {
	backend := &fakeBackend{lines: []domain.CartLine{
		{ProductID: "p1", Size: domain.SizeM, Quantity: 1},
		{ProductID: "p2", Size: domain.SizeL, Quantity: 2},
		{ProductID: "p3", Size: domain.SizeS, Quantity: 1},
	}}
	c, app, kv := newController(backend, &loggedIn{}, staticCatalog{})
	ctx := context.Background()
	require.NoError(t, c.Refresh(ctx))

	now := time.Now()
	items := []domain.SelectedItem{
		domain.Select(backend.lines[0], now),
		domain.Select(backend.lines[1], now),
	}

	var gotOrder string
	var gotErr error
	err := c.Checkout(ctx, validCheckout(items...), func(id string) { gotOrder = id }, func(err error) { gotErr = err })
	require.NoError(t, err)
	assert.Equal(t, "order-1", gotOrder)
	assert.NoError(t, gotErr)

	require.Len(t, backend.checkouts, 1)
	assert.NotEmpty(t, backend.checkouts[0].IdempotencyKey)

	lines := app.Snapshot().Cart
	require.Len(t, lines, 1)
	assert.Equal(t, "p3", lines[0].ProductID)

	keys, err := kv.Keys(ctx, KeySweepPrefix)
	require.NoError(t, err)
	assert.Empty(t, keys, "journal is cleared once the sweep completes")
}

func TestCheckout_InvalidRequestCallsOnError(t *testing.T) {
	backend := &fakeBackend{}
	c, _, _ := newController(backend, &loggedIn{}, staticCatalog{})

	var gotErr error
	req := validCheckout()
	err := c.Checkout(context.Background(), req, func(string) { t.Fatal("onSuccess must not run") }, func(err error) { gotErr = err })
	require.ErrorIs(t, err, ErrValidation)
	assert.ErrorIs(t, gotErr, ErrValidation)
	assert.Empty(t, backend.checkouts)
}

func TestCheckout_SweepRetriesTransientFailures(t *testing.T) {
	backend := &fakeBackend{
		lines:      []domain.CartLine{{ProductID: "p1", Size: domain.SizeM, Quantity: 1}},
		removeErrs: []error{api.ErrTransport, &api.Error{Op: "cart.remove", StatusCode: 503}},
	}
	c, _, _ := newController(backend, &loggedIn{}, staticCatalog{})

	item := domain.Select(backend.lines[0], time.Now())
	require.NoError(t, c.Checkout(context.Background(), validCheckout(item), nil, nil))
	assert.Len(t, backend.removed, 1)
	assert.Empty(t, backend.lines)
}

func TestCheckout_AlreadyRemovedLineCountsAsSwept(t *testing.T) {
	backend := &fakeBackend{}
	c, _, _ := newController(backend, &loggedIn{}, staticCatalog{})

	item := domain.SelectedItem{ProductID: "p1", Size: domain.SizeM, Quantity: 1}
	require.NoError(t, c.Checkout(context.Background(), validCheckout(item), nil, nil))
}

func TestCheckout_IncompleteSweepIsResumable(t *testing.T) {
	permanent := api.ErrTransport
	backend := &fakeBackend{
		lines: []domain.CartLine{
			{ProductID: "p1", Size: domain.SizeM, Quantity: 1},
			{ProductID: "p2", Size: domain.SizeM, Quantity: 1},
		},
		removeErrs: []error{nil, permanent, permanent, permanent, permanent},
	}
	notices := notify.NewQueue(time.Minute, nil)
	c, _, kv := newController(backend, &loggedIn{}, staticCatalog{}, WithNotifier(notices))
	ctx := context.Background()

	now := time.Now()
	req := validCheckout(domain.Select(backend.lines[0], now), domain.Select(backend.lines[1], now))

	var successCalled bool
	var gotErr error
	err := c.Checkout(ctx, req, func(string) { successCalled = true }, func(err error) { gotErr = err })

	var sweepErr *SweepError
	require.True(t, errors.As(err, &sweepErr))
	assert.Equal(t, "order-1", sweepErr.OrderID)
	assert.Equal(t, []domain.LineKey{{ProductID: "p2", Size: domain.SizeM}}, sweepErr.Remaining)
	assert.False(t, successCalled)
	assert.Equal(t, err, gotErr)
	assert.ErrorIs(t, err, api.ErrTransport)

	pending, err := c.PendingSweeps(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, sweepErr.Remaining, pending[0].Remaining)

	require.NoError(t, c.ResumeSweep(ctx))
	assert.Empty(t, backend.lines)
	_, err = kv.Get(ctx, KeySweepPrefix+"order-1")
	assert.ErrorIs(t, err, kvstore.ErrNotFound)

	require.NoError(t, c.ResumeSweep(ctx), "nothing pending is a no-op")
}

func TestCheckout_LaterCheckoutKeepsEarlierPendingSweep(t *testing.T) {
	permanent := api.ErrTransport
	backend := &fakeBackend{
		lines: []domain.CartLine{
			{ProductID: "p1", Size: domain.SizeM, Quantity: 1},
			{ProductID: "p2", Size: domain.SizeL, Quantity: 1},
		},
		removeErrs: []error{permanent, permanent, permanent, permanent},
	}
	c, _, kv := newController(backend, &loggedIn{}, staticCatalog{})
	ctx := context.Background()
	now := time.Now()
	first := domain.Select(backend.lines[0], now)
	second := domain.Select(backend.lines[1], now)

	var sweepErr *SweepError
	require.True(t, errors.As(c.Checkout(ctx, validCheckout(first), nil, nil), &sweepErr))
	assert.Equal(t, "order-1", sweepErr.OrderID)

	require.NoError(t, c.Checkout(ctx, validCheckout(second), nil, nil))

	pending, err := c.PendingSweeps(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1, "the completed order must not clear the earlier order's journal")
	assert.Equal(t, "order-1", pending[0].OrderID)
	assert.Equal(t, []domain.LineKey{{ProductID: "p1", Size: domain.SizeM}}, pending[0].Remaining)

	require.NoError(t, c.ResumeSweep(ctx))
	assert.Empty(t, backend.lines)
	keys, err := kv.Keys(ctx, KeySweepPrefix)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestPendingSweeps_DropsMalformedEntries(t *testing.T) {
	c, _, kv := newController(&fakeBackend{}, &loggedIn{}, staticCatalog{})
	ctx := context.Background()
	require.NoError(t, kv.Set(ctx, KeySweepPrefix+"broken", "{not json"))

	pending, err := c.PendingSweeps(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
	_, err = kv.Get(ctx, KeySweepPrefix+"broken")
	assert.ErrorIs(t, err, kvstore.ErrNotFound)
}

func TestResponseAfterLogoutIsDiscarded(t *testing.T) {
	held := make(chan struct{})
	backend := &fakeBackend{
		lines: []domain.CartLine{{ProductID: "p1", Size: domain.SizeM, Quantity: 1}},
		hold:  map[int]chan struct{}{1: held},
	}
	c, app, _ := newController(backend, &loggedIn{}, staticCatalog{})
	app.Dispatch(state.SessionStarted{Session: domain.Session{Token: "t", Role: domain.RoleUser}})
	app.Dispatch(state.CartReplaced{Lines: backend.snapshot()})

	done := make(chan error, 1)
	go func() { done <- c.UpdateQuantity(context.Background(), "p1", domain.SizeM, 4) }()

	require.Eventually(t, func() bool {
		backend.mu.Lock()
		defer backend.mu.Unlock()
		return backend.calls == 1
	}, time.Second, time.Millisecond)

	app.Dispatch(state.SessionEnded{Reason: "logout"})
	close(held)
	require.NoError(t, <-done)

	assert.Empty(t, app.Snapshot().Cart, "a response issued before logout must not repopulate the cart")

	app.Dispatch(state.SessionStarted{Session: domain.Session{Token: "t", Role: domain.RoleUser}})
	require.NoError(t, c.UpdateQuantity(context.Background(), "p1", domain.SizeM, 2))
	require.Len(t, app.Snapshot().Cart, 1)
	assert.Equal(t, 2, app.Snapshot().Cart[0].Quantity)
}

func TestSelectAll(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	c, app, _ := newController(&fakeBackend{}, &loggedIn{}, staticCatalog{}, WithClock(func() time.Time { return at }))
	app.Dispatch(state.CartReplaced{Lines: []domain.CartLine{{ProductID: "p1", Size: domain.SizeM, Quantity: 2, Price: 10}}})

	items := c.SelectAll()
	require.Len(t, items, 1)
	assert.Equal(t, at, items[0].SelectedAt)
	assert.Equal(t, 2, items[0].Quantity)
}
