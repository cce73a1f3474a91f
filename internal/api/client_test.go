package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"storefront/internal/domain"
	"storefront/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func staticToken(tok string) TokenSource {
	return TokenFunc(func() (string, bool) { return tok, tok != "" })
}

func TestClient_SendsBearerToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		require.Equal(t, "/cart", r.URL.Path)
		json.NewEncoder(w).Encode(CartResponse{Items: []domain.CartLine{{ProductID: "p1", Size: domain.SizeM, Quantity: 2}}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", WithTokenSource(staticToken("tok-1")))
	lines, err := c.GetCart(context.Background())
	require.NoError(t, err)
	require.Len(t, lines, 1)
	require.Equal(t, 2, lines[0].Quantity)
}

func TestClient_NoTokenSendsNothing(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.GetCart(context.Background())

	require.ErrorIs(t, err, ErrNoToken)
	require.True(t, IsAuth(err))
	require.Equal(t, int32(0), atomic.LoadInt32(&hits))
}

func TestClient_ErrorClassification(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		target error
		msg    string
	}{
		{"unauthorized envelope", http.StatusUnauthorized, `{"error":{"code":"Unauthorized","message":"token expired"}}`, ErrUnauthorized, "token expired"},
		{"forbidden string", http.StatusForbidden, `{"error":"admins only"}`, ErrForbidden, "admins only"},
		{"not found message", http.StatusNotFound, `{"message":"order not found"}`, ErrNotFound, "order not found"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			c := NewClient(srv.URL, WithTokenSource(staticToken("tok")))
			err := c.UpdateOrderStatus(context.Background(), "o1", domain.StatusPaid)

			require.ErrorIs(t, err, tc.target)
			var apiErr *Error
			require.True(t, errors.As(err, &apiErr))
			require.Equal(t, tc.status, apiErr.StatusCode)
			require.Equal(t, tc.msg, apiErr.Message)
		})
	}
}

func TestClient_ServerErrorIsNotAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).ListProducts(context.Background())
	require.Error(t, err)
	require.False(t, IsAuth(err))
	require.False(t, IsTransport(err))
}

func TestClient_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	reg := prometheus.NewRegistry()
	c := NewClient(url, WithMetrics(metrics.New(reg)), WithTimeout(time.Second))

	_, err := c.ListProducts(context.Background())
	require.True(t, IsTransport(err), "expected transport error, got %v", err)
}

func TestClient_CanceledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewClient(srv.URL).ListProducts(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, IsTransport(err))
}

func TestClient_GetProductMarksDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"p1","name":"Shirt","price":10000}`))
	}))
	defer srv.Close()

	p, err := NewClient(srv.URL).GetProduct(context.Background(), "p1")
	require.NoError(t, err)
	require.True(t, p.HasDetail())
	require.Empty(t, p.Reviews)
}

func TestClient_SubmitReviewPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/products/p%201/review", r.URL.EscapedPath())

		var form domain.ReviewForm
		require.NoError(t, json.NewDecoder(r.Body).Decode(&form))
		require.Equal(t, 5, form.Rating)
		require.NotNil(t, form.ReviewImages)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithTokenSource(staticToken("tok")))
	err := c.SubmitReview(context.Background(), "p 1", domain.ReviewForm{Rating: 5, ReviewText: "great", Size: domain.SizeM})
	require.NoError(t, err)
}
