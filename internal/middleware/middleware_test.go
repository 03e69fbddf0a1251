package middleware

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"github.com/fastygo/clientevip/domain"
	"github.com/fastygo/clientevip/pkg/httpcontext"
	"github.com/fastygo/clientevip/pkg/token"
)

func newIssuer(t *testing.T) *token.Issuer {
	t.Helper()
	issuer, err := token.NewIssuer("test-secret", "clientevip", time.Hour)
	require.NoError(t, err)
	return issuer
}

func TestJWTAuthStoresPrincipal(t *testing.T) {
	issuer := newIssuer(t)
	want := domain.Principal{ID: "acc-1", Role: domain.RoleLojista, StoreID: "store-1"}
	raw, _, err := issuer.Sign(want)
	require.NoError(t, err)

	var got domain.Principal
	handler := JWTAuth(issuer, nil)(func(ctx *fasthttp.RequestCtx) {
		got, _ = httpcontext.Principal(ctx)
		ctx.SetStatusCode(fasthttp.StatusNoContent)
	})

	var ctx fasthttp.RequestCtx
	ctx.Request.Header.Set("Authorization", "Bearer "+raw)
	handler(&ctx)

	assert.Equal(t, fasthttp.StatusNoContent, ctx.Response.StatusCode())
	assert.Equal(t, want, got)
}

func TestJWTAuthRejects(t *testing.T) {
	issuer := newIssuer(t)
	other, err := token.NewIssuer("other-secret", "clientevip", time.Hour)
	require.NoError(t, err)
	foreign, _, err := other.Sign(domain.Principal{ID: "acc-1", Role: domain.RoleAdmin})
	require.NoError(t, err)

	cases := map[string]string{
		"missing": "",
		"garbage": "Bearer not-a-token",
		"foreign": "Bearer " + foreign,
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			called := false
			handler := JWTAuth(issuer, nil)(func(ctx *fasthttp.RequestCtx) { called = true })

			var ctx fasthttp.RequestCtx
			if header != "" {
				ctx.Request.Header.Set("Authorization", header)
			}
			handler(&ctx)

			assert.False(t, called)
			assert.Equal(t, fasthttp.StatusUnauthorized, ctx.Response.StatusCode())
			assert.Contains(t, string(ctx.Response.Body()), string(domain.KindUnauthorized))
		})
	}
}

func TestRateLimiterPerPrincipal(t *testing.T) {
	rl := NewRateLimiter(1, 2, nil)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"), "buckets are independent")

	now = now.Add(time.Second)
	assert.True(t, rl.Allow("a"), "one token refills per second")
}

func TestRateLimiterMiddleware(t *testing.T) {
	rl := NewRateLimiter(1, 1, nil)
	handler := rl.Middleware(func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusCreated)
	})

	call := func() *fasthttp.RequestCtx {
		var ctx fasthttp.RequestCtx
		httpcontext.SetPrincipal(&ctx, domain.Principal{ID: "partner-1", Role: domain.RoleParceiro})
		handler(&ctx)
		return &ctx
	}

	assert.Equal(t, fasthttp.StatusCreated, call().Response.StatusCode())
	limited := call()
	assert.Equal(t, fasthttp.StatusTooManyRequests, limited.Response.StatusCode())
	assert.Equal(t, "1", string(limited.Response.Header.Peek("Retry-After")))
}

func TestRateLimiterSweepsIdleBuckets(t *testing.T) {
	rl := NewRateLimiter(1, 1, nil)
	now := time.Now()
	rl.now = func() time.Time { return now }
	rl.Allow("stale")

	now = now.Add(2 * limiterIdleTTL)
	rl.sweep(now)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.Empty(t, rl.limiters)
}
