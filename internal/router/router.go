package router

import (
	"github.com/fasthttp/router"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	apiHandler "github.com/fastygo/clientevip/api/handler"
	"github.com/fastygo/clientevip/internal/middleware"
)

type Handlers struct {
	Auth       *apiHandler.AuthHandler
	Membership *apiHandler.MembershipHandler
	Benefit    *apiHandler.BenefitHandler
	Redemption *apiHandler.RedemptionHandler
	Health     *apiHandler.HealthHandler
}

type Options struct {
	// Auth validates bearer tokens on every route except login, health and metrics.
	Auth func(fasthttp.RequestHandler) fasthttp.RequestHandler
	// RedeemLimit throttles redemption attempts per caller. Nil disables it.
	RedeemLimit   func(fasthttp.RequestHandler) fasthttp.RequestHandler
	EnableMetrics bool
}

func New(handlers Handlers, opts Options) *router.Router {
	r := router.New()

	protect := opts.Auth
	handle := func(method, path string, h fasthttp.RequestHandler) {
		r.Handle(method, path, middleware.Instrument(path, h))
	}

	handle(fasthttp.MethodGet, "/health", handlers.Health.Check)
	if opts.EnableMetrics {
		r.GET("/metrics", fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler()))
	}

	v1 := "/api/v1"

	// Auth routes
	handle(fasthttp.MethodPost, v1+"/auth/login", handlers.Auth.Login)
	handle(fasthttp.MethodGet, v1+"/auth/me", protect(handlers.Auth.Me))

	// Memberships
	handle(fasthttp.MethodPost, v1+"/memberships", protect(handlers.Membership.Create))
	handle(fasthttp.MethodGet, v1+"/memberships", protect(handlers.Membership.List))
	handle(fasthttp.MethodGet, v1+"/memberships/{ref}", protect(handlers.Membership.Get))
	handle(fasthttp.MethodPost, v1+"/memberships/{ref}/renew", protect(handlers.Membership.Renew))
	handle(fasthttp.MethodPost, v1+"/memberships/{ref}/cancel", protect(handlers.Membership.Cancel))
	handle(fasthttp.MethodPost, v1+"/memberships/{ref}/physical-code", protect(handlers.Membership.IssuePhysicalCode))
	handle(fasthttp.MethodPost, v1+"/memberships/{ref}/vehicles", protect(handlers.Membership.AddVehicle))
	handle(fasthttp.MethodGet, v1+"/memberships/{ref}/benefits", protect(handlers.Benefit.ListForMembership))
	handle(fasthttp.MethodGet, v1+"/memberships/{ref}/redemptions", protect(handlers.Redemption.History))

	// Benefit catalogue
	handle(fasthttp.MethodPost, v1+"/benefits/official", protect(handlers.Benefit.CreateOfficial))
	handle(fasthttp.MethodPost, v1+"/benefits/store", protect(handlers.Benefit.CreateStore))
	handle(fasthttp.MethodGet, v1+"/benefits", protect(handlers.Benefit.List))
	handle(fasthttp.MethodPatch, v1+"/benefits/{id}", protect(handlers.Benefit.SetActive))

	// Redemptions
	authorize := handlers.Redemption.Authorize
	if opts.RedeemLimit != nil {
		authorize = opts.RedeemLimit(authorize)
	}
	handle(fasthttp.MethodPost, v1+"/redemptions", protect(authorize))
	handle(fasthttp.MethodGet, v1+"/redemptions", protect(handlers.Redemption.List))

	return r
}
