package handler

import (
	"net/http"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/clientevip/api/transport"
	"github.com/fastygo/clientevip/domain"
	"github.com/fastygo/clientevip/pkg/httpcontext"
	"github.com/fastygo/clientevip/repository"
	membershipUC "github.com/fastygo/clientevip/usecase/membership"
)

// membershipView adds the redeemability flag terminals display next to the status.
type membershipView struct {
	*domain.Membership
	Eligible bool `json:"eligible"`
}

func viewOf(m *domain.Membership) membershipView {
	return membershipView{Membership: m, Eligible: m.Status.Eligible()}
}

type MembershipHandler struct {
	baseHandler
	uc *membershipUC.UseCase
}

func NewMembershipHandler(uc *membershipUC.UseCase, adapter *httpcontext.Adapter, logger *zap.Logger) *MembershipHandler {
	return &MembershipHandler{
		baseHandler: newBaseHandler(adapter, logger),
		uc:          uc,
	}
}

// @Summary Register a VIP membership
// @Tags memberships
// @Router /api/v1/memberships [post]
func (h *MembershipHandler) Create(ctx *fasthttp.RequestCtx) {
	p, ok := h.principal(ctx)
	if !ok {
		return
	}
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	var req transport.CreateMembershipRequest
	if err := h.decode(ctx, &req); err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}

	in := membershipUC.CreateInput{
		ClientName:  req.ClientName,
		ContactInfo: req.ContactInfo,
		StoreID:     req.StoreID,
	}
	if req.Vehicle != nil {
		v := vehicleOf(*req.Vehicle)
		in.Vehicle = &v
	}

	m, err := h.uc.Create(stdCtx, p, in)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusCreated, viewOf(m))
}

// @Summary List memberships visible to the caller
// @Tags memberships
// @Router /api/v1/memberships [get]
func (h *MembershipHandler) List(ctx *fasthttp.RequestCtx) {
	p, ok := h.principal(ctx)
	if !ok {
		return
	}
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	limit, offset := pageArgs(ctx)
	filter := repository.MembershipFilter{
		StoreID: string(ctx.QueryArgs().Peek("store_id")),
		Status:  domain.Status(ctx.QueryArgs().Peek("status")),
		Limit:   limit,
		Offset:  offset,
	}

	items, err := h.uc.List(stdCtx, p, filter)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondList(ctx, items, len(items), limit, offset)
}

// @Summary Look up a membership by id or scanned code
// @Tags memberships
// @Router /api/v1/memberships/{ref} [get]
func (h *MembershipHandler) Get(ctx *fasthttp.RequestCtx) {
	p, ok := h.principal(ctx)
	if !ok {
		return
	}
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	m, err := h.uc.Get(stdCtx, p, pathParam(ctx, "ref"))
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, viewOf(m))
}

// @Summary Renew a membership
// @Tags memberships
// @Router /api/v1/memberships/{ref}/renew [post]
func (h *MembershipHandler) Renew(ctx *fasthttp.RequestCtx) {
	p, ok := h.principal(ctx)
	if !ok {
		return
	}
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	var req transport.RenewRequest
	if err := h.decode(ctx, &req); err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}

	m, err := h.uc.Renew(stdCtx, p, pathParam(ctx, "ref"), req.ValidUntil)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, viewOf(m))
}

// @Summary Cancel a membership
// @Tags memberships
// @Router /api/v1/memberships/{ref}/cancel [post]
func (h *MembershipHandler) Cancel(ctx *fasthttp.RequestCtx) {
	p, ok := h.principal(ctx)
	if !ok {
		return
	}
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	m, err := h.uc.Cancel(stdCtx, p, pathParam(ctx, "ref"))
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, viewOf(m))
}

// @Summary Issue or replace the printed card code
// @Tags memberships
// @Router /api/v1/memberships/{ref}/physical-code [post]
func (h *MembershipHandler) IssuePhysicalCode(ctx *fasthttp.RequestCtx) {
	p, ok := h.principal(ctx)
	if !ok {
		return
	}
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	m, err := h.uc.IssuePhysicalCode(stdCtx, p, pathParam(ctx, "ref"))
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusCreated, viewOf(m))
}

// @Summary Record a vehicle purchase
// @Tags memberships
// @Router /api/v1/memberships/{ref}/vehicles [post]
func (h *MembershipHandler) AddVehicle(ctx *fasthttp.RequestCtx) {
	p, ok := h.principal(ctx)
	if !ok {
		return
	}
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	var req transport.VehicleRequest
	if err := h.decode(ctx, &req); err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}

	m, err := h.uc.AddVehicle(stdCtx, p, pathParam(ctx, "ref"), vehicleOf(req))
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusCreated, viewOf(m))
}

func vehicleOf(req transport.VehicleRequest) domain.Vehicle {
	return domain.Vehicle{
		Brand:        req.Brand,
		Model:        req.Model,
		Year:         req.Year,
		Plate:        req.Plate,
		PurchaseDate: req.PurchaseDate,
	}
}
