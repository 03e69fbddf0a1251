package handler

import (
	"net/http"
	"strconv"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/clientevip/api/transport"
	"github.com/fastygo/clientevip/domain"
	"github.com/fastygo/clientevip/pkg/httpcontext"
	"github.com/fastygo/clientevip/repository"
	benefitUC "github.com/fastygo/clientevip/usecase/benefit"
)

type BenefitHandler struct {
	baseHandler
	uc *benefitUC.UseCase
}

func NewBenefitHandler(uc *benefitUC.UseCase, adapter *httpcontext.Adapter, logger *zap.Logger) *BenefitHandler {
	return &BenefitHandler{
		baseHandler: newBaseHandler(adapter, logger),
		uc:          uc,
	}
}

// @Summary Create an official (partner) benefit
// @Tags benefits
// @Router /api/v1/benefits/official [post]
func (h *BenefitHandler) CreateOfficial(ctx *fasthttp.RequestCtx) {
	p, ok := h.principal(ctx)
	if !ok {
		return
	}
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	var req transport.OfficialBenefitRequest
	if err := h.decode(ctx, &req); err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}

	b, err := h.uc.CreateOfficial(stdCtx, p, req.Name, req.Description, req.PartnerID)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusCreated, b)
}

// @Summary Create a dealership benefit
// @Tags benefits
// @Router /api/v1/benefits/store [post]
func (h *BenefitHandler) CreateStore(ctx *fasthttp.RequestCtx) {
	p, ok := h.principal(ctx)
	if !ok {
		return
	}
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	var req transport.StoreBenefitRequest
	if err := h.decode(ctx, &req); err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}

	b, err := h.uc.CreateStoreBenefit(stdCtx, p, req.Name, req.Description, req.StoreID)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusCreated, b)
}

// @Summary List the benefit catalogue
// @Tags benefits
// @Router /api/v1/benefits [get]
func (h *BenefitHandler) List(ctx *fasthttp.RequestCtx) {
	p, ok := h.principal(ctx)
	if !ok {
		return
	}
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	args := ctx.QueryArgs()
	limit, offset := pageArgs(ctx)
	filter := repository.BenefitFilter{
		Variant:   domain.Variant(args.Peek("variant")),
		PartnerID: string(args.Peek("partner_id")),
		StoreID:   string(args.Peek("store_id")),
		Limit:     limit,
		Offset:    offset,
	}
	if raw := string(args.Peek("active")); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			h.respondError(ctx, stdCtx, domain.Validation("invalid filter", map[string][]string{
				"active": {"Must be true or false"},
			}))
			return
		}
		filter.Active = &active
	}

	items, err := h.uc.List(stdCtx, p, filter)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondList(ctx, items, len(items), limit, offset)
}

// @Summary Enable or disable a benefit
// @Tags benefits
// @Router /api/v1/benefits/{id} [patch]
func (h *BenefitHandler) SetActive(ctx *fasthttp.RequestCtx) {
	p, ok := h.principal(ctx)
	if !ok {
		return
	}
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	var req transport.BenefitPatchRequest
	if err := h.decode(ctx, &req); err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}

	b, err := h.uc.SetActive(stdCtx, p, pathParam(ctx, "id"), *req.Active)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, b)
}

// @Summary Benefits a membership can redeem right now
// @Tags benefits
// @Router /api/v1/memberships/{ref}/benefits [get]
func (h *BenefitHandler) ListForMembership(ctx *fasthttp.RequestCtx) {
	p, ok := h.principal(ctx)
	if !ok {
		return
	}
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	items, err := h.uc.ListEligibleBenefits(stdCtx, p, pathParam(ctx, "ref"))
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondList(ctx, items, len(items), len(items), 0)
}
