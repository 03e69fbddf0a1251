package handler

import (
	"net/http"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/clientevip/api/transport"
	"github.com/fastygo/clientevip/pkg/httpcontext"
	"github.com/fastygo/clientevip/repository"
	redemptionUC "github.com/fastygo/clientevip/usecase/redemption"
)

type RedemptionHandler struct {
	baseHandler
	uc *redemptionUC.UseCase
}

func NewRedemptionHandler(uc *redemptionUC.UseCase, adapter *httpcontext.Adapter, logger *zap.Logger) *RedemptionHandler {
	return &RedemptionHandler{
		baseHandler: newBaseHandler(adapter, logger),
		uc:          uc,
	}
}

// @Summary Validate a scanned code against a benefit
// @Tags redemptions
// @Router /api/v1/redemptions [post]
func (h *RedemptionHandler) Authorize(ctx *fasthttp.RequestCtx) {
	p, ok := h.principal(ctx)
	if !ok {
		return
	}
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	var req transport.RedemptionRequest
	if err := h.decode(ctx, &req); err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}

	red, err := h.uc.AuthorizeFor(stdCtx, p, req.Code, req.BenefitID)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusCreated, red)
}

// @Summary List redemptions visible to the caller
// @Tags redemptions
// @Router /api/v1/redemptions [get]
func (h *RedemptionHandler) List(ctx *fasthttp.RequestCtx) {
	p, ok := h.principal(ctx)
	if !ok {
		return
	}
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	args := ctx.QueryArgs()
	limit, offset := pageArgs(ctx)
	filter := repository.RedemptionFilter{
		MembershipID: string(args.Peek("membership_id")),
		PartnerID:    string(args.Peek("partner_id")),
		StoreID:      string(args.Peek("store_id")),
		Limit:        limit,
		Offset:       offset,
	}

	items, err := h.uc.List(stdCtx, p, filter)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondList(ctx, items, len(items), limit, offset)
}

// @Summary Redemption history of one membership
// @Tags redemptions
// @Router /api/v1/memberships/{ref}/redemptions [get]
func (h *RedemptionHandler) History(ctx *fasthttp.RequestCtx) {
	p, ok := h.principal(ctx)
	if !ok {
		return
	}
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	limit, offset := pageArgs(ctx)
	items, err := h.uc.ListHistory(stdCtx, p, pathParam(ctx, "ref"), limit, offset)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondList(ctx, items, len(items), limit, offset)
}
