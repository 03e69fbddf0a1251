package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/clientevip/api/transport"
	"github.com/fastygo/clientevip/domain"
	"github.com/fastygo/clientevip/pkg/httpcontext"
	appLogger "github.com/fastygo/clientevip/pkg/logger"
)

const defaultPageSize = 50

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type baseHandler struct {
	adapter *httpcontext.Adapter
	logger  *zap.Logger
}

func newBaseHandler(adapter *httpcontext.Adapter, logger *zap.Logger) baseHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return baseHandler{adapter: adapter, logger: logger}
}

func (h baseHandler) requestContext(ctx *fasthttp.RequestCtx) (context.Context, context.CancelFunc) {
	if h.adapter != nil {
		return h.adapter.Attach(ctx)
	}
	return context.WithCancel(context.Background())
}

// principal returns the authenticated caller or answers 401.
func (h baseHandler) principal(ctx *fasthttp.RequestCtx) (domain.Principal, bool) {
	p, ok := httpcontext.Principal(ctx)
	if !ok {
		h.respondError(ctx, nil, domain.ErrUnauthorized)
		return domain.Principal{}, false
	}
	return p, true
}

// decode parses the JSON body into dst and runs its validate tags.
func (h baseHandler) decode(ctx *fasthttp.RequestCtx, dst interface{}) error {
	if err := json.Unmarshal(ctx.PostBody(), dst); err != nil {
		return domain.Validation("invalid payload", map[string][]string{
			"body": {"Malformed JSON"},
		})
	}
	if err := validate.Struct(dst); err != nil {
		return validationError(err)
	}
	return nil
}

func (h baseHandler) respondJSON(ctx *fasthttp.RequestCtx, status int, payload transport.Envelope) {
	ctx.Response.Header.SetContentType("application/json")
	ctx.SetStatusCode(status)
	body, _ := json.Marshal(payload)
	ctx.SetBody(body)
}

func (h baseHandler) respondSuccess(ctx *fasthttp.RequestCtx, status int, data interface{}) {
	h.respondJSON(ctx, status, transport.NewSuccess(data, nil))
}

func (h baseHandler) respondList(ctx *fasthttp.RequestCtx, data interface{}, count, limit, offset int) {
	h.respondJSON(ctx, http.StatusOK, transport.NewSuccess(data, transport.Page{
		Limit:  limit,
		Offset: offset,
		Count:  count,
	}))
}

func (h baseHandler) respondError(ctx *fasthttp.RequestCtx, stdCtx context.Context, err error) {
	status, code := mapError(err)
	body := transport.ErrorBody{Message: err.Error()}
	var dErr *domain.Error
	if errors.As(err, &dErr) {
		body.Kind = string(dErr.Kind)
		body.Fields = dErr.Fields
	}
	if body.Kind == "" {
		body.Kind = string(domain.KindInternal)
	}
	if status >= http.StatusInternalServerError {
		log := h.logger
		if stdCtx != nil {
			log = appLogger.WithRequestID(stdCtx, h.logger)
		}
		log.Error("request failed",
			zap.ByteString("method", ctx.Method()),
			zap.ByteString("path", ctx.Path()),
			zap.Int("status", status),
			zap.Error(err))
		if status == http.StatusInternalServerError {
			body.Message = "internal error"
		}
	}
	h.respondJSON(ctx, status, transport.NewError(code, body, nil))
}

func mapError(err error) (int, string) {
	switch {
	case domain.IsDomainError(err, domain.ErrCodeUnauthorized):
		return http.StatusUnauthorized, string(domain.ErrCodeUnauthorized)
	case domain.IsDomainError(err, domain.ErrCodeForbidden):
		return http.StatusForbidden, string(domain.ErrCodeForbidden)
	case domain.IsDomainError(err, domain.ErrCodeInvalid):
		return http.StatusBadRequest, string(domain.ErrCodeInvalid)
	case domain.IsDomainError(err, domain.ErrCodeNotFound):
		return http.StatusNotFound, string(domain.ErrCodeNotFound)
	case domain.IsDomainError(err, domain.ErrCodeConflict):
		return http.StatusConflict, string(domain.ErrCodeConflict)
	case domain.IsDomainError(err, domain.ErrCodeUnavailable):
		return http.StatusServiceUnavailable, string(domain.ErrCodeUnavailable)
	default:
		return http.StatusInternalServerError, string(domain.ErrCodeInternal)
	}
}

// validationError turns validator field errors into the per-field problem map.
func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return domain.Validation("invalid payload", nil)
	}
	problems := make(map[string][]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		field := jsonFieldName(fe.Namespace())
		problems[field] = append(problems[field], describe(fe))
	}
	return domain.Validation("invalid payload", problems)
}

func jsonFieldName(namespace string) string {
	if i := strings.IndexByte(namespace, '.'); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required"
	case "email":
		return "Invalid email format"
	case "min", "gte":
		return "Must be at least " + fe.Param()
	case "max", "lte":
		return "Must be at most " + fe.Param()
	default:
		return "Failed " + fe.Tag() + " validation"
	}
}

func parseInt(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	v, err := strconv.Atoi(value)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}

func pageArgs(ctx *fasthttp.RequestCtx) (limit, offset int) {
	args := ctx.QueryArgs()
	return parseInt(string(args.Peek("limit")), defaultPageSize), parseInt(string(args.Peek("offset")), 0)
}

func pathParam(ctx *fasthttp.RequestCtx, name string) string {
	v, _ := ctx.UserValue(name).(string)
	return strings.TrimSpace(v)
}
