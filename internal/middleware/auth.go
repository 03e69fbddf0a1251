package middleware

import (
	"encoding/json"
	"strings"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/clientevip/api/transport"
	"github.com/fastygo/clientevip/domain"
	"github.com/fastygo/clientevip/pkg/httpcontext"
	"github.com/fastygo/clientevip/pkg/token"
)

// TokenParser validates bearer tokens.
type TokenParser interface {
	Parse(raw string) (*token.Claims, error)
}

// JWTAuth rejects requests without a valid bearer token and stores the caller's
// principal on the request for the handlers.
func JWTAuth(parser TokenParser, logger *zap.Logger) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			tokenString := extractToken(ctx)
			if tokenString == "" {
				reject(ctx, fasthttp.StatusUnauthorized, domain.KindUnauthorized, "missing bearer token")
				return
			}

			claims, err := parser.Parse(tokenString)
			if err != nil {
				logger.Warn("invalid jwt token",
					zap.String("request_id", httpcontext.RequestID(ctx)),
					zap.Error(err))
				reject(ctx, fasthttp.StatusUnauthorized, domain.KindUnauthorized, "invalid token")
				return
			}

			httpcontext.SetPrincipal(ctx, claims.Principal())
			next(ctx)
		}
	}
}

func extractToken(ctx *fasthttp.RequestCtx) string {
	header := strings.TrimSpace(string(ctx.Request.Header.Peek("Authorization")))
	if header == "" {
		return ""
	}
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return header
}

func reject(ctx *fasthttp.RequestCtx, status int, kind domain.Kind, message string) {
	code := string(domain.ErrCodeUnauthorized)
	if status == fasthttp.StatusTooManyRequests {
		code = "RATE_LIMITED"
	}
	body, _ := json.Marshal(transport.NewError(code, transport.ErrorBody{
		Kind:    string(kind),
		Message: message,
	}, nil))
	ctx.Response.Header.SetContentType("application/json")
	ctx.SetStatusCode(status)
	ctx.SetBody(body)
}
