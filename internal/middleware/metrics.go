package middleware

import (
	"strconv"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/fastygo/clientevip/internal/metrics"
)

// Instrument records request count and latency under the route pattern rather than
// the raw path, so ids and codes do not explode label cardinality.
func Instrument(route string, next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		started := time.Now()
		next(ctx)
		metrics.RecordHTTPRequest(
			string(ctx.Method()),
			route,
			strconv.Itoa(ctx.Response.StatusCode()),
			time.Since(started).Seconds(),
		)
	}
}
