package app

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/handler"
	"github.com/xenking/storefront/pkg/health"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

// routes is everything the HTTP stack serves.
type routes struct {
	health   *health.Health
	api      *handler.Handler
	security *handler.SecurityHandler
}

// newHTTPHandler mounts health probes and the API on one mux and wraps it
// in the middleware chain. The first middleware listed is outermost.
func newHTTPHandler(
	ctx context.Context,
	lg *zap.Logger,
	cfg *Config,
	rt routes,
	tp trace.TracerProvider,
	mp metric.MeterProvider,
) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/livez", rt.health.LiveEndpoint)
	mux.HandleFunc("/readyz", rt.health.ReadyEndpoint)
	mux.Handle("/api/", rt.api.Router(rt.security))

	return httpmiddleware.Wrap(mux,
		httpmiddleware.InjectLogger(lg),
		httpmiddleware.Recovery(),
		httpmiddleware.RequestID(),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			AllowOrigins:     cfg.CORS.Origins,
			AllowHeaders:     []string{"Content-Type", "Authorization", handler.APIKeyHeader},
			ExposeHeaders:    []string{httpmiddleware.RequestIDHeader},
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           86400,
		}),
		httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
			Max:    cfg.RateLimit.Max,
			Window: cfg.RateLimit.Window,
		}),
		httpmiddleware.Instrument("storefront-api", tp, mp),
	)
}
