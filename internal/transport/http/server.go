// Package http builds the echo servers of the web tier and the agent container.
package http

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/aws-samples/sample-ai-agent-accelerator/internal/transport/http/runtime"
	"github.com/aws-samples/sample-ai-agent-accelerator/internal/transport/http/web"
)

// Paths polled by load balancers and the runtime; kept out of the access log
// and the traces.
var quietPaths = map[string]bool{
	"/health":  true,
	"/ping":    true,
	"/metrics": true,
}

// NewWebServer creates the web tier server serving the chat UI and JSON API.
func NewWebServer(h *web.Handler, templates *web.Templates) *echo.Echo {
	e := newServer("web")
	e.Renderer = templates
	h.RegisterRoutes(e)
	return e
}

// NewRuntimeServer creates the agent container server.
func NewRuntimeServer(h *runtime.Handler) *echo.Echo {
	e := newServer("agent")
	h.RegisterRoutes(e)
	return e
}

func newServer(operation string) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(echo.WrapMiddleware(otelhttp.NewMiddleware(operation,
		otelhttp.WithFilter(func(r *http.Request) bool { return !quietPaths[r.URL.Path] }),
	)))
	e.Use(middleware.RequestID())
	e.Use(contextLogger())
	e.Use(requestLogger())
	e.Use(middleware.Recover())

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	return e
}

// contextLogger attaches a logger carrying the request id to the request context.
func contextLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			id := c.Response().Header().Get(echo.HeaderXRequestID)
			lc := log.Logger.With().Str("request_id", id)
			if sc := trace.SpanContextFromContext(req.Context()); sc.IsValid() {
				lc = lc.Str("trace_id", sc.TraceID().String())
			}
			logger := lc.Logger()
			c.SetRequest(req.WithContext(logger.WithContext(req.Context())))
			return next(c)
		}
	}
}

func requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			return quietPaths[c.Path()]
		},
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			var event *zerolog.Event
			if v.Error != nil || v.Status >= 500 {
				event = log.Ctx(c.Request().Context()).Error().Err(v.Error)
			} else {
				event = log.Ctx(c.Request().Context()).Info()
			}
			event.
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("request")
			return nil
		},
	})
}
