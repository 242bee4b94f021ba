// Package handler contains the Echo HTTP handlers for the gateway.
//
// Everything here is unauthenticated at the transport level: the SDKs
// embed on third-party apps and sites, so admission happens per batch via
// tokens and signatures, never via sessions.
package handler

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/xray-tech/xorc-gateway/internal/apperr"
	"github.com/xray-tech/xorc-gateway/internal/cors"
	"github.com/xray-tech/xorc-gateway/internal/metrics"
	"github.com/xray-tech/xorc-gateway/internal/service"
)

// SDKHandler serves the ingest endpoint plus the operational routes.
type SDKHandler struct {
	service *service.IngestService
	cors    *cors.Policy
	logger  *zap.Logger
}

// NewSDKHandler constructs an SDKHandler.
func NewSDKHandler(svc *service.IngestService, corsPolicy *cors.Policy, logger *zap.Logger) *SDKHandler {
	return &SDKHandler{service: svc, cors: corsPolicy, logger: logger}
}

// Register mounts the routes. ingestPath is configurable and defaults
// to "/".
func (h *SDKHandler) Register(e *echo.Echo, ingestPath string) {
	e.POST(ingestPath, h.IngestEvents)
	e.OPTIONS("/*", h.Preflight)
	if ingestPath != "/" {
		e.OPTIONS(ingestPath, h.Preflight)
	}
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/watchdog", echo.WrapHandler(promhttp.Handler()))
}

// IngestEvents accepts one SDK event batch. Terminal failures map to
// fixed status/body pairs; the CORS headers for a valid web origin are
// attached to failures too so browsers can read the status.
func (h *SDKHandler) IngestEvents(c echo.Context) error {
	ctx, span := otel.Tracer("gateway").Start(c.Request().Context(), "sdk.IngestEvents")
	defer span.End()

	start := time.Now()

	raw, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return h.fail(c, start, "events", apperr.Internal("reading request body: "+err.Error()))
	}

	evctx, resp, err := h.service.Ingest(ctx, c.Request().Header, raw)
	if evctx != nil {
		h.cors.Apply(c.Response().Header(), evctx)
	}
	if err != nil {
		ge := apperr.From(err)
		fields := append(evctx.ZapFields(), zap.Int("status", ge.Status()), zap.Error(ge))
		if ge.Kind == apperr.KindInternal || ge.Kind == apperr.KindServiceUnavailable {
			h.logger.Error("batch rejected", fields...)
		} else {
			h.logger.Warn("batch rejected", fields...)
		}
		return h.fail(c, start, "events", ge)
	}

	h.observe(start, "events", http.StatusOK)
	return c.JSON(http.StatusOK, resp)
}

// Preflight answers the browser's OPTIONS probe with the wildcard CORS
// headers. No app identity exists yet at this point.
func (h *SDKHandler) Preflight(c echo.Context) error {
	h.cors.ApplyWildcard(c.Response().Header())
	h.observe(time.Now(), "preflight", http.StatusOK)
	return c.NoContent(http.StatusOK)
}

func (h *SDKHandler) fail(c echo.Context, start time.Time, endpoint string, ge *apperr.Error) error {
	h.observe(start, endpoint, ge.Status())
	return c.String(ge.Status(), ge.Body())
}

func (h *SDKHandler) observe(start time.Time, endpoint string, status int) {
	metrics.ResponseTimes.Observe(time.Since(start).Seconds())
	metrics.Requests.WithLabelValues(strconv.Itoa(status), endpoint).Inc()
}
