package handlers

import (
	"context"

	"github.com/fasthttp/router"
	xhttp "github.com/stayware/message-etl/pkg/http"
)

type HealthService interface {
	Get(ctx context.Context) error
}

type HealthHandler struct {
	healthService HealthService
}

func RegisterHealthRoutes(e *router.Group, h *HealthHandler) {
	e.GET("/health", h.GetHealth)
}

func NewHealthHandler(healthService HealthService) *HealthHandler {
	return &HealthHandler{
		healthService: healthService,
	}
}

func (h *HealthHandler) GetHealth(ctx *xhttp.RequestCtx) {
	if err := h.healthService.Get(ctx); err != nil {
		writeError(ctx, 503, "unhealthy")
		return
	}
	ctx.Response.SetBodyString("success")
}
