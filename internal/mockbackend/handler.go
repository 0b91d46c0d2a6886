package mockbackend

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/bizmatters/promptlens/internal/models"
)

// Handler exposes Service over HTTP with the inference service's wire contract.
type Handler struct {
	service *Service
}

// NewHandler creates a new stub backend handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts the stub endpoints on r.
func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/health", h.Health)
	r.POST("/reverse", h.Reverse)
}

// Health returns {status, app, environment}.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.Health())
}

// Reverse accepts {"output_text": "..."} and returns a ReverseResponse.
// Validation failures are 422 and rate limited clients get 429, both with a
// string detail.
func (h *Handler) Reverse(c *gin.Context) {
	ctx := otel.GetTextMapPropagator().Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
	started := time.Now()

	var req models.ReverseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, models.ErrorResponse{Detail: models.DetailInvalidRequest})
		return
	}

	if !h.service.AllowRequest(c.ClientIP(), req.OutputText) {
		log.Printf(`{"level":"warn","message":"Rate limit exceeded","client_ip":"%s"}`, c.ClientIP())
		c.JSON(http.StatusTooManyRequests, models.ErrorResponse{Detail: models.DetailRateLimited})
		return
	}

	resp, err := h.service.Reverse(ctx, req.OutputText)
	if err != nil {
		if errors.Is(err, ErrTextTooShort) || errors.Is(err, ErrTextTooLong) {
			c.JSON(http.StatusUnprocessableEntity, models.ErrorResponse{Detail: err.Error()})
			return
		}
		log.Printf(`{"level":"error","message":"Reverse analysis failed","error":"%v"}`, err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Detail: models.DetailReverseFailed})
		return
	}

	log.Printf(`{"level":"info","message":"reverse_processed","request_id":"%s","duration_ms":%d,"cache_hit":%t}`,
		resp.RequestID, time.Since(started).Milliseconds(), resp.Cached)
	c.JSON(http.StatusOK, resp)
}
