package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nat-prohmpiriya/fipe-garage/pkg/logger"
	"github.com/nat-prohmpiriya/fipe-garage/pkg/response"
	"go.uber.org/zap"
)

// Error bodies returned for any failed lookup
const (
	ErrMsgBrands = "Erro ao buscar marcas"
	ErrMsgModels = "Erro ao buscar modelos"
	ErrMsgYears  = "Erro ao buscar anos"
	ErrMsgPrice  = "Erro ao buscar preço"
)

// Lookup is the FIPE query surface used by the handler
type Lookup interface {
	Brands(ctx context.Context, vehicleType string) (json.RawMessage, error)
	Models(ctx context.Context, vehicleType, brand string) (json.RawMessage, error)
	Years(ctx context.Context, vehicleType, brand, model string) (json.RawMessage, error)
	Price(ctx context.Context, vehicleType, brand, model, year string) (json.RawMessage, error)
}

// FipeHandler relays FIPE lookups. Every failure, whatever its cause,
// becomes a 500 with a fixed message.
type FipeHandler struct {
	lookup Lookup
	log    *logger.Logger
}

// NewFipeHandler creates a new FipeHandler
func NewFipeHandler(lookup Lookup, log *logger.Logger) *FipeHandler {
	if log == nil {
		log = logger.Get()
	}
	return &FipeHandler{lookup: lookup, log: log}
}

// RegisterRoutes mounts the lookup routes under /fipe and /api/fipe
func (h *FipeHandler) RegisterRoutes(r gin.IRouter) {
	for _, prefix := range []string{"/fipe", "/api/fipe"} {
		g := r.Group(prefix)
		g.GET("/brands/:type", h.Brands)
		g.GET("/models/:type/:brand", h.Models)
		g.GET("/years/:type/:brand/:model", h.Years)
		g.GET("/price/:type/:brand/:model/:year", h.Price)
	}
}

// Brands handles GET /fipe/brands/:type
func (h *FipeHandler) Brands(c *gin.Context) {
	body, err := h.lookup.Brands(c.Request.Context(), c.Param("type"))
	h.relay(c, body, err, ErrMsgBrands)
}

// Models handles GET /fipe/models/:type/:brand
func (h *FipeHandler) Models(c *gin.Context) {
	body, err := h.lookup.Models(c.Request.Context(), c.Param("type"), c.Param("brand"))
	h.relay(c, body, err, ErrMsgModels)
}

// Years handles GET /fipe/years/:type/:brand/:model
func (h *FipeHandler) Years(c *gin.Context) {
	h.log.Info("Fetching FIPE years",
		zap.String("type", c.Param("type")),
		zap.String("brand", c.Param("brand")),
		zap.String("model", c.Param("model")))

	body, err := h.lookup.Years(c.Request.Context(), c.Param("type"), c.Param("brand"), c.Param("model"))
	h.relay(c, body, err, ErrMsgYears)
}

// Price handles GET /fipe/price/:type/:brand/:model/:year
func (h *FipeHandler) Price(c *gin.Context) {
	body, err := h.lookup.Price(c.Request.Context(), c.Param("type"), c.Param("brand"), c.Param("model"), c.Param("year"))
	h.relay(c, body, err, ErrMsgPrice)
}

func (h *FipeHandler) relay(c *gin.Context, body json.RawMessage, err error, failure string) {
	if err != nil {
		h.log.Error(failure, zap.String("path", c.Request.URL.Path), zap.Error(err))
		_ = c.Error(err)
		response.Message(c, http.StatusInternalServerError, failure)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", body)
}
