package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/rs-labo46/storefront/internal/config"
	"github.com/rs-labo46/storefront/internal/middleware"
	"github.com/rs-labo46/storefront/internal/usecase"

	"github.com/labstack/echo/v4"
)

// 在庫更新の入力
type StockUpdateRequest struct {
	Stock  *int64 `json:"stock"`
	Reason string `json:"reason"`
}

type StockCheckResponse struct {
	ProductID int64 `json:"product_id"`
	Quantity  int64 `json:"quantity"`
	Available bool  `json:"available"`
}

type StockHandler struct {
	uc *usecase.StockUsecase
}

func NewStockHandler(uc *usecase.StockUsecase) *StockHandler {
	return &StockHandler{uc: uc}
}

func (h *StockHandler) RegisterRoutes(e *echo.Echo, cfg config.Config) {
	admin := []echo.MiddlewareFunc{middleware.AuthJWT(cfg), middleware.AdminRoleGuard()}

	e.GET("/api/products/:id/stock/check", h.check)
	e.PUT("/api/products/:id/stock/decrease", h.decrease, admin...)
	e.PUT("/api/products/:id/stock/increase", h.increase, admin...)
	e.PUT("/api/products/:id/stock", h.update, admin...)
}

func quantityParam(c echo.Context) (int64, bool) {
	q, err := strconv.ParseInt(c.QueryParam("quantity"), 10, 64)
	if err != nil {
		return 0, false
	}
	return q, true
}

func (h *StockHandler) check(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}
	qty, ok := quantityParam(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid quantity"})
	}

	available, err := h.uc.CheckStock(c.Request().Context(), id, qty)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, StockCheckResponse{ProductID: id, Quantity: qty, Available: available})
}

func (h *StockHandler) decrease(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}
	qty, ok := quantityParam(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid quantity"})
	}

	p, err := h.uc.DecreaseStock(c.Request().Context(), id, qty)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *StockHandler) increase(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}
	qty, ok := quantityParam(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid quantity"})
	}

	p, err := h.uc.IncreaseStock(c.Request().Context(), id, qty)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *StockHandler) update(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	var req StockUpdateRequest
	if err := c.Bind(&req); err != nil || req.Stock == nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = "manual update"
	}

	adminID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	p, err := h.uc.UpdateStock(c.Request().Context(), adminID, id, *req.Stock, reason)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}
