package handler

import (
	"net/http"

	"github.com/rs-labo46/storefront/internal/usecase"

	"github.com/labstack/echo/v4"
)

type PaymentHandler struct {
	uc *usecase.PaymentUsecase
}

func NewPaymentHandler(uc *usecase.PaymentUsecase) *PaymentHandler {
	return &PaymentHandler{uc: uc}
}

func (h *PaymentHandler) RegisterRoutes(e *echo.Echo) {
	e.POST("/api/payments", h.create)
	e.GET("/api/payments/:id", h.detail)
	e.GET("/api/payments/order/:orderId", h.listByOrder)
}

// 画面遷移型は format=html なら支払いページへリダイレクトする。それ以外はJSON。
func (h *PaymentHandler) create(c echo.Context) error {
	var req usecase.ProcessPaymentInput
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	out, err := h.uc.ProcessPayment(c.Request().Context(), req)
	if err != nil {
		return writeError(c, err)
	}
	if out.RedirectURL != "" && acceptsHTML(c) {
		return c.Redirect(http.StatusFound, out.RedirectURL)
	}
	return c.JSON(http.StatusOK, out)
}

func acceptsHTML(c echo.Context) bool {
	return c.QueryParam("format") == "html"
}

func (h *PaymentHandler) detail(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	p, err := h.uc.GetPayment(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *PaymentHandler) listByOrder(c echo.Context) error {
	orderID, ok := paramID(c, "orderId")
	if !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid order id"})
	}

	ps, err := h.uc.ListOrderPayments(c.Request().Context(), orderID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, ps)
}
