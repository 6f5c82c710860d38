package handler

import (
	"net/http"

	"github.com/rs-labo46/storefront/internal/domain/model"
	"github.com/rs-labo46/storefront/internal/usecase"

	"github.com/labstack/echo/v4"
)

// Alipayからのコールバック
type AlipayHandler struct {
	uc *usecase.PaymentUsecase
}

func NewAlipayHandler(uc *usecase.PaymentUsecase) *AlipayHandler {
	return &AlipayHandler{uc: uc}
}

func (h *AlipayHandler) RegisterRoutes(e *echo.Echo) {
	e.POST("/alipay/notify", h.notify)
	e.GET("/alipay/return", h.returnURL)
	e.GET("/alipay/query/:id", h.query)
}

// 非同期通知。本文は "success" か "fail" だけ（failならAlipayが再送する）。
func (h *AlipayHandler) notify(c echo.Context) error {
	form, err := c.FormParams()
	if err != nil {
		return c.String(http.StatusOK, "fail")
	}
	if h.uc.HandleNotification(c.Request().Context(), model.PaymentMethodAlipay, flatten(form)) {
		return c.String(http.StatusOK, "success")
	}
	return c.String(http.StatusOK, "fail")
}

func (h *AlipayHandler) returnURL(c echo.Context) error {
	out, err := h.uc.ConfirmReturn(c.Request().Context(), model.PaymentMethodAlipay, flatten(c.QueryParams()))
	if err != nil {
		if he, ok := usecase.AsHTTPError(err); ok {
			return c.String(he.Status, he.Message)
		}
		return c.String(http.StatusInternalServerError, "internal error")
	}
	return c.String(http.StatusOK, out.Message)
}

func (h *AlipayHandler) query(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	p, err := h.uc.SyncPaymentStatus(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

// 同じキーが複数あれば先頭を使う
func flatten(v map[string][]string) map[string]string {
	out := make(map[string]string, len(v))
	for k, vs := range v {
		if len(vs) > 0 {
			out[k] = vs[0]
		}
	}
	return out
}
