package server

import (
	"net/http"

	"github.com/rs-labo46/storefront/internal/config"
	"github.com/rs-labo46/storefront/internal/handler"

	"github.com/labstack/echo/v4"
)

type Handlers struct {
	Product      *handler.ProductHandler
	AdminProduct *handler.AdminProductHandler
	Stock        *handler.StockHandler
	Order        *handler.OrderHandler
	AdminOrder   *handler.AdminOrderHandler
	AuditLog     *handler.AdminAuditLogHandler
	Payment      *handler.PaymentHandler
	Alipay       *handler.AlipayHandler
}

func RegisterRoutes(e *echo.Echo, cfg config.Config, h Handlers) {
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	h.Product.RegisterRoutes(e)
	h.AdminProduct.RegisterRoutes(e, cfg)
	h.Stock.RegisterRoutes(e, cfg)
	h.Order.RegisterRoutes(e, cfg)
	h.AdminOrder.RegisterRoutes(e, cfg)
	h.AuditLog.RegisterRoutes(e, cfg)
	h.Payment.RegisterRoutes(e)
	h.Alipay.RegisterRoutes(e)
}
