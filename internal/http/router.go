package http

import (
	"log/slog"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"pehlione.com/payrecon/internal/http/handlers"
	"pehlione.com/payrecon/internal/http/handlers/admin"
	"pehlione.com/payrecon/internal/http/middleware"
	"pehlione.com/payrecon/internal/modules/cart"
	"pehlione.com/payrecon/internal/modules/checkout"
	"pehlione.com/payrecon/internal/modules/payments"
)

// Deps are the services the router exposes. They are built once in main.
type Deps struct {
	Logger *slog.Logger
	DB     *gorm.DB

	Checkout *checkout.Service
	Payments *payments.Service
	Webhooks *payments.WebhookService
	Resolver *payments.Resolver
	Guard    *payments.Guard
	Refunds  *payments.RefundService
	Carts    *cart.Sync

	// CallbackHeader is the request header the gateway signs callbacks in.
	CallbackHeader  string
	ConfirmationURL string
	AdminToken      string
	CORSOrigins     []string
}

func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(
		middleware.RequestID(),
		middleware.Recovery(d.Logger),
		middleware.Logger(d.Logger),
		middleware.ErrorHandler(d.Logger),
	)
	if len(d.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     d.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Idempotency-Key", middleware.HeaderRequestID},
			ExposeHeaders:    []string{middleware.HeaderRequestID},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	health := &handlers.HealthHandler{DB: d.DB}
	r.GET("/healthz", health.Healthz)

	wh := handlers.NewWebhookHandler(d.Logger, d.Webhooks, d.CallbackHeader)
	r.POST("/webhooks/payment", wh.Handle)

	pay := handlers.NewPaymentsHandler(d.Payments, d.Resolver, d.ConfirmationURL)
	r.GET("/payments/return", pay.Return)

	api := r.Group("/api")
	{
		co := handlers.NewCheckoutHandler(d.Checkout)
		api.POST("/checkout", co.Place)
		api.POST("/orders/:ref/pay", pay.Pay)
	}

	ao := admin.NewOrdersHandler(d.DB, d.Payments, d.Resolver, d.Guard, d.Refunds, d.Carts)
	adm := r.Group("/admin", middleware.RequireAdmin(d.AdminToken))
	{
		adm.GET("/orders", ao.List)
		adm.GET("/orders/:ref/payment", ao.Payment)
		adm.POST("/orders/:ref/reconcile", ao.Reconcile)
		adm.POST("/orders/:ref/transition", ao.Transition)
		adm.POST("/orders/:ref/refund", ao.Refund)
		adm.POST("/orders/:ref/cancel", ao.Cancel)
	}

	return r
}
