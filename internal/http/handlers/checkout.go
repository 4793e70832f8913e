package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"pehlione.com/payrecon/internal/http/render"
	"pehlione.com/payrecon/internal/http/validation"
	"pehlione.com/payrecon/internal/modules/checkout"
)

type CheckoutHandler struct {
	Svc *checkout.Service
}

func NewCheckoutHandler(svc *checkout.Service) *CheckoutHandler {
	return &CheckoutHandler{Svc: svc}
}

type checkoutInput struct {
	CartID        string `json:"cart_id" binding:"required,uuid"`
	ShippingCents int    `json:"shipping_cents" binding:"gte=0"`
	DiscountCents int    `json:"discount_cents" binding:"gte=0"`
	PaymentMethod string `json:"payment_method" binding:"omitempty,oneof=card wallet bank_transfer"`
}

// POST /api/checkout
func (h *CheckoutHandler) Place(c *gin.Context) {
	var in checkoutInput
	if err := c.ShouldBindJSON(&in); err != nil {
		render.Fail(c, validation.Invalid(err, &in))
		return
	}

	o, err := h.Svc.Place(c.Request.Context(), checkout.PlaceInput{
		CartID:        in.CartID,
		ShippingCents: in.ShippingCents,
		DiscountCents: in.DiscountCents,
		PaymentMethod: in.PaymentMethod,
	})
	if err != nil {
		render.Fail(c, err)
		return
	}

	items := make([]gin.H, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, gin.H{
			"sku":              it.SKU,
			"name":             it.ProductName,
			"quantity":         it.Quantity,
			"unit_price_cents": it.UnitPriceCents,
			"line_total_cents": it.LineTotalCents,
		})
	}
	c.JSON(http.StatusCreated, gin.H{
		"order_ref":      o.Ref,
		"currency":       o.Currency,
		"subtotal_cents": o.SubtotalCents,
		"discount_cents": o.DiscountCents,
		"shipping_cents": o.ShippingCents,
		"total_cents":    o.TotalCents,
		"payment_status": o.PaymentStatus,
		"status":         o.Status,
		"items":          items,
	})
}
