package handlers

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"pehlione.com/payrecon/internal/http/render"
	"pehlione.com/payrecon/internal/http/validation"
	"pehlione.com/payrecon/internal/modules/payments"
)

type PaymentsHandler struct {
	PaySvc   *payments.Service
	Resolver *payments.Resolver
	// ConfirmationURL is the storefront page the customer lands on.
	ConfirmationURL string
}

func NewPaymentsHandler(pay *payments.Service, resolver *payments.Resolver, confirmationURL string) *PaymentsHandler {
	return &PaymentsHandler{PaySvc: pay, Resolver: resolver, ConfirmationURL: confirmationURL}
}

type payInput struct {
	AmountCents    int    `json:"amount_cents" binding:"required,gt=0"`
	IdempotencyKey string `json:"idempotency_key" binding:"omitempty,max=64"`
}

// POST /api/orders/:ref/pay
func (h *PaymentsHandler) Pay(c *gin.Context) {
	var in payInput
	if err := c.ShouldBindJSON(&in); err != nil {
		render.Fail(c, validation.Invalid(err, &in))
		return
	}
	idem := strings.TrimSpace(in.IdempotencyKey)
	if idem == "" {
		idem = strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	}

	res, err := h.PaySvc.Initiate(c.Request.Context(), payments.InitiateInput{
		OrderRef:       c.Param("ref"),
		AmountCents:    in.AmountCents,
		IdempotencyKey: idem,
	})
	if err != nil {
		render.Fail(c, err)
		return
	}

	status := http.StatusCreated
	if res.Idempotent {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{
		"order_ref":    res.OrderRef,
		"payment_id":   res.PaymentID,
		"attempt":      res.Attempt,
		"redirect_url": res.RedirectURL,
		"idempotent":   res.Idempotent,
	})
}

// GET /payments/return?token=..&orderId=..
// Always answers with a redirect to the storefront confirmation page.
func (h *PaymentsHandler) Return(c *gin.Context) {
	res := h.Resolver.Resolve(c.Request.Context(), payments.ResolveInput{
		Token:    c.Query("token"),
		OrderRef: c.Query("orderId"),
	})

	q := url.Values{}
	q.Set("status", string(res.Status))
	if res.OrderRef != "" {
		q.Set("orderId", res.OrderRef)
	}
	sep := "?"
	if strings.Contains(h.ConfirmationURL, "?") {
		sep = "&"
	}
	c.Header("Cache-Control", "no-store")
	c.Redirect(http.StatusFound, h.ConfirmationURL+sep+q.Encode())
}
