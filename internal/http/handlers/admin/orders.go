package admin

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"pehlione.com/payrecon/internal/http/middleware"
	"pehlione.com/payrecon/internal/http/render"
	"pehlione.com/payrecon/internal/http/validation"
	"pehlione.com/payrecon/internal/modules/cart"
	"pehlione.com/payrecon/internal/modules/orders"
	"pehlione.com/payrecon/internal/modules/outbox"
	"pehlione.com/payrecon/internal/modules/payments"
)

const pageSize = 30

type OrdersHandler struct {
	DB        *gorm.DB
	PaySvc    *payments.Service
	Resolver  *payments.Resolver
	Guard     *payments.Guard
	RefundSvc *payments.RefundService
	Carts     *cart.Sync
}

func NewOrdersHandler(db *gorm.DB, pay *payments.Service, resolver *payments.Resolver, guard *payments.Guard, refunds *payments.RefundService, carts *cart.Sync) *OrdersHandler {
	return &OrdersHandler{DB: db, PaySvc: pay, Resolver: resolver, Guard: guard, RefundSvc: refunds, Carts: carts}
}

// GET /admin/orders?status=&payment_status=&page=
func (h *OrdersHandler) List(c *gin.Context) {
	page := parseInt(c.Query("page"), 1)
	res, err := orders.NewRepo(h.DB).List(c.Request.Context(), orders.ListParams{
		Status:        orders.Status(strings.TrimSpace(c.Query("status"))),
		PaymentStatus: orders.PaymentStatus(strings.TrimSpace(c.Query("payment_status"))),
		Page:          page,
		PageSize:      pageSize,
	})
	if err != nil {
		render.Fail(c, err)
		return
	}

	items := make([]gin.H, 0, len(res.Items))
	for _, o := range res.Items {
		items = append(items, orderJSON(o))
	}
	c.JSON(http.StatusOK, gin.H{
		"items":       items,
		"page":        page,
		"total":       res.Total,
		"total_pages": pagesFromTotal(res.Total, pageSize),
	})
}

// GET /admin/orders/:ref/payment
// Stored state only; the gateway is not contacted.
func (h *OrdersHandler) Payment(c *gin.Context) {
	ctx := c.Request.Context()
	repo := orders.NewRepo(h.DB)

	o, err := repo.GetWithItems(ctx, c.Param("ref"))
	if err != nil {
		render.Fail(c, err)
		return
	}
	attempts, err := h.PaySvc.Attempts(ctx, o.ID)
	if err != nil {
		render.Fail(c, err)
		return
	}
	history, err := repo.History(ctx, o.ID)
	if err != nil {
		render.Fail(c, err)
		return
	}
	linked, err := h.Carts.Lookup(ctx, h.DB, o.ID)
	if err != nil {
		render.Fail(c, err)
		return
	}
	events, err := outbox.NewStore(h.DB).ForAggregate(ctx, o.ID)
	if err != nil {
		render.Fail(c, err)
		return
	}

	out := gin.H{"order": orderJSON(o)}

	items := make([]gin.H, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, gin.H{
			"product_id": it.ProductID,
			"variant_id": it.VariantID,
			"sku":        it.SKU,
			"quantity":   it.Quantity,
		})
	}
	out["items"] = items

	pays := make([]gin.H, 0, len(attempts))
	for _, p := range attempts {
		pays = append(pays, gin.H{
			"id":             p.ID,
			"attempt":        p.Attempt,
			"provider":       p.Provider,
			"status":         p.Status,
			"amount_cents":   p.AmountCents,
			"gateway_txn_id": p.GatewayTxnID,
			"error_message":  p.ErrorMessage,
			"created_at":     p.CreatedAt,
			"updated_at":     p.UpdatedAt,
		})
	}
	out["attempts"] = pays

	hist := make([]gin.H, 0, len(history))
	for _, e := range history {
		hist = append(hist, gin.H{
			"actor":        e.Actor,
			"action":       e.Action,
			"from_status":  e.FromStatus,
			"to_status":    e.ToStatus,
			"from_payment": e.FromPayment,
			"to_payment":   e.ToPayment,
			"note":         e.Note,
			"at":           e.CreatedAt,
		})
	}
	out["history"] = hist

	if linked != nil {
		out["cart"] = gin.H{"id": linked.ID, "status": linked.Status}
	}

	evs := make([]gin.H, 0, len(events))
	for _, e := range events {
		evs = append(evs, gin.H{
			"type":         e.EventType,
			"attempts":     e.Attempts,
			"published_at": e.PublishedAt,
		})
	}
	out["events"] = evs

	c.JSON(http.StatusOK, out)
}

// POST /admin/orders/:ref/reconcile
func (h *OrdersHandler) Reconcile(c *gin.Context) {
	o, err := h.Resolver.Recheck(c.Request.Context(), c.Param("ref"), middleware.Actor(c))
	if err != nil {
		render.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": orderJSON(o)})
}

type transitionInput struct {
	Action string `json:"action" binding:"required,oneof=process ship deliver"`
	Note   string `json:"note" binding:"max=500"`
}

// POST /admin/orders/:ref/transition
func (h *OrdersHandler) Transition(c *gin.Context) {
	var in transitionInput
	if err := c.ShouldBindJSON(&in); err != nil {
		render.Fail(c, validation.Invalid(err, &in))
		return
	}

	o, err := orders.NewAdminService(h.DB).Transition(c.Request.Context(), orders.TransitionInput{
		OrderRef: c.Param("ref"),
		Actor:    middleware.Actor(c),
		Action:   in.Action,
		Note:     strings.TrimSpace(in.Note),
	})
	if err != nil {
		render.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": orderJSON(o)})
}

type reasonInput struct {
	Reason string `json:"reason" binding:"max=250"`
}

// POST /admin/orders/:ref/refund
func (h *OrdersHandler) Refund(c *gin.Context) {
	var in reasonInput
	if err := bindOptional(c, &in); err != nil {
		render.Fail(c, validation.Invalid(err, &in))
		return
	}

	res, err := h.RefundSvc.RefundOrder(c.Request.Context(), payments.RefundOrderInput{
		OrderRef: c.Param("ref"),
		Actor:    middleware.Actor(c),
		Reason:   strings.TrimSpace(in.Reason),
	})
	if err != nil {
		render.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"refund_id":    res.RefundID,
		"status":       res.Status,
		"amount_cents": res.AmountCents,
	})
}

// POST /admin/orders/:ref/cancel
// Declares the payment failed. A paid order is left as is.
func (h *OrdersHandler) Cancel(c *gin.Context) {
	var in reasonInput
	if err := bindOptional(c, &in); err != nil {
		render.Fail(c, validation.Invalid(err, &in))
		return
	}
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		reason = "cancelled by operator"
	}

	ctx := c.Request.Context()
	o, err := orders.NewRepo(h.DB).GetByRef(ctx, c.Param("ref"))
	if err != nil {
		render.Fail(c, err)
		return
	}
	res, err := h.Guard.MarkFailed(ctx, payments.Outcome{
		OrderID: o.ID,
		Path:    payments.PathManual,
		Actor:   middleware.Actor(c),
		Reason:  reason,
	})
	if err != nil {
		render.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"applied": res.Applied, "order": orderJSON(res.Order)})
}

func bindOptional(c *gin.Context, dst any) error {
	if c.Request.ContentLength == 0 {
		return nil
	}
	return c.ShouldBindJSON(dst)
}

func orderJSON(o orders.Order) gin.H {
	return gin.H{
		"id":             o.ID,
		"ref":            o.Ref,
		"currency":       o.Currency,
		"total_cents":    o.TotalCents,
		"payment_status": o.PaymentStatus,
		"status":         o.Status,
		"gateway_txn_id": o.GatewayTxnID,
		"paid_at":        o.PaidAt,
		"cancelled_at":   o.CancelledAt,
		"created_at":     o.CreatedAt,
		"updated_at":     o.UpdatedAt,
	}
}

func parseInt(s string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		return def
	}
	return n
}

func pagesFromTotal(total int64, size int) int {
	if size <= 0 || total <= 0 {
		return 1
	}
	return int((total + int64(size) - 1) / int64(size))
}
