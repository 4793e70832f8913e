package render

import (
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"pehlione.com/payrecon/internal/http/middleware"
	"pehlione.com/payrecon/internal/modules/checkout"
	"pehlione.com/payrecon/internal/modules/inventory"
	"pehlione.com/payrecon/internal/modules/orders"
	"pehlione.com/payrecon/internal/modules/payments"
	"pehlione.com/payrecon/internal/shared/apperr"
)

// Fail attaches err to the request after translating domain errors into
// their public form.
func Fail(c *gin.Context, err error) {
	middleware.Fail(c, AppError(err))
}

func AppError(err error) error {
	if _, ok := apperr.As(err); ok {
		return err
	}

	var oos *inventory.OutOfStockError
	switch {
	case errors.As(err, &oos):
		fields := map[string]string{}
		for _, it := range oos.Items {
			fields[it.Key] = fmt.Sprintf("requested %d, available %d", it.Requested, it.Available)
		}
		return &apperr.AppError{Kind: apperr.Conflict, PublicMsg: "Insufficient stock.", Fields: fields, Err: err}

	case errors.Is(err, orders.ErrNotFound):
		return apperr.NotFoundErr("Order not found.")
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apperr.NotFoundErr("Not found.")

	case errors.Is(err, payments.ErrAmountMismatch):
		return apperr.InvalidErr("Amount does not match the order total.", map[string]string{"amount_cents": "must equal the order total"})
	case errors.Is(err, payments.ErrAuthenticity):
		return apperr.InvalidErr("Callback signature invalid.", nil)
	case errors.Is(err, payments.ErrMalformed):
		return apperr.InvalidErr("Callback payload malformed.", nil)
	case errors.Is(err, payments.ErrOrderNotPayable):
		return apperr.ConflictErr("Order is not payable.", err)
	case errors.Is(err, payments.ErrNotRefundable),
		errors.Is(err, payments.ErrNoSucceededPayment):
		return apperr.ConflictErr("Order is not refundable.", err)
	case errors.Is(err, payments.ErrRefundUnsupported):
		return apperr.ConflictErr("The payment gateway does not support refunds.", err)
	case errors.Is(err, payments.ErrGatewayUnavailable):
		return apperr.UnavailableErr("Payment gateway unavailable.", err)

	case errors.Is(err, orders.ErrInvalidTransition),
		errors.Is(err, orders.ErrNotActionable):
		return apperr.ConflictErr("Order status does not allow this action.", err)
	case errors.Is(err, orders.ErrConcurrentUpdate):
		return apperr.ConflictErr("Order was changed concurrently, retry.", err)

	case errors.Is(err, checkout.ErrCartEmpty):
		return apperr.InvalidErr("Cart is empty.", nil)
	case errors.Is(err, checkout.ErrCurrencyMismatch):
		return apperr.InvalidErr("Cart mixes currencies.", nil)
	case errors.Is(err, checkout.ErrInvalidAmounts):
		return apperr.InvalidErr("Invalid shipping or discount amount.", nil)
	case errors.Is(err, checkout.ErrInvalidQuantity),
		errors.Is(err, inventory.ErrInvalidQuantity):
		return apperr.InvalidErr("Item quantity must be at least 1.", nil)
	case errors.Is(err, checkout.ErrCartNotActive):
		return apperr.ConflictErr("Cart is already checked out.", err)
	case errors.Is(err, checkout.ErrProductUnavailable):
		return apperr.ConflictErr("A product in the cart is unavailable.", err)
	}
	return apperr.Wrap(err)
}
