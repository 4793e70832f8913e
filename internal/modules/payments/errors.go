package payments

import "errors"

var (
	ErrOrderNotPayable    = errors.New("order not payable")
	ErrAmountMismatch     = errors.New("amount does not match order total")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrAuthenticity       = errors.New("callback authenticity check failed")
	ErrMalformed          = errors.New("callback payload malformed")
	ErrNotRefundable      = errors.New("order not refundable")
	ErrRefundUnsupported  = errors.New("gateway does not support refunds")
)
