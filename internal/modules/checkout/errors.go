package checkout

import "errors"

var (
	ErrCartEmpty          = errors.New("cart is empty")
	ErrCartNotActive      = errors.New("cart is not active")
	ErrCurrencyMismatch   = errors.New("currency mismatch in cart")
	ErrProductUnavailable = errors.New("product unavailable")
	ErrInvalidAmounts     = errors.New("invalid shipping or discount amount")
	ErrInvalidQuantity    = errors.New("invalid item quantity")
)
