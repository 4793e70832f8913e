package inventory

import (
	"errors"
	"fmt"
)

// ErrReleaseFailed marks a release that could not restore a counter. The
// whole transition rolls back and may be retried.
var ErrReleaseFailed = errors.New("inventory release failed")

// ErrInvalidQuantity rejects a line whose quantity is not positive.
var ErrInvalidQuantity = errors.New("invalid line quantity")

type OutOfStockItem struct {
	Key       string
	Requested int
	Available int
}

type OutOfStockError struct {
	Items []OutOfStockItem
}

func (e *OutOfStockError) Error() string {
	if len(e.Items) == 0 {
		return "out of stock"
	}
	it := e.Items[0]
	return fmt.Sprintf("out of stock: item=%s requested=%d available=%d", it.Key, it.Requested, it.Available)
}
