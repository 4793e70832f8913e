package orders

// PaymentStatus is the money-side state of an order.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// IsTerminal reports states no gateway signal may move the order out of.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentPaid || s == PaymentRefunded
}

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending:  {PaymentPaid, PaymentFailed},
	PaymentFailed:   {PaymentPending, PaymentPaid},
	PaymentPaid:     {PaymentRefunded},
	PaymentRefunded: nil,
}

// CanTransition reports whether from → to is a legal payment move.
func CanTransition(from, to PaymentStatus) bool {
	for _, s := range paymentTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Status is the fulfilment-side state of an order.
type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

func (s Status) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// Settled reports whether the order needs no further gateway reconciliation:
// the payment reached a terminal state or the order was cancelled.
func (o Order) Settled() bool {
	return o.PaymentStatus.IsTerminal() || o.Status == StatusCancelled
}
