package orders

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type AdminService struct {
	db *gorm.DB
}

func NewAdminService(db *gorm.DB) *AdminService { return &AdminService{db: db} }

type TransitionInput struct {
	OrderRef string
	Actor    string
	Action   string // process|ship|deliver
	Note     string
}

// Transition moves a paid order along the fulfilment track. The write is
// conditional on the status read a moment earlier, so two admins acting at
// once cannot both win.
func (s *AdminService) Transition(ctx context.Context, in TransitionInput) (Order, error) {
	if in.OrderRef == "" || in.Actor == "" || in.Action == "" {
		return Order{}, ErrNotActionable
	}

	var out Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		o, err := getBy(ctx, tx, "ref = ?", in.OrderRef)
		if err != nil {
			return err
		}
		if o.PaymentStatus != PaymentPaid {
			return ErrNotActionable
		}

		from := o.Status
		to, err := nextStatus(from, in.Action)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		res := tx.WithContext(ctx).
			Model(&Order{}).
			Where("id = ? AND status = ?", o.ID, string(from)).
			Updates(map[string]any{"status": string(to), "updated_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConcurrentUpdate
		}

		note := in.Note
		if err := AppendEvent(ctx, tx, OrderEvent{
			OrderID:     o.ID,
			Actor:       in.Actor,
			Action:      in.Action,
			FromStatus:  from,
			ToStatus:    to,
			FromPayment: o.PaymentStatus,
			ToPayment:   o.PaymentStatus,
			Note:        &note,
			CreatedAt:   now,
		}); err != nil {
			return err
		}

		o.Status = to
		o.UpdatedAt = now
		out = o
		return nil
	})
	return out, err
}

func nextStatus(from Status, action string) (Status, error) {
	switch action {
	case "process":
		if from == StatusConfirmed {
			return StatusProcessing, nil
		}
	case "ship":
		if from == StatusProcessing {
			return StatusShipped, nil
		}
	case "deliver":
		if from == StatusShipped {
			return StatusDelivered, nil
		}
	}
	return "", ErrInvalidTransition
}
