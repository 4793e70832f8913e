package orders

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repo struct{ db *gorm.DB }

func NewRepo(db *gorm.DB) *Repo { return &Repo{db: db} }

// DB returns the underlying database connection for direct queries.
func (r *Repo) DB() *gorm.DB { return r.db }

func (r *Repo) GetByRef(ctx context.Context, ref string) (Order, error) {
	return getBy(ctx, r.db, "ref = ?", strings.TrimSpace(ref))
}

func (r *Repo) GetByID(ctx context.Context, id string) (Order, error) {
	return getBy(ctx, r.db, "id = ?", id)
}

// GetInTx reads an order through the caller's transaction.
func GetInTx(ctx context.Context, tx *gorm.DB, id string) (Order, error) {
	return getBy(ctx, tx, "id = ?", id)
}

// GetLatestInTx takes a locking read so a transaction that lost a conditional
// update sees the winner's committed state rather than its own snapshot.
func GetLatestInTx(ctx context.Context, tx *gorm.DB, id string) (Order, error) {
	return getBy(ctx, tx.Clauses(clause.Locking{Strength: "UPDATE"}), "id = ?", id)
}

func getBy(ctx context.Context, db *gorm.DB, where string, arg any) (Order, error) {
	var o Order
	err := db.WithContext(ctx).Where(where, arg).Take(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Order{}, ErrNotFound
	}
	return o, err
}

func ItemsInTx(ctx context.Context, tx *gorm.DB, orderID string) ([]OrderItem, error) {
	var items []OrderItem
	err := tx.WithContext(ctx).Order("id ASC").Find(&items, "order_id = ?", orderID).Error
	return items, err
}

func (r *Repo) GetWithItems(ctx context.Context, ref string) (Order, error) {
	o, err := r.GetByRef(ctx, ref)
	if err != nil {
		return Order{}, err
	}
	o.Items, err = ItemsInTx(ctx, r.db, o.ID)
	return o, err
}

func (r *Repo) History(ctx context.Context, orderID string) ([]OrderEvent, error) {
	var ev []OrderEvent
	err := r.db.WithContext(ctx).
		Order("created_at ASC").
		Find(&ev, "order_id = ?", orderID).Error
	return ev, err
}

type ListParams struct {
	PaymentStatus PaymentStatus
	Status        Status
	Page          int
	PageSize      int
}

type ListResult struct {
	Items []Order
	Total int64
}

func (r *Repo) List(ctx context.Context, in ListParams) (ListResult, error) {
	page := in.Page
	if page < 1 {
		page = 1
	}
	size := in.PageSize
	if size < 1 || size > 100 {
		size = 30
	}

	base := r.db.WithContext(ctx).Model(&Order{})
	if in.PaymentStatus != "" {
		base = base.Where("payment_status = ?", string(in.PaymentStatus))
	}
	if in.Status != "" {
		base = base.Where("status = ?", string(in.Status))
	}

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return ListResult{}, err
	}

	var items []Order
	if err := base.
		Order("created_at DESC").
		Limit(size).
		Offset((page - 1) * size).
		Find(&items).Error; err != nil {
		return ListResult{}, err
	}
	return ListResult{Items: items, Total: total}, nil
}

// AppendEvent writes one history row on the caller's transaction.
func AppendEvent(ctx context.Context, tx *gorm.DB, ev OrderEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	if ev.Note != nil {
		n := strings.TrimSpace(*ev.Note)
		if n == "" {
			ev.Note = nil
		} else {
			ev.Note = &n
		}
	}
	return tx.WithContext(ctx).Create(&ev).Error
}
