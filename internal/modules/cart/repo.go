package cart

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repo struct{ db *gorm.DB }

func NewRepo(db *gorm.DB) *Repo { return &Repo{db: db} }

func (r *Repo) Create(ctx context.Context, userID *string) (Cart, error) {
	c := Cart{ID: uuid.NewString(), UserID: userID, Status: StatusActive}
	err := r.db.WithContext(ctx).Create(&c).Error
	return c, err
}

func (r *Repo) GetCart(ctx context.Context, cartID string) (Cart, error) {
	var c Cart
	err := r.db.WithContext(ctx).
		Preload("Items").
		First(&c, "id = ?", cartID).Error
	return c, err
}

func (r *Repo) AddItem(ctx context.Context, cartID, productID string, variantID *string, qty int) error {
	item := CartItem{
		ID:        uuid.NewString(),
		CartID:    cartID,
		ProductID: productID,
		VariantID: variantID,
		Quantity:  qty,
	}
	return r.db.WithContext(ctx).Create(&item).Error
}
