package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Line is one order item's claim on stock. A variant id, when set, scopes the
// counter to the variant row; otherwise the product row holds the counter.
type Line struct {
	ProductID string
	VariantID *string
	Qty       int
}

// Key identifies the counter row a line resolves to.
func (l Line) Key() string {
	if l.VariantID != nil && *l.VariantID != "" {
		return "v:" + *l.VariantID
	}
	return "p:" + l.ProductID
}

type counter struct {
	table string
	id    string
}

func counterFor(key string) counter {
	if id, ok := strings.CutPrefix(key, "v:"); ok {
		return counter{table: Variant{}.TableName(), id: id}
	}
	return counter{table: Product{}.TableName(), id: strings.TrimPrefix(key, "p:")}
}

// aggregate merges lines sharing a counter and returns the keys in a stable
// order so concurrent callers lock rows in the same sequence.
func aggregate(lines []Line) ([]string, map[string]int, error) {
	want := make(map[string]int, len(lines))
	for _, ln := range lines {
		if ln.Qty < 1 {
			return nil, nil, fmt.Errorf("%w: %s qty=%d", ErrInvalidQuantity, ln.Key(), ln.Qty)
		}
		want[ln.Key()] += ln.Qty
	}
	keys := make([]string, 0, len(want))
	for k := range want {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, want, nil
}

// Adjuster moves stock between available and reserved. It always runs inside
// a transaction owned by the caller.
type Adjuster struct{}

func NewAdjuster() *Adjuster { return &Adjuster{} }

// Reserve decrements the available counter of every line. Nothing is written
// unless every line can be satisfied.
func (a *Adjuster) Reserve(ctx context.Context, tx *gorm.DB, lines []Line) error {
	if len(lines) == 0 {
		return nil
	}
	keys, want, err := aggregate(lines)
	if err != nil {
		return err
	}

	var oos []OutOfStockItem
	for _, k := range keys {
		c := counterFor(k)
		var row struct{ Stock int }
		err := tx.WithContext(ctx).
			Table(c.table).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("stock").
			Where("id = ?", c.id).
			Take(&row).Error
		missing := errors.Is(err, gorm.ErrRecordNotFound)
		if err != nil && !missing {
			return err
		}
		if missing || row.Stock < want[k] {
			oos = append(oos, OutOfStockItem{Key: k, Requested: want[k], Available: row.Stock})
		}
	}
	if len(oos) > 0 {
		return &OutOfStockError{Items: oos}
	}

	for _, k := range keys {
		c := counterFor(k)
		req := want[k]
		res := tx.WithContext(ctx).
			Table(c.table).
			Where("id = ? AND stock >= ?", c.id, req).
			UpdateColumn("stock", gorm.Expr("stock - ?", req))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return &OutOfStockError{Items: []OutOfStockItem{{Key: k, Requested: req}}}
		}
	}
	return nil
}

// Release gives reserved quantities back to the available counters. It has
// no idempotency of its own: callers must invoke it once per cancellation.
func (a *Adjuster) Release(ctx context.Context, tx *gorm.DB, lines []Line) error {
	if len(lines) == 0 {
		return nil
	}
	keys, want, err := aggregate(lines)
	if err != nil {
		return err
	}

	for _, k := range keys {
		c := counterFor(k)
		res := tx.WithContext(ctx).
			Table(c.table).
			Where("id = ?", c.id).
			UpdateColumn("stock", gorm.Expr("stock + ?", want[k]))
		if res.Error != nil {
			return fmt.Errorf("%w: %s: %v", ErrReleaseFailed, k, res.Error)
		}
		if res.RowsAffected != 1 {
			return fmt.Errorf("%w: %s: counter row missing", ErrReleaseFailed, k)
		}
	}
	return nil
}
