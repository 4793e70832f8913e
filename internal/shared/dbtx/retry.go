package dbtx

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// Policy bounds WithRetry. Backoff doubles from Base on every failed attempt
// and is capped at Max.
type Policy struct {
	Attempts int
	Base     time.Duration
	Max      time.Duration
}

var DefaultPolicy = Policy{Attempts: 3, Base: 50 * time.Millisecond, Max: time.Second}

// RetryIf decides whether a failed transaction is run again.
type RetryIf func(err error) bool

// WithRetry runs fn inside a fresh transaction until it commits, the error is
// not retryable, the attempts run out or ctx is done.
func WithRetry(ctx context.Context, db *gorm.DB, p Policy, retryIf RetryIf, fn func(tx *gorm.DB) error) error {
	if p.Attempts < 1 {
		p.Attempts = 1
	}
	if retryIf == nil {
		retryIf = IsTransient
	}

	var lastErr error
	for i := 0; i < p.Attempts; i++ {
		err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return fn(tx)
		})
		if err == nil {
			return nil
		}
		lastErr = err

		if !retryIf(err) || i == p.Attempts-1 {
			return err
		}
		select {
		case <-ctx.Done():
			return errors.Join(lastErr, ctx.Err())
		case <-time.After(p.delay(i)):
		}
	}
	return lastErr
}

func (p Policy) delay(attempt int) time.Duration {
	d := p.Base << attempt
	if p.Max > 0 && (d > p.Max || d <= 0) {
		d = p.Max
	}
	return d
}

// IsTransient reports lock contention errors that a fresh transaction can
// get past: MySQL deadlock (1213), lock wait timeout (1205) and SQLite busy.
func IsTransient(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1213 || me.Number == 1205
	}
	if err != nil && strings.Contains(err.Error(), "database is locked") {
		return true
	}
	return false
}
