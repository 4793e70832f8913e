package dbtx

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func TestWithRetry_RetriesTransientThenSucceeds(t *testing.T) {
	db := openDB(t)
	calls := 0

	err := WithRetry(context.Background(), db, Policy{Attempts: 3, Base: time.Millisecond}, nil, func(tx *gorm.DB) error {
		calls++
		if calls < 3 {
			return &mysql.MySQLError{Number: 1213, Message: "Deadlock found"}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetry_StopsOnPermanentError(t *testing.T) {
	db := openDB(t)
	calls := 0
	permanent := errors.New("constraint violated")

	err := WithRetry(context.Background(), db, Policy{Attempts: 5, Base: time.Millisecond}, nil, func(tx *gorm.DB) error {
		calls++
		return permanent
	})

	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestWithRetry_CustomClassifierExhausts(t *testing.T) {
	db := openDB(t)
	calls := 0
	flaky := errors.New("flaky")

	err := WithRetry(context.Background(), db, Policy{Attempts: 4, Base: time.Millisecond},
		func(err error) bool { return errors.Is(err, flaky) },
		func(tx *gorm.DB) error {
			calls++
			return flaky
		})

	assert.ErrorIs(t, err, flaky)
	assert.Equal(t, 4, calls)
}

func TestWithRetry_HonoursContext(t *testing.T) {
	db := openDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	err := WithRetry(ctx, db, Policy{Attempts: 10, Base: time.Hour}, func(error) bool { return true }, func(tx *gorm.DB) error {
		calls++
		cancel()
		return errors.New("again")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestPolicyDelay_Capped(t *testing.T) {
	p := Policy{Base: 100 * time.Millisecond, Max: 300 * time.Millisecond}
	assert.Equal(t, 100*time.Millisecond, p.delay(0))
	assert.Equal(t, 200*time.Millisecond, p.delay(1))
	assert.Equal(t, 300*time.Millisecond, p.delay(2))
	assert.Equal(t, 300*time.Millisecond, p.delay(40))
}
