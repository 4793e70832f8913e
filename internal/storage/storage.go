// Package storage archives raw gateway callback bodies byte-for-byte.
package storage

import (
	"context"
	"io"
	"time"

	"pehlione.com/payrecon/internal/shared/slug"
)

type PutInput struct {
	Provider    string
	EventID     string
	ContentType string
	ReceivedAt  time.Time
}

type PutResult struct {
	Key      string
	Location string
}

type Storage interface {
	Put(ctx context.Context, r io.Reader, in PutInput) (PutResult, error)
	Delete(ctx context.Context, key string) error
}

// ObjectKey lays archived bodies out as <provider>/<yyyy>/<mm>/<dd>/<event>.json.
func ObjectKey(in PutInput) string {
	at := in.ReceivedAt
	if at.IsZero() {
		at = time.Now()
	}
	return slug.Segment(in.Provider, "gateway") + "/" +
		at.UTC().Format("2006/01/02") + "/" +
		slug.Segment(in.EventID, "event") + ".json"
}

// Nop discards everything. Used when archiving is disabled.
type Nop struct{}

func (Nop) Put(_ context.Context, _ io.Reader, in PutInput) (PutResult, error) {
	return PutResult{Key: ObjectKey(in)}, nil
}

func (Nop) Delete(context.Context, string) error { return nil }
