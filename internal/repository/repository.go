// Package repository provides the record store over a key-value blob backend.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/shortclick/shortclick/internal/model"
)

// Common errors for record store operations.
var (
	ErrNotFound      = errors.New("url record not found")
	ErrCorruptStore  = errors.New("stored url collection is corrupt")
	ErrDuplicateCode = errors.New("short code already stored")
)

// Store is the persistence contract for URL records. Implementations hide
// how the collection is laid out in the backend.
type Store interface {
	LoadAll(ctx context.Context) ([]*model.URLRecord, error)
	SaveAll(ctx context.Context, records []*model.URLRecord) error
	Upsert(ctx context.Context, record *model.URLRecord) error
	// Insert stores a new record unless its code is already taken, ignoring
	// case. The check and the write happen under the store lock.
	Insert(ctx context.Context, record *model.URLRecord) error
	FindByShortCode(ctx context.Context, code string) (*model.URLRecord, error)
	AllShortCodes(ctx context.Context) (map[string]struct{}, error)
	AppendClick(ctx context.Context, code string, click model.ClickRecord) error
	SweepExpired(ctx context.Context, now time.Time) ([]*model.URLRecord, error)
	Stats(ctx context.Context, now time.Time) (model.Stats, error)
	Ping(ctx context.Context) error
}
