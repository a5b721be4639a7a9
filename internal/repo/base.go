package repo

import (
	"context"

	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/scentmarket-backend/pkg/db"
)

// Base is embedded by repositories that can run on either the pool or a
// transaction handle.
type Base struct {
	db *gorm.DB
}

func NewBase(db *gorm.DB) Base {
	return Base{db: db}
}

// With rebinds to tx. A nil tx keeps the current handle.
func (b Base) With(tx *gorm.DB) Base {
	if tx == nil {
		return b
	}
	return Base{db: tx}
}

func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}

// Locked returns a handle whose reads take FOR UPDATE row locks. The locks
// are only held until the surrounding transaction ends.
func (b Base) Locked(ctx context.Context) *gorm.DB {
	return dbpkg.ForUpdate(b.DB(ctx))
}
