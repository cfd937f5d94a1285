package repo

import (
	"context"

	"gorm.io/gorm"
)

// Base carries the connection shared by the payment-side repositories.
type Base struct {
	db *gorm.DB
}

func NewBase(db *gorm.DB) Base {
	return Base{db: db}
}

// DB binds ctx to the repository's own connection.
func (b Base) DB(ctx context.Context) *gorm.DB {
	return b.Conn(ctx, nil)
}

// Conn prefers the caller's transaction and falls back to the repository
// connection. A nil ctx leaves the handle unbound.
func (b Base) Conn(ctx context.Context, tx *gorm.DB) *gorm.DB {
	conn := b.db
	if tx != nil {
		conn = tx
	}
	if ctx == nil {
		return conn
	}
	return conn.WithContext(ctx)
}
