package dbctx

import (
	"context"

	"gorm.io/gorm"
)

// Context bundles a request context with an optional GORM transaction.
// Repos run against the transaction when set, the base handle otherwise.
type Context struct {
	Ctx context.Context
	Tx  *gorm.DB
}
