package service

import (
	"context"
	"time"

	"farmacaixa/internal/repository"

	"gorm.io/gorm"
)

const defaultStoreTimeout = 5 * time.Second

// runTx executes fn inside a GORM transaction. Commit failures are
// classified like any other store error; fn's own errors pass through.
func runTx(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	return repository.Classify(db.WithContext(ctx).Transaction(fn))
}

// storeCtx bounds one service call. An expired deadline surfaces as
// TRANSIENT_STORE_ERROR and rolls back whatever was in flight.
func storeCtx(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// inScope reports whether a caller bound to scope may touch a session at
// locationID. An empty scope is unrestricted.
func inScope(scope, locationID string) bool {
	return scope == "" || scope == locationID
}
