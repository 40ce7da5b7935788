package db

import (
	"context"
	_ "embed"

	"pricewatch/internal/types"
)

// schemaSQL holds the tables the job queue, alert evaluator and backfill
// engine touch. Every statement is idempotent.
//
//go:embed schema.sql
var schemaSQL string

// EnsureSchema applies schema.sql. The statements run as one simple-protocol
// batch, which requires calling Exec without arguments.
func EnsureSchema(ctx context.Context, db DBTX) error {
	if _, err := db.Exec(ctx, schemaSQL); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to apply schema", err)
	}
	return nil
}
