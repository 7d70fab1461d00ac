package core

import (
	"context"
)

// Transactor runs fn as a single unit of work: every repository call made with the
// ctx handed to fn joins the same transaction, which is rolled back if fn fails.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
