// =============================================================================
// PRF Budget Import - Record Store Contract
// =============================================================================
//
// The store persists chart-of-account entries, purchase requests with their
// items, and budget allocations. Two implementations exist:
//   - Postgres: the production store (pgx)
//   - Memory:   for validate-only runs, demos and tests
//
// TRANSACTIONS:
//   Chart-of-account operations run outside any request transaction, so a
//   placeholder created for one aggregate is visible to the next even when
//   the first aggregate rolls back. Request and allocation writes always go
//   through a Tx, one per aggregate or budget row.
//
// UNIQUENESS:
//   - chart of accounts: code
//   - purchase requests: request number
//   - budget allocations: (COA, fiscal year)
//   Violations surface as ErrConflict.
//
// =============================================================================

package store

import (
	"context"
	"errors"

	"github.com/ginjaninja78/prf-budget-import/internal/types"
)

var (
	// ErrNotFound is returned by lookups that match nothing.
	ErrNotFound = errors.New("record not found")

	// ErrConflict is returned when a write violates a uniqueness rule.
	ErrConflict = errors.New("record already exists")
)

// Directory is the chart-of-accounts side of the store. Every call commits
// on its own.
type Directory interface {
	// FindCOAByCode looks up an entry by exact, case-sensitive code.
	FindCOAByCode(ctx context.Context, code string) (*types.ChartOfAccount, error)

	// CreateCOA inserts an entry and fills in its ID.
	CreateCOA(ctx context.Context, coa *types.ChartOfAccount) error

	// ListCOACodes returns every known code.
	ListCOACodes(ctx context.Context) ([]string, error)
}

// Store is the full record store.
type Store interface {
	Directory

	// Begin opens a transaction for one aggregate or budget row.
	Begin(ctx context.Context) (Tx, error)

	Ping(ctx context.Context) error
	Close()
}

// Tx is a unit of work. Nothing written through it is visible to other
// transactions until Commit. Rollback after Commit is a no-op.
type Tx interface {
	FindRequestByNumber(ctx context.Context, requestNumber string) (*types.StoredRequest, error)
	CreateRequest(ctx context.Context, req *types.PurchaseRequest, coaID string) (string, error)
	UpdateRequest(ctx context.Context, id string, req *types.PurchaseRequest, coaID string) error

	// CreateItems appends items to a request.
	CreateItems(ctx context.Context, requestID string, items []types.PurchaseItem) error
	// ReplaceItems deletes a request's items and inserts the given ones.
	ReplaceItems(ctx context.Context, requestID string, items []types.PurchaseItem) error

	FindAllocation(ctx context.Context, coaID string, fiscalYear int) (*types.Allocation, error)
	CreateAllocation(ctx context.Context, alloc *types.Allocation) (string, error)
	UpdateAllocation(ctx context.Context, alloc *types.Allocation) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
