// =============================================================================
// PRF Budget Import - Importer
// =============================================================================
//
// This module persists validated purchase requests and budget allocations.
//
// IMPORT PIPELINE (per purchase request, in sheet order):
//   1. Resolve the cost code (memoized per batch, before any transaction
//      holds a connection)
//   2. Open a transaction
//   3. Look up an existing request with the same number
//   4. Skip, reject, update or create depending on the import options; an
//      unresolved cost code fails only a request that would be written
//   5. Write the header and the items, then commit
//
// FAILURE ISOLATION:
//   Each request and each budget row is its own transaction. A failure rolls
//   back that record only and is reported as an outcome; the loop always
//   moves on to the next record. The only error returned to the caller is
//   a store that cannot open a transaction for the very first record.
//
// CANCELLATION:
//   The context is checked between records. Records already committed stay
//   committed; the rest are reported as failed with reason "cancelled".
//
// =============================================================================

package importer

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ginjaninja78/prf-budget-import/internal/coa"
	"github.com/ginjaninja78/prf-budget-import/internal/metrics"
	"github.com/ginjaninja78/prf-budget-import/internal/store"
	"github.com/ginjaninja78/prf-budget-import/internal/types"
)

// ErrStoreUnavailable is returned when the store cannot open a transaction
// for the first record of a batch.
var ErrStoreUnavailable = errors.New("record store unavailable")

// Failure reasons shared with tests and reports.
const (
	ReasonCancelled     = "cancelled"
	ReasonAlreadyExists = "request number already exists"
)

// Result holds the outcomes of one batch, in input order.
type Result struct {
	Requests []types.AggregateOutcome
	Budget   []types.BudgetOutcome
}

// Importer writes one batch. Create a new Importer per batch: the resolver
// it carries memoizes cost codes for that batch only.
type Importer struct {
	store    store.Store
	resolver *coa.Resolver
	options  types.ImportOptions
	logger   *zap.Logger
}

// New creates an Importer.
//
// PARAMETERS:
//   - st: The record store.
//   - resolver: The batch's COA resolver. Its auto-create setting decides
//     whether unknown cost codes fail or get a placeholder.
//   - options: Duplicate handling for this batch.
func New(st store.Store, resolver *coa.Resolver, options types.ImportOptions, logger *zap.Logger) *Importer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Importer{store: st, resolver: resolver, options: options, logger: logger}
}

// Import persists requests, then budget allocations.
//
// RETURNS:
//   - One outcome per input record, in input order.
//   - ErrStoreUnavailable (wrapped) when not even the first transaction
//     could be opened. The partial result is nil in that case.
func (im *Importer) Import(ctx context.Context, requests []*types.PurchaseRequest, allocations []*types.BudgetAllocation) (*Result, error) {
	res := &Result{
		Requests: make([]types.AggregateOutcome, 0, len(requests)),
		Budget:   make([]types.BudgetOutcome, 0, len(allocations)),
	}

	first := true
	for _, req := range requests {
		if ctx.Err() != nil {
			res.Requests = append(res.Requests, failedRequest(req, ReasonCancelled))
			metrics.RecordAggregate(string(types.OutcomeFailed))
			continue
		}

		out, err := im.importRequest(ctx, req, first)
		if err != nil {
			return nil, err
		}
		first = false

		res.Requests = append(res.Requests, out)
		metrics.RecordAggregate(string(out.Status))
	}

	written := make(map[allocKey]int)
	for _, alloc := range allocations {
		if ctx.Err() != nil {
			res.Budget = append(res.Budget, failedBudget(alloc, ReasonCancelled))
			metrics.RecordBudgetRow(string(types.OutcomeFailed))
			continue
		}

		out, err := im.importAllocation(ctx, alloc, written, first)
		if err != nil {
			return nil, err
		}
		first = false

		res.Budget = append(res.Budget, out)
		metrics.RecordBudgetRow(string(out.Status))
	}

	return res, nil
}

// =============================================================================
// PURCHASE REQUESTS
// =============================================================================

func (im *Importer) importRequest(ctx context.Context, req *types.PurchaseRequest, first bool) (types.AggregateOutcome, error) {
	log := im.logger.With(zap.String("request_number", req.RequestNumber))

	// Resolve uses the directory, never the transaction's connection.
	resolution, resolveErr := im.resolver.Resolve(ctx, req.CostCode)

	tx, err := im.store.Begin(ctx)
	if err != nil {
		if first && ctx.Err() == nil {
			log.Error("Failed to open transaction", zap.Error(err))
			return types.AggregateOutcome{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return im.failRequest(log, req, fmt.Sprintf("failed to begin transaction: %v", err)), nil
	}
	defer tx.Rollback(ctx)

	existing, err := tx.FindRequestByNumber(ctx, req.RequestNumber)
	switch {
	case errors.Is(err, store.ErrNotFound):
		existing = nil
	case err != nil:
		return im.failRequest(log, req, fmt.Sprintf("failed to look up request: %v", err)), nil
	}

	if existing != nil && !im.options.UpdateExisting {
		if im.options.SkipDuplicates {
			log.Debug("Skipping existing request")
			return types.AggregateOutcome{
				RequestNumber: req.RequestNumber,
				Status:        types.OutcomeSkipped,
				ID:            existing.ID,
				Reason:        "request number already imported",
				Rows:          req.Rows,
			}, nil
		}
		return im.failRequest(log, req, ReasonAlreadyExists), nil
	}

	if resolveErr != nil {
		return im.failRequest(log, req, resolveErr.Error()), nil
	}

	out := types.AggregateOutcome{
		RequestNumber: req.RequestNumber,
		ItemCount:     len(req.Items),
		Rows:          req.Rows,
		CreatedCOA:    resolution.Created,
	}

	if existing != nil {
		if err := tx.UpdateRequest(ctx, existing.ID, req, resolution.COAID); err != nil {
			return im.failRequest(log, req, fmt.Sprintf("failed to update request: %v", err)), nil
		}
		if err := tx.ReplaceItems(ctx, existing.ID, req.Items); err != nil {
			return im.failRequest(log, req, fmt.Sprintf("failed to replace items: %v", err)), nil
		}
		out.Status, out.ID = types.OutcomeUpdated, existing.ID
	} else {
		id, err := tx.CreateRequest(ctx, req, resolution.COAID)
		if err != nil {
			return im.failRequest(log, req, fmt.Sprintf("failed to create request: %v", err)), nil
		}
		if err := tx.CreateItems(ctx, id, req.Items); err != nil {
			return im.failRequest(log, req, fmt.Sprintf("failed to create items: %v", err)), nil
		}
		out.Status, out.ID = types.OutcomeImported, id
	}

	if err := tx.Commit(ctx); err != nil {
		return im.failRequest(log, req, fmt.Sprintf("failed to commit: %v", err)), nil
	}

	log.Debug("Request persisted",
		zap.String("status", string(out.Status)),
		zap.String("id", out.ID),
		zap.Int("items", out.ItemCount),
	)
	return out, nil
}

func (im *Importer) failRequest(log *zap.Logger, req *types.PurchaseRequest, reason string) types.AggregateOutcome {
	log.Warn("Request import failed", zap.String("reason", reason), zap.Ints("rows", req.Rows))
	return failedRequest(req, reason)
}

func failedRequest(req *types.PurchaseRequest, reason string) types.AggregateOutcome {
	return types.AggregateOutcome{
		RequestNumber: req.RequestNumber,
		Status:        types.OutcomeFailed,
		Reason:        reason,
		Rows:          req.Rows,
	}
}

// =============================================================================
// BUDGET ALLOCATIONS
// =============================================================================

type allocKey struct {
	coaID      string
	fiscalYear int
}

// importAllocation writes one budget row. written maps every (COA, fiscal
// year) pair this batch has stored to the row that stored it.
func (im *Importer) importAllocation(ctx context.Context, alloc *types.BudgetAllocation, written map[allocKey]int, first bool) (types.BudgetOutcome, error) {
	log := im.logger.With(
		zap.Int("row", alloc.RowNumber),
		zap.String("cost_code", alloc.CostCode),
		zap.Int("fiscal_year", alloc.FiscalYear),
	)

	resolution, err := im.resolver.Resolve(ctx, alloc.CostCode)
	if err != nil {
		return im.failBudget(log, alloc, types.OutcomeFailed, err.Error()), nil
	}
	key := allocKey{resolution.COAID, alloc.FiscalYear}

	out := types.BudgetOutcome{
		RowNumber:  alloc.RowNumber,
		CostCode:   alloc.CostCode,
		FiscalYear: alloc.FiscalYear,
		CreatedCOA: resolution.Created,
	}

	tx, err := im.store.Begin(ctx)
	if err != nil {
		if first && ctx.Err() == nil {
			log.Error("Failed to open transaction", zap.Error(err))
			return types.BudgetOutcome{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return im.failBudget(log, alloc, types.OutcomeFailed, fmt.Sprintf("failed to begin transaction: %v", err)), nil
	}
	defer tx.Rollback(ctx)

	existing, err := tx.FindAllocation(ctx, resolution.COAID, alloc.FiscalYear)
	switch {
	case errors.Is(err, store.ErrNotFound):
		existing = nil
	case err != nil:
		return im.failBudget(log, alloc, types.OutcomeFailed, fmt.Sprintf("failed to look up allocation: %v", err)), nil
	}

	record := &types.Allocation{
		COAID:       resolution.COAID,
		FiscalYear:  alloc.FiscalYear,
		Amount:      alloc.Amount,
		Description: alloc.Description,
	}

	switch {
	case existing != nil && im.options.UpdateExisting:
		if err := tx.UpdateAllocation(ctx, record); err != nil {
			return im.failBudget(log, alloc, types.OutcomeFailed, fmt.Sprintf("failed to update allocation: %v", err)), nil
		}
		out.Status, out.ID = types.OutcomeUpdated, existing.ID

	case existing != nil:
		if at, ok := written[key]; ok {
			return im.failBudget(log, alloc, types.OutcomeConflict,
				fmt.Sprintf("cost code '%s' fiscal year %d was already allocated by row %d", alloc.CostCode, alloc.FiscalYear, at)), nil
		}
		if im.options.SkipDuplicates {
			log.Debug("Skipping existing allocation")
			out.Status, out.ID = types.OutcomeSkipped, existing.ID
			out.Reason = "allocation already exists"
			return out, nil
		}
		return im.failBudget(log, alloc, types.OutcomeConflict,
			fmt.Sprintf("cost code '%s' already has an allocation for fiscal year %d", alloc.CostCode, alloc.FiscalYear)), nil

	default:
		id, err := tx.CreateAllocation(ctx, record)
		if errors.Is(err, store.ErrConflict) {
			return im.failBudget(log, alloc, types.OutcomeConflict,
				fmt.Sprintf("cost code '%s' already has an allocation for fiscal year %d", alloc.CostCode, alloc.FiscalYear)), nil
		}
		if err != nil {
			return im.failBudget(log, alloc, types.OutcomeFailed, fmt.Sprintf("failed to create allocation: %v", err)), nil
		}
		out.Status, out.ID = types.OutcomeImported, id
	}

	if err := tx.Commit(ctx); err != nil {
		status := types.OutcomeFailed
		if errors.Is(err, store.ErrConflict) {
			status = types.OutcomeConflict
		}
		return im.failBudget(log, alloc, status, fmt.Sprintf("failed to commit: %v", err)), nil
	}

	if _, ok := written[key]; !ok {
		written[key] = alloc.RowNumber
	}
	log.Debug("Allocation persisted", zap.String("status", string(out.Status)))
	return out, nil
}

func (im *Importer) failBudget(log *zap.Logger, alloc *types.BudgetAllocation, status types.OutcomeStatus, reason string) types.BudgetOutcome {
	log.Warn("Budget row not imported", zap.String("status", string(status)), zap.String("reason", reason))
	out := failedBudget(alloc, reason)
	out.Status = status
	return out
}

func failedBudget(alloc *types.BudgetAllocation, reason string) types.BudgetOutcome {
	return types.BudgetOutcome{
		RowNumber:  alloc.RowNumber,
		CostCode:   alloc.CostCode,
		FiscalYear: alloc.FiscalYear,
		Status:     types.OutcomeFailed,
		Reason:     reason,
	}
}
