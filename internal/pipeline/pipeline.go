// =============================================================================
// PRF Budget Import - Pipeline
// =============================================================================
//
// This module orchestrates one uploaded workbook from raw bytes to report.
// It is the only entry point the CLI and the HTTP server use.
//
// PROCESSING PIPELINE:
//   1. Open the workbook
//   2. Resolve the request and budget sheets
//   3. Project both sheets through their header dictionaries
//   4. Apply the transformation rules
//   5. Group request rows and shape budget rows
//   6. Reconcile (cost-code remapping, budget-year derivation, in-file
//      allocation conflicts)
//   7. Validate against the business rules and the chart of accounts
//   8. Import (skipped in validate-only mode)
//   9. Build the report
//
// BATCH STATES:
//   received -> parsed -> grouped -> validated -> imported -> reported
//   Steps 1-3 can end the batch in rejected_at_parse instead.
//
// ERRORS:
//   - Parse-fatal problems return a rejected report together with a
//     *ParseError.
//   - An unreachable store returns a nil report and the error.
//   - Everything else is reported, never returned.
//
// =============================================================================

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ginjaninja78/prf-budget-import/internal/coa"
	"github.com/ginjaninja78/prf-budget-import/internal/config"
	"github.com/ginjaninja78/prf-budget-import/internal/grouper"
	"github.com/ginjaninja78/prf-budget-import/internal/importer"
	"github.com/ginjaninja78/prf-budget-import/internal/metrics"
	"github.com/ginjaninja78/prf-budget-import/internal/projector"
	"github.com/ginjaninja78/prf-budget-import/internal/reconcile"
	"github.com/ginjaninja78/prf-budget-import/internal/report"
	"github.com/ginjaninja78/prf-budget-import/internal/store"
	"github.com/ginjaninja78/prf-budget-import/internal/types"
	"github.com/ginjaninja78/prf-budget-import/internal/validation"
	"github.com/ginjaninja78/prf-budget-import/internal/workbook"
)

// headerScanLimit is how many leading rows are searched for a header when
// the configured header row does not carry the key column.
const headerScanLimit = 10

// Parse stages.
const (
	StageRead    = "read"
	StageResolve = "resolve"
	StageProject = "project"
)

// ParseError is a parse-fatal failure. The batch ends in rejected_at_parse.
type ParseError struct {
	Stage string
	Err   error
}

func (e *ParseError) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }

func (e *ParseError) Unwrap() error { return e.Err }

// Input is one uploaded file plus the caller's choices.
type Input struct {
	FileName string
	Data     []byte

	// RequestSheet and BudgetSheet override the configured sheet names.
	RequestSheet string
	BudgetSheet  string

	// Options overrides the configured import options when set.
	Options *types.ImportOptions
}

// =============================================================================
// PIPELINE STRUCTURE
// =============================================================================

// Pipeline processes uploads. It is safe for concurrent use: every call
// builds its own per-batch state.
type Pipeline struct {
	cfg    *config.Config
	store  store.Store
	logger *zap.Logger

	transformer *reconcile.Transformer
	requestDict *projector.Dictionary
	budgetDict  *projector.Dictionary
	validator   *validation.Validator
}

// New creates a Pipeline.
//
// PARAMETERS:
//   - cfg: The application configuration. It is read, never modified.
//   - st: The record store and COA directory.
//   - logger: The base logger; each batch adds its batch_id.
//
// RETURNS:
//   - An error when the transformation rules or the amount tolerance are
//     invalid.
func New(cfg *config.Config, st store.Store, logger *zap.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	transformer, err := reconcile.NewTransformer(cfg.TransformationRules)
	if err != nil {
		return nil, fmt.Errorf("failed to load transformation rules: %w", err)
	}

	tolerance, err := decimal.NewFromString(cfg.Import.AmountTolerance)
	if err != nil {
		return nil, fmt.Errorf("invalid amount_tolerance %q: %w", cfg.Import.AmountTolerance, err)
	}

	return &Pipeline{
		cfg:         cfg,
		store:       st,
		logger:      logger,
		transformer: transformer,
		requestDict: projector.RequestDictionary(cfg.HeaderAliases),
		budgetDict:  projector.BudgetDictionary(cfg.HeaderAliases),
		validator: validation.NewValidator(validation.Options{
			FiscalYearMin:   cfg.Import.FiscalYearMin,
			FiscalYearMax:   cfg.Import.FiscalYearMax,
			AmountTolerance: tolerance,
		}),
	}, nil
}

// =============================================================================
// OPERATIONS
// =============================================================================

// ListSheets returns the sheet names of an upload.
func (p *Pipeline) ListSheets(fileName string, data []byte) ([]string, error) {
	wb, err := p.open(fileName, data)
	if err != nil {
		return nil, err
	}
	return wb.SheetNames(), nil
}

// Validate runs steps 1-7 and reports without writing anything.
func (p *Pipeline) Validate(ctx context.Context, in Input) (*report.ValidationReport, error) {
	b := p.newBatch("validate", in)
	opts := p.options(in)

	ps, err := p.parse(b, in)
	if err != nil {
		b.finish(report.StateRejectedAtParse)
		return report.RejectedValidation(b.id, b.started, time.Now(), err), err
	}

	resolver := p.newResolver(b, opts)
	vb, err := p.validate(ctx, b, ps, resolver)
	if err != nil {
		b.finish("failed")
		return nil, err
	}

	builder := ps.newBuilder(b)
	builder.AddValidation(ps.aggregates, vb)

	b.finish(report.StateValidated)
	return builder.Validation(report.StateValidated, time.Now()), nil
}

// Import runs the whole pipeline.
func (p *Pipeline) Import(ctx context.Context, in Input) (*report.ImportReport, error) {
	b := p.newBatch("import", in)
	opts := p.options(in)

	ps, err := p.parse(b, in)
	if err != nil {
		b.finish(report.StateRejectedAtParse)
		return report.RejectedImport(b.id, b.started, time.Now(), err), err
	}

	resolver := p.newResolver(b, opts)
	vb, err := p.validate(ctx, b, ps, resolver)
	if err != nil {
		b.finish("failed")
		return nil, err
	}

	// =========================================================================
	// STEP 8: IMPORT
	// =========================================================================
	// Only valid records are handed to the importer, in sheet order.

	var requests []*types.PurchaseRequest
	for _, res := range vb.Requests {
		if res.Valid() {
			requests = append(requests, res.Request)
		}
	}
	var allocations []*types.BudgetAllocation
	for _, res := range vb.Budget {
		if res.Valid() {
			allocations = append(allocations, res.Allocation)
		}
	}

	result, err := importer.New(p.store, resolver, opts, b.log).Import(ctx, requests, allocations)
	if err != nil {
		b.finish("failed")
		return nil, err
	}
	b.advance(report.StateImported)

	// =========================================================================
	// STEP 9: REPORT
	// =========================================================================

	builder := ps.newBuilder(b)
	builder.AddValidation(ps.aggregates, vb)
	builder.AddOutcomes(result.Requests)
	builder.AddBudgetOutcomes(result.Budget)
	builder.SetCreatedCostCodes(resolver.Created())

	b.finish(report.StateReported)
	rep := builder.Import(report.StateReported, time.Now())

	b.log.Info("Import complete",
		zap.Int("records", rep.TotalRecords),
		zap.Int("imported", rep.ImportedRecords),
		zap.Int("skipped", rep.SkippedRecords),
		zap.Int("invalid", rep.InvalidRecords),
		zap.Int("created_cost_codes", len(rep.CreatedCostCodes)),
	)
	return rep, nil
}

// =============================================================================
// STAGES
// =============================================================================

// parsed is the output of steps 1-6.
type parsed struct {
	selection workbook.Selection

	requestRows int
	budgetRows  int // -1 without a budget sheet

	aggregates []types.RequestAggregate
	budget     []types.BudgetAllocationRow

	requestIssues []types.Issue
	budgetIssues  []types.Issue
}

func (ps *parsed) newBuilder(b *batch) *report.Builder {
	builder := report.NewBuilder(b.id, b.started)
	builder.SetRows(ps.requestRows, ps.budgetRows)
	builder.AddRequestIssues(ps.requestIssues...)
	builder.AddBudgetIssues(ps.budgetIssues...)
	return builder
}

func (p *Pipeline) open(fileName string, data []byte) (*workbook.Workbook, error) {
	wb, err := workbook.Open(fileName, data, workbook.Options{
		Delimiter: p.cfg.Import.CSV.Delimiter,
		Encoding:  p.cfg.Import.CSV.Encoding,
	})
	if err != nil {
		return nil, &ParseError{Stage: StageRead, Err: err}
	}
	return wb, nil
}

// parse runs steps 1-6.
func (p *Pipeline) parse(b *batch, in Input) (*parsed, error) {
	// =========================================================================
	// STEP 1: OPEN WORKBOOK
	// =========================================================================

	wb, err := p.open(in.FileName, in.Data)
	if err != nil {
		b.log.Warn("Workbook rejected", zap.Error(err))
		return nil, err
	}

	// =========================================================================
	// STEP 2: RESOLVE SHEETS
	// =========================================================================

	requestSheet, budgetSheet := in.RequestSheet, in.BudgetSheet
	if requestSheet == "" {
		requestSheet = p.cfg.Import.RequestSheet
	}
	if budgetSheet == "" {
		budgetSheet = p.cfg.Import.BudgetSheet
	}

	sel, err := workbook.ResolveSheets(wb.SheetNames(), requestSheet, budgetSheet, workbook.Tokens{
		Request: p.cfg.SheetTokens.Request,
		Budget:  p.cfg.SheetTokens.Budget,
	})
	if err != nil {
		b.log.Warn("Sheet resolution failed", zap.Error(err))
		return nil, &ParseError{Stage: StageResolve, Err: err}
	}
	b.log.Debug("Resolved sheets",
		zap.String("request_sheet", sel.RequestSheet),
		zap.String("budget_sheet", sel.BudgetSheet),
	)

	// =========================================================================
	// STEP 3: PROJECT ROWS
	// =========================================================================

	rows, err := wb.Rows(sel.RequestSheet)
	if err != nil {
		return nil, &ParseError{Stage: StageProject, Err: err}
	}
	reqProj, err := projectSheet(rows, p.cfg.Import.RequestHeaderRow, p.requestDict, types.FieldRequestNumber)
	if err != nil {
		b.log.Warn("Request sheet has no usable header", zap.String("sheet", sel.RequestSheet), zap.Error(err))
		return nil, &ParseError{Stage: StageProject, Err: fmt.Errorf("request sheet %q: %w", sel.RequestSheet, err)}
	}
	b.log.Debug("Projected request sheet",
		zap.String("sheet", sel.RequestSheet),
		zap.Int("header_row", reqProj.HeaderRow),
		zap.Int("rows", len(reqProj.Rows)),
		zap.String("columns", projector.DescribeColumns(reqProj.Columns)),
	)

	ps := &parsed{selection: sel, requestRows: len(reqProj.Rows), budgetRows: -1}

	var budgetRaw []types.RawRow
	if sel.HasBudget() {
		budgetRaw, err = p.projectBudget(b, wb, sel, budgetSheet != "")
		if err != nil {
			return nil, err
		}
		if budgetRaw != nil {
			ps.budgetRows = len(budgetRaw)
		} else {
			ps.selection.BudgetSheet = ""
		}
	}
	b.advance(report.StateParsed)

	// =========================================================================
	// STEP 4: APPLY TRANSFORMATIONS
	// =========================================================================

	requestRaw := p.transformer.Apply(reqProj.Rows)
	budgetRaw = p.transformer.Apply(budgetRaw)

	// =========================================================================
	// STEP 5: GROUP
	// =========================================================================

	aggs := grouper.Group(requestRaw)
	budget := grouper.BudgetRows(budgetRaw)
	b.log.Debug("Grouped rows", zap.Int("aggregates", len(aggs)), zap.Int("budget_rows", len(budget)))

	// =========================================================================
	// STEP 6: RECONCILE
	// =========================================================================

	aggs, budget, remapped := reconcile.RemapCostCodes(aggs, budget, p.cfg.CostCodeMap)
	for _, is := range remapped {
		if is.Field == types.FieldCostCode {
			ps.budgetIssues = append(ps.budgetIssues, is)
		} else {
			ps.requestIssues = append(ps.requestIssues, is)
		}
	}

	aggs, derived := reconcile.DeriveBudgetYear(aggs, p.cfg.Import.FiscalYearMin, p.cfg.Import.FiscalYearMax)
	ps.requestIssues = append(ps.requestIssues, derived...)
	ps.budgetIssues = append(ps.budgetIssues, reconcile.DetectAllocationConflicts(budget)...)

	ps.aggregates = aggs
	ps.budget = budget
	b.advance(report.StateGrouped)
	return ps, nil
}

// projectBudget projects the budget sheet. A heuristically chosen sheet
// without a usable header is dropped with a log line; an explicitly named
// one is parse-fatal.
func (p *Pipeline) projectBudget(b *batch, wb *workbook.Workbook, sel workbook.Selection, explicit bool) ([]types.RawRow, error) {
	rows, err := wb.Rows(sel.BudgetSheet)
	if err != nil {
		return nil, &ParseError{Stage: StageProject, Err: err}
	}

	proj, err := projectSheet(rows, p.cfg.Import.BudgetHeaderRow, p.budgetDict, types.FieldCostCode)
	if err != nil {
		if explicit {
			return nil, &ParseError{Stage: StageProject, Err: fmt.Errorf("budget sheet %q: %w", sel.BudgetSheet, err)}
		}
		b.log.Warn("Ignoring budget sheet without a usable header", zap.String("sheet", sel.BudgetSheet), zap.Error(err))
		return nil, nil
	}

	b.log.Debug("Projected budget sheet",
		zap.String("sheet", sel.BudgetSheet),
		zap.Int("header_row", proj.HeaderRow),
		zap.Int("rows", len(proj.Rows)),
		zap.String("columns", projector.DescribeColumns(proj.Columns)),
	)
	if proj.Rows == nil {
		return []types.RawRow{}, nil
	}
	return proj.Rows, nil
}

// validate runs step 7.
func (p *Pipeline) validate(ctx context.Context, b *batch, ps *parsed, resolver *coa.Resolver) (*validation.Batch, error) {
	snapshot, err := resolver.Snapshot(ctx)
	if err != nil {
		b.log.Error("Chart of accounts unavailable", zap.Error(err))
		return nil, err
	}

	vb := p.validator.ValidateBatch(ps.aggregates, ps.budget, snapshot)
	b.advance(report.StateValidated)
	b.log.Debug("Validated batch",
		zap.Int("valid", vb.RequestValid),
		zap.Int("invalid", vb.RequestInvalid),
		zap.Int("budget_valid", vb.BudgetValid),
		zap.Int("budget_invalid", vb.BudgetInvalid),
	)
	return vb, nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// projectSheet projects rows through the configured header row. When that
// row lacks the key column the first headerScanLimit rows are searched for
// one that has it.
func projectSheet(rows [][]types.CellValue, preferred int, dict *projector.Dictionary, key string) (*projector.Projection, error) {
	proj, err := projector.Project(rows, preferred, dict)
	if err == nil && proj.HasField(key) {
		return proj, nil
	}

	for i := 0; i < len(rows) && i < headerScanLimit; i++ {
		if i == preferred {
			continue
		}
		candidate, cerr := projector.Project(rows, i, dict)
		if cerr == nil && candidate.HasField(key) {
			return candidate, nil
		}
	}

	if err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("no header row with a %s column in the first %d rows", key, headerScanLimit)
}

func (p *Pipeline) options(in Input) types.ImportOptions {
	if in.Options != nil {
		return *in.Options
	}
	return p.cfg.ImportOptions()
}

func (p *Pipeline) newResolver(b *batch, opts types.ImportOptions) *coa.Resolver {
	return coa.NewResolver(p.store, coa.Options{
		AutoCreate: opts.AutoCreateCOA,
		Category:   p.cfg.Import.DefaultCOACategory,
	}, b.log)
}

// =============================================================================
// BATCH STATE
// =============================================================================

// batch tracks the state of one call.
type batch struct {
	id        string
	operation string
	state     string
	started   time.Time
	log       *zap.Logger
}

func (p *Pipeline) newBatch(operation string, in Input) *batch {
	id := uuid.NewString()
	b := &batch{
		id:        id,
		operation: operation,
		state:     report.StateReceived,
		started:   time.Now(),
		log: p.logger.With(
			zap.String("batch_id", id),
			zap.String("operation", operation),
			zap.String("file", in.FileName),
		),
	}
	b.log.Debug("Batch received", zap.Int("bytes", len(in.Data)))
	return b
}

func (b *batch) advance(state string) {
	b.log.Debug("Batch state", zap.String("from", b.state), zap.String("to", state))
	b.state = state
}

func (b *batch) finish(state string) {
	b.advance(state)
	metrics.RecordBatch(b.operation, state, time.Since(b.started))
}

// IsParseError reports whether err is parse-fatal.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}
