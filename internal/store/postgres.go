package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ginjaninja78/prf-budget-import/internal/types"
)

//go:embed schema.sql
var schemaSQL string

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// Postgres is the PostgreSQL-backed Store.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgres connects a pool and verifies the connection.
//
// PARAMETERS:
//   - url: A pgx connection string.
//   - maxConns: Pool size; 0 keeps the pgx default.
func NewPostgres(ctx context.Context, url string, maxConns int32, logger *zap.Logger) (*Postgres, error) {
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection config: %w", err)
	}
	if maxConns > 0 {
		poolConfig.MaxConns = maxConns
	}
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	logger.Debug("Connected to PostgreSQL", zap.Int32("max_conns", poolConfig.MaxConns))
	return &Postgres{pool: pool, logger: logger}, nil
}

// Migrate creates the tables when they do not exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.pool.Ping(ctx) }

func (p *Postgres) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

// =============================================================================
// DIRECTORY
// =============================================================================

func (p *Postgres) FindCOAByCode(ctx context.Context, code string) (*types.ChartOfAccount, error) {
	var c types.ChartOfAccount
	err := p.pool.QueryRow(ctx, `
		SELECT id::text, code, name, category, active
		FROM chart_of_accounts
		WHERE code = $1
	`, code).Scan(&c.ID, &c.Code, &c.Name, &c.Category, &c.Active)
	if err != nil {
		return nil, mapError(err, "chart of account "+code)
	}
	return &c, nil
}

func (p *Postgres) CreateCOA(ctx context.Context, coa *types.ChartOfAccount) error {
	if coa.ID == "" {
		coa.ID = uuid.NewString()
	}
	_, err := p.pool.Exec(ctx, `
		INSERT INTO chart_of_accounts (id, code, name, category, active)
		VALUES ($1, $2, $3, $4, $5)
	`, coa.ID, coa.Code, coa.Name, coa.Category, coa.Active)
	if err != nil {
		return mapError(err, "chart of account "+coa.Code)
	}
	return nil
}

func (p *Postgres) ListCOACodes(ctx context.Context) ([]string, error) {
	rows, err := p.pool.Query(ctx, `SELECT code FROM chart_of_accounts ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("failed to query chart of accounts: %w", err)
	}
	codes, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan chart of accounts: %w", err)
	}
	return codes, nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func (p *Postgres) Begin(ctx context.Context) (Tx, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &pgTx{tx: tx}, nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) FindRequestByNumber(ctx context.Context, requestNumber string) (*types.StoredRequest, error) {
	var r types.StoredRequest
	err := t.tx.QueryRow(ctx, `
		SELECT r.id::text, r.request_number, COALESCE(r.coa_id::text, ''),
		       (SELECT count(*) FROM purchase_request_items i WHERE i.request_id = r.id)
		FROM purchase_requests r
		WHERE r.request_number = $1
		FOR UPDATE OF r
	`, requestNumber).Scan(&r.ID, &r.RequestNumber, &r.COAID, &r.ItemCount)
	if err != nil {
		return nil, mapError(err, "request "+requestNumber)
	}
	return &r, nil
}

func (t *pgTx) CreateRequest(ctx context.Context, req *types.PurchaseRequest, coaID string) (string, error) {
	id := uuid.NewString()
	_, err := t.tx.Exec(ctx, `
		INSERT INTO purchase_requests
			(id, request_number, submit_date, submitter, department, description,
			 cost_code, coa_id, requested_amount, budget_year)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::numeric, $10)
	`, id, req.RequestNumber, req.SubmitDate, req.Submitter, req.Department, req.Description,
		req.CostCode, nullable(coaID), req.RequestedAmount.String(), nullableYear(req.BudgetYear))
	if err != nil {
		return "", mapError(err, "request "+req.RequestNumber)
	}
	return id, nil
}

func (t *pgTx) UpdateRequest(ctx context.Context, id string, req *types.PurchaseRequest, coaID string) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE purchase_requests
		SET submit_date = $2, submitter = $3, department = $4, description = $5,
		    cost_code = $6, coa_id = $7, requested_amount = $8::numeric,
		    budget_year = $9, updated_at = now()
		WHERE id = $1
	`, id, req.SubmitDate, req.Submitter, req.Department, req.Description,
		req.CostCode, nullable(coaID), req.RequestedAmount.String(), nullableYear(req.BudgetYear))
	if err != nil {
		return mapError(err, "request "+req.RequestNumber)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: request id %s", ErrNotFound, id)
	}
	return nil
}

func (t *pgTx) CreateItems(ctx context.Context, requestID string, items []types.PurchaseItem) error {
	var start int
	if err := t.tx.QueryRow(ctx, `
		SELECT COALESCE(max(line_no), 0) FROM purchase_request_items WHERE request_id = $1
	`, requestID).Scan(&start); err != nil {
		return fmt.Errorf("failed to read item lines: %w", err)
	}
	return t.insertItems(ctx, requestID, start, items)
}

func (t *pgTx) ReplaceItems(ctx context.Context, requestID string, items []types.PurchaseItem) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM purchase_request_items WHERE request_id = $1`, requestID); err != nil {
		return fmt.Errorf("failed to delete items: %w", err)
	}
	return t.insertItems(ctx, requestID, 0, items)
}

func (t *pgTx) insertItems(ctx context.Context, requestID string, start int, items []types.PurchaseItem) error {
	if len(items) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for i, item := range items {
		spec, err := json.Marshal(item.Specification())
		if err != nil {
			return fmt.Errorf("failed to encode specification for row %d: %w", item.RowNumber, err)
		}
		batch.Queue(`
			INSERT INTO purchase_request_items
				(id, request_id, line_no, name, quantity, unit_price, total_price, specification)
			VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7::numeric, $8::jsonb)
		`, uuid.NewString(), requestID, start+i+1, item.Name,
			item.Quantity.String(), item.UnitPrice.String(), item.TotalPrice.String(), string(spec))
	}

	br := t.tx.SendBatch(ctx, batch)
	for range items {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return mapError(err, "item")
		}
	}
	return br.Close()
}

func (t *pgTx) FindAllocation(ctx context.Context, coaID string, fiscalYear int) (*types.Allocation, error) {
	var (
		a      types.Allocation
		amount string
	)
	err := t.tx.QueryRow(ctx, `
		SELECT id::text, coa_id::text, fiscal_year, amount::text, description
		FROM budget_allocations
		WHERE coa_id = $1 AND fiscal_year = $2
		FOR UPDATE
	`, coaID, fiscalYear).Scan(&a.ID, &a.COAID, &a.FiscalYear, &amount, &a.Description)
	if err != nil {
		return nil, mapError(err, fmt.Sprintf("allocation %s/%d", coaID, fiscalYear))
	}
	if a.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("failed to parse allocation amount %q: %w", amount, err)
	}
	return &a, nil
}

func (t *pgTx) CreateAllocation(ctx context.Context, alloc *types.Allocation) (string, error) {
	id := uuid.NewString()
	_, err := t.tx.Exec(ctx, `
		INSERT INTO budget_allocations (id, coa_id, fiscal_year, amount, description)
		VALUES ($1, $2, $3, $4::numeric, $5)
	`, id, alloc.COAID, alloc.FiscalYear, alloc.Amount.String(), alloc.Description)
	if err != nil {
		return "", mapError(err, fmt.Sprintf("allocation %s/%d", alloc.COAID, alloc.FiscalYear))
	}
	return id, nil
}

func (t *pgTx) UpdateAllocation(ctx context.Context, alloc *types.Allocation) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE budget_allocations
		SET amount = $3::numeric, description = $4, updated_at = now()
		WHERE coa_id = $1 AND fiscal_year = $2
	`, alloc.COAID, alloc.FiscalYear, alloc.Amount.String(), alloc.Description)
	if err != nil {
		return mapError(err, fmt.Sprintf("allocation %s/%d", alloc.COAID, alloc.FiscalYear))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: allocation %s/%d", ErrNotFound, alloc.COAID, alloc.FiscalYear)
	}
	return nil
}

func (t *pgTx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(ctx); err != nil {
		return mapError(err, "commit")
	}
	return nil
}

func (t *pgTx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// mapError translates driver errors into store sentinels.
func mapError(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s (%s)", ErrConflict, what, pgErr.ConstraintName)
	}
	return fmt.Errorf("database error on %s: %w", what, err)
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableYear(y int) any {
	if y == 0 {
		return nil
	}
	return y
}
