package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/ginjaninja78/prf-budget-import/internal/types"
)

// FaultFunc lets tests make a store operation fail. op is the method name
// ("Begin", "CreateRequest", "CreateItems", ...) and key identifies the
// record (request number, "coaID/year", or COA code).
type FaultFunc func(op, key string) error

// Memory is an in-process Store. Transactions stage their writes and apply
// them atomically on Commit.
type Memory struct {
	mu          sync.RWMutex
	coas        map[string]types.ChartOfAccount
	requests    map[string]*memRequest
	allocations map[allocKey]types.Allocation
	fault       FaultFunc
}

type memRequest struct {
	stored  types.StoredRequest
	request types.PurchaseRequest
	items   []types.PurchaseItem
}

type allocKey struct {
	coaID      string
	fiscalYear int
}

func (k allocKey) String() string { return fmt.Sprintf("%s/%d", k.coaID, k.fiscalYear) }

// NewMemory creates an empty in-memory store seeded with the given chart of
// accounts.
func NewMemory(seed ...types.ChartOfAccount) *Memory {
	m := &Memory{
		coas:        make(map[string]types.ChartOfAccount),
		requests:    make(map[string]*memRequest),
		allocations: make(map[allocKey]types.Allocation),
	}
	for _, c := range seed {
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		m.coas[c.Code] = c
	}
	return m
}

// SetFault installs a fault injector. Pass nil to clear it.
func (m *Memory) SetFault(fn FaultFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fault = fn
}

func (m *Memory) check(op, key string) error {
	m.mu.RLock()
	fn := m.fault
	m.mu.RUnlock()
	if fn == nil {
		return nil
	}
	return fn(op, key)
}

// =============================================================================
// DIRECTORY
// =============================================================================

func (m *Memory) FindCOAByCode(ctx context.Context, code string) (*types.ChartOfAccount, error) {
	if err := m.check("FindCOAByCode", code); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.coas[code]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (m *Memory) CreateCOA(ctx context.Context, coa *types.ChartOfAccount) error {
	if err := m.check("CreateCOA", coa.Code); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.coas[coa.Code]; exists {
		return fmt.Errorf("%w: chart of account %q", ErrConflict, coa.Code)
	}
	if coa.ID == "" {
		coa.ID = uuid.NewString()
	}
	m.coas[coa.Code] = *coa
	return nil
}

func (m *Memory) ListCOACodes(ctx context.Context) ([]string, error) {
	if err := m.check("ListCOACodes", ""); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	codes := make([]string, 0, len(m.coas))
	for code := range m.coas {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes, nil
}

// =============================================================================
// STORE
// =============================================================================

func (m *Memory) Begin(ctx context.Context) (Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := m.check("Begin", ""); err != nil {
		return nil, err
	}
	return &memTx{
		m:           m,
		requests:    make(map[string]*memRequest),
		created:     make(map[string]bool),
		dirty:       make(map[string]bool),
		allocations: make(map[allocKey]types.Allocation),
		newAllocs:   make(map[allocKey]bool),
	}, nil
}

func (m *Memory) Ping(ctx context.Context) error { return m.check("Ping", "") }

func (m *Memory) Close() {}

// =============================================================================
// INSPECTION (tests and demos)
// =============================================================================

// Request returns a committed request and its items.
func (m *Memory) Request(requestNumber string) (types.PurchaseRequest, []types.PurchaseItem, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.requests[requestNumber]
	if !ok {
		return types.PurchaseRequest{}, nil, false
	}
	return r.request, append([]types.PurchaseItem(nil), r.items...), true
}

// RequestCount returns the number of committed requests.
func (m *Memory) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.requests)
}

// COA returns a chart-of-account entry by code.
func (m *Memory) COA(code string) (types.ChartOfAccount, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.coas[code]
	return c, ok
}

// Allocations returns every committed allocation, ordered by COA and year.
func (m *Memory) Allocations() []types.Allocation {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.Allocation, 0, len(m.allocations))
	for _, a := range m.allocations {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].COAID != out[j].COAID {
			return out[i].COAID < out[j].COAID
		}
		return out[i].FiscalYear < out[j].FiscalYear
	})
	return out
}

// =============================================================================
// TRANSACTION
// =============================================================================

type memTx struct {
	m *Memory

	// requests holds staged request state keyed by request number; created
	// marks numbers this transaction inserted and dirty the ones it wrote.
	// Commit applies only dirty requests.
	requests map[string]*memRequest
	created  map[string]bool
	dirty    map[string]bool

	allocations map[allocKey]types.Allocation
	newAllocs   map[allocKey]bool

	// byID maps staged request IDs back to request numbers.
	byID map[string]string

	done bool
}

func (tx *memTx) active() error {
	if tx.done {
		return fmt.Errorf("transaction already closed")
	}
	return nil
}

// load returns the staged copy of a request, staging it from committed
// state on first access.
func (tx *memTx) load(requestNumber string) (*memRequest, bool) {
	if r, ok := tx.requests[requestNumber]; ok {
		return r, true
	}
	tx.m.mu.RLock()
	committed, ok := tx.m.requests[requestNumber]
	tx.m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	cp := *committed
	cp.items = append([]types.PurchaseItem(nil), committed.items...)
	tx.requests[requestNumber] = &cp
	tx.index(cp.stored.ID, requestNumber)
	return &cp, true
}

func (tx *memTx) index(id, requestNumber string) {
	if tx.byID == nil {
		tx.byID = make(map[string]string)
	}
	tx.byID[id] = requestNumber
}

func (tx *memTx) byRequestID(id string) (*memRequest, error) {
	number, ok := tx.byID[id]
	if !ok {
		tx.m.mu.RLock()
		for n, r := range tx.m.requests {
			if r.stored.ID == id {
				number, ok = n, true
				break
			}
		}
		tx.m.mu.RUnlock()
	}
	if !ok {
		return nil, fmt.Errorf("%w: request id %s", ErrNotFound, id)
	}
	r, _ := tx.load(number)
	if r == nil {
		return nil, fmt.Errorf("%w: request id %s", ErrNotFound, id)
	}
	return r, nil
}

func (tx *memTx) FindRequestByNumber(ctx context.Context, requestNumber string) (*types.StoredRequest, error) {
	if err := tx.active(); err != nil {
		return nil, err
	}
	if err := tx.m.check("FindRequestByNumber", requestNumber); err != nil {
		return nil, err
	}
	r, ok := tx.load(requestNumber)
	if !ok {
		return nil, ErrNotFound
	}
	s := r.stored
	return &s, nil
}

func (tx *memTx) CreateRequest(ctx context.Context, req *types.PurchaseRequest, coaID string) (string, error) {
	if err := tx.active(); err != nil {
		return "", err
	}
	if err := tx.m.check("CreateRequest", req.RequestNumber); err != nil {
		return "", err
	}
	if _, exists := tx.load(req.RequestNumber); exists {
		return "", fmt.Errorf("%w: request %q", ErrConflict, req.RequestNumber)
	}
	id := uuid.NewString()
	tx.requests[req.RequestNumber] = &memRequest{
		stored:  types.StoredRequest{ID: id, RequestNumber: req.RequestNumber, COAID: coaID},
		request: cloneRequest(req),
	}
	tx.created[req.RequestNumber] = true
	tx.dirty[req.RequestNumber] = true
	tx.index(id, req.RequestNumber)
	return id, nil
}

func (tx *memTx) UpdateRequest(ctx context.Context, id string, req *types.PurchaseRequest, coaID string) error {
	if err := tx.active(); err != nil {
		return err
	}
	if err := tx.m.check("UpdateRequest", req.RequestNumber); err != nil {
		return err
	}
	r, err := tx.byRequestID(id)
	if err != nil {
		return err
	}
	r.request = cloneRequest(req)
	r.stored.COAID = coaID
	tx.dirty[r.stored.RequestNumber] = true
	return nil
}

func (tx *memTx) CreateItems(ctx context.Context, requestID string, items []types.PurchaseItem) error {
	if err := tx.active(); err != nil {
		return err
	}
	r, err := tx.byRequestID(requestID)
	if err != nil {
		return err
	}
	if err := tx.m.check("CreateItems", r.stored.RequestNumber); err != nil {
		return err
	}
	r.items = append(r.items, items...)
	r.stored.ItemCount = len(r.items)
	tx.dirty[r.stored.RequestNumber] = true
	return nil
}

func (tx *memTx) ReplaceItems(ctx context.Context, requestID string, items []types.PurchaseItem) error {
	if err := tx.active(); err != nil {
		return err
	}
	r, err := tx.byRequestID(requestID)
	if err != nil {
		return err
	}
	if err := tx.m.check("ReplaceItems", r.stored.RequestNumber); err != nil {
		return err
	}
	r.items = append([]types.PurchaseItem(nil), items...)
	r.stored.ItemCount = len(r.items)
	tx.dirty[r.stored.RequestNumber] = true
	return nil
}

func (tx *memTx) FindAllocation(ctx context.Context, coaID string, fiscalYear int) (*types.Allocation, error) {
	if err := tx.active(); err != nil {
		return nil, err
	}
	key := allocKey{coaID, fiscalYear}
	if err := tx.m.check("FindAllocation", key.String()); err != nil {
		return nil, err
	}
	if a, ok := tx.allocations[key]; ok {
		return &a, nil
	}
	tx.m.mu.RLock()
	a, ok := tx.m.allocations[key]
	tx.m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (tx *memTx) CreateAllocation(ctx context.Context, alloc *types.Allocation) (string, error) {
	if err := tx.active(); err != nil {
		return "", err
	}
	key := allocKey{alloc.COAID, alloc.FiscalYear}
	if err := tx.m.check("CreateAllocation", key.String()); err != nil {
		return "", err
	}
	if _, err := tx.FindAllocation(ctx, alloc.COAID, alloc.FiscalYear); err == nil {
		return "", fmt.Errorf("%w: allocation %s", ErrConflict, key)
	}
	a := *alloc
	a.ID = uuid.NewString()
	tx.allocations[key] = a
	tx.newAllocs[key] = true
	return a.ID, nil
}

func (tx *memTx) UpdateAllocation(ctx context.Context, alloc *types.Allocation) error {
	if err := tx.active(); err != nil {
		return err
	}
	key := allocKey{alloc.COAID, alloc.FiscalYear}
	if err := tx.m.check("UpdateAllocation", key.String()); err != nil {
		return err
	}
	existing, err := tx.FindAllocation(ctx, alloc.COAID, alloc.FiscalYear)
	if err != nil {
		return err
	}
	a := *alloc
	a.ID = existing.ID
	tx.allocations[key] = a
	return nil
}

// Commit applies every staged write, or none of them when a uniqueness rule
// was violated by a concurrent commit.
func (tx *memTx) Commit(ctx context.Context) error {
	if err := tx.active(); err != nil {
		return err
	}
	if err := tx.m.check("Commit", ""); err != nil {
		return err
	}
	tx.done = true

	tx.m.mu.Lock()
	defer tx.m.mu.Unlock()

	for number := range tx.created {
		if _, exists := tx.m.requests[number]; exists {
			return fmt.Errorf("%w: request %q", ErrConflict, number)
		}
	}
	for key := range tx.newAllocs {
		if _, exists := tx.m.allocations[key]; exists {
			return fmt.Errorf("%w: allocation %s", ErrConflict, key)
		}
	}

	for number := range tx.dirty {
		tx.m.requests[number] = tx.requests[number]
	}
	for key, a := range tx.allocations {
		tx.m.allocations[key] = a
	}
	return nil
}

func (tx *memTx) Rollback(ctx context.Context) error {
	tx.done = true
	return nil
}

func cloneRequest(req *types.PurchaseRequest) types.PurchaseRequest {
	cp := *req
	cp.Items = append([]types.PurchaseItem(nil), req.Items...)
	cp.Rows = append([]int(nil), req.Rows...)
	return cp
}
