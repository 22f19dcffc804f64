package store

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginjaninja78/prf-budget-import/internal/types"
)

func sampleRequest(number string) *types.PurchaseRequest {
	return &types.PurchaseRequest{
		RequestNumber:   number,
		Submitter:       "A.Doe",
		Description:     "Laptop",
		RequestedAmount: decimal.NewFromInt(1500),
	}
}

func TestMemory_CommitAndRollback(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	tx, err := m.Begin(ctx)
	require.NoError(t, err)
	id, err := tx.CreateRequest(ctx, sampleRequest("PRF-1"), "")
	require.NoError(t, err)
	require.NoError(t, tx.CreateItems(ctx, id, []types.PurchaseItem{{Name: "A"}, {Name: "B"}}))

	// Staged writes are invisible until commit.
	assert.Equal(t, 0, m.RequestCount())
	require.NoError(t, tx.Commit(ctx))
	require.NoError(t, tx.Rollback(ctx))

	_, items, ok := m.Request("PRF-1")
	require.True(t, ok)
	assert.Len(t, items, 2)

	tx, err = m.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.CreateRequest(ctx, sampleRequest("PRF-2"), "")
	require.NoError(t, err)
	require.NoError(t, tx.Rollback(ctx))

	_, _, ok = m.Request("PRF-2")
	assert.False(t, ok)
	assert.Equal(t, 1, m.RequestCount())
}

func TestMemory_RequestUniqueness(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	tx1, err := m.Begin(ctx)
	require.NoError(t, err)
	tx2, err := m.Begin(ctx)
	require.NoError(t, err)

	_, err = tx1.CreateRequest(ctx, sampleRequest("PRF-1"), "")
	require.NoError(t, err)
	_, err = tx2.CreateRequest(ctx, sampleRequest("PRF-1"), "")
	require.NoError(t, err)

	require.NoError(t, tx1.Commit(ctx))
	assert.ErrorIs(t, tx2.Commit(ctx), ErrConflict)

	tx3, err := m.Begin(ctx)
	require.NoError(t, err)
	_, err = tx3.CreateRequest(ctx, sampleRequest("PRF-1"), "")
	assert.ErrorIs(t, err, ErrConflict)
}

func TestMemory_UpdateAndReplaceItems(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	tx, _ := m.Begin(ctx)
	id, err := tx.CreateRequest(ctx, sampleRequest("PRF-1"), "")
	require.NoError(t, err)
	require.NoError(t, tx.CreateItems(ctx, id, []types.PurchaseItem{{Name: "A"}}))
	require.NoError(t, tx.Commit(ctx))

	tx, _ = m.Begin(ctx)
	found, err := tx.FindRequestByNumber(ctx, "PRF-1")
	require.NoError(t, err)
	assert.Equal(t, id, found.ID)
	assert.Equal(t, 1, found.ItemCount)

	updated := sampleRequest("PRF-1")
	updated.Description = "Two laptops"
	require.NoError(t, tx.UpdateRequest(ctx, found.ID, updated, "coa-1"))
	require.NoError(t, tx.ReplaceItems(ctx, found.ID, []types.PurchaseItem{{Name: "B"}, {Name: "C"}}))
	require.NoError(t, tx.Commit(ctx))

	req, items, ok := m.Request("PRF-1")
	require.True(t, ok)
	assert.Equal(t, "Two laptops", req.Description)
	require.Len(t, items, 2)
	assert.Equal(t, "B", items[0].Name)
}

func TestMemory_ReadOnlyLoadDoesNotOverwrite(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	tx, _ := m.Begin(ctx)
	id, err := tx.CreateRequest(ctx, sampleRequest("PRF-1"), "")
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))

	// reader stages PRF-1 but never writes it.
	reader, _ := m.Begin(ctx)
	_, err = reader.FindRequestByNumber(ctx, "PRF-1")
	require.NoError(t, err)

	writer, _ := m.Begin(ctx)
	updated := sampleRequest("PRF-1")
	updated.Description = "Two laptops"
	require.NoError(t, writer.UpdateRequest(ctx, id, updated, ""))
	require.NoError(t, writer.Commit(ctx))

	require.NoError(t, reader.Commit(ctx))

	req, _, ok := m.Request("PRF-1")
	require.True(t, ok)
	assert.Equal(t, "Two laptops", req.Description)
}

func TestMemory_Allocations(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	tx, _ := m.Begin(ctx)
	_, err := tx.CreateAllocation(ctx, &types.Allocation{COAID: "c1", FiscalYear: 2024, Amount: decimal.NewFromInt(10)})
	require.NoError(t, err)
	_, err = tx.CreateAllocation(ctx, &types.Allocation{COAID: "c1", FiscalYear: 2025, Amount: decimal.NewFromInt(20)})
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))

	tx, _ = m.Begin(ctx)
	_, err = tx.CreateAllocation(ctx, &types.Allocation{COAID: "c1", FiscalYear: 2024, Amount: decimal.NewFromInt(30)})
	assert.ErrorIs(t, err, ErrConflict)

	require.NoError(t, tx.UpdateAllocation(ctx, &types.Allocation{COAID: "c1", FiscalYear: 2024, Amount: decimal.NewFromInt(30)}))
	require.NoError(t, tx.Commit(ctx))

	allocs := m.Allocations()
	require.Len(t, allocs, 2)
	assert.True(t, decimal.NewFromInt(30).Equal(allocs[0].Amount))
	assert.Equal(t, 2025, allocs[1].FiscalYear)

	tx, _ = m.Begin(ctx)
	_, err = tx.FindAllocation(ctx, "c1", 2026)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_Directory(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(types.ChartOfAccount{Code: "OPS-01", Name: "Operations", Category: "General", Active: true})

	c, err := m.FindCOAByCode(ctx, "OPS-01")
	require.NoError(t, err)
	assert.NotEmpty(t, c.ID)

	_, err = m.FindCOAByCode(ctx, "ops-01")
	assert.ErrorIs(t, err, ErrNotFound)

	err = m.CreateCOA(ctx, &types.ChartOfAccount{Code: "OPS-01"})
	assert.ErrorIs(t, err, ErrConflict)

	created := &types.ChartOfAccount{Code: "FIN-02"}
	require.NoError(t, m.CreateCOA(ctx, created))
	assert.NotEmpty(t, created.ID)

	codes, err := m.ListCOACodes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"FIN-02", "OPS-01"}, codes)
}

func TestMemory_Fault(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	boom := errors.New("disk on fire")
	m.SetFault(func(op, key string) error {
		if op == "CreateItems" && key == "PRF-9" {
			return boom
		}
		return nil
	})

	tx, _ := m.Begin(ctx)
	id, err := tx.CreateRequest(ctx, sampleRequest("PRF-9"), "")
	require.NoError(t, err)
	assert.ErrorIs(t, tx.CreateItems(ctx, id, []types.PurchaseItem{{Name: "A"}}), boom)
	require.NoError(t, tx.Rollback(ctx))
	assert.Equal(t, 0, m.RequestCount())
}
