// =============================================================================
// PRF Budget Import - Chart of Accounts Resolver
// =============================================================================
//
// This module turns purchase cost codes into chart-of-account identifiers.
//
// RESOLUTION ORDER:
//   1. Per-batch memo (hits and misses)
//   2. Exact, case-sensitive lookup in the directory
//   3. Placeholder creation, when the batch allows it
//
// A Resolver belongs to exactly one batch. Codes it creates are visible to
// every later resolution in the same batch, so one code never produces two
// placeholders. The directory calls run outside the per-aggregate
// transactions: a placeholder survives even when the aggregate that asked
// for it is rolled back.
//
// =============================================================================

package coa

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/schollz/closestmatch"
	"go.uber.org/zap"

	"github.com/ginjaninja78/prf-budget-import/internal/metrics"
	"github.com/ginjaninja78/prf-budget-import/internal/store"
	"github.com/ginjaninja78/prf-budget-import/internal/types"
)

// ErrUnresolved is returned when a code is not in the directory and the
// batch does not allow placeholders.
var ErrUnresolved = errors.New("cost code not found in chart of accounts")

// PlaceholderPrefix starts the display name of every auto-created entry.
const PlaceholderPrefix = "Auto-created: "

// Options controls placeholder creation.
type Options struct {
	AutoCreate bool

	// Category is given to placeholders. Default: "General".
	Category string
}

// Resolution is the result of resolving one code.
type Resolution struct {
	COAID string
	Code  string

	// Created is true only for the call that created the placeholder.
	Created bool
}

type memoEntry struct {
	id    string
	found bool
}

// Resolver resolves cost codes for one batch. It is safe for concurrent use.
type Resolver struct {
	dir     store.Directory
	options Options
	logger  *zap.Logger

	mu       sync.Mutex
	memo     map[string]memoEntry
	created  []string
	snapshot *Snapshot
}

// NewResolver creates a resolver backed by the given directory.
func NewResolver(dir store.Directory, options Options, logger *zap.Logger) *Resolver {
	if options.Category == "" {
		options.Category = "General"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		dir:     dir,
		options: options,
		logger:  logger,
		memo:    make(map[string]memoEntry),
	}
}

// Resolve maps a code to a COA identifier, creating a placeholder when the
// code is unknown and auto-creation is enabled.
//
// PARAMETERS:
//   - code: The business code as written in the sheet. An empty code
//     resolves to an empty Resolution; the request is stored without a COA.
//
// RETURNS:
//   - The resolution.
//   - ErrUnresolved (wrapped, naming the code) when the code is unknown and
//     placeholders are not allowed; any directory error otherwise.
func (r *Resolver) Resolve(ctx context.Context, code string) (Resolution, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Resolution{}, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entry, err := r.lookupLocked(ctx, code)
	if err != nil {
		return Resolution{}, err
	}
	if entry.found {
		return Resolution{COAID: entry.id, Code: code}, nil
	}

	if !r.options.AutoCreate {
		return Resolution{}, r.unresolvedLocked(code)
	}
	return r.createLocked(ctx, code)
}

// Check reports whether a code exists without creating anything. It shares
// the memo with Resolve.
func (r *Resolver) Check(ctx context.Context, code string) (bool, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return false, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entry, err := r.lookupLocked(ctx, code)
	if err != nil {
		return false, err
	}
	return entry.found, nil
}

// Created lists the codes this resolver created, in creation order.
func (r *Resolver) Created() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.created...)
}

// AutoCreate reports whether the resolver creates placeholders.
func (r *Resolver) AutoCreate() bool { return r.options.AutoCreate }

// Suggest returns the closest known code from the last snapshot, or "".
func (r *Resolver) Suggest(code string) string {
	r.mu.Lock()
	snap := r.snapshot
	r.mu.Unlock()
	if snap == nil {
		return ""
	}
	return snap.Suggest(code)
}

// Snapshot loads every directory code into a read-only view for the
// validator. The snapshot is kept for Suggest.
func (r *Resolver) Snapshot(ctx context.Context) (*Snapshot, error) {
	codes, err := r.dir.ListCOACodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list chart of accounts: %w", err)
	}
	snap := NewSnapshot(codes)

	r.mu.Lock()
	r.snapshot = snap
	r.mu.Unlock()

	r.logger.Debug("Loaded chart of accounts", zap.Int("codes", len(codes)))
	return snap, nil
}

// =============================================================================
// INTERNALS (callers hold r.mu)
// =============================================================================

func (r *Resolver) lookupLocked(ctx context.Context, code string) (memoEntry, error) {
	if entry, ok := r.memo[code]; ok {
		return entry, nil
	}

	coa, err := r.dir.FindCOAByCode(ctx, code)
	switch {
	case errors.Is(err, store.ErrNotFound):
		entry := memoEntry{}
		r.memo[code] = entry
		return entry, nil
	case err != nil:
		return memoEntry{}, fmt.Errorf("failed to look up cost code '%s': %w", code, err)
	}

	entry := memoEntry{id: coa.ID, found: true}
	r.memo[code] = entry
	return entry, nil
}

func (r *Resolver) createLocked(ctx context.Context, code string) (Resolution, error) {
	placeholder := &types.ChartOfAccount{
		Code:     code,
		Name:     PlaceholderPrefix + code,
		Category: r.options.Category,
		Active:   true,
	}

	err := r.dir.CreateCOA(ctx, placeholder)
	if errors.Is(err, store.ErrConflict) {
		// Another writer created it after our lookup.
		existing, findErr := r.dir.FindCOAByCode(ctx, code)
		if findErr != nil {
			return Resolution{}, fmt.Errorf("failed to re-read cost code '%s': %w", code, findErr)
		}
		r.memo[code] = memoEntry{id: existing.ID, found: true}
		return Resolution{COAID: existing.ID, Code: code}, nil
	}
	if err != nil {
		return Resolution{}, fmt.Errorf("failed to create chart of account '%s': %w", code, err)
	}

	r.memo[code] = memoEntry{id: placeholder.ID, found: true}
	r.created = append(r.created, code)
	metrics.COACreatedTotal.Inc()

	r.logger.Info("Created placeholder chart of account",
		zap.String("cost_code", code),
		zap.String("coa_id", placeholder.ID),
		zap.String("category", placeholder.Category),
	)
	return Resolution{COAID: placeholder.ID, Code: code, Created: true}, nil
}

func (r *Resolver) unresolvedLocked(code string) error {
	if r.snapshot != nil {
		if s := r.snapshot.Suggest(code); s != "" && s != code {
			return fmt.Errorf("%w: '%s' (did you mean '%s'?)", ErrUnresolved, code, s)
		}
	}
	return fmt.Errorf("%w: '%s'", ErrUnresolved, code)
}

// =============================================================================
// SNAPSHOT
// =============================================================================

// Snapshot is an immutable view of the directory codes. It satisfies the
// validator's code directory.
type Snapshot struct {
	codes   map[string]bool
	matcher *closestmatch.ClosestMatch
}

// NewSnapshot builds a snapshot from a list of codes.
func NewSnapshot(codes []string) *Snapshot {
	s := &Snapshot{codes: make(map[string]bool, len(codes))}
	keys := make([]string, 0, len(codes))
	for _, c := range codes {
		if c == "" || s.codes[c] {
			continue
		}
		s.codes[c] = true
		keys = append(keys, c)
	}
	sort.Strings(keys)
	if len(keys) > 0 {
		s.matcher = closestmatch.New(keys, []int{2, 3})
	}
	return s
}

// Known reports an exact match.
func (s *Snapshot) Known(code string) bool { return s.codes[code] }

// Suggest returns the closest known code, or "" when nothing is close.
func (s *Snapshot) Suggest(code string) string {
	if s.matcher == nil || code == "" {
		return ""
	}
	return s.matcher.Closest(code)
}

// Len returns the number of codes in the snapshot.
func (s *Snapshot) Len() int { return len(s.codes) }
