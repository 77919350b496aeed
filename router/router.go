// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package router maps operation selectors to the modules that implement
// them and dispatches calls against a user's ledger.
package router

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/luxfi/database"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/rlp"
	"github.com/zeebo/blake3"
	"go.uber.org/zap"

	"github.com/parsdao/lpengine/ledger"
	"github.com/parsdao/lpengine/modules"
)

// Errors
var (
	ErrSelectorAlreadyMapped = errors.New("selector already mapped")
	ErrSelectorNotMapped     = errors.New("selector not mapped")
	ErrNonZeroRemoveAddress  = errors.New("remove requires the zero module address")
	ErrUnknownModule         = errors.New("module not in catalog")
	ErrUnknownOperation      = errors.New("unknown operation")
	ErrUnauthorized          = ledger.ErrUnauthorized
	ErrPaused                = ledger.ErrPaused
	ErrPersist               = errors.New("failed to persist selector table")
)

type (
	Selector  = modules.Selector
	Operation = modules.Operation
	Env       = modules.Env
)

// SelectorOf returns the selector for an operation signature.
func SelectorOf(signature string) Selector {
	return modules.SelectorOf(signature)
}

// Action is the kind of change a registration entry applies.
type Action uint8

const (
	Add Action = iota
	Replace
	Remove
)

func (a Action) String() string {
	switch a {
	case Add:
		return "add"
	case Replace:
		return "replace"
	case Remove:
		return "remove"
	}
	return fmt.Sprintf("action(%d)", uint8(a))
}

// Entry maps selectors to a module address. Remove entries carry the zero
// address.
type Entry struct {
	Module    common.Address
	Selectors []Selector
	Action    Action
}

// Options configures a router.
type Options struct {
	// DB persists the selector table when set.
	DB        database.Database
	Namespace []byte
	Logger    *zap.Logger
}

// Router is one instance's selector table.
type Router struct {
	mu sync.RWMutex
	// exec serializes operations on the instance.
	exec sync.Mutex

	ledger  *ledger.Ledger
	catalog *modules.Catalog
	db      database.Database
	key     []byte
	log     *zap.Logger

	table map[Selector]common.Address
}

// New creates a router over l, resolving module addresses through catalog.
func New(l *ledger.Ledger, catalog *modules.Catalog, opts Options) (*Router, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	r := &Router{
		ledger:  l,
		catalog: catalog,
		db:      opts.DB,
		log:     opts.Logger,
		table:   make(map[Selector]common.Address),
	}
	if r.db != nil {
		r.key = tableKey(opts.Namespace)
		if err := r.load(); err != nil {
			return nil, fmt.Errorf("failed to load selector table: %w", err)
		}
	}
	return r, nil
}

// RegisterModules applies entries atomically. Owner only.
func (r *Router) RegisterModules(caller common.Address, entries []Entry) error {
	if caller != r.ledger.Owner() {
		return fmt.Errorf("%w: %s", ErrUnauthorized, caller.Hex())
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	next := maps.Clone(r.table)
	for i, e := range entries {
		if e.Action == Remove {
			if e.Module != (common.Address{}) {
				return fmt.Errorf("entry %d: %w", i, ErrNonZeroRemoveAddress)
			}
		} else if _, ok := r.catalog.GetByAddress(e.Module); !ok {
			return fmt.Errorf("entry %d: %w: %s", i, ErrUnknownModule, e.Module.Hex())
		}
		for _, sel := range e.Selectors {
			_, mapped := next[sel]
			switch e.Action {
			case Add:
				if mapped {
					return fmt.Errorf("entry %d: %w: %s", i, ErrSelectorAlreadyMapped, sel)
				}
				next[sel] = e.Module
			case Replace:
				if !mapped {
					return fmt.Errorf("entry %d: %w: %s", i, ErrSelectorNotMapped, sel)
				}
				next[sel] = e.Module
			case Remove:
				if !mapped {
					return fmt.Errorf("entry %d: %w: %s", i, ErrSelectorNotMapped, sel)
				}
				delete(next, sel)
			default:
				return fmt.Errorf("entry %d: unknown action %s", i, e.Action)
			}
		}
	}

	if err := r.save(next); err != nil {
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	r.table = next

	for _, e := range entries {
		r.log.Info("modules registered",
			zap.Stringer("action", e.Action),
			zap.String("module", e.Module.Hex()),
			zap.Int("selectors", len(e.Selectors)),
		)
	}
	return nil
}

// Dispatch runs the operation mapped to sel on behalf of caller. Operations
// on one instance run one at a time, from the checks through the ledger
// write.
func (r *Router) Dispatch(ctx context.Context, caller common.Address, sel Selector, args any) (any, error) {
	r.exec.Lock()
	defer r.exec.Unlock()

	if r.ledger.Paused() {
		return nil, ErrPaused
	}
	if !r.ledger.IsAuthorized(caller) {
		return nil, fmt.Errorf("%w: %s", ErrUnauthorized, caller.Hex())
	}

	r.mu.RLock()
	addr, ok := r.table[sel]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownOperation, sel)
	}
	m, ok := r.catalog.GetByAddress(addr)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModule, addr.Hex())
	}
	op, ok := m.Operation(sel)
	if !ok {
		return nil, fmt.Errorf("%w: %s not served by %s", ErrUnknownOperation, sel, m.Name())
	}

	env := &Env{
		Ledger:   r.ledger,
		Caller:   caller,
		Owner:    r.ledger.Owner(),
		Instance: r.ledger.Instance(),
	}
	res, err := op.Execute(ctx, env, args)
	if err != nil {
		r.log.Debug("operation failed",
			zap.String("module", m.Name()),
			zap.Stringer("selector", sel),
			zap.Error(err),
		)
		return nil, err
	}
	return res, nil
}

// Pause toggles the instance pause flag. Owner only.
func (r *Router) Pause(caller common.Address, paused bool) error {
	return r.ledger.SetPaused(caller, paused)
}

// ModuleFor returns the module address mapped to sel.
func (r *Router) ModuleFor(sel Selector) (common.Address, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	addr, ok := r.table[sel]
	return addr, ok
}

// Selectors returns the mapped selectors in byte order.
func (r *Router) Selectors() []Selector {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := slices.Collect(maps.Keys(r.table))
	slices.SortFunc(out, func(a, b Selector) int {
		return bytes.Compare(a[:], b[:])
	})
	return out
}

// Ledger returns the ledger the router dispatches against.
func (r *Router) Ledger() *ledger.Ledger {
	return r.ledger
}

type tableRecord struct {
	Selector Selector
	Module   common.Address
}

func tableKey(namespace []byte) []byte {
	h := blake3.New()
	h.Write([]byte("lpengine/router"))
	h.Write(namespace)
	key := make([]byte, 32)
	h.Digest().Read(key)
	return key
}

func (r *Router) save(table map[Selector]common.Address) error {
	if r.db == nil {
		return nil
	}
	records := make([]tableRecord, 0, len(table))
	for sel, addr := range table {
		records = append(records, tableRecord{Selector: sel, Module: addr})
	}
	slices.SortFunc(records, func(a, b tableRecord) int {
		return bytes.Compare(a.Selector[:], b.Selector[:])
	})
	data, err := rlp.EncodeToBytes(records)
	if err != nil {
		return err
	}
	return r.db.Put(r.key, data)
}

func (r *Router) load() error {
	data, err := r.db.Get(r.key)
	if errors.Is(err, database.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	var records []tableRecord
	if err := rlp.DecodeBytes(data, &records); err != nil {
		return err
	}
	for _, rec := range records {
		r.table[rec.Selector] = rec.Module
	}
	return nil
}
