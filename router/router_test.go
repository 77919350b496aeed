// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package router

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/luxfi/database/memdb"
	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/sync/errgroup"

	"github.com/parsdao/lpengine/ledger"
	"github.com/parsdao/lpengine/modules"
)

var (
	owner    = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	operator = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	stranger = common.HexToAddress("0x00000000000000000000000000000000000000b3")

	selPing = SelectorOf("ping()")
	selEcho = SelectorOf("echo(bytes)")
)

// echoModule answers ping with its name and echo with its args.
type echoModule struct {
	name string
}

func (m echoModule) Name() string { return m.name }

func (m echoModule) Selectors() []Selector { return []Selector{selPing, selEcho} }

func (m echoModule) Operation(sel Selector) (Operation, bool) {
	switch sel {
	case selPing:
		return modules.OperationFunc(func(_ context.Context, env *Env, _ any) (any, error) {
			return m.name + "@" + env.Caller.Hex(), nil
		}), true
	case selEcho:
		return modules.OperationFunc(func(_ context.Context, _ *Env, args any) (any, error) {
			return args, nil
		}), true
	}
	return nil, false
}

type fixture struct {
	router  *Router
	ledger  *ledger.Ledger
	modA    common.Address
	modB    common.Address
	catalog *modules.Catalog
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := memdb.New()
	t.Cleanup(func() { db.Close() })

	l, err := ledger.New(db, ledger.Options{
		Namespace:  owner.Bytes(),
		Owner:      owner,
		Authorizer: ledger.NewStaticAuthorizer(operator),
	})
	require.NoError(t, err)

	catalog := modules.NewCatalog()
	f := &fixture{
		ledger:  l,
		modA:    modules.ActionAddress(1),
		modB:    modules.ActionAddress(2),
		catalog: catalog,
	}
	require.NoError(t, catalog.Register(f.modA, echoModule{name: "a"}))
	require.NoError(t, catalog.Register(f.modB, echoModule{name: "b"}))

	f.router, err = New(l, catalog, Options{DB: db, Namespace: owner.Bytes()})
	require.NoError(t, err)
	return f
}

func TestRegisterAndDispatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.router.RegisterModules(owner, []Entry{
		{Module: f.modA, Selectors: []Selector{selPing, selEcho}, Action: Add},
	}))

	res, err := f.router.Dispatch(ctx, operator, selPing, nil)
	require.NoError(t, err)
	require.Equal(t, "a@"+operator.Hex(), res)

	res, err = f.router.Dispatch(ctx, operator, selEcho, 42)
	require.NoError(t, err)
	require.Equal(t, 42, res)

	addr, ok := f.router.ModuleFor(selPing)
	require.True(t, ok)
	require.Equal(t, f.modA, addr)
	require.Len(t, f.router.Selectors(), 2)
}

func TestRegisterModulesErrors(t *testing.T) {
	tests := []struct {
		name    string
		caller  common.Address
		entries []Entry
		wantErr error
	}{
		{
			name:    "add twice",
			caller:  owner,
			entries: []Entry{{Module: f0, Selectors: []Selector{selPing}, Action: Add}},
			wantErr: ErrSelectorAlreadyMapped,
		},
		{
			name:    "replace unmapped",
			caller:  owner,
			entries: []Entry{{Module: f0, Selectors: []Selector{selEcho}, Action: Replace}},
			wantErr: ErrSelectorNotMapped,
		},
		{
			name:    "remove with module address",
			caller:  owner,
			entries: []Entry{{Module: f0, Selectors: []Selector{selPing}, Action: Remove}},
			wantErr: ErrNonZeroRemoveAddress,
		},
		{
			name:    "remove unmapped",
			caller:  owner,
			entries: []Entry{{Selectors: []Selector{selEcho}, Action: Remove}},
			wantErr: ErrSelectorNotMapped,
		},
		{
			name:    "module not in catalog",
			caller:  owner,
			entries: []Entry{{Module: modules.ActionAddress(9), Selectors: []Selector{selEcho}, Action: Add}},
			wantErr: ErrUnknownModule,
		},
		{
			name:    "not owner",
			caller:  operator,
			entries: []Entry{{Module: f0, Selectors: []Selector{selEcho}, Action: Add}},
			wantErr: ErrUnauthorized,
		},
		{
			// the valid first entry must not be applied
			name:   "batch is atomic",
			caller: owner,
			entries: []Entry{
				{Module: f0, Selectors: []Selector{selEcho}, Action: Add},
				{Module: f0, Selectors: []Selector{selPing}, Action: Add},
			},
			wantErr: ErrSelectorAlreadyMapped,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			require.NoError(t, f.router.RegisterModules(owner, []Entry{
				{Module: f.modA, Selectors: []Selector{selPing}, Action: Add},
			}))

			err := f.router.RegisterModules(tt.caller, tt.entries)
			require.ErrorIs(t, err, tt.wantErr)
			require.Equal(t, []Selector{selPing}, f.router.Selectors())
		})
	}
}

// f0 is the address the fixture installs module "a" at.
var f0 = modules.ActionAddress(1)

func TestReplaceAndRemove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.router.RegisterModules(owner, []Entry{
		{Module: f.modA, Selectors: []Selector{selPing, selEcho}, Action: Add},
	}))
	require.NoError(t, f.router.RegisterModules(owner, []Entry{
		{Module: f.modB, Selectors: []Selector{selPing}, Action: Replace},
	}))
	res, err := f.router.Dispatch(ctx, operator, selPing, nil)
	require.NoError(t, err)
	require.Equal(t, "b@"+operator.Hex(), res)

	require.NoError(t, f.router.RegisterModules(owner, []Entry{
		{Selectors: []Selector{selPing}, Action: Remove},
	}))
	_, err = f.router.Dispatch(ctx, operator, selPing, nil)
	require.ErrorIs(t, err, ErrUnknownOperation)
	_, ok := f.router.ModuleFor(selPing)
	require.False(t, ok)

	// the other selector is untouched
	res, err = f.router.Dispatch(ctx, operator, selEcho, "x")
	require.NoError(t, err)
	require.Equal(t, "x", res)
}

func TestDispatchChecks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.router.RegisterModules(owner, []Entry{
		{Module: f.modA, Selectors: []Selector{selPing}, Action: Add},
	}))

	_, err := f.router.Dispatch(ctx, stranger, selPing, nil)
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.router.Dispatch(ctx, operator, SelectorOf("missing()"), nil)
	require.ErrorIs(t, err, ErrUnknownOperation)

	require.ErrorIs(t, f.router.Pause(operator, true), ErrUnauthorized)
	require.NoError(t, f.router.Pause(owner, true))
	_, err = f.router.Dispatch(ctx, operator, selPing, nil)
	require.ErrorIs(t, err, ErrPaused)
	// pause is checked before authorization
	_, err = f.router.Dispatch(ctx, stranger, selPing, nil)
	require.ErrorIs(t, err, ErrPaused)

	require.NoError(t, f.router.Pause(owner, false))
	_, err = f.router.Dispatch(ctx, operator, selPing, nil)
	require.NoError(t, err)
}

func TestPauseLogsOnce(t *testing.T) {
	db := memdb.New()
	defer db.Close()
	core, logs := observer.New(zap.InfoLevel)
	log := zap.New(core)

	l, err := ledger.New(db, ledger.Options{
		Owner:      owner,
		Authorizer: ledger.NewStaticAuthorizer(operator),
		Logger:     log,
	})
	require.NoError(t, err)
	r, err := New(l, modules.NewCatalog(), Options{Logger: log})
	require.NoError(t, err)

	require.NoError(t, r.Pause(owner, true))
	require.Equal(t, 1, logs.Len())
	require.Equal(t, true, logs.All()[0].ContextMap()["paused"])

	require.ErrorIs(t, r.Pause(stranger, false), ErrUnauthorized)
	require.Equal(t, 1, logs.Len())
}

func TestTablePersists(t *testing.T) {
	db := memdb.New()
	defer db.Close()

	l, err := ledger.New(db, ledger.Options{Owner: owner, Authorizer: ledger.NewStaticAuthorizer(operator)})
	require.NoError(t, err)
	catalog := modules.NewCatalog()
	require.NoError(t, catalog.Register(f0, echoModule{name: "a"}))

	r, err := New(l, catalog, Options{DB: db})
	require.NoError(t, err)
	require.NoError(t, r.RegisterModules(owner, []Entry{
		{Module: f0, Selectors: []Selector{selPing, selEcho}, Action: Add},
	}))

	reopened, err := New(l, catalog, Options{DB: db})
	require.NoError(t, err)
	require.Equal(t, r.Selectors(), reopened.Selectors())
	addr, ok := reopened.ModuleFor(selEcho)
	require.True(t, ok)
	require.Equal(t, f0, addr)
}

// busyModule counts how many of its operations run at once.
type busyModule struct {
	running atomic.Int32
	peak    atomic.Int32
	release chan struct{}
}

func (m *busyModule) Name() string { return "busy" }

func (m *busyModule) Selectors() []Selector { return []Selector{selPing} }

func (m *busyModule) Operation(sel Selector) (Operation, bool) {
	if sel != selPing {
		return nil, false
	}
	return modules.OperationFunc(func(context.Context, *Env, any) (any, error) {
		n := m.running.Add(1)
		defer m.running.Add(-1)
		for {
			peak := m.peak.Load()
			if n <= peak || m.peak.CompareAndSwap(peak, n) {
				break
			}
		}
		select {
		case <-m.release:
		case <-time.After(5 * time.Millisecond):
		}
		return nil, nil
	}), true
}

func TestDispatchSerialized(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	busy := &busyModule{release: make(chan struct{})}
	addr := modules.ActionAddress(3)
	require.NoError(t, f.catalog.Register(addr, busy))
	require.NoError(t, f.router.RegisterModules(owner, []Entry{
		{Module: addr, Selectors: []Selector{selPing}, Action: Add},
	}))

	var g errgroup.Group
	for range 8 {
		g.Go(func() error {
			_, err := f.router.Dispatch(ctx, operator, selPing, nil)
			return err
		})
	}

	// queries are not held up by a running operation
	require.Eventually(t, func() bool { return busy.running.Load() == 1 }, time.Second, time.Millisecond)
	got, ok := f.router.ModuleFor(selPing)
	require.True(t, ok)
	require.Equal(t, addr, got)
	require.False(t, f.ledger.Paused())
	close(busy.release)

	require.NoError(t, g.Wait())
	require.Equal(t, int32(1), busy.peak.Load())
}
