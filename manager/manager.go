// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package manager is the central store of per-user engine instances. Every
// instance keeps its ledger and selector table in one shared database under
// its own namespace.
package manager

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/luxfi/database"
	"github.com/luxfi/geth/common"
	"github.com/zeebo/blake3"
	"go.uber.org/zap"

	"github.com/parsdao/lpengine/actions"
	"github.com/parsdao/lpengine/ledger"
	"github.com/parsdao/lpengine/modules"
	"github.com/parsdao/lpengine/registry"
	"github.com/parsdao/lpengine/router"
)

var ErrUnresolvedModule = errors.New("module name not resolvable")

// Options configures a manager.
type Options struct {
	// Deps are handed to the action modules. FeeTierAllowed is replaced by
	// the registry whitelist.
	Deps        actions.Deps
	MaxPageSize uint64
	Logger      *zap.Logger
}

// Instance is one user's engine.
type Instance struct {
	User    common.Address
	Address common.Address
	Ledger  *ledger.Ledger
	Router  *router.Router
}

// Manager hands out one instance per user.
type Manager struct {
	db       database.Database
	registry *registry.Registry
	catalog  *modules.Catalog
	maxPage  uint64
	log      *zap.Logger

	mu        sync.Mutex
	instances map[common.Address]*Instance
}

// New creates a manager and installs the action modules at the addresses
// the registry resolves for their names.
func New(db database.Database, reg *registry.Registry, opts Options) (*Manager, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	deps := opts.Deps
	deps.FeeTierAllowed = reg.IsFeeTierAllowed
	if deps.Logger == nil {
		deps.Logger = opts.Logger
	}

	catalog := modules.NewCatalog()
	for _, m := range actions.Modules(deps) {
		addr, ok := reg.ModuleAddress(m.Name())
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnresolvedModule, m.Name())
		}
		if err := catalog.Register(addr, m); err != nil {
			return nil, fmt.Errorf("failed to register %s: %w", m.Name(), err)
		}
	}

	return &Manager{
		db:        db,
		registry:  reg,
		catalog:   catalog,
		maxPage:   opts.MaxPageSize,
		log:       opts.Logger,
		instances: make(map[common.Address]*Instance),
	}, nil
}

// Catalog returns the modules available to every instance.
func (m *Manager) Catalog() *modules.Catalog {
	return m.catalog
}

// InstanceAddress derives the custody address of user's instance.
func InstanceAddress(user common.Address) common.Address {
	h := blake3.New()
	h.Write([]byte("lpengine/instance"))
	h.Write(user.Bytes())
	var digest [32]byte
	h.Digest().Read(digest[:])
	return common.BytesToAddress(digest[12:])
}

// Instance returns user's instance, loading it from the database or creating
// it on first use. A fresh instance gets every catalog module mapped.
func (m *Manager) Instance(user common.Address) (*Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if inst, ok := m.instances[user]; ok {
		return inst, nil
	}

	addr := InstanceAddress(user)
	l, err := ledger.New(m.db, ledger.Options{
		Namespace:   user.Bytes(),
		Owner:       user,
		Instance:    addr,
		Authorizer:  m.registry,
		MaxPageSize: m.maxPage,
		Logger:      m.log.With(zap.Stringer("user", user)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	r, err := router.New(l, m.catalog, router.Options{
		DB:        m.db,
		Namespace: user.Bytes(),
		Logger:    m.log.With(zap.Stringer("user", user)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open router: %w", err)
	}
	if len(r.Selectors()) == 0 {
		if err := r.RegisterModules(user, m.defaultEntries()); err != nil {
			return nil, fmt.Errorf("failed to register default modules: %w", err)
		}
	}

	inst := &Instance{User: user, Address: addr, Ledger: l, Router: r}
	m.instances[user] = inst
	m.log.Info("instance opened",
		zap.Stringer("user", user),
		zap.Stringer("instance", addr),
		zap.Int("selectors", len(r.Selectors())),
	)
	return inst, nil
}

// Users returns the users with an open instance in address order.
func (m *Manager) Users() []common.Address {
	m.mu.Lock()
	defer m.mu.Unlock()

	users := make([]common.Address, 0, len(m.instances))
	for u := range m.instances {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].Cmp(users[j]) < 0
	})
	return users
}

// Dispatch routes an operation to user's instance.
func (m *Manager) Dispatch(ctx context.Context, user, caller common.Address, sel router.Selector, args any) (any, error) {
	inst, err := m.Instance(user)
	if err != nil {
		return nil, err
	}
	return inst.Router.Dispatch(ctx, caller, sel, args)
}

func (m *Manager) defaultEntries() []router.Entry {
	var entries []router.Entry
	for _, name := range m.registry.ModuleNames() {
		addr, _ := m.registry.ModuleAddress(name)
		mod, ok := m.catalog.GetByAddress(addr)
		if !ok {
			continue
		}
		entries = append(entries, router.Entry{
			Module:    addr,
			Selectors: mod.Selectors(),
			Action:    router.Add,
		})
	}
	return entries
}
