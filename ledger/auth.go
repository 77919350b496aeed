// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ledger

import (
	"sync"

	"github.com/luxfi/geth/common"
)

var _ Authorizer = (*StaticAuthorizer)(nil)

// StaticAuthorizer is a fixed allow-list of callers.
type StaticAuthorizer struct {
	mu      sync.RWMutex
	callers map[common.Address]struct{}
}

func NewStaticAuthorizer(callers ...common.Address) *StaticAuthorizer {
	a := &StaticAuthorizer{callers: make(map[common.Address]struct{}, len(callers))}
	for _, c := range callers {
		a.callers[c] = struct{}{}
	}
	return a
}

func (a *StaticAuthorizer) Add(caller common.Address) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.callers[caller] = struct{}{}
}

func (a *StaticAuthorizer) Remove(caller common.Address) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.callers, caller)
}

func (a *StaticAuthorizer) IsAuthorized(caller common.Address) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.callers[caller]
	return ok
}
