// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package modules

import (
	"bytes"
	"context"
	"encoding/hex"

	"github.com/luxfi/crypto"
	"github.com/luxfi/geth/common"

	"github.com/parsdao/lpengine/ledger"
)

// Selector is the 4-byte operation code a module is dispatched by.
type Selector [4]byte

// SelectorOf returns the first four bytes of keccak256(signature).
func SelectorOf(signature string) Selector {
	var s Selector
	copy(s[:], crypto.Keccak256([]byte(signature))[:4])
	return s
}

func (s Selector) String() string {
	return "0x" + hex.EncodeToString(s[:])
}

// Env is the instance context an operation executes against.
type Env struct {
	Ledger   *ledger.Ledger
	Caller   common.Address
	Owner    common.Address
	Instance common.Address
}

// Operation is one dispatchable action.
type Operation interface {
	Execute(ctx context.Context, env *Env, args any) (any, error)
}

// OperationFunc adapts a function to Operation.
type OperationFunc func(ctx context.Context, env *Env, args any) (any, error)

func (f OperationFunc) Execute(ctx context.Context, env *Env, args any) (any, error) {
	return f(ctx, env, args)
}

// Module is a named set of operations installed at one address.
type Module interface {
	Name() string
	Selectors() []Selector
	Operation(sel Selector) (Operation, bool)
}

// Entry is a module registered in a catalog.
type Entry struct {
	Address common.Address
	Module  Module
}

type moduleArray []Entry

func (m moduleArray) Len() int      { return len(m) }
func (m moduleArray) Swap(i, j int) { m[i], m[j] = m[j], m[i] }
func (m moduleArray) Less(i, j int) bool {
	return bytes.Compare(m[i].Address.Bytes(), m[j].Address.Bytes()) < 0
}
