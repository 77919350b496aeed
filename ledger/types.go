// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ledger

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
)

// Errors
var (
	ErrUnauthorized     = errors.New("unauthorized")
	ErrPositionNotFound = errors.New("position not found")
	ErrAlreadyClosed    = fmt.Errorf("%w: already closed", ErrPositionNotFound)
	ErrInvalidInput     = errors.New("invalid input")
	ErrPaused           = errors.New("paused")
	ErrPersist          = errors.New("failed to persist ledger state")
)

// StrategyID is an opaque strategy identifier chosen by the provider.
type StrategyID [16]byte

// Position is one custodied liquidity receipt under management.
type Position struct {
	ID               uint64
	ReceiptID        uint64
	StrategyProvider common.Address
	StrategyID       StrategyID

	// TotalDepositUSD is replaced, not accumulated, on every increase.
	TotalDepositUSD *uint256.Int

	Amount0CollectedFee *uint256.Int
	Amount1CollectedFee *uint256.Int
	Amount0Leftover     *uint256.Int
	Amount1Leftover     *uint256.Int

	// Offsets from the pool tick at the time of the last structural change
	TickLowerDiff int32
	TickUpperDiff int32

	// Terminal fields, set once at close
	Amount0Returned    *uint256.Int
	Amount1Returned    *uint256.Int
	Amount0ReturnedUSD *uint256.Int
	Amount1ReturnedUSD *uint256.Int

	Closed bool
}

// Clone returns a deep copy.
func (p *Position) Clone() *Position {
	c := *p
	c.TotalDepositUSD = clone(p.TotalDepositUSD)
	c.Amount0CollectedFee = clone(p.Amount0CollectedFee)
	c.Amount1CollectedFee = clone(p.Amount1CollectedFee)
	c.Amount0Leftover = clone(p.Amount0Leftover)
	c.Amount1Leftover = clone(p.Amount1Leftover)
	c.Amount0Returned = clone(p.Amount0Returned)
	c.Amount1Returned = clone(p.Amount1Returned)
	c.Amount0ReturnedUSD = clone(p.Amount0ReturnedUSD)
	c.Amount1ReturnedUSD = clone(p.Amount1ReturnedUSD)
	return &c
}

// ReceiptEventKind classifies a custody event.
type ReceiptEventKind uint8

const (
	ReceiptCreated ReceiptEventKind = iota + 1
	ReceiptRebalanced
	ReceiptClosed
)

func (k ReceiptEventKind) String() string {
	switch k {
	case ReceiptCreated:
		return "created"
	case ReceiptRebalanced:
		return "rebalanced"
	case ReceiptClosed:
		return "closed"
	}
	return "unknown"
}

// ReceiptEvent is one entry of the append-only custody log.
type ReceiptEvent struct {
	Seq        uint64
	PositionID uint64
	ReceiptID  uint64
	Kind       ReceiptEventKind
}

// CreateParams opens a position around an already minted receipt.
type CreateParams struct {
	ReceiptID        uint64
	StrategyProvider common.Address
	StrategyID       StrategyID
	TotalDepositUSD  *uint256.Int
	TickLowerDiff    int32
	TickUpperDiff    int32
	Leftover0        *uint256.Int
	Leftover1        *uint256.Int
}

// RebalanceParams moves a position onto a new receipt.
type RebalanceParams struct {
	NewReceiptID  uint64
	TickLowerDiff int32
	TickUpperDiff int32
	FeeCollected0 *uint256.Int
	FeeCollected1 *uint256.Int
	Leftover0     *uint256.Int
	Leftover1     *uint256.Int
}

// CloseParams finalizes a position.
type CloseParams struct {
	FeeCollected0 *uint256.Int
	FeeCollected1 *uint256.Int
	Returned0     *uint256.Int
	Returned1     *uint256.Int
	ReturnedUSD0  *uint256.Int
	ReturnedUSD1  *uint256.Int
}

func clone(x *uint256.Int) *uint256.Int {
	if x == nil {
		return new(uint256.Int)
	}
	return x.Clone()
}
