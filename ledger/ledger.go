// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package ledger implements the per-user position ledger: running and closed
// positions, the append-only receipt custody log and paginated enumeration.
//
// Every mutation checks authorization and the pause flag first, computes the
// next state on copies, persists it in a single database batch and only then
// publishes it in memory, so a failed call leaves no trace.
package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/holiman/uint256"
	"github.com/luxfi/database"
	"github.com/luxfi/geth/common"
	"go.uber.org/zap"

	"github.com/parsdao/lpengine/tickmath"
)

// DefaultMaxPageSize caps a single enumeration page.
const DefaultMaxPageSize = 1000

// Authorizer decides which callers may perform structural mutations.
type Authorizer interface {
	IsAuthorized(caller common.Address) bool
}

// TokenTransferer moves tokens out of the instance.
type TokenTransferer interface {
	Transfer(ctx context.Context, token, from, to common.Address, amount *uint256.Int) error
}

// Options configures a ledger.
type Options struct {
	// Namespace isolates this ledger's keys inside a shared database.
	Namespace []byte
	// Owner is the user the instance acts for.
	Owner common.Address
	// Instance is the address holding the instance's tokens and receipts.
	Instance    common.Address
	Authorizer  Authorizer
	MaxPageSize uint64
	Logger      *zap.Logger
}

// Ledger is one user's position ledger.
type Ledger struct {
	mu sync.RWMutex

	db       database.Database
	ns       [32]byte
	owner    common.Address
	instance common.Address
	auth     Authorizer
	maxPage  uint64
	log      *zap.Logger

	state     stateRecord
	positions map[uint64]*Position
	events    []ReceiptEvent
}

// New opens the ledger stored under opts.Namespace, creating it if empty.
func New(db database.Database, opts Options) (*Ledger, error) {
	if opts.Authorizer == nil {
		return nil, fmt.Errorf("%w: nil authorizer", ErrInvalidInput)
	}
	if opts.MaxPageSize == 0 {
		opts.MaxPageSize = DefaultMaxPageSize
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	l := &Ledger{
		db:        db,
		ns:        namespaceKey(opts.Namespace),
		owner:     opts.Owner,
		instance:  opts.Instance,
		auth:      opts.Authorizer,
		maxPage:   opts.MaxPageSize,
		log:       opts.Logger,
		state:     stateRecord{NextID: 1},
		positions: make(map[uint64]*Position),
	}
	if err := l.load(); err != nil {
		return nil, fmt.Errorf("failed to load ledger: %w", err)
	}
	return l, nil
}

// Owner returns the user the ledger belongs to.
func (l *Ledger) Owner() common.Address {
	return l.owner
}

// Instance returns the custody address of the instance.
func (l *Ledger) Instance() common.Address {
	return l.instance
}

// IsAuthorized reports whether caller may perform structural mutations.
func (l *Ledger) IsAuthorized(caller common.Address) bool {
	return l.auth.IsAuthorized(caller)
}

// =========================================================================
// Admin
// =========================================================================

// SetPaused toggles the instance pause flag. Owner only.
func (l *Ledger) SetPaused(caller common.Address, paused bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != l.owner {
		return ErrUnauthorized
	}
	if l.state.Paused == paused {
		return nil
	}
	next := l.state.clone()
	next.Paused = paused
	if err := l.commit(next, nil, nil); err != nil {
		return err
	}
	l.log.Info("pause flag changed", zap.Bool("paused", paused))
	return nil
}

// Paused reports the pause flag.
func (l *Ledger) Paused() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.Paused
}

// WithdrawToken moves tokens held by the instance to the owner. Owner only;
// allowed while paused.
func (l *Ledger) WithdrawToken(ctx context.Context, caller, token common.Address, amount *uint256.Int, transferer TokenTransferer) error {
	if caller != l.owner {
		return ErrUnauthorized
	}
	if amount == nil || amount.IsZero() {
		return fmt.Errorf("%w: zero amount", ErrInvalidInput)
	}
	if err := transferer.Transfer(ctx, token, l.instance, l.owner, amount); err != nil {
		return fmt.Errorf("withdraw %s: %w", token.Hex(), err)
	}
	l.log.Info("token withdrawn",
		zap.String("token", token.Hex()),
		zap.String("amount", amount.Dec()),
	)
	return nil
}

// =========================================================================
// Structural mutations
// =========================================================================

// CreatePosition records a position around an already minted receipt and
// returns its id.
func (l *Ledger) CreatePosition(caller common.Address, p CreateParams) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.checkWritable(caller, true); err != nil {
		return 0, err
	}
	if p.TickLowerDiff >= p.TickUpperDiff {
		return 0, fmt.Errorf("%w: tick diffs [%d, %d)", ErrInvalidInput, p.TickLowerDiff, p.TickUpperDiff)
	}

	next := l.state.clone()
	id := next.NextID
	next.NextID++
	next.Running = append(next.Running, id)

	pos := &Position{
		ID:                  id,
		ReceiptID:           p.ReceiptID,
		StrategyProvider:    p.StrategyProvider,
		StrategyID:          p.StrategyID,
		TotalDepositUSD:     clone(p.TotalDepositUSD),
		Amount0CollectedFee: new(uint256.Int),
		Amount1CollectedFee: new(uint256.Int),
		Amount0Leftover:     clone(p.Leftover0),
		Amount1Leftover:     clone(p.Leftover1),
		TickLowerDiff:       p.TickLowerDiff,
		TickUpperDiff:       p.TickUpperDiff,
		Amount0Returned:     new(uint256.Int),
		Amount1Returned:     new(uint256.Int),
		Amount0ReturnedUSD:  new(uint256.Int),
		Amount1ReturnedUSD:  new(uint256.Int),
	}
	ev := l.nextEvent(&next, id, p.ReceiptID, ReceiptCreated)

	if err := l.commit(next, pos, ev); err != nil {
		return 0, err
	}
	l.log.Info("position created",
		zap.Uint64("position", id),
		zap.Uint64("receipt", p.ReceiptID),
		zap.String("depositUSD", pos.TotalDepositUSD.Dec()),
	)
	return id, nil
}

// IncreaseLiquidity replaces the deposit value and leftovers of a running
// position. The caller supplies the new total, not an increment.
func (l *Ledger) IncreaseLiquidity(caller common.Address, id uint64, newTotalUSD, leftover0, leftover1 *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.checkWritable(caller, true); err != nil {
		return err
	}
	cur, err := l.running(id)
	if err != nil {
		return err
	}

	pos := cur.Clone()
	pos.TotalDepositUSD = clone(newTotalUSD)
	pos.Amount0Leftover = clone(leftover0)
	pos.Amount1Leftover = clone(leftover1)

	if err := l.commit(l.state.clone(), pos, nil); err != nil {
		return err
	}
	l.log.Info("liquidity increased",
		zap.Uint64("position", id),
		zap.String("depositUSD", pos.TotalDepositUSD.Dec()),
	)
	return nil
}

// Rebalance moves a running position onto a new receipt, accumulating the
// fees collected from the old one.
func (l *Ledger) Rebalance(caller common.Address, id uint64, p RebalanceParams) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.checkWritable(caller, false); err != nil {
		return err
	}
	if p.TickLowerDiff >= p.TickUpperDiff {
		return fmt.Errorf("%w: tick diffs [%d, %d)", ErrInvalidInput, p.TickLowerDiff, p.TickUpperDiff)
	}
	cur, err := l.running(id)
	if err != nil {
		return err
	}

	pos := cur.Clone()
	if err := addFees(pos, p.FeeCollected0, p.FeeCollected1); err != nil {
		return err
	}
	pos.ReceiptID = p.NewReceiptID
	pos.TickLowerDiff = p.TickLowerDiff
	pos.TickUpperDiff = p.TickUpperDiff
	pos.Amount0Leftover = clone(p.Leftover0)
	pos.Amount1Leftover = clone(p.Leftover1)

	next := l.state.clone()
	ev := l.nextEvent(&next, id, p.NewReceiptID, ReceiptRebalanced)

	if err := l.commit(next, pos, ev); err != nil {
		return err
	}
	l.log.Info("position rebalanced",
		zap.Uint64("position", id),
		zap.Uint64("receipt", p.NewReceiptID),
		zap.Int32("tickLowerDiff", p.TickLowerDiff),
		zap.Int32("tickUpperDiff", p.TickUpperDiff),
	)
	return nil
}

// CollectFees accumulates fees collected from a running position's receipt
// without changing its range.
func (l *Ledger) CollectFees(caller common.Address, id uint64, fee0, fee1, leftover0, leftover1 *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.checkWritable(caller, false); err != nil {
		return err
	}
	cur, err := l.running(id)
	if err != nil {
		return err
	}

	pos := cur.Clone()
	if err := addFees(pos, fee0, fee1); err != nil {
		return err
	}
	pos.Amount0Leftover = clone(leftover0)
	pos.Amount1Leftover = clone(leftover1)

	if err := l.commit(l.state.clone(), pos, nil); err != nil {
		return err
	}
	l.log.Info("fees collected",
		zap.Uint64("position", id),
		zap.String("fee0", clone(fee0).Dec()),
		zap.String("fee1", clone(fee1).Dec()),
	)
	return nil
}

// Close finalizes a running position and moves it to the closed set.
func (l *Ledger) Close(caller common.Address, id uint64, p CloseParams) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.checkWritable(caller, false); err != nil {
		return err
	}
	cur, err := l.running(id)
	if err != nil {
		return err
	}

	pos := cur.Clone()
	if err := addFees(pos, p.FeeCollected0, p.FeeCollected1); err != nil {
		return err
	}
	pos.Amount0Returned = clone(p.Returned0)
	pos.Amount1Returned = clone(p.Returned1)
	pos.Amount0ReturnedUSD = clone(p.ReturnedUSD0)
	pos.Amount1ReturnedUSD = clone(p.ReturnedUSD1)
	pos.Closed = true

	next := l.state.clone()
	next.Running = remove(next.Running, id)
	next.Closed = append(next.Closed, id)
	ev := l.nextEvent(&next, id, pos.ReceiptID, ReceiptClosed)

	if err := l.commit(next, pos, ev); err != nil {
		return err
	}
	l.log.Info("position closed",
		zap.Uint64("position", id),
		zap.Uint64("receipt", pos.ReceiptID),
		zap.String("returned0", pos.Amount0Returned.Dec()),
		zap.String("returned1", pos.Amount1Returned.Dec()),
	)
	return nil
}

// =========================================================================
// Queries
// =========================================================================

// IsRunning reports whether id is an open position.
func (l *Ledger) IsRunning(id uint64) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	p, ok := l.positions[id]
	return ok && !p.Closed
}

// PositionInfo returns a copy of the position, open or closed.
func (l *Ledger) PositionInfo(id uint64) (Position, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	p, ok := l.positions[id]
	if !ok {
		return Position{}, fmt.Errorf("%w: %d", ErrPositionNotFound, id)
	}
	return *p.Clone(), nil
}

// TickDiffs returns the position's current tick offsets.
func (l *Ledger) TickDiffs(id uint64) (int32, int32, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	p, ok := l.positions[id]
	if !ok {
		return 0, 0, fmt.Errorf("%w: %d", ErrPositionNotFound, id)
	}
	return p.TickLowerDiff, p.TickUpperDiff, nil
}

// RunningPositions pages through open position ids in creation order.
func (l *Ledger) RunningPositions(cursor, limit uint64) ([]uint64, uint64) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return paginate(l.state.Running, cursor, l.pageLimit(limit))
}

// ClosedPositions pages through closed position ids in closing order.
func (l *Ledger) ClosedPositions(cursor, limit uint64) ([]uint64, uint64) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return paginate(l.state.Closed, cursor, l.pageLimit(limit))
}

// OwnedReceipts pages through every receipt the instance has held, in
// custody-log order.
func (l *Ledger) OwnedReceipts(cursor, limit uint64) ([]uint64, uint64) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	events, next := paginate(l.events, cursor, l.pageLimit(limit))
	ids := make([]uint64, len(events))
	for i, ev := range events {
		ids[i] = ev.ReceiptID
	}
	return ids, next
}

// ReceiptEvents pages through the custody log.
func (l *Ledger) ReceiptEvents(cursor, limit uint64) ([]ReceiptEvent, uint64) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return paginate(l.events, cursor, l.pageLimit(limit))
}

// Snapshot is a point-in-time copy of the whole ledger.
type Snapshot struct {
	NextID    uint64
	Paused    bool
	Running   []uint64
	Closed    []uint64
	Events    []ReceiptEvent
	Positions map[uint64]Position
}

// Snapshot copies the ledger state.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	st := l.state.clone()
	s := Snapshot{
		NextID:    st.NextID,
		Paused:    st.Paused,
		Running:   st.Running,
		Closed:    st.Closed,
		Events:    append([]ReceiptEvent(nil), l.events...),
		Positions: make(map[uint64]Position, len(l.positions)),
	}
	for id, p := range l.positions {
		s.Positions[id] = *p.Clone()
	}
	return s
}

// =========================================================================
// Internal helpers
// =========================================================================

// checkWritable runs the authorization and pause checks. Only
// capital-adding operations are blocked by the pause flag.
func (l *Ledger) checkWritable(caller common.Address, blockedByPause bool) error {
	if !l.auth.IsAuthorized(caller) {
		return fmt.Errorf("%w: %s", ErrUnauthorized, caller.Hex())
	}
	if blockedByPause && l.state.Paused {
		return ErrPaused
	}
	return nil
}

func (l *Ledger) running(id uint64) (*Position, error) {
	p, ok := l.positions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrPositionNotFound, id)
	}
	if p.Closed {
		return nil, fmt.Errorf("%w: %d", ErrAlreadyClosed, id)
	}
	return p, nil
}

func (l *Ledger) nextEvent(next *stateRecord, positionID, receiptID uint64, kind ReceiptEventKind) *ReceiptEvent {
	ev := &ReceiptEvent{
		Seq:        next.EventCount,
		PositionID: positionID,
		ReceiptID:  receiptID,
		Kind:       kind,
	}
	next.EventCount++
	return ev
}

// commit persists then publishes the next state.
func (l *Ledger) commit(next stateRecord, pos *Position, ev *ReceiptEvent) error {
	if err := l.write(next, pos, ev); err != nil {
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	l.state = next
	if pos != nil {
		l.positions[pos.ID] = pos
	}
	if ev != nil {
		l.events = append(l.events, *ev)
	}
	return nil
}

func (l *Ledger) pageLimit(limit uint64) uint64 {
	if limit > l.maxPage {
		return l.maxPage
	}
	return limit
}

func addFees(p *Position, fee0, fee1 *uint256.Int) error {
	sum0, overflow := new(uint256.Int).AddOverflow(p.Amount0CollectedFee, clone(fee0))
	if overflow {
		return fmt.Errorf("%w: fee0", tickmath.ErrArithmeticOverflow)
	}
	sum1, overflow := new(uint256.Int).AddOverflow(p.Amount1CollectedFee, clone(fee1))
	if overflow {
		return fmt.Errorf("%w: fee1", tickmath.ErrArithmeticOverflow)
	}
	p.Amount0CollectedFee = sum0
	p.Amount1CollectedFee = sum1
	return nil
}

func paginate[T any](items []T, cursor, limit uint64) ([]T, uint64) {
	n := uint64(len(items))
	start := min(cursor, n)
	end := n
	if limit < n-start {
		end = start + limit
	}
	out := make([]T, end-start)
	copy(out, items[start:end])
	return out, end
}

func remove(ids []uint64, id uint64) []uint64 {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
