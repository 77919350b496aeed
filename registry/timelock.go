// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package registry

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"slices"
	"time"

	"github.com/luxfi/geth/common"
	"github.com/zeebo/blake3"
	"go.uber.org/zap"
)

// ChangeID identifies a queued change.
type ChangeID [32]byte

func (id ChangeID) String() string {
	return "0x" + hex.EncodeToString(id[:])
}

// Change is a privileged parameter change applied through the timelock.
type Change interface {
	// Kind names the change for logs and ids.
	Kind() string
	encode() []byte
	apply(r *Registry) error
}

// SetFeeTier enables or disables a fee tier.
type SetFeeTier struct {
	Fee     uint32
	Enabled bool
}

func (SetFeeTier) Kind() string { return "setFeeTier" }

func (c SetFeeTier) encode() []byte {
	b := binary.BigEndian.AppendUint32(nil, c.Fee)
	return append(b, boolByte(c.Enabled))
}

func (c SetFeeTier) apply(r *Registry) error {
	if c.Fee == 0 {
		return fmt.Errorf("%w: zero fee", ErrInvalidChange)
	}
	if c.Enabled {
		r.feeTiers[c.Fee] = struct{}{}
	} else {
		delete(r.feeTiers, c.Fee)
	}
	return nil
}

// SetModule points a module name at an address. The zero address removes it.
type SetModule struct {
	Name    string
	Address common.Address
}

func (SetModule) Kind() string { return "setModule" }

func (c SetModule) encode() []byte {
	return append([]byte(c.Name), c.Address.Bytes()...)
}

func (c SetModule) apply(r *Registry) error {
	if c.Name == "" {
		return fmt.Errorf("%w: empty module name", ErrInvalidChange)
	}
	if c.Address == (common.Address{}) {
		delete(r.modules, c.Name)
		return nil
	}
	r.modules[c.Name] = c.Address
	return nil
}

// SetOperator adds or removes a global operator.
type SetOperator struct {
	Operator common.Address
	Enabled  bool
}

func (SetOperator) Kind() string { return "setOperator" }

func (c SetOperator) encode() []byte {
	return append(c.Operator.Bytes(), boolByte(c.Enabled))
}

func (c SetOperator) apply(r *Registry) error {
	if c.Enabled {
		r.operators[c.Operator] = struct{}{}
	} else {
		delete(r.operators, c.Operator)
	}
	return nil
}

// TransferGovernance hands the registry to a new governance address.
type TransferGovernance struct {
	NewGovernance common.Address
}

func (TransferGovernance) Kind() string { return "transferGovernance" }

func (c TransferGovernance) encode() []byte {
	return c.NewGovernance.Bytes()
}

func (c TransferGovernance) apply(r *Registry) error {
	if c.NewGovernance == (common.Address{}) {
		return fmt.Errorf("%w: zero governance", ErrInvalidChange)
	}
	r.governance = c.NewGovernance
	return nil
}

// QueuedChange is a change waiting for its eta.
type QueuedChange struct {
	ID     ChangeID
	Change Change
	ETA    time.Time
}

// Queue schedules change to become executable after delay.
func (r *Registry) Queue(caller common.Address, change Change, delay time.Duration) (ChangeID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if caller != r.governance {
		return ChangeID{}, ErrNotGovernance
	}
	if delay < r.minDelay || delay > r.maxDelay {
		return ChangeID{}, fmt.Errorf("%w: %s not in [%s, %s]", ErrDelayOutOfRange, delay, r.minDelay, r.maxDelay)
	}

	eta := r.now().Add(delay)
	id := changeID(change, eta, r.nonce)
	if _, ok := r.queue[id]; ok {
		return ChangeID{}, ErrAlreadyQueued
	}
	r.nonce++
	r.queue[id] = &QueuedChange{ID: id, Change: change, ETA: eta}

	r.log.Info("change queued",
		zap.String("kind", change.Kind()),
		zap.Stringer("id", id),
		zap.Time("eta", eta),
	)
	return id, nil
}

// Execute applies a queued change whose eta has passed and which is still
// within the grace period.
func (r *Registry) Execute(caller common.Address, id ChangeID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if caller != r.governance {
		return ErrNotGovernance
	}
	q, ok := r.queue[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotQueued, id)
	}
	now := r.now()
	if now.Before(q.ETA) {
		return fmt.Errorf("%w: eta %s", ErrTimelockNotReady, q.ETA)
	}
	if now.After(q.ETA.Add(GracePeriod)) {
		return fmt.Errorf("%w: eta %s", ErrStaleChange, q.ETA)
	}
	if err := q.Change.apply(r); err != nil {
		return err
	}
	delete(r.queue, id)

	r.log.Info("change executed",
		zap.String("kind", q.Change.Kind()),
		zap.Stringer("id", id),
	)
	return nil
}

// Cancel drops a queued change.
func (r *Registry) Cancel(caller common.Address, id ChangeID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if caller != r.governance {
		return ErrNotGovernance
	}
	if _, ok := r.queue[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotQueued, id)
	}
	delete(r.queue, id)
	r.log.Info("change cancelled", zap.Stringer("id", id))
	return nil
}

// Queued returns the pending changes ordered by eta.
func (r *Registry) Queued() []QueuedChange {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]QueuedChange, 0, len(r.queue))
	for _, q := range r.queue {
		out = append(out, *q)
	}
	slices.SortFunc(out, func(a, b QueuedChange) int {
		return a.ETA.Compare(b.ETA)
	})
	return out
}

func changeID(c Change, eta time.Time, nonce uint64) ChangeID {
	h := blake3.New()
	h.Write([]byte(c.Kind()))
	h.Write(c.encode())
	h.Write(binary.BigEndian.AppendUint64(nil, uint64(eta.UnixNano())))
	h.Write(binary.BigEndian.AppendUint64(nil, nonce))

	var id ChangeID
	h.Digest().Read(id[:])
	return id
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
