// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ledger

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/luxfi/database"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/rlp"
	"github.com/zeebo/blake3"
)

// Storage key prefixes for ledger state
var (
	statePrefix    = []byte("stat")
	positionPrefix = []byte("posn")
	eventPrefix    = []byte("rcpt")
)

// stateRecord holds everything except positions and events.
type stateRecord struct {
	NextID     uint64
	Paused     bool
	Running    []uint64
	Closed     []uint64
	EventCount uint64
}

func (s stateRecord) clone() stateRecord {
	s.Running = append([]uint64(nil), s.Running...)
	s.Closed = append([]uint64(nil), s.Closed...)
	return s
}

// positionRecord is the RLP form of Position. Tick offsets are stored as
// two's complement since RLP has no signed integers.
type positionRecord struct {
	ID                  uint64
	ReceiptID           uint64
	StrategyProvider    common.Address
	StrategyID          [16]byte
	TotalDepositUSD     *big.Int
	Amount0CollectedFee *big.Int
	Amount1CollectedFee *big.Int
	Amount0Leftover     *big.Int
	Amount1Leftover     *big.Int
	TickLowerDiff       uint32
	TickUpperDiff       uint32
	Amount0Returned     *big.Int
	Amount1Returned     *big.Int
	Amount0ReturnedUSD  *big.Int
	Amount1ReturnedUSD  *big.Int
	Closed              bool
}

type eventRecord struct {
	Seq        uint64
	PositionID uint64
	ReceiptID  uint64
	Kind       uint8
}

// namespaceKey derives the per-instance key prefix.
func namespaceKey(namespace []byte) [32]byte {
	h := blake3.New()
	h.Write([]byte("lpengine/ledger"))
	h.Write(namespace)
	var ns [32]byte
	h.Digest().Read(ns[:])
	return ns
}

// makeStorageKey creates a storage key from namespace, prefix and identifier
func makeStorageKey(ns [32]byte, prefix []byte, id uint64) []byte {
	key := make([]byte, 0, len(ns)+len(prefix)+8)
	key = append(key, ns[:]...)
	key = append(key, prefix...)
	return binary.BigEndian.AppendUint64(key, id)
}

func toRecord(p *Position) positionRecord {
	return positionRecord{
		ID:                  p.ID,
		ReceiptID:           p.ReceiptID,
		StrategyProvider:    p.StrategyProvider,
		StrategyID:          p.StrategyID,
		TotalDepositUSD:     clone(p.TotalDepositUSD).ToBig(),
		Amount0CollectedFee: clone(p.Amount0CollectedFee).ToBig(),
		Amount1CollectedFee: clone(p.Amount1CollectedFee).ToBig(),
		Amount0Leftover:     clone(p.Amount0Leftover).ToBig(),
		Amount1Leftover:     clone(p.Amount1Leftover).ToBig(),
		TickLowerDiff:       uint32(p.TickLowerDiff),
		TickUpperDiff:       uint32(p.TickUpperDiff),
		Amount0Returned:     clone(p.Amount0Returned).ToBig(),
		Amount1Returned:     clone(p.Amount1Returned).ToBig(),
		Amount0ReturnedUSD:  clone(p.Amount0ReturnedUSD).ToBig(),
		Amount1ReturnedUSD:  clone(p.Amount1ReturnedUSD).ToBig(),
		Closed:              p.Closed,
	}
}

func fromBig(b *big.Int) (*uint256.Int, error) {
	if b == nil {
		return new(uint256.Int), nil
	}
	v, overflow := uint256.FromBig(b)
	if overflow {
		return nil, fmt.Errorf("value %s exceeds 256 bits", b)
	}
	return v, nil
}

func fromRecord(r positionRecord) (*Position, error) {
	p := &Position{
		ID:               r.ID,
		ReceiptID:        r.ReceiptID,
		StrategyProvider: r.StrategyProvider,
		StrategyID:       r.StrategyID,
		TickLowerDiff:    int32(r.TickLowerDiff),
		TickUpperDiff:    int32(r.TickUpperDiff),
		Closed:           r.Closed,
	}
	fields := []struct {
		dst **uint256.Int
		src *big.Int
	}{
		{&p.TotalDepositUSD, r.TotalDepositUSD},
		{&p.Amount0CollectedFee, r.Amount0CollectedFee},
		{&p.Amount1CollectedFee, r.Amount1CollectedFee},
		{&p.Amount0Leftover, r.Amount0Leftover},
		{&p.Amount1Leftover, r.Amount1Leftover},
		{&p.Amount0Returned, r.Amount0Returned},
		{&p.Amount1Returned, r.Amount1Returned},
		{&p.Amount0ReturnedUSD, r.Amount0ReturnedUSD},
		{&p.Amount1ReturnedUSD, r.Amount1ReturnedUSD},
	}
	for _, f := range fields {
		v, err := fromBig(f.src)
		if err != nil {
			return nil, err
		}
		*f.dst = v
	}
	return p, nil
}

// write stages the state record plus any changed position and new event in
// one batch.
func (l *Ledger) write(st stateRecord, pos *Position, ev *ReceiptEvent) error {
	batch := l.db.NewBatch()

	data, err := rlp.EncodeToBytes(&st)
	if err != nil {
		return err
	}
	if err := batch.Put(makeStorageKey(l.ns, statePrefix, 0), data); err != nil {
		return err
	}

	if pos != nil {
		rec := toRecord(pos)
		data, err := rlp.EncodeToBytes(&rec)
		if err != nil {
			return err
		}
		if err := batch.Put(makeStorageKey(l.ns, positionPrefix, pos.ID), data); err != nil {
			return err
		}
	}

	if ev != nil {
		rec := eventRecord{Seq: ev.Seq, PositionID: ev.PositionID, ReceiptID: ev.ReceiptID, Kind: uint8(ev.Kind)}
		data, err := rlp.EncodeToBytes(&rec)
		if err != nil {
			return err
		}
		if err := batch.Put(makeStorageKey(l.ns, eventPrefix, ev.Seq), data); err != nil {
			return err
		}
	}

	return batch.Write()
}

// load restores persisted state. A missing state record means a new ledger.
func (l *Ledger) load() error {
	data, err := l.db.Get(makeStorageKey(l.ns, statePrefix, 0))
	if errors.Is(err, database.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	var st stateRecord
	if err := rlp.DecodeBytes(data, &st); err != nil {
		return fmt.Errorf("decode state: %w", err)
	}

	positions := make(map[uint64]*Position, len(st.Running)+len(st.Closed))
	for _, ids := range [][]uint64{st.Running, st.Closed} {
		for _, id := range ids {
			data, err := l.db.Get(makeStorageKey(l.ns, positionPrefix, id))
			if err != nil {
				return fmt.Errorf("position %d: %w", id, err)
			}
			var rec positionRecord
			if err := rlp.DecodeBytes(data, &rec); err != nil {
				return fmt.Errorf("decode position %d: %w", id, err)
			}
			p, err := fromRecord(rec)
			if err != nil {
				return fmt.Errorf("position %d: %w", id, err)
			}
			positions[id] = p
		}
	}

	events := make([]ReceiptEvent, 0, st.EventCount)
	for seq := uint64(0); seq < st.EventCount; seq++ {
		data, err := l.db.Get(makeStorageKey(l.ns, eventPrefix, seq))
		if err != nil {
			return fmt.Errorf("receipt event %d: %w", seq, err)
		}
		var rec eventRecord
		if err := rlp.DecodeBytes(data, &rec); err != nil {
			return fmt.Errorf("decode receipt event %d: %w", seq, err)
		}
		events = append(events, ReceiptEvent{
			Seq:        rec.Seq,
			PositionID: rec.PositionID,
			ReceiptID:  rec.ReceiptID,
			Kind:       ReceiptEventKind(rec.Kind),
		})
	}

	l.state = st
	l.positions = positions
	l.events = events
	return nil
}
