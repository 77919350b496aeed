// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package registry

import (
	"testing"
	"time"

	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"
)

var (
	gov      = common.HexToAddress("0x00000000000000000000000000000000000000d1")
	operator = common.HexToAddress("0x00000000000000000000000000000000000000d2")
	stranger = common.HexToAddress("0x00000000000000000000000000000000000000d3")
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func newTestRegistry(t *testing.T) (*Registry, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	r, err := New(gov, Options{
		MinDelay:  time.Hour,
		MaxDelay:  48 * time.Hour,
		FeeTiers:  []uint32{3000, 500},
		Operators: []common.Address{operator},
		Now:       clock.now,
	})
	require.NoError(t, err)
	return r, clock
}

func TestDefaults(t *testing.T) {
	r, _ := newTestRegistry(t)

	require.Equal(t, gov, r.Governance())
	require.Equal(t, []uint32{500, 3000}, r.FeeTiers())
	require.True(t, r.IsFeeTierAllowed(500))
	require.False(t, r.IsFeeTierAllowed(100))
	require.True(t, r.IsAuthorized(operator))
	require.False(t, r.IsAuthorized(stranger))

	addr, ok := r.ModuleAddress("withdraw")
	require.True(t, ok)
	require.Equal(t, common.HexToAddress(WithdrawModule), addr)
	require.Len(t, r.ModuleNames(), len(DefaultModules))

	_, err := New(gov, Options{MinDelay: 2 * time.Hour, MaxDelay: time.Hour})
	require.ErrorIs(t, err, ErrDelayOutOfRange)
}

func TestQueueExecute(t *testing.T) {
	r, clock := newTestRegistry(t)

	id, err := r.Queue(gov, SetFeeTier{Fee: 100, Enabled: true}, 2*time.Hour)
	require.NoError(t, err)
	require.Len(t, r.Queued(), 1)

	require.ErrorIs(t, r.Execute(gov, id), ErrTimelockNotReady)
	require.False(t, r.IsFeeTierAllowed(100))

	clock.t = clock.t.Add(2 * time.Hour)
	require.ErrorIs(t, r.Execute(stranger, id), ErrNotGovernance)
	require.NoError(t, r.Execute(gov, id))
	require.True(t, r.IsFeeTierAllowed(100))
	require.Empty(t, r.Queued())

	require.ErrorIs(t, r.Execute(gov, id), ErrNotQueued)
}

func TestQueueDelayBounds(t *testing.T) {
	r, _ := newTestRegistry(t)

	tests := []struct {
		name    string
		caller  common.Address
		delay   time.Duration
		wantErr error
	}{
		{"below min", gov, 30 * time.Minute, ErrDelayOutOfRange},
		{"above max", gov, 49 * time.Hour, ErrDelayOutOfRange},
		{"not governance", operator, 2 * time.Hour, ErrNotGovernance},
		{"at min", gov, time.Hour, nil},
		{"at max", gov, 48 * time.Hour, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Queue(tt.caller, SetOperator{Operator: stranger, Enabled: true}, tt.delay)
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestGracePeriod(t *testing.T) {
	r, clock := newTestRegistry(t)

	id, err := r.Queue(gov, SetOperator{Operator: stranger, Enabled: true}, time.Hour)
	require.NoError(t, err)

	clock.t = clock.t.Add(time.Hour + GracePeriod + time.Second)
	require.ErrorIs(t, r.Execute(gov, id), ErrStaleChange)
	require.False(t, r.IsAuthorized(stranger))

	require.NoError(t, r.Cancel(gov, id))
	require.ErrorIs(t, r.Cancel(gov, id), ErrNotQueued)
}

func TestChanges(t *testing.T) {
	r, clock := newTestRegistry(t)
	newAddr := common.HexToAddress("0x9201")
	newGov := common.HexToAddress("0x00000000000000000000000000000000000000d9")

	changes := []Change{
		SetModule{Name: "withdraw", Address: newAddr},
		SetModule{Name: "zapIn"},
		SetOperator{Operator: operator, Enabled: false},
		SetFeeTier{Fee: 3000, Enabled: false},
		TransferGovernance{NewGovernance: newGov},
	}
	var ids []ChangeID
	for _, c := range changes {
		id, err := r.Queue(gov, c, time.Hour)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	// identical changes queued at the same time still get distinct ids
	dup, err := r.Queue(gov, SetModule{Name: "zapIn"}, time.Hour)
	require.NoError(t, err)
	require.NotEqual(t, ids[1], dup)
	require.NoError(t, r.Cancel(gov, dup))

	clock.t = clock.t.Add(time.Hour)
	for _, id := range ids {
		require.NoError(t, r.Execute(gov, id))
	}

	addr, ok := r.ModuleAddress("withdraw")
	require.True(t, ok)
	require.Equal(t, newAddr, addr)
	_, ok = r.ModuleAddress("zapIn")
	require.False(t, ok)
	require.False(t, r.IsAuthorized(operator))
	require.Equal(t, []uint32{500}, r.FeeTiers())
	require.Equal(t, newGov, r.Governance())

	_, err = r.Queue(gov, SetFeeTier{Fee: 100, Enabled: true}, time.Hour)
	require.ErrorIs(t, err, ErrNotGovernance)
}

func TestInvalidChange(t *testing.T) {
	r, clock := newTestRegistry(t)

	id, err := r.Queue(gov, TransferGovernance{}, time.Hour)
	require.NoError(t, err)
	clock.t = clock.t.Add(time.Hour)
	require.ErrorIs(t, r.Execute(gov, id), ErrInvalidChange)
	require.Equal(t, gov, r.Governance())
}
