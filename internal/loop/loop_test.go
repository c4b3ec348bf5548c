package loop

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/hexgrid/internal/fault"
)

type visit struct {
	idx   string
	moved string
}

// drive runs a nest to completion across as many invocations as the limit needs.
func drive(t *testing.T, limit int, bounds ...Bound) (trace []visit, invocations int) {
	t.Helper()
	cp, err := New(Limits{CountLimit: limit, DepthLimit: len(bounds), Rate: 0})
	require.NoError(t, err)

	for {
		invocations++
		require.Less(t, invocations, 100000, "nest never finished")

		it, err := cp.Nest(bounds...)
		require.NoError(t, err)
		processed := 0
		for it.Next() {
			processed++
			v := visit{}
			for l := range bounds {
				v.idx += fmt.Sprintf("%d,", it.Index(l))
				if it.Moved(l) {
					v.moved += "1"
				} else {
					v.moved += "0"
				}
			}
			trace = append(trace, v)
		}
		done, err := it.Finish()
		require.NoError(t, err)
		if done {
			return trace, invocations
		}
		assert.Equal(t, limit, processed, "an unfinished invocation must spend its whole budget")
		assert.True(t, cp.Suspended())
	}
}

func ringBounds() []Bound {
	return []Bound{
		Range(1, 4),
		Range(0, 6),
		func(outer []int) (int, int) { return 0, outer[0] },
	}
}

func sparseBounds() []Bound {
	return []Bound{
		Range(0, 5),
		func(outer []int) (int, int) { return 0, outer[0] % 3 },
		func(outer []int) (int, int) { return outer[1], 3 },
	}
}

func TestNestCheckpointTransparency(t *testing.T) {
	cases := []struct {
		name   string
		bounds []Bound
	}{
		{"rings", ringBounds()},
		{"sparse", sparseBounds()},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			want, inv := drive(t, 1<<30, tc.bounds...)
			require.Equal(t, 1, inv)
			require.NotEmpty(t, want)

			for limit := 1; limit <= len(want)+1; limit++ {
				got, inv := drive(t, limit, tc.bounds...)
				assert.Equal(t, want, got, "limit %d", limit)
				assert.Equal(t, (len(want)+limit-1)/limit, inv, "limit %d", limit)
			}
		})
	}
}

func TestNestRingWalkOrder(t *testing.T) {
	trace, _ := drive(t, 1000, ringBounds()...)
	// 6 + 12 + 18 items for rings 1..3.
	require.Len(t, trace, 36)
	assert.Equal(t, visit{"1,0,0,", "111"}, trace[0])
	assert.Equal(t, visit{"1,1,0,", "011"}, trace[1])
	assert.Equal(t, visit{"2,0,0,", "111"}, trace[6])
	assert.Equal(t, visit{"2,0,1,", "001"}, trace[7])
}

func TestNestSkipsEmptyRanges(t *testing.T) {
	trace, _ := drive(t, 1000, sparseBounds()...)
	// outer 0 and 3 have no inner items; outer 1 and 4 have one, outer 2 has two.
	var outers string
	for _, v := range trace {
		outers += v.idx[:1]
	}
	assert.Equal(t, "111"+"222"+"22"+"444", outers)
	assert.Equal(t, visit{"1,0,0,", "111"}, trace[0])
	assert.Equal(t, visit{"2,0,0,", "111"}, trace[3])
	assert.Equal(t, visit{"2,1,1,", "011"}, trace[6])
	assert.Equal(t, visit{"4,0,0,", "111"}, trace[8])
}

func TestNestEmptySpaceFinishesWithoutProgress(t *testing.T) {
	cp, err := New(DefaultLimits())
	require.NoError(t, err)
	it, err := cp.Nest(Range(0, 0))
	require.NoError(t, err)
	assert.False(t, it.Next())
	done, err := it.Finish()
	require.NoError(t, err)
	assert.True(t, done)
	assert.Zero(t, cp.Count)
}

func TestNestDepthLimit(t *testing.T) {
	cp, err := New(Limits{CountLimit: 10, DepthLimit: 2})
	require.NoError(t, err)
	_, err = cp.Nest(Range(0, 1), Range(0, 1), Range(0, 1))
	require.ErrorIs(t, err, fault.ErrConfiguration)

	_, err = cp.Nest()
	require.ErrorIs(t, err, fault.ErrConfiguration)
}

func TestNestRejectsForeignSavedPosition(t *testing.T) {
	cp, err := New(Limits{CountLimit: 1, DepthLimit: 4})
	require.NoError(t, err)
	cp.Saved = []int{1, 2}
	_, err = cp.Nest(Range(0, 3))
	require.ErrorIs(t, err, fault.ErrInvariant)

	cp.Saved = []int{7}
	it, err := cp.Nest(Range(0, 3))
	require.NoError(t, err)
	assert.False(t, it.Next())
	_, err = it.Finish()
	require.ErrorIs(t, err, fault.ErrInvariant)
}

func TestLimitsValidate(t *testing.T) {
	tests := []struct {
		name   string
		limits Limits
		ok     bool
	}{
		{"defaults", DefaultLimits(), true},
		{"zero rate", Limits{CountLimit: 1, DepthLimit: 1}, true},
		{"zero count", Limits{CountLimit: 0, DepthLimit: 1}, false},
		{"negative count", Limits{CountLimit: -5, DepthLimit: 1}, false},
		{"zero depth", Limits{CountLimit: 1, DepthLimit: 0}, false},
		{"negative rate", Limits{CountLimit: 1, DepthLimit: 1, Rate: -time.Second}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.limits.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, fault.ErrConfiguration)
			_, err = New(tt.limits)
			assert.ErrorIs(t, err, fault.ErrConfiguration)
		})
	}
}

func TestCheckpointProgress(t *testing.T) {
	cp := &Checkpoint{}
	assert.Zero(t, cp.Progress())

	cp.Target = 4
	cp.Count = 1
	assert.InDelta(t, 0.25, cp.Progress(), 1e-9)

	cp.Count = 9
	assert.Equal(t, 1.0, cp.Progress())
}

func TestCheckpointInitOnce(t *testing.T) {
	cp, err := New(DefaultLimits())
	require.NoError(t, err)

	calls := 0
	boom := errors.New("boom")
	require.ErrorIs(t, cp.InitOnce(func() error { calls++; return boom }), boom)
	assert.False(t, cp.Initialized)

	for i := 0; i < 3; i++ {
		require.NoError(t, cp.InitOnce(func() error { calls++; return nil }))
	}
	assert.Equal(t, 2, calls)

	cp.Count = 5
	cp.Reset()
	assert.False(t, cp.Initialized)
	assert.Zero(t, cp.Count)
	assert.Equal(t, DefaultLimits(), cp.Limits)
}

func TestBudget(t *testing.T) {
	cp, err := New(Limits{CountLimit: 2, DepthLimit: 1})
	require.NoError(t, err)

	b := cp.Budget()
	_, err = b.Yield()
	require.ErrorIs(t, err, ErrNoProgress)
	require.ErrorIs(t, err, fault.ErrInvariant)

	assert.True(t, b.Take())
	assert.True(t, b.Take())
	assert.False(t, b.Take())
	assert.Equal(t, 2, cp.Count)
	done, err := b.Yield()
	require.NoError(t, err)
	assert.False(t, done)
}
