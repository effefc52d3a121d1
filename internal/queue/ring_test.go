package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRing_FIFOOrder(t *testing.T) {
	r := NewRing[int](4)
	require.NoError(t, r.TryEnqueueSPSC(1))
	require.NoError(t, r.TryEnqueueSPSC(2))

	v, ok := r.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, 1, v)

	v, ok = r.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, 2, v)

	_, ok = r.TryDequeue()
	assert.False(t, ok)
}

func TestRing_FullReturnsErrFull(t *testing.T) {
	r := NewRing[int](2)
	require.NoError(t, r.TryEnqueueSPSC(1))
	require.NoError(t, r.TryEnqueueSPSC(2))
	assert.ErrorIs(t, r.TryEnqueueSPSC(3), ErrFull)
}

func TestRing_WrapsAroundAfterDequeue(t *testing.T) {
	r := NewRing[int](2)
	require.NoError(t, r.TryEnqueueSPSC(1))
	require.NoError(t, r.TryEnqueueSPSC(2))

	_, _ = r.TryDequeue()
	require.NoError(t, r.TryEnqueueSPSC(3))

	v, ok := r.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, 2, v)
	v, ok = r.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, 3, v)
}

func TestRing_CapacityMustBePowerOfTwo(t *testing.T) {
	assert.Panics(t, func() { NewRing[int](3) })
}

func TestRing_MPSCConcurrentProducers(t *testing.T) {
	r := NewRing[int](1024)
	const n = 8
	const perProducer = 100

	done := make(chan struct{}, n)
	for p := 0; p < n; p++ {
		go func(base int) {
			for i := 0; i < perProducer; i++ {
				for r.TryEnqueue(base+i) != nil {
				}
			}
			done <- struct{}{}
		}(p * perProducer)
	}
	for i := 0; i < n; i++ {
		<-done
	}

	count := 0
	for {
		if _, ok := r.TryDequeue(); !ok {
			break
		}
		count++
	}
	assert.Equal(t, n*perProducer, count)
}

func TestRing_DepthTracksPendingItems(t *testing.T) {
	r := NewRing[int](8)
	assert.Equal(t, uint64(0), r.Depth())
	require.NoError(t, r.TryEnqueueSPSC(1))
	require.NoError(t, r.TryEnqueueSPSC(2))
	assert.Equal(t, uint64(2), r.Depth())
	_, _ = r.TryDequeue()
	assert.Equal(t, uint64(1), r.Depth())
}
