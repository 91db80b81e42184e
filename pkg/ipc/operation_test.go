package ipc

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperationNotArmed(t *testing.T) {

	op := NewOperation()
	assert.Nil(t, op.Done())
	assert.Equal(t, StatusError, op.Wait(0))
	assert.False(t, op.IsValid())

	status, n := op.Result()
	assert.Equal(t, StatusPending, status)
	assert.Equal(t, 0, n)
}

func TestOperationCompletesOnce(t *testing.T) {

	var calls int32
	op := NewOperation()
	require.NoError(t, op.arm(func(status Status, n int) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, StatusSuccess, status)
		assert.Equal(t, 10, n)
	}))

	wg := &sync.WaitGroup{}
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			op.finish(StatusSuccess, 10, nil)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, StatusSuccess, op.Wait(-1))

	status, n := op.Result()
	assert.Equal(t, StatusSuccess, status)
	assert.Equal(t, 10, n)
}

func TestOperationNoCallbackWhenInvalid(t *testing.T) {

	called := false
	op := NewOperation()
	require.NoError(t, op.arm(func(Status, int) {
		called = true
	}))

	op.Invalidate()
	assert.False(t, op.IsValid())
	assert.True(t, op.finish(StatusSuccess, 1, nil))

	assert.False(t, called)
	assert.Equal(t, StatusSuccess, op.Wait(0))
}

func TestOperationRearmRequiresInvalidate(t *testing.T) {

	op := NewOperation()
	require.NoError(t, op.arm(nil))
	op.finish(StatusSuccess, 0, nil)

	assert.ErrorIs(t, op.arm(nil), ErrOperationInUse)

	op.Invalidate()
	require.NoError(t, op.arm(nil))
	assert.True(t, op.IsValid())
	assert.Equal(t, StatusTimedOut, op.Wait(0))
}

func TestOperationWaitTimeout(t *testing.T) {

	op := NewOperation()
	require.NoError(t, op.arm(nil))

	start := time.Now()
	assert.Equal(t, StatusTimedOut, op.Wait(20*time.Millisecond))
	assert.True(t, time.Since(start) >= 20*time.Millisecond)

	go func() {
		time.Sleep(10 * time.Millisecond)
		op.finish(StatusDisconnected, 0, nil)
	}()
	assert.Equal(t, StatusDisconnected, op.Wait(time.Second))
}

func TestOperationCancel(t *testing.T) {

	called := false
	hooked := false
	op := NewOperation()
	require.NoError(t, op.arm(func(Status, int) {
		called = true
	}))
	op.setCancel(func() {
		hooked = true
	})

	op.Cancel()

	assert.True(t, hooked)
	assert.False(t, called)
	assert.False(t, op.IsValid())
	assert.Equal(t, StatusError, op.Wait(0))
	assert.ErrorIs(t, op.Err(), ErrOperationCanceled)

	// a late completion is ignored
	assert.False(t, op.finish(StatusSuccess, 4, nil))
	status, _ := op.Result()
	assert.Equal(t, StatusError, status)
}

func TestOperationCancelAfterCompletion(t *testing.T) {

	op := NewOperation()
	require.NoError(t, op.arm(nil))
	op.finish(StatusSuccess, 3, nil)

	op.Cancel()

	status, n := op.Result()
	assert.Equal(t, StatusSuccess, status)
	assert.Equal(t, 3, n)
	assert.NoError(t, op.Err())
}
