package systems

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJobSystemValidation(t *testing.T) {
	_, err := NewJobSystem(0, 1)
	assert.ErrorIs(t, err, ErrNoWorkers)
	_, err = NewJobSystem(1, -1)
	assert.ErrorIs(t, err, ErrNegativeChannelSize)
}

func TestJobSystemRunsEveryJob(t *testing.T) {
	js, err := NewJobSystem(4, 2)
	require.NoError(t, err)

	var completed, failed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		i := i
		wg.Add(1)
		require.NoError(t, js.Submit(Job{
			Name: "job",
			Run: func() error {
				if i%5 == 0 {
					return errors.New("boom")
				}
				return nil
			},
			OnComplete: func() { completed.Add(1); wg.Done() },
			OnFailure:  func(error) { failed.Add(1); wg.Done() },
		}))
	}
	wg.Wait()
	assert.Equal(t, int32(40), completed.Load())
	assert.Equal(t, int32(10), failed.Load())
	require.NoError(t, js.Shutdown())
}

func TestJobSystemShutdownDrainsQueue(t *testing.T) {
	js, err := NewJobSystem(1, 16)
	require.NoError(t, err)

	var ran atomic.Int32
	for i := 0; i < 10; i++ {
		require.NoError(t, js.Submit(Job{Run: func() error { ran.Add(1); return nil }}))
	}
	require.NoError(t, js.Shutdown())
	assert.Equal(t, int32(10), ran.Load())

	assert.ErrorIs(t, js.Submit(Job{Run: func() error { return nil }}), ErrJobSystemClosed)
	assert.NoError(t, js.Shutdown())
}
