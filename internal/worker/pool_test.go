package worker

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolRunsJobsUpToMax(t *testing.T) {
	p := newJobChannelPool(1, 3, time.Minute, zerolog.Nop())
	defer p.Close()

	block := make(chan struct{})
	var running atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		require.NoError(t, p.submit(func() {
			defer wg.Done()
			running.Add(1)
			<-block
		}))
	}
	require.Eventually(t, func() bool { return running.Load() == 3 }, time.Second, 5*time.Millisecond)

	ran := make(chan struct{})
	returned := make(chan struct{})
	go func() {
		_ = p.submit(func() { close(ran) })
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatalf("submit must not wait for a free worker")
	}
	select {
	case <-ran:
		t.Fatalf("fourth job should wait in the backlog")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, 1, p.pending())

	close(block)
	wg.Wait()
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatalf("fourth job never got a worker")
	}
	total, _ := p.size()
	assert.LessOrEqual(t, total, 3)
	assert.Equal(t, 0, p.pending())
}

func TestPoolCloseDropsBacklog(t *testing.T) {
	p := newJobChannelPool(1, 1, time.Minute, zerolog.Nop())

	block := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, p.submit(func() {
		close(started)
		<-block
	}))
	<-started

	var ran atomic.Bool
	require.NoError(t, p.submit(func() { ran.Store(true) }))
	assert.Equal(t, 1, p.pending())

	p.Close()
	close(block)
	require.Eventually(t, func() bool {
		running, _ := p.size()
		return running == 0
	}, time.Second, 5*time.Millisecond)
	assert.False(t, ran.Load(), "queued job must not run after Close")
	assert.Equal(t, 0, p.pending())
}

func TestPoolRetiresIdleWorkersDownToMin(t *testing.T) {
	p := newJobChannelPool(1, 4, 20*time.Millisecond, zerolog.Nop())
	defer p.Close()

	block := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		require.NoError(t, p.submit(func() {
			defer wg.Done()
			<-block
		}))
	}
	close(block)
	wg.Wait()

	require.Eventually(t, func() bool {
		running, _ := p.size()
		return running == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPoolRejectsAfterClose(t *testing.T) {
	p := newJobChannelPool(1, 2, time.Minute, zerolog.Nop())
	p.spawnWorker()
	require.Eventually(t, func() bool {
		_, idle := p.size()
		return idle == 1
	}, time.Second, 5*time.Millisecond)

	p.Close()
	assert.ErrorIs(t, p.submit(func() {}), ErrPoolClosed)
	require.Eventually(t, func() bool {
		running, _ := p.size()
		return running == 0
	}, time.Second, 5*time.Millisecond)
	p.Close()
}
