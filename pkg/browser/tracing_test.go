package browser

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTraceRegistryBeginIsExclusive(t *testing.T) {
	r := newTraceRegistry()

	assert.True(t, r.begin("ctx"))
	assert.False(t, r.begin("ctx"))

	// After a flush the capture can be started again.
	assert.True(t, r.finish("ctx"))
	assert.True(t, r.begin("ctx"))
}

func TestTraceRegistrySingleFlusher(t *testing.T) {
	r := newTraceRegistry()
	assert.True(t, r.begin("ctx"))

	// Concurrent failures on workers sharing a context all try to flush the
	// same capture; exactly one may win and call the underlying Stop.
	results := make(chan bool, 10)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- r.finish("ctx")
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for won := range results {
		if won {
			wins++
		}
	}
	assert.Equal(t, 1, wins)
}

func TestTraceRegistryKeysAreIndependent(t *testing.T) {
	r := newTraceRegistry()

	assert.True(t, r.begin("worker_0"))
	assert.True(t, r.begin("worker_1"))

	assert.True(t, r.finish("worker_0"))
	assert.False(t, r.finish("worker_0"))
	assert.True(t, r.finish("worker_1"))
}

func TestTraceRegistryFinishWithoutBegin(t *testing.T) {
	r := newTraceRegistry()
	assert.False(t, r.finish("ctx"))
}
