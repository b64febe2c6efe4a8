package browser

import (
	"fmt"
	"path/filepath"

	"github.com/playwright-community/playwright-go"
)

// WorkerContext returns the context a worker should drive. With isolation
// off every worker shares the default context. With isolation on and a pool
// configured, contexts are created up to the pool size and then handed out
// round-robin with reference counting; otherwise each worker gets a fresh
// context.
func (m *Manager) WorkerContext(workerID int) (playwright.BrowserContext, error) {
	if !m.cfg.IsolatedContexts {
		if m.context == nil {
			return nil, fmt.Errorf("shared context not initialized")
		}
		return m.context, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.workerContexts[workerID]; ok {
		m.logger.Warn().Int("worker", workerID).Msg("worker context already exists, reusing")
		return existing, nil
	}
	if m.browser == nil {
		return nil, fmt.Errorf("browser not started")
	}

	var context playwright.BrowserContext
	var err error
	if m.cfg.ContextPoolSize > 0 {
		if len(m.pool) < m.cfg.ContextPoolSize {
			context, err = m.newIsolatedContext(workerID)
			if err != nil {
				return nil, err
			}
			m.pool = append(m.pool, context)
			m.logger.Info().
				Int("pooled", len(m.pool)).
				Int("pool_size", m.cfg.ContextPoolSize).
				Msg("created pooled context")
		} else {
			context = m.pool[m.poolIndex%len(m.pool)]
			m.poolIndex++
			m.logger.Info().Int("worker", workerID).Msg("reusing pooled context")
		}
		m.refcounts[context]++
	} else {
		context, err = m.newIsolatedContext(workerID)
		if err != nil {
			return nil, err
		}
		m.refcounts[context] = 1
	}

	m.workerContexts[workerID] = context
	return context, nil
}

func (m *Manager) newIsolatedContext(workerID int) (playwright.BrowserContext, error) {
	context, err := m.browser.NewContext(m.contextOptions(fmt.Sprintf("worker_%d", workerID)))
	if err != nil {
		return nil, fmt.Errorf("create context for worker %d: %w", workerID, err)
	}
	m.startTracingIfContinuous(context)
	return context, nil
}

// CloseWorkerContext releases a worker's context. Pooled contexts only drop
// a reference; dedicated ones are closed outright. saveTrace captures the
// context's trace to the video directory before closing.
func (m *Manager) CloseWorkerContext(workerID int, saveTrace bool) {
	if !m.cfg.IsolatedContexts {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	context, ok := m.workerContexts[workerID]
	if !ok {
		return
	}

	pooled := false
	for _, c := range m.pool {
		if c == context {
			pooled = true
			break
		}
	}

	if saveTrace && m.cfg.VideoDir != "" && m.traces.finish(context) {
		tracePath := filepath.Join(m.cfg.VideoDir, fmt.Sprintf("worker_%d_trace.zip", workerID))
		if err := context.Tracing().Stop(tracePath); err != nil {
			m.logger.Warn().Err(err).Int("worker", workerID).Msg("trace save failed")
		} else {
			m.logger.Info().Str("path", tracePath).Int("worker", workerID).Msg("saved worker trace")
		}
	}

	if pooled {
		if m.refcounts[context] > 0 {
			m.refcounts[context]--
		}
	} else {
		_ = m.traces.finish(context)
		_ = context.Close() // Ignore errors, continue cleanup
		delete(m.refcounts, context)
	}
	delete(m.workerContexts, workerID)
}
