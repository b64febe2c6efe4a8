package browser

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/playwright-community/playwright-go"

	"github.com/tomaasz/ocr-dashboard-v2/pkg/config"
)

// traceRegistry tracks which contexts have an active trace capture. Worker
// goroutines fail and save traces concurrently, so capture transitions are
// guarded and exactly one caller may flush a given capture.
type traceRegistry struct {
	mu     sync.Mutex
	active map[any]bool
}

func newTraceRegistry() *traceRegistry {
	return &traceRegistry{active: make(map[any]bool)}
}

// begin marks a capture active for the key. Reports false when one is
// already running, in which case the caller must not start another.
func (r *traceRegistry) begin(key any) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active[key] {
		return false
	}
	r.active[key] = true
	return true
}

// finish claims the right to flush the key's capture. Of any set of
// concurrent callers exactly one gets true.
func (r *traceRegistry) finish(key any) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active[key] {
		return false
	}
	delete(r.active, key)
	return true
}

func (m *Manager) startTracingIfContinuous(context playwright.BrowserContext) {
	if m.cfg.TracingMode != config.TracingContinuous {
		return
	}
	if !m.traces.begin(context) {
		return
	}
	err := context.Tracing().Start(playwright.TracingStartOptions{
		Screenshots: playwright.Bool(true),
		Snapshots:   playwright.Bool(true),
		Sources:     playwright.Bool(true),
	})
	if err != nil {
		m.traces.finish(context)
		m.logger.Warn().Err(err).Msg("tracing start failed")
		return
	}
	m.logger.Info().Msg("continuous tracing started")
}

// SaveErrorTrace writes the failing page's context trace to path. In
// continuous mode capture restarts right after the flush so coverage has no
// gap; in on_failure mode there is nothing running, so a short capture is
// started and flushed to preserve at least the failure aftermath. When
// another worker sharing the context is already flushing, this save yields
// to it and reports false.
func (m *Manager) SaveErrorTrace(page playwright.Page, path string) bool {
	if m.cfg.TracingMode == config.TracingOff || page == nil {
		return false
	}
	context := page.Context()
	if context == nil {
		return false
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		m.logger.Warn().Err(err).Msg("trace dir create failed")
		return false
	}

	if m.cfg.TracingMode == config.TracingOnFailure {
		if !m.traces.begin(context) {
			return false
		}
		if err := context.Tracing().Start(playwright.TracingStartOptions{
			Screenshots: playwright.Bool(true),
			Snapshots:   playwright.Bool(true),
		}); err != nil {
			m.traces.finish(context)
			m.logger.Warn().Err(err).Msg("failure tracing start failed")
			return false
		}
	}

	if !m.traces.finish(context) {
		m.logger.Debug().Msg("no active capture to flush, trace skipped")
		return false
	}
	if err := context.Tracing().Stop(path); err != nil {
		m.logger.Warn().Err(err).Msg("trace save failed")
		return false
	}
	m.logger.Info().Str("path", path).Msg("saved error trace")

	m.startTracingIfContinuous(context)
	return true
}

// TraceBytes flushes the running trace of the page's context to a temp file,
// returns its content, and restarts capture in continuous mode. Empty when no
// capture is active.
func (m *Manager) TraceBytes(page playwright.Page) []byte {
	if page == nil {
		return nil
	}
	context := page.Context()
	if context == nil || !m.traces.finish(context) {
		return nil
	}

	tmp, err := os.CreateTemp("", "trace-*.zip")
	if err != nil {
		m.logger.Warn().Err(err).Msg("trace temp file failed")
		return nil
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()
	defer func() { _ = os.Remove(tmpPath) }()

	if err := context.Tracing().Stop(tmpPath); err != nil {
		m.logger.Warn().Err(err).Msg("trace capture failed")
		return nil
	}

	data, err := os.ReadFile(tmpPath)
	if err != nil {
		m.logger.Warn().Err(err).Msg("trace read failed")
		data = nil
	}

	m.startTracingIfContinuous(context)
	return data
}

// ScreenshotBytes captures a full-page JPEG without touching disk.
func (m *Manager) ScreenshotBytes(page playwright.Page) []byte {
	data, err := page.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(true),
		Type:     playwright.ScreenshotTypeJpeg,
		Quality:  playwright.Int(70),
	})
	if err != nil {
		m.logger.Warn().Err(err).Msg("screenshot failed")
		return nil
	}
	return data
}
