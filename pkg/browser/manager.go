// Package browser owns the Playwright lifecycle for one worker process: it
// launches or attaches to Chromium, hands out browser contexts, drives the
// chat UI through an OCR round trip, and tears everything down in a fixed
// order. All UI interaction for the target application lives here or in the
// model package; nothing above this layer touches selectors.
package browser

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/phuslu/log"
	"github.com/playwright-community/playwright-go"

	"github.com/tomaasz/ocr-dashboard-v2/pkg/config"
	"github.com/tomaasz/ocr-dashboard-v2/pkg/health"
	"github.com/tomaasz/ocr-dashboard-v2/pkg/remote"
)

// launchArgs harden Chromium against automation detection and shared-memory
// exhaustion in containers.
var launchArgs = []string{
	"--disable-blink-features=AutomationControlled",
	"--no-sandbox",
	"--disable-setuid-sandbox",
	"--disable-infobars",
	"--window-position=0,0",
	"--ignore-certificate-errors",
	"--disable-dev-shm-usage",
	"--disable-extensions",
	"--enable-features=NetworkService,NetworkServiceInProcess",
}

// Manager owns the browser process (or remote attachment) and its contexts.
type Manager struct {
	cfg    *config.Config
	logger log.Logger
	events EventLog

	// login, when set and enabled in config, gets one attempt to restore a
	// logged-out session during clean start before the error turns fatal.
	login func(playwright.Page) bool

	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext

	bridge *remote.Bridge
	tunnel *remote.Tunnel

	traces *traceRegistry

	// mu guards the context bookkeeping below; worker goroutines check
	// contexts out concurrently.
	mu             sync.Mutex
	workerContexts map[int]playwright.BrowserContext
	pool           []playwright.BrowserContext
	poolIndex      int
	refcounts      map[playwright.BrowserContext]int
}

// NewManager builds a manager. events may be nil.
func NewManager(cfg *config.Config, events EventLog, logger log.Logger) *Manager {
	if events == nil {
		events = NopEventLog
	}
	return &Manager{
		cfg:            cfg,
		logger:         logger,
		events:         events,
		traces:         newTraceRegistry(),
		workerContexts: make(map[int]playwright.BrowserContext),
		refcounts:      make(map[playwright.BrowserContext]int),
	}
}

// SetLoginFunc installs the auto-login routine invoked when clean start
// finds the profile logged out.
func (m *Manager) SetLoginFunc(fn func(playwright.Page) bool) {
	m.login = fn
}

// Start brings up Playwright and returns the shared context. Three modes:
// remote attaches over CDP to a browser on another host, isolated launches a
// browser and creates contexts per worker, legacy uses one persistent
// context bound to the profile directory. All modes finish with a clean
// start so stale tabs and popups from a previous run cannot leak in.
func (m *Manager) Start(ctx context.Context) (playwright.BrowserContext, error) {
	m.logger.Info().
		Str("profile", m.cfg.ProfileName).
		Bool("isolated_contexts", m.cfg.IsolatedContexts).
		Msg("starting playwright")

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}
	m.pw = pw

	if m.cfg.Remote.Enabled {
		if err := m.startRemote(ctx); err != nil {
			return nil, err
		}
	} else if m.cfg.IsolatedContexts {
		if err := m.startIsolated(); err != nil {
			return nil, err
		}
	} else {
		if err := m.startPersistent(); err != nil {
			return nil, err
		}
	}

	if err := m.ensureCleanStart(); err != nil {
		return nil, err
	}
	return m.context, nil
}

func (m *Manager) startPersistent() error {
	opts := playwright.BrowserTypeLaunchPersistentContextOptions{
		Headless:      playwright.Bool(!m.cfg.Headed),
		Args:          launchArgs,
		Viewport:      &playwright.Size{Width: m.cfg.ViewportWidth, Height: m.cfg.ViewportHeight},
		Locale:        playwright.String(m.cfg.Locale),
		UserAgent:     playwright.String(m.cfg.UserAgent),
		ReducedMotion: reducedMotion(m.cfg.ReducedMotion),
	}
	if m.cfg.CaptureVideo && m.cfg.VideoDir != "" {
		opts.RecordVideo = &playwright.RecordVideo{
			Dir:  m.cfg.VideoDir,
			Size: &playwright.Size{Width: m.cfg.ViewportWidth, Height: m.cfg.ViewportHeight},
		}
	}
	if p := m.cfg.Proxy; p != nil {
		opts.Proxy = proxyOption(p)
	}

	context, err := m.pw.Chromium.LaunchPersistentContext(m.cfg.ProfileDir, opts)
	if err != nil {
		return fmt.Errorf("launch persistent context: %w", err)
	}
	m.context = context
	m.startTracingIfContinuous(context)
	return nil
}

func (m *Manager) startIsolated() error {
	browser, err := m.pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(!m.cfg.Headed),
		Args:     append(append([]string{}, launchArgs...), "--user-data-dir="+m.cfg.ProfileDir),
	})
	if err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}
	m.browser = browser

	// A default shared context still exists so single-context call sites
	// keep working with the feature flag on.
	context, err := browser.NewContext(m.contextOptions("shared"))
	if err != nil {
		return fmt.Errorf("create shared context: %w", err)
	}
	m.context = context
	m.startTracingIfContinuous(context)
	return nil
}

func (m *Manager) startRemote(ctx context.Context) error {
	r := m.cfg.Remote
	m.logger.Info().Str("host", r.Host).Msg("remote browser mode enabled")

	m.bridge = remote.NewBridge(r.Host, r.User, r.SSHOpts, m.logger).
		WithWakeHost(r.WakeHost, r.WakeUser, r.WakeDistro)

	bin, err := m.bridge.ResolveBrowserBin(ctx, r.BrowserBin)
	if err != nil {
		return err
	}

	port := remote.PortFor(r.PortBase, r.PortSpan, m.cfg.ProfileName)
	profileDir := filepath.Join(r.ProfileRoot, m.cfg.ProfileName)
	if err := m.bridge.EnsureBrowser(ctx, bin, profileDir, port); err != nil {
		return err
	}

	cdpURL := fmt.Sprintf("http://%s:%d", r.Host, port)
	if r.TunnelEnabled {
		localPort := remote.PortFor(r.LocalPortBase, r.PortSpan, m.cfg.ProfileName)
		tunnel, err := remote.OpenTunnel(r.Host, r.User, r.SSHOpts, port, localPort, m.logger)
		if err != nil {
			m.logger.Warn().Err(err).Msg("ssh tunnel unavailable, falling back to direct remote host")
		} else {
			m.tunnel = tunnel
			cdpURL = tunnel.URL()
		}
	}

	var browser playwright.Browser
	for attempt := 1; attempt <= 6; attempt++ {
		browser, err = m.pw.Chromium.ConnectOverCDP(cdpURL)
		if err == nil {
			break
		}
		m.logger.Warn().Err(err).Int("attempt", attempt).Msg("remote cdp connect failed")
		time.Sleep(time.Second)
	}
	if err != nil {
		return fmt.Errorf("connect over cdp %s: %w", cdpURL, err)
	}
	m.browser = browser

	if contexts := browser.Contexts(); len(contexts) > 0 {
		m.context = contexts[0]
	} else {
		context, err := browser.NewContext(playwright.BrowserNewContextOptions{
			Viewport:  &playwright.Size{Width: m.cfg.ViewportWidth, Height: m.cfg.ViewportHeight},
			Locale:    playwright.String(m.cfg.Locale),
			UserAgent: playwright.String(m.cfg.UserAgent),
		})
		if err != nil {
			return fmt.Errorf("create remote context: %w", err)
		}
		m.context = context
	}
	return nil
}

func (m *Manager) contextOptions(videoSubdir string) playwright.BrowserNewContextOptions {
	opts := playwright.BrowserNewContextOptions{
		Viewport:      &playwright.Size{Width: m.cfg.ViewportWidth, Height: m.cfg.ViewportHeight},
		Locale:        playwright.String(m.cfg.Locale),
		UserAgent:     playwright.String(m.cfg.UserAgent),
		ReducedMotion: reducedMotion(m.cfg.ReducedMotion),
	}
	if m.cfg.CaptureVideo && m.cfg.VideoDir != "" {
		opts.RecordVideo = &playwright.RecordVideo{
			Dir:  filepath.Join(m.cfg.VideoDir, videoSubdir),
			Size: &playwright.Size{Width: m.cfg.ViewportWidth, Height: m.cfg.ViewportHeight},
		}
	}
	if p := m.cfg.Proxy; p != nil {
		opts.Proxy = proxyOption(p)
	}
	return opts
}

func proxyOption(p *config.Proxy) *playwright.Proxy {
	proxy := &playwright.Proxy{Server: p.Server}
	if p.Bypass != "" {
		proxy.Bypass = playwright.String(p.Bypass)
	}
	if p.Username != "" {
		proxy.Username = playwright.String(p.Username)
	}
	if p.Password != "" {
		proxy.Password = playwright.String(p.Password)
	}
	return proxy
}

func reducedMotion(on bool) *playwright.ReducedMotion {
	if on {
		return playwright.ReducedMotionReduce
	}
	return playwright.ReducedMotionNoPreference
}

// ensureCleanStart normalizes the context to exactly two tabs: the first on
// the application home with popups cleared, the second parked on
// about:blank. Extra tabs from a previous run accumulate limit popups and
// stale UI state, so they are closed unconditionally.
func (m *Manager) ensureCleanStart() error {
	m.logger.Info().Int("tabs", len(m.context.Pages())).Msg("normalizing tabs")
	if err := normalizeTabs(contextTabs{ctx: m.context}); err != nil {
		m.logger.Warn().Err(err).Msg("clean start: tab normalization failed")
		return nil
	}
	pages := m.context.Pages()

	first := pages[0]
	if _, err := first.Goto(m.cfg.TargetURL, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(15000),
	}); err != nil {
		m.logger.Warn().Err(err).Msg("clean start: navigation failed")
		return nil
	}
	first.WaitForTimeout(1000)

	// Some popups render late; sweep three times.
	for i := 0; i < 3; i++ {
		m.ClosePopups(first)
		first.WaitForTimeout(1000)
	}

	if issue, found := health.Detect(health.NewPageProbe(first)); found {
		report := health.Diagnose(health.NewPageProbe(first), issue)
		m.events.LogCriticalEvent(m.cfg.ProfileName, string(issue), report.Suggestion, report.Critical, report.Meta())
		if report.Critical {
			if issue == health.IssueLoginRequired && m.cfg.AutoLogin && m.login != nil {
				m.logger.Warn().Msg("session expired during clean start, attempting auto-login")
				if m.login(first) {
					m.logger.Info().Msg("auto-login succeeded")
					for i := 0; i < 3; i++ {
						m.ClosePopups(first)
						first.WaitForTimeout(1000)
					}
				} else {
					return fmt.Errorf("%w: auto-login failed", ErrSessionExpired)
				}
			} else {
				return fmt.Errorf("%w: %s during clean start", ErrSessionExpired, issue)
			}
		}
	}

	if len(pages) > 1 {
		if _, err := pages[1].Goto("about:blank"); err != nil {
			m.logger.Warn().Err(err).Msg("clean start: second tab reset failed")
		}
	}

	m.logger.Info().Msg("clean start completed")
	return nil
}

// Page returns the first page of the shared context, creating one if needed.
func (m *Manager) Page() (playwright.Page, error) {
	if m.context == nil {
		return nil, fmt.Errorf("browser not started")
	}
	if pages := m.context.Pages(); len(pages) > 0 {
		return pages[0], nil
	}
	return m.context.NewPage()
}

// Close tears everything down: worker contexts first, then the shared
// context, the browser, the remote Chrome and tunnel, and finally the
// Playwright driver. Each step tolerates failure so a wedged layer cannot
// strand the ones below it.
func (m *Manager) Close(ctx context.Context) {
	for workerID := range m.workerContexts {
		m.CloseWorkerContext(workerID, false)
	}
	if m.context != nil {
		_ = m.context.Close() // Ignore errors, continue cleanup
		m.context = nil
	}
	if m.browser != nil {
		_ = m.browser.Close()
		m.browser = nil
	}
	if m.bridge != nil {
		profileDir := filepath.Join(m.cfg.Remote.ProfileRoot, m.cfg.ProfileName)
		if err := m.bridge.StopBrowser(ctx, profileDir); err != nil {
			m.logger.Warn().Err(err).Msg("stop remote browser failed")
		}
		m.bridge = nil
	}
	if m.tunnel != nil {
		_ = m.tunnel.Close()
		m.tunnel = nil
	}
	if m.pw != nil {
		_ = m.pw.Stop()
		m.pw = nil
	}
}
